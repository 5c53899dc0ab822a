package models

import (
	"strings"

	dErrors "convertviral/pkg/domain-errors"
)

// RecordConsentRequest is the POST /consent/record body.
type RecordConsentRequest struct {
	Consents            map[string]bool `json:"consents"`
	Timestamp           *int64          `json:"timestamp"`
	Version             string          `json:"version"`
	DataTransferConsent *bool           `json:"dataTransferConsent,omitempty"`
}

// Normalize trims the version and folds dataTransferConsent into consents.
// A missing consents map stays missing so Validate still rejects it.
func (r *RecordConsentRequest) Normalize() {
	if r == nil {
		return
	}
	r.Version = strings.TrimSpace(r.Version)
	if r.DataTransferConsent != nil && r.Consents != nil {
		r.Consents[string(CategoryDataTransfer)] = *r.DataTransferConsent
	}
}

// Validate checks the required fields. Nothing is written when it fails.
func (r *RecordConsentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request body is required")
	}
	if r.Consents == nil {
		return dErrors.New(dErrors.CodeValidation, "consents is required")
	}
	if r.Timestamp == nil {
		return dErrors.New(dErrors.CodeValidation, "timestamp is required")
	}
	if *r.Timestamp < 0 {
		return dErrors.New(dErrors.CodeValidation, "timestamp must not be negative")
	}
	if r.Version == "" {
		return dErrors.New(dErrors.CodeValidation, "version is required")
	}
	for category := range r.Consents {
		if strings.TrimSpace(category) == "" {
			return dErrors.New(dErrors.CodeValidation, "consent category must not be empty")
		}
	}
	return nil
}

// ToRecord converts a validated request into a consent record without
// captured context. When none is set every optional category is stored as
// refused, so the stored toggles agree with the withdrawn action.
func (r *RecordConsentRequest) ToRecord() ConsentRecord {
	rec := ConsentRecord{
		Consents: make(map[string]bool, len(r.Consents)),
		Version:  r.Version,
	}
	refuseAll := r.Consents[string(CategoryNone)]
	for category, granted := range r.Consents {
		if refuseAll && IsOptional(category) {
			granted = false
		}
		rec.Consents[category] = granted
	}
	if r.Timestamp != nil {
		rec.Timestamp = *r.Timestamp
	}
	return rec
}
