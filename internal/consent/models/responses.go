package models

// RecordConsentResponse is returned by POST /consent/record.
type RecordConsentResponse struct {
	Success   bool   `json:"success"`
	ConsentID string `json:"consentId"`
	Action    Action `json:"action"`
	// Timestamp is the server-side record time in unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// HistoryResponse is returned by GET /consent/record.
type HistoryResponse struct {
	CurrentConsent      *CurrentConsent   `json:"currentConsent"`
	History             []AuditEntry      `json:"history"`
	WithdrawalAvailable bool              `json:"withdrawalAvailable"`
	DataSubjectRights   DataSubjectRights `json:"dataSubjectRights"`
}

// CurrentConsent is the client view of the current-state record.
type CurrentConsent struct {
	ConsentRecord
	Action    Action `json:"action"`
	ConsentID string `json:"consentId"`
	UpdatedAt int64  `json:"updatedAt"`
}

// DataSubjectRights tells the client where each GDPR right is exercised.
type DataSubjectRights struct {
	Access        string `json:"access"`
	Rectification string `json:"rectification"`
	Erasure       string `json:"erasure"`
	Portability   string `json:"portability"`
	Withdrawal    string `json:"withdrawal"`
}

// DefaultDataSubjectRights points at the consent endpoints of this service.
func DefaultDataSubjectRights() DataSubjectRights {
	return DataSubjectRights{
		Access:        "GET /consent/record",
		Rectification: "POST /consent/record",
		Erasure:       "DELETE /consent/data",
		Portability:   "GET /consent/export",
		Withdrawal:    "DELETE /consent/record",
	}
}

// ExportResponse is returned by GET /consent/export.
type ExportResponse struct {
	Owner      string       `json:"owner"`
	Entries    []AuditEntry `json:"entries"`
	ExportedAt int64        `json:"exportedAt"`
}

// WithdrawConsentResponse is returned by DELETE /consent/record.
type WithdrawConsentResponse struct {
	Success      bool   `json:"success"`
	WithdrawalID string `json:"withdrawalId"`
	Timestamp    int64  `json:"timestamp"`
}

// EraseConsentResponse is returned by DELETE /consent/data.
type EraseConsentResponse struct {
	Success       bool  `json:"success"`
	ErasedEntries int   `json:"erasedEntries"`
	Timestamp     int64 `json:"timestamp"`
}
