package models

import (
	"maps"
	"time"
)

// Category names a consent toggle presented on the consent form.
type Category string

const (
	CategoryEssential       Category = "essential"
	CategoryAnalytics       Category = "analytics"
	CategoryMarketing       Category = "marketing"
	CategoryPersonalization Category = "personalization"
	CategoryDataTransfer    Category = "data_transfer"
	// CategoryNone is the explicit "reject everything optional" switch.
	CategoryNone Category = "none"
)

// KnownCategories lists the categories the current form presents. Records may
// carry others; any key other than essential and none counts as optional.
var KnownCategories = []Category{
	CategoryEssential,
	CategoryAnalytics,
	CategoryMarketing,
	CategoryPersonalization,
	CategoryDataTransfer,
}

// Action classifies an audit entry. It is always derived server-side.
type Action string

const (
	ActionGranted   Action = "granted"
	ActionUpdated   Action = "updated"
	ActionWithdrawn Action = "withdrawn"
)

func (a Action) String() string { return string(a) }

// Owner identifies whose consent is recorded: an authenticated user, or an
// anonymous session when no user is known.
type Owner struct {
	UserID    string
	SessionID string
}

// IsZero reports whether the owner carries no identity at all.
func (o Owner) IsZero() bool {
	return o.UserID == "" && o.SessionID == ""
}

// Key returns the owner's storage identity. A user id takes precedence over
// the session id.
func (o Owner) Key() string {
	if o.UserID != "" {
		return "user:" + o.UserID
	}
	return "session:" + o.SessionID
}

// ConsentRecord is one consent decision as submitted plus captured context.
type ConsentRecord struct {
	Consents map[string]bool `json:"consents"`
	// Timestamp is the client-reported decision time in unix milliseconds.
	Timestamp           int64  `json:"timestamp"`
	Version             string `json:"version"`
	IP                  string `json:"ip,omitempty"`
	UserAgent           string `json:"userAgent,omitempty"`
	WithdrawalMechanism bool   `json:"withdrawalMechanism,omitempty"`
}

// Clone returns a copy that shares no map with r.
func (r ConsentRecord) Clone() ConsentRecord {
	out := r
	out.Consents = maps.Clone(r.Consents)
	return out
}

// IsOptional reports whether a category key counts towards optional consent.
func IsOptional(category string) bool {
	return category != string(CategoryEssential) && category != string(CategoryNone)
}

// GrantsOptional reports whether at least one optional category is true.
func (r ConsentRecord) GrantsOptional() bool {
	for category, granted := range r.Consents {
		if granted && IsOptional(category) {
			return true
		}
	}
	return false
}

// Withdraws reports whether the record amounts to a withdrawal: the explicit
// none switch, no optional category granted, or an explicit withdrawal.
func (r ConsentRecord) Withdraws() bool {
	return r.WithdrawalMechanism || r.Consents[string(CategoryNone)] || !r.GrantsOptional()
}

// WithdrawalRecord builds the record stored when an owner withdraws: every
// known optional category false, essential kept.
func WithdrawalRecord(version string, timestamp int64, ip, userAgent string) ConsentRecord {
	consents := make(map[string]bool, len(KnownCategories)+1)
	for _, category := range KnownCategories {
		consents[string(category)] = category == CategoryEssential
	}
	consents[string(CategoryNone)] = true
	return ConsentRecord{
		Consents:            consents,
		Timestamp:           timestamp,
		Version:             version,
		IP:                  ip,
		UserAgent:           userAgent,
		WithdrawalMechanism: true,
	}
}

// Current is the stored current-state record for an owner.
type Current struct {
	Record    ConsentRecord `json:"record"`
	Action    Action        `json:"action"`
	AuditID   string        `json:"auditId"`
	UserID    string        `json:"userId,omitempty"`
	SessionID string        `json:"sessionId,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// AuditEntry is an immutable historical record of one consent decision.
type AuditEntry struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId,omitempty"`
	SessionID        string          `json:"sessionId,omitempty"`
	IP               string          `json:"ip,omitempty"`
	UserAgent        string          `json:"userAgent,omitempty"`
	ConsentRecord    ConsentRecord   `json:"consentRecord"`
	Action           Action          `json:"action"`
	PreviousConsents map[string]bool `json:"previousConsents,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// Owner returns the owner the entry was written for.
func (e AuditEntry) Owner() Owner {
	return Owner{UserID: e.UserID, SessionID: e.SessionID}
}

// BelongsTo reports whether the entry was written for owner. Entries of an
// authenticated user match on user id; anonymous entries match on session id.
func (e AuditEntry) BelongsTo(owner Owner) bool {
	if owner.UserID != "" {
		return e.UserID == owner.UserID
	}
	return e.UserID == "" && owner.SessionID != "" && e.SessionID == owner.SessionID
}
