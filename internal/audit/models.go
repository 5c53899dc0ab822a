package audit

import "time"

// EventCategory classifies audit events so sinks can route and retain them
// differently.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance, e.g. consent
	// changes and data-subject erasure.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers events relevant to abuse monitoring.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine activity.
	CategoryOperations EventCategory = "operations"
)

// Severity levels for SIEM routing.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type AuditEvent string

const (
	EventConsentGranted   AuditEvent = "consent_granted"
	EventConsentUpdated   AuditEvent = "consent_updated"
	EventConsentWithdrawn AuditEvent = "consent_withdrawn"
	EventConsentErased    AuditEvent = "consent_erased"

	EventFileUploaded         AuditEvent = "file_uploaded"
	EventFileDeleted          AuditEvent = "file_deleted"
	EventFileDeletionExecuted AuditEvent = "file_deletion_executed"

	EventAuthFailed AuditEvent = "auth_failed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventConsentGranted:   CategoryCompliance,
	EventConsentUpdated:   CategoryCompliance,
	EventConsentWithdrawn: CategoryCompliance,
	EventConsentErased:    CategoryCompliance,

	EventAuthFailed: CategorySecurity,

	EventFileUploaded:         CategoryOperations,
	EventFileDeleted:          CategoryOperations,
	EventFileDeletionExecuted: CategoryOperations,
}

// Category returns the category of the event. Unknown events default to
// CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from domain logic to capture key actions. It is
// transport-agnostic so sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	Action    string        `json:"action"`
	UserID    string        `json:"userId,omitempty"`
	SessionID string        `json:"sessionId,omitempty"`
	// Subject is the entity acted upon, e.g. a consent audit id or an object key.
	Subject    string   `json:"subject,omitempty"`
	Decision   string   `json:"decision,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Severity   Severity `json:"severity,omitempty"`

	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Browser   string `json:"browser,omitempty"`
	OS        string `json:"os,omitempty"`
	Bot       bool   `json:"bot,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Owner returns the identity the event is keyed by downstream.
func (e Event) Owner() string {
	if e.UserID != "" {
		return "user:" + e.UserID
	}
	if e.SessionID != "" {
		return "session:" + e.SessionID
	}
	return ""
}
