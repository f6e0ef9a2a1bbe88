package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// StreamEvents holds governance events awaiting persistence.
const StreamEvents = "PROMPTFORGE_EVENTS"

// SubjectAuditEvent carries generation and quota events for the audit trail.
const SubjectAuditEvent = "promptforge.events.audit"

// Audit event types.
const (
	EventPromptGenerated    = "prompt_generated"
	EventQuestionsGenerated = "questions_generated"
	EventQuotaRejected      = "quota_rejected"
)

// AuditEvent is published on every generation attempt worth recording.
type AuditEvent struct {
	OwnerUserID uuid.UUID `json:"owner_user_id"`
	EventType   string    `json:"event_type"`
	Severity    string    `json:"severity"`
	Model       string    `json:"model"`
	Details     string    `json:"details,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
