package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entry matches the audit_logs table schema: one row per recorded
// generation event.
type Entry struct {
	ID          uuid.UUID       `json:"id"`
	OwnerUserID uuid.UUID       `json:"owner_user_id"`
	EventType   string          `json:"event_type"`
	Severity    string          `json:"severity"`
	Model       string          `json:"model,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ListParams holds pagination and filtering parameters for audit queries.
type ListParams struct {
	EventType string
	Severity  string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// DefaultListParams returns sensible defaults.
func DefaultListParams() ListParams {
	return ListParams{
		Page:     1,
		PageSize: 20,
	}
}
