package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/acme/parallel-dialer/internal/domain"
)

// OutcomeMessage publishes a terminal call attempt outcome for downstream
// CRM consumers (statistics, timelines, exports).
type OutcomeMessage struct {
	CampaignID  uuid.UUID          `json:"campaign_id"`
	ContactID   uuid.UUID          `json:"contact_id"`
	LineID      int                `json:"line_id"`
	Phone       string             `json:"phone"`
	Disposition domain.Disposition `json:"disposition"`
	DurationMs  int64              `json:"duration_ms"`
	Attempt     int                `json:"attempt"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// CampaignEventMessage mirrors engine lifecycle events onto the event topic.
type CampaignEventMessage struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	Kind       string    `json:"kind"`
	LineID     int       `json:"line_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CallbackTaskMessage asks the scheduling collaborator to arrange a callback
// for a contact whose answering machine picked up.
type CallbackTaskMessage struct {
	CampaignID  uuid.UUID `json:"campaign_id"`
	ContactID   uuid.UUID `json:"contact_id"`
	Phone       string    `json:"phone"`
	RequestedAt time.Time `json:"requested_at"`
}
