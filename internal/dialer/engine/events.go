package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/acme/parallel-dialer/internal/dialer/line"
	"github.com/acme/parallel-dialer/internal/domain"
)

// EventKind classifies observer events published by the engine.
type EventKind string

const (
	EventCampaignStatus EventKind = "campaign-status"
	EventLineStatus     EventKind = "line-status"
	EventQueueDepth     EventKind = "queue-depth"
	EventCallBridged    EventKind = "call-bridged"
	EventAlert          EventKind = "alert"
)

// Event is one observable engine occurrence. The UI subscribes to these
// instead of polling; consumers that fall behind miss events rather than
// stalling the engine.
type Event struct {
	Kind       EventKind
	CampaignID uuid.UUID
	Status     domain.CampaignStatus
	LineID     int
	LineState  line.State
	QueueDepth int
	Detail     string
	OccurredAt time.Time
}

// Snapshot is the read-only view of a running campaign.
type Snapshot struct {
	CampaignID     uuid.UUID
	Status         domain.CampaignStatus
	Mode           domain.DialMode
	Lines          []line.View
	QueueDepth     int
	AgentCapacity  int
	AgentsInUse    int
	Dialed         int64
	Connected      int64
	Contacted      int64
	AgentRejects   int64
	Alerts         int64
	ConnectRate    float64
	BudgetConsumed int64
}
