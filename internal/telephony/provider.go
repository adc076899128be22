package telephony

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CallHandle is the provider's opaque identifier for a placed call.
type CallHandle string

// PlaceCallRequest carries everything the provider needs to originate a call.
type PlaceCallRequest struct {
	LineID     int
	CampaignID uuid.UUID
	ContactID  uuid.UUID
	ToNumber   string
	Record     bool
	AMDEnabled bool
}

// EventKind classifies inbound provider callbacks.
type EventKind string

const (
	EventRinging   EventKind = "ringing"
	EventAnswered  EventKind = "answered"
	EventAMDResult EventKind = "amd-result"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
)

// AMDKind is the provider's answering-machine-detection verdict.
type AMDKind string

const (
	AMDHuman   AMDKind = "human"
	AMDMachine AMDKind = "machine"
)

// Event is one inbound status callback. LineID and Handle together match the
// event back to exactly one line; events that match nothing are dropped.
type Event struct {
	Kind       EventKind
	LineID     int
	Handle     CallHandle
	AMD        AMDKind
	Duration   time.Duration
	FailCode   string
	OccurredAt time.Time
}

// Provider abstracts the telephony collaborator. All methods are asynchronous
// from the dialer's point of view: PlaceCall returns as soon as the provider
// accepts the instruction, and progress arrives on the event stream.
type Provider interface {
	PlaceCall(ctx context.Context, req PlaceCallRequest) (CallHandle, error)
	Hangup(ctx context.Context, handle CallHandle) error
	SendDigits(ctx context.Context, handle CallHandle, digits string) error
	PlayVoicemail(ctx context.Context, handle CallHandle, recordingURL string) error
	Events() <-chan Event
}
