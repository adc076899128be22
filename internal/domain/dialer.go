package domain

import (
	"time"

	"github.com/google/uuid"
)

// PacingAlgorithm tunes how aggressively predictive mode over-dials.
type PacingAlgorithm string

const (
	PacingAggressive   PacingAlgorithm = "aggressive"
	PacingModerate     PacingAlgorithm = "moderate"
	PacingConservative PacingAlgorithm = "conservative"
)

// AMDBehavior selects what happens when a machine answers.
type AMDBehavior string

const (
	AMDLeaveVoicemail AMDBehavior = "leave-voicemail"
	AMDDisconnect     AMDBehavior = "disconnect"
	AMDMarkCallback   AMDBehavior = "mark-callback"
)

// CallingHours is a daily window expressed as minutes from midnight in the
// contact's local time. End <= Start means the window spans midnight.
type CallingHours struct {
	Start int
	End   int
}

// DialerSettings is the per-tenant dialer configuration. It is read-only to
// the engine and treated as immutable during a pacing tick.
type DialerSettings struct {
	AMDEnabled             bool
	AMDBehavior            AMDBehavior
	VoicemailDropURL       string
	CallRecordingEnabled   bool
	AutoPacingEnabled      bool
	PacingAlgorithm        PacingAlgorithm
	PriorityDialingEnabled bool
	MaxAttemptsPerLead     int
	RetryInterval          time.Duration
	RetryOnBusy            bool
	RetryOnNoAnswer        bool
	RetryOnFailed          bool
	DNCListEnabled         bool
	TimeZoneRespect        bool
	AllowedCallingHours    CallingHours
	AllowedCallingDays     []time.Weekday
}

// Disposition is the terminal classification of a call attempt.
type Disposition string

const (
	DispositionConnected     Disposition = "connected"
	DispositionBusy          Disposition = "busy"
	DispositionNoAnswer      Disposition = "no-answer"
	DispositionFailed        Disposition = "failed"
	DispositionVoicemail     Disposition = "voicemail"
	DispositionVoicemailLeft Disposition = "voicemail-left"
	DispositionAgentBusy     Disposition = "agent_busy"
)

// QueueEntry is a contact waiting to be dialed. A contact appears in the live
// queue at most once; an entry leaves the queue when a line claims it and
// returns only through the retry scheduler.
type QueueEntry struct {
	ContactID      uuid.UUID
	Phone          string
	Priority       int
	TimeZone       string
	DoNotCall      bool
	AttemptCount   int
	LastAttemptAt  *time.Time
	NextEligibleAt *time.Time
}

// Due reports whether the entry's retry hold has elapsed.
func (e *QueueEntry) Due(now time.Time) bool {
	return e.NextEligibleAt == nil || !e.NextEligibleAt.After(now)
}

// CallAttemptOutcome is the immutable terminal record of one attempt.
type CallAttemptOutcome struct {
	CampaignID  uuid.UUID
	ContactID   uuid.UUID
	LineID      int
	Phone       string
	Disposition Disposition
	Duration    time.Duration
	Attempt     int
	Timestamp   time.Time
}
