package redial

import (
	"time"

	"github.com/acme/parallel-dialer/internal/domain"
)

// defaultAgentBusyDelay holds a contact briefly after an agent_busy
// rejection: the contact answered, so they come back quickly.
const defaultAgentBusyDelay = 30 * time.Second

// Decision says whether and when a contact re-enters the queue.
type Decision struct {
	Requeue bool
	Delay   time.Duration
	// ChargeAttempt is false for outcomes that do not count against
	// maxAttemptsPerLead (agent_busy: the contact did answer).
	ChargeAttempt bool
}

// Scheduler decides retry policy from a terminal disposition and the tenant
// settings.
type Scheduler struct {
	settings       domain.DialerSettings
	agentBusyDelay time.Duration
}

// NewScheduler builds the retry scheduler. agentBusyDelay <= 0 uses the
// default short hold.
func NewScheduler(settings domain.DialerSettings, agentBusyDelay time.Duration) *Scheduler {
	if agentBusyDelay <= 0 {
		agentBusyDelay = defaultAgentBusyDelay
	}
	return &Scheduler{settings: settings, agentBusyDelay: agentBusyDelay}
}

// Decide applies the retry decision table. The entry's attemptCount must not
// have been incremented yet; Decide reports whether this outcome charges an
// attempt and the caller increments accordingly.
func (s *Scheduler) Decide(disposition domain.Disposition, entry *domain.QueueEntry) Decision {
	switch disposition {
	case domain.DispositionAgentBusy:
		// Always retried, never charged.
		return Decision{Requeue: true, Delay: s.agentBusyDelay, ChargeAttempt: false}

	case domain.DispositionBusy:
		return s.gated(s.settings.RetryOnBusy, entry)
	case domain.DispositionNoAnswer:
		return s.gated(s.settings.RetryOnNoAnswer, entry)
	case domain.DispositionFailed:
		return s.gated(s.settings.RetryOnFailed, entry)

	case domain.DispositionConnected, domain.DispositionVoicemail, domain.DispositionVoicemailLeft:
		return Decision{Requeue: false, ChargeAttempt: true}

	default:
		return Decision{Requeue: false, ChargeAttempt: true}
	}
}

func (s *Scheduler) gated(gate bool, entry *domain.QueueEntry) Decision {
	d := Decision{ChargeAttempt: true}
	if !gate {
		return d
	}
	// The attempt about to be charged counts toward the cap.
	if s.settings.MaxAttemptsPerLead > 0 && entry.AttemptCount+1 >= s.settings.MaxAttemptsPerLead {
		return d
	}
	d.Requeue = true
	d.Delay = s.settings.RetryInterval
	if d.Delay <= 0 {
		d.Delay = time.Minute
	}
	return d
}
