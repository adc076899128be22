package redial

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/parallel-dialer/internal/domain"
)

func settings() domain.DialerSettings {
	return domain.DialerSettings{
		MaxAttemptsPerLead: 3,
		RetryInterval:      5 * time.Minute,
		RetryOnBusy:        true,
		RetryOnNoAnswer:    true,
		RetryOnFailed:      false,
	}
}

func entry(attempts int) *domain.QueueEntry {
	return &domain.QueueEntry{ContactID: uuid.New(), Phone: "+15550001111", AttemptCount: attempts}
}

func TestDecisionTable(t *testing.T) {
	s := NewScheduler(settings(), 0)

	cases := []struct {
		name        string
		disposition domain.Disposition
		attempts    int
		wantRequeue bool
		wantCharge  bool
	}{
		{"busy gated on", domain.DispositionBusy, 0, true, true},
		{"no-answer gated on", domain.DispositionNoAnswer, 0, true, true},
		{"failed gated off", domain.DispositionFailed, 0, false, true},
		{"voicemail never retried", domain.DispositionVoicemail, 0, false, true},
		{"voicemail-left never retried", domain.DispositionVoicemailLeft, 0, false, true},
		{"connected done", domain.DispositionConnected, 0, false, true},
		{"agent_busy always retried", domain.DispositionAgentBusy, 0, true, false},
		{"agent_busy retried even at cap", domain.DispositionAgentBusy, 2, true, false},
		{"busy at attempt cap dropped", domain.DispositionBusy, 2, false, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := s.Decide(tc.disposition, entry(tc.attempts))
			if d.Requeue != tc.wantRequeue {
				t.Errorf("requeue = %v, want %v", d.Requeue, tc.wantRequeue)
			}
			if d.ChargeAttempt != tc.wantCharge {
				t.Errorf("charge = %v, want %v", d.ChargeAttempt, tc.wantCharge)
			}
		})
	}
}

func TestAgentBusyUsesShortDelay(t *testing.T) {
	s := NewScheduler(settings(), 15*time.Second)

	d := s.Decide(domain.DispositionAgentBusy, entry(0))
	if d.Delay != 15*time.Second {
		t.Fatalf("agent_busy delay = %s, want 15s", d.Delay)
	}

	busy := s.Decide(domain.DispositionBusy, entry(0))
	if busy.Delay != 5*time.Minute {
		t.Fatalf("busy delay = %s, want retry interval", busy.Delay)
	}
	if d.Delay >= busy.Delay {
		t.Fatal("agent_busy must requeue much sooner than policy retries")
	}
}

func TestRetryBoundRespected(t *testing.T) {
	s := NewScheduler(settings(), 0)

	// Attempt counts 0 and 1 may retry under a cap of 3; attempt 2 is the
	// final one.
	for attempts := 0; attempts < 2; attempts++ {
		if d := s.Decide(domain.DispositionBusy, entry(attempts)); !d.Requeue {
			t.Fatalf("attempt %d should retry under cap 3", attempts)
		}
	}
	if d := s.Decide(domain.DispositionBusy, entry(2)); d.Requeue {
		t.Fatal("attempt 2 (third dial) must not requeue under cap 3")
	}
}
