package pacing

import (
	"testing"
	"time"

	"github.com/acme/parallel-dialer/internal/domain"
)

func settings(alg domain.PacingAlgorithm) domain.DialerSettings {
	return domain.DialerSettings{AutoPacingEnabled: true, PacingAlgorithm: alg}
}

func TestManualAndPreviewNeverAutoAssign(t *testing.T) {
	c := NewController(settings(domain.PacingModerate), NewStats(time.Minute))

	for _, mode := range []domain.DialMode{domain.DialModeManual, domain.DialModePreview} {
		got := c.Assignments(TickInput{Mode: mode, IdleLines: 5, IdleAgents: 5, RemainingBudget: -1})
		if got != 0 {
			t.Errorf("mode %s assigned %d, want 0", mode, got)
		}
	}
}

func TestPowerModeFillsIdleLines(t *testing.T) {
	c := NewController(settings(domain.PacingModerate), NewStats(time.Minute))

	got := c.Assignments(TickInput{Mode: domain.DialModePower, IdleLines: 3, RemainingBudget: -1})
	if got != 3 {
		t.Fatalf("power mode assigned %d, want 3", got)
	}
}

func TestPowerModeRespectsDailyBudget(t *testing.T) {
	c := NewController(settings(domain.PacingModerate), NewStats(time.Minute))

	got := c.Assignments(TickInput{Mode: domain.DialModePower, IdleLines: 5, RemainingBudget: 2})
	if got != 2 {
		t.Fatalf("assigned %d, want budget-capped 2", got)
	}
}

func TestPredictiveNeverExceedsIdleLines(t *testing.T) {
	c := NewController(settings(domain.PacingAggressive), NewStats(time.Minute))

	got := c.Assignments(TickInput{
		Mode:            domain.DialModePredictive,
		IdleLines:       2,
		IdleAgents:      4,
		RemainingBudget: -1,
	})
	if got > 2 {
		t.Fatalf("assigned %d with only 2 idle lines", got)
	}
}

func TestPredictiveZeroWithoutAgents(t *testing.T) {
	c := NewController(settings(domain.PacingAggressive), NewStats(time.Minute))

	got := c.Assignments(TickInput{Mode: domain.DialModePredictive, IdleLines: 5, IdleAgents: 0, RemainingBudget: -1})
	if got != 0 {
		t.Fatalf("assigned %d with no idle agents, want 0", got)
	}
}

func TestPredictiveRatioRisesWithLowConnectRate(t *testing.T) {
	stats := NewStats(time.Minute)
	// 10 dials, 2 connects: 20% connect rate.
	for i := 0; i < 10; i++ {
		stats.RecordDial()
	}
	stats.RecordConnect()
	stats.RecordConnect()

	aggressive := NewController(settings(domain.PacingAggressive), stats)
	conservative := NewController(settings(domain.PacingConservative), stats)

	in := TickInput{Mode: domain.DialModePredictive, IdleLines: 10, IdleAgents: 2, RemainingBudget: -1}
	a := aggressive.Assignments(in)
	c := conservative.Assignments(in)
	if a <= c {
		t.Fatalf("aggressive (%d) should out-dial conservative (%d) at a low connect rate", a, c)
	}
	// 20% connect rate maps to ratio 5.0, clamped to the aggressive ceiling:
	// 2 agents * 3.0 = 6 target.
	if a != 6 {
		t.Fatalf("aggressive assigned %d, want 6", a)
	}
	// Conservative ceiling 1.4 -> floor(2*1.4)=2.
	if c != 2 {
		t.Fatalf("conservative assigned %d, want 2", c)
	}
}

func TestPredictiveCountsInFlightCalls(t *testing.T) {
	stats := NewStats(time.Minute)
	c := NewController(settings(domain.PacingConservative), stats)

	in := TickInput{
		Mode:            domain.DialModePredictive,
		IdleLines:       5,
		ActiveLines:     2,
		IdleAgents:      2,
		RemainingBudget: -1,
	}
	// Target concurrency floor(2*1.4)=2, already 2 in flight.
	if got := c.Assignments(in); got != 0 {
		t.Fatalf("assigned %d with target already in flight, want 0", got)
	}
}

func TestStatsWindowPrunes(t *testing.T) {
	stats := NewStats(time.Minute)
	base := time.Now()
	stats.now = func() time.Time { return base }

	stats.RecordDial()
	stats.RecordConnect()

	stats.now = func() time.Time { return base.Add(2 * time.Minute) }
	dials, connects := stats.Counts()
	if dials != 0 || connects != 0 {
		t.Fatalf("window should have pruned, got dials=%d connects=%d", dials, connects)
	}
	if rate := stats.ConnectRate(); rate != 0 {
		t.Fatalf("rate after prune = %f, want 0", rate)
	}
}
