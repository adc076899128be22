package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/acme/parallel-dialer/internal/domain"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func baseSettings() domain.DialerSettings {
	return domain.DialerSettings{
		MaxAttemptsPerLead:  3,
		TimeZoneRespect:     true,
		AllowedCallingHours: domain.CallingHours{Start: 9 * 60, End: 17 * 60},
		AllowedCallingDays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}
}

func TestEligibleWithinWindow(t *testing.T) {
	// Monday 10:00 UTC
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	f := New(baseSettings(), "UTC", WithClock(fixedClock(now)))

	entry := &domain.QueueEntry{Phone: "+15550001111", TimeZone: "UTC"}
	ok, reason := f.Eligible(context.Background(), entry)
	if !ok {
		t.Fatalf("expected eligible, got skip reason %q", reason)
	}
}

func TestOutsideCallingHours(t *testing.T) {
	now := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	f := New(baseSettings(), "UTC", WithClock(fixedClock(now)))

	entry := &domain.QueueEntry{Phone: "+15550001111", TimeZone: "UTC"}
	ok, reason := f.Eligible(context.Background(), entry)
	if ok || reason != SkipOutsideHrs {
		t.Fatalf("expected outside-hours skip, got ok=%v reason=%q", ok, reason)
	}
}

func TestWeekdayNotAllowed(t *testing.T) {
	// Saturday
	now := time.Date(2024, 1, 6, 10, 0, 0, 0, time.UTC)
	f := New(baseSettings(), "UTC", WithClock(fixedClock(now)))

	entry := &domain.QueueEntry{Phone: "+15550001111", TimeZone: "UTC"}
	ok, reason := f.Eligible(context.Background(), entry)
	if ok || reason != SkipWeekday {
		t.Fatalf("expected weekday skip, got ok=%v reason=%q", ok, reason)
	}
}

func TestContactTimezoneRespected(t *testing.T) {
	// 18:00 UTC is 10:00 in Los Angeles; the contact is dialable even though
	// the campaign's fallback zone is outside hours.
	now := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	f := New(baseSettings(), "UTC", WithClock(fixedClock(now)))

	entry := &domain.QueueEntry{Phone: "+15550001111", TimeZone: "America/Los_Angeles"}
	ok, reason := f.Eligible(context.Background(), entry)
	if !ok {
		t.Fatalf("expected eligible in contact zone, got skip %q", reason)
	}
}

func TestTimezoneIgnoredWhenDisabled(t *testing.T) {
	settings := baseSettings()
	settings.TimeZoneRespect = false

	now := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	f := New(settings, "UTC", WithClock(fixedClock(now)))

	entry := &domain.QueueEntry{Phone: "+15550001111", TimeZone: "America/Los_Angeles"}
	ok, _ := f.Eligible(context.Background(), entry)
	if ok {
		t.Fatal("expected fallback-zone evaluation to reject 18:00 UTC")
	}
}

func TestMidnightSpanningWindow(t *testing.T) {
	settings := baseSettings()
	settings.AllowedCallingHours = domain.CallingHours{Start: 22 * 60, End: 2 * 60}
	settings.AllowedCallingDays = nil

	cases := []struct {
		hour int
		want bool
	}{
		{23, true},
		{1, true},
		{3, false},
		{12, false},
	}
	for _, tc := range cases {
		now := time.Date(2024, 1, 1, tc.hour, 0, 0, 0, time.UTC)
		f := New(settings, "UTC", WithClock(fixedClock(now)))
		ok, _ := f.Eligible(context.Background(), &domain.QueueEntry{Phone: "+15550001111"})
		if ok != tc.want {
			t.Errorf("hour %d: eligible=%v, want %v", tc.hour, ok, tc.want)
		}
	}
}

func TestDoNotCallFlag(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	f := New(baseSettings(), "UTC", WithClock(fixedClock(now)))

	entry := &domain.QueueEntry{Phone: "+15550001111", DoNotCall: true}
	ok, reason := f.Eligible(context.Background(), entry)
	if ok || reason != SkipDoNotCall {
		t.Fatalf("expected DNC skip, got ok=%v reason=%q", ok, reason)
	}
}

type staticDNC struct{ listed bool }

func (s staticDNC) IsListed(ctx context.Context, phone string) (bool, error) {
	return s.listed, nil
}

func TestSharedDNCList(t *testing.T) {
	settings := baseSettings()
	settings.DNCListEnabled = true

	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	f := New(settings, "UTC", WithClock(fixedClock(now)), WithDNCLookup(staticDNC{listed: true}))

	ok, reason := f.Eligible(context.Background(), &domain.QueueEntry{Phone: "+15550001111"})
	if ok || reason != SkipDNCList {
		t.Fatalf("expected shared DNC skip, got ok=%v reason=%q", ok, reason)
	}
}

func TestMaxAttemptsReached(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	f := New(baseSettings(), "UTC", WithClock(fixedClock(now)))

	entry := &domain.QueueEntry{Phone: "+15550001111", AttemptCount: 3}
	ok, reason := f.Eligible(context.Background(), entry)
	if ok || reason != SkipMaxAttempts {
		t.Fatalf("expected max-attempts skip, got ok=%v reason=%q", ok, reason)
	}
}
