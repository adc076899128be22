package pacing

import (
	"sync"
	"time"
)

// Stats keeps dial and connect counts over a sliding window so predictive
// mode can derive a trailing connect rate.
type Stats struct {
	mu       sync.Mutex
	window   time.Duration
	dials    []time.Time
	connects []time.Time
	now      func() time.Time
}

// NewStats creates a rolling window; window <= 0 defaults to five minutes.
func NewStats(window time.Duration) *Stats {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Stats{window: window, now: time.Now}
}

// RecordDial notes a placed attempt.
func (s *Stats) RecordDial() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials = append(s.dials, s.now())
	s.pruneLocked()
}

// RecordConnect notes a bridged call.
func (s *Stats) RecordConnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects = append(s.connects, s.now())
	s.pruneLocked()
}

// ConnectRate is connected/dialed over the trailing window. With no dials it
// returns 0 so predictive pacing starts from its floor.
func (s *Stats) ConnectRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	if len(s.dials) == 0 {
		return 0
	}
	return float64(len(s.connects)) / float64(len(s.dials))
}

// Counts returns the windowed dial and connect totals.
func (s *Stats) Counts() (dials, connects int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	return len(s.dials), len(s.connects)
}

func (s *Stats) pruneLocked() {
	cutoff := s.now().Add(-s.window)
	s.dials = pruneBefore(s.dials, cutoff)
	s.connects = pruneBefore(s.connects, cutoff)
}

func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && stamps[i].Before(cutoff) {
		i++
	}
	return stamps[i:]
}
