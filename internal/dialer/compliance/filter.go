package compliance

import (
	"context"
	"time"

	"github.com/acme/parallel-dialer/internal/domain"
)

// SkipReason explains why a queue entry may not be dialed right now.
type SkipReason string

const (
	SkipNone        SkipReason = ""
	SkipDoNotCall   SkipReason = "do_not_call"
	SkipDNCList     SkipReason = "dnc_list"
	SkipWeekday     SkipReason = "weekday_not_allowed"
	SkipOutsideHrs  SkipReason = "outside_calling_hours"
	SkipMaxAttempts SkipReason = "max_attempts_reached"
)

// DNCLookup checks a shared do-not-call registry. Lookup failures are treated
// as "not listed" so an unavailable registry does not stall the campaign; the
// per-contact flag still applies.
type DNCLookup interface {
	IsListed(ctx context.Context, phone string) (bool, error)
}

// Filter is a pure predicate deciding whether a contact may be dialed at a
// given instant under the tenant's dialer settings.
type Filter struct {
	settings domain.DialerSettings
	fallback *time.Location
	dnc      DNCLookup
	now      func() time.Time
}

// Option configures a Filter.
type Option func(*Filter)

// WithDNCLookup attaches a shared DNC registry.
func WithDNCLookup(dnc DNCLookup) Option {
	return func(f *Filter) { f.dnc = dnc }
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(f *Filter) { f.now = now }
}

// New builds a filter. campaignTZ is the fallback location when a contact has
// no usable timezone of its own.
func New(settings domain.DialerSettings, campaignTZ string, opts ...Option) *Filter {
	loc, err := time.LoadLocation(campaignTZ)
	if err != nil || campaignTZ == "" {
		loc = time.UTC
	}
	f := &Filter{settings: settings, fallback: loc, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Eligible reports whether the entry may be dialed now.
func (f *Filter) Eligible(ctx context.Context, entry *domain.QueueEntry) (bool, SkipReason) {
	if entry.DoNotCall {
		return false, SkipDoNotCall
	}
	if f.settings.DNCListEnabled && f.dnc != nil {
		if listed, err := f.dnc.IsListed(ctx, entry.Phone); err == nil && listed {
			return false, SkipDNCList
		}
	}
	if f.settings.MaxAttemptsPerLead > 0 && entry.AttemptCount >= f.settings.MaxAttemptsPerLead {
		return false, SkipMaxAttempts
	}

	local := f.now().In(f.location(entry))
	if !f.weekdayAllowed(local.Weekday()) {
		return false, SkipWeekday
	}
	if !f.withinHours(local) {
		return false, SkipOutsideHrs
	}
	return true, SkipNone
}

func (f *Filter) location(entry *domain.QueueEntry) *time.Location {
	if !f.settings.TimeZoneRespect || entry.TimeZone == "" {
		return f.fallback
	}
	loc, err := time.LoadLocation(entry.TimeZone)
	if err != nil {
		return f.fallback
	}
	return loc
}

func (f *Filter) weekdayAllowed(day time.Weekday) bool {
	if len(f.settings.AllowedCallingDays) == 0 {
		return true
	}
	for _, allowed := range f.settings.AllowedCallingDays {
		if allowed == day {
			return true
		}
	}
	return false
}

func (f *Filter) withinHours(local time.Time) bool {
	hours := f.settings.AllowedCallingHours
	if hours.Start == hours.End {
		return true
	}

	minuteOfDay := local.Hour()*60 + local.Minute()
	if hours.End <= hours.Start {
		// window spans midnight
		return minuteOfDay >= hours.Start || minuteOfDay < hours.End
	}
	return minuteOfDay >= hours.Start && minuteOfDay < hours.End
}
