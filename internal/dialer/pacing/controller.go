package pacing

import (
	"math"

	"github.com/acme/parallel-dialer/internal/domain"
)

// ratio ceilings per pacing algorithm; predictive mode never dials below a
// 1:1 agent ratio nor above the selected ceiling.
const (
	ratioFloor        = 1.0
	ceilingAggressive = 3.0
	ceilingModerate   = 2.0
	ceilingConserv    = 1.4
)

// TickInput is the live picture the controller decides from.
type TickInput struct {
	Mode            domain.DialMode
	IdleLines       int
	ActiveLines     int
	IdleAgents      int
	RemainingBudget int // daily-call-limit headroom; negative means unlimited
}

// Controller decides, per scheduling tick, how many idle lines get new work.
type Controller struct {
	settings domain.DialerSettings
	stats    *Stats
}

// NewController builds a pacing controller over the shared stats window.
func NewController(settings domain.DialerSettings, stats *Stats) *Controller {
	return &Controller{settings: settings, stats: stats}
}

// Stats exposes the rolling window for the engine to record into.
func (c *Controller) Stats() *Stats { return c.stats }

// Assignments returns how many new contacts to hand to idle lines this tick.
func (c *Controller) Assignments(in TickInput) int {
	var target int

	switch in.Mode {
	case domain.DialModeManual, domain.DialModePreview:
		// Agent-triggered only, never from the loop.
		return 0
	case domain.DialModePower:
		target = in.IdleLines
	case domain.DialModePredictive:
		target = c.predictiveTarget(in)
	default:
		return 0
	}

	if target > in.IdleLines {
		target = in.IdleLines
	}
	if in.RemainingBudget >= 0 && target > in.RemainingBudget {
		target = in.RemainingBudget
	}
	if target < 0 {
		target = 0
	}
	return target
}

func (c *Controller) predictiveTarget(in TickInput) int {
	if in.IdleAgents <= 0 {
		return 0
	}

	ratio := c.pacingRatio()
	desired := int(math.Floor(float64(in.IdleAgents) * ratio))
	if desired < in.IdleAgents {
		desired = in.IdleAgents
	}

	// Dial up to the desired concurrency, counting what is already in flight.
	target := desired - in.ActiveLines
	if target < 0 {
		return 0
	}
	return target
}

// pacingRatio maps the trailing connect rate into [floor, ceiling]: the lower
// the connect rate, the more over-dialing the algorithm allows.
func (c *Controller) pacingRatio() float64 {
	ceiling := ceilingModerate
	switch c.settings.PacingAlgorithm {
	case domain.PacingAggressive:
		ceiling = ceilingAggressive
	case domain.PacingConservative:
		ceiling = ceilingConserv
	}
	if !c.settings.AutoPacingEnabled {
		return ceiling
	}

	rate := c.stats.ConnectRate()
	if rate <= 0 {
		return ceiling
	}
	ratio := ratioFloor / rate
	if ratio > ceiling {
		ratio = ceiling
	}
	if ratio < ratioFloor {
		ratio = ratioFloor
	}
	return ratio
}
