package domain

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatus enumerates lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// DialMode selects how the pacing controller feeds idle lines.
type DialMode string

const (
	DialModePredictive DialMode = "predictive"
	DialModePower      DialMode = "power"
	DialModePreview    DialMode = "preview"
	DialModeManual     DialMode = "manual"
)

// Campaign models an outbound dialing campaign definition.
type Campaign struct {
	ID                uuid.UUID
	Name              string
	Status            CampaignStatus
	Mode              DialMode
	TimeZone          string
	ParallelCallLimit int
	DailyCallLimit    int
	AssignedAgents    []uuid.UUID
	Tags              []string
	TotalLeads        int64
	ContactedLeads    int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
}

// RemainingLeads is derived from the lead counters.
func (c *Campaign) RemainingLeads() int64 {
	remaining := c.TotalLeads - c.ContactedLeads
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AgentCapacity is the number of agent slots the conflict resolver defends.
// A campaign with no explicit agent assignment behaves as a single-agent
// campaign.
func (c *Campaign) AgentCapacity() int {
	if len(c.AssignedAgents) == 0 {
		return 1
	}
	return len(c.AssignedAgents)
}

// CampaignStats aggregates campaign counters.
type CampaignStats struct {
	TotalLeads      int64
	ContactedLeads  int64
	DialsTotal      int64
	ConnectsTotal   int64
	FailedTotal     int64
	VoicemailsTotal int64
	RetriesTotal    int64
}

// SuccessRate is the connected fraction of dialed attempts.
func (s *CampaignStats) SuccessRate() float64 {
	if s.DialsTotal == 0 {
		return 0
	}
	return float64(s.ConnectsTotal) / float64(s.DialsTotal)
}
