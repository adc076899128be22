package domain

import (
	"time"

	"github.com/google/uuid"
)

// Contact is the slice of the CRM contact the dialer needs.
type Contact struct {
	ID            uuid.UUID
	CampaignID    uuid.UUID
	Phone         string
	Priority      int
	TimeZone      string
	DoNotCall     bool
	AttemptCount  int
	LastAttemptAt *time.Time
	Finalized     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// QueueEntry projects the contact into the live dial queue.
func (c *Contact) QueueEntry() QueueEntry {
	return QueueEntry{
		ContactID:     c.ID,
		Phone:         c.Phone,
		Priority:      c.Priority,
		TimeZone:      c.TimeZone,
		DoNotCall:     c.DoNotCall,
		AttemptCount:  c.AttemptCount,
		LastAttemptAt: c.LastAttemptAt,
	}
}
