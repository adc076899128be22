package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/acme/parallel-dialer/internal/domain"
	apperrors "github.com/acme/parallel-dialer/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// CampaignRepository manages campaign metadata persistence.
type CampaignRepository interface {
	Create(ctx context.Context, campaign *domain.Campaign) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	Update(ctx context.Context, campaign *domain.Campaign) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CampaignStatus) error
	List(ctx context.Context, afterID *uuid.UUID, limit int) ([]*domain.Campaign, error)
	ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]*domain.Campaign, error)
}

// ContactRepository stores campaign contacts and their attempt history.
type ContactRepository interface {
	BulkInsert(ctx context.Context, campaignID uuid.UUID, contacts []domain.Contact) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Contact, error)
	// Dialable returns contacts eligible for queue seeding: not finalized,
	// not flagged do-not-call and under the attempt cap (maxAttempts <= 0
	// means unbounded).
	Dialable(ctx context.Context, campaignID uuid.UUID, maxAttempts, limit int) ([]domain.Contact, error)
	RecordAttempt(ctx context.Context, contactID uuid.UUID, attemptCount int, lastAttemptAt time.Time, finalized bool) error
	SetDoNotCall(ctx context.Context, contactID uuid.UUID, flag bool) error
	// MarkForCallback reopens a finalized contact with a priority boost so
	// the next campaign start dials it early.
	MarkForCallback(ctx context.Context, contactID uuid.UUID) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]domain.Contact, error)
	CountByCampaign(ctx context.Context, campaignID uuid.UUID) (int64, error)
}

// SettingsRepository persists per-campaign dialer settings.
type SettingsRepository interface {
	Get(ctx context.Context, campaignID uuid.UUID) (*domain.DialerSettings, error)
	Upsert(ctx context.Context, campaignID uuid.UUID, settings domain.DialerSettings) error
}

// StatsRepository keeps aggregate campaign counters.
type StatsRepository interface {
	Ensure(ctx context.Context, campaignID uuid.UUID) error
	Get(ctx context.Context, campaignID uuid.UUID) (*domain.CampaignStats, error)
	ApplyDelta(ctx context.Context, campaignID uuid.UUID, delta StatsDelta) error
}

// OutcomeStore persists the append-only call attempt history.
type OutcomeStore interface {
	Append(ctx context.Context, outcome domain.CallAttemptOutcome) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int, pagingState []byte) ([]domain.CallAttemptOutcome, []byte, error)
	ListByContact(ctx context.Context, campaignID, contactID uuid.UUID, limit int) ([]domain.CallAttemptOutcome, error)
}

// StatsDelta captures atomic counter increments applied per attempt.
type StatsDelta struct {
	DialsDelta      int64
	ConnectsDelta   int64
	FailedDelta     int64
	VoicemailsDelta int64
	RetriesDelta    int64
	ContactedDelta  int64
}
