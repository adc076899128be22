package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/acme/parallel-dialer/internal/domain"
)

// OutcomeStore persists the append-only call attempt history in Scylla.
// Outcomes are written to two tables: a per-campaign timeline bucketed by day
// and a per-contact attempt history.
type OutcomeStore struct {
	session *gocql.Session
}

// NewOutcomeStore creates a new outcome store.
func NewOutcomeStore(session *gocql.Session) *OutcomeStore {
	return &OutcomeStore{session: session}
}

// Append writes one terminal attempt record.
func (s *OutcomeStore) Append(ctx context.Context, outcome domain.CallAttemptOutcome) error {
	bucket := bucketDate(outcome.Timestamp)
	durationMs := outcome.Duration.Milliseconds()

	if err := s.session.Query(`INSERT INTO outcomes_by_campaign (campaign_id, bucket, occurred_at, contact_id, line_id, phone, disposition, duration_ms, attempt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		outcome.CampaignID.String(), bucket, outcome.Timestamp, outcome.ContactID.String(),
		outcome.LineID, outcome.Phone, string(outcome.Disposition), durationMs, outcome.Attempt,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("outcome store: insert outcomes_by_campaign: %w", err)
	}

	if err := s.session.Query(`INSERT INTO outcomes_by_contact (campaign_id, contact_id, occurred_at, line_id, phone, disposition, duration_ms, attempt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		outcome.CampaignID.String(), outcome.ContactID.String(), outcome.Timestamp,
		outcome.LineID, outcome.Phone, string(outcome.Disposition), durationMs, outcome.Attempt,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("outcome store: insert outcomes_by_contact: %w", err)
	}

	return nil
}

// ListByCampaign lists attempt outcomes for a campaign with pagination.
func (s *OutcomeStore) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int, pagingState []byte) ([]domain.CallAttemptOutcome, []byte, error) {
	if limit <= 0 {
		limit = 100
	}

	query := s.session.Query(`SELECT occurred_at, contact_id, line_id, phone, disposition, duration_ms, attempt
		FROM outcomes_by_campaign WHERE campaign_id = ?`, campaignID.String()).WithContext(ctx)
	query = query.PageSize(limit)
	if len(pagingState) > 0 {
		query = query.PageState(pagingState)
	}

	iter := query.Iter()
	outcomes := make([]domain.CallAttemptOutcome, 0, limit)

	var (
		occurredAt  time.Time
		contactStr  string
		lineID      int
		phone       string
		disposition string
		durationMs  int64
		attempt     int
	)

	for iter.Scan(&occurredAt, &contactStr, &lineID, &phone, &disposition, &durationMs, &attempt) {
		contactID, err := uuid.Parse(contactStr)
		if err != nil {
			continue
		}
		outcomes = append(outcomes, domain.CallAttemptOutcome{
			CampaignID:  campaignID,
			ContactID:   contactID,
			LineID:      lineID,
			Phone:       phone,
			Disposition: domain.Disposition(disposition),
			Duration:    time.Duration(durationMs) * time.Millisecond,
			Attempt:     attempt,
			Timestamp:   occurredAt,
		})
	}

	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("outcome store: iter close: %w", err)
	}
	return outcomes, iter.PageState(), nil
}

// ListByContact lists the attempt history for one contact, newest first.
func (s *OutcomeStore) ListByContact(ctx context.Context, campaignID, contactID uuid.UUID, limit int) ([]domain.CallAttemptOutcome, error) {
	if limit <= 0 {
		limit = 50
	}

	iter := s.session.Query(`SELECT occurred_at, line_id, phone, disposition, duration_ms, attempt
		FROM outcomes_by_contact WHERE campaign_id = ? AND contact_id = ? ORDER BY occurred_at DESC LIMIT ?`,
		campaignID.String(), contactID.String(), limit,
	).WithContext(ctx).Iter()

	var outcomes []domain.CallAttemptOutcome
	var (
		occurredAt  time.Time
		lineID      int
		phone       string
		disposition string
		durationMs  int64
		attempt     int
	)

	for iter.Scan(&occurredAt, &lineID, &phone, &disposition, &durationMs, &attempt) {
		outcomes = append(outcomes, domain.CallAttemptOutcome{
			CampaignID:  campaignID,
			ContactID:   contactID,
			LineID:      lineID,
			Phone:       phone,
			Disposition: domain.Disposition(disposition),
			Duration:    time.Duration(durationMs) * time.Millisecond,
			Attempt:     attempt,
			Timestamp:   occurredAt,
		})
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("outcome store: iter close: %w", err)
	}
	return outcomes, nil
}

func bucketDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
