package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/parallel-dialer/internal/domain"
	"github.com/acme/parallel-dialer/internal/repository"
)

// ContactRepository implements repository.ContactRepository using PostgreSQL.
type ContactRepository struct {
	db *sqlx.DB
}

// NewContactRepository constructs the repository.
func NewContactRepository(db *sqlx.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

const contactColumns = `id, campaign_id, phone, priority, time_zone, do_not_call,
	attempt_count, last_attempt_at, finalized, created_at, updated_at`

// BulkInsert inserts a batch of contacts, skipping duplicates.
func (r *ContactRepository) BulkInsert(ctx context.Context, campaignID uuid.UUID, contacts []domain.Contact) error {
	if len(contacts) == 0 {
		return nil
	}

	query := `INSERT INTO contacts (
		id, campaign_id, phone, priority, time_zone, do_not_call,
		attempt_count, last_attempt_at, finalized, created_at, updated_at
	) VALUES (:id, :campaign_id, :phone, :priority, :time_zone, :do_not_call,
		:attempt_count, :last_attempt_at, :finalized, :created_at, :updated_at)
	ON CONFLICT (id) DO NOTHING`

	rows := make([]map[string]any, 0, len(contacts))
	for _, c := range contacts {
		rows = append(rows, map[string]any{
			"id":              c.ID,
			"campaign_id":     campaignID,
			"phone":           c.Phone,
			"priority":        c.Priority,
			"time_zone":       c.TimeZone,
			"do_not_call":     c.DoNotCall,
			"attempt_count":   c.AttemptCount,
			"last_attempt_at": c.LastAttemptAt,
			"finalized":       c.Finalized,
			"created_at":      c.CreatedAt,
			"updated_at":      c.CreatedAt,
		})
	}

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, rows); err != nil {
			return fmt.Errorf("contact repo: bulk insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE campaigns SET
			total_leads = (SELECT COUNT(*) FROM contacts WHERE campaign_id = $1),
			updated_at = NOW()
		WHERE id = $1`, campaignID); err != nil {
			return fmt.Errorf("contact repo: refresh lead count: %w", err)
		}
		return nil
	})
}

// Get fetches a single contact.
func (r *ContactRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Contact, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)

	var rec contactRecord
	if err := row.StructScan(&rec); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("contact repo: get: %w", err)
	}
	contact := rec.toDomain()
	return &contact, nil
}

// Dialable returns queue-seedable contacts ordered by priority then age.
func (r *ContactRepository) Dialable(ctx context.Context, campaignID uuid.UUID, maxAttempts, limit int) ([]domain.Contact, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `SELECT ` + contactColumns + `
		FROM contacts
		WHERE campaign_id = $1 AND NOT finalized AND NOT do_not_call`
	args := []any{campaignID}
	if maxAttempts > 0 {
		query += ` AND attempt_count < $2 ORDER BY priority DESC, created_at ASC LIMIT $3`
		args = append(args, maxAttempts, limit)
	} else {
		query += ` ORDER BY priority DESC, created_at ASC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("contact repo: dialable: %w", err)
	}
	defer rows.Close()

	return scanContacts(rows)
}

// RecordAttempt writes back the attempt counters after a terminal outcome.
func (r *ContactRepository) RecordAttempt(ctx context.Context, contactID uuid.UUID, attemptCount int, lastAttemptAt time.Time, finalized bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE contacts SET
		attempt_count = $1,
		last_attempt_at = $2,
		finalized = $3,
		updated_at = NOW()
	WHERE id = $4`, attemptCount, lastAttemptAt, finalized, contactID)
	if err != nil {
		return fmt.Errorf("contact repo: record attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("contact repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetDoNotCall flags or unflags a contact. Flagging also finalizes it.
func (r *ContactRepository) SetDoNotCall(ctx context.Context, contactID uuid.UUID, flag bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE contacts SET
		do_not_call = $1,
		finalized = finalized OR $1,
		updated_at = NOW()
	WHERE id = $2`, flag, contactID)
	if err != nil {
		return fmt.Errorf("contact repo: set dnc: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("contact repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MarkForCallback reopens a contact with a priority boost.
func (r *ContactRepository) MarkForCallback(ctx context.Context, contactID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE contacts SET
		finalized = FALSE,
		priority = priority + 1,
		updated_at = NOW()
	WHERE id = $1 AND NOT do_not_call`, contactID)
	if err != nil {
		return fmt.Errorf("contact repo: mark for callback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("contact repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListByCampaign lists contacts for a campaign.
func (r *ContactRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]domain.Contact, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT `+contactColumns+`
		FROM contacts WHERE campaign_id = $1 ORDER BY created_at ASC LIMIT $2`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("contact repo: list: %w", err)
	}
	defer rows.Close()

	return scanContacts(rows)
}

// CountByCampaign reports the total contact count for a campaign.
func (r *ContactRepository) CountByCampaign(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM contacts WHERE campaign_id = $1`, campaignID).Scan(&count); err != nil {
		return 0, fmt.Errorf("contact repo: count: %w", err)
	}
	return count, nil
}

func scanContacts(rows *sqlx.Rows) ([]domain.Contact, error) {
	var results []domain.Contact
	for rows.Next() {
		var rec contactRecord
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("contact repo: scan: %w", err)
		}
		results = append(results, rec.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contact repo: rows err: %w", err)
	}
	return results, nil
}

type contactRecord struct {
	ID            uuid.UUID    `db:"id"`
	CampaignID    uuid.UUID    `db:"campaign_id"`
	Phone         string       `db:"phone"`
	Priority      int          `db:"priority"`
	TimeZone      string       `db:"time_zone"`
	DoNotCall     bool         `db:"do_not_call"`
	AttemptCount  int          `db:"attempt_count"`
	LastAttemptAt sql.NullTime `db:"last_attempt_at"`
	Finalized     bool         `db:"finalized"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

func (r contactRecord) toDomain() domain.Contact {
	contact := domain.Contact{
		ID:           r.ID,
		CampaignID:   r.CampaignID,
		Phone:        r.Phone,
		Priority:     r.Priority,
		TimeZone:     r.TimeZone,
		DoNotCall:    r.DoNotCall,
		AttemptCount: r.AttemptCount,
		Finalized:    r.Finalized,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.LastAttemptAt.Valid {
		t := r.LastAttemptAt.Time
		contact.LastAttemptAt = &t
	}
	return contact
}
