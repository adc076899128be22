package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/parallel-dialer/internal/domain"
	"github.com/acme/parallel-dialer/internal/repository"
)

// StatsRepository implements repository.StatsRepository using PostgreSQL.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository builds the repository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Ensure ensures a counter row exists for the campaign.
func (r *StatsRepository) Ensure(ctx context.Context, campaignID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO campaign_statistics (campaign_id)
		VALUES ($1) ON CONFLICT (campaign_id) DO NOTHING`, campaignID)
	if err != nil {
		return fmt.Errorf("campaign stats: ensure: %w", err)
	}
	return nil
}

// Get retrieves statistics, joined with the campaign's lead counters.
func (r *StatsRepository) Get(ctx context.Context, campaignID uuid.UUID) (*domain.CampaignStats, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT
		c.total_leads AS "totalleads",
		c.contacted_leads AS "contactedleads",
		s.dials_total AS "dialstotal",
		s.connects_total AS "connectstotal",
		s.failed_total AS "failedtotal",
		s.voicemails_total AS "voicemailstotal",
		s.retries_total AS "retriestotal"
	FROM campaign_statistics s
	JOIN campaigns c ON c.id = s.campaign_id
	WHERE s.campaign_id = $1`, campaignID)

	var stats domain.CampaignStats
	if err := row.StructScan(&stats); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("campaign stats: get: %w", err)
	}
	return &stats, nil
}

// ApplyDelta applies counter deltas atomically. The contacted delta also
// advances the campaign's contacted_leads counter.
func (r *StatsRepository) ApplyDelta(ctx context.Context, campaignID uuid.UUID, delta repository.StatsDelta) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE campaign_statistics SET
			dials_total = dials_total + $2,
			connects_total = connects_total + $3,
			failed_total = failed_total + $4,
			voicemails_total = voicemails_total + $5,
			retries_total = retries_total + $6,
			updated_at = NOW()
		WHERE campaign_id = $1`,
			campaignID,
			delta.DialsDelta,
			delta.ConnectsDelta,
			delta.FailedDelta,
			delta.VoicemailsDelta,
			delta.RetriesDelta,
		); err != nil {
			return fmt.Errorf("campaign stats: apply delta: %w", err)
		}

		if delta.ContactedDelta != 0 {
			if _, err := tx.ExecContext(ctx, `UPDATE campaigns SET
				contacted_leads = contacted_leads + $2,
				updated_at = NOW()
			WHERE id = $1`, campaignID, delta.ContactedDelta); err != nil {
				return fmt.Errorf("campaign stats: advance contacted: %w", err)
			}
		}
		return nil
	})
}
