package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/parallel-dialer/internal/domain"
	"github.com/acme/parallel-dialer/internal/repository"
)

// CampaignRepository implements repository.CampaignRepository using PostgreSQL.
type CampaignRepository struct {
	db *sqlx.DB
}

// NewCampaignRepository constructs a new repository.
func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const campaignColumns = `id, name, status, mode, time_zone, parallel_call_limit, daily_call_limit,
	assigned_agents, tags, total_leads, contacted_leads, created_at, updated_at, started_at, completed_at`

// Create inserts a new campaign.
func (r *CampaignRepository) Create(ctx context.Context, campaign *domain.Campaign) error {
	q := `INSERT INTO campaigns (
		id, name, status, mode, time_zone, parallel_call_limit, daily_call_limit,
		assigned_agents, tags, total_leads, contacted_leads, created_at, updated_at, started_at, completed_at
	) VALUES (
		:id, :name, :status, :mode, :time_zone, :parallel_call_limit, :daily_call_limit,
		:assigned_agents, :tags, :total_leads, :contacted_leads, :created_at, :updated_at, :started_at, :completed_at
	)`

	params, err := campaignParams(campaign)
	if err != nil {
		return err
	}
	if _, err := r.db.NamedExecContext(ctx, q, params); err != nil {
		return fmt.Errorf("campaign repo: insert: %w", err)
	}
	return nil
}

// Get fetches a campaign by id.
func (r *CampaignRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	row := r.db.QueryRowxContext(ctx, q, id)
	var record campaignRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("campaign repo: get: %w", err)
	}

	campaign, err := record.toDomain()
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// Update updates campaign metadata.
func (r *CampaignRepository) Update(ctx context.Context, campaign *domain.Campaign) error {
	q := `UPDATE campaigns SET
		name = :name,
		status = :status,
		mode = :mode,
		time_zone = :time_zone,
		parallel_call_limit = :parallel_call_limit,
		daily_call_limit = :daily_call_limit,
		assigned_agents = :assigned_agents,
		tags = :tags,
		total_leads = :total_leads,
		contacted_leads = :contacted_leads,
		updated_at = NOW(),
		started_at = :started_at,
		completed_at = :completed_at
	 WHERE id = :id`

	params, err := campaignParams(campaign)
	if err != nil {
		return err
	}
	res, err := r.db.NamedExecContext(ctx, q, params)
	if err != nil {
		return fmt.Errorf("campaign repo: update: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("campaign repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateStatus updates campaign status.
func (r *CampaignRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE campaigns SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("campaign repo: update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("campaign repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// List returns campaigns with optional pagination.
func (r *CampaignRepository) List(ctx context.Context, afterID *uuid.UUID, limit int) ([]*domain.Campaign, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows *sqlx.Rows
	var err error
	if afterID != nil {
		rows, err = r.db.QueryxContext(ctx, `SELECT `+campaignColumns+`
			FROM campaigns WHERE id > $1 ORDER BY id ASC LIMIT $2`, *afterID, limit)
	} else {
		rows, err = r.db.QueryxContext(ctx, `SELECT `+campaignColumns+`
			FROM campaigns ORDER BY id ASC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("campaign repo: list: %w", err)
	}
	defer rows.Close()

	return scanCampaigns(rows)
}

// ListByStatus returns campaigns filtered by status.
func (r *CampaignRepository) ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]*domain.Campaign, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT `+campaignColumns+`
		FROM campaigns WHERE status = $1 ORDER BY updated_at ASC LIMIT $2`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("campaign repo: list by status: %w", err)
	}
	defer rows.Close()

	return scanCampaigns(rows)
}

func scanCampaigns(rows *sqlx.Rows) ([]*domain.Campaign, error) {
	var results []*domain.Campaign
	for rows.Next() {
		var record campaignRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("campaign repo: scan: %w", err)
		}
		campaign, err := record.toDomain()
		if err != nil {
			return nil, err
		}
		results = append(results, &campaign)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign repo: rows err: %w", err)
	}
	return results, nil
}

func campaignParams(campaign *domain.Campaign) (map[string]any, error) {
	agents, err := json.Marshal(campaign.AssignedAgents)
	if err != nil {
		return nil, fmt.Errorf("campaign repo: marshal agents: %w", err)
	}
	tags, err := json.Marshal(campaign.Tags)
	if err != nil {
		return nil, fmt.Errorf("campaign repo: marshal tags: %w", err)
	}

	return map[string]any{
		"id":                  campaign.ID,
		"name":                campaign.Name,
		"status":              campaign.Status,
		"mode":                campaign.Mode,
		"time_zone":           campaign.TimeZone,
		"parallel_call_limit": campaign.ParallelCallLimit,
		"daily_call_limit":    campaign.DailyCallLimit,
		"assigned_agents":     agents,
		"tags":                tags,
		"total_leads":         campaign.TotalLeads,
		"contacted_leads":     campaign.ContactedLeads,
		"created_at":          campaign.CreatedAt,
		"updated_at":          campaign.UpdatedAt,
		"started_at":          campaign.StartedAt,
		"completed_at":        campaign.CompletedAt,
	}, nil
}

type campaignRecord struct {
	ID                uuid.UUID    `db:"id"`
	Name              string       `db:"name"`
	Status            string       `db:"status"`
	Mode              string       `db:"mode"`
	TimeZone          string       `db:"time_zone"`
	ParallelCallLimit int          `db:"parallel_call_limit"`
	DailyCallLimit    int          `db:"daily_call_limit"`
	AssignedAgents    []byte       `db:"assigned_agents"`
	Tags              []byte       `db:"tags"`
	TotalLeads        int64        `db:"total_leads"`
	ContactedLeads    int64        `db:"contacted_leads"`
	CreatedAt         sql.NullTime `db:"created_at"`
	UpdatedAt         sql.NullTime `db:"updated_at"`
	StartedAt         sql.NullTime `db:"started_at"`
	CompletedAt       sql.NullTime `db:"completed_at"`
}

func (r campaignRecord) toDomain() (domain.Campaign, error) {
	campaign := domain.Campaign{
		ID:                r.ID,
		Name:              r.Name,
		Status:            domain.CampaignStatus(r.Status),
		Mode:              domain.DialMode(r.Mode),
		TimeZone:          r.TimeZone,
		ParallelCallLimit: r.ParallelCallLimit,
		DailyCallLimit:    r.DailyCallLimit,
		TotalLeads:        r.TotalLeads,
		ContactedLeads:    r.ContactedLeads,
	}

	if len(r.AssignedAgents) > 0 {
		if err := json.Unmarshal(r.AssignedAgents, &campaign.AssignedAgents); err != nil {
			return campaign, fmt.Errorf("campaign repo: unmarshal agents: %w", err)
		}
	}
	if len(r.Tags) > 0 {
		if err := json.Unmarshal(r.Tags, &campaign.Tags); err != nil {
			return campaign, fmt.Errorf("campaign repo: unmarshal tags: %w", err)
		}
	}

	if r.CreatedAt.Valid {
		campaign.CreatedAt = r.CreatedAt.Time
	}
	if r.UpdatedAt.Valid {
		campaign.UpdatedAt = r.UpdatedAt.Time
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Time
		campaign.StartedAt = &t
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		campaign.CompletedAt = &t
	}
	return campaign, nil
}
