package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/parallel-dialer/internal/domain"
	"github.com/acme/parallel-dialer/internal/repository"
)

// SettingsRepository implements repository.SettingsRepository using PostgreSQL.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository constructs the repository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get fetches the dialer settings for a campaign.
func (r *SettingsRepository) Get(ctx context.Context, campaignID uuid.UUID) (*domain.DialerSettings, error) {
	q := `SELECT amd_enabled, amd_behavior, voicemail_drop_url, call_recording_enabled,
		auto_pacing_enabled, pacing_algorithm, priority_dialing_enabled,
		max_attempts_per_lead, retry_interval_sec, retry_on_busy, retry_on_no_answer, retry_on_failed,
		dnc_list_enabled, time_zone_respect, calling_hours_start, calling_hours_end, calling_days
	FROM dialer_settings WHERE campaign_id = $1`

	row := r.db.QueryRowxContext(ctx, q, campaignID)
	var rec settingsRecord
	if err := row.StructScan(&rec); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("settings repo: get: %w", err)
	}

	settings, err := rec.toDomain()
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// Upsert writes the dialer settings for a campaign.
func (r *SettingsRepository) Upsert(ctx context.Context, campaignID uuid.UUID, settings domain.DialerSettings) error {
	days, err := json.Marshal(settings.AllowedCallingDays)
	if err != nil {
		return fmt.Errorf("settings repo: marshal days: %w", err)
	}

	q := `INSERT INTO dialer_settings (
		campaign_id, amd_enabled, amd_behavior, voicemail_drop_url, call_recording_enabled,
		auto_pacing_enabled, pacing_algorithm, priority_dialing_enabled,
		max_attempts_per_lead, retry_interval_sec, retry_on_busy, retry_on_no_answer, retry_on_failed,
		dnc_list_enabled, time_zone_respect, calling_hours_start, calling_hours_end, calling_days, updated_at
	) VALUES (
		:campaign_id, :amd_enabled, :amd_behavior, :voicemail_drop_url, :call_recording_enabled,
		:auto_pacing_enabled, :pacing_algorithm, :priority_dialing_enabled,
		:max_attempts_per_lead, :retry_interval_sec, :retry_on_busy, :retry_on_no_answer, :retry_on_failed,
		:dnc_list_enabled, :time_zone_respect, :calling_hours_start, :calling_hours_end, :calling_days, NOW()
	)
	ON CONFLICT (campaign_id) DO UPDATE SET
		amd_enabled = EXCLUDED.amd_enabled,
		amd_behavior = EXCLUDED.amd_behavior,
		voicemail_drop_url = EXCLUDED.voicemail_drop_url,
		call_recording_enabled = EXCLUDED.call_recording_enabled,
		auto_pacing_enabled = EXCLUDED.auto_pacing_enabled,
		pacing_algorithm = EXCLUDED.pacing_algorithm,
		priority_dialing_enabled = EXCLUDED.priority_dialing_enabled,
		max_attempts_per_lead = EXCLUDED.max_attempts_per_lead,
		retry_interval_sec = EXCLUDED.retry_interval_sec,
		retry_on_busy = EXCLUDED.retry_on_busy,
		retry_on_no_answer = EXCLUDED.retry_on_no_answer,
		retry_on_failed = EXCLUDED.retry_on_failed,
		dnc_list_enabled = EXCLUDED.dnc_list_enabled,
		time_zone_respect = EXCLUDED.time_zone_respect,
		calling_hours_start = EXCLUDED.calling_hours_start,
		calling_hours_end = EXCLUDED.calling_hours_end,
		calling_days = EXCLUDED.calling_days,
		updated_at = NOW()`

	params := map[string]any{
		"campaign_id":              campaignID,
		"amd_enabled":              settings.AMDEnabled,
		"amd_behavior":             string(settings.AMDBehavior),
		"voicemail_drop_url":       settings.VoicemailDropURL,
		"call_recording_enabled":   settings.CallRecordingEnabled,
		"auto_pacing_enabled":      settings.AutoPacingEnabled,
		"pacing_algorithm":         string(settings.PacingAlgorithm),
		"priority_dialing_enabled": settings.PriorityDialingEnabled,
		"max_attempts_per_lead":    settings.MaxAttemptsPerLead,
		"retry_interval_sec":       int64(settings.RetryInterval / time.Second),
		"retry_on_busy":            settings.RetryOnBusy,
		"retry_on_no_answer":       settings.RetryOnNoAnswer,
		"retry_on_failed":          settings.RetryOnFailed,
		"dnc_list_enabled":         settings.DNCListEnabled,
		"time_zone_respect":        settings.TimeZoneRespect,
		"calling_hours_start":      settings.AllowedCallingHours.Start,
		"calling_hours_end":        settings.AllowedCallingHours.End,
		"calling_days":             days,
	}

	if _, err := r.db.NamedExecContext(ctx, q, params); err != nil {
		return fmt.Errorf("settings repo: upsert: %w", err)
	}
	return nil
}

type settingsRecord struct {
	AMDEnabled             bool   `db:"amd_enabled"`
	AMDBehavior            string `db:"amd_behavior"`
	VoicemailDropURL       string `db:"voicemail_drop_url"`
	CallRecordingEnabled   bool   `db:"call_recording_enabled"`
	AutoPacingEnabled      bool   `db:"auto_pacing_enabled"`
	PacingAlgorithm        string `db:"pacing_algorithm"`
	PriorityDialingEnabled bool   `db:"priority_dialing_enabled"`
	MaxAttemptsPerLead     int    `db:"max_attempts_per_lead"`
	RetryIntervalSec       int64  `db:"retry_interval_sec"`
	RetryOnBusy            bool   `db:"retry_on_busy"`
	RetryOnNoAnswer        bool   `db:"retry_on_no_answer"`
	RetryOnFailed          bool   `db:"retry_on_failed"`
	DNCListEnabled         bool   `db:"dnc_list_enabled"`
	TimeZoneRespect        bool   `db:"time_zone_respect"`
	CallingHoursStart      int    `db:"calling_hours_start"`
	CallingHoursEnd        int    `db:"calling_hours_end"`
	CallingDays            []byte `db:"calling_days"`
}

func (r settingsRecord) toDomain() (domain.DialerSettings, error) {
	settings := domain.DialerSettings{
		AMDEnabled:             r.AMDEnabled,
		AMDBehavior:            domain.AMDBehavior(r.AMDBehavior),
		VoicemailDropURL:       r.VoicemailDropURL,
		CallRecordingEnabled:   r.CallRecordingEnabled,
		AutoPacingEnabled:      r.AutoPacingEnabled,
		PacingAlgorithm:        domain.PacingAlgorithm(r.PacingAlgorithm),
		PriorityDialingEnabled: r.PriorityDialingEnabled,
		MaxAttemptsPerLead:     r.MaxAttemptsPerLead,
		RetryInterval:          time.Duration(r.RetryIntervalSec) * time.Second,
		RetryOnBusy:            r.RetryOnBusy,
		RetryOnNoAnswer:        r.RetryOnNoAnswer,
		RetryOnFailed:          r.RetryOnFailed,
		DNCListEnabled:         r.DNCListEnabled,
		TimeZoneRespect:        r.TimeZoneRespect,
		AllowedCallingHours: domain.CallingHours{
			Start: r.CallingHoursStart,
			End:   r.CallingHoursEnd,
		},
	}

	if len(r.CallingDays) > 0 {
		if err := json.Unmarshal(r.CallingDays, &settings.AllowedCallingDays); err != nil {
			return settings, fmt.Errorf("settings repo: unmarshal days: %w", err)
		}
	}
	return settings, nil
}
