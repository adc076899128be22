package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/acme/parallel-dialer/internal/dialer/line"
	"github.com/acme/parallel-dialer/internal/domain"
	"github.com/acme/parallel-dialer/internal/repository"
	apperrors "github.com/acme/parallel-dialer/pkg/errors"
)

// minutesPerDay bounds the calling-hours window fields.
const minutesPerDay = 24 * 60

// Service orchestrates campaign CRUD, contact loading and settings.
type Service struct {
	campaigns       repository.CampaignRepository
	contacts        repository.ContactRepository
	settings        repository.SettingsRepository
	stats           repository.StatsRepository
	defaultParallel int
}

// NewService constructs a campaign service.
func NewService(
	campaigns repository.CampaignRepository,
	contacts repository.ContactRepository,
	settings repository.SettingsRepository,
	stats repository.StatsRepository,
	defaultParallel int,
) *Service {
	if defaultParallel < 1 || defaultParallel > line.MaxPoolSize {
		defaultParallel = 3
	}
	return &Service{
		campaigns:       campaigns,
		contacts:        contacts,
		settings:        settings,
		stats:           stats,
		defaultParallel: defaultParallel,
	}
}

// CreateCampaignInput captures campaign creation parameters.
type CreateCampaignInput struct {
	Name              string
	Mode              domain.DialMode
	TimeZone          string
	ParallelCallLimit int
	DailyCallLimit    int
	AssignedAgents    []uuid.UUID
	Tags              []string
	Settings          *domain.DialerSettings
	Contacts          []ContactInput
}

// ContactInput expresses one contact to load into a campaign.
type ContactInput struct {
	Phone     string
	Priority  int
	TimeZone  string
	DoNotCall bool
}

// UpdateCampaignInput captures updatable properties; nil fields are kept.
type UpdateCampaignInput struct {
	ID                uuid.UUID
	Name              *string
	Mode              *domain.DialMode
	ParallelCallLimit *int
	DailyCallLimit    *int
	AssignedAgents    *[]uuid.UUID
	Tags              *[]string
}

// Create provisions a new campaign with its settings and initial contacts.
func (s *Service) Create(ctx context.Context, input CreateCampaignInput) (*domain.Campaign, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	campaign := &domain.Campaign{
		ID:                uuid.New(),
		Name:              input.Name,
		Status:            domain.CampaignStatusScheduled,
		Mode:              input.Mode,
		TimeZone:          input.TimeZone,
		ParallelCallLimit: s.resolveParallelism(input.ParallelCallLimit),
		DailyCallLimit:    input.DailyCallLimit,
		AssignedAgents:    input.AssignedAgents,
		Tags:              input.Tags,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("campaign service: create campaign: %w", err)
	}

	settings := defaultSettings()
	if input.Settings != nil {
		settings = *input.Settings
	}
	if err := s.settings.Upsert(ctx, campaign.ID, settings); err != nil {
		return nil, fmt.Errorf("campaign service: store settings: %w", err)
	}

	if err := s.stats.Ensure(ctx, campaign.ID); err != nil {
		return nil, fmt.Errorf("campaign service: ensure stats: %w", err)
	}

	if len(input.Contacts) > 0 {
		if err := s.AddContacts(ctx, campaign.ID, input.Contacts); err != nil {
			return nil, err
		}
		campaign.TotalLeads = int64(len(input.Contacts))
	}

	return campaign, nil
}

// Get retrieves a campaign by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	return s.campaigns.Get(ctx, id)
}

// List returns campaigns.
func (s *Service) List(ctx context.Context, afterID *uuid.UUID, limit int) ([]*domain.Campaign, error) {
	return s.campaigns.List(ctx, afterID, limit)
}

// ListByStatus returns campaigns filtered by status.
func (s *Service) ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]*domain.Campaign, error) {
	return s.campaigns.ListByStatus(ctx, status, limit)
}

// Update modifies campaign metadata. Mode and limits of a running campaign
// take effect on the next start.
func (s *Service) Update(ctx context.Context, input UpdateCampaignInput) (*domain.Campaign, error) {
	campaign, err := s.campaigns.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		if *input.Name == "" {
			return nil, fmt.Errorf("%w: campaign name is required", apperrors.ErrValidation)
		}
		campaign.Name = *input.Name
	}
	if input.Mode != nil {
		if !validMode(*input.Mode) {
			return nil, fmt.Errorf("%w: unknown dial mode %q", apperrors.ErrValidation, *input.Mode)
		}
		campaign.Mode = *input.Mode
	}
	if input.ParallelCallLimit != nil {
		if *input.ParallelCallLimit < 1 || *input.ParallelCallLimit > line.MaxPoolSize {
			return nil, fmt.Errorf("%w: parallel call limit must be 1..%d", apperrors.ErrValidation, line.MaxPoolSize)
		}
		campaign.ParallelCallLimit = *input.ParallelCallLimit
	}
	if input.DailyCallLimit != nil {
		if *input.DailyCallLimit < 0 {
			return nil, fmt.Errorf("%w: daily call limit must not be negative", apperrors.ErrValidation)
		}
		campaign.DailyCallLimit = *input.DailyCallLimit
	}
	if input.AssignedAgents != nil {
		campaign.AssignedAgents = *input.AssignedAgents
	}
	if input.Tags != nil {
		campaign.Tags = *input.Tags
	}

	campaign.UpdatedAt = time.Now().UTC()
	if err := s.campaigns.Update(ctx, campaign); err != nil {
		return nil, err
	}
	return campaign, nil
}

// SetStatus persists a lifecycle transition.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status domain.CampaignStatus) error {
	campaign, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	campaign.Status = status
	switch status {
	case domain.CampaignStatusActive:
		if campaign.StartedAt == nil {
			campaign.StartedAt = &now
		}
	case domain.CampaignStatusCompleted:
		campaign.CompletedAt = &now
	}
	campaign.UpdatedAt = now
	return s.campaigns.Update(ctx, campaign)
}

// Settings retrieves the dialer settings for a campaign.
func (s *Service) Settings(ctx context.Context, campaignID uuid.UUID) (*domain.DialerSettings, error) {
	settings, err := s.settings.Get(ctx, campaignID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		def := defaultSettings()
		return &def, nil
	}
	return settings, err
}

// UpdateSettings validates and stores the dialer settings.
func (s *Service) UpdateSettings(ctx context.Context, campaignID uuid.UUID, settings domain.DialerSettings) error {
	if err := validateSettings(settings); err != nil {
		return err
	}
	if _, err := s.campaigns.Get(ctx, campaignID); err != nil {
		return err
	}
	return s.settings.Upsert(ctx, campaignID, settings)
}

// Stats retrieves aggregated statistics.
func (s *Service) Stats(ctx context.Context, id uuid.UUID) (*domain.CampaignStats, error) {
	return s.stats.Get(ctx, id)
}

// AddContacts appends contacts to a campaign.
func (s *Service) AddContacts(ctx context.Context, campaignID uuid.UUID, inputs []ContactInput) error {
	if len(inputs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	contacts := make([]domain.Contact, 0, len(inputs))
	for _, in := range inputs {
		if in.Phone == "" {
			return fmt.Errorf("%w: contact phone is required", apperrors.ErrValidation)
		}
		contacts = append(contacts, domain.Contact{
			ID:         uuid.New(),
			CampaignID: campaignID,
			Phone:      in.Phone,
			Priority:   in.Priority,
			TimeZone:   in.TimeZone,
			DoNotCall:  in.DoNotCall,
			CreatedAt:  now,
		})
	}

	if err := s.contacts.BulkInsert(ctx, campaignID, contacts); err != nil {
		return fmt.Errorf("campaign service: add contacts: %w", err)
	}
	return nil
}

// Contacts lists contacts for a campaign.
func (s *Service) Contacts(ctx context.Context, campaignID uuid.UUID, limit int) ([]domain.Contact, error) {
	return s.contacts.ListByCampaign(ctx, campaignID, limit)
}

// MarkDoNotCall flags a contact as DNC.
func (s *Service) MarkDoNotCall(ctx context.Context, contactID uuid.UUID) error {
	return s.contacts.SetDoNotCall(ctx, contactID, true)
}

func (s *Service) resolveParallelism(value int) int {
	if value <= 0 {
		return s.defaultParallel
	}
	return value
}

func defaultSettings() domain.DialerSettings {
	return domain.DialerSettings{
		AMDBehavior:            domain.AMDDisconnect,
		PacingAlgorithm:        domain.PacingModerate,
		MaxAttemptsPerLead:     3,
		RetryInterval:          15 * time.Minute,
		RetryOnBusy:            true,
		RetryOnNoAnswer:        true,
		TimeZoneRespect:        true,
		PriorityDialingEnabled: true,
	}
}

func validMode(mode domain.DialMode) bool {
	switch mode {
	case domain.DialModePredictive, domain.DialModePower, domain.DialModePreview, domain.DialModeManual:
		return true
	}
	return false
}

func validateCreateInput(input CreateCampaignInput) error {
	if input.Name == "" {
		return fmt.Errorf("%w: campaign name is required", apperrors.ErrValidation)
	}
	if !validMode(input.Mode) {
		return fmt.Errorf("%w: unknown dial mode %q", apperrors.ErrValidation, input.Mode)
	}
	if input.TimeZone == "" {
		return fmt.Errorf("%w: time zone is required", apperrors.ErrValidation)
	}
	if _, err := time.LoadLocation(input.TimeZone); err != nil {
		return fmt.Errorf("%w: invalid time zone %s: %v", apperrors.ErrValidation, input.TimeZone, err)
	}
	if input.ParallelCallLimit < 0 || input.ParallelCallLimit > line.MaxPoolSize {
		return fmt.Errorf("%w: parallel call limit must be 1..%d", apperrors.ErrValidation, line.MaxPoolSize)
	}
	if input.DailyCallLimit < 0 {
		return fmt.Errorf("%w: daily call limit must not be negative", apperrors.ErrValidation)
	}
	if input.Settings != nil {
		if err := validateSettings(*input.Settings); err != nil {
			return err
		}
	}
	return nil
}

func validateSettings(settings domain.DialerSettings) error {
	switch settings.AMDBehavior {
	case "", domain.AMDLeaveVoicemail, domain.AMDDisconnect, domain.AMDMarkCallback:
	default:
		return fmt.Errorf("%w: unknown amd behavior %q", apperrors.ErrValidation, settings.AMDBehavior)
	}
	switch settings.PacingAlgorithm {
	case "", domain.PacingAggressive, domain.PacingModerate, domain.PacingConservative:
	default:
		return fmt.Errorf("%w: unknown pacing algorithm %q", apperrors.ErrValidation, settings.PacingAlgorithm)
	}
	if settings.AMDBehavior == domain.AMDLeaveVoicemail && settings.VoicemailDropURL == "" {
		return fmt.Errorf("%w: leave-voicemail requires a voicemail drop url", apperrors.ErrValidation)
	}
	if settings.MaxAttemptsPerLead < 0 {
		return fmt.Errorf("%w: max attempts per lead must not be negative", apperrors.ErrValidation)
	}
	if settings.RetryInterval < 0 {
		return fmt.Errorf("%w: retry interval must not be negative", apperrors.ErrValidation)
	}
	hours := settings.AllowedCallingHours
	if hours.Start < 0 || hours.Start >= minutesPerDay || hours.End < 0 || hours.End >= minutesPerDay {
		return fmt.Errorf("%w: calling hours must be minutes within 0..%d", apperrors.ErrValidation, minutesPerDay-1)
	}
	for _, day := range settings.AllowedCallingDays {
		if day < time.Sunday || day > time.Saturday {
			return fmt.Errorf("%w: invalid calling day %d", apperrors.ErrValidation, day)
		}
	}
	return nil
}
