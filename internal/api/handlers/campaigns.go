package handlers

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/parallel-dialer/internal/domain"
	campaignsvc "github.com/acme/parallel-dialer/internal/service/campaign"
	apperrors "github.com/acme/parallel-dialer/pkg/errors"
)

type createCampaignRequest struct {
	Name              string            `json:"name"`
	Mode              string            `json:"mode"`
	TimeZone          string            `json:"time_zone"`
	ParallelCallLimit int               `json:"parallel_call_limit"`
	DailyCallLimit    int               `json:"daily_call_limit"`
	AssignedAgents    []uuid.UUID       `json:"assigned_agents"`
	Tags              []string          `json:"tags"`
	Settings          *settingsRequest  `json:"settings"`
	Contacts          []contactRequest  `json:"contacts"`
}

type contactRequest struct {
	Phone     string `json:"phone"`
	Priority  int    `json:"priority"`
	TimeZone  string `json:"time_zone"`
	DoNotCall bool   `json:"do_not_call"`
}

type settingsRequest struct {
	AMDEnabled             bool   `json:"amd_enabled"`
	AMDBehavior            string `json:"amd_behavior"`
	VoicemailDropURL       string `json:"voicemail_drop_url"`
	CallRecordingEnabled   bool   `json:"call_recording_enabled"`
	AutoPacingEnabled      bool   `json:"auto_pacing_enabled"`
	PacingAlgorithm        string `json:"pacing_algorithm"`
	PriorityDialingEnabled bool   `json:"priority_dialing_enabled"`
	MaxAttemptsPerLead     int    `json:"max_attempts_per_lead"`
	RetryInterval          string `json:"retry_interval"`
	RetryOnBusy            bool   `json:"retry_on_busy"`
	RetryOnNoAnswer        bool   `json:"retry_on_no_answer"`
	RetryOnFailed          bool   `json:"retry_on_failed"`
	DNCListEnabled         bool   `json:"dnc_list_enabled"`
	TimeZoneRespect        bool   `json:"time_zone_respect"`
	CallingHoursStart      int    `json:"calling_hours_start"`
	CallingHoursEnd        int    `json:"calling_hours_end"`
	CallingDays            []int  `json:"calling_days"`
}

type settingsResponse struct {
	AMDEnabled             bool   `json:"amd_enabled"`
	AMDBehavior            string `json:"amd_behavior"`
	VoicemailDropURL       string `json:"voicemail_drop_url,omitempty"`
	CallRecordingEnabled   bool   `json:"call_recording_enabled"`
	AutoPacingEnabled      bool   `json:"auto_pacing_enabled"`
	PacingAlgorithm        string `json:"pacing_algorithm"`
	PriorityDialingEnabled bool   `json:"priority_dialing_enabled"`
	MaxAttemptsPerLead     int    `json:"max_attempts_per_lead"`
	RetryInterval          string `json:"retry_interval"`
	RetryOnBusy            bool   `json:"retry_on_busy"`
	RetryOnNoAnswer        bool   `json:"retry_on_no_answer"`
	RetryOnFailed          bool   `json:"retry_on_failed"`
	DNCListEnabled         bool   `json:"dnc_list_enabled"`
	TimeZoneRespect        bool   `json:"time_zone_respect"`
	CallingHoursStart      int    `json:"calling_hours_start"`
	CallingHoursEnd        int    `json:"calling_hours_end"`
	CallingDays            []int  `json:"calling_days"`
}

type campaignResponse struct {
	ID                uuid.UUID             `json:"id"`
	Name              string                `json:"name"`
	Status            domain.CampaignStatus `json:"status"`
	Mode              domain.DialMode       `json:"mode"`
	TimeZone          string                `json:"time_zone"`
	ParallelCallLimit int                   `json:"parallel_call_limit"`
	DailyCallLimit    int                   `json:"daily_call_limit,omitempty"`
	AssignedAgents    []uuid.UUID           `json:"assigned_agents,omitempty"`
	Tags              []string              `json:"tags,omitempty"`
	TotalLeads        int64                 `json:"total_leads"`
	ContactedLeads    int64                 `json:"contacted_leads"`
	RemainingLeads    int64                 `json:"remaining_leads"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
	StartedAt         *time.Time            `json:"started_at,omitempty"`
	CompletedAt       *time.Time            `json:"completed_at,omitempty"`
}

type campaignStatsResponse struct {
	TotalLeads      int64   `json:"total_leads"`
	ContactedLeads  int64   `json:"contacted_leads"`
	DialsTotal      int64   `json:"dials_total"`
	ConnectsTotal   int64   `json:"connects_total"`
	FailedTotal     int64   `json:"failed_total"`
	VoicemailsTotal int64   `json:"voicemails_total"`
	RetriesTotal    int64   `json:"retries_total"`
	SuccessRate     float64 `json:"success_rate"`
}

type listCampaignsResponse struct {
	Campaigns []campaignResponse `json:"campaigns"`
}

type contactResponse struct {
	ID            uuid.UUID  `json:"id"`
	Phone         string     `json:"phone"`
	Priority      int        `json:"priority"`
	TimeZone      string     `json:"time_zone,omitempty"`
	DoNotCall     bool       `json:"do_not_call"`
	AttemptCount  int        `json:"attempt_count"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	Finalized     bool       `json:"finalized"`
}

type outcomeResponse struct {
	ContactID   uuid.UUID          `json:"contact_id"`
	LineID      int                `json:"line_id"`
	Phone       string             `json:"phone"`
	Disposition domain.Disposition `json:"disposition"`
	DurationMs  int64              `json:"duration_ms"`
	Attempt     int                `json:"attempt"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

type listOutcomesResponse struct {
	Outcomes []outcomeResponse `json:"outcomes"`
	NextPage string            `json:"next_page_token,omitempty"`
}

func (h *HandlerSet) createCampaign(ctx *fiber.Ctx) error {
	var req createCampaignRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	input, err := toCreateCampaignInput(req)
	if err != nil {
		return translateError(err)
	}

	campaign, err := h.campaigns.Create(ctx.Context(), input)
	if err != nil {
		return translateError(err)
	}

	fullCampaign, err := h.campaigns.Get(ctx.Context(), campaign.ID)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusCreated).JSON(toCampaignResponse(fullCampaign))
}

func (h *HandlerSet) listCampaigns(ctx *fiber.Ctx) error {
	limit, _ := strconv.Atoi(ctx.Query("limit", "50"))
	var afterID *uuid.UUID
	if afterStr := ctx.Query("after_id"); afterStr != "" {
		if id, err := uuid.Parse(afterStr); err == nil {
			afterID = &id
		}
	}

	var (
		campaigns []*domain.Campaign
		err       error
	)
	if status := ctx.Query("status"); status != "" {
		campaigns, err = h.campaigns.ListByStatus(ctx.Context(), domain.CampaignStatus(status), limit)
	} else {
		campaigns, err = h.campaigns.List(ctx.Context(), afterID, limit)
	}
	if err != nil {
		return translateError(err)
	}

	resp := listCampaignsResponse{Campaigns: make([]campaignResponse, 0, len(campaigns))}
	for _, c := range campaigns {
		resp.Campaigns = append(resp.Campaigns, toCampaignResponse(c))
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}

func (h *HandlerSet) getCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	campaign, err := h.campaigns.Get(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toCampaignResponse(campaign))
}

type updateCampaignRequest struct {
	Name              *string      `json:"name"`
	Mode              *string      `json:"mode"`
	ParallelCallLimit *int         `json:"parallel_call_limit"`
	DailyCallLimit    *int         `json:"daily_call_limit"`
	AssignedAgents    *[]uuid.UUID `json:"assigned_agents"`
	Tags              *[]string    `json:"tags"`
}

func (h *HandlerSet) updateCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	var req updateCampaignRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	input := campaignsvc.UpdateCampaignInput{
		ID:                id,
		Name:              req.Name,
		ParallelCallLimit: req.ParallelCallLimit,
		DailyCallLimit:    req.DailyCallLimit,
		AssignedAgents:    req.AssignedAgents,
		Tags:              req.Tags,
	}
	if req.Mode != nil {
		mode := domain.DialMode(*req.Mode)
		input.Mode = &mode
	}

	campaign, err := h.campaigns.Update(ctx.Context(), input)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toCampaignResponse(campaign))
}

func (h *HandlerSet) getSettings(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	settings, err := h.campaigns.Settings(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toSettingsResponse(*settings))
}

func (h *HandlerSet) updateSettings(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	var req settingsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	settings, err := parseSettings(req)
	if err != nil {
		return translateError(err)
	}

	if err := h.campaigns.UpdateSettings(ctx.Context(), id, settings); err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toSettingsResponse(settings))
}

func (h *HandlerSet) campaignStats(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	stats, err := h.campaigns.Stats(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	resp := campaignStatsResponse{
		TotalLeads:      stats.TotalLeads,
		ContactedLeads:  stats.ContactedLeads,
		DialsTotal:      stats.DialsTotal,
		ConnectsTotal:   stats.ConnectsTotal,
		FailedTotal:     stats.FailedTotal,
		VoicemailsTotal: stats.VoicemailsTotal,
		RetriesTotal:    stats.RetriesTotal,
		SuccessRate:     stats.SuccessRate(),
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}

func (h *HandlerSet) addContacts(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	var req struct {
		Contacts []contactRequest `json:"contacts"`
	}
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	inputs := make([]campaignsvc.ContactInput, 0, len(req.Contacts))
	for _, c := range req.Contacts {
		inputs = append(inputs, campaignsvc.ContactInput{
			Phone:     c.Phone,
			Priority:  c.Priority,
			TimeZone:  c.TimeZone,
			DoNotCall: c.DoNotCall,
		})
	}

	if err := h.campaigns.AddContacts(ctx.Context(), id, inputs); err != nil {
		return translateError(err)
	}

	return ctx.SendStatus(http.StatusAccepted)
}

func (h *HandlerSet) listContacts(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	limit, _ := strconv.Atoi(ctx.Query("limit", "100"))
	contacts, err := h.campaigns.Contacts(ctx.Context(), id, limit)
	if err != nil {
		return translateError(err)
	}

	resp := make([]contactResponse, 0, len(contacts))
	for _, c := range contacts {
		resp = append(resp, contactResponse{
			ID:            c.ID,
			Phone:         c.Phone,
			Priority:      c.Priority,
			TimeZone:      c.TimeZone,
			DoNotCall:     c.DoNotCall,
			AttemptCount:  c.AttemptCount,
			LastAttemptAt: c.LastAttemptAt,
			Finalized:     c.Finalized,
		})
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{"contacts": resp})
}

func (h *HandlerSet) listOutcomes(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	limit, _ := strconv.Atoi(ctx.Query("limit", "100"))
	var pagingState []byte
	if token := ctx.Query("page_token"); token != "" {
		pagingState, err = base64.URLEncoding.DecodeString(token)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid page token")
		}
	}

	outcomes, next, err := h.container.Repositories().Outcomes.ListByCampaign(ctx.Context(), id, limit, pagingState)
	if err != nil {
		return translateError(err)
	}

	resp := listOutcomesResponse{Outcomes: make([]outcomeResponse, 0, len(outcomes))}
	for _, o := range outcomes {
		resp.Outcomes = append(resp.Outcomes, outcomeResponse{
			ContactID:   o.ContactID,
			LineID:      o.LineID,
			Phone:       o.Phone,
			Disposition: o.Disposition,
			DurationMs:  o.Duration.Milliseconds(),
			Attempt:     o.Attempt,
			OccurredAt:  o.Timestamp,
		})
	}
	if len(next) > 0 {
		resp.NextPage = base64.URLEncoding.EncodeToString(next)
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}

// markDoNotCall flags the contact in Postgres and registers the phone number
// in the shared Redis registry so every running engine sees it immediately.
func (h *HandlerSet) markDoNotCall(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid contact id")
	}

	contact, err := h.container.Repositories().Contacts.Get(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	if err := h.campaigns.MarkDoNotCall(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	if err := h.container.Limiters().Budget.AddToDNC(ctx.Context(), contact.Phone); err != nil {
		return translateError(err)
	}

	return ctx.SendStatus(http.StatusNoContent)
}

func toCampaignResponse(campaign *domain.Campaign) campaignResponse {
	return campaignResponse{
		ID:                campaign.ID,
		Name:              campaign.Name,
		Status:            campaign.Status,
		Mode:              campaign.Mode,
		TimeZone:          campaign.TimeZone,
		ParallelCallLimit: campaign.ParallelCallLimit,
		DailyCallLimit:    campaign.DailyCallLimit,
		AssignedAgents:    campaign.AssignedAgents,
		Tags:              campaign.Tags,
		TotalLeads:        campaign.TotalLeads,
		ContactedLeads:    campaign.ContactedLeads,
		RemainingLeads:    campaign.RemainingLeads(),
		CreatedAt:         campaign.CreatedAt,
		UpdatedAt:         campaign.UpdatedAt,
		StartedAt:         campaign.StartedAt,
		CompletedAt:       campaign.CompletedAt,
	}
}

func toSettingsResponse(s domain.DialerSettings) settingsResponse {
	days := make([]int, 0, len(s.AllowedCallingDays))
	for _, d := range s.AllowedCallingDays {
		days = append(days, int(d))
	}
	return settingsResponse{
		AMDEnabled:             s.AMDEnabled,
		AMDBehavior:            string(s.AMDBehavior),
		VoicemailDropURL:       s.VoicemailDropURL,
		CallRecordingEnabled:   s.CallRecordingEnabled,
		AutoPacingEnabled:      s.AutoPacingEnabled,
		PacingAlgorithm:        string(s.PacingAlgorithm),
		PriorityDialingEnabled: s.PriorityDialingEnabled,
		MaxAttemptsPerLead:     s.MaxAttemptsPerLead,
		RetryInterval:          s.RetryInterval.String(),
		RetryOnBusy:            s.RetryOnBusy,
		RetryOnNoAnswer:        s.RetryOnNoAnswer,
		RetryOnFailed:          s.RetryOnFailed,
		DNCListEnabled:         s.DNCListEnabled,
		TimeZoneRespect:        s.TimeZoneRespect,
		CallingHoursStart:      s.AllowedCallingHours.Start,
		CallingHoursEnd:        s.AllowedCallingHours.End,
		CallingDays:            days,
	}
}

func parseSettings(req settingsRequest) (domain.DialerSettings, error) {
	settings := domain.DialerSettings{
		AMDEnabled:             req.AMDEnabled,
		AMDBehavior:            domain.AMDBehavior(req.AMDBehavior),
		VoicemailDropURL:       req.VoicemailDropURL,
		CallRecordingEnabled:   req.CallRecordingEnabled,
		AutoPacingEnabled:      req.AutoPacingEnabled,
		PacingAlgorithm:        domain.PacingAlgorithm(req.PacingAlgorithm),
		PriorityDialingEnabled: req.PriorityDialingEnabled,
		MaxAttemptsPerLead:     req.MaxAttemptsPerLead,
		RetryOnBusy:            req.RetryOnBusy,
		RetryOnNoAnswer:        req.RetryOnNoAnswer,
		RetryOnFailed:          req.RetryOnFailed,
		DNCListEnabled:         req.DNCListEnabled,
		TimeZoneRespect:        req.TimeZoneRespect,
		AllowedCallingHours: domain.CallingHours{
			Start: req.CallingHoursStart,
			End:   req.CallingHoursEnd,
		},
	}

	if req.RetryInterval != "" {
		d, err := time.ParseDuration(req.RetryInterval)
		if err != nil {
			return domain.DialerSettings{}, fmt.Errorf("%w: invalid retry_interval", apperrors.ErrValidation)
		}
		settings.RetryInterval = d
	}

	for _, d := range req.CallingDays {
		settings.AllowedCallingDays = append(settings.AllowedCallingDays, time.Weekday(d))
	}

	return settings, nil
}

func toCreateCampaignInput(req createCampaignRequest) (campaignsvc.CreateCampaignInput, error) {
	input := campaignsvc.CreateCampaignInput{
		Name:              req.Name,
		Mode:              domain.DialMode(req.Mode),
		TimeZone:          req.TimeZone,
		ParallelCallLimit: req.ParallelCallLimit,
		DailyCallLimit:    req.DailyCallLimit,
		AssignedAgents:    req.AssignedAgents,
		Tags:              req.Tags,
	}

	if req.Settings != nil {
		settings, err := parseSettings(*req.Settings)
		if err != nil {
			return campaignsvc.CreateCampaignInput{}, err
		}
		input.Settings = &settings
	}

	contacts := make([]campaignsvc.ContactInput, 0, len(req.Contacts))
	for _, c := range req.Contacts {
		contacts = append(contacts, campaignsvc.ContactInput{
			Phone:     c.Phone,
			Priority:  c.Priority,
			TimeZone:  c.TimeZone,
			DoNotCall: c.DoNotCall,
		})
	}
	input.Contacts = contacts

	return input, nil
}

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(value)
}
