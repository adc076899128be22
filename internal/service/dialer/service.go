package dialer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/parallel-dialer/internal/config"
	"github.com/acme/parallel-dialer/internal/dialer/amd"
	"github.com/acme/parallel-dialer/internal/dialer/compliance"
	"github.com/acme/parallel-dialer/internal/dialer/conflict"
	"github.com/acme/parallel-dialer/internal/dialer/contactqueue"
	"github.com/acme/parallel-dialer/internal/dialer/engine"
	"github.com/acme/parallel-dialer/internal/dialer/pacing"
	"github.com/acme/parallel-dialer/internal/dialer/redial"
	"github.com/acme/parallel-dialer/internal/domain"
	"github.com/acme/parallel-dialer/internal/queue"
	"github.com/acme/parallel-dialer/internal/repository"
	"github.com/acme/parallel-dialer/internal/telephony"
	apperrors "github.com/acme/parallel-dialer/pkg/errors"
	"github.com/acme/parallel-dialer/pkg/logger"
)

// seedBatchSize bounds how many contacts one campaign start pulls into the
// live queue.
const seedBatchSize = 10000

// OutcomePublisher mirrors terminal outcomes onto the broker.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, outcome domain.CallAttemptOutcome) error
}

// EventForwarder mirrors engine lifecycle events onto the broker.
type EventForwarder interface {
	PublishEvent(ctx context.Context, msg queue.CampaignEventMessage) error
}

// Deps bundles the service's collaborators. Budget, DNC, publishers and the
// notifier may be nil; the affected features degrade gracefully.
type Deps struct {
	Campaigns repository.CampaignRepository
	Contacts  repository.ContactRepository
	Settings  repository.SettingsRepository
	Stats     repository.StatsRepository
	History   repository.OutcomeStore

	Provider  telephony.Provider
	Budget    engine.BudgetLimiter
	DNC       compliance.DNCLookup
	Notifier  conflict.Notifier
	Callbacks amd.CallbackScheduler

	Outcomes OutcomePublisher
	Events   EventForwarder

	Config config.DialerConfig
	Logger *logger.Logger
}

// Service owns the running engines: one per active campaign. It seeds the
// queue from storage on start and persists lifecycle transitions and attempt
// outcomes back.
type Service struct {
	deps Deps

	mu      sync.Mutex
	engines map[uuid.UUID]*engine.Engine
}

// NewService constructs the dialer service.
func NewService(deps Deps) *Service {
	return &Service{
		deps:    deps,
		engines: make(map[uuid.UUID]*engine.Engine),
	}
}

// StartCampaign builds and launches an engine for the campaign. Starting an
// already-running campaign is a conflict; a paused one resumes instead.
func (s *Service) StartCampaign(ctx context.Context, campaignID uuid.UUID) error {
	s.mu.Lock()
	if eng, ok := s.engines[campaignID]; ok {
		s.mu.Unlock()
		if eng.Status() == domain.CampaignStatusPaused {
			return s.ResumeCampaign(ctx, campaignID)
		}
		return fmt.Errorf("%w: campaign %s is already running", apperrors.ErrConflict, campaignID)
	}
	s.mu.Unlock()

	campaign, err := s.deps.Campaigns.Get(ctx, campaignID)
	if err != nil {
		return err
	}

	settings, err := s.loadSettings(ctx, campaignID)
	if err != nil {
		return err
	}

	contacts, err := s.deps.Contacts.Dialable(ctx, campaignID, settings.MaxAttemptsPerLead, seedBatchSize)
	if err != nil {
		return fmt.Errorf("dialer service: load contacts: %w", err)
	}
	if len(contacts) == 0 {
		return fmt.Errorf("%w: campaign %s has no dialable contacts", apperrors.ErrValidation, campaignID)
	}

	q := contactqueue.New(contactqueue.WithPriorityOrdering(settings.PriorityDialingEnabled))
	entries := make([]domain.QueueEntry, 0, len(contacts))
	for i := range contacts {
		entries = append(entries, contacts[i].QueueEntry())
	}
	q.Seed(entries)

	var filterOpts []compliance.Option
	if s.deps.DNC != nil {
		filterOpts = append(filterOpts, compliance.WithDNCLookup(s.deps.DNC))
	}

	window := s.deps.Config.PacingWindow
	if window <= 0 {
		window = 5 * time.Minute
	}

	eng, err := engine.New(engine.Deps{
		Campaign: campaign,
		Settings: settings,
		Config:   s.deps.Config,
		Provider: s.deps.Provider,
		Filter:   compliance.New(settings, campaign.TimeZone, filterOpts...),
		Queue:    q,
		Pacer:    pacing.NewController(settings, pacing.NewStats(window)),
		Resolver: conflict.NewResolver(campaign.AgentCapacity(), s.deps.Notifier),
		AMD:      amd.NewHandler(settings, s.deps.Provider, s.deps.Callbacks),
		Redial:   redial.NewScheduler(settings, s.deps.Config.AgentBusyRequeue),
		Outcomes: &outcomeSink{svc: s, campaignID: campaignID, settings: settings},
		Budget:   s.deps.Budget,
		Logger:   s.deps.Logger,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.engines[campaignID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: campaign %s is already running", apperrors.ErrConflict, campaignID)
	}
	s.engines[campaignID] = eng
	s.mu.Unlock()

	if err := eng.Start(ctx); err != nil {
		s.unregister(campaignID)
		return err
	}

	if err := s.persistStatus(ctx, campaignID, domain.CampaignStatusActive); err != nil {
		s.deps.Logger.Error("dialer service: persist active status", zap.Error(err))
	}

	go s.forwardEvents(eng)
	go s.watchCompletion(campaignID, eng)

	s.deps.Logger.Info("dialer service: campaign started",
		zap.String("campaign", campaignID.String()),
		zap.String("mode", string(campaign.Mode)),
		zap.Int("queued", q.Len()))
	return nil
}

// PauseCampaign suspends new assignments; in-flight calls finish naturally.
func (s *Service) PauseCampaign(ctx context.Context, campaignID uuid.UUID) error {
	eng, err := s.engine(campaignID)
	if err != nil {
		return err
	}
	if err := eng.Pause(); err != nil {
		return err
	}
	return s.persistStatus(ctx, campaignID, domain.CampaignStatusPaused)
}

// ResumeCampaign re-enables assignments on a paused campaign.
func (s *Service) ResumeCampaign(ctx context.Context, campaignID uuid.UUID) error {
	eng, err := s.engine(campaignID)
	if err != nil {
		return err
	}
	if err := eng.Resume(); err != nil {
		return err
	}
	return s.persistStatus(ctx, campaignID, domain.CampaignStatusActive)
}

// StopCampaign hangs up every line and completes the campaign. The completion
// watcher persists the final status.
func (s *Service) StopCampaign(ctx context.Context, campaignID uuid.UUID) error {
	eng, err := s.engine(campaignID)
	if err != nil {
		return err
	}
	return eng.Stop(ctx)
}

// DialNext triggers one explicit dial for preview and manual campaigns.
func (s *Service) DialNext(ctx context.Context, campaignID uuid.UUID) error {
	eng, err := s.engine(campaignID)
	if err != nil {
		return err
	}
	return eng.DialNext(ctx)
}

// DisconnectLine hangs up one line on operator request.
func (s *Service) DisconnectLine(ctx context.Context, campaignID uuid.UUID, lineID int) error {
	eng, err := s.engine(campaignID)
	if err != nil {
		return err
	}
	return eng.DisconnectLine(ctx, lineID)
}

// Deliver routes a provider webhook event to the campaign's engine.
func (s *Service) Deliver(campaignID uuid.UUID, ev telephony.Event) error {
	eng, err := s.engine(campaignID)
	if err != nil {
		return err
	}
	if !eng.Deliver(ev) {
		return fmt.Errorf("%w: campaign %s inbox is full", apperrors.ErrUnavailable, campaignID)
	}
	return nil
}

// Snapshot returns the live view of a running campaign.
func (s *Service) Snapshot(campaignID uuid.UUID) (engine.Snapshot, error) {
	eng, err := s.engine(campaignID)
	if err != nil {
		return engine.Snapshot{}, err
	}
	return eng.Snapshot(), nil
}

// Subscribe attaches an observer to a running campaign's event stream. The
// stream closes when the observer cancels or the campaign finishes.
func (s *Service) Subscribe(campaignID uuid.UUID) (<-chan engine.Event, func(), error) {
	eng, err := s.engine(campaignID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := eng.Subscribe()
	go func() {
		<-eng.Done()
		cancel()
	}()
	return ch, cancel, nil
}

// Running lists snapshots of every running campaign.
func (s *Service) Running() []engine.Snapshot {
	s.mu.Lock()
	engines := make([]*engine.Engine, 0, len(s.engines))
	for _, eng := range s.engines {
		engines = append(engines, eng)
	}
	s.mu.Unlock()

	out := make([]engine.Snapshot, 0, len(engines))
	for _, eng := range engines {
		out = append(out, eng.Snapshot())
	}
	return out
}

// Shutdown stops every running engine and waits for their loops to exit.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.Lock()
	engines := make([]*engine.Engine, 0, len(s.engines))
	for _, eng := range s.engines {
		engines = append(engines, eng)
	}
	s.mu.Unlock()

	for _, eng := range engines {
		if err := eng.Stop(ctx); err != nil {
			s.deps.Logger.Warn("dialer service: shutdown stop", zap.Error(err))
		}
	}
	for _, eng := range engines {
		select {
		case <-eng.Done():
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) engine(campaignID uuid.UUID) (*engine.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eng, ok := s.engines[campaignID]
	if !ok {
		return nil, fmt.Errorf("%w: campaign %s is not running", apperrors.ErrNotFound, campaignID)
	}
	return eng, nil
}

func (s *Service) unregister(campaignID uuid.UUID) {
	s.mu.Lock()
	delete(s.engines, campaignID)
	s.mu.Unlock()
}

func (s *Service) loadSettings(ctx context.Context, campaignID uuid.UUID) (domain.DialerSettings, error) {
	settings, err := s.deps.Settings.Get(ctx, campaignID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return domain.DialerSettings{
			AMDBehavior:            domain.AMDDisconnect,
			PacingAlgorithm:        domain.PacingModerate,
			MaxAttemptsPerLead:     3,
			RetryInterval:          15 * time.Minute,
			RetryOnBusy:            true,
			RetryOnNoAnswer:        true,
			TimeZoneRespect:        true,
			PriorityDialingEnabled: true,
		}, nil
	}
	if err != nil {
		return domain.DialerSettings{}, fmt.Errorf("dialer service: load settings: %w", err)
	}
	return *settings, nil
}

func (s *Service) persistStatus(ctx context.Context, campaignID uuid.UUID, status domain.CampaignStatus) error {
	campaign, err := s.deps.Campaigns.Get(ctx, campaignID)
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
	return s.deps.Campaigns.Update(ctx, campaign)
}

// watchCompletion persists the terminal status and unregisters the engine
// once its run loop exits.
func (s *Service) watchCompletion(campaignID uuid.UUID, eng *engine.Engine) {
	<-eng.Done()
	s.unregister(campaignID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.persistStatus(ctx, campaignID, eng.Status()); err != nil {
		s.deps.Logger.Error("dialer service: persist final status",
			zap.String("campaign", campaignID.String()), zap.Error(err))
	}
}

// forwardEvents mirrors engine events onto the broker until the run loop
// exits.
func (s *Service) forwardEvents(eng *engine.Engine) {
	if s.deps.Events == nil {
		return
	}

	ch, cancel := eng.Subscribe()
	go func() {
		<-eng.Done()
		cancel()
	}()

	for ev := range ch {
		detail := ev.Detail
		if detail == "" {
			if ev.Status != "" {
				detail = string(ev.Status)
			} else if ev.LineState != "" {
				detail = string(ev.LineState)
			}
		}
		msg := queue.CampaignEventMessage{
			CampaignID: ev.CampaignID,
			Kind:       string(ev.Kind),
			LineID:     ev.LineID,
			Detail:     detail,
			OccurredAt: ev.OccurredAt,
		}
		ctx, cancelPub := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.deps.Events.PublishEvent(ctx, msg); err != nil {
			s.deps.Logger.Warn("dialer service: forward event", zap.Error(err))
		}
		cancelPub()
	}
}

// outcomeSink persists each terminal attempt: contact counters, aggregate
// statistics, the append-only history and the broker mirror.
type outcomeSink struct {
	svc        *Service
	campaignID uuid.UUID
	settings   domain.DialerSettings
}

// RecordOutcome implements engine.OutcomeSink.
func (o *outcomeSink) RecordOutcome(ctx context.Context, outcome domain.CallAttemptOutcome) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		} else if err != nil {
			o.svc.deps.Logger.Warn("outcome sink: secondary failure", zap.Error(err))
		}
	}

	finalized := o.finalized(outcome)
	keep(o.svc.deps.Contacts.RecordAttempt(ctx, outcome.ContactID, outcome.Attempt, outcome.Timestamp, finalized))
	keep(o.svc.deps.Stats.ApplyDelta(ctx, o.campaignID, o.delta(outcome, finalized)))
	if o.svc.deps.History != nil {
		keep(o.svc.deps.History.Append(ctx, outcome))
	}
	if o.svc.deps.Outcomes != nil {
		keep(o.svc.deps.Outcomes.PublishOutcome(ctx, outcome))
	}
	return firstErr
}

// finalized mirrors the retry decision table: a contact is done when the
// outcome never retries or its attempt budget is spent. agent_busy always
// comes back.
func (o *outcomeSink) finalized(outcome domain.CallAttemptOutcome) bool {
	switch outcome.Disposition {
	case domain.DispositionAgentBusy:
		return false
	case domain.DispositionConnected, domain.DispositionVoicemail, domain.DispositionVoicemailLeft:
		return true
	}

	retryable := false
	switch outcome.Disposition {
	case domain.DispositionBusy:
		retryable = o.settings.RetryOnBusy
	case domain.DispositionNoAnswer:
		retryable = o.settings.RetryOnNoAnswer
	case domain.DispositionFailed:
		retryable = o.settings.RetryOnFailed
	}
	if !retryable {
		return true
	}
	return o.settings.MaxAttemptsPerLead > 0 && outcome.Attempt >= o.settings.MaxAttemptsPerLead
}

func (o *outcomeSink) delta(outcome domain.CallAttemptOutcome, finalized bool) repository.StatsDelta {
	delta := repository.StatsDelta{DialsDelta: 1}
	switch outcome.Disposition {
	case domain.DispositionConnected:
		delta.ConnectsDelta = 1
	case domain.DispositionBusy, domain.DispositionNoAnswer, domain.DispositionFailed:
		delta.FailedDelta = 1
	case domain.DispositionVoicemail, domain.DispositionVoicemailLeft:
		delta.VoicemailsDelta = 1
	case domain.DispositionAgentBusy:
		// Not a dial the campaign gets charged for.
		delta.DialsDelta = 0
	}
	if finalized {
		delta.ContactedDelta = 1
	} else if outcome.Disposition != domain.DispositionAgentBusy {
		delta.RetriesDelta = 1
	}
	return delta
}
