package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/acme/parallel-dialer/internal/config"
	"github.com/acme/parallel-dialer/internal/dialer/amd"
	"github.com/acme/parallel-dialer/internal/dialer/compliance"
	"github.com/acme/parallel-dialer/internal/dialer/conflict"
	"github.com/acme/parallel-dialer/internal/dialer/contactqueue"
	"github.com/acme/parallel-dialer/internal/dialer/line"
	"github.com/acme/parallel-dialer/internal/dialer/pacing"
	"github.com/acme/parallel-dialer/internal/dialer/redial"
	"github.com/acme/parallel-dialer/internal/domain"
	"github.com/acme/parallel-dialer/internal/metrics"
	"github.com/acme/parallel-dialer/internal/telephony"
	"github.com/acme/parallel-dialer/pkg/logger"
)

// OutcomeSink receives every terminal CallAttemptOutcome for persistence and
// downstream publication. Sink failures are logged, never fatal to the run.
type OutcomeSink interface {
	RecordOutcome(ctx context.Context, outcome domain.CallAttemptOutcome) error
}

// BudgetLimiter reserves dials against the campaign's daily call limit.
type BudgetLimiter interface {
	Acquire(ctx context.Context, campaignID uuid.UUID, limit int) (bool, error)
	Release(ctx context.Context, campaignID uuid.UUID) error
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Campaign *domain.Campaign
	Settings domain.DialerSettings
	Config   config.DialerConfig

	Provider telephony.Provider
	Filter   *compliance.Filter
	Queue    *contactqueue.Queue
	Pacer    *pacing.Controller
	Resolver *conflict.Resolver
	AMD      *amd.Handler
	Redial   *redial.Scheduler

	Outcomes OutcomeSink
	Budget   BudgetLimiter
	Logger   *logger.Logger
}

// Engine is the campaign controller: it owns the run loop tying the queue,
// line pool, pacing, conflict arbitration, AMD policy and retry scheduling
// together, and publishes observable events.
//
// All line transitions are applied on the single run-loop goroutine; the two
// event sources (pacing tick and inbound provider events) are serialized by
// the loop's select.
type Engine struct {
	deps Deps
	pool *line.Pool

	inbox chan telephony.Event

	mu           sync.Mutex
	status       domain.CampaignStatus
	dialed       int64
	connected    int64
	contacted    int64
	agentRejects int64
	alerts       int64
	budgetUsed   int64
	subs         map[int]chan Event
	nextSub      int

	cancel context.CancelFunc
	done   chan struct{}
}

// New validates the configuration and builds an engine.
func New(deps Deps) (*Engine, error) {
	if deps.Campaign == nil {
		return nil, fmt.Errorf("engine: campaign is required")
	}
	pool, err := line.NewPool(deps.Campaign.ParallelCallLimit)
	if err != nil {
		return nil, err
	}

	buffer := deps.Config.EventBuffer
	if buffer <= 0 {
		buffer = 256
	}

	if deps.Logger != nil {
		deps.Logger = deps.Logger.WithCampaign(deps.Campaign.ID.String())
	}

	return &Engine{
		deps:  deps,
		pool:  pool,
		inbox: make(chan telephony.Event, buffer),
		// scheduled until Start
		status: domain.CampaignStatusScheduled,
		subs:   make(map[int]chan Event),
		done:   make(chan struct{}),
	}, nil
}

// Start moves the campaign to active and launches the run loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.status != domain.CampaignStatusScheduled {
		status := e.status
		e.mu.Unlock()
		return fmt.Errorf("engine: cannot start campaign in status %s", status)
	}
	e.status = domain.CampaignStatusActive
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	e.publish(Event{Kind: EventCampaignStatus, Status: domain.CampaignStatusActive})
	go e.run(runCtx)
	return nil
}

// Pause stops new assignments; active lines finish naturally.
func (e *Engine) Pause() error {
	e.mu.Lock()
	if e.status != domain.CampaignStatusActive {
		status := e.status
		e.mu.Unlock()
		return fmt.Errorf("engine: cannot pause campaign in status %s", status)
	}
	e.status = domain.CampaignStatusPaused
	e.mu.Unlock()

	e.publish(Event{Kind: EventCampaignStatus, Status: domain.CampaignStatusPaused})
	return nil
}

// Resume re-enables assignments after a pause.
func (e *Engine) Resume() error {
	e.mu.Lock()
	if e.status != domain.CampaignStatusPaused {
		status := e.status
		e.mu.Unlock()
		return fmt.Errorf("engine: cannot resume campaign in status %s", status)
	}
	e.status = domain.CampaignStatusActive
	e.mu.Unlock()

	e.publish(Event{Kind: EventCampaignStatus, Status: domain.CampaignStatusActive})
	return nil
}

// Stop hangs up every active line, flushes the queue and completes the
// campaign. It is legal from any non-terminal status.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.status == domain.CampaignStatusCompleted {
		e.mu.Unlock()
		return nil
	}
	e.status = domain.CampaignStatusCompleted
	cancel := e.cancel
	e.mu.Unlock()

	for _, l := range e.pool.All() {
		if l.State() == line.StateIdle {
			continue
		}
		if handle := l.Handle(); handle != "" {
			if err := e.deps.Provider.Hangup(ctx, handle); err != nil {
				e.deps.Logger.Warn("engine: stop hangup", zap.Int("line", l.ID()), zap.Error(err))
			}
		}
		if l.CloseConnected() {
			// Bridged call torn down by stop gives its agent slot back.
			e.deps.Resolver.Release()
			if _, err := l.Release(); err != nil {
				e.deps.Logger.Warn("engine: stop release", zap.Int("line", l.ID()), zap.Error(err))
			}
			metrics.ActiveLines.Dec()
			continue
		}
		if l.ForceFail() {
			_ = l.Transition(line.StateCompleted)
			if _, err := l.Release(); err != nil {
				e.deps.Logger.Warn("engine: stop release", zap.Int("line", l.ID()), zap.Error(err))
			}
			metrics.ActiveLines.Dec()
		}
	}

	flushed := e.deps.Queue.Flush()
	if len(flushed) > 0 {
		e.deps.Logger.Info("engine: queue flushed on stop", zap.Int("entries", len(flushed)))
	}

	if cancel != nil {
		cancel()
	}
	e.publish(Event{Kind: EventCampaignStatus, Status: domain.CampaignStatusCompleted})
	e.publish(Event{Kind: EventQueueDepth, QueueDepth: 0})
	return nil
}

// Done is closed when the run loop has exited.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Deliver injects an inbound provider event, used by the webhook ingest
// path. Full inboxes drop the event rather than blocking the caller.
func (e *Engine) Deliver(ev telephony.Event) bool {
	select {
	case e.inbox <- ev:
		return true
	default:
		e.deps.Logger.Warn("engine: inbox full, dropping event",
			zap.String("kind", string(ev.Kind)), zap.Int("line", ev.LineID))
		return false
	}
}

// DialNext assigns exactly one contact to an idle line, the explicit agent
// action for preview and manual modes.
func (e *Engine) DialNext(ctx context.Context) error {
	e.mu.Lock()
	status := e.status
	e.mu.Unlock()
	if status != domain.CampaignStatusActive {
		return fmt.Errorf("engine: campaign not active")
	}

	idle := e.pool.Idle()
	if len(idle) == 0 {
		return fmt.Errorf("engine: no idle line available")
	}
	if !e.dialOne(ctx, idle[0]) {
		return fmt.Errorf("engine: no eligible contact to dial")
	}
	return nil
}

// DisconnectLine hangs up one line on operator request.
func (e *Engine) DisconnectLine(ctx context.Context, lineID int) error {
	l := e.pool.Get(lineID)
	if l == nil {
		return fmt.Errorf("engine: line %d does not exist", lineID)
	}
	if l.State() == line.StateIdle {
		return nil
	}

	if handle := l.Handle(); handle != "" {
		if err := e.deps.Provider.Hangup(ctx, handle); err != nil {
			e.deps.Logger.Warn("engine: disconnect hangup", zap.Int("line", lineID), zap.Error(err))
		}
	}

	// CloseConnected elects a single closer: whichever of the operator and
	// the provider's completed event wins returns the agent slot, the loser
	// sees a non-connected state and backs off.
	if l.CloseConnected() {
		// Bridged call ended by the operator still counts as connected.
		e.deps.Resolver.Release()
		e.finalize(ctx, l, domain.DispositionConnected, l.TalkTime())
		return nil
	}
	if l.ForceFail() {
		e.finalize(ctx, l, domain.DispositionFailed, 0)
	}
	return nil
}

// Subscribe registers an observer. The returned cancel must be called to
// release the channel.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	ch := make(chan Event, 64)
	e.subs[id] = ch

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if existing, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// Snapshot returns the read-only live view.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Snapshot{
		CampaignID:     e.deps.Campaign.ID,
		Status:         e.status,
		Mode:           e.deps.Campaign.Mode,
		Lines:          e.pool.Snapshots(),
		QueueDepth:     e.deps.Queue.Len(),
		AgentCapacity:  e.deps.Resolver.Capacity(),
		AgentsInUse:    e.deps.Resolver.InUse(),
		Dialed:         e.dialed,
		Connected:      e.connected,
		Contacted:      e.contacted,
		AgentRejects:   e.agentRejects,
		Alerts:         e.alerts,
		ConnectRate:    e.deps.Pacer.Stats().ConnectRate(),
		BudgetConsumed: e.budgetUsed,
	}
}

// Status returns the campaign status.
func (e *Engine) Status() domain.CampaignStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	interval := e.deps.Config.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	providerEvents := e.deps.Provider.Events()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-providerEvents:
			if !ok {
				providerEvents = nil
				continue
			}
			e.handleEvent(ctx, ev)
		case ev := <-e.inbox:
			e.handleEvent(ctx, ev)
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	tracer := otel.Tracer("dialer.engine")
	tctx, span := tracer.Start(ctx, "engine.tick")
	defer span.End()

	e.watchdog(tctx)

	e.mu.Lock()
	status := e.status
	e.mu.Unlock()
	if status != domain.CampaignStatusActive {
		return
	}

	in := pacing.TickInput{
		Mode:            e.deps.Campaign.Mode,
		IdleLines:       len(e.pool.Idle()),
		ActiveLines:     e.pool.Active(),
		IdleAgents:      e.deps.Resolver.Capacity() - e.deps.Resolver.InUse(),
		RemainingBudget: e.remainingBudget(),
	}
	target := e.deps.Pacer.Assignments(in)
	span.SetAttributes(
		attribute.Int("pacing.target", target),
		attribute.Int("lines.idle", in.IdleLines),
		attribute.Int("queue.depth", e.deps.Queue.Len()),
	)

	assigned := 0
	for _, idle := range e.pool.Idle() {
		if assigned >= target {
			break
		}
		if !e.dialOne(tctx, idle) {
			break
		}
		assigned++
	}

	e.maybeComplete(tctx)
}

// watchdog force-fails lines stuck in a pre-terminal state past their
// deadline so a lost provider event cannot leak a slot forever.
func (e *Engine) watchdog(ctx context.Context) {
	now := time.Now()
	for _, l := range e.pool.All() {
		if !l.Expired(now) {
			continue
		}
		e.deps.Logger.Warn("engine: line deadline expired", zap.Int("line", l.ID()), zap.String("state", string(l.State())))
		if handle := l.Handle(); handle != "" {
			_ = e.deps.Provider.Hangup(ctx, handle)
		}
		if l.ForceFail() {
			e.finalize(ctx, l, domain.DispositionFailed, 0)
		}
	}
}

// dialOne pops one eligible contact and starts a call on the given idle
// line. Returns false when no contact could be dialed.
func (e *Engine) dialOne(ctx context.Context, l *line.Line) bool {
	entry, ok := e.deps.Queue.TakeNext(ctx, func(c context.Context, qe *domain.QueueEntry) bool {
		eligible, reason := e.deps.Filter.Eligible(c, qe)
		if !eligible {
			metrics.ComplianceSkips.Inc()
			e.deps.Logger.Debug("engine: contact skipped",
				zap.String("contact", qe.ContactID.String()), zap.String("reason", string(reason)))
		}
		return eligible
	})
	if !ok {
		return false
	}

	campaign := e.deps.Campaign
	if campaign.DailyCallLimit > 0 && e.deps.Budget != nil {
		acquired, err := e.deps.Budget.Acquire(ctx, campaign.ID, campaign.DailyCallLimit)
		if err != nil {
			e.deps.Logger.Warn("engine: budget check failed, using local counter", zap.Error(err))
			if e.localBudgetExhausted() {
				e.deps.Queue.Requeue(*entry, time.Minute)
				return false
			}
		} else if !acquired {
			// Budget exhausted for today; hold the contact.
			e.deps.Queue.Requeue(*entry, time.Minute)
			return false
		}
	}

	deadline := time.Now().Add(e.lineTimeout())
	if err := l.Assign(entry, deadline); err != nil {
		// Lost a race for this slot; put the contact back untouched.
		e.deps.Queue.Push(*entry)
		e.releaseBudget(ctx)
		return false
	}

	callCtx, cancel := context.WithTimeout(ctx, e.providerTimeout())
	handle, err := e.deps.Provider.PlaceCall(callCtx, telephony.PlaceCallRequest{
		LineID:     l.ID(),
		CampaignID: campaign.ID,
		ContactID:  entry.ContactID,
		ToNumber:   entry.Phone,
		Record:     e.deps.Settings.CallRecordingEnabled,
		AMDEnabled: e.deps.Settings.AMDEnabled,
	})
	cancel()
	if err != nil {
		e.deps.Logger.Error("engine: place call", zap.Int("line", l.ID()), zap.Error(err))
		e.releaseBudget(ctx)
		if l.ForceFail() {
			e.finalize(ctx, l, domain.DispositionFailed, 0)
		}
		return true
	}

	l.BindHandle(handle)
	e.deps.Pacer.Stats().RecordDial()
	metrics.DialsTotal.WithLabelValues(campaign.ID.String()).Inc()
	metrics.ActiveLines.Inc()

	e.mu.Lock()
	e.dialed++
	e.budgetUsed++
	e.mu.Unlock()

	e.publish(Event{Kind: EventLineStatus, LineID: l.ID(), LineState: line.StateDialing})
	e.publish(Event{Kind: EventQueueDepth, QueueDepth: e.deps.Queue.Len()})
	metrics.QueueDepth.WithLabelValues(campaign.ID.String()).Set(float64(e.deps.Queue.Len()))
	return true
}

func (e *Engine) handleEvent(ctx context.Context, ev telephony.Event) {
	l := e.pool.Get(ev.LineID)
	if l == nil {
		e.deps.Logger.Warn("engine: event for unknown line", zap.Int("line", ev.LineID))
		return
	}
	if !l.Matches(ev.Handle) {
		// Stale or duplicate: the line moved on, e.g. after a forced hangup.
		e.deps.Logger.Debug("engine: dropping stale event",
			zap.Int("line", ev.LineID), zap.String("kind", string(ev.Kind)))
		return
	}

	switch ev.Kind {
	case telephony.EventRinging:
		if err := l.Transition(line.StateRinging); err != nil {
			e.deps.Logger.Debug("engine: late ringing ack ignored", zap.Int("line", l.ID()))
			return
		}
		e.publish(Event{Kind: EventLineStatus, LineID: l.ID(), LineState: line.StateRinging})

	case telephony.EventAnswered:
		if e.deps.Settings.AMDEnabled {
			// Hold for the AMD verdict.
			return
		}
		e.humanDetected(ctx, l)

	case telephony.EventAMDResult:
		if ev.AMD == telephony.AMDMachine {
			e.machineDetected(ctx, l)
			return
		}
		e.humanDetected(ctx, l)

	case telephony.EventCompleted:
		if l.CloseConnected() {
			e.deps.Resolver.Release()
			e.finalize(ctx, l, domain.DispositionConnected, ev.Duration)
			return
		}
		// Remote hung up before any classification.
		if err := l.Transition(line.StateNoAnswer); err == nil {
			e.finalize(ctx, l, domain.DispositionNoAnswer, 0)
		}

	case telephony.EventFailed:
		e.failedEvent(ctx, l, ev.FailCode)
	}
}

func (e *Engine) humanDetected(ctx context.Context, l *line.Line) {
	if err := l.Transition(line.StateHumanDetected); err != nil {
		e.deps.Logger.Debug("engine: duplicate answer ignored", zap.Int("line", l.ID()))
		return
	}
	e.publish(Event{Kind: EventLineStatus, LineID: l.ID(), LineState: line.StateHumanDetected})

	if e.deps.Resolver.TryAcquire() {
		if err := l.Transition(line.StateConnected); err != nil {
			e.deps.Resolver.Release()
			return
		}
		e.deps.Pacer.Stats().RecordConnect()
		metrics.ConnectsTotal.WithLabelValues(e.deps.Campaign.ID.String()).Inc()

		e.mu.Lock()
		e.connected++
		e.mu.Unlock()

		e.publish(Event{Kind: EventCallBridged, LineID: l.ID(), LineState: line.StateConnected})
		e.publish(Event{Kind: EventLineStatus, LineID: l.ID(), LineState: line.StateConnected})
		return
	}

	// Lost the agent race: reject this call and recycle the contact.
	metrics.AgentBusyRejects.Inc()
	e.mu.Lock()
	e.agentRejects++
	e.mu.Unlock()

	handle := l.Handle()
	if err := e.deps.Provider.Hangup(ctx, handle); err != nil {
		e.deps.Logger.Warn("engine: reject hangup", zap.Int("line", l.ID()), zap.Error(err))
	}
	lineID := l.ID()
	e.finalize(ctx, l, domain.DispositionAgentBusy, 0)

	// Losing this notification would leave the far side stuck, so it gets
	// its own retry budget off the run loop.
	go func() {
		if err := e.deps.Resolver.NotifyRejection(context.Background(), e.deps.Campaign.ID, lineID, handle); err != nil {
			metrics.OperationalAlerts.Inc()
			e.mu.Lock()
			e.alerts++
			e.mu.Unlock()
			e.deps.Logger.Error("engine: rejection notification exhausted", zap.Error(err))
			e.publish(Event{Kind: EventAlert, LineID: lineID, Detail: "conflict notification failed; line force-released"})
		}
	}()
}

func (e *Engine) machineDetected(ctx context.Context, l *line.Line) {
	if err := l.Transition(line.StateMachineDetected); err != nil {
		return
	}
	e.publish(Event{Kind: EventLineStatus, LineID: l.ID(), LineState: line.StateMachineDetected})

	disposition, err := e.deps.AMD.Handle(ctx, e.deps.Campaign.ID, l.Entry(), l.Handle())
	if err != nil {
		e.deps.Logger.Warn("engine: amd handling", zap.Int("line", l.ID()), zap.Error(err))
	}
	e.finalize(ctx, l, disposition, 0)
}

func (e *Engine) failedEvent(ctx context.Context, l *line.Line, code string) {
	// A bridged call torn down by the provider already consumed the agent
	// slot; give it back and settle the attempt as connected.
	if l.CloseConnected() {
		e.deps.Resolver.Release()
		e.finalize(ctx, l, domain.DispositionConnected, l.TalkTime())
		return
	}

	var state line.State
	var disposition domain.Disposition
	switch code {
	case "busy":
		state, disposition = line.StateBusy, domain.DispositionBusy
	case "no-answer":
		state, disposition = line.StateNoAnswer, domain.DispositionNoAnswer
	default:
		state, disposition = line.StateFailed, domain.DispositionFailed
	}

	if err := l.Transition(state); err != nil {
		if !l.ForceFail() {
			return
		}
		disposition = domain.DispositionFailed
	}
	e.finalize(ctx, l, disposition, 0)
}

// finalize closes out the current attempt: emits the outcome, consults the
// retry scheduler, and returns the line to idle.
func (e *Engine) finalize(ctx context.Context, l *line.Line, disposition domain.Disposition, duration time.Duration) {
	// The closer may have already moved the line to completed.
	if err := l.Transition(line.StateCompleted); err != nil && l.State() != line.StateCompleted {
		e.deps.Logger.Error("engine: finalize transition", zap.Int("line", l.ID()), zap.Error(err))
		return
	}

	entry, err := l.Release()
	if err != nil || entry == nil {
		e.deps.Logger.Error("engine: finalize release", zap.Int("line", l.ID()), zap.Error(err))
		return
	}
	metrics.ActiveLines.Dec()

	decision := e.deps.Redial.Decide(disposition, entry)
	if decision.ChargeAttempt {
		entry.AttemptCount++
	}
	now := time.Now().UTC()
	entry.LastAttemptAt = &now

	outcome := domain.CallAttemptOutcome{
		CampaignID:  e.deps.Campaign.ID,
		ContactID:   entry.ContactID,
		LineID:      l.ID(),
		Phone:       entry.Phone,
		Disposition: disposition,
		Duration:    duration,
		Attempt:     entry.AttemptCount,
		Timestamp:   now,
	}
	if e.deps.Outcomes != nil {
		if err := e.deps.Outcomes.RecordOutcome(ctx, outcome); err != nil {
			e.deps.Logger.Error("engine: record outcome", zap.Error(err))
		}
	}

	if decision.Requeue {
		e.deps.Queue.Requeue(*entry, decision.Delay)
	} else {
		e.mu.Lock()
		e.contacted++
		e.mu.Unlock()
	}

	e.publish(Event{Kind: EventLineStatus, LineID: l.ID(), LineState: line.StateIdle, Detail: string(disposition)})
	e.publish(Event{Kind: EventQueueDepth, QueueDepth: e.deps.Queue.Len()})
	metrics.QueueDepth.WithLabelValues(e.deps.Campaign.ID.String()).Set(float64(e.deps.Queue.Len()))
}

// maybeComplete finishes the campaign once the queue is drained and every
// line is idle.
func (e *Engine) maybeComplete(ctx context.Context) {
	if e.deps.Queue.Len() > 0 || !e.pool.AllIdle() {
		return
	}

	e.mu.Lock()
	if e.status != domain.CampaignStatusActive {
		e.mu.Unlock()
		return
	}
	e.status = domain.CampaignStatusCompleted
	cancel := e.cancel
	e.mu.Unlock()

	e.deps.Logger.Info("engine: campaign drained")
	e.publish(Event{Kind: EventCampaignStatus, Status: domain.CampaignStatusCompleted})
	if cancel != nil {
		cancel()
	}
}

// publish fans an event out to subscribers without ever blocking the loop.
func (e *Engine) publish(ev Event) {
	ev.CampaignID = e.deps.Campaign.ID
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber loses the event.
		}
	}
}

func (e *Engine) remainingBudget() int {
	limit := e.deps.Campaign.DailyCallLimit
	if limit <= 0 {
		return -1
	}
	e.mu.Lock()
	used := e.budgetUsed
	e.mu.Unlock()

	remaining := limit - int(used)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (e *Engine) localBudgetExhausted() bool {
	return e.remainingBudget() == 0
}

func (e *Engine) releaseBudget(ctx context.Context) {
	if e.deps.Campaign.DailyCallLimit > 0 && e.deps.Budget != nil {
		if err := e.deps.Budget.Release(ctx, e.deps.Campaign.ID); err != nil {
			e.deps.Logger.Warn("engine: budget release", zap.Error(err))
		}
	}
}

func (e *Engine) lineTimeout() time.Duration {
	if e.deps.Config.LineTimeout > 0 {
		return e.deps.Config.LineTimeout
	}
	return 90 * time.Second
}

func (e *Engine) providerTimeout() time.Duration {
	if e.deps.Config.ProviderTimeout > 0 {
		return e.deps.Config.ProviderTimeout
	}
	return 10 * time.Second
}
