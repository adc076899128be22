package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/acme/parallel-dialer/internal/config"
	"github.com/acme/parallel-dialer/internal/dialer/amd"
	"github.com/acme/parallel-dialer/internal/dialer/compliance"
	"github.com/acme/parallel-dialer/internal/dialer/conflict"
	"github.com/acme/parallel-dialer/internal/dialer/contactqueue"
	"github.com/acme/parallel-dialer/internal/dialer/line"
	"github.com/acme/parallel-dialer/internal/dialer/pacing"
	"github.com/acme/parallel-dialer/internal/dialer/redial"
	"github.com/acme/parallel-dialer/internal/domain"
	"github.com/acme/parallel-dialer/internal/telephony"
	"github.com/acme/parallel-dialer/internal/telephony/mock"
	"github.com/acme/parallel-dialer/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type capturedOutcomes struct {
	mu       sync.Mutex
	outcomes []domain.CallAttemptOutcome
}

func (c *capturedOutcomes) RecordOutcome(ctx context.Context, outcome domain.CallAttemptOutcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
	return nil
}

func (c *capturedOutcomes) byDisposition(d domain.Disposition) []domain.CallAttemptOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.CallAttemptOutcome
	for _, o := range c.outcomes {
		if o.Disposition == d {
			out = append(out, o)
		}
	}
	return out
}

type harness struct {
	engine   *Engine
	provider *mock.Provider
	queue    *contactqueue.Queue
	outcomes *capturedOutcomes
	campaign *domain.Campaign
}

func permissiveSettings() domain.DialerSettings {
	return domain.DialerSettings{
		MaxAttemptsPerLead: 3,
		RetryInterval:      5 * time.Minute,
		RetryOnBusy:        true,
		RetryOnNoAnswer:    true,
		RetryOnFailed:      true,
	}
}

func newHarness(t *testing.T, mode domain.DialMode, parallel, agents int, settings domain.DialerSettings) *harness {
	t.Helper()

	lg, err := logger.New("test")
	require.NoError(t, err)

	campaign := &domain.Campaign{
		ID:                uuid.New(),
		Name:              "test campaign",
		Mode:              mode,
		TimeZone:          "UTC",
		ParallelCallLimit: parallel,
	}
	for i := 0; i < agents; i++ {
		campaign.AssignedAgents = append(campaign.AssignedAgents, uuid.New())
	}

	cfg := config.DialerConfig{
		TickInterval:     10 * time.Millisecond,
		LineTimeout:      time.Minute,
		AgentBusyRequeue: time.Second,
		ProviderTimeout:  time.Second,
	}

	provider := mock.NewProvider(cfg)
	provider.Script = true

	queue := contactqueue.New()
	outcomes := &capturedOutcomes{}

	eng, err := New(Deps{
		Campaign: campaign,
		Settings: settings,
		Config:   cfg,
		Provider: provider,
		Filter:   compliance.New(settings, "UTC"),
		Queue:    queue,
		Pacer:    pacing.NewController(settings, pacing.NewStats(time.Minute)),
		Resolver: conflict.NewResolver(campaign.AgentCapacity(), nil),
		AMD:      amd.NewHandler(settings, provider, nil),
		Redial:   redial.NewScheduler(settings, cfg.AgentBusyRequeue),
		Outcomes: outcomes,
		Logger:   lg,
	})
	require.NoError(t, err)

	// Tests drive tick/handleEvent directly instead of running the loop.
	eng.status = domain.CampaignStatusActive

	return &harness{engine: eng, provider: provider, queue: queue, outcomes: outcomes, campaign: campaign}
}

func (h *harness) seed(n int) []domain.QueueEntry {
	entries := make([]domain.QueueEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, domain.QueueEntry{
			ContactID: uuid.New(),
			Phone:     "+1555000" + uuid.NewString()[:4],
		})
	}
	h.queue.Seed(entries)
	return entries
}

func (h *harness) linesIn(state line.State) []*line.Line {
	var out []*line.Line
	for _, l := range h.engine.pool.All() {
		if l.State() == state {
			out = append(out, l)
		}
	}
	return out
}

// answer walks a dialing line to human-detected via answered (AMD disabled).
func (h *harness) answer(l *line.Line) {
	h.engine.handleEvent(context.Background(), telephony.Event{
		Kind:   telephony.EventAnswered,
		LineID: l.ID(),
		Handle: l.Handle(),
	})
}

// Power mode with limit 3 and 5 queued contacts dials exactly 3 immediately.
func TestPowerModeFillsAllLines(t *testing.T) {
	h := newHarness(t, domain.DialModePower, 3, 1, permissiveSettings())
	h.seed(5)

	h.engine.tick(context.Background())

	assert.Len(t, h.linesIn(line.StateDialing), 3)
	assert.Equal(t, 2, h.queue.Len())
	assert.EqualValues(t, 3, h.engine.Snapshot().Dialed)
}

// Bounded concurrency: repeated ticks never push non-idle lines past the
// parallel call limit.
func TestBoundedConcurrency(t *testing.T) {
	h := newHarness(t, domain.DialModePower, 2, 1, permissiveSettings())
	h.seed(10)

	for i := 0; i < 5; i++ {
		h.engine.tick(context.Background())
		assert.LessOrEqual(t, h.engine.pool.Active(), 2)
	}
}

// Two lines reach human-detected with agent capacity 1: exactly one connects,
// the other completes as agent_busy and its contact is requeued shortly.
func TestAgentRaceRejectsSecondAnswer(t *testing.T) {
	h := newHarness(t, domain.DialModePower, 2, 1, permissiveSettings())
	h.seed(2)

	h.engine.tick(context.Background())
	dialing := h.linesIn(line.StateDialing)
	require.Len(t, dialing, 2)

	h.answer(dialing[0])
	h.answer(dialing[1])

	assert.Len(t, h.linesIn(line.StateConnected), 1)

	rejected := h.outcomes.byDisposition(domain.DispositionAgentBusy)
	require.Len(t, rejected, 1)
	// agent_busy does not charge an attempt.
	assert.Equal(t, 0, rejected[0].Attempt)
	assert.Equal(t, 1, h.queue.Len(), "rejected contact must be requeued")

	snap := h.engine.Snapshot()
	assert.EqualValues(t, 1, snap.Connected)
	assert.EqualValues(t, 1, snap.AgentRejects)
}

// retryOnNoAnswer=false drops the contact with a single attempt charged.
func TestNoAnswerWithoutRetryDropsContact(t *testing.T) {
	settings := permissiveSettings()
	settings.RetryOnNoAnswer = false
	h := newHarness(t, domain.DialModePower, 1, 1, settings)
	h.seed(1)

	h.engine.tick(context.Background())
	l := h.linesIn(line.StateDialing)[0]

	h.engine.handleEvent(context.Background(), telephony.Event{
		Kind:     telephony.EventFailed,
		LineID:   l.ID(),
		Handle:   l.Handle(),
		FailCode: "no-answer",
	})

	require.Len(t, h.outcomes.byDisposition(domain.DispositionNoAnswer), 1)
	assert.Equal(t, 1, h.outcomes.byDisposition(domain.DispositionNoAnswer)[0].Attempt)
	assert.Equal(t, 0, h.queue.Len())
	assert.EqualValues(t, 1, h.engine.Snapshot().Contacted)
}

// amdBehavior=disconnect: machine-detected hangs up with disposition
// voicemail and never reaches connected.
func TestAMDDisconnect(t *testing.T) {
	settings := permissiveSettings()
	settings.AMDEnabled = true
	settings.AMDBehavior = domain.AMDDisconnect
	h := newHarness(t, domain.DialModePower, 1, 1, settings)
	h.seed(1)

	h.engine.tick(context.Background())
	l := h.linesIn(line.StateDialing)[0]
	handle := l.Handle()

	h.engine.handleEvent(context.Background(), telephony.Event{
		Kind: telephony.EventAnswered, LineID: l.ID(), Handle: handle,
	})
	h.engine.handleEvent(context.Background(), telephony.Event{
		Kind: telephony.EventAMDResult, LineID: l.ID(), Handle: handle, AMD: telephony.AMDMachine,
	})

	require.Len(t, h.outcomes.byDisposition(domain.DispositionVoicemail), 1)
	assert.Empty(t, h.outcomes.byDisposition(domain.DispositionConnected))
	assert.Equal(t, line.StateIdle, l.State())
}

// A bridged call torn down by a carrier failure still hands the agent slot
// back, so the next answer on a capacity-1 campaign connects instead of
// being rejected.
func TestProviderFailureOnBridgedCallFreesAgent(t *testing.T) {
	h := newHarness(t, domain.DialModePower, 2, 1, permissiveSettings())
	h.seed(2)

	h.engine.tick(context.Background())
	dialing := h.linesIn(line.StateDialing)
	require.Len(t, dialing, 2)

	first := dialing[0]
	h.answer(first)
	require.Equal(t, line.StateConnected, first.State())

	h.engine.handleEvent(context.Background(), telephony.Event{
		Kind: telephony.EventFailed, LineID: first.ID(), Handle: first.Handle(), FailCode: "congestion",
	})

	assert.Equal(t, 0, h.engine.Snapshot().AgentsInUse, "agent slot must come back")
	require.Len(t, h.outcomes.byDisposition(domain.DispositionConnected), 1)

	second := dialing[1]
	h.answer(second)
	assert.Equal(t, line.StateConnected, second.State(), "freed slot must admit the next answer")
	assert.Empty(t, h.outcomes.byDisposition(domain.DispositionAgentBusy))
}

// Operator disconnect and the provider's own completion race to close a
// bridged call: exactly one settles it, and the agent slot is returned
// exactly once.
func TestDisconnectThenCompletionSettlesOnce(t *testing.T) {
	h := newHarness(t, domain.DialModePower, 2, 1, permissiveSettings())
	h.seed(2)

	h.engine.tick(context.Background())
	dialing := h.linesIn(line.StateDialing)
	require.Len(t, dialing, 2)

	first := dialing[0]
	h.answer(first)
	handle := first.Handle()

	require.NoError(t, h.engine.DisconnectLine(context.Background(), first.ID()))
	// The provider's completion for the same call arrives afterwards.
	h.engine.handleEvent(context.Background(), telephony.Event{
		Kind: telephony.EventCompleted, LineID: first.ID(), Handle: handle, Duration: time.Second,
	})

	assert.Len(t, h.outcomes.byDisposition(domain.DispositionConnected), 1)
	assert.Equal(t, 0, h.engine.Snapshot().AgentsInUse)

	// The single slot still admits exactly one follow-up answer.
	second := dialing[1]
	h.answer(second)
	require.Equal(t, line.StateConnected, second.State())
	assert.Equal(t, 1, h.engine.Snapshot().AgentsInUse)
}

// Stop tears down a bridged call and returns its agent slot with the line.
func TestStopReleasesAgentSlot(t *testing.T) {
	h := newHarness(t, domain.DialModePower, 1, 1, permissiveSettings())
	h.seed(1)

	h.engine.tick(context.Background())
	l := h.linesIn(line.StateDialing)[0]
	h.answer(l)
	require.Equal(t, line.StateConnected, l.State())

	require.NoError(t, h.engine.Stop(context.Background()))

	assert.True(t, h.engine.pool.AllIdle())
	assert.Equal(t, 0, h.engine.Snapshot().AgentsInUse)
}

// A webhook for a handle the line no longer holds is dropped.
func TestStaleEventIsNoOp(t *testing.T) {
	h := newHarness(t, domain.DialModePower, 1, 1, permissiveSettings())
	h.seed(1)

	h.engine.tick(context.Background())
	l := h.linesIn(line.StateDialing)[0]

	h.engine.handleEvent(context.Background(), telephony.Event{
		Kind: telephony.EventAnswered, LineID: l.ID(), Handle: "stale-handle",
	})

	assert.Equal(t, line.StateDialing, l.State(), "stale event must not move the line")
	assert.Empty(t, h.outcomes.outcomes)
}

// A force-failed line settles like any other failed attempt: outcome
// recorded, line back to idle, contact through the retry scheduler.
func TestForcedFailureRecyclesContact(t *testing.T) {
	h := newHarness(t, domain.DialModePower, 1, 1, permissiveSettings())
	h.seed(1)

	h.engine.tick(context.Background())
	require.Len(t, h.linesIn(line.StateDialing), 1)

	h.engine.pool.Get(1).ForceFail()
	h.engine.finalize(context.Background(), h.engine.pool.Get(1), domain.DispositionFailed, 0)

	require.Len(t, h.outcomes.byDisposition(domain.DispositionFailed), 1)
	assert.Equal(t, line.StateIdle, h.engine.pool.Get(1).State())
	assert.Equal(t, 1, h.queue.Len(), "retryOnFailed requeues the contact")
}

// Retry bound: a contact cycling through busy outcomes leaves the queue
// permanently once maxAttemptsPerLead is exhausted.
func TestRetryBound(t *testing.T) {
	settings := permissiveSettings()
	settings.MaxAttemptsPerLead = 2
	h := newHarness(t, domain.DialModePower, 1, 1, settings)
	h.seed(1)

	for attempt := 0; attempt < 2; attempt++ {
		// Make any requeued entry due immediately.
		for _, e := range h.queue.Snapshot() {
			h.queue.Remove(e.ContactID)
			e.NextEligibleAt = nil
			h.queue.Push(e)
		}

		h.engine.tick(context.Background())
		dialing := h.linesIn(line.StateDialing)
		require.Len(t, dialing, 1, "attempt %d should dial", attempt)
		h.engine.handleEvent(context.Background(), telephony.Event{
			Kind: telephony.EventFailed, LineID: dialing[0].ID(), Handle: dialing[0].Handle(), FailCode: "busy",
		})
	}

	assert.Equal(t, 0, h.queue.Len(), "contact must leave the queue at the cap")
	outcomes := h.outcomes.byDisposition(domain.DispositionBusy)
	require.Len(t, outcomes, 2)
	assert.Equal(t, 2, outcomes[1].Attempt, "attempt count never exceeds the cap")
}

// Manual and preview modes only dial through DialNext.
func TestPreviewModeRequiresExplicitDial(t *testing.T) {
	h := newHarness(t, domain.DialModePreview, 2, 1, permissiveSettings())
	h.seed(2)

	h.engine.tick(context.Background())
	assert.Empty(t, h.linesIn(line.StateDialing), "tick must not auto-assign in preview mode")

	require.NoError(t, h.engine.DialNext(context.Background()))
	assert.Len(t, h.linesIn(line.StateDialing), 1)
}

// Stop hangs up every active line, flushes the queue and completes.
func TestStopReleasesEverything(t *testing.T) {
	h := newHarness(t, domain.DialModePower, 3, 1, permissiveSettings())
	h.seed(6)

	h.engine.tick(context.Background())
	require.Len(t, h.linesIn(line.StateDialing), 3)

	require.NoError(t, h.engine.Stop(context.Background()))

	assert.True(t, h.engine.pool.AllIdle())
	assert.Equal(t, 0, h.queue.Len())
	assert.Equal(t, domain.CampaignStatusCompleted, h.engine.Status())
}

// Paused campaigns stop assigning but in-flight calls still settle.
func TestPauseStopsAssignments(t *testing.T) {
	h := newHarness(t, domain.DialModePower, 2, 1, permissiveSettings())
	h.seed(4)

	h.engine.tick(context.Background())
	require.Len(t, h.linesIn(line.StateDialing), 2)

	require.NoError(t, h.engine.Pause())
	dialing := h.linesIn(line.StateDialing)
	h.engine.handleEvent(context.Background(), telephony.Event{
		Kind: telephony.EventFailed, LineID: dialing[0].ID(), Handle: dialing[0].Handle(), FailCode: "busy",
	})
	assert.Equal(t, line.StateIdle, dialing[0].State(), "in-flight call settles during pause")

	h.engine.tick(context.Background())
	assert.Len(t, h.linesIn(line.StateDialing), 1, "no new assignment while paused")

	require.NoError(t, h.engine.Resume())
	h.engine.tick(context.Background())
	assert.Len(t, h.linesIn(line.StateDialing), 2)
}

// Subscribers receive events without ever blocking the engine, and a full
// subscriber just misses events.
func TestSubscriberFanOut(t *testing.T) {
	h := newHarness(t, domain.DialModePower, 1, 1, permissiveSettings())
	h.seed(1)

	events, cancel := h.engine.Subscribe()
	defer cancel()

	h.engine.tick(context.Background())

	var sawLineStatus bool
	for done := false; !done; {
		select {
		case ev := <-events:
			if ev.Kind == EventLineStatus && ev.LineState == line.StateDialing {
				sawLineStatus = true
			}
		default:
			done = true
		}
	}
	assert.True(t, sawLineStatus, "subscriber should observe the dialing transition")
}

// End-to-end through the run loop: the campaign drains and completes.
func TestRunLoopDrainsCampaign(t *testing.T) {
	h := newHarness(t, domain.DialModePower, 2, 2, permissiveSettings())
	h.seed(2)

	// Reset to scheduled so Start owns the loop.
	h.engine.status = domain.CampaignStatusScheduled
	require.NoError(t, h.engine.Start(context.Background()))

	deadline := time.After(5 * time.Second)
	for {
		if h.engine.Status() == domain.CampaignStatusCompleted {
			break
		}
		for _, l := range h.engine.pool.All() {
			if l.State() == line.StateDialing || l.State() == line.StateRinging {
				h.provider.Emit(telephony.Event{
					Kind: telephony.EventAnswered, LineID: l.ID(), Handle: l.Handle(),
				})
				h.provider.Emit(telephony.Event{
					Kind: telephony.EventCompleted, LineID: l.ID(), Handle: l.Handle(), Duration: time.Second,
				})
			}
		}
		select {
		case <-deadline:
			t.Fatalf("campaign did not drain; status=%s queue=%d", h.engine.Status(), h.queue.Len())
		case <-time.After(20 * time.Millisecond):
		}
	}

	<-h.engine.Done()
	assert.Equal(t, 0, h.queue.Len())
}
