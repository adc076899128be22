package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acme/parallel-dialer/internal/config"
	"github.com/acme/parallel-dialer/internal/telephony"
	apperrors "github.com/acme/parallel-dialer/pkg/errors"
)

// Provider simulates outbound call behaviour for development and tests.
type Provider struct {
	mu      sync.Mutex
	rng     *rand.Rand
	events  chan telephony.Event
	active  map[telephony.CallHandle]int
	timeout time.Duration

	// Script, when set, overrides the random simulation: the provider emits
	// nothing on its own and tests inject events via Emit.
	Script bool
}

// NewProvider constructs a mock provider with deterministic randomness.
func NewProvider(cfg config.DialerConfig) *Provider {
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = 256
	}
	return &Provider{
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		events:  make(chan telephony.Event, buffer),
		active:  make(map[telephony.CallHandle]int),
		timeout: cfg.ProviderTimeout,
	}
}

// PlaceCall accepts a dial instruction and, unless scripted, simulates the
// call's progress on the event stream.
func (p *Provider) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (telephony.CallHandle, error) {
	if req.ToNumber == "" {
		return "", fmt.Errorf("%w: empty destination number", apperrors.ErrProvider)
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrProvider, ctx.Err())
	}

	handle := telephony.CallHandle(uuid.NewString())

	p.mu.Lock()
	p.active[handle] = req.LineID
	scripted := p.Script
	p.mu.Unlock()

	if !scripted {
		go p.simulate(req, handle)
	}
	return handle, nil
}

// Hangup terminates a call. Unknown handles are not an error; the call may
// already be gone.
func (p *Provider) Hangup(ctx context.Context, handle telephony.CallHandle) error {
	p.mu.Lock()
	delete(p.active, handle)
	p.mu.Unlock()
	return nil
}

// SendDigits simulates DTMF passthrough.
func (p *Provider) SendDigits(ctx context.Context, handle telephony.CallHandle, digits string) error {
	p.mu.Lock()
	_, ok := p.active[handle]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown call handle", apperrors.ErrProvider)
	}
	return nil
}

// PlayVoicemail simulates dropping a recorded message.
func (p *Provider) PlayVoicemail(ctx context.Context, handle telephony.CallHandle, recordingURL string) error {
	p.mu.Lock()
	_, ok := p.active[handle]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown call handle", apperrors.ErrProvider)
	}
	return nil
}

// Events exposes the inbound event stream.
func (p *Provider) Events() <-chan telephony.Event {
	return p.events
}

// Emit injects an event, used by scripted tests and the webhook ingest path.
func (p *Provider) Emit(ev telephony.Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	p.events <- ev
}

func (p *Provider) simulate(req telephony.PlaceCallRequest, handle telephony.CallHandle) {
	p.sleep(50 * time.Millisecond)
	p.Emit(telephony.Event{Kind: telephony.EventRinging, LineID: req.LineID, Handle: handle})

	p.sleep(time.Duration(100+p.intn(400)) * time.Millisecond)

	p.mu.Lock()
	_, stillActive := p.active[handle]
	roll := p.rng.Float64()
	p.mu.Unlock()
	if !stillActive {
		return
	}

	switch {
	case roll < 0.45:
		kind := telephony.AMDHuman
		if req.AMDEnabled && p.float64() < 0.4 {
			kind = telephony.AMDMachine
		}
		p.Emit(telephony.Event{Kind: telephony.EventAnswered, LineID: req.LineID, Handle: handle})
		if req.AMDEnabled {
			p.Emit(telephony.Event{Kind: telephony.EventAMDResult, LineID: req.LineID, Handle: handle, AMD: kind})
		}
	case roll < 0.65:
		p.Emit(telephony.Event{Kind: telephony.EventFailed, LineID: req.LineID, Handle: handle, FailCode: "busy"})
	case roll < 0.9:
		p.Emit(telephony.Event{Kind: telephony.EventFailed, LineID: req.LineID, Handle: handle, FailCode: "no-answer"})
	default:
		p.Emit(telephony.Event{Kind: telephony.EventFailed, LineID: req.LineID, Handle: handle, FailCode: "congestion"})
	}
}

func (p *Provider) sleep(d time.Duration) { time.Sleep(d) }

func (p *Provider) intn(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Intn(n)
}

func (p *Provider) float64() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64()
}
