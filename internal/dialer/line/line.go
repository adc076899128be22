package line

import (
	"fmt"
	"sync"
	"time"

	"github.com/acme/parallel-dialer/internal/domain"
	"github.com/acme/parallel-dialer/internal/telephony"
)

// State enumerates the line state machine.
type State string

const (
	StateIdle            State = "idle"
	StateDialing         State = "dialing"
	StateRinging         State = "ringing"
	StateHumanDetected   State = "human-detected"
	StateMachineDetected State = "machine-detected"
	StateBusy            State = "busy"
	StateNoAnswer        State = "no-answer"
	StateFailed          State = "failed"
	StateConnected       State = "connected"
	StateCompleted       State = "completed"
)

// legalTransitions encodes the state machine. Webhook events can arrive out
// of order, so answer-class states are reachable straight from dialing.
var legalTransitions = map[State][]State{
	StateIdle:            {StateDialing},
	StateDialing:         {StateRinging, StateHumanDetected, StateMachineDetected, StateBusy, StateNoAnswer, StateFailed},
	StateRinging:         {StateHumanDetected, StateMachineDetected, StateBusy, StateNoAnswer, StateFailed},
	StateHumanDetected:   {StateConnected, StateCompleted, StateFailed},
	StateMachineDetected: {StateCompleted, StateFailed},
	StateConnected:       {StateCompleted, StateFailed},
	StateBusy:            {StateCompleted},
	StateNoAnswer:        {StateCompleted},
	StateFailed:          {StateCompleted},
	StateCompleted:       {StateIdle},
}

// ErrIllegalTransition reports a transition the state machine forbids.
type ErrIllegalTransition struct {
	LineID int
	From   State
	To     State
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("line %d: illegal transition %s -> %s", e.LineID, e.From, e.To)
}

// View is a read-only snapshot of a line for observers.
type View struct {
	ID          int
	State       State
	ContactID   string
	Phone       string
	Handle      telephony.CallHandle
	StartedAt   *time.Time
	ConnectedAt *time.Time
	Deadline    *time.Time
}

// Line is one concurrent outbound-attempt slot. All mutation goes through
// methods holding the line's own mutex: a single writer at a time, so a stale
// or duplicate webhook can never regress the state.
type Line struct {
	mu sync.Mutex

	id          int
	state       State
	entry       *domain.QueueEntry
	handle      telephony.CallHandle
	startedAt   time.Time
	connectedAt time.Time
	endedAt     time.Time
	deadline    time.Time
}

// New creates an idle line.
func New(id int) *Line {
	return &Line{id: id, state: StateIdle}
}

// ID returns the line's slot number.
func (l *Line) ID() int { return l.id }

// State returns the current state.
func (l *Line) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Entry returns the assigned queue entry, nil when idle.
func (l *Line) Entry() *domain.QueueEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entry
}

// Handle returns the provider call handle for the current attempt.
func (l *Line) Handle() telephony.CallHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle
}

// Assign binds a queue entry to an idle line and moves it to dialing. The
// deadline bounds how long the attempt may stay in a pre-terminal state.
func (l *Line) Assign(entry *domain.QueueEntry, deadline time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateIdle {
		return &ErrIllegalTransition{LineID: l.id, From: l.state, To: StateDialing}
	}
	l.state = StateDialing
	l.entry = entry
	l.handle = ""
	l.startedAt = time.Now().UTC()
	l.connectedAt = time.Time{}
	l.endedAt = time.Time{}
	l.deadline = deadline
	return nil
}

// BindHandle records the provider's call handle after placement.
func (l *Line) BindHandle(handle telephony.CallHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handle = handle
}

// Matches reports whether an event's handle belongs to this line's current
// attempt. Events for a handle the line no longer holds are no-ops.
func (l *Line) Matches(handle telephony.CallHandle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle != "" && l.handle == handle
}

// Transition moves the line to the target state if legal.
func (l *Line) Transition(to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transitionLocked(to)
}

func (l *Line) transitionLocked(to State) error {
	for _, allowed := range legalTransitions[l.state] {
		if allowed == to {
			l.state = to
			switch to {
			case StateConnected:
				l.connectedAt = time.Now().UTC()
			case StateCompleted:
				l.endedAt = time.Now().UTC()
			}
			return nil
		}
	}
	return &ErrIllegalTransition{LineID: l.id, From: l.state, To: to}
}

// CloseConnected atomically completes a bridged call. At most one caller wins
// the close for a given attempt; the winner owns returning the agent slot.
func (l *Line) CloseConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateConnected {
		return false
	}
	l.state = StateCompleted
	l.endedAt = time.Now().UTC()
	return true
}

// ForceFail moves a stuck non-idle line to failed, used by the watchdog and
// by the conflict resolver's exhausted-notification path.
func (l *Line) ForceFail() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateIdle, StateCompleted, StateFailed:
		return false
	}
	l.state = StateFailed
	return true
}

// Expired reports whether a non-idle line has passed its deadline.
func (l *Line) Expired(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateIdle || l.deadline.IsZero() {
		return false
	}
	// Connected calls are bounded by the agent, not the dial deadline.
	if l.state == StateConnected {
		return false
	}
	return now.After(l.deadline)
}

// Release returns a completed line to idle and hands back the entry.
func (l *Line) Release() (*domain.QueueEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateCompleted {
		return nil, &ErrIllegalTransition{LineID: l.id, From: l.state, To: StateIdle}
	}
	entry := l.entry
	l.state = StateIdle
	l.entry = nil
	l.handle = ""
	l.deadline = time.Time{}
	return entry, nil
}

// TalkTime is the connected duration of the current attempt.
func (l *Line) TalkTime() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connectedAt.IsZero() {
		return 0
	}
	end := l.endedAt
	if end.IsZero() {
		end = time.Now().UTC()
	}
	return end.Sub(l.connectedAt)
}

// Snapshot captures the line for observers.
func (l *Line) Snapshot() View {
	l.mu.Lock()
	defer l.mu.Unlock()

	v := View{ID: l.id, State: l.state, Handle: l.handle}
	if l.entry != nil {
		v.ContactID = l.entry.ContactID.String()
		v.Phone = l.entry.Phone
	}
	if !l.startedAt.IsZero() {
		t := l.startedAt
		v.StartedAt = &t
	}
	if !l.connectedAt.IsZero() {
		t := l.connectedAt
		v.ConnectedAt = &t
	}
	if !l.deadline.IsZero() {
		t := l.deadline
		v.Deadline = &t
	}
	return v
}
