package line

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/parallel-dialer/internal/domain"
)

func testEntry() *domain.QueueEntry {
	return &domain.QueueEntry{ContactID: uuid.New(), Phone: "+15550001111"}
}

func TestAssignOnlyFromIdle(t *testing.T) {
	l := New(1)
	deadline := time.Now().Add(time.Minute)

	if err := l.Assign(testEntry(), deadline); err != nil {
		t.Fatalf("assign from idle: %v", err)
	}
	if l.State() != StateDialing {
		t.Fatalf("state = %s, want dialing", l.State())
	}

	err := l.Assign(testEntry(), deadline)
	var illegal *ErrIllegalTransition
	if !errors.As(err, &illegal) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
}

func TestHappyPathToConnected(t *testing.T) {
	l := New(1)
	if err := l.Assign(testEntry(), time.Now().Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	l.BindHandle("call-1")

	for _, to := range []State{StateRinging, StateHumanDetected, StateConnected, StateCompleted} {
		if err := l.Transition(to); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}

	entry, err := l.Release()
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if entry == nil || l.State() != StateIdle {
		t.Fatalf("release should return entry and idle the line, state=%s", l.State())
	}
}

func TestTerminalStateCannotRegress(t *testing.T) {
	l := New(1)
	_ = l.Assign(testEntry(), time.Now().Add(time.Minute))
	_ = l.Transition(StateRinging)
	_ = l.Transition(StateNoAnswer)
	_ = l.Transition(StateCompleted)

	if err := l.Transition(StateRinging); err == nil {
		t.Fatal("completed line accepted a regression to ringing")
	}
	if err := l.Transition(StateConnected); err == nil {
		t.Fatal("completed line accepted a transition to connected")
	}
}

func TestStaleHandleDoesNotMatch(t *testing.T) {
	l := New(1)
	_ = l.Assign(testEntry(), time.Now().Add(time.Minute))
	l.BindHandle("call-current")

	if l.Matches("call-old") {
		t.Fatal("line matched a handle it does not hold")
	}
	if !l.Matches("call-current") {
		t.Fatal("line failed to match its own handle")
	}
}

func TestExpiredAndForceFail(t *testing.T) {
	l := New(1)
	_ = l.Assign(testEntry(), time.Now().Add(-time.Second))
	_ = l.Transition(StateRinging)

	if !l.Expired(time.Now()) {
		t.Fatal("overdue ringing line should be expired")
	}
	if !l.ForceFail() {
		t.Fatal("force-fail should apply to a ringing line")
	}
	if l.State() != StateFailed {
		t.Fatalf("state = %s, want failed", l.State())
	}
	if l.ForceFail() {
		t.Fatal("force-fail should be a no-op on an already failed line")
	}
}

func TestConnectedLineNeverExpires(t *testing.T) {
	l := New(1)
	_ = l.Assign(testEntry(), time.Now().Add(-time.Second))
	_ = l.Transition(StateRinging)
	_ = l.Transition(StateHumanDetected)
	_ = l.Transition(StateConnected)

	if l.Expired(time.Now()) {
		t.Fatal("a bridged call must not be watchdog-killed by the dial deadline")
	}
}

// Concurrent closers of a bridged call: exactly one wins, the rest see a
// non-connected line and must not touch the agent slot.
func TestCloseConnectedHasSingleWinner(t *testing.T) {
	l := New(1)
	if l.CloseConnected() {
		t.Fatal("close must lose on a line that never connected")
	}

	_ = l.Assign(testEntry(), time.Now().Add(time.Minute))
	_ = l.Transition(StateHumanDetected)
	_ = l.Transition(StateConnected)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.CloseConnected() {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("close won %d times, want exactly 1", wins)
	}
	if l.State() != StateCompleted {
		t.Fatalf("state = %s, want completed", l.State())
	}
	if l.CloseConnected() {
		t.Fatal("close must lose on an already completed line")
	}
}

func TestOutOfOrderAnswerFromDialing(t *testing.T) {
	// The answered webhook can beat the ringing acknowledgement.
	l := New(1)
	_ = l.Assign(testEntry(), time.Now().Add(time.Minute))
	if err := l.Transition(StateHumanDetected); err != nil {
		t.Fatalf("dialing -> human-detected should be legal: %v", err)
	}
}

func TestPoolBounds(t *testing.T) {
	if _, err := NewPool(0); err == nil {
		t.Fatal("pool size 0 should be rejected")
	}
	if _, err := NewPool(11); err == nil {
		t.Fatal("pool size 11 should be rejected")
	}

	p, err := NewPool(3)
	if err != nil {
		t.Fatal(err)
	}
	if p.Size() != 3 || len(p.Idle()) != 3 || p.Active() != 0 {
		t.Fatalf("fresh pool: size=%d idle=%d active=%d", p.Size(), len(p.Idle()), p.Active())
	}
	if p.Get(0) != nil || p.Get(4) != nil {
		t.Fatal("out-of-range ids must return nil")
	}

	_ = p.Get(2).Assign(testEntry(), time.Now().Add(time.Minute))
	if p.Active() != 1 || len(p.Idle()) != 2 {
		t.Fatalf("after one assign: active=%d idle=%d", p.Active(), len(p.Idle()))
	}
}
