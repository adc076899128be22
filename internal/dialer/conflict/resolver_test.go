package conflict

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/acme/parallel-dialer/internal/telephony"
	apperrors "github.com/acme/parallel-dialer/pkg/errors"
)

func TestSingleSlotAdmitsExactlyOne(t *testing.T) {
	r := NewResolver(1, nil)

	const racers = 8
	var wg sync.WaitGroup
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- r.TryAcquire()
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for w := range wins {
		if w {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("%d racers acquired the single slot, want exactly 1", won)
	}

	r.Release()
	if !r.TryAcquire() {
		t.Fatal("slot should be reusable after release")
	}
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	r := NewResolver(2, nil)
	r.Release()
	r.Release()
	if r.InUse() != 0 {
		t.Fatalf("inUse = %d, want 0", r.InUse())
	}
	if !r.TryAcquire() || !r.TryAcquire() {
		t.Fatal("capacity should be intact after spurious releases")
	}
	if r.TryAcquire() {
		t.Fatal("third acquire should fail at capacity 2")
	}
}

type flakyNotifier struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyNotifier) NotifyRejected(ctx context.Context, campaignID uuid.UUID, lineID int, handle telephony.CallHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("backend unavailable")
	}
	return nil
}

func TestNotifyRejectionRetriesThenSucceeds(t *testing.T) {
	n := &flakyNotifier{failures: 2}
	r := NewResolver(1, n)
	r.policy.InitialInterval = 1
	r.policy.MaxInterval = 1

	if err := r.NotifyRejection(context.Background(), uuid.New(), 3, "call-1"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if n.calls != 3 {
		t.Fatalf("notifier called %d times, want 3", n.calls)
	}
}

func TestNotifyRejectionExhaustsBudget(t *testing.T) {
	n := &flakyNotifier{failures: 100}
	r := NewResolver(1, n)
	r.policy.InitialInterval = 1
	r.policy.MaxInterval = 1
	r.policy.MaxAttempts = 3

	err := r.NotifyRejection(context.Background(), uuid.New(), 3, "call-1")
	if !errors.Is(err, apperrors.ErrConflictNotify) {
		t.Fatalf("expected ErrConflictNotify, got %v", err)
	}
	if n.calls != 3 {
		t.Fatalf("notifier called %d times, want 3", n.calls)
	}
}
