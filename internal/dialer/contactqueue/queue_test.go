package contactqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/parallel-dialer/internal/domain"
)

func entry(priority int) domain.QueueEntry {
	return domain.QueueEntry{ContactID: uuid.New(), Phone: "+15550000000", Priority: priority}
}

func TestTakeNextPriorityThenInsertionOrder(t *testing.T) {
	q := New()
	low := entry(1)
	highFirst := entry(5)
	highSecond := entry(5)

	q.Seed([]domain.QueueEntry{low, highFirst, highSecond})

	got, ok := q.TakeNext(context.Background(), nil)
	if !ok || got.ContactID != highFirst.ContactID {
		t.Fatalf("expected first high-priority entry, got %+v", got)
	}
	got, ok = q.TakeNext(context.Background(), nil)
	if !ok || got.ContactID != highSecond.ContactID {
		t.Fatalf("expected second high-priority entry, got %+v", got)
	}
	got, ok = q.TakeNext(context.Background(), nil)
	if !ok || got.ContactID != low.ContactID {
		t.Fatalf("expected low-priority entry, got %+v", got)
	}
	if _, ok := q.TakeNext(context.Background(), nil); ok {
		t.Fatal("expected empty queue")
	}
}

// With priority ordering disabled the queue is strictly first-in first-out,
// regardless of entry priorities.
func TestInsertionOrderWhenPriorityDisabled(t *testing.T) {
	q := New(WithPriorityOrdering(false))
	first := entry(1)
	second := entry(9)
	third := entry(5)
	q.Seed([]domain.QueueEntry{first, second, third})

	for i, want := range []uuid.UUID{first.ContactID, second.ContactID, third.ContactID} {
		got, ok := q.TakeNext(context.Background(), nil)
		if !ok || got.ContactID != want {
			t.Fatalf("position %d: expected insertion-order entry %s, got %+v", i, want, got)
		}
	}
}

func TestDuplicateContactsDropped(t *testing.T) {
	q := New()
	e := entry(1)
	if added := q.Seed([]domain.QueueEntry{e, e}); added != 1 {
		t.Fatalf("expected 1 entry added, got %d", added)
	}
	if !q.Push(entry(1)) {
		t.Fatal("distinct contact should be accepted")
	}
	if q.Push(e) {
		t.Fatal("duplicate contact should be rejected")
	}
}

func TestRequeueDelaysEligibility(t *testing.T) {
	q := New()
	e := entry(1)
	q.Requeue(e, time.Hour)

	if _, ok := q.TakeNext(context.Background(), nil); ok {
		t.Fatal("entry should be held until due")
	}
	if q.Len() != 1 {
		t.Fatalf("entry should remain queued, len=%d", q.Len())
	}

	// Force the clock past the hold.
	q.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, ok := q.TakeNext(context.Background(), nil); !ok {
		t.Fatal("entry should be due after the delay")
	}
}

func TestRemove(t *testing.T) {
	q := New()
	e := entry(1)
	q.Push(e)

	if !q.Remove(e.ContactID) {
		t.Fatal("expected removal of queued contact")
	}
	if q.Remove(e.ContactID) {
		t.Fatal("second removal should report absence")
	}
	if _, ok := q.TakeNext(context.Background(), nil); ok {
		t.Fatal("removed contact must not be dequeued")
	}
}

func TestIneligibleEntriesSkipped(t *testing.T) {
	q := New()
	blocked := entry(5)
	open := entry(1)
	q.Seed([]domain.QueueEntry{blocked, open})

	eligible := func(ctx context.Context, e *domain.QueueEntry) bool {
		return e.ContactID != blocked.ContactID
	}

	got, ok := q.TakeNext(context.Background(), eligible)
	if !ok || got.ContactID != open.ContactID {
		t.Fatalf("expected the eligible entry, got %+v ok=%v", got, ok)
	}
	if q.Len() != 1 {
		t.Fatalf("ineligible entry must stay queued, len=%d", q.Len())
	}
}

// Each entry is returned to at most one concurrent caller.
func TestNoDuplicateDequeueUnderConcurrency(t *testing.T) {
	q := New()
	const n = 200
	for i := 0; i < n; i++ {
		q.Push(entry(i % 7))
	}

	var mu sync.Mutex
	seen := make(map[uuid.UUID]int)

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				e, ok := q.TakeNext(context.Background(), nil)
				if !ok {
					return
				}
				mu.Lock()
				seen[e.ContactID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("expected %d distinct entries dequeued, got %d", n, len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("contact %s dequeued %d times", id, count)
		}
	}
}
