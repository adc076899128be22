package contactqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acme/parallel-dialer/internal/domain"
)

// EligibilityFunc decides at pop time whether an entry may be dialed.
type EligibilityFunc func(ctx context.Context, entry *domain.QueueEntry) bool

// Queue holds the ordered, de-duplicated set of contacts eligible for a
// running campaign. All operations are safe under concurrent callers; the
// pop is a single critical section so no entry is ever handed to two lines.
type Queue struct {
	mu         sync.Mutex
	entries    []*domain.QueueEntry
	index      map[uuid.UUID]struct{}
	seq        uint64
	order      map[uuid.UUID]uint64
	byPriority bool
	now        func() time.Time
}

// Option configures a queue.
type Option func(*Queue)

// WithPriorityOrdering toggles priority-descending dial order. Disabled, the
// queue hands contacts out in pure insertion order.
func WithPriorityOrdering(enabled bool) Option {
	return func(q *Queue) { q.byPriority = enabled }
}

// New creates an empty queue, priority-ordered by default.
func New(opts ...Option) *Queue {
	q := &Queue{
		index:      make(map[uuid.UUID]struct{}),
		order:      make(map[uuid.UUID]uint64),
		byPriority: true,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Seed loads the initial contact set. Duplicate contact ids are dropped.
func (q *Queue) Seed(entries []domain.QueueEntry) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	added := 0
	for i := range entries {
		if q.insertLocked(entries[i]) {
			added++
		}
	}
	return added
}

// Push adds a single entry, ignoring duplicates.
func (q *Queue) Push(entry domain.QueueEntry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.insertLocked(entry)
}

// TakeNext atomically removes and returns the highest-priority eligible entry
// (priority descending, insertion order as tie-break; pure insertion order
// when priority ordering is disabled). Entries whose nextEligibleAt lies in
// the future are skipped until due. Returns false on an empty or
// fully-ineligible queue; that is not an error.
func (q *Queue) TakeNext(ctx context.Context, eligible EligibilityFunc) (*domain.QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for i, entry := range q.entries {
		if !entry.Due(now) {
			continue
		}
		if eligible != nil && !eligible(ctx, entry) {
			continue
		}

		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		delete(q.index, entry.ContactID)
		delete(q.order, entry.ContactID)
		return entry, true
	}
	return nil, false
}

// Requeue re-inserts an entry with nextEligibleAt pushed out by delay.
func (q *Queue) Requeue(entry domain.QueueEntry, delay time.Duration) bool {
	due := q.now().Add(delay)
	entry.NextEligibleAt = &due

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.insertLocked(entry)
}

// Remove drops a contact from the live queue, used when a contact opts into
// DNC mid-campaign.
func (q *Queue) Remove(contactID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.index[contactID]; !ok {
		return false
	}
	for i, entry := range q.entries {
		if entry.ContactID == contactID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	delete(q.index, contactID)
	delete(q.order, contactID)
	return true
}

// Len reports the number of queued entries, due or not.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot returns a copy of the queued entries in dial order.
func (q *Queue) Snapshot() []domain.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.QueueEntry, 0, len(q.entries))
	for _, entry := range q.entries {
		out = append(out, *entry)
	}
	return out
}

// Flush empties the queue and returns the discarded entries.
func (q *Queue) Flush() []domain.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.QueueEntry, 0, len(q.entries))
	for _, entry := range q.entries {
		out = append(out, *entry)
	}
	q.entries = nil
	q.index = make(map[uuid.UUID]struct{})
	q.order = make(map[uuid.UUID]uint64)
	return out
}

func (q *Queue) insertLocked(entry domain.QueueEntry) bool {
	if _, dup := q.index[entry.ContactID]; dup {
		return false
	}

	q.seq++
	q.order[entry.ContactID] = q.seq
	q.index[entry.ContactID] = struct{}{}

	e := entry
	q.entries = append(q.entries, &e)
	if !q.byPriority {
		// Appends already arrive in insertion order.
		return true
	}
	sort.SliceStable(q.entries, func(i, j int) bool {
		a, b := q.entries[i], q.entries[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return q.order[a.ContactID] < q.order[b.ContactID]
	})
	return true
}
