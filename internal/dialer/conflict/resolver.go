package conflict

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/acme/parallel-dialer/internal/telephony"
	"github.com/acme/parallel-dialer/pkg/backoff"
	apperrors "github.com/acme/parallel-dialer/pkg/errors"
)

// Notifier informs the arbitration backend that a connected human was
// rejected for lack of an agent. Delivery is at-least-once: losing this
// notification would leave the far side believing the line is still busy.
type Notifier interface {
	NotifyRejected(ctx context.Context, campaignID uuid.UUID, lineID int, handle telephony.CallHandle) error
}

// Resolver defends the invariant that at most one line is connected per
// available agent slot. The check-and-acquire is a single critical section,
// so simultaneous human-detected events cannot both win the last slot.
type Resolver struct {
	mu       sync.Mutex
	capacity int
	inUse    int

	notifier Notifier
	policy   backoff.Policy
}

// NewResolver creates a resolver for the given agent capacity.
func NewResolver(capacity int, notifier Notifier) *Resolver {
	if capacity < 1 {
		capacity = 1
	}
	return &Resolver{
		capacity: capacity,
		notifier: notifier,
		policy:   backoff.DefaultPolicy(),
	}
}

// TryAcquire atomically claims an agent slot. It returns false when every
// slot is taken; the caller must then reject the call.
func (r *Resolver) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inUse >= r.capacity {
		return false
	}
	r.inUse++
	return true
}

// Release frees a previously acquired slot.
func (r *Resolver) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inUse > 0 {
		r.inUse--
	}
}

// InUse reports the number of occupied agent slots.
func (r *Resolver) InUse() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inUse
}

// Capacity reports the agent slot count.
func (r *Resolver) Capacity() int { return r.capacity }

// NotifyRejection delivers the rejection to the backend, retrying with
// exponential backoff. After the attempt budget is exhausted it returns
// ErrConflictNotify; the caller force-releases the line and raises an
// operational alert.
func (r *Resolver) NotifyRejection(ctx context.Context, campaignID uuid.UUID, lineID int, handle telephony.CallHandle) error {
	if r.notifier == nil {
		return nil
	}

	err := backoff.Retry(ctx, r.policy, func() error {
		return r.notifier.NotifyRejected(ctx, campaignID, lineID, handle)
	})
	if err != nil {
		return fmt.Errorf("%w: line %d: %v", apperrors.ErrConflictNotify, lineID, err)
	}
	return nil
}
