package advisor

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/forts-trader/internal/domain"
)

// Board keeps the latest advice per security and wakes long-poll waiters
// when a newer one arrives. It is the server half of the advisor/trader
// split transport.
type Board struct {
	mu     sync.Mutex
	latest map[string]domain.Advice
	notify chan struct{}
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{
		latest: make(map[string]domain.Advice),
		notify: make(chan struct{}),
	}
}

// Publish records the advice and wakes every waiter.
func (b *Board) Publish(advice domain.Advice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest[advice.SecurityCode] = advice
	close(b.notify)
	b.notify = make(chan struct{})
}

// Latest returns the most recent advice for a security, if any.
func (b *Board) Latest(security string) (domain.Advice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	advice, ok := b.latest[security]
	return advice, ok
}

// Wait blocks until an advice newer than since is available for the
// security, the timeout elapses, or ctx is canceled. It returns nil when no
// newer advice arrived in time.
func (b *Board) Wait(ctx context.Context, security string, since time.Time, timeout time.Duration) *domain.Advice {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		b.mu.Lock()
		advice, ok := b.latest[security]
		wake := b.notify
		b.mu.Unlock()

		if ok && advice.Time.After(since) {
			return &advice
		}

		select {
		case <-wake:
		case <-deadline.C:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
