package advisor

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/forts-trader/internal/domain"
)

// CandleHub is an in-process candle fan-out fed over HTTP in the split
// deployment: the trader publishes terminal candles, the pipelines consume
// them. Publishing never blocks; each subscriber drains its own unbounded
// buffer so a slow pipeline cannot stall ingestion or lose candles.
type CandleHub struct {
	mu   sync.Mutex
	subs map[string][]*hubSubscription
	log  zerolog.Logger
}

type hubSubscription struct {
	mu      sync.Mutex
	pending []domain.Candle
	wake    chan struct{}
}

// NewCandleHub creates an empty hub.
func NewCandleHub(log zerolog.Logger) *CandleHub {
	return &CandleHub{
		subs: make(map[string][]*hubSubscription),
		log:  log.With().Str("component", "candle_hub").Logger(),
	}
}

// Publish appends candles to every matching subscription buffer.
func (h *CandleHub) Publish(candles []domain.Candle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, candle := range candles {
		for _, sub := range h.subs[candle.SecurityCode] {
			sub.push(candle)
		}
	}
}

// Candles subscribes to one security. The returned channel preserves
// publish order and is closed when ctx is canceled.
func (h *CandleHub) Candles(ctx context.Context, security string) (<-chan domain.Candle, error) {
	sub := &hubSubscription{wake: make(chan struct{}, 1)}

	h.mu.Lock()
	h.subs[security] = append(h.subs[security], sub)
	h.mu.Unlock()

	out := make(chan domain.Candle)
	go func() {
		defer close(out)
		defer h.unsubscribe(security, sub)
		for {
			for _, candle := range sub.drain() {
				select {
				case out <- candle:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-sub.wake:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (h *CandleHub) unsubscribe(security string, sub *hubSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subs[security]
	for i, candidate := range subs {
		if candidate == sub {
			h.subs[security] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (s *hubSubscription) push(candle domain.Candle) {
	s.mu.Lock()
	s.pending = append(s.pending, candle)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *hubSubscription) drain() []domain.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.pending
	s.pending = nil
	return pending
}
