package execution

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/forts-trader/internal/domain"
	"github.com/aristath/forts-trader/internal/events"
)

const (
	defaultSlippage = 0.001

	// minOrderInterval guards against reacting to a position that the broker
	// terminal has not refreshed yet after the previous order.
	minOrderInterval = time.Minute

	// recheckDelay is how long after an order the position is re-verified.
	recheckDelay = 30 * time.Second
)

// PositionUpdate notifies the monitor that a tracked position changed.
type PositionUpdate struct {
	Portfolio string
	Security  string
	Tracked   int
}

// PositionSnapshot is one row of the engine status.
type PositionSnapshot struct {
	Portfolio string
	Security  string
	Tracked   int
	Required  float64
	Broker    int
}

// HasDrift reports whether the broker disagrees with the tracked position.
func (s PositionSnapshot) HasDrift() bool {
	return s.Tracked != s.Broker
}

type positionState struct {
	portfolio     string
	security      string
	tracked       int
	required      float64
	lastOrderTime time.Time
}

// Engine owns all broker-session state. A single goroutine reads the mailbox
// and applies messages in order, so no state is shared across goroutines.
type Engine struct {
	broker   domain.Broker
	journal  *Repository
	events   *events.Manager
	slippage float64

	mailbox   chan message
	positions map[string]*positionState
	updates   chan<- PositionUpdate
	now       func() time.Time
	schedule  func(d time.Duration, f func())
	log       zerolog.Logger
}

// NewEngine creates the execution engine. updates may be nil when no monitor
// is attached; journal may be nil to skip the order journal.
func NewEngine(
	broker domain.Broker,
	journal *Repository,
	eventManager *events.Manager,
	updates chan<- PositionUpdate,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		broker:    broker,
		journal:   journal,
		events:    eventManager,
		slippage:  defaultSlippage,
		mailbox:   make(chan message, 64),
		positions: make(map[string]*positionState),
		updates:   updates,
		now:       time.Now,
		schedule:  func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		log:       log.With().Str("component", "execution").Logger(),
	}
}

// Init seeds the tracked positions from the broker. Called before Run.
func (e *Engine) Init(portfolio string, securities []string) error {
	for _, security := range securities {
		position, err := e.broker.Position(portfolio, security)
		if err != nil {
			return fmt.Errorf("failed to read position %s: %w", security, err)
		}
		e.log.Info().
			Str("portfolio", portfolio).
			Str("security", security).
			Int("position", position).
			Msg("Init position")
		e.positions[positionKey(portfolio, security)] = &positionState{
			portfolio: portfolio,
			security:  security,
			tracked:   position,
		}
	}
	return nil
}

// Run processes the mailbox until the context is canceled.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-e.mailbox:
			e.dispatch(msg)
		}
	}
}

// OpenPosition asks the engine to move the security towards the target
// position.
func (e *Engine) OpenPosition(portfolio, security string, price, position float64) {
	e.mailbox <- openPositionMsg{
		Portfolio: portfolio,
		Security:  security,
		Price:     price,
		Position:  position,
	}
}

// Snapshot returns the current position status.
func (e *Engine) Snapshot(ctx context.Context) ([]PositionSnapshot, error) {
	reply := make(chan []PositionSnapshot, 1)
	select {
	case e.mailbox <- snapshotMsg{Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case snapshot := <-reply:
		return snapshot, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) dispatch(msg message) {
	switch m := msg.(type) {
	case openPositionMsg:
		e.handleOpenPosition(m)
	case recheckMsg:
		e.checkPosition(m.Portfolio, m.Security)
	case snapshotMsg:
		m.Reply <- e.snapshot()
	}
}

func (e *Engine) handleOpenPosition(msg openPositionMsg) {
	state, ok := e.positions[positionKey(msg.Portfolio, msg.Security)]
	if !ok {
		return
	}
	state.required = msg.Position

	volume := int(math.Round(msg.Position)) - state.tracked
	if volume == 0 {
		return
	}

	// The terminal position may lag behind the previous order.
	if !e.now().After(state.lastOrderTime.Add(minOrderInterval)) {
		e.log.Info().
			Str("security", msg.Security).
			Msg("Skip advice: too fast")
		return
	}

	if !e.checkPosition(msg.Portfolio, msg.Security) {
		return
	}

	price := limitPrice(msg.Price, volume, e.slippage)
	e.log.Info().
		Str("portfolio", msg.Portfolio).
		Str("security", msg.Security).
		Float64("price", price).
		Int("volume", volume).
		Msg("Register order")

	orderID, err := e.broker.SubmitOrder(msg.Portfolio, msg.Security, volume, price)
	if err != nil {
		// The tracked position stays put so the next advice retries the delta.
		e.log.Error().Err(err).Str("security", msg.Security).Msg("Register order error")
		return
	}

	e.events.Emit(events.OrderSubmitted, "execution", map[string]interface{}{
		"portfolio": msg.Portfolio,
		"security":  msg.Security,
		"volume":    volume,
		"price":     price,
		"order_id":  orderID,
	})
	if e.journal != nil {
		record := OrderRecord{
			Time:      e.now(),
			Portfolio: msg.Portfolio,
			Security:  msg.Security,
			Volume:    volume,
			Price:     price,
			OrderID:   orderID,
		}
		if err := e.journal.SaveOrder(record); err != nil {
			e.log.Error().Err(err).Msg("Failed to journal order")
		}
	}

	// The terminal reflects the fill with a delay, so the tracked position
	// moves forward right away and is re-verified later.
	state.lastOrderTime = e.now()
	state.tracked += volume
	e.notifyUpdate(state)

	portfolio, security := msg.Portfolio, msg.Security
	e.schedule(recheckDelay, func() {
		e.mailbox <- recheckMsg{Portfolio: portfolio, Security: security}
	})
}

// checkPosition compares the tracked position with the broker and reports
// drift. On mismatch it warns and the caller must not trade.
func (e *Engine) checkPosition(portfolio, security string) bool {
	state, ok := e.positions[positionKey(portfolio, security)]
	if !ok {
		return false
	}

	brokerPosition, err := e.broker.Position(portfolio, security)
	if err != nil {
		e.log.Error().Err(err).Str("security", security).Msg("Failed to read broker position")
		return false
	}
	if state.tracked == brokerPosition {
		return true
	}

	e.log.Warn().
		Str("portfolio", portfolio).
		Str("security", security).
		Int("tracked", state.tracked).
		Int("broker", brokerPosition).
		Msg("Wrong position")
	e.events.Emit(events.PositionDrift, "execution", map[string]interface{}{
		"portfolio": portfolio,
		"security":  security,
		"tracked":   state.tracked,
		"broker":    brokerPosition,
	})
	return false
}

func (e *Engine) snapshot() []PositionSnapshot {
	result := make([]PositionSnapshot, 0, len(e.positions))
	for _, state := range e.positions {
		brokerPosition, err := e.broker.Position(state.portfolio, state.security)
		if err != nil {
			e.log.Error().Err(err).Str("security", state.security).Msg("Failed to read broker position")
			brokerPosition = state.tracked
		}
		result = append(result, PositionSnapshot{
			Portfolio: state.portfolio,
			Security:  state.security,
			Tracked:   state.tracked,
			Required:  state.required,
			Broker:    brokerPosition,
		})
	}
	return result
}

func (e *Engine) notifyUpdate(state *positionState) {
	if e.updates == nil {
		return
	}
	select {
	case e.updates <- PositionUpdate{
		Portfolio: state.portfolio,
		Security:  state.security,
		Tracked:   state.tracked,
	}:
	default:
	}
}

// limitPrice shifts the advice price by the slippage in the direction of the
// trade so the limit order fills like a market order, then rounds to a whole
// price step.
func limitPrice(price float64, volume int, slippage float64) float64 {
	if volume > 0 {
		price = price * (1 + slippage)
	} else {
		price = price * (1 - slippage)
	}
	return math.Round(price)
}

func positionKey(portfolio, security string) string {
	return portfolio + "#" + security
}
