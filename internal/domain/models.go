package domain

import (
	"context"
	"time"
)

// Direction constrains the sign of positions a strategy may take.
type Direction int

const (
	DirectionBoth  Direction = 0
	DirectionLong  Direction = 1
	DirectionShort Direction = -1
)

// Candle is a single per-security OHLC sample reduced to the fields the
// pipeline consumes. Candles for one security arrive in strictly increasing
// timestamp order; consumers discard anything else.
type Candle struct {
	SecurityCode string    `json:"security_code"`
	Time         time.Time `json:"time"`
	ClosePrice   float64   `json:"close_price"`
	Volume       float64   `json:"volume"`
}

// Advice is the desired normalized exposure for a security at a point in
// time. Position is a ratio (typically within [-1, 1] before leverage), not
// a lot count.
type Advice struct {
	SecurityCode string    `json:"security_code"`
	Time         time.Time `json:"time"`
	Price        float64   `json:"price"`
	Position     float64   `json:"position"`
}

// WithPosition returns a copy of the advice carrying a different position.
func (a Advice) WithPosition(position float64) Advice {
	return Advice{
		SecurityCode: a.SecurityCode,
		Time:         a.Time,
		Price:        a.Price,
		Position:     position,
	}
}

// StrategyConfig holds the per-security strategy parameters. Immutable for
// the life of a run.
type StrategyConfig struct {
	Name          string    `yaml:"name"`
	SecurityCode  string    `yaml:"security"`
	Lever         float64   `yaml:"lever"`
	Weight        float64   `yaml:"weight"`
	StdVolatility float64   `yaml:"std_volatility"`
	Direction     Direction `yaml:"direction"`
}

// Defaults fills zero-valued knobs with the values assumed elsewhere.
func (c StrategyConfig) Defaults() StrategyConfig {
	if c.Lever == 0 {
		c.Lever = 1
	}
	if c.Weight == 0 {
		c.Weight = 1
	}
	if c.StdVolatility == 0 {
		c.StdVolatility = 0.006
	}
	return c
}

// Advisor turns candles into advices. Apply returns nil while the pipeline
// is warming up or the candle falls outside the tradable session. An Advisor
// is stateful and must be driven by a single goroutine.
type Advisor interface {
	Apply(candle Candle) *Advice
}

// CandleService streams live candles for one security. The returned channel
// preserves producer order and is closed when the context is canceled or the
// stream completes.
type CandleService interface {
	Candles(ctx context.Context, security string) (<-chan Candle, error)
}

// AdvisorSource exposes the advice stream the execution engine consumes.
type AdvisorSource interface {
	Securities() ([]string, error)
	Advices(ctx context.Context, security string) (<-chan Advice, error)
}

// Broker is the confirmed-state side of the trading gateway. Positions are
// integer lots, positive volume means buy.
type Broker interface {
	Position(portfolio, security string) (int, error)
	Amount(portfolio string) (float64, error)
	SubmitOrder(portfolio, security string, volume int, price float64) (string, error)
}
