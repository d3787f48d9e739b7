// Package advisor implements the signal pipeline: a stack of stateful
// filters turning a per-security candle stream into desired-position advice.
package advisor

import (
	"math"

	"github.com/aristath/forts-trader/internal/domain"
	"github.com/aristath/forts-trader/pkg/dates"
	"github.com/aristath/forts-trader/pkg/formulas"
)

const (
	// breakoutWindow is the number of session-closing prices in the channel
	// breakout window.
	breakoutWindow = 20

	// trendWindow is the maximum number of rebalance-time closes kept by the
	// trend filter.
	trendWindow = 3 * breakoutWindow

	// defaultMaxStep bounds how far the emitted position may move between
	// two consecutive advices.
	defaultMaxStep = 0.5
)

// stage transforms the advice produced by the stage below it. Stages only
// see candles that produced an advice: a nil from the base signal skips the
// whole stack for that candle.
type stage interface {
	apply(c domain.Candle, a domain.Advice) domain.Advice
}

// channelBreakout is the base signal. It keeps a rolling window of
// session-closing prices and, at rebalance events, positions off the window
// high, low and midpoint. It emits nothing until it has seen two candles,
// ignores candles outside the main session, and refuses to advance on a
// non-increasing timestamp.
type channelBreakout struct {
	last   *domain.Candle
	ratio  float64
	clock  rebalanceClock
	closes []float64
}

func (f *channelBreakout) Apply(c domain.Candle) *domain.Advice {
	if f.last == nil {
		prev := c
		f.last = &prev
		return nil
	}
	if !c.Time.After(f.last.Time) {
		return nil
	}
	if !dates.IsMainSession(c.Time) {
		prev := c
		f.last = &prev
		return nil
	}

	if dates.IsNewDay(f.last.Time, c.Time) {
		f.closes = append(f.closes, c.ClosePrice)
		if len(f.closes) > breakoutWindow {
			f.closes = f.closes[1:]
		}
	}

	f.clock.Add(c.Time)
	if f.clock.Due() && len(f.closes) > 0 {
		high := windowHigh(f.closes)
		low := windowLow(f.closes)
		mid := low + 0.5*(high-low)
		switch {
		case c.ClosePrice >= high:
			f.ratio = 1
		case c.ClosePrice <= low:
			f.ratio = -1
		case c.ClosePrice > mid:
			f.ratio = math.Max(0, f.ratio)
		case c.ClosePrice < mid:
			f.ratio = math.Min(0, f.ratio)
		}
	}

	prev := c
	f.last = &prev
	return &domain.Advice{
		SecurityCode: c.SecurityCode,
		Time:         c.Time,
		Price:        c.ClosePrice,
		Position:     f.ratio,
	}
}

// composite averages the positions of several base signals, withholding
// advice whenever any constituent does. Every constituent sees every candle
// so their state stays in lockstep.
type composite struct {
	parts []domain.Advisor
}

func (f *composite) Apply(c domain.Candle) *domain.Advice {
	advices := make([]*domain.Advice, len(f.parts))
	for i, part := range f.parts {
		advices[i] = part.Apply(c)
	}
	sum := 0.0
	for _, a := range advices {
		if a == nil {
			return nil
		}
		sum += a.Position
	}
	return &domain.Advice{
		SecurityCode: c.SecurityCode,
		Time:         c.Time,
		Price:        c.ClosePrice,
		Position:     sum / float64(len(f.parts)),
	}
}

// trendControl scales positions by how trending the recent rebalance-time
// closes are: flat channels shrink the position, wide ones keep most of it.
type trendControl struct {
	ratio  float64
	last   *domain.Candle
	clock  rebalanceClock
	closes []float64
}

func newTrendControl() *trendControl {
	return &trendControl{ratio: 1}
}

func (f *trendControl) apply(c domain.Candle, a domain.Advice) domain.Advice {
	f.clock.Add(c.Time)
	if (f.last != nil && dates.IsNewDay(f.last.Time, c.Time)) || f.clock.Due() {
		f.closes = append(f.closes, c.ClosePrice)
		if len(f.closes) > trendWindow {
			f.closes = f.closes[1:]
		}
		high := windowHigh(f.closes)
		low := windowLow(f.closes)
		f.ratio = 0.34 + formulas.InterpolateLinear(math.Log(high/low), 0.025, 0.05, 0, 0.66)
	}
	prev := c
	f.last = &prev
	return a.WithPosition(a.Position * f.ratio)
}

// volatilityControl scales positions by target over realized volatility,
// recomputed at rebalance events only.
type volatilityControl struct {
	estimator *volatilityEstimator
	clock     rebalanceClock
	last      *domain.Candle
	ratio     float64
}

func newVolatilityControl(targetVolatility float64) *volatilityControl {
	return &volatilityControl{
		estimator: newVolatilityEstimator(targetVolatility),
		ratio:     1,
	}
}

func (f *volatilityControl) apply(c domain.Candle, a domain.Advice) domain.Advice {
	f.estimator.Add(c)
	f.clock.Add(c.Time)
	if (f.last != nil && dates.IsNewDay(f.last.Time, c.Time)) || f.clock.Due() {
		f.ratio = f.estimator.Value()
	}
	prev := c
	f.last = &prev
	return a.WithPosition(a.Position * f.ratio)
}

// directionClamp restricts positions to one side for long-only or
// short-only configurations.
type directionClamp struct {
	direction domain.Direction
}

func (f directionClamp) apply(_ domain.Candle, a domain.Advice) domain.Advice {
	position := a.Position
	switch f.direction {
	case domain.DirectionLong:
		position = math.Max(0, position)
	case domain.DirectionShort:
		position = math.Min(0, position)
	}
	return a.WithPosition(position)
}

// slewLimiter ratchets the emitted position towards the raw one by at most
// maxStep per candle, so a signal flip turns into a staged entry.
type slewLimiter struct {
	maxStep float64
	ratio   float64
}

func (f *slewLimiter) apply(_ domain.Candle, a domain.Advice) domain.Advice {
	f.ratio = math.Max(f.ratio-f.maxStep, math.Min(f.ratio+f.maxStep, a.Position))
	return a.WithPosition(f.ratio)
}

// leverScale applies the static lever times weight factor from the strategy
// configuration.
type leverScale struct {
	factor float64
}

func (f leverScale) apply(_ domain.Candle, a domain.Advice) domain.Advice {
	return a.WithPosition(a.Position * f.factor)
}
