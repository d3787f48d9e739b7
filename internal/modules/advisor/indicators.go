package advisor

import (
	"math"
	"time"

	"github.com/markcheno/go-talib"

	"github.com/aristath/forts-trader/internal/domain"
	"github.com/aristath/forts-trader/pkg/dates"
)

// volatilityPeriod is the number of intraday log-returns used to estimate
// realized volatility. The estimate is scaled by sqrt(volatilityPeriod) to a
// daily-equivalent figure.
const volatilityPeriod = 100

// rebalanceCheckpoints are the fixed intraday times at which the slow-moving
// ratio filters recompute, in addition to session starts.
var rebalanceCheckpoints = []time.Duration{
	12*time.Hour + 30*time.Minute,
	16*time.Hour + 30*time.Minute,
}

// rebalanceClock reports whether the step from the previous candle to the
// current one crossed an intraday checkpoint.
type rebalanceClock struct {
	last *time.Time
	due  bool
}

func (r *rebalanceClock) Add(t time.Time) {
	due := false
	if r.last != nil {
		for _, checkpoint := range rebalanceCheckpoints {
			if dates.TimeOfDay(*r.last) < checkpoint && checkpoint <= dates.TimeOfDay(t) {
				due = true
				break
			}
		}
	}
	r.due = due
	stamp := t
	r.last = &stamp
}

func (r *rebalanceClock) Due() bool {
	return r.due
}

// volatilityEstimator accumulates log-returns across same-session
// consecutive candles and turns them into a target-vol / realized-vol ratio.
// The ratio is capped at 1: low realized volatility never levers a position
// up.
type volatilityEstimator struct {
	target float64
	scale  float64
	buffer []float64
	ratio  float64
	last   *domain.Candle
}

func newVolatilityEstimator(target float64) *volatilityEstimator {
	return &volatilityEstimator{
		target: target,
		scale:  math.Sqrt(volatilityPeriod),
		buffer: make([]float64, 0, 2*volatilityPeriod),
		ratio:  1,
	}
}

func (v *volatilityEstimator) Add(c domain.Candle) {
	if v.last != nil &&
		dates.IsMainSession(c.Time) &&
		!dates.IsNewDay(v.last.Time, c.Time) {
		v.buffer = append(v.buffer, math.Log(c.ClosePrice/v.last.ClosePrice))
		if len(v.buffer) >= 2*volatilityPeriod {
			v.buffer = v.buffer[len(v.buffer)-volatilityPeriod:]
		}
	}
	prev := c
	v.last = &prev
}

// Value recomputes the ratio when enough returns are buffered, otherwise it
// holds the last computed value.
func (v *volatilityEstimator) Value() float64 {
	if len(v.buffer) >= volatilityPeriod {
		window := v.buffer[len(v.buffer)-volatilityPeriod:]
		realized := v.scale * rollingStdDev(window)
		v.ratio = math.Min(1, v.target/realized)
	}
	return v.ratio
}

// windowHigh returns the maximum of the rolling close window.
func windowHigh(closes []float64) float64 {
	if len(closes) < 2 {
		return closes[0]
	}
	max := talib.Max(closes, len(closes))
	return max[len(max)-1]
}

// windowLow returns the minimum of the rolling close window.
func windowLow(closes []float64) float64 {
	if len(closes) < 2 {
		return closes[0]
	}
	min := talib.Min(closes, len(closes))
	return min[len(min)-1]
}

// rollingStdDev is the population standard deviation over the whole window.
func rollingStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	dev := talib.StdDev(values, len(values), 1)
	return dev[len(dev)-1]
}
