// Package stats computes holding-period returns and risk statistics over
// advice streams, both for live monitoring and for backtest reports.
package stats

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/forts-trader/internal/domain"
	"github.com/aristath/forts-trader/pkg/dates"
	"github.com/aristath/forts-trader/pkg/formulas"
)

// Hpr is a holding-period return of one trading session, stored as a
// multiplier. 1.01 means the session gained one percent.
type Hpr struct {
	Date       time.Time
	Multiplier float64
}

func (h Hpr) String() string {
	return fmt.Sprintf("%s %.2f%%", h.Date.Format("2006-01-02"), (h.Multiplier-1)*100)
}

// HolidayFunc reports whether the gap between two consecutive advice
// timestamps spans a holiday.
type HolidayFunc func(l, r time.Time) bool

// RemoveHolidays zeroes the position of every advice that is immediately
// followed by a holiday gap, so holiday gaps earn nothing.
func RemoveHolidays(advices []domain.Advice, holiday HolidayFunc) []domain.Advice {
	result := make([]domain.Advice, 0, len(advices))
	for i, advice := range advices {
		if i+1 < len(advices) && holiday(advice.Time, advices[i+1].Time) {
			result = append(result, advice.WithPosition(0))
		} else {
			result = append(result, advice)
		}
	}
	return result
}

// ToHprs converts an advice stream into per-session return multipliers.
// Each consecutive advice pair contributes
//
//	(r.Price/l.Price - 1) * l.Position - slippage*|r.Position - l.Position| + 1
//
// and pair returns are compounded within one trading session.
func ToHprs(advices []domain.Advice, slippage float64) []Hpr {
	var result []Hpr
	sessionMultiplier := 1.0
	var sessionDate time.Time

	flush := func() {
		if !sessionDate.IsZero() {
			result = append(result, Hpr{Date: sessionDate, Multiplier: sessionMultiplier})
		}
		sessionMultiplier = 1.0
	}

	for i := 1; i < len(advices); i++ {
		l, r := advices[i-1], advices[i]
		pair := (r.Price/l.Price-1)*l.Position - slippage*math.Abs(r.Position-l.Position) + 1

		if !sessionDate.IsZero() && dates.IsNewSessionDate(l.Time, r.Time) {
			flush()
		}
		sessionMultiplier *= pair
		sessionDate = dates.DateOf(r.Time)
	}
	flush()
	return result
}

// WithLever scales each return by the lever.
func WithLever(hprs []Hpr, lever float64) []Hpr {
	result := make([]Hpr, len(hprs))
	for i, h := range hprs {
		result[i] = Hpr{Date: h.Date, Multiplier: 1 + lever*(h.Multiplier-1)}
	}
	return result
}

// TotalHpr compounds all returns into one multiplier.
func TotalHpr(hprs []Hpr) float64 {
	total := 1.0
	for _, h := range hprs {
		total *= h.Multiplier
	}
	return total
}

// ByPeriod compounds returns into larger periods. periodOf maps a date to the
// closing date of its period, e.g. dates.LastDayOfMonth.
func ByPeriod(hprs []Hpr, periodOf func(time.Time) time.Time) []Hpr {
	groups := make(map[time.Time]float64)
	var order []time.Time
	for _, h := range hprs {
		key := periodOf(h.Date)
		if _, ok := groups[key]; !ok {
			groups[key] = 1
			order = append(order, key)
		}
		groups[key] *= h.Multiplier
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	result := make([]Hpr, 0, len(order))
	for _, key := range order {
		result = append(result, Hpr{Date: key, Multiplier: groups[key]})
	}
	return result
}

// VerifyDates keeps only returns with strictly increasing dates. Glued
// backtests can overlap at contract boundaries; the earlier contract wins.
func VerifyDates(hprs []Hpr) []Hpr {
	result := make([]Hpr, 0, len(hprs))
	var last time.Time
	for _, h := range hprs {
		if len(result) == 0 || last.Before(h.Date) {
			result = append(result, h)
			last = h.Date
		}
	}
	return result
}

// Combine merges several return series into a weighted portfolio series over
// their overlapping date range. A series missing a date contributes zero for
// that day.
func Combine(series [][]Hpr, weights []float64) []Hpr {
	if len(series) == 0 {
		return nil
	}

	start := series[0][0].Date
	finish := series[0][len(series[0])-1].Date
	for _, s := range series[1:] {
		if s[0].Date.After(start) {
			start = s[0].Date
		}
		if s[len(s)-1].Date.Before(finish) {
			finish = s[len(s)-1].Date
		}
	}

	maps := make([]map[time.Time]float64, len(series))
	for i, s := range series {
		maps[i] = make(map[time.Time]float64, len(s))
		for _, h := range s {
			maps[i][h.Date] = h.Multiplier
		}
	}

	var result []Hpr
	for d := start; !d.After(finish); d = d.AddDate(0, 0, 1) {
		total := 0.0
		found := false
		for i, m := range maps {
			if mult, ok := m[d]; ok {
				total += (mult - 1) * weights[i]
				found = true
			}
		}
		if found {
			result = append(result, Hpr{Date: d, Multiplier: total + 1})
		}
	}
	return result
}

// StdDev is the standard deviation of the log returns.
func StdDev(hprs []Hpr) float64 {
	logs := make([]float64, len(hprs))
	for i, h := range hprs {
		logs[i] = math.Log(h.Multiplier)
	}
	return formulas.StdDev(logs)
}

// AVaR is the average return multiplier of the worst five percent of days.
// NaN when the series is too short to name a five percent tail.
func AVaR(hprs []Hpr) float64 {
	if len(hprs)-1 < 20 {
		return math.NaN()
	}

	sorted := make([]float64, len(hprs))
	for i, h := range hprs {
		sorted[i] = h.Multiplier
	}
	sort.Float64s(sorted)

	count := int(float64(len(hprs)-1) * 0.05)
	sum := 0.0
	for _, v := range sorted[:count] {
		sum += v
	}
	return sum / float64(count)
}

// RiskFunc accepts a levered return series when its risk is tolerable.
type RiskFunc func(hprs []Hpr) bool

// LimitStdDev bounds the daily log-return deviation.
func LimitStdDev(maxStdDev float64) RiskFunc {
	return func(hprs []Hpr) bool { return StdDev(hprs) <= maxStdDev }
}

// LimitAVaR bounds the average tail loss.
func LimitAVaR(minAVaR float64) RiskFunc {
	return func(hprs []Hpr) bool { return AVaR(hprs) >= minAVaR }
}

// OptimalLever scans levers from zero up to the ruin lever in a thousand
// steps and returns the largest one that maximizes total return while the
// risk limit holds. The scan assumes total return is unimodal in the lever
// and stops at the first decrease.
func OptimalLever(hprs []Hpr, risk RiskFunc) float64 {
	minMultiplier := math.Inf(1)
	for _, h := range hprs {
		minMultiplier = math.Min(minMultiplier, h.Multiplier)
	}
	maxLever := 1.0 / (1.0 - minMultiplier)

	bestHpr := 1.0
	bestLever := 0.0

	const step = 0.001
	for ratio := step; ratio <= 1; ratio += step {
		lever := maxLever * ratio
		leverHprs := WithLever(hprs, lever)
		if risk != nil && !risk(leverHprs) {
			break
		}
		hpr := TotalHpr(leverHprs)
		if hpr < bestHpr {
			break
		}
		bestHpr = hpr
		bestLever = lever
	}
	return bestLever
}
