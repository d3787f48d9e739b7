package stats

import (
	"math"
	"sort"
	"time"

	"github.com/aristath/forts-trader/pkg/dates"
)

// Statistics summarizes a daily return series.
type Statistics struct {
	// MonthRate is the geometric return of a 22 trading day month.
	MonthRate float64
	StdDev    float64
	AVaR      float64

	Daily          []Hpr
	Monthly        []Hpr
	YearGeometric  []Hpr
	YearArithmetic []Hpr

	Drawdown DrawdownInfo
}

// Compute builds the full statistics of a daily return series.
func Compute(daily []Hpr) Statistics {
	monthly := ByPeriod(daily, dates.LastDayOfMonth)
	return Statistics{
		MonthRate:      math.Pow(TotalHpr(daily), 22.0/float64(len(daily))),
		StdDev:         StdDev(daily),
		AVaR:           AVaR(daily),
		Daily:          daily,
		Monthly:        monthly,
		YearGeometric:  ByPeriod(daily, dates.LastDayOfYear),
		YearArithmetic: yearArithmetic(monthly),
		Drawdown:       ComputeDrawdown(daily),
	}
}

// yearArithmetic sums monthly returns within a year, banking profits: each
// time the running product rises above one the gain is moved to the sum and
// the product resets. Losses keep compounding until recovered.
func yearArithmetic(monthly []Hpr) []Hpr {
	groups := make(map[time.Time][]Hpr)
	var order []time.Time
	for _, h := range monthly {
		key := dates.LastDayOfYear(h.Date)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], h)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	result := make([]Hpr, 0, len(order))
	for _, key := range order {
		months := groups[key]
		sort.Slice(months, func(i, j int) bool { return months[i].Date.Before(months[j].Date) })

		sum := 0.0
		hpr := 1.0
		for _, m := range months {
			hpr *= m.Multiplier
			if hpr > 1 {
				sum += hpr - 1
				hpr = 1
			}
		}
		sum += hpr - 1
		result = append(result, Hpr{Date: key, Multiplier: sum + 1})
	}
	return result
}
