package stats

import (
	"math"
	"time"
)

// DrawdownInfo describes the equity drawdown profile of a return series.
// Drawdown multipliers are below one while under water.
type DrawdownInfo struct {
	HighEquityDate      time.Time
	LongestDrawdownDays int
	CurrentDrawdownDays int
	MaxDrawdown         float64
	CurrentDrawdown     float64
}

// ComputeDrawdown walks the log-equity curve of the series.
func ComputeDrawdown(hprs []Hpr) DrawdownInfo {
	if len(hprs) == 0 {
		return DrawdownInfo{MaxDrawdown: 1, CurrentDrawdown: 1}
	}

	currentSum := 0.0
	maxSum := 0.0
	longest := 0
	currentDays := 0
	maxDrawdown := 0.0
	highEquityDate := hprs[0].Date

	for _, h := range hprs {
		currentSum += math.Log(h.Multiplier)
		if currentSum > maxSum {
			maxSum = currentSum
			highEquityDate = h.Date
		}
		maxDrawdown = math.Min(maxDrawdown, currentSum-maxSum)
		currentDays = int(h.Date.Sub(highEquityDate).Hours() / 24)
		if currentDays > longest {
			longest = currentDays
		}
	}

	return DrawdownInfo{
		HighEquityDate:      highEquityDate,
		LongestDrawdownDays: longest,
		CurrentDrawdownDays: currentDays,
		MaxDrawdown:         math.Exp(maxDrawdown),
		CurrentDrawdown:     math.Exp(currentSum - maxSum),
	}
}
