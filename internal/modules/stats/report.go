package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/forts-trader/internal/domain"
	"github.com/aristath/forts-trader/internal/modules/advisor"
	"github.com/aristath/forts-trader/internal/modules/history"
	"github.com/aristath/forts-trader/pkg/dates"
	"github.com/aristath/forts-trader/pkg/tables"
)

// reportSlippage is the assumed round trip cost per unit of position change.
const reportSlippage = 0.0002

// maxDailyStdDev bounds the lever search in backtest reports.
const maxDailyStdDev = 0.045

// ReportService runs strategy backtests over stored history and renders the
// results as text tables.
type ReportService struct {
	configs  []domain.StrategyConfig
	registry *advisor.Registry
	history  *history.Service
	holiday  HolidayFunc
	now      func() time.Time
	log      zerolog.Logger
}

// NewReportService creates the report service.
func NewReportService(
	configs []domain.StrategyConfig,
	registry *advisor.Registry,
	historyService *history.Service,
	log zerolog.Logger,
) *ReportService {
	return &ReportService{
		configs:  configs,
		registry: registry,
		history:  historyService,
		holiday:  dates.IsDayAfterHoliday,
		now:      time.Now,
		log:      log.With().Str("component", "report").Logger(),
	}
}

// Report backtests every configured strategy over its full glued contract
// series, picks the lever that maximizes return within the risk limit, and
// renders per-strategy and combined portfolio statistics.
func (s *ReportService) Report() (string, error) {
	type item struct {
		config     domain.StrategyConfig
		lastAdvice *domain.Advice
		lever      float64
		hprs       []Hpr
		stat       Statistics
	}

	items := make([]item, 0, len(s.configs))
	for _, config := range s.configs {
		hprs, lastAdvice, err := s.backtest(config)
		if err != nil {
			return "", err
		}
		if len(hprs) == 0 {
			s.log.Warn().Str("security", config.SecurityCode).Msg("No backtest data")
			continue
		}

		lever := OptimalLever(hprs, LimitStdDev(maxDailyStdDev))
		levered := WithLever(hprs, lever)
		items = append(items, item{
			config:     config,
			lastAdvice: lastAdvice,
			lever:      lever,
			hprs:       levered,
			stat:       Compute(levered),
		})
	}
	if len(items) == 0 {
		return "", fmt.Errorf("no strategies produced backtest data")
	}

	var sb strings.Builder

	table := tables.New("Name", "Sec", "W", "Lev", "Pos", "Month", "Day", "High", "DD", "Max DD")
	for _, it := range items {
		position := 0.0
		if it.lastAdvice != nil {
			position = it.lastAdvice.Position
		}
		table.AddRow(
			it.config.Name,
			it.config.SecurityCode,
			fmt.Sprintf("%.2f", it.config.Weight),
			fmt.Sprintf("%.1f", it.lever),
			fmt.Sprintf("%.2f", position),
			percent(it.stat.MonthRate),
			percent(it.stat.Daily[len(it.stat.Daily)-1].Multiplier),
			it.stat.Drawdown.HighEquityDate.Format("2006-01-02"),
			percent(it.stat.Drawdown.CurrentDrawdown),
			percent(it.stat.Drawdown.MaxDrawdown),
		)
	}
	sb.WriteString(table.String())
	sb.WriteString("\n")

	series := make([][]Hpr, len(items))
	weights := make([]float64, len(items))
	for i, it := range items {
		series[i] = it.hprs
		weights[i] = it.config.Weight
	}
	writeStatistics(&sb, Compute(Combine(series, weights)))

	return sb.String(), nil
}

// Monitoring refreshes the live contracts, replays each strategy over the
// stored candles, and renders current positions with combined statistics.
func (s *ReportService) Monitoring() (string, error) {
	type item struct {
		config     domain.StrategyConfig
		lastAdvice *domain.Advice
		hprs       []Hpr
	}

	items := make([]item, 0, len(s.configs))
	for _, config := range s.configs {
		if err := s.history.Update(config.SecurityCode); err != nil {
			return "", err
		}

		advices, err := s.replay(config, config.SecurityCode)
		if err != nil {
			return "", err
		}
		it := item{config: config, hprs: ToHprs(advices, reportSlippage)}
		if len(advices) > 0 {
			it.lastAdvice = &advices[len(advices)-1]
		}
		items = append(items, it)
	}

	var sb strings.Builder

	table := tables.New("Name", "Sec", "Pos", "W", "Lev")
	for _, it := range items {
		position := 0.0
		if it.lastAdvice != nil {
			position = it.lastAdvice.Position
		}
		table.AddRow(
			it.config.Name,
			it.config.SecurityCode,
			fmt.Sprintf("%.2f", position),
			fmt.Sprintf("%.2f", it.config.Weight),
			fmt.Sprintf("%.1f", it.config.Lever),
		)
	}
	sb.WriteString(table.String())
	sb.WriteString("\n")

	series := make([][]Hpr, 0, len(items))
	weights := make([]float64, 0, len(items))
	for _, it := range items {
		if len(it.hprs) == 0 {
			continue
		}
		series = append(series, it.hprs)
		weights = append(weights, 1)
	}
	if len(series) > 0 {
		writeStatistics(&sb, Compute(Combine(series, weights)))
	}

	return sb.String(), nil
}

// backtest replays the strategy over every quarterly contract of its series
// and glues the per-contract returns into one history.
func (s *ReportService) backtest(config domain.StrategyConfig) ([]Hpr, *domain.Advice, error) {
	root := seriesRoot(config.SecurityCode)

	var all []Hpr
	var lastAdvice *domain.Advice
	for _, contract := range history.EnumerateContracts(root, s.now()) {
		if err := s.history.Update(contract); err != nil {
			return nil, nil, err
		}
		advices, err := s.replay(config, contract)
		if err != nil {
			return nil, nil, err
		}
		if len(advices) == 0 {
			continue
		}
		all = append(all, ToHprs(advices, reportSlippage)...)
		lastAdvice = &advices[len(advices)-1]
	}
	return VerifyDates(all), lastAdvice, nil
}

// replay feeds the stored candles of one contract through a fresh pipeline.
func (s *ReportService) replay(config domain.StrategyConfig, securityCode string) ([]domain.Advice, error) {
	contractConfig := config
	contractConfig.SecurityCode = securityCode
	pipeline, err := s.registry.Build(contractConfig)
	if err != nil {
		return nil, err
	}

	candles, err := s.history.Read(securityCode)
	if err != nil {
		return nil, err
	}

	var advices []domain.Advice
	for _, candle := range candles {
		if advice := pipeline.Apply(candle); advice != nil {
			advices = append(advices, *advice)
		}
	}
	return RemoveHolidays(advices, s.holiday), nil
}

func writeStatistics(sb *strings.Builder, stat Statistics) {
	fmt.Fprintf(sb, "Monthly return: %s\n", percent(stat.MonthRate))
	fmt.Fprintf(sb, "Daily return deviation: %.2f%%\n", stat.StdDev*100)
	fmt.Fprintf(sb, "Average loss over the worst 5%% of days: %s\n", percent(stat.AVaR))

	writeHprs(sb, "Last days", tail(stat.Daily, 21))
	writeHprs(sb, "Months", stat.Monthly)
	writeHprs(sb, "Years (geometric)", stat.YearGeometric)
	writeHprs(sb, "Years (arithmetic)", stat.YearArithmetic)

	fmt.Fprintf(sb, "Longest drawdown: %d days\n", stat.Drawdown.LongestDrawdownDays)
	fmt.Fprintf(sb, "Max drawdown: %s\n", percent(stat.Drawdown.MaxDrawdown))
	fmt.Fprintf(sb, "Current drawdown: %s, %d days\n",
		percent(stat.Drawdown.CurrentDrawdown), stat.Drawdown.CurrentDrawdownDays)
}

// writeHprs renders a return series newest first.
func writeHprs(sb *strings.Builder, title string, hprs []Hpr) {
	table := tables.New("Date", "PnL")
	for i := len(hprs) - 1; i >= 0; i-- {
		table.AddRow(hprs[i].Date.Format("2006-01-02"), percent(hprs[i].Multiplier))
	}
	fmt.Fprintf(sb, "%s:\n%s\n", title, table.String())
}

// seriesRoot strips the contract suffix: "Si-3.18" becomes "Si".
func seriesRoot(securityCode string) string {
	if dash := strings.IndexByte(securityCode, '-'); dash >= 0 {
		return securityCode[:dash]
	}
	return securityCode
}

func percent(multiplier float64) string {
	return fmt.Sprintf("%.1f%%", (multiplier-1)*100)
}

func tail(hprs []Hpr, n int) []Hpr {
	if len(hprs) <= n {
		return hprs
	}
	return hprs[len(hprs)-n:]
}
