package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/forts-trader/internal/domain"
	"github.com/aristath/forts-trader/pkg/tables"
)

// summaryIdle is how long the monitor waits for more updates before it
// prints a position summary.
const summaryIdle = 30 * time.Second

// Monitor collects position updates and prints a reconciliation summary once
// the stream goes quiet.
type Monitor struct {
	broker  domain.Broker
	updates <-chan PositionUpdate
	write   func(string)
	log     zerolog.Logger
}

// NewMonitor creates the position monitor. write receives the rendered
// summary; pass nil to print to the log.
func NewMonitor(broker domain.Broker, updates <-chan PositionUpdate, write func(string), log zerolog.Logger) *Monitor {
	m := &Monitor{
		broker:  broker,
		updates: updates,
		write:   write,
		log:     log.With().Str("component", "position_monitor").Logger(),
	}
	if m.write == nil {
		m.write = func(s string) { m.log.Info().Msg("\n" + s) }
	}
	return m
}

// Run consumes updates until the context is canceled.
func (m *Monitor) Run(ctx context.Context) {
	positions := make(map[string]PositionUpdate)
	hasChanges := false

	timer := time.NewTimer(summaryIdle)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case update := <-m.updates:
			positions[positionKey(update.Portfolio, update.Security)] = update
			hasChanges = true
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(summaryIdle)
		case <-timer.C:
			if hasChanges {
				m.summary(positions)
				hasChanges = false
			}
			timer.Reset(summaryIdle)
		}
	}
}

func (m *Monitor) summary(positions map[string]PositionUpdate) {
	table := tables.New("Portfolio", "Security", "Required", "Broker", "Status")
	errorCount := 0
	for _, p := range positions {
		brokerPosition, err := m.broker.Position(p.Portfolio, p.Security)
		if err != nil {
			m.log.Error().Err(err).Str("security", p.Security).Msg("Failed to read broker position")
			continue
		}
		status := "+"
		if p.Tracked != brokerPosition {
			status = "!"
			errorCount++
		}
		table.AddRow(p.Portfolio, p.Security,
			fmt.Sprintf("%d", p.Tracked), fmt.Sprintf("%d", brokerPosition), status)
	}
	if errorCount > 0 {
		m.log.Error().Int("errors", errorCount).Msg("Position summary contains errors")
	}
	m.write(table.String())
}
