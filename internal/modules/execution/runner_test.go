package execution

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/forts-trader/internal/domain"
	"github.com/aristath/forts-trader/internal/events"
)

type fakeAdvisorSource struct {
	securities []string
	advices    chan domain.Advice
}

func (s *fakeAdvisorSource) Securities() ([]string, error) {
	return s.securities, nil
}

func (s *fakeAdvisorSource) Advices(ctx context.Context, security string) (<-chan domain.Advice, error) {
	return s.advices, nil
}

func TestAvailableAmount(t *testing.T) {
	tests := []struct {
		name     string
		cfg      RunnerConfig
		broker   float64
		expected float64
	}{
		{"broker account", RunnerConfig{}, 1000000, 1000000},
		{"override", RunnerConfig{Amount: 500000}, 1000000, 500000},
		{"reduction", RunnerConfig{AmountReduction: 300000}, 1000000, 700000},
		{"reduction below zero", RunnerConfig{AmountReduction: 2000000}, 1000000, 0},
		{"cap", RunnerConfig{MaxAmount: 400000}, 1000000, 400000},
		{"weight", RunnerConfig{Weight: 0.5}, 1000000, 500000},
		{"weight of one is ignored", RunnerConfig{Weight: 1}, 1000000, 1000000},
		{"combined", RunnerConfig{AmountReduction: 200000, MaxAmount: 600000, Weight: 0.5}, 1000000, 300000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &Runner{cfg: tt.cfg, broker: &fakeBroker{amount: tt.broker}}

			amount, err := runner.availableAmount()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, amount)
		})
	}
}

func TestRunnerStartWithoutMoney(t *testing.T) {
	broker := &fakeBroker{}
	runner := NewRunner(
		RunnerConfig{Portfolio: "SPBFUT00001"},
		broker,
		&fakeAdvisorSource{},
		nil,
		nil,
		NewEngine(broker, nil, events.NewManager(nil, zerolog.Nop()), nil, zerolog.Nop()),
		nil,
		events.NewManager(nil, zerolog.Nop()),
		zerolog.Nop(),
	)

	assert.ErrorIs(t, runner.Start(), domain.ErrNoMoney)
}

func TestRunnerTradesFreshAdvice(t *testing.T) {
	broker := &fakeBroker{
		amount:    250000,
		positions: map[string]int{"Si-3.18": 0},
	}
	source := &fakeAdvisorSource{
		securities: []string{"Si-3.18"},
		advices:    make(chan domain.Advice, 4),
	}
	store := &recordingStore{}
	manager := events.NewManager(store, zerolog.Nop())
	engine := NewEngine(broker, nil, manager, nil, zerolog.Nop())

	runner := NewRunner(
		RunnerConfig{Portfolio: "SPBFUT00001"},
		broker, source, nil, nil, engine, nil, manager, zerolog.Nop(),
	)
	require.NoError(t, runner.Start())
	defer runner.Stop()

	now := time.Now()

	// The first advice fixes the base price but is too old to trade.
	source.advices <- domain.Advice{
		SecurityCode: "Si-3.18",
		Time:         now.Add(-time.Hour),
		Price:        50000,
		Position:     1,
	}
	source.advices <- domain.Advice{
		SecurityCode: "Si-3.18",
		Time:         now,
		Price:        50000,
		Position:     1,
	}

	require.Eventually(t, func() bool {
		return len(broker.submitted()) == 1
	}, time.Second, 10*time.Millisecond)

	order := broker.submitted()[0]
	assert.Equal(t, "SPBFUT00001", order.Portfolio)
	assert.Equal(t, "Si-3.18", order.Security)
	// 250000 over a base price of 50000 buys five contracts.
	assert.Equal(t, 5, order.Volume)
	assert.Equal(t, 50050.0, order.Price)

	// The stale advice fixes the base price but only the fresh one is recorded.
	require.Eventually(t, func() bool {
		return len(store.types()) == 3
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []events.EventType{
		events.StrategyStarted,
		events.AdviceReceived,
		events.OrderSubmitted,
	}, store.types())
}

func TestRunnerStartTwice(t *testing.T) {
	broker := &fakeBroker{amount: 100000, positions: map[string]int{}}
	manager := events.NewManager(nil, zerolog.Nop())
	engine := NewEngine(broker, nil, manager, nil, zerolog.Nop())
	runner := NewRunner(
		RunnerConfig{Portfolio: "SPBFUT00001"},
		broker, &fakeAdvisorSource{}, nil, nil, engine, nil, manager, zerolog.Nop(),
	)

	require.NoError(t, runner.Start())
	require.NoError(t, runner.Start())
	runner.Stop()
	runner.Stop()
}
