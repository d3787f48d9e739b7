package advisor

import (
	"fmt"
	"strings"

	"github.com/aristath/forts-trader/internal/domain"
)

// Pipeline is a base signal plus its filter stack, applied in fixed order.
// It implements domain.Advisor and keeps each stage's state inspectable for
// tests.
type Pipeline struct {
	source domain.Advisor
	stages []stage
}

// Apply feeds one candle through the pipeline. A nil from the base signal
// is forwarded unchanged; every stage runs on every advising candle even
// when its internal ratio only moves at rebalance events.
func (p *Pipeline) Apply(c domain.Candle) *domain.Advice {
	advice := p.source.Apply(c)
	if advice == nil {
		return nil
	}
	out := *advice
	for _, s := range p.stages {
		out = s.apply(c, out)
	}
	return &out
}

// Registry maps algorithm names (case-insensitive) to base signal
// factories.
type Registry struct {
	factories map[string]func(domain.StrategyConfig) domain.Advisor
}

// NewRegistry creates a registry with the built-in algorithms.
func NewRegistry() *Registry {
	return &Registry{
		factories: map[string]func(domain.StrategyConfig) domain.Advisor{
			"breakout": newBreakout,
			"dual":     newDual,
		},
	}
}

func newBreakout(_ domain.StrategyConfig) domain.Advisor {
	return &channelBreakout{}
}

func newDual(_ domain.StrategyConfig) domain.Advisor {
	return &composite{parts: []domain.Advisor{
		&channelBreakout{},
	}}
}

// Build constructs the full pipeline for one strategy configuration:
// base signal, trend control, volatility control, optional direction clamp,
// slew limiter, lever/weight scaling.
func (r *Registry) Build(config domain.StrategyConfig) (*Pipeline, error) {
	config = config.Defaults()

	factory, ok := r.factories[strings.ToLower(config.Name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAdvisor, config.Name)
	}

	stages := []stage{
		newTrendControl(),
		newVolatilityControl(config.StdVolatility),
	}
	if config.Direction != domain.DirectionBoth {
		stages = append(stages, directionClamp{direction: config.Direction})
	}
	stages = append(stages, &slewLimiter{maxStep: defaultMaxStep})
	if factor := config.Lever * config.Weight; factor != 1 {
		stages = append(stages, leverScale{factor: factor})
	}

	return &Pipeline{source: factory(config), stages: stages}, nil
}
