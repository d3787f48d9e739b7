package advisor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/forts-trader/internal/domain"
)

// HistorySource supplies stored candles used to warm the pipeline up before
// live consumption starts.
type HistorySource interface {
	Update(security string) error
	Read(security string) ([]domain.Candle, error)
}

// Service builds pipelines from strategy configurations and streams their
// advices. Each security gets its own pipeline driven by a single
// goroutine; pipeline state is never shared.
type Service struct {
	registry *Registry
	configs  []domain.StrategyConfig
	history  HistorySource
	candles  domain.CandleService
	log      zerolog.Logger
}

// NewService creates an advisor service. history may be nil when there is
// no stored history to warm up from.
func NewService(
	registry *Registry,
	configs []domain.StrategyConfig,
	history HistorySource,
	candles domain.CandleService,
	log zerolog.Logger,
) *Service {
	return &Service{
		registry: registry,
		configs:  configs,
		history:  history,
		candles:  candles,
		log:      log.With().Str("component", "advisor").Logger(),
	}
}

// Securities lists the security codes with a configured strategy.
func (s *Service) Securities() ([]string, error) {
	securities := make([]string, 0, len(s.configs))
	for _, config := range s.configs {
		securities = append(securities, config.SecurityCode)
	}
	return securities, nil
}

// Advices warms a freshly built pipeline over stored history, then consumes
// the live candle stream until ctx is canceled. The returned channel is
// closed when consumption stops; advices are delivered in candle order.
func (s *Service) Advices(ctx context.Context, security string) (<-chan domain.Advice, error) {
	config, err := s.findConfig(security)
	if err != nil {
		return nil, err
	}

	pipeline, err := s.registry.Build(config)
	if err != nil {
		return nil, err
	}

	if initAdvice := s.warmUp(pipeline, config); initAdvice != nil {
		s.log.Info().
			Str("security", security).
			Time("time", initAdvice.Time).
			Float64("position", initAdvice.Position).
			Msg("Init advice")
	}

	stream, err := s.candles.Candles(ctx, security)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.Advice)
	go func() {
		defer close(out)
		for candle := range stream {
			advice := pipeline.Apply(candle)
			if advice == nil {
				continue
			}
			select {
			case out <- *advice:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// warmUp replays stored history through the pipeline and returns the last
// advice it produced, if any.
func (s *Service) warmUp(pipeline *Pipeline, config domain.StrategyConfig) *domain.Advice {
	if s.history == nil {
		return nil
	}
	if err := s.history.Update(config.SecurityCode); err != nil {
		s.log.Warn().Err(err).Str("security", config.SecurityCode).Msg("History update failed")
	}
	candles, err := s.history.Read(config.SecurityCode)
	if err != nil {
		s.log.Warn().Err(err).Str("security", config.SecurityCode).Msg("History read failed")
		return nil
	}

	var last *domain.Advice
	for _, candle := range candles {
		candle.SecurityCode = config.SecurityCode
		if advice := pipeline.Apply(candle); advice != nil {
			last = advice
		}
	}
	return last
}

func (s *Service) findConfig(security string) (domain.StrategyConfig, error) {
	for _, config := range s.configs {
		if config.SecurityCode == security {
			return config, nil
		}
	}
	return domain.StrategyConfig{}, fmt.Errorf("no strategy configured for security %q", security)
}
