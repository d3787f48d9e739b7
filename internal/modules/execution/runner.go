package execution

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/forts-trader/internal/domain"
	"github.com/aristath/forts-trader/internal/events"
	"github.com/aristath/forts-trader/pkg/dates"
)

// maxAdviceAge drops advices replayed from history or delivered late; only
// fresh advices may trade.
const maxAdviceAge = 9 * time.Minute

// CandlePublisher forwards broker candles to the advisor server.
type CandlePublisher interface {
	PublishCandles(ctx context.Context, candles <-chan domain.Candle) error
}

// RunnerConfig holds the strategy session settings.
type RunnerConfig struct {
	Portfolio string
	// Amount overrides the broker account size when positive.
	Amount float64
	// AmountReduction is subtracted from the account size.
	AmountReduction float64
	// MaxAmount caps the account size when positive.
	MaxAmount float64
	// Weight scales the account size when inside (0, 1).
	Weight float64
	// PublishCandles enables forwarding broker candles to the advisor server.
	PublishCandles bool
}

// Runner starts and stops the trading session: one advice consumer per
// security feeding the engine, plus the monitor and candle publishing.
type Runner struct {
	cfg       RunnerConfig
	broker    domain.Broker
	advisors  domain.AdvisorSource
	candles   domain.CandleService
	publisher CandlePublisher
	engine    *Engine
	monitor   *Monitor
	events    *events.Manager
	now       func() time.Time
	log       zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewRunner creates the strategy runner. candles and publisher may be nil
// when candle publishing is disabled.
func NewRunner(
	cfg RunnerConfig,
	broker domain.Broker,
	advisors domain.AdvisorSource,
	candles domain.CandleService,
	publisher CandlePublisher,
	engine *Engine,
	monitor *Monitor,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Runner {
	return &Runner{
		cfg:       cfg,
		broker:    broker,
		advisors:  advisors,
		candles:   candles,
		publisher: publisher,
		engine:    engine,
		monitor:   monitor,
		events:    eventManager,
		now:       time.Now,
		log:       log.With().Str("component", "strategy").Logger(),
	}
}

// Start brings up the trading session. Safe to call twice; the second call
// is a no-op.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.log.Info().Msg("Strategy already started")
		return nil
	}

	r.log.Info().Msg("Starting strategy...")

	amount, err := r.availableAmount()
	if err != nil {
		return err
	}
	if amount == 0 {
		return domain.ErrNoMoney
	}
	r.log.Info().
		Str("portfolio", r.cfg.Portfolio).
		Float64("available_amount", amount).
		Msg("Init portfolio")

	securities, err := r.advisors.Securities()
	if err != nil {
		return fmt.Errorf("failed to list advisors: %w", err)
	}
	r.log.Info().Str("securities", strings.Join(securities, ", ")).Msg("Strategy securities")

	if err := r.engine.Init(r.cfg.Portfolio, securities); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())

	go r.engine.Run(ctx)
	if r.monitor != nil {
		go r.monitor.Run(ctx)
	}

	if r.cfg.PublishCandles {
		if err := r.startPublishing(ctx, securities); err != nil {
			cancel()
			return err
		}
	}

	for _, security := range securities {
		advices, err := r.advisors.Advices(ctx, security)
		if err != nil {
			cancel()
			return fmt.Errorf("failed to subscribe to advices for %s: %w", security, err)
		}
		go r.execute(ctx, security, amount, advices)
	}

	r.cancel = cancel
	r.events.Emit(events.StrategyStarted, "execution", map[string]interface{}{
		"portfolio":  r.cfg.Portfolio,
		"amount":     amount,
		"securities": securities,
	})
	r.log.Info().Msg("Strategy started")
	return nil
}

// Stop tears down the trading session.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		r.log.Info().Msg("Strategy already stopped")
		return
	}
	r.cancel()
	r.cancel = nil
	r.events.Emit(events.StrategyStopped, "execution", nil)
	r.log.Info().Msg("Strategy stopped")
}

// AutoStart schedules Start at the given time of day, but no earlier than
// minDelay from now. Connection windows open slowly after midnight restarts.
func (r *Runner) AutoStart(startTime, minDelay time.Duration) {
	delay := minDelay
	if delta := startTime - dates.TimeOfDay(r.now()); delta > 0 {
		delay += delta
	}

	go func() {
		r.log.Warn().Dur("delay", delay).Msg("Autostart scheduled")
		time.Sleep(delay)
		if err := r.Start(); err != nil {
			r.log.Error().Err(err).Msg("Autostart failed")
		}
	}()
}

func (r *Runner) startPublishing(ctx context.Context, securities []string) error {
	if r.candles == nil || r.publisher == nil {
		return fmt.Errorf("candle publishing enabled without a candle source")
	}
	r.log.Info().Msg("Setting up candle publishing...")
	for _, security := range securities {
		candles, err := r.candles.Candles(ctx, security)
		if err != nil {
			return fmt.Errorf("failed to subscribe to candles for %s: %w", security, err)
		}
		go func() {
			if err := r.publisher.PublishCandles(ctx, candles); err != nil && ctx.Err() == nil {
				r.log.Error().Err(err).Msg("PublishCandles error")
			}
		}()
	}
	r.log.Info().Msg("Candle publishing ready")
	return nil
}

// execute consumes the advice stream of one security. The first advice fixes
// the base price that converts the position ratio into contracts.
func (r *Runner) execute(ctx context.Context, security string, amount float64, advices <-chan domain.Advice) {
	var basePrice float64
	for {
		select {
		case <-ctx.Done():
			return
		case advice, ok := <-advices:
			if !ok {
				return
			}
			if basePrice == 0 {
				basePrice = advice.Price
				r.log.Info().
					Str("security", security).
					Float64("price", basePrice).
					Msg("Init base price")
			}
			if advice.Time.Before(r.now().Add(-maxAdviceAge)) {
				continue
			}
			r.log.Info().
				Str("security", security).
				Time("time", advice.Time).
				Float64("price", advice.Price).
				Float64("position", advice.Position).
				Msg("New advice")
			r.events.Emit(events.AdviceReceived, "execution", map[string]interface{}{
				"security": security,
				"price":    advice.Price,
				"position": advice.Position,
			})

			target := amount / basePrice * advice.Position
			r.engine.OpenPosition(r.cfg.Portfolio, security, advice.Price, target)
		}
	}
}

// availableAmount applies the account sizing policy to the broker account.
func (r *Runner) availableAmount() (float64, error) {
	amount := r.cfg.Amount
	if amount <= 0 {
		brokerAmount, err := r.broker.Amount(r.cfg.Portfolio)
		if err != nil {
			return 0, err
		}
		amount = brokerAmount
	}
	if r.cfg.AmountReduction > 0 {
		amount = math.Max(0, amount-r.cfg.AmountReduction)
	}
	if r.cfg.MaxAmount > 0 {
		amount = math.Min(amount, r.cfg.MaxAmount)
	}
	if 0 < r.cfg.Weight && r.cfg.Weight < 1 {
		amount *= r.cfg.Weight
	}
	return amount, nil
}
