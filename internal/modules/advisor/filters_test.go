package advisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/forts-trader/internal/domain"
)

func candleAt(t time.Time, price float64) domain.Candle {
	return domain.Candle{SecurityCode: "Si-3.18", Time: t, ClosePrice: price}
}

func day(d, hh, mm int) time.Time {
	return time.Date(2018, 3, d, hh, mm, 0, 0, time.Local)
}

func TestChannelBreakoutWarmUp(t *testing.T) {
	f := &channelBreakout{}

	// The very first candle only seeds state.
	assert.Nil(t, f.Apply(candleAt(day(1, 10, 0), 100)))

	// The second candle advises with a flat position.
	advice := f.Apply(candleAt(day(1, 10, 5), 100))
	require.NotNil(t, advice)
	assert.Equal(t, 0.0, advice.Position)
	assert.Equal(t, 100.0, advice.Price)
}

func TestChannelBreakoutIgnoresNonIncreasingTime(t *testing.T) {
	f := &channelBreakout{}
	f.Apply(candleAt(day(1, 10, 0), 100))
	f.Apply(candleAt(day(1, 10, 5), 100))

	assert.Nil(t, f.Apply(candleAt(day(1, 10, 5), 101)))
	assert.Nil(t, f.Apply(candleAt(day(1, 10, 0), 101)))

	// The stream continues from the retained timestamp.
	advice := f.Apply(candleAt(day(1, 10, 10), 100))
	assert.NotNil(t, advice)
}

func TestChannelBreakoutSkipsEveningSession(t *testing.T) {
	f := &channelBreakout{}
	f.Apply(candleAt(day(1, 10, 0), 100))

	assert.Nil(t, f.Apply(candleAt(day(1, 19, 30), 100)))
	assert.Nil(t, f.Apply(candleAt(day(1, 23, 55), 100)))

	// The evening candles still advanced the stream: next morning advises.
	advice := f.Apply(candleAt(day(2, 10, 0), 100))
	assert.NotNil(t, advice)
}

func TestChannelBreakoutRebalanceRules(t *testing.T) {
	f := &channelBreakout{}
	f.Apply(candleAt(day(1, 10, 0), 100))

	// New day appends the close to the window.
	advice := f.Apply(candleAt(day(2, 10, 0), 100))
	require.NotNil(t, advice)
	assert.Equal(t, 0.0, advice.Position)

	// Crossing the 12:30 checkpoint with close at the window high goes long.
	advice = f.Apply(candleAt(day(2, 13, 0), 105))
	require.NotNil(t, advice)
	assert.Equal(t, 1.0, advice.Position)

	// No checkpoint crossed, the position holds.
	advice = f.Apply(candleAt(day(2, 16, 0), 95))
	require.NotNil(t, advice)
	assert.Equal(t, 1.0, advice.Position)

	// Crossing 16:30 with close at the window low flips short.
	advice = f.Apply(candleAt(day(2, 17, 0), 95))
	require.NotNil(t, advice)
	assert.Equal(t, -1.0, advice.Position)
}

func TestChannelBreakoutMidpointKeepsSign(t *testing.T) {
	f := &channelBreakout{}
	f.Apply(candleAt(day(1, 10, 0), 100))
	f.Apply(candleAt(day(2, 10, 0), 100)) // window [100]
	f.Apply(candleAt(day(3, 10, 0), 110)) // window [100 110]

	// Long breakout at the 12:30 checkpoint.
	advice := f.Apply(candleAt(day(3, 13, 0), 110))
	require.NotNil(t, advice)
	assert.Equal(t, 1.0, advice.Position)

	// Above the midpoint (105) a long position survives.
	advice = f.Apply(candleAt(day(3, 17, 0), 107))
	require.NotNil(t, advice)
	assert.Equal(t, 1.0, advice.Position)

	// Below the midpoint the long position is cut to flat, not reversed.
	f.Apply(candleAt(day(4, 10, 0), 103))
	advice = f.Apply(candleAt(day(4, 13, 0), 103))
	require.NotNil(t, advice)
	assert.Equal(t, 0.0, advice.Position)
}

// applyCounter counts Apply calls and returns a fixed advice after an
// initial nil phase.
type applyCounter struct {
	calls    int
	nilUntil int
	position float64
}

func (a *applyCounter) Apply(c domain.Candle) *domain.Advice {
	a.calls++
	if a.calls <= a.nilUntil {
		return nil
	}
	return &domain.Advice{SecurityCode: c.SecurityCode, Time: c.Time, Price: c.ClosePrice, Position: a.position}
}

func TestCompositeAppliesAllPartsBeforeNilCheck(t *testing.T) {
	silent := &applyCounter{nilUntil: 1}
	loud := &applyCounter{position: 1}
	f := &composite{parts: []domain.Advisor{silent, loud}}

	// First candle: one part withholds, but both must see the candle.
	assert.Nil(t, f.Apply(candleAt(day(1, 10, 0), 100)))
	assert.Equal(t, 1, silent.calls)
	assert.Equal(t, 1, loud.calls)

	// Once all parts advise, positions average.
	advice := f.Apply(candleAt(day(1, 10, 5), 100))
	require.NotNil(t, advice)
	assert.Equal(t, 0.5, advice.Position)
}

func TestTrendControlFlatChannelShrinksPosition(t *testing.T) {
	f := newTrendControl()
	advice := domain.Advice{Position: 1}

	// First candle: no rebalance yet, ratio stays 1.
	out := f.apply(candleAt(day(1, 10, 0), 100), advice)
	assert.Equal(t, 1.0, out.Position)

	// New day rebalances; a one-point window is maximally flat.
	out = f.apply(candleAt(day(2, 10, 0), 100), advice)
	assert.InDelta(t, 0.34, out.Position, 1e-12)
}

func TestTrendControlWideChannelKeepsPosition(t *testing.T) {
	f := newTrendControl()
	advice := domain.Advice{Position: 1}

	f.apply(candleAt(day(1, 10, 0), 100), advice)
	f.apply(candleAt(day(2, 10, 0), 100), advice)
	// log(110/100) ~= 0.095 is beyond the 0.05 clamp: full ratio.
	out := f.apply(candleAt(day(3, 10, 0), 110), advice)
	assert.InDelta(t, 1.0, out.Position, 1e-12)
}

func TestVolatilityControlDefaultsToFullPosition(t *testing.T) {
	f := newVolatilityControl(0.006)
	advice := domain.Advice{Position: 0.8}

	out := f.apply(candleAt(day(1, 10, 0), 100), advice)
	assert.Equal(t, 0.8, out.Position)

	// Too few returns buffered: the ratio holds at 1 across a rebalance.
	out = f.apply(candleAt(day(2, 10, 0), 101), advice)
	assert.Equal(t, 0.8, out.Position)
}

func TestDirectionClamp(t *testing.T) {
	c := candleAt(day(1, 10, 0), 100)

	long := directionClamp{direction: domain.DirectionLong}
	assert.Equal(t, 0.0, long.apply(c, domain.Advice{Position: -1}).Position)
	assert.Equal(t, 0.7, long.apply(c, domain.Advice{Position: 0.7}).Position)

	short := directionClamp{direction: domain.DirectionShort}
	assert.Equal(t, 0.0, short.apply(c, domain.Advice{Position: 1}).Position)
	assert.Equal(t, -0.7, short.apply(c, domain.Advice{Position: -0.7}).Position)
}

func TestSlewLimiterStagesEntries(t *testing.T) {
	f := &slewLimiter{maxStep: defaultMaxStep}
	c := candleAt(day(1, 10, 0), 100)

	assert.Equal(t, 0.5, f.apply(c, domain.Advice{Position: 1}).Position)
	assert.Equal(t, 1.0, f.apply(c, domain.Advice{Position: 1}).Position)

	// A flip to short unwinds half a position per candle.
	assert.Equal(t, 0.5, f.apply(c, domain.Advice{Position: -1}).Position)
	assert.Equal(t, 0.0, f.apply(c, domain.Advice{Position: -1}).Position)
	assert.Equal(t, -0.5, f.apply(c, domain.Advice{Position: -1}).Position)
	assert.Equal(t, -1.0, f.apply(c, domain.Advice{Position: -1}).Position)
}

func TestRegistryBuildUnknownAdvisor(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Build(domain.StrategyConfig{Name: "momentum", SecurityCode: "Si-3.18"})
	assert.ErrorIs(t, err, domain.ErrUnknownAdvisor)
}

func TestRegistryBuildIsCaseInsensitive(t *testing.T) {
	registry := NewRegistry()
	pipeline, err := registry.Build(domain.StrategyConfig{Name: "Dual", SecurityCode: "Si-3.18"})
	require.NoError(t, err)
	assert.NotNil(t, pipeline)
}

func TestPipelineForwardsNil(t *testing.T) {
	registry := NewRegistry()
	pipeline, err := registry.Build(domain.StrategyConfig{Name: "breakout", SecurityCode: "Si-3.18"})
	require.NoError(t, err)

	assert.Nil(t, pipeline.Apply(candleAt(day(1, 10, 0), 100)))
	assert.NotNil(t, pipeline.Apply(candleAt(day(1, 10, 5), 100)))
}

func TestPipelineAppliesLeverAndWeight(t *testing.T) {
	registry := NewRegistry()
	pipeline, err := registry.Build(domain.StrategyConfig{
		Name:         "breakout",
		SecurityCode: "Si-3.18",
		Lever:        3,
		Weight:       0.5,
	})
	require.NoError(t, err)

	pipeline.Apply(candleAt(day(1, 10, 0), 100))
	pipeline.Apply(candleAt(day(2, 10, 0), 100))
	// Breakout long, trend ratio 0.34, lever times weight 1.5.
	advice := pipeline.Apply(candleAt(day(2, 13, 0), 105))
	require.NotNil(t, advice)
	assert.InDelta(t, 0.34*1.5, advice.Position, 1e-12)
}
