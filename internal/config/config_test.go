package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/forts-trader/internal/domain"
)

const strategyYAML = `
strategies:
  - name: dual
    security: Si-3.18
    lever: 1.5
    weight: 0.6
    direction: 1
  - name: breakout
    security: RTS-3.18
securities:
  - code: Si-3.18
    finam_code: 101
    mfd_code: 202
`

func writeStrategyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadStrategies(t *testing.T) {
	file, err := LoadStrategies(writeStrategyFile(t, strategyYAML))
	require.NoError(t, err)

	require.Len(t, file.Strategies, 2)
	first := file.Strategies[0]
	assert.Equal(t, "dual", first.Name)
	assert.Equal(t, "Si-3.18", first.SecurityCode)
	assert.Equal(t, 1.5, first.Lever)
	assert.Equal(t, 0.6, first.Weight)
	assert.Equal(t, domain.Direction(1), first.Direction)

	require.Len(t, file.Securities, 1)
	assert.Equal(t, "Si-3.18", file.Securities[0].Code)
	assert.Equal(t, 101, file.Securities[0].FinamCode)
	assert.Equal(t, 202, file.Securities[0].MfdCode)
}

func TestLoadStrategiesFillsDefaults(t *testing.T) {
	file, err := LoadStrategies(writeStrategyFile(t, strategyYAML))
	require.NoError(t, err)

	second := file.Strategies[1]
	assert.Equal(t, 1.0, second.Lever)
	assert.Equal(t, 1.0, second.Weight)
	assert.Equal(t, 0.006, second.StdVolatility)
	assert.Equal(t, domain.Direction(0), second.Direction)
}

func TestLoadStrategiesEmptyFile(t *testing.T) {
	_, err := LoadStrategies(writeStrategyFile(t, "strategies: []\n"))
	assert.Error(t, err)
}

func TestLoadStrategiesMissingFile(t *testing.T) {
	_, err := LoadStrategies(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "http://localhost:9100", cfg.BrokerServiceURL)
	assert.Equal(t, 10*time.Hour+5*time.Minute, cfg.AutoStartTime)
	assert.Equal(t, time.Minute, cfg.AutoStartMinDelay)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("PORTFOLIO", "SPBFUT00001")
	t.Setenv("AMOUNT", "2500000")
	t.Setenv("PUBLISH_CANDLES", "true")
	t.Setenv("AUTO_START_TIME", "10h15m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "SPBFUT00001", cfg.Portfolio)
	assert.Equal(t, 2500000.0, cfg.Amount)
	assert.True(t, cfg.PublishCandles)
	assert.Equal(t, 10*time.Hour+15*time.Minute, cfg.AutoStartTime)
}

func TestValidate(t *testing.T) {
	cfg := Config{DatabasePath: "trader.db", StrategyPath: "strategies.yaml"}
	assert.NoError(t, cfg.Validate())

	cfg.DatabasePath = ""
	assert.Error(t, cfg.Validate())
}
