package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aristath/forts-trader/internal/domain"
	"github.com/aristath/forts-trader/internal/modules/history"
)

// Config holds application configuration
type Config struct {
	// Shared
	LogLevel     string
	LogPretty    bool
	DatabasePath string
	StrategyPath string

	// Advisor server
	Port        int
	HistoryDir  string
	HistorySync string // cron schedule

	// Trader
	AdvisorServiceURL string
	BrokerServiceURL  string
	Portfolio         string
	Amount            float64
	AmountReduction   float64
	MaxAmount         float64
	Weight            float64
	PublishCandles    bool
	AutoStart         bool
	AutoStartTime     time.Duration
	AutoStartMinDelay time.Duration
}

// StrategyFile is the on-disk shape of the strategy configuration.
type StrategyFile struct {
	Strategies []domain.StrategyConfig  `yaml:"strategies"`
	Securities []history.SecuritySource `yaml:"securities"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogPretty:    getEnvAsBool("LOG_PRETTY", false),
		DatabasePath: getEnv("DATABASE_PATH", "./data/trader.db"),
		StrategyPath: getEnv("STRATEGY_PATH", "./strategies.yaml"),

		Port:        getEnvAsInt("PORT", 8080),
		HistoryDir:  getEnv("HISTORY_DIR", "./data/history"),
		HistorySync: getEnv("HISTORY_SYNC_SCHEDULE", "0 0 9 * * MON-FRI"),

		AdvisorServiceURL: getEnv("ADVISOR_SERVICE_URL", "http://localhost:8080"),
		BrokerServiceURL:  getEnv("BROKER_SERVICE_URL", "http://localhost:9100"),
		Portfolio:         getEnv("PORTFOLIO", ""),
		Amount:            getEnvAsFloat("AMOUNT", 0),
		AmountReduction:   getEnvAsFloat("AMOUNT_REDUCTION", 0),
		MaxAmount:         getEnvAsFloat("MAX_AMOUNT", 0),
		Weight:            getEnvAsFloat("WEIGHT", 0),
		PublishCandles:    getEnvAsBool("PUBLISH_CANDLES", false),
		AutoStart:         getEnvAsBool("AUTO_START", false),
		AutoStartTime:     getEnvAsDuration("AUTO_START_TIME", 10*time.Hour+5*time.Minute),
		AutoStartMinDelay: getEnvAsDuration("AUTO_START_MIN_DELAY", time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.StrategyPath == "" {
		return fmt.Errorf("STRATEGY_PATH is required")
	}
	return nil
}

// LoadStrategies reads the strategy file.
func LoadStrategies(path string) (*StrategyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy file: %w", err)
	}

	var file StrategyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse strategy file: %w", err)
	}
	if len(file.Strategies) == 0 {
		return nil, fmt.Errorf("strategy file %s defines no strategies", path)
	}

	for i, strategy := range file.Strategies {
		file.Strategies[i] = strategy.Defaults()
	}
	return &file, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
