package main

import (
	"os"
	"os/signal"
	"syscall"

	advisorclient "github.com/aristath/forts-trader/internal/clients/advisor"
	"github.com/aristath/forts-trader/internal/clients/broker"
	"github.com/aristath/forts-trader/internal/config"
	"github.com/aristath/forts-trader/internal/database"
	"github.com/aristath/forts-trader/internal/events"
	"github.com/aristath/forts-trader/internal/modules/execution"
	"github.com/aristath/forts-trader/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	log.Info().Msg("Starting trader")

	if cfg.Portfolio == "" {
		log.Fatal().Msg("PORTFOLIO is required")
	}

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	journal := execution.NewRepository(db.Conn(), log)
	eventManager := events.NewManager(journal, log)

	brokerClient := broker.NewClient(cfg.BrokerServiceURL, log)
	advisorClient := advisorclient.NewClient(cfg.AdvisorServiceURL, log)

	updates := make(chan execution.PositionUpdate, 64)
	engine := execution.NewEngine(brokerClient, journal, eventManager, updates, log)
	monitor := execution.NewMonitor(brokerClient, updates, nil, log)

	runner := execution.NewRunner(
		execution.RunnerConfig{
			Portfolio:       cfg.Portfolio,
			Amount:          cfg.Amount,
			AmountReduction: cfg.AmountReduction,
			MaxAmount:       cfg.MaxAmount,
			Weight:          cfg.Weight,
			PublishCandles:  cfg.PublishCandles,
		},
		brokerClient,
		advisorClient,
		brokerClient,
		advisorClient,
		engine,
		monitor,
		eventManager,
		log,
	)

	if cfg.AutoStart {
		runner.AutoStart(cfg.AutoStartTime, cfg.AutoStartMinDelay)
	} else {
		if err := runner.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start strategy")
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	runner.Stop()
	log.Info().Msg("Trader stopped")
}
