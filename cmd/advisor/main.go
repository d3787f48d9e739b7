package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/forts-trader/internal/config"
	"github.com/aristath/forts-trader/internal/events"
	"github.com/aristath/forts-trader/internal/modules/advisor"
	"github.com/aristath/forts-trader/internal/modules/history"
	"github.com/aristath/forts-trader/internal/modules/stats"
	"github.com/aristath/forts-trader/internal/scheduler"
	"github.com/aristath/forts-trader/internal/server"
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
	log.Info().Msg("Starting advisor server")

	strategies, err := config.LoadStrategies(cfg.StrategyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load strategies")
	}

	historyRepo, err := history.NewRepository(cfg.HistoryDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history storage")
	}
	defer historyRepo.Close()

	providerCfg := history.DefaultProviderConfig()
	providerCfg.Securities = strategies.Securities
	historyService := history.NewService(historyRepo,
		history.NewProvider(providerCfg, log), log)

	registry := advisor.NewRegistry()
	hub := advisor.NewCandleHub(log)
	board := advisor.NewBoard()
	service := advisor.NewService(registry, strategies.Strategies, historyService, hub, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	securities, _ := service.Securities()
	for _, security := range securities {
		advices, err := service.Advices(ctx, security)
		if err != nil {
			log.Fatal().Err(err).Str("security", security).Msg("Failed to start advisor")
		}
		go func() {
			for advice := range advices {
				board.Publish(advice)
			}
		}()
	}

	sched := scheduler.New(log)
	eventManager := events.NewManager(nil, log)
	syncJob := history.NewSyncJob(historyService, service.Securities, eventManager, log)
	if err := sched.AddJob(cfg.HistorySync, syncJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register history sync job")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Port:     cfg.Port,
		Log:      log,
		Advisors: advisor.NewHandlers(service, board, hub, log),
		Reports:  stats.NewReportService(strategies.Strategies, registry, historyService, log),
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Advisor server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Advisor server stopped")
}
