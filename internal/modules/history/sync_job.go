package history

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/forts-trader/internal/events"
)

// SyncJob refreshes the local history of every configured security.
// Registered with the scheduler to run before the trading session opens.
type SyncJob struct {
	service    *Service
	securities func() ([]string, error)
	events     *events.Manager
	log        zerolog.Logger
}

// NewSyncJob creates the history sync job. securities supplies the contract
// codes to refresh.
func NewSyncJob(
	service *Service,
	securities func() ([]string, error),
	eventManager *events.Manager,
	log zerolog.Logger,
) *SyncJob {
	return &SyncJob{
		service:    service,
		securities: securities,
		events:     eventManager,
		log:        log.With().Str("job", "history_sync").Logger(),
	}
}

// Name implements scheduler.Job.
func (j *SyncJob) Name() string {
	return "history_sync"
}

// Run implements scheduler.Job. A failure on one security does not stop the
// others; the first error is reported.
func (j *SyncJob) Run() error {
	securities, err := j.securities()
	if err != nil {
		return err
	}

	var firstErr error
	synced := 0
	for _, security := range securities {
		// Codes without a contract suffix are glued series, e.g. "Si".
		update := j.service.Update
		if !strings.Contains(security, "-") {
			update = j.service.UpdateGlued
		}
		if err := update(security); err != nil {
			j.log.Error().Err(err).Str("security", security).Msg("History update failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		synced++
	}
	j.events.Emit(events.HistorySynced, "history", map[string]interface{}{
		"securities": len(securities),
		"synced":     synced,
	})
	return firstErr
}
