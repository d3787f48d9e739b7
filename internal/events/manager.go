package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	StrategyStarted EventType = "STRATEGY_STARTED"
	StrategyStopped EventType = "STRATEGY_STOPPED"
	OrderSubmitted  EventType = "ORDER_SUBMITTED"
	PositionDrift   EventType = "POSITION_DRIFT"
	AdviceReceived  EventType = "ADVICE_RECEIVED"
	HistorySynced   EventType = "HISTORY_SYNCED"
	ErrorOccurred   EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// Store persists emitted events. A nil store keeps events log-only.
type Store interface {
	SaveEvent(event Event) error
}

// Manager handles event emission, logging and persistence
type Manager struct {
	store Store
	log   zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(store Store, log zerolog.Logger) *Manager {
	return &Manager{
		store: store,
		log:   log.With().Str("service", "events").Logger(),
	}
}

// Emit emits an event
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")

	if m.store != nil {
		if err := m.store.SaveEvent(event); err != nil {
			m.log.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to persist event")
		}
	}
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	data := map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	}
	m.Emit(ErrorOccurred, module, data)
}
