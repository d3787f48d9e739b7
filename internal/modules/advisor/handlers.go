package advisor

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/forts-trader/internal/domain"
)

const (
	// maxPollTimeout caps how long a long-poll request may hold a server
	// goroutine.
	maxPollTimeout = 120 * time.Second

	defaultPollTimeout = 60 * time.Second

	// sinceFormat is the timestamp format of the since query parameter.
	sinceFormat = "2006-01-02T15:04:05"
)

// Handlers exposes the advisor HTTP API consumed by the trader process.
type Handlers struct {
	service *Service
	board   *Board
	hub     *CandleHub
	log     zerolog.Logger
}

// NewHandlers creates the advisor API handlers.
func NewHandlers(service *Service, board *Board, hub *CandleHub, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		board:   board,
		hub:     hub,
		log:     log.With().Str("handler", "advisor").Logger(),
	}
}

// Register mounts the advisor routes on the router.
func (h *Handlers) Register(r chi.Router) {
	r.Get("/api/advisors", h.HandleListAdvisors)
	r.Get("/api/advisors/{security}", h.HandleGetAdvice)
	r.Post("/api/candles", h.HandlePostCandles)
}

// HandleListAdvisors returns the configured security codes.
// GET /api/advisors
func (h *Handlers) HandleListAdvisors(w http.ResponseWriter, r *http.Request) {
	securities, err := h.service.Securities()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list advisors")
		http.Error(w, "Failed to list advisors", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, securities)
}

// HandleGetAdvice long-polls for an advice newer than since.
// GET /api/advisors/{security}?since=2006-01-02T15:04:05&timeout=90
// Responds with the advice, or JSON null when the timeout elapsed first.
func (h *Handlers) HandleGetAdvice(w http.ResponseWriter, r *http.Request) {
	security := chi.URLParam(r, "security")

	since := time.Time{}
	if param := r.URL.Query().Get("since"); param != "" {
		parsed, err := time.ParseInLocation(sinceFormat, param, time.Local)
		if err != nil {
			http.Error(w, "Invalid since parameter", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	timeout := defaultPollTimeout
	if param := r.URL.Query().Get("timeout"); param != "" {
		seconds, err := strconv.Atoi(param)
		if err != nil || seconds <= 0 {
			http.Error(w, "Invalid timeout parameter", http.StatusBadRequest)
			return
		}
		timeout = time.Duration(seconds) * time.Second
		if timeout > maxPollTimeout {
			timeout = maxPollTimeout
		}
	}

	advice := h.board.Wait(r.Context(), security, since, timeout)
	h.writeJSON(w, advice)
}

// HandlePostCandles ingests candles published by the trader process.
// POST /api/candles
func (h *Handlers) HandlePostCandles(w http.ResponseWriter, r *http.Request) {
	var candles []domain.Candle
	if err := json.NewDecoder(r.Body).Decode(&candles); err != nil {
		http.Error(w, "Invalid candle payload", http.StatusBadRequest)
		return
	}
	h.hub.Publish(candles)
	h.writeJSON(w, map[string]int{"accepted": len(candles)})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
