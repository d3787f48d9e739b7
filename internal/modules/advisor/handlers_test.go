package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/forts-trader/internal/domain"
)

func newHandlersFixture() (*Handlers, *Board, *CandleHub) {
	configs := []domain.StrategyConfig{
		{Name: "dual", SecurityCode: "Si-3.18"},
		{Name: "breakout", SecurityCode: "RTS-3.18"},
	}
	service := NewService(NewRegistry(), configs, nil, nil, zerolog.Nop())
	board := NewBoard()
	hub := NewCandleHub(zerolog.Nop())
	return NewHandlers(service, board, hub, zerolog.Nop()), board, hub
}

func serveHandlers(h *Handlers) *httptest.Server {
	router := chi.NewRouter()
	h.Register(router)
	return httptest.NewServer(router)
}

func TestHandleListAdvisors(t *testing.T) {
	handlers, _, _ := newHandlersFixture()
	server := serveHandlers(handlers)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/advisors")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var securities []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&securities))
	assert.Equal(t, []string{"Si-3.18", "RTS-3.18"}, securities)
}

func TestHandleGetAdviceReturnsFresh(t *testing.T) {
	handlers, board, _ := newHandlersFixture()
	server := serveHandlers(handlers)
	defer server.Close()

	stamp := day(1, 12, 30)
	board.Publish(domain.Advice{
		SecurityCode: "Si-3.18",
		Time:         stamp,
		Price:        58000,
		Position:     0.5,
	})

	resp, err := http.Get(server.URL + "/api/advisors/Si-3.18?timeout=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var advice *domain.Advice
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&advice))
	require.NotNil(t, advice)
	assert.Equal(t, 58000.0, advice.Price)
	assert.Equal(t, 0.5, advice.Position)
	assert.True(t, advice.Time.Equal(stamp))
}

func TestHandleGetAdviceTimesOut(t *testing.T) {
	handlers, _, _ := newHandlersFixture()
	server := serveHandlers(handlers)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/advisors/Si-3.18?timeout=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var advice *domain.Advice
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&advice))
	assert.Nil(t, advice)
}

func TestHandleGetAdviceInvalidParams(t *testing.T) {
	handlers, _, _ := newHandlersFixture()
	server := serveHandlers(handlers)
	defer server.Close()

	for _, query := range []string{"?since=yesterday", "?timeout=0", "?timeout=soon"} {
		resp, err := http.Get(server.URL + "/api/advisors/Si-3.18" + query)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
	}
}

func TestHandlePostCandles(t *testing.T) {
	handlers, _, hub := newHandlersFixture()
	server := serveHandlers(handlers)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	candles, err := hub.Candles(ctx, "Si-3.18")
	require.NoError(t, err)

	payload := `[{"security_code":"Si-3.18","time":"2018-03-01T10:00:00+03:00","close_price":58000,"volume":10}]`
	resp, err := http.Post(server.URL+"/api/candles", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case candle := <-candles:
		assert.Equal(t, "Si-3.18", candle.SecurityCode)
		assert.Equal(t, 58000.0, candle.ClosePrice)
	case <-time.After(time.Second):
		t.Fatal("published candle did not reach the hub subscriber")
	}
}

func TestHandlePostCandlesRejectsBadPayload(t *testing.T) {
	handlers, _, _ := newHandlersFixture()
	server := serveHandlers(handlers)
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/candles", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
