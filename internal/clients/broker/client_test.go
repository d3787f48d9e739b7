package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/forts-trader/internal/domain"
)

func writeEnvelope(t *testing.T, w http.ResponseWriter, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	err = json.NewEncoder(w).Encode(ServiceResponse{
		Success:   true,
		Data:      raw,
		Timestamp: "2018-03-01T10:00:00",
	})
	require.NoError(t, err)
}

func writeFailure(t *testing.T, w http.ResponseWriter, message string) {
	t.Helper()
	err := json.NewEncoder(w).Encode(ServiceResponse{
		Success: false,
		Error:   &message,
	})
	require.NoError(t, err)
}

func TestClientPosition(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/portfolios/SPBFUT00001/positions/Si-3.18", r.URL.Path)
		writeEnvelope(t, w, map[string]int{"position": -3})
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())
	position, err := client.Position("SPBFUT00001", "Si-3.18")
	require.NoError(t, err)
	assert.Equal(t, -3, position)
}

func TestClientAmount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/portfolios/SPBFUT00001", r.URL.Path)
		writeEnvelope(t, w, map[string]float64{"amount": 2500000})
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())
	amount, err := client.Amount("SPBFUT00001")
	require.NoError(t, err)
	assert.Equal(t, 2500000.0, amount)
}

func TestClientSubmitOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/orders", r.URL.Path)

		var request map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(t, "Si-3.18", request["security"])
		assert.Equal(t, float64(-2), request["volume"])
		assert.Equal(t, 49950.0, request["price"])

		writeEnvelope(t, w, map[string]string{"order_id": "12345"})
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())
	orderID, err := client.SubmitOrder("SPBFUT00001", "Si-3.18", -2, 49950)
	require.NoError(t, err)
	assert.Equal(t, "12345", orderID)
}

func TestClientPortfolioNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(t, w, "Portfolio not found: SPBFUT00002")
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())
	_, err := client.Amount("SPBFUT00002")
	assert.ErrorIs(t, err, domain.ErrPortfolioNotFound)
}

func TestClientGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(t, w, "terminal offline")
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())
	_, err := client.Position("SPBFUT00001", "Si-3.18")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminal offline")
}

func TestClientConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(server.URL, zerolog.Nop())
	_, err := client.Position("SPBFUT00001", "Si-3.18")
	assert.ErrorIs(t, err, domain.ErrConnection)
}

func TestClientCandles(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/api/candles/Si-3.18", r.URL.Path)
		assert.Equal(t, "90", r.URL.Query().Get("timeout"))

		switch calls {
		case 1:
			assert.Empty(t, r.URL.Query().Get("since"))
			writeEnvelope(t, w, []map[string]interface{}{
				{"security": "Si-3.18", "time": "2018-03-01T10:00:00", "close": 58000.0, "volume": 100.0},
				{"security": "Si-3.18", "time": "2018-03-01T10:05:00", "close": 58100.0, "volume": 90.0},
			})
		default:
			assert.Equal(t, "2018-03-01T10:05:00", r.URL.Query().Get("since"))
			writeEnvelope(t, w, []map[string]interface{}{})
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(server.URL, zerolog.Nop())

	candles, err := client.Candles(ctx, "Si-3.18")
	require.NoError(t, err)

	first := <-candles
	assert.Equal(t, "Si-3.18", first.SecurityCode)
	assert.Equal(t, time.Date(2018, time.March, 1, 10, 0, 0, 0, time.Local), first.Time)
	assert.Equal(t, 58000.0, first.ClosePrice)

	second := <-candles
	assert.Equal(t, 58100.0, second.ClosePrice)

	cancel()
	for range candles {
	}
}
