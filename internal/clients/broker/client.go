// Package broker talks to the broker gateway microservice that fronts the
// exchange terminal. All trading and market data of the live session flows
// through it.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/forts-trader/internal/domain"
)

// candlePollTimeout is the long-poll window for the candle stream.
const candlePollTimeout = 90 * time.Second

// timeFormat is the timestamp format of the gateway API.
const timeFormat = "2006-01-02T15:04:05"

// Client for the broker gateway microservice
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// ServiceResponse is the standard response format
type ServiceResponse struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *string         `json:"error"`
	Timestamp string          `json:"timestamp"`
}

// NewClient creates a new broker gateway client
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			// Longer than the candle long-poll window.
			Timeout: candlePollTimeout + 30*time.Second,
		},
		log: log.With().Str("client", "broker").Logger(),
	}
}

// Position returns the net futures position of the security.
func (c *Client) Position(portfolio, security string) (int, error) {
	endpoint := fmt.Sprintf("/api/portfolios/%s/positions/%s",
		url.PathEscape(portfolio), url.PathEscape(security))
	resp, err := c.get(endpoint)
	if err != nil {
		return 0, err
	}

	var result struct {
		Position int `json:"position"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return 0, fmt.Errorf("failed to parse position: %w", err)
	}
	return result.Position, nil
}

// Amount returns the opening limit of the portfolio.
func (c *Client) Amount(portfolio string) (float64, error) {
	resp, err := c.get("/api/portfolios/" + url.PathEscape(portfolio))
	if err != nil {
		return 0, err
	}

	var result struct {
		Amount float64 `json:"amount"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return 0, fmt.Errorf("failed to parse portfolio: %w", err)
	}
	return result.Amount, nil
}

// SubmitOrder registers a limit order. A negative volume sells.
func (c *Client) SubmitOrder(portfolio, security string, volume int, price float64) (string, error) {
	request := map[string]interface{}{
		"portfolio": portfolio,
		"security":  security,
		"volume":    volume,
		"price":     price,
	}
	resp, err := c.post("/api/orders", request)
	if err != nil {
		return "", err
	}

	var result struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return "", fmt.Errorf("failed to parse order result: %w", err)
	}
	return result.OrderID, nil
}

// Candles streams five-minute candles of the security, history first and
// then live bars as the gateway publishes them. The channel closes when the
// context is canceled.
func (c *Client) Candles(ctx context.Context, security string) (<-chan domain.Candle, error) {
	out := make(chan domain.Candle)
	go func() {
		defer close(out)
		var since time.Time
		for ctx.Err() == nil {
			candles, err := c.pollCandles(ctx, security, since)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.log.Warn().Err(err).Str("security", security).Msg("Candle poll failed")
				select {
				case <-ctx.Done():
					return
				case <-time.After(10 * time.Second):
				}
				continue
			}
			for _, candle := range candles {
				select {
				case <-ctx.Done():
					return
				case out <- candle:
				}
				since = candle.Time
			}
		}
	}()
	return out, nil
}

func (c *Client) pollCandles(ctx context.Context, security string, since time.Time) ([]domain.Candle, error) {
	endpoint := fmt.Sprintf("/api/candles/%s?timeout=%d",
		url.PathEscape(security), int(candlePollTimeout.Seconds()))
	if !since.IsZero() {
		endpoint += "&since=" + url.QueryEscape(since.Format(timeFormat))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnection, err)
	}
	defer resp.Body.Close()

	parsed, err := c.parseResponse(resp)
	if err != nil {
		return nil, err
	}

	var payload []struct {
		SecurityCode string  `json:"security"`
		Time         string  `json:"time"`
		ClosePrice   float64 `json:"close"`
		Volume       float64 `json:"volume"`
	}
	if err := json.Unmarshal(parsed.Data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse candles: %w", err)
	}

	candles := make([]domain.Candle, 0, len(payload))
	for _, item := range payload {
		stamp, err := time.ParseInLocation(timeFormat, item.Time, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid candle time %q: %w", item.Time, err)
		}
		candles = append(candles, domain.Candle{
			SecurityCode: security,
			Time:         stamp,
			ClosePrice:   item.ClosePrice,
			Volume:       item.Volume,
		})
	}
	return candles, nil
}

// post makes a POST request to the gateway
func (c *Client) post(endpoint string, request interface{}) (*ServiceResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.client.Post(c.baseURL+endpoint, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnection, err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

// get makes a GET request to the gateway
func (c *Client) get(endpoint string) (*ServiceResponse, error) {
	resp, err := c.client.Get(c.baseURL + endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnection, err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

// parseResponse parses the gateway response envelope
func (c *Client) parseResponse(resp *http.Response) (*ServiceResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result ServiceResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !result.Success {
		errMsg := "unknown error"
		if result.Error != nil {
			errMsg = *result.Error
		}
		if strings.Contains(strings.ToLower(errMsg), "portfolio not found") {
			return &result, fmt.Errorf("%w: %s", domain.ErrPortfolioNotFound, errMsg)
		}
		return &result, fmt.Errorf("gateway error: %s", errMsg)
	}

	return &result, nil
}
