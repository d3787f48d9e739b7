// Package advisor is the HTTP client of the advisor server used in split
// deployments, where the advisor runs next to the history data and the
// trader runs next to the broker terminal.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/forts-trader/internal/domain"
)

const (
	// pollTimeout is the server side long-poll window in seconds.
	pollTimeout = 90
	// errorBackoff spaces retries after a failed poll. Advices arrive every
	// few minutes at most, so there is no hurry.
	errorBackoff = 3 * time.Minute
	// freshAge separates the replayed candle history from live bars; only
	// once live bars arrive is the buffered batch worth posting.
	freshAge = 9 * time.Minute

	timeFormat = "2006-01-02T15:04:05"
)

// Client implements domain.AdvisorSource over the advisor server HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
	log     zerolog.Logger
}

// NewClient creates a new advisor server client
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: (pollTimeout + 30) * time.Second,
		},
		now: time.Now,
		log: log.With().Str("client", "advisor").Logger(),
	}
}

// Securities returns the security codes the server advises on.
func (c *Client) Securities() ([]string, error) {
	resp, err := c.client.Get(c.baseURL + "/api/advisors")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnection, err)
	}
	defer resp.Body.Close()

	var securities []string
	if err := decodeJSON(resp, &securities); err != nil {
		return nil, err
	}
	return securities, nil
}

// Advices long-polls the server for fresh advices. The channel closes when
// the context is canceled.
func (c *Client) Advices(ctx context.Context, security string) (<-chan domain.Advice, error) {
	out := make(chan domain.Advice)
	go func() {
		defer close(out)
		var since time.Time
		for ctx.Err() == nil {
			advice, err := c.getAdvice(ctx, security, since)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.log.Error().Err(err).Str("security", security).Msg("GetAdvices error")
				select {
				case <-ctx.Done():
					return
				case <-time.After(errorBackoff):
				}
				continue
			}
			if advice == nil || !advice.Time.After(since) {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- *advice:
				since = advice.Time
			}
		}
	}()
	return out, nil
}

// PublishCandles posts broker candles to the server. Replayed history is
// buffered and flushed together with the first live bar; a failed post keeps
// the batch for the next attempt.
func (c *Client) PublishCandles(ctx context.Context, candles <-chan domain.Candle) error {
	var batch []domain.Candle
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case candle, ok := <-candles:
			if !ok {
				return nil
			}
			batch = append(batch, candle)
			if candle.Time.After(c.now().Add(-freshAge)) {
				if err := c.postCandles(ctx, batch); err != nil {
					c.log.Warn().Err(err).Msg("PublishCandles error")
					continue
				}
				batch = batch[:0]
			}
		}
	}
}

func (c *Client) getAdvice(ctx context.Context, security string, since time.Time) (*domain.Advice, error) {
	endpoint := fmt.Sprintf("%s/api/advisors/%s?timeout=%d",
		c.baseURL, url.PathEscape(security), pollTimeout)
	if !since.IsZero() {
		endpoint += "&since=" + url.QueryEscape(since.Format(timeFormat))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnection, err)
	}
	defer resp.Body.Close()

	var advice *domain.Advice
	if err := decodeJSON(resp, &advice); err != nil {
		return nil, err
	}
	return advice, nil
}

func (c *Client) postCandles(ctx context.Context, candles []domain.Candle) error {
	body, err := json.Marshal(candles)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/candles", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnection, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func decodeJSON(resp *http.Response, target interface{}) error {
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
