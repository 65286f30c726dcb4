package polygon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/momentum/pkg/config"
	"github.com/wonny/momentum/pkg/httputil"
	"github.com/wonny/momentum/pkg/logger"
)

// ErrTransient marks an upstream failure (timeout, non-200, malformed body)
// that should not be retried immediately; the item is picked up again on a
// later scheduled run.
var ErrTransient = errors.New("transient upstream failure")

// ErrRateLimited is returned when a request kept hitting 429 until the
// retry ceiling was exhausted.
var ErrRateLimited = errors.New("rate limited by upstream")

// Client handles communication with the Polygon.io REST API.
// All Polygon calls go through this client: every request waits on a shared
// pacing limiter, and grouped (whole-market) fetches are additionally
// serialized so only one is in flight system-wide.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	cfg        config.PolygonConfig

	// limiter spaces out every call to stay under the upstream quota.
	// Waiting on it is a cooperative suspension point, not a busy sleep.
	limiter *rate.Limiter

	// groupedMu is the single-slot gate for grouped-daily fetches.
	groupedMu sync.Mutex
}

// NewClient creates a new Polygon client.
func NewClient(cfg config.PolygonConfig, httpClient *httputil.Client, log *logger.Logger) *Client {
	interval := cfg.CallInterval
	if interval <= 0 {
		interval = time.Second
	}

	return &Client{
		httpClient: httpClient,
		logger:     log,
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
	}
}

// getJSON performs a paced GET and decodes the body into out.
//
// 429 responses are retried after a fixed cooldown, bounded by
// MaxRateLimitRetries. Any other non-200, a network error, or a body that
// fails to decode is reported as ErrTransient: the caller treats the attempt
// as empty and defers to the next scheduled run.
func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := c.httpClient.Get(ctx, url)
		if err != nil {
			return fmt.Errorf("request failed: %w", ErrTransient)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			if attempt >= c.cfg.MaxRateLimitRetries {
				return fmt.Errorf("429 after %d retries: %w", attempt, ErrRateLimited)
			}

			c.logger.WithFields(map[string]interface{}{
				"cooldown": c.cfg.RateLimitCooldown,
				"attempt":  attempt + 1,
			}).Warn("Rate limited, cooling down")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.RateLimitCooldown):
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return fmt.Errorf("unexpected status %d: %w", resp.StatusCode, ErrTransient)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read body: %w", ErrTransient)
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode body: %w", ErrTransient)
		}

		return nil
	}
}
