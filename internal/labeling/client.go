// internal/labeling/client.go
package labeling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrLabelerStatus is returned when the labeling endpoint answers with a non-2xx status
var ErrLabelerStatus = errors.New("labeler returned error status")

// ClientConfig configures the HTTP labeling client
type ClientConfig struct {
	URL           string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// Client calls a remote span-labeling endpoint
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a labeling client. A zero RatePerSecond disables pacing.
func NewClient(config ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	limit := rate.Inf
	if config.RatePerSecond > 0 {
		limit = rate.Limit(config.RatePerSecond)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger.Named("labeler"),
	}
}

// Label implements LabelFunc
func (c *Client) Label(ctx context.Context, payload Payload) (Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("labeler rate limit: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("label spans: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("%w: %d %s", ErrLabelerStatus, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode labeler response: %w", err)
	}

	c.logger.Debug("labeled spans",
		zap.Int("spans", len(result.Spans)),
		zap.Duration("duration", time.Since(start)))

	return result, nil
}
