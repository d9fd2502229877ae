// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gateway provides a resilient HTTP client for the knowledge-graph
// query gateway, with retry, exponential backoff with jitter, and
// OpenTelemetry tracing.
//
// This is the ONLY component that retries: query execution above it treats
// every error as final, so retry policy lives in one place.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/conceptweave/services/queryprog/ast"
	"github.com/AleutianAI/conceptweave/services/queryprog/exec"
)

var (
	// ErrGatewayUnavailable is returned when the gateway cannot be reached
	// after all retries.
	ErrGatewayUnavailable = errors.New("query gateway is not available")

	// ErrEndpointNotAllowed is returned for API calls outside the
	// allow-list. The client enforces this independently of validation so
	// a hand-built request cannot bypass it.
	ErrEndpointNotAllowed = errors.New("endpoint is not on the allow-list")

	// ErrBadStatus is returned when the gateway answers with a non-2xx
	// status that is not worth retrying.
	ErrBadStatus = errors.New("query gateway returned an error status")
)

// Config configures the gateway client.
type Config struct {
	// BaseURL is the gateway root (e.g. "http://localhost:7801").
	BaseURL string

	// Timeout bounds a single HTTP attempt. Default: 30s.
	Timeout time.Duration

	// RetryAttempts is the number of retries after the first attempt.
	// Default: 3.
	RetryAttempts int

	// RetryBackoff is the initial backoff between retries. Default: 100ms.
	RetryBackoff time.Duration

	// MaxRetryBackoff caps the exponential backoff. Default: 5s.
	MaxRetryBackoff time.Duration

	// RetryJitter adds randomness to backoff (0.0-1.0). Default: 0.25.
	RetryJitter float64

	// Logger for request logging. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a configuration with production defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:         baseURL,
		Timeout:         30 * time.Second,
		RetryAttempts:   3,
		RetryBackoff:    100 * time.Millisecond,
		MaxRetryBackoff: 5 * time.Second,
		RetryJitter:     0.25,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig(c.BaseURL)
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = d.RetryAttempts
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.MaxRetryBackoff == 0 {
		c.MaxRetryBackoff = d.MaxRetryBackoff
	}
	if c.RetryJitter == 0 {
		c.RetryJitter = d.RetryJitter
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client executes Cypher queries and allow-listed API calls against the
// knowledge-graph gateway. It implements exec.QueryService.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	config Config
	http   *http.Client
	logger *slog.Logger
}

var _ exec.QueryService = (*Client)(nil)

// NewClient creates a gateway client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("gateway base url is required")
	}
	cfg.applyDefaults()
	if cfg.RetryJitter < 0 || cfg.RetryJitter > 1 {
		return nil, errors.New("retry jitter must be between 0 and 1")
	}
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: cfg.Logger,
	}, nil
}

// queryPayload is the wire request for Cypher execution.
type queryPayload struct {
	Query  string         `json:"query,omitempty"`
	Limit  int            `json:"limit,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Query executes one query request against the gateway.
//
// Description:
//
//	Cypher requests POST to {base}/query. API requests POST to the named
//	endpoint, which must be on the allow-list. Transport failures and
//	5xx responses are retried with exponential backoff; 4xx responses
//	are not.
//
// Thread Safety: Safe for concurrent use.
func (c *Client) Query(ctx context.Context, req exec.QueryRequest) (*exec.ResultSet, error) {
	ctx, span := otel.Tracer("conceptweave.queryprog.gateway").Start(ctx, "gateway.Query",
		trace.WithAttributes(
			attribute.String("endpoint", req.Endpoint),
			attribute.Int("limit", req.Limit),
		),
	)
	defer span.End()

	var (
		path    string
		payload queryPayload
	)
	switch {
	case req.Endpoint != "":
		if !ast.EndpointAllowed(req.Endpoint) {
			span.SetStatus(codes.Error, "endpoint denied")
			return nil, fmt.Errorf("%w: %s", ErrEndpointNotAllowed, req.Endpoint)
		}
		path = req.Endpoint
		payload = queryPayload{Params: req.Params}
	default:
		path = "/query"
		payload = queryPayload{Query: req.Query, Limit: req.Limit, Params: req.Params}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode gateway request: %w", err)
	}

	var result exec.ResultSet
	var lastErr error
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.calculateBackoff(attempt)
			span.AddEvent("retry", trace.WithAttributes(
				attribute.Int("attempt", attempt),
				attribute.Int64("backoff_ms", backoff.Milliseconds()),
			))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = c.post(ctx, path, body, &result)
		if lastErr == nil {
			span.SetStatus(codes.Ok, "success")
			return &result, nil
		}
		if !isRetryable(lastErr) {
			break
		}
		c.logger.Warn("gateway request failed, will retry",
			"path", path, "attempt", attempt, "error", lastErr)
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "all attempts failed")
	if isRetryable(lastErr) {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, lastErr)
	}
	return nil, lastErr
}

// post performs one HTTP attempt and decodes the response.
func (c *Client) post(ctx context.Context, path string, body []byte, out *exec.ResultSet) error {
	url := strings.TrimSuffix(c.config.BaseURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return &transportError{err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return &transportError{err: fmt.Errorf("gateway status %d", resp.StatusCode)}
	case resp.StatusCode >= 300:
		return fmt.Errorf("%w: %d: %s", ErrBadStatus, resp.StatusCode, truncate(data, 256))
	}

	*out = exec.ResultSet{}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

// transportError marks an error as retryable.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// calculateBackoff returns the exponential backoff for an attempt with
// jitter applied.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := float64(c.config.RetryBackoff) * math.Pow(2, float64(attempt-1))
	if max := float64(c.config.MaxRetryBackoff); backoff > max {
		backoff = max
	}
	if j := c.config.RetryJitter; j > 0 {
		backoff *= 1 + j*(2*rand.Float64()-1)
	}
	return time.Duration(backoff)
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
