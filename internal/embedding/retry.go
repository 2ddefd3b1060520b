// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embedding

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/northbound-system/axon/internal/apperr"
)

// HTTPRetryConfig mirrors spec.md's §4.2 retry discipline.
type HTTPRetryConfig struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	Timeout    time.Duration
}

// DefaultHTTPRetryConfig matches spec.md's documented defaults.
func DefaultHTTPRetryConfig() HTTPRetryConfig {
	return HTTPRetryConfig{
		BaseDelay:  5 * time.Second,
		MaxDelay:   60 * time.Second,
		MaxRetries: 3,
		Timeout:    30 * time.Second,
	}
}

var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:     true,
	http.StatusTooManyRequests:    true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// retryingClient performs an HTTP round trip with exponential backoff, jitter,
// and a per-attempt timeout, per spec.md §4.2. Only the documented status
// codes and transport faults are retried; everything else is final.
type retryingClient struct {
	client *http.Client
	cfg    HTTPRetryConfig
}

func newRetryingClient(cfg HTTPRetryConfig) *retryingClient {
	return &retryingClient{client: &http.Client{}, cfg: cfg}
}

func (c *retryingClient) Do(ctx context.Context, buildReq func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		req, err := buildReq(attemptCtx)
		if err != nil {
			cancel()
			return nil, apperr.Wrap(apperr.InvalidInput, "build request", err)
		}

		resp, err := c.client.Do(req)
		if err == nil && !retryableStatus[resp.StatusCode] {
			cancel()
			return resp, nil
		}

		if err == nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = apperr.Wrap(apperr.BackendUnavailable, "non-2xx status", errStatus{code: resp.StatusCode, status: resp.Status, body: string(body)})
		} else if isRetryableTransport(err) {
			lastErr = apperr.Wrap(apperr.BackendUnavailable, "transport error", err)
		} else {
			cancel()
			return nil, apperr.Wrap(apperr.BackendUnavailable, "transport error", err)
		}
		cancel()

		if attempt == c.cfg.MaxRetries {
			break
		}
		if err := sleepBackoff(ctx, c.cfg, attempt); err != nil {
			return nil, apperr.Wrap(apperr.Cancelled, "cancelled during backoff", err)
		}
	}
	return nil, lastErr
}

type errStatus struct {
	code   int
	status string
	body   string
}

func (e errStatus) Error() string {
	return e.status + ": " + e.body
}

func sleepBackoff(ctx context.Context, cfg HTTPRetryConfig, attempt int) error {
	delay := cfg.BaseDelay << attempt
	if delay > cfg.MaxDelay || delay <= 0 {
		delay = cfg.MaxDelay
	}
	jitter := time.Duration(float64(delay) * (rand.Float64()*0.5 - 0.25)) // +/-25%
	delay += jitter
	if delay < 0 {
		delay = 0
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isRetryableTransport(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"connection reset", "connection refused", "timeout", "aborted", "eof"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
