// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by the hub client.
package httputil

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RetryBaseDelay controls the base duration for exponential backoff on
// retryable responses. Tests override this to avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

// MaxRetryAfter caps how long a Retry-After header may make us wait.
var MaxRetryAfter = 2 * time.Minute

const defaultMaxRetries = 5

// Retryable reports whether a status code is worth retrying: rate limiting
// and transient gateway errors.
func Retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Doer sends requests with retry and optional pacing. The zero value uses
// http.DefaultClient with the default retry budget and no pacing.
type Doer struct {
	Client     *http.Client
	Limiter    *rate.Limiter
	MaxRetries int
}

// NewDoer returns a Doer pacing requests at rps per second (burst 1).
// rps <= 0 disables pacing.
func NewDoer(client *http.Client, rps float64, maxRetries int) *Doer {
	d := &Doer{Client: client, MaxRetries: maxRetries}
	if rps > 0 {
		d.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return d
}

// Do waits for the limiter, then delegates to DoWithRetry.
func (d *Doer) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	return DoWithRetry(ctx, client, req, d.MaxRetries)
}

// DoWithRetry executes an HTTP request and retries on 429 and 502/503/504
// with exponential backoff starting at RetryBaseDelay. A Retry-After header
// given in seconds overrides the computed backoff, capped at MaxRetryAfter.
//
// When maxRetries is 0 the default (5) is used. Requests with a body are
// only retried when req.GetBody is set. If the context is cancelled during a
// backoff wait the function returns ctx.Err(). After exhausting retries the
// last response is returned so the caller can inspect it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	log := zerolog.Ctx(ctx)

	for attempt := 0; ; attempt++ {
		attemptReq := req.Clone(ctx)
		if attempt > 0 && req.Body != nil {
			if req.GetBody == nil {
				return nil, fmt.Errorf("cannot retry %s %s: request body is not replayable", req.Method, req.URL)
			}
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewinding request body: %w", err)
			}
			attemptReq.Body = body
		}

		resp, err := client.Do(attemptReq)
		if err != nil {
			return nil, err
		}

		if !Retryable(resp.StatusCode) || attempt >= maxRetries {
			return resp, nil
		}

		backoff := time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay
		if ra := retryAfter(resp.Header.Get("Retry-After")); ra > 0 {
			backoff = min(ra, MaxRetryAfter)
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		log.Debug().
			Str("method", req.Method).
			Str("url", req.URL.Redacted()).
			Int("status", resp.StatusCode).
			Dur("backoff", backoff).
			Int("attempt", attempt+1).
			Int("max_retries", maxRetries).
			Msg("retrying request")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
