package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPostTimeout = 5 * time.Second
	defaultRetryDelay  = 200 * time.Millisecond
	maxRetryAfter      = 5 * time.Second
	maxErrorBody       = 1 << 10
)

// DeliveryError is a non-2xx answer from an alert endpoint.
type DeliveryError struct {
	Sink   string
	Status int
	Body   string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s returned %d %s: %s", e.Sink, e.Status, http.StatusText(e.Status), e.Body)
}

// Retryable reports whether resending may succeed: throttling and server errors.
func (e *DeliveryError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// Poster sends JSON payloads to one alert endpoint with bounded retries.
// Transport failures, 429 and 5xx are retried with linear backoff; other 4xx are final.
type Poster struct {
	Sink      string // name used in errors, e.g. "slack"
	Client    *http.Client
	Retries   int
	BaseDelay time.Duration
}

// NewPoster fills defaults: a client with timeout (5s when zero) and a 200ms base delay.
func NewPoster(sink string, client *http.Client, timeout time.Duration, retries int) Poster {
	if timeout <= 0 {
		timeout = defaultPostTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return Poster{Sink: sink, Client: client, Retries: max(retries, 0), BaseDelay: defaultRetryDelay}
}

// PostJSON encodes payload and delivers it to endpoint.
func (p Poster) PostJSON(ctx context.Context, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", p.Sink, err)
	}

	var lastErr error
	for attempt := 0; attempt <= p.Retries; attempt++ {
		var wait time.Duration
		wait, lastErr = p.send(ctx, endpoint, body)
		if lastErr == nil {
			return nil
		}
		var de *DeliveryError
		if errors.As(lastErr, &de) && !de.Retryable() {
			return lastErr
		}
		if attempt == p.Retries {
			break
		}
		if wait <= 0 {
			wait = time.Duration(attempt+1) * p.BaseDelay
		}
		if sleepErr := sleepCtx(ctx, wait); sleepErr != nil {
			return sleepErr
		}
	}
	return lastErr
}

// send performs one request. The returned duration is a server-requested Retry-After.
func (p Poster) send(ctx context.Context, endpoint string, body []byte) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create %s request: %w", p.Sink, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s request failed: %w", p.Sink, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if _, err = io.Copy(io.Discard, resp.Body); err != nil {
			return 0, fmt.Errorf("drain %s response: %w", p.Sink, err)
		}
		return 0, nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return retryAfter(resp.Header.Get("Retry-After")), &DeliveryError{
		Sink:   p.Sink,
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(snippet)),
	}
}

// retryAfter parses a delay-seconds Retry-After header, capped so shutdown is never held up.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
