package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// APIError is a non-2xx response from the issuer. Message carries the issuer's own
// "error" or "message" field when the body has one, else the status text.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("token issuer error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the status is worth retrying (5xx or 429).
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
		Body:       body,
	}
	if gjson.ValidBytes(body) {
		for _, field := range []string{"error", "message"} {
			if reason := gjson.GetBytes(body, field); reason.Type == gjson.String && reason.Str != "" {
				apiErr.Message = reason.Str
				break
			}
		}
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}
	return apiErr
}

// send issues one request against the issuer and returns the body of a 2xx response.
func (c *Client) send(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build issuer request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call issuer: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read issuer response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, newAPIError(resp, body)
	}
	return body, nil
}

// sendWithRetry retries 5xx and 429 answers. The wait doubles per attempt with +/-50%
// jitter and never undercuts the issuer's Retry-After.
func (c *Client) sendWithRetry(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	backoff := c.retryBackoff

	var lastErr error
	for attempt := 0; ; attempt++ {
		body, err := c.send(ctx, method, path, query)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return nil, err
		}
		if attempt >= c.maxRetries {
			break
		}

		wait := backoff/2 + time.Duration(rand.Int63n(int64(backoff)+1))
		wait = max(wait, apiErr.RetryAfter)
		c.logger.Warn("token issuer request failed, retrying",
			"path", path,
			"status", apiErr.StatusCode,
			"reason", apiErr.Message,
			"attempt", attempt+1,
			"wait", wait,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("token issuer %s: max retries exceeded: %w", path, lastErr)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.sendWithRetry(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode issuer response: %w", err)
	}
	return nil
}
