package gateway

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/n9te9/spacegraph/requestid"
)

// serviceSDLResponse is the answer of a subgraph to `{ _service { sdl } }`.
type serviceSDLResponse struct {
	Data struct {
		Service struct {
			SDL string `json:"sdl"`
		} `json:"_service"`
	} `json:"data"`
}

// RetryOption configures SDL fetching at startup and on reload.
type RetryOption struct {
	Attempts int    `yaml:"attempts"`
	Timeout  string `yaml:"timeout"`
	// Backoff is the pause between two attempts.
	Backoff string `yaml:"backoff,omitempty"`
}

func (r RetryOption) durations() (timeout, backoff time.Duration) {
	timeout = 5 * time.Second
	if r.Timeout != "" {
		if d, err := time.ParseDuration(r.Timeout); err == nil {
			timeout = d
		}
	}
	backoff = 500 * time.Millisecond
	if r.Backoff != "" {
		if d, err := time.ParseDuration(r.Backoff); err == nil {
			backoff = d
		}
	}
	return timeout, backoff
}

// fetchSDL asks host for its SDL, retrying up to retry.Attempts times. Each
// attempt has its own timeout; ctx bounds the whole operation.
func fetchSDL(ctx context.Context, host string, httpClient *http.Client, retry RetryOption) (string, error) {
	attempts := retry.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	timeout, backoff := retry.durations()

	body := []byte(`{"query":"{_service{sdl}}"}`)

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("fetching SDL from %s: %w", host, ctx.Err())
			case <-time.After(backoff):
			}
		}

		sdl, err := doFetchSDL(ctx, host, httpClient, body, timeout)
		if err == nil {
			return sdl, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("failed to fetch SDL from %s after %d attempt(s): %w", host, attempts, lastErr)
}

func doFetchSDL(ctx context.Context, host string, httpClient *http.Client, body []byte, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	requestid.Inject(ctx, req)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, host)
	}

	var svcResp serviceSDLResponse
	if err := json.NewDecoder(resp.Body).Decode(&svcResp); err != nil {
		return "", fmt.Errorf("failed to decode SDL response: %w", err)
	}

	if svcResp.Data.Service.SDL == "" {
		return "", fmt.Errorf("empty SDL returned from %s", host)
	}

	return svcResp.Data.Service.SDL, nil
}
