// Package datasource is the HTTP client every resolver uses to reach the mock
// REST data source. Each call issues exactly one GET and returns the decoded
// body unchanged.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/n9te9/spacegraph/metrics"
	"github.com/n9te9/spacegraph/requestid"
	"go.uber.org/zap"
)

// ErrNotFound is returned when the data source answers 404.
var ErrNotFound = errors.New("not found")

// StatusError is returned for any other non-2xx answer.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

type Astronaut struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Mission struct {
	ID          int    `json:"id"`
	Designation string `json:"designation"`
	StartDate   string `json:"startDate,omitempty"`
	EndDate     string `json:"endDate,omitempty"`
	Crew        []int  `json:"crew"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func New(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

func (c *Client) Astronauts(ctx context.Context) ([]Astronaut, error) {
	var out []Astronaut
	if err := c.get(ctx, "astronauts", "/astronauts", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Astronaut(ctx context.Context, id string) (*Astronaut, error) {
	var out Astronaut
	if err := c.get(ctx, "astronaut", "/astronauts/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Missions(ctx context.Context) ([]Mission, error) {
	var out []Mission
	if err := c.get(ctx, "missions", "/missions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Mission(ctx context.Context, id string) (*Mission, error) {
	var out Mission
	if err := c.get(ctx, "mission", "/missions/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Raw performs a GET on path and returns the status code and body as received.
// The REST bridge uses it to pass upstream payloads through untouched.
func (c *Client) Raw(ctx context.Context, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	requestid.Inject(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, v any) error {
	target := c.baseURL + path
	start := time.Now()

	status, body, err := c.Raw(ctx, path)
	metrics.ObserveDatasource(endpoint, status, time.Since(start))
	if err != nil {
		c.logger.Warn("datasource request failed", zap.String("url", target), zap.Error(err))
		return err
	}

	c.logger.Debug("datasource request",
		zap.String("url", target),
		zap.Int("status", status),
		zap.String("request_id", requestid.FromContext(ctx)),
	)

	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", target, ErrNotFound)
	case status < 200 || status > 299:
		return &StatusError{URL: target, StatusCode: status}
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", target, err)
	}
	return nil
}
