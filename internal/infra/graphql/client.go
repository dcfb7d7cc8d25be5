// Package graphql implements the HTTP transport for the commerce provider's
// GraphQL API.
//
// The client owns no resilience logic: it surfaces failures as structured
// *APIError values (or raw network errors) for the classifier, and cost
// extensions for the throttle. Callers compose it with the resilience core.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dtnghia/merchgate/internal/resilience/metrics"
)

// Config holds transport settings for one provider.
type Config struct {
	Name     string        `yaml:"name"`
	Endpoint string        `yaml:"endpoint"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Request is one GraphQL operation.
type Request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Response is the decoded GraphQL envelope.
type Response struct {
	Data       json.RawMessage `json:"data"`
	Errors     []GraphQLError  `json:"errors,omitempty"`
	Extensions *Extensions     `json:"extensions,omitempty"`
}

// Extensions carries provider metadata attached to a response.
type Extensions struct {
	Cost *CostInfo `json:"cost,omitempty"`
}

// CostInfo is the provider's authoritative cost accounting for one call.
type CostInfo struct {
	RequestedQueryCost float64        `json:"requestedQueryCost"`
	ActualQueryCost    float64        `json:"actualQueryCost"`
	ThrottleStatus     ThrottleStatus `json:"throttleStatus"`
}

// ThrottleStatus is the provider's view of the remaining cost budget.
type ThrottleStatus struct {
	MaximumAvailable   float64 `json:"maximumAvailable"`
	CurrentlyAvailable float64 `json:"currentlyAvailable"`
	RestoreRate        float64 `json:"restoreRate"`
}

// GraphQLError is one entry of the response errors array.
type GraphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// Client makes GraphQL calls over HTTP with a pooled transport.
type Client struct {
	name       string
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for one provider endpoint.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		name:     cfg.Name,
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return c.name
}

// Execute performs one GraphQL call. Network failures are returned wrapped so
// the classifier can inspect them structurally; provider failures come back
// as *APIError.
func (c *Client) Execute(ctx context.Context, gql Request) (*Response, error) {
	start := time.Now()

	body, err := json.Marshal(gql)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("X-API-Access-Token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	metrics.RequestLatency.WithLabelValues(c.name).Observe(time.Since(start).Seconds())

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &APIError{
			Provider:   c.name,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Throttled:  true,
			Message:    "provider throttled the request",
		}
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			Provider:   c.name,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, truncate(raw, 256)),
		}
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(out.Errors) > 0 {
		apiErr := &APIError{
			Provider:      c.name,
			StatusCode:    resp.StatusCode,
			GraphQLErrors: out.Errors,
			Message:       out.Errors[0].Message,
		}
		for _, e := range out.Errors {
			if e.Extensions.Code == "THROTTLED" {
				apiErr.Throttled = true
				apiErr.Message = "provider throttled the request"
			}
		}
		if out.Extensions != nil {
			apiErr.Cost = out.Extensions.Cost
		}
		return nil, apiErr
	}

	return &out, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(header, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
