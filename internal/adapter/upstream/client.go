package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sfportal/internal/domain/incident"
)

// Client talks to the incidents API that feeds the explorer
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	maxBytes   int64
}

// NewClient creates a client for the given API base URL
func NewClient(baseURL string, timeout time.Duration, userAgent string, maxBytes int64) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		maxBytes:   maxBytes,
	}
}

// TimelineQuery parameterizes one timeline fetch
type TimelineQuery struct {
	Source           incident.SourceTable
	Limit            int
	PrioritizeCoords bool
}

// timelineResponse is the API envelope: data on success, error otherwise
type timelineResponse struct {
	Data    []incident.Record `json:"data"`
	Count   int               `json:"count"`
	Sources map[string]int    `json:"sources"`
	Error   string            `json:"error"`
}

// Timeline fetches one bounded batch of incident records. The request is
// aborted as soon as ctx is cancelled, which is how a newer fetch preempts a
// stale one.
func (c *Client) Timeline(ctx context.Context, q TimelineQuery) ([]incident.Record, error) {
	endpoint := c.baseURL + "/api/incidents/timeline"

	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Source != "" {
		params.Set("source", string(q.Source))
	}
	if q.PrioritizeCoords {
		params.Set("prioritize_coords", "true")
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch timeline: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var payload timelineResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if payload.Error != "" {
			return nil, fmt.Errorf("upstream error: %s", payload.Error)
		}
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return payload.Data, nil
}
