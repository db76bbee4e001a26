package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"sfportal/internal/domain/geo"
)

// ErrNoResult means the geocoder returned no match for the address
var ErrNoResult = errors.New("no geocoding result")

// Client geocodes street addresses through Nominatim. Requests are rate
// limited to honor the usage policy, which caps anonymous clients at one
// request per second.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
}

// NewClient creates a rate-limited geocoding client
func NewClient(baseURL, userAgent string, timeout time.Duration, rps float64) *Client {
	if rps <= 0 || rps > 1 {
		rps = 1
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// nominatimResult is one entry of the search response
type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves an address to a point. The address is qualified with the
// city and state so ambiguous street names resolve locally.
func (c *Client) Geocode(ctx context.Context, address string) (geo.Point, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return geo.Point{}, err
	}

	params := url.Values{}
	params.Set("q", fmt.Sprintf("%s, San Francisco, CA", address))
	params.Set("format", "json")
	params.Set("limit", "1")

	endpoint := c.baseURL + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return geo.Point{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return geo.Point{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return geo.Point{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return geo.Point{}, fmt.Errorf("read body: %w", err)
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return geo.Point{}, fmt.Errorf("decode response: %w", err)
	}
	if len(results) == 0 {
		return geo.Point{}, ErrNoResult
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("parse latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("parse longitude: %w", err)
	}

	return geo.Point{Lat: lat, Lon: lon}, nil
}
