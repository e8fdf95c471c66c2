package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	// defaultBaseURL is the public Nominatim endpoint.
	defaultBaseURL = "https://nominatim.openstreetmap.org"
	// defaultRateLimit follows the OSM usage policy: one request per second.
	defaultRateLimit = rate.Limit(1.0)
	// maxRetries for transient upstream errors.
	maxRetries = 2
	// retryBaseDelay is the initial backoff delay.
	retryBaseDelay = 1 * time.Second

	defaultTimeout = 10 * time.Second
)

// nominatimClient talks to a Nominatim instance. All calls pass through a
// shared rate limiter and retry 429s and 5xx with exponential backoff.
type nominatimClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
}

func newNominatimClient(baseURL, userAgent string, timeout time.Duration) *nominatimClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &nominatimClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		userAgent:  userAgent,
		limiter:    rate.NewLimiter(defaultRateLimit, 1),
	}
}

// searchResult is one entry of a /search response (format=jsonv2).
// Nominatim serializes coordinates as strings.
type searchResult struct {
	PlaceID     int64  `json:"place_id"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
	Class       string `json:"class"`
}

// reverseResult is a /reverse response. An out-of-coverage point yields an
// error body instead of a result.
type reverseResult struct {
	PlaceID     int64  `json:"place_id"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Error       string `json:"error,omitempty"`
}

func (c *nominatimClient) search(ctx context.Context, query string, limit int) ([]searchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if limit <= 0 {
		limit = 1
	}
	if limit > 50 {
		limit = 50
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", strconv.Itoa(limit))

	var results []searchResult
	if err := c.doWithRetry(ctx, c.baseURL+"/search?"+params.Encode(), &results); err != nil {
		return nil, fmt.Errorf("search geocoding: %w", err)
	}
	return results, nil
}

func (c *nominatimClient) reverse(ctx context.Context, lat, lng float64) (*reverseResult, error) {
	if lat < -90 || lat > 90 {
		return nil, fmt.Errorf("invalid latitude: %f", lat)
	}
	if lng < -180 || lng > 180 {
		return nil, fmt.Errorf("invalid longitude: %f", lng)
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Set("lon", strconv.FormatFloat(lng, 'f', 6, 64))
	params.Set("format", "jsonv2")

	var result reverseResult
	if err := c.doWithRetry(ctx, c.baseURL+"/reverse?"+params.Encode(), &result); err != nil {
		return nil, fmt.Errorf("reverse geocoding: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("reverse geocoding: %s", result.Error)
	}
	return &result, nil
}

// doWithRetry executes a GET with rate limiting and exponential backoff on
// transient failures. Non-retryable statuses fail immediately.
func (c *nominatimClient) doWithRetry(ctx context.Context, requestURL string, result any) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error (%d)", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}

		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("parse json: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func parseCoord(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
