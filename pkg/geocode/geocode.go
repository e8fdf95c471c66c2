// Package geocode resolves addresses to coordinates and back using a
// Nominatim instance. Lookups are rate-limited to one request per second per
// the OSM usage policy; a small in-memory TTL memo keeps repeated lookups
// for the same address or grid cell off the wire.
package geocode

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cicerone/pkg/config"
)

// Location is a resolved geographic point with its display name.
type Location struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DisplayName string  `json:"displayName"`
}

// Service is the geocoding facade used by the pipeline and the API surface.
type Service struct {
	client  *nominatimClient
	forward *memo[Location]
	reverse *memo[string]
}

// NewService creates a geocoding service from configuration.
func NewService(cfg *config.GeocoderConfig) *Service {
	memoTTL := time.Duration(cfg.MemoTTL)
	if memoTTL <= 0 {
		memoTTL = 15 * time.Minute
	}
	return &Service{
		client:  newNominatimClient(cfg.BaseURL, cfg.UserAgent, time.Duration(cfg.Timeout)),
		forward: newMemo[Location](memoTTL),
		reverse: newMemo[string](memoTTL),
	}
}

// Forward resolves a free-text address to coordinates and a canonical
// display name. An address Nominatim does not know yields an error.
func (s *Service) Forward(ctx context.Context, address string) (*Location, error) {
	key := strings.ToLower(strings.TrimSpace(address))
	if key == "" {
		return nil, fmt.Errorf("address cannot be empty")
	}
	if loc, ok := s.forward.get(key); ok {
		return &loc, nil
	}

	results, err := s.client.search(ctx, address, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no results for %q", address)
	}

	loc, err := toLocation(results[0])
	if err != nil {
		return nil, err
	}
	s.forward.put(key, loc)
	return &loc, nil
}

// Reverse resolves coordinates to a display name. The memo key rounds to
// three decimals, the same cell size the response cache uses.
func (s *Service) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	key := fmt.Sprintf("%.3f:%.3f", lat, lng)
	if name, ok := s.reverse.get(key); ok {
		return name, nil
	}

	result, err := s.client.reverse(ctx, lat, lng)
	if err != nil {
		return "", err
	}
	if result.DisplayName == "" {
		return "", fmt.Errorf("no display name for %.6f,%.6f", lat, lng)
	}
	s.reverse.put(key, result.DisplayName)
	return result.DisplayName, nil
}

// Suggest returns up to limit candidate locations for a partial query. It
// backs the autocomplete endpoint and is never memoized: prefixes rarely
// repeat and stale suggestions are worse than none.
func (s *Service) Suggest(ctx context.Context, query string, limit int) ([]Location, error) {
	if limit <= 0 {
		limit = 5
	}
	results, err := s.client.search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	locations := make([]Location, 0, len(results))
	for _, r := range results {
		loc, err := toLocation(r)
		if err != nil {
			continue
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

func toLocation(r searchResult) (Location, error) {
	lat, err := parseCoord(r.Lat)
	if err != nil {
		return Location{}, fmt.Errorf("parse latitude %q: %w", r.Lat, err)
	}
	lng, err := parseCoord(r.Lon)
	if err != nil {
		return Location{}, fmt.Errorf("parse longitude %q: %w", r.Lon, err)
	}
	return Location{Latitude: lat, Longitude: lng, DisplayName: r.DisplayName}, nil
}
