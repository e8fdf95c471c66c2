// Package places fetches real-world places from the Google Places API (New)
// and matches them against model recommendations. A matched place is the
// pipeline's only ground truth: everything else is model opinion.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"cicerone/pkg/config"
	"cicerone/pkg/model"
	"cicerone/pkg/request"
)

// fieldMask limits the response to the fields the Place record carries.
// Fewer fields also means a cheaper SKU.
const fieldMask = "places.id,places.displayName,places.formattedAddress,places.location," +
	"places.types,places.rating,places.userRatingCount,places.nationalPhoneNumber,places.websiteUri"

// Client is a Places API (New) searchNearby client.
type Client struct {
	cfg *config.PlacesConfig
	rc  *request.Client
}

// NewClient creates a places client on the shared request client, which
// provides queuing, retries and the response cache.
func NewClient(cfg *config.PlacesConfig, rc *request.Client) *Client {
	return &Client{cfg: cfg, rc: rc}
}

// Available reports whether the provider is configured.
func (c *Client) Available() bool {
	return c.cfg != nil && c.cfg.Key != ""
}

// nearbyRequest is the searchNearby body.
type nearbyRequest struct {
	IncludedTypes       []string            `json:"includedTypes,omitempty"`
	MaxResultCount      int                 `json:"maxResultCount"`
	LocationRestriction locationRestriction `json:"locationRestriction"`
}

type locationRestriction struct {
	Circle circle `json:"circle"`
}

type circle struct {
	Center latLng  `json:"center"`
	Radius float64 `json:"radius"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// nearbyResponse is the searchNearby response envelope.
type nearbyResponse struct {
	Places []placeResult `json:"places"`
}

type placeResult struct {
	ID          string `json:"id"`
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	FormattedAddress    string   `json:"formattedAddress"`
	Location            latLng   `json:"location"`
	Types               []string `json:"types"`
	Rating              *float64 `json:"rating"`
	UserRatingCount     *int     `json:"userRatingCount"`
	NationalPhoneNumber string   `json:"nationalPhoneNumber"`
	WebsiteURI          string   `json:"websiteUri"`
}

// SearchNearby returns up to the configured maximum of real places around
// (lat, lng) for the category. Results carry the distance from the search
// point and are marked verified.
func (c *Client) SearchNearby(ctx context.Context, lat, lng float64, category model.Category, radiusMeters int) ([]model.Place, error) {
	if !c.Available() {
		return nil, fmt.Errorf("places provider is not configured")
	}

	maxResults := c.cfg.MaxResults
	if maxResults <= 0 || maxResults > 20 {
		maxResults = 20
	}
	radius := float64(radiusMeters)
	if radius <= 0 {
		radius = float64(c.cfg.DefaultRadius)
	}

	nreq := nearbyRequest{
		IncludedTypes:  typesForCategory(category),
		MaxResultCount: maxResults,
		LocationRestriction: locationRestriction{
			Circle: circle{
				Center: latLng{Latitude: lat, Longitude: lng},
				Radius: radius,
			},
		},
	}
	body, err := json.Marshal(nreq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	timeout := time.Duration(c.cfg.Timeout)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	headers := map[string]string{
		"Content-Type":     "application/json",
		"X-Goog-Api-Key":   c.cfg.Key,
		"X-Goog-FieldMask": fieldMask,
	}

	base := strings.TrimSuffix(c.cfg.BaseURL, "/")
	u := base + "/places:searchNearby"

	cacheKey := fmt.Sprintf("places:nearby:%.3f:%.3f:%s:%d", lat, lng, category, int(radius))
	respBody, err := c.rc.PostWithCache(ctx, u, body, headers, cacheKey, time.Duration(c.cfg.CacheTTL))
	if err != nil {
		return nil, fmt.Errorf("places search: %w", err)
	}

	var nresp nearbyResponse
	if err := json.Unmarshal(respBody, &nresp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	origin := orb.Point{lng, lat}
	results := make([]model.Place, 0, len(nresp.Places))
	for _, p := range nresp.Places {
		if p.DisplayName.Text == "" {
			continue
		}
		results = append(results, model.Place{
			Name:                p.DisplayName.Text,
			Address:             p.FormattedAddress,
			Latitude:            p.Location.Latitude,
			Longitude:           p.Location.Longitude,
			Category:            primaryType(p.Types),
			Rating:              p.Rating,
			UserRatingsTotal:    p.UserRatingCount,
			ExternalID:          p.ID,
			Phone:               p.NationalPhoneNumber,
			Website:             p.WebsiteURI,
			DistanceMeters:      geo.DistanceHaversine(origin, orb.Point{p.Location.Longitude, p.Location.Latitude}),
			IsVerifiedRealPlace: true,
		})
	}
	return results, nil
}

// typesForCategory maps a category to Places API place types. The All
// sentinel unions every category's primary type in one search.
func typesForCategory(c model.Category) []string {
	switch c {
	case model.CategoryRestaurant:
		return []string{"restaurant"}
	case model.CategoryCafe:
		return []string{"cafe", "coffee_shop"}
	case model.CategoryTouristAttraction:
		return []string{"tourist_attraction"}
	case model.CategoryMuseum:
		return []string{"museum"}
	case model.CategoryPark:
		return []string{"park"}
	case model.CategoryBar:
		return []string{"bar"}
	case model.CategoryHotel:
		return []string{"lodging"}
	case model.CategoryShopping:
		return []string{"shopping_mall", "store"}
	case model.CategoryEntertainment:
		return []string{"movie_theater", "night_club", "amusement_park"}
	}
	return []string{
		"restaurant", "cafe", "tourist_attraction", "museum", "park",
		"bar", "lodging", "shopping_mall", "movie_theater",
	}
}

func primaryType(types []string) string {
	if len(types) == 0 {
		return ""
	}
	return types[0]
}
