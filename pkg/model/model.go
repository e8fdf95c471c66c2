package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingLocation is returned when a request carries neither
// coordinates nor an address.
var ErrMissingLocation = errors.New("either coordinates or address is required")

// Category is an enumerated place kind.
type Category string

const (
	CategoryAll               Category = "All"
	CategoryRestaurant        Category = "Restaurant"
	CategoryCafe              Category = "Cafe"
	CategoryTouristAttraction Category = "TouristAttraction"
	CategoryMuseum            Category = "Museum"
	CategoryPark              Category = "Park"
	CategoryBar               Category = "Bar"
	CategoryHotel             Category = "Hotel"
	CategoryShopping          Category = "Shopping"
	CategoryEntertainment     Category = "Entertainment"
)

// Categories lists every valid category, CategoryAll first.
func Categories() []Category {
	return []Category{
		CategoryAll,
		CategoryRestaurant,
		CategoryCafe,
		CategoryTouristAttraction,
		CategoryMuseum,
		CategoryPark,
		CategoryBar,
		CategoryHotel,
		CategoryShopping,
		CategoryEntertainment,
	}
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

func (c Category) String() string { return string(c) }

// ConfidenceLevel is the coarse band a confidence score falls into.
type ConfidenceLevel string

const (
	LevelLow      ConfidenceLevel = "Low"
	LevelMedium   ConfidenceLevel = "Medium"
	LevelHigh     ConfidenceLevel = "High"
	LevelVeryHigh ConfidenceLevel = "VeryHigh"
)

// LevelForScore maps a confidence score to its band.
func LevelForScore(score float64) ConfidenceLevel {
	switch {
	case score >= 0.9:
		return LevelVeryHigh
	case score >= 0.7:
		return LevelHigh
	case score >= 0.4:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Clamp01 clamps v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Request is a recommendation request. Either coordinates or an address
// must be present.
type Request struct {
	Latitude     *float64          `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude    *float64          `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	Address      string            `json:"address,omitempty"`
	Category     Category          `json:"category,omitempty"`
	Categories   []Category        `json:"categories,omitempty"`
	MaxResults   int               `json:"maxResults,omitempty" validate:"omitempty,gte=1,lte=20"`
	RadiusMeters int               `json:"radiusMeters,omitempty" validate:"omitempty,gte=100,lte=50000"`
	ForceRefresh bool              `json:"forceRefresh,omitempty"`
	UserAPIKeys  map[string]string `json:"userApiKeys,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (r *Request) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Normalize applies defaults and validates category names. The singular
// Category field is an alias for a one-element list; Categories wins when
// both are set.
func (r *Request) Normalize() error {
	if !r.HasCoordinates() && r.Address == "" {
		return ErrMissingLocation
	}
	if len(r.Categories) == 0 {
		if r.Category != "" {
			r.Categories = []Category{r.Category}
		} else {
			r.Categories = []Category{CategoryAll}
		}
	}
	for i, c := range r.Categories {
		parsed, err := ParseCategory(string(c))
		if err != nil {
			return err
		}
		r.Categories[i] = parsed
	}
	r.Category = r.Categories[0]
	if r.MaxResults == 0 {
		r.MaxResults = 10
	}
	if r.RadiusMeters == 0 {
		r.RadiusMeters = 1000
	}
	return nil
}

// Recommendation is a single ranked place candidate.
type Recommendation struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Category       Category        `json:"category"`
	Confidence     float64         `json:"confidenceScore"`
	Level          ConfidenceLevel `json:"confidenceLevel"`
	Address        string          `json:"address,omitempty"`
	Latitude       *float64        `json:"latitude,omitempty"`
	Longitude      *float64        `json:"longitude,omitempty"`
	SourceProvider string          `json:"sourceProvider"`
	EnrichedPlace  *Place          `json:"enrichedPlace,omitempty"`
	Highlights     []string        `json:"highlights,omitempty"`
	WhyRecommended string          `json:"whyRecommended,omitempty"`
	AgreementCount int             `json:"agreementCount"`
}

// Place is a verified real-world place from the places provider.
type Place struct {
	Name                string   `json:"name"`
	Address             string   `json:"address,omitempty"`
	Latitude            float64  `json:"latitude"`
	Longitude           float64  `json:"longitude"`
	Category            string   `json:"category,omitempty"`
	Rating              *float64 `json:"rating,omitempty"`
	UserRatingsTotal    *int     `json:"userRatingsTotal,omitempty"`
	ExternalID          string   `json:"externalId,omitempty"`
	Phone               string   `json:"phone,omitempty"`
	Website             string   `json:"website,omitempty"`
	DistanceMeters      float64  `json:"distanceMeters"`
	IsVerifiedRealPlace bool     `json:"isVerifiedRealPlace"`
}

// ProviderResult is the outcome of one provider's generation call.
type ProviderResult struct {
	ProviderName    string           `json:"providerName"`
	Success         bool             `json:"success"`
	ErrorMessage    string           `json:"errorMessage,omitempty"`
	Recommendations []Recommendation `json:"recommendations"`
	RawResponse     string           `json:"-"`
	Elapsed         time.Duration    `json:"-"`
}

// ValidationEntry is one validator's verdict on one recommendation.
type ValidationEntry struct {
	Original          Recommendation `json:"original"`
	ValidationScore   float64        `json:"validationScore"`
	FlaggedInaccurate bool           `json:"flaggedAsInaccurate"`
	FlaggedOutOfRange bool           `json:"flaggedAsOutOfRange"`
	Comment           string         `json:"comment,omitempty"`
}

// CrossValidationResult is one (validator, source) pairing's scored list.
type CrossValidationResult struct {
	ValidatedBy    string            `json:"validatedBy"`
	OriginalSource string            `json:"originalSource"`
	Items          []ValidationEntry `json:"items"`
}

// Metadata describes how a response was produced.
type Metadata struct {
	ProvidersUsed        []string `json:"providersUsed"`
	ProvidersFailed      []string `json:"providersFailed,omitempty"`
	GooglePlacesEnriched bool     `json:"googlePlacesEnriched"`
	TotalCandidates      int      `json:"totalCandidatesEvaluated"`
	ElapsedMs            int64    `json:"elapsedMs"`
	SynthesizedBy        string   `json:"synthesizedBy,omitempty"`
}

// Response is the consolidated, ranked answer for a request.
type Response struct {
	Latitude        float64          `json:"latitude"`
	Longitude       float64          `json:"longitude"`
	ResolvedAddress string           `json:"resolvedAddress,omitempty"`
	Category        Category         `json:"category"`
	Categories      []Category       `json:"categories"`
	Recommendations []Recommendation `json:"recommendations"`
	Metadata        Metadata         `json:"metadata"`
	FromCache       bool             `json:"fromCache"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}
