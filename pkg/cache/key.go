package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strconv"
	"strings"

	"cicerone/pkg/model"
)

// keyPrefix versions the cache namespace. Bump it when the response shape
// or the scoring semantics change incompatibly.
const keyPrefix = "rec:v1"

// Prefix returns the cache key namespace, for purge operations.
func Prefix() string {
	return keyPrefix + ":"
}

// CoordinateKey builds the cache key for a coordinate request. Coordinates
// are rounded half-away-from-zero to precision decimals and formatted with
// exactly that many fraction digits, so nearby requests land in the same
// grid cell and produce byte-identical keys.
func CoordinateKey(lat, lng float64, categories []model.Category, precision int) string {
	if precision <= 0 {
		precision = 3
	}
	return keyPrefix + ":" + gridCoord(lat, precision) + ":" + gridCoord(lng, precision) + ":" + categoryPart(categories)
}

// AddressKey builds the cache key for an address request that could not be
// geocoded. The address is trimmed and lowercased before hashing so
// trivially different spellings coalesce.
func AddressKey(address string, categories []model.Category) string {
	norm := strings.ToLower(strings.TrimSpace(address))
	sum := sha256.Sum256([]byte(norm))
	h := strings.ToUpper(hex.EncodeToString(sum[:]))[:16]

	cat := string(model.CategoryAll)
	if len(categories) == 1 {
		cat = string(categories[0])
	}
	return keyPrefix + ":addr:" + h + ":" + cat
}

func gridCoord(v float64, precision int) string {
	p := math.Pow(10, float64(precision))
	r := math.Round(v*p) / p
	if r == 0 {
		r = 0 // collapse negative zero
	}
	return strconv.FormatFloat(r, 'f', precision, 64)
}

func categoryPart(categories []model.Category) string {
	if len(categories) == 0 {
		return string(model.CategoryAll)
	}
	if len(categories) == 1 {
		return string(categories[0])
	}
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	sort.Strings(names)
	return strings.Join(names, "+")
}
