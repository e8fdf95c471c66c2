package places

import (
	"strings"

	"cicerone/pkg/model"
)

// BestMatch finds the real place corresponding to a recommended name, or nil.
// Both sides are normalized first. Strategies run strictest-first across the
// whole list: exact equality, then substring containment either direction,
// then word overlap. The first strategy with a hit decides, so a sloppy
// overlap can never shadow an exact match further down the list.
func BestMatch(recommendationName string, places []model.Place) *model.Place {
	name := model.NormalizeName(recommendationName)
	if name == "" {
		return nil
	}

	for _, p := range places {
		if model.NormalizeName(p.Name) == name {
			return &p
		}
	}

	for _, p := range places {
		pn := model.NormalizeName(p.Name)
		if pn == "" {
			continue
		}
		if strings.Contains(pn, name) || strings.Contains(name, pn) {
			return &p
		}
	}

	for _, p := range places {
		if wordOverlap(name, model.NormalizeName(p.Name)) >= 0.6 {
			return &p
		}
	}

	return nil
}

// wordOverlap is the fraction of the recommendation's words that also occur
// in the place name. "The Blue Door Cafe" vs "Blue Door" scores 0.5.
func wordOverlap(recommendation, place string) float64 {
	recWords := strings.Fields(recommendation)
	if len(recWords) == 0 {
		return 0
	}
	placeWords := make(map[string]bool, len(recWords))
	for _, w := range strings.Fields(place) {
		placeWords[w] = true
	}

	common := 0
	for _, w := range recWords {
		if placeWords[w] {
			common++
		}
	}
	return float64(common) / float64(len(recWords))
}
