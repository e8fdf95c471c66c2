package prompts

import (
	"strings"
	"testing"
)

func TestGeneratePrompt(t *testing.T) {
	m, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	p, err := m.Generate(GenerateData{
		Location:       "Oakville, Ontario",
		HasCoordinates: true,
		Latitude:       43.4675,
		Longitude:      -79.6877,
		RadiusMeters:   1000,
		Categories:     []string{"Restaurant", "Cafe"},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	for _, want := range []string{
		"Oakville, Ontario",
		"43.4675",
		"1000 meters",
		"Restaurant, Cafe",
		`"recommendations"`,
		"confidenceScore",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("generate prompt missing %q", want)
		}
	}
}

func TestGeneratePromptWithoutCoordinates(t *testing.T) {
	m, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	p, err := m.Generate(GenerateData{
		Location:     "Nowhereville",
		RadiusMeters: 500,
		Categories:   []string{"All"},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if strings.Contains(p, "latitude") && strings.Contains(p, "(latitude") {
		t.Error("prompt should omit the coordinate clause without coordinates")
	}
}

func TestValidatePrompt(t *testing.T) {
	m, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	lat, lng := 43.5, -79.6
	p, err := m.Validate(ValidateData{
		Location:     "Oakville",
		RadiusMeters: 1000,
		Source:       "OpenAI",
		Items: []Candidate{
			{Name: "Joe's Diner", Address: "123 Main St", Latitude: &lat, Longitude: &lng, Description: "burgers"},
		},
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	for _, want := range []string{
		"OpenAI",
		"Joe's Diner",
		"123 Main St",
		`"validations"`,
		"flaggedAsInaccurate",
		"flaggedAsOutOfRange",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("validate prompt missing %q", want)
		}
	}
}

func TestSynthesizePrompt(t *testing.T) {
	m, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	p, err := m.Synthesize(SynthesizeData{
		Location: "Oakville",
		Items: []RankedItem{
			{Name: "Joe's Diner", Description: "burgers", Highlights: []string{"patio"}},
			{Name: "Casa Verde"},
		},
	})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	for _, want := range []string{
		"Joe's Diner",
		"Casa Verde",
		"same order",
		`"recommendations"`,
	} {
		if !strings.Contains(p, want) {
			t.Errorf("synthesize prompt missing %q", want)
		}
	}
}
