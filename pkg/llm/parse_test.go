package llm

import (
	"testing"
)

func TestExtractJSONPayload(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "Plain_Object",
			in:   `{"recommendations": []}`,
			want: `{"recommendations": []}`,
		},
		{
			name: "Prose_Around_Object",
			in:   "Here are your results:\n{\"a\": 1}\nEnjoy!",
			want: `{"a": 1}`,
		},
		{
			name: "Fenced_With_Tag",
			in:   "Sure!\n```json\n{\"a\": 1}\n```\nanything after",
			want: `{"a": 1}`,
		},
		{
			name: "Fenced_Without_Tag",
			in:   "```\n[1, 2, 3]\n```",
			want: `[1, 2, 3]`,
		},
		{
			name: "Keyword_Skips_Earlier_Junk",
			in:   `Note {draft} ignored. {"recommendations": [{"name": "A"}]} done`,
			want: `{"recommendations": [{"name": "A"}]}`,
		},
		{
			name: "Validations_Keyword",
			in:   `preamble {x} {"validations": []} trailing`,
			want: `{"validations": []}`,
		},
		{
			name: "Braces_Inside_Strings",
			in:   `{"name": "Joe {and} Co", "n": 1} tail`,
			want: `{"name": "Joe {and} Co", "n": 1}`,
		},
		{
			name: "Escaped_Quote_Inside_String",
			in:   `{"name": "say \"hi\" {"} tail`,
			want: `{"name": "say \"hi\" {"}`,
		},
		{
			name: "Array_Start",
			in:   `the list: [{"name": "A"}] thanks`,
			want: `[{"name": "A"}]`,
		},
		{
			name: "Unterminated_Returns_Collected",
			in:   `{"a": [1, 2`,
			want: `{"a": [1, 2`,
		},
		{
			name: "No_JSON",
			in:   "nothing to see here",
			want: "",
		},
		{
			name: "Empty",
			in:   "",
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractJSONPayload(tc.in); got != tc.want {
				t.Errorf("ExtractJSONPayload(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "Clean_Identity",
			in:   `{"a": 1, "b": [2.5, "x"], "c": {"d": true}}`,
			want: `{"a": 1, "b": [2.5, "x"], "c": {"d": true}}`,
		},
		{
			name: "Number_In_String_Untouched",
			in:   `{"address": "Suite 250", "zip": "90210"}`,
			want: `{"address": "Suite 250", "zip": "90210"}`,
		},
		{
			name: "Stray_Token_After_Number",
			in:   `{"confidenceScore": 1.0"High"}`,
			want: `{"confidenceScore": 1.0}`,
		},
		{
			name: "Stray_Token_With_Space",
			in:   `{"score": 0.85 "very good", "n": 2}`,
			want: `{"score": 0.85, "n": 2}`,
		},
		{
			name: "Trailing_Comma_Object",
			in:   `{"a": 1,}`,
			want: `{"a": 1}`,
		},
		{
			name: "Trailing_Comma_Array",
			in:   `[1, 2, ]`,
			want: `[1, 2 ]`,
		},
		{
			name: "Trailing_Comma_Multiline",
			in:   "{\n  \"a\": 1,\n}",
			want: "{\n  \"a\": 1\n}",
		},
		{
			name: "Exponent_Number",
			in:   `{"a": 1e+5, "b": -2.5}`,
			want: `{"a": 1e+5, "b": -2.5}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeJSON(tc.in); got != tc.want {
				t.Errorf("SanitizeJSON(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestDecodeGeneration(t *testing.T) {
	raw := "Here you go:\n```json\n" + `{
		"recommendations": [
			{"name": "Joe's Diner", "description": "Classic burgers", "confidenceScore": 0.9,
			 "latitude": 43.5, "longitude": -79.6, "highlights": ["burgers", "shakes"]},
			{"name": "Casa Verde", "confidenceScore": "0.75"},
			{"description": "nameless, dropped"},
			{"name": "Broken", "confidenceScore": {"not": "a number"}},
			{"name": "No Score Cafe"}
		]
	}` + "\n```\nHope that helps!"

	p, err := DecodeGeneration(raw)
	if err != nil {
		t.Fatalf("DecodeGeneration failed: %v", err)
	}
	if p.Raw != raw {
		t.Error("Raw should preserve the original text")
	}
	if len(p.Recommendations) != 3 {
		t.Fatalf("got %d items, want 3 (nameless and malformed dropped)", len(p.Recommendations))
	}
	if p.Recommendations[0].Name != "Joe's Diner" {
		t.Errorf("item 0 name = %q", p.Recommendations[0].Name)
	}
	if p.Recommendations[1].ConfidenceScore == nil || float64(*p.Recommendations[1].ConfidenceScore) != 0.75 {
		t.Error("string-formatted confidenceScore should be coerced to 0.75")
	}
	if p.Recommendations[2].ConfidenceScore != nil {
		t.Error("missing confidenceScore should decode as nil")
	}
}

func TestDecodeGenerationBareArray(t *testing.T) {
	p, err := DecodeGeneration(`[{"name": "A"}, {"name": "B"}]`)
	if err != nil {
		t.Fatalf("DecodeGeneration failed: %v", err)
	}
	if len(p.Recommendations) != 2 {
		t.Fatalf("got %d items, want 2", len(p.Recommendations))
	}
}

func TestDecodeGenerationNoPayload(t *testing.T) {
	if _, err := DecodeGeneration("sorry, I can't help with that"); err == nil {
		t.Fatal("expected error for payload-free text")
	}
}

func TestDecodeValidation(t *testing.T) {
	raw := `{"validations": [
		{"name": "Joe's Diner", "validationScore": 0.8"High", "flaggedAsInaccurate": false},
		{"name": "Ghost Bar", "validationScore": 0.2, "flaggedAsInaccurate": true,
		 "flaggedAsOutOfRange": true, "comment": "does not exist"},
		{"name": "Mystery Spot"}
	]}`

	p, err := DecodeValidation(raw)
	if err != nil {
		t.Fatalf("DecodeValidation failed: %v", err)
	}
	if len(p.Validations) != 3 {
		t.Fatalf("got %d items, want 3", len(p.Validations))
	}
	if got := p.Validations[0].Score(); got != 0.8 {
		t.Errorf("sanitized score = %v, want 0.8", got)
	}
	if !p.Validations[1].FlaggedInaccurate || !p.Validations[1].FlaggedOutOfRange {
		t.Error("flags should both be true")
	}
	if p.Validations[1].Comment != "does not exist" {
		t.Errorf("comment = %q", p.Validations[1].Comment)
	}
	if got := p.Validations[2].Score(); got != 0.7 {
		t.Errorf("missing score should default to 0.7, got %v", got)
	}
}

func TestDecodeSynthesis(t *testing.T) {
	raw := `{"recommendations": [
		{"name": "Joe's Diner", "description": "polished", "highlights": ["a"], "whyRecommended": "because"}
	]}`
	p, err := DecodeSynthesis(raw)
	if err != nil {
		t.Fatalf("DecodeSynthesis failed: %v", err)
	}
	if len(p.Recommendations) != 1 || p.Recommendations[0].Description != "polished" {
		t.Errorf("unexpected payload: %+v", p.Recommendations)
	}
}

func TestToRecommendations(t *testing.T) {
	score := looseFloat(1.7)
	lat, lng := looseFloat(43.5), looseFloat(-79.6)
	p := &GenerationPayload{Recommendations: []RecommendationItem{
		{Name: "Clamped", ConfidenceScore: &score},
		{Name: "Defaulted"},
		{Name: "Located", Latitude: &lat, Longitude: &lng},
		{Name: "Half Located", Latitude: &lat},
		{Name: "Chatty", Highlights: []string{"a", "b", "c", "d", "e", "f", "g"}},
	}}

	recs := p.ToRecommendations("openai")
	if len(recs) != 5 {
		t.Fatalf("got %d recs, want 5", len(recs))
	}
	if recs[0].Confidence != 1.0 {
		t.Errorf("confidence should clamp to 1.0, got %v", recs[0].Confidence)
	}
	if recs[1].Confidence != 0.7 {
		t.Errorf("missing confidence should default to 0.7, got %v", recs[1].Confidence)
	}
	if recs[2].Latitude == nil || *recs[2].Latitude != 43.5 {
		t.Error("coordinates should carry through when both present")
	}
	if recs[3].Latitude != nil {
		t.Error("a lone latitude should be dropped")
	}
	if len(recs[4].Highlights) != 5 {
		t.Errorf("highlights should cap at 5, got %d", len(recs[4].Highlights))
	}
	for _, r := range recs {
		if r.SourceProvider != "openai" {
			t.Errorf("SourceProvider = %q, want openai", r.SourceProvider)
		}
	}
}
