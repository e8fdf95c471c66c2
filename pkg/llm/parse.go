package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoPayload indicates the raw text contained nothing that looks like JSON.
var ErrNoPayload = errors.New("no JSON payload found in response")

var fenceRE = regexp.MustCompile("(?s)```(?:json)?\\s*(.+?)```")

// ExtractJSONPayload locates the JSON document inside free-form model output.
// Preference order: a fenced code block, then the object enclosing the latest
// "recommendations"/"validations" key, then the first brace or bracket. The
// returned text is balanced up to the matching closer; an unterminated
// document is returned as collected.
func ExtractJSONPayload(s string) string {
	if m := fenceRE.FindStringSubmatch(s); m != nil {
		s = m[1]
	} else if start := keywordAnchor(s); start >= 0 {
		return balancedFrom(s, start)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	return balancedFrom(s, start)
}

// keywordAnchor finds the opening brace of the object containing the latest
// "recommendations" or "validations" key, or -1.
func keywordAnchor(s string) int {
	idx := strings.LastIndex(s, `"recommendations"`)
	if v := strings.LastIndex(s, `"validations"`); v > idx {
		idx = v
	}
	if idx < 0 {
		return -1
	}
	return strings.LastIndex(s[:idx], "{")
}

// balancedFrom extracts a balanced object or array starting at start,
// tracking string state so braces inside strings are ignored.
func balancedFrom(s string, start int) string {
	open := s[start]
	var close byte
	switch open {
	case '{':
		close = '}'
	case '[':
		close = ']'
	default:
		return ""
	}

	depth := 0
	inStr := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	// Unterminated. Return what was collected.
	return s[start:]
}

// SanitizeJSON repairs the malformations models actually produce: a stray
// quoted token glued onto a number (`0.95"High"`) and trailing commas before
// a closer. Clean JSON passes through unchanged, so the pass is safe to run
// unconditionally.
func SanitizeJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inStr := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch {
		case c == '"':
			inStr = true
			b.WriteByte(c)
		case c >= '0' && c <= '9':
			j := i
			for j < len(s) && isNumberChar(s[j]) {
				j++
			}
			b.WriteString(s[i:j])
			// A quoted token directly after a number is junk like `1.0"High"`.
			// Valid JSON always separates them with a comma, colon or closer.
			k := j
			for k < len(s) && (s[k] == ' ' || s[k] == '\t') {
				k++
			}
			if k < len(s) && s[k] == '"' {
				if end := skipString(s, k); end > 0 {
					i = end - 1
					continue
				}
			}
			i = j - 1
		case c == ',':
			k := i + 1
			for k < len(s) && isJSONSpace(s[k]) {
				k++
			}
			if k < len(s) && (s[k] == '}' || s[k] == ']') {
				continue
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isNumberChar(c byte) bool {
	return c >= '0' && c <= '9' || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-'
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// skipString returns the index just past the string starting at start, or -1
// if it never terminates.
func skipString(s string, start int) int {
	escaped := false
	for i := start + 1; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == '"':
			return i + 1
		}
	}
	return -1
}

// DecodeGeneration parses a generate response. Malformed entries are skipped
// rather than failing the whole payload; entries without a name are dropped.
func DecodeGeneration(raw string) (*GenerationPayload, error) {
	items, err := decodeItems(raw, "recommendations")
	if err != nil {
		return nil, err
	}
	p := &GenerationPayload{Raw: raw}
	for _, data := range items {
		var item RecommendationItem
		if err := json.Unmarshal(data, &item); err != nil {
			continue
		}
		if strings.TrimSpace(item.Name) == "" {
			continue
		}
		p.Recommendations = append(p.Recommendations, item)
	}
	return p, nil
}

// DecodeValidation parses a validate response.
func DecodeValidation(raw string) (*ValidationPayload, error) {
	items, err := decodeItems(raw, "validations")
	if err != nil {
		return nil, err
	}
	p := &ValidationPayload{Raw: raw}
	for _, data := range items {
		var item ValidationItem
		if err := json.Unmarshal(data, &item); err != nil {
			continue
		}
		if strings.TrimSpace(item.Name) == "" {
			continue
		}
		p.Validations = append(p.Validations, item)
	}
	return p, nil
}

// DecodeSynthesis parses a synthesize response.
func DecodeSynthesis(raw string) (*SynthesisPayload, error) {
	items, err := decodeItems(raw, "recommendations")
	if err != nil {
		return nil, err
	}
	p := &SynthesisPayload{Raw: raw}
	for _, data := range items {
		var item SynthesisItem
		if err := json.Unmarshal(data, &item); err != nil {
			continue
		}
		if strings.TrimSpace(item.Name) == "" {
			continue
		}
		p.Recommendations = append(p.Recommendations, item)
	}
	return p, nil
}

// decodeItems extracts, sanitizes and splits the payload into raw items under
// the given key. A bare top-level array is accepted as the item list itself.
func decodeItems(raw, key string) ([]json.RawMessage, error) {
	text := SanitizeJSON(ExtractJSONPayload(raw))
	if text == "" {
		return nil, ErrNoPayload
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &envelope); err == nil {
		if data, ok := envelope[key]; ok {
			var items []json.RawMessage
			if err := json.Unmarshal(data, &items); err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
			return items, nil
		}
		return nil, fmt.Errorf("decode %s: key missing", key)
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return items, nil
}
