// Package prompts renders the prompt templates sent to LLM providers. All
// providers receive the same rendered text for a given stage, so consensus
// differences come from the models, not the prompts.
package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Manager handles loading and rendering of prompt templates.
type Manager struct {
	root *template.Template
}

// NewManager parses the embedded templates.
func NewManager() (*Manager, error) {
	root := template.New("root").Funcs(template.FuncMap{
		"json": jsonFunc,
		"join": joinFunc,
	})
	root, err := root.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing prompt templates: %w", err)
	}
	return &Manager{root: root}, nil
}

// Render executes the named template with the provided data.
func (m *Manager) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := m.root.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// GenerateData feeds the recommendation prompt.
type GenerateData struct {
	Location       string
	HasCoordinates bool
	Latitude       float64
	Longitude      float64
	RadiusMeters   int
	Categories     []string
}

// Generate renders the stage-3 recommendation prompt.
func (m *Manager) Generate(d GenerateData) (string, error) {
	return m.Render("generate.tmpl", d)
}

// Candidate is one recommendation as shown to a validator.
type Candidate struct {
	Name        string   `json:"name"`
	Address     string   `json:"address,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Description string   `json:"description,omitempty"`
}

// ValidateData feeds the cross-validation prompt.
type ValidateData struct {
	Location     string
	RadiusMeters int
	Source       string
	Items        []Candidate
}

// Validate renders the cross-validation prompt for one provider's list.
func (m *Manager) Validate(d ValidateData) (string, error) {
	return m.Render("validate.tmpl", d)
}

// RankedItem is one consensus result as shown to the synthesizer.
type RankedItem struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Highlights     []string `json:"highlights,omitempty"`
	WhyRecommended string   `json:"whyRecommended,omitempty"`
}

// SynthesizeData feeds the synthesis prompt.
type SynthesizeData struct {
	Location string
	Items    []RankedItem
}

// Synthesize renders the final polish prompt.
func (m *Manager) Synthesize(d SynthesizeData) (string, error) {
	return m.Render("synthesize.tmpl", d)
}

func jsonFunc(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func joinFunc(elems []string, sep string) string {
	return strings.Join(elems, sep)
}
