// Package creds resolves provider credentials for a single request.
//
// Callers may ship their own API keys with a request. For a provider tag
// such as "openai" the recognized map keys are "openai" (the API key),
// "openaiModel" (model override) and "openaiEndpoint" (base URL override).
// A user-supplied key activates a provider even when it is disabled in the
// server configuration.
package creds

import "cicerone/pkg/config"

// Scope holds the user-supplied keys for one request. The map is copied on
// construction so later mutation of the request cannot change resolution.
type Scope struct {
	userKeys map[string]string
}

// NewScope builds a scope from the request's key map. A nil map yields a
// scope that resolves everything from configuration.
func NewScope(userKeys map[string]string) *Scope {
	s := &Scope{userKeys: make(map[string]string, len(userKeys))}
	for k, v := range userKeys {
		s.userKeys[k] = v
	}
	return s
}

// HasUserKey reports whether the request supplied its own key for tag.
func (s *Scope) HasUserKey(tag string) bool {
	return s.userKeys[tag] != ""
}

// Key returns the API key to use for the provider: the user-supplied key
// when present, otherwise the configured one.
func (s *Scope) Key(tag string, pc *config.ProviderConfig) string {
	if k := s.userKeys[tag]; k != "" {
		return k
	}
	if pc == nil {
		return ""
	}
	return pc.Key
}

// Model returns the model identifier, honoring a "{tag}Model" override.
func (s *Scope) Model(tag string, pc *config.ProviderConfig) string {
	if m := s.userKeys[tag+"Model"]; m != "" {
		return m
	}
	if pc == nil {
		return ""
	}
	return pc.Model
}

// Endpoint returns the base URL, honoring a "{tag}Endpoint" override.
func (s *Scope) Endpoint(tag string, pc *config.ProviderConfig) string {
	if e := s.userKeys[tag+"Endpoint"]; e != "" {
		return e
	}
	if pc == nil {
		return ""
	}
	return pc.BaseURL
}

// Allows reports whether the provider may serve this request. A provider
// qualifies when it is enabled in configuration or the request carries its
// own key for it, and a non-empty key resolves either way.
func (s *Scope) Allows(tag string, pc *config.ProviderConfig) bool {
	if pc == nil {
		return false
	}
	if !pc.Enabled && !s.HasUserKey(tag) {
		return false
	}
	return s.Key(tag, pc) != ""
}
