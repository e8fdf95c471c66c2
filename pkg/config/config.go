package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Request   RequestConfig   `yaml:"request"`
	Log       LogConfig       `yaml:"log"`
	DB        DBConfig        `yaml:"db"`
	Cache     CacheConfig     `yaml:"cache"`
	Geocoder  GeocoderConfig  `yaml:"geocoder"`
	Places    PlacesConfig    `yaml:"places"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// RequestConfig holds HTTP request settings.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
	LLM      LogSettings `yaml:"llm"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig holds recommendation cache settings.
type CacheConfig struct {
	DefaultTTLHours int  `yaml:"default_ttl_hours"`
	GridPrecision   int  `yaml:"grid_precision"`
	PurgeOnStartup  bool `yaml:"purge_on_startup"`
}

// TTL returns the default cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.DefaultTTLHours) * time.Hour
}

// GeocoderConfig holds settings for the Nominatim geocoder.
type GeocoderConfig struct {
	BaseURL   string   `yaml:"base_url"`
	UserAgent string   `yaml:"user_agent"`
	Timeout   Duration `yaml:"timeout"`
	MemoTTL   Duration `yaml:"memo_ttl"`
}

// PlacesConfig holds settings for the Google Places provider.
type PlacesConfig struct {
	Key           string   `yaml:"key"`
	BaseURL       string   `yaml:"base_url"`
	DefaultRadius Distance `yaml:"default_radius"`
	MaxResults    int      `yaml:"max_results"`
	Timeout       Duration `yaml:"timeout"`
	CacheTTL      Duration `yaml:"cache_ttl"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "localhost:1921",
		},
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(300 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(60 * time.Second),
			},
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
			LLM: LogSettings{
				Path:  "./logs/llm.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path: "./data/cicerone.db",
		},
		Cache: CacheConfig{
			DefaultTTLHours: 24,
			GridPrecision:   3,
			PurgeOnStartup:  true,
		},
		Geocoder: GeocoderConfig{
			BaseURL:   "https://nominatim.openstreetmap.org",
			UserAgent: "cicerone/0.3",
			Timeout:   Duration(10 * time.Second),
			MemoTTL:   Duration(15 * time.Minute),
		},
		Places: PlacesConfig{
			BaseURL:       "https://places.googleapis.com/v1",
			DefaultRadius: Distance(1000),
			MaxResults:    20,
			Timeout:       Duration(10 * time.Second),
			CacheTTL:      Duration(1 * time.Hour),
		},
		Providers: DefaultProviders(),
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT
// save back to disk (to preserve user formatting and comments).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	// Read existing file if it exists
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		applyEnvFallbacks(cfg)
		return cfg, nil
	}

	// If file does not exist, save defaults
	if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	applyEnvFallbacks(cfg)
	return cfg, nil
}

// applyEnvFallbacks fills empty secrets from the environment. Values from
// the config file always win; env vars are never saved back to disk.
func applyEnvFallbacks(cfg *Config) {
	for _, tag := range ProviderTags() {
		pc := cfg.Providers.ByTag(tag)
		if pc == nil || pc.Key != "" {
			continue
		}
		if key := os.Getenv(envKeyForTag(tag)); key != "" {
			pc.Key = key
		}
	}
	if cfg.Places.Key == "" {
		if key := os.Getenv("GOOGLE_PLACES_API_KEY"); key != "" {
			cfg.Places.Key = key
		}
	}
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Cicerone Configuration
# ----------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers)
# Provider API keys may also come from the environment
# (OPENAI_API_KEY, GEMINI_API_KEY, ... and GOOGLE_PLACES_API_KEY).

`)
	data = append(header, data...)

	// Inject comments for Enum fields
	// We use regex to find the keys with indentation to ensure we place comments correctly.

	// Log level options
	reLevel := regexp.MustCompile(`(?m)^(\s+)level:`)
	data = reLevel.ReplaceAll(data, []byte("${1}# Options: DEBUG, INFO, WARN, ERROR\n${1}level:"))

	// Cache grid precision
	reGrid := regexp.MustCompile(`(?m)^(\s+)grid_precision:`)
	data = reGrid.ReplaceAll(data, []byte("${1}# Coordinate rounding for cache keys; 3 decimals is roughly a 110m cell\n${1}grid_precision:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, do nothing
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write default config
	return Save(path, DefaultConfig())
}
