// Package config holds the tool configuration: which CI server and
// plan to talk to, walk bounds, request pacing, and the job-name
// matcher's heuristic constants. Everything has a compiled-in default;
// a YAML file overlays it.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cistat/cistat/jobname"
)

// MatcherConfig tunes the job-name normalizer and matcher. The token
// sets and threshold are inherited heuristics, not algorithmic
// requirements, so they are exposed here.
type MatcherConfig struct {
	FillerTokens         []string `yaml:"filler_tokens"`
	MetadataTokens       []string `yaml:"metadata_tokens"`
	ContainmentThreshold float64  `yaml:"containment_threshold"`
}

// Config is the full tool configuration.
type Config struct {
	// BaseURL is the CI server root, e.g. "https://ci1.netdef.org".
	BaseURL string `yaml:"base_url"`
	// Plan is the build plan key, e.g. "FRR-FRR". Build pages live at
	// BaseURL/browse/Plan-<id>.
	Plan string `yaml:"plan"`
	// WindowDays is the default lookback window for analyze runs.
	WindowDays int `yaml:"window_days"`
	// MaxLookback bounds how many build ids a walk may attempt. Dates
	// are only known after fetching, so the walk needs a hard bound.
	MaxLookback int `yaml:"max_lookback"`
	// RequestTimeoutSeconds is the per-request HTTP timeout.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
	// RequestsPerSecond caps the fetch rate against the CI server.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	Matcher MatcherConfig `yaml:"matcher"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		BaseURL:               "https://ci1.netdef.org",
		Plan:                  "FRR-FRR",
		WindowDays:            7,
		MaxLookback:           200,
		RequestTimeoutSeconds: 30,
		RequestsPerSecond:     4,
		Matcher: MatcherConfig{
			FillerTokens:         jobname.DefaultFillerTokens,
			MetadataTokens:       jobname.DefaultMetadataTokens,
			ContainmentThreshold: jobname.DefaultContainmentThreshold,
		},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if c.Plan == "" {
		return fmt.Errorf("plan must not be empty")
	}
	if c.WindowDays < 1 {
		return fmt.Errorf("window_days must be positive, got %d", c.WindowDays)
	}
	if c.MaxLookback < 1 {
		return fmt.Errorf("max_lookback must be positive, got %d", c.MaxLookback)
	}
	if c.Matcher.ContainmentThreshold <= 0 || c.Matcher.ContainmentThreshold > 1 {
		return fmt.Errorf("containment_threshold must be in (0, 1], got %v", c.Matcher.ContainmentThreshold)
	}
	return nil
}

// BuildURL returns the result page URL for one build id.
func (c Config) BuildURL(id int) string {
	return fmt.Sprintf("%s/browse/%s-%d", c.BaseURL, c.Plan, id)
}

// RequestTimeout returns the per-request timeout as a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// NewMatcher builds the job-name matcher from the configured tuning.
func (c Config) NewMatcher() *jobname.Matcher {
	return jobname.New(c.Matcher.FillerTokens, c.Matcher.MetadataTokens, c.Matcher.ContainmentThreshold)
}
