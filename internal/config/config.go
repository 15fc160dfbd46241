package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/mediapipe/internal/foundation/errors"
)

// Config is the complete pipeline configuration.
type Config struct {
	// MirrorRoot is the local directory remote assets are mirrored into.
	MirrorRoot string `yaml:"mirror_root"`
	// ServePrefix is the remote URL prefix that maps onto MirrorRoot.
	ServePrefix string `yaml:"serve_prefix"`
	// PublicPath is the site URL path MirrorRoot is served under.
	PublicPath string `yaml:"public_path"`
	// CacheDir holds one persisted file per cache category.
	CacheDir string `yaml:"cache_dir"`
	// Suffix is appended to the base name of derivative files.
	Suffix string `yaml:"suffix"`

	Capture   CaptureConfig   `yaml:"capture"`
	Kinds     KindsConfig     `yaml:"kinds"`
	External  ExternalConfig  `yaml:"external"`
	Logging   LoggingConfig   `yaml:"logging"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Probe     ProbeConfig     `yaml:"probe"`
	Encode    EncodeConfig    `yaml:"encode"`
	Build     BuildConfig     `yaml:"build"`
	Transform TransformConfig `yaml:"transform"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// CaptureConfig controls how asset references are found in documents.
type CaptureConfig struct {
	// Pattern must expose the named groups "title" and "uri".
	Pattern string `yaml:"pattern"`
	// SkipCode leaves matches inside code blocks and code spans untouched.
	SkipCode bool `yaml:"skip_code"`
}

// KindsConfig lists file extensions per asset kind (lowercase, with leading dot).
type KindsConfig struct {
	Image     []string `yaml:"image"`
	Animation []string `yaml:"animation"`
	Video     []string `yaml:"video"`
}

// ExternalConfig controls recognition of external video-hosting links.
type ExternalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	HostPattern string `yaml:"host_pattern"`
}

// LoggingConfig configures the slog handler and independently suppressible levels.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text|json
	Info   bool   `yaml:"info"`
	Warn   bool   `yaml:"warn"`
	Error  bool   `yaml:"error"`
}

// FetchConfig configures remote downloads.
type FetchConfig struct {
	// Timeout bounds a single fetch attempt, in seconds.
	Timeout int `yaml:"timeout"`
	// Retries is the number of transport failures tolerated per destination path.
	Retries int `yaml:"retries"`
	// Delay is the upper bound of the random backoff wait (Go duration).
	Delay     string           `yaml:"delay"`
	Backoff   RetryBackoffMode `yaml:"backoff"`
	UserAgent string           `yaml:"user_agent"`
}

// ProbeConfig configures the dimension probing tool.
type ProbeConfig struct {
	Args string `yaml:"args"`
}

// EncodeConfig holds per-kind encoder command lines. A nil or empty command
// disables encoding for that kind.
type EncodeConfig struct {
	Image     *string `yaml:"image"`
	Animation *string `yaml:"animation"`
	Video     *string `yaml:"video"`
	Poster    *string `yaml:"poster"`

	ImageExt     string `yaml:"image_ext"`
	AnimationExt string `yaml:"animation_ext"`
	VideoExt     string `yaml:"video_ext"`
	PosterExt    string `yaml:"poster_ext"`
}

// BuildConfig controls markup generation.
type BuildConfig struct {
	MaxWidth int `yaml:"max_width"`
	// Poster is "auto", "none" or "fixed:<url>".
	Poster string `yaml:"poster"`
	// Overrides maps an asset kind to a text/template replacing its default markup.
	Overrides map[string]string `yaml:"overrides"`
}

// TransformConfig allows disabling whole phases.
type TransformConfig struct {
	Skip []string `yaml:"skip"`
}

// PipelineConfig controls per-phase concurrency.
type PipelineConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// MetricsConfig controls metrics export.
type MetricsConfig struct {
	// Textfile, when set, receives the Prometheus text exposition after each run.
	Textfile string `yaml:"textfile"`
}

// DelayDuration parses Delay, returning 0 for an empty value.
func (f FetchConfig) DelayDuration() (time.Duration, error) {
	if f.Delay == "" {
		return 0, nil
	}
	return time.ParseDuration(f.Delay)
}

// TimeoutDuration returns the per-attempt timeout.
func (f FetchConfig) TimeoutDuration() time.Duration {
	return time.Duration(f.Timeout) * time.Second
}

// Load reads the configuration file, expands environment variables and applies
// defaults for omitted keys.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ferrors.ConfigError("configuration file not found").WithContext("path", configPath).Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
			Fatal().WithContext("path", configPath).Build()
	}

	cfg, err := Parse([]byte(os.ExpandEnv(string(data))))
	if err != nil {
		if _, ok := ferrors.AsClassified(err); ok {
			return nil, err
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid configuration file").
			Fatal().WithContext("path", configPath).Build()
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads .env and .env.local when present. Existing process
// environment variables are never overridden.
func loadEnvFiles() {
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err != nil {
			fmt.Fprintf(os.Stderr, "Note: %s could not be loaded: %v\n", envPath, err)
		}
	}
}

// Init creates a new configuration file populated with the defaults.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}
	header := []byte("# mediapipe configuration\n# Commands accept {input} and {output} placeholders. Set a command to null to disable it.\n")
	if err := os.WriteFile(configPath, append(header, data...), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
