// Package config handles loading and resolving gridfetch configuration.
// Resolution order (later layers win):
//  1. built-in defaults
//  2. config.json or config.yaml in the current working directory
//  3. ENTSOE_API_KEY, then GRIDFETCH_* environment variables (a .env file in
//     the working directory is loaded first and never overrides the real
//     environment)
//  4. CLI flags
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/derickschaefer/gridfetch/internal/chunk"
	"github.com/derickschaefer/gridfetch/internal/entsoe"
)

const (
	DefaultConfigFile      = "config.json"
	DefaultRequestsFile    = "requests.yaml"
	DefaultFormat          = "table"
	DefaultTimeout         = 60 * time.Second
	DefaultRate            = 2.0
	DefaultRequestDelay    = 2 * time.Second
	DefaultHistoricalYears = 20
	DefaultOverlapHours    = 1
	DefaultPollInterval    = time.Hour
	EnvPrefix              = "GRIDFETCH_"
	EnvAPIKey              = "ENTSOE_API_KEY"
	EnvDBPath              = "GRIDFETCH_DB_PATH"
)

// configCandidates are tried in order; the first existing file is used.
var configCandidates = []string{"config.json", "config.yaml", "config.yml"}

// File is the on-disk representation of config.json / config.yaml.
type File struct {
	APIKey          string  `json:"api_key"`
	BaseURL         string  `json:"base_url"`
	DefaultFormat   string  `json:"default_format"`
	Timeout         string  `json:"timeout"`
	Rate            float64 `json:"rate"`
	Retries         int     `json:"retries"`
	RequestDelay    string  `json:"request_delay"`
	YearThreshold   float64 `json:"year_threshold"`
	HistoricalYears int     `json:"historical_years"`
	OverlapHours    int     `json:"overlap_hours"`
	PollInterval    string  `json:"poll_interval"`
	DBPath          string  `json:"db_path"`
	RequestsFile    string  `json:"requests_file"`
	MetricsAddr     string  `json:"metrics_addr"`
}

// Config is the fully-resolved runtime configuration.
// All callers use this struct; the File is only read during loading.
type Config struct {
	APIKey          string
	BaseURL         string
	Format          string
	Timeout         time.Duration
	Rate            float64
	Retries         int
	RequestDelay    time.Duration
	YearThreshold   float64
	HistoricalYears int
	OverlapHours    int
	PollInterval    time.Duration
	DBPath          string
	RequestsFile    string
	MetricsAddr     string
	ConfigPath      string // path of the config file that was loaded (empty if none found)

	// Runtime overrides set from CLI flags after Load()
	Quiet   bool
	Verbose bool
	Debug   bool
}

// Defaults returns a Config holding only built-in defaults.
func Defaults() *Config {
	return &Config{
		BaseURL:         entsoe.DefaultBaseURL,
		Format:          DefaultFormat,
		Timeout:         DefaultTimeout,
		Rate:            DefaultRate,
		RequestDelay:    DefaultRequestDelay,
		YearThreshold:   chunk.DefaultThresholdYears,
		HistoricalYears: DefaultHistoricalYears,
		OverlapHours:    DefaultOverlapHours,
		PollInterval:    DefaultPollInterval,
		RequestsFile:    DefaultRequestsFile,
	}
}

// Load resolves configuration from all sources.
// flagAPIKey is the value of --api-key (empty string if not set).
func Load(flagAPIKey string) (*Config, error) {
	cfg := Defaults()
	k := koanf.New(".")

	// Layer 1: config file (lowest priority)
	if path, parser := findFile(); path != "" {
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
		}
		cfg.ConfigPath = path
	}

	// Layer 2: environment (.env never overrides variables already set)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		if err := k.Set("api_key", v); err != nil {
			return nil, err
		}
	}
	// empty variables are skipped so they cannot blank out file values
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		if value == "" {
			return "", nil
		}
		return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
	}), nil); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	var f File
	if err := k.UnmarshalWithConf("", &f, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := applyFile(cfg, &f); err != nil {
		return nil, err
	}

	// Layer 3: CLI flag (highest priority)
	if flagAPIKey != "" {
		cfg.APIKey = flagAPIKey
	}

	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DBPath = filepath.Join(home, ".gridfetch", "gridfetch.db")
		}
	}
	return cfg, nil
}

// Validate returns an error if required fields are missing.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return errors.New(
			"API key not found.\n\n" +
				"Set it one of these ways:\n" +
				"  1. CLI flag:        gridfetch --api-key YOUR_KEY ...\n" +
				"  2. Environment:     export ENTSOE_API_KEY=YOUR_KEY\n" +
				"  3. .env file:       ENTSOE_API_KEY=YOUR_KEY\n" +
				"  4. config.json:     {\"api_key\": \"YOUR_KEY\"}\n\n" +
				"Request a token by registering on the ENTSO-E Transparency Platform\n" +
				"and emailing transparency@entsoe.eu with \"Restful API access\" in the subject.",
		)
	}
	return nil
}

// RedactedAPIKey returns the API key with most characters replaced by asterisks.
// Safe for logging and display.
func (c *Config) RedactedAPIKey() string {
	if len(c.APIKey) <= 4 {
		return "****"
	}
	return c.APIKey[:2] + "****" + c.APIKey[len(c.APIKey)-2:]
}

func findFile() (string, koanf.Parser) {
	for _, name := range configCandidates {
		path, err := filepath.Abs(name)
		if err != nil {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if strings.HasSuffix(name, ".json") {
			return path, kjson.Parser()
		}
		return path, kyaml.Parser()
	}
	return "", nil
}

// applyFile copies non-zero values from f into cfg.
func applyFile(cfg *Config, f *File) error {
	if f.APIKey != "" {
		cfg.APIKey = f.APIKey
	}
	if f.BaseURL != "" {
		cfg.BaseURL = f.BaseURL
	}
	if f.DefaultFormat != "" {
		cfg.Format = f.DefaultFormat
	}
	if f.Rate > 0 {
		cfg.Rate = f.Rate
	}
	if f.Retries > 0 {
		cfg.Retries = f.Retries
	}
	if f.YearThreshold > 0 {
		cfg.YearThreshold = f.YearThreshold
	}
	if f.HistoricalYears > 0 {
		cfg.HistoricalYears = f.HistoricalYears
	}
	if f.OverlapHours > 0 {
		cfg.OverlapHours = f.OverlapHours
	}
	if f.DBPath != "" {
		cfg.DBPath = f.DBPath
	}
	if f.RequestsFile != "" {
		cfg.RequestsFile = f.RequestsFile
	}
	if f.MetricsAddr != "" {
		cfg.MetricsAddr = f.MetricsAddr
	}
	for _, d := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"timeout", f.Timeout, &cfg.Timeout},
		{"request_delay", f.RequestDelay, &cfg.RequestDelay},
		{"poll_interval", f.PollInterval, &cfg.PollInterval},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

// Template returns a File populated with sensible defaults, suitable for
// writing an initial config.json via `gridfetch config init`.
func Template() File {
	return File{
		APIKey:          "",
		BaseURL:         entsoe.DefaultBaseURL,
		DefaultFormat:   DefaultFormat,
		Timeout:         DefaultTimeout.String(),
		Rate:            DefaultRate,
		RequestDelay:    DefaultRequestDelay.String(),
		YearThreshold:   chunk.DefaultThresholdYears,
		HistoricalYears: DefaultHistoricalYears,
		OverlapHours:    DefaultOverlapHours,
		PollInterval:    DefaultPollInterval.String(),
		RequestsFile:    DefaultRequestsFile,
	}
}

// WriteFile serialises a File to the given path.
func WriteFile(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}
