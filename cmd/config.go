package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/gridfetch/internal/config"
	"github.com/derickschaefer/gridfetch/internal/render"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage gridfetch configuration",
	Long:  `Read and write gridfetch configuration stored in config.json.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template config.json in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config.json already exists at %s (delete it first to re-initialise)", path)
		}
		if err := config.WriteFile(path, config.Template()); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Created %s\n", path)
		fmt.Fprintln(out, "  Edit it and set your api_key (an ENTSO-E security token) to get started.")
		fmt.Fprintln(out, "  Request one at: https://transparency.entsoe.eu (My Account Settings → Web API Security Token)")
		return nil
	},
}

var configGetShowSecrets bool

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(globalFlags.APIKey)
		if err != nil {
			return err
		}

		apiKey := cfg.RedactedAPIKey()
		if configGetShowSecrets {
			apiKey = cfg.APIKey
		}
		if cfg.APIKey == "" {
			apiKey = "(not set)"
		}

		src := "(not found)"
		if cfg.ConfigPath != "" {
			src = cfg.ConfigPath
		}

		if strings.ToLower(globalFlags.Format) == render.FormatJSON {
			type configOut struct {
				APIKey          string  `json:"api_key"`
				BaseURL         string  `json:"base_url"`
				Format          string  `json:"default_format"`
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
				MetricsAddr     string  `json:"metrics_addr,omitempty"`
				ConfigFile      string  `json:"config_file"`
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(configOut{
				APIKey:          apiKey,
				BaseURL:         cfg.BaseURL,
				Format:          cfg.Format,
				Timeout:         cfg.Timeout.String(),
				Rate:            cfg.Rate,
				Retries:         cfg.Retries,
				RequestDelay:    cfg.RequestDelay.String(),
				YearThreshold:   cfg.YearThreshold,
				HistoricalYears: cfg.HistoricalYears,
				OverlapHours:    cfg.OverlapHours,
				PollInterval:    cfg.PollInterval.String(),
				DBPath:          cfg.DBPath,
				RequestsFile:    cfg.RequestsFile,
				MetricsAddr:     cfg.MetricsAddr,
				ConfigFile:      src,
			})
		}

		metricsAddr := cfg.MetricsAddr
		if metricsAddr == "" {
			metricsAddr = "(disabled)"
		}
		printKVTableTo(cmd.OutOrStdout(), [][]string{
			{"api_key", apiKey},
			{"base_url", cfg.BaseURL},
			{"default_format", cfg.Format},
			{"timeout", cfg.Timeout.String()},
			{"rate", fmt.Sprintf("%.1f req/s", cfg.Rate)},
			{"retries", strconv.Itoa(cfg.Retries)},
			{"request_delay", cfg.RequestDelay.String()},
			{"year_threshold", strconv.FormatFloat(cfg.YearThreshold, 'f', -1, 64)},
			{"historical_years", strconv.Itoa(cfg.HistoricalYears)},
			{"overlap_hours", strconv.Itoa(cfg.OverlapHours)},
			{"poll_interval", cfg.PollInterval.String()},
			{"db_path", cfg.DBPath},
			{"requests_file", cfg.RequestsFile},
			{"metrics_addr", metricsAddr},
			{"config_file", src},
		})
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in config.json",
	Example: `  gridfetch config set api_key YOUR_TOKEN
  gridfetch config set request_delay 5s
  gridfetch config set historical_years 10`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.ToLower(args[0])

		// Load existing file or start from template
		f, path, err := loadConfigFile()
		if err != nil {
			path = config.DefaultConfigFile
			tmpl := config.Template()
			f = &tmpl
		}
		if err := setConfigKey(f, key, args[1]); err != nil {
			return err
		}
		if err := config.WriteFile(path, *f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s in %s\n", key, path)
		return nil
	},
}

const configKeys = "api_key, base_url, default_format, timeout, rate, retries, request_delay, " +
	"year_threshold, historical_years, overlap_hours, poll_interval, db_path, requests_file, metrics_addr"

// setConfigKey assigns val to the File field named key, validating numbers
// and durations.
func setConfigKey(f *config.File, key, val string) error {
	switch key {
	case "api_key":
		f.APIKey = val
	case "base_url":
		f.BaseURL = val
	case "default_format", "format":
		f.DefaultFormat = val
	case "db_path":
		f.DBPath = val
	case "requests_file":
		f.RequestsFile = val
	case "metrics_addr":
		f.MetricsAddr = val
	case "timeout", "request_delay", "poll_interval":
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("%s must be a duration like 30s or 1h: %w", key, err)
		}
		switch key {
		case "timeout":
			f.Timeout = val
		case "request_delay":
			f.RequestDelay = val
		default:
			f.PollInterval = val
		}
	case "rate", "year_threshold":
		v, err := strconv.ParseFloat(val, 64)
		if err != nil || v <= 0 {
			return fmt.Errorf("%s must be a positive number", key)
		}
		if key == "rate" {
			f.Rate = v
		} else {
			f.YearThreshold = v
		}
	case "retries", "historical_years", "overlap_hours":
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			return fmt.Errorf("%s must be a non-negative integer", key)
		}
		switch key {
		case "retries":
			f.Retries = n
		case "historical_years":
			f.HistoricalYears = n
		default:
			f.OverlapHours = n
		}
	default:
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s", key, configKeys)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configGetCmd.Flags().BoolVar(&configGetShowSecrets, "show-secrets", false, "show API key in plain text")
}

// loadConfigFile reads config.json from cwd; used by configSetCmd.
func loadConfigFile() (*config.File, string, error) {
	path := config.DefaultConfigFile
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	var f config.File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", err
	}
	return &f, path, nil
}
