// Package cmd implements the gridfetch CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/gridfetch/internal/app"
	"github.com/derickschaefer/gridfetch/internal/config"
	"github.com/derickschaefer/gridfetch/internal/logger"
)

// globalFlags holds the parsed values of all persistent (global) flags.
// Commands read from this struct via the deps they receive.
var globalFlags struct {
	APIKey  string
	Format  string
	Out     string
	Timeout string
	Rate    float64
	Retries int
	DB      string
	Quiet   bool
	Verbose bool
	Debug   bool
}

// rootCmd is the base command. Running `gridfetch` with no subcommand
// prints help.
var rootCmd = &cobra.Command{
	Use:   "gridfetch",
	Short: "gridfetch — ENTSO-E Transparency Platform data CLI",
	Long: `gridfetch retrieves electricity-market time series from the ENTSO-E
Transparency Platform, splits long requests into yearly chunks, merges the
responses into one document and exports it as a timestamp-indexed table.

Get an API token at: https://transparency.entsoe.eu (My Account Settings)

Quick start:
  gridfetch config init
  gridfetch plan periodStart=202001010000 periodEnd=202301010000
  gridfetch fetch documentType=A65 processType=A16 outBiddingZone_Domain=10YCZ-CEPS-----N \
      periodStart=202401010000 periodEnd=202401020000
  gridfetch export load --out load.csv`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main. SIGINT and SIGTERM cancel the
// command context; running fetches stop after the current chunk.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildDeps resolves config and constructs the dependency container.
// Called at the start of each command's RunE.
func buildDeps() (*app.Deps, error) {
	cfg, err := config.Load(globalFlags.APIKey)
	if err != nil {
		return nil, err
	}

	// Apply CLI flag overrides
	cfg.Quiet = globalFlags.Quiet
	cfg.Verbose = globalFlags.Verbose
	cfg.Debug = globalFlags.Debug

	if globalFlags.Format != "" {
		cfg.Format = globalFlags.Format
	}
	if globalFlags.Timeout != "" {
		d, err := time.ParseDuration(globalFlags.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid --timeout %q: %w", globalFlags.Timeout, err)
		}
		cfg.Timeout = d
	}
	if globalFlags.Rate > 0 {
		cfg.Rate = globalFlags.Rate
	}
	if globalFlags.Retries > 0 {
		cfg.Retries = globalFlags.Retries
	}
	if globalFlags.DB != "" {
		cfg.DBPath = globalFlags.DB
	}

	switch {
	case cfg.Debug:
		logger.SetLevel(logger.LevelDebug)
	case cfg.Quiet:
		logger.SetLevel(logger.LevelError)
	default:
		logger.SetLevel(logger.LevelInfo)
	}

	return app.New(cfg), nil
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.APIKey, "api-key", "",
		"API security token (overrides env GRIDFETCH_API_KEY / ENTSOE_API_KEY and config.json)")
	pf.StringVar(&globalFlags.Format, "format", "",
		"output format: table|json|jsonl|csv|tsv|md (default: table)")
	pf.StringVar(&globalFlags.Out, "out", "",
		"write output to file instead of stdout")
	pf.StringVar(&globalFlags.Timeout, "timeout", "",
		"HTTP request timeout (e.g. 30s, 2m)")
	pf.Float64Var(&globalFlags.Rate, "rate", 0,
		"max API requests per second (default: 2.0)")
	pf.IntVar(&globalFlags.Retries, "retries", 0,
		"retries for 429/5xx responses (default: 0)")
	pf.StringVar(&globalFlags.DB, "db", "",
		"path of the local bbolt database")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false,
		"suppress all non-error output")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"show timing stats after output")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"log HTTP requests and chunk progress (API key redacted)")
}
