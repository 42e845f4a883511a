package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/derickschaefer/gridfetch/internal/app"
	"github.com/derickschaefer/gridfetch/internal/chunk"
	"github.com/derickschaefer/gridfetch/internal/fetch"
	"github.com/derickschaefer/gridfetch/internal/metrics"
	"github.com/derickschaefer/gridfetch/internal/model"
)

var (
	pollFile        string
	pollOnce        bool
	pollInterval    string
	pollMetricsAddr string
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Keep stored documents up to date on a fixed interval",
	Long: `Poll runs every enabled request definition once per interval and merges
the newest data into the document stored under the request name.

A request with no stored document is bootstrapped with historical_years of
history (split into yearly chunks). Afterwards each cycle fetches the last
hours_back hours plus overlap_hours, so consecutive cycles overlap and no
point is lost; duplicates are dropped by the merge.

With --metrics-addr the fetch counters are served at /metrics for Prometheus.`,
	Example: `  gridfetch poll --once
  gridfetch poll --interval 1h --metrics-addr :9109
  gridfetch poll --file requests.yaml --quiet`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.Config.Validate(); err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		interval := deps.Config.PollInterval
		if pollInterval != "" {
			if interval, err = time.ParseDuration(pollInterval); err != nil {
				return fmt.Errorf("invalid --interval %q: %w", pollInterval, err)
			}
		}
		if interval <= 0 {
			return fmt.Errorf("poll interval must be positive, got %s", interval)
		}

		ctx := cmd.Context()
		addr := deps.Config.MetricsAddr
		if pollMetricsAddr != "" {
			addr = pollMetricsAddr
		}
		if addr != "" {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			if err := deps.EnableMetrics(reg); err != nil {
				return err
			}
			go func() {
				if err := metrics.Serve(ctx, addr, reg); err != nil {
					deps.Log.Errorf("metrics server: %v", err)
				}
			}()
			deps.Log.Infof("serving metrics on %s/metrics", addr)
		}

		orch := deps.Orchestrator()
		runs, err := pollCycle(ctx, deps, orch)
		if err != nil {
			return err
		}
		if pollOnce {
			return emit(cmd, buildRunsResult("poll", runs), resolveFormat(deps.Config.Format), deps.Config.Verbose)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		deps.Log.Infof("next cycle in %s", interval)
		for {
			select {
			case <-ctx.Done():
				deps.Log.Infof("poll stopped")
				return nil
			case <-ticker.C:
				if _, err := pollCycle(ctx, deps, orch); err != nil {
					return err
				}
			}
		}
	},
}

// pollCycle updates every enabled request once. A failing request is logged
// and recorded; only setup errors and cancellation end the cycle early.
func pollCycle(ctx context.Context, deps *app.Deps, orch *fetch.Orchestrator) ([]model.RunReport, error) {
	defs, source, err := loadRequestSet(deps, pollFile)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("no enabled requests in %s", source)
	}

	var reports []model.RunReport
	for i, def := range defs {
		if i > 0 {
			t := time.NewTimer(deps.Config.RequestDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return reports, nil
			case <-t.C:
			}
		}
		if ctx.Err() != nil {
			return reports, nil
		}
		report, err := pollOne(ctx, deps, orch, def)
		if err != nil {
			deps.Log.Errorf("%s: %v", def.Name, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// pollOne bootstraps or incrementally updates the stored document of def.
func pollOne(ctx context.Context, deps *app.Deps, orch *fetch.Orchestrator, def model.RequestDef) (model.RunReport, error) {
	existing, found, err := deps.Store.GetDocument(def.Name)
	if err != nil {
		return model.RunReport{Name: def.Name, Error: err.Error()}, err
	}

	var res *fetch.RunResult
	if !found {
		r := chunk.HistoricalRange(time.Now(), deps.Config.HistoricalYears)
		deps.Log.Infof("%s: no stored document, bootstrapping %d years", def.Name, deps.Config.HistoricalYears)
		res, err = orch.Run(ctx, def.Name, chunk.WithRange(def.Params, r))
	} else {
		r := chunk.OperationalRange(time.Now(), def.PollHours(), deps.Config.OverlapHours)
		res, err = orch.Append(ctx, def.Name, existing, chunk.WithRange(def.Params, r))
	}
	if res == nil {
		return model.RunReport{Name: def.Name, Error: fmt.Sprint(err)}, err
	}
	if perr := deps.Store.PutRun(res.Report); perr != nil {
		deps.Log.Warnf("%s: recording run: %v", def.Name, perr)
	}
	if err != nil {
		// nothing is stored for an interrupted bootstrap, so the next cycle
		// bootstraps again instead of appending to a truncated history
		if !found && errors.Is(err, fetch.ErrInterrupted) {
			deps.Log.Warnf("%s: bootstrap interrupted, %d of %d chunks fetched; not stored",
				def.Name, res.Report.ChunksSucceeded, res.Report.ChunksTotal)
		}
		return res.Report, err
	}
	if err := deps.Store.PutDocument(def.Name, res.Document); err != nil {
		return res.Report, fmt.Errorf("storing document: %w", err)
	}
	deps.Log.Infof("%s: %s, %d points (+%d new)", def.Name, res.Report.Outcome(), res.Report.TotalPoints, res.Report.NewPoints)
	return res.Report, nil
}

func init() {
	rootCmd.AddCommand(pollCmd)

	pollCmd.Flags().StringVar(&pollFile, "file", "", "requests file (YAML or JSON); default: saved requests")
	pollCmd.Flags().BoolVar(&pollOnce, "once", false, "run a single cycle and print its run reports")
	pollCmd.Flags().StringVar(&pollInterval, "interval", "", "time between cycles (default: poll_interval, 1h)")
	pollCmd.Flags().StringVar(&pollMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9109)")
}
