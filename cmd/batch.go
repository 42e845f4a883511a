package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/gridfetch/internal/app"
	"github.com/derickschaefer/gridfetch/internal/fetch"
	"github.com/derickschaefer/gridfetch/internal/merge"
	"github.com/derickschaefer/gridfetch/internal/model"
)

var (
	batchFile     string
	batchStart    string
	batchEnd      string
	batchStore    bool
	batchCombined string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run every enabled request definition in sequence",
	Long: `Batch runs all enabled request definitions one after another with
request_delay between them, then prints a summary and the report of each run.
A failing request is recorded and does not stop the batch.

Definitions come from --file, or from the database (falling back to the
requests_file config key when nothing is saved). --start/--end override the
period of every request.`,
	Example: `  gridfetch batch --file requests.yaml --start 2024-01-01 --end 2024-02-01
  gridfetch batch --store
  gridfetch batch --combined all-sources --format json --out batch.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.Config.Validate(); err != nil {
			return err
		}
		defer deps.Close()

		defs, source, err := loadRequestSet(deps, batchFile)
		if err != nil {
			return err
		}
		if len(defs) == 0 {
			return fmt.Errorf("no enabled requests in %s", source)
		}
		period, err := parseParams(nil, batchStart, batchEnd)
		if err != nil {
			return err
		}
		reqs := make([]fetch.Request, 0, len(defs))
		for _, d := range defs {
			params := make(map[string]string, len(d.Params)+len(period))
			for k, v := range d.Params {
				params[k] = v
			}
			for k, v := range period {
				params[k] = v
			}
			reqs = append(reqs, fetch.Request{Name: d.Name, Params: params})
		}
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "Running %d requests from %s\n", len(reqs), source)
		}

		if batchStore || batchCombined != "" {
			if err := deps.RequireStore(); err != nil {
				return err
			}
		}

		started := time.Now()
		res, runErr := deps.Orchestrator().Batch(cmd.Context(), reqs)
		if res == nil {
			return runErr
		}
		if batchStore {
			if err := storeBatch(deps, res); err != nil {
				return err
			}
		}
		if batchCombined != "" && res.Combined != nil {
			if err := deps.Store.PutDocument(batchCombined, res.Combined); err != nil {
				return fmt.Errorf("storing combined document: %w", err)
			}
		}

		report := model.BatchReport{Summary: res.Summary}
		var warnings []string
		for _, r := range res.Runs {
			report.Runs = append(report.Runs, r.Report)
			warnings = append(warnings, chunkWarnings(r.Report)...)
		}
		result := &model.Result{
			Kind:        model.KindBatch,
			GeneratedAt: time.Now(),
			Command:     "batch",
			Data:        report,
			Warnings:    warnings,
			Stats: model.ResultStats{
				DurationMs: time.Since(started).Milliseconds(),
				Items:      len(report.Runs),
			},
		}
		if err := emit(cmd, result, resolveFormat(deps.Config.Format), deps.Config.Verbose); err != nil {
			return err
		}
		return runErr
	},
}

// storeBatch merges every successful run into its stored document and
// records all run reports.
func storeBatch(deps *app.Deps, res *fetch.BatchResult) error {
	for _, r := range res.Runs {
		if err := deps.Store.PutRun(r.Report); err != nil {
			deps.Log.Warnf("recording run %s: %v", r.Report.Name, err)
		}
		if r.Document == nil {
			continue
		}
		existing, _, err := deps.Store.GetDocument(r.Report.Name)
		if err != nil {
			return fmt.Errorf("reading stored document %s: %w", r.Report.Name, err)
		}
		merged, err := merge.Documents(existing, r.Document.ParsedDocument)
		if err != nil {
			return fmt.Errorf("merging %s: %w", r.Report.Name, err)
		}
		if err := deps.Store.PutDocument(r.Report.Name, merged); err != nil {
			return fmt.Errorf("storing %s: %w", r.Report.Name, err)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVar(&batchFile, "file", "", "requests file (YAML or JSON); default: saved requests")
	batchCmd.Flags().StringVar(&batchStart, "start", "", "override period start YYYY-MM-DD or yyyyMMddHHmm")
	batchCmd.Flags().StringVar(&batchEnd, "end", "", "override period end YYYY-MM-DD or yyyyMMddHHmm")
	batchCmd.Flags().BoolVar(&batchStore, "store", false, "merge each result into its stored document")
	batchCmd.Flags().StringVar(&batchCombined, "combined", "", "store the document combining all runs under this name")
}
