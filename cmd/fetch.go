package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/gridfetch/internal/chunk"
	"github.com/derickschaefer/gridfetch/internal/fetch"
	"github.com/derickschaefer/gridfetch/internal/model"
)

// ─── fetch ────────────────────────────────────────────────────────────────────

var (
	fetchRequest string
	fetchName    string
	fetchStart   string
	fetchEnd     string
	fetchStore   bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [key=value...]",
	Short: "Fetch a request, splitting long ranges into yearly chunks",
	Long: `Fetch issues one API request, or one request per calendar year when the
period is longer than year_threshold (default 1 year). Chunks run sequentially
with request_delay between calls; a failed chunk is reported and skipped.

Parameters are passed as key=value pairs and sent to the API unchanged.
--request loads a saved definition; explicit pairs override its values.

With --store the result is merged into the document stored under the request
name, raw payloads are archived per chunk, and the run report is recorded.`,
	Example: `  gridfetch fetch documentType=A65 processType=A16 outBiddingZone_Domain=10YCZ-CEPS-----N \
      --start 2024-01-01 --end 2024-01-08
  gridfetch fetch --request cz-load --start 2020-03-01 --end 2022-09-01 --store
  gridfetch fetch --request cz-load --start 2024-01-01 --end 2024-01-02 --format csv --out load.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.Config.Validate(); err != nil {
			return err
		}
		defer deps.Close()

		started := time.Now()
		params := map[string]string{}
		name := fetchName
		if fetchRequest != "" {
			def, err := lookupRequest(deps, fetchRequest)
			if err != nil {
				return err
			}
			params = def.Params
			if name == "" {
				name = def.Name
			}
		}
		overrides, err := parseParams(args, fetchStart, fetchEnd)
		if err != nil {
			return err
		}
		for k, v := range overrides {
			params[k] = v
		}
		if len(params) == 0 {
			return fmt.Errorf("no parameters given\n\n  Use: gridfetch fetch key=value... or --request <name>")
		}
		if name == "" {
			name = "adhoc"
		}

		var res *fetch.RunResult
		var runErr error
		if fetchStore {
			if err := deps.RequireStore(); err != nil {
				return err
			}
			existing, found, err := deps.Store.GetDocument(name)
			if err != nil {
				return fmt.Errorf("reading stored document: %w", err)
			}
			if !found {
				existing = nil
			}
			res, err = deps.Orchestrator().Append(cmd.Context(), name, existing, params)
			if res != nil {
				if perr := deps.Store.PutRun(res.Report); perr != nil {
					deps.Log.Warnf("recording run: %v", perr)
				}
			}
			// An interrupted fetch keeps the chunks it merged; repeating the
			// same fetch fills the rest without duplicating points.
			if err != nil && !interrupted(res, err) {
				return err
			}
			runErr = err
			if err := deps.Store.PutDocument(name, res.Document); err != nil {
				return fmt.Errorf("storing document: %w", err)
			}
			if !deps.Config.Quiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "✓ Stored %s: %d points (+%d new) in %s\n",
					name, res.Report.TotalPoints, res.Report.NewPoints, deps.Store.Path())
			}
		} else {
			orch := deps.Orchestrator()
			orch.Archive = nil
			res, err = orch.Run(cmd.Context(), name, params)
			if err != nil && !interrupted(res, err) {
				return err
			}
			runErr = err
		}

		result := buildDocumentResult("fetch "+name, res.Document, started)
		result.Warnings = chunkWarnings(res.Report)
		if runErr != nil {
			result.Warnings = append(result.Warnings, "interrupted: output holds only the chunks fetched so far")
		}
		if err := emit(cmd, result, resolveFormat(deps.Config.Format), deps.Config.Verbose); err != nil {
			return err
		}
		return runErr
	},
}

// interrupted reports whether err ended a run that still merged a document.
func interrupted(res *fetch.RunResult, err error) bool {
	return errors.Is(err, fetch.ErrInterrupted) && res != nil && res.Document != nil
}

// ─── plan ─────────────────────────────────────────────────────────────────────

var (
	planStart string
	planEnd   string
)

var planCmd = &cobra.Command{
	Use:   "plan [key=value...]",
	Short: "Show how a request period would be split into chunks",
	Long: `Plan prints the chunks a fetch would issue for the given period without
calling the API. Periods longer than year_threshold split at calendar-year
boundaries; the first and last chunks are clipped to the request.`,
	Example: `  gridfetch plan --start 2020-03-01 --end 2022-09-01
  gridfetch plan periodStart=201501010000 periodEnd=202501010000 --format csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		params, err := parseParams(args, planStart, planEnd)
		if err != nil {
			return err
		}
		start, end, ok := chunk.Range(params)
		if !ok {
			return fmt.Errorf("a period is required: --start/--end or %s=/%s= in yyyyMMddHHmm", chunk.ParamStart, chunk.ParamEnd)
		}
		if !end.After(start) {
			return fmt.Errorf("period end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
		}

		planner := chunk.NewPlanner(deps.Config.YearThreshold)
		plan, split := planner.PlanParams(params)
		if !split {
			plan = []model.Chunk{{Start: start, End: end, Label: fmt.Sprintf("%d", start.Year())}}
			if !deps.Config.Quiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "%.2f years ≤ threshold %.2f: single request\n",
					chunk.Years(start, end), deps.Config.YearThreshold)
			}
		}
		return emit(cmd, buildPlanResult("plan", plan), resolveFormat(deps.Config.Format), deps.Config.Verbose)
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(planCmd)

	fetchCmd.Flags().StringVar(&fetchRequest, "request", "", "load parameters from a saved request definition")
	fetchCmd.Flags().StringVar(&fetchName, "name", "", "document name for logs and --store (default: request name or \"adhoc\")")
	fetchCmd.Flags().StringVar(&fetchStart, "start", "", "period start YYYY-MM-DD or yyyyMMddHHmm (UTC)")
	fetchCmd.Flags().StringVar(&fetchEnd, "end", "", "period end YYYY-MM-DD or yyyyMMddHHmm (UTC, exclusive)")
	fetchCmd.Flags().BoolVar(&fetchStore, "store", false, "merge the result into the stored document and archive raw payloads")
	_ = fetchCmd.RegisterFlagCompletionFunc("request", completeRequestNames)

	planCmd.Flags().StringVar(&planStart, "start", "", "period start YYYY-MM-DD or yyyyMMddHHmm (UTC)")
	planCmd.Flags().StringVar(&planEnd, "end", "", "period end YYYY-MM-DD or yyyyMMddHHmm (UTC, exclusive)")
}
