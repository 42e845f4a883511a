package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/derickschaefer/gridfetch/internal/app"
	"github.com/derickschaefer/gridfetch/internal/config"
	"github.com/derickschaefer/gridfetch/internal/model"
	"github.com/derickschaefer/gridfetch/internal/util"
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Save and manage named request definitions",
	Long: `A request definition is a named set of API parameters. Saved requests are
kept in the local database and can be fetched by name, run as a batch, or
polled on a schedule.

  gridfetch request save cz-load documentType=A65 processType=A16 outBiddingZone_Domain=10YCZ-CEPS-----N
  gridfetch request import requests.yaml
  gridfetch fetch --request cz-load --start 2024-01-01 --end 2024-02-01`,
}

// ─── request save ─────────────────────────────────────────────────────────────

var (
	requestSaveSchedule  string
	requestSaveHoursBack int
	requestSaveDisabled  bool
)

var requestSaveCmd = &cobra.Command{
	Use:   "save <NAME> <key=value...>",
	Short: "Save a parameter set under a name",
	Example: `  gridfetch request save cz-load documentType=A65 processType=A16 outBiddingZone_Domain=10YCZ-CEPS-----N
  gridfetch request save de-prices documentType=A44 in_Domain=10Y1001A1001A82H out_Domain=10Y1001A1001A82H --schedule "0 */6 * * *"`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := util.ParseParams(args[1:])
		if err != nil {
			return err
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		def := model.RequestDef{
			ID:        uuid.NewString(),
			Name:      args[0],
			Params:    params,
			Schedule:  requestSaveSchedule,
			HoursBack: requestSaveHoursBack,
			CreatedAt: time.Now().UTC(),
		}
		if requestSaveDisabled {
			run := false
			def.Run = &run
		}
		if prev, ok, err := deps.Store.GetRequest(def.Name); err == nil && ok {
			def.ID = prev.ID
		}
		if err := deps.Store.PutRequest(def); err != nil {
			return fmt.Errorf("saving request: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved request %s  (%d params)\n", def.Name, len(def.Params))
		return nil
	},
}

// ─── request list ─────────────────────────────────────────────────────────────

var requestListFile string

var requestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved requests (or the definitions in a requests file)",
	Example: `  gridfetch request list
  gridfetch request list --file requests.yaml --format csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}

		var defs []model.RequestDef
		if requestListFile != "" {
			if defs, err = config.LoadRequests(requestListFile); err != nil {
				return err
			}
		} else {
			if err := deps.RequireStore(); err != nil {
				return err
			}
			defer deps.Close()
			if defs, err = deps.Store.ListRequests(); err != nil {
				return fmt.Errorf("listing requests: %w", err)
			}
		}
		if len(defs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No requests saved.")
			fmt.Fprintln(cmd.OutOrStdout(), "  Use: gridfetch request save <name> key=value...")
			return nil
		}

		result := &model.Result{
			Kind:        model.KindRequest,
			GeneratedAt: time.Now(),
			Command:     "request list",
			Data:        defs,
			Stats:       model.ResultStats{Items: len(defs)},
		}
		return emit(cmd, result, resolveFormat(deps.Config.Format), deps.Config.Verbose)
	},
}

// ─── request show ─────────────────────────────────────────────────────────────

var requestShowCmd = &cobra.Command{
	Use:     "show <NAME>",
	Short:   "Show full details of a saved request",
	Example: `  gridfetch request show cz-load`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		def, ok, err := deps.Store.GetRequest(args[0])
		if err != nil {
			return fmt.Errorf("reading request: %w", err)
		}
		if !ok {
			return fmt.Errorf("request %q not found", args[0])
		}

		printSimpleTable(cmd.OutOrStdout(), []string{"FIELD", "VALUE"}, func(add func(...string)) {
			add("ID", def.ID)
			add("Name", def.Name)
			add("Run", fmt.Sprintf("%t", def.Enabled()))
			add("Schedule", def.Schedule)
			add("Poll window", fmt.Sprintf("%dh", def.PollHours()))
			add("Created", def.CreatedAt.Format(time.RFC3339))
			for _, k := range util.SortedKeys(def.Params) {
				add(k, def.Params[k])
			}
		})
		return nil
	},
}

// ─── request delete ───────────────────────────────────────────────────────────

var requestDeleteCmd = &cobra.Command{
	Use:     "delete <NAME>",
	Short:   "Delete a saved request",
	Example: `  gridfetch request delete cz-load`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		def, ok, err := deps.Store.GetRequest(args[0])
		if err != nil {
			return fmt.Errorf("reading request: %w", err)
		}
		if !ok {
			return fmt.Errorf("request %q not found", args[0])
		}
		if err := deps.Store.DeleteRequest(def.Name); err != nil {
			return fmt.Errorf("deleting request: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted request %s  (%s)\n", def.Name, def.ID)
		return nil
	},
}

// ─── request import ───────────────────────────────────────────────────────────

var requestImportCmd = &cobra.Command{
	Use:   "import [FILE]",
	Short: "Import request definitions from a YAML or JSON file",
	Long: `Import request definitions into the local database. FILE defaults to the
requests_file config key (requests.yaml). Existing requests with the same
name are replaced.`,
	Example: `  gridfetch request import
  gridfetch request import my_requests.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		path := deps.Config.RequestsFile
		if len(args) == 1 {
			path = args[0]
		}
		defs, err := config.LoadRequests(path)
		if err != nil {
			return err
		}

		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		now := time.Now().UTC()
		for _, def := range defs {
			if def.ID == "" {
				def.ID = uuid.NewString()
			}
			def.CreatedAt = now
			if err := deps.Store.PutRequest(def); err != nil {
				return fmt.Errorf("saving request %s: %w", def.Name, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported %d requests from %s  (%d enabled)\n",
			len(defs), path, len(config.Enabled(defs)))
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(requestCmd)
	requestCmd.AddCommand(requestSaveCmd)
	requestCmd.AddCommand(requestListCmd)
	requestCmd.AddCommand(requestShowCmd)
	requestCmd.AddCommand(requestDeleteCmd)
	requestCmd.AddCommand(requestImportCmd)

	requestSaveCmd.Flags().StringVar(&requestSaveSchedule, "schedule", "", "cron-style schedule hint; \"*/6\" widens the poll window")
	requestSaveCmd.Flags().IntVar(&requestSaveHoursBack, "hours-back", 0, "poll window in hours (default: 3, or 7 for six-hourly schedules)")
	requestSaveCmd.Flags().BoolVar(&requestSaveDisabled, "disabled", false, "exclude the request from batch and poll runs")
	requestListCmd.Flags().StringVar(&requestListFile, "file", "", "list definitions from a requests file instead of the database")
}

// ─── Lookup ───────────────────────────────────────────────────────────────────

// lookupRequest finds a request definition by name, first in the store and
// then in the configured requests file. The store is opened if needed.
func lookupRequest(deps *app.Deps, name string) (model.RequestDef, error) {
	if err := deps.RequireStore(); err != nil {
		return model.RequestDef{}, err
	}
	if def, ok, err := deps.Store.GetRequest(name); err != nil {
		return model.RequestDef{}, fmt.Errorf("reading request: %w", err)
	} else if ok {
		return def, nil
	}
	defs, err := config.LoadRequests(deps.Config.RequestsFile)
	if err != nil {
		return model.RequestDef{}, fmt.Errorf("request %q not found in database (%v)", name, err)
	}
	for _, d := range defs {
		if d.Name == name {
			return d, nil
		}
	}
	return model.RequestDef{}, fmt.Errorf("request %q not found in database or %s", name, deps.Config.RequestsFile)
}

// loadRequestSet returns the enabled requests for batch and poll runs: the
// requests file when set, else every saved request.
func loadRequestSet(deps *app.Deps, file string) ([]model.RequestDef, string, error) {
	if file != "" {
		defs, err := config.LoadRequests(file)
		if err != nil {
			return nil, "", err
		}
		return config.Enabled(defs), file, nil
	}
	if err := deps.RequireStore(); err != nil {
		return nil, "", err
	}
	defs, err := deps.Store.ListRequests()
	if err != nil {
		return nil, "", fmt.Errorf("listing requests: %w", err)
	}
	if len(defs) == 0 {
		// nothing saved yet; fall back to the configured file
		fileDefs, ferr := config.LoadRequests(deps.Config.RequestsFile)
		if ferr != nil {
			return nil, "", fmt.Errorf("no saved requests and %s could not be read: %w", deps.Config.RequestsFile, ferr)
		}
		return config.Enabled(fileDefs), deps.Config.RequestsFile, nil
	}
	return config.Enabled(defs), "database", nil
}
