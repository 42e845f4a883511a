package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/gridfetch/internal/render"
	"github.com/derickschaefer/gridfetch/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and manage the local database",
	Long: `Commands for inspecting what has been accumulated in the local bbolt
database: merged documents per request name, the raw payload of every chunk,
saved request definitions and run reports.

Use 'gridfetch fetch --store' or 'gridfetch poll' to accumulate data.`,
}

// ─── store list ───────────────────────────────────────────────────────────────

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents accumulated in the local database",
	Example: `  gridfetch store list
  gridfetch store list --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		docs, err := deps.Store.ListDocuments()
		if err != nil {
			return fmt.Errorf("reading store: %w", err)
		}
		if len(docs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No documents in local database.")
			fmt.Fprintln(cmd.OutOrStdout(), "  Use: gridfetch fetch --request <name> --store")
			return nil
		}

		format := resolveFormat(deps.Config.Format)
		if format != render.FormatTable {
			w, closeFn, err := outputWriter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeFn()
			return renderStoreList(w, format, docs)
		}

		total := 0
		printSimpleTable(cmd.OutOrStdout(), []string{"NAME", "TYPE", "START", "END", "SERIES", "POINTS", "UPDATED"}, func(add func(...string)) {
			for _, d := range docs {
				total += d.TotalDataPoints
				add(d.Name, d.DocumentType, d.Start, d.End,
					fmt.Sprintf("%d", d.Timeseries), fmt.Sprintf("%d", d.TotalDataPoints),
					d.UpdatedAt.Format("2006-01-02 15:04"))
			}
		})
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d documents  •  %d points  •  %s\n", len(docs), total, deps.Store.Path())
		return nil
	},
}

// ─── store get ────────────────────────────────────────────────────────────────

var storeGetCmd = &cobra.Command{
	Use:   "get <NAME>",
	Short: "Read a stored document",
	Example: `  gridfetch store get cz-load
  gridfetch store get cz-load --format csv
  gridfetch store get cz-load --format jsonl | gridfetch transform resample --freq daily`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		doc, ok, err := deps.Store.GetDocument(args[0])
		if err != nil {
			return fmt.Errorf("reading store: %w", err)
		}
		if !ok {
			return fmt.Errorf("no stored document %q\n\n  Use: gridfetch fetch --request %s --store", args[0], args[0])
		}
		result := buildDocumentResult("store get "+args[0], doc, time.Now())
		return emit(cmd, result, resolveFormat(deps.Config.Format), deps.Config.Verbose)
	},
}

// ─── store delete ─────────────────────────────────────────────────────────────

var storeDeleteCmd = &cobra.Command{
	Use:     "delete <NAME>",
	Short:   "Delete a stored document and its raw payloads",
	Example: `  gridfetch store delete cz-load`,
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

		ok, err := deps.Store.HasDocument(args[0])
		if err != nil {
			return fmt.Errorf("reading store: %w", err)
		}
		if !ok {
			return fmt.Errorf("no stored document %q", args[0])
		}
		if err := deps.Store.DeleteDocument(args[0]); err != nil {
			return fmt.Errorf("deleting document: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted document %s\n", args[0])
		return nil
	},
}

// ─── store raw ────────────────────────────────────────────────────────────────

var storeRawCmd = &cobra.Command{
	Use:   "raw <NAME> [LABEL]",
	Short: "List archived raw payloads, or write one to stdout / --out",
	Long: `Every chunk fetched with --store keeps its raw response body, keyed by the
chunk label (the year of its start). Without LABEL the payloads of NAME are
listed; with LABEL the bytes are written unchanged (XML or ZIP).`,
	Example: `  gridfetch store raw cz-load
  gridfetch store raw cz-load 2021 --out 2021.xml`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		if len(args) == 1 {
			infos, err := deps.Store.ListRaw(args[0])
			if err != nil {
				return fmt.Errorf("reading store: %w", err)
			}
			if len(infos) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No raw payloads for %s.\n", args[0])
				return nil
			}
			printSimpleTable(cmd.OutOrStdout(), []string{"NAME", "LABEL", "SIZE"}, func(add func(...string)) {
				for _, r := range infos {
					add(r.Name, r.Label, humanBytes(int64(r.Bytes)))
				}
			})
			return nil
		}

		raw, ok, err := deps.Store.GetRaw(args[0], args[1])
		if err != nil {
			return fmt.Errorf("reading store: %w", err)
		}
		if !ok {
			return fmt.Errorf("no raw payload %s/%s", args[0], args[1])
		}
		w, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer closeFn()
		_, err = w.Write(raw)
		return err
	},
}

// ─── store runs ───────────────────────────────────────────────────────────────

var storeRunsLimit int

var storeRunsCmd = &cobra.Command{
	Use:   "runs [NAME]",
	Short: "Show recorded run reports, most recent first",
	Example: `  gridfetch store runs
  gridfetch store runs cz-load --limit 5 --format csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		runs, err := deps.Store.ListRuns(name)
		if err != nil {
			return fmt.Errorf("reading runs: %w", err)
		}
		if storeRunsLimit > 0 && len(runs) > storeRunsLimit {
			runs = runs[:storeRunsLimit]
		}
		return emit(cmd, buildRunsResult("store runs", runs), resolveFormat(deps.Config.Format), deps.Config.Verbose)
	},
}

// ─── store stats ──────────────────────────────────────────────────────────────

var storeStatsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show row counts and sizes for each bucket",
	Example: `  gridfetch store stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		stats, err := deps.Store.Stats()
		if err != nil {
			return fmt.Errorf("reading store stats: %w", err)
		}

		// Sort by bucket name for deterministic output
		sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })

		fmt.Fprintf(cmd.OutOrStdout(), "Database: %s\n\n", deps.Store.Path())
		printSimpleTable(cmd.OutOrStdout(), []string{"BUCKET", "ROWS", "SIZE"}, func(add func(...string)) {
			for _, s := range stats {
				add(s.Name, fmt.Sprintf("%d", s.Count), humanBytes(s.Bytes))
			}
		})
		return nil
	},
}

// ─── store clear ──────────────────────────────────────────────────────────────

var (
	storeClearAll    bool
	storeClearBucket string
)

var storeClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete entries from the local database",
	Long: `Delete entries from one or all buckets.

Note: bbolt does not shrink the database file automatically after clearing.
Free pages are reused internally on the next write.`,
	Example: `  gridfetch store clear --all
  gridfetch store clear --bucket raw`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !storeClearAll && storeClearBucket == "" {
			return fmt.Errorf("specify --all or --bucket <n>\n\nBuckets: %s", strings.Join(store.AllBuckets, ", "))
		}
		if storeClearBucket != "" && !slices.Contains(store.AllBuckets, storeClearBucket) {
			return fmt.Errorf("unknown bucket %q\n\nBuckets: %s", storeClearBucket, strings.Join(store.AllBuckets, ", "))
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		if storeClearAll {
			if err := deps.Store.ClearAll(); err != nil {
				return fmt.Errorf("clearing all buckets: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Cleared all buckets")
			return nil
		}

		if err := deps.Store.ClearBucket(storeClearBucket); err != nil {
			return fmt.Errorf("clearing bucket %q: %w", storeClearBucket, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared bucket %q\n", storeClearBucket)
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storeGetCmd)
	storeCmd.AddCommand(storeDeleteCmd)
	storeCmd.AddCommand(storeRawCmd)
	storeCmd.AddCommand(storeRunsCmd)
	storeCmd.AddCommand(storeStatsCmd)
	storeCmd.AddCommand(storeClearCmd)

	storeRunsCmd.Flags().IntVar(&storeRunsLimit, "limit", 0, "show at most N reports (0 = all)")
	storeClearCmd.Flags().BoolVar(&storeClearAll, "all", false, "clear all buckets")
	storeClearCmd.Flags().StringVar(&storeClearBucket, "bucket", "", "clear a specific bucket: documents|raw|requests|runs")
}

// renderStoreList writes document summaries in a machine-readable format.
func renderStoreList(w io.Writer, format string, docs []store.DocumentInfo) error {
	switch format {
	case render.FormatCSV, render.FormatTSV:
		cw := csv.NewWriter(w)
		if format == render.FormatTSV {
			cw.Comma = '\t'
		}
		_ = cw.Write([]string{"name", "document_type", "start", "end", "timeseries", "total_data_points", "updated_at"})
		for _, d := range docs {
			_ = cw.Write([]string{d.Name, d.DocumentType, d.Start, d.End,
				fmt.Sprintf("%d", d.Timeseries), fmt.Sprintf("%d", d.TotalDataPoints), d.UpdatedAt.Format(time.RFC3339)})
		}
		cw.Flush()
		return cw.Error()
	case render.FormatJSONL:
		enc := json.NewEncoder(w)
		for _, d := range docs {
			if err := enc.Encode(d); err != nil {
				return err
			}
		}
		return nil
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}
}
