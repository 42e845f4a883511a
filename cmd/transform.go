package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/gridfetch/internal/model"
	"github.com/derickschaefer/gridfetch/internal/pipeline"
	"github.com/derickschaefer/gridfetch/internal/render"
	"github.com/derickschaefer/gridfetch/internal/transform"
	"github.com/derickschaefer/gridfetch/internal/util"
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Transform a table (reads JSONL or CSV from stdin)",
	Long: `Transform operators read a table from stdin and write a new one to stdout:
JSONL rows when piped, a table on a terminal, or any --format.

Pipeline example:
  gridfetch store get cz-load --format jsonl | gridfetch transform resample --freq daily
  gridfetch export cz-load | gridfetch transform filter --after 2024-01-01 | gridfetch analyze summary`,
}

// ─── resample ─────────────────────────────────────────────────────────────────

var (
	transformResampleFreq   string
	transformResampleMethod string
)

var transformResampleCmd = &cobra.Command{
	Use:   "resample",
	Short: "Aggregate rows into hourly, daily, monthly or annual buckets",
	Example: `  gridfetch store get cz-load --format jsonl | gridfetch transform resample --freq hourly
  gridfetch store get cz-prices --format jsonl | gridfetch transform resample --freq monthly --method max`,
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := pipeline.ReadTable(os.Stdin)
		if err != nil {
			return err
		}
		out, err := transform.Resample(table,
			transform.ResampleFreq(transformResampleFreq),
			transform.ResampleMethod(transformResampleMethod))
		if err != nil {
			return err
		}
		return writeTransformOutput(cmd, "transform resample", out)
	},
}

// ─── filter ───────────────────────────────────────────────────────────────────

var (
	transformFilterAfter   string
	transformFilterBefore  string
	transformFilterColumns []string
	transformFilterDrop    bool
)

var transformFilterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Keep rows in a time range and selected columns",
	Example: `  gridfetch export cz-load | gridfetch transform filter --after 2024-01-01 --before 2024-02-01
  gridfetch store get cz-gen --format jsonl | gridfetch transform filter --column Solar_MW --drop-empty`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := transform.FilterOptions{Columns: transformFilterColumns, DropEmpty: transformFilterDrop}
		var err error
		if transformFilterAfter != "" {
			if opts.After, err = util.ParseDate(transformFilterAfter); err != nil {
				return err
			}
		}
		if transformFilterBefore != "" {
			if opts.Before, err = util.ParseDate(transformFilterBefore); err != nil {
				return err
			}
		}

		table, err := pipeline.ReadTable(os.Stdin)
		if err != nil {
			return err
		}
		out, err := transform.Filter(table, opts)
		if err != nil {
			return err
		}
		return writeTransformOutput(cmd, "transform filter", out)
	},
}

// ─── roll ─────────────────────────────────────────────────────────────────────

var (
	transformRollWindow     int
	transformRollMinPeriods int
	transformRollStat       string
)

var transformRollCmd = &cobra.Command{
	Use:   "roll",
	Short: "Trailing rolling statistic over N rows: mean, std, min, max, sum",
	Example: `  gridfetch store get cz-load --format jsonl | gridfetch transform roll --window 24
  gridfetch store get cz-load --format jsonl | gridfetch transform roll --window 168 --stat max --min-periods 24`,
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := pipeline.ReadTable(os.Stdin)
		if err != nil {
			return err
		}
		out, err := transform.Roll(table, transformRollWindow, transformRollMinPeriods, transform.RollStat(transformRollStat))
		if err != nil {
			return err
		}
		return writeTransformOutput(cmd, "transform roll", out)
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(transformCmd)
	transformCmd.AddCommand(transformResampleCmd)
	transformCmd.AddCommand(transformFilterCmd)
	transformCmd.AddCommand(transformRollCmd)

	// resample flags
	transformResampleCmd.Flags().StringVar(&transformResampleFreq, "freq", "hourly", "target frequency: hourly|daily|monthly|annual")
	transformResampleCmd.Flags().StringVar(&transformResampleMethod, "method", "mean", "aggregation method: mean|last|sum|min|max")

	// filter flags
	transformFilterCmd.Flags().StringVar(&transformFilterAfter, "after", "", "keep rows at or after YYYY-MM-DD / yyyyMMddHHmm")
	transformFilterCmd.Flags().StringVar(&transformFilterBefore, "before", "", "keep rows before YYYY-MM-DD / yyyyMMddHHmm")
	transformFilterCmd.Flags().StringSliceVar(&transformFilterColumns, "column", nil, "keep only these columns (repeatable)")
	transformFilterCmd.Flags().BoolVar(&transformFilterDrop, "drop-empty", false, "drop rows whose kept cells are all empty")

	// roll flags
	transformRollCmd.Flags().IntVar(&transformRollWindow, "window", 24, "window size (number of rows)")
	transformRollCmd.Flags().IntVar(&transformRollMinPeriods, "min-periods", 1, "minimum values required in window")
	transformRollCmd.Flags().StringVar(&transformRollStat, "stat", "mean", "statistic: mean|std|min|max|sum")
}

// ─── Output helper ────────────────────────────────────────────────────────────

// writeTransformOutput writes table as JSONL (pipeline) or a table (terminal)
// unless --format says otherwise.
func writeTransformOutput(cmd *cobra.Command, command string, table model.TabularExport) error {
	format := resolveFormat("")
	// If no explicit format and stdout is a terminal, use table
	if globalFlags.Format == "" {
		if pipeline.IsTTY() {
			format = render.FormatTable
		} else {
			format = render.FormatJSONL
		}
	}
	result := buildTableResult(command, table)
	result.GeneratedAt = time.Now()
	return emit(cmd, result, format, globalFlags.Verbose)
}
