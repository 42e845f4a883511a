package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/gridfetch/internal/analyze"
	"github.com/derickschaefer/gridfetch/internal/model"
	"github.com/derickschaefer/gridfetch/internal/pipeline"
)

var analyzeInput string

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze table columns (reads JSONL or CSV from stdin)",
	Long: `Analyze operators read a table from stdin (JSONL rows or CSV, as written by
--format jsonl / --format csv) and report per-column statistics.

Examples:
  gridfetch store get cz-load --format jsonl | gridfetch analyze summary
  gridfetch store get cz-load --format jsonl | gridfetch transform resample --freq daily | gridfetch analyze trend`,
}

// readAnalyzeTable reads the input table from --input or stdin.
func readAnalyzeTable() (model.TabularExport, error) {
	in, err := openInput(analyzeInput)
	if err != nil {
		return model.TabularExport{}, err
	}
	defer in.Close()
	return pipeline.ReadTable(in)
}

// ─── analyze summary ─────────────────────────────────────────────────────────

var analyzeSummaryColumns []string

var analyzeSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Descriptive statistics per column: count, mean, std, quantiles, skew",
	Example: `  gridfetch store get cz-load --format jsonl | gridfetch analyze summary
  gridfetch export cz-load | gridfetch analyze summary --column Load_MW --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := readAnalyzeTable()
		if err != nil {
			return err
		}
		sums, err := analyze.SummarizeTable(table, analyzeSummaryColumns...)
		if err != nil {
			return err
		}
		result := &model.Result{
			Kind:        model.KindSummary,
			GeneratedAt: time.Now(),
			Command:     "analyze summary",
			Data:        sums,
			Stats:       model.ResultStats{Items: len(sums)},
		}
		return emit(cmd, result, resolveFormat(""), globalFlags.Verbose)
	},
}

// ─── analyze trend ────────────────────────────────────────────────────────────

var (
	analyzeTrendMethod  string
	analyzeTrendColumns []string
)

var analyzeTrendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Fit a trend per column: slope, intercept, R², direction",
	Example: `  gridfetch store get cz-load --format jsonl | gridfetch analyze trend
  gridfetch store get cz-load --format jsonl | gridfetch analyze trend --method theil-sen --column Load_MW`,
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := readAnalyzeTable()
		if err != nil {
			return err
		}
		columns := analyzeTrendColumns
		if len(columns) == 0 {
			columns = table.Columns[1:]
		}

		var trends []analyze.TrendResult
		var warnings []string
		for _, c := range columns {
			samples, err := analyze.Column(table, c)
			if err != nil {
				return err
			}
			tr, err := analyze.Trend(c, samples, analyze.TrendMethod(analyzeTrendMethod))
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: %v", c, err))
				continue
			}
			trends = append(trends, tr)
		}
		if len(trends) == 0 {
			return fmt.Errorf("no column has enough values for a trend")
		}

		result := &model.Result{
			Kind:        model.KindTrend,
			GeneratedAt: time.Now(),
			Command:     "analyze trend",
			Data:        trends,
			Warnings:    warnings,
			Stats:       model.ResultStats{Items: len(trends)},
		}
		return emit(cmd, result, resolveFormat(""), globalFlags.Verbose)
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.AddCommand(analyzeSummaryCmd)
	analyzeCmd.AddCommand(analyzeTrendCmd)

	analyzeCmd.PersistentFlags().StringVar(&analyzeInput, "input", "", "read the table from a file instead of stdin")
	analyzeSummaryCmd.Flags().StringSliceVar(&analyzeSummaryColumns, "column", nil, "columns to summarize (default: all)")
	analyzeTrendCmd.Flags().StringSliceVar(&analyzeTrendColumns, "column", nil, "columns to fit (default: all)")
	analyzeTrendCmd.Flags().StringVar(&analyzeTrendMethod, "method", "linear", "trend method: linear|theil-sen")
}
