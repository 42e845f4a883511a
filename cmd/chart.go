package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/gridfetch/internal/analyze"
	"github.com/derickschaefer/gridfetch/internal/chart"
	"github.com/derickschaefer/gridfetch/internal/model"
	"github.com/derickschaefer/gridfetch/internal/pipeline"
)

var (
	chartInput  string
	chartColumn string
	chartWidth  int
)

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Draw a table column in the terminal (reads JSONL or CSV from stdin)",
	Long: `Chart draws one value column of a table read from stdin or --input.
Without --column the first value column is drawn.

Examples:
  gridfetch store get cz-load --format jsonl | gridfetch chart plot
  gridfetch store get cz-load --format jsonl | gridfetch transform resample --freq monthly | gridfetch chart bar`,
}

// chartSamples reads the input table and extracts the selected column.
func chartSamples() (string, []analyze.Sample, error) {
	in, err := openInput(chartInput)
	if err != nil {
		return "", nil, err
	}
	defer in.Close()
	table, err := pipeline.ReadTable(in)
	if err != nil {
		return "", nil, err
	}
	column, err := pickColumn(table, chartColumn)
	if err != nil {
		return "", nil, err
	}
	samples, err := analyze.Column(table, column)
	return column, samples, err
}

// pickColumn returns want, or the first value column when want is empty.
func pickColumn(table model.TabularExport, want string) (string, error) {
	if want != "" {
		return want, nil
	}
	if len(table.Columns) < 2 {
		return "", errNoValueColumns
	}
	return table.Columns[1], nil
}

var errNoValueColumns = errors.New("table has no value columns")

// ─── chart bar ────────────────────────────────────────────────────────────────

var chartBarLast int

var chartBarCmd = &cobra.Command{
	Use:     "bar",
	Short:   "Horizontal bar per row (best for resampled tables)",
	Example: `  gridfetch export cz-load | gridfetch transform resample --freq daily | gridfetch chart bar --last 30`,
	RunE: func(cmd *cobra.Command, args []string) error {
		column, samples, err := chartSamples()
		if err != nil {
			return err
		}
		return chart.Bar(cmd.OutOrStdout(), column, samples, chart.BarOptions{Width: chartWidth, Last: chartBarLast})
	},
}

// ─── chart plot ───────────────────────────────────────────────────────────────

var (
	chartPlotHeight int
	chartPlotTitle  string
)

var chartPlotCmd = &cobra.Command{
	Use:     "plot",
	Short:   "Line plot of a column (works with dense hourly data)",
	Example: `  gridfetch store get cz-gen --format jsonl | gridfetch chart plot --column Solar_MW --height 16`,
	RunE: func(cmd *cobra.Command, args []string) error {
		column, samples, err := chartSamples()
		if err != nil {
			return err
		}
		return chart.Plot(cmd.OutOrStdout(), column, samples,
			chart.PlotOptions{Width: chartWidth, Height: chartPlotHeight, Title: chartPlotTitle})
	},
}

func init() {
	rootCmd.AddCommand(chartCmd)
	chartCmd.AddCommand(chartBarCmd)
	chartCmd.AddCommand(chartPlotCmd)

	chartCmd.PersistentFlags().StringVar(&chartInput, "input", "", "read the table from a file instead of stdin")
	chartCmd.PersistentFlags().StringVar(&chartColumn, "column", "", "column to draw (default: first value column)")
	chartCmd.PersistentFlags().IntVar(&chartWidth, "width", 0, "chart width in characters (default: $COLUMNS or 80)")
	chartBarCmd.Flags().IntVar(&chartBarLast, "last", 0, "draw only the last N rows")
	chartPlotCmd.Flags().IntVar(&chartPlotHeight, "height", 12, "plot height in rows")
	chartPlotCmd.Flags().StringVar(&chartPlotTitle, "title", "", "title (default: column name)")
}
