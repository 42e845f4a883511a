package cmd

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/derickschaefer/gridfetch/internal/chunk"
	"github.com/derickschaefer/gridfetch/internal/model"
	"github.com/derickschaefer/gridfetch/internal/render"
	"github.com/derickschaefer/gridfetch/internal/util"
)

// resolveFormat returns the effective format string, falling back to "table".
// Unknown values fall back to table with a note on stderr.
func resolveFormat(cfgFormat string) string {
	format := render.FormatTable
	switch {
	case globalFlags.Format != "":
		format = globalFlags.Format
	case cfgFormat != "":
		format = cfgFormat
	}
	format = strings.ToLower(format)
	if !slices.Contains(render.Formats, format) {
		fmt.Fprintf(os.Stderr, "unknown format %q, using table (valid: %s)\n", format, strings.Join(render.Formats, "|"))
		return render.FormatTable
	}
	return format
}

// outputWriter returns the --out file when set, or def otherwise. The
// returned close function is always safe to call.
func outputWriter(def io.Writer) (io.Writer, func() error, error) {
	if globalFlags.Out == "" {
		return def, func() error { return nil }, nil
	}
	f, err := os.Create(globalFlags.Out)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}

// openInput opens path for reading; "" and "-" read stdin.
func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}

// parseParams turns key=value args into API parameters. start and end, when
// set, override periodStart/periodEnd and accept YYYY-MM-DD or yyyyMMddHHmm.
func parseParams(args []string, start, end string) (map[string]string, error) {
	params, err := util.ParseParams(args)
	if err != nil {
		return nil, err
	}
	for key, raw := range map[string]string{chunk.ParamStart: start, chunk.ParamEnd: end} {
		if raw == "" {
			continue
		}
		t, err := util.ParseDate(raw)
		if err != nil {
			return nil, err
		}
		params[key] = util.FormatAPITime(t)
	}
	return params, nil
}

// emit renders result to --out or stdout, then the footer.
func emit(cmd *cobra.Command, result *model.Result, format string, verbose bool) error {
	if err := render.RenderTo(globalFlags.Out, result, format); err != nil {
		return err
	}
	render.PrintFooter(cmd.ErrOrStderr(), result, verbose)
	return nil
}

// printSimpleTable renders a simple table with headers using tablewriter.
// The add callback is called with row values as variadic strings.
func printSimpleTable(w io.Writer, headers []string, fill func(add func(...string))) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)

	fill(func(cols ...string) {
		tw.Append(cols)
	})
	tw.Render()
}

// printKVTableTo renders a two-column key/value list with aligned keys.
func printKVTableTo(w io.Writer, rows [][]string) {
	maxKey := 0
	for _, r := range rows {
		if len(r[0]) > maxKey {
			maxKey = len(r[0])
		}
	}
	for _, r := range rows {
		padding := strings.Repeat(" ", maxKey-len(r[0]))
		fmt.Fprintf(w, "  %s%s  %s\n", r[0], padding, r[1])
	}
}

func humanBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// chunkWarnings lists every failed chunk of report as a warning line.
func chunkWarnings(report model.RunReport) []string {
	var out []string
	for _, c := range report.Chunks {
		if c.Status == model.ChunkFailed {
			out = append(out, fmt.Sprintf("%s: chunk %s failed: %s", report.Name, c.Label, c.Error))
		}
	}
	if report.Error != "" && report.ChunksSucceeded > 0 {
		out = append(out, fmt.Sprintf("%s: %s", report.Name, report.Error))
	}
	return out
}

// ─── Result builders ──────────────────────────────────────────────────────────

// buildDocumentResult wraps a merged document in a Result envelope.
func buildDocumentResult(command string, doc *model.MergedDocument, started time.Time) *model.Result {
	return &model.Result{
		Kind:        model.KindDocument,
		GeneratedAt: time.Now(),
		Command:     command,
		Data:        doc,
		Stats: model.ResultStats{
			DurationMs: time.Since(started).Milliseconds(),
			Items:      doc.TotalDataPoints,
		},
	}
}

// buildTableResult wraps a tabular export in a Result envelope.
func buildTableResult(command string, table model.TabularExport) *model.Result {
	return &model.Result{
		Kind:        model.KindTable,
		GeneratedAt: time.Now(),
		Command:     command,
		Data:        table,
		Stats:       model.ResultStats{Items: len(table.Rows)},
	}
}

// buildPlanResult wraps a chunk plan in a Result envelope.
func buildPlanResult(command string, plan []model.Chunk) *model.Result {
	return &model.Result{
		Kind:        model.KindPlan,
		GeneratedAt: time.Now(),
		Command:     command,
		Data:        plan,
		Stats:       model.ResultStats{Items: len(plan)},
	}
}

// buildRunsResult wraps run reports in a Result envelope.
func buildRunsResult(command string, runs []model.RunReport) *model.Result {
	return &model.Result{
		Kind:        model.KindRun,
		GeneratedAt: time.Now(),
		Command:     command,
		Data:        runs,
		Stats:       model.ResultStats{Items: len(runs)},
	}
}
