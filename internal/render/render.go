// Package render converts Result values into human-readable or machine-parseable
// output. Each format is a separate function; the top-level Render dispatcher
// selects based on the format string.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/derickschaefer/gridfetch/internal/analyze"
	"github.com/derickschaefer/gridfetch/internal/export"
	"github.com/derickschaefer/gridfetch/internal/model"
	"github.com/derickschaefer/gridfetch/internal/pipeline"
	"github.com/derickschaefer/gridfetch/internal/util"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatMD    = "md"
)

// Formats lists every accepted --format value.
var Formats = []string{FormatTable, FormatJSON, FormatJSONL, FormatCSV, FormatTSV, FormatMD}

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatJSONL:
		return renderJSONL(w, result)
	case FormatCSV:
		return renderDelimited(w, result, ',')
	case FormatTSV:
		return renderDelimited(w, result, '\t')
	case FormatMD:
		return renderMarkdown(w, result)
	default:
		return renderTable(w, result)
	}
}

// RenderTo writes to stdout by default; if path is non-empty, writes to file.
func RenderTo(path string, result *model.Result, format string) error {
	if path == "" {
		return Render(os.Stdout, result, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()
	return Render(f, result, format)
}

// tableOf returns the tabular projection of document and table results.
func tableOf(result *model.Result) (model.TabularExport, bool) {
	switch d := result.Data.(type) {
	case *model.MergedDocument:
		return export.Table(&d.ParsedDocument), true
	case *model.ParsedDocument:
		return export.Table(d), true
	case model.TabularExport:
		return d, true
	case *model.TabularExport:
		return *d, true
	}
	return model.TabularExport{}, false
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

// Documents and tables stream one row object per timestamp; lists stream
// one element per line.
func renderJSONL(w io.Writer, result *model.Result) error {
	if table, ok := tableOf(result); ok {
		return pipeline.WriteRows(w, table)
	}
	enc := json.NewEncoder(w)
	switch d := result.Data.(type) {
	case []model.Chunk:
		return encodeEach(enc, d)
	case []model.RunReport:
		return encodeEach(enc, d)
	case []model.RequestDef:
		return encodeEach(enc, d)
	case []analyze.Summary:
		return encodeEach(enc, d)
	case []analyze.TrendResult:
		return encodeEach(enc, d)
	case model.BatchReport:
		return encodeEach(enc, d.Runs)
	default:
		return enc.Encode(result.Data)
	}
}

func encodeEach[T any](enc *json.Encoder, items []T) error {
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return err
		}
	}
	return nil
}

// ─── Table ────────────────────────────────────────────────────────────────────

func renderTable(w io.Writer, result *model.Result) error {
	switch d := result.Data.(type) {
	case *model.MergedDocument:
		return renderDocumentTable(w, &d.ParsedDocument, d.ChunksWithData)
	case *model.ParsedDocument:
		return renderDocumentTable(w, d, -1)
	case model.TabularExport:
		return renderRowsTable(w, d)
	case []model.Chunk:
		return renderPlanTable(w, d)
	case []model.RunReport:
		return renderRunsTable(w, d)
	case model.BatchReport:
		return renderBatchTable(w, d)
	case []analyze.Summary:
		return renderSummaryTable(w, d)
	case []analyze.TrendResult:
		return renderTrendTable(w, d)
	case []model.RequestDef:
		return renderRequestsTable(w, d)
	default:
		// Fallback: JSON
		return renderJSON(w, result)
	}
}

func newTable(w io.Writer, headers []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)
	return tw
}

func renderDocumentTable(w io.Writer, doc *model.ParsedDocument, chunksWithData int) error {
	info := doc.DocumentInfo
	fmt.Fprintf(w, "%s  type=%s  process=%s\n", orDash(info.DocumentType), orDash(info.Type), orDash(info.ProcessType))
	fmt.Fprintf(w, "interval  %s → %s\n", orDash(doc.TimeInterval.Start), orDash(doc.TimeInterval.End))
	if chunksWithData >= 0 {
		fmt.Fprintf(w, "series    %d  •  points %d  •  chunks with data %d\n\n", doc.TimeseriesCount, doc.TotalDataPoints, chunksWithData)
	} else {
		fmt.Fprintf(w, "series    %d  •  points %d\n\n", doc.TimeseriesCount, doc.TotalDataPoints)
	}
	if doc.Error != nil {
		fmt.Fprintf(w, "%s: %s\n", doc.Error.Code, doc.Error.Text)
		return nil
	}

	names := export.Table(doc).Columns
	tw := newTable(w, []string{"COLUMN", "BUSINESS", "PSR", "DOMAIN", "UNIT", "PERIODS", "POINTS", "FIRST START"})
	for i, ts := range doc.Timeseries {
		col := ""
		if i+1 < len(names) {
			col = names[i+1]
		}
		first := ""
		if start, ok := ts.FirstStart(); ok {
			first = start.Format("2006-01-02 15:04")
		}
		unit := ts.Unit
		if unit == "" {
			unit = ts.Currency
		}
		tw.Append([]string{
			col,
			ts.BusinessType,
			ts.PsrType,
			domainOf(ts),
			unit,
			fmt.Sprintf("%d", len(ts.Periods)),
			fmt.Sprintf("%d", ts.TotalPoints),
			first,
		})
	}
	tw.Render()
	return nil
}

// domainOf returns the most specific area code of ts for display.
func domainOf(ts model.TimeSeries) string {
	switch {
	case ts.InDomain != "" || ts.OutDomain != "":
		return ts.OutDomain + "→" + ts.InDomain
	case ts.OutBiddingZone != "" || ts.InBiddingZone != "":
		return ts.OutBiddingZone + "→" + ts.InBiddingZone
	case ts.ControlArea != "":
		return ts.ControlArea
	default:
		return ts.Area
	}
}

func renderRowsTable(w io.Writer, table model.TabularExport) error {
	// column names are data; keep their case
	tw := newTable(w, table.Columns)
	tw.SetAutoFormatHeaders(false)
	aligns := make([]int, len(table.Columns))
	for i := 1; i < len(aligns); i++ {
		aligns[i] = tablewriter.ALIGN_RIGHT
	}
	if len(aligns) > 0 {
		aligns[0] = tablewriter.ALIGN_LEFT
		tw.SetColumnAlignment(aligns)
	}
	for _, row := range table.Rows {
		tw.Append(row)
	}
	tw.Render()
	return nil
}

func renderPlanTable(w io.Writer, plan []model.Chunk) error {
	tw := newTable(w, []string{"#", "LABEL", "START", "END", "DAYS"})
	for i, c := range plan {
		tw.Append([]string{
			fmt.Sprintf("%d", i+1),
			c.Label,
			util.FormatAPITime(c.Start),
			util.FormatAPITime(c.End),
			fmt.Sprintf("%.1f", c.End.Sub(c.Start).Hours()/24),
		})
	}
	tw.Render()
	return nil
}

func renderRunsTable(w io.Writer, runs []model.RunReport) error {
	tw := newTable(w, []string{"NAME", "OUTCOME", "CHUNKS", "WITH DATA", "SERIES", "POINTS", "NEW", "STARTED", "ERROR"})
	for _, r := range runs {
		tw.Append([]string{
			r.Name,
			r.Outcome(),
			fmt.Sprintf("%d/%d", r.ChunksSucceeded, r.ChunksTotal),
			fmt.Sprintf("%d", r.ChunksWithData),
			fmt.Sprintf("%d", r.Timeseries),
			fmt.Sprintf("%d", r.TotalPoints),
			fmt.Sprintf("%d", r.NewPoints),
			r.StartedAt.Format("2006-01-02 15:04"),
			truncate(r.Error, 60),
		})
	}
	tw.Render()
	return nil
}

func renderBatchTable(w io.Writer, b model.BatchReport) error {
	s := b.Summary
	fmt.Fprintln(w, "─── Batch summary ───")
	tw := newTable(w, []string{"FIELD", "VALUE"})
	for _, r := range [][]string{
		{"total requests", fmt.Sprintf("%d", s.TotalRequests)},
		{"successful", fmt.Sprintf("%d", s.Successful)},
		{"with data", fmt.Sprintf("%d", s.WithData)},
		{"no data", fmt.Sprintf("%d", s.NoData)},
		{"failed", fmt.Sprintf("%d", s.Failed)},
		{"historical", fmt.Sprintf("%d", s.Historical)},
		{"total chunks", fmt.Sprintf("%d", s.TotalChunks)},
		{"total series", fmt.Sprintf("%d", s.TotalTimeseries)},
		{"total points", fmt.Sprintf("%d", s.TotalDataPoints)},
	} {
		tw.Append(r)
	}
	tw.Render()
	if len(b.Runs) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\n─── Runs ───")
	return renderRunsTable(w, b.Runs)
}

func renderSummaryTable(w io.Writer, sums []analyze.Summary) error {
	tw := newTable(w, []string{"COLUMN", "COUNT", "MISSING", "MEAN", "STD", "MIN", "MEDIAN", "MAX", "CHANGE %"})
	for _, s := range sums {
		tw.Append([]string{
			s.Column,
			fmt.Sprintf("%d", s.Count),
			fmt.Sprintf("%d (%.1f%%)", s.Missing, s.MissingPct),
			fmtStat(s.Mean),
			fmtStat(s.Std),
			fmtStat(s.Min),
			fmtStat(s.Median),
			fmtStat(s.Max),
			fmtStat(s.ChangePct),
		})
	}
	tw.Render()
	return nil
}

func renderTrendTable(w io.Writer, trends []analyze.TrendResult) error {
	tw := newTable(w, []string{"COLUMN", "METHOD", "DIRECTION", "SLOPE/HOUR", "SLOPE/DAY", "INTERCEPT", "R²", "N"})
	for _, t := range trends {
		tw.Append([]string{
			t.Column,
			string(t.Method),
			t.Direction,
			fmtStat(t.Slope),
			fmtStat(t.SlopePerDay),
			fmtStat(t.Intercept),
			fmtStat(t.R2),
			fmt.Sprintf("%d", t.Samples),
		})
	}
	tw.Render()
	return nil
}

func renderRequestsTable(w io.Writer, defs []model.RequestDef) error {
	tw := newTable(w, []string{"NAME", "RUN", "SCHEDULE", "PARAMS"})
	for _, d := range defs {
		run := "yes"
		if !d.Enabled() {
			run = "no"
		}
		tw.Append([]string{d.Name, run, d.Schedule, truncate(paramString(d.Params), 80)})
	}
	tw.Render()
	return nil
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

func renderDelimited(w io.Writer, result *model.Result, sep rune) error {
	if table, ok := tableOf(result); ok {
		return export.WriteDelimited(w, table, sep)
	}

	cw := csv.NewWriter(w)
	cw.Comma = sep

	switch d := result.Data.(type) {
	case []model.Chunk:
		_ = cw.Write([]string{"label", "start", "end"})
		for _, c := range d {
			_ = cw.Write([]string{c.Label, util.FormatAPITime(c.Start), util.FormatAPITime(c.End)})
		}
	case model.BatchReport:
		writeRunRows(cw, d.Runs)
	case []model.RunReport:
		writeRunRows(cw, d)
	case []analyze.Summary:
		_ = cw.Write([]string{"column", "count", "missing", "mean", "std", "min", "p25", "median", "p75", "max", "skew", "first", "last", "change", "change_pct"})
		for _, s := range d {
			_ = cw.Write([]string{
				s.Column, fmt.Sprintf("%d", s.Count), fmt.Sprintf("%d", s.Missing),
				util.FormatValue(s.Mean), util.FormatValue(s.Std), util.FormatValue(s.Min),
				util.FormatValue(s.P25), util.FormatValue(s.Median), util.FormatValue(s.P75),
				util.FormatValue(s.Max), util.FormatValue(s.Skew), util.FormatValue(s.First),
				util.FormatValue(s.Last), util.FormatValue(s.Change), util.FormatValue(s.ChangePct),
			})
		}
	case []analyze.TrendResult:
		_ = cw.Write([]string{"column", "method", "direction", "slope", "slope_per_day", "intercept", "r2", "samples"})
		for _, t := range d {
			_ = cw.Write([]string{
				t.Column, string(t.Method), t.Direction,
				util.FormatValue(t.Slope), util.FormatValue(t.SlopePerDay), util.FormatValue(t.Intercept),
				util.FormatValue(t.R2), fmt.Sprintf("%d", t.Samples),
			})
		}
	case []model.RequestDef:
		_ = cw.Write([]string{"name", "run", "schedule", "params"})
		for _, r := range d {
			_ = cw.Write([]string{r.Name, fmt.Sprintf("%t", r.Enabled()), r.Schedule, paramString(r.Params)})
		}
	default:
		// Fallback: serialize as JSON on a single line
		b, _ := json.Marshal(result.Data)
		_ = cw.Write([]string{string(b)})
	}

	cw.Flush()
	return cw.Error()
}

func writeRunRows(cw *csv.Writer, runs []model.RunReport) {
	_ = cw.Write([]string{"run_id", "name", "outcome", "chunks_total", "chunks_succeeded", "chunks_with_data", "timeseries", "total_points", "new_points", "started_at", "finished_at", "error"})
	for _, r := range runs {
		_ = cw.Write([]string{
			r.RunID, r.Name, r.Outcome(),
			fmt.Sprintf("%d", r.ChunksTotal), fmt.Sprintf("%d", r.ChunksSucceeded), fmt.Sprintf("%d", r.ChunksWithData),
			fmt.Sprintf("%d", r.Timeseries), fmt.Sprintf("%d", r.TotalPoints), fmt.Sprintf("%d", r.NewPoints),
			r.StartedAt.Format(time.RFC3339), r.FinishedAt.Format(time.RFC3339), r.Error,
		})
	}
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, result *model.Result) error {
	if table, ok := tableOf(result); ok {
		writeMDRow(w, table.Columns)
		seps := make([]string, len(table.Columns))
		for i := range seps {
			seps[i] = "---"
		}
		writeMDRow(w, seps)
		for _, row := range table.Rows {
			writeMDRow(w, row)
		}
		return nil
	}
	switch d := result.Data.(type) {
	case []model.Chunk:
		fmt.Fprintf(w, "| LABEL | START | END |\n|----|----|----|\n")
		for _, c := range d {
			fmt.Fprintf(w, "| %s | %s | %s |\n", c.Label, util.FormatAPITime(c.Start), util.FormatAPITime(c.End))
		}
		return nil
	case []model.RunReport:
		fmt.Fprintf(w, "| NAME | OUTCOME | CHUNKS | POINTS | ERROR |\n|----|----|----|----|----|\n")
		for _, r := range d {
			fmt.Fprintf(w, "| %s | %s | %d/%d | %d | %s |\n",
				mdEscape(r.Name), r.Outcome(), r.ChunksSucceeded, r.ChunksTotal, r.TotalPoints, mdEscape(r.Error))
		}
		return nil
	default:
		return renderJSON(w, result)
	}
}

func writeMDRow(w io.Writer, cells []string) {
	escaped := make([]string, len(cells))
	for i, c := range cells {
		escaped[i] = mdEscape(c)
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(escaped, " | "))
}

// ─── Warnings / Stats Footer ─────────────────────────────────────────────────

// PrintFooter writes warnings and stats to w when verbose mode is on.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if verbose {
		fmt.Fprintf(w, "\n[%s • %d items • %dms]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Stats.Items,
			result.Stats.DurationMs,
		)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func fmtStat(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	return fmt.Sprintf("%.4f", v)
}

func paramString(params map[string]string) string {
	parts := make([]string, 0, len(params))
	for _, k := range util.SortedKeys(params) {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
