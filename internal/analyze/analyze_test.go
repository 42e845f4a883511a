package analyze_test

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/gridfetch/internal/analyze"
	"github.com/derickschaefer/gridfetch/internal/model"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// hourly builds one sample per hour starting at t0.
func hourly(values ...float64) []analyze.Sample {
	out := make([]analyze.Sample, len(values))
	for i, v := range values {
		out[i] = analyze.Sample{At: t0.Add(time.Duration(i) * time.Hour), Value: v}
	}
	return out
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func table() model.TabularExport {
	return model.TabularExport{
		Columns: []string{"timestamp", "Load_MW", "Price_EUR"},
		Rows: [][]string{
			{"2024-01-01T00:00:00Z", "100", "50"},
			{"2024-01-01T01:00:00Z", "", "55"},
			{"2024-01-01T02:00:00Z", "300", "60"},
		},
	}
}

// ─── Column ───────────────────────────────────────────────────────────────────

func TestColumnExtractsValuesAndGaps(t *testing.T) {
	samples, err := analyze.Column(table(), "Load_MW")
	if err != nil {
		t.Fatalf("Column: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	if samples[0].Value != 100 || !math.IsNaN(samples[1].Value) || samples[2].Value != 300 {
		t.Errorf("unexpected values: %+v", samples)
	}
	if !samples[2].At.Equal(t0.Add(2 * time.Hour)) {
		t.Errorf("timestamp: got %v", samples[2].At)
	}
}

func TestColumnUnknown(t *testing.T) {
	if _, err := analyze.Column(table(), "Wind_MW"); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestColumnRejectsTimestampColumn(t *testing.T) {
	if _, err := analyze.Column(table(), "timestamp"); err == nil {
		t.Error("timestamp is not a value column")
	}
}

// ─── Summarize ────────────────────────────────────────────────────────────────

func TestSummarizeBasicCounts(t *testing.T) {
	s := analyze.Summarize("Load_MW", hourly(1, 2, math.NaN(), 4, 5))
	if s.Column != "Load_MW" {
		t.Errorf("Column: got %q", s.Column)
	}
	if s.Count != 5 {
		t.Errorf("Count: expected 5, got %d", s.Count)
	}
	if s.Missing != 1 {
		t.Errorf("Missing: expected 1, got %d", s.Missing)
	}
	if !approxEqual(s.MissingPct, 20, 1e-9) {
		t.Errorf("MissingPct: expected 20, got %g", s.MissingPct)
	}
}

func TestSummarizeStatistics(t *testing.T) {
	s := analyze.Summarize("x", hourly(1, 2, 3, 4, 5))
	if !approxEqual(s.Mean, 3, 1e-9) {
		t.Errorf("Mean: expected 3, got %g", s.Mean)
	}
	if !approxEqual(s.Std, math.Sqrt(2.5), 1e-9) {
		t.Errorf("Std: expected sample std %g, got %g", math.Sqrt(2.5), s.Std)
	}
	if s.Min != 1 || s.Max != 5 {
		t.Errorf("Min/Max: got %g/%g", s.Min, s.Max)
	}
	if s.Median != 3 {
		t.Errorf("Median: expected 3, got %g", s.Median)
	}
	if !approxEqual(s.Skew, 0, 1e-9) {
		t.Errorf("Skew of symmetric data: expected 0, got %g", s.Skew)
	}
}

func TestSummarizeFirstLastChange(t *testing.T) {
	s := analyze.Summarize("x", hourly(math.NaN(), 10, 12, 15, math.NaN()))
	if s.First != 10 || s.Last != 15 {
		t.Errorf("First/Last: got %g/%g", s.First, s.Last)
	}
	if s.Change != 5 {
		t.Errorf("Change: expected 5, got %g", s.Change)
	}
	if !approxEqual(s.ChangePct, 50, 1e-9) {
		t.Errorf("ChangePct: expected 50, got %g", s.ChangePct)
	}
}

func TestSummarizeZeroFirstChangePctIsNaN(t *testing.T) {
	s := analyze.Summarize("x", hourly(0, 1, 2))
	if !math.IsNaN(s.ChangePct) {
		t.Errorf("ChangePct with zero first value should be NaN, got %g", s.ChangePct)
	}
}

func TestSummarizeAllMissing(t *testing.T) {
	s := analyze.Summarize("x", hourly(math.NaN(), math.NaN()))
	if s.Missing != 2 || !math.IsNaN(s.Mean) || !math.IsNaN(s.Median) {
		t.Errorf("all-missing summary: %+v", s)
	}
}

func TestSummarizeSingleValue(t *testing.T) {
	s := analyze.Summarize("x", hourly(7))
	if s.Std != 0 || s.Skew != 0 {
		t.Errorf("single value: std=%g skew=%g, want 0/0", s.Std, s.Skew)
	}
	if s.Median != 7 {
		t.Errorf("Median: expected 7, got %g", s.Median)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := analyze.Summarize("x", nil)
	if s.Count != 0 || s.MissingPct != 0 {
		t.Errorf("empty summary: %+v", s)
	}
}

// ─── SummarizeTable ───────────────────────────────────────────────────────────

func TestSummarizeTableAllColumns(t *testing.T) {
	got, err := analyze.SummarizeTable(table())
	if err != nil {
		t.Fatalf("SummarizeTable: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(got))
	}
	if got[0].Column != "Load_MW" || got[0].Missing != 1 {
		t.Errorf("Load_MW summary: %+v", got[0])
	}
	if got[1].Column != "Price_EUR" || got[1].Mean != 55 {
		t.Errorf("Price_EUR summary: %+v", got[1])
	}
}

func TestSummarizeTableSelectedColumn(t *testing.T) {
	got, err := analyze.SummarizeTable(table(), "Price_EUR")
	if err != nil {
		t.Fatalf("SummarizeTable: %v", err)
	}
	if len(got) != 1 || got[0].Column != "Price_EUR" {
		t.Errorf("unexpected: %+v", got)
	}
}

func TestSummarizeTableBadTimestamp(t *testing.T) {
	tb := table()
	tb.Rows[0][0] = "yesterday"
	if _, err := analyze.SummarizeTable(tb); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
}

// ─── Trend ────────────────────────────────────────────────────────────────────

func TestTrendLinearPerfectFit(t *testing.T) {
	// y = 10 + 2x (x in hours)
	tr, err := analyze.Trend("x", hourly(10, 12, 14, 16, 18), analyze.TrendLinear)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if !approxEqual(tr.Slope, 2, 1e-9) {
		t.Errorf("Slope: expected 2, got %g", tr.Slope)
	}
	if !approxEqual(tr.Intercept, 10, 1e-9) {
		t.Errorf("Intercept: expected 10, got %g", tr.Intercept)
	}
	if !approxEqual(tr.R2, 1, 1e-9) {
		t.Errorf("R2: expected 1, got %g", tr.R2)
	}
	if !approxEqual(tr.SlopePerDay, 48, 1e-9) {
		t.Errorf("SlopePerDay: expected 48, got %g", tr.SlopePerDay)
	}
	if tr.Direction != "up" {
		t.Errorf("Direction: expected up, got %q", tr.Direction)
	}
}

func TestTrendTheilSenIgnoresOutlier(t *testing.T) {
	tr, err := analyze.Trend("x", hourly(0, 1, 2, 3, 100, 5, 6), analyze.TrendTheilSen)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if !approxEqual(tr.Slope, 1, 1e-9) {
		t.Errorf("Theil-Sen slope: expected 1, got %g", tr.Slope)
	}
}

func TestTrendTheilSenThinsLongInput(t *testing.T) {
	vals := make([]float64, 5000)
	for i := range vals {
		vals[i] = float64(3 * i)
	}
	tr, err := analyze.Trend("x", hourly(vals...), analyze.TrendTheilSen)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if !approxEqual(tr.Slope, 3, 1e-9) {
		t.Errorf("slope: expected 3, got %g", tr.Slope)
	}
	if tr.Samples != 5000 {
		t.Errorf("Samples: expected 5000, got %d", tr.Samples)
	}
}

func TestTrendFlatAndDown(t *testing.T) {
	tr, err := analyze.Trend("x", hourly(5, 5, 5), analyze.TrendLinear)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if tr.Direction != "flat" || tr.R2 != 1 {
		t.Errorf("flat: direction=%q r2=%g", tr.Direction, tr.R2)
	}
	tr, err = analyze.Trend("x", hourly(9, 6, 3), "")
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if tr.Direction != "down" || tr.Method != analyze.TrendLinear {
		t.Errorf("down: direction=%q method=%q", tr.Direction, tr.Method)
	}
}

func TestTrendSkipsMissing(t *testing.T) {
	tr, err := analyze.Trend("x", hourly(math.NaN(), 0, math.NaN(), 2), analyze.TrendLinear)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	// x is measured from the first present value: (0,0) and (2,2)
	if !approxEqual(tr.Slope, 1, 1e-9) || tr.Samples != 2 {
		t.Errorf("slope=%g samples=%d", tr.Slope, tr.Samples)
	}
}

func TestTrendErrors(t *testing.T) {
	if _, err := analyze.Trend("x", hourly(1), analyze.TrendLinear); err == nil {
		t.Error("expected error for a single value")
	}
	_, err := analyze.Trend("x", hourly(1, 2), "cubic")
	if err == nil || !strings.Contains(err.Error(), "unknown method") {
		t.Errorf("expected unknown method error, got %v", err)
	}
}

func TestSummaryJSONWritesNaNAsNull(t *testing.T) {
	s := analyze.Summarize("x", hourly(0, 1, 2))
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"change_pct":null`) {
		t.Errorf("expected null change_pct, got %s", data)
	}
	if !strings.Contains(string(data), `"mean":1`) {
		t.Errorf("expected mean 1, got %s", data)
	}
}
