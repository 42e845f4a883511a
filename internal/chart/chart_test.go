package chart_test

import (
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/derickschaefer/gridfetch/internal/analyze"
	"github.com/derickschaefer/gridfetch/internal/chart"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// hourly builds consecutive hourly samples starting at 2024-01-01T00:00Z.
func hourly(values ...float64) []analyze.Sample {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]analyze.Sample, len(values))
	for i, v := range values {
		out[i] = analyze.Sample{At: t0.Add(time.Duration(i) * time.Hour), Value: v}
	}
	return out
}

// daily builds consecutive daily samples starting at 2024-01-01.
func daily(values ...float64) []analyze.Sample {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]analyze.Sample, len(values))
	for i, v := range values {
		out[i] = analyze.Sample{At: t0.AddDate(0, 0, i), Value: v}
	}
	return out
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

// ─── Bar ──────────────────────────────────────────────────────────────────────

func TestBarBasic(t *testing.T) {
	var buf strings.Builder
	if err := chart.Bar(&buf, "Load_MW", daily(6100, 6400, 5900, 6050), chart.BarOptions{Width: 60}); err != nil {
		t.Fatalf("Bar: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Load_MW  2024-01-01 – 2024-01-04") {
		t.Errorf("missing header:\n%s", out)
	}
	lines := nonEmptyLines(out)
	if len(lines) != 5 {
		t.Fatalf("expected 1 header + 4 bars, got %d:\n%s", len(lines), out)
	}
	for _, line := range lines[1:] {
		if !strings.Contains(line, "█") {
			t.Errorf("bar line without blocks: %q", line)
		}
	}
	if !strings.Contains(lines[2], "6.4K") {
		t.Errorf("expected compact value label, got %q", lines[2])
	}
}

func TestBarEmptyColumn(t *testing.T) {
	var buf strings.Builder
	err := chart.Bar(&buf, "Solar_MW", daily(math.NaN(), math.NaN()), chart.BarOptions{Width: 60})
	if err == nil || !strings.Contains(err.Error(), "no values") {
		t.Fatalf("expected no values error, got %v", err)
	}
}

func TestBarSkipsEmptyCells(t *testing.T) {
	var buf strings.Builder
	if err := chart.Bar(&buf, "X", daily(1, math.NaN(), 2), chart.BarOptions{Width: 60}); err != nil {
		t.Fatalf("Bar: %v", err)
	}
	if n := len(nonEmptyLines(buf.String())); n != 3 {
		t.Errorf("expected 1 header + 2 bars, got %d lines", n)
	}
}

func TestBarLast(t *testing.T) {
	var buf strings.Builder
	if err := chart.Bar(&buf, "X", daily(1, 2, 3, 4, 5), chart.BarOptions{Width: 60, Last: 2}); err != nil {
		t.Fatalf("Bar: %v", err)
	}
	lines := nonEmptyLines(buf.String())
	if len(lines) != 3 {
		t.Fatalf("expected 1 header + 2 bars, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[1], "2024-01-04") {
		t.Errorf("expected the last two rows, got %q", lines[1])
	}
}

func TestBarNegativeValuesDrawZeroLine(t *testing.T) {
	var buf strings.Builder
	if err := chart.Bar(&buf, "Price", daily(-20, 35, 80), chart.BarOptions{Width: 60}); err != nil {
		t.Fatalf("Bar: %v", err)
	}
	if !strings.Contains(buf.String(), "│") {
		t.Errorf("expected zero line for negative values:\n%s", buf.String())
	}
}

func TestBarFlatAndSingle(t *testing.T) {
	for name, samples := range map[string][]analyze.Sample{
		"flat":   daily(5, 5, 5),
		"single": daily(5),
	} {
		var buf strings.Builder
		if err := chart.Bar(&buf, name, samples, chart.BarOptions{Width: 60}); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestBarDenseWarning(t *testing.T) {
	values := make([]float64, chart.DenseBarWarning+1)
	for i := range values {
		values[i] = float64(i)
	}
	var buf strings.Builder
	if err := chart.Bar(&buf, "X", hourly(values...), chart.BarOptions{Width: 80}); err != nil {
		t.Fatalf("Bar: %v", err)
	}
	if !strings.Contains(buf.String(), "transform resample") {
		t.Error("expected resample hint for dense input")
	}
	if !strings.Contains(buf.String(), "2024-01-01 00:00") {
		t.Error("hourly rows should be labelled with hours")
	}
}

// ─── Plot ─────────────────────────────────────────────────────────────────────

func TestPlotBasic(t *testing.T) {
	var buf strings.Builder
	opts := chart.PlotOptions{Width: 60, Height: 8}
	if err := chart.Plot(&buf, "Load_MW", hourly(5800, 6000, 6300, 6500, 6400, 6100), opts); err != nil {
		t.Fatalf("Plot: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	// header + height rows + axis + labels
	if len(lines) != 1+8+2 {
		t.Fatalf("expected %d lines, got %d:\n%s", 11, len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "Load_MW  (01-01 00:00 to 01-01 05:00)") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.Contains(buf.String(), "└") {
		t.Error("missing bottom axis")
	}
}

func TestPlotTitle(t *testing.T) {
	var buf strings.Builder
	if err := chart.Plot(&buf, "X", hourly(1, 2, 3), chart.PlotOptions{Width: 40, Title: "CZ load"}); err != nil {
		t.Fatalf("Plot: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "CZ load") {
		t.Errorf("title not used:\n%s", buf.String())
	}
}

func TestPlotNeedsTwoValues(t *testing.T) {
	var buf strings.Builder
	if err := chart.Plot(&buf, "X", hourly(1, math.NaN()), chart.PlotOptions{}); err == nil {
		t.Fatal("expected error with a single value")
	}
}

func TestPlotWidthRespected(t *testing.T) {
	values := make([]float64, 500)
	for i := range values {
		values[i] = math.Sin(float64(i) / 20)
	}
	var buf strings.Builder
	if err := chart.Plot(&buf, "X", hourly(values...), chart.PlotOptions{Width: 50, Height: 6}); err != nil {
		t.Fatalf("Plot: %v", err)
	}
	for _, line := range strings.Split(buf.String(), "\n")[1:] {
		if n := utf8.RuneCountInString(line); n > 50 {
			t.Errorf("line is %d runes wide: %q", n, line)
		}
	}
}

func TestPlotGapsAndFlat(t *testing.T) {
	var buf strings.Builder
	if err := chart.Plot(&buf, "X", hourly(1, math.NaN(), math.NaN(), 3, 2), chart.PlotOptions{Width: 40}); err != nil {
		t.Errorf("gaps: %v", err)
	}
	buf.Reset()
	if err := chart.Plot(&buf, "X", hourly(4, 4, 4, 4), chart.PlotOptions{Width: 40}); err != nil {
		t.Errorf("flat: %v", err)
	}
}

func TestFormatValue(t *testing.T) {
	cases := map[float64]string{
		0:        "0",
		6412.5:   "6.4K",
		2.5e6:    "2.5M",
		123.45:   "123.5",
		42:       "42.0",
		0.125:    "0.125",
		-35.5:    "-35.5",
		math.NaN(): ".",
	}
	for in, want := range cases {
		if got := chart.FormatValue(in); got != want {
			t.Errorf("FormatValue(%v) = %q, want %q", in, got, want)
		}
	}
}
