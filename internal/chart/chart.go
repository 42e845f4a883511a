// Package chart draws value columns of a tabular export as terminal charts.
//
//   - Bar: one horizontal bar per row, for resampled tables (daily, monthly)
//   - Plot: a line drawn with box characters, for dense hourly columns
//
// Empty cells are gaps, never zeros.
package chart

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/derickschaefer/gridfetch/internal/analyze"
)

// DenseBarWarning is the row count above which Bar suggests resampling.
const DenseBarWarning = 60

// ─── Bar ─────────────────────────────────────────────────────────────────────

// BarOptions controls horizontal bar chart rendering.
type BarOptions struct {
	// Width is the total width in characters; 0 reads $COLUMNS, else 80.
	Width int
	// Last keeps only the last N non-empty rows; 0 keeps all.
	Last int
}

// Bar writes one bar per non-empty sample. Negative values grow left from a
// zero line.
//
//	Load_MW  2024-01-01 – 2024-01-03
//	2024-01-01  6.1K  ███████████
//	2024-01-02  6.4K  ████████████████
func Bar(w io.Writer, column string, samples []analyze.Sample, opts BarOptions) error {
	valid := present(samples)
	if len(valid) == 0 {
		return fmt.Errorf("chart bar: column %s has no values", column)
	}
	if opts.Last > 0 && len(valid) > opts.Last {
		valid = valid[len(valid)-opts.Last:]
	}
	if len(valid) > DenseBarWarning {
		fmt.Fprintf(w, "⚠  %d rows, consider: gridfetch transform resample --freq daily\n\n", len(valid))
	}

	width := opts.Width
	if width <= 0 {
		width = termWidth()
	}
	lo, hi := bounds(valid)
	layout := labelLayout(valid)

	valWidth := 0
	for _, s := range valid {
		valWidth = max(valWidth, len(FormatValue(s.Value)))
	}
	dateWidth := len(valid[0].At.UTC().Format(layout))
	area := max(width-dateWidth-valWidth-4, 4)

	span := hi - lo
	if span == 0 {
		span = 1
	}
	zero := -1
	if lo < 0 {
		zero = int(math.Round(-lo / span * float64(area-1)))
	}

	fmt.Fprintf(w, "%s  %s – %s\n", column,
		valid[0].At.UTC().Format(layout), valid[len(valid)-1].At.UTC().Format(layout))
	for _, s := range valid {
		var bar string
		if zero >= 0 {
			bar = signedBar(s.Value, span, area, zero)
		} else {
			n := int(math.Round((s.Value - lo) / span * float64(area)))
			bar = strings.Repeat("█", min(max(n, 1), area))
		}
		fmt.Fprintf(w, "%-*s  %*s  %s\n", dateWidth, s.At.UTC().Format(layout), valWidth, FormatValue(s.Value), bar)
	}
	return nil
}

// signedBar draws v in a field of area cells with the zero line at zero.
func signedBar(v, span float64, area, zero int) string {
	buf := []rune(strings.Repeat(" ", area))
	if zero < area {
		buf[zero] = '│'
	}
	n := int(math.Round(math.Abs(v) / span * float64(area-1)))
	if v >= 0 {
		for i := zero + 1; i <= zero+n && i < area; i++ {
			buf[i] = '█'
		}
	} else {
		for i := max(zero-n, 0); i < zero; i++ {
			buf[i] = '█'
		}
	}
	return string(buf)
}

// labelLayout picks the coarsest time layout that still tells rows apart.
func labelLayout(samples []analyze.Sample) string {
	if len(samples) < 2 {
		return "2006-01-02 15:04"
	}
	step := samples[1].At.Sub(samples[0].At)
	switch {
	case step >= 365*24*time.Hour:
		return "2006"
	case step >= 28*24*time.Hour:
		return "2006-01"
	case step >= 24*time.Hour:
		return "2006-01-02"
	default:
		return "2006-01-02 15:04"
	}
}

// ─── Plot ─────────────────────────────────────────────────────────────────────

// PlotOptions controls line plot rendering.
type PlotOptions struct {
	// Width is the total width including the Y axis; 0 reads $COLUMNS, else 80.
	Width int
	// Height is the number of plot rows; 0 means 12.
	Height int
	// Title replaces the column name in the header.
	Title string
}

// Plot writes a line chart of samples, averaging neighbouring samples into
// one cell per column.
func Plot(w io.Writer, column string, samples []analyze.Sample, opts PlotOptions) error {
	valid := present(samples)
	if len(valid) < 2 {
		return fmt.Errorf("chart plot: column %s needs at least 2 values (got %d)", column, len(valid))
	}
	width := opts.Width
	if width <= 0 {
		width = termWidth()
	}
	height := opts.Height
	if height <= 0 {
		height = 12
	}
	title := opts.Title
	if title == "" {
		title = column
	}

	lo, hi := bounds(valid)
	ticks := yTicks(lo, hi, height)
	labelWidth := 0
	for _, t := range ticks {
		labelWidth = max(labelWidth, len(FormatValue(t)))
	}
	plotWidth := max(width-labelWidth-2, 10)

	cells := bucket(samples, plotWidth)
	plotWidth = len(cells)
	grid := drawLine(cells, lo, hi, height)
	layout := axisLayout(samples[0].At, samples[len(samples)-1].At)

	fmt.Fprintf(w, "%s  (%s to %s)\n", title,
		samples[0].At.UTC().Format(layout), samples[len(samples)-1].At.UTC().Format(layout))
	for row := 0; row < height; row++ {
		label, axis := "", " "
		for _, t := range ticks {
			if math.Abs(rowOf(t, lo, hi, height)-float64(row)) < 0.5 {
				label, axis = FormatValue(t), "┤"
				break
			}
		}
		fmt.Fprintf(w, "%*s%s%s\n", labelWidth, label, axis, string(grid[row]))
	}
	fmt.Fprintf(w, "%s└%s\n", strings.Repeat(" ", labelWidth), strings.Repeat("─", plotWidth))
	fmt.Fprintf(w, "%s %s\n", strings.Repeat(" ", labelWidth), xLabels(samples, plotWidth, layout))
	return nil
}

// axisLayout picks a date layout for the X axis from the plotted span.
func axisLayout(first, last time.Time) string {
	switch span := last.Sub(first); {
	case span <= 3*24*time.Hour:
		return "01-02 15:04"
	case span <= 366*24*time.Hour:
		return "2006-01-02"
	default:
		return "2006-01"
	}
}

// bucket averages samples into n cells; a cell with no values is NaN.
func bucket(samples []analyze.Sample, n int) []float64 {
	total := len(samples)
	if n > total {
		n = total
	}
	cells := make([]float64, n)
	for c := range cells {
		sum, count := 0.0, 0
		for i := c * total / n; i < (c+1)*total/n; i++ {
			if !math.IsNaN(samples[i].Value) {
				sum += samples[i].Value
				count++
			}
		}
		cells[c] = math.NaN()
		if count > 0 {
			cells[c] = sum / float64(count)
		}
	}
	return cells
}

// rowOf maps v to a fractional row, 0 being the top (hi).
func rowOf(v, lo, hi float64, height int) float64 {
	if hi == lo {
		return float64(height) / 2
	}
	return (hi - v) / (hi - lo) * float64(height-1)
}

// drawLine renders cells into a height-row grid, joining neighbouring cells
// with box-drawing characters.
func drawLine(cells []float64, lo, hi float64, height int) [][]rune {
	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", len(cells)))
	}

	rows := make([]int, len(cells))
	for c, v := range cells {
		if math.IsNaN(v) {
			rows[c] = -1
			continue
		}
		rows[c] = min(max(int(math.Round(rowOf(v, lo, hi, height))), 0), height-1)
	}

	for c, r := range rows {
		if r < 0 {
			continue
		}
		prev, next := -1, -1
		if c > 0 {
			prev = rows[c-1]
		}
		if c < len(rows)-1 {
			next = rows[c+1]
		}

		switch {
		case prev < 0 && next < 0:
			grid[r][c] = '·'
		case (prev < 0 || prev == r) && (next < 0 || next == r):
			grid[r][c] = '─'
		case prev >= 0 && next >= 0 && (prev < r) == (next < r) && prev != r && next != r:
			grid[r][c] = '─'
		case next > r && (prev < 0 || prev <= r):
			grid[r][c] = '╭'
		case next >= 0 && next < r && (prev < 0 || prev >= r):
			grid[r][c] = '╰'
		case prev >= 0 && prev < r:
			grid[r][c] = '╮'
		default:
			grid[r][c] = '╯'
		}

		if prev >= 0 && prev != r {
			for fill := min(prev, r) + 1; fill < max(prev, r); fill++ {
				if grid[fill][c] == ' ' {
					grid[fill][c] = '│'
				}
			}
		}
	}
	return grid
}

// yTicks returns evenly spaced tick values between lo and hi.
func yTicks(lo, hi float64, height int) []float64 {
	if hi == lo {
		return []float64{lo}
	}
	n := 4
	if height <= 6 {
		n = 3
	}
	ticks := make([]float64, n)
	for i := range ticks {
		ticks[i] = lo + float64(i)*(hi-lo)/float64(n-1)
	}
	return ticks
}

// xLabels places the first, middle and last timestamps under the plot.
func xLabels(samples []analyze.Sample, width int, layout string) string {
	buf := []rune(strings.Repeat(" ", width))
	put := func(pos int, s string) {
		for i, ch := range []rune(s) {
			if pos+i >= 0 && pos+i < len(buf) {
				buf[pos+i] = ch
			}
		}
	}
	first := samples[0].At.UTC().Format(layout)
	mid := samples[len(samples)/2].At.UTC().Format(layout)
	last := samples[len(samples)-1].At.UTC().Format(layout)
	put(0, first)
	if width >= len(first)+len(mid)+len(last)+4 {
		put(width/2-len(mid)/2, mid)
	}
	put(width-len(last), last)
	return string(buf)
}

// ─── Utilities ────────────────────────────────────────────────────────────────

func present(samples []analyze.Sample) []analyze.Sample {
	out := make([]analyze.Sample, 0, len(samples))
	for _, s := range samples {
		if !math.IsNaN(s.Value) {
			out = append(out, s)
		}
	}
	return out
}

func bounds(samples []analyze.Sample) (lo, hi float64) {
	lo, hi = samples[0].Value, samples[0].Value
	for _, s := range samples[1:] {
		lo = math.Min(lo, s.Value)
		hi = math.Max(hi, s.Value)
	}
	return lo, hi
}

// FormatValue formats an axis or bar label compactly: K and M suffixes for
// large magnitudes, trailing zeros trimmed.
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	abs := math.Abs(v)
	switch {
	case abs == 0:
		return "0"
	case abs >= 1e6:
		return strconv.FormatFloat(v/1e6, 'f', 1, 64) + "M"
	case abs >= 1e3:
		return strconv.FormatFloat(v/1e3, 'f', 1, 64) + "K"
	}
	prec := 2
	if abs >= 100 {
		prec = 1
	} else if abs < 1 {
		prec = 4
	}
	s := strings.TrimRight(strconv.FormatFloat(v, 'f', prec, 64), "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}

// termWidth returns the terminal width from $COLUMNS, defaulting to 80.
func termWidth() int {
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if n, err := strconv.Atoi(cols); err == nil && n > 20 {
			return n
		}
	}
	return 80
}
