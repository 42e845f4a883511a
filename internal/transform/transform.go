// Package transform implements stateless operators over a tabular export.
// Every operator takes a table and returns a new one; inputs are never
// modified. Empty cells are missing values: they are skipped by aggregation
// and propagate as empty cells.
package transform

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/derickschaefer/gridfetch/internal/model"
	"github.com/derickschaefer/gridfetch/internal/util"
)

// ─── Resample ─────────────────────────────────────────────────────────────────

// ResampleFreq is the target frequency for resampling.
type ResampleFreq string

const (
	ResampleHourly  ResampleFreq = "hourly"
	ResampleDaily   ResampleFreq = "daily"
	ResampleMonthly ResampleFreq = "monthly"
	ResampleAnnual  ResampleFreq = "annual"
)

// ResampleMethod is the aggregation method for resampling.
type ResampleMethod string

const (
	ResampleMean ResampleMethod = "mean"
	ResampleLast ResampleMethod = "last"
	ResampleSum  ResampleMethod = "sum"
	ResampleMin  ResampleMethod = "min"
	ResampleMax  ResampleMethod = "max"
)

// Resample aggregates rows into buckets of freq, labelled by the bucket
// start. Quarter-hourly data resampled hourly with mean gives hourly
// averages; a bucket with no values in a column yields an empty cell.
func Resample(table model.TabularExport, freq ResampleFreq, method ResampleMethod) (model.TabularExport, error) {
	if len(table.Rows) == 0 {
		return model.TabularExport{}, fmt.Errorf("resample: empty input")
	}
	switch freq {
	case ResampleHourly, ResampleDaily, ResampleMonthly, ResampleAnnual:
	default:
		return model.TabularExport{}, fmt.Errorf("resample: unknown frequency %q (use hourly, daily, monthly, annual)", freq)
	}
	agg, err := aggregator(method)
	if err != nil {
		return model.TabularExport{}, err
	}

	width := len(table.Columns)
	groups := make(map[time.Time][][]float64)
	for _, row := range table.Rows {
		at, err := util.ParseDocTime(row[0])
		if err != nil {
			return model.TabularExport{}, fmt.Errorf("resample: row %s: %w", row[0], err)
		}
		key := bucketStart(at, freq)
		cols, ok := groups[key]
		if !ok {
			cols = make([][]float64, width)
			groups[key] = cols
		}
		for i := 1; i < width && i < len(row); i++ {
			if v := util.ParseValue(row[i]); !math.IsNaN(v) {
				cols[i] = append(cols[i], v)
			}
		}
	}

	keys := make([]time.Time, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	out := model.TabularExport{Columns: append([]string(nil), table.Columns...), Rows: make([][]string, 0, len(keys))}
	for _, k := range keys {
		row := make([]string, width)
		row[0] = util.FormatTimestamp(k)
		for i := 1; i < width; i++ {
			if vals := groups[k][i]; len(vals) > 0 {
				row[i] = util.FormatValue(agg(vals))
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func aggregator(method ResampleMethod) (func([]float64) float64, error) {
	switch method {
	case ResampleMean:
		return mean, nil
	case ResampleLast:
		return func(v []float64) float64 { return v[len(v)-1] }, nil
	case ResampleSum:
		return sum, nil
	case ResampleMin:
		return func(v []float64) float64 { lo, _ := minmax(v); return lo }, nil
	case ResampleMax:
		return func(v []float64) float64 { _, hi := minmax(v); return hi }, nil
	default:
		return nil, fmt.Errorf("resample: unknown method %q (use mean, last, sum, min, max)", method)
	}
}

// bucketStart returns the canonical start of the bucket containing t.
func bucketStart(t time.Time, freq ResampleFreq) time.Time {
	t = t.UTC()
	switch freq {
	case ResampleHourly:
		return t.Truncate(time.Hour)
	case ResampleDaily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case ResampleAnnual:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default: // monthly
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
}

// ─── Filter ───────────────────────────────────────────────────────────────────

// FilterOptions describes a row/column filter.
type FilterOptions struct {
	After     time.Time // keep rows with timestamp >= After (zero = no lower bound)
	Before    time.Time // keep rows with timestamp < Before (zero = no upper bound)
	Columns   []string  // keep only these value columns (empty = all)
	DropEmpty bool      // drop rows whose kept value cells are all empty
}

// Filter returns the rows and columns of table matching opts. The time
// bounds are half-open, like a chunk.
func Filter(table model.TabularExport, opts FilterOptions) (model.TabularExport, error) {
	keep := []int{0}
	if len(opts.Columns) == 0 {
		for i := 1; i < len(table.Columns); i++ {
			keep = append(keep, i)
		}
	} else {
		index := make(map[string]int, len(table.Columns))
		for i, c := range table.Columns {
			index[c] = i
		}
		for _, c := range opts.Columns {
			i, ok := index[c]
			if !ok || i == 0 {
				return model.TabularExport{}, fmt.Errorf("filter: column %q not found", c)
			}
			keep = append(keep, i)
		}
	}

	out := model.TabularExport{Columns: make([]string, len(keep)), Rows: make([][]string, 0, len(table.Rows))}
	for j, i := range keep {
		out.Columns[j] = table.Columns[i]
	}
	for _, row := range table.Rows {
		if !opts.After.IsZero() || !opts.Before.IsZero() {
			at, err := util.ParseDocTime(row[0])
			if err != nil {
				return model.TabularExport{}, fmt.Errorf("filter: row %s: %w", row[0], err)
			}
			if !opts.After.IsZero() && at.Before(opts.After) {
				continue
			}
			if !opts.Before.IsZero() && !at.Before(opts.Before) {
				continue
			}
		}
		kept := make([]string, len(keep))
		empty := true
		for j, i := range keep {
			if i < len(row) {
				kept[j] = row[i]
			}
			if j > 0 && kept[j] != "" {
				empty = false
			}
		}
		if opts.DropEmpty && empty {
			continue
		}
		out.Rows = append(out.Rows, kept)
	}
	return out, nil
}

// ─── Rolling Window ───────────────────────────────────────────────────────────

// RollStat selects the statistic for rolling window computation.
type RollStat string

const (
	RollMean RollStat = "mean"
	RollStd  RollStat = "std"
	RollMin  RollStat = "min"
	RollMax  RollStat = "max"
	RollSum  RollStat = "sum"
)

// Roll computes a trailing rolling statistic over window rows for every
// value column. The cell at row t covers rows [t-window+1, t]. Cells with
// fewer than minPeriods values in their window are empty.
func Roll(table model.TabularExport, window, minPeriods int, stat RollStat) (model.TabularExport, error) {
	if window < 1 {
		return model.TabularExport{}, fmt.Errorf("roll: window must be >= 1, got %d", window)
	}
	if minPeriods < 1 {
		minPeriods = 1
	}
	if minPeriods > window {
		return model.TabularExport{}, fmt.Errorf("roll: min-periods (%d) cannot exceed window (%d)", minPeriods, window)
	}
	var f func([]float64) float64
	switch stat {
	case RollMean:
		f = mean
	case RollSum:
		f = sum
	case RollStd:
		f = func(v []float64) float64 { return stddev(v, mean(v)) }
	case RollMin:
		f = func(v []float64) float64 { lo, _ := minmax(v); return lo }
	case RollMax:
		f = func(v []float64) float64 { _, hi := minmax(v); return hi }
	default:
		return model.TabularExport{}, fmt.Errorf("roll: unknown stat %q (use mean, std, min, max, sum)", stat)
	}

	out := model.TabularExport{Columns: append([]string(nil), table.Columns...), Rows: make([][]string, len(table.Rows))}
	for t, row := range table.Rows {
		out.Rows[t] = make([]string, len(table.Columns))
		out.Rows[t][0] = row[0]
	}
	for c := 1; c < len(table.Columns); c++ {
		for t := range table.Rows {
			var vals []float64
			for k := max(0, t-window+1); k <= t; k++ {
				if c >= len(table.Rows[k]) {
					continue
				}
				if v := util.ParseValue(table.Rows[k][c]); !math.IsNaN(v) {
					vals = append(vals, v)
				}
			}
			if len(vals) >= minPeriods {
				out.Rows[t][c] = util.FormatValue(f(vals))
			}
		}
	}
	return out, nil
}

// ─── Math helpers ─────────────────────────────────────────────────────────────

func mean(vals []float64) float64 {
	return sum(vals) / float64(len(vals))
}

func sum(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s
}

func stddev(vals []float64, m float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var sq float64
	for _, v := range vals {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vals)-1))
}

func minmax(vals []float64) (float64, float64) {
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
