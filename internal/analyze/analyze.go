// Package analyze computes statistical summaries and trend analysis over
// the value columns of a tabular export. All functions are pure; no I/O.
package analyze

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/derickschaefer/gridfetch/internal/export"
	"github.com/derickschaefer/gridfetch/internal/model"
	"github.com/derickschaefer/gridfetch/internal/util"
)

// Sample is one cell of a value column. Value is NaN for empty cells.
type Sample struct {
	At    time.Time
	Value float64
}

// Column extracts the named value column of table in row order.
func Column(table model.TabularExport, name string) ([]Sample, error) {
	idx := -1
	for i, c := range table.Columns {
		if i > 0 && c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", name)
	}
	out := make([]Sample, 0, len(table.Rows))
	for _, row := range table.Rows {
		at, err := util.ParseDocTime(row[0])
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", row[0], err)
		}
		v := math.NaN()
		if idx < len(row) {
			v = util.ParseValue(row[idx])
		}
		out = append(out, Sample{At: at, Value: v})
	}
	return out, nil
}

// ─── Summary ──────────────────────────────────────────────────────────────────

// Summary holds descriptive statistics for one column.
type Summary struct {
	Column     string  `json:"column"`
	Count      int     `json:"count"`       // total rows
	Missing    int     `json:"missing"`     // empty cells
	MissingPct float64 `json:"missing_pct"` // percent missing
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	Min        float64 `json:"min"`
	P25        float64 `json:"p25"`
	Median     float64 `json:"median"`
	P75        float64 `json:"p75"`
	Max        float64 `json:"max"`
	Skew       float64 `json:"skew"`
	First      float64 `json:"first"`
	Last       float64 `json:"last"`
	Change     float64 `json:"change"`     // Last - First
	ChangePct  float64 `json:"change_pct"` // (Last-First)/|First| * 100
}

// MarshalJSON writes undefined statistics (NaN) as null.
func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Column     string   `json:"column"`
		Count      int      `json:"count"`
		Missing    int      `json:"missing"`
		MissingPct float64  `json:"missing_pct"`
		Mean       *float64 `json:"mean"`
		Std        *float64 `json:"std"`
		Min        *float64 `json:"min"`
		P25        *float64 `json:"p25"`
		Median     *float64 `json:"median"`
		P75        *float64 `json:"p75"`
		Max        *float64 `json:"max"`
		Skew       *float64 `json:"skew"`
		First      *float64 `json:"first"`
		Last       *float64 `json:"last"`
		Change     *float64 `json:"change"`
		ChangePct  *float64 `json:"change_pct"`
	}{
		s.Column, s.Count, s.Missing, s.MissingPct,
		num(s.Mean), num(s.Std), num(s.Min), num(s.P25), num(s.Median), num(s.P75),
		num(s.Max), num(s.Skew), num(s.First), num(s.Last), num(s.Change), num(s.ChangePct),
	})
}

func num(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Summarize computes descriptive statistics over samples.
// Missing values are excluded from all numeric computations but counted.
func Summarize(column string, samples []Sample) Summary {
	s := Summary{Column: column, Count: len(samples)}
	nan := math.NaN()

	var vals []float64
	for _, smp := range samples {
		if math.IsNaN(smp.Value) {
			s.Missing++
		} else {
			vals = append(vals, smp.Value)
		}
	}
	if s.Count > 0 {
		s.MissingPct = float64(s.Missing) / float64(s.Count) * 100
	}
	if len(vals) == 0 {
		s.Mean, s.Std, s.Min, s.Max = nan, nan, nan, nan
		s.P25, s.Median, s.P75, s.Skew = nan, nan, nan, nan
		s.First, s.Last, s.Change, s.ChangePct = nan, nan, nan, nan
		return s
	}

	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Mean = stat.Mean(vals, nil)
	s.Std = 0
	if len(vals) > 1 {
		s.Std = stat.StdDev(vals, nil)
	}
	s.P25 = stat.Quantile(0.25, stat.Empirical, sorted, nil)
	s.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	s.P75 = stat.Quantile(0.75, stat.Empirical, sorted, nil)
	s.Skew = 0
	if len(vals) >= 3 && s.Std > 0 {
		s.Skew = stat.Skew(vals, nil)
	}

	s.First = vals[0]
	s.Last = vals[len(vals)-1]
	s.Change = s.Last - s.First
	if s.First != 0 {
		s.ChangePct = s.Change / math.Abs(s.First) * 100
	} else {
		s.ChangePct = nan
	}
	return s
}

// SummarizeTable summarizes every value column of table, or only the named
// ones when columns is non-empty.
func SummarizeTable(table model.TabularExport, columns ...string) ([]Summary, error) {
	if len(columns) == 0 {
		for _, c := range table.Columns {
			if c != export.TimestampColumn {
				columns = append(columns, c)
			}
		}
	}
	out := make([]Summary, 0, len(columns))
	for _, c := range columns {
		samples, err := Column(table, c)
		if err != nil {
			return nil, err
		}
		out = append(out, Summarize(c, samples))
	}
	return out, nil
}

// ─── Trend ────────────────────────────────────────────────────────────────────

// TrendMethod selects the regression algorithm.
type TrendMethod string

const (
	TrendLinear   TrendMethod = "linear"
	TrendTheilSen TrendMethod = "theil-sen"
)

// theilSenMax bounds the pairwise slope computation; longer inputs are
// thinned evenly before fitting.
const theilSenMax = 1000

// TrendResult holds the output of a trend analysis.
type TrendResult struct {
	Column      string      `json:"column"`
	Method      TrendMethod `json:"method"`
	Slope       float64     `json:"slope"` // units per hour
	Intercept   float64     `json:"intercept"`
	R2          float64     `json:"r2"`
	Direction   string      `json:"direction"`     // "up", "down", "flat"
	SlopePerDay float64     `json:"slope_per_day"` // slope * 24
	Samples     int         `json:"samples"`
}

// Trend fits a linear trend to samples. X values are hours since the first
// non-missing sample; missing values are excluded.
func Trend(column string, samples []Sample, method TrendMethod) (TrendResult, error) {
	tr := TrendResult{Column: column, Method: method}

	var xs, ys []float64
	var t0 time.Time
	for _, smp := range samples {
		if math.IsNaN(smp.Value) {
			continue
		}
		if len(xs) == 0 {
			t0 = smp.At
		}
		xs = append(xs, smp.At.Sub(t0).Hours())
		ys = append(ys, smp.Value)
	}
	tr.Samples = len(xs)
	if len(xs) < 2 {
		return tr, fmt.Errorf("trend: need at least 2 values, got %d", len(xs))
	}

	switch method {
	case TrendTheilSen:
		tr.Slope = theilSenSlope(xs, ys)
		tr.Intercept = stat.Mean(ys, nil) - tr.Slope*stat.Mean(xs, nil)
	case TrendLinear, "":
		tr.Method = TrendLinear
		tr.Intercept, tr.Slope = stat.LinearRegression(xs, ys, nil, false)
	default:
		return tr, fmt.Errorf("trend: unknown method %q (use linear, theil-sen)", method)
	}

	if stat.Variance(ys, nil) == 0 {
		tr.R2 = 1
	} else {
		tr.R2 = stat.RSquared(xs, ys, nil, tr.Intercept, tr.Slope)
	}
	tr.SlopePerDay = tr.Slope * 24

	switch {
	case tr.SlopePerDay > 0.01:
		tr.Direction = "up"
	case tr.SlopePerDay < -0.01:
		tr.Direction = "down"
	default:
		tr.Direction = "flat"
	}
	return tr, nil
}

func theilSenSlope(xs, ys []float64) float64 {
	if n := len(xs); n > theilSenMax {
		step := float64(n) / theilSenMax
		tx := make([]float64, 0, theilSenMax)
		ty := make([]float64, 0, theilSenMax)
		for i := 0; i < theilSenMax; i++ {
			j := int(float64(i) * step)
			tx = append(tx, xs[j])
			ty = append(ty, ys[j])
		}
		xs, ys = tx, ty
	}
	var slopes []float64
	for i := 0; i < len(xs); i++ {
		for j := i + 1; j < len(xs); j++ {
			dx := xs[j] - xs[i]
			if dx == 0 {
				continue
			}
			slopes = append(slopes, (ys[j]-ys[i])/dx)
		}
	}
	if len(slopes) == 0 {
		return 0
	}
	sort.Float64s(slopes)
	return stat.Quantile(0.5, stat.Empirical, slopes, nil)
}
