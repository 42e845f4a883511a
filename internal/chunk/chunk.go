// Package chunk plans calendar-year-aligned sub-ranges for requests that
// span more than the upstream API will serve in one call.
package chunk

import (
	"strconv"
	"time"

	"github.com/derickschaefer/gridfetch/internal/model"
	"github.com/derickschaefer/gridfetch/internal/util"
)

// DefaultThresholdYears is the range length above which requests are split.
// It is an estimate, not a documented API limit, and can be overridden via
// the year_threshold config key.
const DefaultThresholdYears = 1.0

const daysPerYear = 365.25

// Param keys the planner interprets. All other params pass through.
const (
	ParamStart = "periodStart"
	ParamEnd   = "periodEnd"
)

// Planner splits ranges into per-year chunks.
type Planner struct {
	ThresholdYears float64
}

// NewPlanner returns a Planner; a non-positive threshold selects the default.
func NewPlanner(thresholdYears float64) Planner {
	if thresholdYears <= 0 {
		thresholdYears = DefaultThresholdYears
	}
	return Planner{ThresholdYears: thresholdYears}
}

func (p Planner) threshold() float64 {
	if p.ThresholdYears <= 0 {
		return DefaultThresholdYears
	}
	return p.ThresholdYears
}

// Years returns the length of [start, end) in 365.25-day years.
func Years(start, end time.Time) float64 {
	return end.Sub(start).Hours() / 24 / daysPerYear
}

// NeedsSplit reports whether [start, end) exceeds the threshold.
func (p Planner) NeedsSplit(start, end time.Time) bool {
	return Years(start, end) > p.threshold()
}

// Plan returns the chunks covering [start, end). Ranges at or below the
// threshold come back as a single chunk equal to the input. Longer ranges
// are cut at every January 1 00:00 UTC, each chunk labelled with the year of
// its start. An empty or inverted range yields no chunks.
func (p Planner) Plan(start, end time.Time) []model.Chunk {
	start, end = start.UTC(), end.UTC()
	if !start.Before(end) {
		return nil
	}
	if !p.NeedsSplit(start, end) {
		return []model.Chunk{{Start: start, End: end, Label: label(start)}}
	}

	var chunks []model.Chunk
	for cur := start; cur.Before(end); {
		boundary := time.Date(cur.Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
		stop := boundary
		if end.Before(stop) {
			stop = end
		}
		chunks = append(chunks, model.Chunk{Start: cur, End: stop, Label: label(cur)})
		cur = boundary
	}
	return chunks
}

// PlanParams reads periodStart/periodEnd from params and plans them.
// The boolean is false when the request is not historical: either period
// field is missing or unparseable, or the range does not need splitting.
func (p Planner) PlanParams(params map[string]string) ([]model.Chunk, bool) {
	start, end, ok := Range(params)
	if !ok || !p.NeedsSplit(start, end) {
		return nil, false
	}
	return p.Plan(start, end), true
}

// Range extracts the request period from params.
func Range(params map[string]string) (start, end time.Time, ok bool) {
	rawStart, rawEnd := params[ParamStart], params[ParamEnd]
	if rawStart == "" || rawEnd == "" {
		return time.Time{}, time.Time{}, false
	}
	start, err := util.ParseAPITime(rawStart)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end, err = util.ParseAPITime(rawEnd)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// WithRange returns a copy of params with the period fields set to c.
func WithRange(params map[string]string, c model.Chunk) map[string]string {
	out := util.CloneParams(params)
	out[ParamStart] = util.FormatAPITime(c.Start)
	out[ParamEnd] = util.FormatAPITime(c.End)
	return out
}

// HistoricalRange returns the bootstrap range of the last years ending at now.
func HistoricalRange(now time.Time, years int) model.Chunk {
	end := now.UTC().Truncate(time.Minute)
	start := end.AddDate(-years, 0, 0)
	return model.Chunk{Start: start, End: end, Label: label(start)}
}

// OperationalRange returns the incremental poll window ending at now,
// widened by overlapHours so consecutive polls overlap.
func OperationalRange(now time.Time, hoursBack, overlapHours int) model.Chunk {
	end := now.UTC().Truncate(time.Minute)
	start := end.Add(-time.Duration(hoursBack+overlapHours) * time.Hour)
	return model.Chunk{Start: start, End: end, Label: label(start)}
}

func label(t time.Time) string {
	return strconv.Itoa(t.Year())
}
