// Package merge combines time series that describe the same logical
// variable. Consecutive collapses sibling series inside one document;
// Documents folds whole documents into an accumulator with timestamp-level
// deduplication. Both are pure: inputs are never modified.
package merge

import (
	"fmt"
	"sort"

	"github.com/derickschaefer/gridfetch/internal/model"
)

// Consecutive collapses series that share a signature into one series per
// signature. Group order follows first appearance. Members of a group are
// ordered by the start of their first period, series without a known start
// last, and their periods are concatenated. The merged series keeps the
// first member's metadata under a synthetic id.
func Consecutive(series []model.TimeSeries) []model.TimeSeries {
	if len(series) <= 1 {
		return series
	}

	var order []model.Signature
	groups := make(map[model.Signature][]model.TimeSeries)
	for _, ts := range series {
		sig := ts.Signature()
		if _, ok := groups[sig]; !ok {
			order = append(order, sig)
		}
		groups[sig] = append(groups[sig], ts)
	}

	out := make([]model.TimeSeries, 0, len(order))
	for _, sig := range order {
		group := groups[sig]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		out = append(out, collapse(group))
	}
	return out
}

func collapse(group []model.TimeSeries) model.TimeSeries {
	sorted := make([]model.TimeSeries, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, okI := sorted[i].FirstStart()
		sj, okJ := sorted[j].FirstStart()
		switch {
		case okI && okJ:
			return si.Before(sj)
		default:
			return okI && !okJ
		}
	})

	merged := sorted[0]
	var periods []model.Period
	for _, ts := range sorted {
		periods = append(periods, ts.Periods...)
	}
	merged.Periods = periods
	merged.TotalPoints = merged.CountPoints()
	merged.ID = fmt.Sprintf("merged_%d_series", len(group))
	return merged
}
