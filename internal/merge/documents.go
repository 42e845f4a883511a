package merge

import (
	"fmt"

	"github.com/derickschaefer/gridfetch/internal/model"
	"github.com/derickschaefer/gridfetch/internal/util"
)

// NoDataCode is the error code of a merged document with no series.
const NoDataCode = "NO_DATA"

// MergeError reports a structural inconsistency found while merging.
type MergeError struct {
	Series string
	Reason string
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge: series %q: %s", e.Series, e.Reason)
}

// pointKey identifies a point within one logical series. Points without a
// timestamp fall back to their period start and position.
type pointKey struct {
	ts          int64
	hasTS       bool
	periodStart int64
	position    int
}

func keyOf(p model.Point, period model.Period) pointKey {
	if p.Timestamp != nil {
		return pointKey{ts: p.Timestamp.Unix(), hasTS: true}
	}
	return pointKey{periodStart: period.Start.Unix(), position: p.Position}
}

type slot struct {
	index int
	seen  map[pointKey]struct{}
}

// Documents folds docs into acc and returns the new accumulator. acc may be
// nil; it is never modified. Matching series (equal signatures) receive only
// points whose timestamps they do not already hold, so partially overlapping
// chunks merge cleanly and re-merging a document is a no-op.
//
// Acknowledgement documents contribute their time interval only.
func Documents(acc *model.MergedDocument, docs ...model.ParsedDocument) (*model.MergedDocument, error) {
	out := &model.MergedDocument{IsMerged: true}
	out.Timeseries = []model.TimeSeries{}
	intervals := make([]model.TimeInterval, 0, len(docs)+1)

	if acc != nil {
		if err := validate(acc.Timeseries); err != nil {
			return nil, err
		}
		out.DocumentInfo = acc.DocumentInfo
		out.ChunksWithData = acc.ChunksWithData
		out.Timeseries = cloneSeries(acc.Timeseries)
		intervals = append(intervals, acc.TimeInterval)
	}

	slots := make(map[model.Signature]*slot, len(out.Timeseries))
	for i, ts := range out.Timeseries {
		sig := ts.Signature()
		if _, ok := slots[sig]; ok {
			continue
		}
		s := &slot{index: i, seen: make(map[pointKey]struct{}, ts.TotalPoints)}
		s.remember(ts)
		slots[sig] = s
	}

	for _, doc := range docs {
		intervals = append(intervals, doc.TimeInterval)
		if doc.NoData() {
			continue
		}
		if err := validate(doc.Timeseries); err != nil {
			return nil, err
		}
		out.ChunksWithData++
		if out.DocumentInfo == (model.DocumentInfo{}) {
			out.DocumentInfo = doc.DocumentInfo
		}

		for _, ts := range doc.Timeseries {
			sig := ts.Signature()
			s, ok := slots[sig]
			if !ok {
				fresh := cloneSeries([]model.TimeSeries{ts})[0]
				out.Timeseries = append(out.Timeseries, fresh)
				s = &slot{index: len(out.Timeseries) - 1, seen: make(map[pointKey]struct{}, ts.TotalPoints)}
				s.remember(fresh)
				slots[sig] = s
				continue
			}
			target := &out.Timeseries[s.index]
			for _, period := range ts.Periods {
				var kept []model.Point
				for _, p := range period.Points {
					k := keyOf(p, period)
					if _, dup := s.seen[k]; dup {
						continue
					}
					s.seen[k] = struct{}{}
					kept = append(kept, p)
				}
				if len(kept) == 0 {
					continue
				}
				cp := period
				cp.Points = kept
				target.Periods = append(target.Periods, cp)
				target.TotalPoints += len(kept)
			}
		}
	}

	out.TimeInterval = spanOf(intervals)
	out.Recount()
	if len(out.Timeseries) == 0 {
		out.Error = &model.ErrorInfo{
			Code: NoDataCode,
			Text: "No data available for any chunk in the requested period",
		}
	}
	return out, nil
}

func (s *slot) remember(ts model.TimeSeries) {
	for _, period := range ts.Periods {
		for _, p := range period.Points {
			s.seen[keyOf(p, period)] = struct{}{}
		}
	}
}

func validate(series []model.TimeSeries) error {
	for _, ts := range series {
		if n := ts.CountPoints(); n != ts.TotalPoints {
			return &MergeError{
				Series: ts.ID,
				Reason: fmt.Sprintf("totalPoints %d does not match %d points in periods", ts.TotalPoints, n),
			}
		}
		for _, period := range ts.Periods {
			for _, p := range period.Points {
				if p.Position < 1 {
					return &MergeError{Series: ts.ID, Reason: fmt.Sprintf("invalid position %d", p.Position)}
				}
			}
		}
	}
	return nil
}

// cloneSeries copies series and their period slices so that appending
// periods to the copy never writes into the source's backing arrays.
func cloneSeries(series []model.TimeSeries) []model.TimeSeries {
	out := make([]model.TimeSeries, len(series))
	for i, ts := range series {
		ts.Periods = append([]model.Period(nil), ts.Periods...)
		out[i] = ts
	}
	return out
}

// spanOf returns the earliest start and latest end of intervals, ignoring
// empty values. Parseable timestamps are compared as instants; anything
// else falls back to string order.
func spanOf(intervals []model.TimeInterval) model.TimeInterval {
	var span model.TimeInterval
	for _, iv := range intervals {
		if iv.Start != "" && (span.Start == "" || earlier(iv.Start, span.Start)) {
			span.Start = iv.Start
		}
		if iv.End != "" && (span.End == "" || earlier(span.End, iv.End)) {
			span.End = iv.End
		}
	}
	return span
}

func earlier(a, b string) bool {
	ta, errA := util.ParseDocTime(a)
	tb, errB := util.ParseDocTime(b)
	if errA == nil && errB == nil {
		return ta.Before(tb)
	}
	return a < b
}
