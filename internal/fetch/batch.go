package fetch

import (
	"context"
	"fmt"

	"github.com/derickschaefer/gridfetch/internal/merge"
	"github.com/derickschaefer/gridfetch/internal/model"
)

// Request is one named parameter set of a batch.
type Request struct {
	Name   string
	Params map[string]string
}

// BatchResult holds every run of a batch, the aggregate summary, and one
// document merging all successful runs.
type BatchResult struct {
	Runs     []*RunResult          `json:"runs"`
	Summary  model.BatchSummary    `json:"summary"`
	Combined *model.MergedDocument `json:"combined,omitempty"`
}

// Batch runs reqs in order with Delay between requests. A failed request is
// recorded in its report and does not stop the batch. The returned error is
// non-nil only when ctx ends the batch early; the partial result is still
// returned.
func (o *Orchestrator) Batch(ctx context.Context, reqs []Request) (*BatchResult, error) {
	out := &BatchResult{}
	var stopErr error

	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			stopErr = fmt.Errorf("batch stopped after %d of %d requests: %w", i, len(reqs), err)
			break
		}
		o.log().Infof("[%d/%d] %s", i+1, len(reqs), req.Name)
		res, err := o.Run(ctx, req.Name, req.Params)
		if err != nil {
			o.log().Errorf("%s: %v", req.Name, err)
		}
		out.Runs = append(out.Runs, res)

		if i < len(reqs)-1 {
			if err := o.pause(ctx); err != nil {
				stopErr = fmt.Errorf("batch stopped after %d of %d requests: %w", i+1, len(reqs), err)
				break
			}
		}
	}

	out.Summary = Summarize(out.Runs)
	var docs []model.ParsedDocument
	for _, r := range out.Runs {
		if r.Document != nil {
			docs = append(docs, r.Document.ParsedDocument)
		}
	}
	if len(docs) > 0 {
		combined, err := merge.Documents(nil, docs...)
		if err != nil {
			return out, fmt.Errorf("combining batch: %w", err)
		}
		out.Combined = combined
	}
	return out, stopErr
}

// Summarize aggregates run reports. A run is successful when it produced a
// document; successful runs split into with-data and no-data by point count.
func Summarize(runs []*RunResult) model.BatchSummary {
	s := model.BatchSummary{TotalRequests: len(runs)}
	for _, r := range runs {
		if r.Report.Historical {
			s.Historical++
			s.TotalChunks += r.Report.ChunksTotal
		}
		if r.Document == nil {
			s.Failed++
			continue
		}
		s.Successful++
		if r.Document.TotalDataPoints > 0 {
			s.WithData++
		} else {
			s.NoData++
		}
		s.TotalTimeseries += r.Document.TimeseriesCount
		s.TotalDataPoints += r.Document.TotalDataPoints
	}
	return s
}
