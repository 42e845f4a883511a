// Package fetch drives requests against the transparency API: single-range
// requests go straight through decode and parse, multi-year requests are
// split into yearly chunks that are fetched sequentially and merged.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/derickschaefer/gridfetch/internal/chunk"
	"github.com/derickschaefer/gridfetch/internal/logger"
	"github.com/derickschaefer/gridfetch/internal/merge"
	"github.com/derickschaefer/gridfetch/internal/metrics"
	"github.com/derickschaefer/gridfetch/internal/model"
	"github.com/derickschaefer/gridfetch/internal/parser"
	"github.com/derickschaefer/gridfetch/internal/util"
)

var (
	// ErrAllChunksFailed is returned when no chunk of a historical run succeeded.
	ErrAllChunksFailed = errors.New("all chunks failed")

	// ErrInterrupted is returned alongside a partial result when ctx ended a
	// historical run before every chunk was fetched. The context error is
	// wrapped as well.
	ErrInterrupted = errors.New("run interrupted")
)

// ChunkError records why one chunk could not be used.
type ChunkError struct {
	Label string
	Err   error
}

func (e *ChunkError) Error() string { return fmt.Sprintf("chunk %s: %v", e.Label, e.Err) }

func (e *ChunkError) Unwrap() error { return e.Err }

// Fetcher issues one request and returns the raw response body.
type Fetcher interface {
	Fetch(ctx context.Context, params map[string]string) ([]byte, error)
}

// ArchiveFunc receives every raw payload that was fetched, keyed by request
// name and chunk label.
type ArchiveFunc func(name, label string, raw []byte) error

// Orchestrator runs requests sequentially with a fixed delay between calls.
// The zero values of Log, Metrics and Archive are valid.
type Orchestrator struct {
	Fetcher Fetcher
	Planner chunk.Planner
	Delay   time.Duration
	Log     logger.Logger
	Metrics metrics.Recorder
	Archive ArchiveFunc
	Now     func() time.Time
}

// RunResult pairs a merged document with the report of the run producing it.
type RunResult struct {
	Document *model.MergedDocument `json:"document"`
	Report   model.RunReport       `json:"report"`
}

func (o *Orchestrator) log() logger.Logger {
	if o.Log == nil {
		return logger.Nop{}
	}
	return o.Log
}

func (o *Orchestrator) metrics() metrics.Recorder {
	if o.Metrics == nil {
		return metrics.Nop{}
	}
	return o.Metrics
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now().UTC()
	}
	return o.Now().UTC()
}

// Run plans params and executes the request. Ranges that need splitting go
// through Historical; everything else is one Single call.
func (o *Orchestrator) Run(ctx context.Context, name string, params map[string]string) (*RunResult, error) {
	res, err := o.run(ctx, name, params)
	if res != nil && res.Document != nil {
		o.metrics().PointsMerged(res.Document.TotalDataPoints)
	}
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, name string, params map[string]string) (*RunResult, error) {
	if plan, ok := o.Planner.PlanParams(params); ok {
		return o.historical(ctx, name, params, plan)
	}

	report := o.newReport(name, false)
	report.ChunksTotal = 1
	c := singleChunk(params)

	started := time.Now()
	doc, err := o.Single(ctx, name, params)
	if err != nil {
		o.metrics().ChunkFetched(model.ChunkFailed, time.Since(started))
		report.Chunks = append(report.Chunks, chunkResult(c, model.ChunkFailed, 0, 0, err))
		report.Error = err.Error()
		report.FinishedAt = o.now()
		return &RunResult{Report: report}, err
	}

	res := chunkResult(c, model.ChunkOK, doc.TotalDataPoints, 0, nil)
	report.ChunksSucceeded = 1
	if doc.NoData() {
		res.Status = model.ChunkNoData
	} else {
		report.ChunksWithData = 1
	}
	o.metrics().ChunkFetched(res.Status, time.Since(started))
	report.Chunks = append(report.Chunks, res)

	merged := &model.MergedDocument{ParsedDocument: *doc, ChunksWithData: report.ChunksWithData}
	o.finish(&report, merged)
	return &RunResult{Document: merged, Report: report}, nil
}

// Single fetches, decodes and parses one response. Every failure is fatal.
func (o *Orchestrator) Single(ctx context.Context, name string, params map[string]string) (*model.ParsedDocument, error) {
	raw, err := o.Fetcher.Fetch(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", name, err)
	}
	o.archive(name, singleChunk(params).Label, raw)
	doc, err := parser.ParseBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	if doc.Error != nil {
		o.log().Infof("%s: no data (%s %s)", name, doc.Error.Code, doc.Error.Text)
	}
	return doc, nil
}

// Historical fetches plan one chunk at a time. A chunk whose fetch, decode or
// parse fails is recorded in the report and skipped; the remaining chunks
// still run. Cancelling ctx stops further chunks and merges what completed;
// the partial result then comes back with an error wrapping ErrInterrupted
// and the context error. ErrAllChunksFailed is returned when nothing
// succeeded.
func (o *Orchestrator) Historical(ctx context.Context, name string, params map[string]string, plan []model.Chunk) (*RunResult, error) {
	res, err := o.historical(ctx, name, params, plan)
	if res != nil && res.Document != nil {
		o.metrics().PointsMerged(res.Document.TotalDataPoints)
	}
	return res, err
}

func (o *Orchestrator) historical(ctx context.Context, name string, params map[string]string, plan []model.Chunk) (*RunResult, error) {
	report := o.newReport(name, true)
	report.ChunksTotal = len(plan)

	var docs []model.ParsedDocument
	var failures util.MultiError
	var stopped error
	interrupt := func(done int, err error) {
		report.Error = fmt.Sprintf("cancelled after %d of %d chunks", done, len(plan))
		stopped = fmt.Errorf("%s: %w after %d of %d chunks: %w", name, ErrInterrupted, done, len(plan), err)
	}
	for i, c := range plan {
		if err := ctx.Err(); err != nil {
			interrupt(i, err)
			break
		}

		doc, res, err := o.fetchChunk(ctx, name, params, c)
		report.Chunks = append(report.Chunks, res)
		if err != nil {
			failures.Add(err)
		} else {
			report.ChunksSucceeded++
			if res.Status == model.ChunkOK {
				report.ChunksWithData++
			}
			docs = append(docs, *doc)
		}

		if i < len(plan)-1 {
			if err := o.pause(ctx); err != nil {
				interrupt(i+1, err)
				break
			}
		}
	}

	if report.ChunksSucceeded == 0 {
		report.FinishedAt = o.now()
		if report.Error == "" {
			report.Error = ErrAllChunksFailed.Error()
		}
		if stopped != nil {
			failures.Add(stopped)
		}
		if cause := failures.Err(); cause != nil {
			return &RunResult{Report: report}, fmt.Errorf("%s: %w: %w", name, ErrAllChunksFailed, cause)
		}
		return &RunResult{Report: report}, fmt.Errorf("%s: %w", name, ErrAllChunksFailed)
	}

	merged, err := merge.Documents(nil, docs...)
	if err != nil {
		report.Error = err.Error()
		report.FinishedAt = o.now()
		return &RunResult{Report: report}, fmt.Errorf("merging %s: %w", name, err)
	}
	o.finish(&report, merged)
	o.log().Infof("%s: %d/%d chunks succeeded, %d with data, %d points",
		name, report.ChunksSucceeded, report.ChunksTotal, report.ChunksWithData, report.TotalPoints)
	return &RunResult{Document: merged, Report: report}, stopped
}

// Append runs params and merges the result into existing, which is left
// untouched. A response without data leaves the accumulator content as is.
// An interrupted run is still merged and returned with its ErrInterrupted
// error; the caller decides whether to keep it.
func (o *Orchestrator) Append(ctx context.Context, name string, existing *model.MergedDocument, params map[string]string) (*RunResult, error) {
	res, runErr := o.run(ctx, name, params)
	if runErr != nil && (res == nil || res.Document == nil || !errors.Is(runErr, ErrInterrupted)) {
		return res, runErr
	}
	before := 0
	if existing != nil {
		before = existing.TotalDataPoints
	}
	merged, err := merge.Documents(existing, res.Document.ParsedDocument)
	if err != nil {
		res.Report.Error = err.Error()
		return res, fmt.Errorf("appending to %s: %w", name, err)
	}
	res.Document = merged
	o.finish(&res.Report, merged)
	res.Report.NewPoints = merged.TotalDataPoints - before
	o.metrics().PointsMerged(res.Report.NewPoints)
	return res, runErr
}

// fetchChunk fetches and parses one chunk. A failure comes back as a
// *ChunkError alongside the failed ChunkResult.
func (o *Orchestrator) fetchChunk(ctx context.Context, name string, params map[string]string, c model.Chunk) (*model.ParsedDocument, model.ChunkResult, error) {
	started := time.Now()
	fail := func(err error, n int) (*model.ParsedDocument, model.ChunkResult, error) {
		cerr := &ChunkError{Label: c.Label, Err: err}
		o.log().Warnf("%s: %v", name, cerr)
		o.metrics().ChunkFetched(model.ChunkFailed, time.Since(started))
		return nil, chunkResult(c, model.ChunkFailed, 0, n, err), cerr
	}

	raw, err := o.Fetcher.Fetch(ctx, chunk.WithRange(params, c))
	if err != nil {
		return fail(err, 0)
	}
	o.archive(name, c.Label, raw)
	doc, err := parser.ParseBytes(raw)
	if err != nil {
		return fail(err, len(raw))
	}

	status := model.ChunkOK
	if doc.NoData() {
		status = model.ChunkNoData
	}
	o.metrics().ChunkFetched(status, time.Since(started))
	o.log().Debugw("chunk done", map[string]any{
		"request": name, "chunk": c.Label, "status": status, "points": doc.TotalDataPoints, "bytes": len(raw),
	})
	return doc, chunkResult(c, status, doc.TotalDataPoints, len(raw), nil), nil
}

func (o *Orchestrator) archive(name, label string, raw []byte) {
	if o.Archive == nil {
		return
	}
	if err := o.Archive(name, label, raw); err != nil {
		o.log().Warnf("%s: archiving chunk %s: %v", name, label, err)
	}
}

// pause waits Delay or until ctx is done.
func (o *Orchestrator) pause(ctx context.Context) error {
	if o.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(o.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (o *Orchestrator) newReport(name string, historical bool) model.RunReport {
	return model.RunReport{
		RunID:      uuid.NewString(),
		Name:       name,
		Historical: historical,
		StartedAt:  o.now(),
	}
}

func (o *Orchestrator) finish(r *model.RunReport, doc *model.MergedDocument) {
	r.TotalPoints = doc.TotalDataPoints
	r.Timeseries = doc.TimeseriesCount
	r.FinishedAt = o.now()
}

func chunkResult(c model.Chunk, status string, points, size int, err error) model.ChunkResult {
	res := model.ChunkResult{
		Label:  c.Label,
		Start:  c.Start,
		End:    c.End,
		Status: status,
		Points: points,
		Bytes:  size,
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// singleChunk describes the range of a non-split request.
func singleChunk(params map[string]string) model.Chunk {
	start, end, ok := chunk.Range(params)
	if !ok {
		return model.Chunk{Label: "single"}
	}
	return model.Chunk{Start: start, End: end, Label: fmt.Sprintf("%d", start.Year())}
}
