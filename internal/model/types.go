// Package model defines the canonical data types used throughout gridfetch.
// These types are the single source of truth for parsed transparency-platform
// documents, merged datasets, chunk plans and the result envelope that every
// command returns.
package model

import (
	"strings"
	"time"
)

// ─── Point / Period ───────────────────────────────────────────────────────────

// ValueKind names one numeric value a Point may carry.
type ValueKind string

const (
	Quantity            ValueKind = "quantity"
	Price               ValueKind = "price"
	ImbalancePrice      ValueKind = "imbalancePrice"
	SecondaryQuantity   ValueKind = "secondaryQuantity"
	UnavailableQuantity ValueKind = "unavailableQuantity"
	ActivationPrice     ValueKind = "activationPrice"
)

// Point is a single position inside a Period.
// Timestamp is derived from the period start and resolution; it is nil when
// the period start could not be parsed.
type Point struct {
	Position               int                   `json:"position"`
	Timestamp              *time.Time            `json:"timestamp,omitempty"`
	Values                 map[ValueKind]float64 `json:"values,omitempty"`
	ImbalancePriceCategory string                `json:"imbalancePriceCategory,omitempty"`
}

// Value returns the value of kind k and whether it is present.
func (p Point) Value(k ValueKind) (float64, bool) {
	v, ok := p.Values[k]
	return v, ok
}

// Resolution is the sampling interval code of a Period.
type Resolution string

const (
	PT1M  Resolution = "PT1M"
	PT15M Resolution = "PT15M"
	PT30M Resolution = "PT30M"
	PT60M Resolution = "PT60M"
	P1D   Resolution = "P1D"
	P7D   Resolution = "P7D"
	P1M   Resolution = "P1M"
	P1Y   Resolution = "P1Y"
)

// ParseResolution maps an API resolution code to a Resolution.
// Unknown codes fall back to PT60M.
func ParseResolution(code string) Resolution {
	switch r := Resolution(code); r {
	case PT1M, PT15M, PT30M, PT60M, P1D, P7D, P1M, P1Y:
		return r
	default:
		return PT60M
	}
}

// Offset returns start advanced by n steps of r.
// Month and year resolutions move by calendar units, clamped to the last day
// of the target month (Jan 31 + 1 month is Feb 28 or 29).
func (r Resolution) Offset(start time.Time, n int) time.Time {
	switch r {
	case PT1M:
		return start.Add(time.Duration(n) * time.Minute)
	case PT15M:
		return start.Add(time.Duration(n) * 15 * time.Minute)
	case PT30M:
		return start.Add(time.Duration(n) * 30 * time.Minute)
	case P1D:
		return start.AddDate(0, 0, n)
	case P7D:
		return start.AddDate(0, 0, 7*n)
	case P1M:
		return addMonths(start, n)
	case P1Y:
		return addMonths(start, 12*n)
	default:
		return start.Add(time.Duration(n) * time.Hour)
	}
}

func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	return first.AddDate(0, 0, min(d, last)-1)
}

// Period is one contiguous interval of points at a fixed resolution.
// Start and End are zero when the upstream interval was missing or invalid.
type Period struct {
	Start      time.Time  `json:"start"`
	End        time.Time  `json:"end"`
	Resolution Resolution `json:"resolution"`
	Points     []Point    `json:"points"`
}

// ─── TimeSeries ───────────────────────────────────────────────────────────────

// TimeSeries is one logical variable of a document: identity metadata plus
// its periods.
type TimeSeries struct {
	ID             string   `json:"mRID"`
	BusinessType   string   `json:"businessType"`
	PsrType        string   `json:"psrType,omitempty"`
	InBiddingZone  string   `json:"inBiddingZone,omitempty"`
	OutBiddingZone string   `json:"outBiddingZone,omitempty"`
	InDomain       string   `json:"in,omitempty"`
	OutDomain      string   `json:"out,omitempty"`
	ControlArea    string   `json:"controlArea,omitempty"`
	Area           string   `json:"area,omitempty"`
	FlowDirection  string   `json:"flowDirection,omitempty"`
	ContractType   string   `json:"contractType,omitempty"`
	Unit           string   `json:"unit"`
	Currency       string   `json:"currency,omitempty"`
	CurveType      string   `json:"curveType,omitempty"`
	Periods        []Period `json:"periods"`
	TotalPoints    int      `json:"totalPoints"`
}

// CountPoints returns the number of points across all periods.
func (ts TimeSeries) CountPoints() int {
	n := 0
	for _, p := range ts.Periods {
		n += len(p.Points)
	}
	return n
}

// FirstStart returns the start of the first period, or false when the series
// has no periods or the first start is unknown.
func (ts TimeSeries) FirstStart() (time.Time, bool) {
	if len(ts.Periods) == 0 || ts.Periods[0].Start.IsZero() {
		return time.Time{}, false
	}
	return ts.Periods[0].Start, true
}

// Signature identifies "the same logical series" across documents.
// It is comparable and used directly as a map key; ids are excluded.
type Signature struct {
	BusinessType   string
	PsrType        string
	InBiddingZone  string
	OutBiddingZone string
	InDomain       string
	OutDomain      string
	ControlArea    string
	Area           string
	FlowDirection  string
	ContractType   string
	Unit           string
	Currency       string
}

// Signature returns the identity key of ts.
func (ts TimeSeries) Signature() Signature {
	return Signature{
		BusinessType:   ts.BusinessType,
		PsrType:        ts.PsrType,
		InBiddingZone:  ts.InBiddingZone,
		OutBiddingZone: ts.OutBiddingZone,
		InDomain:       ts.InDomain,
		OutDomain:      ts.OutDomain,
		ControlArea:    ts.ControlArea,
		Area:           ts.Area,
		FlowDirection:  ts.FlowDirection,
		ContractType:   ts.ContractType,
		Unit:           ts.Unit,
		Currency:       ts.Currency,
	}
}

// ─── Documents ────────────────────────────────────────────────────────────────

// DocumentInfo is the header of an upstream market document.
type DocumentInfo struct {
	DocumentType    string `json:"documentType"`
	MRID            string `json:"mRID"`
	RevisionNumber  string `json:"revisionNumber,omitempty"`
	Type            string `json:"type"`
	ProcessType     string `json:"processType"`
	CreatedDateTime string `json:"createdDateTime"`
}

// TimeInterval is a document-level interval kept in the upstream string form
// (e.g. 2024-01-01T00:00Z). Empty strings mean "unknown".
type TimeInterval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ErrorInfo carries the reason of an acknowledgement (no data) document.
type ErrorInfo struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

// ParsedDocument is the normalized form of one upstream response.
// Error is set only for acknowledgement documents, in which case Timeseries
// is empty.
type ParsedDocument struct {
	DocumentInfo    DocumentInfo `json:"documentInfo"`
	TimeInterval    TimeInterval `json:"timeInterval"`
	Timeseries      []TimeSeries `json:"timeseries"`
	TimeseriesCount int          `json:"timeseriesCount"`
	TotalDataPoints int          `json:"totalDataPoints"`
	Error           *ErrorInfo   `json:"error,omitempty"`
}

// NoData reports whether the document is an acknowledgement or carries no
// series at all.
func (d *ParsedDocument) NoData() bool {
	return d.Error != nil || len(d.Timeseries) == 0
}

// Recount refreshes TimeseriesCount and TotalDataPoints from the series.
func (d *ParsedDocument) Recount() {
	d.TimeseriesCount = len(d.Timeseries)
	total := 0
	for _, ts := range d.Timeseries {
		total += ts.TotalPoints
	}
	d.TotalDataPoints = total
}

// MergedDocument is a ParsedDocument assembled from one or more inputs.
type MergedDocument struct {
	ParsedDocument
	ChunksWithData int  `json:"chunksWithData"`
	IsMerged       bool `json:"isMerged"`
}

// ─── Chunk plan ───────────────────────────────────────────────────────────────

// Chunk is one calendar-year-bounded sub-range [Start, End) of a request.
type Chunk struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// ─── Tabular export ───────────────────────────────────────────────────────────

// TabularExport is a column-oriented projection of a document.
// Columns[0] is always "timestamp".
type TabularExport struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// ─── Run reports ──────────────────────────────────────────────────────────────

// Chunk statuses recorded in a RunReport.
const (
	ChunkOK     = "ok"
	ChunkNoData = "no_data"
	ChunkFailed = "failed"
)

// ChunkResult records the outcome of a single chunk fetch.
type ChunkResult struct {
	Label  string    `json:"label"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Status string    `json:"status"`
	Points int       `json:"points"`
	Bytes  int       `json:"bytes"`
	Error  string    `json:"error,omitempty"`
}

// Run outcomes derived from the chunk counters.
const (
	OutcomeComplete = "complete"
	OutcomePartial  = "partial"
	OutcomeEmpty    = "empty"
	OutcomeFailed   = "failed"
)

// RunReport summarizes one fetch run (single, historical or incremental).
type RunReport struct {
	RunID           string        `json:"run_id"`
	Name            string        `json:"name"`
	Historical      bool          `json:"historical"`
	ChunksTotal     int           `json:"chunksTotal"`
	ChunksSucceeded int           `json:"chunksSucceeded"`
	ChunksWithData  int           `json:"chunksWithData"`
	Chunks          []ChunkResult `json:"chunks,omitempty"`
	NewPoints       int           `json:"new_points,omitempty"`
	TotalPoints     int           `json:"total_points"`
	Timeseries      int           `json:"timeseries"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
	Error           string        `json:"error,omitempty"`
}

// Outcome classifies the run as complete, partial, empty or failed.
func (r RunReport) Outcome() string {
	switch {
	case r.ChunksSucceeded == 0:
		return OutcomeFailed
	case r.ChunksWithData == 0:
		return OutcomeEmpty
	case r.ChunksSucceeded < r.ChunksTotal:
		return OutcomePartial
	default:
		return OutcomeComplete
	}
}

// BatchSummary aggregates several run reports.
type BatchSummary struct {
	TotalRequests   int `json:"total_requests"`
	Successful      int `json:"successful"`
	WithData        int `json:"with_data"`
	NoData          int `json:"no_data"`
	Failed          int `json:"failed"`
	Historical      int `json:"historical"`
	TotalTimeseries int `json:"total_timeseries"`
	TotalDataPoints int `json:"total_data_points"`
	TotalChunks     int `json:"total_chunks"`
}

// BatchReport pairs the summary of a batch with the report of every run.
type BatchReport struct {
	Summary BatchSummary `json:"summary"`
	Runs    []RunReport  `json:"runs"`
}

// ─── Result Envelope ─────────────────────────────────────────────────────────

// ResultStats carries performance metadata for a command result.
type ResultStats struct {
	DurationMs int64 `json:"duration_ms"`
	Items      int   `json:"items"`
}

// Result is the uniform envelope returned by every command.
// The Data field holds the typed payload; Kind identifies what is in it.
// Renderers switch on Kind to format output appropriately.
type Result struct {
	Kind        string      `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Stats       ResultStats `json:"stats"`
}

// Kind constants for Result.Kind.
const (
	KindDocument = "document"
	KindTable    = "table"
	KindPlan     = "plan"
	KindRun      = "run"
	KindBatch    = "batch"
	KindSummary  = "summary"
	KindTrend    = "trend"
	KindRequest  = "request"
)

// ─── Saved requests ───────────────────────────────────────────────────────────

// RequestDef is a named, reusable set of API parameters.
// Run=false keeps the definition but excludes it from batch and poll runs.
// HoursBack sizes the incremental poll window; zero selects the default.
type RequestDef struct {
	ID        string            `json:"id" yaml:"id,omitempty"`
	Name      string            `json:"name" yaml:"name"`
	Params    map[string]string `json:"params" yaml:"params"`
	Run       *bool             `json:"run,omitempty" yaml:"run,omitempty"`
	Schedule  string            `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	HoursBack int               `json:"hours_back,omitempty" yaml:"hours_back,omitempty"`
	CreatedAt time.Time         `json:"created_at" yaml:"-"`
}

// Enabled reports whether the request takes part in batch and poll runs.
// Definitions without an explicit run flag are enabled.
func (r RequestDef) Enabled() bool {
	return r.Run == nil || *r.Run
}

// DefaultHoursBack is the poll window of requests on an hourly schedule.
const DefaultHoursBack = 3

// PollHours returns the incremental poll window in hours. An explicit
// HoursBack wins; otherwise a six-hourly cron schedule widens the window.
func (r RequestDef) PollHours() int {
	if r.HoursBack > 0 {
		return r.HoursBack
	}
	if strings.Contains(r.Schedule, "*/6") {
		return 7
	}
	return DefaultHoursBack
}
