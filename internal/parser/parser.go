// Package parser turns one transparency-platform XML document into a
// model.ParsedDocument: header, time interval, time series, periods and
// points, with point timestamps derived from period start and resolution.
//
// Acknowledgement documents ("no data in the requested range") are a valid
// result carrying ParsedDocument.Error, not a parse failure.
package parser

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/derickschaefer/gridfetch/internal/decode"
	"github.com/derickschaefer/gridfetch/internal/merge"
	"github.com/derickschaefer/gridfetch/internal/model"
	"github.com/derickschaefer/gridfetch/internal/util"
	"github.com/derickschaefer/gridfetch/internal/xmltree"
)

// ErrMalformed is matched by every ParseError.
var ErrMalformed = errors.New("malformed XML")

// ParseError wraps the underlying XML syntax failure.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse: malformed XML: " + e.Err.Error() }

func (e *ParseError) Unwrap() []error { return []error{ErrMalformed, e.Err} }

const ackRoot = "Acknowledgement_MarketDocument"

// domainFields maps TimeSeries child paths to the series field they fill.
var domainFields = []struct {
	path string
	set  func(*model.TimeSeries, string)
}{
	{"outBiddingZone_Domain.mRID", func(ts *model.TimeSeries, v string) { ts.OutBiddingZone = v }},
	{"inBiddingZone_Domain.mRID", func(ts *model.TimeSeries, v string) { ts.InBiddingZone = v }},
	{"in_Domain.mRID", func(ts *model.TimeSeries, v string) { ts.InDomain = v }},
	{"out_Domain.mRID", func(ts *model.TimeSeries, v string) { ts.OutDomain = v }},
	{"controlArea_Domain.mRID", func(ts *model.TimeSeries, v string) { ts.ControlArea = v }},
	{"area_Domain.mRID", func(ts *model.TimeSeries, v string) { ts.Area = v }},
}

// valueFields maps Point child paths to value kinds.
var valueFields = []struct {
	path string
	kind model.ValueKind
}{
	{"quantity", model.Quantity},
	{"price.amount", model.Price},
	{"imbalance_Price.amount", model.ImbalancePrice},
	{"secondaryQuantity", model.SecondaryQuantity},
	{"unavailable_Quantity.quantity", model.UnavailableQuantity},
	{"activation_Price.amount", model.ActivationPrice},
}

// ParseBytes decodes a raw response (XML or ZIP) and parses it.
func ParseBytes(raw []byte) (*model.ParsedDocument, error) {
	text, err := decode.Decode(raw)
	if err != nil {
		return nil, err
	}
	return Parse(text)
}

// Parse parses XML text into a ParsedDocument. Series sharing a signature
// are collapsed by merge.Consecutive before returning.
func Parse(xmlText string) (*model.ParsedDocument, error) {
	tree, err := xmltree.ParseString(xmlText)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	p := &docParser{tree: tree}

	doc := &model.ParsedDocument{
		DocumentInfo: p.documentInfo(),
		TimeInterval: p.timeInterval(),
		Timeseries:   []model.TimeSeries{},
	}

	if strings.Contains(tree.LocalName(), ackRoot) {
		doc.Error = p.reason()
		return doc, nil
	}

	var series []model.TimeSeries
	for _, n := range tree.FindAll(tree.Root, "TimeSeries") {
		series = append(series, p.timeSeries(n))
	}
	if len(series) > 0 {
		doc.Timeseries = merge.Consecutive(series)
	}
	doc.Recount()
	return doc, nil
}

type docParser struct {
	tree *xmltree.Tree
}

func (p *docParser) documentInfo() model.DocumentInfo {
	root := p.tree.Root
	return model.DocumentInfo{
		DocumentType:    p.tree.LocalName(),
		MRID:            p.tree.Text(root, "mRID"),
		RevisionNumber:  p.tree.Text(root, "revisionNumber"),
		Type:            p.tree.Text(root, "type"),
		ProcessType:     p.tree.Text(root, "process.processType"),
		CreatedDateTime: p.tree.Text(root, "createdDateTime"),
	}
}

func (p *docParser) timeInterval() model.TimeInterval {
	for _, path := range []string{"time_Period.timeInterval", "period.timeInterval"} {
		if n := p.tree.Find(p.tree.Root, path); n != nil {
			return model.TimeInterval{
				Start: p.tree.Text(n, "start"),
				End:   p.tree.Text(n, "end"),
			}
		}
	}
	return model.TimeInterval{}
}

// reason reads the Reason element of an acknowledgement document. A missing
// Reason still yields a non-nil ErrorInfo so the document is marked no-data.
func (p *docParser) reason() *model.ErrorInfo {
	n := p.tree.Find(p.tree.Root, "Reason")
	if n == nil {
		return &model.ErrorInfo{}
	}
	return &model.ErrorInfo{
		Code: p.tree.Text(n, "code"),
		Text: p.tree.Text(n, "text"),
	}
}

func (p *docParser) timeSeries(n *xmltree.Node) model.TimeSeries {
	t := p.tree
	ts := model.TimeSeries{
		ID:            t.Text(n, "mRID"),
		BusinessType:  t.Text(n, "businessType"),
		PsrType:       t.Text(n, "MktPSRType/psrType"),
		FlowDirection: t.Text(n, "flowDirection.direction"),
		ContractType:  t.Text(n, "contract_MarketAgreement.type"),
		Unit:          t.Text(n, "quantity_Measure_Unit.name"),
		Currency:      t.Text(n, "currency_Unit.name"),
		CurveType:     t.Text(n, "curveType"),
	}
	for _, f := range domainFields {
		if v := t.Text(n, f.path); v != "" {
			f.set(&ts, v)
		}
	}
	for _, pn := range t.FindAll(n, "Period") {
		ts.Periods = append(ts.Periods, p.period(pn))
	}
	ts.TotalPoints = ts.CountPoints()
	return ts
}

func (p *docParser) period(n *xmltree.Node) model.Period {
	t := p.tree
	period := model.Period{
		Resolution: model.ParseResolution(t.Text(n, "resolution")),
		Points:     []model.Point{},
	}
	if iv := t.Find(n, "timeInterval"); iv != nil {
		period.Start = parseTime(t.Text(iv, "start"))
		period.End = parseTime(t.Text(iv, "end"))
	}
	for _, pt := range t.FindAll(n, "Point") {
		point, ok := p.point(pt, period)
		if ok {
			period.Points = append(period.Points, point)
		}
	}
	return period
}

func (p *docParser) point(n *xmltree.Node, period model.Period) (model.Point, bool) {
	t := p.tree
	pos, err := strconv.Atoi(t.Text(n, "position"))
	if err != nil || pos < 1 {
		return model.Point{}, false
	}
	point := model.Point{Position: pos}
	if !period.Start.IsZero() {
		ts := period.Resolution.Offset(period.Start, pos-1)
		point.Timestamp = &ts
	}
	for _, f := range valueFields {
		raw := t.Text(n, f.path)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if point.Values == nil {
			point.Values = make(map[model.ValueKind]float64, 2)
		}
		point.Values[f.kind] = v
	}
	point.ImbalancePriceCategory = t.Text(n, "imbalance_Price.category")
	return point, true
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ts, err := util.ParseDocTime(s)
	if err != nil {
		return time.Time{}
	}
	return ts
}
