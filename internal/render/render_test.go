package render_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/gridfetch/internal/analyze"
	"github.com/derickschaefer/gridfetch/internal/model"
	"github.com/derickschaefer/gridfetch/internal/render"
)

func sampleDoc() *model.MergedDocument {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	doc := &model.MergedDocument{
		ParsedDocument: model.ParsedDocument{
			DocumentInfo: model.DocumentInfo{DocumentType: "GL_MarketDocument", Type: "A65", ProcessType: "A16"},
			TimeInterval: model.TimeInterval{Start: "2024-01-01T00:00Z", End: "2024-01-01T02:00Z"},
			Timeseries: []model.TimeSeries{{
				BusinessType:   "A04",
				OutBiddingZone: "10YCZ-CEPS-----N",
				Unit:           "MAW",
				Periods: []model.Period{{
					Start:      t0,
					End:        t0.Add(2 * time.Hour),
					Resolution: model.PT60M,
					Points: []model.Point{
						{Position: 1, Timestamp: &t0, Values: map[model.ValueKind]float64{model.Quantity: 100}},
						{Position: 2, Timestamp: &t1, Values: map[model.ValueKind]float64{model.Quantity: 110.5}},
					},
				}},
				TotalPoints: 2,
			}},
		},
		ChunksWithData: 1,
		IsMerged:       true,
	}
	doc.Recount()
	return doc
}

func result(kind string, data interface{}) *model.Result {
	return &model.Result{Kind: kind, GeneratedAt: time.Now(), Command: "test", Data: data}
}

func TestRenderDocumentCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := render.Render(&buf, result(model.KindDocument, sampleDoc()), render.FormatCSV); err != nil {
		t.Fatalf("Render: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "timestamp,") {
		t.Errorf("header: got %q", lines[0])
	}
	if lines[2] != "2024-01-01T01:00:00Z,110.5" {
		t.Errorf("row 2: got %q", lines[2])
	}
}

func TestRenderDocumentTSV(t *testing.T) {
	var buf bytes.Buffer
	if err := render.Render(&buf, result(model.KindDocument, sampleDoc()), render.FormatTSV); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), "2024-01-01T00:00:00Z\t100") {
		t.Errorf("expected tab separated row, got:\n%s", buf.String())
	}
}

func TestRenderDocumentJSONL(t *testing.T) {
	var buf bytes.Buffer
	if err := render.Render(&buf, result(model.KindDocument, sampleDoc()), render.FormatJSONL); err != nil {
		t.Fatalf("Render: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var row map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &row); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if row["timestamp"] != "2024-01-01T00:00:00Z" {
		t.Errorf("timestamp: got %v", row["timestamp"])
	}
}

func TestRenderDocumentJSONEnvelope(t *testing.T) {
	var buf bytes.Buffer
	if err := render.Render(&buf, result(model.KindDocument, sampleDoc()), render.FormatJSON); err != nil {
		t.Fatalf("Render: %v", err)
	}
	var env struct {
		Kind string `json:"kind"`
		Data struct {
			TotalDataPoints int  `json:"totalDataPoints"`
			IsMerged        bool `json:"isMerged"`
		} `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Kind != model.KindDocument || env.Data.TotalDataPoints != 2 || !env.Data.IsMerged {
		t.Errorf("unexpected envelope: %+v", env)
	}
}

func TestRenderDocumentTable(t *testing.T) {
	var buf bytes.Buffer
	if err := render.Render(&buf, result(model.KindDocument, sampleDoc()), render.FormatTable); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"GL_MarketDocument", "chunks with data 1", "A04", "MAW"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderAcknowledgementTable(t *testing.T) {
	doc := &model.ParsedDocument{Error: &model.ErrorInfo{Code: "999", Text: "No matching data found"}}
	var buf bytes.Buffer
	if err := render.Render(&buf, result(model.KindDocument, doc), render.FormatTable); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), "999: No matching data found") {
		t.Errorf("expected reason in output:\n%s", buf.String())
	}
}

func TestRenderPlanCSV(t *testing.T) {
	plan := []model.Chunk{{
		Start: time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		Label: "2020",
	}}
	var buf bytes.Buffer
	if err := render.Render(&buf, result(model.KindPlan, plan), render.FormatCSV); err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "label,start,end\n2020,202003010000,202101010000\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestRenderBatchTable(t *testing.T) {
	b := model.BatchReport{
		Summary: model.BatchSummary{TotalRequests: 2, Successful: 1, Failed: 1},
		Runs: []model.RunReport{
			{Name: "load", ChunksTotal: 1, ChunksSucceeded: 1, ChunksWithData: 1},
			{Name: "prices", ChunksTotal: 1, Error: "boom"},
		},
	}
	var buf bytes.Buffer
	if err := render.Render(&buf, result(model.KindBatch, b), render.FormatTable); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Batch summary", "load", "complete", "failed", "boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestRenderSummaryJSONL(t *testing.T) {
	sums := []analyze.Summary{{Column: "A", Count: 1}, {Column: "B", Count: 2}}
	var buf bytes.Buffer
	if err := render.Render(&buf, result(model.KindSummary, sums), render.FormatJSONL); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Errorf("expected 2 lines, got %d", n)
	}
}

func TestRenderUnknownDataFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := render.Render(&buf, result("other", map[string]int{"x": 1}), render.FormatTable); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !json.Valid(buf.Bytes()) {
		t.Errorf("expected JSON fallback, got %q", buf.String())
	}
}

func TestPrintFooter(t *testing.T) {
	r := result(model.KindRun, nil)
	r.Warnings = []string{"chunk 2021 failed"}
	var buf bytes.Buffer
	render.PrintFooter(&buf, r, false)
	if !strings.Contains(buf.String(), "chunk 2021 failed") {
		t.Errorf("warning not printed: %q", buf.String())
	}
	if strings.Contains(buf.String(), "items") {
		t.Errorf("stats should only print when verbose")
	}
}
