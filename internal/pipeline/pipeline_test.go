package pipeline_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/gridfetch/internal/model"
	"github.com/derickschaefer/gridfetch/internal/pipeline"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// jsonl joins lines with newlines and appends a trailing newline.
func jsonl(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

func sampleTable() model.TabularExport {
	return model.TabularExport{
		Columns: []string{"timestamp", "Solar_MW", "Load_MW"},
		Rows: [][]string{
			{"2024-01-01T00:00:00Z", "12.5", ""},
			{"2024-01-01T01:00:00Z", "13", "4001"},
		},
	}
}

// ─── WriteRows ────────────────────────────────────────────────────────────────

func TestWriteRowsKeepsColumnOrder(t *testing.T) {
	var buf bytes.Buffer
	if err := pipeline.WriteRows(&buf, sampleTable()); err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	lines := nonEmptyLines(buf.String())
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	want := `{"timestamp":"2024-01-01T00:00:00Z","Solar_MW":12.5,"Load_MW":null}`
	if lines[0] != want {
		t.Errorf("line 0:\n got %s\nwant %s", lines[0], want)
	}
}

func TestWriteRowsEachLineIsValidJSON(t *testing.T) {
	table := sampleTable()
	table.Rows = append(table.Rows, []string{"2024-01-01T02:00:00Z", "n/a", "+5"})
	var buf bytes.Buffer
	if err := pipeline.WriteRows(&buf, table); err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	for i, line := range nonEmptyLines(buf.String()) {
		if !json.Valid([]byte(line)) {
			t.Errorf("line %d is not valid JSON: %s", i, line)
		}
	}
}

func TestWriteRowsEmptyTable(t *testing.T) {
	var buf bytes.Buffer
	table := model.TabularExport{Columns: []string{"timestamp"}}
	if err := pipeline.WriteRows(&buf, table); err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

// ─── ReadRows ─────────────────────────────────────────────────────────────────

func TestRoundTripRows(t *testing.T) {
	var buf bytes.Buffer
	if err := pipeline.WriteRows(&buf, sampleTable()); err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	got, err := pipeline.ReadRows(&buf)
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	want := sampleTable()
	if strings.Join(got.Columns, ",") != strings.Join(want.Columns, ",") {
		t.Errorf("columns: got %v, want %v", got.Columns, want.Columns)
	}
	for i := range want.Rows {
		if strings.Join(got.Rows[i], ",") != strings.Join(want.Rows[i], ",") {
			t.Errorf("row %d: got %v, want %v", i, got.Rows[i], want.Rows[i])
		}
	}
}

func TestReadRowsUnionOfColumns(t *testing.T) {
	input := jsonl(
		`{"timestamp":"2024-01-01T00:00:00Z","A":1}`,
		`{"timestamp":"2024-01-01T01:00:00Z","B":2}`,
	)
	got, err := pipeline.ReadRows(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	if len(got.Columns) != 3 || got.Columns[1] != "A" || got.Columns[2] != "B" {
		t.Fatalf("columns: got %v", got.Columns)
	}
	if got.Rows[0][2] != "" || got.Rows[1][1] != "" {
		t.Errorf("missing keys should be empty cells, got %v", got.Rows)
	}
}

func TestReadRowsSkipsBlankAndCommentLines(t *testing.T) {
	input := jsonl(
		`// produced by gridfetch`,
		``,
		`{"timestamp":"2024-01-01T00:00:00Z","A":1}`,
	)
	got, err := pipeline.ReadRows(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	if len(got.Rows) != 1 {
		t.Errorf("expected 1 row, got %d", len(got.Rows))
	}
}

func TestReadRowsErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"invalid json", `{"timestamp":`},
		{"not an object", `[1,2]`},
		{"missing timestamp", `{"A":1}`},
		{"nested value", `{"timestamp":"x","A":{"b":1}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := pipeline.ReadRows(strings.NewReader(jsonl(tc.input))); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestReadRowsEmptyInput(t *testing.T) {
	_, err := pipeline.ReadRows(strings.NewReader(""))
	if !errors.Is(err, pipeline.ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}

// ─── ReadTable ────────────────────────────────────────────────────────────────

func TestReadTableDetectsCSV(t *testing.T) {
	input := "timestamp,A\n2024-01-01T00:00:00Z,1\n"
	got, err := pipeline.ReadTable(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if len(got.Rows) != 1 || got.Rows[0][1] != "1" {
		t.Errorf("unexpected table: %+v", got)
	}
}

func TestReadTableFallsBackToJSONL(t *testing.T) {
	got, err := pipeline.ReadTable(strings.NewReader(jsonl(`{"timestamp":"2024-01-01T00:00:00Z","A":1}`)))
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if len(got.Columns) != 2 {
		t.Errorf("columns: got %v", got.Columns)
	}
}

// ─── Documents ────────────────────────────────────────────────────────────────

func sampleDoc() *model.MergedDocument {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	doc := &model.MergedDocument{
		ParsedDocument: model.ParsedDocument{
			DocumentInfo: model.DocumentInfo{Type: "A65", DocumentType: "GL_MarketDocument"},
			TimeInterval: model.TimeInterval{Start: "2024-01-01T00:00Z", End: "2024-01-01T01:00Z"},
			Timeseries: []model.TimeSeries{{
				BusinessType: "A04",
				Unit:         "MAW",
				Periods: []model.Period{{
					Start:      ts,
					End:        ts.Add(time.Hour),
					Resolution: model.PT60M,
					Points: []model.Point{{
						Position:  1,
						Timestamp: &ts,
						Values:    map[model.ValueKind]float64{model.Quantity: 4001},
					}},
				}},
				TotalPoints: 1,
			}},
		},
		ChunksWithData: 1,
	}
	doc.Recount()
	return doc
}

func TestDocumentRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := pipeline.WriteDocument(&buf, sampleDoc()); err != nil {
		t.Fatalf("WriteDocument: %v", err)
	}
	got, err := pipeline.ReadDocument(&buf)
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if got.TotalDataPoints != 1 || got.ChunksWithData != 1 {
		t.Errorf("counts: got %d points, %d chunks", got.TotalDataPoints, got.ChunksWithData)
	}
	v, ok := got.Timeseries[0].Periods[0].Points[0].Value(model.Quantity)
	if !ok || v != 4001 {
		t.Errorf("quantity: got %v (%v)", v, ok)
	}
}

func TestReadDocumentUnwrapsEnvelope(t *testing.T) {
	result := model.Result{Kind: model.KindDocument, Command: "fetch", Data: sampleDoc()}
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := pipeline.ReadDocument(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if got.TimeseriesCount != 1 {
		t.Errorf("expected 1 series from envelope, got %d", got.TimeseriesCount)
	}
}

func TestReadDocumentEmpty(t *testing.T) {
	if _, err := pipeline.ReadDocument(strings.NewReader("  \n")); !errors.Is(err, pipeline.ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}

func TestReadDocumentInvalid(t *testing.T) {
	if _, err := pipeline.ReadDocument(strings.NewReader("<xml/>")); err == nil {
		t.Error("expected decode error")
	}
}
