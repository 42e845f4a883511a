// Package export projects parsed documents onto a timestamp-indexed table
// with one column per series, and reads and writes that table as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/derickschaefer/gridfetch/internal/model"
	"github.com/derickschaefer/gridfetch/internal/util"
)

// TimestampColumn is always the first column of a table.
const TimestampColumn = "timestamp"

// valuePreference is the order in which a point's value kinds are tried.
var valuePreference = []model.ValueKind{
	model.Quantity,
	model.Price,
	model.ImbalancePrice,
	model.ActivationPrice,
	model.SecondaryQuantity,
	model.UnavailableQuantity,
}

// PrimaryValue returns the first value of p in preference order.
func PrimaryValue(p model.Point) (float64, bool) {
	for _, k := range valuePreference {
		if v, ok := p.Values[k]; ok {
			return v, true
		}
	}
	return 0, false
}

// Table builds the tabular projection of doc. Rows are sorted by timestamp;
// cells without a value are empty strings. Points without a timestamp are
// not representable and are skipped.
func Table(doc *model.ParsedDocument) model.TabularExport {
	table := model.TabularExport{Columns: []string{TimestampColumn}, Rows: [][]string{}}
	if doc == nil || len(doc.Timeseries) == 0 {
		return table
	}

	names := uniqueNames(doc.Timeseries)
	table.Columns = append(table.Columns, names...)

	// column index (1-based in the row) keyed by timestamp
	cells := make(map[time.Time]map[int]string)
	for i, ts := range doc.Timeseries {
		col := i + 1
		for _, period := range ts.Periods {
			for _, p := range period.Points {
				if p.Timestamp == nil {
					continue
				}
				at := p.Timestamp.UTC()
				row, ok := cells[at]
				if !ok {
					row = make(map[int]string, len(names))
					cells[at] = row
				}
				if v, ok := PrimaryValue(p); ok {
					row[col] = util.FormatValue(v)
				} else if _, seen := row[col]; !seen {
					row[col] = ""
				}
			}
		}
	}

	stamps := make([]time.Time, 0, len(cells))
	for at := range cells {
		stamps = append(stamps, at)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	for _, at := range stamps {
		row := make([]string, len(table.Columns))
		row[0] = util.FormatTimestamp(at)
		for col, v := range cells[at] {
			row[col] = v
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// PopulatedCells counts non-empty value cells.
func PopulatedCells(table model.TabularExport) int {
	n := 0
	for _, row := range table.Rows {
		for _, cell := range row[1:] {
			if cell != "" {
				n++
			}
		}
	}
	return n
}

// WriteCSV writes the header and rows of table.
func WriteCSV(w io.Writer, table model.TabularExport) error {
	return WriteDelimited(w, table, ',')
}

// WriteDelimited writes table with sep as the field separator.
func WriteDelimited(w io.Writer, table model.TabularExport, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep
	if err := cw.Write(table.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(table.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// ReadCSV reads a table previously written by WriteCSV.
// An empty input yields an empty table with only the timestamp column.
func ReadCSV(r io.Reader) (model.TabularExport, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return model.TabularExport{}, fmt.Errorf("reading CSV: %w", err)
	}
	if len(records) == 0 {
		return model.TabularExport{Columns: []string{TimestampColumn}, Rows: [][]string{}}, nil
	}
	table := model.TabularExport{Columns: records[0], Rows: make([][]string, 0, len(records)-1)}
	if table.Columns[0] != TimestampColumn {
		return model.TabularExport{}, fmt.Errorf("reading CSV: first column is %q, want %q", table.Columns[0], TimestampColumn)
	}
	for _, rec := range records[1:] {
		row := make([]string, len(table.Columns))
		copy(row, rec)
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// AppendStats reports what AppendRows did.
type AppendStats struct {
	ExistingRows int `json:"existing_rows"`
	NewRows      int `json:"new_rows"`
	TotalRows    int `json:"total_rows"`
}

// AppendRows adds the rows of fresh whose timestamp is not already in
// existing. The existing header keeps its order; columns only fresh carries
// are appended after it, left empty in the existing rows. Fresh cells are
// matched by column name. An existing table with no rows and only the
// timestamp column is replaced by fresh.
func AppendRows(existing, fresh model.TabularExport) (model.TabularExport, AppendStats) {
	stats := AppendStats{ExistingRows: len(existing.Rows)}
	if len(existing.Rows) == 0 && len(existing.Columns) <= 1 {
		stats.NewRows = len(fresh.Rows)
		stats.TotalRows = len(fresh.Rows)
		return fresh, stats
	}

	columns := append([]string(nil), existing.Columns...)
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
	}
	for _, c := range fresh.Columns[min(1, len(fresh.Columns)):] {
		if !known[c] {
			known[c] = true
			columns = append(columns, c)
		}
	}

	out := model.TabularExport{Columns: columns, Rows: make([][]string, 0, len(existing.Rows)+len(fresh.Rows))}
	seen := make(map[string]bool, len(existing.Rows))
	for _, row := range existing.Rows {
		seen[row[0]] = true
		padded := make([]string, len(columns))
		copy(padded, row)
		out.Rows = append(out.Rows, padded)
	}

	freshIdx := make(map[string]int, len(fresh.Columns))
	for i, c := range fresh.Columns {
		freshIdx[c] = i
	}

	for _, row := range fresh.Rows {
		if seen[row[0]] {
			continue
		}
		seen[row[0]] = true
		aligned := make([]string, len(columns))
		aligned[0] = row[0]
		for i, c := range columns[1:] {
			if j, ok := freshIdx[c]; ok && j > 0 && j < len(row) {
				aligned[i+1] = row[j]
			}
		}
		out.Rows = append(out.Rows, aligned)
		stats.NewRows++
	}
	// RFC 3339 UTC timestamps sort lexically
	sort.SliceStable(out.Rows, func(i, j int) bool { return out.Rows[i][0] < out.Rows[j][0] })
	stats.TotalRows = len(out.Rows)
	return out, stats
}
