// Package pipeline provides helpers for reading and writing gridfetch data
// via stdin/stdout. Tables travel as JSONL rows (one object per timestamp,
// keys in column order), which is the canonical pipe format; documents
// travel as a single JSON value.
package pipeline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/derickschaefer/gridfetch/internal/export"
	"github.com/derickschaefer/gridfetch/internal/model"
)

// ErrEmptyInput is returned when a reader yields no records.
var ErrEmptyInput = errors.New("no records read from input (is stdin empty?)")

// ─── Rows ─────────────────────────────────────────────────────────────────────

// WriteRows writes every row of table as one JSON object. Numeric cells are
// written as numbers and empty cells as null.
func WriteRows(w io.Writer, table model.TabularExport) error {
	bw := bufio.NewWriter(w)
	for _, row := range table.Rows {
		bw.WriteByte('{')
		for i, col := range table.Columns {
			if i > 0 {
				bw.WriteByte(',')
			}
			key, _ := json.Marshal(col)
			bw.Write(key)
			bw.WriteByte(':')
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			bw.Write(cellJSON(cell, i == 0))
		}
		bw.WriteString("}\n")
	}
	return bw.Flush()
}

func cellJSON(cell string, isKey bool) []byte {
	if cell == "" {
		return []byte("null")
	}
	if !isKey {
		if v, err := strconv.ParseFloat(cell, 64); err == nil && !math.IsInf(v, 0) && !math.IsNaN(v) && json.Valid([]byte(cell)) {
			return []byte(cell)
		}
	}
	b, _ := json.Marshal(cell)
	return b
}

// ReadRows reads JSONL rows written by WriteRows. Columns are collected in
// first-seen order; every object must carry a timestamp.
func ReadRows(r io.Reader) (model.TabularExport, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)

	table := model.TabularExport{Columns: []string{export.TimestampColumn}}
	index := map[string]int{export.TimestampColumn: 0}
	var records []map[string]string

	lineNum := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNum++
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		keys, rec, err := decodeObject([]byte(line))
		if err != nil {
			return model.TabularExport{}, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if rec[export.TimestampColumn] == "" {
			return model.TabularExport{}, fmt.Errorf("line %d: missing %q", lineNum, export.TimestampColumn)
		}
		for _, k := range keys {
			if _, ok := index[k]; !ok {
				index[k] = len(table.Columns)
				table.Columns = append(table.Columns, k)
			}
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return model.TabularExport{}, fmt.Errorf("reading input: %w", err)
	}
	if len(records) == 0 {
		return model.TabularExport{}, ErrEmptyInput
	}

	table.Rows = make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(table.Columns))
		for k, v := range rec {
			row[index[k]] = v
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// decodeObject reads one flat JSON object, keeping key order.
func decodeObject(line []byte) ([]string, map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected a JSON object")
	}
	var keys []string
	rec := make(map[string]string)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("invalid JSON: %w", err)
		}
		key, _ := tok.(string)
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return nil, nil, fmt.Errorf("invalid JSON value for %q: %w", key, err)
		}
		switch val := v.(type) {
		case nil:
			rec[key] = ""
		case json.Number:
			rec[key] = val.String()
		case string:
			rec[key] = val
		default:
			return nil, nil, fmt.Errorf("unexpected value type %T for %q", v, key)
		}
		keys = append(keys, key)
	}
	return keys, rec, nil
}

// ─── Documents ────────────────────────────────────────────────────────────────

// envelope is the subset of a rendered Result needed to unwrap a document.
type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// ReadDocument reads one JSON document. Both a bare (parsed or merged)
// document and a `--format json` result envelope of kind "document" are
// accepted.
func ReadDocument(r io.Reader) (*model.MergedDocument, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyInput
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Kind == model.KindDocument && len(env.Data) > 0 {
		data = env.Data
	}
	var doc model.MergedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return &doc, nil
}

// WriteDocument writes doc as indented JSON.
func WriteDocument(w io.Writer, doc *model.MergedDocument) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// ReadTable reads a table from r, detecting CSV by its header line.
func ReadTable(r io.Reader) (model.TabularExport, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(export.TimestampColumn) + 1)
	if strings.HasPrefix(string(head), export.TimestampColumn) {
		return export.ReadCSV(br)
	}
	return ReadRows(br)
}

// IsTTY returns true if stdout is a terminal (not a pipe).
func IsTTY() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
