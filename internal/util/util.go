// Package util provides shared utilities: API time formats, value
// formatting, parameter parsing and error aggregation.
package util

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ─── API Time Formats ─────────────────────────────────────────────────────────

// APITimeLayout is the yyyyMMddHHmm form used by periodStart/periodEnd.
const APITimeLayout = "200601021504"

// docTimeLayouts are the forms seen in document timeInterval elements.
var docTimeLayouts = []string{
	"2006-01-02T15:04Z07:00",
	time.RFC3339,
	time.RFC3339Nano,
}

// ParseAPITime parses a yyyyMMddHHmm string as UTC.
func ParseAPITime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(APITimeLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid API time %q: expected yyyyMMddHHmm", s)
	}
	return t, nil
}

// FormatAPITime formats t (converted to UTC) as yyyyMMddHHmm.
func FormatAPITime(t time.Time) string {
	return t.UTC().Format(APITimeLayout)
}

// ParseDocTime parses a document timestamp such as 2024-01-01T00:00Z.
func ParseDocTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range docTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid document time %q", s)
}

// FormatTimestamp is the canonical timestamp form of exported rows.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseDate parses a YYYY-MM-DD or yyyyMMddHHmm string into a UTC time.
// CLI flags accept both.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) == len(APITimeLayout) {
		return ParseAPITime(s)
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or yyyyMMddHHmm", s)
	}
	return t, nil
}

// ─── Value Formatting ─────────────────────────────────────────────────────────

// FormatValue formats a float64 without trailing zeros. NaN renders empty.
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseValue parses a cell value; empty or unparseable strings yield NaN.
func ParseValue(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// ─── Parameters ───────────────────────────────────────────────────────────────

// ParseParams turns key=value pairs into a parameter map.
func ParseParams(pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected key=value", p)
		}
		params[k] = strings.TrimSpace(v)
	}
	return params, nil
}

// CloneParams returns a shallow copy of params.
func CloneParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

// SortedKeys returns the keys of params in lexical order.
func SortedKeys(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ─── Error Helpers ────────────────────────────────────────────────────────────

// MultiError collects multiple errors and presents them as one.
type MultiError struct {
	Errors []error
}

func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}

func (m *MultiError) Error() string {
	msgs := make([]string, len(m.Errors))
	for i, e := range m.Errors {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes the collected errors to errors.Is / errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}
