package transform_test

import (
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/gridfetch/internal/model"
	"github.com/derickschaefer/gridfetch/internal/transform"
	"github.com/derickschaefer/gridfetch/internal/util"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// quarterHourly builds a one-column table with a row every 15 minutes.
func quarterHourly(values ...string) model.TabularExport {
	tb := model.TabularExport{Columns: []string{"timestamp", "Load_MW"}}
	for i, v := range values {
		at := t0.Add(time.Duration(i) * 15 * time.Minute)
		tb.Rows = append(tb.Rows, []string{util.FormatTimestamp(at), v})
	}
	return tb
}

// hourly builds a two-column table with a row every hour.
func hourly(a, b []string) model.TabularExport {
	tb := model.TabularExport{Columns: []string{"timestamp", "A", "B"}}
	for i := range a {
		at := t0.Add(time.Duration(i) * time.Hour)
		tb.Rows = append(tb.Rows, []string{util.FormatTimestamp(at), a[i], b[i]})
	}
	return tb
}

func column(tb model.TabularExport, idx int) []string {
	out := make([]string, len(tb.Rows))
	for i, r := range tb.Rows {
		out[i] = r[idx]
	}
	return out
}

func eq(a, b []string) bool {
	return strings.Join(a, "|") == strings.Join(b, "|")
}

// ─── Resample ─────────────────────────────────────────────────────────────────

func TestResampleQuarterHourToHourlyMean(t *testing.T) {
	tb := quarterHourly("1", "2", "3", "4", "10", "20", "30", "40")
	out, err := transform.Resample(tb, transform.ResampleHourly, transform.ResampleMean)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if len(out.Rows) != 2 {
		t.Fatalf("expected 2 hourly rows, got %d", len(out.Rows))
	}
	if got := column(out, 1); !eq(got, []string{"2.5", "25"}) {
		t.Errorf("values: got %v", got)
	}
	if out.Rows[1][0] != "2024-01-01T01:00:00Z" {
		t.Errorf("bucket label: got %s", out.Rows[1][0])
	}
}

func TestResampleMethods(t *testing.T) {
	tb := quarterHourly("4", "1", "3", "2")
	tests := []struct {
		method transform.ResampleMethod
		want   string
	}{
		{transform.ResampleMean, "2.5"},
		{transform.ResampleLast, "2"},
		{transform.ResampleSum, "10"},
		{transform.ResampleMin, "1"},
		{transform.ResampleMax, "4"},
	}
	for _, tc := range tests {
		t.Run(string(tc.method), func(t *testing.T) {
			out, err := transform.Resample(tb, transform.ResampleHourly, tc.method)
			if err != nil {
				t.Fatalf("Resample: %v", err)
			}
			if out.Rows[0][1] != tc.want {
				t.Errorf("got %s, want %s", out.Rows[0][1], tc.want)
			}
		})
	}
}

func TestResampleDailyAndMonthlyBuckets(t *testing.T) {
	tb := model.TabularExport{
		Columns: []string{"timestamp", "A"},
		Rows: [][]string{
			{"2024-01-31T23:00:00Z", "1"},
			{"2024-02-01T00:00:00Z", "2"},
			{"2024-02-01T05:00:00Z", "4"},
		},
	}
	daily, err := transform.Resample(tb, transform.ResampleDaily, transform.ResampleSum)
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	if got := column(daily, 1); !eq(got, []string{"1", "6"}) {
		t.Errorf("daily: got %v", got)
	}
	monthly, err := transform.Resample(tb, transform.ResampleMonthly, transform.ResampleSum)
	if err != nil {
		t.Fatalf("monthly: %v", err)
	}
	if monthly.Rows[1][0] != "2024-02-01T00:00:00Z" {
		t.Errorf("monthly label: got %s", monthly.Rows[1][0])
	}
	annual, err := transform.Resample(tb, transform.ResampleAnnual, transform.ResampleSum)
	if err != nil {
		t.Fatalf("annual: %v", err)
	}
	if len(annual.Rows) != 1 || annual.Rows[0][1] != "7" {
		t.Errorf("annual: got %v", annual.Rows)
	}
}

func TestResampleEmptyCellsSkipped(t *testing.T) {
	out, err := transform.Resample(quarterHourly("", "2", "", "4", "", "", "", ""), transform.ResampleHourly, transform.ResampleMean)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if got := column(out, 1); !eq(got, []string{"3", ""}) {
		t.Errorf("got %v", got)
	}
}

func TestResampleDoesNotModifyInput(t *testing.T) {
	tb := quarterHourly("1", "2")
	if _, err := transform.Resample(tb, transform.ResampleHourly, transform.ResampleSum); err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if len(tb.Rows) != 2 || tb.Rows[1][1] != "2" {
		t.Errorf("input modified: %v", tb.Rows)
	}
}

func TestResampleErrors(t *testing.T) {
	tb := quarterHourly("1")
	if _, err := transform.Resample(model.TabularExport{}, transform.ResampleHourly, transform.ResampleMean); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := transform.Resample(tb, "weekly", transform.ResampleMean); err == nil {
		t.Error("expected error for unknown frequency")
	}
	if _, err := transform.Resample(tb, transform.ResampleHourly, "median"); err == nil {
		t.Error("expected error for unknown method")
	}
	tb.Rows[0][0] = "not-a-time"
	if _, err := transform.Resample(tb, transform.ResampleHourly, transform.ResampleMean); err == nil {
		t.Error("expected error for bad timestamp")
	}
}

// ─── Filter ───────────────────────────────────────────────────────────────────

func TestFilterTimeBoundsHalfOpen(t *testing.T) {
	tb := hourly([]string{"1", "2", "3", "4"}, []string{"", "", "", ""})
	out, err := transform.Filter(tb, transform.FilterOptions{
		After:  t0.Add(time.Hour),
		Before: t0.Add(3 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if got := column(out, 1); !eq(got, []string{"2", "3"}) {
		t.Errorf("got %v", got)
	}
}

func TestFilterColumns(t *testing.T) {
	tb := hourly([]string{"1", "2"}, []string{"7", "8"})
	out, err := transform.Filter(tb, transform.FilterOptions{Columns: []string{"B"}})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if !eq(out.Columns, []string{"timestamp", "B"}) {
		t.Errorf("columns: got %v", out.Columns)
	}
	if got := column(out, 1); !eq(got, []string{"7", "8"}) {
		t.Errorf("values: got %v", got)
	}
}

func TestFilterDropEmpty(t *testing.T) {
	tb := hourly([]string{"1", "", "3"}, []string{"", "", "9"})
	out, err := transform.Filter(tb, transform.FilterOptions{DropEmpty: true})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(out.Rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(out.Rows))
	}
	out, err = transform.Filter(tb, transform.FilterOptions{Columns: []string{"B"}, DropEmpty: true})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(out.Rows) != 1 {
		t.Errorf("expected 1 row with B set, got %d", len(out.Rows))
	}
}

func TestFilterNoOptionsKeepsAll(t *testing.T) {
	tb := hourly([]string{"1", ""}, []string{"", ""})
	out, err := transform.Filter(tb, transform.FilterOptions{})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(out.Rows) != 2 || len(out.Columns) != 3 {
		t.Errorf("unexpected: %+v", out)
	}
}

func TestFilterUnknownColumn(t *testing.T) {
	tb := hourly([]string{"1"}, []string{"2"})
	for _, c := range []string{"C", "timestamp"} {
		if _, err := transform.Filter(tb, transform.FilterOptions{Columns: []string{c}}); err == nil {
			t.Errorf("expected error for column %q", c)
		}
	}
}

// ─── Roll ─────────────────────────────────────────────────────────────────────

func TestRollMean(t *testing.T) {
	tb := hourly([]string{"1", "2", "3", "4"}, []string{"", "", "", ""})
	out, err := transform.Roll(tb, 2, 2, transform.RollMean)
	if err != nil {
		t.Fatalf("Roll: %v", err)
	}
	if got := column(out, 1); !eq(got, []string{"", "1.5", "2.5", "3.5"}) {
		t.Errorf("got %v", got)
	}
	if got := column(out, 2); !eq(got, []string{"", "", "", ""}) {
		t.Errorf("empty column should stay empty, got %v", got)
	}
}

func TestRollStats(t *testing.T) {
	tb := hourly([]string{"3", "1", "2"}, []string{"", "", ""})
	tests := []struct {
		stat transform.RollStat
		want string
	}{
		{transform.RollSum, "6"},
		{transform.RollMin, "1"},
		{transform.RollMax, "3"},
		{transform.RollStd, "1"},
	}
	for _, tc := range tests {
		t.Run(string(tc.stat), func(t *testing.T) {
			out, err := transform.Roll(tb, 3, 3, tc.stat)
			if err != nil {
				t.Fatalf("Roll: %v", err)
			}
			if out.Rows[2][1] != tc.want {
				t.Errorf("got %s, want %s", out.Rows[2][1], tc.want)
			}
		})
	}
}

func TestRollMinPeriodsSkipsGaps(t *testing.T) {
	tb := hourly([]string{"1", "", "3"}, []string{"", "", ""})
	out, err := transform.Roll(tb, 2, 1, transform.RollSum)
	if err != nil {
		t.Fatalf("Roll: %v", err)
	}
	if got := column(out, 1); !eq(got, []string{"1", "1", "3"}) {
		t.Errorf("got %v", got)
	}
}

func TestRollErrors(t *testing.T) {
	tb := hourly([]string{"1"}, []string{"2"})
	if _, err := transform.Roll(tb, 0, 1, transform.RollMean); err == nil {
		t.Error("expected error for zero window")
	}
	if _, err := transform.Roll(tb, 2, 3, transform.RollMean); err == nil {
		t.Error("expected error for min-periods > window")
	}
	if _, err := transform.Roll(tb, 2, 1, "median"); err == nil {
		t.Error("expected error for unknown stat")
	}
}

// ─── Composition ──────────────────────────────────────────────────────────────

func TestResampleThenFilter(t *testing.T) {
	tb := quarterHourly("1", "1", "1", "1", "2", "2", "2", "2", "3", "3", "3", "3")
	hourlyTb, err := transform.Resample(tb, transform.ResampleHourly, transform.ResampleSum)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	out, err := transform.Filter(hourlyTb, transform.FilterOptions{After: t0.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if got := column(out, 1); !eq(got, []string{"8", "12"}) {
		t.Errorf("got %v", got)
	}
}
