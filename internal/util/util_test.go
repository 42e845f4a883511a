package util_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/derickschaefer/gridfetch/internal/util"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2024-01-15", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), false},
		{"202401151330", time.Date(2024, 1, 15, 13, 30, 0, 0, time.UTC), false},
		{" 2024-01-15 ", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), false},
		{"15/01/2024", time.Time{}, true},
		{"", time.Time{}, true},
	}
	for _, c := range cases {
		got, err := util.ParseDate(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseDate(%q): expected error", c.in)
			}
			continue
		}
		if err != nil || !got.Equal(c.want) {
			t.Errorf("ParseDate(%q) = %v, %v; want %v", c.in, got, err, c.want)
		}
	}
}

func TestAPITimeRoundTrip(t *testing.T) {
	ts := time.Date(2023, 12, 31, 23, 0, 0, 0, time.FixedZone("CET", 3600))
	s := util.FormatAPITime(ts)
	if s != "202312312200" {
		t.Fatalf("FormatAPITime = %q, want UTC 202312312200", s)
	}
	back, err := util.ParseAPITime(s)
	if err != nil || !back.Equal(ts) {
		t.Errorf("ParseAPITime(%q) = %v, %v", s, back, err)
	}
}

func TestParseDocTime(t *testing.T) {
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-01-01T00:00Z", "2024-01-01T00:00:00Z", "2024-01-01T01:00:00+01:00"} {
		got, err := util.ParseDocTime(s)
		if err != nil || !got.Equal(want) {
			t.Errorf("ParseDocTime(%q) = %v, %v", s, got, err)
		}
	}
	if _, err := util.ParseDocTime("2024-01-01"); err == nil {
		t.Error("date without time should be rejected")
	}
}

func TestFormatAndParseValue(t *testing.T) {
	if got := util.FormatValue(6050.5); got != "6050.5" {
		t.Errorf("FormatValue = %q", got)
	}
	if got := util.FormatValue(100); got != "100" {
		t.Errorf("FormatValue(100) = %q", got)
	}
	if got := util.FormatValue(math.NaN()); got != "" {
		t.Errorf("FormatValue(NaN) = %q, want empty", got)
	}
	if v := util.ParseValue(" 12.5 "); v != 12.5 {
		t.Errorf("ParseValue = %v", v)
	}
	if v := util.ParseValue(""); !math.IsNaN(v) {
		t.Errorf("ParseValue(empty) = %v, want NaN", v)
	}
	if v := util.ParseValue("n/a"); !math.IsNaN(v) {
		t.Errorf("ParseValue(n/a) = %v, want NaN", v)
	}
}

func TestParseParams(t *testing.T) {
	got, err := util.ParseParams([]string{"documentType=A65", "outBiddingZone_Domain=10YCZ-CEPS-----N", "empty="})
	if err != nil {
		t.Fatalf("ParseParams: %v", err)
	}
	if got["documentType"] != "A65" || got["outBiddingZone_Domain"] != "10YCZ-CEPS-----N" {
		t.Errorf("unexpected params %v", got)
	}
	if v, ok := got["empty"]; !ok || v != "" {
		t.Errorf("empty value should be kept, got %q %v", v, ok)
	}
	for _, bad := range []string{"novalue", "=x"} {
		if _, err := util.ParseParams([]string{bad}); err == nil {
			t.Errorf("ParseParams(%q): expected error", bad)
		}
	}
}

func TestCloneParamsAndSortedKeys(t *testing.T) {
	src := map[string]string{"b": "2", "a": "1"}
	cp := util.CloneParams(src)
	cp["c"] = "3"
	if _, ok := src["c"]; ok {
		t.Error("CloneParams must not share the map")
	}
	keys := util.SortedKeys(cp)
	if len(keys) != 3 || keys[0] != "a" || keys[2] != "c" {
		t.Errorf("SortedKeys = %v", keys)
	}
}

func TestMultiError(t *testing.T) {
	var m util.MultiError
	m.Add(nil)
	if m.Err() != nil {
		t.Fatal("empty MultiError should be nil")
	}
	sentinel := errors.New("boom")
	m.Add(sentinel)
	m.Add(errors.New("bang"))
	err := m.Err()
	if err == nil || err.Error() != "boom; bang" {
		t.Fatalf("Err() = %v", err)
	}
	if !errors.Is(err, sentinel) {
		t.Error("errors.Is should see collected errors")
	}
}
