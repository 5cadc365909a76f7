package utils

import (
	"testing"
	"time"
)

func TestParseSheetDate_AcceptedForms(t *testing.T) {
	want := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	cases := []string{
		"15/03/2024",
		"15/3/2024",
		"45366",
		"45366.75",
		"2024-03-15",
		"2024-03-15T10:30:00Z",
		"  2024-03-15 08:00:00 ",
	}
	for _, in := range cases {
		got := ParseSheetDate(in)
		if got == nil {
			t.Fatalf("ParseSheetDate(%q) returned nil", in)
		}
		if !got.Equal(want) {
			t.Fatalf("ParseSheetDate(%q) expected %s, got %s", in, want, got)
		}
	}
}

func TestParseSheetDate_RejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "not a date", "31/02/2024", "2024/15/03", "-5", "0", "99999999",
		"NaN", "nan", "Inf", "-Inf", "0x1p10", "1e4", "45366e0", "2024-03-15garbage", "2024-03-15/extra"} {
		if got := ParseSheetDate(in); got != nil {
			t.Fatalf("ParseSheetDate(%q) expected nil, got %s", in, got)
		}
	}
}

func TestDateOnly_DropsClockAndZone(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	in := time.Date(2024, time.March, 15, 23, 59, 0, 0, loc)
	got := DateOnly(in)
	want := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("DateOnly expected %s, got %s", want, got)
	}
}

func TestFormatDate(t *testing.T) {
	if got := FormatDate(nil); got != "" {
		t.Fatalf("FormatDate(nil) expected empty, got %q", got)
	}
	d := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	if got := FormatDate(&d); got != "2024-03-05" {
		t.Fatalf("FormatDate expected 2024-03-05, got %q", got)
	}
}
