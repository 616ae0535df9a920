package timeparsing

import (
	"testing"
	"time"
)

func TestParseCompactDuration(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		input   string
		want    time.Time
		wantErr bool
	}{
		{input: "+6h", want: time.Date(2025, 6, 15, 18, 0, 0, 0, time.UTC)},
		{input: "+1d", want: time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC)},
		{input: "3w", want: time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC)},
		{input: "+1m", want: time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC)},
		{input: "1y", want: time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)},
		{input: "-2w", want: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		{input: "+0d", want: now},
		{input: "", wantErr: true},
		{input: "+3x", wantErr: true},
		{input: "+d", wantErr: true},
		{input: "3 weeks", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCompactDuration(tt.input, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCompactDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseCompactDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseCompactDuration_MonthBoundary(t *testing.T) {
	jan31 := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)
	got, err := ParseCompactDuration("+1m", jan31)
	if err != nil {
		t.Fatal(err)
	}
	// Go normalizes Feb 31 to Mar 3.
	if want := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseNaturalLanguage(t *testing.T) {
	// Wednesday, January 15, 2025
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.Local)

	tests := []struct {
		input   string
		wantDay int
		wantMon time.Month
		wantErr bool
	}{
		{input: "tomorrow", wantMon: time.January, wantDay: 16},
		{input: "next monday", wantMon: time.January, wantDay: 20},
		{input: "in 3 days", wantMon: time.January, wantDay: 18},
		{input: "in 1 week", wantMon: time.January, wantDay: 22},
		{input: "not a date at all", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseNaturalLanguage(tt.input, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseNaturalLanguage(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Year() != 2025 || got.Month() != tt.wantMon || got.Day() != tt.wantDay {
				t.Errorf("ParseNaturalLanguage(%q) = %v, want 2025-%02d-%02d", tt.input, got, tt.wantMon, tt.wantDay)
			}
		})
	}
}

func TestParseRelativeTime_LayerPrecedence(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	got, err := ParseRelativeTime("+1d", now)
	if err != nil {
		t.Fatal(err)
	}
	if want := now.AddDate(0, 0, 1); !got.Equal(want) {
		t.Errorf("compact duration should win: got %v, want %v", got, want)
	}

	got, err = ParseRelativeTime(" 2025-02-01 ", now)
	if err != nil {
		t.Fatal(err)
	}
	if got.Month() != time.February || got.Day() != 1 {
		t.Errorf("absolute date = %v, want Feb 1", got)
	}

	if _, err := ParseRelativeTime("whenever", now); err == nil {
		t.Error("expected error for unparseable input")
	}
}

func TestParseDueDate(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "", want: ""},
		{input: "  ", want: ""},
		{input: "2024-06-01", want: "2024-06-01"},
		{input: "+3w", want: "2024-05-22"},
		{input: "30d", want: "2024-05-31"},
		{input: "2024-06-01T12:00:00Z", want: "2024-06-01"},
		{input: "someday", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDueDate(tt.input, now)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDueDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDueDate(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
