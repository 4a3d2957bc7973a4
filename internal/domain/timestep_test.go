package domain

import (
	"errors"
	"testing"
	"time"
)

func TestMonthOf(t *testing.T) {
	tests := []struct {
		index     int
		wantYear  int
		wantMonth int
	}{
		{0, 2000, 1},
		{11, 2000, 12},
		{12, 2001, 1},
		{13, 2001, 2},
		{233, 2019, 6},
	}

	for _, tt := range tests {
		y, m := MonthOf(2000, tt.index)
		if y != tt.wantYear || m != tt.wantMonth {
			t.Errorf("MonthOf(2000, %d) = (%d, %d), want (%d, %d)", tt.index, y, m, tt.wantYear, tt.wantMonth)
		}
	}
}

func TestYearSpan(t *testing.T) {
	s := YearSpan{Start: 2001, End: 2003}
	if s.Empty() {
		t.Error("2001-2003 should not be empty")
	}
	if got := s.Years(); len(got) != 3 || got[0] != 2001 || got[2] != 2003 {
		t.Errorf("Years() = %v", got)
	}
	if !s.Contains(2002) || s.Contains(2004) {
		t.Error("Contains() mismatch")
	}

	empty := YearSpan{Start: 2003, End: 2001}
	if !empty.Empty() {
		t.Error("2003-2001 should be empty")
	}
	if empty.Years() != nil {
		t.Error("empty span should list no years")
	}
}

func TestTimeWindowBounds(t *testing.T) {
	tests := []struct {
		name      string
		window    TimeWindow
		wantStart time.Time
		wantEnd   time.Time
		wantLabel string
	}{
		{
			name:      "month",
			window:    TimeWindow{Step: StepMonth, Year: 2000, Month: 12},
			wantStart: time.Date(2000, 12, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC),
			wantLabel: "2000-12",
		},
		{
			name:      "year",
			window:    TimeWindow{Step: StepYear, Year: 2004},
			wantStart: time.Date(2004, 1, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC),
			wantLabel: "2004",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.window.Start(); !got.Equal(tt.wantStart) {
				t.Errorf("Start() = %v, want %v", got, tt.wantStart)
			}
			if got := tt.window.End(); !got.Equal(tt.wantEnd) {
				t.Errorf("End() = %v, want %v", got, tt.wantEnd)
			}
			if got := tt.window.String(); got != tt.wantLabel {
				t.Errorf("String() = %q, want %q", got, tt.wantLabel)
			}
		})
	}
}

func TestFixedRange(t *testing.T) {
	r, err := FixedRange(YearSpan{Start: 2000, End: 2001})
	if err != nil {
		t.Fatalf("FixedRange() error = %v", err)
	}

	months := r.MonthWindows()
	if len(months) != 24 {
		t.Fatalf("got %d month windows, want 24", len(months))
	}
	if months[0].String() != "2000-01" || months[23].String() != "2001-12" {
		t.Errorf("month windows = %s..%s", months[0], months[23])
	}
	if years := r.YearWindows(); len(years) != 2 {
		t.Errorf("got %d year windows, want 2", len(years))
	}

	if _, err := FixedRange(YearSpan{Start: 2002, End: 2001}); !errors.Is(err, ErrEmptyRange) {
		t.Errorf("FixedRange(reversed) error = %v, want ErrEmptyRange", err)
	}
}

func TestMonthWindowsEmpty(t *testing.T) {
	r := DateRange{MonthBase: 2000, MonthFrom: 5, MonthTo: 5}
	if got := r.MonthWindows(); got != nil {
		t.Errorf("MonthWindows() = %v, want none", got)
	}
}
