package slots

import (
	"errors"
	"testing"
	"time"

	"github.com/workwork-1/projectbotsalon/pkg/utils/errs"
)

func starts(list []Slot) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.Start.String())
	}
	return out
}

func TestAvailable_SkipsOverlapWithExistingBooking(t *testing.T) {
	w := Window{Start: MustClock("10:00"), End: MustClock("19:00")}
	busy := []Interval{{Start: MustClock("10:00"), End: MustClock("11:00")}}

	got := Available(w, 30, DefaultStep, busy)
	if len(got) == 0 {
		t.Fatal("expected slots")
	}
	if got[0].Start != MustClock("11:00") {
		t.Fatalf("expected first slot 11:00, got %s", got[0].Start)
	}
	if Includes(got, MustClock("10:45")) {
		t.Fatal("10:45 overlaps [10:00,11:00) and must not be offered")
	}
	if got[0].End != MustClock("11:30") {
		t.Fatalf("expected first slot to end at 11:30, got %s", got[0].End)
	}
	last := got[len(got)-1]
	if last.Start != MustClock("18:30") || last.End != MustClock("19:00") {
		t.Fatalf("expected last slot 18:30-19:00, got %s-%s", last.Start, last.End)
	}
	// 11:00..18:30 in 15 minute steps.
	if len(got) != 31 {
		t.Fatalf("expected 31 slots, got %d: %v", len(got), starts(got))
	}
}

func TestAvailable_Table(t *testing.T) {
	tests := []struct {
		name     string
		window   Window
		duration int
		step     int
		busy     []Interval
		want     []string
	}{
		{
			name:     "exact fit",
			window:   Window{MustClock("10:00"), MustClock("11:00")},
			duration: 60,
			step:     15,
			want:     []string{"10:00"},
		},
		{
			name:     "too short",
			window:   Window{MustClock("10:00"), MustClock("10:45")},
			duration: 60,
			step:     15,
			want:     []string{},
		},
		{
			name:     "empty window",
			window:   Window{MustClock("10:00"), MustClock("10:00")},
			duration: 15,
			step:     15,
			want:     []string{},
		},
		{
			name:     "booking in the middle",
			window:   Window{MustClock("10:00"), MustClock("12:00")},
			duration: 30,
			step:     15,
			busy:     []Interval{{MustClock("10:45"), MustClock("11:15")}},
			want:     []string{"10:00", "10:15", "11:15", "11:30"},
		},
		{
			name:     "adjacent bookings do not block",
			window:   Window{MustClock("10:00"), MustClock("11:00")},
			duration: 30,
			step:     30,
			busy:     []Interval{{MustClock("09:00"), MustClock("10:00")}, {MustClock("11:00"), MustClock("12:00")}},
			want:     []string{"10:00", "10:30"},
		},
		{
			name:     "fully booked",
			window:   Window{MustClock("10:00"), MustClock("12:00")},
			duration: 15,
			step:     15,
			busy:     []Interval{{MustClock("10:00"), MustClock("12:00")}},
			want:     []string{},
		},
		{
			name:     "custom step",
			window:   Window{MustClock("09:00"), MustClock("10:00")},
			duration: 20,
			step:     20,
			want:     []string{"09:00", "09:20", "09:40"},
		},
		{
			name:     "non-positive duration",
			window:   Window{MustClock("09:00"), MustClock("10:00")},
			duration: 0,
			step:     15,
			want:     []string{},
		},
		{
			name:     "non-positive step",
			window:   Window{MustClock("09:00"), MustClock("10:00")},
			duration: 15,
			step:     0,
			want:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := starts(Available(tt.window, tt.duration, tt.step, tt.busy))
			if len(got) != len(tt.want) {
				t.Fatalf("Available() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Available() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestAvailable_AscendingAndInsideWindow(t *testing.T) {
	w := Window{Start: MustClock("08:30"), End: MustClock("17:10")}
	busy := []Interval{
		{MustClock("09:00"), MustClock("09:40")},
		{MustClock("13:05"), MustClock("14:00")},
	}
	got := Available(w, 45, DefaultStep, busy)
	for i, s := range got {
		if !w.Contains(s.Start, s.End) {
			t.Fatalf("slot %s-%s outside window", s.Start, s.End)
		}
		for _, b := range busy {
			if b.Overlaps(s.Start, s.End) {
				t.Fatalf("slot %s-%s overlaps busy %s-%s", s.Start, s.End, b.Start, b.End)
			}
		}
		if i > 0 && got[i-1].Start >= s.Start {
			t.Fatalf("slots not ascending at %d", i)
		}
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{"10:00", 600, false},
		{"00:00", 0, false},
		{"23:59", 23*60 + 59, false},
		{"09:30", 570, false},
		{"9:30", 0, true},
		{"10:0", 0, true},
		{" 10:00", 0, true},
		{"24:00", 0, true},
		{"10-00", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				if !errors.Is(err, errs.ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClock() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseClock() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestClockString(t *testing.T) {
	if got := Clock(9*60 + 5).String(); got != "09:05" {
		t.Fatalf("String() = %q", got)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-02")
	if err != nil {
		t.Fatalf("ParseDate() error = %v", err)
	}
	if !d.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("ParseDate() = %v", d)
	}
	if _, err := ParseDate("02.03.2026"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("MSK", 3*3600)
	got := Day(time.Date(2026, 3, 2, 23, 30, 0, 0, loc))
	if !got.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Day() = %v", got)
	}
}
