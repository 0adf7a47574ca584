package clock

import (
	"testing"
	"time"
)

func TestDayBounds(t *testing.T) {
	tehran := time.FixedZone("IRST", 3*3600+1800)

	tests := []struct {
		name      string
		at        time.Time
		loc       *time.Location
		wantStart time.Time
	}{
		{
			name:      "utc midday",
			at:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			loc:       time.UTC,
			wantStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "late utc is next local day",
			at:        time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC),
			loc:       tehran,
			wantStart: time.Date(2026, 3, 2, 0, 0, 0, 0, tehran),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := DayBounds(tt.at, tt.loc)
			if !start.Equal(tt.wantStart) {
				t.Fatalf("start = %v, want %v", start, tt.wantStart)
			}
			if got := end.Sub(start); got != 24*time.Hour {
				t.Fatalf("day length = %v", got)
			}
		})
	}
}

func TestFixedAdvance(t *testing.T) {
	f := &Fixed{T: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	f.Advance(time.Hour)
	if f.Now().Hour() != 1 {
		t.Fatalf("got %v", f.Now())
	}
}
