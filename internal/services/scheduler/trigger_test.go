package scheduler

import (
	"testing"
	"time"
)

func TestParseCronWeekdayMornings(t *testing.T) {
	t.Parallel()
	sched, err := ParseCron("0 7 * * MON-FRI")
	if err != nil {
		t.Fatalf("ParseCron: %v", err)
	}

	// Wednesday 06:00 fires the same day at 07:00.
	wed := time.Date(2026, 3, 4, 6, 0, 0, 0, time.UTC)
	if next := sched.Next(wed); !next.Equal(time.Date(2026, 3, 4, 7, 0, 0, 0, time.UTC)) {
		t.Fatalf("Next(wed 06:00) = %v, want wed 07:00", next)
	}

	// Saturday skips to Monday 07:00.
	sat := time.Date(2026, 3, 7, 8, 0, 0, 0, time.UTC)
	if next := sched.Next(sat); !next.Equal(time.Date(2026, 3, 9, 7, 0, 0, 0, time.UTC)) {
		t.Fatalf("Next(sat) = %v, want mon 07:00", next)
	}
}

func TestParseCronFieldSyntax(t *testing.T) {
	t.Parallel()
	valid := []string{
		"0 7 * * *",
		"*/15 9-17 * * *",
		"30 22 1,15 * *",
		"0 8 * JAN-MAR SUN",
	}
	for _, spec := range valid {
		if _, err := ParseCron(spec); err != nil {
			t.Errorf("ParseCron(%q) error: %v", spec, err)
		}
	}
}

func TestParseCronInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		spec string
	}{
		{name: "empty", spec: ""},
		{name: "blank", spec: "   "},
		{name: "word", spec: "invalid"},
		{name: "four fields", spec: "0 7 * *"},
		{name: "six fields", spec: "0 0 7 * * *"},
		{name: "garbage fields", spec: "a b c d e"},
		{name: "minute out of range", spec: "61 7 * * *"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCron(tt.spec); err == nil {
				t.Fatalf("ParseCron(%q) succeeded, want error", tt.spec)
			}
		})
	}
}
