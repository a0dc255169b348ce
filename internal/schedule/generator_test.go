package schedule

import (
	"testing"
	"time"

	"cadenza/internal/core"
)

func collect(t *testing.T, g *Generator, r core.Rule, anchor core.Date, w Window, excluded []core.Date) []string {
	t.Helper()
	var out []string
	for d := range g.OccurrencesExcluding(r, anchor, w, excluded) {
		out = append(out, d.String())
		if len(out) > 500 {
			t.Fatal("sequence did not terminate")
		}
	}
	return out
}

func equalDates(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestWeeklyWithEndDate(t *testing.T) {
	g := New()
	anchor := core.NewDate(2024, 1, 15) // a Monday
	r := core.Rule{
		Every:   core.RepeatWeekly,
		Weekday: time.Monday,
		EndDate: core.NewDate(2024, 2, 15),
	}
	w := Window{Start: core.NewDate(2024, 1, 1), End: core.NewDate(2024, 3, 1)}

	equalDates(t, collect(t, g, r, anchor, w, nil), []string{
		"2024-01-15", "2024-01-22", "2024-01-29", "2024-02-05", "2024-02-12",
	})
}

func TestWeeklyAnchorNotOnWeekday(t *testing.T) {
	g := New()
	// Anchor on a Wednesday, rule fires on Mondays: first occurrence is the
	// following Monday, never before the anchor.
	anchor := core.NewDate(2024, 1, 17)
	r := core.Rule{Every: core.RepeatWeekly, Weekday: time.Monday}
	w := Window{Start: core.NewDate(2024, 1, 1), End: core.NewDate(2024, 2, 5)}

	equalDates(t, collect(t, g, r, anchor, w, nil), []string{
		"2024-01-22", "2024-01-29", "2024-02-05",
	})
}

func TestBiWeeklyGridAnchoredToFirstOccurrence(t *testing.T) {
	g := New()
	anchor := core.NewDate(2024, 1, 15) // Monday
	r := core.Rule{Every: core.RepeatBiWeekly, Weekday: time.Monday}
	w := Window{Start: core.NewDate(2024, 1, 1), End: core.NewDate(2024, 3, 1)}

	equalDates(t, collect(t, g, r, anchor, w, nil), []string{
		"2024-01-15", "2024-01-29", "2024-02-12", "2024-02-26",
	})
}

func TestSemiMonthlyClampsShortMonths(t *testing.T) {
	g := New()
	anchor := core.NewDate(2024, 1, 15)
	r := core.Rule{Every: core.RepeatSemiMonthly, FirstDay: 31, SecondDay: 15}
	w := Window{Start: core.NewDate(2024, 1, 1), End: core.NewDate(2024, 3, 31)}

	// Days emit in calendar order inside each month; day 31 clamps to the
	// leap February's 29th.
	equalDates(t, collect(t, g, r, anchor, w, nil), []string{
		"2024-01-15", "2024-01-31",
		"2024-02-15", "2024-02-29",
		"2024-03-15", "2024-03-31",
	})
}

func TestSemiMonthlyCollisionEmitsOnce(t *testing.T) {
	g := New()
	anchor := core.NewDate(2023, 2, 1)
	r := core.Rule{Every: core.RepeatSemiMonthly, FirstDay: 28, SecondDay: 30}
	w := Window{Start: anchor, End: core.NewDate(2023, 3, 31)}

	// Both days clamp to Feb 28 in a non-leap year; the date appears once.
	equalDates(t, collect(t, g, r, anchor, w, nil), []string{
		"2023-02-28",
		"2023-03-28", "2023-03-30",
	})
}

func TestMonthlyEndOfMonthClamping(t *testing.T) {
	g := New()
	anchor := core.NewDate(2024, 1, 31)
	r := core.Rule{Every: core.RepeatMonthly}
	w := Window{Start: anchor, End: core.NewDate(2024, 5, 31)}

	equalDates(t, collect(t, g, r, anchor, w, nil), []string{
		"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30", "2024-05-31",
	})
}

func TestQuarterlyAndAnnually(t *testing.T) {
	g := New()
	anchor := core.NewDate(2024, 2, 29)

	q := collect(t, g, core.Rule{Every: core.RepeatQuarterly}, anchor,
		Window{Start: anchor, End: core.NewDate(2024, 12, 31)}, nil)
	equalDates(t, q, []string{"2024-02-29", "2024-05-29", "2024-08-29", "2024-11-29"})

	a := collect(t, g, core.Rule{Every: core.RepeatAnnually}, anchor,
		Window{Start: anchor, End: core.NewDate(2026, 12, 31)}, nil)
	// Leap-day anchor clamps to Feb 28 in common years.
	equalDates(t, a, []string{"2024-02-29", "2025-02-28", "2026-02-28"})
}

func TestNoneYieldsOnlyAnchor(t *testing.T) {
	g := New()
	anchor := core.NewDate(2024, 6, 10)
	w := Window{Start: core.NewDate(2024, 1, 1), End: core.NewDate(2024, 12, 31)}

	equalDates(t, collect(t, g, core.Rule{Every: core.RepeatNone}, anchor, w, nil),
		[]string{"2024-06-10"})

	// Anchor outside the window projects to nothing.
	late := Window{Start: core.NewDate(2024, 7, 1), End: core.NewDate(2024, 12, 31)}
	if got := collect(t, g, core.Rule{Every: core.RepeatNone}, anchor, late, nil); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}

func TestDailyWindowClipping(t *testing.T) {
	g := New()
	anchor := core.NewDate(2024, 1, 1)
	r := core.Rule{Every: core.RepeatDaily}
	w := Window{Start: core.NewDate(2024, 1, 29), End: core.NewDate(2024, 2, 2)}

	equalDates(t, collect(t, g, r, anchor, w, nil), []string{
		"2024-01-29", "2024-01-30", "2024-01-31", "2024-02-01", "2024-02-02",
	})
}

func TestRuleEndDateTightensWindow(t *testing.T) {
	g := New()
	anchor := core.NewDate(2024, 1, 1)
	r := core.Rule{Every: core.RepeatDaily, EndDate: core.NewDate(2024, 1, 3)}
	w := Window{Start: anchor, End: core.NewDate(2024, 12, 31)}

	equalDates(t, collect(t, g, r, anchor, w, nil), []string{
		"2024-01-01", "2024-01-02", "2024-01-03",
	})
}

func TestExclusionsSkipDates(t *testing.T) {
	g := New()
	anchor := core.NewDate(2024, 1, 15)
	r := core.Rule{Every: core.RepeatWeekly, Weekday: time.Monday}
	w := Window{Start: anchor, End: core.NewDate(2024, 2, 12)}
	excluded := []core.Date{core.NewDate(2024, 1, 22), core.NewDate(2024, 2, 5)}

	equalDates(t, collect(t, g, r, anchor, w, excluded), []string{
		"2024-01-15", "2024-01-29", "2024-02-12",
	})
}

func TestCustomWeeklyByDay(t *testing.T) {
	g := New()
	anchor := core.NewDate(2024, 1, 15) // Monday
	r := core.Rule{Every: core.RepeatCustom, Text: "FREQ=WEEKLY;BYDAY=MO,WE;UNTIL=20240131"}
	w := Window{Start: core.NewDate(2024, 1, 1), End: core.NewDate(2024, 3, 1)}

	equalDates(t, collect(t, g, r, anchor, w, nil), []string{
		"2024-01-15", "2024-01-17",
		"2024-01-22", "2024-01-24",
		"2024-01-29", "2024-01-31",
	})
}

func TestCustomWeeklyByDayOrderWithSundayWeekStart(t *testing.T) {
	// With weeks starting on Sunday, SU precedes WE inside each week.
	g := NewWithConfig(Config{WeekStart: time.Sunday})
	anchor := core.NewDate(2024, 1, 7) // Sunday
	r := core.Rule{Every: core.RepeatCustom, Text: "FREQ=WEEKLY;BYDAY=SU,WE"}
	w := Window{Start: anchor, End: core.NewDate(2024, 1, 20)}

	equalDates(t, collect(t, g, r, anchor, w, nil), []string{
		"2024-01-07", "2024-01-10",
		"2024-01-14", "2024-01-17",
	})
}

func TestCustomMonthlyByMonthDay(t *testing.T) {
	g := New()
	anchor := core.NewDate(2024, 1, 20)
	r := core.Rule{Every: core.RepeatCustom, Text: "FREQ=MONTHLY;BYMONTHDAY=5"}
	w := Window{Start: core.NewDate(2024, 1, 1), End: core.NewDate(2024, 4, 30)}

	// The first on-rule date after the anchor is in February; January's 5th
	// is before the anchor and never emitted.
	equalDates(t, collect(t, g, r, anchor, w, nil), []string{
		"2024-02-05", "2024-03-05", "2024-04-05",
	})
}

func TestCustomDaily(t *testing.T) {
	g := New()
	anchor := core.NewDate(2024, 3, 1)
	r := core.Rule{Every: core.RepeatCustom, Text: "FREQ=DAILY;UNTIL=20240304"}
	w := Window{Start: anchor}

	equalDates(t, collect(t, g, r, anchor, w, nil), []string{
		"2024-03-01", "2024-03-02", "2024-03-03", "2024-03-04",
	})
}

func TestCustomUnparsableTextProjectsNothing(t *testing.T) {
	g := New()
	anchor := core.NewDate(2024, 1, 1)
	r := core.Rule{Every: core.RepeatCustom, Text: "FREQ=WEEKLY;UNTIL=garbage"}
	w := Window{Start: anchor, End: core.NewDate(2024, 12, 31)}

	if got := collect(t, g, r, anchor, w, nil); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}

func TestSequenceIsRestartable(t *testing.T) {
	g := New()
	anchor := core.NewDate(2024, 1, 15)
	r := core.Rule{Every: core.RepeatWeekly, Weekday: time.Monday}
	w := Window{Start: anchor, End: core.NewDate(2024, 2, 12)}

	seq := g.Occurrences(r, anchor, w)
	first := 0
	for range seq {
		first++
	}
	second := 0
	for range seq {
		second++
	}
	if first != second || first == 0 {
		t.Fatalf("restart changed output: first=%d second=%d", first, second)
	}
}

func TestOutputIsAscendingAndInsideWindow(t *testing.T) {
	g := New()
	anchor := core.NewDate(2024, 1, 10)
	w := Window{Start: core.NewDate(2024, 1, 1), End: core.NewDate(2024, 6, 30)}

	rules := []core.Rule{
		{Every: core.RepeatDaily},
		{Every: core.RepeatWeekly, Weekday: time.Thursday},
		{Every: core.RepeatBiWeekly, Weekday: time.Thursday},
		{Every: core.RepeatSemiMonthly, FirstDay: 1, SecondDay: 15},
		{Every: core.RepeatMonthly},
		{Every: core.RepeatQuarterly},
		{Every: core.RepeatCustom, Text: "FREQ=WEEKLY;BYDAY=TU,FR"},
	}
	for _, r := range rules {
		var prev core.Date
		for d := range g.Occurrences(r, anchor, w) {
			if d.Before(anchor) || d.Before(w.Start) || d.After(w.End) {
				t.Fatalf("%s: %s escapes window", r.Every, d)
			}
			if !prev.IsZero() && !d.After(prev) {
				t.Fatalf("%s: %s not after %s", r.Every, d, prev)
			}
			prev = d
		}
	}
}
