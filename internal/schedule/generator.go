// Package schedule projects recurrence rules onto concrete occurrence
// dates. Projection is pure and lazy: sequences are generated on demand,
// restartable, and never materialize a whole window, so callers can ask for
// arbitrarily wide ranges (calendar rendering, multi-year previews) without
// cost up front.
package schedule

import (
	"iter"
	"time"

	"cadenza/internal/core"
	"cadenza/internal/rule"
)

// Window is the query range of a projection. A zero End leaves the window
// open-ended; Start is always required by callers that want bounded output.
type Window struct {
	Start core.Date
	End   core.Date
}

// Config carries the fixed reference calendar used for weekly stepping, so
// projections are deterministic across locales.
type Config struct {
	WeekStart time.Weekday
}

// DefaultConfig matches the presentation default (weeks start on Monday).
var DefaultConfig = Config{WeekStart: time.Monday}

// Generator projects rules onto occurrence dates. It holds no mutable
// state; one instance can serve concurrent callers.
type Generator struct {
	cfg Config
}

func New() *Generator {
	return NewWithConfig(DefaultConfig)
}

func NewWithConfig(cfg Config) *Generator {
	return &Generator{cfg: cfg}
}

// Occurrences returns the ascending, deduplicated sequence of dates the
// rule produces within window, on or after anchor and on or before the
// rule's end date when one is set.
func (g *Generator) Occurrences(r core.Rule, anchor core.Date, w Window) iter.Seq[core.Date] {
	return g.OccurrencesExcluding(r, anchor, w, nil)
}

// OccurrencesExcluding is Occurrences with instance-deletion exclusions
// applied: any date in excluded is skipped. The repository view and the
// generator must agree on exclusions, so mutation code always projects
// through this entry point.
func (g *Generator) OccurrencesExcluding(r core.Rule, anchor core.Date, w Window, excluded []core.Date) iter.Seq[core.Date] {
	skip := make(map[string]bool, len(excluded))
	for _, d := range excluded {
		skip[d.String()] = true
	}

	end := w.End
	if !r.EndDate.IsZero() && (end.IsZero() || r.EndDate.Before(end)) {
		end = r.EndDate
	}

	candidates := g.candidates(r, anchor)

	return func(yield func(core.Date) bool) {
		for d := range candidates {
			if !end.IsZero() && d.After(end) {
				return
			}
			if d.Before(anchor) {
				continue
			}
			if !w.Start.IsZero() && d.Before(w.Start) {
				continue
			}
			if skip[d.String()] {
				continue
			}
			if !yield(d) {
				return
			}
		}
	}
}

// candidates yields the raw ascending date stream of a rule variant,
// unbounded and unfiltered. The driver in OccurrencesExcluding applies
// anchor, window, end date and exclusions.
func (g *Generator) candidates(r core.Rule, anchor core.Date) iter.Seq[core.Date] {
	switch r.Every {
	case "", core.RepeatNone:
		return func(yield func(core.Date) bool) {
			yield(anchor)
		}

	case core.RepeatDaily:
		return dailyFrom(anchor)

	case core.RepeatWeekly:
		return weekdayStep(firstOnOrAfter(anchor, r.Weekday), 7)

	case core.RepeatBiWeekly:
		// Anchored to the series' first occurrence: the 14-day grid starts
		// at the first matching weekday, not at an arbitrary even week.
		return weekdayStep(firstOnOrAfter(anchor, r.Weekday), 14)

	case core.RepeatSemiMonthly:
		return semiMonthly(anchor, r.FirstDay, r.SecondDay)

	case core.RepeatMonthly:
		return monthStep(anchor, 1, anchor.Day())

	case core.RepeatQuarterly:
		return monthStep(anchor, 3, anchor.Day())

	case core.RepeatAnnually:
		return monthStep(anchor, 12, anchor.Day())

	case core.RepeatCustom:
		return g.custom(r.Text, anchor)

	default:
		return func(yield func(core.Date) bool) {}
	}
}

func dailyFrom(start core.Date) iter.Seq[core.Date] {
	return func(yield func(core.Date) bool) {
		for d := start; ; d = d.AddDays(1) {
			if !yield(d) {
				return
			}
		}
	}
}

// firstOnOrAfter returns d itself when it already falls on the target
// weekday; the anchor is never silently shifted.
func firstOnOrAfter(d core.Date, weekday time.Weekday) core.Date {
	offset := (int(weekday) - int(d.Time.Weekday()) + 7) % 7
	return d.AddDays(offset)
}

func weekdayStep(start core.Date, stepDays int) iter.Seq[core.Date] {
	return func(yield func(core.Date) bool) {
		for d := start; ; d = d.AddDays(stepDays) {
			if !yield(d) {
				return
			}
		}
	}
}

func monthStep(anchor core.Date, stepMonths, day int) iter.Seq[core.Date] {
	return func(yield func(core.Date) bool) {
		for i := 0; ; i += stepMonths {
			if !yield(anchor.AddMonths(i, day)) {
				return
			}
		}
	}
}

// semiMonthly walks months from the anchor's month, emitting both target
// days in calendar order. Short months clamp to their last day; if clamping
// collapses the two targets onto the same date it is emitted once.
func semiMonthly(anchor core.Date, firstDay, secondDay int) iter.Seq[core.Date] {
	year, month, _ := anchor.Time.Date()
	lo, hi := firstDay, secondDay
	if hi < lo {
		lo, hi = hi, lo
	}

	return func(yield func(core.Date) bool) {
		for i := 0; ; i++ {
			a := core.ClampedDate(year, int(month)+i, lo)
			b := core.ClampedDate(year, int(month)+i, hi)
			if !yield(a) {
				return
			}
			if !b.Equal(a) && !yield(b) {
				return
			}
		}
	}
}

// custom interprets decoded RuleText. Text that fails even the lenient
// decode projects to nothing; validation rejects such rules before they are
// persisted, so this only guards historical data.
func (g *Generator) custom(text string, anchor core.Date) iter.Seq[core.Date] {
	cr, err := rule.Decode(text)
	if err != nil {
		return func(yield func(core.Date) bool) {}
	}

	var inner iter.Seq[core.Date]
	switch cr.Freq {
	case rule.FreqDaily:
		inner = dailyFrom(anchor)

	case rule.FreqWeekly:
		if len(cr.ByDay) == 0 {
			inner = weekdayStep(firstOnOrAfter(anchor, anchor.Time.Weekday()), 7)
			break
		}
		inner = g.weeklyByDay(anchor, cr.ByDay)

	default: // FreqMonthly, also the lenient-decode fallback
		day := cr.ByMonthDay
		if day == 0 {
			day = anchor.Day()
		}
		inner = monthStep(core.NewDate(anchor.Year(), int(anchor.Month()), 1), 1, day)
	}

	if cr.Until.IsZero() {
		return inner
	}
	return func(yield func(core.Date) bool) {
		for d := range inner {
			if d.After(cr.Until) {
				return
			}
			if !yield(d) {
				return
			}
		}
	}
}

// weeklyByDay emits one pass per listed weekday per week, week by week from
// the configured week start, so multi-day rules come out in calendar order.
func (g *Generator) weeklyByDay(anchor core.Date, days []time.Weekday) iter.Seq[core.Date] {
	inWeek := [7]bool{}
	for _, day := range days {
		inWeek[day] = true
	}

	back := (int(anchor.Time.Weekday()) - int(g.cfg.WeekStart) + 7) % 7
	weekStart := anchor.AddDays(-back)

	return func(yield func(core.Date) bool) {
		for week := weekStart; ; week = week.AddDays(7) {
			for i := 0; i < 7; i++ {
				d := week.AddDays(i)
				if !inWeek[d.Time.Weekday()] {
					continue
				}
				if !yield(d) {
					return
				}
			}
		}
	}
}
