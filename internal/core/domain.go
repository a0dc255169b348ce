package core

import (
	"errors"
	"strings"
	"time"
)

const (
	RepeatNone        Frequency = "none"
	RepeatDaily       Frequency = "daily"
	RepeatWeekly      Frequency = "weekly"
	RepeatBiWeekly    Frequency = "biweekly"
	RepeatSemiMonthly Frequency = "semimonthly"
	RepeatMonthly     Frequency = "monthly"
	RepeatQuarterly   Frequency = "quarterly"
	RepeatAnnually    Frequency = "annually"
	RepeatCustom      Frequency = "custom"
)

const (
	KindExpense EntryKind = "expense"
	KindIncome  EntryKind = "income"
)

type (
	Frequency string

	EntryKind string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Rule describes how a series repeats. Every selects the variant; the
	// other fields are meaningful only for the variants that use them
	// (Weekday for weekly/biweekly, FirstDay/SecondDay for semimonthly,
	// Text for custom). A zero EndDate means the series is open-ended.
	Rule struct {
		Every     Frequency
		Weekday   time.Weekday
		FirstDay  int
		SecondDay int
		Text      string
		EndDate   Date
	}

	// Payload carries the domain fields of a record. The recurrence
	// machinery copies it around without interpreting it.
	Payload struct {
		Kind        EntryKind
		Amount      Money
		Description string
		Primary     string
		Secondary   string
	}

	// SeriesRecord is one persisted row of a series. A record with an empty
	// ParentID is a root and owns the authoritative Rule; children cache the
	// rule for display but are always regenerated from the root.
	SeriesRecord struct {
		ID         string
		ParentID   string
		AnchorDate Date
		Rule       Rule
		Payload    Payload
	}
)

var (
	ErrInvalidDay           = errors.New("invalid day of month")
	ErrInvalidWeekday       = errors.New("invalid weekday")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrEmptyDescription     = errors.New("empty description")
	ErrEmptyPrimary         = errors.New("empty primary category")
	ErrEmptyRuleText        = errors.New("empty custom rule text")
	ErrUnknownFrequency     = errors.New("unknown repetition frequency")
	ErrUnknownEntryKind     = errors.New("unknown entry kind")
	ErrEqualSemiMonthlyDays = errors.New("semimonthly days must differ")
	ErrEndBeforeAnchor      = errors.New("end date must be after the anchor date")
)

// NewDate creates a Date at midnight UTC. All dates in the system are
// calendar dates; time-of-day never participates in comparisons.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func (d Date) IsZero() bool { return d.Time.IsZero() }

func (d Date) Equal(o Date) bool { return d.Time.Equal(o.Time) }

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }

func (d Date) After(o Date) bool { return d.Time.After(o.Time) }

// AddDays returns the date n days later (earlier for negative n).
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time.AddDate(0, 0, n))
}

// AddMonths steps n months forward targeting day-of-month day, clamped to
// the last valid day of the target month (day 31 in February becomes the
// 28th or 29th).
func (d Date) AddMonths(n, day int) Date {
	year, month, _ := d.Time.Date()
	return ClampedDate(year, int(month)+n, day)
}

// DayBefore returns the previous calendar day.
func (d Date) DayBefore() Date { return d.AddDays(-1) }

func (d Date) String() string {
	return d.Time.Format("2006-01-02")
}

// ClampedDate builds a date clamping day to the month's last valid day.
// Month may fall outside 1..12; it is normalized the way time.Date does.
func ClampedDate(year, month, day int) Date {
	last := DaysInMonth(year, month)
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return NewDate(year, month, day)
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsRoot reports whether the record owns its series.
func (r SeriesRecord) IsRoot() bool {
	return r.ParentID == ""
}

// Repeats reports whether the rule produces more than the anchor itself.
func (r Rule) Repeats() bool {
	return r.Every != "" && r.Every != RepeatNone
}

// Validate checks the rule's structural invariants against the anchor date
// of the record that carries it. Custom rule text is only checked for
// presence here; the rule codec performs the grammar check before persistence.
func (r Rule) Validate(anchor Date) error {
	switch r.Every {
	case RepeatNone, RepeatDaily, RepeatMonthly, RepeatQuarterly, RepeatAnnually:
	case RepeatWeekly, RepeatBiWeekly:
		if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
			return ErrInvalidWeekday
		}
	case RepeatSemiMonthly:
		if r.FirstDay < 1 || r.FirstDay > 31 || r.SecondDay < 1 || r.SecondDay > 31 {
			return ErrInvalidDay
		}
		if r.FirstDay == r.SecondDay {
			return ErrEqualSemiMonthlyDays
		}
	case RepeatCustom:
		if strings.TrimSpace(r.Text) == "" {
			return ErrEmptyRuleText
		}
	default:
		return ErrUnknownFrequency
	}

	if !r.EndDate.IsZero() && !anchor.IsZero() && !r.EndDate.After(anchor) {
		return ErrEndBeforeAnchor
	}

	return nil
}

func (k EntryKind) Validate() error {
	switch k {
	case KindExpense, KindIncome:
		return nil
	default:
		return ErrUnknownEntryKind
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (p Payload) Validate() error {
	if err := p.Kind.Validate(); err != nil {
		return err
	}
	if err := p.Amount.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(p.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(p.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if strings.TrimSpace(p.Primary) == "" {
		return ErrEmptyPrimary
	}
	return nil
}

// Validate checks a record before persistence.
func (r SeriesRecord) Validate() error {
	if r.AnchorDate.IsZero() {
		return errors.New("anchor date cannot be zero")
	}
	if err := r.Payload.Validate(); err != nil {
		return err
	}
	return r.Rule.Validate(r.AnchorDate)
}
