// Package rule implements the RuleText codec: the compact textual encoding
// used for custom recurrence patterns (FREQ=WEEKLY;BYDAY=MO,WE;UNTIL=20241231).
//
// Decoding is deliberately rough. The text is stored long-term, so the
// decoder must keep opening rules written by older or newer versions:
// unknown keys are ignored and a missing or unrecognized FREQ falls back to
// monthly, flagged through CustomRule.Recognized. End dates are the one
// thing never dropped silently; a malformed UNTIL is a hard ParseError
// because series termination depends on it.
package rule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cadenza/internal/core"
)

const (
	FreqDaily   Freq = "DAILY"
	FreqWeekly  Freq = "WEEKLY"
	FreqMonthly Freq = "MONTHLY"
)

const untilLayout = "20060102"

type (
	// Freq is the base frequency of a custom rule.
	Freq string

	// CustomRule is the structured form of a RuleText string.
	CustomRule struct {
		Freq       Freq
		ByDay      []time.Weekday
		ByMonthDay int // 0 when unset, otherwise 1..31
		Until      core.Date

		// Recognized is false when Decode had to apply defaults to make
		// sense of the input. Callers that need strictness (validation
		// before persistence) reject unrecognized rules; the editor keeps
		// opening them.
		Recognized bool
	}

	// ParseError reports RuleText that is malformed beyond the lenient
	// tolerance of Decode.
	ParseError struct {
		Input string
		Key   string
		Err   error
	}
)

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse rule text %q: key %s: %v", e.Input, e.Key, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var weekdayTokens = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

var weekdayNames = [7]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// Decode parses RuleText into a CustomRule. Keys are case-insensitive and
// order-independent. Unknown keys and malformed values other than UNTIL are
// skipped, clearing Recognized instead of failing.
func Decode(s string) (CustomRule, error) {
	cr := CustomRule{Recognized: true}
	freqSeen := false

	for _, segment := range strings.Split(s, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		key, value, found := strings.Cut(segment, "=")
		if !found {
			cr.Recognized = false
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "FREQ":
			switch Freq(strings.ToUpper(value)) {
			case FreqDaily:
				cr.Freq = FreqDaily
			case FreqWeekly:
				cr.Freq = FreqWeekly
			case FreqMonthly:
				cr.Freq = FreqMonthly
			default:
				cr.Recognized = false
				continue
			}
			freqSeen = true

		case "BYDAY":
			for _, token := range strings.Split(value, ",") {
				token = strings.ToUpper(strings.TrimSpace(token))
				if token == "" {
					continue
				}
				day, ok := weekdayTokens[token]
				if !ok {
					cr.Recognized = false
					continue
				}
				if !containsWeekday(cr.ByDay, day) {
					cr.ByDay = append(cr.ByDay, day)
				}
			}

		case "BYMONTHDAY":
			day, err := strconv.Atoi(value)
			if err != nil {
				cr.Recognized = false
				continue
			}
			if day < 1 {
				day = 1
			}
			if day > 31 {
				day = 31
			}
			cr.ByMonthDay = day

		case "UNTIL":
			t, err := time.Parse(untilLayout, value)
			if err != nil {
				return CustomRule{}, &ParseError{Input: s, Key: "UNTIL", Err: err}
			}
			cr.Until = core.DateOf(t)

		default:
			// Forward/backward format drift: ignore keys we don't know.
		}
	}

	if !freqSeen {
		cr.Freq = FreqMonthly
		cr.Recognized = false
	}

	return cr, nil
}

// Encode serializes a CustomRule in canonical key order
// (FREQ;BYDAY;BYMONTHDAY;UNTIL) so stored text stays stable and diffable.
func Encode(cr CustomRule) string {
	var b strings.Builder
	b.WriteString("FREQ=")
	b.WriteString(string(cr.Freq))

	if len(cr.ByDay) > 0 {
		b.WriteString(";BYDAY=")
		for i, day := range cr.ByDay {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(weekdayNames[day])
		}
	}
	if cr.ByMonthDay != 0 {
		b.WriteString(";BYMONTHDAY=")
		b.WriteString(strconv.Itoa(cr.ByMonthDay))
	}
	if !cr.Until.IsZero() {
		b.WriteString(";UNTIL=")
		b.WriteString(cr.Until.Format(untilLayout))
	}

	return b.String()
}

// Check validates a rule before persistence: structural invariants first,
// then, for custom rules, a strict decode of the text. Unrecognized custom
// text is rejected here even though the lenient decoder would open it.
func Check(r core.Rule, anchor core.Date) error {
	if err := r.Validate(anchor); err != nil {
		return err
	}
	if r.Every != core.RepeatCustom {
		return nil
	}

	cr, err := Decode(r.Text)
	if err != nil {
		return err
	}
	if !cr.Recognized {
		return &ParseError{Input: r.Text, Key: "FREQ", Err: fmt.Errorf("unrecognized rule text")}
	}
	if !cr.Until.IsZero() && !anchor.IsZero() && !cr.Until.After(anchor) {
		return core.ErrEndBeforeAnchor
	}
	return nil
}

func containsWeekday(days []time.Weekday, day time.Weekday) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
