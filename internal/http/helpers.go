package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cadenza/internal/core"
	"cadenza/internal/schedule"
	"cadenza/internal/series"
	"cadenza/internal/services"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

// parseDate parses a date string in YYYY-MM-DD format.
func parseDate(dateStr string) (core.Date, error) {
	return core.ParseDate(strings.TrimSpace(dateStr))
}

func parseScope(r *http.Request) (series.Scope, error) {
	scope := series.Scope(strings.TrimSpace(r.URL.Query().Get("scope")))
	if scope == "" {
		scope = series.ScopeInstance
	}
	if err := scope.Validate(); err != nil {
		return "", fmt.Errorf("scope must be instance, future or all")
	}
	return scope, nil
}

// windowFromQuery builds a projection window from from/to query parameters,
// falling back to the configured default window.
func windowFromQuery(r *http.Request, defaultWindow services.WindowProvider) (schedule.Window, error) {
	fromStr := strings.TrimSpace(r.URL.Query().Get("from"))
	toStr := strings.TrimSpace(r.URL.Query().Get("to"))

	if fromStr == "" && toStr == "" {
		return defaultWindow(time.Now()), nil
	}

	win := defaultWindow(time.Now())
	if fromStr != "" {
		from, err := parseDate(fromStr)
		if err != nil {
			return schedule.Window{}, fmt.Errorf("invalid from date")
		}
		win.Start = from
	}
	if toStr != "" {
		to, err := parseDate(toStr)
		if err != nil {
			return schedule.Window{}, fmt.Errorf("invalid to date")
		}
		win.End = to
	}
	if !win.End.IsZero() && win.End.Before(win.Start) {
		return schedule.Window{}, fmt.Errorf("window end before start")
	}
	return win, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	default:
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
}

func toRule(p rulePayload) (core.Rule, error) {
	weekday, err := parseWeekday(p.Weekday)
	if err != nil {
		return core.Rule{}, err
	}

	rule := core.Rule{
		Every:     core.Frequency(strings.ToLower(strings.TrimSpace(p.Every))),
		Weekday:   weekday,
		FirstDay:  p.FirstDay,
		SecondDay: p.SecondDay,
		Text:      strings.TrimSpace(p.Text),
	}
	if p.EndDate != "" {
		end, err := parseDate(p.EndDate)
		if err != nil {
			return core.Rule{}, fmt.Errorf("invalid end_date")
		}
		rule.EndDate = end
	}
	return rule, nil
}

func toPayload(p entryPayload) (core.Payload, error) {
	cents, err := core.ParseDecimalToCents(strings.TrimSpace(p.Amount))
	if err != nil {
		return core.Payload{}, err
	}
	payload := core.Payload{
		Kind:        core.EntryKind(strings.ToLower(strings.TrimSpace(p.Kind))),
		Amount:      core.Money{Cents: cents},
		Description: sanitizeInput(p.Description),
		Primary:     sanitizeInput(p.Primary),
		Secondary:   sanitizeInput(p.Secondary),
	}
	if err := payload.Validate(); err != nil {
		return core.Payload{}, err
	}
	return payload, nil
}

func fromPayload(p core.Payload) entryPayload {
	return entryPayload{
		Kind:        string(p.Kind),
		Amount:      formatAmount(p.Amount),
		Description: p.Description,
		Primary:     p.Primary,
		Secondary:   p.Secondary,
	}
}

func formatAmount(m core.Money) string {
	cents := m.Cents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := fmt.Sprintf("%d.%02d", cents/100, cents%100)
	if neg {
		return "-" + s
	}
	return s
}

func toSeriesResponse(rec core.SeriesRecord) seriesResponse {
	return seriesResponse{
		ID:         rec.ID,
		ParentID:   rec.ParentID,
		AnchorDate: rec.AnchorDate.String(),
		Rule:       fromRule(rec.Rule),
		Payload:    fromPayload(rec.Payload),
	}
}

func fromRule(r core.Rule) rulePayload {
	p := rulePayload{
		Every:     string(r.Every),
		FirstDay:  r.FirstDay,
		SecondDay: r.SecondDay,
		Text:      r.Text,
	}
	if r.Every == core.RepeatWeekly || r.Every == core.RepeatBiWeekly {
		p.Weekday = strings.ToLower(r.Weekday.String())
	}
	if !r.EndDate.IsZero() {
		p.EndDate = r.EndDate.String()
	}
	return p
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
