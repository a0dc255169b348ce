package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"cadenza/internal/core"
	"cadenza/internal/rule"
	"cadenza/internal/series"
)

type rulePayload struct {
	Every     string `json:"every"`
	Weekday   string `json:"weekday,omitempty"`
	FirstDay  int    `json:"first_day,omitempty"`
	SecondDay int    `json:"second_day,omitempty"`
	Text      string `json:"text,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

type entryPayload struct {
	Kind        string `json:"kind"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Primary     string `json:"primary"`
	Secondary   string `json:"secondary,omitempty"`
}

type createSeriesRequest struct {
	AnchorDate string       `json:"anchor_date"`
	Payload    entryPayload `json:"payload"`
	Rule       rulePayload  `json:"rule"`
}

type editSeriesRequest struct {
	Payload entryPayload `json:"payload"`
	Rule    *rulePayload `json:"rule,omitempty"`
}

type seriesResponse struct {
	ID         string       `json:"id"`
	ParentID   string       `json:"parent_id,omitempty"`
	AnchorDate string       `json:"anchor_date"`
	Rule       rulePayload  `json:"rule"`
	Payload    entryPayload `json:"payload"`
}

type occurrenceResponse struct {
	RootID string       `json:"root_id"`
	Date   string       `json:"date"`
	Entry  entryPayload `json:"payload"`
}

func (s *Server) handleCreateSeries(w http.ResponseWriter, r *http.Request) {
	var req createSeriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	anchor, err := parseDate(req.AnchorDate)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid anchor_date")
		return
	}
	payload, err := toPayload(req.Payload)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	rule, err := toRule(req.Rule)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.seriesSvc.Create(r.Context(), anchor, payload, rule)
	if err != nil {
		s.respondDomainError(w, r, "Series create error", err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleListSeries(w http.ResponseWriter, r *http.Request) {
	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")

	var (
		records []core.SeriesRecord
		err     error
	)
	if fromStr != "" || toStr != "" {
		var from, to core.Date
		if from, err = parseDate(fromStr); err != nil {
			respondError(w, http.StatusUnprocessableEntity, "invalid from date")
			return
		}
		if to, err = parseDate(toStr); err != nil {
			respondError(w, http.StatusUnprocessableEntity, "invalid to date")
			return
		}
		records, err = s.seriesSvc.Records(r.Context(), from, to)
	} else {
		records, err = s.seriesSvc.Roots(r.Context())
	}
	if err != nil {
		s.respondDomainError(w, r, "Series list error", err)
		return
	}

	out := make([]seriesResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toSeriesResponse(rec))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request) {
	rec, err := s.seriesSvc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondDomainError(w, r, "Series get error", err)
		return
	}
	respondJSON(w, http.StatusOK, toSeriesResponse(rec))
}

func (s *Server) handleSeriesOccurrences(w http.ResponseWriter, r *http.Request) {
	win, err := windowFromQuery(r, s.window)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	dates, err := s.projectionSvc.Occurrences(r.Context(), r.PathValue("id"), win)
	if err != nil {
		s.respondDomainError(w, r, "Occurrence projection error", err)
		return
	}

	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.String())
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleEditSeries(w http.ResponseWriter, r *http.Request) {
	scope, err := parseScope(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req editSeriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	payload, err := toPayload(req.Payload)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var newRule *core.Rule
	if req.Rule != nil {
		rule, err := toRule(*req.Rule)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		newRule = &rule
	}

	id, err := s.seriesSvc.Edit(r.Context(), r.PathValue("id"), payload, newRule, scope)
	if err != nil {
		s.respondDomainError(w, r, "Series edit error", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleDeleteSeries(w http.ResponseWriter, r *http.Request) {
	scope, err := parseScope(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.seriesSvc.Delete(r.Context(), r.PathValue("id"), scope); err != nil {
		s.respondDomainError(w, r, "Series delete error", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	win, err := windowFromQuery(r, s.window)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	occurrences, err := s.projectionSvc.Upcoming(r.Context(), win)
	if err != nil {
		s.respondDomainError(w, r, "Upcoming projection error", err)
		return
	}

	out := make([]occurrenceResponse, 0, len(occurrences))
	for _, o := range occurrences {
		out = append(out, occurrenceResponse{
			RootID: o.RootID,
			Date:   o.Date.String(),
			Entry:  fromPayload(o.Payload),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	year, month := parseYearMonth(r)
	if month < 1 || month > 12 {
		respondError(w, http.StatusUnprocessableEntity, "invalid month")
		return
	}

	summary, err := s.summarySvc.Period(r.Context(), year, month)
	if err != nil {
		s.respondDomainError(w, r, "Summary error", err)
		return
	}
	respondJSON(w, http.StatusOK, toSummaryResponse(summary))
}

type categoryAmountResponse struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

type summaryResponse struct {
	Year       int                      `json:"year"`
	Month      int                      `json:"month"`
	Income     string                   `json:"income"`
	Expenses   string                   `json:"expenses"`
	Net        string                   `json:"net"`
	ByCategory []categoryAmountResponse `json:"by_category"`
}

func toSummaryResponse(s core.PeriodSummary) summaryResponse {
	out := summaryResponse{
		Year:       s.Year,
		Month:      s.Month,
		Income:     formatAmount(s.Income),
		Expenses:   formatAmount(s.Expenses),
		Net:        formatAmount(s.Net()),
		ByCategory: make([]categoryAmountResponse, 0, len(s.ByCategory)),
	}
	for _, c := range s.ByCategory {
		out.ByCategory = append(out.ByCategory, categoryAmountResponse{Name: c.Name, Amount: formatAmount(c.Amount)})
	}
	return out
}

// respondDomainError maps service errors onto HTTP statuses and logs the
// unexpected ones.
func (s *Server) respondDomainError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, series.ErrNotFound):
		respondError(w, http.StatusNotFound, "series not found")
	case errors.Is(err, series.ErrStaleSeries):
		respondError(w, http.StatusConflict, "series changed concurrently, retry")
	case errors.Is(err, series.ErrUnknownScope):
		respondError(w, http.StatusBadRequest, "unknown scope")
	case isValidationError(err):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.ErrorContext(r.Context(), msg, "error", err, "method", r.Method, "url", r.URL.Path)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		core.ErrInvalidDay,
		core.ErrInvalidWeekday,
		core.ErrInvalidAmount,
		core.ErrEmptyDescription,
		core.ErrEmptyPrimary,
		core.ErrEmptyRuleText,
		core.ErrUnknownFrequency,
		core.ErrUnknownEntryKind,
		core.ErrEqualSemiMonthlyDays,
		core.ErrEndBeforeAnchor,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	var parseErr *rule.ParseError
	return errors.As(err, &parseErr)
}

func parseYearMonth(r *http.Request) (year, month int) {
	now := time.Now()
	year = now.Year()
	month = int(now.Month())
	if v := r.URL.Query().Get("year"); v != "" {
		if y, err := parseInt(v); err == nil {
			year = y
		}
	}
	if v := r.URL.Query().Get("month"); v != "" {
		if m, err := parseInt(v); err == nil {
			month = m
		}
	}
	return year, month
}
