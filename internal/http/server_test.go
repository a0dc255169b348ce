package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cadenza/internal/core"
	"cadenza/internal/schedule"
	"cadenza/internal/series"
	"cadenza/internal/services"
	"cadenza/internal/storage/memory"
)

func newTestServer(t *testing.T) (*Server, *memory.Repository) {
	t.Helper()
	repo := memory.New()
	gen := schedule.New()
	coord := series.NewCoordinator(repo, gen)
	window := func(time.Time) schedule.Window {
		return schedule.Window{Start: core.NewDate(2024, 1, 1), End: core.NewDate(2024, 3, 1)}
	}
	projection := services.NewProjectionService(repo, gen)
	seriesSvc := services.NewSeriesService(repo, coord, projection, nil, window)
	summarySvc := services.NewSummaryService(repo)
	return NewServer(":0", seriesSvc, projection, summarySvc, window, nil, nil), repo
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

const createBody = `{
	"anchor_date": "2024-01-15",
	"payload": {"kind": "expense", "amount": "45.50", "description": "Gym", "primary": "Health"},
	"rule": {"every": "weekly", "weekday": "monday", "end_date": "2024-02-15"}
}`

func createSeries(t *testing.T, s *Server) string {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/series", createBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["id"] == "" {
		t.Fatal("missing id")
	}
	return out["id"]
}

func TestHealthEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	if rec := do(t, s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}
}

func TestCreateAndGetSeries(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSeries(t, s)

	rec := do(t, s, http.MethodGet, "/api/series/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got seriesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.AnchorDate != "2024-01-15" || got.Rule.Every != "weekly" || got.Rule.Weekday != "monday" {
		t.Fatalf("got %+v", got)
	}
	if got.Payload.Amount != "45.50" {
		t.Fatalf("amount = %s", got.Payload.Amount)
	}
}

func TestCreateSeriesRejectsBadInput(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{`, http.StatusBadRequest},
		{"bad anchor date", strings.Replace(createBody, "2024-01-15", "15/01/2024", 1), http.StatusUnprocessableEntity},
		{"bad amount", strings.Replace(createBody, "45.50", "-3", 1), http.StatusUnprocessableEntity},
		{"unknown kind", strings.Replace(createBody, `"expense"`, `"transfer"`, 1), http.StatusUnprocessableEntity},
		{"unknown weekday", strings.Replace(createBody, `"monday"`, `"someday"`, 1), http.StatusUnprocessableEntity},
		{"unrecognized custom rule", strings.Replace(createBody,
			`"rule": {"every": "weekly", "weekday": "monday", "end_date": "2024-02-15"}`,
			`"rule": {"every": "custom", "text": "FREQ=YEARLY"}`, 1), http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := do(t, s, http.MethodPost, "/api/series", tc.body); rec.Code != tc.code {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.code, rec.Body)
			}
		})
	}
}

func TestSeriesOccurrences(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSeries(t, s)

	rec := do(t, s, http.MethodGet, "/api/series/"+id+"/occurrences", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var dates []string
	if err := json.Unmarshal(rec.Body.Bytes(), &dates); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"2024-01-15", "2024-01-22", "2024-01-29", "2024-02-05", "2024-02-12"}
	if len(dates) != len(want) {
		t.Fatalf("dates = %v", dates)
	}
	for i := range want {
		if dates[i] != want[i] {
			t.Fatalf("dates = %v", dates)
		}
	}

	// Explicit range narrows the window.
	rec = do(t, s, http.MethodGet, "/api/series/"+id+"/occurrences?from=2024-02-01&to=2024-02-29", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	dates = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &dates); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(dates) != 2 || dates[0] != "2024-02-05" || dates[1] != "2024-02-12" {
		t.Fatalf("dates = %v", dates)
	}
}

func TestOccurrencesUnknownSeries(t *testing.T) {
	s, _ := newTestServer(t)
	if rec := do(t, s, http.MethodGet, "/api/series/ghost/occurrences", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestEditSeriesScopes(t *testing.T) {
	s, repo := newTestServer(t)
	id := createSeries(t, s)

	children, err := repo.FetchChildren(context.Background(), id)
	if err != nil || len(children) == 0 {
		t.Fatalf("children: %v, %d", err, len(children))
	}
	childID := children[1].ID

	// Future edit from a mid-series occurrence returns the new root.
	body := `{
		"payload": {"kind": "expense", "amount": "60", "description": "Gym v2", "primary": "Health"},
		"rule": {"every": "monthly"}
	}`
	rec := do(t, s, http.MethodPatch, "/api/series/"+childID+"?scope=future", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["id"] == "" || out["id"] == id {
		t.Fatalf("future edit id = %q", out["id"])
	}

	newRoot := do(t, s, http.MethodGet, "/api/series/"+out["id"], "")
	var got seriesResponse
	if err := json.Unmarshal(newRoot.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Rule.Every != "monthly" || got.Payload.Description != "Gym v2" {
		t.Fatalf("new root = %+v", got)
	}
}

func TestEditRejectsUnknownScope(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSeries(t, s)

	body := `{"payload": {"kind": "expense", "amount": "60", "description": "X", "primary": "Y"}}`
	if rec := do(t, s, http.MethodPatch, "/api/series/"+id+"?scope=everything", body); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDeleteSeries(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSeries(t, s)

	if rec := do(t, s, http.MethodDelete, "/api/series/"+id+"?scope=all", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}

	if rec := do(t, s, http.MethodGet, "/api/series/"+id, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("status after delete = %d", rec.Code)
	}

	// A second scoped delete on the vanished series conflicts.
	if rec := do(t, s, http.MethodDelete, "/api/series/"+id+"?scope=all", ""); rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUpcomingAndSummary(t *testing.T) {
	s, _ := newTestServer(t)
	createSeries(t, s)

	rec := do(t, s, http.MethodGet, "/api/occurrences", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("occurrences status = %d", rec.Code)
	}
	var occ []occurrenceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &occ); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(occ) != 5 {
		t.Fatalf("occurrences = %d", len(occ))
	}

	rec = do(t, s, http.MethodGet, "/api/summary?year=2024&month=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("summary status = %d", rec.Code)
	}
	var sum summaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Root on 01-15 plus materialized children on 01-22 and 01-29.
	if sum.Expenses != "136.50" {
		t.Fatalf("expenses = %s", sum.Expenses)
	}
	if len(sum.ByCategory) != 1 || sum.ByCategory[0].Name != "Health" {
		t.Fatalf("by category = %+v", sum.ByCategory)
	}

	if rec := do(t, s, http.MethodGet, "/api/summary?year=2024&month=13", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad month status = %d", rec.Code)
	}
}

func TestListSeries(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSeries(t, s)

	rec := do(t, s, http.MethodGet, "/api/series", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var roots []seriesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &roots); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(roots) != 1 || roots[0].ID != id {
		t.Fatalf("roots = %+v", roots)
	}

	// Range listing includes materialized children.
	rec = do(t, s, http.MethodGet, "/api/series?from=2024-01-01&to=2024-01-31", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var records []seriesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d", len(records))
	}
}
