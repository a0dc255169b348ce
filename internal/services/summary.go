package services

import (
	"context"
	"fmt"
	"sort"

	"cadenza/internal/core"
	"cadenza/internal/series"
)

// SummaryService totals materialized records per budgeting period.
type SummaryService struct {
	repo series.Repository
}

func NewSummaryService(repo series.Repository) *SummaryService {
	return &SummaryService{repo: repo}
}

// Period sums the records whose dates fall inside the given month. Roots
// whose own anchor date was deleted as a single instance are excluded, the
// same rule the occurrence generator applies.
func (s *SummaryService) Period(ctx context.Context, year, month int) (core.PeriodSummary, error) {
	summary := core.PeriodSummary{Year: year, Month: month}

	from := core.NewDate(year, month, 1)
	to := core.NewDate(year, month, core.DaysInMonth(year, month))

	records, err := s.repo.FetchByDateRange(ctx, from, to)
	if err != nil {
		return summary, fmt.Errorf("fetch records for %d-%02d: %w", year, month, err)
	}

	byCategory := make(map[string]int64)
	for _, rec := range records {
		skip, err := s.anchorExcluded(ctx, rec)
		if err != nil {
			return summary, err
		}
		if skip {
			continue
		}

		switch rec.Payload.Kind {
		case core.KindIncome:
			summary.Income.Cents += rec.Payload.Amount.Cents
		default:
			summary.Expenses.Cents += rec.Payload.Amount.Cents
			byCategory[rec.Payload.Primary] += rec.Payload.Amount.Cents
		}
	}

	for name, cents := range byCategory {
		summary.ByCategory = append(summary.ByCategory, core.CategoryAmount{
			Name:   name,
			Amount: core.Money{Cents: cents},
		})
	}
	sort.Slice(summary.ByCategory, func(i, j int) bool {
		return summary.ByCategory[i].Name < summary.ByCategory[j].Name
	})

	return summary, nil
}

// anchorExcluded reports whether rec is a repeating root whose own anchor
// date is on its exclusion list. Children on excluded dates are deleted
// outright, but the root record has to survive as series owner, so views
// filter it here instead.
func (s *SummaryService) anchorExcluded(ctx context.Context, rec core.SeriesRecord) (bool, error) {
	if !rec.IsRoot() || !rec.Rule.Repeats() {
		return false, nil
	}
	excluded, err := s.repo.Exclusions(ctx, rec.ID)
	if err != nil {
		return false, fmt.Errorf("fetch exclusions of %s: %w", rec.ID, err)
	}
	for _, d := range excluded {
		if d.Equal(rec.AnchorDate) {
			return true, nil
		}
	}
	return false, nil
}
