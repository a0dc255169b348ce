// Package services wires the recurrence core to storage, messaging and the
// HTTP layer.
package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cadenza/internal/cache"
	"cadenza/internal/core"
	"cadenza/internal/schedule"
	"cadenza/internal/series"
)

// Occurrence is one projected date of a series, carrying the root's payload
// for display.
type Occurrence struct {
	RootID  string
	Date    core.Date
	Payload core.Payload
}

// WindowProvider computes the current projection window from "now".
type WindowProvider func(now time.Time) schedule.Window

// MonthsWindow bounds materialization and default projections to whole
// calendar months around now.
func MonthsWindow(back, forward int) WindowProvider {
	return func(now time.Time) schedule.Window {
		year, month, _ := now.UTC().Date()
		start := core.NewDate(year, int(month)-back, 1)
		end := core.ClampedDate(year, int(month)+forward, 31)
		return schedule.Window{Start: start, End: end}
	}
}

// maxProjection caps a single projection so an open-ended window over an
// endless rule cannot run away.
const maxProjection = 1000

// ProjectionService answers read-only occurrence queries. Results are
// cached per root and window; any series mutation purges the cache. Safe
// for concurrent use.
type ProjectionService struct {
	repo  series.Repository
	gen   *schedule.Generator
	cache *cache.LRU[[]core.Date]
}

func NewProjectionService(repo series.Repository, gen *schedule.Generator) *ProjectionService {
	return &ProjectionService{
		repo:  repo,
		gen:   gen,
		cache: cache.NewLRU[[]core.Date](512, 15*time.Minute),
	}
}

// Occurrences projects the series owning id (the root itself or any of its
// records) onto dates within w, exclusions applied.
func (s *ProjectionService) Occurrences(ctx context.Context, id string, w schedule.Window) ([]core.Date, error) {
	rec, err := s.repo.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	root := rec
	if !rec.IsRoot() {
		root, err = s.repo.Fetch(ctx, rec.ParentID)
		if err != nil {
			return nil, fmt.Errorf("fetch root of %s: %w", id, err)
		}
	}

	key := root.ID + "|" + w.Start.String() + "|" + w.End.String()
	if dates, ok := s.cache.Get(key); ok {
		return dates, nil
	}

	excluded, err := s.repo.Exclusions(ctx, root.ID)
	if err != nil {
		return nil, err
	}

	dates := make([]core.Date, 0, 16)
	for d := range s.gen.OccurrencesExcluding(root.Rule, root.AnchorDate, w, excluded) {
		dates = append(dates, d)
		if len(dates) >= maxProjection {
			break
		}
	}

	s.cache.Set(key, dates)
	return dates, nil
}

// Upcoming merges the projections of every root within w, ascending by
// date. Display-only; nothing is materialized.
func (s *ProjectionService) Upcoming(ctx context.Context, w schedule.Window) ([]Occurrence, error) {
	roots, err := s.repo.FetchRoots(ctx)
	if err != nil {
		return nil, err
	}

	var out []Occurrence
	for _, root := range roots {
		dates, err := s.Occurrences(ctx, root.ID, w)
		if err != nil {
			return nil, err
		}
		for _, d := range dates {
			out = append(out, Occurrence{RootID: root.ID, Date: d, Payload: root.Payload})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].RootID < out[j].RootID
	})
	return out, nil
}

// Invalidate drops all cached projections. Called after every mutation.
func (s *ProjectionService) Invalidate() {
	s.cache.Purge()
}
