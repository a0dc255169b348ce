// Package memory is an in-memory series.Repository used by tests and by
// the memory data backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cadenza/internal/core"
	"cadenza/internal/series"
)

// Repository keeps all records in process memory. WithTransaction snapshots
// the state and restores it when fn fails, which gives the same
// all-or-nothing behavior callers get from SQLite.
type Repository struct {
	mu sync.Mutex

	records    map[string]core.SeriesRecord
	exclusions map[string]map[string]core.Date // root id -> date string -> date

	// locked marks a transaction-bound view; such views reuse the lock
	// already held by WithTransaction.
	locked bool
}

var _ series.Repository = (*Repository)(nil)

func New() *Repository {
	return &Repository{
		records:    make(map[string]core.SeriesRecord),
		exclusions: make(map[string]map[string]core.Date),
	}
}

func (r *Repository) lock() func() {
	if r.locked {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *Repository) Fetch(_ context.Context, id string) (core.SeriesRecord, error) {
	defer r.lock()()

	rec, ok := r.records[id]
	if !ok {
		return core.SeriesRecord{}, fmt.Errorf("record %s: %w", id, series.ErrNotFound)
	}
	return rec, nil
}

func (r *Repository) FetchChildren(_ context.Context, parentID string) ([]core.SeriesRecord, error) {
	defer r.lock()()
	return r.collect(func(rec core.SeriesRecord) bool {
		return rec.ParentID == parentID
	}), nil
}

func (r *Repository) FetchRoots(_ context.Context) ([]core.SeriesRecord, error) {
	defer r.lock()()
	return r.collect(core.SeriesRecord.IsRoot), nil
}

func (r *Repository) FetchByDateRange(_ context.Context, from, to core.Date) ([]core.SeriesRecord, error) {
	defer r.lock()()
	return r.collect(func(rec core.SeriesRecord) bool {
		return !rec.AnchorDate.Before(from) && !rec.AnchorDate.After(to)
	}), nil
}

func (r *Repository) Create(_ context.Context, rec core.SeriesRecord) error {
	defer r.lock()()

	if _, exists := r.records[rec.ID]; exists {
		return fmt.Errorf("record %s already exists", rec.ID)
	}
	r.records[rec.ID] = rec
	return nil
}

func (r *Repository) Update(_ context.Context, rec core.SeriesRecord) error {
	defer r.lock()()

	if _, ok := r.records[rec.ID]; !ok {
		return fmt.Errorf("record %s: %w", rec.ID, series.ErrNotFound)
	}
	r.records[rec.ID] = rec
	return nil
}

func (r *Repository) Delete(_ context.Context, id string) error {
	defer r.lock()()
	delete(r.records, id)
	return nil
}

func (r *Repository) Exclusions(_ context.Context, rootID string) ([]core.Date, error) {
	defer r.lock()()

	var out []core.Date
	for _, d := range r.exclusions[rootID] {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (r *Repository) AddExclusion(_ context.Context, rootID string, d core.Date) error {
	defer r.lock()()

	if r.exclusions[rootID] == nil {
		r.exclusions[rootID] = make(map[string]core.Date)
	}
	r.exclusions[rootID][d.String()] = d
	return nil
}

func (r *Repository) DeleteExclusions(_ context.Context, rootID string) error {
	defer r.lock()()
	delete(r.exclusions, rootID)
	return nil
}

func (r *Repository) WithTransaction(_ context.Context, fn func(series.Repository) error) error {
	if r.locked {
		return fn(r)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snapRecords := make(map[string]core.SeriesRecord, len(r.records))
	for id, rec := range r.records {
		snapRecords[id] = rec
	}
	snapExclusions := make(map[string]map[string]core.Date, len(r.exclusions))
	for rootID, dates := range r.exclusions {
		copied := make(map[string]core.Date, len(dates))
		for k, v := range dates {
			copied[k] = v
		}
		snapExclusions[rootID] = copied
	}

	view := &Repository{records: r.records, exclusions: r.exclusions, locked: true}
	if err := fn(view); err != nil {
		r.records = snapRecords
		r.exclusions = snapExclusions
		return err
	}
	return nil
}

func (r *Repository) collect(keep func(core.SeriesRecord) bool) []core.SeriesRecord {
	var out []core.SeriesRecord
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AnchorDate.Equal(out[j].AnchorDate) {
			return out[i].AnchorDate.Before(out[j].AnchorDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
