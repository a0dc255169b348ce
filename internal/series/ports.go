package series

import (
	"context"
	"errors"

	"cadenza/internal/core"
)

var (
	// ErrNotFound is returned by repositories when no record has the id.
	ErrNotFound = errors.New("series record not found")

	// ErrStaleSeries aborts a mutation whose target record or root vanished
	// before the operation completed. Nothing is partially applied.
	ErrStaleSeries = errors.New("stale series")

	// ErrUnknownScope rejects a scope value outside instance/future/all.
	ErrUnknownScope = errors.New("unknown mutation scope")
)

// Scope is the blast radius of an edit or delete: one occurrence, the
// series from the target date onward, or the entire series.
type Scope string

const (
	ScopeInstance Scope = "instance"
	ScopeFuture   Scope = "future"
	ScopeAll      Scope = "all"
)

func (s Scope) Validate() error {
	switch s {
	case ScopeInstance, ScopeFuture, ScopeAll:
		return nil
	default:
		return ErrUnknownScope
	}
}

// Repository is the narrow persistence port the recurrence core drives.
// Implementations live in internal/storage; the core never sees a concrete
// storage engine. Fetch returns ErrNotFound (possibly wrapped) when the id
// does not exist.
type Repository interface {
	Fetch(ctx context.Context, id string) (core.SeriesRecord, error)
	FetchChildren(ctx context.Context, parentID string) ([]core.SeriesRecord, error)
	FetchRoots(ctx context.Context) ([]core.SeriesRecord, error)
	FetchByDateRange(ctx context.Context, from, to core.Date) ([]core.SeriesRecord, error)
	Create(ctx context.Context, rec core.SeriesRecord) error
	Update(ctx context.Context, rec core.SeriesRecord) error
	Delete(ctx context.Context, id string) error

	// Exclusions are single-instance deletions recorded against a root.
	// The occurrence generator skips them, so a deleted instance can never
	// be resurrected by a later re-materialization.
	Exclusions(ctx context.Context, rootID string) ([]core.Date, error)
	AddExclusion(ctx context.Context, rootID string, d core.Date) error
	DeleteExclusions(ctx context.Context, rootID string) error

	// WithTransaction runs fn atomically: every mutation fn issues through
	// the passed Repository is kept only if fn returns nil.
	WithTransaction(ctx context.Context, fn func(Repository) error) error
}
