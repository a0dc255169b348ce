package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cadenza/internal/series"
)

// Materializer keeps child records reconciled with their rules inside the
// rolling projection window. The worker runs it on an interval and on every
// series changed event.
type Materializer struct {
	repo   series.Repository
	coord  *series.Coordinator
	window WindowProvider
}

func NewMaterializer(repo series.Repository, coord *series.Coordinator, window WindowProvider) *Materializer {
	return &Materializer{repo: repo, coord: coord, window: window}
}

// Run reconciles every root against the projection window at now.
func (m *Materializer) Run(ctx context.Context, now time.Time) (created, removed int, err error) {
	roots, err := m.repo.FetchRoots(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch roots: %w", err)
	}

	w := m.window(now)
	for _, root := range roots {
		c, r, err := m.coord.Materialize(ctx, root.ID, w)
		if err != nil {
			if errors.Is(err, series.ErrStaleSeries) {
				// Deleted concurrently; nothing to reconcile.
				continue
			}
			return created, removed, fmt.Errorf("materialize root %s: %w", root.ID, err)
		}
		created += c
		removed += r
	}

	slog.InfoContext(ctx, "Materialization pass complete",
		"roots", len(roots),
		"created", created,
		"removed", removed,
		"window_start", w.Start.String(),
		"window_end", w.End.String())
	return created, removed, nil
}

// MaterializeRoots reconciles only the listed roots, typically in response
// to a series changed event. Roots that no longer exist are skipped.
func (m *Materializer) MaterializeRoots(ctx context.Context, rootIDs []string) error {
	w := m.window(time.Now())
	for _, rootID := range rootIDs {
		if _, _, err := m.coord.Materialize(ctx, rootID, w); err != nil {
			if errors.Is(err, series.ErrStaleSeries) {
				slog.DebugContext(ctx, "Skipping vanished root", "root_id", rootID)
				continue
			}
			return fmt.Errorf("materialize root %s: %w", rootID, err)
		}
	}
	return nil
}
