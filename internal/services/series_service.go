package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cadenza/internal/amqp"
	"cadenza/internal/core"
	"cadenza/internal/series"
)

// SeriesService runs scope-based mutations through the coordinator, then
// purges projections and publishes a change event for the worker. The AMQP
// client is optional; without it mutations are local-only.
type SeriesService struct {
	repo       series.Repository
	coord      *series.Coordinator
	projection *ProjectionService
	amqpClient *amqp.Client
	window     WindowProvider
}

func NewSeriesService(repo series.Repository, coord *series.Coordinator, projection *ProjectionService, amqpClient *amqp.Client, window WindowProvider) *SeriesService {
	return &SeriesService{
		repo:       repo,
		coord:      coord,
		projection: projection,
		amqpClient: amqpClient,
		window:     window,
	}
}

// Create persists a new series (or standalone entry) and materializes its
// children inside the projection window.
func (s *SeriesService) Create(ctx context.Context, anchor core.Date, payload core.Payload, r core.Rule) (string, error) {
	rootID, err := s.coord.CreateSeries(ctx, anchor, payload, r, s.window(time.Now()))
	if err != nil {
		return "", err
	}

	s.projection.Invalidate()
	s.publish(ctx, amqp.OpCreate, "", rootID)

	slog.InfoContext(ctx, "Series created",
		"root_id", rootID,
		"rule", string(r.Every),
		"anchor_date", anchor.String())
	return rootID, nil
}

// Edit applies new payload values, and optionally a new rule, under the
// given scope. Returns the id of the record representing the edit.
func (s *SeriesService) Edit(ctx context.Context, id string, payload core.Payload, newRule *core.Rule, scope series.Scope) (string, error) {
	resultID, err := s.coord.ApplyEdit(ctx, id, payload, newRule, scope, s.window(time.Now()))
	if err != nil {
		return "", err
	}

	s.projection.Invalidate()
	s.publish(ctx, amqp.OpEdit, string(scope), id, resultID)

	slog.InfoContext(ctx, "Series edited",
		"id", id,
		"result_id", resultID,
		"scope", string(scope))
	return resultID, nil
}

// Delete removes the record under the given scope.
func (s *SeriesService) Delete(ctx context.Context, id string, scope series.Scope) error {
	if err := s.coord.ApplyDelete(ctx, id, scope); err != nil {
		return err
	}

	s.projection.Invalidate()
	s.publish(ctx, amqp.OpDelete, string(scope), id)

	slog.InfoContext(ctx, "Series deleted", "id", id, "scope", string(scope))
	return nil
}

// Get returns a single record.
func (s *SeriesService) Get(ctx context.Context, id string) (core.SeriesRecord, error) {
	return s.repo.Fetch(ctx, id)
}

// Roots lists every series root and standalone entry.
func (s *SeriesService) Roots(ctx context.Context) ([]core.SeriesRecord, error) {
	return s.repo.FetchRoots(ctx)
}

// Records lists the materialized records visible between from and to,
// filtering repeating roots whose anchor date has been excluded.
func (s *SeriesService) Records(ctx context.Context, from, to core.Date) ([]core.SeriesRecord, error) {
	records, err := s.repo.FetchByDateRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	visible := records[:0]
	for _, rec := range records {
		if rec.IsRoot() && rec.Rule.Repeats() {
			excluded, err := s.repo.Exclusions(ctx, rec.ID)
			if err != nil {
				return nil, fmt.Errorf("fetch exclusions of %s: %w", rec.ID, err)
			}
			if containsDate(excluded, rec.AnchorDate) {
				continue
			}
		}
		visible = append(visible, rec)
	}
	return visible, nil
}

func (s *SeriesService) publish(ctx context.Context, op amqp.Op, scope string, rootIDs ...string) {
	if s.amqpClient == nil {
		return
	}
	msg := amqp.NewSeriesChangedMessage(op, scope, rootIDs...)
	if err := s.amqpClient.PublishSeriesChanged(ctx, msg); err != nil {
		// The mutation is committed; sync is best-effort.
		slog.ErrorContext(ctx, "Failed to publish series changed message",
			"op", string(op), "error", err)
	}
}

func containsDate(dates []core.Date, d core.Date) bool {
	for _, x := range dates {
		if x.Equal(d) {
			return true
		}
	}
	return false
}
