// Package series coordinates scope-based mutations of recurring record
// series: edits and deletions that target a single occurrence, a series'
// future, or a series' entirety, without corrupting the rest of the series.
package series

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"cadenza/internal/core"
	"cadenza/internal/rule"
	"cadenza/internal/schedule"
)

// Coordinator orchestrates series mutations against the Repository. Every
// multi-step operation computes its full set of creates, updates and
// deletes first, then applies them inside one repository transaction, so a
// crash or concurrent reader never observes a half-split series.
type Coordinator struct {
	repo Repository
	gen  *schedule.Generator
}

func NewCoordinator(repo Repository, gen *schedule.Generator) *Coordinator {
	return &Coordinator{repo: repo, gen: gen}
}

type exclusion struct {
	rootID string
	date   core.Date
}

// plan is the arena of intended mutations. Nothing touches the repository
// until the whole plan is computed.
type plan struct {
	deletes        []string
	updates        []core.SeriesRecord
	creates        []core.SeriesRecord
	addExclusions  []exclusion
	dropExclusions []string
}

func (p *plan) apply(ctx context.Context, repo Repository) error {
	for _, id := range p.deletes {
		if err := repo.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete record %s: %w", id, err)
		}
	}
	for _, rootID := range p.dropExclusions {
		if err := repo.DeleteExclusions(ctx, rootID); err != nil {
			return fmt.Errorf("drop exclusions of %s: %w", rootID, err)
		}
	}
	for _, rec := range p.updates {
		if err := repo.Update(ctx, rec); err != nil {
			return fmt.Errorf("update record %s: %w", rec.ID, err)
		}
	}
	for _, rec := range p.creates {
		if err := repo.Create(ctx, rec); err != nil {
			return fmt.Errorf("create record %s: %w", rec.ID, err)
		}
	}
	for _, ex := range p.addExclusions {
		if err := repo.AddExclusion(ctx, ex.rootID, ex.date); err != nil {
			return fmt.Errorf("add exclusion %s on %s: %w", ex.date, ex.rootID, err)
		}
	}
	return nil
}

// CreateSeries persists a new root and materializes its children inside the
// projection window. Returns the root id.
func (c *Coordinator) CreateSeries(ctx context.Context, anchor core.Date, payload core.Payload, r core.Rule, window schedule.Window) (string, error) {
	root := core.SeriesRecord{
		ID:         uuid.NewString(),
		AnchorDate: anchor,
		Rule:       r,
		Payload:    payload,
	}
	if err := root.Validate(); err != nil {
		return "", err
	}
	if err := rule.Check(r, anchor); err != nil {
		return "", err
	}

	err := c.repo.WithTransaction(ctx, func(repo Repository) error {
		p := plan{creates: append([]core.SeriesRecord{root}, c.childrenFor(root, window, nil)...)}
		return p.apply(ctx, repo)
	})
	if err != nil {
		return "", err
	}
	return root.ID, nil
}

// ApplyEdit applies new payload values, and optionally a new rule, to the
// record with the given id under the requested scope. It returns the id of
// the record that now represents the edit: the detached record for
// instance scope, the new root for a future split, the original root
// otherwise.
func (c *Coordinator) ApplyEdit(ctx context.Context, id string, payload core.Payload, newRule *core.Rule, scope Scope, window schedule.Window) (string, error) {
	if err := scope.Validate(); err != nil {
		return "", err
	}
	if err := payload.Validate(); err != nil {
		return "", err
	}

	var resultID string
	err := c.repo.WithTransaction(ctx, func(repo Repository) error {
		target, root, err := resolve(ctx, repo, id)
		if err != nil {
			return err
		}

		var p plan
		switch scope {
		case ScopeInstance:
			resultID, p = c.planEditInstance(target, root, payload)

		case ScopeFuture:
			resultID, p, err = c.planEditFuture(ctx, repo, target, root, payload, newRule, window)

		case ScopeAll:
			resultID, p, err = c.planEditAll(ctx, repo, root, payload, newRule, window)
		}
		if err != nil {
			return err
		}
		return p.apply(ctx, repo)
	})
	if err != nil {
		return "", err
	}
	return resultID, nil
}

// ApplyDelete removes the record with the given id under the requested
// scope.
func (c *Coordinator) ApplyDelete(ctx context.Context, id string, scope Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	return c.repo.WithTransaction(ctx, func(repo Repository) error {
		target, root, err := resolve(ctx, repo, id)
		if err != nil {
			return err
		}

		var p plan
		switch scope {
		case ScopeInstance:
			p = planDeleteInstance(target, root)

		case ScopeFuture:
			p, err = planDeleteFuture(ctx, repo, target, root)

		case ScopeAll:
			p, err = planDeleteAll(ctx, repo, root)
		}
		if err != nil {
			return err
		}
		return p.apply(ctx, repo)
	})
}

// planEditInstance detaches the target occurrence into a standalone record
// with the new payload. The rest of the series is untouched; the target
// date is excluded on the root so re-materialization cannot bring back the
// old occurrence next to the detached one.
func (c *Coordinator) planEditInstance(target, root core.SeriesRecord, payload core.Payload) (string, plan) {
	if target.IsRoot() && !target.Rule.Repeats() {
		// Ordinary standalone entry, nothing to detach.
		target.Payload = payload
		return target.ID, plan{updates: []core.SeriesRecord{target}}
	}

	if target.IsRoot() {
		// The root's own occurrence: the root must survive as series
		// owner, so the edited occurrence becomes a fresh standalone
		// record and the anchor date is excluded.
		detached := core.SeriesRecord{
			ID:         uuid.NewString(),
			AnchorDate: target.AnchorDate,
			Rule:       core.Rule{Every: core.RepeatNone},
			Payload:    payload,
		}
		return detached.ID, plan{
			creates:       []core.SeriesRecord{detached},
			addExclusions: []exclusion{{rootID: root.ID, date: target.AnchorDate}},
		}
	}

	target.ParentID = ""
	target.Rule = core.Rule{Every: core.RepeatNone}
	target.Payload = payload
	return target.ID, plan{
		updates:       []core.SeriesRecord{target},
		addExclusions: []exclusion{{rootID: root.ID, date: target.AnchorDate}},
	}
}

// planEditFuture terminates the original root the day before the target
// date and starts a new series at it. Occurrences strictly before the
// target date stay byte-for-byte unchanged.
func (c *Coordinator) planEditFuture(ctx context.Context, repo Repository, target, root core.SeriesRecord, payload core.Payload, newRule *core.Rule, window schedule.Window) (string, plan, error) {
	splitDate := target.AnchorDate

	effRule := root.Rule
	if newRule != nil {
		effRule = *newRule
	}
	if err := rule.Check(effRule, splitDate); err != nil {
		return "", plan{}, err
	}

	newRoot := core.SeriesRecord{
		ID:         uuid.NewString(),
		AnchorDate: splitDate,
		Rule:       effRule,
		Payload:    payload,
	}

	children, err := repo.FetchChildren(ctx, root.ID)
	if err != nil {
		return "", plan{}, fmt.Errorf("fetch children of %s: %w", root.ID, err)
	}

	var p plan
	if !splitDate.After(root.AnchorDate) {
		// Splitting at or before the first occurrence leaves the old root
		// with an empty window; replace the series wholesale.
		p.deletes = append(p.deletes, root.ID)
		for _, child := range children {
			p.deletes = append(p.deletes, child.ID)
		}
		p.dropExclusions = []string{root.ID}
	} else {
		root.Rule.EndDate = splitDate.DayBefore()
		p.updates = []core.SeriesRecord{root}
		for _, child := range children {
			if !child.AnchorDate.Before(splitDate) {
				p.deletes = append(p.deletes, child.ID)
			}
		}
	}

	p.creates = append([]core.SeriesRecord{newRoot}, c.childrenFor(newRoot, window, nil)...)
	return newRoot.ID, p, nil
}

// planEditAll rewrites the root in place and regenerates every child from
// the updated rule. Series identity is preserved; exclusions survive so
// previously deleted instances stay deleted.
func (c *Coordinator) planEditAll(ctx context.Context, repo Repository, root core.SeriesRecord, payload core.Payload, newRule *core.Rule, window schedule.Window) (string, plan, error) {
	effRule := root.Rule
	if newRule != nil {
		effRule = *newRule
	}
	if err := rule.Check(effRule, root.AnchorDate); err != nil {
		return "", plan{}, err
	}

	children, err := repo.FetchChildren(ctx, root.ID)
	if err != nil {
		return "", plan{}, fmt.Errorf("fetch children of %s: %w", root.ID, err)
	}
	excluded, err := repo.Exclusions(ctx, root.ID)
	if err != nil {
		return "", plan{}, fmt.Errorf("fetch exclusions of %s: %w", root.ID, err)
	}

	root.Payload = payload
	root.Rule = effRule

	p := plan{updates: []core.SeriesRecord{root}}
	for _, child := range children {
		p.deletes = append(p.deletes, child.ID)
	}
	p.creates = c.childrenFor(root, window, excluded)
	return root.ID, p, nil
}

func planDeleteInstance(target, root core.SeriesRecord) plan {
	if target.IsRoot() && !target.Rule.Repeats() {
		return plan{deletes: []string{target.ID}}
	}

	p := plan{addExclusions: []exclusion{{rootID: root.ID, date: target.AnchorDate}}}
	if !target.IsRoot() {
		p.deletes = []string{target.ID}
	}
	// A repeating root stays in place as series owner; its excluded anchor
	// date simply stops appearing in occurrence views.
	return p
}

func planDeleteFuture(ctx context.Context, repo Repository, target, root core.SeriesRecord) (plan, error) {
	splitDate := target.AnchorDate

	children, err := repo.FetchChildren(ctx, root.ID)
	if err != nil {
		return plan{}, fmt.Errorf("fetch children of %s: %w", root.ID, err)
	}

	if !splitDate.After(root.AnchorDate) {
		return planDeleteAll(ctx, repo, root)
	}

	root.Rule.EndDate = splitDate.DayBefore()
	p := plan{updates: []core.SeriesRecord{root}}
	for _, child := range children {
		if !child.AnchorDate.Before(splitDate) {
			p.deletes = append(p.deletes, child.ID)
		}
	}
	return p, nil
}

func planDeleteAll(ctx context.Context, repo Repository, root core.SeriesRecord) (plan, error) {
	children, err := repo.FetchChildren(ctx, root.ID)
	if err != nil {
		return plan{}, fmt.Errorf("fetch children of %s: %w", root.ID, err)
	}

	p := plan{
		deletes:        []string{root.ID},
		dropExclusions: []string{root.ID},
	}
	for _, child := range children {
		p.deletes = append(p.deletes, child.ID)
	}
	return p, nil
}

// Materialize reconciles a root's children with its rule inside the given
// bounded window: missing occurrence dates are created, children that the
// rule or the exclusion list no longer produces are removed. Returns the
// number of created and removed records.
func (c *Coordinator) Materialize(ctx context.Context, rootID string, window schedule.Window) (created, removed int, err error) {
	err = c.repo.WithTransaction(ctx, func(repo Repository) error {
		root, err := repo.Fetch(ctx, rootID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: root %s", ErrStaleSeries, rootID)
			}
			return err
		}
		if !root.IsRoot() {
			return fmt.Errorf("%w: %s is not a root", ErrStaleSeries, rootID)
		}
		if !root.Rule.Repeats() {
			// A none root has no children, ever.
			return nil
		}

		excluded, err := repo.Exclusions(ctx, root.ID)
		if err != nil {
			return fmt.Errorf("fetch exclusions of %s: %w", root.ID, err)
		}
		children, err := repo.FetchChildren(ctx, root.ID)
		if err != nil {
			return fmt.Errorf("fetch children of %s: %w", root.ID, err)
		}

		wanted := c.childrenFor(root, window, excluded)
		desired := make(map[string]bool, len(wanted))
		for _, rec := range wanted {
			desired[rec.AnchorDate.String()] = true
		}

		var p plan
		have := make(map[string]bool, len(children))
		for _, child := range children {
			if outsideWindow(child.AnchorDate, window) {
				continue
			}
			if desired[child.AnchorDate.String()] && !have[child.AnchorDate.String()] {
				have[child.AnchorDate.String()] = true
				continue
			}
			p.deletes = append(p.deletes, child.ID)
		}
		for _, rec := range wanted {
			if !have[rec.AnchorDate.String()] {
				p.creates = append(p.creates, rec)
			}
		}

		created = len(p.creates)
		removed = len(p.deletes)
		return p.apply(ctx, repo)
	})
	return created, removed, err
}

// childrenFor computes the child records a root should have inside a
// bounded window. The root's own anchor date is represented by the root
// record itself and is never duplicated as a child.
func (c *Coordinator) childrenFor(root core.SeriesRecord, window schedule.Window, excluded []core.Date) []core.SeriesRecord {
	if !root.Rule.Repeats() || window.End.IsZero() {
		return nil
	}

	var out []core.SeriesRecord
	for d := range c.gen.OccurrencesExcluding(root.Rule, root.AnchorDate, window, excluded) {
		if d.Equal(root.AnchorDate) {
			continue
		}
		out = append(out, core.SeriesRecord{
			ID:         uuid.NewString(),
			ParentID:   root.ID,
			AnchorDate: d,
			Rule:       root.Rule,
			Payload:    root.Payload,
		})
	}
	return out
}

func outsideWindow(d core.Date, w Window) bool {
	if !w.Start.IsZero() && d.Before(w.Start) {
		return true
	}
	if !w.End.IsZero() && d.After(w.End) {
		return true
	}
	return false
}

// Window aliases the schedule package's query range for callers that only
// import series.
type Window = schedule.Window

func resolve(ctx context.Context, repo Repository, id string) (target, root core.SeriesRecord, err error) {
	target, err = repo.Fetch(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return target, root, fmt.Errorf("%w: record %s", ErrStaleSeries, id)
		}
		return target, root, err
	}

	if target.IsRoot() {
		return target, target, nil
	}

	root, err = repo.Fetch(ctx, target.ParentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return target, root, fmt.Errorf("%w: root %s of record %s", ErrStaleSeries, target.ParentID, id)
		}
		return target, root, err
	}
	return target, root, nil
}
