package memory

import (
	"context"
	"errors"
	"testing"

	"cadenza/internal/core"
	"cadenza/internal/series"
)

func record(id, parentID string, day int) core.SeriesRecord {
	return core.SeriesRecord{
		ID:         id,
		ParentID:   parentID,
		AnchorDate: core.NewDate(2024, 1, day),
		Rule:       core.Rule{Every: core.RepeatMonthly},
		Payload: core.Payload{
			Kind:        core.KindExpense,
			Amount:      core.Money{Cents: 100},
			Description: "x",
			Primary:     "y",
		},
	}
}

func TestCollectOrdering(t *testing.T) {
	repo := New()
	ctx := context.Background()

	// Same anchor date sorts by id; otherwise by date.
	for _, rec := range []core.SeriesRecord{
		record("b", "", 10),
		record("a", "", 10),
		record("c", "", 5),
	} {
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	roots, err := repo.FetchRoots(ctx)
	if err != nil {
		t.Fatalf("FetchRoots: %v", err)
	}
	got := []string{roots[0].ID, roots[1].ID, roots[2].ID}
	if got[0] != "c" || got[1] != "a" || got[2] != "b" {
		t.Fatalf("order = %v", got)
	}
}

func TestCreateDuplicateRejected(t *testing.T) {
	repo := New()
	ctx := context.Background()

	if err := repo.Create(ctx, record("a", "", 1)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, record("a", "", 2)); err == nil {
		t.Fatal("duplicate id must be rejected")
	}
}

func TestTransactionSnapshotRestore(t *testing.T) {
	repo := New()
	ctx := context.Background()

	if err := repo.Create(ctx, record("keep", "", 1)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.AddExclusion(ctx, "keep", core.NewDate(2024, 1, 5)); err != nil {
		t.Fatalf("AddExclusion: %v", err)
	}

	boom := errors.New("boom")
	err := repo.WithTransaction(ctx, func(tx series.Repository) error {
		if err := tx.Create(ctx, record("doomed", "", 2)); err != nil {
			return err
		}
		if err := tx.Delete(ctx, "keep"); err != nil {
			return err
		}
		if err := tx.DeleteExclusions(ctx, "keep"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := repo.Fetch(ctx, "keep"); err != nil {
		t.Fatalf("rollback lost record: %v", err)
	}
	if _, err := repo.Fetch(ctx, "doomed"); !errors.Is(err, series.ErrNotFound) {
		t.Fatalf("rollback kept created record: %v", err)
	}
	excluded, _ := repo.Exclusions(ctx, "keep")
	if len(excluded) != 1 {
		t.Fatalf("rollback lost exclusions: %v", excluded)
	}
}

func TestNestedTransactionJoins(t *testing.T) {
	repo := New()
	ctx := context.Background()

	err := repo.WithTransaction(ctx, func(tx series.Repository) error {
		if err := tx.Create(ctx, record("a", "", 1)); err != nil {
			return err
		}
		return tx.WithTransaction(ctx, func(inner series.Repository) error {
			return inner.Create(ctx, record("b", "", 2))
		})
	})
	if err != nil {
		t.Fatalf("WithTransaction: %v", err)
	}

	for _, id := range []string{"a", "b"} {
		if _, err := repo.Fetch(ctx, id); err != nil {
			t.Fatalf("Fetch %s: %v", id, err)
		}
	}
}
