// Package storage persists series records in SQLite behind the
// series.Repository port.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cadenza/internal/core"
	"cadenza/internal/series"

	_ "modernc.org/sqlite"
)

// SQLiteRepository implements series.Repository over a single SQLite file.
// Inside WithTransaction all calls go through the open transaction; outside
// they run autocommit.
type SQLiteRepository struct {
	db *sql.DB
	tx *sql.Tx
}

var _ series.Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLiteRepository) q() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const recordColumns = `id, parent_id, anchor_date, rule_every, rule_weekday,
	rule_first_day, rule_second_day, rule_text, rule_end_date,
	kind, amount_cents, description, primary_category, secondary_category`

func (r *SQLiteRepository) Fetch(ctx context.Context, id string) (core.SeriesRecord, error) {
	row := r.q().QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM series_records WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SeriesRecord{}, fmt.Errorf("record %s: %w", id, series.ErrNotFound)
	}
	if err != nil {
		return core.SeriesRecord{}, fmt.Errorf("fetch record %s: %w", id, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) FetchChildren(ctx context.Context, parentID string) ([]core.SeriesRecord, error) {
	return r.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM series_records WHERE parent_id = ? ORDER BY anchor_date`,
		parentID)
}

func (r *SQLiteRepository) FetchRoots(ctx context.Context) ([]core.SeriesRecord, error) {
	return r.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM series_records WHERE parent_id = '' ORDER BY anchor_date`)
}

func (r *SQLiteRepository) FetchByDateRange(ctx context.Context, from, to core.Date) ([]core.SeriesRecord, error) {
	return r.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM series_records
		 WHERE anchor_date >= ? AND anchor_date <= ? ORDER BY anchor_date`,
		from.String(), to.String())
}

func (r *SQLiteRepository) Create(ctx context.Context, rec core.SeriesRecord) error {
	_, err := r.q().ExecContext(ctx,
		`INSERT INTO series_records (`+recordColumns+`, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ParentID, rec.AnchorDate.String(),
		string(rec.Rule.Every), int(rec.Rule.Weekday),
		rec.Rule.FirstDay, rec.Rule.SecondDay, rec.Rule.Text, dateOrEmpty(rec.Rule.EndDate),
		string(rec.Payload.Kind), rec.Payload.Amount.Cents, rec.Payload.Description,
		rec.Payload.Primary, rec.Payload.Secondary,
		nowUTC(), nowUTC())
	if err != nil {
		return fmt.Errorf("insert record %s: %w", rec.ID, err)
	}

	slog.DebugContext(ctx, "Record created",
		"id", rec.ID,
		"parent_id", rec.ParentID,
		"anchor_date", rec.AnchorDate.String(),
		"rule", string(rec.Rule.Every))
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, rec core.SeriesRecord) error {
	res, err := r.q().ExecContext(ctx,
		`UPDATE series_records SET
			parent_id = ?, anchor_date = ?, rule_every = ?, rule_weekday = ?,
			rule_first_day = ?, rule_second_day = ?, rule_text = ?, rule_end_date = ?,
			kind = ?, amount_cents = ?, description = ?, primary_category = ?,
			secondary_category = ?, updated_at = ?
		 WHERE id = ?`,
		rec.ParentID, rec.AnchorDate.String(),
		string(rec.Rule.Every), int(rec.Rule.Weekday),
		rec.Rule.FirstDay, rec.Rule.SecondDay, rec.Rule.Text, dateOrEmpty(rec.Rule.EndDate),
		string(rec.Payload.Kind), rec.Payload.Amount.Cents, rec.Payload.Description,
		rec.Payload.Primary, rec.Payload.Secondary,
		nowUTC(), rec.ID)
	if err != nil {
		return fmt.Errorf("update record %s: %w", rec.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("record %s: %w", rec.ID, series.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.q().ExecContext(ctx, `DELETE FROM series_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) Exclusions(ctx context.Context, rootID string) ([]core.Date, error) {
	rows, err := r.q().QueryContext(ctx,
		`SELECT excluded_date FROM series_exclusions WHERE root_id = ? ORDER BY excluded_date`,
		rootID)
	if err != nil {
		return nil, fmt.Errorf("fetch exclusions of %s: %w", rootID, err)
	}
	defer rows.Close()

	var out []core.Date
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan exclusion: %w", err)
		}
		d, err := core.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("parse exclusion date %q: %w", s, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) AddExclusion(ctx context.Context, rootID string, d core.Date) error {
	_, err := r.q().ExecContext(ctx,
		`INSERT OR IGNORE INTO series_exclusions (root_id, excluded_date, created_at)
		 VALUES (?, ?, ?)`,
		rootID, d.String(), nowUTC())
	if err != nil {
		return fmt.Errorf("add exclusion %s on %s: %w", d, rootID, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteExclusions(ctx context.Context, rootID string) error {
	_, err := r.q().ExecContext(ctx,
		`DELETE FROM series_exclusions WHERE root_id = ?`, rootID)
	if err != nil {
		return fmt.Errorf("delete exclusions of %s: %w", rootID, err)
	}
	return nil
}

// WithTransaction runs fn against a transaction-bound view of the
// repository. A nested call joins the enclosing transaction.
func (r *SQLiteRepository) WithTransaction(ctx context.Context, fn func(series.Repository) error) error {
	if r.tx != nil {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txRepo := &SQLiteRepository{db: r.db, tx: tx}
	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) queryRecords(ctx context.Context, query string, args ...any) ([]core.SeriesRecord, error) {
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []core.SeriesRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (core.SeriesRecord, error) {
	var (
		rec                  core.SeriesRecord
		anchor, every, endAt string
		weekday              int
		kind                 string
	)
	err := row.Scan(&rec.ID, &rec.ParentID, &anchor, &every, &weekday,
		&rec.Rule.FirstDay, &rec.Rule.SecondDay, &rec.Rule.Text, &endAt,
		&kind, &rec.Payload.Amount.Cents, &rec.Payload.Description,
		&rec.Payload.Primary, &rec.Payload.Secondary)
	if err != nil {
		return core.SeriesRecord{}, err
	}

	rec.AnchorDate, err = core.ParseDate(anchor)
	if err != nil {
		return core.SeriesRecord{}, fmt.Errorf("parse anchor date %q: %w", anchor, err)
	}
	rec.Rule.Every = core.Frequency(every)
	rec.Rule.Weekday = time.Weekday(weekday)
	rec.Payload.Kind = core.EntryKind(kind)
	if endAt != "" {
		rec.Rule.EndDate, err = core.ParseDate(endAt)
		if err != nil {
			return core.SeriesRecord{}, fmt.Errorf("parse end date %q: %w", endAt, err)
		}
	}
	return rec, nil
}

func dateOrEmpty(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
