// Package book persists the known remotes in SQLite: address, name, last
// known score suffixes and a running error count.
package book

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"zoldnode/internal/score"
)

const DriverName = "sqlite"

var ErrNotFound = errors.New("remote not in book")

type Entry struct {
	Addr      string
	Name      string
	Score     score.Score
	Errors    int
	UpdatedAt time.Time
}

type Book struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the SQLite book at path.
func Open(ctx context.Context, path string) (*Book, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open book %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	b, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// New wraps an open database and creates the schema.
func New(ctx context.Context, db *sql.DB) (*Book, error) {
	b := &Book{db: db, now: time.Now}
	if err := b.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate book: %w", err)
	}
	return b, nil
}

func (b *Book) migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS remotes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		addr TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		score TEXT NOT NULL DEFAULT '',
		errors INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);`
	_, err := b.db.ExecContext(ctx, query)
	return err
}

func (b *Book) Close() error {
	return b.db.Close()
}

func joinScore(s score.Score) string {
	return strings.Join(s.Suffixes(), " ")
}

func splitScore(text string) score.Score {
	return score.New(strings.Fields(text)...)
}

// Add inserts a remote or updates its name and score. Errors are kept.
func (b *Book) Add(ctx context.Context, e Entry) error {
	if strings.TrimSpace(e.Addr) == "" {
		return errors.New("remote addr is empty")
	}
	query := `
	INSERT INTO remotes (addr, name, score, errors, updated_at)
	VALUES (?, ?, ?, 0, ?)
	ON CONFLICT(addr) DO UPDATE SET name = excluded.name, score = excluded.score, updated_at = excluded.updated_at`
	_, err := b.db.ExecContext(ctx, query, e.Addr, e.Name, joinScore(e.Score), b.now().UTC())
	return err
}

func (b *Book) Remove(ctx context.Context, addr string) error {
	res, err := b.db.ExecContext(ctx, `DELETE FROM remotes WHERE addr = ?`, addr)
	if err != nil {
		return err
	}
	return expectOne(res, addr)
}

func (b *Book) SetScore(ctx context.Context, addr string, s score.Score) error {
	res, err := b.db.ExecContext(ctx,
		`UPDATE remotes SET score = ?, updated_at = ? WHERE addr = ?`,
		joinScore(s), b.now().UTC(), addr)
	if err != nil {
		return err
	}
	return expectOne(res, addr)
}

// RecordError bumps the error count of addr.
func (b *Book) RecordError(ctx context.Context, addr string) error {
	res, err := b.db.ExecContext(ctx, `UPDATE remotes SET errors = errors + 1 WHERE addr = ?`, addr)
	if err != nil {
		return err
	}
	return expectOne(res, addr)
}

func expectOne(res sql.Result, addr string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	return nil
}

// List returns the remotes in the order they were first added. That order is
// the tie-break between equal scores during reconciliation.
func (b *Book) List(ctx context.Context) ([]Entry, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT addr, name, score, errors, updated_at FROM remotes ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			text string
		)
		if err := rows.Scan(&e.Addr, &e.Name, &text, &e.Errors, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Score = splitScore(text)
		out = append(out, e)
	}
	return out, rows.Err()
}
