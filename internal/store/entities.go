package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/roach88/carbonledger/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

// Transact implements ledger.Store.
//
// The transaction begins IMMEDIATE (see dsn), so it holds the database
// write lock for its whole lifetime; the sorted owned set is still
// enforced so every store honours the same contract.
func (s *Store) Transact(ctx context.Context, names []string, fn func(ctx context.Context, tx ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("transact: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stx := &sqlTx{tx: tx, owned: make(map[string]struct{}, len(names))}
	for _, name := range ledger.SortedNames(names) {
		stx.owned[name] = struct{}{}
	}

	if err := fn(ctx, stx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transact: commit: %w", err)
	}
	return nil
}

// Get implements ledger.Store.
func (s *Store) Get(ctx context.Context, name string) (ledger.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, allowed_emissions, actual_emissions, credits
		FROM entities
		WHERE name = ?
	`, name)
	return scanEntityRow(row, name)
}

// All implements ledger.Store.
//
// Rows are fetched in pages keyed on id, and each page's rows are closed
// before anything is yielded, so the single pooled connection is free
// while the consumer runs.
func (s *Store) All(ctx context.Context) iter.Seq2[ledger.Entity, error] {
	return func(yield func(ledger.Entity, error) bool) {
		var after int64
		for {
			page, last, err := s.readPage(ctx, after)
			if err != nil {
				yield(ledger.Entity{}, err)
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			after = last
		}
	}
}

// readPage returns up to pageSize entities with id > after, ordered by id,
// and the id of the last one.
func (s *Store) readPage(ctx context.Context, after int64) ([]ledger.Entity, int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, allowed_emissions, actual_emissions, credits
		FROM entities
		WHERE id > ?
		ORDER BY id ASC
		LIMIT ?
	`, after, s.pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	page := make([]ledger.Entity, 0, s.pageSize)
	last := after
	for rows.Next() {
		var e ledger.Entity
		if err := rows.Scan(&last, &e.Name, &e.AllowedEmissions, &e.ActualEmissions, &e.Credits); err != nil {
			return nil, 0, fmt.Errorf("scan entity: %w", err)
		}
		page = append(page, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate entities: %w", err)
	}
	return page, last, nil
}

type sqlTx struct {
	tx    *sql.Tx
	owned map[string]struct{}
}

func (t *sqlTx) Insert(ctx context.Context, e ledger.Entity) error {
	if err := t.checkOwned(e.Name); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO entities (name, allowed_emissions, actual_emissions, credits)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, e.Name, e.AllowedEmissions, e.ActualEmissions, e.Credits)
	if err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert entity: rows affected: %w", err)
	}
	if n == 0 {
		return ledger.Duplicate(e.Name)
	}
	return nil
}

func (t *sqlTx) Get(ctx context.Context, name string) (ledger.Entity, error) {
	if err := t.checkOwned(name); err != nil {
		return ledger.Entity{}, err
	}
	row := t.tx.QueryRowContext(ctx, `
		SELECT name, allowed_emissions, actual_emissions, credits
		FROM entities
		WHERE name = ?
	`, name)
	return scanEntityRow(row, name)
}

func (t *sqlTx) Update(ctx context.Context, e ledger.Entity) error {
	if err := t.checkOwned(e.Name); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE entities
		SET allowed_emissions = ?, actual_emissions = ?, credits = ?
		WHERE name = ?
	`, e.AllowedEmissions, e.ActualEmissions, e.Credits, e.Name)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entity: rows affected: %w", err)
	}
	if n == 0 {
		return ledger.NotFound(e.Name)
	}
	return nil
}

func (t *sqlTx) checkOwned(name string) error {
	if _, ok := t.owned[name]; !ok {
		return fmt.Errorf("sqlite: entity %q is not owned by this transaction", name)
	}
	return nil
}

func scanEntityRow(row *sql.Row, name string) (ledger.Entity, error) {
	var e ledger.Entity
	err := row.Scan(&e.Name, &e.AllowedEmissions, &e.ActualEmissions, &e.Credits)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entity{}, ledger.NotFound(name)
	}
	if err != nil {
		return ledger.Entity{}, fmt.Errorf("scan entity: %w", err)
	}
	return e, nil
}
