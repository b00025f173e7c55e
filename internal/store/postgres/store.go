// Package postgres provides a PostgreSQL-backed ledger.Store using pgx.
//
// Transact locks the owned rows with a single ordered
// SELECT ... FOR UPDATE, so concurrent transfers over the same pair in
// opposite directions queue instead of deadlocking. Serialization or
// deadlock failures reported by the server are returned to the caller.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/carbonledger/internal/ledger"
)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
    id                BIGSERIAL PRIMARY KEY,
    name              TEXT   NOT NULL UNIQUE,
    allowed_emissions BIGINT NOT NULL CHECK (allowed_emissions >= 0),
    actual_emissions  BIGINT NOT NULL DEFAULT 0 CHECK (actual_emissions >= 0),
    credits           BIGINT NOT NULL
)`

const pageSize = 256

// Store is the PostgreSQL implementation of ledger.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ ledger.Store = (*Store)(nil)

// Open connects to dsn and creates the entities table if needed.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Transact implements ledger.Store.
func (s *Store) Transact(ctx context.Context, names []string, fn func(ctx context.Context, tx ledger.Tx) error) error {
	owned := ledger.SortedNames(names)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("transact: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if committed

	rows, err := tx.Query(ctx, `
		SELECT name FROM entities
		WHERE name = ANY($1)
		ORDER BY name COLLATE "C"
		FOR UPDATE
	`, owned)
	if err != nil {
		return fmt.Errorf("transact: lock rows: %w", err)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("transact: lock rows: %w", err)
	}

	ptx := &pgTx{tx: tx, owned: make(map[string]struct{}, len(owned))}
	for _, name := range owned {
		ptx.owned[name] = struct{}{}
	}

	if err := fn(ctx, ptx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("transact: commit: %w", err)
	}
	return nil
}

// Get implements ledger.Store.
func (s *Store) Get(ctx context.Context, name string) (ledger.Entity, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT name, allowed_emissions, actual_emissions, credits
		FROM entities
		WHERE name = $1
	`, name)
	return scanEntity(row, name)
}

// All implements ledger.Store with keyset pagination on id.
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
			if len(page) < pageSize {
				return
			}
			after = last
		}
	}
}

func (s *Store) readPage(ctx context.Context, after int64) ([]ledger.Entity, int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, allowed_emissions, actual_emissions, credits
		FROM entities
		WHERE id > $1
		ORDER BY id ASC
		LIMIT $2
	`, after, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	page := make([]ledger.Entity, 0, pageSize)
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

type pgTx struct {
	tx    pgx.Tx
	owned map[string]struct{}
}

func (t *pgTx) Insert(ctx context.Context, e ledger.Entity) error {
	if err := t.checkOwned(e.Name); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO entities (name, allowed_emissions, actual_emissions, credits)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING
	`, e.Name, e.AllowedEmissions, e.ActualEmissions, e.Credits)
	if err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.Duplicate(e.Name)
	}
	return nil
}

func (t *pgTx) Get(ctx context.Context, name string) (ledger.Entity, error) {
	if err := t.checkOwned(name); err != nil {
		return ledger.Entity{}, err
	}
	row := t.tx.QueryRow(ctx, `
		SELECT name, allowed_emissions, actual_emissions, credits
		FROM entities
		WHERE name = $1
	`, name)
	return scanEntity(row, name)
}

func (t *pgTx) Update(ctx context.Context, e ledger.Entity) error {
	if err := t.checkOwned(e.Name); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE entities
		SET allowed_emissions = $1, actual_emissions = $2, credits = $3
		WHERE name = $4
	`, e.AllowedEmissions, e.ActualEmissions, e.Credits, e.Name)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.NotFound(e.Name)
	}
	return nil
}

func (t *pgTx) checkOwned(name string) error {
	if _, ok := t.owned[name]; !ok {
		return fmt.Errorf("postgres: entity %q is not owned by this transaction", name)
	}
	return nil
}

func scanEntity(row pgx.Row, name string) (ledger.Entity, error) {
	var e ledger.Entity
	err := row.Scan(&e.Name, &e.AllowedEmissions, &e.ActualEmissions, &e.Credits)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Entity{}, ledger.NotFound(name)
	}
	if err != nil {
		return ledger.Entity{}, fmt.Errorf("scan entity: %w", err)
	}
	return e, nil
}
