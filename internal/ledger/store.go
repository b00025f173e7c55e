package ledger

import (
	"context"
	"iter"
)

// Store is durable keyed storage of Entity records.
//
// Implementations live in internal/store (SQLite), internal/store/memory
// and internal/store/postgres.
type Store interface {
	// Transact runs fn in a single transaction that owns the named
	// entities. Ownership is acquired in lexicographic name order.
	// If fn returns an error nothing is applied and that error is
	// returned unchanged; otherwise all writes are committed together.
	//
	// A Tx must only touch the names it was opened with.
	Transact(ctx context.Context, names []string, fn func(ctx context.Context, tx Tx) error) error

	// Get returns the committed entity or a NotFound error.
	Get(ctx context.Context, name string) (Entity, error)

	// All yields every entity in insertion order. The sequence is lazy
	// and can be ranged over more than once; it holds no lock between
	// yields. Iteration stops after the first non-nil error.
	All(ctx context.Context) iter.Seq2[Entity, error]

	// Close releases the store's resources.
	Close() error
}

// Tx is the view of the store inside Transact.
type Tx interface {
	// Insert adds a new entity or returns a DuplicateEntity error.
	Insert(ctx context.Context, e Entity) error

	// Get returns the entity as seen by this transaction.
	Get(ctx context.Context, name string) (Entity, error)

	// Update replaces an existing entity or returns a NotFound error.
	Update(ctx context.Context, e Entity) error
}
