// Package memory provides an in-process ledger.Store.
//
// Each entity name has its own mutex, held in the lock table only while
// some transaction owns or waits for the name. A transaction locks the
// names it owns in sorted order, stages its writes, and publishes them under the
// store-wide write lock on commit. Transactions over disjoint names run
// in parallel; readers never see a partially applied transaction.
package memory

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/roach88/carbonledger/internal/ledger"
)

// Store is an in-memory ledger.Store. The zero value is not usable; call New.
type Store struct {
	mu      sync.RWMutex
	records map[string]ledger.Entity
	order   []string // insertion order

	locksMu sync.Mutex
	locks   map[string]*nameLock
}

// nameLock is a per-name mutex with the number of transactions holding
// or waiting for it.
type nameLock struct {
	mu   sync.Mutex
	refs int
}

var _ ledger.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		records: make(map[string]ledger.Entity),
		locks:   make(map[string]*nameLock),
	}
}

// Transact implements ledger.Store.
func (s *Store) Transact(ctx context.Context, names []string, fn func(ctx context.Context, tx ledger.Tx) error) error {
	owned := ledger.SortedNames(names)

	for i, name := range owned {
		if err := ctx.Err(); err != nil {
			s.release(owned[:i])
			return err
		}
		s.acquire(name)
	}
	defer s.release(owned)

	tx := &memTx{
		store:  s,
		owned:  make(map[string]struct{}, len(owned)),
		staged: make(map[string]ledger.Entity, len(owned)),
	}
	for _, name := range owned {
		tx.owned[name] = struct{}{}
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

// Get implements ledger.Store.
func (s *Store) Get(_ context.Context, name string) (ledger.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.records[name]
	if !ok {
		return ledger.Entity{}, ledger.NotFound(name)
	}
	return e, nil
}

// All implements ledger.Store. The read lock is taken per element, so a
// consumer may call back into the store while ranging.
func (s *Store) All(ctx context.Context) iter.Seq2[ledger.Entity, error] {
	return func(yield func(ledger.Entity, error) bool) {
		for i := 0; ; i++ {
			if err := ctx.Err(); err != nil {
				yield(ledger.Entity{}, err)
				return
			}
			e, ok := s.at(i)
			if !ok {
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Close implements ledger.Store. It is a no-op.
func (s *Store) Close() error {
	return nil
}

// Len returns the number of registered entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Store) at(i int) (ledger.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i >= len(s.order) {
		return ledger.Entity{}, false
	}
	return s.records[s.order[i]], true
}

func (s *Store) acquire(name string) {
	s.locksMu.Lock()
	l, ok := s.locks[name]
	if !ok {
		l = &nameLock{}
		s.locks[name] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
}

func (s *Store) release(names []string) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	for i := len(names) - 1; i >= 0; i-- {
		l := s.locks[names[i]]
		l.refs--
		if l.refs == 0 {
			delete(s.locks, names[i])
		}
		l.mu.Unlock()
	}
}

// lockEntries reports the size of the lock table.
func (s *Store) lockEntries() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}

func (s *Store) commit(tx *memTx) {
	if len(tx.staged) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range tx.inserted {
		s.order = append(s.order, name)
	}
	for name, e := range tx.staged {
		s.records[name] = e
	}
}

type memTx struct {
	store    *Store
	owned    map[string]struct{}
	staged   map[string]ledger.Entity
	inserted []string
}

func (tx *memTx) Insert(_ context.Context, e ledger.Entity) error {
	if err := tx.checkOwned(e.Name); err != nil {
		return err
	}
	if _, ok := tx.lookup(e.Name); ok {
		return ledger.Duplicate(e.Name)
	}
	tx.staged[e.Name] = e
	tx.inserted = append(tx.inserted, e.Name)
	return nil
}

func (tx *memTx) Get(_ context.Context, name string) (ledger.Entity, error) {
	if err := tx.checkOwned(name); err != nil {
		return ledger.Entity{}, err
	}
	e, ok := tx.lookup(name)
	if !ok {
		return ledger.Entity{}, ledger.NotFound(name)
	}
	return e, nil
}

func (tx *memTx) Update(_ context.Context, e ledger.Entity) error {
	if err := tx.checkOwned(e.Name); err != nil {
		return err
	}
	if _, ok := tx.lookup(e.Name); !ok {
		return ledger.NotFound(e.Name)
	}
	tx.staged[e.Name] = e
	return nil
}

func (tx *memTx) lookup(name string) (ledger.Entity, bool) {
	if e, ok := tx.staged[name]; ok {
		return e, true
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	e, ok := tx.store.records[name]
	return e, ok
}

func (tx *memTx) checkOwned(name string) error {
	if _, ok := tx.owned[name]; !ok {
		return fmt.Errorf("memory: entity %q is not owned by this transaction", name)
	}
	return nil
}
