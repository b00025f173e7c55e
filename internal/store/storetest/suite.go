// Package storetest is a conformance suite every ledger.Store
// implementation runs from its own tests:
//
//	func TestConformance(t *testing.T) {
//	    storetest.Run(t, func(t *testing.T) ledger.Store { return memory.New() })
//	}
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/roach88/carbonledger/internal/ledger"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) ledger.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	suite.Run(t, &Suite{newStore: newStore})
}

// Suite holds the conformance tests.
type Suite struct {
	suite.Suite
	newStore Factory
	store    ledger.Store
	ctx      context.Context
}

func (s *Suite) SetupTest() {
	s.store = s.newStore(s.T())
	s.ctx = context.Background()
}

func (s *Suite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *Suite) insert(e ledger.Entity) error {
	return s.store.Transact(s.ctx, []string{e.Name}, func(ctx context.Context, tx ledger.Tx) error {
		return tx.Insert(ctx, e)
	})
}

func (s *Suite) collect() []ledger.Entity {
	var out []ledger.Entity
	for e, err := range s.store.All(s.ctx) {
		s.Require().NoError(err)
		out = append(out, e)
	}
	return out
}

func (s *Suite) TestInsertThenGet() {
	want := ledger.Entity{Name: "Acme", AllowedEmissions: 100, Credits: 100}
	s.Require().NoError(s.insert(want))

	got, err := s.store.Get(s.ctx, "Acme")
	s.Require().NoError(err)
	s.Equal(want, got)
}

func (s *Suite) TestInsertDuplicate() {
	orig := ledger.Entity{Name: "Acme", AllowedEmissions: 100, Credits: 100}
	s.Require().NoError(s.insert(orig))

	err := s.insert(ledger.Entity{Name: "Acme", AllowedEmissions: 5, Credits: 5})
	s.Require().Error(err)
	s.ErrorIs(err, ledger.ErrDuplicateEntity)

	got, err := s.store.Get(s.ctx, "Acme")
	s.Require().NoError(err)
	s.Equal(orig, got)
}

func (s *Suite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, "nobody")
	s.ErrorIs(err, ledger.ErrNotFound)
}

func (s *Suite) TestTxGetMissing() {
	err := s.store.Transact(s.ctx, []string{"nobody"}, func(ctx context.Context, tx ledger.Tx) error {
		_, err := tx.Get(ctx, "nobody")
		return err
	})
	s.ErrorIs(err, ledger.ErrNotFound)
}

func (s *Suite) TestUpdateMissing() {
	err := s.store.Transact(s.ctx, []string{"nobody"}, func(ctx context.Context, tx ledger.Tx) error {
		return tx.Update(ctx, ledger.Entity{Name: "nobody", Credits: 1})
	})
	s.ErrorIs(err, ledger.ErrNotFound)
}

func (s *Suite) TestUpdateReplacesRecord() {
	s.Require().NoError(s.insert(ledger.Entity{Name: "Acme", AllowedEmissions: 100, Credits: 100}))

	next := ledger.Entity{Name: "Acme", AllowedEmissions: 100, ActualEmissions: 40, Credits: 60}
	err := s.store.Transact(s.ctx, []string{"Acme"}, func(ctx context.Context, tx ledger.Tx) error {
		return tx.Update(ctx, next)
	})
	s.Require().NoError(err)

	got, err := s.store.Get(s.ctx, "Acme")
	s.Require().NoError(err)
	s.Equal(next, got)
}

func (s *Suite) TestTxSeesOwnWrites() {
	s.Require().NoError(s.insert(ledger.Entity{Name: "Acme", AllowedEmissions: 10, Credits: 10}))

	err := s.store.Transact(s.ctx, []string{"Acme"}, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.Update(ctx, ledger.Entity{Name: "Acme", AllowedEmissions: 10, Credits: 3}); err != nil {
			return err
		}
		e, err := tx.Get(ctx, "Acme")
		if err != nil {
			return err
		}
		s.Equal(int64(3), e.Credits)
		return nil
	})
	s.Require().NoError(err)
}

func (s *Suite) TestFailedTransactionLeavesNoTrace() {
	s.Require().NoError(s.insert(ledger.Entity{Name: "Acme", AllowedEmissions: 100, Credits: 100}))

	boom := errors.New("boom")
	err := s.store.Transact(s.ctx, []string{"Acme", "Globex"}, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.Insert(ctx, ledger.Entity{Name: "Globex", AllowedEmissions: 50, Credits: 50}); err != nil {
			return err
		}
		if err := tx.Update(ctx, ledger.Entity{Name: "Acme", AllowedEmissions: 100, Credits: 0}); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.store.Get(s.ctx, "Globex")
	s.ErrorIs(err, ledger.ErrNotFound)
	acme, err := s.store.Get(s.ctx, "Acme")
	s.Require().NoError(err)
	s.Equal(int64(100), acme.Credits)
	s.Len(s.collect(), 1)
}

func (s *Suite) TestUnownedNameRejected() {
	s.Require().NoError(s.insert(ledger.Entity{Name: "Acme", AllowedEmissions: 1, Credits: 1}))

	err := s.store.Transact(s.ctx, []string{"Globex"}, func(ctx context.Context, tx ledger.Tx) error {
		_, err := tx.Get(ctx, "Acme")
		return err
	})
	s.Error(err)
	s.NotErrorIs(err, ledger.ErrNotFound)
}

func (s *Suite) TestAllInsertionOrder() {
	for _, name := range []string{"Globex", "Acme", "Initech"} {
		s.Require().NoError(s.insert(ledger.Entity{Name: name}))
	}

	var names []string
	for _, e := range s.collect() {
		names = append(names, e.Name)
	}
	s.Equal([]string{"Globex", "Acme", "Initech"}, names)
}

func (s *Suite) TestAllIsRestartable() {
	for i := range 5 {
		s.Require().NoError(s.insert(ledger.Entity{Name: fmt.Sprintf("e%02d", i), AllowedEmissions: int64(i)}))
	}
	first := s.collect()
	second := s.collect()
	s.Len(first, 5)
	s.Equal(first, second)
}

func (s *Suite) TestAllEarlyBreak() {
	for i := range 5 {
		s.Require().NoError(s.insert(ledger.Entity{Name: fmt.Sprintf("e%02d", i)}))
	}

	seen := 0
	for _, err := range s.store.All(s.ctx) {
		s.Require().NoError(err)
		seen++
		if seen == 2 {
			break
		}
	}
	s.Equal(2, seen)

	// The store stays usable after an abandoned iteration.
	s.Require().NoError(s.insert(ledger.Entity{Name: "late"}))
}

func (s *Suite) TestAllEmpty() {
	s.Empty(s.collect())
}

func (s *Suite) TestWriteDuringIteration() {
	s.Require().NoError(s.insert(ledger.Entity{Name: "Acme", AllowedEmissions: 10, Credits: 10}))
	s.Require().NoError(s.insert(ledger.Entity{Name: "Globex", AllowedEmissions: 10, Credits: 10}))

	l := ledger.New(s.store)
	for e, err := range s.store.All(s.ctx) {
		s.Require().NoError(err)
		_, err := l.RecordEmissions(s.ctx, e.Name, 1)
		s.Require().NoError(err)
	}
	for _, e := range s.collect() {
		s.Equal(int64(9), e.Credits)
	}
}

// TestConcurrentDoubleSpend runs two transfers out of one seller whose
// balance covers only one of them.
func (s *Suite) TestConcurrentDoubleSpend() {
	l := ledger.New(s.store)
	_, err := l.Register(s.ctx, "Seller", 30)
	s.Require().NoError(err)
	_, err = l.Register(s.ctx, "BuyerA", 0)
	s.Require().NoError(err)
	_, err = l.Register(s.ctx, "BuyerB", 0)
	s.Require().NoError(err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, buyer := range []string{"BuyerA", "BuyerB"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = l.Transfer(s.ctx, "Seller", buyer, 20)
		}()
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ledger.ErrInsufficientBalance):
			insufficient++
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}
	s.Equal(1, ok)
	s.Equal(1, insufficient)

	seller, err := s.store.Get(s.ctx, "Seller")
	s.Require().NoError(err)
	s.Equal(int64(10), seller.Credits)
}

// TestConcurrentTransfersConserveCredits shuffles credits around a ring in
// both directions and checks nothing is created, destroyed or overdrawn.
func (s *Suite) TestConcurrentTransfersConserveCredits() {
	l := ledger.New(s.store)
	names := []string{"a", "b", "c", "d"}
	for _, n := range names {
		_, err := l.Register(s.ctx, n, 100)
		s.Require().NoError(err)
	}

	const rounds = 25
	var wg sync.WaitGroup
	for i := range names {
		for _, step := range []int{1, len(names) - 1} {
			from, to := names[i], names[(i+step)%len(names)]
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range rounds {
					_, err := l.Transfer(s.ctx, from, to, 3)
					if err != nil && !errors.Is(err, ledger.ErrInsufficientBalance) {
						s.Failf("unexpected error", "%s -> %s: %v", from, to, err)
						return
					}
				}
			}()
		}
	}
	wg.Wait()

	var total int64
	for _, e := range s.collect() {
		s.GreaterOrEqual(e.Credits, int64(0), "entity %s overdrawn", e.Name)
		total += e.Credits
	}
	s.Equal(int64(100*len(names)), total)
}
