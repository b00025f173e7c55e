package ledger

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math"

	"github.com/google/uuid"
)

// Ledger applies the credit accounting rules to a Store.
//
// A Ledger holds no state of its own between calls and is safe for
// concurrent use; consistency is the Store's job.
type Ledger struct {
	store  Store
	logger *slog.Logger
	newID  func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger used for operation logs.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithIDGenerator overrides the operation ID generator (UUIDv7 by default).
// Tests use it for deterministic log output.
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) {
		if gen != nil {
			l.newID = gen
		}
	}
}

// New creates a Ledger over store. The caller owns the store's lifecycle.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register creates an entity with actual emissions 0 and credits equal to
// allowed.
func (l *Ledger) Register(ctx context.Context, name string, allowed int64) (Entity, error) {
	const op = "register"
	name = CanonicalName(name)
	if err := checkInput(op, registerInput{Name: name, AllowedEmissions: allowed}, name); err != nil {
		return Entity{}, err
	}

	log := l.opLogger(op)
	log.Debug("registering entity", "name", name, "allowed_emissions", allowed)

	e := Entity{
		Name:             name,
		AllowedEmissions: allowed,
		ActualEmissions:  0,
		Credits:          allowed,
	}
	err := l.store.Transact(ctx, []string{name}, func(ctx context.Context, tx Tx) error {
		return tx.Insert(ctx, e)
	})
	if err != nil {
		err = classify(op, err)
		log.Debug("register rejected", "name", name, "error", err)
		return Entity{}, err
	}

	log.Info("entity registered", "name", name, "credits", e.Credits)
	return e, nil
}

// RecordEmissions overwrites the entity's actual emissions and recomputes
// credits as allowed - actual. The result may be negative.
func (l *Ledger) RecordEmissions(ctx context.Context, name string, actual int64) (Entity, error) {
	const op = "record_emissions"
	name = CanonicalName(name)
	if err := checkInput(op, emissionsInput{Name: name, ActualEmissions: actual}, name); err != nil {
		return Entity{}, err
	}

	log := l.opLogger(op)
	log.Debug("recording emissions", "name", name, "actual_emissions", actual)

	var updated Entity
	err := l.store.Transact(ctx, []string{name}, func(ctx context.Context, tx Tx) error {
		e, err := tx.Get(ctx, name)
		if err != nil {
			return err
		}
		e.ActualEmissions = actual
		e.Credits = e.AllowedEmissions - actual
		if err := tx.Update(ctx, e); err != nil {
			return err
		}
		updated = e
		return nil
	})
	if err != nil {
		err = classify(op, err)
		log.Debug("record emissions rejected", "name", name, "error", err)
		return Entity{}, err
	}

	log.Info("emissions recorded",
		"name", name,
		"actual_emissions", updated.ActualEmissions,
		"credits", updated.Credits,
	)
	return updated, nil
}

// Transfer moves amount credits from seller to buyer in one transaction.
// The seller must hold at least amount credits.
func (l *Ledger) Transfer(ctx context.Context, seller, buyer string, amount int64) (Transfer, error) {
	const op = "transfer"
	seller = CanonicalName(seller)
	buyer = CanonicalName(buyer)
	in := transferInput{Seller: seller, Buyer: buyer, Amount: amount}
	if err := checkInput(op, in, seller, buyer); err != nil {
		return Transfer{}, err
	}

	log := l.opLogger(op)
	log.Debug("transferring credits", "seller", seller, "buyer", buyer, "amount", amount)

	var result Transfer
	err := l.store.Transact(ctx, []string{seller, buyer}, func(ctx context.Context, tx Tx) error {
		s, b, err := getPair(ctx, tx, seller, buyer)
		if err != nil {
			return err
		}
		if s.Credits < amount {
			return &Error{
				Kind:    ErrInsufficientBalance,
				Names:   []string{seller},
				Message: fmt.Sprintf("has %d credits, needs %d", s.Credits, amount),
			}
		}
		if b.Credits > math.MaxInt64-amount {
			return invalidArgument(op, "transfer would overflow buyer balance", buyer)
		}

		s.Credits -= amount
		b.Credits += amount
		if err := tx.Update(ctx, s); err != nil {
			return err
		}
		if err := tx.Update(ctx, b); err != nil {
			return err
		}
		result = Transfer{Seller: s, Buyer: b, Amount: amount}
		return nil
	})
	if err != nil {
		err = classify(op, err)
		log.Debug("transfer rejected", "seller", seller, "buyer", buyer, "error", err)
		return Transfer{}, err
	}

	log.Info("credits transferred",
		"seller", seller,
		"buyer", buyer,
		"amount", amount,
		"seller_credits", result.Seller.Credits,
		"buyer_credits", result.Buyer.Credits,
	)
	return result, nil
}

// Get returns the committed state of one entity.
func (l *Ledger) Get(ctx context.Context, name string) (Entity, error) {
	const op = "get"
	name = CanonicalName(name)
	if name == "" {
		return Entity{}, invalidArgument(op, "name must not be empty")
	}
	e, err := l.store.Get(ctx, name)
	if err != nil {
		return Entity{}, classify(op, err)
	}
	return e, nil
}

// ListEntities yields every entity in insertion order. The sequence is
// lazy and restartable; errors are reported as ledger errors.
func (l *Ledger) ListEntities(ctx context.Context) iter.Seq2[Entity, error] {
	return func(yield func(Entity, error) bool) {
		for e, err := range l.store.All(ctx) {
			if err != nil {
				yield(Entity{}, classify("list_entities", err))
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// getPair reads both sides of a transfer, reporting every missing name.
func getPair(ctx context.Context, tx Tx, seller, buyer string) (Entity, Entity, error) {
	s, sErr := tx.Get(ctx, seller)
	b, bErr := tx.Get(ctx, buyer)

	var missing []string
	for _, r := range []struct {
		name string
		err  error
	}{{seller, sErr}, {buyer, bErr}} {
		if r.err == nil {
			continue
		}
		if KindOf(r.err) != ErrNotFound {
			return Entity{}, Entity{}, r.err
		}
		missing = append(missing, r.name)
	}
	if len(missing) > 0 {
		return Entity{}, Entity{}, NotFound(missing...)
	}
	return s, b, nil
}

func (l *Ledger) opLogger(op string) *slog.Logger {
	return l.logger.With("op", op, "op_id", l.newID())
}
