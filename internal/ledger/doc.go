// Package ledger implements the carbon credit accounting rules.
//
// A Ledger registers entities with an emission allowance, records their
// actual emissions, and moves credits between them. Every mutating
// operation runs as one transaction against an injected Store:
//
//   - Register creates an entity whose credits equal its allowance.
//   - RecordEmissions overwrites actual emissions and recomputes
//     credits = allowed - actual. Credits may go negative (a deficit).
//   - Transfer moves credits from a seller to a buyer. The seller must
//     cover the amount; the sum of both balances is unchanged.
//
// # Ownership
//
// Store.Transact receives the names a transaction will touch and acquires
// them in lexicographic order, so two transfers over the same pair in
// opposite directions cannot deadlock. Writes become visible together or
// not at all.
//
// # Errors
//
// Every failure is a *Error whose Kind is one of ErrInvalidArgument,
// ErrNotFound, ErrDuplicateEntity, ErrInsufficientBalance or
// ErrStorageFailure. Use errors.Is against the sentinels or KindOf.
// StorageFailure is the only kind worth retrying.
package ledger
