// Package harness runs ledger scenarios written in YAML.
//
// A scenario drives a fresh ledger through setup and flow steps, checks
// the outcome of each step, then evaluates assertions against the trace
// and the final entity table.
//
// # Scenario Format
//
//	name: worked_example
//	description: "Emissions then a transfer between two companies"
//	setup:
//	  - op: register
//	    args: { name: Acme, allowed: 100 }
//	flow:
//	  - op: emissions
//	    args: { name: Acme, actual: 40 }
//	    expect: { case: ok }
//	  - op: transfer
//	    args: { seller: Acme, buyer: Globex, amount: 1000 }
//	    expect: { case: InsufficientBalance }
//	assertions:
//	  - type: final_state
//	    entity: Acme
//	    expect: { allowed: 100, actual: 40, credits: 60 }
//	  - type: total_credits
//	    total: 110
//
// Operations are register (name, allowed), emissions (name, actual) and
// transfer (seller, buyer, amount). Setup steps must succeed. A flow step
// without expect must succeed too; with expect, its case is either "ok"
// or an error kind name (InvalidArgument, NotFound, DuplicateEntity,
// InsufficientBalance, StorageFailure).
//
// # Assertion Types
//
//   - final_state: the entity's committed values match expect (subset of
//     allowed, actual, credits)
//   - entity_absent: the entity was never registered
//   - trace_count: op completed with case exactly count times
//   - total_credits: the credits of all entities sum to total
//   - entity_order: listing yields exactly these names in this order
//
// # Determinism
//
// Every trace event carries a sequence number from a deterministic clock,
// and each scenario runs on its own store, so the same scenario always
// produces the same trace. RunWithGolden compares that trace and the
// final state with testdata/golden/<name>.golden.
package harness
