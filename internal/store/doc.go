// Package store provides the SQLite-backed ledger.Store.
//
// Entities live in a single table keyed by name:
//
//	entities(id, name UNIQUE, allowed_emissions, actual_emissions, credits)
//
// id is an AUTOINCREMENT rowid and defines listing order.
//
// # Transactions
//
// Transact begins an IMMEDIATE transaction, taking SQLite's write lock
// up front so two writers never deadlock upgrading from a read lock. The
// pool is limited to one connection, which serializes writers in-process;
// busy_timeout covers other processes sharing the file. A commit that
// still fails is returned to the caller for retry.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// # Drivers
//
// DriverCGO (mattn/go-sqlite3) is the default. DriverPureGo
// (modernc.org/sqlite) needs no C toolchain. Both read the same file format.
//
// # Legacy databases
//
// Opening a database created by the original carbon_credits tool copies
// its companies table into entities once (schema version 1).
package store
