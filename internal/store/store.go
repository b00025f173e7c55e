package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/roach88/carbonledger/internal/ledger"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Imported rows from the legacy companies table, if present
const currentSchemaVersion = 1

// SQL driver names accepted by WithDriver.
const (
	DriverCGO    = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

const defaultPageSize = 256

// Store is the SQLite implementation of ledger.Store.
type Store struct {
	db       *sql.DB
	pageSize int
}

// Option configures Open.
type Option func(*options)

type options struct {
	driver   string
	pageSize int
	logger   *slog.Logger
}

// WithDriver selects the database/sql driver (DriverCGO or DriverPureGo).
func WithDriver(driver string) Option {
	return func(o *options) { o.driver = driver }
}

// WithLogger sets the logger used while migrating legacy data.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPageSize sets how many rows All fetches per query.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// Use ":memory:" for a throwaway database (tests, scenario harness).
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{
		driver:   DriverCGO,
		pageSize: defaultPageSize,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.driver != DriverCGO && o.driver != DriverPureGo {
		return nil, fmt.Errorf("unsupported sqlite driver %q", o.driver)
	}

	db, err := sql.Open(o.driver, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db, o.logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, pageSize: o.pageSize}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// dsn appends the immediate transaction lock mode. Both drivers honour
// _txlock.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate"
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB, logger *slog.Logger) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db, logger); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// legacyCompany is one row of the original tool's companies table.
type legacyCompany struct {
	id      int64
	name    sql.NullString
	allowed int64
	actual  int64
	credits int64
}

// migrateToV1 copies rows from the legacy companies table written by the
// original carbon_credits tool, in id order. Names are stored in
// canonical form so the ledger can find them. Rows that cannot become
// entities (no name, negative emissions, a name already taken after
// canonicalisation) are left behind and logged at warn.
func migrateToV1(db *sql.DB, logger *slog.Logger) error {
	var n int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'companies'",
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	if n == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	defer tx.Rollback()

	companies, err := readLegacyCompanies(tx)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}

	imported := make(map[string]int64, len(companies))
	for _, c := range companies {
		log := logger.With("legacy_id", c.id, "name", c.name.String, "credits", c.credits)

		name := ledger.CanonicalName(c.name.String)
		if !c.name.Valid || name == "" {
			log.Warn("legacy company skipped: missing name")
			continue
		}
		if c.allowed < 0 || c.actual < 0 {
			log.Warn("legacy company skipped: negative emissions",
				"allowed_emissions", c.allowed, "actual_emissions", c.actual)
			continue
		}
		if keptID, dup := imported[name]; dup {
			log.Warn("legacy company skipped: name already imported", "canonical", name, "kept_id", keptID)
			continue
		}

		res, err := tx.Exec(
			`INSERT OR IGNORE INTO entities (name, allowed_emissions, actual_emissions, credits)
			 VALUES (?, ?, ?, ?)`,
			name, c.allowed, c.actual, c.credits,
		)
		if err != nil {
			return fmt.Errorf("migrate to v1: import %q: %w", name, err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			log.Warn("legacy company skipped: entity already exists", "canonical", name)
			continue
		}
		imported[name] = c.id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	logger.Info("imported legacy companies", "imported", len(imported), "rows", len(companies))
	return nil
}

func readLegacyCompanies(tx *sql.Tx) ([]legacyCompany, error) {
	rows, err := tx.Query(`
		SELECT id, name,
		       COALESCE(allowed_emissions, 0),
		       COALESCE(actual_emissions, 0),
		       COALESCE(credits, 0)
		FROM companies
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []legacyCompany
	for rows.Next() {
		var c legacyCompany
		if err := rows.Scan(&c.id, &c.name, &c.allowed, &c.actual, &c.credits); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
