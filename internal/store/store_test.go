package store

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/carbonledger/internal/ledger"
	"github.com/roach88/carbonledger/internal/store/storetest"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance_CGODriver(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ledger.Store {
		s, err := Open(filepath.Join(t.TempDir(), "conformance.db"), WithDriver(DriverCGO))
		require.NoError(t, err)
		return s
	})
}

func TestConformance_PureGoDriver(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ledger.Store {
		s, err := Open(filepath.Join(t.TempDir(), "conformance.db"), WithDriver(DriverPureGo))
		require.NoError(t, err)
		return s
	})
}

func TestConformance_SmallPages(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ledger.Store {
		s, err := Open(filepath.Join(t.TempDir(), "conformance.db"), WithPageSize(2))
		require.NoError(t, err)
		return s
	})
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	l := ledger.New(s)
	_, err = l.Register(context.Background(), "Acme", 100)
	require.NoError(t, err)

	got, err := s.Get(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Credits)
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	_, err = ledger.New(s1).Register(ctx, "Acme", 100)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	// Reopen with the other driver; the file format is shared.
	s2, err := Open(path, WithDriver(DriverPureGo))
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, ledger.Entity{Name: "Acme", AllowedEmissions: 100, Credits: 100}, got)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Open multiple times
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='entities'",
	).Scan(&name)
	assert.NoError(t, err, "entities table not found after idempotent opens")
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "test.db"), WithDriver("postgres"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported sqlite driver")
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	err := s.Close()
	if err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestDB_ReturnsUnderlyingConnection(t *testing.T) {
	s := createTestStore(t)

	db := s.DB()
	require.NotNil(t, db)
	assert.NoError(t, db.Ping())
}

// Pragma tests

func TestPragma_JournalMode(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestPragma_Synchronous(t *testing.T) {
	s := createTestStore(t)
	// NORMAL = 1
	if err := s.verifyPragma("synchronous", "1"); err != nil {
		t.Error(err)
	}
}

func TestPragma_BusyTimeout(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestPragma_UserVersion(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
}

// Schema tests

func TestSchema_EntitiesTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "entities")
	for _, col := range []string{"id", "name", "allowed_emissions", "actual_emissions", "credits"} {
		assert.Contains(t, columns, col)
	}
}

func TestConstraint_UniqueName(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec("INSERT INTO entities (name, allowed_emissions, credits) VALUES ('Acme', 1, 1)")
	require.NoError(t, err)
	_, err = s.db.Exec("INSERT INTO entities (name, allowed_emissions, credits) VALUES ('Acme', 2, 2)")
	assert.Error(t, err, "duplicate name should violate UNIQUE")
}

func TestConstraint_NonNegativeEmissions(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec("INSERT INTO entities (name, allowed_emissions, credits) VALUES ('Acme', -1, -1)")
	assert.Error(t, err, "negative allowed_emissions should violate CHECK")

	_, err = s.db.Exec("INSERT INTO entities (name, allowed_emissions, actual_emissions, credits) VALUES ('Acme', 1, -1, 2)")
	assert.Error(t, err, "negative actual_emissions should violate CHECK")
}

func TestConstraint_NegativeCreditsAllowed(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec("INSERT INTO entities (name, allowed_emissions, actual_emissions, credits) VALUES ('Acme', 10, 40, -30)")
	assert.NoError(t, err, "credits may be negative (deficit)")
}

// Legacy migration

func TestMigration_ImportsLegacyCompanies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carbon_credits.db")

	writeLegacyDB(t, path, `
		INSERT INTO companies (name, allowed_emissions, actual_emissions, credits) VALUES
			('Globex', 50, 0, 70),
			('Acme', 100, 40, 40),
			(NULL, 10, 0, 10),
			('Broken', -5, 0, -5)`)

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var got []ledger.Entity
	for e, err := range s.All(context.Background()) {
		require.NoError(t, err)
		got = append(got, e)
	}
	assert.Equal(t, []ledger.Entity{
		{Name: "Globex", AllowedEmissions: 50, ActualEmissions: 0, Credits: 70},
		{Name: "Acme", AllowedEmissions: 100, ActualEmissions: 40, Credits: 40},
	}, got)

	// A second open must not import again.
	require.NoError(t, s.Close())
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	var n int
	require.NoError(t, s2.db.QueryRow("SELECT COUNT(*) FROM entities").Scan(&n))
	assert.Equal(t, 2, n)
}

func TestMigration_CanonicalisesLegacyNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carbon_credits.db")
	writeLegacyDB(t, path, `
		INSERT INTO companies (name, allowed_emissions, actual_emissions, credits) VALUES
			('Cafe'||char(769), 30, 0, 30),
			('Acme'||char(9), 100, 0, 100),
			(' Globex', 5, 0, 5),
			('Globex', 99, 0, 99)`)

	var logs bytes.Buffer
	s, err := Open(path, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)
	defer s.Close()

	var got []ledger.Entity
	for e, err := range s.All(context.Background()) {
		require.NoError(t, err)
		got = append(got, e)
	}
	assert.Equal(t, []ledger.Entity{
		{Name: "Caf\u00e9", AllowedEmissions: 30, Credits: 30},
		{Name: "Acme", AllowedEmissions: 100, Credits: 100},
		{Name: "Globex", AllowedEmissions: 5, Credits: 5},
	}, got)

	// Imported names are reachable through the ledger however they are typed.
	l := ledger.New(s)
	ctx := context.Background()
	_, err = l.RecordEmissions(ctx, "Cafe\u0301", 10)
	require.NoError(t, err)
	_, err = l.RecordEmissions(ctx, "Acme", 40)
	require.NoError(t, err)

	// The colliding row is reported, not silently lost.
	assert.Contains(t, logs.String(), "legacy company skipped: name already imported")
	assert.Contains(t, logs.String(), "legacy_id=4")
	assert.Contains(t, logs.String(), "credits=99")
	assert.Contains(t, logs.String(), "kept_id=3")
}

func writeLegacyDB(t *testing.T, path, inserts string) {
	t.Helper()

	// Build a database the way the original tool did.
	legacy, err := sql.Open(DriverCGO, path)
	require.NoError(t, err)
	_, err = legacy.Exec(`
		CREATE TABLE companies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE,
			allowed_emissions INTEGER,
			actual_emissions INTEGER DEFAULT 0,
			credits INTEGER DEFAULT 0
		)`)
	require.NoError(t, err)
	_, err = legacy.Exec(inserts)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "x.db?_txlock=immediate", dsn("x.db"))
	assert.Equal(t, "file:x.db?mode=rwc&_txlock=immediate", dsn("file:x.db?mode=rwc"))
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	require.NoError(t, err)
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		require.NoError(t, rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk))
		columns = append(columns, name)
	}
	require.NoError(t, rows.Err())
	return columns
}
