package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/roach88/carbonledger/internal/ledger"
	"github.com/roach88/carbonledger/internal/store/storetest"
)

// dsnEnv points the tests at an existing disposable database instead of
// a container.
const dsnEnv = "CARBONLEDGER_POSTGRES_DSN"

// testDSN returns the database the tests run against: $CARBONLEDGER_POSTGRES_DSN
// if set, otherwise a postgres container terminated when t finishes.
func testDSN(t *testing.T) string {
	t.Helper()

	if dsn := os.Getenv(dsnEnv); dsn != "" {
		return dsn
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("carbonledger"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestConformance(t *testing.T) {
	dsn := testDSN(t)

	storetest.Run(t, func(t *testing.T) ledger.Store {
		ctx := context.Background()
		s, err := Open(ctx, dsn)
		require.NoError(t, err)
		_, err = s.pool.Exec(ctx, "TRUNCATE entities RESTART IDENTITY")
		require.NoError(t, err)
		return s
	})
}

func TestOpen_BadDSN(t *testing.T) {
	_, err := Open(context.Background(), "postgres://nobody@127.0.0.1:1/none?connect_timeout=1")
	require.Error(t, err)
}
