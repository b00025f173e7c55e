package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/carbonledger/internal/config"
	"github.com/roach88/carbonledger/internal/ledger"
	"github.com/roach88/carbonledger/internal/retry"
	"github.com/roach88/carbonledger/internal/store"
	"github.com/roach88/carbonledger/internal/store/memory"
	"github.com/roach88/carbonledger/internal/store/postgres"
)

// session is everything a ledger command needs: the resolved config,
// an open store and a ledger over it.
type session struct {
	cfg    config.Config
	logger *slog.Logger
	store  ledger.Store
	ledger *ledger.Ledger
	out    *OutputFormatter
	policy retry.Policy
}

// resolveConfig loads the config file and applies flag overrides.
func resolveConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	if opts.Driver != "" {
		cfg.Store.Driver = opts.Driver
	}
	if opts.DB != "" {
		cfg.Store.Path = opts.DB
	}
	if opts.DSN != "" {
		cfg.Store.DSN = opts.DSN
	}
	if opts.Format != "" {
		cfg.Output = opts.Format
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// openSession resolves configuration and opens the store. The caller
// must Close the session.
func openSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}

	logger := cfg.Log.NewLogger(cmd.ErrOrStderr())
	st, err := openStore(cmd.Context(), cfg.Store, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	logger.Debug("store opened", "driver", cfg.Store.Driver, "path", cfg.Store.Path)

	return &session{
		cfg:    cfg,
		logger: logger,
		store:  st,
		ledger: ledger.New(st, ledger.WithLogger(logger)),
		out: &OutputFormatter{
			Format:  cfg.Output,
			Writer:  cmd.OutOrStdout(),
			Verbose: opts.Verbose,
		},
		policy: retry.Policy{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialInterval: cfg.Retry.InitialInterval.Std(),
			MaxInterval:     cfg.Retry.MaxInterval.Std(),
		},
	}, nil
}

func openStore(ctx context.Context, sc config.StoreConfig, logger *slog.Logger) (ledger.Store, error) {
	switch sc.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverPostgres:
		return postgres.Open(ctx, sc.DSN)
	default:
		return store.Open(sc.Path, store.WithDriver(sc.Driver), store.WithLogger(logger))
	}
}

// Close releases the store.
func (s *session) Close() error {
	return s.store.Close()
}

// Register, RecordEmissions and Transfer retry storage failures per the
// configured policy.

func (s *session) Register(ctx context.Context, name string, allowed int64) (ledger.Entity, error) {
	return retry.Do(ctx, s.policy, s.logger, func(ctx context.Context) (ledger.Entity, error) {
		return s.ledger.Register(ctx, name, allowed)
	})
}

func (s *session) RecordEmissions(ctx context.Context, name string, actual int64) (ledger.Entity, error) {
	return retry.Do(ctx, s.policy, s.logger, func(ctx context.Context) (ledger.Entity, error) {
		return s.ledger.RecordEmissions(ctx, name, actual)
	})
}

func (s *session) Transfer(ctx context.Context, seller, buyer string, amount int64) (ledger.Transfer, error) {
	return retry.Do(ctx, s.policy, s.logger, func(ctx context.Context) (ledger.Transfer, error) {
		return s.ledger.Transfer(ctx, seller, buyer, amount)
	})
}

func (s *session) Get(ctx context.Context, name string) (ledger.Entity, error) {
	return retry.Do(ctx, s.policy, s.logger, func(ctx context.Context) (ledger.Entity, error) {
		return s.ledger.Get(ctx, name)
	})
}

// Entities collects the listing, retrying the whole read on storage
// failure.
func (s *session) Entities(ctx context.Context) ([]ledger.Entity, error) {
	return retry.Do(ctx, s.policy, s.logger, func(ctx context.Context) ([]ledger.Entity, error) {
		entities := []ledger.Entity{}
		for e, err := range s.ledger.ListEntities(ctx) {
			if err != nil {
				return nil, err
			}
			entities = append(entities, e)
		}
		return entities, nil
	})
}
