package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/carbonledger/internal/ledger"
	"github.com/roach88/carbonledger/internal/store/memory"
	"github.com/roach88/carbonledger/internal/testutil"
)

// StoreFactory opens the empty store a scenario runs on. The harness
// closes it when the scenario ends.
type StoreFactory func() (ledger.Store, error)

// Option configures a run.
type Option func(*Harness)

// WithStoreFactory runs scenarios on stores from f instead of the
// in-memory store.
func WithStoreFactory(f StoreFactory) Option {
	return func(h *Harness) {
		h.newStore = f
	}
}

// WithLogger sends ledger operation logs to logger. Operation IDs are
// deterministic ("<scenario>-1", "<scenario>-2", ...).
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// Harness is the scenario execution engine.
type Harness struct {
	newStore StoreFactory
	logger   *slog.Logger
	ledger   *ledger.Ledger
	clock    *testutil.DeterministicClock
}

// Run executes a scenario and returns the result.
//
// Each scenario runs on a fresh store with a fresh deterministic clock,
// so results are reproducible.
//
// Execution flow:
// 1. Open an empty store
// 2. Execute setup steps (any failure aborts the run)
// 3. Execute flow steps, checking each expect clause
// 4. Read the final entity table
// 5. Evaluate assertions
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		newStore: func() (ledger.Store, error) { return memory.New(), nil },
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		clock:    testutil.NewDeterministicClock(),
	}
	for _, opt := range opts {
		opt(h)
	}

	st, err := h.newStore()
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	ids := testutil.NewSequentialIDs(scenario.Name)
	h.ledger = ledger.New(st,
		ledger.WithLogger(h.logger.With("scenario", scenario.Name)),
		ledger.WithIDGenerator(ids.Next),
	)

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	h.executeFlow(ctx, scenario.Flow, result)

	for e, err := range h.ledger.ListEntities(ctx) {
		if err != nil {
			return nil, fmt.Errorf("failed to read final state: %w", err)
		}
		result.Entities = append(result.Entities, e)
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (h *Harness) executeSetup(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		outputCase, err := h.execute(ctx, step, result)
		if outputCase != CaseOK {
			return fmt.Errorf("setup[%d] %s: %w", i, step.Op, err)
		}
	}
	return nil
}

func (h *Harness) executeFlow(ctx context.Context, steps []Step, result *Result) {
	for i, step := range steps {
		outputCase, err := h.execute(ctx, step, result)

		want := CaseOK
		if step.Expect != nil {
			want = step.Expect.Case
		}
		if outputCase == want {
			continue
		}
		if err != nil {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected case %s, got %s: %v", i, step.Op, want, outputCase, err))
		} else {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected case %s, got %s", i, step.Op, want, outputCase))
		}
	}
}

// execute runs one step and traces its invocation and completion.
func (h *Harness) execute(ctx context.Context, step Step, result *Result) (string, error) {
	result.AddInvocationTrace(step.Op, step.Args, h.clock.Next())

	out, err := h.dispatch(ctx, step)
	if err != nil {
		outputCase := ledger.KindName(err)
		result.AddCompletionTrace(step.Op, outputCase, nil, err.Error(), h.clock.Next())
		return outputCase, err
	}
	result.AddCompletionTrace(step.Op, CaseOK, out, "", h.clock.Next())
	return CaseOK, nil
}

// dispatch calls the ledger. Arguments were checked when the scenario
// was loaded.
func (h *Harness) dispatch(ctx context.Context, step Step) (any, error) {
	switch step.Op {
	case OpRegister:
		name, _ := argString(step.Args, "name")
		allowed, _ := argInt(step.Args, "allowed")
		return h.ledger.Register(ctx, name, allowed)
	case OpEmissions:
		name, _ := argString(step.Args, "name")
		actual, _ := argInt(step.Args, "actual")
		return h.ledger.RecordEmissions(ctx, name, actual)
	case OpTransfer:
		seller, _ := argString(step.Args, "seller")
		buyer, _ := argString(step.Args, "buyer")
		amount, _ := argInt(step.Args, "amount")
		return h.ledger.Transfer(ctx, seller, buyer, amount)
	default:
		return nil, fmt.Errorf("unknown op %q", step.Op)
	}
}
