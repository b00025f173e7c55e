package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/carbonledger/internal/ledger"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s: expected %s, actual %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertFinalState:
		return assertFinalState(result, a)
	case AssertEntityAbsent:
		return assertEntityAbsent(result, a)
	case AssertTraceCount:
		return assertTraceCount(result, a)
	case AssertTotalCredits:
		return assertTotalCredits(result, a)
	case AssertEntityOrder:
		return assertEntityOrder(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertFinalState compares the listed fields of one entity.
func assertFinalState(result *Result, a Assertion) error {
	name := ledger.CanonicalName(a.Entity)
	e, ok := result.Entity(name)
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("entity %q", name),
			Actual:   "not registered",
		}
	}

	actual := map[string]int64{
		"allowed": e.AllowedEmissions,
		"actual":  e.ActualEmissions,
		"credits": e.Credits,
	}
	var mismatches []string
	for _, field := range stateFields {
		want, ok := a.Expect[field]
		if !ok {
			continue
		}
		if got := actual[field]; got != want {
			mismatches = append(mismatches, fmt.Sprintf("%s=%d (want %d)", field, got, want))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%q to match %v", name, a.Expect),
			Actual:   strings.Join(mismatches, ", "),
		}
	}
	return nil
}

func assertEntityAbsent(result *Result, a Assertion) error {
	name := ledger.CanonicalName(a.Entity)
	if e, ok := result.Entity(name); ok {
		return &AssertionError{
			Type:     AssertEntityAbsent,
			Expected: fmt.Sprintf("no entity %q", name),
			Actual:   fmt.Sprintf("registered with credits %d", e.Credits),
		}
	}
	return nil
}

// assertTraceCount counts completions of an op, optionally of one case.
func assertTraceCount(result *Result, a Assertion) error {
	count := 0
	for _, ev := range result.Trace {
		if ev.Type != EventCompletion || ev.Op != a.Op {
			continue
		}
		if a.Case == "" || ev.Case == a.Case {
			count++
		}
	}
	if count != a.Count {
		what := a.Op
		if a.Case != "" {
			what += " " + a.Case
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d completions of %s", a.Count, what),
			Actual:   fmt.Sprintf("%d", count),
		}
	}
	return nil
}

func assertTotalCredits(result *Result, a Assertion) error {
	var total int64
	for _, e := range result.Entities {
		total += e.Credits
	}
	if total != *a.Total {
		return &AssertionError{
			Type:     AssertTotalCredits,
			Expected: fmt.Sprintf("%d", *a.Total),
			Actual:   fmt.Sprintf("%d", total),
		}
	}
	return nil
}

func assertEntityOrder(result *Result, a Assertion) error {
	got := make([]string, len(result.Entities))
	for i, e := range result.Entities {
		got[i] = e.Name
	}
	want := make([]string, len(a.Entities))
	for i, n := range a.Entities {
		want[i] = ledger.CanonicalName(n)
	}
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertEntityOrder,
			Expected: fmt.Sprintf("%v", want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}
