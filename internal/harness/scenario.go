package harness

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario is a ledger test: steps to run and what must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Setup steps establish initial state and must all succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow steps are the behavior under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the trace and final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one ledger operation.
type Step struct {
	// Op is register, emissions or transfer.
	Op string `yaml:"op"`

	// Args holds the operation arguments by name.
	Args map[string]any `yaml:"args"`

	// Expect is the expected completion. Nil means the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause names the expected completion case.
type ExpectClause struct {
	// Case is "ok" or an error kind name such as "InsufficientBalance".
	Case string `yaml:"case"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Entity is the entity name (final_state, entity_absent).
	Entity string `yaml:"entity,omitempty"`

	// Expect holds expected values keyed allowed, actual, credits
	// (final_state). Subset match.
	Expect map[string]int64 `yaml:"expect,omitempty"`

	// Op and Case select completions to count (trace_count). An empty
	// Case counts every completion of Op.
	Op   string `yaml:"op,omitempty"`
	Case string `yaml:"case,omitempty"`

	// Count is the expected number of completions (trace_count).
	Count int `yaml:"count,omitempty"`

	// Total is the expected credit sum (total_credits).
	Total *int64 `yaml:"total,omitempty"`

	// Entities is the expected listing order (entity_order).
	Entities []string `yaml:"entities,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState   = "final_state"
	AssertEntityAbsent = "entity_absent"
	AssertTraceCount   = "trace_count"
	AssertTotalCredits = "total_credits"
	AssertEntityOrder  = "entity_order"
)

// Operations.
const (
	OpRegister  = "register"
	OpEmissions = "emissions"
	OpTransfer  = "transfer"
)

// opArgs lists the arguments each operation requires.
var opArgs = map[string]struct {
	strings []string
	ints    []string
}{
	OpRegister:  {strings: []string{"name"}, ints: []string{"allowed"}},
	OpEmissions: {strings: []string{"name"}, ints: []string{"actual"}},
	OpTransfer:  {strings: []string{"seller", "buyer"}, ints: []string{"amount"}},
}

var knownCases = []string{
	CaseOK,
	"InvalidArgument",
	"NotFound",
	"DuplicateEntity",
	"InsufficientBalance",
	"StorageFailure",
}

var stateFields = []string{"allowed", "actual", "credits"}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every .yaml and .yml file in dir, sorted by file
// name. Scenario names must be unique.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}
	slices.Sort(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	names := make(map[string]string, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if prev, dup := names[s.Name]; dup {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", filepath.Base(path), s.Name, prev)
		}
		names[s.Name] = filepath.Base(path)
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: expect is not allowed in setup", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		if step.Expect != nil && !slices.Contains(knownCases, step.Expect.Case) {
			return fmt.Errorf("flow[%d].expect: unknown case %q", i, step.Expect.Case)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(step Step) error {
	shape, ok := opArgs[step.Op]
	if !ok {
		return fmt.Errorf("unknown op %q", step.Op)
	}
	if step.Args == nil {
		return fmt.Errorf("args is required")
	}
	for _, key := range shape.strings {
		if _, err := argString(step.Args, key); err != nil {
			return err
		}
	}
	for _, key := range shape.ints {
		if _, err := argInt(step.Args, key); err != nil {
			return err
		}
	}
	for key := range step.Args {
		if !slices.Contains(shape.strings, key) && !slices.Contains(shape.ints, key) {
			return fmt.Errorf("unknown arg %q for %s", key, step.Op)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalState:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		for key := range a.Expect {
			if !slices.Contains(stateFields, key) {
				return fmt.Errorf("assertions[%d]: unknown final_state field %q", index, key)
			}
		}
	case AssertEntityAbsent:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for entity_absent", index)
		}
	case AssertTraceCount:
		if _, ok := opArgs[a.Op]; !ok {
			return fmt.Errorf("assertions[%d]: unknown op %q for trace_count", index, a.Op)
		}
		if a.Case != "" && !slices.Contains(knownCases, a.Case) {
			return fmt.Errorf("assertions[%d]: unknown case %q for trace_count", index, a.Case)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTotalCredits:
		if a.Total == nil {
			return fmt.Errorf("assertions[%d]: total is required for total_credits", index)
		}
	case AssertEntityOrder:
		if a.Entities == nil {
			return fmt.Errorf("assertions[%d]: entities list is required for entity_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("arg %q is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("arg %q must be a string, got %T", key, v)
	}
	return s, nil
}

// argInt accepts the integer types the YAML decoder produces.
func argInt(args map[string]any, key string) (int64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("arg %q is required", key)
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("arg %q is out of range", key)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("arg %q must be an integer, got %T", key, v)
	}
}
