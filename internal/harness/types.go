package harness

import "github.com/roach88/carbonledger/internal/ledger"

// Trace event types.
const (
	EventInvocation = "invocation"
	EventCompletion = "completion"
)

// CaseOK is the completion case of a successful step.
const CaseOK = "ok"

// TraceEvent is one invocation or completion in a scenario trace.
type TraceEvent struct {
	Seq    int64          `json:"seq"`
	Type   string         `json:"type"`
	Op     string         `json:"op"`
	Args   map[string]any `json:"args,omitempty"`
	Case   string         `json:"case,omitempty"`
	Result any            `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step and assertion matched.
	Pass bool `json:"pass"`

	// Trace holds invocations and completions in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists step and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Entities is the final entity table in insertion order.
	Entities []ledger.Entity `json:"entities"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Entities: []ledger.Entity{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddInvocationTrace records a step about to run.
func (r *Result) AddInvocationTrace(op string, args map[string]any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:  seq,
		Type: EventInvocation,
		Op:   op,
		Args: args,
	})
}

// AddCompletionTrace records how a step ended. result is the entity or
// transfer on success; errMsg is the error text otherwise.
func (r *Result) AddCompletionTrace(op, outputCase string, result any, errMsg string, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:    seq,
		Type:   EventCompletion,
		Op:     op,
		Case:   outputCase,
		Result: result,
		Error:  errMsg,
	})
}

// Entity returns the final state of name.
func (r *Result) Entity(name string) (ledger.Entity, bool) {
	for _, e := range r.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return ledger.Entity{}, false
}
