package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every *Error carries exactly one of these as its Kind.
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("entity not found")
	ErrDuplicateEntity     = errors.New("entity already registered")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrStorageFailure      = errors.New("storage failure")
)

// Error describes a failed ledger operation.
//
// The store is unchanged whenever an Error is returned.
type Error struct {
	// Kind is one of the Err* sentinels above.
	Kind error

	// Op names the operation that failed ("register", "transfer", ...).
	Op string

	// Names lists the entities involved, in the order the caller gave them.
	Names []string

	// Message adds detail beyond the kind.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if len(e.Names) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(quoteAll(e.Names), ", "))
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the kind sentinel of err, or nil if err is not a ledger error.
func KindOf(err error) error {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return nil
}

// IsRetryable reports whether err is a storage failure. Rejections
// (invalid input, missing or duplicate entities, insufficient balance)
// fail the same way on every attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}

// NotFound returns a NotFound error for the given names.
// Stores return it from Get and Update.
func NotFound(names ...string) *Error {
	return &Error{Kind: ErrNotFound, Names: names}
}

// Duplicate returns a DuplicateEntity error for name.
// Stores return it from Insert.
func Duplicate(name string) *Error {
	return &Error{Kind: ErrDuplicateEntity, Names: []string{name}}
}

func invalidArgument(op, message string, names ...string) *Error {
	return &Error{Kind: ErrInvalidArgument, Op: op, Names: names, Message: message}
}

// classify stamps op onto err, converting anything that is not already
// a ledger error into a StorageFailure.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		out := *le
		if out.Op == "" {
			out.Op = op
		}
		return &out
	}
	return &Error{Kind: ErrStorageFailure, Op: op, Err: err}
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = fmt.Sprintf("%q", n)
	}
	return out
}

// KindName returns the short name of err's kind, as used in scenario
// files and CLI output: "InvalidArgument", "NotFound", "DuplicateEntity",
// "InsufficientBalance" or "StorageFailure". Errors that are not ledger
// errors report "StorageFailure"; nil reports "".
func KindName(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case ErrInvalidArgument:
		return "InvalidArgument"
	case ErrNotFound:
		return "NotFound"
	case ErrDuplicateEntity:
		return "DuplicateEntity"
	case ErrInsufficientBalance:
		return "InsufficientBalance"
	default:
		return "StorageFailure"
	}
}
