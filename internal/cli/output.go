package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/carbonledger/internal/ledger"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected ledger operation or failed scenario
	ExitCommandError = 2 // Command error (bad arguments, unopenable database, etc.)
)

// Error codes reported for ledger failures.
const (
	CodeInvalidArgument     = "E001"
	CodeNotFound            = "E002"
	CodeDuplicateEntity     = "E003"
	CodeInsufficientBalance = "E004"
	CodeStorageFailure      = "E005"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code     int    // Exit code (use ExitFailure or ExitCommandError)
	Message  string // Error message
	Err      error  // Underlying error (optional)
	Reported bool   // Already written to the command output
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// IsReported reports whether err was already rendered to the user.
func IsReported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Reported
}

// ErrorCode maps a ledger error to its CLI code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ledger.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ledger.ErrDuplicateEntity):
		return CodeDuplicateEntity
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return CodeInsufficientBalance
	default:
		return CodeStorageFailure
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// ErrorDetails describes a ledger failure in JSON output.
type ErrorDetails struct {
	Kind     string   `json:"kind"`
	Op       string   `json:"op,omitempty"`
	Entities []string `json:"entities,omitempty"`
}

// Success outputs data in the configured format. text is the
// human-readable rendering.
func (f *OutputFormatter) Success(data any, text string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	_, err := fmt.Fprintln(f.Writer, text)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %+v\n", details)
	}
	return nil
}

// LedgerError renders a failed ledger operation and returns the
// ExitError the command should return.
func (f *OutputFormatter) LedgerError(err error) error {
	return f.ledgerError(err, ledgerDetails(err))
}

func (f *OutputFormatter) ledgerError(err error, details any) error {
	if ferr := f.Error(ErrorCode(err), err.Error(), details); ferr != nil {
		return ferr
	}
	return &ExitError{Code: ExitFailure, Message: "ledger operation failed", Err: err, Reported: true}
}

func ledgerDetails(err error) ErrorDetails {
	details := ErrorDetails{Kind: ledger.KindName(err)}
	var le *ledger.Error
	if errors.As(err, &le) {
		details.Op = le.Op
		details.Entities = le.Names
	}
	return details
}
