package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/roach88/plugtest/internal/config"
	"github.com/roach88/plugtest/internal/coverage"
	"github.com/roach88/plugtest/internal/discover"
	"github.com/roach88/plugtest/internal/harness"
	"github.com/roach88/plugtest/internal/interp"
	"github.com/roach88/plugtest/internal/stage"
)

// Exit codes for CLI commands.
const (
	ExitSuccess       = 0 // Successful execution
	ExitFailure       = 1 // At least one test artifact failed
	ExitCommandError  = 2 // Command error (target not found, no matches, bad usage or config)
	ExitNoPackageRoot = 3 // Artifacts outside a package, or in more than one
	ExitToolMissing   = 4 // Coverage requested but the tool is not installed
	ExitRunnerFailure = 5 // The interpreter itself exited non-zero
)

var (
	// ErrTestsFailed indicates the run completed but an artifact failed.
	ErrTestsFailed = errors.New("tests failed")

	// ErrMultiTarget indicates more than one test target was given.
	ErrMultiTarget = errors.New("only one target is supported")
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// errorKind maps a sentinel error to its exit code and JSON error code.
type errorKind struct {
	target error
	exit   int
	code   string
}

var errorKinds = []errorKind{
	{ErrTestsFailed, ExitFailure, "E101"},
	{harness.ErrArtifactFailed, ExitFailure, "E102"},
	{discover.ErrNotFound, ExitCommandError, "E201"},
	{discover.ErrNoMatches, ExitCommandError, "E202"},
	{ErrMultiTarget, ExitCommandError, "E203"},
	{config.ErrInvalidConfig, ExitCommandError, "E204"},
	{harness.ErrInvalidLocator, ExitCommandError, "E205"},
	{filepath.ErrBadPattern, ExitCommandError, "E206"},
	{stage.ErrNoPackageRoot, ExitNoPackageRoot, "E301"},
	{stage.ErrMultiplePackages, ExitNoPackageRoot, "E302"},
	{coverage.ErrToolMissing, ExitToolMissing, "E401"},
	{interp.ErrRunnerFailure, ExitRunnerFailure, "E501"},
}

// classify returns the exit code and JSON error code for err. Unknown
// errors are ExitFailure with code E001.
func classify(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.exit, k.code
		}
	}
	return ExitFailure, "E001"
}

// commandError reports err through the formatter and wraps it with the
// exit code of its kind.
func commandError(formatter *OutputFormatter, message string, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	exit, code := classify(err)
	if formatter.Format == "json" {
		_ = formatter.Error(code, err.Error(), nil)
	}
	return WrapExitError(exit, message, err)
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // "E001", "E002", etc.
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
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

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
