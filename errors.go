package climber

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/zero-day-ai/climber/beanstalk"
	"github.com/zero-day-ai/climber/pool"
)

// Sentinel errors for common climber error conditions.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrNoAddresses indicates no server address was configured, discovered
	// or found in the environment.
	ErrNoAddresses = pool.ErrNoAddresses

	// ErrInvalidScheme indicates an address URI used a scheme other than
	// beanstalk://.
	ErrInvalidScheme = pool.ErrInvalidScheme

	// ErrInvalidAddress indicates an address spec could not be parsed.
	ErrInvalidAddress = pool.ErrInvalidAddress

	// ErrJobNotFound indicates a job id is not present on a server.
	ErrJobNotFound = beanstalk.ErrNotFound

	// ErrClosed indicates an operation on a closed connection.
	ErrClosed = beanstalk.ErrClosed

	// ErrNoSink indicates Export was called without a sink and none was
	// configured.
	ErrNoSink = errors.New("no audit sink configured")
)

// Error kinds categorize errors by their type.
const (
	// KindNotFound represents errors where a job or tube was not found.
	KindNotFound = "not_found"

	// KindValidation represents errors related to input validation, such as
	// an invalid filter expression.
	KindValidation = "validation"

	// KindConfiguration represents errors related to configuration.
	KindConfiguration = "configuration"

	// KindNetwork represents errors related to network operations.
	KindNetwork = "network"

	// KindExecution represents failures while scanning or exporting.
	KindExecution = "execution"
)

// Error is a structured error type that wraps underlying errors with
// additional context about the operation that failed and the category of error.
//
// Error implements the error interface and supports error unwrapping,
// making it compatible with errors.Is() and errors.As().
//
// Example usage:
//
//	c, err := climber.New(ctx, climber.WithAddresses("ftp://queue-a"))
//	var cerr *climber.Error
//	if errors.As(err, &cerr) && cerr.Kind == climber.KindConfiguration {
//		// bad address
//	}
type Error struct {
	// Op is the operation that failed (e.g., "New", "Climber.FindJobs").
	Op string

	// Kind categorizes the error (e.g., KindConfiguration, KindValidation).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional context about the error (optional).
	Context map[string]any
}

// Error implements the error interface, returning a formatted error message
// that includes the operation, kind, and underlying error.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("climber: %s: %s", e.Op, e.Kind)
	}

	if len(e.Context) > 0 {
		return fmt.Sprintf("climber: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}

	return fmt.Sprintf("climber: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error, allowing errors.Is() and errors.As()
// to work correctly with wrapped errors.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a target *Error by Kind (and Op, when the target sets one),
// and otherwise delegates to the underlying error.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	return errors.Is(e.Err, target)
}

// WithContext returns a copy of the error with the provided context added.
func (e *Error) WithContext(ctx map[string]any) *Error {
	newErr := *e
	newErr.Context = make(map[string]any, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		newErr.Context[k] = v
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// NewNotFoundError creates a new Error with KindNotFound.
func NewNotFoundError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindNotFound, Err: err}
}

// NewValidationError creates a new Error with KindValidation.
func NewValidationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindValidation, Err: err}
}

// NewConfigurationError creates a new Error with KindConfiguration.
func NewConfigurationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindConfiguration, Err: err}
}

// NewNetworkError creates a new Error with KindNetwork.
func NewNetworkError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindNetwork, Err: err}
}

// NewExecutionError creates a new Error with KindExecution.
func NewExecutionError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindExecution, Err: err}
}

// CloseWithLog attempts to close the provided resource and logs any error
// at warning level. This is intended for use in defer statements to ensure
// cleanup errors are not silently ignored.
//
// The name parameter should describe the resource being closed (e.g.,
// "climber", "audit sink"). If logger is nil, slog.Default() is used.
//
// Example usage:
//
//	defer climber.CloseWithLog(c, logger, "climber")
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
