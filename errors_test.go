package climber

import (
	"errors"
	"fmt"
	"testing"

	"github.com/zero-day-ai/climber/beanstalk"
	"github.com/zero-day-ai/climber/pool"
)

// TestSentinelErrors verifies the sentinels alias the lower-level errors so
// errors.Is works across package boundaries.
func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{name: "ErrNoAddresses", err: fmt.Errorf("resolve: %w", pool.ErrNoAddresses), target: ErrNoAddresses},
		{name: "ErrInvalidScheme", err: fmt.Errorf("parse: %w", pool.ErrInvalidScheme), target: ErrInvalidScheme},
		{name: "ErrInvalidAddress", err: fmt.Errorf("parse: %w", pool.ErrInvalidAddress), target: ErrInvalidAddress},
		{name: "ErrJobNotFound", err: fmt.Errorf("peek 7: %w", beanstalk.ErrNotFound), target: ErrJobNotFound},
		{name: "ErrClosed", err: fmt.Errorf("put: %w", beanstalk.ErrClosed), target: ErrClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.target == nil {
				t.Fatalf("sentinel error %s is nil", tt.name)
			}
			if !errors.Is(tt.err, tt.target) {
				t.Errorf("errors.Is(%v, %s) = false, want true", tt.err, tt.name)
			}
		})
	}

	if ErrNoSink.Error() != "no audit sink configured" {
		t.Errorf("ErrNoSink = %q", ErrNoSink.Error())
	}
}

// TestErrorError verifies the Error() method formatting.
func TestErrorError(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "basic error",
			err:  &Error{Op: "New", Kind: KindConfiguration, Err: ErrInvalidScheme},
			want: "climber: New (configuration): invalid beanstalk URI scheme",
		},
		{
			name: "error with context",
			err: &Error{
				Op:      "Climber.MaxJobIDs",
				Kind:    KindExecution,
				Err:     ErrClosed,
				Context: map[string]any{"addr": "queue-a:11300"},
			},
			want: "climber: Climber.MaxJobIDs (execution): beanstalk client is closed [context: map[addr:queue-a:11300]]",
		},
		{
			name: "error without underlying error",
			err:  &Error{Op: "Climber.Export", Kind: KindConfiguration},
			want: "climber: Climber.Export: configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestErrorIs verifies the Is() method and errors.Is() compatibility.
func TestErrorIs(t *testing.T) {
	base := &Error{Op: "New", Kind: KindConfiguration, Err: fmt.Errorf("queue-a: %w", ErrInvalidScheme)}

	tests := []struct {
		name   string
		target error
		want   bool
	}{
		{name: "matches wrapped sentinel", target: ErrInvalidScheme, want: true},
		{name: "matches by kind", target: &Error{Kind: KindConfiguration}, want: true},
		{name: "matches by kind and op", target: &Error{Op: "New", Kind: KindConfiguration}, want: true},
		{name: "different op", target: &Error{Op: "Climber.Export", Kind: KindConfiguration}, want: false},
		{name: "different kind", target: &Error{Kind: KindNetwork}, want: false},
		{name: "different sentinel", target: ErrNoAddresses, want: false},
		{name: "nil", target: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(base, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestErrorAs verifies errors.As() through outer wrapping.
func TestErrorAs(t *testing.T) {
	wrapped := fmt.Errorf("startup: %w", NewNetworkError("New", errors.New("connection refused")))

	var cerr *Error
	if !errors.As(wrapped, &cerr) {
		t.Fatal("errors.As() failed to extract Error")
	}
	if cerr.Kind != KindNetwork {
		t.Errorf("Kind = %q, want %q", cerr.Kind, KindNetwork)
	}
	if cerr.Unwrap() == nil {
		t.Error("Unwrap() = nil")
	}
}

// TestErrorWithContext verifies WithContext copies rather than mutates.
func TestErrorWithContext(t *testing.T) {
	original := NewExecutionError("Climber.FindJobs", ErrJobNotFound)

	withCtx := original.WithContext(map[string]any{"filter": `tube == "x"`})
	if withCtx.Context["filter"] != `tube == "x"` {
		t.Errorf("Context[filter] = %v", withCtx.Context["filter"])
	}
	if original.Context != nil {
		t.Error("original error Context was modified")
	}

	more := withCtx.WithContext(map[string]any{"addr": "queue-a:11300"})
	if len(more.Context) != 2 {
		t.Errorf("Context = %v, want 2 entries", more.Context)
	}
	if len(withCtx.Context) != 1 {
		t.Error("intermediate error Context was modified")
	}
}

// TestNewErrorFunctions verifies all the New*Error() constructor functions.
func TestNewErrorFunctions(t *testing.T) {
	tests := []struct {
		name     string
		fn       func(string, error) *Error
		wantKind string
	}{
		{"NewNotFoundError", NewNotFoundError, KindNotFound},
		{"NewValidationError", NewValidationError, KindValidation},
		{"NewConfigurationError", NewConfigurationError, KindConfiguration},
		{"NewNetworkError", NewNetworkError, KindNetwork},
		{"NewExecutionError", NewExecutionError, KindExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			underlying := errors.New("test error")
			err := tt.fn("Test.Operation", underlying)

			if err.Op != "Test.Operation" {
				t.Errorf("Op = %q, want Test.Operation", err.Op)
			}
			if err.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", err.Kind, tt.wantKind)
			}
			if !errors.Is(err, underlying) {
				t.Error("underlying error not preserved")
			}
		})
	}
}
