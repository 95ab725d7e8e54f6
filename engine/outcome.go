package engine

import (
	"github.com/goccy/go-json"

	"github.com/satishbabariya/prisma-engines-go/psl/diagnostics"
)

// OutcomeKind tags the variant held by an Outcome.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeValidationError
	OutcomePanic
	OutcomeTransportFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeValidationError:
		return "validation error"
	case OutcomePanic:
		return "panic"
	case OutcomeTransportFailure:
		return "transport failure"
	default:
		return "unknown"
	}
}

// RetryReason marks transport failures a retry may clear.
type RetryReason int

const (
	RetryNone RetryReason = iota
	// RetryEngineWarming is reported when the engine asks to be called again later.
	RetryEngineWarming
	// RetryTextBusy is reported when the executable could not be spawned (ETXTBSY).
	RetryTextBusy
)

func (r RetryReason) String() string {
	switch r {
	case RetryEngineWarming:
		return "engine warming"
	case RetryTextBusy:
		return "text file busy"
	default:
		return "none"
	}
}

// Outcome is the normalized result every transport produces. Exactly one
// variant is set, selected by Kind.
type Outcome struct {
	Kind OutcomeKind

	// Result is the JSON payload of a successful call. It may be empty.
	Result json.RawMessage

	// Diagnostics are set for validation errors reported with positions.
	Diagnostics []diagnostics.Diagnostic
	// Message is the engine message for validation errors and panics, or the
	// failure reason for transport failures.
	Message   string
	ErrorCode string

	// Stack and RequestEcho are set for panics.
	Stack       string
	RequestEcho string

	// Retry is set on transport failures that may clear on their own.
	Retry RetryReason
	// SchemaPath is the schema file the engine read, retained for panic reports.
	SchemaPath string
	// Err is the underlying Go error of a transport failure.
	Err error
}

// Success builds a successful outcome.
func Success(result json.RawMessage) Outcome {
	return Outcome{Kind: OutcomeSuccess, Result: result}
}

// ValidationFailure builds a validation error outcome.
func ValidationFailure(message, code string, diags []diagnostics.Diagnostic) Outcome {
	return Outcome{Kind: OutcomeValidationError, Message: message, ErrorCode: code, Diagnostics: diags}
}

// Panic builds a panic outcome.
func Panic(message, stack, requestEcho string) Outcome {
	return Outcome{Kind: OutcomePanic, Message: message, Stack: stack, RequestEcho: requestEcho}
}

// Failure builds a transport failure outcome.
func Failure(reason string, err error) Outcome {
	return Outcome{Kind: OutcomeTransportFailure, Message: reason, Err: err}
}

// Retryable builds a transport failure that a retry policy may clear.
func Retryable(reason RetryReason, message string) Outcome {
	return Outcome{Kind: OutcomeTransportFailure, Retry: reason, Message: message}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Kind == OutcomeSuccess
}

// Decode unmarshals the success payload into v.
func (o Outcome) Decode(v any) error {
	if len(o.Result) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(o.Result, v)
}
