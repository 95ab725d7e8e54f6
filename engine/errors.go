package engine

import (
	"errors"

	"github.com/satishbabariya/prisma-engines-go/psl/core"
	"github.com/satishbabariya/prisma-engines-go/psl/diagnostics"
)

// Error classes for engine calls.
var (
	// ErrPanic is matched by errors produced when the engine crashed.
	ErrPanic = errors.New("engine panicked")

	// ErrSchema is matched by schema validation errors reported by the engine.
	ErrSchema = errors.New("schema validation failed")

	// ErrEngine is matched by errors where the engine could not be reached or
	// returned something unparsable.
	ErrEngine = errors.New("engine call failed")
)

// ErrorArea tags which command family produced a panic.
type ErrorArea string

const (
	AreaQueryCLI         ErrorArea = "QUERY_CLI"
	AreaLiftCLI          ErrorArea = "LIFT_CLI"
	AreaIntrospectionCLI ErrorArea = "INTROSPECTION_CLI"
	AreaFormatCLI        ErrorArea = "FMT_CLI"
)

// PanicError is returned when the engine crashed. It carries what a bug report needs.
type PanicError struct {
	// Context is the command context name, e.g. getConfig.
	Context    string
	Transport  Kind
	Area       ErrorArea
	Message    string
	Stack      string
	Request    string
	SchemaPath string
	Schemas    core.SchemaFileSet
	CLIVersion string

	rendered string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return e.rendered
}

// Is checks if the error is ErrPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrPanic
}

// SchemaError is a validation error reported by the engine.
type SchemaError struct {
	Context     string
	Transport   Kind
	Reason      string
	ErrorCode   string
	Message     string
	Diagnostics []diagnostics.Diagnostic

	rendered string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return e.rendered
}

// Is checks if the error is ErrSchema.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

// EngineError is an unparsed failure: the engine could not be reached, or its
// answer could not be understood.
type EngineError struct {
	Context   string
	Transport Kind
	Reason    string
	Message   string
	Cause     error

	rendered string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return e.rendered
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is ErrEngine.
func (e *EngineError) Is(target error) bool {
	return target == ErrEngine
}

// IsPanic checks if an error is an engine panic.
func IsPanic(err error) bool {
	return errors.Is(err, ErrPanic)
}

// IsSchemaError checks if an error is a schema validation error.
func IsSchemaError(err error) bool {
	return errors.Is(err, ErrSchema)
}

// AsPanic returns the PanicError wrapped in err, if any.
func AsPanic(err error) (*PanicError, bool) {
	var p *PanicError
	if errors.As(err, &p) {
		return p, true
	}
	return nil, false
}
