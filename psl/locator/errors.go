package locator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSchemaNotFound matches the aggregate error returned when no source resolves.
var ErrSchemaNotFound = errors.New("schema not found")

// Source identifies where a schema path came from.
type Source string

const (
	SourceArgument        Source = "argument"
	SourceConfig          Source = "config"
	SourcePackageJSON     Source = "package.json"
	SourceDefaultLocation Source = "default"
)

// Kind classifies a lookup failure.
type Kind int

const (
	// KindNotFound means nothing exists at the path.
	KindNotFound Kind = iota
	// KindWrongType means the path exists but is not of the expected type.
	KindWrongType
	// KindInvalidConfigValue means the declared value is not a usable path.
	KindInvalidConfigValue
	// KindReadFailed means the files exist but could not be read.
	KindReadFailed
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindWrongType:
		return "wrong type"
	case KindInvalidConfigValue:
		return "invalid config value"
	case KindReadFailed:
		return "read failed"
	default:
		return "unknown"
	}
}

// LookupError is returned when an explicitly provided source fails to resolve.
type LookupError struct {
	Kind    Kind
	Source  Source
	Path    string
	Message string
	Err     error
}

func (e *LookupError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("could not load schema from %s `%s`: %v", e.Source, e.Path, e.Err)
	}
	return fmt.Sprintf("could not load schema from %s `%s`: %s", e.Source, e.Path, e.Kind)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// Attempt records one probed path and why it was rejected.
type Attempt struct {
	Path   string
	Kind   Kind
	Reason string
}

// NotFoundError lists every conventional location that was tried.
type NotFoundError struct {
	Attempts []Attempt
}

func (e *NotFoundError) Error() string {
	var b strings.Builder
	b.WriteString("Could not find Prisma Schema that is required for this command.\n")
	b.WriteString("You can either provide it with `--schema` argument, set it as `prisma.schema` in your package.json or put it into the default location.\n")
	b.WriteString("Checked following paths:\n\n")
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "%s: %s\n", a.Path, a.Reason)
	}
	b.WriteString("\nSee also https://pris.ly/d/prisma-schema-location")
	return b.String()
}

// Is allows errors.Is(err, ErrSchemaNotFound).
func (e *NotFoundError) Is(target error) bool {
	return target == ErrSchemaNotFound
}

// add appends an attempt unless the path was already recorded.
func (e *NotFoundError) add(a Attempt) {
	for _, existing := range e.Attempts {
		if existing.Path == a.Path {
			return
		}
	}
	e.Attempts = append(e.Attempts, a)
}
