// Package diagnostics provides engine-reported errors and warnings with positions
// in the merged schema text.
package diagnostics

import (
	"fmt"

	"github.com/satishbabariya/prisma-engines-go/psl/core"
)

// Diagnostic is an error or warning reported by the engine.
// Start and End are byte offsets into the merged schema text.
type Diagnostic struct {
	Start     int    `json:"start"`
	End       int    `json:"end"`
	IsWarning bool   `json:"is_warning"`
	Text      string `json:"text"`
}

// Contains checks if the given offset is inside the diagnostic span (boundaries included).
func (d Diagnostic) Contains(offset int) bool {
	return offset >= d.Start && offset <= d.End
}

// Overlaps checks if the two diagnostics cover a common offset.
func (d Diagnostic) Overlaps(other Diagnostic) bool {
	return d.Contains(other.Start) || d.Contains(other.End) || other.Contains(d.Start)
}

// InBounds reports whether 0 <= Start <= End <= length.
func (d Diagnostic) InBounds(length int) bool {
	return d.Start >= 0 && d.Start <= d.End && d.End <= length
}

// Clamp forces the offsets into [0, length] with Start <= End.
func (d Diagnostic) Clamp(length int) Diagnostic {
	clamp := func(v int) int {
		if v < 0 {
			return 0
		}
		if v > length {
			return length
		}
		return v
	}
	d.Start = clamp(d.Start)
	d.End = clamp(d.End)
	if d.End < d.Start {
		d.End = d.Start
	}
	return d
}

// Severity returns "warning" or "error".
func (d Diagnostic) Severity() string {
	if d.IsWarning {
		return "warning"
	}
	return "error"
}

// Split partitions diagnostics into warnings and errors, preserving order.
func Split(list []Diagnostic) (warnings, errs []Diagnostic) {
	for _, d := range list {
		if d.IsWarning {
			warnings = append(warnings, d)
		} else {
			errs = append(errs, d)
		}
	}
	return warnings, errs
}

// ClampAll clamps every diagnostic to length.
func ClampAll(list []Diagnostic, length int) []Diagnostic {
	out := make([]Diagnostic, len(list))
	for i, d := range list {
		out[i] = d.Clamp(length)
	}
	return out
}

// Resolved is a diagnostic mapped back onto the file it points into.
type Resolved struct {
	Diagnostic
	StartPosition core.Position `json:"start_position"`
	EndPosition   core.Position `json:"end_position"`
}

func (r Resolved) String() string {
	return fmt.Sprintf("%s: %s: %s", r.StartPosition, r.Severity(), r.Text)
}

// Resolve maps a diagnostic onto files. Out-of-range offsets are clamped first.
func Resolve(set core.SchemaFileSet, d Diagnostic) (Resolved, error) {
	if err := set.Validate(); err != nil {
		return Resolved{}, err
	}
	d = d.Clamp(set.MergedLen())
	start, _ := set.Locate(d.Start)
	end, _ := set.Locate(d.End)
	return Resolved{Diagnostic: d, StartPosition: start, EndPosition: end}, nil
}

// ResolveAll maps every diagnostic onto files.
func ResolveAll(set core.SchemaFileSet, list []Diagnostic) ([]Resolved, error) {
	out := make([]Resolved, 0, len(list))
	for _, d := range list {
		r, err := Resolve(set, d)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
