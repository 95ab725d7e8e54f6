package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

var (
	// ErrEmptySchemaFileSet is returned when an operation requires at least one schema file.
	ErrEmptySchemaFileSet = errors.New("schema file set is empty")
	// ErrDuplicateSchemaFile is returned when two files share the same name.
	ErrDuplicateSchemaFile = errors.New("duplicate schema file name")
)

// SchemaFileSet is an ordered collection of uniquely named schema files.
// A set is read-only once built; transformations return a new set.
type SchemaFileSet struct {
	files []SchemaFile
}

// Position is a location inside one file of a SchemaFileSet.
// Line and Column are 1-based, Offset is the byte offset inside the file.
type Position struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Offset int    `json:"offset"`
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// NewSchemaFileSet builds a set from files, preserving their order.
func NewSchemaFileSet(files ...SchemaFile) (SchemaFileSet, error) {
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if _, ok := seen[f.Name]; ok {
			return SchemaFileSet{}, fmt.Errorf("%w: %q", ErrDuplicateSchemaFile, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	out := make([]SchemaFile, len(files))
	copy(out, files)
	return SchemaFileSet{files: out}, nil
}

// MustSchemaFileSet is like NewSchemaFileSet but panics on error. Intended for tests and literals.
func MustSchemaFileSet(files ...SchemaFile) SchemaFileSet {
	set, err := NewSchemaFileSet(files...)
	if err != nil {
		panic(err)
	}
	return set
}

// SingleFile wraps one schema text under the default schema file name.
func SingleFile(content string) SchemaFileSet {
	return SchemaFileSet{files: []SchemaFile{NewSchemaFile(DefaultSchemaFileName, content)}}
}

// Len returns the number of files.
func (s SchemaFileSet) Len() int {
	return len(s.files)
}

// IsEmpty reports whether the set holds no files.
func (s SchemaFileSet) IsEmpty() bool {
	return len(s.files) == 0
}

// Validate returns ErrEmptySchemaFileSet when the set cannot be sent to an engine.
func (s SchemaFileSet) Validate() error {
	if s.IsEmpty() {
		return ErrEmptySchemaFileSet
	}
	return nil
}

// Files returns a copy of the files in set order.
func (s SchemaFileSet) Files() []SchemaFile {
	out := make([]SchemaFile, len(s.files))
	copy(out, s.files)
	return out
}

// File returns the i-th file.
func (s SchemaFileSet) File(i int) SchemaFile {
	return s.files[i]
}

// Lookup finds a file by name.
func (s SchemaFileSet) Lookup(name string) (SchemaFile, bool) {
	for _, f := range s.files {
		if f.Name == name {
			return f, true
		}
	}
	return SchemaFile{}, false
}

// Names returns the file names in set order.
func (s SchemaFileSet) Names() []string {
	names := make([]string, len(s.files))
	for i, f := range s.files {
		names[i] = f.Name
	}
	return names
}

// MergedText concatenates every file in set order. Diagnostic offsets index into this text.
func (s SchemaFileSet) MergedText() string {
	var b strings.Builder
	b.Grow(s.MergedLen())
	for _, f := range s.files {
		b.WriteString(f.Content)
	}
	return b.String()
}

// MergedLen returns the byte length of MergedText.
func (s SchemaFileSet) MergedLen() int {
	n := 0
	for _, f := range s.files {
		n += len(f.Content)
	}
	return n
}

// Locate maps a byte offset in the merged text to a file position.
// Offsets on a file boundary belong to the following file; the end of the merged
// text maps to the end of the last file.
func (s SchemaFileSet) Locate(offset int) (Position, bool) {
	if offset < 0 || s.IsEmpty() {
		return Position{}, false
	}
	base := 0
	for i, f := range s.files {
		end := base + len(f.Content)
		if offset < end || (i == len(s.files)-1 && offset == end) {
			local := offset - base
			return position(f, local), true
		}
		base = end
	}
	return Position{}, false
}

func position(f SchemaFile, local int) Position {
	before := f.Content[:local]
	line := strings.Count(before, "\n") + 1
	column := local + 1
	if idx := strings.LastIndexByte(before, '\n'); idx >= 0 {
		column = local - idx
	}
	return Position{File: f.Name, Line: line, Column: column, Offset: local}
}

// WithFiles returns a new set where files with matching names are replaced and
// unknown names are appended. The receiver is left untouched.
func (s SchemaFileSet) WithFiles(files ...SchemaFile) (SchemaFileSet, error) {
	out := s.Files()
	index := make(map[string]int, len(out))
	for i, f := range out {
		index[f.Name] = i
	}
	for _, f := range files {
		if i, ok := index[f.Name]; ok {
			out[i] = f
			continue
		}
		index[f.Name] = len(out)
		out = append(out, f)
	}
	return NewSchemaFileSet(out...)
}

// MarshalJSON encodes the set as an array of `[name, content]` pairs.
func (s SchemaFileSet) MarshalJSON() ([]byte, error) {
	if s.files == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.files)
}

// UnmarshalJSON decodes an array of schema files and enforces name uniqueness.
func (s *SchemaFileSet) UnmarshalJSON(data []byte) error {
	var files []SchemaFile
	if err := json.Unmarshal(data, &files); err != nil {
		return err
	}
	set, err := NewSchemaFileSet(files...)
	if err != nil {
		return err
	}
	*s = set
	return nil
}
