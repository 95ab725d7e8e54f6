// Package core provides the schema file model shared by the locator, the engine
// commands and the schema context.
package core

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// DefaultSchemaFileName is the logical name used for schemas that do not come from disk.
const DefaultSchemaFileName = "schema.prisma"

// SchemaFile represents a named schema source text.
// Name is a logical identifier used for diagnostics and ordering; it is not
// necessarily a real filesystem path.
type SchemaFile struct {
	Name    string
	Content string
}

// NewSchemaFile creates a new SchemaFile.
func NewSchemaFile(name, content string) SchemaFile {
	return SchemaFile{
		Name:    name,
		Content: content,
	}
}

// Len returns the byte length of the file content.
func (f SchemaFile) Len() int {
	return len(f.Content)
}

// MarshalJSON encodes the file as a `[name, content]` pair, the shape the engines expect.
func (f SchemaFile) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{f.Name, f.Content})
}

// UnmarshalJSON accepts both the `[name, content]` pair and the
// `{"path": ..., "content": ...}` object some engine versions return.
func (f *SchemaFile) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("schema file: expected [name, content] pair, got %d elements", len(pair))
		}
		f.Name, f.Content = pair[0], pair[1]
		return nil
	}

	var obj struct {
		Path    *string `json:"path"`
		Name    *string `json:"name"`
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("schema file: %w", err)
	}
	if obj.Content == nil {
		return errors.New("schema file: missing content")
	}
	switch {
	case obj.Path != nil:
		f.Name = *obj.Path
	case obj.Name != nil:
		f.Name = *obj.Name
	default:
		return errors.New("schema file: missing path")
	}
	f.Content = *obj.Content
	return nil
}
