package command

import (
	"github.com/goccy/go-json"

	"github.com/satishbabariya/prisma-engines-go/psl/core"
	"github.com/satishbabariya/prisma-engines-go/psl/diagnostics"
)

// EnvValue is a config value that is either literal or read from an
// environment variable.
type EnvValue struct {
	FromEnvVar *string `json:"fromEnvVar"`
	Value      *string `json:"value"`
}

// Resolve returns the literal value, or the named variable looked up in env.
func (v EnvValue) Resolve(env map[string]string) (string, bool) {
	if v.Value != nil {
		return *v.Value, true
	}
	if v.FromEnvVar != nil {
		val, ok := env[*v.FromEnvVar]
		return val, ok
	}
	return "", false
}

// Datasource is a datasource block as reported by GetConfig.
type Datasource struct {
	Name           string    `json:"name"`
	Provider       string    `json:"provider"`
	ActiveProvider string    `json:"activeProvider"`
	URL            EnvValue  `json:"url"`
	DirectURL      *EnvValue `json:"directUrl,omitempty"`
	Schemas        []string  `json:"schemas,omitempty"`
	// SourceFilePath is the schema file declaring the block.
	SourceFilePath string `json:"sourceFilePath,omitempty"`
}

// BinaryTarget is one entry of a generator's binaryTargets.
type BinaryTarget struct {
	FromEnvVar *string `json:"fromEnvVar"`
	Value      string  `json:"value"`
	Native     bool    `json:"native,omitempty"`
}

// GeneratorConfig is a generator block as reported by GetConfig.
type GeneratorConfig struct {
	Name            string            `json:"name"`
	Provider        EnvValue          `json:"provider"`
	Output          *EnvValue         `json:"output"`
	Config          map[string]any    `json:"config"`
	BinaryTargets   []BinaryTarget    `json:"binaryTargets"`
	PreviewFeatures []string          `json:"previewFeatures"`
	EnvPaths        map[string]string `json:"envPaths,omitempty"`
	SourceFilePath  string            `json:"sourceFilePath,omitempty"`
}

// ConfigMetaFormat is the reply of GetConfig.
type ConfigMetaFormat struct {
	Datasources []Datasource      `json:"datasources"`
	Generators  []GeneratorConfig `json:"generators"`
	Warnings    []string          `json:"warnings"`
}

// normalize replaces nil lists with empty ones.
func (c *ConfigMetaFormat) normalize() {
	if c.Datasources == nil {
		c.Datasources = []Datasource{}
	}
	if c.Generators == nil {
		c.Generators = []GeneratorConfig{}
	}
	if c.Warnings == nil {
		c.Warnings = []string{}
	}
}

// Document is the DMMF reply of GetDMMF. Its sections are kept raw; consumers
// decode the parts they need.
type Document struct {
	Datamodel json.RawMessage `json:"datamodel"`
	Schema    json.RawMessage `json:"schema,omitempty"`
	Mappings  json.RawMessage `json:"mappings,omitempty"`
}

// Models returns the model names of the datamodel section.
func (d *Document) Models() ([]string, error) {
	if len(d.Datamodel) == 0 {
		return nil, nil
	}
	var dm struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(d.Datamodel, &dm); err != nil {
		return nil, err
	}
	names := make([]string, len(dm.Models))
	for i, m := range dm.Models {
		names[i] = m.Name
	}
	return names, nil
}

// VersionInfo is the reply of the version command.
type VersionInfo struct {
	Commit  string `json:"commit"`
	Version string `json:"version"`
}

// GetConfigOptions are the inputs of GetConfig.
type GetConfigOptions struct {
	Schemas core.SchemaFileSet
	// SchemaPath is an on-disk copy of the schema the binary engine can read.
	SchemaPath          string
	IgnoreEnvVarErrors  bool
	DatasourceOverrides map[string]string
	Env                 map[string]string
}

// GetDMMFOptions are the inputs of GetDMMF.
type GetDMMFOptions struct {
	Schemas         core.SchemaFileSet
	SchemaPath      string
	PreviewFeatures []string
	// Retries is how many times an engine that is still warming up is asked again.
	Retries int
}

// ValidateOptions are the inputs of Validate.
type ValidateOptions struct {
	Schemas core.SchemaFileSet
	NoColor bool
}

// FormatOptions are the inputs of Format.
type FormatOptions struct {
	TabSize      int  `json:"tabSize"`
	InsertSpaces bool `json:"insertSpaces"`
}

// DefaultFormatOptions indents with two spaces.
func DefaultFormatOptions() FormatOptions {
	return FormatOptions{TabSize: 2, InsertSpaces: true}
}

// FormatResult is the reply of Format. Warnings come from linting the
// formatted schema.
type FormatResult struct {
	Schemas  core.SchemaFileSet
	Warnings []diagnostics.Diagnostic
}

type getConfigParams struct {
	PrismaSchema        core.SchemaFileSet `json:"prismaSchema"`
	Datamodel           string             `json:"datamodel"`
	IgnoreEnvVarErrors  bool               `json:"ignoreEnvVarErrors"`
	DatasourceOverrides map[string]string  `json:"datasourceOverrides"`
	Env                 map[string]string  `json:"env"`
}

type getDMMFParams struct {
	PrismaSchema    core.SchemaFileSet `json:"prismaSchema"`
	Datamodel       string             `json:"datamodel"`
	PreviewFeatures []string           `json:"previewFeatures,omitempty"`
}

type validateParams struct {
	PrismaSchema core.SchemaFileSet `json:"prismaSchema"`
	NoColor      bool               `json:"noColor"`
}

type mergeParams struct {
	Schemas core.SchemaFileSet `json:"schemas"`
}
