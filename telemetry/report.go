// Package telemetry builds engine panic reports and submits them to an
// error-reporting endpoint when the user agrees to.
package telemetry

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/satishbabariya/prisma-engines-go/engine"
)

// Report is everything a panic bug report carries. The schema is masked.
type Report struct {
	Area            engine.ErrorArea `json:"area"`
	Context         string           `json:"context"`
	EngineType      engine.Kind      `json:"engineType"`
	Message         string           `json:"jsError"`
	RustStackTrace  string           `json:"rustStackTrace"`
	Request         string           `json:"liftRequest,omitempty"`
	SchemaFile      string           `json:"schemaFile,omitempty"`
	SchemaPath      string           `json:"-"`
	CLIVersion      string           `json:"cliVersion"`
	EngineVersion   string           `json:"binaryVersion,omitempty"`
	DBVersion       string           `json:"dbVersion,omitempty"`
	Command         string           `json:"command"`
	OperatingSystem string           `json:"operatingSystem"`
	Platform        string           `json:"platform"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// ReportOptions adds what the panic itself does not know.
type ReportOptions struct {
	// Fs is used to read the retained schema file when the panic carries no
	// schema text.
	Fs            afero.Fs
	Args          []string
	EngineVersion string
	DBVersion     string
	Now           func() time.Time
}

// NewReport builds a report from an engine panic.
func NewReport(p *engine.PanicError, opts ReportOptions) (*Report, error) {
	if p == nil {
		return nil, errors.New("telemetry: nil panic")
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	r := &Report{
		Area:            p.Area,
		Context:         p.Context,
		EngineType:      p.Transport,
		Message:         p.Message,
		RustStackTrace:  p.Stack,
		Request:         p.Request,
		SchemaPath:      p.SchemaPath,
		CLIVersion:      p.CLIVersion,
		EngineVersion:   opts.EngineVersion,
		DBVersion:       opts.DBVersion,
		Command:         strings.Join(opts.Args, " "),
		OperatingSystem: runtime.GOOS,
		Platform:        runtime.GOOS + "-" + runtime.GOARCH,
		CreatedAt:       now().UTC(),
	}

	schema := p.Schemas.MergedText()
	if schema == "" && p.SchemaPath != "" {
		fsys := opts.Fs
		if fsys == nil {
			fsys = afero.NewOsFs()
		}
		data, err := afero.ReadFile(fsys, p.SchemaPath)
		switch {
		case err == nil:
			schema = string(data)
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("telemetry: read schema %s: %w", p.SchemaPath, err)
		}
	}
	if schema != "" {
		r.SchemaFile = MaskSchema(schema)
	}
	return r, nil
}

// Markdown renders the report for a preview before it is sent.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Engine panic in `%s`\n\n", r.Context)
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Area | %s |\n", r.Area)
	fmt.Fprintf(&b, "| Engine | %s |\n", r.EngineType)
	fmt.Fprintf(&b, "| CLI version | %s |\n", r.CLIVersion)
	if r.EngineVersion != "" {
		fmt.Fprintf(&b, "| Engine version | %s |\n", r.EngineVersion)
	}
	fmt.Fprintf(&b, "| Platform | %s |\n\n", r.Platform)

	fmt.Fprintf(&b, "## Message\n\n```\n%s\n```\n\n", r.Message)
	if r.Request != "" {
		fmt.Fprintf(&b, "## Request\n\n```json\n%s\n```\n\n", r.Request)
	}
	if r.RustStackTrace != "" {
		fmt.Fprintf(&b, "## Stack trace\n\n```\n%s\n```\n\n", r.RustStackTrace)
	}
	if r.SchemaFile != "" {
		fmt.Fprintf(&b, "## Schema\n\n```prisma\n%s\n```\n", strings.TrimRight(r.SchemaFile, "\n"))
	}
	return b.String()
}
