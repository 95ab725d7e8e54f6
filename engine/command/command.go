// Package command implements the typed engine commands on top of any
// engine.Transport: request payloads, reply decoding, retries for the binary
// engine and translation of failures into typed errors.
package command

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"

	"github.com/satishbabariya/prisma-engines-go/engine"
	"github.com/satishbabariya/prisma-engines-go/engine/retry"
	"github.com/satishbabariya/prisma-engines-go/internal/debug"
	"github.com/satishbabariya/prisma-engines-go/psl/core"
	"github.com/satishbabariya/prisma-engines-go/psl/diagnostics"
)

// DefaultDMMFRetries is the warm-up retry budget the CLI gives GetDMMF.
const DefaultDMMFRetries = 4

// Force-panic variables. When set, the command asks the engine to panic
// instead, which lets test harnesses exercise the panic path.
const (
	EnvForcePanicGetConfig    = "FORCE_PANIC_GET_CONFIG"
	EnvForcePanicGetDMMF      = "FORCE_PANIC_GET_DMMF"
	EnvForcePanicValidate     = "FORCE_PANIC_VALIDATE"
	EnvForcePanicFormat       = "FORCE_PANIC_FORMAT"
	EnvForcePanicLint         = "FORCE_PANIC_LINT"
	EnvForcePanicMergeSchemas = "FORCE_PANIC_MERGE_SCHEMAS"
)

// envVarNotFound is how engines word an unresolvable env("...") datasource URL.
const envVarNotFound = "Environment variable not found"

// Runner runs engine commands over one transport.
type Runner struct {
	transport  engine.Transport
	translator *engine.Translator
	retry      []retry.Option
	getenv     func(string) string
}

// Option configures a Runner.
type Option func(*Runner)

// WithRetry passes options to the retry policy of binary engine calls.
func WithRetry(opts ...retry.Option) Option {
	return func(r *Runner) {
		r.retry = append(r.retry, opts...)
	}
}

// WithGetenv replaces the environment lookup used for force-panic flags.
func WithGetenv(fn func(string) string) Option {
	return func(r *Runner) {
		r.getenv = fn
	}
}

// New creates a Runner.
func New(transport engine.Transport, translator *engine.Translator, opts ...Option) *Runner {
	r := &Runner{
		transport:  transport,
		translator: translator,
		getenv:     os.Getenv,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Transport returns the transport commands run on.
func (r *Runner) Transport() engine.Transport {
	return r.transport
}

type call struct {
	name       string
	area       engine.ErrorArea
	req        engine.Request
	needSchema bool
	// budget is the warm-up retry budget; only GetDMMF sets it.
	budget     int
	forcePanic string
	// adjust may reclassify the outcome before translation.
	adjust func(engine.Outcome) engine.Outcome
}

func (r *Runner) run(ctx context.Context, c call) (engine.Outcome, error) {
	if c.needSchema {
		if err := c.req.Schemas.Validate(); err != nil {
			return engine.Outcome{}, fmt.Errorf("%s: %w", c.name, err)
		}
	}

	req := c.req
	if c.forcePanic != "" && r.getenv(c.forcePanic) != "" {
		debug.Debug("forcing engine panic", "command", c.name, "env", c.forcePanic)
		req = engine.Request{
			Command: engine.CommandDebugPanic,
			Params:  engine.DebugPanicParams{Message: c.forcePanic},
			Schemas: c.req.Schemas,
		}
	}

	attempt := func(ctx context.Context) engine.Outcome {
		return r.transport.Invoke(ctx, req)
	}

	var outcome engine.Outcome
	if r.transport.Kind() == engine.KindBinary {
		opts := append(append([]retry.Option{}, r.retry...), retry.WithBudget(c.budget))
		outcome = retry.Do(ctx, attempt, opts...)
	} else {
		outcome = attempt(ctx)
	}
	if c.adjust != nil {
		outcome = c.adjust(outcome)
	}

	ec := engine.ErrorContext{
		Name:       c.name,
		Command:    req.Command,
		Area:       c.area,
		Transport:  r.transport.Kind(),
		Request:    req.Echo(),
		SchemaPath: req.SchemaPath,
		Schemas:    req.Schemas,
	}
	if err := r.translator.Translate(ec, outcome); err != nil {
		debug.Debug("engine command failed", "command", c.name, "outcome", outcome.Kind.String())
		return outcome, err
	}
	return outcome, nil
}

// GetConfig extracts datasources, generators and warnings from the schema.
// Unresolvable datasource env vars are validation errors unless
// IgnoreEnvVarErrors is set.
func (r *Runner) GetConfig(ctx context.Context, opts GetConfigOptions) (*ConfigMetaFormat, error) {
	params := getConfigParams{
		PrismaSchema:        opts.Schemas,
		Datamodel:           opts.Schemas.MergedText(),
		IgnoreEnvVarErrors:  opts.IgnoreEnvVarErrors,
		DatasourceOverrides: opts.DatasourceOverrides,
		Env:                 opts.Env,
	}
	if params.DatasourceOverrides == nil {
		params.DatasourceOverrides = map[string]string{}
	}
	if params.Env == nil {
		params.Env = map[string]string{}
	}

	outcome, err := r.run(ctx, call{
		name:       "getConfig",
		area:       engine.AreaQueryCLI,
		needSchema: true,
		forcePanic: EnvForcePanicGetConfig,
		req: engine.Request{
			Command:    engine.CommandGetConfig,
			Params:     params,
			Schemas:    opts.Schemas,
			SchemaPath: opts.SchemaPath,
		},
		adjust: envVarErrorsAsValidation,
	})
	if err != nil {
		return nil, err
	}

	var cfg ConfigMetaFormat
	if err := r.decode("getConfig", engine.CommandGetConfig, outcome, &cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return &cfg, nil
}

// envVarErrorsAsValidation keeps env var resolution failures on the
// validation side even when the engine reports them without an error code.
func envVarErrorsAsValidation(o engine.Outcome) engine.Outcome {
	if o.Kind == engine.OutcomeTransportFailure && o.Retry == engine.RetryNone && strings.Contains(o.Message, envVarNotFound) {
		return engine.ValidationFailure(o.Message, "P1012", nil)
	}
	return o
}

// GetDMMF builds the DMMF document of the schema. Binary engines that are
// still warming up are asked again up to opts.Retries times.
func (r *Runner) GetDMMF(ctx context.Context, opts GetDMMFOptions) (*Document, error) {
	req := engine.Request{
		Command: engine.CommandGetDMMF,
		Params: getDMMFParams{
			PrismaSchema:    opts.Schemas,
			Datamodel:       opts.Schemas.MergedText(),
			PreviewFeatures: opts.PreviewFeatures,
		},
		Schemas:    opts.Schemas,
		SchemaPath: opts.SchemaPath,
	}
	if len(opts.PreviewFeatures) > 0 {
		req.Flags = []string{"--enable-experimental=" + strings.Join(opts.PreviewFeatures, ",")}
	}

	outcome, err := r.run(ctx, call{
		name:       "getDmmf",
		area:       engine.AreaQueryCLI,
		needSchema: true,
		budget:     opts.Retries,
		forcePanic: EnvForcePanicGetDMMF,
		req:        req,
	})
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := r.decode("getDmmf", engine.CommandGetDMMF, outcome, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the schema without building the DMMF document.
func (r *Runner) Validate(ctx context.Context, opts ValidateOptions) error {
	_, err := r.run(ctx, call{
		name:       "validate",
		area:       engine.AreaQueryCLI,
		needSchema: true,
		forcePanic: EnvForcePanicValidate,
		req: engine.Request{
			Command: engine.CommandValidate,
			Params:  validateParams{PrismaSchema: opts.Schemas, NoColor: opts.NoColor},
			Schemas: opts.Schemas,
		},
	})
	return err
}

// Format returns a newly formatted copy of schemas and the lint warnings of the
// result. The input set is left untouched.
func (r *Runner) Format(ctx context.Context, schemas core.SchemaFileSet, opts FormatOptions) (*FormatResult, error) {
	if opts.TabSize <= 0 {
		opts.TabSize = DefaultFormatOptions().TabSize
	}
	outcome, err := r.run(ctx, call{
		name:       "formatSchema",
		area:       engine.AreaFormatCLI,
		needSchema: true,
		forcePanic: EnvForcePanicFormat,
		req: engine.Request{
			Command: engine.CommandFormat,
			Params:  schemas,
			Options: opts,
			Schemas: schemas,
		},
	})
	if err != nil {
		return nil, err
	}

	var formatted core.SchemaFileSet
	if err := r.decode("formatSchema", engine.CommandFormat, outcome, &formatted); err != nil {
		return nil, err
	}
	if formatted.IsEmpty() {
		return nil, r.translator.Translate(engine.ErrorContext{
			Name: "formatSchema", Command: engine.CommandFormat, Area: engine.AreaFormatCLI, Transport: r.transport.Kind(),
		}, engine.Failure("engine returned no formatted files", nil))
	}

	lint, err := r.Lint(ctx, formatted)
	if err != nil {
		return nil, err
	}
	warnings, _ := diagnostics.Split(lint)
	return &FormatResult{Schemas: formatted, Warnings: warnings}, nil
}

// Lint returns the engine diagnostics of schemas, in engine order. Offsets are
// clamped into the merged text.
func (r *Runner) Lint(ctx context.Context, schemas core.SchemaFileSet) ([]diagnostics.Diagnostic, error) {
	outcome, err := r.run(ctx, call{
		name:       "lintSchema",
		area:       engine.AreaFormatCLI,
		needSchema: true,
		forcePanic: EnvForcePanicLint,
		req: engine.Request{
			Command: engine.CommandLint,
			Params:  schemas,
			Schemas: schemas,
		},
	})
	if err != nil {
		return nil, err
	}

	var list []diagnostics.Diagnostic
	if err := r.decode("lintSchema", engine.CommandLint, outcome, &list); err != nil {
		return nil, err
	}
	length := schemas.MergedLen()
	for _, d := range list {
		if !d.InBounds(length) {
			debug.Warn("engine diagnostic out of bounds", "start", d.Start, "end", d.End, "length", length)
		}
	}
	return diagnostics.ClampAll(list, length), nil
}

// MergeSchemas returns the files of schemas as one document, in set order.
func (r *Runner) MergeSchemas(ctx context.Context, schemas core.SchemaFileSet) (string, error) {
	outcome, err := r.run(ctx, call{
		name:       "mergeSchemas",
		area:       engine.AreaFormatCLI,
		needSchema: true,
		forcePanic: EnvForcePanicMergeSchemas,
		req: engine.Request{
			Command: engine.CommandMergeSchemas,
			Params:  mergeParams{Schemas: schemas},
			Schemas: schemas,
		},
	})
	if err != nil {
		return "", err
	}

	var merged string
	if err := r.decode("mergeSchemas", engine.CommandMergeSchemas, outcome, &merged); err != nil {
		return "", err
	}
	return merged, nil
}

// SerializeSchemaToBytes returns the engine's binary encoding of the schema.
func (r *Runner) SerializeSchemaToBytes(ctx context.Context, schemas core.SchemaFileSet) ([]byte, error) {
	outcome, err := r.run(ctx, call{
		name:       "serializeSchemaToBytes",
		area:       engine.AreaFormatCLI,
		needSchema: true,
		req: engine.Request{
			Command: engine.CommandSerializeSchemaToBytes,
			Schemas: schemas,
		},
	})
	if err != nil {
		return nil, err
	}

	var data []byte
	if err := r.decode("serializeSchemaToBytes", engine.CommandSerializeSchemaToBytes, outcome, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// DebugPanic makes the engine panic. It always returns an error, a
// *engine.PanicError when the engine behaves.
func (r *Runner) DebugPanic(ctx context.Context, message string) error {
	_, err := r.run(ctx, call{
		name: "debugPanic",
		area: engine.AreaQueryCLI,
		req: engine.Request{
			Command: engine.CommandDebugPanic,
			Params:  engine.DebugPanicParams{Message: message},
		},
	})
	if err == nil {
		return r.translator.Translate(engine.ErrorContext{
			Name: "debugPanic", Command: engine.CommandDebugPanic, Area: engine.AreaQueryCLI, Transport: r.transport.Kind(),
		}, engine.Failure("engine did not panic", nil))
	}
	return err
}

// Version returns the engine version.
func (r *Runner) Version(ctx context.Context) (VersionInfo, error) {
	outcome, err := r.run(ctx, call{
		name: "version",
		area: engine.AreaQueryCLI,
		req:  engine.Request{Command: engine.CommandVersion},
	})
	if err != nil {
		return VersionInfo{}, err
	}

	var v VersionInfo
	if err := r.decode("version", engine.CommandVersion, outcome, &v); err != nil {
		return VersionInfo{}, err
	}
	return v, nil
}

// decode unmarshals a successful reply, reporting garbage as an engine error.
func (r *Runner) decode(name string, cmd engine.Command, outcome engine.Outcome, v any) error {
	if err := outcome.Decode(v); err != nil {
		return r.translator.Translate(engine.ErrorContext{
			Name: name, Command: cmd, Transport: r.transport.Kind(),
		}, engine.Failure("could not parse engine reply: "+preview(outcome.Result), err))
	}
	return nil
}

func preview(raw json.RawMessage) string {
	const n = 200
	if len(raw) <= n {
		return string(raw)
	}
	return string(raw[:n]) + "..."
}
