package binary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/satishbabariya/prisma-engines-go/engine"
	"github.com/satishbabariya/prisma-engines-go/internal/debug"
)

// EnvSchemaPath is the variable holding the path of the schema file the engine
// reads. The schema never goes through argv to stay clear of argument limits.
const EnvSchemaPath = "PRISMA_DML_PATH"

// CLI runs one engine process per command:
//
//	<engine> [flags...] cli <command>
//
// The command payload is written to stdin as a single JSON line, as a
// [params, options] array for two-argument commands, and the reply is the JSON
// value found on stdout after the process exits.
type CLI struct {
	path    string
	dir     string
	env     []string
	tempDir string
	fs      afero.Fs
	markers engine.Markers
}

// Option configures a CLI or a Session.
type Option func(*options)

type options struct {
	dir     string
	env     []string
	tempDir string
	fs      afero.Fs
	markers engine.Markers
	args    []string
}

// WithDir sets the working directory of the engine process.
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

// WithEnv adds KEY=value pairs to the engine environment.
func WithEnv(env ...string) Option {
	return func(o *options) {
		o.env = append(o.env, env...)
	}
}

// WithTempDir sets where temporary schema files are written.
func WithTempDir(dir string) Option {
	return func(o *options) {
		o.tempDir = dir
	}
}

// WithFs sets the filesystem temporary schema files are written to. The engine
// process reads them, so it has to be backed by the OS.
func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithMarkers replaces the exit codes and substrings used for classification.
func WithMarkers(m engine.Markers) Option {
	return func(o *options) {
		o.markers = m
	}
}

// WithArgs sets extra arguments passed before any command arguments.
func WithArgs(args ...string) Option {
	return func(o *options) {
		o.args = append(o.args, args...)
	}
}

func buildOptions(opts []Option) options {
	o := options{
		fs:      afero.NewOsFs(),
		markers: engine.DefaultMarkers(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewCLI creates a one-shot binary transport for the engine at path.
func NewCLI(path string, opts ...Option) *CLI {
	o := buildOptions(opts)
	return &CLI{
		path:    path,
		dir:     o.dir,
		env:     o.env,
		tempDir: o.tempDir,
		fs:      o.fs,
		markers: o.markers,
	}
}

// Kind implements engine.Transport.
func (c *CLI) Kind() engine.Kind {
	return engine.KindBinary
}

// Path returns the engine executable.
func (c *CLI) Path() string {
	return c.path
}

// Invoke implements engine.Transport. When the request carries no on-disk
// schema path, the merged schema is written to a temporary file that is
// removed after a successful call only; failed outcomes keep it and report its
// path so a panic report can include it.
func (c *CLI) Invoke(ctx context.Context, req engine.Request) engine.Outcome {
	log := debug.With("component", "binary", "command", string(req.Command))

	params, err := stdinPayload(req)
	if err != nil {
		return engine.Failure("could not encode engine request", err)
	}

	schemaPath := req.SchemaPath
	tempPath := ""
	if schemaPath == "" && !req.Schemas.IsEmpty() {
		tempPath, err = c.writeTempSchema(req.Schemas.MergedText())
		if err != nil {
			return engine.Failure("could not write temporary schema file", err)
		}
		schemaPath = tempPath
	}

	args := make([]string, 0, len(req.Flags)+2)
	args = append(args, req.Flags...)
	args = append(args, "cli", string(req.Command))

	cmd := exec.CommandContext(ctx, c.path, args...)
	cmd.Dir = c.dir
	cmd.Env = append(os.Environ(), c.env...)
	if schemaPath != "" {
		cmd.Env = append(cmd.Env, EnvSchemaPath+"="+schemaPath)
	}
	cmd.Stdin = bytes.NewReader(append(params, '\n'))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug("spawning engine", "path", c.path, "args", args, "schema", schemaPath)
	runErr := cmd.Run()
	var outcome engine.Outcome
	if ctxErr := ctx.Err(); ctxErr != nil {
		outcome = engine.Failure("engine call cancelled", ctxErr)
	} else {
		outcome = c.classify(req, runErr, stdout.String(), stderr.String())
	}
	log.Debug("engine exited", "outcome", outcome.Kind.String(), "stderr_bytes", stderr.Len())

	if tempPath != "" {
		if outcome.OK() {
			if err := c.fs.Remove(tempPath); err != nil {
				log.Warn("could not remove temporary schema file", "path", tempPath, "error", err)
			}
		} else {
			outcome.SchemaPath = tempPath
		}
	}
	return outcome
}

func stdinPayload(req engine.Request) ([]byte, error) {
	params, err := engine.EncodeParams(req.Params)
	if err != nil || req.Options == nil {
		return params, err
	}
	options, err := engine.EncodeParams(req.Options)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(params)+len(options)+3)
	out = append(out, '[')
	out = append(out, params...)
	out = append(out, ',')
	out = append(out, options...)
	return append(out, ']'), nil
}

func (c *CLI) writeTempSchema(text string) (string, error) {
	dir := c.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := afero.TempFile(c.fs, dir, "prisma-schema-*.prisma")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		_ = c.fs.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = c.fs.Remove(f.Name())
		return "", err
	}
	return filepath.Clean(f.Name()), nil
}

// classify maps the result of one engine process to an outcome.
func (c *CLI) classify(req engine.Request, runErr error, stdout, stderr string) engine.Outcome {
	m := c.markers

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			if m.IsTextBusy(0, runErr.Error()) {
				return engine.Retryable(engine.RetryTextBusy, runErr.Error())
			}
			return engine.Failure(fmt.Sprintf("could not start engine binary %s", c.path), runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	if m.IsWarming(stdout) {
		return engine.Retryable(engine.RetryEngineWarming, strings.TrimSpace(stdout))
	}

	if exitCode == m.SuccessExitCode && runErr == nil {
		if raw, ok := engine.LocateJSON(stdout); ok {
			return engine.Success(raw)
		}
		if strings.TrimSpace(stdout) == "" {
			return engine.Success(nil)
		}
		return engine.Failure("engine printed no JSON: "+strings.TrimSpace(stdout), nil)
	}

	if m.IsTextBusy(exitCode, stderr) {
		return engine.Retryable(engine.RetryTextBusy, strings.TrimSpace(stderr))
	}

	if m.IsPanicExitCode(exitCode) || exitCode < 0 || m.IsPanicText(stderr) {
		message, stack := panicDetails(stderr, m)
		if message == "" {
			message = fmt.Sprintf("engine exited with code %d", exitCode)
		}
		return engine.Panic(message, stack, req.Echo())
	}

	// The engine reports known errors as JSON, on stdout or stderr.
	if _, ok := engine.ParseErrorPayload(stdout); ok {
		return withEcho(engine.ClassifyEngineMessage(stdout, m), req)
	}
	if rec, ok := lastErrorRecord(stderr); ok && rec.Text() != "" && !rec.IsPanic {
		return engine.Failure(rec.Text(), nil)
	}
	raw := stderr
	if strings.TrimSpace(raw) == "" {
		raw = stdout
	}
	if strings.TrimSpace(raw) == "" {
		raw = fmt.Sprintf("engine exited with code %d", exitCode)
	}
	return withEcho(engine.ClassifyEngineMessage(raw, m), req)
}

func withEcho(o engine.Outcome, req engine.Request) engine.Outcome {
	if o.Kind == engine.OutcomePanic && o.RequestEcho == "" {
		o.RequestEcho = req.Echo()
	}
	return o
}

// panicDetails extracts the panic message and backtrace from stderr, preferring
// structured log records over raw text.
func panicDetails(stderr string, m engine.Markers) (message, stack string) {
	if rec, ok := lastErrorRecord(stderr); ok {
		stack = rec.Backtrace
		if stack == "" {
			stack = stderr
		}
		return rec.Text(), stack
	}
	if e, ok := engine.ParseErrorPayload(stderr); ok {
		return e.Message, e.Backtrace
	}
	trimmed := strings.TrimSpace(stderr)
	if trimmed == "" {
		return "", ""
	}
	for _, line := range strings.Split(trimmed, "\n") {
		if m.PanickedAt != "" && strings.Contains(line, m.PanickedAt) {
			return strings.TrimSpace(line), stderr
		}
	}
	return strings.Split(trimmed, "\n")[0], stderr
}
