package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/prisma-engines-go/cli/internal/config"
	"github.com/satishbabariya/prisma-engines-go/cli/internal/engines"
	"github.com/satishbabariya/prisma-engines-go/cli/internal/prompt"
	"github.com/satishbabariya/prisma-engines-go/cli/internal/ui"
	"github.com/satishbabariya/prisma-engines-go/cli/internal/version"
	"github.com/satishbabariya/prisma-engines-go/cli/internal/watch"
	"github.com/satishbabariya/prisma-engines-go/engine"
	"github.com/satishbabariya/prisma-engines-go/engine/command"
	"github.com/satishbabariya/prisma-engines-go/internal/debug"
	"github.com/satishbabariya/prisma-engines-go/psl/locator"
	"github.com/satishbabariya/prisma-engines-go/schemacontext"
	"github.com/satishbabariya/prisma-engines-go/telemetry"
)

func newFactory() *engines.Factory {
	return engines.New(cfg.Engine, config.AppFs, engine.NewTranslator(version.Version))
}

func newRunner() (*command.Runner, error) {
	return newFactory().Runner()
}

// schemaArg prefers a positional path over --schema.
func schemaArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return schemaFlag
}

func locateSchema(args []string) (*locator.RootDescriptor, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	desc, err := locator.New(config.AppFs, cwd).Locate(locator.Options{
		SchemaPathFromArg:    schemaArg(args),
		SchemaPathFromConfig: cfg.SchemaPath,
	})
	if err != nil {
		return nil, err
	}
	debug.Debug("schema located", "path", desc.SchemaPath, "files", desc.SchemaFiles.Len(), "source", desc.Source)
	return desc, nil
}

func loadSchemaContext(ctx context.Context, runner *command.Runner, args []string, ignoreEnvVarErrors bool) (*schemacontext.SchemaContext, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return schemacontext.Load(ctx, runner, schemacontext.Options{
		SchemaPathFromArg:    schemaArg(args),
		SchemaPathFromConfig: cfg.SchemaPath,
		IgnoreEnvVarErrors:   ignoreEnvVarErrors,
		Fs:                   config.AppFs,
		Cwd:                  cwd,
	})
}

// withPanicReport runs fn and offers to submit a bug report when it fails
// with an engine panic. The original error is returned either way.
func withPanicReport(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if err != nil {
			reportPanic(cmd.Context(), err)
		}
		return err
	}
}

func reportPanic(ctx context.Context, err error) {
	p, ok := engine.AsPanic(err)
	if !ok {
		return
	}
	if noTelemetry || telemetry.Disabled() || cfg.TelemetryEndpoint == "" {
		debug.Debug("panic report skipped", "endpoint", cfg.TelemetryEndpoint)
		return
	}

	opts := telemetry.ReportOptions{Fs: config.AppFs, Args: os.Args[1:]}
	if runner, rerr := newRunner(); rerr == nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if v, verr := runner.Version(vctx); verr == nil {
			opts.EngineVersion = v.Version
		}
		cancel()
	}
	report, rerr := telemetry.NewReport(p, opts)
	if rerr != nil {
		debug.Warn("could not build panic report", "err", rerr)
		return
	}

	ui.PrintSection("Crash report")
	if merr := ui.PrintMarkdown(report.Markdown()); merr != nil {
		debug.Warn("could not render panic report", "err", merr)
	}

	submit, perr := prompt.Confirm("Submit this report to help us fix the crash?", true)
	if errors.Is(perr, prompt.ErrNotInteractive) {
		ui.PrintInfo("Not an interactive terminal, the report was not submitted.")
		return
	}
	if perr != nil || !submit {
		return
	}

	id, serr := telemetry.NewHTTPReporter(cfg.TelemetryEndpoint, version.Version).Submit(ctx, report)
	if serr != nil {
		ui.PrintWarning("Could not submit the report: %v", serr)
		return
	}
	ui.PrintSuccess("Report %s submitted, thank you", id)
}

// watchSchema runs fn now and whenever a file of the schema changes, until ctx
// is cancelled.
func watchSchema(ctx context.Context, args []string, fn func() error) error {
	desc, err := locateSchema(args)
	if err != nil {
		return err
	}

	callback := func() error {
		err := fn()
		if err != nil {
			ui.PrintError("%v", err)
		}
		return nil
	}
	watcher, err := watch.NewWatcher([]string{desc.SchemaPath}, callback)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Stop()

	if err := watcher.Start(); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	ui.PrintInfo("Watching %s for changes... (Press Ctrl+C to stop)", desc.LoadedFromPathForLogMessages)

	<-ctx.Done()
	ui.PrintInfo("Stopping watch mode...")
	return nil
}
