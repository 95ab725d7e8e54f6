package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/prisma-engines-go/cli/internal/config"
	"github.com/satishbabariya/prisma-engines-go/cli/internal/ui"
	"github.com/satishbabariya/prisma-engines-go/engine/command"
	"github.com/satishbabariya/prisma-engines-go/psl/core"
)

// ErrUnformatted is returned by format --check when a file would change.
var ErrUnformatted = errors.New("some schema files are not formatted")

var formatCmd = &cobra.Command{
	Use:     "format [schema-path]",
	Aliases: []string{"fmt"},
	Short:   "Format a Prisma schema",
	Long: `Format every file of a Prisma schema in place.

With --check nothing is written; the differences are printed and the command
fails when a file is not formatted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: withPanicReport(runFormat),
}

var (
	formatTabSize int
	formatCheck   bool
	formatWatch   bool
)

func init() {
	formatCmd.Flags().IntVar(&formatTabSize, "tab-size", 2, "Spaces per indentation level")
	formatCmd.Flags().BoolVar(&formatCheck, "check", false, "Fail instead of writing when a file is not formatted")
	formatCmd.Flags().BoolVarP(&formatWatch, "watch", "w", false, "Format again whenever a schema file changes")

	rootCmd.AddCommand(formatCmd)
}

func runFormat(cmd *cobra.Command, args []string) error {
	runner, err := newRunner()
	if err != nil {
		return err
	}
	if formatWatch {
		return watchSchema(cmd.Context(), args, func() error {
			return formatOnce(cmd.Context(), runner, args)
		})
	}
	return formatOnce(cmd.Context(), runner, args)
}

func formatOnce(ctx context.Context, runner *command.Runner, args []string) error {
	started := time.Now()
	desc, err := locateSchema(args)
	if err != nil {
		return err
	}

	result, err := runner.Format(ctx, desc.SchemaFiles, command.FormatOptions{TabSize: formatTabSize, InsertSpaces: true})
	if err != nil {
		return err
	}
	if len(result.Warnings) > 0 {
		ui.PrintWarning("Prisma schema warnings:")
		if err := ui.PrintDiagnostics(result.Schemas, result.Warnings); err != nil {
			return err
		}
	}

	changed := changedFiles(desc.SchemaFiles, result.Schemas)
	if formatCheck {
		for _, f := range changed {
			before, _ := desc.SchemaFiles.Lookup(f.Name)
			ui.PrintSection(f.Name)
			ui.PrintDiff(before.Content, f.Content)
		}
		if len(changed) > 0 {
			return fmt.Errorf("%w: run format to fix %d file(s)", ErrUnformatted, len(changed))
		}
		ui.PrintSuccess("All files are formatted correctly")
		return nil
	}

	for _, f := range changed {
		if err := afero.WriteFile(config.AppFs, f.Name, []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("failed to write formatted schema: %w", err)
		}
	}
	ui.PrintSuccess("Formatted %s in %dms 🚀", desc.LoadedFromPathForLogMessages, time.Since(started).Milliseconds())
	return nil
}

// changedFiles returns the formatted files whose content differs from before.
func changedFiles(before, after core.SchemaFileSet) []core.SchemaFile {
	var changed []core.SchemaFile
	for _, f := range after.Files() {
		if old, ok := before.Lookup(f.Name); ok && old.Content == f.Content {
			continue
		}
		changed = append(changed, f)
	}
	return changed
}
