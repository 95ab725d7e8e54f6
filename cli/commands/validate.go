package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/prisma-engines-go/cli/internal/ui"
	"github.com/satishbabariya/prisma-engines-go/engine/command"
	"github.com/satishbabariya/prisma-engines-go/psl/diagnostics"
)

var validateCmd = &cobra.Command{
	Use:   "validate [schema-path]",
	Short: "Validate a Prisma schema",
	Long: `Validate a Prisma schema file or directory.

This command will:
- Print the lint warnings of the schema
- Ask the engine to validate every schema file
- Extract the datasource and generator configuration`,
	Args: cobra.MaximumNArgs(1),
	RunE: withPanicReport(runValidate),
}

var validateWatch bool

func init() {
	validateCmd.Flags().BoolVarP(&validateWatch, "watch", "w", false, "Validate again whenever a schema file changes")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	runner, err := newRunner()
	if err != nil {
		return err
	}
	if validateWatch {
		return watchSchema(cmd.Context(), args, func() error {
			return validateOnce(cmd.Context(), runner, args)
		})
	}
	return validateOnce(cmd.Context(), runner, args)
}

func validateOnce(ctx context.Context, runner *command.Runner, args []string) error {
	desc, err := locateSchema(args)
	if err != nil {
		return err
	}

	lint, err := runner.Lint(ctx, desc.SchemaFiles)
	if err != nil {
		return err
	}
	if warnings, _ := diagnostics.Split(lint); len(warnings) > 0 {
		ui.PrintWarning("Prisma schema warnings:")
		if err := ui.PrintDiagnostics(desc.SchemaFiles, warnings); err != nil {
			return err
		}
	}

	if err := runner.Validate(ctx, command.ValidateOptions{
		Schemas: desc.SchemaFiles,
		NoColor: os.Getenv("NO_COLOR") != "",
	}); err != nil {
		return err
	}

	sc, err := loadSchemaContext(ctx, runner, args, true)
	if err != nil {
		return err
	}
	for _, w := range sc.Warnings {
		ui.PrintWarning("%s", w)
	}

	ui.PrintSuccess("The schema at %s is valid 🚀", desc.LoadedFromPathForLogMessages)
	return nil
}
