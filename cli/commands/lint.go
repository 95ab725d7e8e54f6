package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/prisma-engines-go/cli/internal/ui"
	"github.com/satishbabariya/prisma-engines-go/psl/diagnostics"
)

var lintCmd = &cobra.Command{
	Use:   "lint [schema-path]",
	Short: "List the diagnostics of a Prisma schema",
	Args:  cobra.MaximumNArgs(1),
	RunE:  withPanicReport(runLint),
}

var lintPretty bool

func init() {
	lintCmd.Flags().BoolVar(&lintPretty, "pretty", false, "Print every diagnostic with its source lines")

	rootCmd.AddCommand(lintCmd)
}

func runLint(cmd *cobra.Command, args []string) error {
	runner, err := newRunner()
	if err != nil {
		return err
	}
	desc, err := locateSchema(args)
	if err != nil {
		return err
	}

	list, err := runner.Lint(cmd.Context(), desc.SchemaFiles)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		ui.PrintSuccess("No issues found in %s", desc.LoadedFromPathForLogMessages)
		return nil
	}

	if lintPretty {
		if err := ui.PrintDiagnostics(desc.SchemaFiles, list); err != nil {
			return err
		}
	} else {
		resolved, err := diagnostics.ResolveAll(desc.SchemaFiles, list)
		if err != nil {
			return err
		}
		rows := make([][]string, len(resolved))
		for i, r := range resolved {
			rows[i] = []string{r.StartPosition.String(), r.Severity(), r.Text}
		}
		ui.PrintTable([]string{"Location", "Severity", "Message"}, rows)
	}

	if _, errs := diagnostics.Split(list); len(errs) > 0 {
		return fmt.Errorf("the schema has %d error(s)", len(errs))
	}
	return nil
}
