package commands

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/prisma-engines-go/cli/internal/config"
	"github.com/satishbabariya/prisma-engines-go/cli/internal/ui"
)

var mergeCmd = &cobra.Command{
	Use:   "merge [schema-path]",
	Short: "Merge a multi-file schema into one document",
	Args:  cobra.MaximumNArgs(1),
	RunE:  withPanicReport(runMerge),
}

var mergeOutput string

func init() {
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "", "Write the merged schema to this file instead of stdout")

	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	runner, err := newRunner()
	if err != nil {
		return err
	}
	desc, err := locateSchema(args)
	if err != nil {
		return err
	}

	merged, err := runner.MergeSchemas(cmd.Context(), desc.SchemaFiles)
	if err != nil {
		return err
	}
	if mergeOutput == "" {
		fmt.Fprint(ui.Out, merged)
		return nil
	}
	if err := afero.WriteFile(config.AppFs, mergeOutput, []byte(merged), 0o644); err != nil {
		return fmt.Errorf("failed to write merged schema: %w", err)
	}
	ui.PrintSuccess("Merged %d file(s) into %s", desc.SchemaFiles.Len(), mergeOutput)
	return nil
}
