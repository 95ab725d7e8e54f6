package commands

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/prisma-engines-go/cli/internal/ui"
	"github.com/satishbabariya/prisma-engines-go/engine/command"
)

var dmmfCmd = &cobra.Command{
	Use:   "dmmf [schema-path]",
	Short: "Print the data model meta format of a schema",
	Args:  cobra.MaximumNArgs(1),
	RunE:  withPanicReport(runDMMF),
}

var (
	dmmfPreview    []string
	dmmfModelsOnly bool
)

func init() {
	dmmfCmd.Flags().StringSliceVar(&dmmfPreview, "preview", nil, "Preview features to enable (defaults to the generator's)")
	dmmfCmd.Flags().BoolVar(&dmmfModelsOnly, "models", false, "Only list the model names")

	rootCmd.AddCommand(dmmfCmd)
}

func runDMMF(cmd *cobra.Command, args []string) error {
	runner, err := newRunner()
	if err != nil {
		return err
	}
	sc, err := loadSchemaContext(cmd.Context(), runner, args, true)
	if err != nil {
		return err
	}

	preview := dmmfPreview
	if len(preview) == 0 {
		preview = sc.PreviewFeatures()
	}
	spinner, _ := ui.PrintSpinner("Asking the engine for the DMMF...")
	doc, err := runner.GetDMMF(cmd.Context(), command.GetDMMFOptions{
		Schemas:         sc.SchemaFiles,
		PreviewFeatures: preview,
		Retries:         command.DefaultDMMFRetries,
	})
	if spinner != nil {
		_ = spinner.Stop()
	}
	if err != nil {
		return err
	}

	if dmmfModelsOnly {
		models, err := doc.Models()
		if err != nil {
			return err
		}
		ui.PrintList(models)
		return nil
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(ui.Out, string(out))
	return nil
}
