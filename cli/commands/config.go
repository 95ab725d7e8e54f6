package commands

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/prisma-engines-go/cli/internal/ui"
	"github.com/satishbabariya/prisma-engines-go/engine/command"
)

var getConfigCmd = &cobra.Command{
	Use:   "get-config [schema-path]",
	Short: "Print the datasources and generators of a schema as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE:  withPanicReport(runGetConfig),
}

var getConfigIgnoreEnv bool

func init() {
	getConfigCmd.Flags().BoolVar(&getConfigIgnoreEnv, "ignore-env-var-errors", false, "Do not fail on unset env() variables")

	rootCmd.AddCommand(getConfigCmd)
}

func runGetConfig(cmd *cobra.Command, args []string) error {
	runner, err := newRunner()
	if err != nil {
		return err
	}
	sc, err := loadSchemaContext(cmd.Context(), runner, args, getConfigIgnoreEnv)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(command.ConfigMetaFormat{
		Datasources: sc.Datasources,
		Generators:  sc.Generators,
		Warnings:    sc.Warnings,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(ui.Out, string(out))
	return nil
}
