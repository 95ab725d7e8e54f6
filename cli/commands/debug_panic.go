package commands

import (
	"github.com/spf13/cobra"
)

var debugPanicCmd = &cobra.Command{
	Use:    "debug-panic",
	Short:  "Make the engine panic to test crash handling",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   withPanicReport(runDebugPanic),
}

var (
	debugPanicMessage      string
	debugPanicSchemaEngine bool
)

func init() {
	debugPanicCmd.Flags().StringVar(&debugPanicMessage, "message", "", "Panic message")
	debugPanicCmd.Flags().BoolVar(&debugPanicSchemaEngine, "schema-engine", false, "Panic the schema engine session instead")

	rootCmd.AddCommand(debugPanicCmd)
}

func runDebugPanic(cmd *cobra.Command, _ []string) error {
	if debugPanicSchemaEngine {
		eng, err := newFactory().Introspection()
		if err != nil {
			return err
		}
		if err := eng.Start(cmd.Context()); err != nil {
			return err
		}
		defer eng.Stop(cmd.Context())
		return eng.DebugPanic(cmd.Context())
	}

	runner, err := newRunner()
	if err != nil {
		return err
	}
	return runner.DebugPanic(cmd.Context(), debugPanicMessage)
}
