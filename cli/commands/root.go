package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/prisma-engines-go/cli/internal/config"
	"github.com/satishbabariya/prisma-engines-go/cli/internal/ui"
	"github.com/satishbabariya/prisma-engines-go/cli/internal/version"
	"github.com/satishbabariya/prisma-engines-go/internal/debug"
)

var (
	schemaFlag     string
	debugFlag      bool
	engineTypeFlag string
	noTelemetry    bool

	cfg = &config.Config{}
)

var rootCmd = &cobra.Command{
	Use:   "prisma-engines",
	Short: "Run Prisma schema engines from the command line",
	Long: `prisma-engines locates your Prisma schema and runs the schema engines on it.

Engines are native binaries, shared libraries or WebAssembly modules. Point the
CLI at them with PRISMA_QUERY_ENGINE_BINARY, PRISMA_QUERY_ENGINE_LIBRARY,
PRISMA_SCHEMA_WASM and PRISMA_SCHEMA_ENGINE_BINARY, or with a
.prisma-engines.yaml config file.`,
	Version:           version.Get().String(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&schemaFlag, "schema", "s", "", "Path to the schema file or directory")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Print debug logs to stderr")
	rootCmd.PersistentFlags().StringVar(&engineTypeFlag, "engine-type", "", "Engine to use: binary, library or wasm")
	rootCmd.PersistentFlags().BoolVar(&noTelemetry, "no-telemetry", false, "Never offer to submit crash reports")
}

func setup(cmd *cobra.Command, _ []string) error {
	debug.Init(debugFlag || debug.EnabledFromEnv())

	loaded, err := config.LoadConfig()
	if err != nil {
		return err
	}
	cfg = loaded
	if engineTypeFlag != "" {
		cfg.Engine.Type = engineTypeFlag
	}
	debug.Debug("configuration loaded", "file", cfg.File, "engine", cfg.Engine.Type)
	return nil
}

// Execute is the main entry point for the CLI
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError("%v", err)
		return err
	}
	return nil
}
