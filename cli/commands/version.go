package commands

import (
	"github.com/spf13/cobra"

	"github.com/satishbabariya/prisma-engines-go/cli/internal/ui"
	"github.com/satishbabariya/prisma-engines-go/cli/internal/update"
	"github.com/satishbabariya/prisma-engines-go/cli/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI and engine versions",
	Args:  cobra.NoArgs,
	RunE:  withPanicReport(runVersion),
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, _ []string) error {
	info := version.Get()
	rows := [][]string{
		{"prisma-engines-go", info.Version},
		{"Git commit", info.GitCommit},
		{"Platform", info.Platform},
		{"Go", info.GoVersion},
	}

	factory := newFactory()
	runner, err := factory.Runner()
	if err != nil {
		ui.PrintTable([]string{"Component", "Version"}, rows)
		ui.PrintWarning("%v", err)
		return nil
	}

	v, err := runner.Version(cmd.Context())
	if err != nil {
		return err
	}
	kind, _ := factory.Kind()
	rows = append(rows,
		[]string{"Engine (" + string(kind) + ")", v.Version},
		[]string{"Engine commit", v.Commit},
	)
	ui.PrintTable([]string{"Component", "Version"}, rows)

	status, err := update.CheckEngineVersion(v, cfg.Engine.MinVersion)
	if err != nil {
		return err
	}
	if status.Outdated {
		ui.PrintWarning("Engine %s is older than the minimum supported version %s", status.Current, status.Minimum)
	}
	return nil
}
