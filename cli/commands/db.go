package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/prisma-engines-go/cli/internal/config"
	"github.com/satishbabariya/prisma-engines-go/cli/internal/ui"
	"github.com/satishbabariya/prisma-engines-go/engine/introspection"
	"github.com/satishbabariya/prisma-engines-go/schemacontext"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect the database behind your schema",
	Long: `Inspect the database the schema's datasource points to.

These commands run a schema engine session (PRISMA_SCHEMA_ENGINE_BINARY) and
stop it when they are done.`,
}

var (
	dbVersionCmd = &cobra.Command{
		Use:   "version [schema-path]",
		Short: "Print the database server version",
		Args:  cobra.MaximumNArgs(1),
		RunE: withPanicReport(func(cmd *cobra.Command, args []string) error {
			return withIntrospection(cmd.Context(), args, func(ctx context.Context, eng *introspection.Engine, schema string, _ *schemacontext.SchemaContext) error {
				v, err := eng.GetDatabaseVersion(ctx, schema)
				if err != nil {
					return err
				}
				fmt.Fprintln(ui.Out, v)
				return nil
			})
		}),
	}

	dbMetadataCmd = &cobra.Command{
		Use:   "metadata [schema-path]",
		Short: "Print the database size and table count",
		Args:  cobra.MaximumNArgs(1),
		RunE: withPanicReport(func(cmd *cobra.Command, args []string) error {
			return withIntrospection(cmd.Context(), args, func(ctx context.Context, eng *introspection.Engine, schema string, _ *schemacontext.SchemaContext) error {
				m, err := eng.GetDatabaseMetadata(ctx, schema)
				if err != nil {
					return err
				}
				ui.PrintTable([]string{"Size (bytes)", "Tables"}, [][]string{
					{strconv.FormatInt(m.SizeInBytes, 10), strconv.Itoa(m.TableCount)},
				})
				return nil
			})
		}),
	}

	dbDescriptionCmd = &cobra.Command{
		Use:   "description [schema-path]",
		Short: "Print a description of the database structure",
		Args:  cobra.MaximumNArgs(1),
		RunE: withPanicReport(func(cmd *cobra.Command, args []string) error {
			return withIntrospection(cmd.Context(), args, func(ctx context.Context, eng *introspection.Engine, schema string, _ *schemacontext.SchemaContext) error {
				d, err := eng.GetDatabaseDescription(ctx, schema)
				if err != nil {
					return err
				}
				fmt.Fprintln(ui.Out, d)
				return nil
			})
		}),
	}

	dbListCmd = &cobra.Command{
		Use:   "list [schema-path]",
		Short: "List the databases visible through the datasource",
		Args:  cobra.MaximumNArgs(1),
		RunE: withPanicReport(func(cmd *cobra.Command, args []string) error {
			return withIntrospection(cmd.Context(), args, func(ctx context.Context, eng *introspection.Engine, schema string, _ *schemacontext.SchemaContext) error {
				names, err := eng.ListDatabases(ctx, schema)
				if err != nil {
					return err
				}
				ui.PrintList(names)
				return nil
			})
		}),
	}

	dbPullCmd = &cobra.Command{
		Use:   "pull [schema-path]",
		Short: "Pull the schema from the database (introspect)",
		Long: `Introspect the database and update the schema with its models.

With --print the result goes to stdout and nothing is written.`,
		Args: cobra.MaximumNArgs(1),
		RunE: withPanicReport(runDBPull),
	}
)

var (
	dbPullPrint              bool
	dbPullForce              bool
	dbPullCompositeTypeDepth int
)

func init() {
	dbPullCmd.Flags().BoolVar(&dbPullPrint, "print", false, "Print the introspected schema instead of writing it")
	dbPullCmd.Flags().BoolVar(&dbPullForce, "force", false, "Ignore the current models and overwrite them")
	dbPullCmd.Flags().IntVar(&dbPullCompositeTypeDepth, "composite-type-depth", -1, "How deep to look for composite types on document databases (-1 is unlimited)")

	dbCmd.AddCommand(dbVersionCmd)
	dbCmd.AddCommand(dbMetadataCmd)
	dbCmd.AddCommand(dbDescriptionCmd)
	dbCmd.AddCommand(dbListCmd)
	dbCmd.AddCommand(dbPullCmd)

	rootCmd.AddCommand(dbCmd)
}

// withIntrospection loads the schema, requires a datasource and runs fn on a
// started schema engine session that is stopped afterwards.
func withIntrospection(ctx context.Context, args []string, fn func(ctx context.Context, eng *introspection.Engine, schema string, sc *schemacontext.SchemaContext) error) error {
	runner, err := newRunner()
	if err != nil {
		return err
	}
	sc, err := loadSchemaContext(ctx, runner, args, false)
	if err != nil {
		return err
	}
	if _, err := sc.RequireDatasource(); err != nil {
		return err
	}

	eng, err := newFactory().Introspection()
	if err != nil {
		return err
	}
	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := eng.Stop(context.WithoutCancel(ctx)); err != nil {
			ui.PrintWarning("Could not stop the schema engine: %v", err)
		}
	}()

	return fn(ctx, eng, sc.SchemaFiles.MergedText(), sc)
}

func runDBPull(cmd *cobra.Command, args []string) error {
	return withIntrospection(cmd.Context(), args, func(ctx context.Context, eng *introspection.Engine, schema string, sc *schemacontext.SchemaContext) error {
		spinner, _ := ui.PrintSpinner("Introspecting the database...")
		result, err := eng.Introspect(ctx, introspection.IntrospectOptions{
			Schema:             schema,
			Force:              dbPullForce,
			CompositeTypeDepth: dbPullCompositeTypeDepth,
			BaseDirectoryPath:  sc.SchemaRootDir,
		})
		if spinner != nil {
			_ = spinner.Stop()
		}
		if err != nil {
			return err
		}

		if result.Warnings != "" {
			ui.PrintWarning("%s", result.Warnings)
		}
		if dbPullPrint {
			fmt.Fprint(ui.Out, result.Datamodel)
			return nil
		}

		if sc.SchemaFiles.Len() != 1 {
			return errors.New("db pull can only write single-file schemas, use --print for multi-file schemas")
		}
		target := sc.SchemaFiles.File(0).Name
		if err := afero.WriteFile(config.AppFs, target, []byte(result.Datamodel), 0o644); err != nil {
			return fmt.Errorf("failed to write schema: %w", err)
		}
		for _, v := range result.Views {
			if v.Definition == nil {
				continue
			}
			path := filepath.Join(sc.SchemaRootDir, v.Path)
			if err := config.AppFs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := afero.WriteFile(config.AppFs, path, []byte(*v.Definition), 0o644); err != nil {
				return fmt.Errorf("failed to write view %s: %w", v.Name, err)
			}
		}

		ui.PrintSuccess("Introspected the database into %s", sc.LoadedFromPathForLogMessages)
		return nil
	})
}
