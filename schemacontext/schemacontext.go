// Package schemacontext loads the schema together with its configuration:
// the located files, the datasources and generators the engine extracted from
// them, and the directory relative datasource paths resolve against.
package schemacontext

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/satishbabariya/prisma-engines-go/engine/command"
	"github.com/satishbabariya/prisma-engines-go/internal/debug"
	"github.com/satishbabariya/prisma-engines-go/psl/core"
	"github.com/satishbabariya/prisma-engines-go/psl/locator"
)

// ErrNoDatasource is returned by RequireDatasource when the schema declares none.
var ErrNoDatasource = errors.New("the schema does not declare a datasource")

// ConfigGetter extracts the configuration of a schema. *command.Runner
// implements it.
type ConfigGetter interface {
	GetConfig(ctx context.Context, opts command.GetConfigOptions) (*command.ConfigMetaFormat, error)
}

var _ ConfigGetter = (*command.Runner)(nil)

// Options are the inputs of Load.
type Options struct {
	SchemaPathFromArg    string
	SchemaPathFromConfig string
	IgnoreEnvVarErrors   bool
	// AllowNull makes Load return a nil context instead of an error when no
	// schema is found anywhere.
	AllowNull bool
	// DatasourceOverrides replaces datasource URLs by datasource name.
	DatasourceOverrides map[string]string

	Fs  afero.Fs
	Cwd string
	// Environ is the process environment as KEY=value pairs; nil means os.Environ.
	Environ []string
}

// SchemaContext is the located schema plus its configuration. It is built
// fresh by every Load.
type SchemaContext struct {
	SchemaFiles                  core.SchemaFileSet
	SchemaPath                   string
	SchemaRootDir                string
	PrimaryDatasourceDirectory   string
	LoadedFromPathForLogMessages string

	// PrimaryDatasource is the first datasource, nil when there is none.
	PrimaryDatasource *command.Datasource
	Datasources       []command.Datasource
	Generators        []command.GeneratorConfig
	Warnings          []string

	// Env is what env("...") values were resolved against.
	Env map[string]string
}

// Load locates the schema and asks the engine for its configuration.
func Load(ctx context.Context, getter ConfigGetter, opts Options) (*SchemaContext, error) {
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	loc := locator.New(fsys, opts.Cwd)

	desc, err := loc.Locate(locator.Options{
		SchemaPathFromArg:    opts.SchemaPathFromArg,
		SchemaPathFromConfig: opts.SchemaPathFromConfig,
	})
	if err != nil {
		if opts.AllowNull && errors.Is(err, locator.ErrSchemaNotFound) {
			debug.Debug("no schema found, continuing without one")
			return nil, nil
		}
		return nil, err
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	env, err := loadEnv(fsys, loc.Cwd(), desc.SchemaRootDir, environ)
	if err != nil {
		return nil, err
	}

	cfg, err := getter.GetConfig(ctx, command.GetConfigOptions{
		Schemas:             desc.SchemaFiles,
		IgnoreEnvVarErrors:  opts.IgnoreEnvVarErrors,
		DatasourceOverrides: opts.DatasourceOverrides,
		Env:                 env,
	})
	if err != nil {
		return nil, err
	}

	sc := &SchemaContext{
		SchemaFiles:                  desc.SchemaFiles,
		SchemaPath:                   desc.SchemaPath,
		SchemaRootDir:                desc.SchemaRootDir,
		PrimaryDatasourceDirectory:   desc.PrimaryDatasourceDirectory,
		LoadedFromPathForLogMessages: desc.LoadedFromPathForLogMessages,
		Datasources:                  cfg.Datasources,
		Generators:                   cfg.Generators,
		Warnings:                     cfg.Warnings,
		Env:                          env,
	}
	if len(sc.Datasources) > 0 {
		sc.PrimaryDatasource = &sc.Datasources[0]
		if p := sc.PrimaryDatasource.SourceFilePath; p != "" {
			if !filepath.IsAbs(p) {
				p = filepath.Join(loc.Cwd(), p)
			}
			sc.PrimaryDatasourceDirectory = filepath.Dir(p)
		}
	}
	if sc.PrimaryDatasourceDirectory == "" {
		sc.PrimaryDatasourceDirectory = sc.SchemaRootDir
	}

	debug.Debug("schema context loaded",
		"path", sc.LoadedFromPathForLogMessages,
		"files", sc.SchemaFiles.Len(),
		"datasources", len(sc.Datasources),
		"generators", len(sc.Generators),
	)
	return sc, nil
}

// RequireDatasource returns the primary datasource or ErrNoDatasource.
func (sc *SchemaContext) RequireDatasource() (*command.Datasource, error) {
	if sc.PrimaryDatasource == nil {
		return nil, ErrNoDatasource
	}
	return sc.PrimaryDatasource, nil
}

// PreviewFeatures returns the preview features enabled by the first generator.
func (sc *SchemaContext) PreviewFeatures() []string {
	for _, g := range sc.Generators {
		if len(g.PreviewFeatures) > 0 {
			return g.PreviewFeatures
		}
	}
	return nil
}

// DatasourceURL resolves the URL of the primary datasource against Env.
func (sc *SchemaContext) DatasourceURL() (string, bool) {
	if sc.PrimaryDatasource == nil {
		return "", false
	}
	return sc.PrimaryDatasource.URL.Resolve(sc.Env)
}
