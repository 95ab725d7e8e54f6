// Package locator resolves which files make up the schema, trying an explicit
// argument, a config value, the package manifest and the conventional locations
// in that order.
package locator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/satishbabariya/prisma-engines-go/internal/debug"
	"github.com/satishbabariya/prisma-engines-go/psl/core"
)

// SchemaExtension is the extension of files loaded from a schema directory.
const SchemaExtension = ".prisma"

type defaultLocation struct {
	rel string
	dir bool
}

// Conventional locations, tried in order.
var defaultLocations = []defaultLocation{
	{rel: "schema.prisma"},
	{rel: filepath.Join("prisma", "schema.prisma")},
	{rel: filepath.Join("prisma", "schema"), dir: true},
}

// Options carries the explicitly provided schema paths. Empty means not provided.
type Options struct {
	SchemaPathFromArg    string
	SchemaPathFromConfig string
}

// RootDescriptor describes the resolved schema and where it was found.
type RootDescriptor struct {
	SchemaFiles core.SchemaFileSet
	// SchemaPath is the resolved file or directory.
	SchemaPath    string
	SchemaRootDir string
	// PrimaryDatasourceDirectory is where relative datasource paths resolve.
	// It defaults to SchemaRootDir until a datasource with a known file is seen.
	PrimaryDatasourceDirectory   string
	LoadedFromPathForLogMessages string
	Source                       Source
}

// Locator finds schema files on a filesystem.
type Locator struct {
	fs  afero.Fs
	cwd string
}

// New creates a Locator. An empty cwd uses the process working directory.
func New(fsys afero.Fs, cwd string) *Locator {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		}
	}
	return &Locator{fs: fsys, cwd: filepath.Clean(cwd)}
}

// Cwd returns the directory relative paths are resolved against.
func (l *Locator) Cwd() string {
	return l.cwd
}

// Locate resolves the schema. Explicit sources that fail return a *LookupError
// without trying lower ones. When nothing resolves a *NotFoundError is returned.
func (l *Locator) Locate(opts Options) (*RootDescriptor, error) {
	if opts.SchemaPathFromArg != "" {
		return l.fromExplicit(SourceArgument, opts.SchemaPathFromArg, func(p, reason string) string {
			return fmt.Sprintf("Could not load `--schema` from provided path `%s`: %s", p, reason)
		})
	}

	if opts.SchemaPathFromConfig != "" {
		return l.fromExplicit(SourceConfig, opts.SchemaPathFromConfig, func(p, reason string) string {
			return fmt.Sprintf("Could not load schema from `%s` provided by the config file: %s", p, reason)
		})
	}

	desc, err := l.fromPackageJSON()
	if err != nil || desc != nil {
		return desc, err
	}

	return l.fromDefaults()
}

func (l *Locator) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(l.cwd, p)
}

func (l *Locator) rel(p string) string {
	if r, err := filepath.Rel(l.cwd, p); err == nil {
		return r
	}
	return p
}

func (l *Locator) fromExplicit(source Source, declared string, message func(p, reason string) string) (*RootDescriptor, error) {
	path := l.abs(declared)
	info, err := l.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LookupError{Kind: KindNotFound, Source: source, Path: declared, Message: message(declared, "file or directory not found"), Err: err}
		}
		return nil, &LookupError{Kind: KindReadFailed, Source: source, Path: declared, Message: message(declared, err.Error()), Err: err}
	}
	if !info.Mode().IsRegular() && !info.IsDir() {
		return nil, &LookupError{Kind: KindWrongType, Source: source, Path: declared, Message: message(declared, "not a file or directory")}
	}

	desc, reason, err := l.load(path, info.IsDir())
	if err != nil {
		return nil, &LookupError{Kind: KindReadFailed, Source: source, Path: declared, Message: message(declared, err.Error()), Err: err}
	}
	if desc == nil {
		return nil, &LookupError{Kind: KindNotFound, Source: source, Path: declared, Message: message(declared, reason)}
	}
	desc.Source = source
	return desc, nil
}

func (l *Locator) fromDefaults() (*RootDescriptor, error) {
	notFound := &NotFoundError{}
	for _, loc := range defaultLocations {
		path := filepath.Join(l.cwd, loc.rel)
		kindName := "file"
		if loc.dir {
			kindName = "directory"
		}

		info, err := l.fs.Stat(path)
		switch {
		case err != nil && errors.Is(err, fs.ErrNotExist):
			notFound.add(Attempt{Path: loc.rel, Kind: KindNotFound, Reason: kindName + " not found"})
			continue
		case err != nil:
			return nil, &LookupError{Kind: KindReadFailed, Source: SourceDefaultLocation, Path: loc.rel, Err: err}
		case loc.dir != info.IsDir() || (!loc.dir && !info.Mode().IsRegular()):
			notFound.add(Attempt{Path: loc.rel, Kind: KindWrongType, Reason: "not a " + kindName})
			continue
		}

		desc, reason, err := l.load(path, loc.dir)
		if err != nil {
			return nil, &LookupError{Kind: KindReadFailed, Source: SourceDefaultLocation, Path: loc.rel, Err: err}
		}
		if desc == nil {
			notFound.add(Attempt{Path: loc.rel, Kind: KindNotFound, Reason: reason})
			continue
		}
		desc.Source = SourceDefaultLocation
		return desc, nil
	}

	debug.Debug("schema not found", "attempts", len(notFound.Attempts), "cwd", l.cwd)
	return nil, notFound
}

// load reads a file or every schema file below a directory. A nil descriptor
// with a reason means the directory holds no schema files.
func (l *Locator) load(path string, dir bool) (*RootDescriptor, string, error) {
	if !dir {
		data, err := afero.ReadFile(l.fs, path)
		if err != nil {
			return nil, "", err
		}
		set, err := core.NewSchemaFileSet(core.NewSchemaFile(path, string(data)))
		if err != nil {
			return nil, "", err
		}
		root := filepath.Dir(path)
		debug.Debug("loaded schema file", "path", path)
		return &RootDescriptor{
			SchemaFiles:                  set,
			SchemaPath:                   path,
			SchemaRootDir:                root,
			PrimaryDatasourceDirectory:   root,
			LoadedFromPathForLogMessages: l.rel(path),
		}, "", nil
	}

	files, err := l.readDir(path)
	if err != nil {
		return nil, "", err
	}
	if len(files) == 0 {
		return nil, "directory contains no " + SchemaExtension + " files", nil
	}
	set, err := core.NewSchemaFileSet(files...)
	if err != nil {
		return nil, "", err
	}
	debug.Debug("loaded schema directory", "path", path, "files", set.Len())
	return &RootDescriptor{
		SchemaFiles:                  set,
		SchemaPath:                   path,
		SchemaRootDir:                path,
		PrimaryDatasourceDirectory:   path,
		LoadedFromPathForLogMessages: l.rel(path),
	}, "", nil
}

// readDir collects schema files below root recursively, ordered by path.
func (l *Locator) readDir(root string) ([]core.SchemaFile, error) {
	var paths []string
	err := afero.Walk(l.fs, root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() && strings.EqualFold(filepath.Ext(p), SchemaExtension) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	files := make([]core.SchemaFile, 0, len(paths))
	for _, p := range paths {
		data, err := afero.ReadFile(l.fs, p)
		if err != nil {
			return nil, err
		}
		files = append(files, core.NewSchemaFile(p, string(data)))
	}
	return files, nil
}
