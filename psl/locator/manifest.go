package locator

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"

	"github.com/satishbabariya/prisma-engines-go/internal/debug"
)

const manifestName = "package.json"

type manifest struct {
	Prisma *struct {
		Schema json.RawMessage `json:"schema"`
	} `json:"prisma"`
}

// findManifest walks up from the working directory to the nearest package.json.
func (l *Locator) findManifest() (string, bool) {
	dir := l.cwd
	for {
		candidate := filepath.Join(dir, manifestName)
		if info, err := l.fs.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// fromPackageJSON resolves `prisma.schema` from the nearest package.json.
// It returns nil, nil when the manifest or the key is absent.
func (l *Locator) fromPackageJSON() (*RootDescriptor, error) {
	pkgPath, ok := l.findManifest()
	if !ok {
		return nil, nil
	}
	data, err := afero.ReadFile(l.fs, pkgPath)
	if err != nil {
		return nil, &LookupError{Kind: KindReadFailed, Source: SourcePackageJSON, Path: pkgPath, Err: err}
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		// A broken manifest is ignored the same way a missing one is.
		debug.Warn("ignoring unparsable package.json", "path", pkgPath, "error", err)
		return nil, nil
	}
	if m.Prisma == nil || len(m.Prisma.Schema) == 0 || string(m.Prisma.Schema) == "null" {
		return nil, nil
	}

	relPkg := l.rel(pkgPath)
	var declared string
	if err := json.Unmarshal(m.Prisma.Schema, &declared); err != nil {
		return nil, &LookupError{
			Kind:    KindInvalidConfigValue,
			Source:  SourcePackageJSON,
			Path:    string(m.Prisma.Schema),
			Message: fmt.Sprintf("Provided schema path `%s` from `%s` must be of type string", string(m.Prisma.Schema), relPkg),
		}
	}
	if declared == "" {
		return nil, nil
	}

	path := declared
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(pkgPath), declared)
	}
	info, err := l.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LookupError{
				Kind:    KindNotFound,
				Source:  SourcePackageJSON,
				Path:    declared,
				Message: fmt.Sprintf("Provided schema path `%s` from `%s` doesn't exist.", l.rel(path), relPkg),
				Err:     err,
			}
		}
		return nil, &LookupError{Kind: KindReadFailed, Source: SourcePackageJSON, Path: declared, Err: err}
	}
	if !info.Mode().IsRegular() && !info.IsDir() {
		return nil, &LookupError{Kind: KindWrongType, Source: SourcePackageJSON, Path: declared}
	}

	desc, reason, err := l.load(path, info.IsDir())
	if err != nil {
		return nil, &LookupError{Kind: KindReadFailed, Source: SourcePackageJSON, Path: declared, Err: err}
	}
	if desc == nil {
		return nil, &LookupError{
			Kind:    KindNotFound,
			Source:  SourcePackageJSON,
			Path:    declared,
			Message: fmt.Sprintf("Provided schema path `%s` from `%s`: %s", l.rel(path), relPkg, reason),
		}
	}
	desc.Source = SourcePackageJSON
	return desc, nil
}
