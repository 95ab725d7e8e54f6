package schemacontext

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"github.com/satishbabariya/prisma-engines-go/internal/debug"
)

// envFiles are read from each env directory, later files overriding earlier ones.
var envFiles = []string{".env", ".env.local"}

// loadEnv builds the variables datasource env("...") calls resolve against.
// Files in cwd are read first, then those next to the schema; the process
// environment overrides every file.
func loadEnv(fsys afero.Fs, cwd, schemaRoot string, environ []string) (map[string]string, error) {
	env := map[string]string{}

	dirs := []string{cwd}
	if schemaRoot != "" && filepath.Clean(schemaRoot) != filepath.Clean(cwd) {
		dirs = append(dirs, schemaRoot)
	}
	for _, dir := range dirs {
		for _, name := range envFiles {
			path := filepath.Join(dir, name)
			vars, err := readEnvFile(fsys, path)
			if err != nil {
				return nil, err
			}
			if len(vars) > 0 {
				debug.Debug("loaded env file", "path", path, "vars", len(vars))
			}
			for k, v := range vars {
				env[k] = v
			}
		}
	}

	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return env, nil
}

func readEnvFile(fsys afero.Fs, path string) (map[string]string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	vars, err := godotenv.Parse(f)
	if err != nil {
		return nil, &os.PathError{Op: "parse env file", Path: path, Err: err}
	}
	return vars, nil
}
