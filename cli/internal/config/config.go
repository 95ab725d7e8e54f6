package config

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

var AppFs = afero.NewOsFs()

// FileName is the config file name, without extension.
const FileName = ".prisma-engines"

// EnvPrefix prefixes every config key read from the environment.
const EnvPrefix = "PRISMA_ENGINES"

// Engine override variables. They take precedence over the config file.
const (
	EnvQueryEngineBinary  = "PRISMA_QUERY_ENGINE_BINARY"
	EnvQueryEngineLibrary = "PRISMA_QUERY_ENGINE_LIBRARY"
	EnvSchemaEngineBinary = "PRISMA_SCHEMA_ENGINE_BINARY"
	EnvSchemaWasm         = "PRISMA_SCHEMA_WASM"
	EnvEngineType         = "PRISMA_CLI_QUERY_ENGINE_TYPE"
)

// EngineConfig says which engine to run and where it lives.
type EngineConfig struct {
	// Type is binary, library or wasm. Empty picks the first configured path.
	Type               string
	QueryEngineBinary  string
	QueryEngineLibrary string
	SchemaEngineBinary string
	SchemaWasm         string
	// MinVersion is the oldest engine version the CLI accepts.
	MinVersion string
}

// Config holds the application configuration
type Config struct {
	// SchemaPath is the schema file or directory declared in the config file.
	SchemaPath        string
	Engine            EngineConfig
	TelemetryEndpoint string
	// File is the config file that was read, empty when none was found.
	File string
}

// LoadConfig loads configuration from the config file, .env files and the
// environment.
func LoadConfig() (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	loadDotEnv(AppFs)

	v := viper.New()
	v.SetFs(AppFs)
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(home)
	v.AddConfigPath(filepath.Join(home, ".config", "prisma-engines"))
	return Load(v)
}

// Load reads the configuration through v. Search paths and the filesystem are
// the caller's business.
func Load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string]string{
		"engine.type":                 EnvEngineType,
		"engine.query_engine_binary":  EnvQueryEngineBinary,
		"engine.query_engine_library": EnvQueryEngineLibrary,
		"engine.schema_engine_binary": EnvSchemaEngineBinary,
		"engine.schema_wasm":          EnvSchemaWasm,
	}
	for key, env := range bindings {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, env, prefixed); err != nil {
			return nil, err
		}
	}

	v.SetDefault("schema", "")
	v.SetDefault("engine.min_version", "")
	v.SetDefault("telemetry.endpoint", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return &Config{
		SchemaPath: v.GetString("schema"),
		Engine: EngineConfig{
			Type:               v.GetString("engine.type"),
			QueryEngineBinary:  v.GetString("engine.query_engine_binary"),
			QueryEngineLibrary: v.GetString("engine.query_engine_library"),
			SchemaEngineBinary: v.GetString("engine.schema_engine_binary"),
			SchemaWasm:         v.GetString("engine.schema_wasm"),
			MinVersion:         v.GetString("engine.min_version"),
		},
		TelemetryEndpoint: v.GetString("telemetry.endpoint"),
		File:              v.ConfigFileUsed(),
	}, nil
}

// loadDotEnv exports .env and then .env.local from the working directory so
// engine overrides can live there. Variables already set win over .env but not
// over .env.local.
func loadDotEnv(fsys afero.Fs) {
	if _, err := fsys.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
	if _, err := fsys.Stat(".env.local"); err == nil {
		_ = godotenv.Overload(".env.local")
	}
}
