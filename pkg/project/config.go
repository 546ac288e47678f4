package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/state"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/stores"
)

const (
	// FileName is the project file looked up in the working directory.
	FileName = "genie-forge.yaml"

	// EnvPrefix prefixes environment overrides, e.g. GENIE_FORGE_STATE_FILE.
	// A double underscore separates nested keys: GENIE_FORGE_BULK__WORKERS.
	EnvPrefix = "GENIE_FORGE_"

	DefaultEnvironment = "dev"
	DefaultConfigPath  = "conf/spaces"
	DefaultWorkers     = 4
	DefaultRate        = 5.0

	// Fallbacks for environments that name no host or token variable.
	HostEnvVar  = "DATABRICKS_HOST"
	TokenEnvVar = "DATABRICKS_TOKEN"
)

// Config is the resolved project configuration.
type Config struct {
	ProjectID             string                 `koanf:"project_id"`
	ProjectName           string                 `koanf:"project_name"`
	StateFile             string                 `koanf:"state_file" validate:"required"`
	ConfigPath            string                 `koanf:"config_path" validate:"required"`
	HistoryDB             string                 `koanf:"history_db"`
	StrictStateLoading    bool                   `koanf:"strict_state_loading"`
	PolicyDir             string                 `koanf:"policy_dir"`
	ProtectedEnvironments []string               `koanf:"protected_environments"`
	Environments          map[string]Environment `koanf:"environments" validate:"dive"`
	Bulk                  BulkConfig             `koanf:"bulk"`
	Telemetry             TelemetryConfig        `koanf:"telemetry"`

	// Selected by --env.
	Env         string `koanf:"env" validate:"required"`
	ProfileHost string `koanf:"profile_host"`
	Verbose     bool   `koanf:"verbose"`
	JSON        bool   `koanf:"json"`

	// Root is the directory relative paths are resolved against.
	Root string `koanf:"-"`

	// File is the project file that was loaded, if any.
	File string `koanf:"-"`
}

// Environment binds an environment name to a workspace.
type Environment struct {
	Host        string `koanf:"host" validate:"omitempty,hostname_rfc1123|url"`
	TokenEnv    string `koanf:"token_env"`
	WarehouseID string `koanf:"warehouse_id"`
}

// BulkConfig tunes the bulk worker pool.
type BulkConfig struct {
	Workers int     `koanf:"workers" validate:"gte=1"`
	Rate    float64 `koanf:"rate" validate:"gte=0"`
}

// TelemetryConfig selects log, metric and trace outputs.
type TelemetryConfig struct {
	LogFormat       string `koanf:"log_format" validate:"omitempty,oneof=console json"`
	MetricsFile     string `koanf:"metrics_file"`
	TracingExporter string `koanf:"tracing_exporter" validate:"omitempty,oneof=none stdout otlp"`
	TracingEndpoint string `koanf:"tracing_endpoint"`
}

// Credentials are the resolved connection settings of one environment.
type Credentials struct {
	Host        string
	Token       string
	WarehouseID string
}

// flagKeys maps CLI flag names to configuration keys. Flags not listed
// here are command options and never reach the configuration.
var flagKeys = map[string]string{
	"env":          "env",
	"state-file":   "state_file",
	"profile-host": "profile_host",
	"verbose":      "verbose",
	"json":         "json",
	"parallel":     "bulk.workers",
	"rate":         "bulk.rate",
}

func defaults() map[string]any {
	return map[string]any{
		"state_file":           state.DefaultPath,
		"config_path":          DefaultConfigPath,
		"history_db":           stores.DefaultPath,
		"strict_state_loading": false,
		"env":                  DefaultEnvironment,
		"bulk.workers":         DefaultWorkers,
		"bulk.rate":            DefaultRate,
		"telemetry.log_format": "console",
	}
}

// Load builds the configuration. Precedence, highest first: explicitly
// set flags, GENIE_FORGE_ environment variables, the project file,
// defaults. cfgFile may be empty, in which case genie-forge.yaml in the
// working directory is used when present.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	used, err := findProjectFile(cfgFile)
	if err != nil {
		return nil, err
	}
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.File = used
	cfg.Root = "."
	if used != "" {
		cfg.Root = filepath.Dir(used)
	}
	cfg.ConfigPath = cfg.resolve(cfg.ConfigPath)
	cfg.HistoryDB = cfg.resolve(cfg.HistoryDB)
	cfg.PolicyDir = cfg.resolve(cfg.PolicyDir)
	// --state-file is relative to the working directory, not the project.
	if flags == nil || !flags.Changed("state-file") {
		cfg.StateFile = cfg.resolve(cfg.StateFile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func findProjectFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}
	if _, err := os.Stat(FileName); err == nil {
		return FileName, nil
	}
	return "", nil
}

func (c *Config) resolve(path string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Root, path)
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: invalid value %v (%s)", fe.Namespace(), fe.Value(), fe.Tag()))
		}
		return fmt.Errorf("invalid project configuration: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// Credentials resolves host and token for env. --profile-host wins over
// the environment's host, which wins over DATABRICKS_HOST. The token is
// read from the environment's token_env variable, falling back to
// DATABRICKS_TOKEN.
func (c *Config) Credentials(envName string) (Credentials, error) {
	envCfg := c.Environments[envName]

	creds := Credentials{WarehouseID: envCfg.WarehouseID}
	switch {
	case c.ProfileHost != "":
		creds.Host = c.ProfileHost
	case envCfg.Host != "":
		creds.Host = envCfg.Host
	default:
		creds.Host = os.Getenv(HostEnvVar)
	}

	tokenVar := envCfg.TokenEnv
	if tokenVar == "" {
		tokenVar = TokenEnvVar
	}
	creds.Token = os.Getenv(tokenVar)

	if creds.Host == "" {
		return creds, fmt.Errorf("no workspace host for environment %q: set environments.%s.host or %s", envName, envName, HostEnvVar)
	}
	if creds.Token == "" {
		return creds, fmt.Errorf("no token for environment %q: set %s", envName, tokenVar)
	}
	return creds, nil
}
