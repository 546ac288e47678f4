package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/config"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/engine"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/policy"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/project"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/remote"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/state"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/stores"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/telemetry"
)

// app holds everything a command needs, built from the project
// configuration.
type app struct {
	cfg        *project.Config
	tel        *telemetry.Telemetry
	logger     zerolog.Logger
	store      *state.FileStore
	history    *stores.SQLiteStore
	policy     *policy.Engine
	remotes    *remote.Cache
	reconciler *engine.Reconciler
}

// runWithApp adapts fn to a cobra RunE, building the app before the call
// and releasing it afterwards.
func runWithApp(fn func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		ctx := a.tel.WithContext(cmd.Context())
		runErr := fn(ctx, a, cmd, args)
		return errors.Join(runErr, a.close(context.WithoutCancel(ctx)))
	}
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := project.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(telemetry.NewConfig(telemetry.Options{
		Version:         buildVersion,
		Environment:     cfg.Env,
		Verbose:         cfg.Verbose,
		LogFormat:       cfg.Telemetry.LogFormat,
		MetricsFile:     cfg.Telemetry.MetricsFile,
		TracingExporter: cfg.Telemetry.TracingExporter,
		TracingEndpoint: cfg.Telemetry.TracingEndpoint,
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	logger := tel.Logger.Zerolog()

	a := &app{
		cfg:    cfg,
		tel:    tel,
		logger: logger,
		store: state.NewFileStore(state.Options{
			Path:          cfg.StateFile,
			ProjectID:     cfg.ProjectID,
			ProjectName:   cfg.ProjectName,
			StrictLoading: cfg.StrictStateLoading,
			Logger:        logger,
		}),
	}

	a.policy, err = policy.NewEngine(logger,
		policy.WithProtectedEnvironments(cfg.ProtectedEnvironments...),
		policy.WithUser(os.Getenv("USER")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}
	if cfg.PolicyDir != "" {
		if err := a.policy.LoadPolicies(cmd.Context(), cfg.PolicyDir); err != nil {
			return nil, err
		}
	}

	// History is an audit trail; commands still work without it.
	if cfg.HistoryDB != "" {
		history, err := stores.Open(cmd.Context(), cfg.HistoryDB)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.HistoryDB).Msg("Run history disabled")
		} else {
			a.history = history
		}
	}

	a.remotes = remote.NewCache(func(env string) (remote.Config, error) {
		creds, err := cfg.Credentials(env)
		if err != nil {
			return remote.Config{}, err
		}
		return remote.Config{
			Host:    creds.Host,
			Token:   creds.Token,
			Logger:  logger,
			Metrics: tel.Metrics,
		}, nil
	})

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMetrics(tel.Metrics),
		engine.WithTracer(tel.Tracer.Tracer()),
		engine.WithPolicy(a.policy),
	}
	if a.history != nil {
		opts = append(opts, engine.WithRecorder(a.history))
	}
	a.reconciler = engine.NewReconciler(a.store, opts...)

	return a, nil
}

func (a *app) close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var errs []error
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	errs = append(errs, a.tel.Shutdown(ctx))
	return errors.Join(errs...)
}

// remote returns the client of the selected environment.
func (a *app) remote() (*remote.Client, error) {
	return a.remotes.Get(a.cfg.Env)
}

// loadSpaces parses the configured space files for the selected
// environment, resolving variables from its environment document.
func (a *app) loadSpaces(ctx context.Context) ([]*config.SpaceConfig, error) {
	return a.loadSpacesFrom(ctx, a.cfg.ConfigPath)
}

func (a *app) loadSpacesFrom(ctx context.Context, path string) ([]*config.SpaceConfig, error) {
	parser := config.NewParser(config.WithParserLogger(a.logger))
	vars := parser.LoadEnvironmentVariables(a.cfg.ConfigPath, a.cfg.Env)
	if wh := a.cfg.Environments[a.cfg.Env].WarehouseID; wh != "" {
		if _, ok := vars["warehouse_id"]; !ok {
			vars["warehouse_id"] = wh
		}
	}
	return parser.Parse(ctx, path, a.cfg.Env, vars)
}
