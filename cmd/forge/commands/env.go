package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/appforge/appforge/pkg/config"
	"github.com/appforge/appforge/pkg/permissions"
	"github.com/appforge/appforge/pkg/service"
	"github.com/appforge/appforge/pkg/stores"
	"github.com/appforge/appforge/pkg/telemetry"
)

// environment holds what a command opened and must close.
type environment struct {
	cfg    *config.Config
	tel    *telemetry.Telemetry
	store  *stores.SQLiteStore
	loader *permissions.Loader
	logger zerolog.Logger
}

func loadConfig(opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.user != "" {
		cfg.Permissions.User = opts.user
	}
	if len(opts.groups) > 0 {
		cfg.Permissions.Groups = opts.groups
	}
	return cfg, cfg.Validate()
}

// openEnvironment loads the configuration, starts telemetry and opens the
// migrated store.
func openEnvironment(ctx context.Context, opts *globalOptions) (*environment, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(cfg.Telemetry(opts.version))
	if err != nil {
		return nil, fmt.Errorf("failed to start telemetry: %w", err)
	}
	tel.StartMetricsServer()
	logger := tel.Logger.Zerolog()

	storeCfg := cfg.Store()
	storeCfg.Logger = &logger
	store, err := stores.NewSQLiteStore(storeCfg)
	if err != nil {
		return nil, errors.Join(err, tel.Shutdown(ctx))
	}
	if err := store.Init(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to initialize store: %w", err), tel.Shutdown(ctx))
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to run migrations: %w", err), store.Close(), tel.Shutdown(ctx))
	}

	return &environment{
		cfg:    cfg,
		tel:    tel,
		store:  store,
		logger: logger,
	}, nil
}

func (e *environment) principal() permissions.Principal {
	return permissions.Principal{UserID: e.cfg.Permissions.User, Groups: e.cfg.Permissions.Groups}
}

// provider builds the permission provider selected by the configuration.
// In rego mode with watching enabled, policy files are reloaded until ctx
// is done.
func (e *environment) provider(ctx context.Context) (permissions.Provider, error) {
	switch e.cfg.Permissions.Mode {
	case config.PermissionsAllowAll:
		e.logger.Warn().Msg("Permission checks are disabled")
		return permissions.AllowAll, nil

	case config.PermissionsRego:
		e.loader = permissions.NewLoader(e.logger)
		modules, err := e.loader.LoadFromPaths(ctx, e.cfg.Permissions.PolicyPaths)
		if err != nil {
			return nil, fmt.Errorf("failed to load policies: %w", err)
		}
		p, err := permissions.NewRegoProvider(ctx, e.principal(), e.logger, modules...)
		if err != nil {
			return nil, err
		}
		if e.cfg.Permissions.Watch && len(e.cfg.Permissions.PolicyPaths) > 0 {
			if err := permissions.WatchProvider(ctx, e.loader, p, e.cfg.Permissions.PolicyPaths); err != nil {
				return nil, fmt.Errorf("failed to watch policies: %w", err)
			}
		}
		return p, nil

	default:
		return permissions.NewPolicySetProvider(e.principal()), nil
	}
}

func (e *environment) service(ctx context.Context) (*service.Service, error) {
	provider, err := e.provider(ctx)
	if err != nil {
		return nil, err
	}
	return service.New(service.Config{
		Store:         e.store,
		Provider:      provider,
		Principal:     e.principal(),
		FailurePolicy: e.cfg.FailurePolicy(),
		Logger:        e.logger,
		Metrics:       e.tel.Metrics,
		Tracer:        e.tel.Tracer,
	})
}

func (e *environment) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if e.loader != nil {
		errs = append(errs, e.loader.StopWatching())
	}
	errs = append(errs, e.store.Close(), e.tel.Shutdown(ctx))
	return errors.Join(errs...)
}
