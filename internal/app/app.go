// Package app wires configuration into a ready-to-query dataset.
// It is shared by the server and the relq CLI.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/asakaida/relata/internal/dataset"
	"github.com/asakaida/relata/internal/infrastructure/config"
	"github.com/asakaida/relata/internal/infrastructure/database"
	"github.com/asakaida/relata/pkg/cache/memorycache"
	"github.com/asakaida/relata/pkg/inflect"
	"github.com/asakaida/relata/pkg/rel"
)

// App holds the dataset and the resources behind it.
type App struct {
	Dataset  *dataset.Dataset
	Registry *rel.Registry
	Cache    *memorycache.Cache // nil when caching is disabled
	Postgres *database.Postgres // nil unless DB_ENABLED
}

// RegistryOptions translates configuration into registry options.
func RegistryOptions(cfg *config.Config, logger *zap.Logger, observer rel.Observer) ([]rel.Option, *memorycache.Cache, error) {
	singularizer, ok := inflect.ByName(cfg.Relation.Inflector)
	if !ok {
		return nil, nil, fmt.Errorf("unknown inflector %q", cfg.Relation.Inflector)
	}

	opts := []rel.Option{
		rel.WithSingularizer(singularizer),
		rel.WithLogger(logger),
		rel.WithObserver(observer),
	}

	if !cfg.Cache.Enabled {
		return append(opts, rel.WithoutCache()), nil, nil
	}

	c := memorycache.New(&memorycache.Config{
		MaxEntries:    cfg.Cache.MaxEntries,
		EnableMetrics: cfg.Cache.Metrics,
	})
	return append(opts, rel.WithCache(c)), c, nil
}

// Open loads the dataset named by the configuration. When the database is
// enabled, table-backed collections are read from PostgreSQL.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger, observer rel.Observer) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	file, err := dataset.LoadFile(cfg.Relation.DatasetPath)
	if err != nil {
		return nil, err
	}

	opts, c, err := RegistryOptions(cfg, logger, observer)
	if err != nil {
		return nil, err
	}
	a := &App{Registry: rel.NewRegistry(opts...), Cache: c}

	dsOpts := []dataset.Option{dataset.WithLogger(logger)}
	if cfg.Database.Enabled {
		pg, err := database.NewPostgres(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.Postgres = pg
		if err := pg.HealthCheck(); err != nil {
			pg.Close()
			return nil, err
		}
		dsOpts = append(dsOpts, dataset.WithTableLoader(pg))

		logger.Info("connected to database",
			zap.String("user", cfg.Database.User),
			zap.String("host", cfg.Database.Host),
			zap.Int("port", cfg.Database.Port),
			zap.String("database", cfg.Database.Database))
	}

	a.Dataset, err = dataset.Build(ctx, file, a.Registry, dsOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build dataset %s: %w", cfg.Relation.DatasetPath, err)
	}

	return a, nil
}

// HealthCheck reports whether the record source is reachable.
// A file-only dataset is always healthy.
func (a *App) HealthCheck() error {
	if a.Postgres == nil {
		return nil
	}
	return a.Postgres.HealthCheck()
}

// Close releases the registry subscriptions and the database connection.
func (a *App) Close() error {
	if err := a.Registry.Close(); err != nil {
		return err
	}
	if a.Postgres != nil {
		return a.Postgres.Close()
	}
	return nil
}
