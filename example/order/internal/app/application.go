// Package app assembles the order batch application from the framework modules.
package app

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/fx"

	appconfig "github.com/tigerroll/chunkbatch/example/order/internal/config"
	"github.com/tigerroll/chunkbatch/example/order/internal/job"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/tasklet/migration"
	usecase "github.com/tigerroll/chunkbatch/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/support/incrementer"
	inframetrics "github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/sql"
	batchlistener "github.com/tigerroll/chunkbatch/pkg/batch/listener"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Options are the inputs of the application container.
type Options struct {
	// EnvFilePath is an optional .env file loaded before the configuration is expanded.
	EnvFilePath string
	// Config is the embedded application.yaml.
	Config config.EmbeddedConfig
	// Resources holds migrations/<db type>/*.sql and data/customers.csv.
	Resources fs.FS
	// DBAdaptors lists the database providers to register. Empty registers all of them.
	DBAdaptors []string
}

// DBProviderMap maps adaptor names to their provider modules.
var DBProviderMap = map[string]fx.Option{
	sqlite.ProviderType:   sqlite.Module,
	postgres.ProviderType: postgres.Module,
	mysql.ProviderType:    mysql.Module,
}

// LoadConfig loads the configuration and applies its process-wide settings.
func LoadConfig(opts Options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.EnvFilePath, opts.Config, config.NewOsEnvironmentExpander())
	if err != nil {
		return nil, err
	}
	config.Apply(cfg)
	return cfg, nil
}

// DBAdaptorsFromEnv reads the comma-separated DB_ADAPTORS variable.
func DBAdaptorsFromEnv() []string {
	var names []string
	for _, name := range strings.Split(os.Getenv("DB_ADAPTORS"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func dbProviderOptions(names []string) fx.Option {
	if len(names) == 0 {
		names = []string{sqlite.ProviderType, postgres.ProviderType, mysql.ProviderType}
	}
	options := make([]fx.Option, 0, len(names))
	for _, name := range names {
		module, ok := DBProviderMap[name]
		if !ok {
			logger.Warnf("DB Provider '%s' is configured but not supported. Skipping.", name)
			continue
		}
		options = append(options, module)
		logger.Debugf("DB Provider '%s' selected.", name)
	}
	return fx.Options(options...)
}

func repositoryModule(cfg *config.Config) fx.Option {
	if cfg.Infrastructure.JobRepositoryType == "sql" {
		return fx.Options(sqlrepo.Module, fx.Invoke(registerMetadataSchema))
	}
	return inmemory.Module
}

// Modules returns the engine, the adapters and the order jobs. Triggers are added by the caller.
func Modules(opts Options, cfg *config.Config) fx.Option {
	resources := opts.Resources
	return fx.Options(
		fx.Supply(cfg),
		fx.Provide(fx.Annotate(
			func() fs.FS { return resources },
			fx.ResultTags(`name:"orderResources"`),
		)),
		logger.Module,
		dbProviderOptions(opts.DBAdaptors),
		gormadapter.Module,
		storage.Module,
		local.Module,
		gcs.Module,
		repositoryModule(cfg),
		inframetrics.Module,
		batchlistener.Module,
		runner.Module,
		usecase.Module,
		incrementer.Module,
		migration.Module,
		job.Module,
		fx.Invoke(registerApplicationSchema),
	)
}

// New builds the application container with extra options such as the trigger modules.
func New(opts Options, cfg *config.Config, extra ...fx.Option) *fx.App {
	return fx.New(Modules(opts, cfg), fx.Options(extra...))
}

// registerMetadataSchema creates the job repository tables on start.
func registerMetadataSchema(lc fx.Lifecycle, cfg *config.Config, resolver database.DBConnectionResolver) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			dbRef := cfg.Infrastructure.JobRepositoryDBRef
			conn, err := resolver.ResolveDBConnection(ctx, dbRef)
			if err != nil {
				return fmt.Errorf("failed to resolve metadata database '%s': %w", dbRef, err)
			}
			adapter, ok := conn.(*gormadapter.GormDBAdapter)
			if !ok {
				return fmt.Errorf("metadata database '%s' is %T, not a gorm connection", dbRef, conn)
			}
			if err := sqlrepo.AutoMigrate(adapter.GetGormDB()); err != nil {
				return fmt.Errorf("failed to create metadata tables: %w", err)
			}
			logger.Infof("Job repository tables ready on '%s'.", dbRef)
			return nil
		},
	})
}

// registerApplicationSchema applies the bundled migrations on start when app.auto_migrate is set.
func registerApplicationSchema(lc fx.Lifecycle, env job.Env, factory *migration.Factory) {
	if !env.Settings.AutoMigrate {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return MigrateApplicationSchema(ctx, env.Settings, factory, env.Resources, migration.CommandUp)
		},
	})
}

// MigrateApplicationSchema runs command with the migrations bundled for the application database.
func MigrateApplicationSchema(ctx context.Context, settings appconfig.Settings, factory *migration.Factory, resources fs.FS, command string) error {
	scripts, err := fs.Sub(resources, job.MigrationsDir)
	if err != nil {
		return err
	}
	m, err := factory.NewMigrator(settings.DBRef, "")
	if err != nil {
		return err
	}
	_, err = m.Run(ctx, scripts, "", command)
	return err
}
