// Package job assembles the order batch jobs.
package job

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"

	appconfig "github.com/tigerroll/chunkbatch/example/order/internal/config"
	"github.com/tigerroll/chunkbatch/example/order/internal/step/tasklet"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/reader"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/tasklet/migration"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/fault"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/item"
	steptasklet "github.com/tigerroll/chunkbatch/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener/logging"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener/tracing"
)

// Resource paths inside Env.Resources.
const (
	MigrationsDir   = "migrations"
	CustomersSample = "data/customers.csv"
)

// Env is everything the job constructors need. Tests build it by hand, the application through NewEnv.
type Env struct {
	Repo      repository.JobRepository
	DB        *gorm.DB
	TxManager tx.TransactionManager
	Storage   storage.StorageConnectionResolver
	Settings  appconfig.Settings
	// Customers opens the customers CSV.
	Customers reader.Opener
	Now       func() time.Time
	Generator *tasklet.OrderGenerator
	// Migrations and Resources back migrateJob. A nil Migrations leaves the job out.
	Migrations  *migration.Factory
	Resources   fs.FS
	Incrementer port.JobParametersIncrementer

	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
	// Listeners are attached to every job and step they implement a listener interface of.
	Listeners []interface{}
}

// EnvParams are the Fx dependencies of NewEnv.
type EnvParams struct {
	fx.In
	Cfg         *config.Config
	Repo        repository.JobRepository
	DBResolver  database.DBConnectionResolver
	TxFactory   *gormadapter.GormTransactionManagerFactory
	Storage     storage.StorageConnectionResolver
	Migrations  *migration.Factory
	Resources   fs.FS                         `name:"orderResources"`
	Incrementer port.JobParametersIncrementer `name:"timestampIncrementer"`
	Recorder    metrics.MetricRecorder
	Tracer      metrics.Tracer
	Logging     *logging.Listener
	Tracing     *tracing.Listener
}

// NewEnv resolves the application database and decodes the app settings.
func NewEnv(p EnvParams) (Env, error) {
	settings, err := appconfig.Load(p.Cfg)
	if err != nil {
		return Env{}, err
	}
	conn, err := p.DBResolver.ResolveDBConnection(context.Background(), settings.DBRef)
	if err != nil {
		return Env{}, fmt.Errorf("failed to resolve application database '%s': %w", settings.DBRef, err)
	}
	adapter, ok := conn.(*gormadapter.GormDBAdapter)
	if !ok {
		return Env{}, fmt.Errorf("application database '%s' is %T, not a gorm connection", settings.DBRef, conn)
	}

	customers := reader.FSOpener(p.Resources, CustomersSample)
	if settings.CustomersCSV != "" {
		customers = reader.FileOpener(settings.CustomersCSV)
	}
	return Env{
		Repo:        p.Repo,
		DB:          adapter.GetGormDB(),
		TxManager:   p.TxFactory.NewTransactionManager(settings.DBRef),
		Storage:     p.Storage,
		Settings:    settings,
		Customers:   customers,
		Now:         func() time.Time { return time.Now().UTC() },
		Generator:   tasklet.NewOrderGenerator(nil),
		Migrations:  p.Migrations,
		Resources:   p.Resources,
		Incrementer: p.Incrementer,
		Recorder:    p.Recorder,
		Tracer:      p.Tracer,
		Listeners:   []interface{}{p.Logging, p.Tracing},
	}, nil
}

func (e Env) jobOptions(extra ...runner.JobOption) []runner.JobOption {
	opts := []runner.JobOption{runner.WithMetrics(e.Recorder, e.Tracer)}
	for _, l := range e.Listeners {
		if jl, ok := l.(port.JobExecutionListener); ok {
			opts = append(opts, runner.WithJobListeners(jl))
		}
	}
	if e.Incrementer != nil {
		opts = append(opts, runner.WithIncrementer(e.Incrementer))
	}
	return append(opts, extra...)
}

func (e Env) chunkOptions(policy fault.Policy) []item.Option {
	return []item.Option{
		item.WithFaultPolicy(policy),
		item.WithMetricRecorder(e.Recorder),
		item.WithTracer(e.Tracer),
		item.WithListeners(e.Listeners...),
	}
}

func (e Env) taskletOptions() []steptasklet.Option {
	opts := []steptasklet.Option{steptasklet.WithMetrics(e.Recorder, e.Tracer)}
	for _, l := range e.Listeners {
		if sl, ok := l.(port.StepExecutionListener); ok {
			opts = append(opts, steptasklet.WithStepListeners(sl))
		}
	}
	return opts
}

func (e Env) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now()
}
