package job

import (
	"context"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	appconfig "github.com/tigerroll/chunkbatch/example/order/internal/config"
	"github.com/tigerroll/chunkbatch/example/order/internal/domain"
	"github.com/tigerroll/chunkbatch/example/order/internal/step/tasklet"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/reader"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/tasklet/migration"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	usecase "github.com/tigerroll/chunkbatch/pkg/batch/core/application/usecase"
	batchconfig "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/inmemory"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const customersCSV = "id,name,email,age,city\n" +
	"1,김철수,chulsoo.kim@example.com,34,서울\n" +
	"2,이영희,younghee.lee@example.com,28,부산\n" +
	"3,박민수,minsu.park@example.com,45,대구\n"

type fixture struct {
	env       Env
	db        *gorm.DB
	exportDir string
	launcher  *usecase.SimpleJobLauncher
}

// newFixture migrates a WAL sqlite file with the bundled scripts and registers every order job.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	dsn := filepath.Join(dir, "orders.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	exportDir := filepath.Join(dir, "exports")

	cfg := batchconfig.NewConfig()
	cfg.Database["app"] = map[string]interface{}{"type": "sqlite", "database": dsn}
	cfg.Storage["exports"] = map[string]interface{}{"type": "local", "base_dir": exportDir}

	resources := os.DirFS(filepath.Join("..", "..", "cmd", "order", "resources"))
	scripts, err := fs.Sub(resources, MigrationsDir)
	require.NoError(t, err)
	factory := migration.NewFactory(cfg)
	m, err := factory.NewMigrator("app", "")
	require.NoError(t, err)
	_, err = m.Run(ctx, scripts, "", migration.CommandUp)
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	settings := appconfig.Defaults()
	settings.SetupOrderCount = 6
	repo := inmemory.NewInMemoryJobRepository()
	env := Env{
		Repo:      repo,
		DB:        db,
		TxManager: gormadapter.NewGormTransactionManagerForDB(db),
		Storage: storage.NewConnectionResolver(storage.ResolverParams{
			Providers: []storage.StorageProvider{local.NewLocalProvider(cfg)},
			Cfg:       cfg,
		}),
		Settings:   settings,
		Customers:  reader.FSOpener(fstest.MapFS{"customers.csv": {Data: []byte(customersCSV)}}, "customers.csv"),
		Now:        func() time.Time { return now },
		Generator:  tasklet.NewOrderGenerator(rand.New(rand.NewPCG(7, 7))),
		Migrations: factory,
		Resources:  resources,
	}

	var jobs []port.Job
	for _, build := range []func(Env) (*runner.LinearJob, error){
		NewCsvToDbJob, NewOrderProcessJob, NewFaultTolerantJob, NewParameterJob, NewSetupOrdersJob, NewMigrateJob,
	} {
		j, err := build(env)
		require.NoError(t, err)
		jobs = append(jobs, j)
	}
	registry := usecase.NewJobRegistry(jobs...)
	return &fixture{
		env:       env,
		db:        db,
		exportDir: exportDir,
		launcher:  usecase.NewSimpleJobLauncher(repo, registry, runner.NewSimpleJobRunner(repo)),
	}
}

func (f *fixture) run(t *testing.T, jobName string, params model.JobParameters) model.ExecutionReport {
	t.Helper()
	je, err := f.launcher.Run(context.Background(), jobName, params)
	require.NoError(t, err)
	require.NotNil(t, je)
	return model.NewExecutionReport(je)
}

func (f *fixture) seed(t *testing.T, orders ...domain.Order) {
	t.Helper()
	require.NoError(t, f.db.Create(&orders).Error)
}

func (f *fixture) orders(t *testing.T) map[string]domain.Order {
	t.Helper()
	var rows []domain.Order
	require.NoError(t, f.db.Order("id").Find(&rows).Error)
	out := make(map[string]domain.Order, len(rows))
	for _, o := range rows {
		out[o.OrderNumber] = o
	}
	return out
}

func pending(number, customer string, amount int64, placed time.Time) domain.Order {
	return domain.Order{OrderNumber: number, CustomerName: customer, Amount: amount, Status: domain.OrderStatusPending, OrderDate: placed}
}

func TestCsvToDbJob_LoadsCustomers(t *testing.T) {
	f := newFixture(t)

	report := f.run(t, CsvToDbJob, model.NewJobParameters())
	assert.Equal(t, model.BatchStatusCompleted, report.Status)
	assert.Equal(t, 3, report.TotalWriteCount())

	var customers []domain.Customer
	require.NoError(t, f.db.Order("id").Find(&customers).Error)
	require.Len(t, customers, 3)
	assert.Equal(t, domain.Customer{ID: 1, Name: "김철수", Email: "chulsoo.kim@example.com", Age: 34, City: "서울"}, customers[0])
}

func TestSetupThenOrderProcessJob(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.Order{OrderNumber: "OLD", CustomerName: "x", Amount: 1000, Status: domain.OrderStatusCompleted, OrderDate: now})

	setup := f.run(t, SetupOrdersJob, model.NewJobParameters())
	require.Equal(t, model.BatchStatusCompleted, setup.Status)
	assert.Equal(t, 6, setup.TotalWriteCount())

	before := f.orders(t)
	require.Len(t, before, 6, "previous orders are replaced")
	assert.NotContains(t, before, "OLD")

	report := f.run(t, OrderProcessJob, model.NewJobParameters())
	require.Equal(t, model.BatchStatusCompleted, report.Status)
	assert.Equal(t, 6, report.TotalWriteCount())

	for number, o := range f.orders(t) {
		want := domain.OrderStatusProcessing
		if o.Amount < 10000 {
			want = domain.OrderStatusCompleted
		}
		assert.Equal(t, want, o.Status, number)
		require.NotNil(t, o.ProcessedDate, number)
		assert.True(t, o.ProcessedDate.Equal(now), number)
	}
}

func TestOrderProcessJob_LeavesRecentOrders(t *testing.T) {
	f := newFixture(t)
	f.seed(t,
		pending("OLD", "a", 5000, now.Add(-time.Hour)),
		pending("NEW", "b", 5000, now.Add(-time.Minute)),
	)

	report := f.run(t, OrderProcessJob, model.NewJobParameters())
	require.Equal(t, model.BatchStatusCompleted, report.Status)
	assert.Equal(t, 1, report.TotalWriteCount())

	got := f.orders(t)
	assert.Equal(t, domain.OrderStatusCompleted, got["OLD"].Status)
	assert.Equal(t, domain.OrderStatusPending, got["NEW"].Status)
}

func TestFaultTolerantJob_SkipsInvalidAndRetriesTransient(t *testing.T) {
	f := newFixture(t)
	placed := now.Add(-time.Hour)
	f.seed(t,
		pending("ORD00001", "김철수", 5000, placed),
		pending("ORD00002", "에러고객", 5000, placed.Add(time.Second)),
		pending("ORD-RETRY", "이영희", 20000, placed.Add(2*time.Second)),
		pending("ORD00004", "박민수", -100, placed.Add(3*time.Second)),
		pending("ORD00005", "최지원", 8000, placed.Add(4*time.Second)),
	)

	report := f.run(t, FaultTolerantJob, model.NewJobParameters())
	require.Equal(t, model.BatchStatusCompleted, report.Status)
	assert.Equal(t, 3, report.TotalWriteCount())
	assert.Equal(t, 2, report.TotalSkipCount())
	require.Len(t, report.Steps, 1)
	assert.GreaterOrEqual(t, report.Steps[0].RetryCount, 1)

	got := f.orders(t)
	assert.Equal(t, domain.OrderStatusCompleted, got["ORD00001"].Status)
	assert.Equal(t, domain.OrderStatusPending, got["ORD00002"].Status, "skipped orders stay pending")
	assert.Equal(t, domain.OrderStatusProcessing, got["ORD-RETRY"].Status)
	assert.Equal(t, domain.OrderStatusPending, got["ORD00004"].Status)
	assert.Equal(t, domain.OrderStatusCompleted, got["ORD00005"].Status)
}

func TestFaultTolerantJob_FailsPastSkipLimit(t *testing.T) {
	f := newFixture(t)
	st := f.env.Settings.Steps[appconfig.FaultTolerantStep]
	st.Fault.SkipLimit = 1
	f.env.Settings.Steps[appconfig.FaultTolerantStep] = st
	j, err := NewFaultTolerantJob(f.env)
	require.NoError(t, err)
	launcher := usecase.NewSimpleJobLauncher(f.env.Repo, usecase.NewJobRegistry(j), runner.NewSimpleJobRunner(f.env.Repo))

	placed := now.Add(-time.Hour)
	f.seed(t,
		pending("ORD00001", "에러1", 5000, placed),
		pending("ORD00002", "에러2", 5000, placed.Add(time.Second)),
	)
	je, err := launcher.Run(context.Background(), FaultTolerantJob, model.NewJobParameters())
	require.Error(t, err)
	require.NotNil(t, je)
	assert.Equal(t, model.BatchStatusFailed, je.Status)
}

func rangeParams(mode string) model.JobParameters {
	return model.NewJobParametersBuilder().
		AddDate(ParamStartDate, time.Date(2024, 2, 25, 0, 0, 0, 0, time.UTC)).
		AddDate(ParamEndDate, time.Date(2024, 2, 27, 0, 0, 0, 0, time.UTC)).
		AddLong(ParamMinAmount, 7000).
		AddString(ParamProcessingMode, mode).
		ToJobParameters()
}

func TestParameterJob_ProcessesRangeAndExports(t *testing.T) {
	f := newFixture(t)
	day := func(d, h int) time.Time { return time.Date(2024, 2, d, h, 0, 0, 0, time.UTC) }
	processed := day(26, 6)
	f.seed(t,
		pending("BEFORE", "a", 9000, day(24, 23)),
		pending("SMALL", "b", 6000, day(25, 10)),
		pending("MID", "c", 8000, day(25, 11)),
		pending("LARGE", "d", 20000, day(27, 23)),
		pending("AFTER", "e", 9000, day(28, 0)),
		domain.Order{OrderNumber: "DONE", CustomerName: "f", Amount: 9000, Status: domain.OrderStatusCompleted, OrderDate: day(26, 5), ProcessedDate: &processed},
	)

	report := f.run(t, ParameterJob, rangeParams("normal"))
	require.Equal(t, model.BatchStatusCompleted, report.Status)
	require.Len(t, report.Steps, 2)
	assert.Equal(t, appconfig.ParameterStep, report.Steps[0].Name)
	assert.Equal(t, 2, report.Steps[0].WriteCount)
	assert.Equal(t, appconfig.ExportStep, report.Steps[1].Name)
	assert.Equal(t, 3, report.Steps[1].WriteCount)

	got := f.orders(t)
	assert.Equal(t, domain.OrderStatusPending, got["BEFORE"].Status)
	assert.Equal(t, domain.OrderStatusPending, got["SMALL"].Status)
	assert.Equal(t, domain.OrderStatusCompleted, got["MID"].Status)
	assert.Equal(t, domain.OrderStatusProcessing, got["LARGE"].Status)
	assert.Equal(t, domain.OrderStatusPending, got["AFTER"].Status)

	base := filepath.Join(f.exportDir, "orders", "processed")
	for _, partition := range []string{"dt=2024-02-25", "dt=2024-02-26", "dt=2024-02-27"} {
		entries, err := os.ReadDir(filepath.Join(base, partition))
		require.NoError(t, err, partition)
		require.Len(t, entries, 1, partition)
		assert.True(t, strings.HasSuffix(entries[0].Name(), ".parquet"))
	}
}

func TestParameterJob_RejectsInvalidParameters(t *testing.T) {
	f := newFixture(t)

	cases := map[string]model.JobParameters{
		"missing mode": model.NewJobParametersBuilder().
			AddDate(ParamStartDate, now).AddDate(ParamEndDate, now).AddLong(ParamMinAmount, 1).
			ToJobParameters(),
		"unknown mode": rangeParams("SLOW"),
		"end before start": model.NewJobParametersBuilder().
			AddDate(ParamStartDate, now).AddDate(ParamEndDate, now.AddDate(0, 0, -1)).
			AddLong(ParamMinAmount, 1).AddString(ParamProcessingMode, "FAST").
			ToJobParameters(),
		"mistyped amount": model.NewJobParametersBuilder().
			AddDate(ParamStartDate, now).AddDate(ParamEndDate, now).
			AddString(ParamMinAmount, "1000").AddString(ParamProcessingMode, "FAST").
			ToJobParameters(),
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			je, err := f.launcher.Run(context.Background(), ParameterJob, params)
			assert.ErrorIs(t, err, usecase.ErrInvalidJobParameters)
			assert.Nil(t, je)
		})
	}
}

func TestMigrateJob_DownAndUp(t *testing.T) {
	f := newFixture(t)

	down := f.run(t, MigrateJob, model.NewJobParametersBuilder().AddString("command", "down").ToJobParameters())
	require.Equal(t, model.BatchStatusCompleted, down.Status)
	assert.False(t, f.db.Migrator().HasTable("orders"))
	assert.False(t, f.db.Migrator().HasTable("customers"))

	up := f.run(t, MigrateJob, model.NewJobParametersBuilder().AddString("command", "up").ToJobParameters())
	require.Equal(t, model.BatchStatusCompleted, up.Status)
	assert.True(t, f.db.Migrator().HasTable("orders"))
	assert.True(t, f.db.Migrator().HasTable("customers"))
}

func TestNewMigrateJob_RequiresResources(t *testing.T) {
	_, err := NewMigrateJob(Env{Repo: inmemory.NewInMemoryJobRepository(), Settings: appconfig.Defaults()})
	assert.ErrorContains(t, err, "requires migrations and resources")
}
