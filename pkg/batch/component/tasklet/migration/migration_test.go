package migration_test

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	_ "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/tasklet/migration"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

var scripts = fstest.MapFS{
	"sqlite/000001_create_orders.up.sql":   {Data: []byte("CREATE TABLE orders (id INTEGER PRIMARY KEY, order_number TEXT NOT NULL UNIQUE);")},
	"sqlite/000001_create_orders.down.sql": {Data: []byte("DROP TABLE orders;")},
	"sqlite/000002_add_status.up.sql":      {Data: []byte("ALTER TABLE orders ADD COLUMN status TEXT NOT NULL DEFAULT 'PENDING';")},
	"sqlite/000002_add_status.down.sql":    {Data: []byte("ALTER TABLE orders DROP COLUMN status;")},
}

func newConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.db")
	cfg := config.NewConfig()
	cfg.Database["app"] = map[string]interface{}{"type": "sqlite", "database": path}
	return cfg, path
}

func hasTable(t *testing.T, path, table string) bool {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	defer sqlDB.Close()
	return db.Migrator().HasTable(table)
}

func TestMigrationTasklet_UpIsIdempotent(t *testing.T) {
	cfg, path := newConfig(t)
	f := migration.NewFactory(cfg)
	task, err := f.NewTasklet("migrate", migration.TaskletConfig{DBRef: "app", FS: scripts})
	require.NoError(t, err)

	se := model.NewStepExecution("s1", model.NewJobExecution("i", "setupJob", model.NewJobParameters()), "migrate")
	status, err := task.Execute(context.Background(), se)
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusCompleted, status)
	v, _ := se.ExecutionContext.GetInt(migration.VersionKey)
	assert.Equal(t, 2, v)
	assert.True(t, hasTable(t, path, "orders"))
	assert.True(t, hasTable(t, path, migration.DefaultMigrationsTable))

	_, err = task.Execute(context.Background(), se)
	require.NoError(t, err)
	require.NoError(t, task.Close(context.Background()))
}

func TestMigrator_Down(t *testing.T) {
	cfg, path := newConfig(t)
	m, err := migration.NewFactory(cfg).NewMigrator("app", "")
	require.NoError(t, err)

	res, err := m.Run(context.Background(), scripts, "", migration.CommandUp)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, uint(2), res.Version)

	res, err = m.Run(context.Background(), scripts, "", migration.CommandDown)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, hasTable(t, path, "orders"))

	_, err = m.Run(context.Background(), scripts, "", "sideways")
	assert.ErrorContains(t, err, "unsupported migration command")
}

func TestMigrationTasklet_Errors(t *testing.T) {
	cfg, _ := newConfig(t)
	_, err := migration.NewMigrationTasklet("migrate", cfg, migration.TaskletConfig{FS: scripts})
	assert.Error(t, err)

	task, err := migration.NewMigrationTasklet("migrate", cfg, migration.TaskletConfig{DBRef: "missing", FS: scripts})
	require.NoError(t, err)
	se := model.NewStepExecution("s1", model.NewJobExecution("i", "setupJob", model.NewJobParameters()), "migrate")
	status, err := task.Execute(context.Background(), se)
	assert.Equal(t, model.ExitStatusFailed, status)
	assert.ErrorIs(t, err, exception.ErrResource)
}
