package migration

import (
	"context"
	"fmt"
	"io/fs"

	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// TaskletConfig selects the database and scripts of a MigrationTasklet.
type TaskletConfig struct {
	DBRef   string
	FS      fs.FS
	Dir     string
	Command string
	Table   string
}

// MigrationTasklet runs a migration as a step. Run it with a resourceless transaction manager:
// the migration does not take part in the step transaction.
type MigrationTasklet struct {
	name string
	cfg  *config.Config
	tc   TaskletConfig
}

var _ port.Tasklet = (*MigrationTasklet)(nil)

// VersionKey is the step ExecutionContext key holding the schema version after the migration.
const VersionKey = "migration.version"

// NewMigrationTasklet validates tc and creates the tasklet.
func NewMigrationTasklet(name string, cfg *config.Config, tc TaskletConfig) (*MigrationTasklet, error) {
	if tc.DBRef == "" {
		return nil, fmt.Errorf("migration tasklet '%s' requires a database reference", name)
	}
	if tc.FS == nil {
		return nil, fmt.Errorf("migration tasklet '%s' requires migration scripts", name)
	}
	if tc.Command == "" {
		tc.Command = CommandUp
	}
	return &MigrationTasklet{name: name, cfg: cfg, tc: tc}, nil
}

func (t *MigrationTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	dbCfg, err := lookup(t.cfg, t.tc.DBRef)
	if err != nil {
		return model.ExitStatusFailed, exception.NewResourceError(t.name, "cannot resolve migration database", err)
	}
	res, err := NewMigrator(dbCfg, t.tc.Table).Run(ctx, t.tc.FS, t.tc.Dir, t.tc.Command)
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(t.name, "migration failed", err, false, false)
	}
	stepExecution.ExecutionContext.Put(VersionKey, int(res.Version))
	return model.ExitStatusCompleted, nil
}

func (t *MigrationTasklet) Close(ctx context.Context) error {
	return nil
}

func lookup(cfg *config.Config, dbRef string) (dbconfig.DatabaseConfig, error) {
	return gormadapter.LookupDatabaseConfig(cfg, dbRef)
}
