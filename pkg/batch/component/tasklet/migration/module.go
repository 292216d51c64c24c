package migration

import (
	"go.uber.org/fx"

	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

// Factory builds MigrationTasklets bound to the application configuration.
type Factory struct {
	cfg *config.Config
}

// NewFactory creates a Factory.
func NewFactory(cfg *config.Config) *Factory {
	return &Factory{cfg: cfg}
}

// NewTasklet creates a MigrationTasklet.
func (f *Factory) NewTasklet(name string, tc TaskletConfig) (*MigrationTasklet, error) {
	return NewMigrationTasklet(name, f.cfg, tc)
}

// NewMigrator creates a Migrator for the named database connection.
func (f *Factory) NewMigrator(dbRef, table string) (*Migrator, error) {
	dbCfg, err := lookup(f.cfg, dbRef)
	if err != nil {
		return nil, err
	}
	return NewMigrator(dbCfg, table), nil
}

// Module provides the migration Factory.
var Module = fx.Provide(NewFactory)
