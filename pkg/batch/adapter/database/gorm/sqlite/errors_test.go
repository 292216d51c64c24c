package sqlite

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

func TestIsBusy(t *testing.T) {
	assert.True(t, IsBusy(fmt.Errorf("commit: %w", sqlite3.Error{Code: sqlite3.ErrBusy})))
	assert.True(t, IsBusy(sqlite3.Error{Code: sqlite3.ErrLocked}))
	assert.False(t, IsBusy(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.False(t, IsBusy(errors.New("database is locked")))
	assert.True(t, exception.IsErrorTypeRegistered(BusyErrorType))
}

type counter struct {
	ID int64 `gorm:"primaryKey"`
	N  int
}

func TestOpen_TranslatesLockContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busy.db")
	holder, err := gormadapter.Open(dbconfig.DatabaseConfig{Type: ProviderType, Database: path})
	require.NoError(t, err)
	require.NoError(t, holder.AutoMigrate(&counter{}))

	tx := holder.Begin()
	require.NoError(t, tx.Create(&counter{N: 1}).Error)
	defer tx.Rollback()

	contender, err := gormadapter.Open(dbconfig.DatabaseConfig{Type: ProviderType, Database: path + "?_busy_timeout=0"})
	require.NoError(t, err)

	err = contender.Create(&counter{N: 2}).Error
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBusy)
	assert.True(t, IsBusy(err))
}
