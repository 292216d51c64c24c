package sqlite

import (
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// BusyErrorType is the registry name fault policies use to retry or skip on ErrBusy.
const BusyErrorType = "SQLiteBusyError"

// ErrBusy marks driver errors caused by another connection holding the database lock.
var ErrBusy = errors.New("sqlite database is busy")

func init() {
	exception.RegisterErrorType(BusyErrorType, ErrBusy)
}

// IsBusy reports whether err carries SQLITE_BUSY or SQLITE_LOCKED from the driver.
func IsBusy(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}

// dialector adds lock-contention translation on top of the gorm SQLite dialector.
type dialector struct {
	*sqlite.Dialector
}

// Translate implements gorm.ErrorTranslator.
func (d *dialector) Translate(err error) error {
	if IsBusy(err) {
		return fmt.Errorf("%w: %w", ErrBusy, err)
	}
	return err
}
