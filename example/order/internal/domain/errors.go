package domain

import (
	"errors"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// Error-type names usable in fault policies.
const (
	InvalidOrderErrorType   = "InvalidOrderError"
	TransientOrderErrorType = "TransientOrderError"
)

var (
	// ErrInvalidOrder marks an order that cannot be processed and should be skipped.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrTransientOrder marks a temporary failure worth retrying.
	ErrTransientOrder = errors.New("transient order failure")
)

func init() {
	exception.RegisterErrorType(InvalidOrderErrorType, ErrInvalidOrder)
	exception.RegisterErrorType(TransientOrderErrorType, ErrTransientOrder)
}
