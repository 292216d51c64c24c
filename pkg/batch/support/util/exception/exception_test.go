package exception_test

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

type CustomError struct {
	Msg string
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("CustomError: %s", e.Msg)
}

func TestNewBatchError(t *testing.T) {
	originalErr := errors.New("db connection refused")
	be := exception.NewBatchError("db", "failed to connect", originalErr, false, true)

	assert.Equal(t, "db", be.Module)
	assert.Equal(t, "failed to connect", be.Message)
	assert.Equal(t, originalErr, be.Unwrap())
	assert.True(t, be.IsRetryable())
	assert.False(t, be.IsSkippable())
	assert.Nil(t, be.Kind())
	assert.Contains(t, be.Error(), "[db] failed to connect: db connection refused")
	assert.NotEmpty(t, be.StackTrace)
}

func TestNewBatchErrorf(t *testing.T) {
	be1 := exception.NewBatchErrorf("reader", "item %d not found", 10)
	assert.False(t, be1.IsRetryable())
	assert.False(t, be1.IsSkippable())
	assert.Nil(t, be1.Unwrap())
	assert.Contains(t, be1.Error(), "[reader] item 10 not found")

	// A single trailing bool is the retryable flag.
	be2 := exception.NewBatchErrorf("net", "timeout occurred", true)
	assert.True(t, be2.IsRetryable())
	assert.False(t, be2.IsSkippable())

	be3 := exception.NewBatchErrorf("item", "data error in item %d", 5, true, false)
	assert.False(t, be3.IsRetryable())
	assert.True(t, be3.IsSkippable())
	assert.Equal(t, "data error in item 5", be3.Message)

	cause := errors.New("data format error")
	be4 := exception.NewBatchErrorf("proc", "format error", true, true, cause)
	assert.True(t, be4.IsRetryable())
	assert.True(t, be4.IsSkippable())
	assert.Equal(t, cause, be4.Unwrap())
}

func TestNewConsumedItemError_KeepsCause(t *testing.T) {
	err := exception.NewConsumedItemError("reader", "bad row", io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, exception.ErrItemConsumed)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.False(t, err.IsRetryable())
	assert.ErrorIs(t, exception.NewConsumedItemError("reader", "bad row", nil), exception.ErrItemConsumed)
}

func TestKindConstructors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind error
	}{
		{"resource", exception.NewResourceError("reader", "cannot open", io.ErrClosedPipe), exception.ErrResource},
		{"item", exception.NewItemError("processor", "bad item", nil, true, false), exception.ErrItem},
		{"consumed item", exception.NewConsumedItemError("reader", "bad row", io.ErrUnexpectedEOF), exception.ErrItem},
		{"chunk", exception.NewChunkError("writer", "insert failed", nil), exception.ErrChunk},
		{"duplicate", exception.NewDuplicateRunError("job", "inst-1"), exception.ErrDuplicateRun},
		{"concurrent", exception.NewConcurrentRunError("job", "inst-1", "exec-1"), exception.ErrConcurrentRun},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.err, tc.kind)
			wrapped := fmt.Errorf("launch: %w", tc.err)
			assert.ErrorIs(t, wrapped, tc.kind)
			for _, other := range []error{exception.ErrResource, exception.ErrItem, exception.ErrChunk, exception.ErrDuplicateRun, exception.ErrConcurrentRun} {
				if other != tc.kind {
					assert.NotErrorIs(t, tc.err, other)
				}
			}
		})
	}

	resourceErr := exception.NewResourceError("reader", "cannot open", io.ErrClosedPipe)
	assert.ErrorIs(t, resourceErr, io.ErrClosedPipe)
}

func TestNewOptimisticLockingFailureException(t *testing.T) {
	be := exception.NewOptimisticLockingFailureException("repo", "version mismatch", errors.New("0 rows"))

	assert.False(t, be.IsRetryable())
	assert.False(t, be.IsSkippable())
	assert.True(t, exception.IsOptimisticLockingFailure(be))
	assert.Contains(t, be.Error(), "version mismatch")
}

func TestIsErrorOfType(t *testing.T) {
	assert.True(t, exception.IsErrorOfType(fmt.Errorf("read: %w", io.EOF), "io.EOF"))
	assert.True(t, exception.IsErrorOfType(exception.NewItemError("p", "x", nil, false, false), "ItemError"))
	assert.True(t, exception.IsErrorOfType(errors.New("upstream connection refused"), "connection refused"))
	assert.True(t, exception.IsErrorOfType(fmt.Errorf("wrap: %w", &CustomError{Msg: "boom"}), "exception_test.CustomError"))
	assert.False(t, exception.IsErrorOfType(errors.New("other"), "io.EOF"))
	assert.False(t, exception.IsErrorOfType(nil, "io.EOF"))
	assert.False(t, exception.IsErrorOfType(errors.New("x"), ""))
}

func TestRegisterErrorType(t *testing.T) {
	sentinel := errors.New("quota exceeded")
	exception.RegisterErrorType("QuotaExceeded", sentinel)

	assert.True(t, exception.IsErrorTypeRegistered("QuotaExceeded"))
	assert.Contains(t, exception.RegisteredErrorTypes(), "QuotaExceeded")
	assert.True(t, exception.IsErrorOfType(fmt.Errorf("call: %w", sentinel), "QuotaExceeded"))

	assert.Panics(t, func() { exception.RegisterErrorType("", sentinel) })
	assert.Panics(t, func() { exception.RegisterErrorType("nil", nil) })
}

func TestIsTemporary(t *testing.T) {
	assert.True(t, exception.IsTemporary(exception.NewBatchError("net", "timeout", nil, false, true)))
	assert.True(t, exception.IsTemporary(errors.New("dial tcp: connection refused")))
	assert.False(t, exception.IsTemporary(exception.NewBatchError("data", "invalid format", errors.New("bad row"), true, false)))
	assert.False(t, exception.IsTemporary(nil))
}

func TestAsBatchError(t *testing.T) {
	be := exception.NewItemError("processor", "negative amount", nil, true, false)
	got, ok := exception.AsBatchError(fmt.Errorf("outer: %w", be))
	require.True(t, ok)
	assert.Same(t, be, got)
	assert.Equal(t, "negative amount", exception.ExtractErrorMessage(be))

	_, ok = exception.AsBatchError(errors.New("plain"))
	assert.False(t, ok)
}
