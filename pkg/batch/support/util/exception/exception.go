// Package exception provides the error types used across the batch engine.
// Errors are classified by kind (resource, item, chunk, duplicate run, concurrent run) and
// carry skip/retry flags that the fault policy consults before its configured error lists.
package exception

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// errorRegistry maps error type names used in configuration to concrete error values.
// It holds singleton instances for comparison with errors.Is.
var errorRegistry = make(map[string]error)

// registryMutex protects access to errorRegistry.
var registryMutex sync.RWMutex

// RegisterErrorType registers an error type under a name that fault policies can reference.
//
// name: A unique identifier for the error type.
// prototype: The error value compared with errors.Is.
//
// RegisterErrorType panics when name is empty or prototype is nil.
func RegisterErrorType(name string, prototype error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if name == "" {
		panic("error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("cannot register nil prototype for name: %s", name))
	}

	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered reports whether name is present in the registry.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// RegisteredErrorTypes returns the registered names.
func RegisteredErrorTypes() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	names := make([]string, 0, len(errorRegistry))
	for name := range errorRegistry {
		names = append(names, name)
	}
	return names
}

// Error kinds. A *BatchError created with one of the New*Error constructors matches its kind
// with errors.Is.
var (
	// ErrResource means a source or sink could not be opened. The step never starts.
	ErrResource = errors.New("resource error")
	// ErrItem is raised for a single item by a reader or processor.
	ErrItem = errors.New("item error")
	// ErrChunk is raised by a sink call for a whole chunk.
	ErrChunk = errors.New("chunk error")
	// ErrItemConsumed marks a read failure raised after the source moved past the item.
	// Reading again yields the next item, so such a failure is never retried.
	ErrItemConsumed = errors.New("item already consumed")
	// ErrDuplicateRun means the job instance has already completed.
	ErrDuplicateRun = errors.New("job instance already completed")
	// ErrConcurrentRun means another execution of the job instance is running.
	ErrConcurrentRun = errors.New("job execution already running")
	// ErrOptimisticLockingFailure means a versioned record was modified concurrently.
	ErrOptimisticLockingFailure = errors.New(OptimisticLockingFailureException)
)

// OptimisticLockingFailureException is the registry name of ErrOptimisticLockingFailure.
const OptimisticLockingFailureException = "OptimisticLockingFailureException"

// BatchError is the error type produced by the engine and its components.
// It holds the module where the error occurred, a message, the wrapped original error,
// its kind and flags indicating whether it is retryable or skippable.
type BatchError struct {
	// Module indicates where the error occurred (e.g., "reader", "processor", "writer", "repository").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	kind        error
	isRetryable bool
	isSkippable bool
	// StackTrace is the stack at construction time.
	StackTrace string
}

// NewBatchError creates a new BatchError.
// module: The module where the error occurred.
// message: The error message.
// originalErr: The original error to wrap.
// isSkippable: Whether this error is skippable.
// isRetryable: Whether this error is retryable.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  captureStack(),
	}
}

// NewBatchErrorf creates a new BatchError using a format string.
// Optional flags and an error are taken from the end of a in the order
// [isSkippable bool], [isRetryable bool], [originalErr error]; the rest is passed to fmt.Sprintf.
//
// NewBatchErrorf("reader", "failed to read item %s", "id-1", true, true, io.EOF)
// -> message "failed to read item id-1", skippable, retryable, wrapping io.EOF.
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	isRetryable := false
	isSkippable := false
	args := a

	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}
	if len(args) > 0 {
		if b, ok := args[len(args)-1].(bool); ok {
			isRetryable = b
			args = args[:len(args)-1]
		}
	}
	if len(args) > 0 {
		if b, ok := args[len(args)-1].(bool); ok {
			isSkippable = b
			args = args[:len(args)-1]
		}
	}

	return &BatchError{
		Module:      module,
		Message:     fmt.Sprintf(format, args...),
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  captureStack(),
	}
}

func newKindError(kind error, module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	be := NewBatchError(module, message, originalErr, isSkippable, isRetryable)
	be.kind = kind
	return be
}

// NewResourceError reports that a source or sink could not be opened. It is never skipped or retried.
func NewResourceError(module, message string, originalErr error) *BatchError {
	return newKindError(ErrResource, module, message, originalErr, false, false)
}

// NewItemError reports a failure for a single item.
func NewItemError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	return newKindError(ErrItem, module, message, originalErr, isSkippable, isRetryable)
}

// NewConsumedItemError is NewItemError for a reader that has already advanced past the failed item.
// The error matches both ErrItem and ErrItemConsumed.
func NewConsumedItemError(module, message string, originalErr error) *BatchError {
	cause := ErrItemConsumed
	if originalErr != nil {
		cause = fmt.Errorf("%w: %w", ErrItemConsumed, originalErr)
	}
	return newKindError(ErrItem, module, message, cause, false, false)
}

// NewChunkError reports a failed sink call for a whole chunk.
func NewChunkError(module, message string, originalErr error) *BatchError {
	return newKindError(ErrChunk, module, message, originalErr, false, false)
}

// NewDuplicateRunError reports an attempt to run an already completed job instance.
func NewDuplicateRunError(jobName, instanceID string) *BatchError {
	return newKindError(ErrDuplicateRun, "repository",
		fmt.Sprintf("job instance %s of job '%s' is already complete; change the parameters to run it again", instanceID, jobName),
		nil, false, false)
}

// NewConcurrentRunError reports an attempt to run a job instance that has a running execution.
func NewConcurrentRunError(jobName, instanceID, executionID string) *BatchError {
	return newKindError(ErrConcurrentRun, "repository",
		fmt.Sprintf("job instance %s of job '%s' is already running as execution %s", instanceID, jobName, executionID),
		nil, false, false)
}

// NewOptimisticLockingFailureException creates a BatchError for an optimistic locking failure.
// It is neither retryable nor skippable.
func NewOptimisticLockingFailureException(module, message string, originalErr error) *BatchError {
	var errToWrap error
	if originalErr != nil {
		errToWrap = errors.Join(ErrOptimisticLockingFailure, originalErr)
	} else {
		errToWrap = ErrOptimisticLockingFailure
	}
	return NewBatchError(module, message, errToWrap, false, false)
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// Is matches the error's kind sentinel.
func (e *BatchError) Is(target error) bool {
	return e.kind != nil && target == e.kind
}

// Kind returns the kind sentinel, or nil for an unclassified error.
func (e *BatchError) Kind() error {
	return e.kind
}

// IsRetryable returns whether this error is retryable.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable returns whether this error is skippable.
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// AsBatchError finds the first BatchError in err's chain.
func AsBatchError(err error) (*BatchError, bool) {
	var be *BatchError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsBatchError reports whether err's chain contains a BatchError.
func IsBatchError(err error) bool {
	_, ok := AsBatchError(err)
	return ok
}

// IsTemporary reports whether an error looks transient (timeouts, refused connections).
// The IsRetryable flag of a BatchError takes precedence.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if be, ok := AsBatchError(err); ok && be.IsRetryable() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset")
}

// IsErrorOfType checks whether err matches a registered name, a message substring, or a Go type name
// such as "*net.OpError". Checks run in that order over the whole wrap chain.
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil || errorTypeName == "" {
		return false
	}

	registryMutex.RLock()
	targetError, ok := errorRegistry[errorTypeName]
	registryMutex.RUnlock()
	if ok && errors.Is(err, targetError) {
		return true
	}

	currentErr := err
	for currentErr != nil {
		if strings.Contains(currentErr.Error(), errorTypeName) {
			return true
		}
		errType := reflect.TypeOf(currentErr)
		if errType != nil {
			if errType.String() == errorTypeName || (errType.Kind() == reflect.Ptr && errType.Elem().String() == errorTypeName) {
				return true
			}
		}
		currentErr = errors.Unwrap(currentErr)
	}
	return false
}

// IsOptimisticLockingFailure reports whether err is an optimistic locking failure.
func IsOptimisticLockingFailure(err error) bool {
	return err != nil && errors.Is(err, ErrOptimisticLockingFailure)
}

// ExtractErrorMessage returns the Message of a BatchError or err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if be, ok := err.(*BatchError); ok {
		return be.Message
	}
	return err.Error()
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

func init() {
	RegisterErrorType(OptimisticLockingFailureException, ErrOptimisticLockingFailure)
	RegisterErrorType("ResourceError", ErrResource)
	RegisterErrorType("ItemError", ErrItem)
	RegisterErrorType("ChunkError", ErrChunk)
	RegisterErrorType("ItemConsumedError", ErrItemConsumed)
	RegisterErrorType("DuplicateRunError", ErrDuplicateRun)
	RegisterErrorType("ConcurrentRunError", ErrConcurrentRun)

	RegisterErrorType("io.EOF", io.EOF)
	RegisterErrorType("io.ErrUnexpectedEOF", io.ErrUnexpectedEOF)
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
	RegisterErrorType("sql.ErrNoRows", sql.ErrNoRows)
	RegisterErrorType("sql.ErrConnDone", sql.ErrConnDone)
}
