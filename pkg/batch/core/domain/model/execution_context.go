package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/serialization"
)

// ExecutionContext is a key-value store persisted with a step or job execution.
// Readers and writers keep their restart cursors here.
type ExecutionContext map[string]interface{}

// NewExecutionContext creates an empty ExecutionContext.
func NewExecutionContext() ExecutionContext {
	return make(ExecutionContext)
}

// Value implements driver.Valuer, storing the context as JSON.
func (ec ExecutionContext) Value() (driver.Value, error) {
	data, err := serialization.MarshalExecutionContext(ec)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (ec *ExecutionContext) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*ec = NewExecutionContext()
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for ExecutionContext: %T", value)
	}
	m := map[string]interface{}(*ec)
	if err := serialization.UnmarshalExecutionContext(b, &m); err != nil {
		return err
	}
	*ec = ExecutionContext(m)
	return nil
}

// Put sets a value.
func (ec ExecutionContext) Put(key string, value interface{}) {
	ec[key] = value
}

// Get retrieves a value. Returns nil and false if the key does not exist.
func (ec ExecutionContext) Get(key string) (interface{}, bool) {
	val, ok := ec[key]
	return val, ok
}

// GetString retrieves a string value.
func (ec ExecutionContext) GetString(key string) (string, bool) {
	val, ok := ec[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetInt64 retrieves an integer value. Numbers decoded from JSON arrive as float64 and are converted.
func (ec ExecutionContext) GetInt64(key string) (int64, bool) {
	val, ok := ec[key]
	if !ok {
		return 0, false
	}
	switch n := val.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

// GetInt retrieves an integer value as int.
func (ec ExecutionContext) GetInt(key string) (int, bool) {
	i, ok := ec.GetInt64(key)
	return int(i), ok
}

// GetBool retrieves a bool value.
func (ec ExecutionContext) GetBool(key string) (bool, bool) {
	val, ok := ec[key]
	if !ok {
		return false, false
	}
	b, ok := val.(bool)
	return b, ok
}

// GetFloat64 retrieves a float64 value.
func (ec ExecutionContext) GetFloat64(key string) (float64, bool) {
	val, ok := ec[key]
	if !ok {
		return 0, false
	}
	switch n := val.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Remove deletes a key.
func (ec ExecutionContext) Remove(key string) {
	delete(ec, key)
}

// Copy creates a shallow copy. A nil context copies to an empty one.
func (ec ExecutionContext) Copy() ExecutionContext {
	newEC := make(ExecutionContext, len(ec))
	for k, v := range ec {
		newEC[k] = v
	}
	return newEC
}

// Merge copies every entry of other into ec, overwriting existing keys.
func (ec ExecutionContext) Merge(other ExecutionContext) {
	for k, v := range other {
		ec[k] = v
	}
}
