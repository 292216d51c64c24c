// Package serialization holds the JSON helpers used to persist execution contexts and failure lists,
// and the masking applied when job parameters are logged or reported.
package serialization

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// MaskValue replaces the value of a masked parameter.
const MaskValue = "********"

var (
	maskMu     sync.RWMutex
	maskedKeys = map[string]struct{}{}
)

// SetMaskedParameterKeys replaces the set of parameter names whose values are masked. Matching is
// case-insensitive.
func SetMaskedParameterKeys(keys []string) {
	maskMu.Lock()
	defer maskMu.Unlock()
	maskedKeys = make(map[string]struct{}, len(keys))
	for _, k := range keys {
		maskedKeys[strings.ToLower(k)] = struct{}{}
	}
}

// IsMaskedKey reports whether values of key must not be shown.
func IsMaskedKey(key string) bool {
	maskMu.RLock()
	defer maskMu.RUnlock()
	_, ok := maskedKeys[strings.ToLower(key)]
	return ok
}

// MaskParameters returns a copy of params with masked keys replaced by MaskValue.
func MaskParameters(params map[string]interface{}) map[string]interface{} {
	masked := make(map[string]interface{}, len(params))
	for k, v := range params {
		if IsMaskedKey(k) {
			masked[k] = MaskValue
			continue
		}
		masked[k] = v
	}
	return masked
}

// MarshalExecutionContext serializes an execution context map. A nil map becomes "{}".
func MarshalExecutionContext(ctx map[string]interface{}) ([]byte, error) {
	if ctx == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		logger.Errorf("Failed to serialize ExecutionContext: %v", err)
		return nil, exception.NewBatchError("serialization", "failed to serialize ExecutionContext", err, false, false)
	}
	return data, nil
}

// UnmarshalExecutionContext deserializes data into *ctx, replacing its previous content.
func UnmarshalExecutionContext(data []byte, ctx *map[string]interface{}) error {
	if *ctx == nil {
		*ctx = make(map[string]interface{})
	} else {
		for k := range *ctx {
			delete(*ctx, k)
		}
	}
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, ctx); err != nil {
		logger.Errorf("Failed to deserialize ExecutionContext: %v", err)
		return exception.NewBatchError("serialization", "failed to deserialize ExecutionContext", err, false, false)
	}
	return nil
}

// MarshalFailures serializes failure messages. A nil slice becomes "[]".
func MarshalFailures(failures []string) ([]byte, error) {
	if failures == nil {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(failures)
	if err != nil {
		return nil, exception.NewBatchError("serialization", "failed to serialize failures", err, false, false)
	}
	return data, nil
}

// UnmarshalFailures deserializes failure messages.
func UnmarshalFailures(data []byte, msgs *[]string) error {
	if len(data) == 0 || string(data) == "null" {
		*msgs = []string{}
		return nil
	}
	if err := json.Unmarshal(data, msgs); err != nil {
		return exception.NewBatchError("serialization", "failed to deserialize failures", err, false, false)
	}
	return nil
}
