package runner

import (
	"fmt"
	"sort"
	"strings"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// ParametersValidator checks that required keys are present with the declared type and, when
// optional keys are listed, that no other key is supplied.
type ParametersValidator struct {
	required map[string]model.ParameterType
	optional map[string]model.ParameterType
}

var _ port.JobParametersValidator = (*ParametersValidator)(nil)

// NewParametersValidator creates a validator. A nil optional map allows any additional key.
func NewParametersValidator(required, optional map[string]model.ParameterType) *ParametersValidator {
	return &ParametersValidator{required: required, optional: optional}
}

// Validate implements port.JobParametersValidator.
func (v *ParametersValidator) Validate(params model.JobParameters) error {
	var problems []string
	for _, key := range sortedKeys(v.required) {
		p, ok := params.Get(key)
		if !ok {
			problems = append(problems, fmt.Sprintf("missing required parameter '%s'", key))
			continue
		}
		if want := v.required[key]; p.Type() != want {
			problems = append(problems, fmt.Sprintf("parameter '%s' must be %s, got %s", key, want, p.Type()))
		}
	}
	for _, key := range params.Keys() {
		if _, ok := v.required[key]; ok {
			continue
		}
		if v.optional == nil {
			continue
		}
		want, ok := v.optional[key]
		if !ok {
			problems = append(problems, fmt.Sprintf("unexpected parameter '%s'", key))
			continue
		}
		if p, _ := params.Get(key); p.Type() != want {
			problems = append(problems, fmt.Sprintf("parameter '%s' must be %s, got %s", key, want, p.Type()))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid job parameters: %s", strings.Join(problems, "; "))
	}
	return nil
}

func sortedKeys(m map[string]model.ParameterType) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
