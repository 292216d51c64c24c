package model

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/serialization"
)

// NewID generates a new unique identifier.
func NewID() string {
	return uuid.New().String()
}

// FailureList holds the failure messages of an execution.
type FailureList []string

// Value implements driver.Valuer.
func (fl FailureList) Value() (driver.Value, error) {
	data, err := serialization.MarshalFailures(fl)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (fl *FailureList) Scan(value interface{}) error {
	var msgs []string
	switch v := value.(type) {
	case nil:
		*fl = FailureList{}
		return nil
	case []byte:
		if err := serialization.UnmarshalFailures(v, &msgs); err != nil {
			return err
		}
	case string:
		if err := serialization.UnmarshalFailures([]byte(v), &msgs); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported Scan type for FailureList: %T", value)
	}
	*fl = FailureList(msgs)
	return nil
}

// JobInstance is a job identified by its name and parameter set.
type JobInstance struct {
	ID             string
	JobName        string
	Parameters     JobParameters
	ParametersHash string
	CreateTime     time.Time
	Version        int
}

// NewJobInstance creates a JobInstance keyed by the parameters' hash.
func NewJobInstance(jobName string, params JobParameters) *JobInstance {
	return &JobInstance{
		ID:             NewID(),
		JobName:        jobName,
		Parameters:     params,
		ParametersHash: params.Hash(),
		CreateTime:     time.Now(),
	}
}

// InstanceKey identifies a job instance: the job name plus the canonical hash of its parameters.
type InstanceKey struct {
	JobName        string
	ParametersHash string
}

// KeyOf returns the instance key for a job name and parameter set.
func KeyOf(jobName string, params JobParameters) InstanceKey {
	return InstanceKey{JobName: jobName, ParametersHash: params.Hash()}
}

// Key returns the instance's key.
func (ji *JobInstance) Key() InstanceKey {
	return InstanceKey{JobName: ji.JobName, ParametersHash: ji.ParametersHash}
}
