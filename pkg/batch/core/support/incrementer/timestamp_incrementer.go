package incrementer

import (
	"fmt"
	"time"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// TimestampIncrementer sets a LONG parameter to the current Unix time in milliseconds.
// The new value is always greater than the one already present, so two calls within the same
// millisecond still yield distinct instances.
type TimestampIncrementer struct {
	name string
	now  func() time.Time
}

// NewTimestampIncrementer creates a new instance of TimestampIncrementer.
func NewTimestampIncrementer(name string) *TimestampIncrementer {
	if name == "" {
		name = DefaultTimestampKey
	}
	return &TimestampIncrementer{name: name, now: time.Now}
}

// GetNext returns a copy of params with the timestamp set.
func (i *TimestampIncrementer) GetNext(params model.JobParameters) model.JobParameters {
	ts := i.now().UnixMilli()
	if prev, ok := params.GetLong(i.name); ok && prev >= ts {
		ts = prev + 1
	}
	logger.Debugf("JobParametersIncrementer '%s': setting '%s' to %d.", i, i.name, ts)
	return model.NewJobParametersBuilderFrom(params).AddLong(i.name, ts).ToJobParameters()
}

// String returns the string representation of TimestampIncrementer.
func (i *TimestampIncrementer) String() string {
	return fmt.Sprintf("TimestampIncrementer[name=%s]", i.name)
}

var _ port.JobParametersIncrementer = (*TimestampIncrementer)(nil)
