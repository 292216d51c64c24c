package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/example/order/internal/step/processor"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

func TestParseOrderParameters_FromArgs(t *testing.T) {
	params, err := model.ParseJobParameterArgs([]string{
		"startDate(DATE)=2024-02-01",
		"endDate(DATE)=2024-02-29",
		"minAmount(LONG)=7000",
		"processingMode=careful",
	})
	require.NoError(t, err)

	got, err := ParseOrderParameters(params)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), got.Range.From)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), got.Range.To)
	assert.EqualValues(t, 7000, got.Range.MinAmount)
	assert.Equal(t, processor.ModeCareful, got.Mode)

	require.NoError(t, NewOrderParametersValidator().Validate(params))
}

func TestOrderParametersValidator_RejectsUnknownKeys(t *testing.T) {
	params := model.NewJobParametersBuilderFrom(rangeParams("FAST")).AddString("region", "kr").ToJobParameters()
	assert.Error(t, NewOrderParametersValidator().Validate(params))

	withTimestamp := model.NewJobParametersBuilderFrom(rangeParams("FAST")).AddLong("timestamp", 1).ToJobParameters()
	assert.NoError(t, NewOrderParametersValidator().Validate(withTimestamp))
}

func TestScheduledOrderParameters(t *testing.T) {
	tick := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)
	params, err := ScheduledOrderParameters(tick)
	require.NoError(t, err)
	require.NoError(t, NewOrderParametersValidator().Validate(params))

	got, err := ParseOrderParameters(params)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-03", got.Range.From.Format(time.DateOnly))
	assert.Equal(t, "2024-03-10", got.Range.To.Format(time.DateOnly))
	assert.EqualValues(t, 7000, got.Range.MinAmount)
	assert.Equal(t, processor.ModeFast, got.Mode)

	ts, ok := params.GetLong("timestamp")
	require.True(t, ok)
	assert.Equal(t, tick.UnixMilli(), ts)

	next, err := ScheduledOrderParameters(tick.Add(30 * time.Second))
	require.NoError(t, err)
	assert.NotEqual(t, params.Hash(), next.Hash(), "every tick is a new instance")
}
