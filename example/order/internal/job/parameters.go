package job

import (
	"fmt"
	"time"

	"github.com/tigerroll/chunkbatch/example/order/internal/step/processor"
	"github.com/tigerroll/chunkbatch/example/order/internal/step/reader"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
)

// Parameter keys of parameterJob.
const (
	ParamStartDate      = "startDate"
	ParamEndDate        = "endDate"
	ParamMinAmount      = "minAmount"
	ParamProcessingMode = "processingMode"
)

// OrderParameters are the decoded parameters of parameterJob.
type OrderParameters struct {
	Range reader.OrderRange
	Mode  processor.ProcessingMode
}

// ParseOrderParameters decodes and checks the parameters of parameterJob.
func ParseOrderParameters(params model.JobParameters) (OrderParameters, error) {
	from, ok := params.GetDate(ParamStartDate)
	if !ok {
		return OrderParameters{}, fmt.Errorf("missing DATE parameter '%s'", ParamStartDate)
	}
	to, ok := params.GetDate(ParamEndDate)
	if !ok {
		return OrderParameters{}, fmt.Errorf("missing DATE parameter '%s'", ParamEndDate)
	}
	if to.Before(from) {
		return OrderParameters{}, fmt.Errorf("'%s' (%s) is before '%s' (%s)", ParamEndDate, to.Format(time.DateOnly), ParamStartDate, from.Format(time.DateOnly))
	}
	minAmount, ok := params.GetLong(ParamMinAmount)
	if !ok {
		return OrderParameters{}, fmt.Errorf("missing LONG parameter '%s'", ParamMinAmount)
	}
	rawMode, ok := params.GetString(ParamProcessingMode)
	if !ok {
		return OrderParameters{}, fmt.Errorf("missing STRING parameter '%s'", ParamProcessingMode)
	}
	mode, err := processor.ParseProcessingMode(rawMode)
	if err != nil {
		return OrderParameters{}, err
	}
	return OrderParameters{
		Range: reader.OrderRange{From: from, To: to, MinAmount: minAmount},
		Mode:  mode,
	}, nil
}

// orderParametersValidator adds the semantic checks of ParseOrderParameters to the type checks.
type orderParametersValidator struct {
	types *runner.ParametersValidator
}

var _ port.JobParametersValidator = (*orderParametersValidator)(nil)

// NewOrderParametersValidator rejects parameterJob launches with missing, mistyped or inconsistent parameters.
func NewOrderParametersValidator() port.JobParametersValidator {
	return &orderParametersValidator{
		types: runner.NewParametersValidator(
			map[string]model.ParameterType{
				ParamStartDate:      model.ParameterTypeDate,
				ParamEndDate:        model.ParameterTypeDate,
				ParamMinAmount:      model.ParameterTypeLong,
				ParamProcessingMode: model.ParameterTypeString,
			},
			map[string]model.ParameterType{
				"timestamp": model.ParameterTypeLong,
				"run.id":    model.ParameterTypeLong,
			},
		),
	}
}

func (v *orderParametersValidator) Validate(params model.JobParameters) error {
	if err := v.types.Validate(params); err != nil {
		return err
	}
	_, err := ParseOrderParameters(params)
	return err
}

// ScheduledOrderParameters returns the parameters of the periodic parameterJob run: the last seven days,
// orders of at least 7000, FAST mode and a timestamp making every run a new instance.
func ScheduledOrderParameters(now time.Time) (model.JobParameters, error) {
	today := now.UTC()
	return model.NewJobParametersBuilder().
		AddDate(ParamStartDate, today.AddDate(0, 0, -7)).
		AddDate(ParamEndDate, today).
		AddLong(ParamMinAmount, 7000).
		AddString(ParamProcessingMode, string(processor.ModeFast)).
		AddLong("timestamp", now.UnixMilli()).
		Build()
}
