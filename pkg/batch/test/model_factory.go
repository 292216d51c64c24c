package test

import (
	"context"

	"github.com/stretchr/testify/mock"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
)

// NewTestExecution creates a running job execution of jobName with one step execution of stepName.
func NewTestExecution(jobName, stepName string, params model.JobParameters) (*model.JobExecution, *model.StepExecution) {
	je := model.NewJobExecution(model.NewID(), jobName, params)
	se := model.NewStepExecution(model.NewID(), je, stepName)
	return je, se
}

// NewTestExecutionContext creates an ExecutionContext holding data.
func NewTestExecutionContext(data map[string]interface{}) model.ExecutionContext {
	ec := model.NewExecutionContext()
	for k, v := range data {
		ec.Put(k, v)
	}
	return ec
}

// MockStepRepository is a mock implementation of repository.StepExecution.
type MockStepRepository struct {
	mock.Mock
}

var _ repository.StepExecution = (*MockStepRepository)(nil)

func (m *MockStepRepository) SaveStepExecution(ctx context.Context, se *model.StepExecution) error {
	return m.Called(ctx, se).Error(0)
}

func (m *MockStepRepository) UpdateStepExecution(ctx context.Context, se *model.StepExecution) error {
	return m.Called(ctx, se).Error(0)
}

func (m *MockStepRepository) FindStepExecutionByID(ctx context.Context, id string) (*model.StepExecution, error) {
	args := m.Called(ctx, id)
	se, _ := args.Get(0).(*model.StepExecution)
	return se, args.Error(1)
}

func (m *MockStepRepository) FindStepExecutionsByJobExecution(ctx context.Context, id string) ([]*model.StepExecution, error) {
	args := m.Called(ctx, id)
	ses, _ := args.Get(0).([]*model.StepExecution)
	return ses, args.Error(1)
}

func (m *MockStepRepository) FindLastStepExecution(ctx context.Context, instanceID, stepName string) (*model.StepExecution, error) {
	args := m.Called(ctx, instanceID, stepName)
	se, _ := args.Get(0).(*model.StepExecution)
	return se, args.Error(1)
}
