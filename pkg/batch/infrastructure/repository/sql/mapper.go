package sql

import (
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

func fromDomainJobInstance(ji *model.JobInstance) *JobInstanceEntity {
	return &JobInstanceEntity{
		ID:             ji.ID,
		JobName:        ji.JobName,
		ParametersHash: ji.ParametersHash,
		Parameters:     ji.Parameters,
		CreateTime:     ji.CreateTime,
		Version:        ji.Version,
	}
}

func toDomainJobInstance(entity *JobInstanceEntity) *model.JobInstance {
	return &model.JobInstance{
		ID:             entity.ID,
		JobName:        entity.JobName,
		ParametersHash: entity.ParametersHash,
		Parameters:     entity.Parameters,
		CreateTime:     entity.CreateTime,
		Version:        entity.Version,
	}
}

func fromDomainJobExecution(je *model.JobExecution) *JobExecutionEntity {
	return &JobExecutionEntity{
		ID:               je.ID,
		JobInstanceID:    je.JobInstanceID,
		JobName:          je.JobName,
		Parameters:       je.Parameters,
		Status:           je.Status,
		ExitStatus:       je.ExitStatus,
		CreateTime:       je.CreateTime,
		StartTime:        je.StartTime,
		EndTime:          je.EndTime,
		LastUpdated:      je.LastUpdated,
		Failures:         nonNilFailures(je.Failures),
		ExecutionContext: nonNilContext(je.ExecutionContext),
		Version:          je.Version,
	}
}

// toDomainJobExecution maps the row only; step executions are attached by the caller.
func toDomainJobExecution(entity *JobExecutionEntity) *model.JobExecution {
	return &model.JobExecution{
		ID:               entity.ID,
		JobInstanceID:    entity.JobInstanceID,
		JobName:          entity.JobName,
		Parameters:       entity.Parameters,
		Status:           entity.Status,
		ExitStatus:       entity.ExitStatus,
		CreateTime:       entity.CreateTime,
		StartTime:        entity.StartTime,
		EndTime:          entity.EndTime,
		LastUpdated:      entity.LastUpdated,
		Failures:         nonNilFailures(entity.Failures),
		StepExecutions:   []*model.StepExecution{},
		ExecutionContext: nonNilContext(entity.ExecutionContext),
		Version:          entity.Version,
	}
}

func fromDomainStepExecution(se *model.StepExecution) *StepExecutionEntity {
	return &StepExecutionEntity{
		ID:               se.ID,
		JobExecutionID:   se.JobExecutionID,
		StepName:         se.StepName,
		Status:           se.Status,
		ExitStatus:       se.ExitStatus,
		ReadCount:        se.ReadCount,
		WriteCount:       se.WriteCount,
		FilterCount:      se.FilterCount,
		ReadSkipCount:    se.ReadSkipCount,
		ProcessSkipCount: se.ProcessSkipCount,
		CommitCount:      se.CommitCount,
		RollbackCount:    se.RollbackCount,
		RetryCount:       se.RetryCount,
		StartTime:        se.StartTime,
		EndTime:          se.EndTime,
		LastUpdated:      se.LastUpdated,
		Failures:         nonNilFailures(se.Failures),
		ExecutionContext: nonNilContext(se.ExecutionContext),
		Version:          se.Version,
	}
}

func toDomainStepExecution(entity *StepExecutionEntity) *model.StepExecution {
	return &model.StepExecution{
		ID:               entity.ID,
		JobExecutionID:   entity.JobExecutionID,
		StepName:         entity.StepName,
		Status:           entity.Status,
		ExitStatus:       entity.ExitStatus,
		ReadCount:        entity.ReadCount,
		WriteCount:       entity.WriteCount,
		FilterCount:      entity.FilterCount,
		ReadSkipCount:    entity.ReadSkipCount,
		ProcessSkipCount: entity.ProcessSkipCount,
		CommitCount:      entity.CommitCount,
		RollbackCount:    entity.RollbackCount,
		RetryCount:       entity.RetryCount,
		StartTime:        entity.StartTime,
		EndTime:          entity.EndTime,
		LastUpdated:      entity.LastUpdated,
		Failures:         nonNilFailures(entity.Failures),
		ExecutionContext: nonNilContext(entity.ExecutionContext),
		Version:          entity.Version,
	}
}

func nonNilFailures(fl model.FailureList) model.FailureList {
	if fl == nil {
		return model.FailureList{}
	}
	return fl
}

func nonNilContext(ec model.ExecutionContext) model.ExecutionContext {
	if ec == nil {
		return model.NewExecutionContext()
	}
	return ec
}
