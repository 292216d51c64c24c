package sql

import (
	"context"
	"fmt"
	"sort"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const module = "SQLJobRepository"

var runningStatuses = []string{
	string(model.BatchStatusStarting),
	string(model.BatchStatusStarted),
	string(model.BatchStatusStopping),
}

// SQLJobRepository implements the repository.JobRepository interface on a relational database.
type SQLJobRepository struct {
	dbResolver database.DBConnectionResolver
	// TxManager opens transactions on the same database as dbName.
	TxManager tx.TransactionManager
	// dbName is the name of the database connection used by this JobRepository (e.g., "metadata").
	dbName string
}

var _ repository.JobRepository = (*SQLJobRepository)(nil)

// NewSQLJobRepository creates a new instance of SQLJobRepository.
func NewSQLJobRepository(dbResolver database.DBConnectionResolver, txManager tx.TransactionManager, dbName string) *SQLJobRepository {
	return &SQLJobRepository{
		dbResolver: dbResolver,
		TxManager:  txManager,
		dbName:     dbName,
	}
}

// Close implements repository.JobRepository. Connections are owned by the resolver.
func (r *SQLJobRepository) Close() error {
	return nil
}

func (r *SQLJobRepository) getDBConnection(ctx context.Context) (database.DBConnection, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("failed to resolve DB connection '%s'", r.dbName), err, false, false)
	}
	return conn, nil
}

// getExecutor returns the transaction in ctx when it can run queries, otherwise the connection.
func (r *SQLJobRepository) getExecutor(ctx context.Context) (database.DBExecutor, error) {
	if t, ok := tx.FromContext(ctx); ok {
		if exec, ok := t.(database.DBExecutor); ok {
			return exec, nil
		}
	}
	return r.getDBConnection(ctx)
}

func isTableNotExist(err error) bool {
	return gormadapter.IsTableNotExistError(err)
}

// --- JobInstance implementation ---

func (r *SQLJobRepository) FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error) {
	exec, err := r.getExecutor(ctx)
	if err != nil {
		return nil, err
	}
	var entities []JobInstanceEntity
	if err := exec.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"id": id}, "", 1); err != nil {
		if isTableNotExist(err) {
			return nil, repository.ErrJobInstanceNotFound
		}
		return nil, exception.NewBatchError(module, fmt.Sprintf("failed to find JobInstance by ID: %s", id), err, false, true)
	}
	if len(entities) == 0 {
		return nil, repository.ErrJobInstanceNotFound
	}
	return toDomainJobInstance(&entities[0]), nil
}

func (r *SQLJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	exec, err := r.getExecutor(ctx)
	if err != nil {
		return nil, err
	}
	return findInstance(ctx, exec, jobName, params)
}

// findInstance looks the key up and confirms the parameters, so a hash collision never aliases two instances.
func findInstance(ctx context.Context, exec database.DBExecutor, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	var entities []JobInstanceEntity
	err := exec.ExecuteQuery(ctx, &entities, map[string]interface{}{"job_name": jobName, "parameters_hash": params.Hash()})
	if err != nil {
		if isTableNotExist(err) {
			return nil, repository.ErrJobInstanceNotFound
		}
		return nil, exception.NewBatchError(module, "failed to find JobInstance", err, false, true)
	}
	for i := range entities {
		ji := toDomainJobInstance(&entities[i])
		if ji.Parameters.Equal(params) {
			return ji, nil
		}
		logger.Warnf("%s: JobInstance (ID: %s) hash matched but parameters differ.", module, ji.ID)
	}
	return nil, repository.ErrJobInstanceNotFound
}

func (r *SQLJobRepository) FindJobInstancesByJobName(ctx context.Context, jobName string, start, count int) ([]*model.JobInstance, error) {
	exec, err := r.getExecutor(ctx)
	if err != nil {
		return nil, err
	}
	var entities []JobInstanceEntity
	if err := exec.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"job_name": jobName}, "create_time desc", 0); err != nil {
		if isTableNotExist(err) {
			return []*model.JobInstance{}, nil
		}
		return nil, exception.NewBatchError(module, fmt.Sprintf("failed to list JobInstances of %s", jobName), err, false, true)
	}
	if start < 0 {
		start = 0
	}
	if start >= len(entities) {
		return []*model.JobInstance{}, nil
	}
	end := len(entities)
	if count > 0 && start+count < end {
		end = start + count
	}
	instances := make([]*model.JobInstance, 0, end-start)
	for i := start; i < end; i++ {
		instances = append(instances, toDomainJobInstance(&entities[i]))
	}
	return instances, nil
}

func (r *SQLJobRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	exec, err := r.getExecutor(ctx)
	if err != nil {
		return 0, err
	}
	n, err := exec.Count(ctx, &JobInstanceEntity{}, map[string]interface{}{"job_name": jobName})
	if err != nil {
		if isTableNotExist(err) {
			return 0, nil
		}
		return 0, exception.NewBatchError(module, fmt.Sprintf("failed to count JobInstances of %s", jobName), err, false, true)
	}
	return int(n), nil
}

func (r *SQLJobRepository) GetJobNames(ctx context.Context) ([]string, error) {
	exec, err := r.getExecutor(ctx)
	if err != nil {
		return nil, err
	}
	names := []string{}
	if err := exec.Pluck(ctx, &JobInstanceEntity{}, "job_name", &names, nil); err != nil {
		if isTableNotExist(err) {
			return []string{}, nil
		}
		return nil, exception.NewBatchError(module, "failed to list job names", err, false, true)
	}
	sort.Strings(names)
	return names, nil
}

// --- JobExecution implementation ---

// CreateJobExecution runs find-or-create of the instance, the duplicate and concurrency checks and the
// insert of the new execution in one transaction. Bumping the instance version serializes concurrent
// launchers: the loser either blocks on the row lock and then updates no row, or fails to commit.
func (r *SQLJobRepository) CreateJobExecution(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	t, err := r.TxManager.Begin(ctx)
	if err != nil {
		return nil, exception.NewBatchError(module, "failed to begin transaction", err, false, true)
	}
	exec, ok := t.(database.DBExecutor)
	if !ok {
		_ = r.TxManager.Rollback(t)
		return nil, exception.NewBatchErrorf(module, "transaction %T cannot run queries", t)
	}

	je, err := r.createJobExecution(ctx, exec, jobName, params)
	if err != nil {
		if rbErr := r.TxManager.Rollback(t); rbErr != nil {
			logger.Warnf("%s: rollback after failed launch of '%s' failed: %v", module, jobName, rbErr)
		}
		return nil, err
	}
	if err := r.TxManager.Commit(t); err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("failed to commit launch of '%s'", jobName), err, false, true)
	}
	return je, nil
}

func (r *SQLJobRepository) createJobExecution(ctx context.Context, exec database.DBExecutor, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	candidate := fromDomainJobInstance(model.NewJobInstance(jobName, params))
	if _, err := exec.ExecuteUpsert(ctx, candidate, candidate.TableName(), []string{"job_name", "parameters_hash"}, nil); err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("failed to create JobInstance of %s", jobName), err, false, true)
	}
	ji, err := findInstance(ctx, exec, jobName, params)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobInstance of %s not found after insert", jobName), err, false, false)
	}

	bumped := fromDomainJobInstance(ji)
	bumped.Version = ji.Version + 1
	rows, err := exec.ExecuteUpdate(ctx, bumped, tx.OperationUpdate, bumped.TableName(), map[string]interface{}{"version": ji.Version})
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("failed to lock JobInstance %s", ji.ID), err, false, true)
	}
	if rows == 0 {
		return nil, exception.NewConcurrentRunError(jobName, ji.ID, "")
	}

	var executions []JobExecutionEntity
	if err := exec.ExecuteQuery(ctx, &executions, map[string]interface{}{"job_instance_id": ji.ID}); err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("failed to load executions of JobInstance %s", ji.ID), err, false, true)
	}
	for _, e := range executions {
		if e.Status == model.BatchStatusCompleted {
			return nil, exception.NewDuplicateRunError(jobName, ji.ID)
		}
	}
	for _, e := range executions {
		if e.Status.IsRunning() {
			return nil, exception.NewConcurrentRunError(jobName, ji.ID, e.ID)
		}
	}

	je := model.NewJobExecution(ji.ID, jobName, params)
	entity := fromDomainJobExecution(je)
	if _, err := exec.ExecuteUpdate(ctx, entity, tx.OperationCreate, entity.TableName(), nil); err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("failed to save JobExecution %s", je.ID), err, false, true)
	}
	return je, nil
}

// UpdateJobExecution writes the execution if the stored version still equals jobExecution.Version.
func (r *SQLJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	exec, err := r.getExecutor(ctx)
	if err != nil {
		return err
	}
	original := jobExecution.Version
	entity := fromDomainJobExecution(jobExecution)
	entity.Version = original + 1

	rows, err := exec.ExecuteUpdate(ctx, entity, tx.OperationUpdate, entity.TableName(), map[string]interface{}{"version": original})
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("failed to update JobExecution %s", jobExecution.ID), err, false, true)
	}
	if rows == 0 {
		return r.lockFailure(ctx, exec, &JobExecutionEntity{}, jobExecution.ID, original, repository.ErrJobExecutionNotFound)
	}
	jobExecution.Version = entity.Version
	return nil
}

// lockFailure tells a missing row apart from a stale version.
func (r *SQLJobRepository) lockFailure(ctx context.Context, exec database.DBExecutor, entity interface{}, id string, version int, notFound error) error {
	n, err := exec.Count(ctx, entity, map[string]interface{}{"id": id})
	if err == nil && n == 0 {
		return notFound
	}
	return exception.NewOptimisticLockingFailureException("repository",
		fmt.Sprintf("record %s with version %d was updated by another process", id, version), nil)
}

func (r *SQLJobRepository) FindJobExecutionByID(ctx context.Context, executionID string) (*model.JobExecution, error) {
	exec, err := r.getExecutor(ctx)
	if err != nil {
		return nil, err
	}
	executions, err := r.queryExecutions(ctx, exec, map[string]interface{}{"id": executionID})
	if err != nil {
		return nil, err
	}
	if len(executions) == 0 {
		return nil, repository.ErrJobExecutionNotFound
	}
	return executions[0], nil
}

func (r *SQLJobRepository) FindJobExecutionsByJobInstance(ctx context.Context, jobInstanceID string) ([]*model.JobExecution, error) {
	exec, err := r.getExecutor(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryExecutions(ctx, exec, map[string]interface{}{"job_instance_id": jobInstanceID})
}

func (r *SQLJobRepository) FindLastJobExecution(ctx context.Context, jobInstanceID string) (*model.JobExecution, error) {
	executions, err := r.FindJobExecutionsByJobInstance(ctx, jobInstanceID)
	if err != nil {
		return nil, err
	}
	if len(executions) == 0 {
		return nil, repository.ErrJobExecutionNotFound
	}
	return executions[0], nil
}

func (r *SQLJobRepository) FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	exec, err := r.getExecutor(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryExecutions(ctx, exec, map[string]interface{}{"job_name": jobName, "status": runningStatuses})
}

// queryExecutions loads matching executions newest first, each with its step executions.
func (r *SQLJobRepository) queryExecutions(ctx context.Context, exec database.DBExecutor, query map[string]interface{}) ([]*model.JobExecution, error) {
	var entities []JobExecutionEntity
	if err := exec.ExecuteQueryAdvanced(ctx, &entities, query, "create_time desc", 0); err != nil {
		if isTableNotExist(err) {
			return []*model.JobExecution{}, nil
		}
		return nil, exception.NewBatchError(module, "failed to query JobExecutions", err, false, true)
	}
	executions := make([]*model.JobExecution, 0, len(entities))
	for i := range entities {
		je := toDomainJobExecution(&entities[i])
		steps, err := r.queryStepExecutions(ctx, exec, je.ID)
		if err != nil {
			return nil, err
		}
		for _, se := range steps {
			se.JobExecution = je
			je.StepExecutions = append(je.StepExecutions, se)
		}
		executions = append(executions, je)
	}
	return executions, nil
}

// --- StepExecution implementation ---

func (r *SQLJobRepository) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	exec, err := r.getExecutor(ctx)
	if err != nil {
		return err
	}
	n, err := exec.Count(ctx, &JobExecutionEntity{}, map[string]interface{}{"id": stepExecution.JobExecutionID})
	if err != nil {
		return exception.NewBatchError(module, "failed to check owning JobExecution", err, false, true)
	}
	if n == 0 {
		return repository.ErrJobExecutionNotFound
	}
	entity := fromDomainStepExecution(stepExecution)
	if _, err := exec.ExecuteUpdate(ctx, entity, tx.OperationCreate, entity.TableName(), nil); err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("failed to save StepExecution %s", stepExecution.ID), err, false, true)
	}
	return nil
}

// UpdateStepExecution writes the step if the stored version still equals stepExecution.Version.
func (r *SQLJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	exec, err := r.getExecutor(ctx)
	if err != nil {
		return err
	}
	original := stepExecution.Version
	entity := fromDomainStepExecution(stepExecution)
	entity.Version = original + 1

	rows, err := exec.ExecuteUpdate(ctx, entity, tx.OperationUpdate, entity.TableName(), map[string]interface{}{"version": original})
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("failed to update StepExecution %s", stepExecution.ID), err, false, true)
	}
	if rows == 0 {
		return r.lockFailure(ctx, exec, &StepExecutionEntity{}, stepExecution.ID, original, repository.ErrStepExecutionNotFound)
	}
	stepExecution.Version = entity.Version
	return nil
}

func (r *SQLJobRepository) FindStepExecutionByID(ctx context.Context, executionID string) (*model.StepExecution, error) {
	exec, err := r.getExecutor(ctx)
	if err != nil {
		return nil, err
	}
	var entities []StepExecutionEntity
	if err := exec.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"id": executionID}, "", 1); err != nil {
		if isTableNotExist(err) {
			return nil, repository.ErrStepExecutionNotFound
		}
		return nil, exception.NewBatchError(module, fmt.Sprintf("failed to find StepExecution %s", executionID), err, false, true)
	}
	if len(entities) == 0 {
		return nil, repository.ErrStepExecutionNotFound
	}
	return toDomainStepExecution(&entities[0]), nil
}

func (r *SQLJobRepository) FindStepExecutionsByJobExecution(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error) {
	exec, err := r.getExecutor(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryStepExecutions(ctx, exec, jobExecutionID)
}

func (r *SQLJobRepository) queryStepExecutions(ctx context.Context, exec database.DBExecutor, jobExecutionID string) ([]*model.StepExecution, error) {
	var entities []StepExecutionEntity
	if err := exec.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"job_execution_id": jobExecutionID}, "start_time asc", 0); err != nil {
		if isTableNotExist(err) {
			return []*model.StepExecution{}, nil
		}
		return nil, exception.NewBatchError(module, "failed to query StepExecutions", err, false, true)
	}
	steps := make([]*model.StepExecution, 0, len(entities))
	for i := range entities {
		steps = append(steps, toDomainStepExecution(&entities[i]))
	}
	return steps, nil
}

func (r *SQLJobRepository) FindLastStepExecution(ctx context.Context, jobInstanceID, stepName string) (*model.StepExecution, error) {
	exec, err := r.getExecutor(ctx)
	if err != nil {
		return nil, err
	}
	var executionIDs []string
	if err := exec.Pluck(ctx, &JobExecutionEntity{}, "id", &executionIDs, map[string]interface{}{"job_instance_id": jobInstanceID}); err != nil {
		if isTableNotExist(err) {
			return nil, repository.ErrStepExecutionNotFound
		}
		return nil, exception.NewBatchError(module, "failed to list JobExecutions", err, false, true)
	}
	if len(executionIDs) == 0 {
		return nil, repository.ErrStepExecutionNotFound
	}

	var entities []StepExecutionEntity
	query := map[string]interface{}{"job_execution_id": executionIDs, "step_name": stepName}
	if err := exec.ExecuteQueryAdvanced(ctx, &entities, query, "start_time desc", 1); err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("failed to find last StepExecution of %s", stepName), err, false, true)
	}
	if len(entities) == 0 {
		return nil, repository.ErrStepExecutionNotFound
	}
	return toDomainStepExecution(&entities[0]), nil
}
