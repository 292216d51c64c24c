// Package repository defines the run repository: the durable record of job instances, job executions
// and step executions used to reject duplicate runs and to resume failed ones.
package repository

// JobRepository combines instance, job execution and step execution persistence.
type JobRepository interface {
	JobInstance
	JobExecution
	StepExecution

	// Close releases resources (such as database connections) used by the repository.
	Close() error
}
