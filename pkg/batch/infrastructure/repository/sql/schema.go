package sql

import (
	"time"

	"gorm.io/gorm"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// JobInstanceEntity is a schema model used for persistence.
// (job_name, parameters_hash) is unique so that two launchers racing on the same key create one row.
type JobInstanceEntity struct {
	ID             string              `gorm:"primaryKey;size:36"`
	JobName        string              `gorm:"size:100;not null;uniqueIndex:uq_batch_job_instance_key,priority:1"`
	ParametersHash string              `gorm:"size:64;not null;uniqueIndex:uq_batch_job_instance_key,priority:2"`
	Parameters     model.JobParameters `gorm:"type:text"`
	CreateTime     time.Time           `gorm:"not null"`
	Version        int                 `gorm:"not null;default:0"`
}

func (JobInstanceEntity) TableName() string {
	return "batch_job_instance"
}

// JobExecutionEntity is a schema model used for persistence.
type JobExecutionEntity struct {
	ID               string                 `gorm:"primaryKey;size:36"`
	JobInstanceID    string                 `gorm:"size:36;not null;index"`
	JobName          string                 `gorm:"size:100;not null;index"`
	Parameters       model.JobParameters    `gorm:"type:text"`
	Status           model.JobStatus        `gorm:"size:20;not null"`
	ExitStatus       model.ExitStatus       `gorm:"size:20;not null"`
	CreateTime       time.Time              `gorm:"not null"`
	StartTime        *time.Time
	EndTime          *time.Time
	LastUpdated      time.Time
	Failures         model.FailureList      `gorm:"type:text"`
	ExecutionContext model.ExecutionContext `gorm:"type:text"`
	Version          int                    `gorm:"not null;default:0"`
}

func (JobExecutionEntity) TableName() string {
	return "batch_job_execution"
}

// StepExecutionEntity is a schema model used for persistence.
type StepExecutionEntity struct {
	ID               string                 `gorm:"primaryKey;size:36"`
	JobExecutionID   string                 `gorm:"size:36;not null;index"`
	StepName         string                 `gorm:"size:100;not null"`
	Status           model.JobStatus        `gorm:"size:20;not null"`
	ExitStatus       model.ExitStatus       `gorm:"size:20;not null"`
	ReadCount        int
	WriteCount       int
	FilterCount      int
	ReadSkipCount    int
	ProcessSkipCount int
	CommitCount      int
	RollbackCount    int
	RetryCount       int
	StartTime        time.Time
	EndTime          *time.Time
	LastUpdated      time.Time
	Failures         model.FailureList      `gorm:"type:text"`
	ExecutionContext model.ExecutionContext `gorm:"type:text"`
	Version          int                    `gorm:"not null;default:0"`
}

func (StepExecutionEntity) TableName() string {
	return "batch_step_execution"
}

// AutoMigrate creates or updates the metadata tables on db.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&JobInstanceEntity{}, &JobExecutionEntity{}, &StepExecutionEntity{})
}
