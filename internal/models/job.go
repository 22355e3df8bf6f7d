package models

import (
	"time"

	"gorm.io/datatypes"
)

// JobKind names the handler a scheduler job dispatches to.
type JobKind string

const (
	JobReminderFire      JobKind = "reminder_fire"
	JobAutoMissCheck     JobKind = "auto_miss_check"
	JobMonthEndLearn     JobKind = "month_end_learn"
	JobMonthlyRecalc     JobKind = "monthly_recalc"
	JobHourlyMaintenance JobKind = "hourly_maintenance"
)

// JobStatus is the persisted execution state of a scheduler job.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
	JobSkipped JobStatus = "skipped"
)

// SchedulerJob is a durable one-shot timer. (Kind, Key) is unique; arming
// the same pair again replaces the earlier job.
type SchedulerJob struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind      JobKind        `gorm:"size:32;not null;uniqueIndex:idx_job_kind_key" json:"kind"`
	Key       string         `gorm:"size:128;not null;uniqueIndex:idx_job_kind_key" json:"key"`
	FireAt    time.Time      `gorm:"not null;index" json:"fire_at"`
	Payload   datatypes.JSON `gorm:"type:json" json:"payload,omitempty"`
	Status    JobStatus      `gorm:"size:16;not null;default:pending;index" json:"status"`
	Attempts  int            `gorm:"not null;default:0" json:"attempts"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

// TableName specifies the table name for the SchedulerJob model
func (SchedulerJob) TableName() string {
	return "scheduler_job"
}
