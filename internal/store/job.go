package store

import (
	"errors"
	"fmt"
	"time"

	"clinicflow/internal/clinicerr"
	"clinicflow/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ArmJob persists a one-shot scheduler job. Arming an existing (kind, key)
// pair replaces it: the fire time and payload are overwritten and the job
// goes back to pending.
func (s *Store) ArmJob(kind models.JobKind, key string, fireAt time.Time, payload datatypes.JSON) (*models.SchedulerJob, error) {
	job := models.SchedulerJob{
		Kind:    kind,
		Key:     key,
		FireAt:  fireAt,
		Payload: payload,
		Status:  models.JobPending,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "kind"}, {Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"fire_at":    fireAt,
			"payload":    payload,
			"status":     models.JobPending,
			"attempts":   0,
			"updated_at": time.Now(),
		}),
	}).Create(&job).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	// The conflict path doesn't report the surviving row's id; reload.
	var saved models.SchedulerJob
	if err := s.db.Where("kind = ? AND key = ?", kind, key).First(&saved).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return &saved, nil
}

// FindJob loads one job by id.
func (s *Store) FindJob(id uint) (*models.SchedulerJob, error) {
	var job models.SchedulerJob
	err := s.db.Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: job %d", clinicerr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return &job, nil
}

// ClaimJob flips a job from pending to running. The compare-and-set keeps
// execution at-most-once: a cancelled or already-claimed job reports false.
func (s *Store) ClaimJob(id uint) (bool, error) {
	res := s.db.Model(&models.SchedulerJob{}).
		Where("id = ? AND status = ?", id, models.JobPending).
		Updates(map[string]interface{}{
			"status":     models.JobRunning,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("%w: %v", clinicerr.ErrStore, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// FinishJob records the terminal outcome of an executed job.
func (s *Store) FinishJob(id uint, status models.JobStatus) error {
	err := s.db.Model(&models.SchedulerJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()}).Error
	if err != nil {
		return fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return nil
}

// CancelJob removes a pending job. Best-effort: a job already claimed by a
// worker is left alone and reports false.
func (s *Store) CancelJob(kind models.JobKind, key string) (bool, error) {
	res := s.db.Where("kind = ? AND key = ? AND status = ?", kind, key, models.JobPending).
		Delete(&models.SchedulerJob{})
	if res.Error != nil {
		return false, fmt.Errorf("%w: %v", clinicerr.ErrStore, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// CancelJobsByKeyPrefix removes every pending job of a kind whose key
// starts with the prefix. Used when an appointment is deleted.
func (s *Store) CancelJobsByKeyPrefix(kind models.JobKind, prefix string) (int64, error) {
	res := s.db.Where("kind = ? AND key LIKE ? AND status = ?", kind, prefix+"%", models.JobPending).
		Delete(&models.SchedulerJob{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", clinicerr.ErrStore, res.Error)
	}
	return res.RowsAffected, nil
}

// PendingJobs returns every job still waiting to fire, soonest first.
func (s *Store) PendingJobs() ([]models.SchedulerJob, error) {
	var jobs []models.SchedulerJob
	err := s.db.Where("status = ?", models.JobPending).Order("fire_at").Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return jobs, nil
}

// MarkJobSkipped records that a stale job was dropped at boot.
func (s *Store) MarkJobSkipped(id uint) error {
	return s.FinishJob(id, models.JobSkipped)
}
