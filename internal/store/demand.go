package store

import (
	"errors"
	"fmt"
	"time"

	"clinicflow/internal/clinicerr"
	"clinicflow/internal/models"

	"gorm.io/gorm"
)

// DemandKey identifies one demand cell. A nil DayOfWeek addresses the
// admin baseline row for that hour.
type DemandKey struct {
	DoctorName string
	Year       int
	Month      int
	DayOfWeek  *int
	Hour       int
}

func demandWhere(tx *gorm.DB, key DemandKey) *gorm.DB {
	tx = tx.Where("doctor_name = ? AND year = ? AND month = ? AND hour = ?",
		key.DoctorName, key.Year, key.Month, key.Hour)
	if key.DayOfWeek == nil {
		return tx.Where("day_of_week IS NULL")
	}
	return tx.Where("day_of_week = ?", *key.DayOfWeek)
}

// FindDemandCell loads one cell, or nil when the key has never been seen.
func (s *Store) FindDemandCell(key DemandKey) (*models.DemandCell, error) {
	var cell models.DemandCell
	err := demandWhere(s.db, key).First(&cell).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return &cell, nil
}

// UpsertDemandCell runs an atomic read-modify-write on one cell, creating
// it first when missing. The mutator sees the current row under a lock.
func (s *Store) UpsertDemandCell(key DemandKey, now time.Time, mutate func(cell *models.DemandCell)) error {
	return s.inTx(func(tx *gorm.DB) error {
		var cell models.DemandCell
		err := demandWhere(lockForUpdate(tx), key).First(&cell).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// A brand-new learned cell must not gate anyone: it only
			// starts gating once a recalc or baseline sets a threshold.
			cell = models.DemandCell{
				DoctorName:          key.DoctorName,
				Year:                key.Year,
				Month:               key.Month,
				DayOfWeek:           key.DayOfWeek,
				Hour:                key.Hour,
				HighDemandThreshold: models.ThresholdNever(),
				Source:              models.SourceAuto,
			}
		} else if err != nil {
			return fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
		}
		mutate(&cell)
		cell.LastUpdated = now
		if err := tx.Save(&cell).Error; err != nil {
			return fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
		}
		return nil
	})
}

// SaveDemandCell rewrites an already-loaded cell.
func (s *Store) SaveDemandCell(cell *models.DemandCell) error {
	if err := s.db.Save(cell).Error; err != nil {
		return fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return nil
}

// ListDemandCellsForMonth returns every cell for the doctor's month,
// baseline rows included.
func (s *Store) ListDemandCellsForMonth(doctor string, year, month int) ([]models.DemandCell, error) {
	var cells []models.DemandCell
	err := s.db.
		Where("doctor_name = ? AND year = ? AND month = ?", doctor, year, month).
		Order("hour").Find(&cells).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return cells, nil
}

// HasCellsForMonth reports whether the month has been initialized at all.
func (s *Store) HasCellsForMonth(doctor string, year, month int) (bool, error) {
	var count int64
	err := s.db.Model(&models.DemandCell{}).
		Where("doctor_name = ? AND year = ? AND month = ?", doctor, year, month).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return count > 0, nil
}

// ReplaceAdminBaseline deletes the month's admin rows and inserts one
// baseline row per hour.
func (s *Store) ReplaceAdminBaseline(doctor string, year, month int, hours []int, threshold models.Threshold, now time.Time) error {
	return s.inTx(func(tx *gorm.DB) error {
		err := tx.
			Where("doctor_name = ? AND year = ? AND month = ? AND source = ? AND day_of_week IS NULL",
				doctor, year, month, models.SourceAdmin).
			Delete(&models.DemandCell{}).Error
		if err != nil {
			return fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
		}
		for _, hour := range hours {
			cell := models.DemandCell{
				DoctorName:          doctor,
				Year:                year,
				Month:               month,
				Hour:                hour,
				HighDemandThreshold: threshold,
				Source:              models.SourceAdmin,
				LastUpdated:         now,
			}
			if err := tx.Create(&cell).Error; err != nil {
				return fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
			}
		}
		return nil
	})
}
