package store

import (
	"errors"
	"fmt"
	"time"

	"clinicflow/internal/clinicerr"
	"clinicflow/internal/models"

	"gorm.io/gorm"
)

// CreateAppointment persists a new slot.
func (s *Store) CreateAppointment(appt *models.Appointment) error {
	if err := s.db.Create(appt).Error; err != nil {
		return fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return nil
}

// CreateAppointments persists a batch of generated slots in one transaction.
func (s *Store) CreateAppointments(appts []models.Appointment) error {
	if len(appts) == 0 {
		return nil
	}
	if err := s.db.Create(&appts).Error; err != nil {
		return fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return nil
}

// FindAppointment loads one appointment by id.
func (s *Store) FindAppointment(id string) (*models.Appointment, error) {
	var appt models.Appointment
	err := s.db.Where("id = ?", id).First(&appt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: appointment %s", clinicerr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return &appt, nil
}

// ListAppointments returns appointments, optionally filtered by status,
// ordered by start time.
func (s *Store) ListAppointments(status *models.AppointmentStatus) ([]models.Appointment, error) {
	query := s.db.Order("date")
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var appts []models.Appointment
	if err := query.Find(&appts).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return appts, nil
}

// ListAvailableBetween returns available slots starting inside [from, to).
func (s *Store) ListAvailableBetween(from, to time.Time) ([]models.Appointment, error) {
	var appts []models.Appointment
	err := s.db.
		Where("status = ? AND date >= ? AND date < ?", models.StatusAvailable, from, to).
		Order("date").Find(&appts).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return appts, nil
}

// ListAttendedInMonth returns attended appointments for one doctor whose
// start time falls inside the given month window.
func (s *Store) ListAttendedInMonth(doctor string, from, to time.Time) ([]models.Appointment, error) {
	var appts []models.Appointment
	err := s.db.
		Where("doctor_name = ? AND status = ? AND date >= ? AND date < ?",
			doctor, models.StatusAttended, from, to).
		Find(&appts).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return appts, nil
}

// TransitionStatus performs a compare-and-set on the appointment's status.
// It reports false when the appointment was no longer in the expected state,
// which is how concurrent bookings and double terminal transitions lose.
func (s *Store) TransitionStatus(id string, from, to models.AppointmentStatus, userName string) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	if userName != "" {
		updates["user_name"] = userName
	}
	res := s.db.Model(&models.Appointment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("%w: %v", clinicerr.ErrStore, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// UpdateReminders rewrites the appointment's reminder list under a row lock
// so concurrent reminder firings don't clobber each other's updates.
func (s *Store) UpdateReminders(id string, mutate func(models.ReminderList) models.ReminderList) error {
	return s.inTx(func(tx *gorm.DB) error {
		var appt models.Appointment
		err := lockForUpdate(tx).Where("id = ?", id).First(&appt).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: appointment %s", clinicerr.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
		}
		appt.Reminders = mutate(appt.Reminders)
		if err := tx.Model(&appt).Update("reminders", appt.Reminders).Error; err != nil {
			return fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
		}
		return nil
	})
}

// MarkReminderSent flips the reminder row at sendTime from scheduled to
// sent, recording the rendered text. A reminder transitions at most once.
func (s *Store) MarkReminderSent(id string, sendTime time.Time, text string) error {
	return s.UpdateReminders(id, func(list models.ReminderList) models.ReminderList {
		for i := range list {
			if list[i].Status == models.ReminderScheduled && list[i].SendTime.Equal(sendTime) {
				list[i].Status = models.ReminderSent
				list[i].Text = text
				break
			}
		}
		return list
	})
}

// DeleteAppointment removes a slot. Returns ErrNotFound when nothing
// matched.
func (s *Store) DeleteAppointment(id string) error {
	res := s.db.Where("id = ?", id).Delete(&models.Appointment{})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", clinicerr.ErrStore, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: appointment %s", clinicerr.ErrNotFound, id)
	}
	return nil
}

// DeleteExpiredAvailable purges available slots that start before the
// cutoff. Returns how many were removed.
func (s *Store) DeleteExpiredAvailable(before time.Time) (int64, error) {
	res := s.db.Where("status = ? AND date < ?", models.StatusAvailable, before).
		Delete(&models.Appointment{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", clinicerr.ErrStore, res.Error)
	}
	return res.RowsAffected, nil
}

// DistinctDoctors lists every doctor that has at least one appointment.
func (s *Store) DistinctDoctors() ([]string, error) {
	var doctors []string
	err := s.db.Model(&models.Appointment{}).
		Distinct("doctor_name").Order("doctor_name").Pluck("doctor_name", &doctors).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return doctors, nil
}

func (s *Store) inTx(fn func(tx *gorm.DB) error) error {
	return s.db.Transaction(fn)
}
