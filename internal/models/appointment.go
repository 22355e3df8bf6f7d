package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AppointmentStatus is the lifecycle state of a slot.
type AppointmentStatus string

const (
	StatusAvailable AppointmentStatus = "available"
	StatusBooked    AppointmentStatus = "booked"
	StatusAttended  AppointmentStatus = "attended"
	StatusMissed    AppointmentStatus = "missed"
)

// Terminal reports whether the status can never change again.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusAttended || s == StatusMissed
}

// ReminderStatus tracks a single planned nudge.
type ReminderStatus string

const (
	ReminderScheduled ReminderStatus = "scheduled"
	ReminderSent      ReminderStatus = "sent"
)

// Reminder is one planned or delivered nudge for a booked appointment.
// Text keeps the rendered message so template uniqueness can be enforced
// across the appointment's lifetime.
type Reminder struct {
	MessageCategory MessageCategory `json:"message_category"`
	SendTime        time.Time       `json:"send_time"`
	Status          ReminderStatus  `json:"status"`
	Text            string          `json:"text,omitempty"`
}

// ReminderList is stored as a JSON column on the appointment row.
type ReminderList []Reminder

func (r ReminderList) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *ReminderList) Scan(value interface{}) error {
	if value == nil {
		*r = ReminderList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("unsupported type for ReminderList: %T", value)
	}
}

// UsedTexts returns the message texts already rendered for this appointment.
func (r ReminderList) UsedTexts() map[string]bool {
	used := make(map[string]bool, len(r))
	for _, rem := range r {
		if rem.Text != "" {
			used[rem.Text] = true
		}
	}
	return used
}

// Appointment represents a clinic slot and, once booked, its reminder plan.
type Appointment struct {
	ID         string            `gorm:"primaryKey;size:36" json:"id"`
	DoctorName string            `gorm:"size:128;not null;index" json:"doctor_name"`
	Date       time.Time         `gorm:"not null;index" json:"date"`
	Status     AppointmentStatus `gorm:"size:16;not null;default:available;index" json:"status"`
	UserName   string            `gorm:"size:64" json:"user_name,omitempty"`
	Reminders  ReminderList      `gorm:"type:json" json:"reminders"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName specifies the table name for the Appointment model
func (Appointment) TableName() string {
	return "appointment"
}

// AddAppointmentsRequest creates one slot, one slot per day, or a grid of
// slots depending on which optional fields are present.
type AddAppointmentsRequest struct {
	DoctorName      string `json:"doctorName" binding:"required"`
	StartDate       string `json:"startDate" binding:"required"` // YYYY-MM-DD
	EndDate         string `json:"endDate"`
	StartHour       int    `json:"startHour" binding:"min=0,max=23"`
	StartMinute     int    `json:"startMinute" binding:"min=0,max=59"`
	EndHour         *int   `json:"endHour"`
	EndMinute       int    `json:"endMinute" binding:"min=0,max=59"`
	IntervalMinutes int    `json:"intervalMinutes"`
}

// BookAppointmentRequest books a slot for a registered user.
type BookAppointmentRequest struct {
	UserName string `json:"userName" binding:"required"`
	Phone    string `json:"phone"`
}

// SetStatusRequest resolves a booked appointment.
type SetStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=attended missed"`
}
