package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Category represents a patient's behavior class, derived from attendance
// history once at least three visits have been resolved.
type Category string

const (
	CategoryGood     Category = "good"
	CategoryVeryGood Category = "very_good"
	CategoryAtRisk   Category = "at_risk"
)

// User represents a registered patient.
type User struct {
	ID            uint     `gorm:"primaryKey;autoIncrement" json:"-"`
	UserName      string   `gorm:"size:64;not null" json:"user_name"`
	UserNameLower string   `gorm:"size:64;uniqueIndex;not null" json:"-"`
	DisplayName   string   `gorm:"size:128" json:"display_name,omitempty"`
	Phone         string   `gorm:"size:32" json:"phone,omitempty"`
	Email         string   `gorm:"size:255" json:"email,omitempty"`
	NotifyChatID  int64    `gorm:"not null;default:0" json:"-"`
	AttendedCount int      `gorm:"not null;default:0" json:"attended_count"`
	MissedCount   int      `gorm:"not null;default:0" json:"missed_count"`
	// AttendanceRate is 100*attended/(attended+missed), 0 when no history.
	AttendanceRate float64   `gorm:"not null;default:0" json:"attendance_rate"`
	Score          int       `gorm:"not null;default:0" json:"score"`
	Category       Category  `gorm:"size:16;not null;default:good" json:"category"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}

// TotalVisits is the number of resolved attendance events.
func (u *User) TotalVisits() int {
	return u.AttendedCount + u.MissedCount
}

// NotifyName is the name substituted into message templates.
func (u *User) NotifyName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.UserName
}

// Linked reports whether the user has a messenger channel attached.
func (u *User) Linked() bool {
	return u.NotifyChatID != 0
}

// BeforeSave keeps the normalized lookup key and the derived rate consistent
// with the counters on every write.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.UserNameLower = strings.ToLower(u.UserName)
	if total := u.TotalVisits(); total > 0 {
		u.AttendanceRate = 100 * float64(u.AttendedCount) / float64(total)
	} else {
		u.AttendanceRate = 0
	}
	return nil
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "clinic_user"
}

// RegisterUserRequest represents the data needed to register a patient
type RegisterUserRequest struct {
	UserName    string `json:"userName" binding:"required,min=2,max=64"`
	DisplayName string `json:"displayName"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
}

// SetCategoryRequest is the admin override for a user's behavior class.
// Accepts the display spellings used by the admin UI.
type SetCategoryRequest struct {
	UserName string `json:"userName" binding:"required"`
	Category string `json:"category" binding:"required"`
}

// ParseCategory maps admin-facing spellings onto the stored Category.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "good":
		return CategoryGood, true
	case "very good", "very_good", "verygood":
		return CategoryVeryGood, true
	case "at-risk", "at_risk", "atrisk":
		return CategoryAtRisk, true
	}
	return "", false
}

// AdminUserView adds the counters and link state that the public view hides.
type AdminUserView struct {
	User
	TotalVisits int  `json:"total_visits"`
	Linked      bool `json:"messenger_linked"`
}
