package models

import (
	"encoding/json"
	"math"
	"time"
)

// DemandSource records who created a demand cell.
type DemandSource string

const (
	SourceAdmin DemandSource = "admin"
	SourceAuto  DemandSource = "auto"
)

// Threshold is a high-demand threshold. +Inf means "never high"; since
// encoding/json cannot represent infinities it marshals as the string
// "never".
type Threshold float64

// ThresholdNever marks a cell that can never become high-demand again.
func ThresholdNever() Threshold {
	return Threshold(math.Inf(1))
}

// Never reports whether the threshold is the +Inf sentinel.
func (t Threshold) Never() bool {
	return math.IsInf(float64(t), 1)
}

func (t Threshold) MarshalJSON() ([]byte, error) {
	if t.Never() {
		return json.Marshal("never")
	}
	return json.Marshal(float64(t))
}

func (t *Threshold) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*t = Threshold(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "never" {
		*t = ThresholdNever()
	}
	return nil
}

// DemandCell carries the learned attendance volume for one
// (doctor, year, month, day-of-week, hour) slot. An admin baseline row has
// DayOfWeek nil and applies to every weekday at that hour.
type DemandCell struct {
	ID                  uint         `gorm:"primaryKey;autoIncrement" json:"-"`
	DoctorName          string       `gorm:"size:128;not null;uniqueIndex:idx_demand_key" json:"doctor_name"`
	Year                int          `gorm:"not null;uniqueIndex:idx_demand_key" json:"year"`
	Month               int          `gorm:"not null;uniqueIndex:idx_demand_key" json:"month"`
	DayOfWeek           *int         `gorm:"uniqueIndex:idx_demand_key" json:"day_of_week,omitempty"`
	Hour                int          `gorm:"not null;uniqueIndex:idx_demand_key" json:"hour"`
	TotalAppointments   int          `gorm:"not null;default:0" json:"total_appointments"`
	HighDemandThreshold Threshold    `gorm:"type:double precision;not null;default:0" json:"high_demand_threshold"`
	Source              DemandSource `gorm:"size:8;not null;default:auto" json:"source"`
	LastUpdated         time.Time    `gorm:"not null" json:"last_updated"`
}

// HighDemand applies the gate rule: admin rows always gate, learned rows
// gate once the observed volume reaches the threshold.
func (c *DemandCell) HighDemand() bool {
	if c.Source == SourceAdmin {
		return true
	}
	if c.HighDemandThreshold.Never() {
		return false
	}
	return float64(c.TotalAppointments) >= float64(c.HighDemandThreshold)
}

// TableName specifies the table name for the DemandCell model
func (DemandCell) TableName() string {
	return "demand_cell"
}

// SetupHighDemandRequest replaces a doctor's admin baseline for one month.
type SetupHighDemandRequest struct {
	DoctorName          string  `json:"doctorName" binding:"required"`
	Year                int     `json:"year" binding:"required,min=2000,max=2200"`
	Month               int     `json:"month" binding:"required,min=1,max=12"`
	Hours               []int   `json:"hours" binding:"required,min=1,dive,min=0,max=23"`
	HighDemandThreshold float64 `json:"highDemandThreshold"`
}

// DemandSummary is the month overview returned by the admin endpoint.
type DemandSummary struct {
	TotalSlots      int   `json:"totalSlots"`
	HighDemandHours []int `json:"highDemandHours"`
}
