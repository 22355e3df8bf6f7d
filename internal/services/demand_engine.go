package services

import (
	"log"
	"sort"
	"time"

	"clinicflow/internal/models"
	"clinicflow/internal/store"

	"github.com/coder/quartz"
)

const (
	// Multipliers applied to the month's mean when recalculating
	// thresholds. Light mode runs when fewer than three cells exist.
	recalcLightFactor = 1.1
	recalcFullFactor  = 1.2

	// Fraction of the busiest cells that stay eligible for high-demand
	// after a peak-cap pass.
	peakMaxFraction = 0.5

	// Available slots starting within this window get their high-demand
	// gate lifted so late bookings can fill them.
	lateReleaseWindow = 2 * time.Hour
)

// DemandEngine learns hourly booking pressure per doctor and answers the
// admission gate's high-demand question.
type DemandEngine struct {
	store *store.Store
	clock quartz.Clock
	loc   *time.Location
}

func NewDemandEngine(st *store.Store, clock quartz.Clock, loc *time.Location) *DemandEngine {
	return &DemandEngine{store: st, clock: clock, loc: loc}
}

func (e *DemandEngine) now() time.Time {
	return e.clock.Now().In(e.loc)
}

// cellCoords projects an appointment instant onto the demand key space.
func (e *DemandEngine) cellCoords(date time.Time) (year, month, dow, hour int) {
	local := date.In(e.loc)
	return local.Year(), int(local.Month()), int(local.Weekday()), local.Hour()
}

// EnsureMonth lazily initializes a doctor's month: when no cells exist yet,
// last year's same-month cells are carried forward with totals reset so the
// learned shape of demand survives year boundaries. Idempotent — a month
// with any cell at all is left untouched.
func (e *DemandEngine) EnsureMonth(doctor string, date time.Time) error {
	year, month, _, _ := e.cellCoords(date)

	exists, err := e.store.HasCellsForMonth(doctor, year, month)
	if err != nil || exists {
		return err
	}

	prev, err := e.store.ListDemandCellsForMonth(doctor, year-1, month)
	if err != nil {
		return err
	}
	now := e.now()
	for _, old := range prev {
		key := store.DemandKey{
			DoctorName: doctor,
			Year:       year,
			Month:      month,
			DayOfWeek:  old.DayOfWeek,
			Hour:       old.Hour,
		}
		threshold := old.HighDemandThreshold
		if err := e.store.UpsertDemandCell(key, now, func(cell *models.DemandCell) {
			cell.TotalAppointments = 0
			cell.HighDemandThreshold = threshold
			cell.Source = models.SourceAuto
		}); err != nil {
			return err
		}
	}
	return nil
}

// RecordAttendance folds one attended appointment into its demand cell.
func (e *DemandEngine) RecordAttendance(appt *models.Appointment) error {
	if err := e.EnsureMonth(appt.DoctorName, appt.Date); err != nil {
		return err
	}
	year, month, dow, hour := e.cellCoords(appt.Date)
	key := store.DemandKey{
		DoctorName: appt.DoctorName,
		Year:       year,
		Month:      month,
		DayOfWeek:  &dow,
		Hour:       hour,
	}
	return e.store.UpsertDemandCell(key, e.now(), func(cell *models.DemandCell) {
		cell.TotalAppointments++
	})
}

// Effective resolves the demand cell governing a slot, in precedence order:
// this year's learned cell, last year's learned cell, this year's admin
// baseline, last year's admin baseline. Nil when no cell is found.
func (e *DemandEngine) Effective(doctor string, date time.Time) (*models.DemandCell, error) {
	year, month, dow, hour := e.cellCoords(date)

	keys := []store.DemandKey{
		{DoctorName: doctor, Year: year, Month: month, DayOfWeek: &dow, Hour: hour},
		{DoctorName: doctor, Year: year - 1, Month: month, DayOfWeek: &dow, Hour: hour},
		{DoctorName: doctor, Year: year, Month: month, Hour: hour},
		{DoctorName: doctor, Year: year - 1, Month: month, Hour: hour},
	}
	for _, key := range keys {
		cell, err := e.store.FindDemandCell(key)
		if err != nil {
			return nil, err
		}
		if cell != nil {
			return cell, nil
		}
	}
	return nil, nil
}

// IsHighDemand reports whether the slot's effective cell gates AtRisk
// bookings.
func (e *DemandEngine) IsHighDemand(doctor string, date time.Time) (bool, error) {
	cell, err := e.Effective(doctor, date)
	if err != nil {
		return false, err
	}
	return cell != nil && cell.HighDemand(), nil
}

// learnedCells filters a month down to the rows the engine owns. Admin
// baseline rows gate unconditionally, so recalculation leaves them alone.
func (e *DemandEngine) learnedCells(doctor string, year, month int) ([]models.DemandCell, error) {
	cells, err := e.store.ListDemandCellsForMonth(doctor, year, month)
	if err != nil {
		return nil, err
	}
	learned := cells[:0]
	for _, cell := range cells {
		if cell.Source == models.SourceAuto {
			learned = append(learned, cell)
		}
	}
	return learned, nil
}

// Recalc recomputes the month's thresholds from its observed totals. With
// fewer than three cells it runs in light mode (mean * 1.1); otherwise the
// threshold is the greater of mean * 1.2 and the total at the top-quartile
// rank. Every learned cell in the month gets the same threshold.
func (e *DemandEngine) Recalc(doctor string, year, month int) error {
	cells, err := e.learnedCells(doctor, year, month)
	if err != nil || len(cells) == 0 {
		return err
	}

	sum := 0
	for _, cell := range cells {
		sum += cell.TotalAppointments
	}
	avg := float64(sum) / float64(len(cells))

	var threshold float64
	if len(cells) < 3 {
		threshold = avg * recalcLightFactor
	} else {
		sorted := make([]int, len(cells))
		for i, cell := range cells {
			sorted[i] = cell.TotalAppointments
		}
		sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
		boundary := float64(sorted[int(float64(len(sorted))*0.25)])
		threshold = avg * recalcFullFactor
		if boundary > threshold {
			threshold = boundary
		}
	}

	now := e.now()
	for i := range cells {
		cells[i].HighDemandThreshold = models.Threshold(threshold)
		cells[i].LastUpdated = now
		if err := e.store.SaveDemandCell(&cells[i]); err != nil {
			return err
		}
	}
	return nil
}

// CapPeaks limits how much of a month can be high-demand: only the busiest
// half of the learned cells stay eligible, the rest are marked never-high.
func (e *DemandEngine) CapPeaks(doctor string, year, month int) error {
	cells, err := e.learnedCells(doctor, year, month)
	if err != nil || len(cells) == 0 {
		return err
	}

	sort.Slice(cells, func(i, j int) bool {
		return cells[i].TotalAppointments > cells[j].TotalAppointments
	})
	keep := int(float64(len(cells)) * peakMaxFraction)

	now := e.now()
	for i := keep; i < len(cells); i++ {
		cells[i].HighDemandThreshold = models.ThresholdNever()
		cells[i].LastUpdated = now
		if err := e.store.SaveDemandCell(&cells[i]); err != nil {
			return err
		}
	}
	return nil
}

// SetBaseline replaces a doctor's admin baseline for the month: one
// always-gating row per listed hour, applying to every weekday.
func (e *DemandEngine) SetBaseline(doctor string, year, month int, hours []int, threshold float64) error {
	return e.store.ReplaceAdminBaseline(doctor, year, month, hours, models.Threshold(threshold), e.now())
}

// MonthEndLearn reconciles a doctor's month against the authoritative
// appointment records: each (weekday, hour) cell's total is raised to the
// number of attended appointments observed there; a higher total is left as
// it is. Replaying the pass is a no-op.
func (e *DemandEngine) MonthEndLearn(doctor string, year, month int) error {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, e.loc)
	to := from.AddDate(0, 1, 0)
	appts, err := e.store.ListAttendedInMonth(doctor, from, to)
	if err != nil {
		return err
	}

	type slot struct{ dow, hour int }
	counts := make(map[slot]int)
	for _, appt := range appts {
		_, _, dow, hour := e.cellCoords(appt.Date)
		counts[slot{dow, hour}]++
	}

	now := e.now()
	for sl, total := range counts {
		dow := sl.dow
		key := store.DemandKey{
			DoctorName: doctor,
			Year:       year,
			Month:      month,
			DayOfWeek:  &dow,
			Hour:       sl.hour,
		}
		total := total
		if err := e.store.UpsertDemandCell(key, now, func(cell *models.DemandCell) {
			if total > cell.TotalAppointments {
				cell.TotalAppointments = total
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

// LateRelease sets the effective cell's threshold to never-high for any
// still-available, high-demand slot starting within the next two hours. A
// learned cell then admits every behavior class; an admin baseline cell
// keeps gating, since admin rows are high-demand regardless of threshold.
func (e *DemandEngine) LateRelease() error {
	now := e.now()
	slots, err := e.store.ListAvailableBetween(now, now.Add(lateReleaseWindow))
	if err != nil {
		return err
	}

	for _, appt := range slots {
		cell, err := e.Effective(appt.DoctorName, appt.Date)
		if err != nil {
			return err
		}
		if cell == nil || !cell.HighDemand() {
			continue
		}
		cell.HighDemandThreshold = models.ThresholdNever()
		cell.LastUpdated = now
		if err := e.store.SaveDemandCell(cell); err != nil {
			return err
		}
		log.Printf("Late release: %s %s hour %d opened for all classes",
			appt.DoctorName, appt.Date.In(e.loc).Format("2006-01-02"), cell.Hour)
	}
	return nil
}
