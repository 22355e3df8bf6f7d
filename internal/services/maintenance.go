package services

import (
	"context"
	"log"
	"time"

	"clinicflow/internal/models"
	"clinicflow/internal/store"

	"github.com/coder/quartz"
	"github.com/robfig/cron/v3"
)

// Cron expressions for the periodic passes, evaluated in the clinic's
// timezone.
const (
	monthEndLearnSpec = "59 23 28-31 * *"
	monthlyRecalcSpec = "0 2 1 * *"
	hourlySpec        = "0 * * * *"
)

// Maintenance owns the periodic work: month-end demand learning, monthly
// threshold recalculation with peak capping, and the hourly cleanup/late-
// release pass. The cron entries only arm one-shot scheduler jobs, so the
// actual passes run on the durable execution path. A pass that fails as a
// whole is marked failed in the job table; a failure for a single doctor is
// logged and the pass goes on with the others.
type Maintenance struct {
	store     *store.Store
	demand    *DemandEngine
	scheduler *Scheduler
	clock     quartz.Clock
	loc       *time.Location
	cron      *cron.Cron
}

func NewMaintenance(st *store.Store, demand *DemandEngine, scheduler *Scheduler, clock quartz.Clock, loc *time.Location) *Maintenance {
	m := &Maintenance{
		store:     st,
		demand:    demand,
		scheduler: scheduler,
		clock:     clock,
		loc:       loc,
	}
	scheduler.Register(models.JobMonthEndLearn, m.HandleMonthEndLearn)
	scheduler.Register(models.JobMonthlyRecalc, m.HandleMonthlyRecalc)
	scheduler.Register(models.JobHourlyMaintenance, m.HandleHourlyMaintenance)
	return m
}

// Start installs the cron entries and begins ticking. Stop with Stop().
func (m *Maintenance) Start() error {
	m.cron = cron.New(cron.WithLocation(m.loc))

	arm := func(kind models.JobKind) func() {
		return func() {
			now := m.clock.Now().In(m.loc)
			key := now.Format("2006-01-02T15:04")
			if err := m.scheduler.ArmAt(kind, key, now, nil); err != nil {
				log.Printf("Error: arming %s: %v", kind, err)
			}
		}
	}

	if _, err := m.cron.AddFunc(monthEndLearnSpec, arm(models.JobMonthEndLearn)); err != nil {
		return err
	}
	if _, err := m.cron.AddFunc(monthlyRecalcSpec, arm(models.JobMonthlyRecalc)); err != nil {
		return err
	}
	if _, err := m.cron.AddFunc(hourlySpec, arm(models.JobHourlyMaintenance)); err != nil {
		return err
	}

	m.cron.Start()
	log.Println("Maintenance cron started")
	return nil
}

// Stop halts the cron ticker; in-flight jobs drain through the scheduler.
func (m *Maintenance) Stop() {
	if m.cron != nil {
		m.cron.Stop()
	}
}

// HandleMonthEndLearn runs the month-end learning pass. The cron spec fires
// on days 28-31, so the handler checks it is actually the last day of the
// month before reconciling.
func (m *Maintenance) HandleMonthEndLearn(ctx context.Context, _ *models.SchedulerJob) error {
	now := m.clock.Now().In(m.loc)
	if now.AddDate(0, 0, 1).Month() == now.Month() {
		return nil
	}

	doctors, err := m.store.DistinctDoctors()
	if err != nil {
		return err
	}
	for _, doctor := range doctors {
		if err := m.demand.MonthEndLearn(doctor, now.Year(), int(now.Month())); err != nil {
			log.Printf("Error: month-end learn for %s: %v", doctor, err)
		}
	}
	return nil
}

// HandleMonthlyRecalc recalculates thresholds and caps peaks for every
// doctor, over the previous calendar month.
func (m *Maintenance) HandleMonthlyRecalc(ctx context.Context, _ *models.SchedulerJob) error {
	now := m.clock.Now().In(m.loc)
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, m.loc)
	prev := firstOfMonth.AddDate(0, 0, -1)
	year, month := prev.Year(), int(prev.Month())

	doctors, err := m.store.DistinctDoctors()
	if err != nil {
		return err
	}
	for _, doctor := range doctors {
		if err := m.demand.Recalc(doctor, year, month); err != nil {
			log.Printf("Error: recalc for %s %d-%02d: %v", doctor, year, month, err)
			continue
		}
		if err := m.demand.CapPeaks(doctor, year, month); err != nil {
			log.Printf("Error: peak cap for %s %d-%02d: %v", doctor, year, month, err)
		}
	}
	return nil
}

// HandleHourlyMaintenance purges expired available slots and late-releases
// high-demand cells for slots starting soon.
func (m *Maintenance) HandleHourlyMaintenance(ctx context.Context, _ *models.SchedulerJob) error {
	now := m.clock.Now().In(m.loc)
	purged, err := m.store.DeleteExpiredAvailable(now)
	if err != nil {
		return err
	}
	if purged > 0 {
		log.Printf("Purged %d expired available slot(s)", purged)
	}
	return m.demand.LateRelease()
}
