package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"clinicflow/internal/clinicerr"
	"clinicflow/internal/models"
	"clinicflow/internal/store"

	"github.com/coder/quartz"
)

// AttendanceService resolves booked appointments to attended or missed and
// propagates the outcome to the user's behavior stats and the demand
// engine.
type AttendanceService struct {
	store         *store.Store
	demand        *DemandEngine
	notifier      Notifier
	clock         quartz.Clock
	loc           *time.Location
	publicBaseURL string
}

func NewAttendanceService(
	st *store.Store,
	demand *DemandEngine,
	notifier Notifier,
	clock quartz.Clock,
	loc *time.Location,
	publicBaseURL string,
) *AttendanceService {
	return &AttendanceService{
		store:         st,
		demand:        demand,
		notifier:      notifier,
		clock:         clock,
		loc:           loc,
		publicBaseURL: publicBaseURL,
	}
}

// SetStatus transitions a booked appointment to a terminal state. Calling
// it again with the same status is a no-op; a conflicting terminal status
// fails with ErrInvalidTransition. viaAutoMiss marks resolutions made by
// the no-show check, which additionally sends the follow-up survey.
func (a *AttendanceService) SetStatus(apptID string, status models.AppointmentStatus, viaAutoMiss bool) error {
	if status != models.StatusAttended && status != models.StatusMissed {
		return fmt.Errorf("%w: status must be attended or missed", clinicerr.ErrValidation)
	}

	appt, err := a.store.FindAppointment(apptID)
	if err != nil {
		return err
	}
	if appt.Status == status {
		return nil
	}
	if appt.Status != models.StatusBooked {
		return fmt.Errorf("%w: appointment %s is %s", clinicerr.ErrInvalidTransition, apptID, appt.Status)
	}

	// Two concurrent terminal transitions race on this compare-and-set;
	// the loser re-reads to distinguish "same outcome" from a conflict.
	won, err := a.store.TransitionStatus(apptID, models.StatusBooked, status, "")
	if err != nil {
		return err
	}
	if !won {
		current, err := a.store.FindAppointment(apptID)
		if err != nil {
			return err
		}
		if current.Status == status {
			return nil
		}
		return fmt.Errorf("%w: appointment %s is %s", clinicerr.ErrInvalidTransition, apptID, current.Status)
	}

	user, err := a.store.FindUserByName(appt.UserName)
	if err != nil {
		return err
	}
	ApplyAttendance(user, status == models.StatusAttended)
	if err := a.store.UpsertUser(user); err != nil {
		return err
	}

	if status == models.StatusAttended {
		if err := a.demand.RecordAttendance(appt); err != nil {
			return err
		}
	}

	if status == models.StatusMissed && viaAutoMiss {
		a.sendSurvey(user, appt)
	}
	return nil
}

// sendSurvey asks a no-show patient what went wrong.
func (a *AttendanceService) sendSurvey(user *models.User, appt *models.Appointment) {
	link := a.publicBaseURL + "/survey/" + appt.ID
	text := fmt.Sprintf("We missed you at your appointment with Dr. %s. Could you tell us what happened? %s",
		appt.DoctorName, link)
	a.notifier.Send(user, text)
}

// HandleAutoMiss is the scheduler handler for auto_miss_check jobs, fired
// ten minutes after the appointment time. A slot already resolved by an
// admin is left alone.
func (a *AttendanceService) HandleAutoMiss(ctx context.Context, job *models.SchedulerJob) error {
	var payload AutoMissPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("auto-miss payload: %w", err)
	}

	appt, err := a.store.FindAppointment(payload.AppointmentID)
	if err != nil {
		if errors.Is(err, clinicerr.ErrNotFound) {
			return nil
		}
		return err
	}
	if appt.Status != models.StatusBooked {
		return nil
	}

	log.Printf("Auto-miss: appointment %s passed unresolved, marking missed", appt.ID)
	err = a.SetStatus(appt.ID, models.StatusMissed, true)
	if errors.Is(err, clinicerr.ErrInvalidTransition) {
		// Lost the race against an admin resolution.
		return nil
	}
	return err
}
