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

const autoMissDelay = 10 * time.Minute

// BookingCoordinator runs the booking protocol: admission control, the
// status compare-and-set, reminder planning with a single instant catch-up,
// and arming the no-show check.
type BookingCoordinator struct {
	store      *store.Store
	demand     *DemandEngine
	catalog    *MessageCatalog
	notifier   Notifier
	scheduler  *Scheduler
	clock      quartz.Clock
	loc        *time.Location
	clinicName string
}

func NewBookingCoordinator(
	st *store.Store,
	demand *DemandEngine,
	catalog *MessageCatalog,
	notifier Notifier,
	scheduler *Scheduler,
	clock quartz.Clock,
	loc *time.Location,
	clinicName string,
) *BookingCoordinator {
	return &BookingCoordinator{
		store:      st,
		demand:     demand,
		catalog:    catalog,
		notifier:   notifier,
		scheduler:  scheduler,
		clock:      clock,
		loc:        loc,
		clinicName: clinicName,
	}
}

// Book places a registered user into an available slot. On success it
// returns the booked appointment and the text of the instant catch-up
// nudge, if one was delivered.
func (b *BookingCoordinator) Book(apptID, userName, phone string) (*models.Appointment, string, error) {
	appt, err := b.store.FindAppointment(apptID)
	if err != nil {
		return nil, "", err
	}
	if appt.Status != models.StatusAvailable {
		return nil, "", fmt.Errorf("%w: appointment %s is %s", clinicerr.ErrNotAvailable, apptID, appt.Status)
	}

	user, err := b.store.FindUserByName(userName)
	if err != nil {
		if errors.Is(err, clinicerr.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: %s", clinicerr.ErrUserNotRegistered, userName)
		}
		return nil, "", err
	}
	if phone != "" && user.Phone == "" {
		user.Phone = phone
		if err := b.store.UpsertUser(user); err != nil {
			return nil, "", err
		}
	}

	if err := b.demand.EnsureMonth(appt.DoctorName, appt.Date); err != nil {
		return nil, "", err
	}

	if user.Category == models.CategoryAtRisk {
		high, err := b.demand.IsHighDemand(appt.DoctorName, appt.Date)
		if err != nil {
			return nil, "", err
		}
		if high {
			return nil, "", fmt.Errorf(
				"%w: this time with Dr. %s is in high demand and cannot be booked right now; please choose another slot",
				clinicerr.ErrAdmissionDenied, appt.DoctorName)
		}
	}

	// Compare-and-set closes the race between two concurrent bookings:
	// exactly one of them flips available -> booked.
	won, err := b.store.TransitionStatus(apptID, models.StatusAvailable, models.StatusBooked, user.UserName)
	if err != nil {
		return nil, "", err
	}
	if !won {
		return nil, "", fmt.Errorf("%w: appointment %s was just taken", clinicerr.ErrNotAvailable, apptID)
	}

	instantText, err := b.planReminders(appt, user)
	if err != nil {
		return nil, "", err
	}

	if err := b.scheduler.ArmAt(models.JobAutoMissCheck, apptID, appt.Date.Add(autoMissDelay),
		AutoMissPayload{AppointmentID: apptID}); err != nil {
		return nil, "", err
	}

	booked, err := b.store.FindAppointment(apptID)
	if err != nil {
		return nil, "", err
	}
	return booked, instantText, nil
}

// planReminders builds the reminder rows for the user's behavior class.
// Lead hours already in the past collapse to sent rows stamped now, with at
// most the first one actually delivered; future leads are persisted as
// scheduled and armed on the scheduler.
func (b *BookingCoordinator) planReminders(appt *models.Appointment, user *models.User) (string, error) {
	now := b.clock.Now().In(b.loc)
	msgCategory := MessageCategoryFor(user.Category)

	var past, future []time.Time
	for _, lead := range ReminderPlan(user.Category) {
		sendTime := appt.Date.Add(-time.Duration(lead) * time.Hour)
		if sendTime.After(now) {
			future = append(future, sendTime)
		} else {
			past = append(past, sendTime)
		}
	}

	var rows models.ReminderList
	instantText := ""
	if len(past) > 0 {
		// Single instant catch-up: one delivery regardless of how many
		// leads have already elapsed.
		used := map[string]bool{}
		text, err := b.catalog.PickUnique(msgCategory, used)
		switch {
		case errors.Is(err, clinicerr.ErrEmptyCategory):
			log.Printf("Warning: no %s templates, catch-up for %s recorded without delivery", msgCategory, appt.ID)
		case err != nil:
			return "", err
		default:
			instantText = b.compose(Render(text, user), appt)
			b.notifier.Send(user, instantText)
		}

		rows = append(rows, models.Reminder{
			MessageCategory: msgCategory,
			SendTime:        now,
			Status:          models.ReminderSent,
			Text:            instantText,
		})
		for range past[1:] {
			rows = append(rows, models.Reminder{
				MessageCategory: msgCategory,
				SendTime:        now,
				Status:          models.ReminderSent,
			})
		}
	}

	for _, sendTime := range future {
		rows = append(rows, models.Reminder{
			MessageCategory: msgCategory,
			SendTime:        sendTime,
			Status:          models.ReminderScheduled,
		})
	}

	if err := b.store.UpdateReminders(appt.ID, func(models.ReminderList) models.ReminderList {
		return rows
	}); err != nil {
		return "", err
	}

	for _, sendTime := range future {
		err := b.scheduler.ArmAt(models.JobReminderFire, ReminderKey(appt.ID, sendTime), sendTime,
			ReminderFirePayload{AppointmentID: appt.ID, SendTime: sendTime})
		if err != nil {
			return "", err
		}
	}
	return instantText, nil
}

// compose prefixes the rendered nudge with the standard header.
func (b *BookingCoordinator) compose(body string, appt *models.Appointment) string {
	when := appt.Date.In(b.loc).Format("Monday, 2 January 2006 at 15:04")
	return fmt.Sprintf("%s — Dr. %s, %s\n%s", b.clinicName, appt.DoctorName, when, body)
}

// HandleReminderFire is the scheduler handler for reminder_fire jobs. It
// re-checks the appointment is still booked, picks an unused template, and
// marks the reminder row sent — sent even when the user has no channel, so
// a fired reminder never replays.
func (b *BookingCoordinator) HandleReminderFire(ctx context.Context, job *models.SchedulerJob) error {
	var payload ReminderFirePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("reminder payload: %w", err)
	}

	appt, err := b.store.FindAppointment(payload.AppointmentID)
	if err != nil {
		if errors.Is(err, clinicerr.ErrNotFound) {
			return nil
		}
		return err
	}
	if appt.Status != models.StatusBooked {
		return nil
	}

	user, err := b.store.FindUserByName(appt.UserName)
	if err != nil {
		return err
	}

	msgCategory := MessageCategoryFor(user.Category)
	for _, row := range appt.Reminders {
		if row.SendTime.Equal(payload.SendTime) {
			msgCategory = row.MessageCategory
			break
		}
	}

	used := appt.Reminders.UsedTexts()
	text, err := b.catalog.PickUnique(msgCategory, used)
	if errors.Is(err, clinicerr.ErrExhaustedPool) {
		// Every template was used during this appointment's lifetime;
		// permit reuse rather than going silent.
		text, err = b.catalog.PickUnique(msgCategory, map[string]bool{})
	}
	rendered := ""
	switch {
	case errors.Is(err, clinicerr.ErrEmptyCategory):
		log.Printf("Warning: no %s templates, reminder for %s marked sent without delivery", msgCategory, appt.ID)
	case err != nil:
		return err
	default:
		rendered = b.compose(Render(text, user), appt)
		b.notifier.Send(user, rendered)
	}

	return b.store.MarkReminderSent(appt.ID, payload.SendTime, rendered)
}

// CancelJobs drops every pending reminder and the no-show check for an
// appointment; called when a slot is deleted.
func (b *BookingCoordinator) CancelJobs(apptID string) {
	b.scheduler.CancelByKeyPrefix(models.JobReminderFire, apptID+"@")
	b.scheduler.Cancel(models.JobAutoMissCheck, apptID)
}
