package services

import (
	"context"
	"testing"
	"time"

	"clinicflow/internal/clinicerr"
	"clinicflow/internal/models"
	"clinicflow/internal/store"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type attendanceFixture struct {
	store      *store.Store
	notifier   *fakeNotifier
	attendance *AttendanceService
	demand     *DemandEngine
}

func newAttendanceFixture(t *testing.T, at time.Time) *attendanceFixture {
	t.Helper()
	st := setupStore(t)
	mock := quartz.NewMock(t)
	mock.Set(at)
	notifier := &fakeNotifier{}
	demand := NewDemandEngine(st, mock, riyadh)
	attendance := NewAttendanceService(st, demand, notifier, mock, riyadh, "https://clinic.example")
	return &attendanceFixture{store: st, notifier: notifier, attendance: attendance, demand: demand}
}

func TestSetStatusAttendedUpdatesUserAndDemand(t *testing.T) {
	now := time.Date(2025, 10, 7, 10, 0, 0, 0, riyadh)
	f := newAttendanceFixture(t, now)
	newUser(t, f.store, "sara", models.CategoryGood)
	appt := newAppointment(t, f.store, "Dr.K", now.Add(-time.Hour), models.StatusBooked, "sara")

	require.NoError(t, f.attendance.SetStatus(appt.ID, models.StatusAttended, false))

	user, err := f.store.FindUserByName("sara")
	require.NoError(t, err)
	assert.Equal(t, 1, user.AttendedCount)
	assert.Equal(t, 10, user.Score)
	assert.InDelta(t, 100, user.AttendanceRate, 0.001)

	dow := int(appt.Date.In(riyadh).Weekday())
	cell, err := f.store.FindDemandCell(store.DemandKey{
		DoctorName: "Dr.K", Year: 2025, Month: 10, DayOfWeek: &dow, Hour: 9,
	})
	require.NoError(t, err)
	require.NotNil(t, cell)
	assert.Equal(t, 1, cell.TotalAppointments)
	assert.True(t, cell.HighDemandThreshold.Never(), "a fresh learned cell has no threshold yet")

	// A single data point must not start gating AtRisk bookings.
	high, err := f.demand.IsHighDemand("Dr.K", appt.Date)
	require.NoError(t, err)
	assert.False(t, high)
}

func TestSetStatusMissedIsIdempotent(t *testing.T) {
	now := time.Date(2025, 10, 7, 10, 0, 0, 0, riyadh)
	f := newAttendanceFixture(t, now)
	newUser(t, f.store, "omar", models.CategoryGood)
	appt := newAppointment(t, f.store, "Dr.K", now.Add(-time.Hour), models.StatusBooked, "omar")

	require.NoError(t, f.attendance.SetStatus(appt.ID, models.StatusMissed, false))
	require.NoError(t, f.attendance.SetStatus(appt.ID, models.StatusMissed, false))

	user, err := f.store.FindUserByName("omar")
	require.NoError(t, err)
	assert.Equal(t, 1, user.MissedCount, "second resolution must not double-count")
}

func TestSetStatusConflictingTerminal(t *testing.T) {
	now := time.Date(2025, 10, 7, 10, 0, 0, 0, riyadh)
	f := newAttendanceFixture(t, now)
	newUser(t, f.store, "omar", models.CategoryGood)
	appt := newAppointment(t, f.store, "Dr.K", now.Add(-time.Hour), models.StatusBooked, "omar")

	require.NoError(t, f.attendance.SetStatus(appt.ID, models.StatusAttended, false))
	err := f.attendance.SetStatus(appt.ID, models.StatusMissed, false)
	assert.ErrorIs(t, err, clinicerr.ErrInvalidTransition)
}

func TestSetStatusRejectsAvailable(t *testing.T) {
	now := time.Date(2025, 10, 7, 10, 0, 0, 0, riyadh)
	f := newAttendanceFixture(t, now)
	appt := newAppointment(t, f.store, "Dr.K", now.Add(time.Hour), models.StatusAvailable, "")

	err := f.attendance.SetStatus(appt.ID, models.StatusAttended, false)
	assert.ErrorIs(t, err, clinicerr.ErrInvalidTransition)
}

func TestAutoMissMarksAndSurveys(t *testing.T) {
	now := time.Date(2025, 10, 7, 10, 20, 0, 0, riyadh)
	f := newAttendanceFixture(t, now)
	newUser(t, f.store, "omar", models.CategoryGood)
	appt := newAppointment(t, f.store, "Dr.K", now.Add(-20*time.Minute), models.StatusBooked, "omar")

	job := &models.SchedulerJob{
		Kind:    models.JobAutoMissCheck,
		Key:     appt.ID,
		Payload: mustJSON(t, AutoMissPayload{AppointmentID: appt.ID}),
	}
	require.NoError(t, f.attendance.HandleAutoMiss(context.Background(), job))

	updated, err := f.store.FindAppointment(appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusMissed, updated.Status)

	user, err := f.store.FindUserByName("omar")
	require.NoError(t, err)
	assert.Equal(t, 1, user.MissedCount)

	sent := f.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "https://clinic.example/survey/"+appt.ID)

	// Replay after crash recovery is a no-op.
	require.NoError(t, f.attendance.HandleAutoMiss(context.Background(), job))
	user, err = f.store.FindUserByName("omar")
	require.NoError(t, err)
	assert.Equal(t, 1, user.MissedCount)
	assert.Len(t, f.notifier.Sent(), 1)
}

func TestAutoMissNoopAfterAdminResolution(t *testing.T) {
	now := time.Date(2025, 10, 7, 10, 20, 0, 0, riyadh)
	f := newAttendanceFixture(t, now)
	newUser(t, f.store, "sara", models.CategoryGood)
	appt := newAppointment(t, f.store, "Dr.K", now.Add(-20*time.Minute), models.StatusBooked, "sara")

	require.NoError(t, f.attendance.SetStatus(appt.ID, models.StatusAttended, false))

	job := &models.SchedulerJob{
		Kind:    models.JobAutoMissCheck,
		Key:     appt.ID,
		Payload: mustJSON(t, AutoMissPayload{AppointmentID: appt.ID}),
	}
	require.NoError(t, f.attendance.HandleAutoMiss(context.Background(), job))

	updated, err := f.store.FindAppointment(appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAttended, updated.Status)

	user, err := f.store.FindUserByName("sara")
	require.NoError(t, err)
	assert.Zero(t, user.MissedCount)
}

func TestAdminMissSendsNoSurvey(t *testing.T) {
	now := time.Date(2025, 10, 7, 10, 20, 0, 0, riyadh)
	f := newAttendanceFixture(t, now)
	newUser(t, f.store, "omar", models.CategoryGood)
	appt := newAppointment(t, f.store, "Dr.K", now.Add(-20*time.Minute), models.StatusBooked, "omar")

	require.NoError(t, f.attendance.SetStatus(appt.ID, models.StatusMissed, false))
	assert.Empty(t, f.notifier.Sent())
}
