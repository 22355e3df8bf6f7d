package store

import (
	"fmt"
	"testing"
	"time"

	"clinicflow/internal/clinicerr"
	"clinicflow/internal/database"
	"clinicflow/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func setup(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NamingStrategy: schema.NamingStrategy{SingularTable: true},
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return New(db)
}

func TestUserLookupIsCaseInsensitive(t *testing.T) {
	st := setup(t)
	require.NoError(t, st.UpsertUser(&models.User{UserName: "Sara", Category: models.CategoryGood}))

	user, err := st.FindUserByName("sARA")
	require.NoError(t, err)
	assert.Equal(t, "Sara", user.UserName)

	_, err = st.FindUserByName("ghost")
	assert.ErrorIs(t, err, clinicerr.ErrNotFound)
}

func TestTransitionStatusCAS(t *testing.T) {
	st := setup(t)
	appt := &models.Appointment{
		ID: uuid.New().String(), DoctorName: "Dr.K",
		Date: time.Now().Add(time.Hour), Status: models.StatusAvailable,
	}
	require.NoError(t, st.CreateAppointment(appt))

	won, err := st.TransitionStatus(appt.ID, models.StatusAvailable, models.StatusBooked, "sara")
	require.NoError(t, err)
	assert.True(t, won)

	// The loser of the race sees no matching row.
	won, err = st.TransitionStatus(appt.ID, models.StatusAvailable, models.StatusBooked, "omar")
	require.NoError(t, err)
	assert.False(t, won)

	loaded, err := st.FindAppointment(appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBooked, loaded.Status)
	assert.Equal(t, "sara", loaded.UserName)
}

func TestRemindersRoundTrip(t *testing.T) {
	st := setup(t)
	sendTime := time.Date(2025, 10, 7, 9, 0, 0, 0, time.UTC)
	appt := &models.Appointment{
		ID: uuid.New().String(), DoctorName: "Dr.K",
		Date: sendTime.Add(2 * time.Hour), Status: models.StatusBooked, UserName: "sara",
		Reminders: models.ReminderList{
			{MessageCategory: models.DefaultNudge, SendTime: sendTime, Status: models.ReminderScheduled},
		},
	}
	require.NoError(t, st.CreateAppointment(appt))

	require.NoError(t, st.MarkReminderSent(appt.ID, sendTime, "rendered text"))

	loaded, err := st.FindAppointment(appt.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Reminders, 1)
	assert.Equal(t, models.ReminderSent, loaded.Reminders[0].Status)
	assert.Equal(t, "rendered text", loaded.Reminders[0].Text)
	assert.True(t, loaded.Reminders[0].SendTime.Equal(sendTime))
}

func TestDeleteExpiredAvailable(t *testing.T) {
	st := setup(t)
	now := time.Now()
	old := &models.Appointment{ID: uuid.New().String(), DoctorName: "Dr.K", Date: now.Add(-time.Hour), Status: models.StatusAvailable}
	oldBooked := &models.Appointment{ID: uuid.New().String(), DoctorName: "Dr.K", Date: now.Add(-time.Hour), Status: models.StatusBooked, UserName: "sara"}
	upcoming := &models.Appointment{ID: uuid.New().String(), DoctorName: "Dr.K", Date: now.Add(time.Hour), Status: models.StatusAvailable}
	for _, a := range []*models.Appointment{old, oldBooked, upcoming} {
		require.NoError(t, st.CreateAppointment(a))
	}

	purged, err := st.DeleteExpiredAvailable(now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	remaining, err := st.ListAppointments(nil)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestDistinctDoctors(t *testing.T) {
	st := setup(t)
	for _, doctor := range []string{"Dr.B", "Dr.A", "Dr.B"} {
		require.NoError(t, st.CreateAppointment(&models.Appointment{
			ID: uuid.New().String(), DoctorName: doctor,
			Date: time.Now(), Status: models.StatusAvailable,
		}))
	}

	doctors, err := st.DistinctDoctors()
	require.NoError(t, err)
	assert.Equal(t, []string{"Dr.A", "Dr.B"}, doctors)
}
