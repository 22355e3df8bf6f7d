package services

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"clinicflow/internal/database"
	"clinicflow/internal/models"
	"clinicflow/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// riyadh avoids a tzdata dependency in the test environment.
var riyadh = time.FixedZone("AST", 3*60*60)

func setupStore(t *testing.T) *store.Store {
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
	return store.New(db)
}

func newUser(t *testing.T, st *store.Store, name string, category models.Category) *models.User {
	t.Helper()
	user := &models.User{
		UserName:     name,
		DisplayName:  "",
		NotifyChatID: 1000,
		Category:     category,
	}
	require.NoError(t, st.UpsertUser(user))
	return user
}

func newAppointment(t *testing.T, st *store.Store, doctor string, at time.Time, status models.AppointmentStatus, userName string) *models.Appointment {
	t.Helper()
	appt := &models.Appointment{
		ID:         uuid.New().String(),
		DoctorName: doctor,
		Date:       at,
		Status:     status,
		UserName:   userName,
		Reminders:  models.ReminderList{},
	}
	require.NoError(t, st.CreateAppointment(appt))
	return appt
}

func seedMessages(t *testing.T, st *store.Store, category models.MessageCategory, texts ...string) {
	t.Helper()
	for _, text := range texts {
		require.NoError(t, st.CreateMessage(&models.MessageTemplate{Category: category, Text: text}))
	}
}

func mustJSON(t *testing.T, v interface{}) datatypes.JSON {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return datatypes.JSON(data)
}

func seededRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

// fakeNotifier records every delivery attempt.
type fakeNotifier struct {
	mu    sync.Mutex
	sent  []string
	users []string
}

func (f *fakeNotifier) Send(user *models.User, text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	f.users = append(f.users, user.UserName)
	return user.Linked()
}

func (f *fakeNotifier) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}
