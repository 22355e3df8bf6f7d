package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"clinicflow/internal/models"
	"clinicflow/internal/store"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jobRecorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *jobRecorder) handler(_ context.Context, job *models.SchedulerJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, job.Key)
	return nil
}

func (r *jobRecorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

func newTestScheduler(t *testing.T, st *store.Store, workers int) (*Scheduler, *quartz.Mock, *jobRecorder) {
	t.Helper()
	mock := quartz.NewMock(t)
	mock.Set(time.Date(2025, 10, 1, 12, 0, 0, 0, riyadh))
	sched := NewScheduler(st, mock, workers, time.Hour)
	rec := &jobRecorder{}
	sched.Register(models.JobReminderFire, rec.handler)
	return sched, mock, rec
}

func runScheduler(t *testing.T, sched *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func jobStatus(t *testing.T, st *store.Store, kind models.JobKind, key string) models.JobStatus {
	t.Helper()
	var job models.SchedulerJob
	err := st.DB().Where("kind = ? AND key = ?", kind, key).First(&job).Error
	require.NoError(t, err)
	return job.Status
}

func TestSchedulerExecutesDueJob(t *testing.T) {
	st := setupStore(t)
	sched, mock, rec := newTestScheduler(t, st, 4)

	require.NoError(t, sched.ArmAt(models.JobReminderFire, "due", mock.Now().Add(-time.Minute), nil))
	runScheduler(t, sched)

	require.Eventually(t, func() bool {
		return len(rec.Keys()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.JobDone, jobStatus(t, st, models.JobReminderFire, "due"))
}

func TestSchedulerRearmReplaces(t *testing.T) {
	st := setupStore(t)
	sched, mock, _ := newTestScheduler(t, st, 4)

	first := mock.Now().Add(time.Hour)
	second := mock.Now().Add(2 * time.Hour)
	require.NoError(t, sched.ArmAt(models.JobReminderFire, "slot", first, nil))
	require.NoError(t, sched.ArmAt(models.JobReminderFire, "slot", second, nil))

	var jobs []models.SchedulerJob
	require.NoError(t, st.DB().Where("kind = ?", models.JobReminderFire).Find(&jobs).Error)
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].FireAt.Equal(second))
	assert.Equal(t, models.JobPending, jobs[0].Status)
}

func TestSchedulerCancelPreventsExecution(t *testing.T) {
	st := setupStore(t)
	sched, mock, rec := newTestScheduler(t, st, 4)

	require.NoError(t, sched.ArmAt(models.JobReminderFire, "cancelled", mock.Now().Add(-time.Minute), nil))
	sched.Cancel(models.JobReminderFire, "cancelled")
	require.NoError(t, sched.ArmAt(models.JobReminderFire, "kept", mock.Now().Add(-time.Minute), nil))

	runScheduler(t, sched)

	require.Eventually(t, func() bool {
		keys := rec.Keys()
		return len(keys) == 1 && keys[0] == "kept"
	}, 2*time.Second, 10*time.Millisecond)

	var count int64
	require.NoError(t, st.DB().Model(&models.SchedulerJob{}).
		Where("key = ?", "cancelled").Count(&count).Error)
	assert.Zero(t, count)
}

func TestSchedulerOrderingPerAppointment(t *testing.T) {
	st := setupStore(t)
	// One worker slot serializes execution in fire order.
	sched, mock, rec := newTestScheduler(t, st, 1)

	require.NoError(t, sched.ArmAt(models.JobReminderFire, "later", mock.Now().Add(-time.Minute), nil))
	require.NoError(t, sched.ArmAt(models.JobReminderFire, "earlier", mock.Now().Add(-2*time.Minute), nil))

	runScheduler(t, sched)

	require.Eventually(t, func() bool {
		return len(rec.Keys()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"earlier", "later"}, rec.Keys())
}

func TestSchedulerFiresWhenTimeAdvances(t *testing.T) {
	st := setupStore(t)
	sched, mock, rec := newTestScheduler(t, st, 4)

	trap := mock.Trap().NewTimer()
	defer trap.Close()

	require.NoError(t, sched.ArmAt(models.JobReminderFire, "future", mock.Now().Add(30*time.Minute), nil))
	runScheduler(t, sched)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Let the dispatcher park on its timer, then jump past the fire time.
	call := trap.MustWait(ctx)
	call.MustRelease(ctx)
	mock.Advance(30 * time.Minute).MustWait(ctx)

	require.Eventually(t, func() bool {
		return len(rec.Keys()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.JobDone, jobStatus(t, st, models.JobReminderFire, "future"))
}

func TestSchedulerOnBootGracePolicy(t *testing.T) {
	st := setupStore(t)
	sched, mock, rec := newTestScheduler(t, st, 4)
	now := mock.Now()

	_, err := st.ArmJob(models.JobReminderFire, "stale", now.Add(-2*time.Hour), nil)
	require.NoError(t, err)
	_, err = st.ArmJob(models.JobReminderFire, "overdue", now.Add(-10*time.Minute), nil)
	require.NoError(t, err)
	_, err = st.ArmJob(models.JobReminderFire, "upcoming", now.Add(time.Hour), nil)
	require.NoError(t, err)

	require.NoError(t, sched.OnBoot())
	runScheduler(t, sched)

	require.Eventually(t, func() bool {
		keys := rec.Keys()
		return len(keys) == 1 && keys[0] == "overdue"
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, models.JobSkipped, jobStatus(t, st, models.JobReminderFire, "stale"))
	assert.Equal(t, models.JobDone, jobStatus(t, st, models.JobReminderFire, "overdue"))
	assert.Equal(t, models.JobPending, jobStatus(t, st, models.JobReminderFire, "upcoming"))
}
