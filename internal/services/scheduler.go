package services

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"clinicflow/internal/models"
	"clinicflow/internal/store"

	"github.com/coder/quartz"
	"gorm.io/datatypes"
)

// JobHandler executes one fired job. Handlers must be idempotent and
// re-check their preconditions: a cancelled job can still reach its handler
// once.
type JobHandler func(ctx context.Context, job *models.SchedulerJob) error

type heapEntry struct {
	fireAt time.Time
	jobID  uint
}

// jobHeap is a min-heap on fire time, owned exclusively by the dispatcher.
type jobHeap []heapEntry

func (h jobHeap) Len() int            { return len(h) }
func (h jobHeap) Less(i, j int) bool  { return h[i].fireAt.Before(h[j].fireAt) }
func (h jobHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x interface{}) { *h = append(*h, x.(heapEntry)) }
func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

// Scheduler is a durable one-shot timer service: every armed job is
// persisted before it is queued, executed at most once as close as possible
// to its fire time, and replayed from storage after a restart.
type Scheduler struct {
	store    *store.Store
	clock    quartz.Clock
	grace    time.Duration
	handlers map[models.JobKind]JobHandler

	mu   sync.Mutex
	heap jobHeap
	wake chan struct{}

	workers chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler builds a scheduler with the given worker-slot count and the
// boot grace window for overdue jobs.
func NewScheduler(st *store.Store, clock quartz.Clock, workers int, grace time.Duration) *Scheduler {
	if workers <= 0 {
		workers = 4
	}
	return &Scheduler{
		store:    st,
		clock:    clock,
		grace:    grace,
		handlers: make(map[models.JobKind]JobHandler),
		wake:     make(chan struct{}, 1),
		workers:  make(chan struct{}, workers),
	}
}

// Register binds a handler to a job kind. Must be called before Run.
func (s *Scheduler) Register(kind models.JobKind, handler JobHandler) {
	s.handlers[kind] = handler
}

// ArmAt schedules a one-shot job. (kind, key) is unique — arming the same
// pair again replaces the earlier job. A fire time already in the past is
// dispatched on the next dispatcher pass.
func (s *Scheduler) ArmAt(kind models.JobKind, key string, fireAt time.Time, payload interface{}) error {
	var raw datatypes.JSON
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload for %s/%s: %w", kind, key, err)
		}
		raw = datatypes.JSON(data)
	}

	job, err := s.store.ArmJob(kind, key, fireAt, raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	heap.Push(&s.heap, heapEntry{fireAt: fireAt, jobID: job.ID})
	s.mu.Unlock()
	s.kick()
	return nil
}

// Cancel removes a pending job. Best-effort: a job the dispatcher has
// already handed to a worker may still run, so handlers re-check state.
func (s *Scheduler) Cancel(kind models.JobKind, key string) {
	if _, err := s.store.CancelJob(kind, key); err != nil {
		log.Printf("Error: cancel %s/%s: %v", kind, key, err)
	}
}

// CancelByKeyPrefix drops every pending job of a kind keyed under the
// prefix; used when an appointment is deleted outright.
func (s *Scheduler) CancelByKeyPrefix(kind models.JobKind, prefix string) {
	if _, err := s.store.CancelJobsByKeyPrefix(kind, prefix); err != nil {
		log.Printf("Error: cancel %s/%s*: %v", kind, prefix, err)
	}
}

// OnBoot rehydrates persisted jobs. Jobs overdue by more than the grace
// window are marked skipped; everything else goes back on the heap, where
// already-due jobs fire immediately.
func (s *Scheduler) OnBoot() error {
	jobs, err := s.store.PendingJobs()
	if err != nil {
		return err
	}

	now := s.clock.Now()
	stale := now.Add(-s.grace)
	requeued := 0
	for _, job := range jobs {
		if job.FireAt.Before(stale) {
			log.Printf("Warning: skipping stale job %s/%s overdue since %s", job.Kind, job.Key, job.FireAt)
			if err := s.store.MarkJobSkipped(job.ID); err != nil {
				log.Printf("Error: marking job %d skipped: %v", job.ID, err)
			}
			continue
		}
		s.mu.Lock()
		heap.Push(&s.heap, heapEntry{fireAt: job.FireAt, jobID: job.ID})
		s.mu.Unlock()
		requeued++
	}
	if requeued > 0 {
		log.Printf("Scheduler rehydrated %d pending job(s)", requeued)
	}
	s.kick()
	return nil
}

// Run owns the heap until ctx is cancelled: it sleeps until the earliest
// fire time, pops due entries, and hands them to worker slots. On return
// every in-flight job has finished and persisted its outcome.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.wg.Wait()

	for {
		// Drop a wake-up left from before this pass: the peek below already
		// sees every entry pushed so far, and later pushes kick again.
		select {
		case <-s.wake:
		default:
		}

		next, ok := s.peek()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}

		now := s.clock.Now()
		if next.fireAt.After(now) {
			timer := s.clock.NewTimer(next.fireAt.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-s.wake:
				timer.Stop()
				continue
			case <-timer.C:
			}
		}

		entry, ok := s.popDue()
		if !ok {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case s.workers <- struct{}{}:
		}
		s.wg.Add(1)
		go s.execute(ctx, entry.jobID)
	}
}

func (s *Scheduler) execute(ctx context.Context, jobID uint) {
	defer s.wg.Done()
	defer func() { <-s.workers }()

	// The claim is the at-most-once gate: replaced, cancelled, or
	// already-run jobs fail it and are dropped here.
	claimed, err := s.store.ClaimJob(jobID)
	if err != nil {
		log.Printf("Error: claiming job %d: %v", jobID, err)
		return
	}
	if !claimed {
		return
	}

	job, err := s.store.FindJob(jobID)
	if err != nil {
		log.Printf("Error: loading claimed job %d: %v", jobID, err)
		return
	}

	handler, ok := s.handlers[job.Kind]
	if !ok {
		log.Printf("Error: no handler registered for job kind %s", job.Kind)
		_ = s.store.FinishJob(jobID, models.JobFailed)
		return
	}

	status := models.JobDone
	if err := handler(ctx, job); err != nil {
		log.Printf("Error: job %s/%s failed: %v", job.Kind, job.Key, err)
		status = models.JobFailed
	}
	if err := s.store.FinishJob(jobID, status); err != nil {
		log.Printf("Error: persisting outcome of job %d: %v", jobID, err)
	}
}

func (s *Scheduler) peek() (heapEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 {
		return heapEntry{}, false
	}
	return s.heap[0], true
}

// popDue removes the head only if it is still due; a wake may have inserted
// an earlier entry since the last peek.
func (s *Scheduler) popDue() (heapEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 || s.heap[0].fireAt.After(s.clock.Now()) {
		return heapEntry{}, false
	}
	return heap.Pop(&s.heap).(heapEntry), true
}

func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// ReminderKey builds the job key for one reminder of one appointment.
// Keys sort and prefix-match by appointment id.
func ReminderKey(apptID string, sendTime time.Time) string {
	return apptID + "@" + sendTime.UTC().Format(time.RFC3339)
}

// ReminderFirePayload is carried by reminder_fire jobs.
type ReminderFirePayload struct {
	AppointmentID string    `json:"appointment_id"`
	SendTime      time.Time `json:"send_time"`
}

// AutoMissPayload is carried by auto_miss_check jobs.
type AutoMissPayload struct {
	AppointmentID string `json:"appointment_id"`
}
