// Package scheduler queues runs and executes them on a worker pool.
package scheduler

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tastythames/polyrun/internal/runstore"
)

var (
	ErrQueueFull = errors.New("scheduler: run queue full")
	ErrClosed    = errors.New("scheduler: closed")
)

type Scheduler struct {
	jobCh chan Job
	store runstore.Store
	now   func() time.Time

	mu     sync.RWMutex
	closed bool

	// stats (atomic) for observability
	enqueued uint64
	dropped  uint64
}

type Options struct {
	QueueSize int
	Store     runstore.Store
}

// New creates a scheduler whose queue holds QueueSize runs.
func New(opts Options) *Scheduler {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	return &Scheduler{
		jobCh: make(chan Job, opts.QueueSize),
		store: opts.Store,
		now:   time.Now,
	}
}

// Jobs is the channel workers read from.
func (s *Scheduler) Jobs() <-chan Job { return s.jobCh }

// Enqueue records j as queued and hands it to the workers.
// It never blocks: a full queue drops the run, counts it, marks its
// record failed and returns ErrQueueFull.
func (s *Scheduler) Enqueue(j Job) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	run := runstore.Run{ID: j.ID, Tool: j.Tool, State: runstore.StateQueued, Created: s.now()}
	if j.Profile != nil {
		run.Host = j.Profile.Host
	}
	s.store.Put(run)

	select {
	case s.jobCh <- j:
		atomic.AddUint64(&s.enqueued, 1)
		return nil
	default:
		d := atomic.AddUint64(&s.dropped, 1)
		s.store.Update(j.ID, func(r *runstore.Run) {
			r.State = runstore.StateFailed
			r.Err = ErrQueueFull.Error()
			r.Finished = s.now()
		})
		log.Printf("scheduler: dropped=%d (run queue full)", d)
		return ErrQueueFull
	}
}

// Close stops accepting runs. Workers drain what is queued and exit.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.jobCh)
	}
}

func (s *Scheduler) Stats() (enqueued uint64, dropped uint64) {
	return atomic.LoadUint64(&s.enqueued), atomic.LoadUint64(&s.dropped)
}
