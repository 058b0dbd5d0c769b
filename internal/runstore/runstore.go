// Package runstore keeps the records of submitted runs.
package runstore

import (
	"sort"
	"sync"
	"time"

	"github.com/tastythames/polyrun/internal/runner"
)

type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	// StateSubmitted is a batch job handed to the scheduler and not waited for.
	StateSubmitted State = "submitted"
	StateRejected  State = "rejected"
	StateFailed    State = "failed"
)

// Done reports whether no worker will touch the run again.
func (s State) Done() bool {
	return s != StateQueued && s != StateRunning
}

type Run struct {
	ID   string `json:"id"`
	Tool string `json:"tool"`
	// Host is empty for runs on the local machine.
	Host  string `json:"host,omitempty"`
	State State  `json:"state"`

	Created  time.Time `json:"created"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	Result *runner.Result `json:"result,omitempty"`
	// Archive is the local bundle of retrieved outputs.
	Archive string `json:"-"`
	// LogPath is the retrieved log shown to the user, if any.
	LogPath string `json:"-"`
	Err     string `json:"error,omitempty"`
}

// Store is the interface used by scheduler, metrics and api.
type Store interface {
	Put(r Run)
	Get(id string) (Run, bool)
	// Update applies fn to the stored run. It reports false for unknown ids.
	Update(id string, fn func(*Run)) bool
	Snapshot() []Run
}

// MemStore is an in-memory implementation of Store.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]Run
}

func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string]Run),
	}
}

func (s *MemStore) Put(r Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[r.ID] = r
}

func (s *MemStore) Get(id string) (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data[id]
	return r, ok
}

func (s *MemStore) Update(id string, fn func(*Run)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data[id]
	if !ok {
		return false
	}
	fn(&r)
	s.data[id] = r
	return true
}

// Snapshot returns all runs, oldest first.
func (s *MemStore) Snapshot() []Run {
	s.mu.RLock()
	out := make([]Run, 0, len(s.data))
	for _, r := range s.data {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}
