package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store persists queued jobs and their log lines.
type Store interface {
	Insert(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, opts ListOptions) ([]*Job, error)
	AppendLog(ctx context.Context, entry LogEntry) error
	Logs(ctx context.Context, jobID string) ([]LogEntry, error)
	Close() error
}

// MemoryStore keeps jobs in process memory. It needs no configuration and
// loses everything on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string
	logs  map[string][]LogEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*Job),
		logs: make(map[string][]LogEntry),
	}
}

func (m *MemoryStore) Insert(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("jobs: duplicate id %s", job.ID)
	}
	m.jobs[job.ID] = cloneJob(job)
	m.order = append(m.order, job.ID)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(j), nil
}

// List returns newest jobs first.
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := opts.limit()
	out := make([]*Job, 0, limit)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		j := m.jobs[m.order[i]]
		if opts.Engine != "" && j.Engine != opts.Engine {
			continue
		}
		out = append(out, cloneJob(j))
	}
	return out, nil
}

func (m *MemoryStore) AppendLog(_ context.Context, entry LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[entry.JobID]; !ok {
		return ErrNotFound
	}
	m.logs[entry.JobID] = append(m.logs[entry.JobID], entry)
	return nil
}

func (m *MemoryStore) Logs(_ context.Context, jobID string) ([]LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.jobs[jobID]; !ok {
		return nil, ErrNotFound
	}
	out := append([]LogEntry(nil), m.logs[jobID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
