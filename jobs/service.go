package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/knowledge-bank/kb-cloud/logger"
)

// Publisher receives job events for live subscribers.
type Publisher interface {
	PublishJob(job *Job)
	PublishJobLog(entry LogEntry)
}

type nopPublisher struct{}

func (nopPublisher) PublishJob(*Job) {}
func (nopPublisher) PublishJobLog(LogEntry) {}

// Service queues jobs into a Store.
type Service struct {
	store Store
	pub   Publisher
	log   *logger.Logger
	now   func() time.Time
	newID func() string
}

// NewService creates a job service. pub may be nil.
func NewService(store Store, pub Publisher, log *logger.Logger) *Service {
	if pub == nil {
		pub = nopPublisher{}
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Service{
		store: store,
		pub:   pub,
		log:   log.WithField("component", "jobs"),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Submit assigns an id, marks the job queued, stores it, and records the
// first log line. A failed log append is logged but does not fail the
// submission since the job itself is already durable.
func (s *Service) Submit(ctx context.Context, job *Job) (*Job, error) {
	job = cloneJob(job)
	job.ID = s.newID()
	job.Status = StatusQueued
	job.CreatedAt = s.now().UTC()

	if err := s.store.Insert(ctx, job); err != nil {
		return nil, fmt.Errorf("queue %s job: %w", job.Engine, err)
	}

	jl := s.log.WithFields(map[string]interface{}{
		"job_id": job.ID,
		"engine": job.Engine,
	})
	jl.Info("job queued")
	s.pub.PublishJob(job)

	entry := LogEntry{
		JobID:     job.ID,
		Level:     "info",
		Message:   fmt.Sprintf("job queued for %s", job.Engine),
		CreatedAt: job.CreatedAt,
	}
	if err := s.store.AppendLog(ctx, entry); err != nil {
		jl.Error("failed to append job log", err)
	} else {
		s.pub.PublishJobLog(entry)
	}
	return job, nil
}

// Get returns a stored job.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.store.Get(ctx, id)
}

// List returns recent jobs, newest first.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	return s.store.List(ctx, opts)
}

// Logs returns a job's log lines in order.
func (s *Service) Logs(ctx context.Context, id string) ([]LogEntry, error) {
	return s.store.Logs(ctx, id)
}
