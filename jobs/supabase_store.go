package jobs

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Supabase table names.
const (
	JobsTable    = "jobs"
	JobLogsTable = "job_logs"
)

// RESTClient is the subset of the Supabase client the store needs.
type RESTClient interface {
	Insert(ctx context.Context, table string, row interface{}, out interface{}) error
	Select(ctx context.Context, table string, query url.Values, out interface{}) error
}

// SupabaseStore writes jobs to the hosted "jobs" table and log lines to
// "job_logs", where the worker picks them up.
type SupabaseStore struct {
	client RESTClient
}

// NewSupabaseStore wraps a service-role REST client.
func NewSupabaseStore(client RESTClient) *SupabaseStore {
	return &SupabaseStore{client: client}
}

func (s *SupabaseStore) Insert(ctx context.Context, job *Job) error {
	row := cloneJob(job)
	row.Tags = tagsOrEmpty(row.Tags)
	if err := s.client.Insert(ctx, JobsTable, row, nil); err != nil {
		return fmt.Errorf("jobs: insert %s: %w", job.ID, err)
	}
	return nil
}

func (s *SupabaseStore) Get(ctx context.Context, id string) (*Job, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", "eq."+id)
	q.Set("limit", "1")

	var rows []*Job
	if err := s.client.Select(ctx, JobsTable, q, &rows); err != nil {
		return nil, fmt.Errorf("jobs: get %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func (s *SupabaseStore) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.desc")
	q.Set("limit", strconv.Itoa(opts.limit()))
	if opts.Engine != "" {
		q.Set("engine", "eq."+opts.Engine)
	}

	rows := []*Job{}
	if err := s.client.Select(ctx, JobsTable, q, &rows); err != nil {
		return nil, fmt.Errorf("jobs: list: %w", err)
	}
	return rows, nil
}

func (s *SupabaseStore) AppendLog(ctx context.Context, entry LogEntry) error {
	if err := s.client.Insert(ctx, JobLogsTable, entry, nil); err != nil {
		return fmt.Errorf("jobs: append log for %s: %w", entry.JobID, err)
	}
	return nil
}

func (s *SupabaseStore) Logs(ctx context.Context, jobID string) ([]LogEntry, error) {
	if _, err := s.Get(ctx, jobID); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("select", "job_id,level,message,created_at")
	q.Set("job_id", "eq."+jobID)
	q.Set("order", "created_at.asc")

	out := []LogEntry{}
	if err := s.client.Select(ctx, JobLogsTable, q, &out); err != nil {
		return nil, fmt.Errorf("jobs: logs for %s: %w", jobID, err)
	}
	return out, nil
}

func (s *SupabaseStore) Close() error { return nil }
