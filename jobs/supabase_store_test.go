package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type restCall struct {
	method string
	table  string
	query  url.Values
	row    json.RawMessage
}

// fakeREST records calls and answers selects from canned JSON per table.
type fakeREST struct {
	calls   []restCall
	rows    map[string]string
	failing error
}

func (f *fakeREST) Insert(_ context.Context, table string, row interface{}, _ interface{}) error {
	b, err := json.Marshal(row)
	if err != nil {
		return err
	}
	f.calls = append(f.calls, restCall{method: "insert", table: table, row: b})
	return f.failing
}

func (f *fakeREST) Select(_ context.Context, table string, query url.Values, out interface{}) error {
	f.calls = append(f.calls, restCall{method: "select", table: table, query: query})
	if f.failing != nil {
		return f.failing
	}
	body, ok := f.rows[table]
	if !ok {
		body = "[]"
	}
	return json.Unmarshal([]byte(body), out)
}

func TestSupabaseStoreInsertWritesJobRow(t *testing.T) {
	rest := &fakeREST{}
	store := NewSupabaseStore(rest)

	job := &Job{ID: "abc", Engine: "zalara", Status: StatusQueued, Template: "promo", CreatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, store.Insert(context.Background(), job))

	require.Len(t, rest.calls, 1)
	call := rest.calls[0]
	assert.Equal(t, JobsTable, call.table)
	assert.JSONEq(t, `{
		"id": "abc",
		"engine": "zalara",
		"status": "queued",
		"preset": null,
		"tags": [],
		"template": "promo",
		"created_at": "2025-03-01T00:00:00Z"
	}`, string(call.row))
}

func TestSupabaseStoreGet(t *testing.T) {
	rest := &fakeREST{rows: map[string]string{
		JobsTable: `[{"id":"abc","engine":"profit-engine","status":"running","tags":["x"],"created_at":"2025-03-01T10:00:00Z"}]`,
	}}
	store := NewSupabaseStore(rest)

	job, err := store.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, job.Status)
	assert.Equal(t, []string{"x"}, job.Tags)

	q := rest.calls[0].query
	assert.Equal(t, "eq.abc", q.Get("id"))
	assert.Equal(t, "1", q.Get("limit"))
}

func TestSupabaseStoreGetMissing(t *testing.T) {
	store := NewSupabaseStore(&fakeREST{})
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSupabaseStoreListQuery(t *testing.T) {
	rest := &fakeREST{}
	store := NewSupabaseStore(rest)

	jobs, err := store.List(context.Background(), ListOptions{Engine: "zalara", Limit: 1000})
	require.NoError(t, err)
	assert.NotNil(t, jobs)
	assert.Empty(t, jobs)

	q := rest.calls[0].query
	assert.Equal(t, "created_at.desc", q.Get("order"))
	assert.Equal(t, "500", q.Get("limit"))
	assert.Equal(t, "eq.zalara", q.Get("engine"))
}

func TestSupabaseStoreLogsRequiresJob(t *testing.T) {
	rest := &fakeREST{}
	store := NewSupabaseStore(rest)

	_, err := store.Logs(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	require.Len(t, rest.calls, 1)
	assert.Equal(t, JobsTable, rest.calls[0].table)
}

func TestSupabaseStoreLogs(t *testing.T) {
	rest := &fakeREST{rows: map[string]string{
		JobsTable:    `[{"id":"abc","engine":"zalara","status":"queued","created_at":"2025-03-01T10:00:00Z"}]`,
		JobLogsTable: `[{"job_id":"abc","level":"info","message":"job queued for zalara","created_at":"2025-03-01T10:00:00Z"}]`,
	}}
	store := NewSupabaseStore(rest)

	logs, err := store.Logs(context.Background(), "abc")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "job queued for zalara", logs[0].Message)
	assert.Equal(t, "created_at.asc", rest.calls[1].query.Get("order"))
	assert.Equal(t, "eq.abc", rest.calls[1].query.Get("job_id"))
}

func TestSupabaseStoreWrapsClientErrors(t *testing.T) {
	boom := errors.New("connection refused")
	store := NewSupabaseStore(&fakeREST{failing: boom})

	err := store.Insert(context.Background(), &Job{ID: "abc"})
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "jobs: insert abc")

	err = store.AppendLog(context.Background(), LogEntry{JobID: "abc"})
	assert.ErrorIs(t, err, boom)

	_, err = store.List(context.Background(), ListOptions{})
	assert.ErrorIs(t, err, boom)
}
