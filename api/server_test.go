package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-bank/kb-cloud/engines"
	"github.com/knowledge-bank/kb-cloud/jobs"
	"github.com/knowledge-bank/kb-cloud/logger"
	"github.com/knowledge-bank/kb-cloud/resilience"
	"github.com/knowledge-bank/kb-cloud/results"
	"github.com/knowledge-bank/kb-cloud/supabase"
	"github.com/knowledge-bank/kb-cloud/waitlist"
)

type fixture struct {
	srv     *Server
	handler http.Handler
	store   *jobs.MemoryStore
	dir     string
	logs    *bytes.Buffer
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	var buf bytes.Buffer
	log := logger.New()
	log.SetOutput(&buf)

	store := jobs.NewMemoryStore()
	dir := t.TempDir()
	cfg := Config{
		Env:         "local",
		CORSOrigins: []string{"*"},
		Catalog:     engines.Default(),
		Jobs:        jobs.NewService(store, nil, log),
		Results:     results.NewReader(dir),
		Logger:      log,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := NewServer(cfg)
	srv.now = func() time.Time { return time.Date(2025, 9, 7, 22, 30, 0, 0, time.UTC) }
	return &fixture{srv: srv, handler: srv.Handler(), store: store, dir: dir, logs: &buf}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Env = "vercel" })

	rec := f.do(http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"service":"kb-cloud","env":"vercel","time":"2025-09-07T22:30:00.000Z"}`, rec.Body.String())
}

func TestEngines(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/engines", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(4), body["count"])
	first := body["engines"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "profit-engine", first["id"])
	assert.Equal(t, "engine", first["kind"])

	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		rec = f.do(m, "/api/engines", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, m)
		assert.JSONEq(t, `{"ok":false,"error":"Read-only endpoint. Use GET /api/engines."}`, rec.Body.String())
	}
}

func TestEngineUsageBanners(t *testing.T) {
	f := newFixture(t, nil)

	for _, engine := range []string{"profit-engine", "zalara", "signal-forge"} {
		rec := f.do(http.MethodGet, "/api/"+engine, "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, engine, body["engine"])
		assert.Contains(t, body["message"], "stub is live")
	}
}

func TestProfitEngineSubmit(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/profit-engine", `{"engine":"profit-engine","job":{"preset":"nfl-default","tags":["parlay-pilot"]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "queued", body["status"])
	assert.Equal(t, "profit-engine", body["engine"])
	assert.Equal(t, map[string]interface{}{
		"type":     "simulation",
		"preset":   "nfl-default",
		"priority": "normal",
		"tags":     []interface{}{"parlay-pilot"},
	}, body["job"])
	assert.Contains(t, body["note"], "Parlay Pilot")

	id := body["job_id"].(string)
	stored, err := f.store.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusQueued, stored.Status)
}

func TestProfitEngineRejects(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/profit-engine", `{"engine":"zalara","job":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"Invalid engine. Expected \"profit-engine\"."}`, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/profit-engine", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"Invalid JSON body."}`, rec.Body.String())

	jobsList, err := f.store.List(t.Context(), jobs.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, jobsList)
}

func TestZalaraSubmitEchoesJob(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/zalara", `{"engine":"zalara","job":{"template":"book-promo","inputs":{"title":"Edge"}}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, map[string]interface{}{"template": "book-promo", "inputs": map[string]interface{}{"title": "Edge"}}, body["job"])

	rec = f.do(http.MethodPost, "/api/zalara", `{"engine":"zalara","job":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"Missing \"job.template\" field"}`, rec.Body.String())
}

func TestEngineRouteMethodNotAllowed(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodDelete, "/api/zalara", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Allow"))
	assert.Equal(t, false, decode(t, rec)["ok"])
}

func TestReadOnlyRoutesMethodNotAllowed(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Events = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/health"},
		{http.MethodPost, "/api/profit-engine/results"},
		{http.MethodDelete, "/api/profit-engine/results/sample"},
		{http.MethodPost, "/api/jobs"},
		{http.MethodPut, "/api/jobs/abc"},
		{http.MethodDelete, "/api/jobs/abc/logs"},
		{http.MethodPost, "/api/events"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := f.do(tc.method, tc.path, "")
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
			assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Allow"))
			body := decode(t, rec)
			assert.Equal(t, false, body["ok"])
			assert.Contains(t, body["error"], "Method not allowed.")
		})
	}

	rec := f.do(http.MethodGet, "/api/events", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestBodyLimit(t *testing.T) {
	f := newFixture(t, nil)

	big := `{"engine":"profit-engine","job":{"tags":["` + strings.Repeat("x", MaxBodyBytes) + `"]}}`
	rec := f.do(http.MethodPost, "/api/profit-engine", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestJobReadBack(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/signal-forge", `{"engine":"signal-forge","job":{"source":"nfl-lines"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode(t, rec)["job_id"].(string)
	f.do(http.MethodPost, "/api/zalara", `{"engine":"zalara","job":{"template":"t"}}`)

	rec = f.do(http.MethodGet, "/api/jobs?engine=signal-forge", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)
	assert.Equal(t, float64(1), list["count"])

	rec = f.do(http.MethodGet, "/api/jobs?limit=1", "")
	assert.Equal(t, float64(1), decode(t, rec)["count"])

	rec = f.do(http.MethodGet, "/api/jobs?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/api/jobs/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	job := decode(t, rec)["job"].(map[string]interface{})
	assert.Equal(t, "nfl-lines", job["source"])

	rec = f.do(http.MethodGet, "/api/jobs/"+id+"/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode(t, rec)["logs"].([]interface{})
	require.Len(t, logs, 1)
	assert.Equal(t, "job queued for signal-forge", logs[0].(map[string]interface{})["message"])

	rec = f.do(http.MethodGet, "/api/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(http.MethodGet, "/api/jobs/nope/logs", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResultsEmpty(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/profit-engine/results", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"ok": true,
		"status": "empty",
		"message": "No Profit Engine result envelopes found.",
		"debug": {"RESULTS_DIR": `+quote(f.dir)+`}
	}`, rec.Body.String())
}

func TestResultsLatest(t *testing.T) {
	f := newFixture(t, nil)
	path := filepath.Join(f.dir, "profit-engine_result_20250907.json")
	require.NoError(t, os.WriteFile(path, []byte("\ufeff"+`{"version":"0.1.0","engine":"profit-engine","status":"completed","job_id":"j1","extra":1}`), 0o644))

	rec := f.do(http.MethodGet, "/api/profit-engine/results", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "profit-engine_result_20250907.json", body["file"])
	env := body["envelope"].(map[string]interface{})
	assert.Equal(t, "j1", env["job_id"])
	assert.Equal(t, float64(1), env["extra"])

	debug := body["debug"].(map[string]interface{})
	assert.Equal(t, f.dir, debug["RESULTS_DIR"])
	assert.Equal(t, path, debug["fullPath"])
	assert.Equal(t, true, debug["strippedBom"])
	assert.Equal(t, []interface{}{"profit-engine_result_20250907.json"}, debug["files"])
}

func TestResultsEnvelopePassesThrough(t *testing.T) {
	f := newFixture(t, nil)
	for name, body := range map[string]string{
		"profit-engine_result_min.json":   `{"job_id":"x","note":"hi"}`,
		"profit-engine_result_drift.json": `{"job_id":"y","summary":{"season":"2024"}}`,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), []byte(body), 0o644))
		rec := f.do(http.MethodGet, "/api/profit-engine/results", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Envelope json.RawMessage `json:"envelope"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.JSONEq(t, body, string(resp.Envelope))
		require.NoError(t, os.Remove(filepath.Join(f.dir, name)))
	}
}

func TestResultsError(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Results = results.NewReader("/definitely/not/here") })

	rec := f.do(http.MethodGet, "/api/profit-engine/results", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "Exception in results route.", body["message"])
	assert.NotEmpty(t, body["debug"].(map[string]interface{})["error"])
}

type cachedResult struct {
	running bool
	res     *results.Result
}

func (c cachedResult) Running() bool { return c.running }
func (c cachedResult) Latest() (*results.Result, error) { return c.res, nil }

func TestResultsPreferRunningWatcher(t *testing.T) {
	cached := &results.Result{
		Status:   results.StatusOK,
		Dir:      "cache",
		File:     "profit-engine_result_c.json",
		Files:    []string{"profit-engine_result_c.json"},
		Raw:      json.RawMessage(`{"job_id":"cached"}`),
		Envelope: &results.Envelope{JobID: "cached"},
	}

	f := newFixture(t, func(c *Config) { c.Watcher = cachedResult{running: true, res: cached} })
	body := decode(t, f.do(http.MethodGet, "/api/profit-engine/results", ""))
	assert.Equal(t, "cached", body["envelope"].(map[string]interface{})["job_id"])

	f = newFixture(t, func(c *Config) { c.Watcher = cachedResult{running: false, res: cached} })
	body = decode(t, f.do(http.MethodGet, "/api/profit-engine/results", ""))
	assert.Equal(t, "empty", body["status"])
}

func TestResultsSample(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/api/profit-engine/results/sample", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "sample", body["status"])
	assert.Equal(t, "profit-engine", body["envelope"].(map[string]interface{})["engine"])
}

func newSupabase(t *testing.T, h http.HandlerFunc) *supabase.Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	c, err := supabase.New(ts.URL, "anon", supabase.Options{
		Retry: &resilience.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	})
	require.NoError(t, err)
	return c
}

func TestWaitlist(t *testing.T) {
	var got []byte
	client := newSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		got, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":3,"email":"fan@example.com"}]`))
	})
	f := newFixture(t, func(c *Config) { c.Waitlist = waitlist.NewService(client, c.Logger) })

	rec := f.do(http.MethodPost, "/api/waitlist", `{"email":" Fan@Example.com ","note":"nfl"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"ok":true,"subscriber":{"id":3,"email":"fan@example.com"}}`, rec.Body.String())
	assert.JSONEq(t, `{"email":"fan@example.com","note":"nfl"}`, string(got))

	cases := []struct {
		body   string
		status int
		msg    string
	}{
		{`{}`, http.StatusBadRequest, "Missing email"},
		{`{"email":5}`, http.StatusBadRequest, "Missing email"},
		{`not json`, http.StatusBadRequest, "Missing email"},
		{`{"email":"nope"}`, http.StatusBadRequest, "Invalid email"},
	}
	for _, tc := range cases {
		rec := f.do(http.MethodPost, "/api/waitlist", tc.body)
		assert.Equal(t, tc.status, rec.Code, tc.body)
		assert.Equal(t, tc.msg, decode(t, rec)["error"], tc.body)
	}

	rec = f.do(http.MethodGet, "/api/waitlist", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWaitlistSupabaseFailure(t *testing.T) {
	client := newSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid API key"}`))
	})
	f := newFixture(t, func(c *Config) { c.Waitlist = waitlist.NewService(client, c.Logger) })

	rec := f.do(http.MethodPost, "/api/waitlist", `{"email":"fan@example.com"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"Failed to save in Supabase"}`, rec.Body.String())
	assert.Contains(t, f.logs.String(), "Invalid API key")
}

func TestWaitlistNotConfigured(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodPost, "/api/waitlist", `{"email":"fan@example.com"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"Waitlist storage is not configured"}`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.CORSOrigins = []string{"https://knowledgebank.example"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/zalara", nil)
	req.Header.Set("Origin", "https://knowledgebank.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://knowledgebank.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestLogging(t *testing.T) {
	f := newFixture(t, nil)
	f.do(http.MethodGet, "/api/jobs/missing", "")

	line := f.logs.String()
	assert.Contains(t, line, `"path":"/api/jobs/missing"`)
	assert.Contains(t, line, `"status":404`)
	assert.Contains(t, line, `"method":"GET"`)
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/api/nothing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, decode(t, rec)["ok"])
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
