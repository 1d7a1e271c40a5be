// Package api is the HTTP surface of kb-cloud: engine job intake, results,
// waitlist, job read-back and the live event stream.
package api

import (
	"net/http"
	"time"

	"github.com/knowledge-bank/kb-cloud/engines"
	"github.com/knowledge-bank/kb-cloud/jobs"
	"github.com/knowledge-bank/kb-cloud/logger"
	"github.com/knowledge-bank/kb-cloud/results"
	"github.com/knowledge-bank/kb-cloud/waitlist"
)

// ServiceName is reported by /api/health.
const ServiceName = "kb-cloud"

// MaxBodyBytes caps every request body.
const MaxBodyBytes = 1 << 20

// ResultCache is a live view of the newest result, normally a
// *results.Watcher.
type ResultCache interface {
	Running() bool
	Latest() (*results.Result, error)
}

// Config wires the server's dependencies. Catalog, Jobs and Results are
// required.
type Config struct {
	Env         string
	CORSOrigins []string

	Catalog  *engines.Catalog
	Jobs     *jobs.Service
	Intakes  []jobs.Intake
	Waitlist *waitlist.Service
	Results  *results.Reader
	Watcher  ResultCache
	Events   http.Handler

	Logger *logger.Logger
}

// Server holds the handlers.
type Server struct {
	cfg Config
	log *logger.Logger
	now func() time.Time
}

// NewServer builds a Server. Intakes default to jobs.DefaultIntakes.
func NewServer(cfg Config) *Server {
	if cfg.Intakes == nil {
		cfg.Intakes = jobs.DefaultIntakes()
	}
	if cfg.Waitlist == nil {
		cfg.Waitlist = waitlist.NewService(nil, cfg.Logger)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Server{
		cfg: cfg,
		log: log.WithField("component", "api"),
		now: time.Now,
	}
}

// Handler returns the routed handler with CORS, request logging and the
// body limit applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	getOnly := func(path string, h http.Handler) {
		mux.Handle("GET "+path, h)
		mux.Handle(path, methodNotAllowed("Method not allowed. Use GET "+path+".", http.MethodGet))
	}

	getOnly("/api/health", http.HandlerFunc(s.handleHealth))

	mux.HandleFunc("GET /api/engines", s.handleEngines)
	mux.Handle("/api/engines", methodNotAllowed("Read-only endpoint. Use GET /api/engines.", http.MethodGet))

	for _, in := range s.cfg.Intakes {
		path := "/api/" + in.Engine()
		mux.HandleFunc("GET "+path, s.handleEngineUsage(in))
		mux.HandleFunc("POST "+path, s.handleEngineSubmit(in))
		mux.Handle(path, methodNotAllowed("Method not allowed. Use GET or POST "+path+".", http.MethodGet, http.MethodPost))
	}

	getOnly("/api/profit-engine/results", http.HandlerFunc(s.handleResults))
	getOnly("/api/profit-engine/results/sample", http.HandlerFunc(s.handleResultsSample))

	mux.HandleFunc("POST /api/waitlist", s.handleWaitlist)
	mux.Handle("/api/waitlist", methodNotAllowed("Method not allowed. Use POST /api/waitlist.", http.MethodPost))

	getOnly("/api/jobs", http.HandlerFunc(s.handleJobList))
	getOnly("/api/jobs/{id}", http.HandlerFunc(s.handleJobGet))
	getOnly("/api/jobs/{id}/logs", http.HandlerFunc(s.handleJobLogs))

	if s.cfg.Events != nil {
		getOnly("/api/events", s.cfg.Events)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found.")
	})

	var h http.Handler = mux
	h = limitBody(h, MaxBodyBytes)
	h = logRequests(h, s.log)
	h = cors(h, s.cfg.CORSOrigins)
	return h
}
