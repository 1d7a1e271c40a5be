package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/knowledge-bank/kb-cloud/jobs"
	"github.com/knowledge-bank/kb-cloud/logger"
	"github.com/knowledge-bank/kb-cloud/results"
	"github.com/knowledge-bank/kb-cloud/types"
)

const (
	defaultHeartbeat = 30 * time.Second
	defaultReplay    = 50
)

// Options configures an EventServer.
type Options struct {
	// AllowedOrigins lists browser origins that may connect. "*" allows any.
	AllowedOrigins []string
	// Heartbeat is the interval between heartbeat messages.
	Heartbeat time.Duration
	// Replay is how many recent events a new client receives on connect.
	Replay int
	Logger *logger.Logger
}

// EventServer upgrades /api/events requests and publishes job and result
// events to every connected client. It implements jobs.Publisher and
// results.Publisher.
type EventServer struct {
	hub       *Hub
	log       *logger.Logger
	upgrader  websocket.Upgrader
	heartbeat time.Duration
	startTime time.Time

	recentMu  sync.RWMutex
	recent    [][]byte
	maxRecent int
}

var (
	_ jobs.Publisher    = (*EventServer)(nil)
	_ results.Publisher = (*EventServer)(nil)
)

// NewEventServer creates an event server. Call Run before serving.
func NewEventServer(opts Options) *EventServer {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = defaultHeartbeat
	}
	if opts.Replay < 0 {
		opts.Replay = 0
	} else if opts.Replay == 0 {
		opts.Replay = defaultReplay
	}

	s := &EventServer{
		hub:       NewHub(),
		log:       log.WithField("component", "events"),
		heartbeat: opts.Heartbeat,
		startTime: time.Now(),
		maxRecent: opts.Replay,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return s
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

// Run drives the hub and the heartbeat until ctx is cancelled.
func (s *EventServer) Run(ctx context.Context) error {
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		s.hub.Run(ctx)
	}()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-hubDone
			s.log.Info("event stream stopped")
			return nil
		case <-ticker.C:
			s.broadcast(types.WSTypeHeartbeat, map[string]interface{}{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
				"uptime":    time.Since(s.startTime).Seconds(),
				"clients":   s.hub.Clients(),
			}, false)
		}
	}
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
func (s *EventServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.hub.Stopped():
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(types.NewErrorResponse("Event stream is shutting down."))
		return
	default:
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.log.Warnf("upgrade failed: %v", err)
		return
	}

	client := NewClient("client-"+uuid.NewString(), s.hub, conn, s.log)
	s.sendConnectionConfirmation(client)
	s.replayTo(client)

	if err := s.hub.Register(r.Context(), client); err != nil {
		conn.Close()
		return
	}
	s.log.WithField("client_id", client.ID()).Debug("client connected")

	go client.writePump()
	go client.readPump()
}

// Clients returns the number of connected clients.
func (s *EventServer) Clients() int {
	return s.hub.Clients()
}

// PublishJob announces a newly queued job.
func (s *EventServer) PublishJob(job *jobs.Job) {
	s.broadcast(types.WSTypeJob, job, true)
}

// PublishJobLog announces a job log line.
func (s *EventServer) PublishJobLog(entry jobs.LogEntry) {
	s.broadcast(types.WSTypeJobLog, entry, true)
}

// ResultEvent is the payload of a "result" message.
type ResultEvent struct {
	File     string          `json:"file"`
	JobID    string          `json:"job_id"`
	Envelope json.RawMessage `json:"envelope"`
}

// PublishResult announces a new result envelope.
func (s *EventServer) PublishResult(res *results.Result) {
	if res == nil || res.Envelope == nil {
		return
	}
	s.broadcast(types.WSTypeResult, ResultEvent{
		File:     res.File,
		JobID:    res.Envelope.JobID,
		Envelope: res.Raw,
	}, true)
}

func (s *EventServer) broadcast(msgType string, payload interface{}, remember bool) {
	data, err := types.NewWebSocketMessage(msgType, payload).ToJSON()
	if err != nil {
		s.log.Error("failed to marshal "+msgType+" event", err)
		return
	}
	if remember {
		s.remember(data)
	}
	s.hub.Broadcast(data)
}

func (s *EventServer) remember(data []byte) {
	if s.maxRecent == 0 {
		return
	}
	s.recentMu.Lock()
	defer s.recentMu.Unlock()
	s.recent = append(s.recent, data)
	if len(s.recent) > s.maxRecent {
		s.recent = s.recent[len(s.recent)-s.maxRecent:]
	}
}

func (s *EventServer) replayTo(c *Client) {
	s.recentMu.RLock()
	defer s.recentMu.RUnlock()
	for _, data := range s.recent {
		c.enqueue(data)
	}
}

func (s *EventServer) sendConnectionConfirmation(c *Client) {
	data, err := types.NewWebSocketMessage(types.WSTypeConnection, map[string]interface{}{
		"connected": true,
		"clientId":  c.ID(),
		"service":   "kb-cloud",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}).ToJSON()
	if err == nil {
		c.enqueue(data)
	}
}
