package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/knowledge-bank/kb-cloud/engines"
	"github.com/knowledge-bank/kb-cloud/jobs"
	"github.com/knowledge-bank/kb-cloud/types"
	"github.com/knowledge-bank/kb-cloud/waitlist"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.HealthResponse{
		OK:      true,
		Service: ServiceName,
		Env:     s.cfg.Env,
		Time:    s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

type engineList struct {
	OK      bool             `json:"ok"`
	Count   int              `json:"count"`
	Engines []engines.Engine `json:"engines"`
}

func (s *Server) handleEngines(w http.ResponseWriter, r *http.Request) {
	all := s.cfg.Catalog.All()
	writeJSON(w, http.StatusOK, engineList{OK: true, Count: len(all), Engines: all})
}

func (s *Server) handleEngineUsage(in jobs.Intake) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.EngineStatus{
			OK:      true,
			Engine:  in.Engine(),
			Message: in.Usage(),
		})
	}
}

func (s *Server) handleEngineSubmit(in jobs.Intake) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r)
		if err != nil {
			if errors.Is(err, errBodyTooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "Request body too large.")
				return
			}
			writeError(w, http.StatusBadRequest, "Invalid JSON body.")
			return
		}

		job, echo, err := in.Parse(body)
		if err != nil {
			var ie *jobs.IntakeError
			if errors.As(err, &ie) {
				writeError(w, http.StatusBadRequest, ie.Message)
				return
			}
			s.log.Error("parse "+in.Engine()+" job", err)
			writeError(w, http.StatusInternalServerError, "Server error")
			return
		}

		queued, err := s.cfg.Jobs.Submit(r.Context(), job)
		if err != nil {
			s.log.Error("submit "+in.Engine()+" job", err)
			writeError(w, http.StatusInternalServerError, "Failed to queue job.")
			return
		}

		writeJSON(w, in.AcceptedStatus(), types.JobAccepted{
			OK:     true,
			Engine: echo,
			JobID:  queued.ID,
			Status: string(queued.Status),
			Job:    in.View(queued),
			Note:   in.Note(),
		})
	}
}

type waitlistResponse struct {
	OK         bool            `json:"ok"`
	Subscriber json.RawMessage `json:"subscriber"`
}

func (s *Server) handleWaitlist(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if errors.Is(err, errBodyTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large.")
		return
	}

	var signup waitlist.Signup
	if err != nil || json.Unmarshal(body, &signup) != nil {
		writeError(w, http.StatusBadRequest, "Missing email")
		return
	}

	sub, err := s.cfg.Waitlist.Add(r.Context(), signup)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, waitlistResponse{OK: true, Subscriber: sub})
	case errors.Is(err, waitlist.ErrMissingEmail):
		writeError(w, http.StatusBadRequest, "Missing email")
	case errors.Is(err, waitlist.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "Invalid email")
	case errors.Is(err, waitlist.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "Waitlist storage is not configured")
	case errors.Is(err, waitlist.ErrUpstream):
		writeError(w, http.StatusInternalServerError, "Failed to save in Supabase")
	default:
		s.log.Error("Waitlist API error", err)
		writeError(w, http.StatusInternalServerError, "Server error")
	}
}

type jobList struct {
	OK    bool        `json:"ok"`
	Count int         `json:"count"`
	Jobs  []*jobs.Job `json:"jobs"`
}

type jobDetail struct {
	OK  bool      `json:"ok"`
	Job *jobs.Job `json:"job"`
}

type jobLogs struct {
	OK    bool            `json:"ok"`
	JobID string          `json:"job_id"`
	Logs  []jobs.LogEntry `json:"logs"`
}

func (s *Server) handleJobList(w http.ResponseWriter, r *http.Request) {
	opts := jobs.ListOptions{Engine: r.URL.Query().Get("engine")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit.")
			return
		}
		opts.Limit = n
	}

	list, err := s.cfg.Jobs.List(r.Context(), opts)
	if err != nil {
		s.log.Error("list jobs", err)
		writeError(w, http.StatusInternalServerError, "Failed to list jobs.")
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}
	writeJSON(w, http.StatusOK, jobList{OK: true, Count: len(list), Jobs: list})
}

func (s *Server) handleJobGet(w http.ResponseWriter, r *http.Request) {
	job, err := s.cfg.Jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.jobLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobDetail{OK: true, Job: job})
}

func (s *Server) handleJobLogs(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	logs, err := s.cfg.Jobs.Logs(r.Context(), id)
	if err != nil {
		s.jobLookupError(w, err)
		return
	}
	if logs == nil {
		logs = []jobs.LogEntry{}
	}
	writeJSON(w, http.StatusOK, jobLogs{OK: true, JobID: id, Logs: logs})
}

func (s *Server) jobLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Job not found.")
		return
	}
	s.log.Error("read job", err)
	writeError(w, http.StatusInternalServerError, "Failed to read job.")
}
