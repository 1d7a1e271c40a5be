package api

import (
	"encoding/json"
	"net/http"

	"github.com/knowledge-bank/kb-cloud/results"
)

type resultsDebug struct {
	ResultsDir  string   `json:"RESULTS_DIR"`
	Files       []string `json:"files,omitempty"`
	Latest      string   `json:"latest,omitempty"`
	FullPath    string   `json:"fullPath,omitempty"`
	RawLength   *int     `json:"rawLength,omitempty"`
	StrippedBOM *bool    `json:"strippedBom,omitempty"`
}

type resultsResponse struct {
	OK       bool            `json:"ok"`
	Status   string          `json:"status"`
	Message  string          `json:"message,omitempty"`
	File     string          `json:"file,omitempty"`
	Envelope json.RawMessage `json:"envelope,omitempty"`
	Debug    interface{}     `json:"debug,omitempty"`
}

// latestResult prefers the watcher's cache and falls back to a direct scan.
func (s *Server) latestResult() (*results.Result, error) {
	if w := s.cfg.Watcher; w != nil && w.Running() {
		if res, err := w.Latest(); err != nil || res != nil {
			return res, err
		}
	}
	return s.cfg.Results.Latest()
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	res, err := s.latestResult()
	if err != nil {
		s.log.Error("Error in /api/profit-engine/results", err)
		writeJSON(w, http.StatusInternalServerError, resultsResponse{
			OK:      false,
			Status:  "error",
			Message: "Exception in results route.",
			Debug:   map[string]string{"error": err.Error()},
		})
		return
	}

	if res.Status == results.StatusEmpty {
		writeJSON(w, http.StatusOK, resultsResponse{
			OK:      true,
			Status:  results.StatusEmpty,
			Message: "No Profit Engine result envelopes found.",
			Debug:   resultsDebug{ResultsDir: res.Dir},
		})
		return
	}

	rawLength, stripped := res.RawLength, res.StrippedBOM
	writeJSON(w, http.StatusOK, resultsResponse{
		OK:       true,
		Status:   results.StatusOK,
		File:     res.File,
		Envelope: res.Raw,
		Debug: resultsDebug{
			ResultsDir:  res.Dir,
			Files:       res.Files,
			Latest:      res.File,
			FullPath:    res.FullPath,
			RawLength:   &rawLength,
			StrippedBOM: &stripped,
		},
	})
}

func (s *Server) handleResultsSample(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, resultsResponse{OK: true, Status: "sample", Envelope: results.SampleJSON()})
}
