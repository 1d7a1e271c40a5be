// Package jobs accepts engine job submissions, validates their shape, and
// queues them in a Store for a worker to pick up.
package jobs

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is the lifecycle state of a job. The service only ever writes
// StatusQueued; the others are set by the worker.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Priority of a queued job.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ErrNotFound is returned when a job id is unknown to the store.
var ErrNotFound = errors.New("jobs: not found")

// Job is one queued unit of engine work.
type Job struct {
	ID          string                 `json:"id"`
	Engine      string                 `json:"engine"`
	Status      Status                 `json:"status"`
	Type        string                 `json:"type,omitempty"`
	Preset      *string                `json:"preset"`
	Priority    Priority               `json:"priority,omitempty"`
	Tags        []string               `json:"tags"`
	Template    string                 `json:"template,omitempty"`
	Source      string                 `json:"source,omitempty"`
	Query       string                 `json:"query,omitempty"`
	Inputs      map[string]interface{} `json:"inputs,omitempty"`
	CallbackURL string                 `json:"callback_url,omitempty"`
	Payload     json.RawMessage        `json:"payload,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// LogEntry is one line in a job's log.
type LogEntry struct {
	JobID     string    `json:"job_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ListOptions filters Store.List.
type ListOptions struct {
	Engine string
	Limit  int
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (o ListOptions) limit() int {
	switch {
	case o.Limit <= 0:
		return defaultListLimit
	case o.Limit > maxListLimit:
		return maxListLimit
	default:
		return o.Limit
	}
}

func cloneJob(j *Job) *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Preset != nil {
		p := *j.Preset
		c.Preset = &p
	}
	if j.Tags != nil {
		c.Tags = append([]string(nil), j.Tags...)
	}
	if j.Payload != nil {
		c.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	if j.Inputs != nil {
		c.Inputs = make(map[string]interface{}, len(j.Inputs))
		for k, v := range j.Inputs {
			c.Inputs[k] = v
		}
	}
	return &c
}
