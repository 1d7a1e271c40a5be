package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/knowledge-bank/kb-cloud/engines"
)

// IntakeError is a client mistake in a submission; Message is returned to
// the caller verbatim with a 400.
type IntakeError struct {
	Message string
}

func (e *IntakeError) Error() string { return e.Message }

func badRequest(format string, args ...interface{}) error {
	return &IntakeError{Message: fmt.Sprintf(format, args...)}
}

// Intake turns a POSTed body into a Job for one engine route.
type Intake interface {
	// Engine is the catalog id the route serves.
	Engine() string
	// Usage is the banner returned by GET on the route.
	Usage() string
	// Note is attached to every accepted-job response.
	Note() string
	// AcceptedStatus is the HTTP status for an accepted job.
	AcceptedStatus() int
	// Parse validates body and returns the unsaved job plus the engine name
	// to echo back.
	Parse(body []byte) (job *Job, echoEngine string, err error)
	// View is the "job" value of the accepted response.
	View(job *Job) interface{}
}

// envelope is the {engine, job} wrapper shared by every engine route.
type envelope struct {
	Engine json.RawMessage
	Job    json.RawMessage
}

func parseEnvelope(body []byte) (envelope, error) {
	if !json.Valid(body) {
		return envelope{}, badRequest("Invalid JSON body.")
	}
	var fields map[string]json.RawMessage
	// Non-object bodies (arrays, strings, null) parse as an empty envelope
	// and then fail the per-engine field checks.
	_ = json.Unmarshal(body, &fields)
	return envelope{Engine: fields["engine"], Job: fields["job"]}, nil
}

func rawString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func priorityOr(p *Priority, def Priority) Priority {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// ProfitEngineIntake accepts Parlay Pilot simulation jobs.
type ProfitEngineIntake struct {
	validator *Validator
}

// NewProfitEngineIntake builds the Profit Engine intake.
func NewProfitEngineIntake() *ProfitEngineIntake {
	return &ProfitEngineIntake{validator: mustValidator(profitJobSchema)}
}

func (p *ProfitEngineIntake) Engine() string { return engines.ProfitEngineID }

func (p *ProfitEngineIntake) Usage() string {
	return "Profit Engine API stub is live. POST { engine: 'profit-engine', job: {...} } to queue a test job."
}

func (p *ProfitEngineIntake) Note() string {
	return "Profit Engine API stub: job accepted. Wiring to real simulations + Parlay Pilot will build on this."
}

func (p *ProfitEngineIntake) AcceptedStatus() int { return http.StatusOK }

type profitJobPayload struct {
	Type     *string                `json:"type"`
	Preset   *string                `json:"preset"`
	Inputs   map[string]interface{} `json:"inputs"`
	Priority *Priority              `json:"priority"`
	Tags     []string               `json:"tags"`
}

func (p *ProfitEngineIntake) Parse(body []byte) (*Job, string, error) {
	env, err := parseEnvelope(body)
	if err != nil {
		return nil, "", err
	}
	if engine, ok := rawString(env.Engine); !ok || engine != p.Engine() {
		return nil, "", badRequest("Invalid engine. Expected %q.", p.Engine())
	}
	if !isObject(env.Job) {
		return nil, "", badRequest("Missing job object.")
	}
	if err := p.validator.Validate(env.Job); err != nil {
		return nil, "", badRequest("Invalid job: %v", err)
	}

	var payload profitJobPayload
	if err := json.Unmarshal(env.Job, &payload); err != nil {
		return nil, "", badRequest("Invalid job: %v", err)
	}

	jobType := "simulation"
	if payload.Type != nil {
		jobType = *payload.Type
	}
	return &Job{
		Engine:   p.Engine(),
		Type:     jobType,
		Preset:   payload.Preset,
		Priority: priorityOr(payload.Priority, PriorityNormal),
		Tags:     tagsOrEmpty(payload.Tags),
		Inputs:   payload.Inputs,
		Payload:  append(json.RawMessage(nil), env.Job...),
	}, p.Engine(), nil
}

// ProfitJobView is the normalized job echoed back to Parlay Pilot.
type ProfitJobView struct {
	Type     string   `json:"type"`
	Preset   *string  `json:"preset"`
	Priority Priority `json:"priority"`
	Tags     []string `json:"tags"`
}

func (p *ProfitEngineIntake) View(job *Job) interface{} {
	return ProfitJobView{
		Type:     job.Type,
		Preset:   job.Preset,
		Priority: job.Priority,
		Tags:     tagsOrEmpty(job.Tags),
	}
}

// ZalaraIntake accepts creative render jobs.
type ZalaraIntake struct {
	validator *Validator
}

// NewZalaraIntake builds the Zalara intake.
func NewZalaraIntake() *ZalaraIntake {
	return &ZalaraIntake{validator: mustValidator(zalaraJobSchema)}
}

func (z *ZalaraIntake) Engine() string { return engines.ZalaraID }

func (z *ZalaraIntake) Usage() string {
	return `Zalara API stub is live. POST { "engine": "zalara", "job": { "template": "...", "inputs": { ... } } } to queue a job.`
}

func (z *ZalaraIntake) Note() string {
	return "Zalara API stub: job accepted. Wiring to Supabase + renderer comes next."
}

func (z *ZalaraIntake) AcceptedStatus() int { return http.StatusCreated }

type zalaraJobPayload struct {
	Template    json.RawMessage        `json:"template"`
	Inputs      map[string]interface{} `json:"inputs"`
	Priority    *Priority              `json:"priority"`
	CallbackURL *string                `json:"callback_url"`
	Tags        []string               `json:"tags"`
}

// falsy mirrors the checks the preview UI relies on: absent, null, false,
// 0 and "" all count as missing.
func falsy(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "false", "0", `""`:
		return true
	}
	return false
}

func (z *ZalaraIntake) Parse(body []byte) (*Job, string, error) {
	env, err := parseEnvelope(body)
	if err != nil {
		return nil, "", err
	}
	engine, ok := rawString(env.Engine)
	if !ok || engine == "" {
		return nil, "", badRequest(`Missing "engine" field`)
	}

	var fields map[string]json.RawMessage
	if isObject(env.Job) {
		_ = json.Unmarshal(env.Job, &fields)
	}
	if falsy(fields["template"]) {
		return nil, "", badRequest(`Missing "job.template" field`)
	}
	if err := z.validator.Validate(env.Job); err != nil {
		return nil, "", badRequest("Invalid job: %v", err)
	}

	var payload zalaraJobPayload
	if err := json.Unmarshal(env.Job, &payload); err != nil {
		return nil, "", badRequest("Invalid job: %v", err)
	}

	var template string
	_ = json.Unmarshal(payload.Template, &template)

	job := &Job{
		Engine:   z.Engine(),
		Template: template,
		Priority: priorityOr(payload.Priority, PriorityNormal),
		Tags:     tagsOrEmpty(payload.Tags),
		Inputs:   payload.Inputs,
		Payload:  append(json.RawMessage(nil), env.Job...),
	}
	if payload.CallbackURL != nil && *payload.CallbackURL != "" {
		u, err := url.Parse(*payload.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, "", badRequest(`Invalid "job.callback_url" field`)
		}
		job.CallbackURL = *payload.CallbackURL
	}
	return job, engine, nil
}

// View echoes the job exactly as submitted.
func (z *ZalaraIntake) View(job *Job) interface{} {
	return job.Payload
}

// SignalForgeIntake accepts pattern-scan jobs.
type SignalForgeIntake struct {
	validator *Validator
}

// NewSignalForgeIntake builds the Signal Forge intake.
func NewSignalForgeIntake() *SignalForgeIntake {
	return &SignalForgeIntake{validator: mustValidator(signalForgeJobSchema)}
}

func (s *SignalForgeIntake) Engine() string { return engines.SignalForgeID }

func (s *SignalForgeIntake) Usage() string {
	return `Signal Forge API stub is live. POST { "engine": "signal-forge", "job": { "source": "...", "query": "..." } } to queue a scan.`
}

func (s *SignalForgeIntake) Note() string {
	return "Signal Forge API stub: scan accepted. Routing to downstream engines comes next."
}

func (s *SignalForgeIntake) AcceptedStatus() int { return http.StatusCreated }

type signalForgeJobPayload struct {
	Source   string                 `json:"source"`
	Query    *string                `json:"query"`
	Inputs   map[string]interface{} `json:"inputs"`
	Priority *Priority              `json:"priority"`
	Tags     []string               `json:"tags"`
}

func (s *SignalForgeIntake) Parse(body []byte) (*Job, string, error) {
	env, err := parseEnvelope(body)
	if err != nil {
		return nil, "", err
	}
	if engine, ok := rawString(env.Engine); !ok || engine != s.Engine() {
		return nil, "", badRequest("Invalid engine. Expected %q.", s.Engine())
	}
	if !isObject(env.Job) {
		return nil, "", badRequest("Missing job object.")
	}

	var fields map[string]json.RawMessage
	_ = json.Unmarshal(env.Job, &fields)
	if falsy(fields["source"]) {
		return nil, "", badRequest(`Missing "job.source" field`)
	}
	if err := s.validator.Validate(env.Job); err != nil {
		return nil, "", badRequest("Invalid job: %v", err)
	}

	var payload signalForgeJobPayload
	if err := json.Unmarshal(env.Job, &payload); err != nil {
		return nil, "", badRequest("Invalid job: %v", err)
	}

	job := &Job{
		Engine:   s.Engine(),
		Source:   payload.Source,
		Priority: priorityOr(payload.Priority, PriorityNormal),
		Tags:     tagsOrEmpty(payload.Tags),
		Inputs:   payload.Inputs,
		Payload:  append(json.RawMessage(nil), env.Job...),
	}
	if payload.Query != nil {
		job.Query = *payload.Query
	}
	return job, s.Engine(), nil
}

// SignalForgeJobView is the accepted-scan summary.
type SignalForgeJobView struct {
	Source   string   `json:"source"`
	Query    string   `json:"query,omitempty"`
	Priority Priority `json:"priority"`
	Tags     []string `json:"tags"`
}

func (s *SignalForgeIntake) View(job *Job) interface{} {
	return SignalForgeJobView{
		Source:   job.Source,
		Query:    job.Query,
		Priority: job.Priority,
		Tags:     tagsOrEmpty(job.Tags),
	}
}

// DefaultIntakes returns the intake for every job-accepting engine.
func DefaultIntakes() []Intake {
	return []Intake{
		NewProfitEngineIntake(),
		NewZalaraIntake(),
		NewSignalForgeIntake(),
	}
}
