package results

import (
	"encoding/json"
)

// Summary is the headline block of a Profit Engine run.
type Summary struct {
	League     string   `json:"league"`
	Season     float64  `json:"season"`
	Week       float64  `json:"week"`
	NumGames   *float64 `json:"num_games,omitempty"`
	NumSims    *float64 `json:"num_sims,omitempty"`
	HitRatePct *float64 `json:"hit_rate_pct,omitempty"`
	AvgEdgePct *float64 `json:"avg_edge_pct,omitempty"`
	MaxEdgePct *float64 `json:"max_edge_pct,omitempty"`
	NumTickets *float64 `json:"num_tickets,omitempty"`
	RiskPreset *string  `json:"risk_preset,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type summaryAlias Summary

func (s *Summary) UnmarshalJSON(data []byte) error {
	var a summaryAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := splitExtra(data, &a)
	if err != nil {
		return err
	}
	*s = Summary(a)
	s.Extra = extra
	return nil
}

func (s Summary) MarshalJSON() ([]byte, error) {
	return mergeExtra(summaryAlias(s), s.Extra)
}

// Envelope is one profit-engine_result_*.json file as written by the
// simulation worker. Keys the worker adds beyond the known ones are kept in
// Extra and written back out unchanged.
type Envelope struct {
	Version string            `json:"version"`
	Engine  string            `json:"engine"`
	Status  string            `json:"status"`
	JobID   string            `json:"job_id"`
	Summary *Summary          `json:"summary,omitempty"`
	Tickets []json.RawMessage `json:"tickets,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type envelopeAlias Envelope

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var a envelopeAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := splitExtra(data, &a)
	if err != nil {
		return err
	}
	*e = Envelope(a)
	e.Extra = extra
	return nil
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	return mergeExtra(envelopeAlias(e), e.Extra)
}

// splitExtra returns the keys of data that known does not claim.
func splitExtra(data []byte, known interface{}) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	knownJSON, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	var claimed map[string]json.RawMessage
	if err := json.Unmarshal(knownJSON, &claimed); err != nil {
		return nil, err
	}
	for k := range all {
		if _, ok := claimed[k]; ok {
			delete(all, k)
		}
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func mergeExtra(known interface{}, extra map[string]json.RawMessage) ([]byte, error) {
	knownJSON, err := json.Marshal(known)
	if err != nil || len(extra) == 0 {
		return knownJSON, err
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(knownJSON, &out); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// decodeView reads the typed view of an envelope. Worker output whose known
// fields drift in type still yields the top-level string fields.
func decodeView(data []byte) *Envelope {
	var env Envelope
	if err := json.Unmarshal(data, &env); err == nil {
		return &env
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return &Envelope{}
	}
	str := func(key string) string {
		var s string
		_ = json.Unmarshal(fields[key], &s)
		return s
	}
	return &Envelope{
		Version: str("version"),
		Engine:  str("engine"),
		Status:  str("status"),
		JobID:   str("job_id"),
	}
}
