package dispatch

import (
	"time"
)

// Status is the outcome of one agent within one invocation.
type Status string

const (
	StatusSkipped          Status = "skipped"
	StatusWritten          Status = "written"
	StatusGenerationFailed Status = "generation_failed"
	StatusWriteFailed      Status = "write_failed"
	StatusInputFailed      Status = "input_failed"
	// StatusFailed marks an agent whose run panicked.
	StatusFailed Status = "failed"
)

// AgentResult describes what happened to one agent.
type AgentResult struct {
	Agent  string `json:"agent"`
	Status Status `json:"status"`
	// Reason explains a skip.
	Reason string `json:"reason,omitempty"`
	// Path is the artifact location for written agents.
	Path     string        `json:"path,omitempty"`
	Attempts int           `json:"attempts,omitempty"`
	Missing  []string      `json:"missing_vars,omitempty"`
	Inputs   []string      `json:"inputs,omitempty"`
	Error    string        `json:"error,omitempty"`
	Hook     string        `json:"hook_error,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`

	err error
}

// Err returns the failure behind a non written, non skipped result.
func (r AgentResult) Err() error {
	return r.err
}

// Report summarizes an invocation. Results follow registry order.
type Report struct {
	RunID    string        `json:"run_id"`
	At       time.Time     `json:"at"`
	Registry string        `json:"registry"`
	Results  []AgentResult `json:"results"`
}

// Count returns how many agents ended with status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Failures returns the results of agents that were due but produced no
// artifact.
func (r *Report) Failures() []AgentResult {
	var out []AgentResult
	for _, res := range r.Results {
		switch res.Status {
		case StatusGenerationFailed, StatusWriteFailed, StatusInputFailed, StatusFailed:
			out = append(out, res)
		}
	}
	return out
}
