package harness

import (
	"encoding/json"

	"github.com/roach88/vigil/internal/app"
	"github.com/roach88/vigil/internal/event"
)

// TraceEvent is one dispatch seen by the store during a scenario.
type TraceEvent struct {
	Seq     int64           `json:"seq"`
	Tag     string          `json:"tag"`
	Payload json.RawMessage `json:"payload"`
	State   app.State       `json:"state"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every dispatch in seq order, reserved events included.
	Trace []TraceEvent `json:"trace"`

	// Errors holds expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	Final     app.State `json:"final_state"`
	RootState string    `json:"root_state"`
	Listeners int       `json:"listeners"`
	Reports   int       `json:"reports"`
	Failures  []string  `json:"failures,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Visibilities returns the values of every setVisibility in the trace.
func (r *Result) Visibilities() []bool {
	out := []bool{}
	for _, ev := range r.Trace {
		if ev.Tag != string(event.TagSetVisibility) {
			continue
		}
		var p struct {
			Visible bool `json:"visible"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err == nil {
			out = append(out, p.Visible)
		}
	}
	return out
}
