package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/vigil/internal/event"
	"github.com/roach88/vigil/internal/saga"
)

// Scenario is a scripted run of the application.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// InitialVisible is the signal's starting value. Default: true.
	InitialVisible *bool `yaml:"initial_visible,omitempty"`

	// AutoWatch dispatches START_WATCHING_VISIBILITY when the app starts,
	// as the application does in production.
	AutoWatch bool `yaml:"auto_watch,omitempty"`

	// ReportWindow enables the throttled visibility report (Go duration).
	ReportWindow string `yaml:"report_window,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Expect     Expect      `yaml:"expect"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one scripted action. Exactly one field must be set.
type Step struct {
	Dispatch   string         `yaml:"dispatch,omitempty"`
	Payload    map[string]any `yaml:"payload,omitempty"`
	Emit       *bool          `yaml:"emit,omitempty"`
	Cancel     bool           `yaml:"cancel,omitempty"`
	StopSource bool           `yaml:"stop_source,omitempty"`
	Advance    string         `yaml:"advance,omitempty"`
}

// Expect lists the outcome checks. Unset fields are not checked.
type Expect struct {
	// States is the exact sequence of setVisibility values dispatched.
	States []bool `yaml:"states,omitempty"`

	// Visible is the final visibility slice value.
	Visible *bool `yaml:"visible,omitempty"`

	// Pathname is the final router location.
	Pathname string `yaml:"pathname,omitempty"`

	// Listeners is the number of live signal subscriptions at the end.
	Listeners *int `yaml:"listeners,omitempty"`

	// RootState is the bridge root task's final state name.
	RootState string `yaml:"root_state,omitempty"`

	// Reports is the number of throttled visibility reports logged.
	Reports *int `yaml:"reports,omitempty"`

	// Failures is the number of failed roots reported.
	Failures *int `yaml:"failures,omitempty"`
}

// Assertion validates the trace.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count.
	Type string `yaml:"type"`

	// Tag is the event tag (trace_contains, trace_count).
	Tag string `yaml:"tag,omitempty"`

	// Payload is a subset match on the event payload (trace_contains).
	Payload map[string]any `yaml:"payload,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Tags is the expected relative order (trace_order).
	Tags []string `yaml:"tags,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

var rootStates = map[string]bool{
	saga.Ready.String():     true,
	saga.Running.String():   true,
	saga.Suspended.String(): true,
	saga.Completed.String(): true,
	saga.Cancelled.String(): true,
	saga.Failed.String():    true,
}

// LoadScenario reads, parses and validates a scenario file.
// Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.ReportWindow != "" {
		if d, err := time.ParseDuration(s.ReportWindow); err != nil || d <= 0 {
			return fmt.Errorf("report_window: %q is not a positive duration", s.ReportWindow)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	if s.Expect.RootState != "" && !rootStates[s.Expect.RootState] {
		return fmt.Errorf("expect.root_state: unknown state %q", s.Expect.RootState)
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	set := 0
	if step.Dispatch != "" {
		set++
		if _, ok := event.Lookup(event.Tag(step.Dispatch)); !ok {
			return fmt.Errorf("steps[%d]: unknown tag %q", i, step.Dispatch)
		}
	}
	if step.Emit != nil {
		set++
	}
	if step.Cancel {
		set++
	}
	if step.StopSource {
		set++
	}
	if step.Advance != "" {
		set++
		if d, err := time.ParseDuration(step.Advance); err != nil || d < 0 {
			return fmt.Errorf("steps[%d]: advance %q is not a duration", i, step.Advance)
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of dispatch, emit, cancel, stop_source, advance is required", i)
	}
	if step.Payload != nil && step.Dispatch == "" {
		return fmt.Errorf("steps[%d]: payload requires dispatch", i)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Tag == "" {
			return fmt.Errorf("assertions[%d]: tag is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Tags) == 0 {
			return fmt.Errorf("assertions[%d]: tags list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Tag == "" {
			return fmt.Errorf("assertions[%d]: tag is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
