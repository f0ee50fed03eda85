// Package harness runs YAML scenarios against the full application.
//
// # Scenario Format
//
//	name: hide_then_show
//	description: "Signal changes become setVisibility dispatches"
//	steps:
//	  - dispatch: START_WATCHING_VISIBILITY
//	  - emit: false
//	  - emit: true
//	  - dispatch: "@@router/LOCATION_CHANGE"
//	    payload: { pathname: "/about" }
//	  - stop_source: true
//	  - cancel: true
//	expect:
//	  states: [false, true]
//	  listeners: 0
//	  root_state: cancelled
//	assertions:
//	  - type: trace_order
//	    tags: [START_WATCHING_VISIBILITY, visibility/setVisibility]
//
// # Steps
//
// Each step does exactly one thing, then the scheduler is flushed until idle:
//
//   - dispatch: dispatch a registered event by tag, with optional payload
//   - emit: push a value through the visibility signal
//   - cancel: cancel the bridge's root task
//   - stop_source: detach the signal so later subscribes fail
//   - advance: move the throttle clock forward (Go duration string)
//
// # Deterministic Testing
//
// Task IDs come from a sequential generator, throttle windows read a fake
// clock, and the run is journaled into an in-memory SQLite database and
// replayed at the end. Traces are therefore identical across runs and can be
// compared against golden files.
package harness
