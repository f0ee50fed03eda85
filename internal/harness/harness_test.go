package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runYAML(t *testing.T, src string) *Result {
	t.Helper()
	sc, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	res, err := Run(context.Background(), sc)
	require.NoError(t, err)
	return res
}

func TestRunSuite_AllScenariosPass(t *testing.T) {
	results, err := RunSuite(context.Background(), "testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for _, sr := range results {
		t.Run(sr.Name, func(t *testing.T) {
			require.Empty(t, sr.Err)
			assert.True(t, sr.Passed(), "errors: %v", sr.Result.Errors)
		})
	}
}

func TestRunWithGolden_HideThenShow(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/hide_then_show.yaml")
	require.NoError(t, err)

	res, err := RunWithGolden(t, sc)
	require.NoError(t, err)
	assert.True(t, res.Pass, "errors: %v", res.Errors)
}

func TestRun_Deterministic(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/throttled_report.yaml")
	require.NoError(t, err)

	first, err := Run(context.Background(), sc)
	require.NoError(t, err)
	second, err := Run(context.Background(), sc)
	require.NoError(t, err)

	a, err := Snapshot(sc.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(sc.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ReportsExpectationFailures(t *testing.T) {
	res := runYAML(t, `
name: wrong
description: "expectations that do not hold"
steps:
  - dispatch: START_WATCHING_VISIBILITY
  - emit: false
expect:
  states: [true]
  visible: true
  listeners: 0
  root_state: completed
  reports: 1
assertions:
  - type: trace_count
    tag: START_WATCHING_VISIBILITY
    count: 3
`)
	assert.False(t, res.Pass)
	assert.Len(t, res.Errors, 6)
	assert.Equal(t, "suspended", res.RootState)
	assert.Equal(t, 1, res.Listeners)
	assert.Equal(t, []bool{false}, res.Visibilities())
}

func TestRun_FailuresRecorded(t *testing.T) {
	res := runYAML(t, `
name: unavailable
description: "detached source"
steps:
  - stop_source: true
  - dispatch: START_WATCHING_VISIBILITY
`)
	assert.True(t, res.Pass)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0], "visibility")
	assert.Equal(t, "failed", res.RootState)
}

func TestRun_TraceIncludesReservedEvents(t *testing.T) {
	res := runYAML(t, `
name: router
description: "router events are traced"
steps:
  - dispatch: "@@router/LOCATION_CHANGE"
    payload: { pathname: "/x" }
`)
	require.Len(t, res.Trace, 1)
	assert.Equal(t, "@@router/LOCATION_CHANGE", res.Trace[0].Tag)
	assert.JSONEq(t, `{"pathname":"/x"}`, string(res.Trace[0].Payload))
	assert.Equal(t, "/x", res.Final.Router.Pathname)
}
