package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/hide_then_show.yaml")
	require.NoError(t, err)

	assert.Equal(t, "hide_then_show", sc.Name)
	require.Len(t, sc.Steps, 5)
	assert.Equal(t, "START_WATCHING_VISIBILITY", sc.Steps[0].Dispatch)
	require.NotNil(t, sc.Steps[1].Emit)
	assert.False(t, *sc.Steps[1].Emit)
	assert.Equal(t, map[string]any{"pathname": "/about"}, sc.Steps[3].Payload)
	assert.True(t, sc.Steps[4].Cancel)
	assert.Equal(t, []bool{false, true}, sc.Expect.States)
	assert.Equal(t, "cancelled", sc.Expect.RootState)
	assert.Len(t, sc.Assertions, 3)
}

func TestLoadScenario_Missing(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "unknown field",
			src:  "name: x\ndescription: d\nstep: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			src:  "description: d\nsteps: [{cancel: true}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			src:  "name: x\nsteps: [{cancel: true}]\n",
			want: "description is required",
		},
		{
			name: "no steps",
			src:  "name: x\ndescription: d\n",
			want: "steps list is required",
		},
		{
			name: "two actions in one step",
			src:  "name: x\ndescription: d\nsteps: [{cancel: true, emit: true}]\n",
			want: "exactly one of",
		},
		{
			name: "empty step",
			src:  "name: x\ndescription: d\nsteps: [{}]\n",
			want: "exactly one of",
		},
		{
			name: "unknown tag",
			src:  "name: x\ndescription: d\nsteps: [{dispatch: NOPE}]\n",
			want: `unknown tag "NOPE"`,
		},
		{
			name: "payload without dispatch",
			src:  "name: x\ndescription: d\nsteps: [{emit: true, payload: {a: 1}}]\n",
			want: "payload requires dispatch",
		},
		{
			name: "bad advance",
			src:  "name: x\ndescription: d\nsteps: [{advance: soon}]\n",
			want: "is not a duration",
		},
		{
			name: "bad report window",
			src:  "name: x\ndescription: d\nreport_window: 0s\nsteps: [{cancel: true}]\n",
			want: "report_window",
		},
		{
			name: "bad root state",
			src:  "name: x\ndescription: d\nsteps: [{cancel: true}]\nexpect: {root_state: done}\n",
			want: "unknown state",
		},
		{
			name: "unknown assertion",
			src:  "name: x\ndescription: d\nsteps: [{cancel: true}]\nassertions: [{type: final_state}]\n",
			want: "unknown assertion type",
		},
		{
			name: "trace_order without tags",
			src:  "name: x\ndescription: d\nsteps: [{cancel: true}]\nassertions: [{type: trace_order}]\n",
			want: "tags list is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	files, err := FindScenarios(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yml"), filepath.Join(dir, "b.yaml")}, files)

	single, err := FindScenarios(filepath.Join(dir, "b.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.yaml")}, single)
}

func TestRunSuite_RecordsLoadErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: x\n"), 0o644))

	results, err := RunSuite(t.Context(), dir)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Passed())
	assert.Contains(t, results[0].Err, "description is required")
}
