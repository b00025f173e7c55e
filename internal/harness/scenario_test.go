package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "worked_example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "worked_example", s.Name)
	assert.Len(t, s.Setup, 2)
	require.Len(t, s.Flow, 3)
	assert.Equal(t, OpEmissions, s.Flow[0].Op)
	assert.Equal(t, map[string]any{"name": "Acme", "actual": 40}, s.Flow[0].Args)
	assert.Equal(t, &ExpectClause{Case: CaseOK}, s.Flow[0].Expect)
	assert.Nil(t, s.Flow[1].Expect)
	assert.Len(t, s.Assertions, 5)
	require.NotNil(t, s.Assertions[2].Total)
	assert.Equal(t, int64(110), *s.Assertions[2].Total)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join("testdata", "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Errors(t *testing.T) {
	const base = `name: s
description: d
`
	const flow = `flow:
  - op: register
    args: { name: Acme, allowed: 1 }
`
	const assertions = `assertions:
  - type: total_credits
    total: 1
`
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown field", base + flow + assertions + "assertion: []\n", "field assertion not found"},
		{"missing name", "description: d\n" + flow + assertions, "name is required"},
		{"missing description", "name: s\n" + flow + assertions, "description is required"},
		{"empty flow", base + assertions, "flow list is required"},
		{"empty assertions", base + flow, "assertions list is required"},
		{
			"unknown op",
			base + "flow:\n  - op: burn\n    args: {}\n" + assertions,
			`flow[0]: unknown op "burn"`,
		},
		{
			"missing args",
			base + "flow:\n  - op: register\n" + assertions,
			"flow[0]: args is required",
		},
		{
			"missing arg",
			base + "flow:\n  - op: transfer\n    args: { seller: A, amount: 1 }\n" + assertions,
			`flow[0]: arg "buyer" is required`,
		},
		{
			"wrong arg type",
			base + "flow:\n  - op: register\n    args: { name: A, allowed: lots }\n" + assertions,
			`arg "allowed" must be an integer`,
		},
		{
			"unknown arg",
			base + "flow:\n  - op: register\n    args: { name: A, allowed: 1, colour: red }\n" + assertions,
			`unknown arg "colour" for register`,
		},
		{
			"expect in setup",
			base + "setup:\n  - op: register\n    args: { name: A, allowed: 1 }\n    expect: { case: ok }\n" + flow + assertions,
			"setup[0]: expect is not allowed in setup",
		},
		{
			"unknown case",
			base + "flow:\n  - op: register\n    args: { name: A, allowed: 1 }\n    expect: { case: Broke }\n" + assertions,
			`flow[0].expect: unknown case "Broke"`,
		},
		{
			"unknown assertion type",
			base + flow + "assertions:\n  - type: vibes\n",
			`assertions[0]: unknown assertion type "vibes"`,
		},
		{
			"final_state without expect",
			base + flow + "assertions:\n  - type: final_state\n    entity: Acme\n",
			"expect is required for final_state",
		},
		{
			"final_state unknown field",
			base + flow + "assertions:\n  - type: final_state\n    entity: Acme\n    expect: { balance: 1 }\n",
			`unknown final_state field "balance"`,
		},
		{
			"total_credits without total",
			base + flow + "assertions:\n  - type: total_credits\n",
			"total is required for total_credits",
		},
		{
			"trace_count bad op",
			base + flow + "assertions:\n  - type: trace_count\n    op: burn\n    count: 1\n",
			`unknown op "burn" for trace_count`,
		},
		{
			"entity_order without entities",
			base + flow + "assertions:\n  - type: entity_order\n",
			"entities list is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseScenario_TotalZero(t *testing.T) {
	s, err := ParseScenario([]byte(`name: s
description: d
flow:
  - op: register
    args: { name: A, allowed: 0 }
assertions:
  - type: total_credits
    total: 0
  - type: entity_order
    entities: []
`))
	require.NoError(t, err)
	require.NotNil(t, s.Assertions[0].Total)
	assert.Equal(t, int64(0), *s.Assertions[0].Total)
}

func TestLoadScenarios(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	scenario := func(name string) string {
		return "name: " + name + `
description: d
flow:
  - op: register
    args: { name: A, allowed: 1 }
assertions:
  - type: total_credits
    total: 1
`
	}

	_, err := LoadScenarios(dir)
	require.Error(t, err, "empty directory")

	write("b.yml", scenario("second"))
	write("a.yaml", scenario("first"))
	write("notes.txt", "ignored")

	got, err := LoadScenarios(dir)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Name)
	assert.Equal(t, "second", got[1].Name)

	write("c.yaml", scenario("first"))
	_, err = LoadScenarios(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `scenario name "first" already used by a.yaml`)
}
