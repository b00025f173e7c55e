package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/carbonledger/internal/ledger"
)

// ledgerDB returns --db flags for a fresh SQLite file.
func ledgerDB(t *testing.T) []string {
	t.Helper()
	return []string{"--db", filepath.Join(t.TempDir(), "carbon_credits.db")}
}

func run(t *testing.T, db []string, args ...string) string {
	t.Helper()
	out, err := execute(t, "", append(db, args...)...)
	require.NoError(t, err, out)
	return out
}

// tableRows splits list output into whitespace-separated fields per line.
func tableRows(out string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		rows = append(rows, strings.Fields(line))
	}
	return rows
}

func TestCommands_WorkedExample(t *testing.T) {
	db := ledgerDB(t)

	assert.Equal(t, "✓ Company 'Acme' registered successfully!\n", run(t, db, "register", "Acme", "100"))
	run(t, db, "register", "Globex", "50")
	assert.Equal(t, "✓ Emissions updated for 'Acme'. Remaining credits: 60\n", run(t, db, "emissions", "Acme", "40"))
	assert.Equal(t, "✓ Acme sold 30 credits to Globex.\n", run(t, db, "trade", "Acme", "Globex", "30"))

	rows := tableRows(run(t, db, "list"))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Company", "Allowed", "Emissions", "Actual", "Emissions", "Credits"}, rows[0])
	assert.Equal(t, []string{"Acme", "100", "40", "30"}, rows[1])
	assert.Equal(t, []string{"Globex", "50", "0", "80"}, rows[2])

	out := run(t, db, "show", "Globex")
	assert.Contains(t, out, "Company:           Globex\n")
	assert.Contains(t, out, "Credits:           80")
}

func TestCommands_JSONOutput(t *testing.T) {
	db := append(ledgerDB(t), "--format", "json")

	run(t, db, "register", "Acme", "100")
	run(t, db, "register", "Globex", "50")

	var trade struct {
		Status string          `json:"status"`
		Data   ledger.Transfer `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(run(t, db, "trade", "Globex", "Acme", "20")), &trade))
	assert.Equal(t, "ok", trade.Status)
	assert.Equal(t, int64(20), trade.Data.Amount)
	assert.Equal(t, int64(30), trade.Data.Seller.Credits)
	assert.Equal(t, int64(120), trade.Data.Buyer.Credits)

	var list struct {
		Data []ledger.Entity `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(run(t, db, "list")), &list))
	assert.Equal(t, []ledger.Entity{
		{Name: "Acme", AllowedEmissions: 100, Credits: 120},
		{Name: "Globex", AllowedEmissions: 50, Credits: 30},
	}, list.Data)
}

func TestCommands_EmptyList(t *testing.T) {
	db := ledgerDB(t)
	assert.Equal(t, "No companies registered.\n", run(t, db, "list"))

	out := run(t, append(db, "--format", "json"), "list")
	assert.JSONEq(t, `{"status":"ok","data":[]}`, out)
}

func TestCommands_LedgerFailures(t *testing.T) {
	db := ledgerDB(t)
	run(t, db, "register", "Acme", "100")
	run(t, db, "register", "Globex", "50")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"duplicate", []string{"register", "Acme", "5"}, `Error [E003]: register: entity already registered ("Acme")`},
		{"negative allowed", []string{"register", "Hooli", "-1"}, "Error [E001]: register: invalid argument"},
		{"negative actual", []string{"emissions", "Acme", "-5"}, "Error [E001]: record_emissions: invalid argument"},
		{"negative amount", []string{"trade", "Acme", "Globex", "-5"}, "Error [E001]: transfer: invalid argument"},
		{"unknown entity", []string{"emissions", "Hooli", "1"}, `Error [E002]: record_emissions: entity not found ("Hooli")`},
		{"overdraft", []string{"trade", "Globex", "Acme", "1000"}, `Error [E004]: transfer: insufficient balance ("Globex"): has 50 credits, needs 1000`},
		{"self transfer", []string{"trade", "Acme", "Acme", "1"}, "Error [E001]: transfer: invalid argument"},
		{"show unknown", []string{"show", "Nobody"}, `Error [E002]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "", append(db, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.True(t, IsReported(err))
			assert.Contains(t, out, tt.want)
		})
	}

	// Rejections leave the ledger unchanged.
	rows := tableRows(run(t, db, "list"))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Acme", "100", "0", "100"}, rows[1])
	assert.Equal(t, []string{"Globex", "50", "0", "50"}, rows[2])
}

func TestCommands_BadArguments(t *testing.T) {
	db := ledgerDB(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"non-numeric", []string{"register", "Acme", "lots"}, `allowed must be an integer, got "lots"`},
		{"too few args", []string{"register", "Acme"}, "accepts 2 arg(s), received 1"},
		{"too many args", []string{"trade", "Acme", "Globex", "1", "2"}, "accepts 3 arg(s), received 4"},
		{"args to list", []string{"list", "extra"}, `unknown command "extra"`},
		{"unknown flag", []string{"list", "--colour"}, "unknown flag: --colour"},
		{"unknown shorthand", []string{"show", "-z", "Acme"}, "unknown shorthand flag: 'z'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "", append(db, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err), "output: %s", out)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCommands_InvalidConfiguration(t *testing.T) {
	_, err := execute(t, "", "--driver", "postgres", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "dsn is required")
}

func TestCommands_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "carbonledger.yaml")
	cfg := "store:\n  driver: sqlite\n  path: " + filepath.Join(dir, "ledger.db") + "\noutput: json\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	out := run(t, []string{"--config", cfgPath}, "register", "Acme", "7")
	assert.JSONEq(t, `{"status":"ok","data":{"name":"Acme","allowed_emissions":7,"actual_emissions":0,"credits":7}}`, out)

	// Flags win over the file.
	out = run(t, []string{"--config", cfgPath, "--format", "text"}, "show", "Acme")
	assert.Contains(t, out, "Credits:           7")
}

func TestConfigShow(t *testing.T) {
	out := run(t, []string{"--driver", "memory", "--format", "json"}, "config", "show")

	var resp struct {
		Data struct {
			Store struct {
				Driver string `json:"driver"`
			} `json:"store"`
			Retry struct {
				InitialInterval string `json:"initial_interval"`
			} `json:"retry"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "memory", resp.Data.Store.Driver)
	assert.Equal(t, "50ms", resp.Data.Retry.InitialInterval)

	out = run(t, nil, "config", "show")
	assert.Contains(t, out, "driver: sqlite3")
	assert.Contains(t, out, "initial_interval: 50ms")
}

func TestConfigSchema(t *testing.T) {
	out := run(t, nil, "config", "schema")

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Equal(t, "carbonledger configuration", schema["title"])
}

func TestSeed(t *testing.T) {
	db := ledgerDB(t)
	allocations := filepath.Join(t.TempDir(), "allocations.cue")
	require.NoError(t, os.WriteFile(allocations, []byte(`allocations: {
	Globex: {allowed: 50}
	Acme:   {allowed: 100}
}
`), 0o644))

	out := run(t, db, "seed", allocations)
	assert.Contains(t, out, "✓ Acme (allowed 100)")
	assert.Contains(t, out, "Seeded 2 companies, skipped 0")

	var resp struct {
		Data SeedResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(run(t, append(db, "--format", "json"), "seed", allocations)), &resp))
	assert.Empty(t, resp.Data.Registered)
	assert.Equal(t, []string{"Acme", "Globex"}, resp.Data.Skipped)

	rows := tableRows(run(t, db, "list"))
	require.Len(t, rows, 3)
	assert.Equal(t, "Acme", rows[1][0])
	assert.Equal(t, "Globex", rows[2][0])
}

func TestSeed_InvalidFile(t *testing.T) {
	allocations := filepath.Join(t.TempDir(), "allocations.cue")
	require.NoError(t, os.WriteFile(allocations, []byte("allocations: Acme: allowed: -1\n"), 0o644))

	_, err := execute(t, "", append(ledgerDB(t), "seed", allocations)...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid allocation file")
}

func TestMenu(t *testing.T) {
	input := strings.Join([]string{
		"1", "Acme", "100",
		"1", "Globex", "lots", "50",
		"2", "Acme", "40",
		"3", "Acme", "Globex", "30",
		"3", "Globex", "Acme", "1000",
		"9",
		"4",
		"5",
	}, "\n") + "\n"

	out, err := execute(t, input, "--driver", "memory", "menu")
	require.NoError(t, err)

	assert.Contains(t, out, "Carbon Credit Trading System")
	assert.Contains(t, out, "✓ Company 'Acme' registered successfully!")
	assert.Contains(t, out, `✗ "lots" is not a whole number! Try again.`)
	assert.Contains(t, out, "✓ Company 'Globex' registered successfully!")
	assert.Contains(t, out, "✓ Emissions updated for 'Acme'. Remaining credits: 60")
	assert.Contains(t, out, "✓ Acme sold 30 credits to Globex.")
	assert.Contains(t, out, `✗ transfer: insufficient balance ("Globex"): has 80 credits, needs 1000`)
	assert.Contains(t, out, "✗ Invalid Choice! Try again.")
	assert.Contains(t, out, "Globex")
	assert.True(t, strings.HasSuffix(out, "Exiting...\n"))
}

func TestMenu_EndOfInput(t *testing.T) {
	out, err := execute(t, "1\nAcme\n", "--driver", "memory", "menu")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "Exiting...\n"))
	assert.NotContains(t, out, "registered successfully")
}
