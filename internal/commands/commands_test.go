package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finscope/internal/core"
	"finscope/internal/services"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_DIR", dir)
	t.Setenv("DB_FILE", "cli.db")
	t.Setenv("AMQP_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestMigrate(t *testing.T) {
	dir := setupEnv(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 2 (applied: true)")
	assert.FileExists(t, filepath.Join(dir, "cli.db"))

	out, err = run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "applied: false")
}

func TestIngestAndQuery(t *testing.T) {
	dir := setupEnv(t)
	file := writeFile(t, dir, "points.json", `{"points":[
		{"source":"fred","metric":"CPI","timestamp":"2024-02-01","value":2},
		{"source":"fred","metric":"CPI","timestamp":"2024-01-01","value":1}
	]}`)

	out, err := run(t, "ingest", file)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ingested":2,"skipped":0}`, out)

	out, err = run(t, "query", "CPI", "--start", "2024-01-15")
	require.NoError(t, err)
	var series core.Series
	require.NoError(t, json.Unmarshal([]byte(out), &series))
	assert.Equal(t, []string{"2024-02-01"}, series.Labels)
}

func TestUpsertAndSummary(t *testing.T) {
	dir := setupEnv(t)
	// Dated far in the future so they fall inside any trailing window.
	file := writeFile(t, dir, "txns.json", `[
		{"id":"a","date":"2999-01-01","amount":4,"name":"Coffee Shop"},
		{"id":"b","date":"2999-01-02","amount":5,"name":"Coffee Shop"},
		{"id":"c","date":"2999-01-03","amount":6,"name":"Coffee Shop"},
		{"amount":1}
	]`)

	out, err := run(t, "upsert", file)
	require.NoError(t, err)
	var result services.BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 3, result.Stored)
	assert.Equal(t, 1, result.Skipped)

	out, err = run(t, "summary", "--days", "7")
	require.NoError(t, err)
	var summary core.SpendSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 7, summary.WindowDays)
	assert.Equal(t, []core.MerchantSpend{{Merchant: "Coffee Shop", Count: 3, Total: 15}}, summary.RecurringMerchants)
}

func TestCommandErrors(t *testing.T) {
	dir := setupEnv(t)

	_, err := run(t, "ingest", filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	_, err = run(t, "query")
	assert.Error(t, err)

	_, err = run(t, "enqueue", "timeseries", "-")
	assert.ErrorContains(t, err, "AMQP_URL is not set")
}

func TestBuildMessage(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "points.json", `[{"metric":"CPI","timestamp":"2024-01-01","value":1}]`)
	cmd := NewRootCommand()

	msg, err := buildMessage(cmd, "timeseries", file)
	require.NoError(t, err)
	assert.Equal(t, 1, msg.Size())

	_, err = buildMessage(cmd, "expenses", file)
	assert.ErrorContains(t, err, "unknown kind")
}
