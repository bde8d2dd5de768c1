package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcal/internal/config"
)

const testCatalog = `
events:
  - id: review
    summary: Review
    start_date: 2024-01-02
    all_day: true
    recurring: true
    rule:
      type: day_of_month
      frequency: 1
      stop_date: 2024-03-31
      weekday_of_month:
        ordinals: [1]
        weekday: 3
`

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeCatalog(t *testing.T) (configPath, eventsPath string) {
	t.Helper()
	dir := t.TempDir()
	eventsPath = filepath.Join(dir, "events.yaml")
	require.NoError(t, os.WriteFile(eventsPath, []byte(testCatalog), 0o600))
	return filepath.Join(dir, "config.yaml"), eventsPath
}

func TestExpandCommand_JSON(t *testing.T) {
	configPath, eventsPath := writeCatalog(t)

	out, err := runCmd(t, "expand", "--config", configPath, "--events", eventsPath)
	require.NoError(t, err)

	var resp struct {
		Occurrences []struct {
			InstanceKey string `json:"instance_key"`
		} `json:"occurrences"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	// First Tuesday of January to March 2024.
	keys := make([]string, 0, len(resp.Occurrences))
	for _, o := range resp.Occurrences {
		keys = append(keys, o.InstanceKey)
	}
	assert.Equal(t, []string{"review/20240102", "review/20240206", "review/20240305"}, keys)
}

func TestExpandCommand_ICS(t *testing.T) {
	configPath, eventsPath := writeCatalog(t)

	out, err := runCmd(t, "expand", "--config", configPath, "--events", eventsPath, "--format", "ics", "--series")
	require.NoError(t, err)
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "RRULE:FREQ=MONTHLY")
	assert.Equal(t, 1, strings.Count(out, "BEGIN:VEVENT"))
}

func TestExpandCommand_WriteIDs(t *testing.T) {
	configPath, eventsPath := writeCatalog(t)
	require.NoError(t, os.WriteFile(eventsPath, []byte(testCatalog+`
  - summary: Payday
    start_date: 2024-01-31
    all_day: true
`), 0o600))

	_, err := runCmd(t, "expand", "--config", configPath, "--events", eventsPath, "--write-ids")
	require.NoError(t, err)

	events, err := config.LoadCatalog(eventsPath)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "review", events[0].ID)
	assert.Equal(t, config.EventID("Payday", "2024-01-31", 1), events[1].ID)

	data, err := os.ReadFile(eventsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), events[1].ID)
}

func TestExpandCommand_Errors(t *testing.T) {
	configPath, eventsPath := writeCatalog(t)

	_, err := runCmd(t, "expand", "--config", configPath, "--events", eventsPath, "--format", "xml")
	assert.Error(t, err)

	_, err = runCmd(t, "expand", "--config", configPath, "--events", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestExportCommand(t *testing.T) {
	configPath, eventsPath := writeCatalog(t)
	require.NoError(t, os.WriteFile(configPath, []byte("events_file: "+eventsPath+"\ncache_dir: "+t.TempDir()+"\nfeed_domain: example.test\n"), 0o600))

	outPath := filepath.Join(t.TempDir(), "feed.ics")
	_, err := runCmd(t, "export", "--config", configPath, "--out", outPath)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "BEGIN:VCALENDAR")
}
