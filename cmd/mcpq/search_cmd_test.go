package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpq/mcpq/internal/clierr"
)

func TestRunSearchRejectsEmptyQuery(t *testing.T) {
	for _, args := range [][]string{{""}, {"   "}, {"", " "}} {
		err := runSearch(testCommand(t), args)
		asCLIError(t, err, clierr.MissingArgument)
	}
}

func TestRunSearchRanksMatches(t *testing.T) {
	resetCommandState(t)
	isolateEnv(t)
	ts := newTestServer(t, nil)
	configFlag = writeConfig(t, serverConfigJSON(ts.URL, ""))
	jsonFlag = true
	buf := captureStdout(t)

	require.NoError(t, runSearch(testCommand(t), []string{"echoes", "text"}))

	var rows []map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows), "output: %s", buf.String())
	require.NotEmpty(t, rows, "the echo tool description should match")
	assert.Equal(t, "echo", rows[0]["tool"])
	assert.Equal(t, "web", rows[0]["server"])
	assert.NotEmpty(t, rows[0]["score"])
}

func TestRunSearchHonorsLimit(t *testing.T) {
	resetCommandState(t)
	isolateEnv(t)
	ts := newTestServer(t, nil)
	configFlag = writeConfig(t, serverConfigJSON(ts.URL, ""))
	jsonFlag = true
	searchLimit = 1
	buf := captureStdout(t)

	// Every fixture tool description contains a word from the query.
	require.NoError(t, runSearch(testCommand(t), []string{"echoes reports deletes"}))

	var rows []map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	assert.LessOrEqual(t, len(rows), 1)
}
