package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareLogsStdoutOnly(t *testing.T) {
	require.NoError(t, PrepareLogs(""))
}

func TestPrepareLogsCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exporter.log")
	require.NoError(t, PrepareLogs(path))

	LogInfo("test entry")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "test entry")
}

func TestPrepareLogsBadPath(t *testing.T) {
	err := PrepareLogs(filepath.Join(t.TempDir(), "missing-dir", "exporter.log"))
	assert.Error(t, err)
}

func TestLogEntriesAreStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stdout)

	LogError("something broke")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "something broke", entry["msg"])
	assert.Equal(t, "error", entry["level"])
	assert.NotEmpty(t, entry["job"])
}
