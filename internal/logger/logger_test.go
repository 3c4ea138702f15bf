package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	SetWriter(buf)
	SetLevel("INFO")
	SetFormat("text")
	t.Cleanup(func() {
		SetWriter(os.Stdout)
		SetLevel("INFO")
		SetFormat("text")
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	buf := resetLogger(t)

	Debug("hidden %d", 1)
	Info("visible %d", 2)
	Warn("warned")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[INFO] visible 2")
	assert.Contains(t, out, "[WARN] warned")
}

func TestSetLevelIgnoresUnknown(t *testing.T) {
	resetLogger(t)

	SetLevel("ERROR")
	SetLevel("bogus")
	assert.Equal(t, LevelError, GetLevel())
}

func TestJSONFormat(t *testing.T) {
	buf := resetLogger(t)
	SetFormat("json")

	Error("boom: %s", "disk")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "boom: disk", entry["msg"])
	assert.NotEmpty(t, entry["time"])
}

func TestSetOutputFile(t *testing.T) {
	resetLogger(t)
	path := filepath.Join(t.TempDir(), "vidforge.log")

	require.NoError(t, SetOutput(path))
	Info("to file")
	require.NoError(t, SetOutput("stdout"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(content), "to file"))
}
