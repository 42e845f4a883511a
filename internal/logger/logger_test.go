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

func TestNewWithWriter_JSONFields(t *testing.T) {
	SetLevel(LevelDebug)
	t.Cleanup(func() { SetLevel(LevelInfo) })

	var buf bytes.Buffer
	l := NewWithWriter("fetch", &buf)
	l.Infof("chunk %s done", "2021")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "fetch", entry["component"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "chunk 2021 done", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestDebugw_Fields(t *testing.T) {
	SetLevel(LevelDebug)
	t.Cleanup(func() { SetLevel(LevelInfo) })

	var buf bytes.Buffer
	NewWithWriter("entsoe", &buf).Debugw("request", map[string]any{"status": 200})
	assert.Contains(t, buf.String(), `"status":200`)
}

func TestSetLevel_FiltersBelow(t *testing.T) {
	SetLevel(LevelError)
	t.Cleanup(func() { SetLevel(LevelInfo) })

	var buf bytes.Buffer
	l := NewWithWriter("x", &buf)
	l.Infof("hidden")
	l.Warnf("hidden")
	l.Errorf("shown")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 1)
	assert.Contains(t, lines[0], "shown")
}

func TestSetLevel_UnknownIsInfo(t *testing.T) {
	SetLevel("loud")
	t.Cleanup(func() { SetLevel(LevelInfo) })

	var buf bytes.Buffer
	l := NewWithWriter("x", &buf)
	l.Debugf("hidden")
	l.Infof("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNop(t *testing.T) {
	var l Logger = Nop{}
	l.Debugf("x")
	l.Debugw("x", nil)
	l.Infof("x")
	l.Warnf("x")
	l.Errorf("x")
}

func TestIsTerminal_PipesAndFiles(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()
	assert.False(t, isTerminal(w), "pipe")

	f, err := os.Create(filepath.Join(t.TempDir(), "log"))
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, isTerminal(f), "regular file")

	// /dev/null is a character device but not a terminal
	null, err := os.Open(os.DevNull)
	require.NoError(t, err)
	defer null.Close()
	assert.False(t, isTerminal(null), os.DevNull)
}
