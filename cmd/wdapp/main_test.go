package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPrintsResolvedSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("watchdog:\n  check_interval: 7s\n  order: latest-first\n"), 0o600))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check", "--config", path})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "check_interval: 7s")
	assert.Contains(t, out.String(), "order: latest-first")
	assert.Contains(t, out.String(), "watchdog_path: ./wd")
}

func TestCheckRejectsUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wd.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"watchdog":{"interval":"1s"}}`), 0o600))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"check", "-c", path})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")
}

func TestRootRejectsArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"extra"})
	assert.Error(t, cmd.Execute())
}
