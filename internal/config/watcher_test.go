package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/btcwatcher/pkg/logger"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	// Arrange
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := DefaultConfig()
	cfg.RPCURL = "http://node:8332"
	require.NoError(t, WriteFile(path, cfg))

	w, err := NewWatcher(path, nil, logger.NewTestLogger())
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	// Act
	cfg.LogLevel = "debug"
	require.NoError(t, WriteFile(path, cfg))

	// Assert
	select {
	case updated := <-w.Updates():
		assert.Equal(t, "debug", updated.LogLevel)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestWatcher_IgnoresInvalidConfig(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := DefaultConfig()
	cfg.RPCURL = "http://node:8332"
	require.NoError(t, WriteFile(path, cfg))

	w, err := NewWatcher(path, nil, logger.NewTestLogger())
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	// Missing rpc_url fails validation.
	cfg.RPCURL = ""
	require.NoError(t, WriteFile(path, cfg))

	select {
	case <-w.Updates():
		t.Fatal("invalid config should not be delivered")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	cfg := DefaultConfig()
	cfg.RPCURL = "http://node:8332"
	require.NoError(t, WriteFile(path, cfg))

	w, err := NewWatcher(path, nil, logger.NewTestLogger())
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x = 1"), 0600))

	select {
	case <-w.Updates():
		t.Fatal("changes to other files should be ignored")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing", "config.toml"), nil, logger.NewTestLogger())
	assert.Error(t, err)
}
