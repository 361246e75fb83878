package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchSettingsReloads(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	os.Unsetenv(EnvLogLevel)

	path := filepath.Join(t.TempDir(), SettingsFileName)
	require.NoError(t, os.WriteFile(path, []byte(`log_level = "info"`), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Settings, 8)
	require.NoError(t, WatchSettings(ctx, path, func(s *Settings) { changes <- s }))

	require.NoError(t, os.WriteFile(path, []byte(`log_level = "debug"`), 0o600))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-changes:
			if s.LogLevel == "debug" {
				return
			}
		case <-deadline:
			t.Fatal("settings change not observed")
		}
	}
}

func TestWatchSettingsMissingDirectory(t *testing.T) {
	err := WatchSettings(context.Background(), filepath.Join(t.TempDir(), "absent", SettingsFileName), func(*Settings) {})
	assert.Error(t, err)
}
