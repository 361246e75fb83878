package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const connectionJSON = `{
  "shell_port": 50001,
  "iopub_port": 50002,
  "stdin_port": 50003,
  "control_port": 50004,
  "hb_port": 50005,
  "ip": "127.0.0.1",
  "key": "",
  "transport": "tcp",
  "signature_scheme": "hmac-sha256",
  "kernel_name": "shkernel"
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConnection(t *testing.T) {
	conn, err := LoadConnection(writeFile(t, "kernel.json", connectionJSON))
	require.NoError(t, err)

	assert.Equal(t, "tcp://127.0.0.1:50005", conn.Endpoint("hb"))
	assert.Equal(t, "tcp://127.0.0.1:50002", conn.Endpoint("iopub"))
	assert.Equal(t, "tcp://127.0.0.1:50001", conn.Endpoint("shell"))
	assert.Equal(t, "tcp://127.0.0.1:50004", conn.Endpoint("control"))
	assert.Equal(t, "tcp://127.0.0.1:50003", conn.Endpoint("stdin"))
	assert.Equal(t, "shkernel", conn.KernelName)
}

func TestIPCEndpoint(t *testing.T) {
	conn := &Connection{Transport: "ipc", IP: "/tmp/kernel", ShellPort: 1, IOPubPort: 2, StdinPort: 3, ControlPort: 4, HBPort: 5}
	require.NoError(t, conn.Validate())
	assert.Equal(t, "ipc:///tmp/kernel-1", conn.Endpoint("shell"))
}

func TestLoadConnectionErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{"},
		{"missing ip", `{"transport": "tcp", "shell_port": 1, "iopub_port": 2, "stdin_port": 3, "control_port": 4, "hb_port": 5}`},
		{"bad transport", `{"transport": "udp", "ip": "127.0.0.1", "shell_port": 1, "iopub_port": 2, "stdin_port": 3, "control_port": 4, "hb_port": 5}`},
		{"missing port", `{"ip": "127.0.0.1", "shell_port": 1, "iopub_port": 2, "stdin_port": 3, "control_port": 4}`},
		{"duplicate port", `{"ip": "127.0.0.1", "shell_port": 1, "iopub_port": 1, "stdin_port": 3, "control_port": 4, "hb_port": 5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConnection(writeFile(t, "kernel.json", tt.content))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConnection), "got %v", err)
		})
	}
}

func TestLoadConnectionMissingFile(t *testing.T) {
	_, err := LoadConnection(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidConnection))
}

func TestLoadSettingsDefaultsWhenMissing(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	os.Unsetenv(EnvLogLevel)

	settings, err := LoadSettings(filepath.Join(t.TempDir(), SettingsFileName))
	require.NoError(t, err)
	assert.Equal(t, "info", settings.LogLevel)
	assert.NotNil(t, settings.Env)
}

func TestLoadSettingsFileAndEnv(t *testing.T) {
	path := writeFile(t, SettingsFileName, `
log_level = "debug"
shell = "/bin/sh"
startup_script = "set -e"
cell_timeout_seconds = 30

[env]
B = "2"
A = "1"

[pprof]
http_addr = "localhost:6060"
`)
	t.Setenv(EnvShell, "/bin/dash")

	settings, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", settings.LogLevel)
	assert.Equal(t, "/bin/dash", settings.Shell)
	assert.Equal(t, "localhost:6060", settings.Profile.HTTPAddr)

	opts := settings.SessionOptions()
	assert.Equal(t, "/bin/dash", opts.Shell)
	assert.Equal(t, "set -e", opts.StartupScript)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, []string{"A=1", "B=2"}, opts.Env)
}

func TestLoadSettingsRejectsBadTOML(t *testing.T) {
	_, err := LoadSettings(writeFile(t, SettingsFileName, "log_level = "))
	assert.Error(t, err)
}

func TestSaveSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", SettingsFileName)
	settings := DefaultSettings()
	settings.StartupScript = "export PS4='+ '"
	settings.Env["LANG"] = "C.UTF-8"

	require.NoError(t, settings.Save(path))

	loaded, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, settings.StartupScript, loaded.StartupScript)
	assert.Equal(t, "C.UTF-8", loaded.Env["LANG"])
}
