package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/codefionn/shkernel/internal/pprof"
	"github.com/codefionn/shkernel/internal/session"
)

// Environment variables that override the settings file.
const (
	EnvLogLevel = "SHKERNEL_LOG_LEVEL"
	EnvLogPath  = "SHKERNEL_LOG_PATH"
	EnvShell    = "SHKERNEL_SHELL"
)

// SettingsFileName is the settings file looked up in the config directory.
const SettingsFileName = "shkernel.toml"

// Settings configures the kernel process and its sessions.
type Settings struct {
	LogLevel string `toml:"log_level"` // debug, info, warn, error, none
	LogPath  string `toml:"log_path"`

	Shell              string            `toml:"shell"`
	WorkingDir         string            `toml:"working_dir"`
	StartupScript      string            `toml:"startup_script"`
	CommMarker         string            `toml:"comm_marker"`
	CellTimeoutSeconds int               `toml:"cell_timeout_seconds"`
	Env                map[string]string `toml:"env"`

	Profile pprof.Config `toml:"pprof"`
}

// DefaultConfigDir is where the settings file lives when no path is given.
func DefaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, "shkernel")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", "shkernel")
	default:
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, "shkernel")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "shkernel")
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "linux":
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, "shkernel")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", "shkernel")
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, "shkernel")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", "shkernel")
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "shkernel")
	}
}

// DefaultSettingsPath returns the settings file in DefaultConfigDir.
func DefaultSettingsPath() string {
	return filepath.Join(DefaultConfigDir(), SettingsFileName)
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() *Settings {
	return &Settings{
		LogLevel: "info",
		LogPath:  filepath.Join(defaultStateDir(), "shkernel.log"),
		Env:      make(map[string]string),
	}
}

// LoadSettings reads a TOML settings file over the defaults. A missing file
// is not an error. Environment overrides are applied last.
func LoadSettings(path string) (*Settings, error) {
	settings := DefaultSettings()

	if _, err := toml.DecodeFile(path, settings); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	if settings.LogLevel == "" {
		settings.LogLevel = "info"
	}
	if settings.Env == nil {
		settings.Env = make(map[string]string)
	}

	settings.applyEnv()
	return settings, nil
}

func (s *Settings) applyEnv() {
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		s.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvLogPath); ok {
		s.LogPath = v
	}
	if v, ok := os.LookupEnv(EnvShell); ok {
		s.Shell = v
	}
}

// Save writes the settings as TOML, creating the directory if needed.
func (s *Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(s)
}

// SessionOptions maps the settings onto session options. Env entries are
// sorted so every cell sees them in the same order.
func (s *Settings) SessionOptions() session.Options {
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+s.Env[k])
	}

	return session.Options{
		Shell:         s.Shell,
		WorkingDir:    s.WorkingDir,
		StartupScript: s.StartupScript,
		Env:           env,
		CommMarker:    s.CommMarker,
		Timeout:       time.Duration(s.CellTimeoutSeconds) * time.Second,
	}
}
