package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codefionn/shkernel/internal/config"
	"github.com/codefionn/shkernel/internal/consts"
)

var (
	installUser   bool
	installPrefix string
	installName   string
)

// KernelSpec is the kernel.json Jupyter reads to launch a kernel.
type KernelSpec struct {
	Argv          []string          `json:"argv"`
	DisplayName   string            `json:"display_name"`
	Language      string            `json:"language"`
	InterruptMode string            `json:"interrupt_mode"`
	Env           map[string]string `json:"env,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// installCmd registers the kernel with Jupyter.
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the kernelspec so Jupyter can start shkernel",
	RunE: func(cmd *cobra.Command, args []string) error {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate executable: %w", err)
		}

		dir, err := kernelSpecDir(installUser, installPrefix, installName)
		if err != nil {
			return err
		}

		spec := newKernelSpec(exe, configFile)
		if err := writeKernelSpec(dir, spec); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Installed kernelspec %s in %s\n", installName, dir)
		return nil
	},
}

// configInitCmd writes the default settings file.
var configInitCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write the default settings file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := settingsPath()
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.DefaultSettings().Save(path); err != nil {
			return fmt.Errorf("failed to write settings: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func newKernelSpec(exe, settingsPath string) KernelSpec {
	argv := []string{exe, "run", "--connection-file", "{connection_file}"}
	if settingsPath != "" {
		argv = append(argv, "--config", settingsPath)
	}
	return KernelSpec{
		Argv:          argv,
		DisplayName:   "Shell (shkernel)",
		Language:      "bash",
		InterruptMode: "message",
		Metadata:      map[string]string{"implementation_version": consts.ImplementationVersion},
	}
}

// kernelSpecDir picks the kernels directory the way jupyter kernelspec
// install does: --prefix wins, then --user, then the system data dir.
func kernelSpecDir(user bool, prefix, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid kernel name %q", name)
	}

	var base string
	switch {
	case prefix != "":
		base = filepath.Join(prefix, "share", "jupyter")
	case user:
		base = userDataDir()
	case runtime.GOOS == "windows":
		base = filepath.Join(os.Getenv("PROGRAMDATA"), "jupyter")
	default:
		base = "/usr/local/share/jupyter"
	}
	return filepath.Join(base, "kernels", name), nil
}

func userDataDir() string {
	if dir := os.Getenv("JUPYTER_DATA_DIR"); dir != "" {
		return dir
	}
	homeDir, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir, "Library", "Jupyter")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "jupyter")
	default:
		if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
			return filepath.Join(dataHome, "jupyter")
		}
		return filepath.Join(homeDir, ".local", "share", "jupyter")
	}
}

func writeKernelSpec(dir string, spec KernelSpec) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "kernel.json"), append(data, '\n'), 0o644)
}

func init() {
	rootCmd.AddCommand(installCmd, configInitCmd)
	installCmd.Flags().BoolVar(&installUser, "user", false, "Install for the current user")
	installCmd.Flags().StringVar(&installPrefix, "prefix", "", "Install under PREFIX/share/jupyter/kernels")
	installCmd.Flags().StringVar(&installName, "name", consts.DefaultKernelName, "Kernelspec name")
}
