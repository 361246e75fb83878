package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "shkernel",
	Short: "Jupyter kernel running notebook cells as shell scripts",
	Long: `shkernel is a Jupyter kernel for shell scripts. Every cell runs in a fresh
shell process; output streams back to the notebook line by line.

Register it with Jupyter using 'shkernel install', after which the frontend
starts it as 'shkernel run --connection-file <file>'.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Settings file (TOML), defaults to the user config directory")
}
