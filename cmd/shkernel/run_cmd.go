package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codefionn/shkernel/internal/config"
	"github.com/codefionn/shkernel/internal/kernel"
	"github.com/codefionn/shkernel/internal/logger"
	"github.com/codefionn/shkernel/internal/pidfile"
	"github.com/codefionn/shkernel/internal/pprof"
	"github.com/codefionn/shkernel/internal/session"
)

var (
	connectionFile string
	pidFile        string
)

// runCmd starts a kernel for a frontend.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a kernel from a Jupyter connection file",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}

		if err := logger.Init(logger.ParseLevel(settings.LogLevel), settings.LogPath); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer logger.Global().Close()

		conn, err := config.LoadConnection(connectionFile)
		if err != nil {
			return err
		}

		if pidFile != "" {
			pid, err := pidfile.Create(pidFile)
			if err != nil {
				return err
			}
			defer pid.Remove()
		}

		if settings.Profile.Enabled() {
			profiler := pprof.NewHandler(settings.Profile)
			if err := profiler.Start(); err != nil {
				return err
			}
			defer func() {
				if err := profiler.Stop(); err != nil {
					logger.Warn("%v", err)
				}
			}()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
		defer stop()

		// sessions created by a restart pick up edited settings
		var current atomic.Pointer[config.Settings]
		current.Store(settings)
		if err := config.WatchSettings(ctx, settingsPath(), func(s *config.Settings) {
			logger.Global().SetLevel(logger.ParseLevel(s.LogLevel))
			current.Store(s)
			logger.Info("settings reloaded")
		}); err != nil {
			logger.Debug("not watching settings: %v", err)
		}

		k, err := kernel.New(ctx, kernel.Options{
			Connection: conn,
			NewSession: func() (kernel.Session, error) {
				return session.New(current.Load().SessionOptions())
			},
		})
		if err != nil {
			return err
		}

		go forwardInterrupts(ctx, k)

		if err := k.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("kernel exited with code %d", k.ExitCode())
		return nil
	},
}

// forwardInterrupts turns SIGINT into a cell interrupt instead of killing
// the kernel, for frontends using signal interrupts.
func forwardInterrupts(ctx context.Context, k *kernel.Kernel) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	for {
		select {
		case <-ctx.Done():
			return
		case <-k.Done():
			return
		case <-sigs:
			if err := k.Session().Interrupt(); err != nil {
				logger.Warn("interrupt: %v", err)
			}
		}
	}
}

func settingsPath() string {
	if configFile != "" {
		return configFile
	}
	return config.DefaultSettingsPath()
}

func loadSettings() (*config.Settings, error) {
	settings, err := config.LoadSettings(settingsPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return settings, nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&connectionFile, "connection-file", "f", "", "Connection file written by the frontend")
	runCmd.Flags().StringVar(&pidFile, "pid-file", "", "Write the kernel PID to this file while running")
	_ = runCmd.MarkFlagRequired("connection-file")
}
