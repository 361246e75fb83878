// Package pprof exposes runtime profiles of a running kernel, either over
// HTTP or as files written when the kernel exits.
package pprof

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	netpprof "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/pprof"

	"github.com/codefionn/shkernel/internal/consts"
	"github.com/codefionn/shkernel/internal/logger"
)

// Config selects the profiles to collect. The zero value collects nothing.
type Config struct {
	HTTPAddr    string `toml:"http_addr"`    // e.g. "localhost:6060"
	CPUProfile  string `toml:"cpu_profile"`  // written on Stop
	HeapProfile string `toml:"heap_profile"` // written on Stop
}

// Enabled reports whether any profile is configured.
func (c Config) Enabled() bool {
	return c.HTTPAddr != "" || c.CPUProfile != "" || c.HeapProfile != ""
}

// Handler runs the configured profiles.
type Handler struct {
	config  Config
	server  *http.Server
	addr    net.Addr
	cpuFile *os.File
	log     *logger.Logger
}

// NewHandler creates a handler for config.
func NewHandler(config Config) *Handler {
	return &Handler{config: config, log: logger.Global().WithPrefix("pprof")}
}

// Start begins CPU profiling and serves /debug/pprof/ if configured.
func (h *Handler) Start() error {
	if h.config.CPUProfile != "" {
		f, err := create(h.config.CPUProfile)
		if err != nil {
			return err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("pprof: start CPU profile: %w", err)
		}
		h.cpuFile = f
	}

	if h.config.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", netpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", netpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", netpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", netpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", netpprof.Trace)

		ln, err := net.Listen("tcp", h.config.HTTPAddr)
		if err != nil {
			return fmt.Errorf("pprof: bind %s: %w", h.config.HTTPAddr, err)
		}
		h.addr = ln.Addr()
		h.server = &http.Server{Handler: mux}

		go func() {
			if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				h.log.Error("server: %v", err)
			}
		}()
		h.log.Info("serving profiles on http://%s/debug/pprof/", h.addr)
	}
	return nil
}

// Addr is the bound HTTP address, or nil without an HTTP server.
func (h *Handler) Addr() net.Addr {
	return h.addr
}

// Stop flushes the CPU profile, writes the heap profile and stops the
// HTTP server.
func (h *Handler) Stop() error {
	var errs []error

	if h.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := h.cpuFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pprof: close CPU profile: %w", err))
		}
		h.cpuFile = nil
	}

	if h.config.HeapProfile != "" {
		if f, err := create(h.config.HeapProfile); err != nil {
			errs = append(errs, err)
		} else {
			if err := pprof.WriteHeapProfile(f); err != nil {
				errs = append(errs, fmt.Errorf("pprof: write heap profile: %w", err))
			}
			f.Close()
		}
	}

	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), consts.StopTimeout)
		defer cancel()
		if err := h.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("pprof: shutdown server: %w", err))
		}
		h.server = nil
	}

	return errors.Join(errs...)
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("pprof: create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("pprof: create %s: %w", path, err)
	}
	return f, nil
}
