// Package pidfile records the PID of a running kernel so process
// supervisors can find it.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrRunning is returned by Create when the file names a live process.
var ErrRunning = errors.New("pidfile: process already running")

// Pidfile is a PID file owned by this process.
type Pidfile struct {
	path string
}

// Create writes the current PID to path. A stale file left by a dead
// process is replaced.
func Create(path string) (*Pidfile, error) {
	p := &Pidfile{path: path}

	if pid, err := p.Read(); err == nil && pid != os.Getpid() && alive(pid) {
		return nil, fmt.Errorf("%w: pid %d in %s", ErrRunning, pid, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("pidfile: create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("pidfile: write: %w", err)
	}
	return p, nil
}

// Read returns the PID stored in the file.
func (p *Pidfile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("pidfile: invalid pid in %s: %w", p.path, err)
	}
	return pid, nil
}

// Remove deletes the file if it still holds this process's PID.
func (p *Pidfile) Remove() error {
	if pid, err := p.Read(); err == nil && pid != os.Getpid() {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pidfile: remove: %w", err)
	}
	return nil
}

// Path returns the file path.
func (p *Pidfile) Path() string {
	return p.path
}

func alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
