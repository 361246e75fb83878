package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/codefionn/shkernel/internal/logger"
)

// ErrInvalidConnection is returned when a connection file cannot be used to
// bind the kernel sockets.
var ErrInvalidConnection = errors.New("config: invalid connection info")

// Connection is the connection file a Jupyter frontend writes before it
// launches the kernel.
type Connection struct {
	Transport       string `json:"transport"`
	IP              string `json:"ip"`
	ShellPort       int    `json:"shell_port"`
	IOPubPort       int    `json:"iopub_port"`
	StdinPort       int    `json:"stdin_port"`
	ControlPort     int    `json:"control_port"`
	HBPort          int    `json:"hb_port"`
	SignatureScheme string `json:"signature_scheme"`
	Key             string `json:"key"`
	KernelName      string `json:"kernel_name,omitempty"`
}

// LoadConnection reads and validates a connection file.
func LoadConnection(path string) (*Connection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read connection file: %w", err)
	}

	conn := &Connection{}
	if err := json.Unmarshal(data, conn); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConnection, err)
	}
	if err := conn.Validate(); err != nil {
		return nil, err
	}

	if conn.Key != "" {
		logger.Warn("connection file carries a %s key; messages are not signed", conn.SignatureScheme)
	}
	return conn, nil
}

// Validate checks the transport, address and ports.
func (c *Connection) Validate() error {
	if c.Transport == "" {
		c.Transport = "tcp"
	}
	if c.Transport != "tcp" && c.Transport != "ipc" {
		return fmt.Errorf("%w: unsupported transport %q", ErrInvalidConnection, c.Transport)
	}
	if c.IP == "" {
		return fmt.Errorf("%w: missing ip", ErrInvalidConnection)
	}

	seen := make(map[int]string, 5)
	for _, p := range []struct {
		name string
		port int
	}{
		{"hb", c.HBPort},
		{"iopub", c.IOPubPort},
		{"stdin", c.StdinPort},
		{"shell", c.ShellPort},
		{"control", c.ControlPort},
	} {
		if p.port <= 0 || p.port > 65535 {
			return fmt.Errorf("%w: %s_port %d out of range", ErrInvalidConnection, p.name, p.port)
		}
		if other, dup := seen[p.port]; dup {
			return fmt.Errorf("%w: %s_port and %s_port share %d", ErrInvalidConnection, other, p.name, p.port)
		}
		seen[p.port] = p.name
	}
	return nil
}

// Port returns the port of a channel ("hb", "iopub", "stdin", "shell" or
// "control"), or 0 for an unknown channel.
func (c *Connection) Port(channel string) int {
	switch channel {
	case "hb":
		return c.HBPort
	case "iopub":
		return c.IOPubPort
	case "stdin":
		return c.StdinPort
	case "shell":
		return c.ShellPort
	case "control":
		return c.ControlPort
	}
	return 0
}

// Endpoint returns the bind address of a channel. ipc endpoints follow the
// Jupyter convention of appending the port to the path.
func (c *Connection) Endpoint(channel string) string {
	if c.Transport == "ipc" {
		return fmt.Sprintf("ipc://%s-%d", c.IP, c.Port(channel))
	}
	return fmt.Sprintf("%s://%s:%d", c.Transport, c.IP, c.Port(channel))
}
