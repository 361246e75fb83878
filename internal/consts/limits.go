// Package consts holds protocol identifiers and the sizes and timeouts shared
// across packages.
package consts

import "time"

const (
	// ProtocolVersion is the Jupyter messaging protocol version spoken by the kernel.
	ProtocolVersion = "5.3"
	// Implementation is reported in kernel_info_reply.
	Implementation        = "shkernel"
	ImplementationVersion = "0.3.0"
	// DefaultKernelName is the kernelspec directory written by `shkernel install`.
	DefaultKernelName = "shkernel"
)

// A cell line longer than MaxOutputLine is split.
const MaxOutputLine = 1024 * 1024

// OutputDrainDelay is how long a finished cell keeps reading output that
// background jobs still hold open.
const OutputDrainDelay = 200 * time.Millisecond

const (
	DispatchMailboxSize = 256 // requests waiting for the dispatch loop
	// ExecutionWakeups bounds pending executor wakeups; queued cells are not
	// limited.
	ExecutionWakeups = 1
)

// StopTimeout bounds how long teardown waits for the session and servers.
const StopTimeout = 5 * time.Second
