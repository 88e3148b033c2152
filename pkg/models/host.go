package models

import "fmt"

// HostState is the lifecycle state of the function host.
type HostState int32

const (
	HostCreated HostState = iota
	HostStarting
	HostRunning
	HostStopping
	HostStopped
	HostErrored
)

func (s HostState) String() string {
	switch s {
	case HostCreated:
		return "Created"
	case HostStarting:
		return "Starting"
	case HostRunning:
		return "Running"
	case HostStopping:
		return "Stopping"
	case HostStopped:
		return "Stopped"
	case HostErrored:
		return "Errored"
	default:
		return fmt.Sprintf("HostState(%d)", int32(s))
	}
}

// validHostTransitions maps from-state to allowed to-states
var validHostTransitions = map[HostState]map[HostState]bool{
	HostCreated: {
		HostStarting: true, // start()
		HostStopping: true, // stop() before the first start
	},
	HostStarting: {
		HostRunning:  true, // function set built
		HostErrored:  true, // build failure
		HostStopping: true, // stop() during build
	},
	HostRunning: {
		HostStarting: true, // file change, full rebuild
		HostStopping: true, // stop()
		HostErrored:  true, // unrecoverable fault
	},
	HostErrored: {
		HostStarting: true, // bounded retry
		HostStopping: true, // stop()
	},
	HostStopping: {
		HostStopped: true,
	},
	HostStopped: {},
}

// ValidateHostTransition checks if a host state transition is valid
func ValidateHostTransition(from, to HostState) error {
	allowed, exists := validHostTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsShuttingDown reports whether the host is stopping or already stopped.
func (s HostState) IsShuttingDown() bool {
	return s == HostStopping || s == HostStopped
}
