package sdb

import (
	"fmt"
	"syscall"
)

// ProcessStateKind is the tagged enumeration spec.md's data model calls
// ProcessState: {running, stopped, exited, terminated}.
type ProcessStateKind string

const (
	Running    = ProcessStateKind("running")
	Stopped    = ProcessStateKind("stopped")
	Exited     = ProcessStateKind("exited")
	Terminated = ProcessStateKind("terminated")
)

// StopReason is derived from a wait-status code: a ProcessStateKind plus
// an 8-bit Info that carries the exit code, terminating signal number, or
// stopping signal number depending on State. Undefined for Running.
type StopReason struct {
	State ProcessStateKind
	Info  uint8
}

func runningReason() StopReason {
	return StopReason{State: Running}
}

func reasonFromWaitStatus(status syscall.WaitStatus) StopReason {
	switch {
	case status.Exited():
		return StopReason{State: Exited, Info: uint8(status.ExitStatus())}
	case status.Signaled():
		return StopReason{State: Terminated, Info: uint8(status.Signal())}
	case status.Stopped():
		return StopReason{State: Stopped, Info: uint8(status.StopSignal())}
	default:
		panic(fmt.Sprintf("unrecognized wait status: %#v", status))
	}
}

func (r StopReason) String() string {
	switch r.State {
	case Running:
		return "running"
	case Stopped:
		return fmt.Sprintf("stopped (signal %s)", syscall.Signal(r.Info))
	case Exited:
		return fmt.Sprintf("exited (status %d)", r.Info)
	case Terminated:
		return fmt.Sprintf("terminated (signal %s)", syscall.Signal(r.Info))
	default:
		panic("unrecognized process state kind: " + string(r.State))
	}
}
