// Package pipe implements an anonymous, unidirectional byte channel with
// independently closable read and write ends.
//
// It exists mainly to carry exec failures from a freshly forked child back
// to its parent: the write end is marked close-on-exec, so a successful
// exec silently closes it and the parent observes EOF; a failed exec leaves
// the child free to write an error message before exiting.
package pipe

import (
	"fmt"
	"syscall"
)

const defaultBufferSize = 1024

type Pipe struct {
	readFd  int
	writeFd int

	readClosed  bool
	writeClosed bool
}

// New creates a pipe. When closeOnExec is true the write end is closed
// automatically across exec in any child that inherits it, which is what
// launch-time failure detection relies on.
func New(closeOnExec bool) (*Pipe, error) {
	fds := make([]int, 2)

	flags := 0
	if closeOnExec {
		flags = syscall.O_CLOEXEC
	}

	err := syscall.Pipe2(fds, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}

	return &Pipe{
		readFd:  fds[0],
		writeFd: fds[1],
	}, nil
}

// Read returns up to one buffer's worth of bytes. It returns an empty slice,
// nil error once the write end has been closed (EOF).
func (p *Pipe) Read() ([]byte, error) {
	if p.readClosed {
		return nil, fmt.Errorf("invalid operation: read end already closed")
	}

	buf := make([]byte, defaultBufferSize)
	n, err := syscall.Read(p.readFd, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to read from pipe: %w", err)
	}

	return buf[:n], nil
}

// Write writes all of data or returns an error. Writing to a pipe whose
// reader has closed fails with the OS's own signal (EPIPE or SIGPIPE); the
// caller need not distinguish the two.
func (p *Pipe) Write(data []byte) error {
	if p.writeClosed {
		return fmt.Errorf("invalid operation: write end already closed")
	}

	for len(data) > 0 {
		n, err := syscall.Write(p.writeFd, data)
		if err != nil {
			return fmt.Errorf("failed to write to pipe: %w", err)
		}
		data = data[n:]
	}

	return nil
}

func (p *Pipe) CloseRead() error {
	if p.readClosed {
		return nil
	}
	p.readClosed = true
	return syscall.Close(p.readFd)
}

func (p *Pipe) CloseWrite() error {
	if p.writeClosed {
		return nil
	}
	p.writeClosed = true
	return syscall.Close(p.writeFd)
}

// GetReadFd exposes the read end's raw descriptor, e.g. for dup2 into a
// child before exec.
func (p *Pipe) GetReadFd() int {
	return p.readFd
}

// GetWriteFd exposes the write end's raw descriptor.
func (p *Pipe) GetWriteFd() int {
	return p.writeFd
}
