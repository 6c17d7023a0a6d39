package sdb

import (
	"fmt"
	"runtime"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/fanyingfx/sdb/pipe"
	"github.com/fanyingfx/sdb/ptrace"
	"github.com/fanyingfx/sdb/sdberr"
)

var userDebugRegistersOffset = unsafe.Offsetof(ptrace.User{}.UDebugReg)

// Process is a single traced inferior: its ptrace handle, its last known
// stop reason, its register mirror, and the breakpoint sites created
// against it. It is the component spec.md §4 calls the Process.
type Process struct {
	tracer *ptrace.Tracer
	set    RegisterSet

	registers   RegisterFile
	breakpoints *BreakpointSiteTable

	pid            int
	isAttached     bool
	terminateOnEnd bool

	state StopReason
}

func newProcess(tracer *ptrace.Tracer, isAttached, terminateOnEnd bool) (*Process, error) {
	proc := &Process{
		tracer:         tracer,
		set:            NewRegisterSet(),
		pid:            tracer.Pid,
		isAttached:     isAttached,
		terminateOnEnd: terminateOnEnd,
		state:          runningReason(),
	}
	proc.breakpoints = NewBreakpointSiteTable(proc)

	if isAttached {
		if _, err := proc.WaitOnSignal(); err != nil {
			_ = tracer.Detach()
			return nil, err
		}
	}

	return proc, nil
}

// Launch forks path (with args), disables ASLR for it, and, when debug is
// true, PTRACE_TRACEMEs it before exec, matching
// original_source/src/process.cpp's launch(path, debug, stdout_replacement).
// stdoutReplacement, when non-negative, is dup2'd onto the child's stdout.
// A launch with debug=false produces an ordinary untraced child; the
// caller is expected to start tracing it itself with Attach.
func Launch(path string, args []string, debug bool, stdoutReplacement int) (*Process, error) {
	errPipe, err := pipe.New(true)
	if err != nil {
		return nil, sdberr.Wrap(sdberr.ForkFailed, err, "failed to create launch error pipe")
	}

	tracer, err := ptrace.Launch(func() (int, error) {
		return launchChild(path, args, debug, stdoutReplacement, errPipe)
	})
	if err != nil {
		return nil, sdberr.Wrap(sdberr.ForkFailed, err, "failed to launch %s", path)
	}

	return newProcess(tracer, debug, true)
}

// launchChild runs on the ptrace server's locked OS thread. Its parent
// half disables ASLR around the fork (personality flags are copied to the
// child at fork and survive execve for an ordinary, non-setuid binary, so
// there is no need to run code between fork and exec to set it there) and
// then forks and execs directly via raw syscalls, reporting any failure
// through errPipe exactly the way a close-on-exec pipe is meant to be
// used: a successful exec closes the write end for free, a failed one
// leaves the child time to report why.
func launchChild(path string, args []string, debug bool, stdoutReplacement int, errPipe *pipe.Pipe) (int, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	argv0, err := syscall.BytePtrFromString(path)
	if err != nil {
		return 0, err
	}

	argv := make([]string, 0, len(args)+1)
	argv = append(argv, path)
	argv = append(argv, args...)
	argvp, err := syscall.SlicePtrFromStrings(argv)
	if err != nil {
		return 0, err
	}

	envp, err := syscall.SlicePtrFromStrings(syscall.Environ())
	if err != nil {
		return 0, err
	}

	oldPersona, err := unix.Personality(unix.ADDR_NO_RANDOMIZE)
	if err != nil {
		return 0, fmt.Errorf("failed to disable ASLR: %w", err)
	}
	defer unix.Personality(oldPersona)

	pid, _, errno := syscall.RawSyscall(syscall.SYS_FORK, 0, 0, 0)
	if errno != 0 {
		return 0, errno
	}

	if pid == 0 {
		childExec(argv0, argvp, envp, debug, stdoutReplacement, errPipe)
		syscall.RawSyscall(syscall.SYS_EXIT, 1, 0, 0)
		panic("unreachable")
	}

	_ = errPipe.CloseWrite()
	message, _ := errPipe.Read()
	_ = errPipe.CloseRead()

	if len(message) > 0 {
		var status syscall.WaitStatus
		_, _ = syscall.Wait4(int(pid), &status, 0, nil)
		return 0, sdberr.New(sdberr.ExecFailed, "%s", message)
	}

	return int(pid), nil
}

// childExec runs after fork, before exec, on a thread sharing its address
// space copy-on-write with the parent: it must not allocate or make any
// call that could touch the Go scheduler, so every step here is a raw
// syscall, mirroring the constraints Go's own forkAndExecInChild observes.
func childExec(argv0 *byte, argv, envp []*byte, debug bool, stdoutReplacement int, errPipe *pipe.Pipe) {
	_ = syscall.Close(errPipe.GetReadFd())

	if stdoutReplacement >= 0 {
		if _, _, errno := syscall.RawSyscall(syscall.SYS_DUP2, uintptr(stdoutReplacement), uintptr(syscall.Stdout), 0); errno != 0 {
			reportChildError(errPipe, "stdout replacement failed", errno)
			return
		}
	}

	if debug {
		if _, _, errno := syscall.RawSyscall6(syscall.SYS_PTRACE, uintptr(syscall.PTRACE_TRACEME), 0, 0, 0, 0, 0); errno != 0 {
			reportChildError(errPipe, "tracing failed", errno)
			return
		}
	}

	_, _, errno := syscall.RawSyscall(
		syscall.SYS_EXECVE,
		uintptr(unsafe.Pointer(argv0)),
		uintptr(unsafe.Pointer(&argv[0])),
		uintptr(unsafe.Pointer(&envp[0])))
	reportChildError(errPipe, "exec failed", errno)
}

func reportChildError(errPipe *pipe.Pipe, prefix string, errno syscall.Errno) {
	message := prefix + ": " + errno.Error()
	_ = errPipe.Write([]byte(message))
}

// Attach starts tracing an already-running process. Unlike Launch, the
// process is never torn down on Close; spec.md §9 requires
// terminateOnEnd=false here since this process was not created by us.
func Attach(pid int) (*Process, error) {
	if pid == 0 {
		return nil, sdberr.New(sdberr.InvalidPid, "invalid pid")
	}

	tracer, err := ptrace.AttachToProcess(pid)
	if err != nil {
		return nil, sdberr.Wrap(sdberr.AttachFailed, err, "failed to attach to process %d", pid)
	}

	return newProcess(tracer, true, false)
}

func (proc *Process) Pid() int         { return proc.pid }
func (proc *Process) State() StopReason { return proc.state }

// Resume steps over an enabled breakpoint at the current PC (if any) and
// continues the inferior until its next stop.
func (proc *Process) Resume() error {
	if proc.state.State == Exited || proc.state.State == Terminated {
		return sdberr.New(sdberr.ResumeFailed, "process %d has already exited", proc.pid)
	}

	pc := proc.programCounter()
	if site, ok := proc.breakpoints.EnabledSiteAt(pc); ok {
		if err := site.Disable(); err != nil {
			return sdberr.Wrap(sdberr.ResumeFailed, err, "failed to step over breakpoint at %s", pc)
		}

		if err := proc.tracer.SingleStep(); err != nil {
			return sdberr.Wrap(sdberr.SinglestepFailed, err, "failed to step over breakpoint at %s", pc)
		}

		if _, err := proc.WaitOnSignal(); err != nil {
			return err
		}

		if err := site.Enable(); err != nil {
			return sdberr.Wrap(sdberr.ResumeFailed, err, "failed to re-enable breakpoint at %s", pc)
		}
	}

	if err := proc.tracer.Resume(0); err != nil {
		return sdberr.Wrap(sdberr.ResumeFailed, err, "failed to resume process %d", proc.pid)
	}

	proc.state = runningReason()
	return nil
}

// StepInstruction disables any breakpoint at the current PC, single-steps
// past it, waits for the resulting stop, and re-enables the breakpoint.
func (proc *Process) StepInstruction() (StopReason, error) {
	pc := proc.programCounter()

	site, wasEnabled := proc.breakpoints.EnabledSiteAt(pc)
	if wasEnabled {
		if err := site.Disable(); err != nil {
			return StopReason{}, sdberr.Wrap(sdberr.SinglestepFailed, err, "failed to disable breakpoint at %s", pc)
		}
	}

	if err := proc.tracer.SingleStep(); err != nil {
		return StopReason{}, sdberr.Wrap(sdberr.SinglestepFailed, err, "failed to single step process %d", proc.pid)
	}

	reason, err := proc.WaitOnSignal()
	if err != nil {
		return StopReason{}, err
	}

	if wasEnabled {
		if err := site.Enable(); err != nil {
			return StopReason{}, sdberr.Wrap(sdberr.SinglestepFailed, err, "failed to re-enable breakpoint at %s", pc)
		}
	}

	return reason, nil
}

// WaitOnSignal blocks until the inferior's state changes. When this
// Process is actually tracing it (isAttached), a stop also refreshes the
// register mirror and rewinds the program counter back onto an int3 byte
// when the trap that stopped us was a breakpoint site's own, since the
// kernel has already advanced PC past the single injected byte. A
// Process returned by Launch(debug=false) is not attached, so a stop it
// observes (e.g. a plain SIGSTOP) is reported without touching registers
// that no ptrace call can legally read yet.
func (proc *Process) WaitOnSignal() (StopReason, error) {
	var status syscall.WaitStatus
	if _, err := syscall.Wait4(proc.pid, &status, 0, nil); err != nil {
		return StopReason{}, sdberr.Wrap(sdberr.WaitpidFailed, err, "failed to wait for process %d", proc.pid)
	}

	proc.state = reasonFromWaitStatus(status)

	if proc.isAttached && proc.state.State == Stopped {
		if err := proc.readAllRegisters(); err != nil {
			return StopReason{}, err
		}

		currentInstructionAddr := proc.programCounter().Add(-1)
		if syscall.Signal(proc.state.Info) == syscall.SIGTRAP {
			if _, ok := proc.breakpoints.EnabledSiteAt(currentInstructionAddr); ok {
				if err := proc.setProgramCounter(currentInstructionAddr); err != nil {
					return StopReason{}, err
				}
			}
		}
	}

	return proc.state, nil
}

func (proc *Process) readAllRegisters() error {
	gpr, err := proc.tracer.GetGeneralRegisters()
	if err != nil {
		return sdberr.Wrap(sdberr.RegisterReadFailed, err, "failed to read general registers from process %d", proc.pid)
	}

	fpr, err := proc.tracer.GetFloatingPointRegisters()
	if err != nil {
		return sdberr.Wrap(sdberr.RegisterReadFailed, err, "failed to read floating point registers from process %d", proc.pid)
	}

	bank := RegisterBank{gpr: *gpr, fpr: *fpr}
	for idx := range bank.dr {
		offset := userDebugRegistersOffset + uintptr(idx*8)
		value, err := proc.tracer.PeekUserArea(offset)
		if err != nil {
			return sdberr.Wrap(sdberr.RegisterReadFailed, err, "failed to read dr%d from process %d", idx, proc.pid)
		}
		bank.dr[idx] = value
	}

	proc.registers = RegisterFile{bank: bank}
	return nil
}

// GetRegisterFile returns the in-memory register mirror. Callers must
// only rely on it while the process is Stopped.
func (proc *Process) GetRegisterFile() (RegisterFile, error) {
	if proc.state.State != Stopped {
		return RegisterFile{}, sdberr.New(sdberr.NotStopped, "process %d is not stopped", proc.pid)
	}
	return proc.registers, nil
}

// SetRegisterFile flushes rf's general, floating point, and debug
// registers to the inferior and keeps it as the new mirror.
func (proc *Process) SetRegisterFile(rf RegisterFile) error {
	if proc.state.State != Stopped {
		return sdberr.New(sdberr.NotStopped, "process %d is not stopped", proc.pid)
	}

	if err := proc.tracer.SetGeneralRegisters(&rf.bank.gpr); err != nil {
		return sdberr.Wrap(sdberr.RegisterWriteFailed, err, "failed to write general registers to process %d", proc.pid)
	}

	if err := proc.tracer.SetFloatingPointRegisters(&rf.bank.fpr); err != nil {
		return sdberr.Wrap(sdberr.RegisterWriteFailed, err, "failed to write floating point registers to process %d", proc.pid)
	}

	for idx, value := range rf.bank.dr {
		if idx == 4 || idx == 5 {
			continue
		}

		offset := userDebugRegistersOffset + uintptr(idx*8)
		if err := proc.tracer.PokeUserArea(offset, value); err != nil {
			return sdberr.Wrap(sdberr.RegisterWriteFailed, err, "failed to write dr%d to process %d", idx, proc.pid)
		}
	}

	proc.registers = rf
	return nil
}

func (proc *Process) programCounter() VirtualAddress {
	rip := proc.registers.Read(proc.set["rip"])
	return VirtualAddress(rip.ToUint64())
}

func (proc *Process) setProgramCounter(addr VirtualAddress) error {
	rf, err := proc.registers.WithValue(proc.set["rip"], Uint64Value(addr.Uint64()))
	if err != nil {
		return sdberr.Wrap(sdberr.RegisterWriteFailed, err, "failed to set program counter to %s", addr)
	}
	return proc.SetRegisterFile(rf)
}

// ReadMemory implements MemoryAccessor: it reads raw bytes via
// process_vm_readv and then scrubs every enabled breakpoint site's int3
// byte out of the result, so callers never observe the debugger's own
// breakpoints.
func (proc *Process) ReadMemory(addr VirtualAddress, buffer []byte) error {
	count, err := proc.tracer.ReadFromVirtualMemory(uintptr(addr), buffer)
	if err != nil {
		return sdberr.Wrap(sdberr.MemoryAccessFailed, err, "failed to read memory at %s", addr)
	}
	if count != len(buffer) {
		return sdberr.New(sdberr.MemoryAccessFailed,
			"short read at %s: got %d of %d bytes", addr, count, len(buffer))
	}

	proc.breakpoints.ReplaceStopPointBytes(addr, buffer)
	return nil
}

// WriteMemory pokes data into the inferior's address space one machine
// word at a time via PTRACE_POKEDATA, the only memory-write ptrace offers.
func (proc *Process) WriteMemory(addr VirtualAddress, data []byte) error {
	count, err := proc.tracer.PokeData(uintptr(addr), data)
	if err != nil {
		return sdberr.Wrap(sdberr.MemoryAccessFailed, err, "failed to write memory at %s", addr)
	}
	if count != len(data) {
		return sdberr.New(sdberr.MemoryAccessFailed,
			"short write at %s: wrote %d of %d bytes", addr, count, len(data))
	}
	return nil
}

// CreateBreakpointSite allocates (but does not enable) a software
// breakpoint at address.
func (proc *Process) CreateBreakpointSite(address VirtualAddress) (*BreakpointSite, error) {
	return proc.breakpoints.CreateBreakpointSite(address)
}

func (proc *Process) Breakpoints() *BreakpointSiteTable {
	return proc.breakpoints
}

// RegisterByName looks up a register descriptor by name, for front ends
// that resolve a register argument before calling GetRegisterFile/
// SetRegisterFile themselves.
func (proc *Process) RegisterByName(name string) (RegisterInfo, bool) {
	return proc.set.ByName(name)
}

// Registers returns the process's register descriptor table, for front
// ends that enumerate every register (e.g. "register read all").
func (proc *Process) Registers() RegisterSet {
	return proc.set
}

func (proc *Process) signal(sig syscall.Signal) error {
	if err := syscall.Kill(proc.pid, sig); err != nil {
		return sdberr.Wrap(sdberr.DetachFailed, err, "failed to signal process %d with %v", proc.pid, sig)
	}
	return nil
}

// Close reconciles tracer state the way original_source/src/process.cpp's
// destructor does: if this Process is tracing the inferior, it is stopped
// (if running) so PTRACE_DETACH is legal, detached, and resumed with
// SIGCONT; independently of that, if this Process owns the inferior's
// lifetime (i.e. it was launched, not attached to), it is killed and
// reaped. The two are independent because Launch(debug=false) returns a
// Process that owns the inferior's lifetime without ever tracing it.
func (proc *Process) Close() error {
	if proc.state.State == Exited || proc.state.State == Terminated {
		return nil
	}

	if proc.isAttached {
		if proc.state.State == Running {
			if err := proc.signal(syscall.SIGSTOP); err != nil {
				return err
			}
			if _, err := proc.WaitOnSignal(); err != nil {
				return err
			}
		}

		if err := proc.tracer.Detach(); err != nil {
			return sdberr.Wrap(sdberr.DetachFailed, err, "failed to detach from process %d", proc.pid)
		}

		if err := proc.signal(syscall.SIGCONT); err != nil {
			return err
		}
	}

	if proc.terminateOnEnd {
		if err := proc.signal(syscall.SIGKILL); err != nil {
			return err
		}
		if _, err := proc.WaitOnSignal(); err != nil {
			return err
		}
	}

	return nil
}
