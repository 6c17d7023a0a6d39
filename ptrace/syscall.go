// Package ptrace wraps the raw PTRACE_* syscalls behind a single
// OS-thread-pinned server goroutine, since every ptrace call against a
// tracee — including PTRACE_TRACEME before execve — must originate from
// the same OS thread that created it:
//
// https://github.com/golang/go/issues/7699
// https://github.com/golang/go/issues/43685
package ptrace

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

type Options int

const (
	vmPageSize = 0x1000

	OptExitKill     = Options(unix.PTRACE_O_EXITKILL)
	OptTraceSysGood = Options(unix.PTRACE_O_TRACESYSGOOD)
)

// UserRegs matches the kernel's 64-bit user_regs_struct (<sys/user.h>).
type UserRegs = syscall.PtraceRegs

// UserFPRegs matches the kernel's 64-bit user_fpregs_struct.
type UserFPRegs struct {
	Cwd      uint16
	Swd      uint16
	Ftw      uint16
	Fop      uint16
	Rip      uint64
	Rdp      uint64
	Mxcsr    uint32
	MxcrMask uint32

	// The kernel defines StSpace/XmmSpace as uint32 arrays; uint64 arrays
	// are used here so a Uint128 register value maps onto two slots.
	StSpace  [16]uint64
	XmmSpace [32]uint64

	Padding [24]uint32
}

// User matches the kernel's 64-bit struct user (<sys/user.h>). Only
// UDebugReg's offset is used, to compute PTRACE_PEEKUSER/POKEUSER offsets
// for dr0..dr7 without hardcoding the kernel's struct layout by hand.
type User struct {
	Regs       UserRegs
	UFPValid   int
	I387       UserFPRegs
	UTSize     uint64
	UDSize     uint64
	USSize     uint64
	StartCode  uint64
	StartStack uint64
	Signal     int64
	Reserved   int
	UAr0       uintptr
	UFPState   uintptr
	Magic      uint64
	UComm      [32]byte
	UDebugReg  [8]uint64
}

func ptrace(request int, pid int, addr uintptr, data uintptr) error {
	_, _, err := syscall.Syscall6(
		syscall.SYS_PTRACE,
		uintptr(request),
		uintptr(pid),
		addr,
		data,
		0,
		0)
	if err == 0 {
		return nil
	}
	return err
}

func ptracePtr(request int, pid int, addr uintptr, data unsafe.Pointer) error {
	return ptrace(request, pid, addr, uintptr(data))
}

func getFPRegs(pid int, out *UserFPRegs) error {
	return ptracePtr(syscall.PTRACE_GETFPREGS, pid, 0, unsafe.Pointer(out))
}

func setFPRegs(pid int, in *UserFPRegs) error {
	return ptracePtr(syscall.PTRACE_SETFPREGS, pid, 0, unsafe.Pointer(in))
}

func peekUserArea(pid int, offset uintptr) (uintptr, error) {
	// Syscall6 is issued directly rather than through cgo, so a valid
	// output pointer must be supplied even though the man page describes
	// PTRACE_PEEKUSR as returning its result via the syscall return value.
	data := uintptr(0)
	err := ptracePtr(syscall.PTRACE_PEEKUSR, pid, offset, unsafe.Pointer(&data))
	return data, err
}

func pokeUserArea(pid int, offset uintptr, data uintptr) error {
	return ptrace(syscall.PTRACE_POKEUSR, pid, offset, data)
}

// readVirtualMemory reads data from the tracee's address space with
// process_vm_readv, which is governed by the same permission the tracer
// already holds via PTRACE_ATTACH/TRACEME, and is cheaper than repeated
// PTRACE_PEEKDATA words for anything longer than a word.
func readVirtualMemory(pid int, addr uintptr, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	localIovs := make([]unix.Iovec, 1)
	localIovs[0].Base = &data[0]
	localIovs[0].SetLen(len(data))

	var remoteIovs []unix.RemoteIovec

	remaining := len(data)

	if addr%vmPageSize != 0 {
		pageEndAddr := ((addr + vmPageSize - 1) / vmPageSize) * vmPageSize

		size := int(pageEndAddr - addr)
		if remaining < size {
			size = remaining
		}

		remoteIovs = append(remoteIovs, unix.RemoteIovec{Base: addr, Len: size})
		remaining -= size
		addr += uintptr(size)
	}

	for remaining > 0 {
		size := remaining
		if size > vmPageSize {
			size = vmPageSize
		}

		remoteIovs = append(remoteIovs, unix.RemoteIovec{Base: addr, Len: size})
		remaining -= size
		addr += uintptr(size)
	}

	return unix.ProcessVMReadv(pid, localIovs, remoteIovs, 0)
}
