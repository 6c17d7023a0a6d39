package sdb

import (
	"debug/elf"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	"github.com/fanyingfx/sdb/procfs"
)

func processExists(pid int) bool {
	err := syscall.Kill(pid, 0)
	return !errors.Is(err, syscall.ESRCH)
}

// target resolves a built testdata/targets/<name> binary, skipping the
// test when the Makefile in that directory hasn't been run, since these
// scenarios need a real traced process rather than a mock.
func target(t *testing.T, name string) string {
	path := filepath.Join("testdata", "targets", name)
	if _, err := os.Stat(path); err != nil {
		t.Skipf("%s not built; run `make -C testdata/targets`", path)
	}
	return path
}

// entryLoadAddress resolves the runtime address of binaryPath's ELF entry
// point inside proc, combining the entry's file offset from debug/elf with
// the load bias of proc's mapping of that file from /proc/<pid>/maps
// (spec.md §8 scenario 6). The targets under testdata/targets are built
// with -no-pie, so ET_EXEC already carries an absolute entry address with
// zero load bias; the maps lookup below only matters for an ET_DYN binary.
func entryLoadAddress(t *testing.T, proc *Process, binaryPath string) VirtualAddress {
	elfFile, err := elf.Open(binaryPath)
	expect.Nil(t, err)
	defer elfFile.Close()

	if elfFile.Type == elf.ET_EXEC {
		return VirtualAddress(elfFile.Entry)
	}

	resolvedPath, err := os.Readlink(procfs.GetExecutableSymlinkPath(proc.Pid()))
	expect.Nil(t, err)

	regions, err := procfs.GetMappedMemoryRegions(proc.Pid())
	expect.Nil(t, err)

	for _, region := range regions {
		if region.Pathname == resolvedPath && region.Offset == 0 {
			return VirtualAddress(region.LowAddress + elfFile.Entry)
		}
	}

	t.Fatalf("no mapped region found for %s in process %d", resolvedPath, proc.Pid())
	return 0
}

type ProcessSuite struct{}

func TestProcess(t *testing.T) {
	suite.RunTests(t, &ProcessSuite{})
}

func (ProcessSuite) TestLaunchSuccess(t *testing.T) {
	proc, err := Launch(target(t, "run_endlessly"), nil, true, -1)
	expect.Nil(t, err)
	defer proc.Close()

	expect.True(t, processExists(proc.Pid()))
}

func (ProcessSuite) TestLaunchNoSuchProgram(t *testing.T) {
	proc, err := Launch("/no/such/program", nil, true, -1)
	expect.Nil(t, proc)
	expect.NotNil(t, err)
}

func (ProcessSuite) TestAttachSuccess(t *testing.T) {
	cmd := exec.Command(target(t, "run_endlessly"))
	expect.Nil(t, cmd.Start())
	defer cmd.Process.Kill()

	proc, err := Attach(cmd.Process.Pid)
	expect.Nil(t, err)
	defer proc.Close()

	status, err := procfs.GetProcessStatus(cmd.Process.Pid)
	expect.Nil(t, err)
	expect.Equal(t, procfs.TracingStop, status.State)
}

// TestLaunchUndebuggedThenAttach is spec.md §8 scenario 2: launch a
// target with debug=false (no PTRACE_TRACEME at all, an ordinary child),
// then separately attach to the resulting pid and confirm it lands in
// ptrace's tracing-stop.
func (ProcessSuite) TestLaunchUndebuggedThenAttach(t *testing.T) {
	launched, err := Launch(target(t, "run_endlessly"), nil, false, -1)
	expect.Nil(t, err)
	defer launched.Close()

	proc, err := Attach(launched.Pid())
	expect.Nil(t, err)
	defer proc.Close()

	status, err := procfs.GetProcessStatus(launched.Pid())
	expect.Nil(t, err)
	expect.Equal(t, procfs.TracingStop, status.State)
}

func (ProcessSuite) TestAttachInvalidPid(t *testing.T) {
	proc, err := Attach(0)
	expect.Nil(t, proc)
	expect.NotNil(t, err)
}

func (ProcessSuite) TestResumeFromLaunch(t *testing.T) {
	proc, err := Launch(target(t, "run_endlessly"), nil, true, -1)
	expect.Nil(t, err)
	defer proc.Close()

	status, err := procfs.GetProcessStatus(proc.Pid())
	expect.Nil(t, err)
	expect.Equal(t, procfs.TracingStop, status.State)

	expect.Nil(t, proc.Resume())

	status, err = procfs.GetProcessStatus(proc.Pid())
	expect.Nil(t, err)
	expect.True(t, status.State == procfs.Running || status.State == procfs.Sleeping)
}

func (ProcessSuite) TestResumeAlreadyTerminated(t *testing.T) {
	proc, err := Launch(target(t, "end_immediately"), nil, true, -1)
	expect.Nil(t, err)
	defer proc.Close()

	expect.Nil(t, proc.Resume())

	reason, err := proc.WaitOnSignal()
	expect.Nil(t, err)
	expect.Equal(t, Exited, reason.State)

	err = proc.Resume()
	expect.NotNil(t, err)
}

func (ProcessSuite) TestRegisterWriteVisibleToInferior(t *testing.T) {
	reader, writer, err := os.Pipe()
	expect.Nil(t, err)
	defer reader.Close()

	proc, err := Launch(target(t, "reg_write"), nil, true, int(writer.Fd()))
	expect.Nil(t, err)
	defer proc.Close()
	writer.Close()

	expect.Nil(t, proc.Resume())
	reason, err := proc.WaitOnSignal()
	expect.Nil(t, err)
	expect.Equal(t, Stopped, reason.State)

	rf, err := proc.GetRegisterFile()
	expect.Nil(t, err)

	rf, err = rf.WithValue(proc.set["rsi"], Uint64Value(0xcafecafe))
	expect.Nil(t, err)
	expect.Nil(t, proc.SetRegisterFile(rf))

	expect.Nil(t, proc.Resume())
	reason, err = proc.WaitOnSignal()
	expect.Nil(t, err)
	expect.Equal(t, Stopped, reason.State)

	content := make([]byte, 64)
	n, err := reader.Read(content)
	expect.Nil(t, err)
	expect.Equal(t, "0xcafecafe", string(content[:n]))

	// mm0 = 0xba5eba11 (spec.md §8 scenario 5).
	rf, err = proc.GetRegisterFile()
	expect.Nil(t, err)

	rf, err = rf.WithValue(proc.set["mm0"], Uint128Value(0xba5eba11, 0))
	expect.Nil(t, err)
	expect.Nil(t, proc.SetRegisterFile(rf))

	expect.Nil(t, proc.Resume())
	reason, err = proc.WaitOnSignal()
	expect.Nil(t, err)
	expect.Equal(t, Stopped, reason.State)

	n, err = reader.Read(content)
	expect.Nil(t, err)
	expect.Equal(t, "0xba5eba11", string(content[:n]))

	// xmm0 = 42.24 (spec.md §8 scenario 5).
	rf, err = proc.GetRegisterFile()
	expect.Nil(t, err)

	rf, err = rf.WithValue(proc.set["xmm0"], Float64Value(42.24))
	expect.Nil(t, err)
	expect.Nil(t, proc.SetRegisterFile(rf))

	expect.Nil(t, proc.Resume())
	reason, err = proc.WaitOnSignal()
	expect.Nil(t, err)
	expect.Equal(t, Stopped, reason.State)

	n, err = reader.Read(content)
	expect.Nil(t, err)
	expect.Equal(t, "42.24", string(content[:n]))

	// (st0, fsw, ftw) = (42.24L, 0x3800, 0x3FFF) (spec.md §8 scenario 5).
	// The double 42.24 widened to 80-bit extended form is the
	// explicit-integer-bit mantissa 0xa8f5c28f5c28f800 with sign/exponent
	// word 0x4004; it prints as 42.24 at two decimals.
	rf, err = proc.GetRegisterFile()
	expect.Nil(t, err)

	rf, err = rf.WithValue(proc.set["st0"], Uint128Value(0xa8f5c28f5c28f800, 0x4004))
	expect.Nil(t, err)

	rf, err = rf.WithValue(proc.set["fsw"], Uint16Value(0x3800))
	expect.Nil(t, err)

	rf, err = rf.WithValue(proc.set["ftw"], Uint16Value(0x3fff))
	expect.Nil(t, err)
	expect.Nil(t, proc.SetRegisterFile(rf))

	expect.Nil(t, proc.Resume())
	reason, err = proc.WaitOnSignal()
	expect.Nil(t, err)
	expect.Equal(t, Stopped, reason.State)

	n, err = reader.Read(content)
	expect.Nil(t, err)
	expect.Equal(t, "42.24", string(content[:n]))
}

func (ProcessSuite) TestRegisterReadFromInferior(t *testing.T) {
	proc, err := Launch(target(t, "reg_read"), nil, true, -1)
	expect.Nil(t, err)
	defer proc.Close()

	expect.Nil(t, proc.Resume())
	reason, err := proc.WaitOnSignal()
	expect.Nil(t, err)
	expect.Equal(t, Stopped, reason.State)

	rf, err := proc.GetRegisterFile()
	expect.Nil(t, err)

	rsi := rf.Read(proc.set["rsi"])
	expect.Equal(t, uint64(0xcafecafe), rsi.ToUint64())

	mm0 := rf.Read(proc.set["mm0"])
	expect.Equal(t, uint64(0xba5eba11), mm0.ToUint64())
}

func (ProcessSuite) TestCreateBreakpointSite(t *testing.T) {
	proc, err := Launch(target(t, "run_endlessly"), nil, true, -1)
	expect.Nil(t, err)
	defer proc.Close()

	site, err := proc.CreateBreakpointSite(0x1000)
	expect.Nil(t, err)
	expect.True(t, proc.Breakpoints().ContainsID(site.ID()))

	_, err = proc.CreateBreakpointSite(0x1000)
	expect.NotNil(t, err)
}

func (ProcessSuite) TestStepInstruction(t *testing.T) {
	proc, err := Launch(target(t, "hello_sdb"), nil, true, -1)
	expect.Nil(t, err)
	defer proc.Close()

	before := proc.programCounter()

	reason, err := proc.StepInstruction()
	expect.Nil(t, err)
	expect.Equal(t, Stopped, reason.State)

	after := proc.programCounter()
	expect.NotEqual(t, before, after)
}

func (ProcessSuite) TestBreakpointOnEntry(t *testing.T) {
	reader, writer, err := os.Pipe()
	expect.Nil(t, err)
	defer reader.Close()

	path := target(t, "hello_sdb")
	proc, err := Launch(path, nil, true, int(writer.Fd()))
	expect.Nil(t, err)
	defer proc.Close()
	writer.Close()

	entry := entryLoadAddress(t, proc, path)

	site, err := proc.CreateBreakpointSite(entry)
	expect.Nil(t, err)
	expect.Nil(t, site.Enable())

	expect.Nil(t, proc.Resume())
	reason, err := proc.WaitOnSignal()
	expect.Nil(t, err)
	expect.Equal(t, Stopped, reason.State)
	expect.Equal(t, uint8(syscall.SIGTRAP), reason.Info)
	expect.Equal(t, entry, proc.programCounter())

	expect.Nil(t, proc.Resume())
	reason, err = proc.WaitOnSignal()
	expect.Nil(t, err)
	expect.Equal(t, Exited, reason.State)
	expect.Equal(t, uint8(0), reason.Info)

	content := make([]byte, 64)
	n, err := reader.Read(content)
	expect.Nil(t, err)
	expect.Equal(t, "Hello, sdb!\n", string(content[:n]))
}

func (ProcessSuite) TestMemoryReadWriteRoundTrip(t *testing.T) {
	proc, err := Launch(target(t, "run_endlessly"), nil, true, -1)
	expect.Nil(t, err)
	defer proc.Close()

	pc := proc.programCounter()

	data := []byte{0x90, 0x90, 0x90, 0x90}
	expect.Nil(t, proc.WriteMemory(pc, data))

	readBack := make([]byte, len(data))
	expect.Nil(t, proc.ReadMemory(pc, readBack))
	expect.Equal(t, data, readBack)
}
