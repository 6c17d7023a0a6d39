package ptrace

type opType string

const (
	startOp      = opType("start")
	attachOp     = opType("attach")
	detachOp     = opType("detach")
	resumeOp     = opType("resume")
	singleStepOp = opType("singleStep")
	setOptionsOp = opType("setOptions")
	getRegsOp    = opType("getRegs")
	setRegsOp    = opType("setRegs")
	getFPRegsOp  = opType("getFPRegs")
	setFPRegsOp  = opType("setFPRegs")
	peekUserOp   = opType("peekUser")
	pokeUserOp   = opType("pokeUser")
	peekDataOp   = opType("peekData")
	pokeDataOp   = opType("pokeData")
	readMemoryOp = opType("readMemory")
)

type request struct {
	opType

	// launch performs fork+personality+PTRACE_TRACEME+execve on the
	// server's locked OS thread and returns the new tracee's pid. Only
	// used by startOp; the launch sequence itself lives in Process since
	// it alone knows the pipe-based exec-error handshake.
	launch func() (int, error)

	pid int // used by all except start

	signal int // resume

	options Options // set options

	regs   *UserRegs   // get/set regs
	fpRegs *UserFPRegs // get/set fp regs

	offset       uintptr // peek/poke user area
	registerData uintptr // poke user area

	addr uintptr // peek/poke data
	data []byte  // peek/poke data

	responseChan chan response
}

type response struct {
	pid int // start

	registerData uintptr // peek user area

	count int // peek/poke data

	err error
}
