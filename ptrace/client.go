package ptrace

import (
	"fmt"
)

// Tracer is a client handle onto a traceServer: every method sends a
// request across a channel and blocks for the matching response, so
// callers never need to know which OS thread is actually issuing the
// underlying ptrace(2) call.
type Tracer struct {
	Pid int

	server *traceServer
}

// Launch runs launch (expected to fork, set up PTRACE_TRACEME, and exec)
// on the server's locked OS thread, since PTRACE_TRACEME and every
// subsequent ptrace call against the resulting tracee must come from that
// same thread.
func Launch(launch func() (int, error)) (*Tracer, error) {
	server := newTraceServer()

	tracer := &Tracer{server: server}

	resp, err := tracer.send(request{opType: startOp, launch: launch})
	if err != nil {
		close(server.requestChan)
		return nil, err
	}

	tracer.Pid = resp.pid
	return tracer, nil
}

func AttachToProcess(pid int) (*Tracer, error) {
	server := newTraceServer()

	tracer := &Tracer{Pid: pid, server: server}

	_, err := tracer.send(request{opType: attachOp, pid: pid})
	if err != nil {
		close(server.requestChan)
		return nil, err
	}

	return tracer, nil
}

func (tracer *Tracer) Close() error {
	select {
	case <-tracer.server.ctx.Done():
		return nil
	default:
		return tracer.Detach()
	}
}

func (tracer *Tracer) send(req request) (response, error) {
	respChan := make(chan response, 1)
	req.pid = tracer.Pid
	req.responseChan = respChan

	select {
	case <-tracer.server.ctx.Done():
		return response{}, fmt.Errorf("tracer has already detached from process %d", tracer.Pid)
	case tracer.server.requestChan <- req:
		resp := <-respChan
		return resp, resp.err
	}
}

func (tracer *Tracer) Detach() error {
	_, err := tracer.send(request{opType: detachOp})
	return err
}

func (tracer *Tracer) Resume(signal int) error {
	_, err := tracer.send(request{opType: resumeOp, signal: signal})
	return err
}

func (tracer *Tracer) SetOptions(options Options) error {
	_, err := tracer.send(request{opType: setOptionsOp, options: options})
	return err
}

func (tracer *Tracer) GetGeneralRegisters() (*UserRegs, error) {
	out := &UserRegs{}
	_, err := tracer.send(request{opType: getRegsOp, regs: out})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (tracer *Tracer) SetGeneralRegisters(in *UserRegs) error {
	_, err := tracer.send(request{opType: setRegsOp, regs: in})
	return err
}

func (tracer *Tracer) GetFloatingPointRegisters() (*UserFPRegs, error) {
	out := &UserFPRegs{}
	_, err := tracer.send(request{opType: getFPRegsOp, fpRegs: out})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (tracer *Tracer) SetFloatingPointRegisters(in *UserFPRegs) error {
	_, err := tracer.send(request{opType: setFPRegsOp, fpRegs: in})
	return err
}

func (tracer *Tracer) PeekUserArea(offset uintptr) (uintptr, error) {
	resp, err := tracer.send(request{opType: peekUserOp, offset: offset})
	return resp.registerData, err
}

func (tracer *Tracer) PokeUserArea(offset uintptr, data uintptr) error {
	_, err := tracer.send(request{opType: pokeUserOp, offset: offset, registerData: data})
	return err
}

func (tracer *Tracer) PeekData(addr uintptr, data []byte) (int, error) {
	resp, err := tracer.send(request{opType: peekDataOp, addr: addr, data: data})
	return resp.count, err
}

func (tracer *Tracer) PokeData(addr uintptr, data []byte) (int, error) {
	resp, err := tracer.send(request{opType: pokeDataOp, addr: addr, data: data})
	return resp.count, err
}

// ReadFromVirtualMemory uses process_vm_readv rather than PTRACE_PEEKDATA,
// which is cheaper for anything longer than a machine word. There is no
// corresponding write call since process_vm_writev cannot write to
// protected mappings the way PTRACE_POKEDATA can.
func (tracer *Tracer) ReadFromVirtualMemory(addr uintptr, data []byte) (int, error) {
	resp, err := tracer.send(request{opType: readMemoryOp, addr: addr, data: data})
	return resp.count, err
}

func (tracer *Tracer) SingleStep() error {
	_, err := tracer.send(request{opType: singleStepOp})
	return err
}
