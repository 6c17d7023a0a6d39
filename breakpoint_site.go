package sdb

import (
	"github.com/fanyingfx/sdb/sdberr"
)

const int3Instruction = byte(0xcc)

// BreakpointSiteID is the monotonically increasing identifier
// BreakpointSiteTable hands out on CreateBreakpointSite, per spec.md §3.
type BreakpointSiteID int

// MemoryAccessor is the capability a BreakpointSite needs from its owning
// Process: reading and writing the inferior's virtual memory. A
// BreakpointSite takes this interface rather than a *Process reference so
// that Process and BreakpointSite don't form a direct cyclic type
// dependency; Process satisfies it trivially.
type MemoryAccessor interface {
	ReadMemory(addr VirtualAddress, buffer []byte) error
	WriteMemory(addr VirtualAddress, data []byte) error
}

// BreakpointSite is a single software breakpoint: an int3 (0xcc) spliced
// into the inferior's text at address, with the displaced byte retained
// so Disable can restore it, matching
// _examples/pattyshack-bad/software_break_point_site.go's swapData.
type BreakpointSite struct {
	id      BreakpointSiteID
	memory  MemoryAccessor
	address VirtualAddress

	isEnabled    bool
	originalData byte
}

func newBreakpointSite(id BreakpointSiteID, memory MemoryAccessor, address VirtualAddress) *BreakpointSite {
	return &BreakpointSite{id: id, memory: memory, address: address}
}

func (site *BreakpointSite) ID() BreakpointSiteID      { return site.id }
func (site *BreakpointSite) Address() VirtualAddress   { return site.address }
func (site *BreakpointSite) IsEnabled() bool            { return site.isEnabled }

// Enable splices int3 into the breakpoint's address, remembering the byte
// it displaced so Disable can undo it. A no-op when already enabled.
func (site *BreakpointSite) Enable() error {
	if site.isEnabled {
		return nil
	}

	original, err := site.swap(int3Instruction)
	if err != nil {
		return sdberr.Wrap(sdberr.MemoryAccessFailed, err,
			"failed to enable breakpoint site at %s", site.address)
	}

	site.isEnabled = true
	site.originalData = original
	return nil
}

// Disable restores the byte int3 displaced. A no-op when already disabled.
func (site *BreakpointSite) Disable() error {
	if !site.isEnabled {
		return nil
	}

	_, err := site.swap(site.originalData)
	if err != nil {
		return sdberr.Wrap(sdberr.MemoryAccessFailed, err,
			"failed to disable breakpoint site at %s", site.address)
	}

	site.isEnabled = false
	return nil
}

func (site *BreakpointSite) swap(newData byte) (byte, error) {
	buffer := make([]byte, 1)
	if err := site.memory.ReadMemory(site.address, buffer); err != nil {
		return 0, err
	}

	original := buffer[0]
	buffer[0] = newData

	if err := site.memory.WriteMemory(site.address, buffer); err != nil {
		return 0, err
	}

	return original, nil
}

// ReplaceStopPointBytes undoes this site's int3 splice within a memory
// slice read that spans [startAddr, startAddr+len(memorySlice)), so callers
// reading memory never observe the debugger's own breakpoint bytes.
func (site *BreakpointSite) ReplaceStopPointBytes(startAddr VirtualAddress, memorySlice []byte) {
	if !site.isEnabled {
		return
	}

	endAddr := startAddr.Add(int64(len(memorySlice)))
	if startAddr.Less(site.address.Add(1)) && site.address.Less(endAddr) {
		memorySlice[site.address.Sub(startAddr)] = site.originalData
	}
}
