package sdb

import (
	"sort"

	"github.com/fanyingfx/sdb/sdberr"
)

// BreakpointSiteTable owns every BreakpointSite created against a Process,
// indexed both by id and by address, matching the dual-index shape of
// _examples/pattyshack-bad/stop_points.go's StopPointSet but trimmed down
// to the single software/execute kind spec.md §3 names.
type BreakpointSiteTable struct {
	memory MemoryAccessor

	nextID BreakpointSiteID
	byID   map[BreakpointSiteID]*BreakpointSite
	byAddr map[VirtualAddress]*BreakpointSite
}

func NewBreakpointSiteTable(memory MemoryAccessor) *BreakpointSiteTable {
	return &BreakpointSiteTable{
		memory: memory,
		nextID: 1,
		byID:   map[BreakpointSiteID]*BreakpointSite{},
		byAddr: map[VirtualAddress]*BreakpointSite{},
	}
}

// CreateBreakpointSite allocates a disabled BreakpointSite at address. The
// caller is responsible for calling Enable when it wants the trap armed.
func (table *BreakpointSiteTable) CreateBreakpointSite(address VirtualAddress) (*BreakpointSite, error) {
	if _, exists := table.byAddr[address]; exists {
		return nil, sdberr.New(sdberr.DuplicateBreakpoint,
			"breakpoint site already exists at %s", address)
	}

	id := table.nextID
	table.nextID++

	site := newBreakpointSite(id, table.memory, address)
	table.byID[id] = site
	table.byAddr[address] = site
	return site, nil
}

func (table *BreakpointSiteTable) ContainsID(id BreakpointSiteID) bool {
	_, ok := table.byID[id]
	return ok
}

func (table *BreakpointSiteTable) ContainsAddress(address VirtualAddress) bool {
	_, ok := table.byAddr[address]
	return ok
}

func (table *BreakpointSiteTable) GetByID(id BreakpointSiteID) (*BreakpointSite, bool) {
	site, ok := table.byID[id]
	return site, ok
}

func (table *BreakpointSiteTable) GetByAddress(address VirtualAddress) (*BreakpointSite, bool) {
	site, ok := table.byAddr[address]
	return site, ok
}

// EnabledSiteAt returns the enabled site exactly at address, if any. Used
// to decide whether a SIGTRAP landed on a breakpoint (spec.md §4.3).
func (table *BreakpointSiteTable) EnabledSiteAt(address VirtualAddress) (*BreakpointSite, bool) {
	site, ok := table.byAddr[address]
	if !ok || !site.IsEnabled() {
		return nil, false
	}
	return site, true
}

func (table *BreakpointSiteTable) RemoveByID(id BreakpointSiteID) error {
	site, ok := table.byID[id]
	if !ok {
		return sdberr.New(sdberr.NoSuchBreakpoint, "no breakpoint site with id %d", id)
	}

	if err := site.Disable(); err != nil {
		return err
	}

	delete(table.byID, id)
	delete(table.byAddr, site.Address())
	return nil
}

func (table *BreakpointSiteTable) RemoveByAddress(address VirtualAddress) error {
	site, ok := table.byAddr[address]
	if !ok {
		return sdberr.New(sdberr.NoSuchBreakpoint, "no breakpoint site at %s", address)
	}

	return table.RemoveByID(site.ID())
}

func (table *BreakpointSiteTable) Empty() bool { return len(table.byID) == 0 }
func (table *BreakpointSiteTable) Size() int   { return len(table.byID) }

// List returns every site sorted by address, matching the presentation
// order _examples/pattyshack-bad/stop_points.go's List produces.
func (table *BreakpointSiteTable) List() []*BreakpointSite {
	result := make([]*BreakpointSite, 0, len(table.byID))
	for _, site := range table.byID {
		result = append(result, site)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Address().Less(result[j].Address())
	})
	return result
}

// ReplaceStopPointBytes scrubs every enabled site's int3 byte out of a
// freshly-read memory slice, so callers of Process.ReadMemory never see
// the debugger's own breakpoint bytes.
func (table *BreakpointSiteTable) ReplaceStopPointBytes(startAddr VirtualAddress, memorySlice []byte) {
	for _, site := range table.byID {
		site.ReplaceStopPointBytes(startAddr, memorySlice)
	}
}
