package sdb

import (
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

type BreakpointSiteTableSuite struct{}

func TestBreakpointSiteTable(t *testing.T) {
	suite.RunTests(t, &BreakpointSiteTableSuite{})
}

// fakeMemory is a MemoryAccessor backed by a plain byte slice so the
// breakpoint table can be exercised without a live inferior.
type fakeMemory struct {
	data map[VirtualAddress]byte
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{data: map[VirtualAddress]byte{}}
}

func (m *fakeMemory) ReadMemory(addr VirtualAddress, buffer []byte) error {
	for i := range buffer {
		buffer[i] = m.data[addr.Add(int64(i))]
	}
	return nil
}

func (m *fakeMemory) WriteMemory(addr VirtualAddress, data []byte) error {
	for i, b := range data {
		m.data[addr.Add(int64(i))] = b
	}
	return nil
}

func (BreakpointSiteTableSuite) TestCreateAndLookup(t *testing.T) {
	table := NewBreakpointSiteTable(newFakeMemory())

	site, err := table.CreateBreakpointSite(0x1000)
	expect.Nil(t, err)
	expect.Equal(t, BreakpointSiteID(1), site.ID())

	expect.True(t, table.ContainsID(site.ID()))
	expect.True(t, table.ContainsAddress(0x1000))

	byID, ok := table.GetByID(site.ID())
	expect.True(t, ok)
	expect.Equal(t, site, byID)

	byAddr, ok := table.GetByAddress(0x1000)
	expect.True(t, ok)
	expect.Equal(t, site, byAddr)
}

func (BreakpointSiteTableSuite) TestDuplicateAddressFails(t *testing.T) {
	table := NewBreakpointSiteTable(newFakeMemory())

	_, err := table.CreateBreakpointSite(0x2000)
	expect.Nil(t, err)

	_, err = table.CreateBreakpointSite(0x2000)
	expect.NotNil(t, err)
}

func (BreakpointSiteTableSuite) TestRemoveByID(t *testing.T) {
	table := NewBreakpointSiteTable(newFakeMemory())

	site, _ := table.CreateBreakpointSite(0x3000)
	expect.Nil(t, site.Enable())

	err := table.RemoveByID(site.ID())
	expect.Nil(t, err)

	expect.False(t, table.ContainsID(site.ID()))
	expect.False(t, table.ContainsAddress(0x3000))
}

func (BreakpointSiteTableSuite) TestRemoveUnknownIDFails(t *testing.T) {
	table := NewBreakpointSiteTable(newFakeMemory())

	err := table.RemoveByID(BreakpointSiteID(42))
	expect.NotNil(t, err)
}

func (BreakpointSiteTableSuite) TestEnableSplicesTrapByte(t *testing.T) {
	memory := newFakeMemory()
	memory.data[0x4000] = 0x90 // nop

	table := NewBreakpointSiteTable(memory)
	site, _ := table.CreateBreakpointSite(0x4000)

	expect.Nil(t, site.Enable())
	expect.Equal(t, int3Instruction, memory.data[0x4000])

	expect.Nil(t, site.Disable())
	expect.Equal(t, byte(0x90), memory.data[0x4000])
}

func (BreakpointSiteTableSuite) TestReplaceStopPointBytesHidesTrap(t *testing.T) {
	memory := newFakeMemory()
	memory.data[0x5000] = 0x48
	memory.data[0x5001] = 0x89

	table := NewBreakpointSiteTable(memory)
	site, _ := table.CreateBreakpointSite(0x5001)
	expect.Nil(t, site.Enable())

	buffer := []byte{0xcc, 0xcc}
	table.ReplaceStopPointBytes(0x5000, buffer)
	expect.Equal(t, []byte{0xcc, 0x89}, buffer)
}

func (BreakpointSiteTableSuite) TestListIsSortedByAddress(t *testing.T) {
	table := NewBreakpointSiteTable(newFakeMemory())

	_, _ = table.CreateBreakpointSite(0x9000)
	_, _ = table.CreateBreakpointSite(0x1000)
	_, _ = table.CreateBreakpointSite(0x5000)

	list := table.List()
	expect.Equal(t, 3, len(list))
	expect.Equal(t, VirtualAddress(0x1000), list[0].Address())
	expect.Equal(t, VirtualAddress(0x5000), list[1].Address())
	expect.Equal(t, VirtualAddress(0x9000), list[2].Address())
}
