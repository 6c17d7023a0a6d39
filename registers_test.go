package sdb

import (
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

type RegistersSuite struct{}

func TestRegisters(t *testing.T) {
	suite.RunTests(t, &RegistersSuite{})
}

func (RegistersSuite) TestRax(t *testing.T) {
	set := NewRegisterSet()
	expect.Equal(t, 0, set["rax"].DwarfID)

	rf := RegisterFile{}
	rf.bank.gpr.Rax = 0x0102030405060708

	val := rf.Read(set["rax"])
	u64, ok := val.(Uint64)
	expect.True(t, ok)
	expect.Equal(t, uint64(0x0102030405060708), u64.Value)

	val = rf.Read(set["eax"])
	u32, ok := val.(Uint32)
	expect.True(t, ok)
	expect.Equal(t, uint32(0x05060708), u32.Value)

	val = rf.Read(set["ax"])
	u16, ok := val.(Uint16)
	expect.True(t, ok)
	expect.Equal(t, uint16(0x0708), u16.Value)

	val = rf.Read(set["al"])
	u8, ok := val.(Uint8)
	expect.True(t, ok)
	expect.Equal(t, uint8(0x08), u8.Value)

	val = rf.Read(set["ah"])
	u8, ok = val.(Uint8)
	expect.True(t, ok)
	expect.Equal(t, uint8(0x07), u8.Value)

	next, err := rf.WithValue(set["rax"], Uint64Value(0x1020304050607080))
	expect.Nil(t, err)
	expect.Equal(t, uint64(0x0102030405060708), rf.bank.gpr.Rax)
	expect.Equal(t, uint64(0x1020304050607080), next.bank.gpr.Rax)

	next, err = rf.WithValue(set["eax"], Uint32Value(0x50607080))
	expect.Nil(t, err)
	expect.Equal(t, uint64(0x0102030405060708), rf.bank.gpr.Rax)
	expect.Equal(t, uint64(0x0102030450607080), next.bank.gpr.Rax)

	next, err = rf.WithValue(set["ax"], Uint16Value(0x7080))
	expect.Nil(t, err)
	expect.Equal(t, uint64(0x0102030405060708), rf.bank.gpr.Rax)
	expect.Equal(t, uint64(0x0102030405067080), next.bank.gpr.Rax)

	next, err = rf.WithValue(set["al"], Uint8Value(0x80))
	expect.Nil(t, err)
	expect.Equal(t, uint64(0x0102030405060708), rf.bank.gpr.Rax)
	expect.Equal(t, uint64(0x0102030405060780), next.bank.gpr.Rax)

	next, err = rf.WithValue(set["ah"], Uint8Value(0x70))
	expect.Nil(t, err)
	expect.Equal(t, uint64(0x0102030405060708), rf.bank.gpr.Rax)
	expect.Equal(t, uint64(0x0102030405067008), next.bank.gpr.Rax)
}

func (RegistersSuite) TestR13(t *testing.T) {
	set := NewRegisterSet()

	rf := RegisterFile{}
	rf.bank.gpr.R13 = 0xcafebabedeadbeef

	val := rf.Read(set["r13"])
	u64, ok := val.(Uint64)
	expect.True(t, ok)
	expect.Equal(t, uint64(0xcafebabedeadbeef), u64.Value)

	val = rf.Read(set["r13d"])
	u32, ok := val.(Uint32)
	expect.True(t, ok)
	expect.Equal(t, uint32(0xdeadbeef), u32.Value)

	val = rf.Read(set["r13w"])
	u16, ok := val.(Uint16)
	expect.True(t, ok)
	expect.Equal(t, uint16(0xbeef), u16.Value)

	val = rf.Read(set["r13b"])
	u8, ok := val.(Uint8)
	expect.True(t, ok)
	expect.Equal(t, uint8(0xef), u8.Value)
}

func (RegistersSuite) TestXmm0(t *testing.T) {
	set := NewRegisterSet()

	rf := RegisterFile{}
	next, err := rf.WithValue(set["xmm0"], Uint128Value(0x0102030405060708, 0x1112131415161718))
	expect.Nil(t, err)

	val := next.Read(set["xmm0"])
	u128, ok := val.(Uint128)
	expect.True(t, ok)
	expect.Equal(t, uint64(0x0102030405060708), u128.Low)
	expect.Equal(t, uint64(0x1112131415161718), u128.High)
}

func (RegistersSuite) TestMxcsrRejectsWrongSize(t *testing.T) {
	set := NewRegisterSet()

	rf := RegisterFile{}
	_, err := rf.WithValue(set["mxcsr"], Uint64Value(0))
	expect.NotNil(t, err)
}

func (RegistersSuite) TestDr4IsNotWritable(t *testing.T) {
	set := NewRegisterSet()

	rf := RegisterFile{}
	_, err := rf.WithValue(set["dr4"], Uint64Value(1))
	expect.NotNil(t, err)
}

func (RegistersSuite) TestDr0RoundTrips(t *testing.T) {
	set := NewRegisterSet()

	rf := RegisterFile{}
	next, err := rf.WithValue(set["dr0"], Uint64Value(0x400000))
	expect.Nil(t, err)

	val := next.Read(set["dr0"])
	u64, ok := val.(Uint64)
	expect.True(t, ok)
	expect.Equal(t, uint64(0x400000), u64.Value)
}
