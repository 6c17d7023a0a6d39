package sdb

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/fanyingfx/sdb/ptrace"
	"github.com/fanyingfx/sdb/sdberr"
)

// RegisterType classifies which bank of RegisterBank a register lives in,
// per spec.md §3's RegisterType (gpr, sub_gpr, fpr, dr).
type RegisterType string

const (
	GPRRegister    = RegisterType("gpr")
	SubGPRRegister = RegisterType("sub_gpr")
	FPRRegister    = RegisterType("fpr")
	DRRegister     = RegisterType("dr")

	stSpace   = "StSpace"
	xmmSpace  = "XmmSpace"
	uDebugReg = "UDebugReg"
)

// RegisterInfo is the static descriptor spec.md §3 names: identity, dwarf
// id, size, storage offset (expressed here as the field within
// RegisterBank rather than a raw byte offset, since Go field access
// through reflection makes a byte offset unnecessary), type, and the
// high/index metadata needed to address sub-registers and vector slots.
type RegisterInfo struct {
	Name    string
	DwarfID int // -1 when the register has no DWARF number

	SizeInBytes uintptr

	Type RegisterType

	// Field names the RegisterBank struct field this register is backed
	// by; only meaningful for GPR/sub-GPR/FPR registers.
	Field string

	// IsHighByte marks the legacy 8-bit "high" sub-registers (ah/bh/ch/dh)
	// that alias bits [15:8] of their containing 16-bit register instead
	// of bits [7:0].
	IsHighByte bool

	// Index selects a slot within a banked register (st0..st7, mm0..mm7,
	// xmm0..xmm15, dr0..dr7).
	Index int
}

// CanAccept reports whether value is a legal value to write into this
// register, performing the checks spec.md §4.2 calls "the sole source of
// wrong-type errors."
func (info RegisterInfo) CanAccept(value RegisterValue) error {
	// dr4/dr5 alias dr6/dr7 on real hardware and are not separately
	// addressable; https://en.wikipedia.org/wiki/X86_debug_register.
	if info.Type == DRRegister && (info.Index == 4 || info.Index == 5) {
		return sdberr.New(sdberr.InvalidRegister, "%s is not writable", info.Name)
	}

	if info.Type == FPRRegister && info.SizeInBytes == 16 {
		if value.IsFloat() {
			return nil
		}
		if _, ok := value.(Uint128); ok {
			return nil
		}
		return sdberr.New(sdberr.InvalidFormat,
			"register %s expects a 128-bit value, found %#v", info.Name, value)
	}

	if info.SizeInBytes != value.Size() {
		return sdberr.New(sdberr.InvalidFormat,
			"register %s size (%d) does not match value size (%d)",
			info.Name, info.SizeInBytes, value.Size())
	}

	if value.IsFloat() {
		return sdberr.New(sdberr.InvalidFormat,
			"register %s cannot hold a floating point value", info.Name)
	}

	return nil
}

// RegisterBank mirrors the kernel's user area for x86-64: the general
// purpose register struct, the x87/SSE struct, and the 8-slot debug
// register array. RegisterInfo.Field/Index address into it.
type RegisterBank struct {
	gpr ptrace.UserRegs
	fpr ptrace.UserFPRegs
	dr  [8]uintptr
}

// RegisterFile provides typed access to a RegisterBank mirror. It is
// immutable value-oriented the way the teacher's RegisterState is:
// WithValue returns a new RegisterFile rather than mutating in place, and
// Process.SetRegisterFile is what commits one to the inferior.
type RegisterFile struct {
	bank RegisterBank
}

// Read returns the value at info, interpreting info.SizeInBytes bytes
// according to info.Type the way spec.md §4.2 describes.
func (rf RegisterFile) Read(info RegisterInfo) RegisterValue {
	var data reflect.Value

	switch info.Type {
	case GPRRegister, SubGPRRegister:
		data = reflect.ValueOf(rf.bank.gpr)
	case FPRRegister:
		if info.Field == stSpace {
			return Uint128Value(
				rf.bank.fpr.StSpace[2*info.Index],
				rf.bank.fpr.StSpace[2*info.Index+1])
		}
		if info.Field == xmmSpace {
			return Uint128Value(
				rf.bank.fpr.XmmSpace[2*info.Index],
				rf.bank.fpr.XmmSpace[2*info.Index+1])
		}
		data = reflect.ValueOf(rf.bank.fpr)
	case DRRegister:
		return Uint64Value(uint64(rf.bank.dr[info.Index]))
	default:
		panic(fmt.Sprintf("invalid register type: %#v", info))
	}

	raw := data.FieldByName(info.Field).Uint()
	switch info.SizeInBytes {
	case 1:
		if info.IsHighByte {
			raw >>= 8
		}
		return Uint8Value(uint8(raw))
	case 2:
		return Uint16Value(uint16(raw))
	case 4:
		return Uint32Value(uint32(raw))
	case 8:
		return Uint64Value(raw)
	default:
		panic(fmt.Sprintf("invalid register size: %#v", info))
	}
}

// ReadByIDAs reads the named register and narrows it to T, failing if the
// stored representation cannot be narrowed without loss.
func ReadByIDAs[T uint8 | uint16 | uint32 | uint64](
	rf RegisterFile,
	set RegisterSet,
	id string,
) (
	T,
	error,
) {
	info, ok := set[id]
	if !ok {
		return 0, sdberr.New(sdberr.InvalidRegister, "%s", id)
	}

	value := rf.Read(info).ToUint128()
	narrowed := T(value.Low)
	if value.High != 0 || uint64(narrowed) != value.Low {
		return 0, sdberr.New(sdberr.InvalidFormat,
			"register %s value does not fit the requested type", id)
	}
	return narrowed, nil
}

// WithValue returns a RegisterFile with info updated to value, flushing
// nothing itself — flushing the affected bank to the inferior is
// Process's job, since it alone knows which ptrace call applies.
func (rf RegisterFile) WithValue(info RegisterInfo, value RegisterValue) (RegisterFile, error) {
	if err := info.CanAccept(value); err != nil {
		return RegisterFile{}, err
	}

	next := rf

	var data reflect.Value
	switch info.Type {
	case GPRRegister, SubGPRRegister:
		data = reflect.Indirect(reflect.ValueOf(&next.bank.gpr))
	case FPRRegister:
		if info.Field == stSpace {
			u := value.ToUint128()
			next.bank.fpr.StSpace[2*info.Index] = u.Low
			next.bank.fpr.StSpace[2*info.Index+1] = u.High
			return next, nil
		}
		if info.Field == xmmSpace {
			u := value.ToUint128()
			next.bank.fpr.XmmSpace[2*info.Index] = u.Low
			next.bank.fpr.XmmSpace[2*info.Index+1] = u.High
			return next, nil
		}
		data = reflect.Indirect(reflect.ValueOf(&next.bank.fpr))
	case DRRegister:
		next.bank.dr[info.Index] = uintptr(value.ToUint64())
		return next, nil
	default:
		panic(fmt.Sprintf("invalid register type: %#v", info))
	}

	field := data.FieldByName(info.Field)
	raw := value.ToUint64()
	if info.Type == SubGPRRegister {
		// Sub-GPR writes never zero-extend the unaffected high bytes of
		// the containing 64-bit register; matching tracer-image
		// semantics rather than hardware zero-extension is a deliberate
		// choice (spec.md §4.2, §9). Only the bytes the view aliases
		// are replaced.
		shift := uint(0)
		if info.IsHighByte {
			shift = 8
		}
		mask := (uint64(1)<<(8*info.SizeInBytes) - 1) << shift
		raw = field.Uint()&^mask | (raw<<shift)&mask
	}

	field.SetUint(raw)
	return next, nil
}

// RegisterSet is the compile-time descriptor table: every RegisterInfo
// indexed by name. Lookup by name is O(n) on build (add panics on a
// duplicate) but O(1) at runtime via the map.
type RegisterSet map[string]RegisterInfo

func (set RegisterSet) add(info RegisterInfo) {
	if _, exists := set[info.Name]; exists {
		panic("duplicate register info: " + info.Name)
	}
	set[info.Name] = info
}

func (set RegisterSet) addGPR64(name string, dwarfID int, field string) {
	set.add(RegisterInfo{Name: name, DwarfID: dwarfID, SizeInBytes: 8, Type: GPRRegister, Field: field})
}

func (set RegisterSet) addSubGPR32(name, field string) {
	set.add(RegisterInfo{Name: name, DwarfID: -1, SizeInBytes: 4, Type: SubGPRRegister, Field: field})
}

func (set RegisterSet) addSubGPR16(name, field string) {
	set.add(RegisterInfo{Name: name, DwarfID: -1, SizeInBytes: 2, Type: SubGPRRegister, Field: field})
}

func (set RegisterSet) addSubGPR8(name, field string, isHigh bool) {
	set.add(RegisterInfo{Name: name, DwarfID: -1, SizeInBytes: 1, Type: SubGPRRegister, Field: field, IsHighByte: isHigh})
}

func (set RegisterSet) addFPR16(name string, dwarfID int, field string) {
	set.add(RegisterInfo{Name: name, DwarfID: dwarfID, SizeInBytes: 2, Type: FPRRegister, Field: field})
}

func (set RegisterSet) addFPR32(name string, dwarfID int, field string) {
	set.add(RegisterInfo{Name: name, DwarfID: dwarfID, SizeInBytes: 4, Type: FPRRegister, Field: field})
}

func (set RegisterSet) addFPR64(name, field string) {
	set.add(RegisterInfo{Name: name, DwarfID: -1, SizeInBytes: 8, Type: FPRRegister, Field: field})
}

func (set RegisterSet) addFPR128(prefix string, dwarfIDStart int, field string, idx int) {
	set.add(RegisterInfo{
		Name:        fmt.Sprintf("%s%d", prefix, idx),
		DwarfID:     dwarfIDStart + idx,
		SizeInBytes: 16,
		Type:        FPRRegister,
		Field:       field,
		Index:       idx,
	})
}

func (set RegisterSet) addDR64(idx int) {
	set.add(RegisterInfo{
		Name:        fmt.Sprintf("dr%d", idx),
		DwarfID:     -1,
		SizeInBytes: 8,
		Type:        DRRegister,
		Field:       uDebugReg,
		Index:       idx,
	})
}

// NewRegisterSet builds the full x86-64 register descriptor table: GPR
// 64/32/16/8-bit views, x87 control words and st0..st7, mm0..mm7 aliases,
// xmm0..xmm15, and dr0..dr7, matching spec.md §3's RegisterId enumeration.
func NewRegisterSet() RegisterSet {
	set := RegisterSet{}

	dwarfIDs := map[string]int{
		"rip": 16, "eflags": 49, "cs": 51, "fs": 54,
		"gs": 55, "ss": 52, "ds": 53, "es": 50,
	}

	names := strings.Split(
		"rax rdx rcx rbx rsi rdi rbp rsp "+
			"r8 r9 r10 r11 r12 r13 r14 r15 "+
			"rip eflags cs fs gs ss ds es",
		" ")

	for idx, name := range names {
		dwarfID, isSegmentOrFlags := dwarfIDs[name]
		if !isSegmentOrFlags {
			dwarfID = idx
		}

		field := strings.ToUpper(name[0:1]) + name[1:]
		set.addGPR64(name, dwarfID, field)

		if isSegmentOrFlags {
			continue
		}

		if strings.ContainsAny(name, "189") { // r8..r15
			set.addSubGPR32(name+"d", field)
			set.addSubGPR16(name+"w", field)
			set.addSubGPR8(name+"b", field, false)
		} else { // legacy rax/rbx/rcx/rdx/rsi/rdi/rbp/rsp
			set.addSubGPR32("e"+name[1:], field)
			set.addSubGPR16(name[1:], field)

			if name[2] == 'x' {
				prefix := name[1:2]
				set.addSubGPR8(prefix+"h", field, true)
				set.addSubGPR8(prefix+"l", field, false)
			} else {
				set.addSubGPR8(name[1:]+"l", field, false)
			}
		}
	}

	set.addFPR16("fcw", 65, "Cwd")
	set.addFPR16("fsw", 66, "Swd")
	set.addFPR16("ftw", -1, "Ftw")
	set.addFPR16("fop", -1, "Fop")
	set.addFPR64("frip", "Rip")
	set.addFPR64("frdp", "Rdp")
	set.addFPR32("mxcsr", 64, "Mxcsr")
	set.addFPR32("mxcrmask", -1, "MxcrMask")

	for i := 0; i < 8; i++ {
		set.addFPR128("st", 33, stSpace, i)
		set.addFPR128("mm", 41, stSpace, i)
	}

	for i := 0; i < 16; i++ {
		set.addFPR128("xmm", 17, xmmSpace, i)
	}

	for i := 0; i < 8; i++ {
		set.addDR64(i)
	}

	return set
}

func (set RegisterSet) ByName(name string) (RegisterInfo, bool) {
	info, ok := set[name]
	return info, ok
}

func (set RegisterSet) ByDwarfID(id int) (RegisterInfo, bool) {
	for _, info := range set {
		if info.DwarfID == id && info.Type != SubGPRRegister {
			return info, true
		}
	}
	return RegisterInfo{}, false
}
