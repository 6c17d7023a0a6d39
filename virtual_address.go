package sdb

import (
	"fmt"
	"strconv"
)

// VirtualAddress is an address in the inferior's address space. It is
// opaque: arithmetic is explicit, never implicit through the underlying
// uint64.
type VirtualAddress uint64

func (addr VirtualAddress) Uint64() uint64 {
	return uint64(addr)
}

func (addr VirtualAddress) Add(offset int64) VirtualAddress {
	return VirtualAddress(int64(addr) + offset)
}

func (addr VirtualAddress) Sub(other VirtualAddress) int64 {
	return int64(addr) - int64(other)
}

func (addr VirtualAddress) Less(other VirtualAddress) bool {
	return addr < other
}

func (addr VirtualAddress) String() string {
	return fmt.Sprintf("0x%016x", uint64(addr))
}

func ParseVirtualAddress(text string) (VirtualAddress, error) {
	value, err := strconv.ParseUint(text, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse virtual address %q: %w", text, err)
	}

	return VirtualAddress(value), nil
}
