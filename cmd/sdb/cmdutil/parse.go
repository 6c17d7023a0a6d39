// Package cmdutil holds the numeric-parsing boundary the front end owns:
// turning a command-line token into a register value the core can accept.
// The core itself never parses user text, matching the external
// numeric-parser collaborator spec.md §6 describes.
package cmdutil

import (
	"fmt"
	"strconv"
	"strings"

	sdb "github.com/fanyingfx/sdb"
)

// ParseInt parses a base-prefixed integer literal (0x.., 0.., or decimal),
// the way flag and strconv.ParseInt(s, 0, ...) both do.
func ParseInt(text string) (int64, error) {
	value, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", text, err)
	}
	return value, nil
}

// ParseFloat parses a decimal floating point literal.
func ParseFloat(text string) (float64, error) {
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q: %w", text, err)
	}
	return value, nil
}

// ParseRegisterValue turns a command argument into the RegisterValue info
// expects, sized and typed from info rather than from the text itself.
// "f:"/"d:" prefixes force a float32/float64 reading (mirroring the
// debugger/registers generation's Spec.ParseValue convention); anything
// else is parsed as an unsigned integer sized to info.SizeInBytes, or as a
// 128-bit "high:low" pair for 16-byte registers.
func ParseRegisterValue(info sdb.RegisterInfo, text string) (sdb.RegisterValue, error) {
	switch {
	case strings.HasPrefix(text, "f:"):
		f, err := ParseFloat(text[len("f:"):])
		if err != nil {
			return nil, err
		}
		return sdb.Float32Value(float32(f)), nil

	case strings.HasPrefix(text, "d:"):
		f, err := ParseFloat(text[len("d:"):])
		if err != nil {
			return nil, err
		}
		return sdb.Float64Value(f), nil
	}

	if info.SizeInBytes == 16 {
		chunks := strings.SplitN(text, ":", 2)
		if len(chunks) == 2 {
			high, err := strconv.ParseUint(chunks[0], 0, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid uint128 high word %q: %w", chunks[0], err)
			}
			low, err := strconv.ParseUint(chunks[1], 0, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid uint128 low word %q: %w", chunks[1], err)
			}
			return sdb.Uint128Value(low, high), nil
		}

		low, err := strconv.ParseUint(text, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid uint128 %q: %w", text, err)
		}
		return sdb.Uint128Value(low, 0), nil
	}

	bitSize := int(info.SizeInBytes * 8)
	if bitSize > 64 {
		bitSize = 64
	}

	value, err := strconv.ParseUint(text, 0, bitSize)
	if err != nil {
		return nil, fmt.Errorf("invalid value %q for register %s: %w", text, info.Name, err)
	}

	switch info.SizeInBytes {
	case 1:
		return sdb.Uint8Value(uint8(value)), nil
	case 2:
		return sdb.Uint16Value(uint16(value)), nil
	case 4:
		return sdb.Uint32Value(uint32(value)), nil
	case 8:
		return sdb.Uint64Value(value), nil
	default:
		return nil, fmt.Errorf("register %s has unhandled size %d", info.Name, info.SizeInBytes)
	}
}
