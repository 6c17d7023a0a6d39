package main

import (
	"fmt"
	"strings"

	sdb "github.com/fanyingfx/sdb"

	"github.com/fanyingfx/sdb/cmd/sdb/cmdutil"
)

// formatRegisterValue renders a RegisterValue the way a user would type it
// back in, since sdb.RegisterValue carries no Stringer of its own (the
// core never formats for display, only for wire-level read/write).
func formatRegisterValue(info sdb.RegisterInfo, value sdb.RegisterValue) string {
	if info.SizeInBytes == 16 {
		u := value.ToUint128()
		return fmt.Sprintf("0x%016x:0x%016x", u.High, u.Low)
	}

	switch info.SizeInBytes {
	case 1:
		return fmt.Sprintf("0x%02x", value.ToUint32())
	case 2:
		return fmt.Sprintf("0x%04x", value.ToUint32())
	case 4:
		return fmt.Sprintf("0x%08x", value.ToUint32())
	default:
		return fmt.Sprintf("0x%016x", value.ToUint64())
	}
}

// readRegister prints a single named register, or every general-purpose
// register when no argument is given, matching
// _examples/pattyshack-bad/bin/bad/register_cmds.go:readRegister.
func readRegister(proc *sdb.Process, args []string) error {
	if len(args) > 0 && args[0] != "all" {
		info, ok := proc.RegisterByName(args[0])
		if !ok {
			fmt.Println("Invalid register:", args[0])
			return nil
		}

		rf, err := proc.GetRegisterFile()
		if err != nil {
			return err
		}

		fmt.Printf("%s:\t%s\n", info.Name, formatRegisterValue(info, rf.Read(info)))
		return nil
	}

	rf, err := proc.GetRegisterFile()
	if err != nil {
		return err
	}

	showAll := len(args) == 1 && args[0] == "all"
	for _, info := range proc.Registers() {
		if info.Type == sdb.SubGPRRegister {
			continue
		}

		if !showAll && info.Type != sdb.GPRRegister {
			continue
		}

		name := info.Name
		if info.Type == sdb.FPRRegister && strings.HasPrefix(name, "mm") {
			continue
		}

		format := "%s:\t\t%s\n"
		if len(name) >= 7 {
			format = "%s:\t%s\n"
		}
		fmt.Printf(format, name, formatRegisterValue(info, rf.Read(info)))
	}

	return nil
}

// writeRegister parses args[1] through cmdutil.ParseRegisterValue and
// writes it into args[0], matching
// _examples/pattyshack-bad/bin/bad/register_cmds.go:writeRegister, minus
// the teacher's reg.ParseValue method (no such method exists on this
// generation's RegisterInfo; parsing lives at the front-end boundary).
func writeRegister(proc *sdb.Process, args []string) error {
	if len(args) != 2 {
		fmt.Println("Expected two arguments: <register> <value>")
		return nil
	}

	info, ok := proc.RegisterByName(args[0])
	if !ok {
		fmt.Println("Invalid register:", args[0])
		return nil
	}

	value, err := cmdutil.ParseRegisterValue(info, args[1])
	if err != nil {
		fmt.Println("Invalid value:", err)
		return nil
	}

	rf, err := proc.GetRegisterFile()
	if err != nil {
		return err
	}

	rf, err = rf.WithValue(info, value)
	if err != nil {
		fmt.Println("Invalid value:", err)
		return nil
	}

	return proc.SetRegisterFile(rf)
}
