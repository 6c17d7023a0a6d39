package main

import (
	"errors"
	"fmt"

	sdb "github.com/fanyingfx/sdb"
	"github.com/fanyingfx/sdb/sdberr"
)

// listBreakpoints matches
// _examples/pattyshack-bad/bin/bad/break_point_cmds.go:listBreakPointsCmd.
func listBreakpoints(proc *sdb.Process, args []string) error {
	sites := proc.Breakpoints().List()
	if len(sites) == 0 {
		fmt.Println("No break points set")
		return nil
	}

	fmt.Println("Current break points")
	for _, site := range sites {
		fmt.Println("  id =", site.ID(), " address =", site.Address(), " enabled =", site.IsEnabled())
	}

	return nil
}

func setBreakpoint(proc *sdb.Process, args []string) error {
	if len(args) < 1 {
		fmt.Println("failed to set break point. address not specified")
		return nil
	}

	addr, err := sdb.ParseVirtualAddress(args[0])
	if err != nil {
		fmt.Println("failed to set break point:", err)
		return nil
	}

	site, err := proc.CreateBreakpointSite(addr)
	if err != nil {
		if errors.Is(err, sdberr.Sentinel(sdberr.DuplicateBreakpoint)) {
			fmt.Println(err)
			return nil
		}
		return err
	}

	return site.Enable()
}

func removeBreakpoint(proc *sdb.Process, args []string) error {
	if len(args) < 1 {
		fmt.Println("failed to remove break point. address not specified")
		return nil
	}

	addr, err := sdb.ParseVirtualAddress(args[0])
	if err != nil {
		fmt.Println("failed to remove break point:", err)
		return nil
	}

	err = proc.Breakpoints().RemoveByAddress(addr)
	if err != nil {
		if errors.Is(err, sdberr.Sentinel(sdberr.NoSuchBreakpoint)) {
			fmt.Println(err)
			return nil
		}
		return err
	}

	return nil
}

func enableBreakpoint(proc *sdb.Process, args []string) error {
	if len(args) < 1 {
		fmt.Println("failed to enable break point. address not specified")
		return nil
	}

	addr, err := sdb.ParseVirtualAddress(args[0])
	if err != nil {
		fmt.Println("failed to enable break point:", err)
		return nil
	}

	site, ok := proc.Breakpoints().GetByAddress(addr)
	if !ok {
		fmt.Println("no break point found at", addr)
		return nil
	}

	return site.Enable()
}

func disableBreakpoint(proc *sdb.Process, args []string) error {
	if len(args) < 1 {
		fmt.Println("failed to disable break point. address not specified")
		return nil
	}

	addr, err := sdb.ParseVirtualAddress(args[0])
	if err != nil {
		fmt.Println("failed to disable break point:", err)
		return nil
	}

	site, ok := proc.Breakpoints().GetByAddress(addr)
	if !ok {
		fmt.Println("no break point found at", addr)
		return nil
	}

	return site.Disable()
}
