package main

import (
	"fmt"

	sdb "github.com/fanyingfx/sdb"
)

// continueProcess resumes the inferior and blocks until its next stop,
// matching the teacher's Continue front-end entry point (bad.Continue in
// _examples/pattyshack-bad/bin/bad/main.go, which this repo's generation
// never actually defines — replaced here with a direct call into
// Process).
func continueProcess(proc *sdb.Process, args []string) error {
	if err := proc.Resume(); err != nil {
		return err
	}

	reason, err := proc.WaitOnSignal()
	if err != nil {
		return err
	}

	fmt.Println(reason)
	return nil
}

func stepInstruction(proc *sdb.Process, args []string) error {
	reason, err := proc.StepInstruction()
	if err != nil {
		return err
	}

	fmt.Println(reason)
	return nil
}
