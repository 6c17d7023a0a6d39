// Command sdb is a thin REPL front end over the core debugger package: it
// contains no debugging logic of its own, only argument parsing and
// dispatch into sdb.Process. Modeled on
// _examples/pattyshack-bad/bin/bad/main.go's command loop.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/chzyer/readline"

	sdb "github.com/fanyingfx/sdb"
)

type command struct {
	name string
	run  func(*sdb.Process, []string) error
}

var commands = []command{
	{name: "continue", run: continueProcess},
	{name: "step", run: stepInstruction},
	{name: "register", run: registerDispatch},
	{name: "breakpoint", run: breakpointDispatch},
}

// registerDispatch routes "register read ..."/"register write ..." the
// way the teacher's bin/bad wires readRegister/writeRegister as distinct
// top-level commands; here they share the "register" prefix instead,
// since spec.md §6 leaves the CLI's exact surface unspecified.
func registerDispatch(proc *sdb.Process, args []string) error {
	if len(args) == 0 {
		fmt.Println("Expected a subcommand: read | write")
		return nil
	}

	switch args[0] {
	case "read":
		return readRegister(proc, args[1:])
	case "write":
		return writeRegister(proc, args[1:])
	default:
		fmt.Println("Unknown register subcommand:", args[0])
		return nil
	}
}

func breakpointDispatch(proc *sdb.Process, args []string) error {
	if len(args) == 0 {
		fmt.Println("Expected a subcommand: list | set | remove | enable | disable")
		return nil
	}

	switch args[0] {
	case "list":
		return listBreakpoints(proc, args[1:])
	case "set":
		return setBreakpoint(proc, args[1:])
	case "remove":
		return removeBreakpoint(proc, args[1:])
	case "enable":
		return enableBreakpoint(proc, args[1:])
	case "disable":
		return disableBreakpoint(proc, args[1:])
	default:
		fmt.Println("Unknown breakpoint subcommand:", args[0])
		return nil
	}
}

func main() {
	pid := 0
	flag.IntVar(&pid, "p", 0, "attach to existing process pid")
	flag.Parse()
	args := flag.Args()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load ~/.sdbrc.yaml: %v", err)
	}

	var proc *sdb.Process
	if pid != 0 {
		if len(args) != 0 {
			log.Fatal("unexpected arguments after -p")
		}
		proc, err = sdb.Attach(pid)
	} else if len(args) == 0 {
		log.Fatal("no arguments given: pass a program to launch, or -p <pid> to attach")
	} else {
		proc, err = sdb.Launch(args[0], args[1:], true, -1)
	}

	if err != nil {
		log.Fatal(err)
	}

	defer func() {
		if err := proc.Close(); err != nil {
			log.Println("error while detaching:", err)
		}
	}()

	if cfg.ShowBanner {
		fmt.Println("attached to process", proc.Pid())
	}

	rl, err := readline.New("sdb > ")
	if err != nil {
		log.Fatal(err)
	}
	defer rl.Close()

	lastLine := ""
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				break
			}
			log.Fatal(err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			line = lastLine
		}
		lastLine = line

		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		name := cfg.resolveAlias(fields[0])

		found := false
		for _, cmd := range commands {
			if strings.HasPrefix(cmd.name, name) {
				found = true
				if err := cmd.run(proc, fields[1:]); err != nil {
					log.Println(err)
				}
				break
			}
		}

		if !found {
			fmt.Println("invalid command:", fields[0])
		}
	}
}
