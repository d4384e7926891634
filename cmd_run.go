package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"fallen/vm"

	"github.com/google/subcommands"
)

// runCmd implements the `run` verb: compile a source file and execute it
// to completion.
type runCmd struct {
	debug bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "Execute Fallen code from a source file" }
func (*runCmd) Usage() string {
	return `run <file.fn>:
  Compile and execute a Fallen source file.
`
}

func (r *runCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.debug, "debug", false, "start with trace mode on")
}

func (r *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "file not provided")
		return subcommands.ExitUsageError
	}
	filename := args[0]

	unit, abs, err := compileFile(filename)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	machine := vm.New(filepath.Dir(abs))
	machine.SetStdlibDir(stdlibDir())
	if r.debug || debugEnabled() {
		machine.SetTrace(true)
	}

	if err := machine.Run(unit, abs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if r.debug || debugEnabled() {
			fmt.Fprintln(os.Stderr, "--- Go stack trace ---")
			fmt.Fprintln(os.Stderr, string(debug.Stack()))
		}
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
