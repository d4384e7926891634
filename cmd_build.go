package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"fallen/compiler"

	"github.com/google/subcommands"
)

// buildCmd implements the `build` verb: compile a source file and print
// its constant pool followed by its disassembled bytecode (SPEC_FULL.md
// Part D.2), optionally writing it to a .dis file alongside the source.
type buildCmd struct {
	out string
}

func (*buildCmd) Name() string     { return "build" }
func (*buildCmd) Synopsis() string { return "Compile a Fallen file and print its disassembly" }
func (*buildCmd) Usage() string {
	return `build <file.fn>:
  Compile a Fallen source file and print its constant pool and disassembled bytecode.
`
}

func (b *buildCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&b.out, "out", "", "write the disassembly to this file instead of stdout")
}

func (b *buildCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "file not provided")
		return subcommands.ExitUsageError
	}

	unit, _, err := compileFile(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	var listing strings.Builder
	for i, c := range unit.ConstantsPool {
		fmt.Fprintf(&listing, "const %d: %s\n", i, c.Repr())
	}
	listing.WriteString(compiler.Disassemble(unit))
	out := listing.String()

	if b.out != "" {
		if err := os.WriteFile(b.out, []byte(out), 0o644); err != nil {
			fmt.Fprintln(os.Stderr, "failed to write disassembly:", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	fmt.Print(out)
	if !strings.HasSuffix(out, "\n") {
		fmt.Println()
	}
	return subcommands.ExitSuccess
}
