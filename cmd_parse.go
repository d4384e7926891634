package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"fallen/parser"

	"github.com/google/subcommands"
)

// parseCmd implements the `parse` verb: print a source file's AST as JSON,
// mirroring the teacher's debug-dump convention.
type parseCmd struct {
	out string
}

func (*parseCmd) Name() string     { return "parse" }
func (*parseCmd) Synopsis() string { return "Print a Fallen file's AST as JSON" }
func (*parseCmd) Usage() string {
	return `parse <file.fn>:
  Parse a Fallen source file and print its AST as JSON.
`
}

func (p *parseCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.out, "out", "", "write the AST JSON to this file instead of stdout")
}

func (p *parseCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "file not provided")
		return subcommands.ExitUsageError
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to read file:", err)
		return subcommands.ExitFailure
	}
	statements, err := parseSource(string(data))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if p.out != "" {
		if err := parser.WriteASTJSONToFile(statements, p.out); err != nil {
			fmt.Fprintln(os.Stderr, "failed to write AST:", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	if _, err := parser.PrintASTJSON(statements); err != nil {
		fmt.Fprintln(os.Stderr, "failed to render AST:", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
