package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"fallen/compiler"
	"fallen/lexer"
	"fallen/parser"
	"fallen/token"
	"fallen/vm"
	"fallen/vm/value"

	"github.com/chzyer/readline"
	"github.com/google/subcommands"
)

// replCmd implements the `repl` verb: an interactive session over one VM,
// so names bound and modules imported by one entry stay visible to the
// next (SPEC_FULL.md Part D.4). Input is read a line at a time and held in
// a buffer until braces balance, the way the teacher's compiled REPL
// decided when to stop waiting for more input.
type replCmd struct {
	debug bool
}

func (*replCmd) Name() string     { return "repl" }
func (*replCmd) Synopsis() string { return "Start an interactive Fallen session" }
func (*replCmd) Usage() string {
	return `repl:
  Start an interactive Fallen REPL.
`
}

func (r *replCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.debug, "debug", false, "start with trace mode on")
}

func (r *replCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		HistoryFile:     "",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer rl.Close()

	machine := vm.New(cwd)
	machine.SetStdlibDir(stdlibDir())
	if r.debug || debugEnabled() {
		machine.SetTrace(true)
	}

	fmt.Println("Fallen REPL. Type 'exit' to quit.")

	sessionEnv := map[string]value.Value{}
	var buffer strings.Builder
	for {
		if buffer.Len() == 0 {
			rl.SetPrompt(">>> ")
		} else {
			rl.SetPrompt("... ")
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			buffer.Reset()
			continue
		}
		if err == io.EOF {
			return subcommands.ExitSuccess
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}

		if strings.TrimSpace(line) == "exit" && buffer.Len() == 0 {
			return subcommands.ExitSuccess
		}

		if buffer.Len() > 0 {
			buffer.WriteString("\n")
		}
		buffer.WriteString(line)
		source := buffer.String()

		toks, err := lexer.New(source).Scan()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			buffer.Reset()
			continue
		}

		if !bracesBalanced(toks) {
			continue
		}

		statements, err := parser.Make(toks).Parse()
		if err != nil {
			if isEOFSyntaxError(err, toks) {
				continue
			}
			fmt.Fprintln(os.Stderr, err)
			buffer.Reset()
			continue
		}

		unit, err := compiler.Compile(statements)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			buffer.Reset()
			continue
		}

		if err := machine.RunSession(unit, "<repl>", sessionEnv); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		buffer.Reset()
	}
}

// bracesBalanced reports whether every '{' in toks has a matching '}'. The
// REPL keeps buffering lines until this holds, so a multi-line if/while/for
// block can be entered across several prompts.
func bracesBalanced(toks []token.Token) bool {
	depth := 0
	for _, t := range toks {
		switch t.TokenType {
		case token.LCUR:
			depth++
		case token.RCUR:
			depth--
		}
	}
	return depth <= 0
}

// isEOFSyntaxError reports whether err is a parser.SyntaxError on the same
// line as the final (EOF) token, which the REPL takes as a sign that the
// buffered input is incomplete and waits for another line. SyntaxError
// carries only a line, so every syntax error on the buffer's last line is
// treated this way, whether the input is incomplete or malformed.
func isEOFSyntaxError(err error, toks []token.Token) bool {
	syntaxErr, ok := err.(parser.SyntaxError)
	if !ok || len(toks) == 0 {
		return false
	}
	eof := toks[len(toks)-1]
	return syntaxErr.Line == eof.Line
}
