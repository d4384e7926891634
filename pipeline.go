package main

import (
	"fmt"
	"os"
	"path/filepath"

	"fallen/ast"
	"fallen/compiler"
	"fallen/lexer"
	"fallen/parser"

	"github.com/xyproto/env/v2"
)

// stdlibDir resolves FALLEN_STDLIB (SPEC_FULL.md Part D.3), the directory
// IMPORT falls back to when a path does not exist relative to the
// importing file.
func stdlibDir() string {
	return env.Str("FALLEN_STDLIB", "")
}

// debugEnabled resolves FALLEN_DEBUG: when set, the run/repl verbs start
// with trace mode already on, without needing a `trace on` statement.
func debugEnabled() bool {
	return env.Bool("FALLEN_DEBUG")
}

// parseSource runs the lexer and parser over source, reporting both error
// kinds the way the teacher's cmd_run.go did: lexing errors first, parse
// errors prefixed per source line.
func parseSource(source string) ([]ast.Stmt, error) {
	toks, err := lexer.New(source).Scan()
	if err != nil {
		return nil, fmt.Errorf("Lexing error: %w", err)
	}
	statements, err := parser.Make(toks).Parse()
	if err != nil {
		return nil, err
	}
	return statements, nil
}

// compileFile reads, parses and compiles path, returning the bytecode unit
// and the absolute file path the VM should run it under.
func compileFile(path string) (*compiler.Bytecode, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file: %w", err)
	}
	statements, err := parseSource(string(data))
	if err != nil {
		return nil, "", err
	}
	unit, err := compiler.Compile(statements)
	if err != nil {
		return nil, "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return unit, abs, nil
}
