package compiler

import (
	"strings"
	"testing"

	"fallen/ast"
	"fallen/lexer"
	"fallen/parser"
)

func compileSource(t *testing.T, src string) *Bytecode {
	t.Helper()
	toks, err := lexer.New(src).Scan()
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}
	stmts, err := parser.Make(toks).Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	unit, err := Compile(stmts)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return unit
}

func opNames(unit *Bytecode) []string {
	var names []string
	ip := 0
	for ip < len(unit.Instructions) {
		op := Opcode(unit.Instructions[ip])
		def, err := Get(op)
		if err != nil {
			break
		}
		names = append(names, def.Name)
		_, width := ReadOperands(def, unit.Instructions[ip+1:])
		ip += 1 + width
	}
	return names
}

func TestCompileArithmeticEndsInHalt(t *testing.T) {
	unit := compileSource(t, `write(2 + 3 * 4)`)
	names := opNames(unit)
	want := []string{"LOAD_CONST", "LOAD_CONST", "LOAD_CONST", "MUL", "ADD", "CALL", "POP", "HALT"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v, want %v", names, want)
	}
}

func TestCompileIfElseBalancesStack(t *testing.T) {
	unit := compileSource(t, `
if x == 1 {
	write(1)
} else {
	write(0)
}`)
	names := opNames(unit)
	for _, want := range []string{"JUMP_IF_FALSE", "POP", "JUMP"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing %s in %v", want, names)
		}
	}
}

func TestCompileWhileLoopPushPop(t *testing.T) {
	unit := compileSource(t, `i =i 0
while i < 3 {
	write(i)
	i =i i + 1
}`)
	names := opNames(unit)
	if names[0] != "LOAD_CONST" || names[1] != "STORE_NAME" {
		t.Fatalf("expected assignment first, got %v", names[:2])
	}
	hasLoopPush, hasLoopPop := false, false
	for _, n := range names {
		if n == "LOOP_PUSH" {
			hasLoopPush = true
		}
		if n == "LOOP_POP" {
			hasLoopPop = true
		}
	}
	if !hasLoopPush || !hasLoopPop {
		t.Fatalf("missing loop-exit bracket in %v", names)
	}
}

func TestCompileForLoopUsesForStartNext(t *testing.T) {
	unit := compileSource(t, `for x in [1, 2, 3] { write(x) }`)
	names := opNames(unit)
	seen := map[string]bool{}
	for _, n := range names {
		seen[n] = true
	}
	for _, want := range []string{"FOR_START", "LOOP_PUSH", "FOR_NEXT", "LOOP_POP"} {
		if !seen[want] {
			t.Errorf("missing %s in %v", want, names)
		}
	}
}

func TestCompileFunctionHoistsForwardReference(t *testing.T) {
	unit := compileSource(t, `
write(double(21))
func double(n =i) {
	return n * 2
}`)
	info, ok := unit.Functions["double"]
	if !ok {
		t.Fatal("function double was not hoisted into the function table")
	}
	if info.EntryPoint <= 0 {
		t.Fatalf("entry point = %d, want a positive offset after the main body's HALT", info.EntryPoint)
	}
	if len(info.ParamNames) != 1 || info.ParamNames[0] != "n" {
		t.Fatalf("param names = %v, want [n]", info.ParamNames)
	}
	if info.Markers[0] != MarkerInt {
		t.Fatalf("param marker = %v, want MarkerInt", info.Markers[0])
	}
}

func TestCompileMatchLowersToEqualityChain(t *testing.T) {
	unit := compileSource(t, `
match 2 {
	1 { write("a") }
	2 { write("b") }
	else { write("c") }
}`)
	names := opNames(unit)
	eqCount := 0
	for _, n := range names {
		if n == "EQ" {
			eqCount++
		}
	}
	if eqCount != 2 {
		t.Fatalf("got %d EQ comparisons, want 2 (one per case)", eqCount)
	}
}

func TestCompileStopOutsideLoopFails(t *testing.T) {
	_, err := Compile(parseOrFatal(t, `stop`))
	if err == nil {
		t.Fatal("expected a CompileError for 'stop' outside a loop")
	}
	if _, ok := err.(CompileError); !ok {
		t.Fatalf("got %T, want CompileError", err)
	}
}

func TestCompileReturnOutsideFunctionFails(t *testing.T) {
	_, err := Compile(parseOrFatal(t, `return 1`))
	if err == nil {
		t.Fatal("expected a CompileError for 'return' outside a function")
	}
}

func TestCompileDuplicateFunctionFails(t *testing.T) {
	src := `
func f(n =i) { return n }
func f(n =i) { return n }
`
	_, err := Compile(parseOrFatal(t, src))
	if err == nil {
		t.Fatal("expected a CompileError for a duplicate function name")
	}
}

func parseOrFatal(t *testing.T, src string) []ast.Stmt {
	t.Helper()
	toks, err := lexer.New(src).Scan()
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}
	stmts, err := parser.Make(toks).Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return stmts
}
