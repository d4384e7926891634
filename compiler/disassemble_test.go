package compiler

import (
	"strings"
	"testing"

	"fallen/lexer"
	"fallen/parser"
)

func TestDisassembleAnnotatesConstantsAndNames(t *testing.T) {
	toks, err := lexer.New(`x =i 1
write(x)`).Scan()
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

	out := Disassemble(unit)
	for _, want := range []string{"LOAD_CONST, operand: 0 (1)", "STORE_NAME, operand: 0 (x), operand: 2 (=i)", "HALT"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}
