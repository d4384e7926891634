package vm

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fallen/compiler"
	"fallen/lexer"
	"fallen/parser"
)

func runSource(t *testing.T, dir, src string) (string, error) {
	t.Helper()
	toks, err := lexer.New(src).Scan()
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}
	stmts, err := parser.Make(toks).Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	unit, err := compiler.Compile(stmts)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	var out bytes.Buffer
	machine := New(dir)
	machine.SetStdout(&out)
	runErr := machine.Run(unit, filepath.Join(dir, "<test>.fallen"))
	return out.String(), runErr
}

// TestConcreteScenarios exercises the worked examples (§8) verbatim.
func TestConcreteScenarios(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			"arithmetic precedence",
			`write(2 + 3 * 4)`,
			"14\n",
		},
		{
			"while loop",
			`i =i 0
while i < 3 {
	write(i)
	i =i i + 1
}`,
			"0\n1\n2\n",
		},
		{
			"list index assignment",
			`nums =l [10, 20, 30]
set nums(1) to (99)
write(nums)`,
			"[10, 99, 30]\n",
		},
		{
			"recursive factorial",
			`func f(n =i) {
	if n <= 1 {
		return 1
	}
	return n * f(n - 1)
}
write(f(5))`,
			"120\n",
		},
		{
			"match statement",
			`match 2 {
	1 { write("a") }
	2 { write("b") }
	else { write("c") }
}`,
			"b\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runSource(t, dir, tt.src)
			if err != nil {
				t.Fatalf("run error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestImportCycleRunsEachSideOnce(t *testing.T) {
	dir := t.TempDir()
	xPath := filepath.Join(dir, "X.fallen")
	yPath := filepath.Join(dir, "Y.fallen")

	if err := os.WriteFile(xPath, []byte("import \"Y.fallen\"\nwrite(\"x\")\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yPath, []byte("import \"X.fallen\"\nwrite(\"y\")\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(xPath)
	if err != nil {
		t.Fatal(err)
	}
	toks, err := lexer.New(string(data)).Scan()
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}
	stmts, err := parser.Make(toks).Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	unit, err := compiler.Compile(stmts)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	var out bytes.Buffer
	machine := New(dir)
	machine.SetStdout(&out)
	if err := machine.Run(unit, xPath); err != nil {
		t.Fatalf("run error: %v", err)
	}

	if got, want := out.String(), "y\nx\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestListAddInsertRemove(t *testing.T) {
	dir := t.TempDir()
	got, err := runSource(t, dir, `
nums =l [1, 2]
add nums(3)
insert nums(0, 0)
remove nums(2)
write(nums)
`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if want := "[0, 1, 3]\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestDictOperations(t *testing.T) {
	dir := t.TempDir()
	got, err := runSource(t, dir, `
d =d {"a": 1}
set d("b") to (2)
write(d)
remove d("a")
write(d)
`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	want := "{\"a\": 1, \"b\": 2}\n{\"b\": 2}\n"
	if got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestStringIndexingReturnsOneCharacterStr(t *testing.T) {
	dir := t.TempDir()
	got, err := runSource(t, dir, `s =s "hello"
write(call s(1))`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if want := "e\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestShortCircuitAndOr(t *testing.T) {
	dir := t.TempDir()
	got, err := runSource(t, dir, `
write(false and crash())
write(true or crash())
`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if want := "false\ntrue\n"; got != want {
		t.Fatalf("output = %q, want %q; short-circuit should never reach the undefined crash() call", got, want)
	}
}

func TestBreakAndContinue(t *testing.T) {
	dir := t.TempDir()
	got, err := runSource(t, dir, `
i =i 0
while i < 5 {
	i =i i + 1
	if i == 2 {
		continue
	}
	if i == 4 {
		stop
	}
	write(i)
}
`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if want := "1\n3\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

// TestStopInNestedForRetiresOnlyInnerCursor guards against a `stop` inside a
// `for` loop leaving its FOR_START cursor on frame.forStack forever: if it
// did, the enclosing for loop's next FOR_NEXT would read the stale inner
// cursor instead of its own, silently mis-iterating its loop variable.
func TestStopInNestedForRetiresOnlyInnerCursor(t *testing.T) {
	dir := t.TempDir()
	got, err := runSource(t, dir, `
for x in [1, 2] {
	for y in [10, 20, 30] {
		if y == 20 {
			stop
		}
		write(y)
	}
	write(x)
}
`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if want := "10\n1\n10\n2\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestTypeMarkerMismatchIsRuntimeError(t *testing.T) {
	dir := t.TempDir()
	_, err := runSource(t, dir, `x =i "not an int"`)
	if err == nil {
		t.Fatal("expected a RuntimeError for a marker/value kind mismatch")
	}
	re, ok := err.(*RuntimeError)
	if !ok {
		t.Fatalf("got %T, want *RuntimeError", err)
	}
	if !strings.HasPrefix(re.Error(), "Runtime error: type error") {
		t.Fatalf("error text = %q", re.Error())
	}
	if !strings.Contains(re.Error(), "ip=") {
		t.Fatalf("error text missing ip= field: %q", re.Error())
	}
}

func TestRuntimeErrorTraceIncludesCallStack(t *testing.T) {
	dir := t.TempDir()
	_, err := runSource(t, dir, `
func boom() {
	return 1 / 0
}
write(boom())
`)
	if err == nil {
		t.Fatal("expected a RuntimeError for division by zero")
	}
	re, ok := err.(*RuntimeError)
	if !ok {
		t.Fatalf("got %T, want *RuntimeError", err)
	}
	if !strings.Contains(re.Error(), "at func boom") {
		t.Fatalf("trace missing boom frame: %q", re.Error())
	}
	if !strings.Contains(re.Error(), "at func <main>") {
		t.Fatalf("trace missing <main> frame: %q", re.Error())
	}
}

func TestTraceOnOffEmitsToTraceSink(t *testing.T) {
	dir := t.TempDir()
	toks, err := lexer.New(`trace on
write(1)
trace off
write(2)`).Scan()
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}
	stmts, err := parser.Make(toks).Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	unit, err := compiler.Compile(stmts)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	var out, trace bytes.Buffer
	machine := New(dir)
	machine.SetStdout(&out)
	machine.SetTraceSink(&trace)
	if err := machine.Run(unit, filepath.Join(dir, "<test>.fallen")); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if out.String() != "1\n2\n" {
		t.Fatalf("stdout = %q", out.String())
	}
	if !strings.Contains(trace.String(), "TRACE ip=") {
		t.Fatalf("trace sink got no TRACE lines: %q", trace.String())
	}
	if strings.Count(trace.String(), "TRACE ip=") == 0 {
		t.Fatalf("expected at least one traced instruction while trace mode was on")
	}
}
