package vm

import (
	"fmt"
	"strings"
)

// traceEntry is one accumulated stack-trace line (§4.E, §6): the function
// that was executing, the source file it belongs to, and the line its
// instruction pointer was on when the error crossed that frame.
type traceEntry struct {
	FuncName string
	File     string
	Line     int32
}

// RuntimeError is raised by an instruction whose preconditions fail (§4.E,
// §7): type mismatches, undefined variables, out-of-range indices, bad
// conversions, division by zero, file I/O failure, arity mismatch. It
// accumulates a stack trace as it unwinds through frames.
type RuntimeError struct {
	Message string
	IP      int
	Trace   []traceEntry
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Runtime error: %s\n", e.Message)
	fmt.Fprintf(&b, "  ip=%04x\n", e.IP)
	for i := len(e.Trace) - 1; i >= 0; i-- {
		t := e.Trace[i]
		fmt.Fprintf(&b, "  at func %s (%s:%d)\n", t.FuncName, t.File, t.Line)
	}
	return strings.TrimRight(b.String(), "\n")
}

func newRuntimeError(ip int, format string, args ...any) *RuntimeError {
	return &RuntimeError{Message: fmt.Sprintf(format, args...), IP: ip}
}

// ImportError wraps a RuntimeError (or CompileError/SyntaxError string)
// raised while loading an imported module, preserving the inner error's
// text but prefixing it per §6's "Import error in "<path>":" format.
type ImportError struct {
	Path  string
	Inner error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("Import error in %q:\n%s", e.Path, indent(e.Inner.Error()))
}

func (e *ImportError) Unwrap() error {
	return e.Inner
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
