package compiler

import "fmt"

// CompileError is raised when lowering the AST to bytecode fails for a
// reason the parser cannot see: `stop`/`continue` outside a loop, `return`
// outside a function, a duplicate function name, a nested function
// definition (§4.C, §7). Exported names are not checked: an `export` of a
// name that is never defined compiles, and that name is left out of the
// module's public set. Always fatal; never recovered from inside user code.
type CompileError struct {
	Line    int32
	Message string
}

func CreateCompileError(line int32, message string) CompileError {
	return CompileError{Line: line, Message: message}
}

func (e CompileError) Error() string {
	return fmt.Sprintf("Compile error, line %d: %s", e.Line, e.Message)
}
