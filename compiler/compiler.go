// compiler.go lowers a Fallen AST into a Bytecode unit (§4.C). It follows
// the teacher's ASTCompiler shape (a visitor over the AST, panic/recover for
// fatal compile errors, emit/patchJump helpers) but the opcode set, the
// two-pass function hoisting, the loop-exit handling and the short-circuit
// lowering are new, built directly from SPEC_FULL.md rather than adapted
// from working teacher code (none of the teacher's opcode usages in
// ast_compiler.go referenced opcodes that were ever actually defined).
package compiler

import (
	"encoding/binary"
	"fmt"

	"fallen/ast"
	"fallen/token"
	"fallen/vm/value"
)

// Compiler walks a parsed program and emits Fallen bytecode. Unlike a
// slot-based compiler, Fallen's frame environment is a flat name->value map
// (§3: Frame's "local-variable environment... a mapping from name to
// value"), so there is no lexical scope stack to maintain here — blocks
// share their enclosing frame's namespace.
type Compiler struct {
	unit     *Bytecode
	nameIdx  map[string]int
	constIdx map[string]int

	inFunction bool
	loopDepth  int

	tempCounter int
	currentLine int32
}

func newCompiler() *Compiler {
	return &Compiler{
		unit:     NewBytecode(),
		nameIdx:  map[string]int{},
		constIdx: map[string]int{},
	}
}

// Compile lowers a parsed program to a Bytecode unit. Fatal compile errors
// (CompileError) are recovered here and returned as err, following the
// panic/recover shape the teacher uses to unwind a deep AST walk without
// threading an error return through every Visit method.
func Compile(statements []ast.Stmt) (unit *Bytecode, err error) {
	c := newCompiler()
	defer func() {
		if r := recover(); r != nil {
			if ce, ok := r.(CompileError); ok {
				err = ce
				return
			}
			panic(r)
		}
	}()
	c.compileProgram(statements)
	return c.unit, nil
}

func (c *Compiler) compileProgram(statements []ast.Stmt) {
	var funcDefs []ast.FuncDef
	var mainStmts []ast.Stmt
	for _, s := range statements {
		if fd, ok := s.(ast.FuncDef); ok {
			funcDefs = append(funcDefs, fd)
			continue
		}
		mainStmts = append(mainStmts, s)
	}

	// Pass 1: hoist every function signature so forward calls resolve
	// regardless of textual order (§4.C, §9).
	for _, fd := range funcDefs {
		if _, exists := c.unit.Functions[fd.Name]; exists {
			c.fail(fd.Line, fmt.Sprintf("function %q is already defined", fd.Name))
		}
		params := make([]string, len(fd.Params))
		markers := make([]Marker, len(fd.Params))
		for i, p := range fd.Params {
			params[i] = p.Name
			markers[i] = markerFromTokenType(p.Marker)
		}
		c.unit.Functions[fd.Name] = FunctionInfo{
			Name:       fd.Name,
			ParamNames: params,
			Markers:    markers,
			EntryPoint: -1,
		}
	}

	// Pass 2: emit the main body, then every function body after HALT.
	for _, s := range mainStmts {
		c.compileStmt(s)
	}
	c.emit(HALT)

	for _, fd := range funcDefs {
		info := c.unit.Functions[fd.Name]
		info.EntryPoint = len(c.unit.Instructions)
		c.unit.Functions[fd.Name] = info

		wasInFunction := c.inFunction
		c.inFunction = true
		for _, s := range fd.Body {
			c.compileStmt(s)
		}
		c.emit(LOAD_NULL)
		c.emit(RETURN)
		c.inFunction = wasInFunction
	}
}

func (c *Compiler) fail(line int32, message string) {
	panic(CreateCompileError(line, message))
}

func (c *Compiler) compileStmt(s ast.Stmt) {
	c.currentLine = s.Ln()
	s.Accept(c)
}

func (c *Compiler) compileExpr(e ast.Expression) {
	e.Accept(c)
}

// --- low-level emission helpers ---

func (c *Compiler) emit(op Opcode, operands ...int) int {
	pos := len(c.unit.Instructions)
	c.unit.Instructions = append(c.unit.Instructions, MakeInstruction(op, operands...)...)
	c.unit.Lines[pos] = c.currentLine
	return pos
}

// patchOperand overwrites the operandIndex-th operand of the instruction at
// instrPos (already emitted) with value.
func (c *Compiler) patchOperand(instrPos int, operandIndex int, value int) {
	op := Opcode(c.unit.Instructions[instrPos])
	def, err := Get(op)
	if err != nil {
		return
	}
	offset := instrPos + 1
	for i := 0; i < operandIndex; i++ {
		offset += def.OperandWidths[i]
	}
	switch def.OperandWidths[operandIndex] {
	case 2:
		binary.BigEndian.PutUint16(c.unit.Instructions[offset:], uint16(value))
	case 1:
		c.unit.Instructions[offset] = byte(value)
	}
}

// emitJump emits a jump-family instruction with a placeholder target,
// returning its position so patchJump can backfill it once the target is
// known (§4.C: "emit placeholders for forward jumps... backfill").
func (c *Compiler) emitJump(op Opcode) int {
	return c.emit(op, 0)
}

func (c *Compiler) patchJump(pos int) {
	c.patchOperand(pos, 0, len(c.unit.Instructions))
}

func (c *Compiler) patchJumpTo(pos int, target int) {
	c.patchOperand(pos, 0, target)
}

func (c *Compiler) here() int {
	return len(c.unit.Instructions)
}

func (c *Compiler) addConstant(v value.Value) int {
	key := constKey(v)
	if idx, ok := c.constIdx[key]; ok {
		return idx
	}
	idx := len(c.unit.ConstantsPool)
	c.unit.ConstantsPool = append(c.unit.ConstantsPool, v)
	c.constIdx[key] = idx
	return idx
}

func constKey(v value.Value) string {
	switch v.Kind {
	case value.KindInt:
		return fmt.Sprintf("i:%d", v.Int)
	case value.KindFloat:
		return fmt.Sprintf("f:%v", v.Float)
	case value.KindStr:
		return fmt.Sprintf("s:%s", v.Str)
	case value.KindBool:
		return fmt.Sprintf("b:%v", v.Bool)
	case value.KindNull:
		return "n"
	default:
		return fmt.Sprintf("?:%p", v.List)
	}
}

func (c *Compiler) nameIndex(name string) int {
	if idx, ok := c.nameIdx[name]; ok {
		return idx
	}
	idx := len(c.unit.Names)
	c.unit.Names = append(c.unit.Names, name)
	c.nameIdx[name] = idx
	return idx
}

func (c *Compiler) newTemp() string {
	c.tempCounter++
	return fmt.Sprintf("#match%d", c.tempCounter)
}

func markerFromTokenType(tt token.TokenType) Marker {
	switch tt {
	case token.MARKER_STR:
		return MarkerStr
	case token.MARKER_INT:
		return MarkerInt
	case token.MARKER_FLT:
		return MarkerFloat
	case token.MARKER_BOOL:
		return MarkerBool
	case token.MARKER_LIST:
		return MarkerList
	case token.MARKER_DICT:
		return MarkerDict
	default:
		return MarkerAny
	}
}

// --- ExpressionVisitor ---

func (c *Compiler) VisitBinary(b ast.Binary) any {
	c.compileExpr(b.Left)
	c.compileExpr(b.Right)
	switch b.Operator.TokenType {
	case token.ADD:
		c.emit(ADD)
	case token.SUB:
		c.emit(SUB)
	case token.MULT:
		c.emit(MUL)
	case token.DIV:
		c.emit(DIV)
	case token.EQUAL_EQUAL:
		c.emit(EQ)
	case token.NOT_EQUAL:
		c.emit(NE)
	case token.LESS:
		c.emit(LT)
	case token.LESS_EQUAL:
		c.emit(LE)
	case token.LARGER:
		c.emit(GT)
	case token.LARGER_EQUAL:
		c.emit(GE)
	default:
		c.fail(b.Line, fmt.Sprintf("unsupported binary operator %q", b.Operator.Lexeme))
	}
	return nil
}

func (c *Compiler) VisitUnary(u ast.Unary) any {
	c.compileExpr(u.Right)
	switch u.Operator.TokenType {
	case token.SUB:
		c.emit(NEG)
	case token.NOT:
		c.emit(NOT)
	default:
		c.fail(u.Line, fmt.Sprintf("unsupported unary operator %q", u.Operator.Lexeme))
	}
	return nil
}

// VisitLogical lowers short-circuit `and`/`or` (§4.C). JUMP_IF_TRUE and
// JUMP_IF_FALSE are conditionally-consuming (§9): they leave the tested
// value on the stack when the jump is taken and pop it otherwise, which is
// exactly the value short-circuit evaluation needs without a dedicated DUP.
func (c *Compiler) VisitLogical(l ast.Logical) any {
	c.compileExpr(l.Left)
	var shortCircuitJump int
	switch l.Operator.TokenType {
	case token.OR:
		shortCircuitJump = c.emitJump(JUMP_IF_TRUE)
	case token.AND:
		shortCircuitJump = c.emitJump(JUMP_IF_FALSE)
	default:
		c.fail(l.Line, fmt.Sprintf("unsupported logical operator %q", l.Operator.Lexeme))
	}
	c.compileExpr(l.Right)
	c.patchJump(shortCircuitJump)
	return nil
}

func (c *Compiler) VisitLiteral(lit ast.Literal) any {
	var v value.Value
	switch val := lit.Value.(type) {
	case int64:
		v = value.Int(val)
	case float64:
		v = value.Float(val)
	case string:
		v = value.Str(val)
	case bool:
		v = value.Bool(val)
	case nil:
		v = value.Null()
	default:
		c.fail(lit.Line, fmt.Sprintf("unrepresentable literal %v", lit.Value))
	}
	c.emit(LOAD_CONST, c.addConstant(v))
	return nil
}

func (c *Compiler) VisitGrouping(g ast.Grouping) any {
	c.compileExpr(g.Expression)
	return nil
}

func (c *Compiler) VisitVar(v ast.Var) any {
	c.emit(LOAD_NAME, c.nameIndex(v.Name))
	return nil
}

func (c *Compiler) VisitListLit(l ast.ListLit) any {
	for _, el := range l.Elements {
		c.compileExpr(el)
	}
	c.emit(BUILD_LIST, len(l.Elements))
	return nil
}

func (c *Compiler) VisitDictLit(d ast.DictLit) any {
	for i := range d.Keys {
		c.compileExpr(d.Keys[i])
		c.compileExpr(d.Values[i])
	}
	c.emit(BUILD_DICT, len(d.Keys))
	return nil
}

// VisitCall compiles both expression-position and statement-position calls.
// `amount(x)` is special-cased to the dedicated LEN opcode (§4.C lists LEN
// as its own instruction, separate from the builtin-resolution CALL path).
func (c *Compiler) VisitCall(call ast.Call) any {
	if call.Callee == "amount" && len(call.Args) == 1 {
		c.compileExpr(call.Args[0])
		c.emit(LEN)
		return nil
	}
	for _, a := range call.Args {
		c.compileExpr(a)
	}
	c.emit(CALL, c.nameIndex(call.Callee), len(call.Args))
	return nil
}

func (c *Compiler) VisitIndexCall(ic ast.IndexCall) any {
	c.emit(LOAD_NAME, c.nameIndex(ic.Name))
	c.compileExpr(ic.Index)
	c.emit(INDEX_GET)
	return nil
}

// --- StmtVisitor ---

func (c *Compiler) VisitExprStmt(stmt ast.ExprStmt) any {
	c.compileExpr(stmt.Expr)
	c.emit(POP)
	return nil
}

func (c *Compiler) VisitVarAssign(stmt ast.VarAssign) any {
	c.compileExpr(stmt.Value)
	c.emit(STORE_NAME, c.nameIndex(stmt.Name), int(markerFromTokenType(stmt.Marker)))
	return nil
}

func (c *Compiler) VisitBlock(stmt ast.Block) any {
	for _, s := range stmt.Statements {
		c.compileStmt(s)
	}
	return nil
}

// VisitIf lowers `if`/`elif`/`else` as a chain of conditionally-consuming
// JUMP_IF_FALSE tests (§4.C), one branch at a time: a branch whose
// condition is false leaves the false value on the stack and falls into a
// POP before testing the next condition; a taken branch already consumed
// its condition on the fallthrough path and jumps straight to the end.
func (c *Compiler) VisitIf(stmt ast.If) any {
	var endJumps []int
	for _, branch := range stmt.Branches {
		c.compileExpr(branch.Condition)
		falseJump := c.emitJump(JUMP_IF_FALSE)
		for _, s := range branch.Body {
			c.compileStmt(s)
		}
		endJumps = append(endJumps, c.emitJump(JUMP))
		c.patchJump(falseJump)
		c.emit(POP)
	}
	for _, s := range stmt.Else {
		c.compileStmt(s)
	}
	for _, pos := range endJumps {
		c.patchJump(pos)
	}
	return nil
}

// VisitWhile lowers a while loop (§4.C, §4.E). break_t points at the
// LOOP_POP instruction shared by both the normal (condition-false) and
// abnormal (`stop`) exit paths; continue_t re-enters the condition check.
func (c *Compiler) VisitWhile(stmt ast.While) any {
	loopPushPos := c.emit(LOOP_PUSH, 0, 0)
	condPos := c.here()
	c.patchOperand(loopPushPos, 1, condPos)

	c.compileExpr(stmt.Condition)
	falseJump := c.emitJump(JUMP_IF_FALSE)

	c.loopDepth++
	for _, s := range stmt.Body {
		c.compileStmt(s)
	}
	c.loopDepth--

	c.emit(JUMP, condPos)
	c.patchJump(falseJump)
	c.emit(POP)

	popPos := c.here()
	c.patchOperand(loopPushPos, 0, popPos)
	c.emit(LOOP_POP)
	return nil
}

// VisitFor lowers a for-in loop over a List, Dict (iterating its keys) or
// Str (iterating 1-character substrings) via FOR_START/FOR_NEXT (§4.C).
func (c *Compiler) VisitFor(stmt ast.For) any {
	c.compileExpr(stmt.Iterable)
	c.emit(FOR_START)

	loopPushPos := c.emit(LOOP_PUSH, 0, 0)
	nextPos := c.here()
	c.patchOperand(loopPushPos, 1, nextPos)

	varIdx := c.nameIndex(stmt.Var)
	forNextPos := c.emit(FOR_NEXT, 0, varIdx)

	c.loopDepth++
	for _, s := range stmt.Body {
		c.compileStmt(s)
	}
	c.loopDepth--

	c.emit(JUMP, nextPos)
	popPos := c.here()
	c.patchOperand(forNextPos, 0, popPos)
	c.patchOperand(loopPushPos, 0, popPos)
	c.emit(LOOP_POP)
	return nil
}

func (c *Compiler) VisitStop(stmt ast.Stop) any {
	if c.loopDepth == 0 {
		c.fail(stmt.Line, "'stop' used outside a loop")
	}
	c.emit(BREAK)
	return nil
}

func (c *Compiler) VisitContinue(stmt ast.Continue) any {
	if c.loopDepth == 0 {
		c.fail(stmt.Line, "'continue' used outside a loop")
	}
	c.emit(CONTINUE)
	return nil
}

// VisitFuncDef only runs for a FuncDef encountered somewhere other than
// module top level (compileProgram hoists and compiles top-level
// definitions itself) — functions are not nested (§4.C).
func (c *Compiler) VisitFuncDef(stmt ast.FuncDef) any {
	c.fail(stmt.Line, "nested function definitions are not allowed")
	return nil
}

func (c *Compiler) VisitReturn(stmt ast.Return) any {
	if !c.inFunction {
		c.fail(stmt.Line, "'return' used outside a function")
	}
	if stmt.Value != nil {
		c.compileExpr(stmt.Value)
	} else {
		c.emit(LOAD_NULL)
	}
	c.emit(RETURN)
	return nil
}

// VisitMatch lowers match-on-literal (§4.C): the scrutinee is evaluated
// once into a synthetic temporary, then tested against each case literal
// with the same conditionally-consuming JUMP_IF_FALSE chain `if` uses.
func (c *Compiler) VisitMatch(stmt ast.Match) any {
	temp := c.newTemp()
	c.compileExpr(stmt.Scrutinee)
	c.emit(STORE_NAME, c.nameIndex(temp), int(MarkerAny))

	var endJumps []int
	for _, cs := range stmt.Cases {
		c.emit(LOAD_NAME, c.nameIndex(temp))
		c.compileExpr(cs.Literal)
		c.emit(EQ)
		falseJump := c.emitJump(JUMP_IF_FALSE)
		for _, s := range cs.Body {
			c.compileStmt(s)
		}
		endJumps = append(endJumps, c.emitJump(JUMP))
		c.patchJump(falseJump)
		c.emit(POP)
	}
	for _, s := range stmt.Else {
		c.compileStmt(s)
	}
	for _, pos := range endJumps {
		c.patchJump(pos)
	}
	return nil
}

func (c *Compiler) VisitImport(stmt ast.Import) any {
	c.emit(IMPORT, c.addConstant(value.Str(stmt.Path)))
	return nil
}

func (c *Compiler) VisitExport(stmt ast.Export) any {
	c.unit.Exports = append(c.unit.Exports, stmt.Name)
	c.emit(EXPORT, c.nameIndex(stmt.Name))
	return nil
}

func (c *Compiler) VisitSetIndex(stmt ast.SetIndex) any {
	c.emit(LOAD_NAME, c.nameIndex(stmt.Name))
	c.compileExpr(stmt.Index)
	c.compileExpr(stmt.Value)
	c.emit(INDEX_SET)
	return nil
}

func (c *Compiler) VisitListAdd(stmt ast.ListAdd) any {
	c.emit(LOAD_NAME, c.nameIndex(stmt.Name))
	c.compileExpr(stmt.Value)
	c.emit(LIST_APPEND)
	return nil
}

func (c *Compiler) VisitListInsert(stmt ast.ListInsert) any {
	c.emit(LOAD_NAME, c.nameIndex(stmt.Name))
	c.compileExpr(stmt.Index)
	c.compileExpr(stmt.Value)
	c.emit(LIST_INSERT)
	return nil
}

// VisitRemove handles both `remove list(idx)` and `remove dict(key_expr)`
// (§9: the removal target is always an expression, never a bare identifier
// reinterpreted as a dict key).
func (c *Compiler) VisitRemove(stmt ast.Remove) any {
	c.emit(LOAD_NAME, c.nameIndex(stmt.Name))
	c.compileExpr(stmt.Index)
	c.emit(REMOVE_AT)
	return nil
}

func (c *Compiler) VisitTrace(stmt ast.Trace) any {
	if stmt.On {
		c.emit(TRACE_ON)
	} else {
		c.emit(TRACE_OFF)
	}
	return nil
}
