// interfaces.go contains the visitor interfaces that any code traversing
// expression and statement AST nodes must implement, and the base node
// interfaces (Expression, Stmt) that every node type satisfies.

package ast

// ExpressionVisitor is the interface for operating on all Expression AST
// nodes. Any type that wants to perform an operation on expressions (a
// compiler, an ast-printer) must implement this interface. Each Visit
// method corresponds to a distinct Expression type.
type ExpressionVisitor interface {
	VisitBinary(binary Binary) any
	VisitUnary(unary Unary) any
	VisitLogical(logical Logical) any
	VisitLiteral(literal Literal) any
	VisitGrouping(grouping Grouping) any
	VisitVar(v Var) any
	VisitListLit(list ListLit) any
	VisitDictLit(dict DictLit) any
	VisitCall(call Call) any
	VisitIndexCall(indexCall IndexCall) any
}

// StmtVisitor is the interface for operating on all Statement AST nodes.
// Like ExpressionVisitor, it defines one Visit method per statement type.
type StmtVisitor interface {
	VisitExprStmt(stmt ExprStmt) any
	VisitVarAssign(stmt VarAssign) any
	VisitBlock(stmt Block) any
	VisitIf(stmt If) any
	VisitWhile(stmt While) any
	VisitFor(stmt For) any
	VisitStop(stmt Stop) any
	VisitContinue(stmt Continue) any
	VisitFuncDef(stmt FuncDef) any
	VisitReturn(stmt Return) any
	VisitMatch(stmt Match) any
	VisitImport(stmt Import) any
	VisitExport(stmt Export) any
	VisitSetIndex(stmt SetIndex) any
	VisitListAdd(stmt ListAdd) any
	VisitListInsert(stmt ListInsert) any
	VisitRemove(stmt Remove) any
	VisitTrace(stmt Trace) any
}

// Expression is the core interface for all expression nodes in the AST.
// The Accept method enables the Visitor design pattern so that operations
// can be performed on expressions without the expression types needing to
// know the details of those operations.
type Expression interface {
	Accept(v ExpressionVisitor) any
	// Ln returns the 1-based source line the node was parsed from (§3).
	Ln() int32
}

// Stmt is the base interface for all statement nodes in the AST. Like
// Expression, it follows the Visitor design pattern where each statement
// type implements Accept, calling back into the correct Visit method on a
// StmtVisitor.
type Stmt interface {
	Accept(v StmtVisitor) any
	Ln() int32
}
