// expressions.go contains all the expression AST nodes (§3). An expression
// node always evaluates to a value.

package ast

import "fallen/token"

// Binary represents a binary operation expression (e.g., "a + b"). It
// consists of a left-hand side expression, an operator token, and a
// right-hand side expression.
type Binary struct {
	Left     Expression
	Operator token.Token
	Right    Expression
	Line     int32
}

func (b Binary) Accept(v ExpressionVisitor) any { return v.VisitBinary(b) }
func (b Binary) Ln() int32                      { return b.Line }

// Unary represents a unary operation expression (e.g., "-b" or "not b").
type Unary struct {
	Operator token.Token
	Right    Expression
	Line     int32
}

func (u Unary) Accept(v ExpressionVisitor) any { return v.VisitUnary(u) }
func (u Unary) Ln() int32                      { return u.Line }

// Logical represents a short-circuiting "and"/"or" expression. It is kept
// distinct from Binary because its two operands are not both unconditionally
// evaluated (§4.C).
type Logical struct {
	Left     Expression
	Operator token.Token
	Right    Expression
	Line     int32
}

func (l Logical) Accept(v ExpressionVisitor) any { return v.VisitLogical(l) }
func (l Logical) Ln() int32                      { return l.Line }

// Literal represents a literal value in the source code: an int, float,
// string, or bool.
type Literal struct {
	Value any
	Line  int32
}

func (lit Literal) Accept(v ExpressionVisitor) any { return v.VisitLiteral(lit) }
func (lit Literal) Ln() int32                      { return lit.Line }

// Grouping represents a parenthesized expression, e.g. "(a + b)".
type Grouping struct {
	Expression Expression
	Line       int32
}

func (g Grouping) Accept(v ExpressionVisitor) any { return v.VisitGrouping(g) }
func (g Grouping) Ln() int32                      { return g.Line }

// Var represents the retrieval of a value previously bound to a variable
// name (§3: `Var(name)`).
type Var struct {
	Name string
	Line int32
}

func (va Var) Accept(v ExpressionVisitor) any { return v.VisitVar(va) }
func (va Var) Ln() int32                      { return va.Line }

// ListLit represents a list literal, e.g. "[1, 2, 3]".
type ListLit struct {
	Elements []Expression
	Line     int32
}

func (l ListLit) Accept(v ExpressionVisitor) any { return v.VisitListLit(l) }
func (l ListLit) Ln() int32                      { return l.Line }

// DictLit represents a dict literal, e.g. `{"a": 1, "b": 2}`. Keys and
// Values are parallel slices so insertion order is preserved (§3: Dict is
// "insertion-ordered").
type DictLit struct {
	Keys   []Expression
	Values []Expression
	Line   int32
}

func (d DictLit) Accept(v ExpressionVisitor) any { return v.VisitDictLit(d) }
func (d DictLit) Ln() int32                      { return d.Line }

// Call represents a plain function-call expression, e.g. "f(a, b)" (§3:
// `Call(callee_name, args)`).
type Call struct {
	Callee string
	Args   []Expression
	Line   int32
}

func (c Call) Accept(v ExpressionVisitor) any { return v.VisitCall(c) }
func (c Call) Ln() int32                      { return c.Line }

// IndexCall represents the `call name(idx)` indexing form used to read an
// element out of a List, Dict, or Str (§3: `IndexCall(name, index_expr)`).
type IndexCall struct {
	Name  string
	Index Expression
	Line  int32
}

func (ic IndexCall) Accept(v ExpressionVisitor) any { return v.VisitIndexCall(ic) }
func (ic IndexCall) Ln() int32                      { return ic.Line }
