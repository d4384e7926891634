// printer.go implements a JSON dump of the AST via the visitor pattern,
// used by the `parse` CLI verb (SPEC_FULL.md Part B.1) and exercised by a
// go-snaps snapshot test (Part B.5).
package parser

import (
	"encoding/json"
	"os"

	"fallen/ast"
)

// astPrinter implements both ast.ExpressionVisitor and ast.StmtVisitor,
// turning each node into a map[string]any suitable for JSON marshalling.
type astPrinter struct{}

// PrintASTJSON renders statements as prettified JSON and writes it to
// standard output, also returning the bytes produced.
func PrintASTJSON(statements []ast.Stmt) ([]byte, error) {
	data, err := astToJSON(statements)
	if err != nil {
		return nil, err
	}
	os.Stdout.Write(data)
	os.Stdout.Write([]byte("\n"))
	return data, nil
}

// WriteASTJSONToFile writes the AST for statements to a .json file at path.
func WriteASTJSONToFile(statements []ast.Stmt, path string) error {
	data, err := astToJSON(statements)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func astToJSON(statements []ast.Stmt) ([]byte, error) {
	p := astPrinter{}
	nodes := make([]any, len(statements))
	for i, stmt := range statements {
		nodes[i] = stmt.Accept(p)
	}
	return json.MarshalIndent(nodes, "", "  ")
}

func (p astPrinter) exprs(list []ast.Expression) []any {
	out := make([]any, len(list))
	for i, e := range list {
		out[i] = e.Accept(p)
	}
	return out
}

func (p astPrinter) stmts(list []ast.Stmt) []any {
	out := make([]any, len(list))
	for i, s := range list {
		out[i] = s.Accept(p)
	}
	return out
}

func (p astPrinter) maybeExpr(e ast.Expression) any {
	if e == nil {
		return nil
	}
	return e.Accept(p)
}

// --- ExpressionVisitor ---

func (p astPrinter) VisitBinary(b ast.Binary) any {
	return map[string]any{
		"type":     "Binary",
		"operator": b.Operator.Lexeme,
		"left":     b.Left.Accept(p),
		"right":    b.Right.Accept(p),
		"line":     b.Line,
	}
}

func (p astPrinter) VisitUnary(u ast.Unary) any {
	return map[string]any{
		"type":     "Unary",
		"operator": u.Operator.Lexeme,
		"right":    u.Right.Accept(p),
		"line":     u.Line,
	}
}

func (p astPrinter) VisitLogical(l ast.Logical) any {
	return map[string]any{
		"type":     "Logical",
		"operator": l.Operator.Lexeme,
		"left":     l.Left.Accept(p),
		"right":    l.Right.Accept(p),
		"line":     l.Line,
	}
}

func (p astPrinter) VisitLiteral(lit ast.Literal) any {
	return map[string]any{
		"type":  "Literal",
		"value": lit.Value,
		"line":  lit.Line,
	}
}

func (p astPrinter) VisitGrouping(g ast.Grouping) any {
	return map[string]any{
		"type":       "Grouping",
		"expression": g.Expression.Accept(p),
		"line":       g.Line,
	}
}

func (p astPrinter) VisitVar(v ast.Var) any {
	return map[string]any{
		"type": "Var",
		"name": v.Name,
		"line": v.Line,
	}
}

func (p astPrinter) VisitListLit(l ast.ListLit) any {
	return map[string]any{
		"type":     "ListLit",
		"elements": p.exprs(l.Elements),
		"line":     l.Line,
	}
}

func (p astPrinter) VisitDictLit(d ast.DictLit) any {
	return map[string]any{
		"type":   "DictLit",
		"keys":   p.exprs(d.Keys),
		"values": p.exprs(d.Values),
		"line":   d.Line,
	}
}

func (p astPrinter) VisitCall(c ast.Call) any {
	return map[string]any{
		"type":   "Call",
		"callee": c.Callee,
		"args":   p.exprs(c.Args),
		"line":   c.Line,
	}
}

func (p astPrinter) VisitIndexCall(ic ast.IndexCall) any {
	return map[string]any{
		"type":  "IndexCall",
		"name":  ic.Name,
		"index": ic.Index.Accept(p),
		"line":  ic.Line,
	}
}

// --- StmtVisitor ---

func (p astPrinter) VisitExprStmt(stmt ast.ExprStmt) any {
	return map[string]any{
		"type": "ExprStmt",
		"expr": stmt.Expr.Accept(p),
		"line": stmt.Line,
	}
}

func (p astPrinter) VisitVarAssign(stmt ast.VarAssign) any {
	return map[string]any{
		"type":   "VarAssign",
		"name":   stmt.Name,
		"marker": string(stmt.Marker),
		"value":  stmt.Value.Accept(p),
		"line":   stmt.Line,
	}
}

func (p astPrinter) VisitBlock(stmt ast.Block) any {
	return map[string]any{
		"type":       "Block",
		"statements": p.stmts(stmt.Statements),
		"line":       stmt.Line,
	}
}

func (p astPrinter) VisitIf(stmt ast.If) any {
	branches := make([]any, len(stmt.Branches))
	for i, br := range stmt.Branches {
		branches[i] = map[string]any{
			"condition": br.Condition.Accept(p),
			"body":      p.stmts(br.Body),
		}
	}
	result := map[string]any{
		"type":     "If",
		"branches": branches,
		"line":     stmt.Line,
	}
	if stmt.Else != nil {
		result["else"] = p.stmts(stmt.Else)
	}
	return result
}

func (p astPrinter) VisitWhile(stmt ast.While) any {
	return map[string]any{
		"type":      "While",
		"condition": stmt.Condition.Accept(p),
		"body":      p.stmts(stmt.Body),
		"line":      stmt.Line,
	}
}

func (p astPrinter) VisitFor(stmt ast.For) any {
	return map[string]any{
		"type":     "For",
		"var":      stmt.Var,
		"iterable": stmt.Iterable.Accept(p),
		"body":     p.stmts(stmt.Body),
		"line":     stmt.Line,
	}
}

func (p astPrinter) VisitStop(stmt ast.Stop) any {
	return map[string]any{"type": "Stop", "line": stmt.Line}
}

func (p astPrinter) VisitContinue(stmt ast.Continue) any {
	return map[string]any{"type": "Continue", "line": stmt.Line}
}

func (p astPrinter) VisitFuncDef(stmt ast.FuncDef) any {
	params := make([]any, len(stmt.Params))
	for i, param := range stmt.Params {
		params[i] = map[string]any{"name": param.Name, "marker": string(param.Marker)}
	}
	return map[string]any{
		"type":   "FuncDef",
		"name":   stmt.Name,
		"params": params,
		"body":   p.stmts(stmt.Body),
		"line":   stmt.Line,
	}
}

func (p astPrinter) VisitReturn(stmt ast.Return) any {
	return map[string]any{
		"type":  "Return",
		"value": p.maybeExpr(stmt.Value),
		"line":  stmt.Line,
	}
}

func (p astPrinter) VisitMatch(stmt ast.Match) any {
	cases := make([]any, len(stmt.Cases))
	for i, c := range stmt.Cases {
		cases[i] = map[string]any{
			"literal": c.Literal.Accept(p),
			"body":    p.stmts(c.Body),
		}
	}
	result := map[string]any{
		"type":      "Match",
		"scrutinee": stmt.Scrutinee.Accept(p),
		"cases":     cases,
		"line":      stmt.Line,
	}
	if stmt.Else != nil {
		result["else"] = p.stmts(stmt.Else)
	}
	return result
}

func (p astPrinter) VisitImport(stmt ast.Import) any {
	return map[string]any{"type": "Import", "path": stmt.Path, "line": stmt.Line}
}

func (p astPrinter) VisitExport(stmt ast.Export) any {
	return map[string]any{"type": "Export", "name": stmt.Name, "line": stmt.Line}
}

func (p astPrinter) VisitSetIndex(stmt ast.SetIndex) any {
	return map[string]any{
		"type":  "SetIndex",
		"name":  stmt.Name,
		"index": stmt.Index.Accept(p),
		"value": stmt.Value.Accept(p),
		"line":  stmt.Line,
	}
}

func (p astPrinter) VisitListAdd(stmt ast.ListAdd) any {
	return map[string]any{
		"type":  "ListAdd",
		"name":  stmt.Name,
		"value": stmt.Value.Accept(p),
		"line":  stmt.Line,
	}
}

func (p astPrinter) VisitListInsert(stmt ast.ListInsert) any {
	return map[string]any{
		"type":  "ListInsert",
		"name":  stmt.Name,
		"index": stmt.Index.Accept(p),
		"value": stmt.Value.Accept(p),
		"line":  stmt.Line,
	}
}

func (p astPrinter) VisitRemove(stmt ast.Remove) any {
	return map[string]any{
		"type":  "Remove",
		"name":  stmt.Name,
		"index": stmt.Index.Accept(p),
		"line":  stmt.Line,
	}
}

func (p astPrinter) VisitTrace(stmt ast.Trace) any {
	return map[string]any{"type": "Trace", "on": stmt.On, "line": stmt.Line}
}
