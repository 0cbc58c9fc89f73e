package compiler

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Semantic Analyzer: Lint checks that do not block code generation
// ---------------------------------------------------------------------------

// Warning is a non-fatal diagnostic.
type Warning struct {
	Pos Position
	Msg string
}

func (w Warning) String() string {
	return fmt.Sprintf("%d:%d: warning: %s", w.Pos.Line, w.Pos.Column, w.Msg)
}

// SemanticAnalyzer reports unreachable statements, locals that are never
// read and non-void functions that can fall off their end. Errors that
// make a program invalid are reported by the generator instead.
type SemanticAnalyzer struct {
	warnings []Warning
	scopes   []map[string]*localUse
}

type localUse struct {
	pos  Position
	read bool
}

// NewSemanticAnalyzer creates a new semantic analyzer.
func NewSemanticAnalyzer() *SemanticAnalyzer {
	return &SemanticAnalyzer{}
}

// Warnings returns accumulated warnings.
func (s *SemanticAnalyzer) Warnings() []Warning {
	return s.warnings
}

// warnAt records a warning with position information.
func (s *SemanticAnalyzer) warnAt(node Node, format string, args ...any) {
	s.warnings = append(s.warnings, Warning{Pos: node.Pos(), Msg: fmt.Sprintf(format, args...)})
}

// Analyze runs every check over prog and returns the warnings found.
func Analyze(prog *Program) []Warning {
	s := NewSemanticAnalyzer()
	for _, d := range prog.Decls {
		switch d := d.(type) {
		case *FuncDecl:
			s.AnalyzeFunction(d)
		case *ClassDecl:
			for _, m := range d.Methods {
				s.AnalyzeFunction(m)
			}
		}
	}
	return s.Warnings()
}

// AnalyzeFunction checks a single function or method body.
func (s *SemanticAnalyzer) AnalyzeFunction(fn *FuncDecl) {
	s.scopes = nil
	s.pushScope()
	for _, p := range fn.Params {
		// Parameters count as read: unused ones are part of a signature.
		s.scopes[0][p.Name] = &localUse{pos: p.Position, read: true}
	}
	s.analyzeBlock(fn.Body)
	s.popScope()

	if fn.ReturnType.Name != "void" && !returns(fn.Body) {
		s.warnAt(fn, "%s may reach the end without returning a value", fn.Name)
	}
}

func (s *SemanticAnalyzer) pushScope() {
	s.scopes = append(s.scopes, map[string]*localUse{})
}

func (s *SemanticAnalyzer) popScope() {
	top := s.scopes[len(s.scopes)-1]
	for name, use := range top {
		if !use.read {
			s.warnings = append(s.warnings, Warning{Pos: use.pos, Msg: fmt.Sprintf("%s declared and not used", name)})
		}
	}
	s.scopes = s.scopes[:len(s.scopes)-1]
}

func (s *SemanticAnalyzer) declare(pos Position, name string) {
	s.scopes[len(s.scopes)-1][name] = &localUse{pos: pos}
}

func (s *SemanticAnalyzer) markRead(name string) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if use, ok := s.scopes[i][name]; ok {
			use.read = true
			return
		}
	}
}

// analyzeBlock analyzes a braced block in its own scope.
func (s *SemanticAnalyzer) analyzeBlock(block *Block) {
	s.pushScope()
	s.analyzeStatements(block.Statements)
	s.checkUnreachableCode(block.Statements)
	s.popScope()
}

// analyzeStatements analyzes a list of statements.
func (s *SemanticAnalyzer) analyzeStatements(stmts []Stmt) {
	for _, stmt := range stmts {
		s.analyzeStmt(stmt)
	}
}

func (s *SemanticAnalyzer) analyzeStmt(stmt Stmt) {
	switch n := stmt.(type) {
	case *Block:
		s.analyzeBlock(n)
	case *VarDecl:
		if n.Init != nil {
			s.analyzeExpr(n.Init)
		}
		s.declare(n.Position, n.Name)
	case *ExprStmt:
		s.analyzeExpr(n.Expr)
	case *If:
		s.analyzeExpr(n.Cond)
		s.analyzeStmt(n.Then)
		if n.Else != nil {
			s.analyzeStmt(n.Else)
		}
	case *While:
		s.analyzeExpr(n.Cond)
		s.analyzeStmt(n.Body)
	case *For:
		s.pushScope()
		if n.Init != nil {
			s.analyzeStmt(n.Init)
		}
		if n.Cond != nil {
			s.analyzeExpr(n.Cond)
		}
		if n.Post != nil {
			s.analyzeExpr(n.Post)
		}
		s.analyzeStmt(n.Body)
		s.popScope()
	case *Return:
		if n.Value != nil {
			s.analyzeExpr(n.Value)
		}
	}
}

func (s *SemanticAnalyzer) analyzeExpr(expr Expr) {
	switch n := expr.(type) {
	case *Identifier:
		s.markRead(n.Name)
	case *Unary:
		s.analyzeExpr(n.Operand)
	case *Binary:
		s.analyzeExpr(n.Left)
		s.analyzeExpr(n.Right)
	case *Assign:
		// A plain variable target is written, not read.
		if _, ok := n.Target.(*Identifier); !ok {
			s.analyzeExpr(n.Target)
		}
		s.analyzeExpr(n.Value)
	case *Ternary:
		s.analyzeExpr(n.Cond)
		s.analyzeExpr(n.Then)
		s.analyzeExpr(n.Else)
	case *Call:
		if m, ok := n.Callee.(*Member); ok {
			s.analyzeExpr(m.Object)
		}
		for _, a := range n.Args {
			s.analyzeExpr(a)
		}
	case *Member:
		s.analyzeExpr(n.Object)
	case *Index:
		s.analyzeExpr(n.Array)
		s.analyzeExpr(n.Index)
	case *NewArray:
		s.analyzeExpr(n.Length)
	}
}

// checkUnreachableCode checks for code after a return statement.
func (s *SemanticAnalyzer) checkUnreachableCode(stmts []Stmt) {
	for i, stmt := range stmts {
		if returns(stmt) && i < len(stmts)-1 {
			s.warnAt(stmts[i+1], "unreachable code after return")
			return // Only warn once
		}
	}
}

// returns reports whether every path through stmt ends in a return.
func returns(stmt Stmt) bool {
	switch n := stmt.(type) {
	case *Return:
		return true
	case *Block:
		for _, st := range n.Statements {
			if returns(st) {
				return true
			}
		}
	case *If:
		return n.Else != nil && returns(n.Then) && returns(n.Else)
	}
	return false
}
