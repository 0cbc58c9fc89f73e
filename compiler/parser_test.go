package compiler

import (
	"errors"
	"strings"
	"testing"
)

func parseExpr(t *testing.T, src string) Expr {
	t.Helper()
	expr, err := NewParser(src).ParseExpression()
	if err != nil {
		t.Fatalf("ParseExpression(%q): %v", src, err)
	}
	return expr
}

// render prints an expression fully parenthesised.
func render(e Expr) string {
	switch n := e.(type) {
	case *IntLiteral, *FloatLiteral, *BoolLiteral, *NullLiteral:
		switch v := n.(type) {
		case *IntLiteral:
			return itoa(v.Value)
		case *FloatLiteral:
			return "f"
		case *BoolLiteral:
			if v.Value {
				return "true"
			}
			return "false"
		}
		return "null"
	case *StringLiteral:
		return `"` + n.Value + `"`
	case *Identifier:
		return n.Name
	case *This:
		return "this"
	case *Unary:
		return "(" + n.Op + render(n.Operand) + ")"
	case *Binary:
		return "(" + render(n.Left) + " " + n.Op + " " + render(n.Right) + ")"
	case *Assign:
		return "(" + render(n.Target) + " = " + render(n.Value) + ")"
	case *Ternary:
		return "(" + render(n.Cond) + " ? " + render(n.Then) + " : " + render(n.Else) + ")"
	case *Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = render(a)
		}
		return render(n.Callee) + "(" + strings.Join(args, ", ") + ")"
	case *Member:
		return render(n.Object) + "." + n.Name
	case *Index:
		return render(n.Array) + "[" + render(n.Index) + "]"
	case *NewObject:
		return "new " + n.Class + "()"
	case *NewArray:
		return "new " + n.Element.Name + "[" + render(n.Length) + "]"
	}
	return "?"
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf []byte
	for v > 0 {
		buf = append([]byte{byte('0' + v%10)}, buf...)
		v /= 10
	}
	if neg {
		return "-" + string(buf)
	}
	return string(buf)
}

func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"(1 + 2) * 3", "((1 + 2) * 3)"},
		{"a - b - c", "((a - b) - c)"},
		{"a < b == c > d", "((a < b) == (c > d))"},
		{"a || b && c", "(a || (b && c))"},
		{"-a * b", "((-a) * b)"},
		{"!a && !b", "((!a) && (!b))"},
		{"x = y = 3", "(x = (y = 3))"},
		{"c ? 1 : d ? 2 : 3", "(c ? 1 : (d ? 2 : 3))"},
		{"a.b.c", "a.b.c"},
		{"a[i][j]", "a[i][j]"},
		{"p.move(1, 2).x", "p.move(1, 2).x"},
		{"f()", "f()"},
		{"new Point()", "new Point()"},
		{"new int[n + 1]", "new int[(n + 1)]"},
		{"new int[][3]", "new int[][3]"},
		{"a[0] = b.c = 1", "(a[0] = (b.c = 1))"},
	}

	for _, tc := range tests {
		got := render(parseExpr(t, tc.input))
		if got != tc.want {
			t.Errorf("parse(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestParseProgramDeclarations(t *testing.T) {
	src := `
int counter = 0;
string[] names;

class Point {
	int x;
	int y;
	Point next;
	int sum() { return this.x + this.y; }
}

void main() {
	Point p = new Point();
	p.x = 1;
}
`
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(prog.Decls) != 4 {
		t.Fatalf("got %d decls, want 4", len(prog.Decls))
	}

	v, ok := prog.Decls[0].(*VarDecl)
	if !ok || v.Name != "counter" || v.Type.Name != "int" || v.Init == nil {
		t.Errorf("decl[0] = %#v, want int counter = 0", prog.Decls[0])
	}
	v, ok = prog.Decls[1].(*VarDecl)
	if !ok || v.Type.Name != "string[]" || v.Init != nil {
		t.Errorf("decl[1] = %#v, want string[] names", prog.Decls[1])
	}

	c, ok := prog.Decls[2].(*ClassDecl)
	if !ok {
		t.Fatalf("decl[2] = %T, want *ClassDecl", prog.Decls[2])
	}
	if c.Name != "Point" || len(c.Fields) != 3 || len(c.Methods) != 1 {
		t.Errorf("class = %s with %d fields and %d methods", c.Name, len(c.Fields), len(c.Methods))
	}
	if c.Fields[2].Type.Name != "Point" {
		t.Errorf("field next type = %s, want Point", c.Fields[2].Type.Name)
	}

	fn, ok := prog.Decls[3].(*FuncDecl)
	if !ok || fn.Name != "main" || fn.ReturnType.Name != "void" {
		t.Fatalf("decl[3] = %#v, want void main()", prog.Decls[3])
	}
	if len(fn.Body.Statements) != 2 {
		t.Errorf("main has %d statements, want 2", len(fn.Body.Statements))
	}
}

func TestParseStatements(t *testing.T) {
	src := `
int f(int n, int[] xs) {
	int total;
	for (int i = 0; i < n; i = i + 1) {
		if (xs[i] > 0) total = total + xs[i]; else { }
	}
	for (;;) { return total; }
	while (n > 0) n = n - 1;
	return total;
}
`
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	fn := prog.Decls[0].(*FuncDecl)
	if len(fn.Params) != 2 || fn.Params[1].Type.Name != "int[]" {
		t.Fatalf("params = %#v", fn.Params)
	}

	stmts := fn.Body.Statements
	if _, ok := stmts[0].(*VarDecl); !ok {
		t.Errorf("stmt[0] = %T, want *VarDecl", stmts[0])
	}
	loop, ok := stmts[1].(*For)
	if !ok {
		t.Fatalf("stmt[1] = %T, want *For", stmts[1])
	}
	if _, ok := loop.Init.(*VarDecl); !ok || loop.Cond == nil || loop.Post == nil {
		t.Errorf("for clauses = %#v", loop)
	}
	empty := stmts[2].(*For)
	if empty.Init != nil || empty.Cond != nil || empty.Post != nil {
		t.Errorf("empty for clauses = %#v", empty)
	}
	if _, ok := stmts[3].(*While); !ok {
		t.Errorf("stmt[3] = %T, want *While", stmts[3])
	}
	if r, ok := stmts[4].(*Return); !ok || r.Value == nil {
		t.Errorf("stmt[4] = %#v, want return total", stmts[4])
	}
}

func TestParseArrayDeclarationVersusIndex(t *testing.T) {
	prog, err := Parse(`void f() { int[] a = new int[2]; a[0] = 1; }`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	stmts := prog.Decls[0].(*FuncDecl).Body.Statements
	if _, ok := stmts[0].(*VarDecl); !ok {
		t.Errorf("stmt[0] = %T, want *VarDecl", stmts[0])
	}
	if _, ok := stmts[1].(*ExprStmt); !ok {
		t.Errorf("stmt[1] = %T, want *ExprStmt", stmts[1])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"int x", "expected ;"},
		{"void f( { }", "expected IDENTIFIER"},
		{"void f() { return 1 }", "expected ;"},
		{"void f() { x = ; }", "expected expression"},
		{"class { }", "expected IDENTIFIER"},
		{"void f() {", "unterminated block"},
		{"42;", "expected declaration"},
		{`void f() { string s = "abc; }`, "unterminated string"},
		{"void f() { int x = 99999999999999999999; }", "out of range"},
	}

	for _, tc := range tests {
		_, err := Parse(tc.input)
		if err == nil {
			t.Errorf("Parse(%q): expected error", tc.input)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("Parse(%q) error = %q, want it to contain %q", tc.input, err, tc.want)
		}
		var ce *Error
		if !errors.As(err, &ce) || ce.Pos.Line == 0 {
			t.Errorf("Parse(%q) error %v carries no position", tc.input, err)
		}
	}
}
