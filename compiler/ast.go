package compiler

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for Sprig
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Pos() Position
	node() // marker method
}

// TypeRef is a type as written in source, e.g. "int", "Node[]".
type TypeRef struct {
	Position Position
	Name     string
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// IntLiteral represents an integer literal.
type IntLiteral struct {
	Position Position
	Value    int64
}

// FloatLiteral represents a floating-point literal.
type FloatLiteral struct {
	Position Position
	Value    float64
}

// StringLiteral represents a string literal.
type StringLiteral struct {
	Position Position
	Value    string
}

// CharLiteral represents a character literal ('a').
type CharLiteral struct {
	Position Position
	Value    rune
}

// BoolLiteral represents true or false.
type BoolLiteral struct {
	Position Position
	Value    bool
}

// NullLiteral represents null.
type NullLiteral struct {
	Position Position
}

// This represents the receiver inside a method.
type This struct {
	Position Position
}

// Identifier represents a variable reference.
type Identifier struct {
	Position Position
	Name     string
}

// Unary represents a prefix operator (-x, !x).
type Unary struct {
	Position Position
	Op       string
	Operand  Expr
}

// Binary represents an infix operator.
type Binary struct {
	Position Position
	Op       string
	Left     Expr
	Right    Expr
}

// Assign represents target = value. Target is an Identifier, Member or Index.
type Assign struct {
	Position Position
	Target   Expr
	Value    Expr
}

// Ternary represents cond ? then : else.
type Ternary struct {
	Position Position
	Cond     Expr
	Then     Expr
	Else     Expr
}

// Call represents callee(args). Callee is an Identifier or a Member.
type Call struct {
	Position Position
	Callee   Expr
	Args     []Expr
}

// Member represents object.name.
type Member struct {
	Position Position
	Object   Expr
	Name     string
}

// Index represents array[index].
type Index struct {
	Position Position
	Array    Expr
	Index    Expr
}

// NewObject represents new ClassName().
type NewObject struct {
	Position Position
	Class    string
}

// NewArray represents new T[length].
type NewArray struct {
	Position Position
	Element  TypeRef
	Length   Expr
}

func (n *IntLiteral) Pos() Position    { return n.Position }
func (n *FloatLiteral) Pos() Position  { return n.Position }
func (n *StringLiteral) Pos() Position { return n.Position }
func (n *CharLiteral) Pos() Position   { return n.Position }
func (n *BoolLiteral) Pos() Position   { return n.Position }
func (n *NullLiteral) Pos() Position   { return n.Position }
func (n *This) Pos() Position          { return n.Position }
func (n *Identifier) Pos() Position    { return n.Position }
func (n *Unary) Pos() Position         { return n.Position }
func (n *Binary) Pos() Position        { return n.Position }
func (n *Assign) Pos() Position        { return n.Position }
func (n *Ternary) Pos() Position       { return n.Position }
func (n *Call) Pos() Position          { return n.Position }
func (n *Member) Pos() Position        { return n.Position }
func (n *Index) Pos() Position         { return n.Position }
func (n *NewObject) Pos() Position     { return n.Position }
func (n *NewArray) Pos() Position      { return n.Position }

func (n *IntLiteral) node()    {}
func (n *FloatLiteral) node()  {}
func (n *StringLiteral) node() {}
func (n *CharLiteral) node()   {}
func (n *BoolLiteral) node()   {}
func (n *NullLiteral) node()   {}
func (n *This) node()          {}
func (n *Identifier) node()    {}
func (n *Unary) node()         {}
func (n *Binary) node()        {}
func (n *Assign) node()        {}
func (n *Ternary) node()       {}
func (n *Call) node()          {}
func (n *Member) node()        {}
func (n *Index) node()         {}
func (n *NewObject) node()     {}
func (n *NewArray) node()      {}

func (n *IntLiteral) expr()    {}
func (n *FloatLiteral) expr()  {}
func (n *StringLiteral) expr() {}
func (n *CharLiteral) expr()   {}
func (n *BoolLiteral) expr()   {}
func (n *NullLiteral) expr()   {}
func (n *This) expr()          {}
func (n *Identifier) expr()    {}
func (n *Unary) expr()         {}
func (n *Binary) expr()        {}
func (n *Assign) expr()        {}
func (n *Ternary) expr()       {}
func (n *Call) expr()          {}
func (n *Member) expr()        {}
func (n *Index) expr()         {}
func (n *NewObject) expr()     {}
func (n *NewArray) expr()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// Block is a braced statement list; it opens a lexical scope.
type Block struct {
	Position   Position
	Statements []Stmt
}

// VarDecl declares a variable, optionally initialised. It is used both for
// locals and for top-level globals.
type VarDecl struct {
	Position Position
	Type     TypeRef
	Name     string
	Init     Expr // may be nil
}

// ExprStmt is an expression used as a statement.
type ExprStmt struct {
	Position Position
	Expr     Expr
}

// If represents if (cond) then [else otherwise].
type If struct {
	Position Position
	Cond     Expr
	Then     Stmt
	Else     Stmt // may be nil
}

// While represents while (cond) body.
type While struct {
	Position Position
	Cond     Expr
	Body     Stmt
}

// For represents for (init; cond; post) body. Every clause may be nil.
type For struct {
	Position Position
	Init     Stmt
	Cond     Expr
	Post     Expr
	Body     Stmt
}

// Return represents return [value].
type Return struct {
	Position Position
	Value    Expr // may be nil
}

func (n *Block) Pos() Position    { return n.Position }
func (n *VarDecl) Pos() Position  { return n.Position }
func (n *ExprStmt) Pos() Position { return n.Position }
func (n *If) Pos() Position       { return n.Position }
func (n *While) Pos() Position    { return n.Position }
func (n *For) Pos() Position      { return n.Position }
func (n *Return) Pos() Position   { return n.Position }

func (n *Block) node()    {}
func (n *VarDecl) node()  {}
func (n *ExprStmt) node() {}
func (n *If) node()       {}
func (n *While) node()    {}
func (n *For) node()      {}
func (n *Return) node()   {}

func (n *Block) stmt()    {}
func (n *VarDecl) stmt()  {}
func (n *ExprStmt) stmt() {}
func (n *If) stmt()       {}
func (n *While) stmt()    {}
func (n *For) stmt()      {}
func (n *Return) stmt()   {}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// Decl is a top-level declaration: *FuncDecl, *ClassDecl or *VarDecl.
type Decl interface {
	Node
	decl() // marker method
}

// ParamDecl is a function parameter.
type ParamDecl struct {
	Position Position
	Type     TypeRef
	Name     string
}

// FuncDecl represents a function or method definition.
type FuncDecl struct {
	Position   Position
	ReturnType TypeRef
	Name       string
	Params     []ParamDecl
	Body       *Block
}

// FieldDecl represents a class field.
type FieldDecl struct {
	Position Position
	Type     TypeRef
	Name     string
}

// ClassDecl represents a class definition.
type ClassDecl struct {
	Position Position
	Name     string
	Fields   []FieldDecl
	Methods  []*FuncDecl
}

func (n *FuncDecl) Pos() Position  { return n.Position }
func (n *ClassDecl) Pos() Position { return n.Position }

func (n *FuncDecl) node()  {}
func (n *ClassDecl) node() {}

func (n *FuncDecl) decl()  {}
func (n *ClassDecl) decl() {}
func (n *VarDecl) decl()   {}

// Program is the root of a parsed source file.
type Program struct {
	Decls []Decl
}
