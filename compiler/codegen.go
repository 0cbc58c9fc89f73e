package compiler

import (
	"errors"
	"math"

	"github.com/hashicorp/go-multierror"
	"github.com/tliron/commonlog"

	"github.com/chazu/sprig/bytecode"
)

// ---------------------------------------------------------------------------
// Codegen: Lower the AST to bytecode
// ---------------------------------------------------------------------------

var log = commonlog.GetLogger("sprig.compiler")

const (
	// GlobalInitFunctionName names the synthesised global initialiser.
	GlobalInitFunctionName = "$init"

	// EntryFunctionName names the function Run starts in.
	EntryFunctionName = "main"
)

// Option configures a Generator.
type Option func(*Generator)

// WithLegacyTernary makes cond ? a : b evaluate cond a second time on the
// taken path instead of a. Older bytecode artifacts were produced this way.
func WithLegacyTernary(on bool) Option {
	return func(g *Generator) {
		g.legacyTernary = on
	}
}

// Generator lowers a parsed program to bytecode in one walk.
type Generator struct {
	legacyTernary bool

	prog    *bytecode.Program
	types   *TypeResolver
	funcs   map[string]int // free function name -> function id
	globals map[string]int // global name -> global index
	errs    *multierror.Error

	cur *funcState
}

// funcState is the per-function generation context.
type funcState struct {
	fn         *bytecode.Function
	b          *bytecode.Builder
	slots      *LocalSlotManager
	localTypes map[int]*bytecode.Type
	class      *bytecode.Class // receiver class for methods
}

type pendingBody struct {
	decl  *FuncDecl
	fn    *bytecode.Function
	class *bytecode.Class
}

// NewGenerator creates a generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate lowers prog to bytecode. Every diagnostic found is returned
// together; when there is any, no program is returned.
func Generate(prog *Program, opts ...Option) (*bytecode.Program, error) {
	return NewGenerator(opts...).Generate(prog)
}

// Compile parses and generates source in one step.
func Compile(source string, opts ...Option) (*bytecode.Program, error) {
	prog, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return Generate(prog, opts...)
}

// errorf records a diagnostic at pos.
func (g *Generator) errorf(pos Position, format string, args ...any) {
	g.errs = multierror.Append(g.errs, errorAt(pos, format, args...))
}

// Generate lowers root to a new program.
func (g *Generator) Generate(root *Program) (*bytecode.Program, error) {
	g.prog = bytecode.NewProgram()
	g.types = NewTypeResolver(g.prog)
	g.funcs = make(map[string]int)
	g.globals = make(map[string]int)
	g.errs = nil
	g.cur = nil

	for _, name := range primitiveTypes {
		g.types.MustPrimitive(name)
	}

	classes := g.declareClasses(root)
	bodies := g.declareFunctions(root, classes)
	globals := g.declareGlobals(root)

	var init *bytecode.Function
	if len(globals) > 0 {
		init = &bytecode.Function{
			ID:         len(g.prog.Functions),
			Name:       GlobalInitFunctionName,
			ReturnType: g.types.MustPrimitive(bytecode.TypeNameVoid),
			ClassID:    bytecode.NoID,
		}
		g.prog.Functions = append(g.prog.Functions, init)
		g.prog.GlobalInitFunctionID = init.ID
	}

	for _, body := range bodies {
		g.genFunction(body)
	}
	if init != nil {
		g.genGlobalInit(init, globals)
	}

	for _, body := range bodies {
		if body.class == nil && body.decl.Name == EntryFunctionName {
			if len(body.fn.Params) != 0 {
				g.errorf(body.decl.Position, "%s must not take parameters", EntryFunctionName)
			}
			g.prog.EntryFunctionID = body.fn.ID
		}
	}

	if err := g.errs.ErrorOrNil(); err != nil {
		log.Debugf("generation failed with %d errors", len(g.errs.Errors))
		return nil, err
	}
	log.Debugf("generated %d functions, %d classes, %d types, %d constants",
		len(g.prog.Functions), len(g.prog.Classes), len(g.prog.Types), len(g.prog.Constants))
	return g.prog, nil
}

// ---------------------------------------------------------------------------
// Declaration hoisting
// ---------------------------------------------------------------------------

func (g *Generator) declareClasses(root *Program) map[*ClassDecl]*bytecode.Class {
	classes := make(map[*ClassDecl]*bytecode.Class)
	var order []*ClassDecl
	for _, d := range root.Decls {
		cd, ok := d.(*ClassDecl)
		if !ok {
			continue
		}
		if isPrimitiveName(cd.Name) {
			g.errorf(cd.Position, "class name %s is reserved", cd.Name)
			continue
		}
		if _, dup := g.prog.ClassByName(cd.Name); dup {
			g.errorf(cd.Position, "duplicate class %s", cd.Name)
			continue
		}
		c := bytecode.NewClass(len(g.prog.Classes), cd.Name)
		g.prog.Classes = append(g.prog.Classes, c)
		classes[cd] = c
		order = append(order, cd)
	}

	// Fields are resolved once every class name is known so that classes
	// can refer to each other in either order.
	for _, cd := range order {
		c := classes[cd]
		for _, f := range cd.Fields {
			t := g.resolveType(f.Type)
			if t == nil {
				continue
			}
			if t.IsPrimitive(bytecode.TypeNameVoid) {
				g.errorf(f.Position, "field %s.%s cannot be void", c.Name, f.Name)
				continue
			}
			if _, err := c.AddField(f.Name, t); err != nil {
				g.errorf(f.Position, "%v", err)
			}
		}
	}
	return classes
}

func (g *Generator) declareFunctions(root *Program, classes map[*ClassDecl]*bytecode.Class) []pendingBody {
	var bodies []pendingBody
	for _, d := range root.Decls {
		switch d := d.(type) {
		case *FuncDecl:
			if _, dup := g.funcs[d.Name]; dup {
				g.errorf(d.Position, "duplicate function %s", d.Name)
				continue
			}
			fn := g.declareFunction(d.Name, d, nil)
			g.funcs[d.Name] = fn.ID
			bodies = append(bodies, pendingBody{decl: d, fn: fn})

		case *ClassDecl:
			c, ok := classes[d]
			if !ok {
				continue
			}
			for _, m := range d.Methods {
				if _, dup := c.Methods[m.Name]; dup {
					g.errorf(m.Position, "duplicate method %s.%s", c.Name, m.Name)
					continue
				}
				if _, clash := c.Field(m.Name); clash {
					g.errorf(m.Position, "method %s.%s conflicts with a field", c.Name, m.Name)
					continue
				}
				fn := g.declareFunction(c.Name+"."+m.Name, m, c)
				c.Methods[m.Name] = fn.ID
				bodies = append(bodies, pendingBody{decl: m, fn: fn, class: c})
			}
		}
	}
	return bodies
}

// declareFunction appends a function signature. Methods get an implicit
// first parameter "this".
func (g *Generator) declareFunction(name string, d *FuncDecl, class *bytecode.Class) *bytecode.Function {
	fn := &bytecode.Function{
		ID:         len(g.prog.Functions),
		Name:       name,
		ReturnType: g.resolveType(d.ReturnType),
		ClassID:    bytecode.NoID,
	}
	if class != nil {
		fn.ClassID = class.ID
		fn.Params = append(fn.Params, bytecode.Param{Name: "this", Type: g.classType(class)})
	}
	for _, p := range d.Params {
		t := g.resolveType(p.Type)
		if t.IsPrimitive(bytecode.TypeNameVoid) {
			g.errorf(p.Position, "parameter %s cannot be void", p.Name)
		}
		fn.Params = append(fn.Params, bytecode.Param{Name: p.Name, Type: t})
	}
	g.prog.Functions = append(g.prog.Functions, fn)
	return fn
}

func (g *Generator) declareGlobals(root *Program) []*VarDecl {
	var globals []*VarDecl
	for _, d := range root.Decls {
		vd, ok := d.(*VarDecl)
		if !ok {
			continue
		}
		if _, dup := g.globals[vd.Name]; dup {
			g.errorf(vd.Position, "duplicate global %s", vd.Name)
			continue
		}
		t := g.resolveType(vd.Type)
		if t.IsPrimitive(bytecode.TypeNameVoid) {
			g.errorf(vd.Position, "variable %s cannot be void", vd.Name)
		}
		g.globals[vd.Name] = len(g.prog.Globals)
		g.prog.Globals = append(g.prog.Globals, bytecode.Global{Name: vd.Name, Type: t})
		globals = append(globals, vd)
	}
	return globals
}

// resolveType resolves a written type, recording an error on failure.
func (g *Generator) resolveType(ref TypeRef) *bytecode.Type {
	t, err := g.types.Resolve(ref.Name)
	if err != nil {
		g.errorf(ref.Position, "%v", err)
		return nil
	}
	return t
}

func (g *Generator) classType(c *bytecode.Class) *bytecode.Type {
	t, err := g.types.Resolve(c.Name)
	if err != nil {
		panic(err)
	}
	return t
}

func (g *Generator) primitive(name string) *bytecode.Type {
	return g.types.MustPrimitive(name)
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func (g *Generator) enter(fn *bytecode.Function, class *bytecode.Class) {
	g.cur = &funcState{
		fn:         fn,
		b:          bytecode.NewBuilder(fn),
		slots:      NewLocalSlotManager(),
		localTypes: make(map[int]*bytecode.Type),
		class:      class,
	}
}

func (g *Generator) genFunction(body pendingBody) {
	g.enter(body.fn, body.class)

	offset := len(body.fn.Params) - len(body.decl.Params)
	for i, p := range body.fn.Params {
		pos := body.decl.Position
		if i >= offset {
			pos = body.decl.Params[i-offset].Position
		}
		g.declareLocal(pos, p.Name, p.Type)
	}

	g.genBlock(body.decl.Body)
	g.cur.b.Emit(bytecode.OpReturnVoid)
	g.cur = nil
}

func (g *Generator) genGlobalInit(fn *bytecode.Function, globals []*VarDecl) {
	g.enter(fn, nil)
	for _, vd := range globals {
		idx := g.globals[vd.Name]
		t := g.prog.Globals[idx].Type
		g.genInitialValue(vd, t)
		g.cur.b.Emit(bytecode.OpStoreGlobal, idx)
	}
	g.cur.b.Emit(bytecode.OpReturnVoid)
	g.cur = nil
}

// declareLocal binds name in the current scope.
func (g *Generator) declareLocal(pos Position, name string, t *bytecode.Type) (int, bool) {
	slot, err := g.cur.slots.Declare(name)
	if err != nil {
		g.errorf(pos, "%v", err)
		return 0, false
	}
	g.cur.localTypes[slot] = t
	g.cur.fn.Locals = append(g.cur.fn.Locals, bytecode.Local{Name: name, Slot: slot, Type: t})
	return slot, true
}

// scratch reserves an unnamed local of type t.
func (g *Generator) scratch(t *bytecode.Type) int {
	slot := g.cur.slots.Reserve()
	g.cur.localTypes[slot] = t
	g.cur.fn.Locals = append(g.cur.fn.Locals, bytecode.Local{Name: "$tmp", Slot: slot, Type: t})
	return slot
}

// genInitialValue pushes a variable's initializer, or its zero value.
func (g *Generator) genInitialValue(vd *VarDecl, t *bytecode.Type) {
	if vd.Init != nil {
		src := g.genValue(vd.Init)
		g.coerce(vd.Init.Pos(), src, t, "initialization of "+vd.Name)
		return
	}
	g.genZero(t)
}

// genZero pushes the zero value of t.
func (g *Generator) genZero(t *bytecode.Type) {
	b := g.cur.b
	if t == nil || t.Kind != bytecode.TypePrimitive {
		b.Emit(bytecode.OpPushNull)
		return
	}
	switch t.Name {
	case bytecode.TypeNameInt:
		b.Emit(bytecode.OpPush, g.prog.AddConstant(int32(0)))
	case bytecode.TypeNameLong:
		// Constants that fit in 32 bits load as int, so widen explicitly.
		b.Emit(bytecode.OpPush, g.prog.AddConstant(int32(0)))
		b.Emit(bytecode.OpConvert, t.ID)
	case bytecode.TypeNameDouble:
		b.Emit(bytecode.OpPush, g.prog.AddConstant(float64(0)))
	case bytecode.TypeNameBool:
		b.Emit(bytecode.OpPush, g.prog.AddConstant(false))
	case bytecode.TypeNameChar:
		b.Emit(bytecode.OpPushChar, 0)
	default:
		b.Emit(bytecode.OpPushNull)
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (g *Generator) genBlock(block *Block) {
	g.cur.slots.PushScope()
	for _, stmt := range block.Statements {
		g.genStmt(stmt)
	}
	g.cur.slots.PopScope()
}

func (g *Generator) genStmt(stmt Stmt) {
	b := g.cur.b
	switch s := stmt.(type) {
	case *Block:
		g.genBlock(s)

	case *VarDecl:
		t := g.resolveType(s.Type)
		if t.IsPrimitive(bytecode.TypeNameVoid) {
			g.errorf(s.Position, "variable %s cannot be void", s.Name)
		}
		g.genInitialValue(s, t)
		if slot, ok := g.declareLocal(s.Position, s.Name, t); ok {
			b.Emit(bytecode.OpStoreLocal, slot)
		}

	case *ExprStmt:
		t := g.genExpr(s.Expr)
		if t != nil && !t.IsPrimitive(bytecode.TypeNameVoid) {
			b.Emit(bytecode.OpPop)
		}

	case *If:
		g.genCondition(s.Cond)
		toElse := b.EmitJump(bytecode.OpJumpIfFalse)
		g.genStmt(s.Then)
		if s.Else == nil {
			g.patch(toElse)
			return
		}
		toEnd := b.EmitJump(bytecode.OpJump)
		g.patch(toElse)
		g.genStmt(s.Else)
		g.patch(toEnd)

	case *While:
		loopStart := b.Len()
		g.genCondition(s.Cond)
		exit := b.EmitJump(bytecode.OpJumpIfFalse)
		g.genStmt(s.Body)
		b.EmitJumpTo(bytecode.OpJump, loopStart)
		g.patch(exit)

	case *For:
		g.cur.slots.PushScope()
		if s.Init != nil {
			g.genStmt(s.Init)
		}
		loopStart := b.Len()
		var exit *bytecode.Placeholder
		if s.Cond != nil {
			g.genCondition(s.Cond)
			p := b.EmitJump(bytecode.OpJumpIfFalse)
			exit = &p
		}
		g.genStmt(s.Body)
		if s.Post != nil {
			if t := g.genExpr(s.Post); t != nil && !t.IsPrimitive(bytecode.TypeNameVoid) {
				b.Emit(bytecode.OpPop)
			}
		}
		b.EmitJumpTo(bytecode.OpJump, loopStart)
		if exit != nil {
			g.patch(*exit)
		}
		g.cur.slots.PopScope()

	case *Return:
		ret := g.cur.fn.ReturnType
		isVoid := ret.IsPrimitive(bytecode.TypeNameVoid)
		if s.Value == nil {
			if ret != nil && !isVoid {
				g.errorf(s.Position, "missing return value in %s", g.cur.fn.Name)
			}
			b.Emit(bytecode.OpReturnVoid)
			return
		}
		if isVoid {
			g.errorf(s.Position, "%s returns no value", g.cur.fn.Name)
		}
		src := g.genValue(s.Value)
		g.coerce(s.Value.Pos(), src, ret, "return")
		b.Emit(bytecode.OpReturn)

	default:
		g.errorf(stmt.Pos(), "unsupported statement %T", stmt)
	}
}

func (g *Generator) patch(p bytecode.Placeholder) {
	if err := g.cur.b.PatchHere(p); err != nil {
		panic(err)
	}
}

func (g *Generator) genCondition(e Expr) {
	t := g.genValue(e)
	if t != nil && !t.IsPrimitive(bytecode.TypeNameBool) {
		g.errorf(e.Pos(), "condition must be bool, not %s", t)
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// genValue lowers an expression that must produce a value.
func (g *Generator) genValue(e Expr) *bytecode.Type {
	t := g.genExpr(e)
	if t.IsPrimitive(bytecode.TypeNameVoid) {
		g.errorf(e.Pos(), "void value used as an expression")
		return nil
	}
	return t
}

// genExpr lowers an expression and returns its static type, or nil after
// an error has been recorded.
func (g *Generator) genExpr(e Expr) *bytecode.Type {
	b := g.cur.b
	switch n := e.(type) {
	case *IntLiteral:
		if n.Value >= math.MinInt32 && n.Value <= math.MaxInt32 {
			b.Emit(bytecode.OpPush, g.prog.AddConstant(int32(n.Value)))
			return g.primitive(bytecode.TypeNameInt)
		}
		b.Emit(bytecode.OpPush, g.prog.AddConstant(n.Value))
		return g.primitive(bytecode.TypeNameLong)

	case *FloatLiteral:
		b.Emit(bytecode.OpPush, g.prog.AddConstant(n.Value))
		return g.primitive(bytecode.TypeNameDouble)

	case *StringLiteral:
		b.Emit(bytecode.OpPush, g.prog.AddConstant(n.Value))
		return g.primitive(bytecode.TypeNameString)

	case *BoolLiteral:
		b.Emit(bytecode.OpPush, g.prog.AddConstant(n.Value))
		return g.primitive(bytecode.TypeNameBool)

	case *CharLiteral:
		b.Emit(bytecode.OpPushChar, int(n.Value))
		return g.primitive(bytecode.TypeNameChar)

	case *NullLiteral:
		b.Emit(bytecode.OpPushNull)
		return g.primitive(bytecode.TypeNameNull)

	case *This:
		if g.cur.class == nil {
			g.errorf(n.Position, "this used outside a method")
			return nil
		}
		b.Emit(bytecode.OpLoadLocal, 0)
		return g.cur.localTypes[0]

	case *Identifier:
		if slot, ok := g.cur.slots.Resolve(n.Name); ok {
			b.Emit(bytecode.OpLoadLocal, slot)
			return g.cur.localTypes[slot]
		}
		if idx, ok := g.globals[n.Name]; ok {
			b.Emit(bytecode.OpLoadGlobal, idx)
			return g.prog.Globals[idx].Type
		}
		g.errorf(n.Position, "undeclared identifier %s", n.Name)
		return nil

	case *Unary:
		return g.genUnary(n)
	case *Binary:
		return g.genBinary(n)
	case *Assign:
		return g.genAssign(n)
	case *Ternary:
		return g.genTernary(n)
	case *Call:
		return g.genCall(n)
	case *Member:
		return g.genMember(n)

	case *Index:
		at := g.genValue(n.Array)
		g.genIndexValue(n.Index)
		elem := g.elementType(n.Array.Pos(), at)
		b.Emit(bytecode.OpLoadElem, typeID(elem))
		return elem

	case *NewObject:
		c, ok := g.prog.ClassByName(n.Class)
		if !ok {
			g.errorf(n.Position, "unknown class %s", n.Class)
			return nil
		}
		b.Emit(bytecode.OpNewObject, c.ID)
		return g.classType(c)

	case *NewArray:
		elem := g.resolveType(n.Element)
		if elem.IsPrimitive(bytecode.TypeNameVoid) {
			g.errorf(n.Position, "invalid array element type void")
			return nil
		}
		g.genIndexValue(n.Length)
		b.Emit(bytecode.OpNewArray, typeID(elem))
		if elem == nil {
			return nil
		}
		return g.types.ArrayOf(elem)
	}

	g.errorf(e.Pos(), "unsupported expression %T", e)
	return nil
}

func (g *Generator) genUnary(n *Unary) *bytecode.Type {
	t := g.genValue(n.Operand)
	if t == nil {
		return nil
	}
	switch n.Op {
	case "-":
		if !t.IsNumeric() {
			g.errorf(n.Position, "operator - not defined on %s", t)
			return nil
		}
		g.cur.b.Emit(bytecode.OpNeg)
		return g.widen(t, t)
	case "!":
		if !t.IsPrimitive(bytecode.TypeNameBool) {
			g.errorf(n.Position, "operator ! not defined on %s", t)
			return nil
		}
		g.cur.b.Emit(bytecode.OpNot)
		return t
	}
	g.errorf(n.Position, "unsupported unary operator %s", n.Op)
	return nil
}

var arithmeticOps = map[string]bytecode.Opcode{
	"+": bytecode.OpAdd,
	"-": bytecode.OpSub,
	"*": bytecode.OpMul,
	"/": bytecode.OpDiv,
	"%": bytecode.OpMod,
}

var comparisonOps = map[string]bytecode.Opcode{
	"<":  bytecode.OpLt,
	"<=": bytecode.OpLe,
	">":  bytecode.OpGt,
	">=": bytecode.OpGe,
}

func (g *Generator) genBinary(n *Binary) *bytecode.Type {
	b := g.cur.b
	boolType := g.primitive(bytecode.TypeNameBool)

	if n.Op == "&&" || n.Op == "||" {
		g.genCondition(n.Left)
		b.Emit(bytecode.OpDup)
		jump := bytecode.OpJumpIfFalse
		if n.Op == "||" {
			jump = bytecode.OpJumpIfTrue
		}
		end := b.EmitJump(jump)
		b.Emit(bytecode.OpPop)
		g.genCondition(n.Right)
		g.patch(end)
		return boolType
	}

	lt := g.genValue(n.Left)
	rt := g.genValue(n.Right)
	if lt == nil || rt == nil {
		return nil
	}

	if n.Op == "+" && (isString(lt) || isString(rt)) {
		if !isString(lt) {
			b.Emit(bytecode.OpSwap)
			b.Emit(bytecode.OpToString, lt.ID)
			b.Emit(bytecode.OpSwap)
		}
		if !isString(rt) {
			b.Emit(bytecode.OpToString, rt.ID)
		}
		b.Emit(bytecode.OpConcat)
		return g.primitive(bytecode.TypeNameString)
	}

	if op, ok := arithmeticOps[n.Op]; ok {
		if !lt.IsNumeric() || !rt.IsNumeric() {
			g.errorf(n.Position, "operator %s not defined on %s and %s", n.Op, lt, rt)
			return nil
		}
		b.Emit(op)
		return g.widen(lt, rt)
	}

	if op, ok := comparisonOps[n.Op]; ok {
		if !lt.IsNumeric() || !rt.IsNumeric() {
			g.errorf(n.Position, "operator %s not defined on %s and %s", n.Op, lt, rt)
			return nil
		}
		b.Emit(op)
		return boolType
	}

	if n.Op == "==" || n.Op == "!=" {
		if !comparable(lt, rt) {
			g.errorf(n.Position, "cannot compare %s and %s", lt, rt)
			return nil
		}
		if n.Op == "==" {
			b.Emit(bytecode.OpEq)
		} else {
			b.Emit(bytecode.OpNe)
		}
		return boolType
	}

	g.errorf(n.Position, "unsupported binary operator %s", n.Op)
	return nil
}

// genAssign lowers target = value. The stored value stays on the stack as
// the result of the expression.
func (g *Generator) genAssign(n *Assign) *bytecode.Type {
	b := g.cur.b
	switch target := n.Target.(type) {
	case *Identifier:
		var dst *bytecode.Type
		store := func() {}
		if slot, ok := g.cur.slots.Resolve(target.Name); ok {
			dst = g.cur.localTypes[slot]
			store = func() { b.Emit(bytecode.OpStoreLocal, slot) }
		} else if idx, ok := g.globals[target.Name]; ok {
			dst = g.prog.Globals[idx].Type
			store = func() { b.Emit(bytecode.OpStoreGlobal, idx) }
		} else {
			g.errorf(target.Position, "undeclared identifier %s", target.Name)
		}
		src := g.genValue(n.Value)
		g.coerce(n.Value.Pos(), src, dst, "assignment to "+target.Name)
		b.Emit(bytecode.OpDup)
		store()
		return dst

	case *Member:
		// obj value DUP ROT SWAP STORE_FIELD leaves the stored value behind.
		rt := g.genValue(target.Object)
		field, ok := g.lookupField(target, rt)
		src := g.genValue(n.Value)
		if !ok {
			return nil
		}
		g.coerce(n.Value.Pos(), src, field.Type, "assignment to "+target.Name)
		b.Emit(bytecode.OpDup)
		b.Emit(bytecode.OpRot)
		b.Emit(bytecode.OpSwap)
		b.Emit(bytecode.OpStoreField, field.ID)
		return field.Type

	case *Index:
		// arr idx value DUP STORE_LOCAL tmp STORE_ELEM LOAD_LOCAL tmp.
		at := g.genValue(target.Array)
		g.genIndexValue(target.Index)
		src := g.genValue(n.Value)
		if isString(at) {
			g.errorf(target.Position, "strings are immutable")
			return nil
		}
		elem := g.elementType(target.Array.Pos(), at)
		if elem == nil {
			return nil
		}
		g.coerce(n.Value.Pos(), src, elem, "array element assignment")
		tmp := g.scratch(elem)
		b.Emit(bytecode.OpDup)
		b.Emit(bytecode.OpStoreLocal, tmp)
		b.Emit(bytecode.OpStoreElem, typeID(elem))
		b.Emit(bytecode.OpLoadLocal, tmp)
		return elem
	}

	g.errorf(n.Position, "unsupported assignment target %T", n.Target)
	return nil
}

// genTernary lowers cond ? then : else.
func (g *Generator) genTernary(n *Ternary) *bytecode.Type {
	b := g.cur.b
	g.genCondition(n.Cond)
	toElse := b.EmitJump(bytecode.OpJumpIfFalse)

	var result *bytecode.Type
	if g.legacyTernary {
		g.genCondition(n.Cond)
	} else {
		result = g.genValue(n.Then)
	}
	toEnd := b.EmitJump(bytecode.OpJump)
	g.patch(toElse)
	elseType := g.genValue(n.Else)

	switch {
	case g.legacyTernary:
		result = elseType
	case result != nil && result.IsPrimitive(bytecode.TypeNameNull) && elseType.IsReference():
		result = elseType
	default:
		g.coerce(n.Else.Pos(), elseType, result, "conditional expression")
	}
	g.patch(toEnd)
	return result
}

func (g *Generator) genCall(n *Call) *bytecode.Type {
	b := g.cur.b
	switch callee := n.Callee.(type) {
	case *Identifier:
		if id, ok := g.funcs[callee.Name]; ok {
			fn := g.prog.Functions[id]
			g.genArgs(n, fn.Name, fn.Params)
			b.Emit(bytecode.OpCall, id, len(n.Args))
			return fn.ReturnType
		}
		if native, ok := bytecode.NativeByName(callee.Name); ok {
			return g.genNativeCall(n, native)
		}
		g.errorf(callee.Position, "unknown function %s", callee.Name)
		return nil

	case *Member:
		rt := g.genValue(callee.Object)
		if rt == nil {
			return nil
		}
		if rt.Kind != bytecode.TypeClass {
			g.errorf(n.Position, "invalid call target: %s has no methods", rt)
			return nil
		}
		c, _ := g.prog.Class(rt.ClassID)
		id, ok := c.Methods[callee.Name]
		if !ok {
			if _, isField := c.Field(callee.Name); isField {
				g.errorf(callee.Position, "field %s.%s is not callable", c.Name, callee.Name)
			} else {
				g.errorf(callee.Position, "unknown method %s.%s", c.Name, callee.Name)
			}
			return nil
		}
		fn := g.prog.Functions[id]
		g.genArgs(n, fn.Name, fn.Params[1:])
		b.Emit(bytecode.OpCall, id, len(n.Args)+1)
		return fn.ReturnType
	}

	g.errorf(n.Position, "invalid call target")
	return nil
}

func (g *Generator) genArgs(n *Call, name string, params []bytecode.Param) {
	if len(n.Args) != len(params) {
		g.errorf(n.Position, "%s takes %d arguments, not %d", name, len(params), len(n.Args))
	}
	for i, arg := range n.Args {
		t := g.genValue(arg)
		if i < len(params) {
			g.coerce(arg.Pos(), t, params[i].Type, "argument to "+name)
		}
	}
}

func (g *Generator) genNativeCall(n *Call, native bytecode.NativeSignature) *bytecode.Type {
	b := g.cur.b
	if native.ID == bytecode.NativePrint {
		if len(n.Args) != 1 {
			g.errorf(n.Position, "print takes 1 argument, not %d", len(n.Args))
			return nil
		}
		if t := g.genValue(n.Args[0]); t != nil && !isString(t) {
			b.Emit(bytecode.OpToString, t.ID)
		}
	} else {
		params := make([]bytecode.Param, len(native.Params))
		for i, name := range native.Params {
			params[i] = bytecode.Param{Name: name, Type: g.primitive(name)}
		}
		g.genArgs(n, native.Name, params)
	}
	b.Emit(bytecode.OpCallNative, native.ID, len(n.Args))
	return g.primitive(native.Return)
}

func (g *Generator) genMember(n *Member) *bytecode.Type {
	rt := g.genValue(n.Object)
	if rt == nil {
		return nil
	}
	if n.Name == "length" && (rt.Kind == bytecode.TypeArray || isString(rt)) {
		g.cur.b.Emit(bytecode.OpArrayLength)
		return g.primitive(bytecode.TypeNameInt)
	}
	field, ok := g.lookupField(n, rt)
	if !ok {
		return nil
	}
	g.cur.b.Emit(bytecode.OpLoadField, field.ID)
	return field.Type
}

// lookupField resolves n.Name against the receiver type, fields first.
func (g *Generator) lookupField(n *Member, rt *bytecode.Type) (bytecode.Field, bool) {
	if rt == nil {
		return bytecode.Field{}, false
	}
	if rt.Kind != bytecode.TypeClass {
		g.errorf(n.Position, "cannot access member %s on %s", n.Name, rt)
		return bytecode.Field{}, false
	}
	c, _ := g.prog.Class(rt.ClassID)
	if f, ok := c.Field(n.Name); ok {
		return f, true
	}
	if _, ok := c.Methods[n.Name]; ok {
		g.errorf(n.Position, "method %s.%s used as a value", c.Name, n.Name)
	} else {
		g.errorf(n.Position, "unknown member %s.%s", c.Name, n.Name)
	}
	return bytecode.Field{}, false
}

// genIndexValue lowers an array index or length, which must be integral.
func (g *Generator) genIndexValue(e Expr) {
	t := g.genValue(e)
	if t != nil && !isIntegral(t) {
		g.errorf(e.Pos(), "index must be an integer, not %s", t)
	}
}

func (g *Generator) elementType(pos Position, t *bytecode.Type) *bytecode.Type {
	switch {
	case t == nil:
		return nil
	case t.Kind == bytecode.TypeArray:
		return t.Element
	case isString(t):
		return g.primitive(bytecode.TypeNameChar)
	}
	g.errorf(pos, "cannot index %s", t)
	return nil
}

// coerce converts the value on top of the stack from src to dst, or
// records an error when no implicit conversion exists.
func (g *Generator) coerce(pos Position, src, dst *bytecode.Type, what string) {
	if src == nil || dst == nil || src.ID == dst.ID {
		return
	}
	if src.IsNumeric() && dst.IsNumeric() {
		g.cur.b.Emit(bytecode.OpConvert, dst.ID)
		return
	}
	if src.IsPrimitive(bytecode.TypeNameNull) && dst.IsReference() {
		return
	}
	g.errorf(pos, "cannot use %s as %s in %s", src, dst, what)
}

// widen returns the arithmetic result type of a and b.
func (g *Generator) widen(a, b *bytecode.Type) *bytecode.Type {
	rank := func(t *bytecode.Type) int {
		switch t.Name {
		case bytecode.TypeNameDouble:
			return 2
		case bytecode.TypeNameLong:
			return 1
		}
		return 0
	}
	switch max(rank(a), rank(b)) {
	case 2:
		return g.primitive(bytecode.TypeNameDouble)
	case 1:
		return g.primitive(bytecode.TypeNameLong)
	}
	return g.primitive(bytecode.TypeNameInt)
}

func comparable(a, b *bytecode.Type) bool {
	switch {
	case a.IsNumeric() && b.IsNumeric():
		return true
	case a.IsPrimitive(bytecode.TypeNameBool) && b.IsPrimitive(bytecode.TypeNameBool):
		return true
	case a.IsReference() && b.IsReference():
		return a.ID == b.ID ||
			a.IsPrimitive(bytecode.TypeNameNull) ||
			b.IsPrimitive(bytecode.TypeNameNull)
	}
	return false
}

func isString(t *bytecode.Type) bool {
	return t.IsPrimitive(bytecode.TypeNameString)
}

func isIntegral(t *bytecode.Type) bool {
	return t.IsPrimitive(bytecode.TypeNameInt) ||
		t.IsPrimitive(bytecode.TypeNameLong) ||
		t.IsPrimitive(bytecode.TypeNameChar)
}

func typeID(t *bytecode.Type) int {
	if t == nil {
		return 0
	}
	return t.ID
}

// Diagnostics flattens an error from Parse, Generate or Compile into its
// positioned diagnostics.
func Diagnostics(err error) []*Error {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		out := make([]*Error, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			out = append(out, asError(e))
		}
		return out
	}
	return []*Error{asError(err)}
}

func asError(err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Msg: err.Error()}
}
