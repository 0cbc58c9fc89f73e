package vm

import (
	"context"
	"fmt"
	"iter"
	"math"

	"github.com/tliron/commonlog"

	"github.com/chazu/sprig/bytecode"
)

var interpLog = commonlog.GetLogger("sprig.interp")

// ---------------------------------------------------------------------------
// Frame: execution state of one function invocation
// ---------------------------------------------------------------------------

// Frame is the execution state of a single call.
type Frame struct {
	Function  *bytecode.Function
	IP        int     // next instruction
	Locals    []Value // parameters first
	stackBase int     // operand stack height on entry
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// DefaultMaxFrames bounds call depth.
const DefaultMaxFrames = 1024

// cancelCheckInterval is how many instructions run between context checks.
const cancelCheckInterval = 1024

// InterpreterOption configures an Interpreter.
type InterpreterOption func(*Interpreter)

// WithAutoCollect runs a collection before any allocation that would not
// fit in the heap.
func WithAutoCollect(on bool) InterpreterOption {
	return func(in *Interpreter) {
		in.autoCollect = on
	}
}

// WithMaxFrames bounds call depth. Deeper calls fail with ErrStackOverflow.
func WithMaxFrames(n int) InterpreterOption {
	return func(in *Interpreter) {
		in.maxFrames = n
	}
}

// ---------------------------------------------------------------------------
// Interpreter
// ---------------------------------------------------------------------------

// Interpreter executes a compiled program against a Runtime. It is also the
// root provider for that runtime's collector.
type Interpreter struct {
	prog    *bytecode.Program
	rt      *Runtime
	stack   []Value
	frames  []*Frame
	globals []Value
	kinds   []Kind // value kind per type id

	autoCollect bool
	maxFrames   int
	steps       uint64
	ctx         context.Context
}

// NewInterpreter validates prog, registers its class layouts with rt and
// zero-initialises globals.
func NewInterpreter(prog *bytecode.Program, rt *Runtime, opts ...InterpreterOption) (*Interpreter, error) {
	if err := bytecode.Validate(prog); err != nil {
		return nil, err
	}
	in := &Interpreter{
		prog:      prog,
		rt:        rt,
		maxFrames: DefaultMaxFrames,
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(in)
	}

	for _, c := range prog.Classes {
		rt.DefineClass(c.ID, c.ReferenceFields())
	}
	in.kinds = make([]Kind, len(prog.Types))
	for i, t := range prog.Types {
		in.kinds[i] = kindOf(t)
	}
	in.globals = make([]Value, len(prog.Globals))
	for i, g := range prog.Globals {
		in.globals[i] = zeroValue(g.Type)
	}
	return in, nil
}

// kindOf maps a static type to the kind its values carry at run time.
func kindOf(t *bytecode.Type) Kind {
	if t == nil {
		return KindNull
	}
	if t.Kind != bytecode.TypePrimitive {
		return KindObjectRef
	}
	switch t.Name {
	case bytecode.TypeNameInt:
		return KindInt32
	case bytecode.TypeNameLong:
		return KindInt64
	case bytecode.TypeNameDouble:
		return KindDouble
	case bytecode.TypeNameBool:
		return KindBool
	case bytecode.TypeNameChar:
		return KindChar
	case bytecode.TypeNameString:
		return KindObjectRef
	}
	return KindNull
}

func zeroValue(t *bytecode.Type) Value {
	return FromBits(kindOf(t), 0)
}

func isVoid(t *bytecode.Type) bool {
	return t == nil || t.IsPrimitive(bytecode.TypeNameVoid)
}

// Runtime returns the runtime the interpreter allocates in.
func (in *Interpreter) Runtime() *Runtime {
	return in.rt
}

// Steps returns how many instructions have executed.
func (in *Interpreter) Steps() uint64 {
	return in.steps
}

// Global returns the current value of a global by name.
func (in *Interpreter) Global(name string) (Value, bool) {
	for i, g := range in.prog.Globals {
		if g.Name == name {
			return in.globals[i], true
		}
	}
	return Null, false
}

// Run executes the global initialiser and then main.
func (in *Interpreter) Run() (Value, error) {
	return in.RunContext(context.Background())
}

// RunContext is Run with cancellation. The context is polled between
// instructions.
func (in *Interpreter) RunContext(ctx context.Context) (Value, error) {
	in.ctx = ctx
	defer func() { in.ctx = context.Background() }()

	if id := in.prog.GlobalInitFunctionID; id != bytecode.NoID {
		if _, err := in.Call(id); err != nil {
			return Null, err
		}
	}
	if in.prog.EntryFunctionID == bytecode.NoID {
		return Null, fmt.Errorf("%w: program has no main", ErrUnknownFunction)
	}
	interpLog.Debugf("runtime %s: running main", in.rt.ID())
	result, err := in.Call(in.prog.EntryFunctionID)
	interpLog.Debugf("runtime %s: main finished after %d steps", in.rt.ID(), in.steps)
	return result, err
}

// Call invokes function fnID with args and runs it to completion. Void
// functions return Null.
func (in *Interpreter) Call(fnID int, args ...Value) (Value, error) {
	fn, ok := in.prog.Function(fnID)
	if !ok {
		return Null, fmt.Errorf("%w: id %d", ErrUnknownFunction, fnID)
	}
	if len(args) != len(fn.Params) {
		return Null, fmt.Errorf("%w: %s takes %d arguments, not %d", ErrInvalidArgument, fn.Name, len(fn.Params), len(args))
	}

	base := len(in.stack)
	depth := len(in.frames)
	in.stack = append(in.stack, args...)
	if err := in.enter(fn, len(args)); err != nil {
		in.stack = in.stack[:base]
		return Null, err
	}
	if err := in.execute(depth); err != nil {
		in.frames = in.frames[:depth]
		in.stack = in.stack[:base]
		return Null, err
	}
	if isVoid(fn.ReturnType) {
		return Null, nil
	}
	return in.Pop()
}

// ---------------------------------------------------------------------------
// Operand stack (also the StackAccess natives see)
// ---------------------------------------------------------------------------

// Push implements StackAccess.
func (in *Interpreter) Push(v Value) error {
	in.stack = append(in.stack, v)
	return nil
}

// Pop implements StackAccess. A frame cannot pop below its own base.
func (in *Interpreter) Pop() (Value, error) {
	base := 0
	if n := len(in.frames); n > 0 {
		base = in.frames[n-1].stackBase
	}
	if len(in.stack) <= base {
		return Null, ErrStackUnderflow
	}
	v := in.stack[len(in.stack)-1]
	in.stack = in.stack[:len(in.stack)-1]
	return v, nil
}

func (in *Interpreter) peek(depth int) (Value, error) {
	base := 0
	if n := len(in.frames); n > 0 {
		base = in.frames[n-1].stackBase
	}
	i := len(in.stack) - 1 - depth
	if i < base {
		return Null, ErrStackUnderflow
	}
	return in.stack[i], nil
}

func (in *Interpreter) pop2() (a, b Value, err error) {
	if b, err = in.Pop(); err != nil {
		return
	}
	a, err = in.Pop()
	return
}

// EnumerateRoots implements RootProvider: the operand stack, every frame's
// locals and the globals.
func (in *Interpreter) EnumerateRoots() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		emit := func(vs []Value) bool {
			for _, v := range vs {
				if v.IsRef() && !yield(v.Address()) {
					return false
				}
			}
			return true
		}
		if !emit(in.stack) {
			return
		}
		for _, fr := range in.frames {
			if !emit(fr.Locals) {
				return
			}
		}
		emit(in.globals)
	}
}

// ensure makes room for size bytes by collecting once if auto-collect is
// on. The allocation itself reports ErrOutOfMemory if room is still short.
func (in *Interpreter) ensure(size int) error {
	if !in.autoCollect || in.rt.CanAllocate(size) {
		return nil
	}
	interpLog.Debugf("heap full, collecting before %d-byte allocation", size)
	_, err := in.rt.Collect(in)
	return err
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// enter pushes a frame for fn, moving its argc arguments off the stack
// into the first local slots.
func (in *Interpreter) enter(fn *bytecode.Function, argc int) error {
	if len(in.frames) >= in.maxFrames {
		return fmt.Errorf("%w: %d frames calling %s", ErrStackOverflow, len(in.frames), fn.Name)
	}
	if len(in.stack) < argc {
		return ErrStackUnderflow
	}
	locals := make([]Value, max(fn.NumSlots(), argc))
	args := in.stack[len(in.stack)-argc:]
	copy(locals, args)
	in.stack = in.stack[:len(in.stack)-argc]
	for _, l := range fn.Locals {
		if l.Slot >= argc {
			locals[l.Slot] = zeroValue(l.Type)
		}
	}
	in.frames = append(in.frames, &Frame{
		Function:  fn,
		Locals:    locals,
		stackBase: len(in.stack),
	})
	return nil
}

// leave pops the current frame. The result is pushed for the caller only
// when the function declares a return value.
func (in *Interpreter) leave(result Value) {
	fr := in.frames[len(in.frames)-1]
	in.frames = in.frames[:len(in.frames)-1]
	in.stack = in.stack[:fr.stackBase]
	if !isVoid(fr.Function.ReturnType) {
		in.stack = append(in.stack, result)
	}
}

// returnVoid leaves a frame without a result. Functions that declare a
// return value must produce one.
func (in *Interpreter) returnVoid(fr *Frame) error {
	if !isVoid(fr.Function.ReturnType) {
		return fmt.Errorf("%w: %s returns %s", ErrMissingReturn, fr.Function.Name, fr.Function.ReturnType.Name)
	}
	in.leave(Null)
	return nil
}

// ---------------------------------------------------------------------------
// Execution loop
// ---------------------------------------------------------------------------

// execute runs until the frame stack drops back to depth.
func (in *Interpreter) execute(depth int) error {
	for len(in.frames) > depth {
		fr := in.frames[len(in.frames)-1]
		code := fr.Function.Instructions
		if fr.IP >= len(code) {
			if err := in.returnVoid(fr); err != nil {
				return fmt.Errorf("%s@%d: %w", fr.Function.Name, fr.IP, err)
			}
			continue
		}
		ip := fr.IP
		inst := code[ip]
		fr.IP++

		in.steps++
		if in.steps%cancelCheckInterval == 0 {
			if err := in.ctx.Err(); err != nil {
				return err
			}
		}
		if err := in.step(fr, inst); err != nil {
			return fmt.Errorf("%s@%d %s: %w", fr.Function.Name, ip, inst.Op, err)
		}
	}
	return nil
}

func (in *Interpreter) step(fr *Frame, inst bytecode.Instruction) error {
	op0 := inst.Operand(0)

	switch inst.Op {
	case bytecode.OpNop:
		return nil

	// Stack
	case bytecode.OpPop:
		_, err := in.Pop()
		return err
	case bytecode.OpDup:
		v, err := in.peek(0)
		if err != nil {
			return err
		}
		return in.Push(v)
	case bytecode.OpSwap:
		a, b, err := in.pop2()
		if err != nil {
			return err
		}
		in.Push(b)
		return in.Push(a)
	case bytecode.OpRot:
		c, err := in.Pop()
		if err != nil {
			return err
		}
		a, b, err := in.pop2()
		if err != nil {
			return err
		}
		in.Push(b)
		in.Push(c)
		return in.Push(a)

	// Constants
	case bytecode.OpPush:
		v, err := in.constant(op0)
		if err != nil {
			return err
		}
		return in.Push(v)
	case bytecode.OpPushNull:
		return in.Push(Null)
	case bytecode.OpPushChar:
		return in.Push(Char(rune(op0)))

	// Variables
	case bytecode.OpLoadLocal:
		if op0 < 0 || op0 >= len(fr.Locals) {
			return fmt.Errorf("%w: local slot %d", ErrIndexOutOfBounds, op0)
		}
		return in.Push(fr.Locals[op0])
	case bytecode.OpStoreLocal:
		if op0 < 0 || op0 >= len(fr.Locals) {
			return fmt.Errorf("%w: local slot %d", ErrIndexOutOfBounds, op0)
		}
		v, err := in.Pop()
		if err != nil {
			return err
		}
		fr.Locals[op0] = v
		return nil
	case bytecode.OpLoadGlobal:
		if op0 < 0 || op0 >= len(in.globals) {
			return fmt.Errorf("%w: global %d", ErrIndexOutOfBounds, op0)
		}
		return in.Push(in.globals[op0])
	case bytecode.OpStoreGlobal:
		if op0 < 0 || op0 >= len(in.globals) {
			return fmt.Errorf("%w: global %d", ErrIndexOutOfBounds, op0)
		}
		v, err := in.Pop()
		if err != nil {
			return err
		}
		in.globals[op0] = v
		return nil

	// Objects and arrays
	case bytecode.OpNewObject:
		return in.newObject(op0)
	case bytecode.OpLoadField:
		obj, err := in.Pop()
		if err != nil {
			return err
		}
		kind, err := in.fieldKind(obj, op0)
		if err != nil {
			return err
		}
		v, err := in.rt.ReadField(obj, op0, kind)
		if err != nil {
			return err
		}
		return in.Push(v)
	case bytecode.OpStoreField:
		obj, v, err := in.pop2()
		if err != nil {
			return err
		}
		return in.rt.WriteField(obj, op0, v)
	case bytecode.OpNewArray:
		return in.newArray(op0)
	case bytecode.OpLoadElem:
		arr, idx, err := in.pop2()
		if err != nil {
			return err
		}
		v, err := in.rt.ReadArrayElement(arr, int(idx.AsInt64()), in.kinds[op0])
		if err != nil {
			return err
		}
		return in.Push(v)
	case bytecode.OpStoreElem:
		v, err := in.Pop()
		if err != nil {
			return err
		}
		arr, idx, err := in.pop2()
		if err != nil {
			return err
		}
		return in.rt.WriteArrayElement(arr, int(idx.AsInt64()), v)
	case bytecode.OpArrayLength:
		arr, err := in.Pop()
		if err != nil {
			return err
		}
		n, err := in.rt.ArrayLength(arr)
		if err != nil {
			return err
		}
		return in.Push(Int32(int32(n)))

	// Arithmetic and comparison
	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
		a, b, err := in.pop2()
		if err != nil {
			return err
		}
		v, err := arith(inst.Op, a, b)
		if err != nil {
			return err
		}
		return in.Push(v)
	case bytecode.OpNeg:
		a, err := in.Pop()
		if err != nil {
			return err
		}
		v, err := negate(a)
		if err != nil {
			return err
		}
		return in.Push(v)
	case bytecode.OpNot:
		a, err := in.Pop()
		if err != nil {
			return err
		}
		if a.Kind != KindBool {
			return fmt.Errorf("%w: ! on %s", ErrTypeMismatch, a.Kind)
		}
		return in.Push(Bool(!a.AsBool()))
	case bytecode.OpEq, bytecode.OpNe:
		a, b, err := in.pop2()
		if err != nil {
			return err
		}
		eq := equal(a, b)
		if inst.Op == bytecode.OpNe {
			eq = !eq
		}
		return in.Push(Bool(eq))
	case bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
		a, b, err := in.pop2()
		if err != nil {
			return err
		}
		v, err := compare(inst.Op, a, b)
		if err != nil {
			return err
		}
		return in.Push(v)

	// Conversions and strings
	case bytecode.OpConvert:
		a, err := in.Pop()
		if err != nil {
			return err
		}
		v, err := a.Convert(in.kinds[op0])
		if err != nil {
			return err
		}
		return in.Push(v)
	case bytecode.OpToString:
		return in.toString(op0)
	case bytecode.OpConcat:
		return in.concat()

	// Control flow
	case bytecode.OpJump:
		fr.IP = op0
		return nil
	case bytecode.OpJumpIfFalse, bytecode.OpJumpIfTrue:
		c, err := in.Pop()
		if err != nil {
			return err
		}
		if c.AsBool() == (inst.Op == bytecode.OpJumpIfTrue) {
			fr.IP = op0
		}
		return nil

	// Calls
	case bytecode.OpCall:
		fn, ok := in.prog.Function(op0)
		if !ok {
			return fmt.Errorf("%w: id %d", ErrUnknownFunction, op0)
		}
		return in.enter(fn, inst.Operand(1))
	case bytecode.OpCallNative:
		return in.rt.InvokeNative(op0, in)
	case bytecode.OpReturn:
		v, err := in.Pop()
		if err != nil {
			return err
		}
		in.leave(v)
		return nil
	case bytecode.OpReturnVoid:
		return in.returnVoid(fr)
	}
	return fmt.Errorf("unknown opcode %#x", byte(inst.Op))
}

// ---------------------------------------------------------------------------
// Allocating instructions
// ---------------------------------------------------------------------------

// constant materialises constant-pool entry k. Strings are allocated fresh
// on every push.
func (in *Interpreter) constant(k int) (Value, error) {
	if k < 0 || k >= len(in.prog.Constants) {
		return Null, fmt.Errorf("%w: constant %d", ErrIndexOutOfBounds, k)
	}
	c := in.prog.Constants[k]
	if s, ok := c.(string); ok {
		if err := in.ensure(ArrayAllocationSize(len([]rune(s)))); err != nil {
			return Null, err
		}
		return in.rt.AllocateString(s)
	}
	w, err := bytecode.WidenNumber(c)
	if err != nil {
		return Null, err
	}
	switch v := w.(type) {
	case int32:
		return Int32(v), nil
	case int64:
		return Int64(v), nil
	case float64:
		return Double(v), nil
	case bool:
		return Bool(v), nil
	case nil:
		return Null, nil
	}
	return Null, fmt.Errorf("%w: constant %d has unsupported type %T", ErrTypeMismatch, k, c)
}

func (in *Interpreter) newObject(classID int) error {
	c, ok := in.prog.Class(classID)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownClass, classID)
	}
	if err := in.ensure(ObjectAllocationSize(c.PayloadSize())); err != nil {
		return err
	}
	ref, err := in.rt.AllocateObject(c.PayloadSize(), c.ID)
	if err != nil {
		return err
	}
	return in.Push(ref)
}

func (in *Interpreter) newArray(elemTypeID int) error {
	n, err := in.Pop()
	if err != nil {
		return err
	}
	length := n.AsInt64()
	if length < 0 || length > math.MaxInt32 {
		return fmt.Errorf("%w: array length %d", ErrIndexOutOfBounds, length)
	}
	elem, _ := in.prog.Type(elemTypeID)
	if err := in.ensure(ArrayAllocationSize(int(length))); err != nil {
		return err
	}
	ref, err := in.rt.AllocateArrayOf(int(length), elem.IsReference())
	if err != nil {
		return err
	}
	return in.Push(ref)
}

func (in *Interpreter) fieldKind(obj Value, fieldID int) (Kind, error) {
	cid, err := in.rt.ClassOf(obj)
	if err != nil {
		return KindNull, err
	}
	c, ok := in.prog.Class(cid)
	if !ok {
		return KindNull, fmt.Errorf("%w: id %d", ErrUnknownClass, cid)
	}
	if fieldID < 0 || fieldID >= len(c.Fields) {
		return KindNull, fmt.Errorf("%w: field %d of %s", ErrIndexOutOfBounds, fieldID, c.Name)
	}
	return kindOf(c.Fields[fieldID].Type), nil
}

// toString replaces the top of stack with its string rendering. The source
// stays on the stack until the new string is allocated.
func (in *Interpreter) toString(srcTypeID int) error {
	v, err := in.peek(0)
	if err != nil {
		return err
	}
	t, _ := in.prog.Type(srcTypeID)
	s, err := in.render(v, t)
	if err != nil {
		return err
	}
	if err := in.ensure(ArrayAllocationSize(len([]rune(s)))); err != nil {
		return err
	}
	ref, err := in.rt.AllocateString(s)
	if err != nil {
		return err
	}
	in.Pop()
	return in.Push(ref)
}

func (in *Interpreter) render(v Value, t *bytecode.Type) (string, error) {
	switch {
	case v.IsNull():
		return "null", nil
	case t.IsPrimitive(bytecode.TypeNameString):
		return in.rt.ReadStringFromMemory(v)
	case v.IsRef():
		return fmt.Sprintf("%s@%#x", t, v.Address()), nil
	}
	return v.String(), nil
}

// concat joins the two strings on top of the stack. Both stay rooted on the
// stack until the result exists.
func (in *Interpreter) concat() error {
	b, err := in.peek(0)
	if err != nil {
		return err
	}
	a, err := in.peek(1)
	if err != nil {
		return err
	}
	la, err := in.rt.ArrayLength(a)
	if err != nil {
		return err
	}
	lb, err := in.rt.ArrayLength(b)
	if err != nil {
		return err
	}
	if err := in.ensure(ArrayAllocationSize(la + lb)); err != nil {
		return err
	}
	ref, err := in.rt.ConcatStrings(a, b)
	if err != nil {
		return err
	}
	in.pop2()
	return in.Push(ref)
}

// ---------------------------------------------------------------------------
// Numeric helpers
// ---------------------------------------------------------------------------

// promote picks the kind binary arithmetic runs in: Double beats Int64
// beats Int32. Chars compute as Int32.
func promote(a, b Kind) Kind {
	switch {
	case a == KindDouble || b == KindDouble:
		return KindDouble
	case a == KindInt64 || b == KindInt64:
		return KindInt64
	}
	return KindInt32
}

func arith(op bytecode.Opcode, a, b Value) (Value, error) {
	if !a.IsNumeric() || !b.IsNumeric() {
		return Null, fmt.Errorf("%w: %s %s %s", ErrTypeMismatch, a.Kind, op, b.Kind)
	}
	switch promote(a.Kind, b.Kind) {
	case KindDouble:
		x, y := a.AsDouble(), b.AsDouble()
		switch op {
		case bytecode.OpAdd:
			return Double(x + y), nil
		case bytecode.OpSub:
			return Double(x - y), nil
		case bytecode.OpMul:
			return Double(x * y), nil
		case bytecode.OpDiv:
			return Double(x / y), nil
		case bytecode.OpMod:
			return Double(math.Mod(x, y)), nil
		}
	case KindInt64:
		x, y := a.AsInt64(), b.AsInt64()
		if (op == bytecode.OpDiv || op == bytecode.OpMod) && y == 0 {
			return Null, ErrDivisionByZero
		}
		switch op {
		case bytecode.OpAdd:
			return Int64(x + y), nil
		case bytecode.OpSub:
			return Int64(x - y), nil
		case bytecode.OpMul:
			return Int64(x * y), nil
		case bytecode.OpDiv:
			return Int64(x / y), nil
		case bytecode.OpMod:
			return Int64(x % y), nil
		}
	default:
		x, y := a.AsInt32(), b.AsInt32()
		if (op == bytecode.OpDiv || op == bytecode.OpMod) && y == 0 {
			return Null, ErrDivisionByZero
		}
		switch op {
		case bytecode.OpAdd:
			return Int32(x + y), nil
		case bytecode.OpSub:
			return Int32(x - y), nil
		case bytecode.OpMul:
			return Int32(x * y), nil
		case bytecode.OpDiv:
			return Int32(x / y), nil
		case bytecode.OpMod:
			return Int32(x % y), nil
		}
	}
	return Null, fmt.Errorf("%w: %s is not arithmetic", ErrTypeMismatch, op)
}

func negate(a Value) (Value, error) {
	switch a.Kind {
	case KindInt32, KindChar:
		return Int32(-a.AsInt32()), nil
	case KindInt64:
		return Int64(-a.AsInt64()), nil
	case KindDouble:
		return Double(-a.AsDouble()), nil
	}
	return Null, fmt.Errorf("%w: - on %s", ErrTypeMismatch, a.Kind)
}

// equal compares numbers by value after promotion and everything else by
// kind and payload, so references compare by identity.
func equal(a, b Value) bool {
	if a.IsNumeric() && b.IsNumeric() {
		if promote(a.Kind, b.Kind) == KindDouble {
			return a.AsDouble() == b.AsDouble()
		}
		return a.AsInt64() == b.AsInt64()
	}
	return a.Kind == b.Kind && a.Bits == b.Bits
}

func compare(op bytecode.Opcode, a, b Value) (Value, error) {
	if !a.IsNumeric() || !b.IsNumeric() {
		return Null, fmt.Errorf("%w: %s %s %s", ErrTypeMismatch, a.Kind, op, b.Kind)
	}
	var c int
	if promote(a.Kind, b.Kind) == KindDouble {
		x, y := a.AsDouble(), b.AsDouble()
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		case x != y: // NaN
			return Bool(false), nil
		}
	} else {
		x, y := a.AsInt64(), b.AsInt64()
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
	}
	switch op {
	case bytecode.OpLt:
		return Bool(c < 0), nil
	case bytecode.OpLe:
		return Bool(c <= 0), nil
	case bytecode.OpGt:
		return Bool(c > 0), nil
	case bytecode.OpGe:
		return Bool(c >= 0), nil
	}
	return Null, fmt.Errorf("%w: %s is not a comparison", ErrTypeMismatch, op)
}
