package bytecode

import "fmt"

// ---------------------------------------------------------------------------
// Builder: append-only instruction stream with jump backpatching
// ---------------------------------------------------------------------------

// Builder appends instructions to a function's code stream.
type Builder struct {
	fn *Function
}

// NewBuilder returns a builder that appends to fn.
func NewBuilder(fn *Function) *Builder {
	return &Builder{fn: fn}
}

// Function returns the function being built.
func (b *Builder) Function() *Function {
	return b.fn
}

// Len returns the number of instructions emitted so far. It is also the
// index the next instruction will occupy.
func (b *Builder) Len() int {
	return len(b.fn.Instructions)
}

// Emit appends an instruction and returns its index.
func (b *Builder) Emit(op Opcode, operands ...int) int {
	b.fn.Instructions = append(b.fn.Instructions, Instruction{Op: op, Operands: operands})
	return len(b.fn.Instructions) - 1
}

// Last returns the most recently emitted instruction.
func (b *Builder) Last() (Instruction, bool) {
	if len(b.fn.Instructions) == 0 {
		return Instruction{}, false
	}
	return b.fn.Instructions[len(b.fn.Instructions)-1], true
}

// Placeholder refers to a forward jump whose target is not yet known.
type Placeholder struct {
	index   int
	patched *bool
}

// Index returns the position of the placeholder jump.
func (p Placeholder) Index() int {
	return p.index
}

// EmitJump appends a jump with a zero target and returns a handle that
// must later be passed to PatchHere.
func (b *Builder) EmitJump(op Opcode) Placeholder {
	patched := false
	return Placeholder{index: b.Emit(op, 0), patched: &patched}
}

// EmitJumpTo appends a jump to an already known target (backward jumps).
func (b *Builder) EmitJumpTo(op Opcode, target int) int {
	return b.Emit(op, target)
}

// PatchHere points the placeholder at the current end of the stream.
func (b *Builder) PatchHere(p Placeholder) error {
	return b.Patch(p, b.Len())
}

// Patch points the placeholder at target.
func (b *Builder) Patch(p Placeholder, target int) error {
	if p.patched == nil || p.index < 0 || p.index >= len(b.fn.Instructions) {
		return fmt.Errorf("invalid jump placeholder %d", p.index)
	}
	if *p.patched {
		return fmt.Errorf("jump at %d already patched", p.index)
	}
	in := &b.fn.Instructions[p.index]
	if !in.Op.IsJump() {
		return fmt.Errorf("instruction %d is %s, not a jump", p.index, in.Op)
	}
	in.Operands[0] = target
	*p.patched = true
	return nil
}
