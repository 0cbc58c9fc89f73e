package bytecode

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Validate checks that every id and index a program refers to exists. All
// problems found are reported together.
func Validate(p *Program) error {
	var result *multierror.Error
	fail := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	checkFn := func(what string, id int, allowNone bool) {
		if allowNone && id == NoID {
			return
		}
		if _, ok := p.Function(id); !ok {
			fail("%s: function id %d out of range", what, id)
		}
	}
	checkFn("global init", p.GlobalInitFunctionID, true)
	checkFn("entry", p.EntryFunctionID, true)

	for _, t := range p.Types {
		switch t.Kind {
		case TypeArray:
			if t.Element == nil {
				fail("type %q: array without element type", t.Name)
			}
		case TypeClass:
			if _, ok := p.Class(t.ClassID); !ok {
				fail("type %q: class id %d out of range", t.Name, t.ClassID)
			}
		}
	}

	for _, c := range p.Classes {
		for name, id := range c.Methods {
			checkFn(fmt.Sprintf("class %s method %s", c.Name, name), id, false)
		}
	}

	for _, f := range p.Functions {
		if f.ClassID != NoID {
			if _, ok := p.Class(f.ClassID); !ok {
				fail("function %s: class id %d out of range", f.Name, f.ClassID)
			}
		}
		for i, in := range f.Instructions {
			where := fmt.Sprintf("%s@%d %s", f.Name, i, in.Op)
			if !in.Op.Valid() {
				fail("%s: unknown opcode", where)
				continue
			}
			if n := in.Op.Info().Operands; len(in.Operands) != n {
				fail("%s: want %d operands, have %d", where, n, len(in.Operands))
				continue
			}
			validateOperands(p, f, in, where, fail)
		}
	}
	return result.ErrorOrNil()
}

func validateOperands(p *Program, f *Function, in Instruction, where string, fail func(string, ...any)) {
	op0 := in.Operand(0)
	switch in.Op {
	case OpPush:
		if op0 < 0 || op0 >= len(p.Constants) {
			fail("%s: constant %d out of range", where, op0)
		}
	case OpLoadLocal, OpStoreLocal:
		if op0 < 0 || op0 >= f.NumSlots() {
			fail("%s: slot %d out of range", where, op0)
		}
	case OpLoadGlobal, OpStoreGlobal:
		if op0 < 0 || op0 >= len(p.Globals) {
			fail("%s: global %d out of range", where, op0)
		}
	case OpNewObject:
		if _, ok := p.Class(op0); !ok {
			fail("%s: class %d out of range", where, op0)
		}
	case OpNewArray, OpLoadElem, OpStoreElem, OpConvert, OpToString:
		if _, ok := p.Type(op0); !ok {
			fail("%s: type %d out of range", where, op0)
		}
	case OpJump, OpJumpIfFalse, OpJumpIfTrue:
		if op0 < 0 || op0 > len(f.Instructions) {
			fail("%s: jump target %d out of range", where, op0)
		}
	case OpCall:
		callee, ok := p.Function(op0)
		if !ok {
			fail("%s: function %d out of range", where, op0)
		} else if in.Operand(1) != len(callee.Params) {
			fail("%s: %s takes %d arguments, not %d", where, callee.Name, len(callee.Params), in.Operand(1))
		}
	case OpCallNative:
		if op0 < 0 || op0 >= len(Natives) {
			fail("%s: native %d out of range", where, op0)
		}
	}
}
