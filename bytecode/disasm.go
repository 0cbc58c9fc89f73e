package bytecode

import (
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction renders one instruction with symbolic annotations.
func DisassembleInstruction(p *Program, pos int, in Instruction) string {
	line := fmt.Sprintf("%04d  %-14s", pos, in.Op)
	for _, o := range in.Operands {
		line += fmt.Sprintf(" %d", o)
	}
	if note := annotate(p, in); note != "" {
		line += "  ; " + note
	}
	return strings.TrimRight(line, " ")
}

func annotate(p *Program, in Instruction) string {
	if p == nil {
		return ""
	}
	op0 := in.Operand(0)
	switch in.Op {
	case OpPush:
		if op0 >= 0 && op0 < len(p.Constants) {
			return fmt.Sprintf("%#v", p.Constants[op0])
		}
	case OpLoadGlobal, OpStoreGlobal:
		if op0 >= 0 && op0 < len(p.Globals) {
			return p.Globals[op0].Name
		}
	case OpNewObject:
		if c, ok := p.Class(op0); ok {
			return c.Name
		}
	case OpNewArray, OpLoadElem, OpStoreElem, OpConvert, OpToString:
		if t, ok := p.Type(op0); ok {
			return t.Name
		}
	case OpCall:
		if f, ok := p.Function(op0); ok {
			return f.Name
		}
	case OpCallNative:
		if op0 >= 0 && op0 < len(Natives) {
			return Natives[op0].Name
		}
	case OpJump, OpJumpIfFalse, OpJumpIfTrue:
		return fmt.Sprintf("-> %04d", op0)
	}
	return ""
}

// DisassembleFunction renders a single function.
func DisassembleFunction(p *Program, f *Function) string {
	var sb strings.Builder
	params := make([]string, len(f.Params))
	for i, prm := range f.Params {
		params[i] = prm.Type.String() + " " + prm.Name
	}
	fmt.Fprintf(&sb, "function #%d %s %s(%s)\n", f.ID, f.ReturnType, f.Name, strings.Join(params, ", "))
	for _, l := range f.Locals {
		fmt.Fprintf(&sb, "  local %d %s %s\n", l.Slot, l.Type, l.Name)
	}
	for i, in := range f.Instructions {
		sb.WriteString("  ")
		sb.WriteString(DisassembleInstruction(p, i, in))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Disassemble returns a full listing of the program.
func Disassemble(p *Program) string {
	var sb strings.Builder
	sb.WriteString("types:\n")
	for _, t := range p.Types {
		fmt.Fprintf(&sb, "  #%d %s %s\n", t.ID, t.Kind, t.Name)
	}
	if len(p.Constants) > 0 {
		sb.WriteString("constants:\n")
		for i, c := range p.Constants {
			fmt.Fprintf(&sb, "  [%d] %#v\n", i, c)
		}
	}
	if len(p.Globals) > 0 {
		sb.WriteString("globals:\n")
		for i, g := range p.Globals {
			fmt.Fprintf(&sb, "  [%d] %s %s\n", i, g.Type, g.Name)
		}
	}
	for _, c := range p.Classes {
		fmt.Fprintf(&sb, "class #%d %s\n", c.ID, c.Name)
		for _, f := range c.Fields {
			fmt.Fprintf(&sb, "  field %d %s %s\n", f.ID, f.Type, f.Name)
		}
		names := make([]string, 0, len(c.Methods))
		for name := range c.Methods {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "  method %s -> #%d\n", name, c.Methods[name])
		}
	}
	for _, f := range p.Functions {
		sb.WriteString(DisassembleFunction(p, f))
	}
	return sb.String()
}
