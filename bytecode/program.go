// Package bytecode defines the intermediate representation shared by the
// compiler and the runtime: programs, functions, classes, types and the
// instruction stream, together with its persisted forms.
package bytecode

import (
	"fmt"
	"strings"
)

// NoID marks an absent function, class or type reference.
const NoID = -1

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// TypeKind distinguishes the three shapes a type can take.
type TypeKind uint8

const (
	TypePrimitive TypeKind = iota
	TypeArray
	TypeClass
)

func (k TypeKind) String() string {
	switch k {
	case TypePrimitive:
		return "Primitive"
	case TypeArray:
		return "Array"
	case TypeClass:
		return "Class"
	default:
		return fmt.Sprintf("TypeKind(%d)", k)
	}
}

// Primitive type names.
const (
	TypeNameInt    = "int"
	TypeNameLong   = "long"
	TypeNameDouble = "double"
	TypeNameBool   = "bool"
	TypeNameChar   = "char"
	TypeNameString = "string"
	TypeNameVoid   = "void"
	TypeNameNull   = "null"
)

// Type is a resolved type. Element is set for arrays, ClassID for classes.
type Type struct {
	ID      int
	Kind    TypeKind
	Name    string
	Element *Type
	ClassID int
}

// IsPrimitive reports whether t is the named primitive.
func (t *Type) IsPrimitive(name string) bool {
	return t != nil && t.Kind == TypePrimitive && t.Name == name
}

// IsNumeric reports whether t is int, long, double or char.
func (t *Type) IsNumeric() bool {
	if t == nil || t.Kind != TypePrimitive {
		return false
	}
	switch t.Name {
	case TypeNameInt, TypeNameLong, TypeNameDouble, TypeNameChar:
		return true
	}
	return false
}

// IsReference reports whether values of t live on the heap.
func (t *Type) IsReference() bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case TypeArray, TypeClass:
		return true
	}
	return t.Name == TypeNameString || t.Name == TypeNameNull
}

func (t *Type) String() string {
	if t == nil {
		return "<unknown>"
	}
	return t.Name
}

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// Instruction is an opcode and its operands.
type Instruction struct {
	Op       Opcode
	Operands []int
}

// Operand returns the i-th operand, or 0 when absent.
func (in Instruction) Operand(i int) int {
	if i < len(in.Operands) {
		return in.Operands[i]
	}
	return 0
}

func (in Instruction) String() string {
	if len(in.Operands) == 0 {
		return in.Op.String()
	}
	parts := make([]string, len(in.Operands))
	for i, o := range in.Operands {
		parts[i] = fmt.Sprint(o)
	}
	return in.Op.String() + " " + strings.Join(parts, " ")
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// Param is a named, typed function parameter.
type Param struct {
	Name string
	Type *Type
}

// Local is a local variable slot. Parameters occupy the first slots.
type Local struct {
	Name string
	Slot int
	Type *Type
}

// Function is a compiled function or method.
type Function struct {
	ID           int
	Name         string
	ReturnType   *Type
	Params       []Param
	Instructions []Instruction
	Locals       []Local
	ClassID      int // owning class, or NoID for free functions
}

// NumSlots returns the number of local slots a frame needs.
func (f *Function) NumSlots() int {
	n := len(f.Params)
	for _, l := range f.Locals {
		if l.Slot+1 > n {
			n = l.Slot + 1
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

// Field is a class field. IDs are dense and equal to the slot index.
type Field struct {
	Name string
	ID   int
	Type *Type
}

// Class is a compiled class.
type Class struct {
	ID      int
	Name    string
	Fields  []Field        // insertion order
	Methods map[string]int // method name -> function id

	fieldIndex map[string]int
}

// NewClass creates an empty class.
func NewClass(id int, name string) *Class {
	return &Class{
		ID:         id,
		Name:       name,
		Methods:    make(map[string]int),
		fieldIndex: make(map[string]int),
	}
}

// AddField appends a field and returns its id.
func (c *Class) AddField(name string, t *Type) (int, error) {
	if _, ok := c.Field(name); ok {
		return 0, fmt.Errorf("duplicate field %s.%s", c.Name, name)
	}
	id := len(c.Fields)
	c.Fields = append(c.Fields, Field{Name: name, ID: id, Type: t})
	if c.fieldIndex == nil {
		c.fieldIndex = make(map[string]int)
	}
	c.fieldIndex[name] = id
	return id, nil
}

// Field looks up a field by name.
func (c *Class) Field(name string) (Field, bool) {
	if c.fieldIndex == nil {
		c.fieldIndex = make(map[string]int, len(c.Fields))
		for _, f := range c.Fields {
			c.fieldIndex[f.Name] = f.ID
		}
	}
	id, ok := c.fieldIndex[name]
	if !ok {
		return Field{}, false
	}
	return c.Fields[id], true
}

// PayloadSize returns the number of payload bytes an instance needs.
func (c *Class) PayloadSize() int {
	return len(c.Fields) * SlotSize
}

// ReferenceFields returns the ids of fields that hold heap references.
func (c *Class) ReferenceFields() []int {
	var ids []int
	for _, f := range c.Fields {
		if f.Type.IsReference() {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

// SlotSize is the width in bytes of every heap value slot and header.
const SlotSize = 8

// ---------------------------------------------------------------------------
// Program
// ---------------------------------------------------------------------------

// Global is a program-level variable.
type Global struct {
	Name string
	Type *Type
}

// Program is the complete output of the generator.
type Program struct {
	Types                []*Type
	Functions            []*Function
	Classes              []*Class
	Globals              []Global
	GlobalInitFunctionID int
	Constants            []any
	EntryFunctionID      int
}

// NewProgram creates an empty program.
func NewProgram() *Program {
	return &Program{
		GlobalInitFunctionID: NoID,
		EntryFunctionID:      NoID,
	}
}

// AddConstant appends a literal to the constant pool. Values are never
// deduplicated; the index is the only identity.
func (p *Program) AddConstant(v any) int {
	p.Constants = append(p.Constants, v)
	return len(p.Constants) - 1
}

// FunctionByName finds a function by linear scan.
func (p *Program) FunctionByName(name string) (*Function, bool) {
	for _, f := range p.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// ClassByName finds a class by linear scan.
func (p *Program) ClassByName(name string) (*Class, bool) {
	for _, c := range p.Classes {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Function returns the function with the given id.
func (p *Program) Function(id int) (*Function, bool) {
	if id < 0 || id >= len(p.Functions) {
		return nil, false
	}
	return p.Functions[id], true
}

// Class returns the class with the given id.
func (p *Program) Class(id int) (*Class, bool) {
	if id < 0 || id >= len(p.Classes) {
		return nil, false
	}
	return p.Classes[id], true
}

// Type returns the type with the given id.
func (p *Program) Type(id int) (*Type, bool) {
	if id < 0 || id >= len(p.Types) {
		return nil, false
	}
	return p.Types[id], true
}
