package bytecode

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ---------------------------------------------------------------------------
// Persisted document shape, shared by the JSON and CBOR encodings
// ---------------------------------------------------------------------------

type document struct {
	Types                []typeDoc     `json:"Types"`
	Functions            []functionDoc `json:"Functions"`
	Classes              []classDoc    `json:"Classes"`
	Globals              []globalDoc   `json:"Globals"`
	GlobalInitFunctionID int           `json:"GlobalInitFunctionId"`
	ConstantPool         []any         `json:"ConstantPool"`
	EntryFunctionID      int           `json:"EntryFunctionId"`
}

type typeDoc struct {
	ID            int    `json:"Id"`
	Kind          string `json:"Kind"`
	Name          string `json:"Name"`
	ElementTypeID int    `json:"ElementTypeId"`
	ClassID       int    `json:"ClassId"`
}

type paramDoc struct {
	Name   string `json:"Name"`
	TypeID int    `json:"TypeId"`
}

type localDoc struct {
	Name   string `json:"Name"`
	Slot   int    `json:"Slot"`
	TypeID int    `json:"TypeId"`
}

type instructionDoc struct {
	Opcode   string `json:"Opcode"`
	Operands []any  `json:"Operands"`
}

type functionDoc struct {
	ID           int              `json:"Id"`
	Name         string           `json:"Name"`
	ReturnTypeID int              `json:"ReturnTypeId"`
	Parameters   []paramDoc       `json:"Parameters"`
	Instructions []instructionDoc `json:"Instructions"`
	Locals       []localDoc       `json:"Locals"`
	ClassID      int              `json:"ClassId"`
}

type fieldDoc struct {
	Name   string `json:"Name"`
	ID     int    `json:"Id"`
	TypeID int    `json:"TypeId"`
}

type classDoc struct {
	ID      int            `json:"Id"`
	Name    string         `json:"Name"`
	Fields  []fieldDoc     `json:"Fields"`
	Methods map[string]int `json:"Methods"`
}

type globalDoc struct {
	Name   string `json:"Name"`
	TypeID int    `json:"TypeId"`
}

// ---------------------------------------------------------------------------
// Numeric widening
// ---------------------------------------------------------------------------

// WidenNumber normalises a decoded numeric value. Text and generic decoders
// do not preserve the width a number was written with, so integers are
// narrowed to int32 when they fit, then int64; everything else becomes a
// float64. Non-numeric values are returned unchanged.
func WidenNumber(v any) (any, error) {
	switch n := v.(type) {
	case json.Number:
		s := n.String()
		if i, err := strconv.ParseInt(s, 10, 32); err == nil {
			return int32(i), nil
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", s)
		}
		return f, nil
	case int:
		return narrowInt(int64(n)), nil
	case int8:
		return int32(n), nil
	case int16:
		return int32(n), nil
	case int32:
		return n, nil
	case int64:
		return narrowInt(n), nil
	case uint8:
		return int32(n), nil
	case uint16:
		return int32(n), nil
	case uint32:
		return narrowInt(int64(n)), nil
	case uint64:
		if n > math.MaxInt64 {
			return float64(n), nil
		}
		return narrowInt(int64(n)), nil
	case float32:
		return float64(n), nil
	}
	return v, nil
}

func narrowInt(i int64) any {
	if i >= math.MinInt32 && i <= math.MaxInt32 {
		return int32(i)
	}
	return i
}

func widenOperand(v any) (int, error) {
	w, err := WidenNumber(v)
	if err != nil {
		return 0, err
	}
	switch n := w.(type) {
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n == math.Trunc(n) && n >= math.MinInt32 && n <= math.MaxInt32 {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("operand %v is not an integer", v)
}

// ---------------------------------------------------------------------------
// Program <-> document
// ---------------------------------------------------------------------------

func typeID(t *Type) int {
	if t == nil {
		return NoID
	}
	return t.ID
}

// toDocument converts p; wrapConst lets an encoding adjust constant values.
func toDocument(p *Program, wrapConst func(any) (any, error)) (*document, error) {
	doc := &document{
		GlobalInitFunctionID: p.GlobalInitFunctionID,
		EntryFunctionID:      p.EntryFunctionID,
		Types:                make([]typeDoc, 0, len(p.Types)),
		Functions:            make([]functionDoc, 0, len(p.Functions)),
		Classes:              make([]classDoc, 0, len(p.Classes)),
		Globals:              make([]globalDoc, 0, len(p.Globals)),
		ConstantPool:         make([]any, 0, len(p.Constants)),
	}

	for _, t := range p.Types {
		td := typeDoc{ID: t.ID, Kind: t.Kind.String(), Name: t.Name, ElementTypeID: NoID, ClassID: NoID}
		if t.Kind == TypeArray {
			td.ElementTypeID = typeID(t.Element)
		}
		if t.Kind == TypeClass {
			td.ClassID = t.ClassID
		}
		doc.Types = append(doc.Types, td)
	}

	for _, f := range p.Functions {
		fd := functionDoc{
			ID:           f.ID,
			Name:         f.Name,
			ReturnTypeID: typeID(f.ReturnType),
			ClassID:      f.ClassID,
			Parameters:   make([]paramDoc, 0, len(f.Params)),
			Instructions: make([]instructionDoc, 0, len(f.Instructions)),
			Locals:       make([]localDoc, 0, len(f.Locals)),
		}
		for _, prm := range f.Params {
			fd.Parameters = append(fd.Parameters, paramDoc{Name: prm.Name, TypeID: typeID(prm.Type)})
		}
		for _, in := range f.Instructions {
			ops := make([]any, len(in.Operands))
			for i, o := range in.Operands {
				ops[i] = o
			}
			fd.Instructions = append(fd.Instructions, instructionDoc{Opcode: in.Op.String(), Operands: ops})
		}
		for _, l := range f.Locals {
			fd.Locals = append(fd.Locals, localDoc{Name: l.Name, Slot: l.Slot, TypeID: typeID(l.Type)})
		}
		doc.Functions = append(doc.Functions, fd)
	}

	for _, c := range p.Classes {
		cd := classDoc{ID: c.ID, Name: c.Name, Methods: make(map[string]int, len(c.Methods))}
		for _, fld := range c.Fields {
			cd.Fields = append(cd.Fields, fieldDoc{Name: fld.Name, ID: fld.ID, TypeID: typeID(fld.Type)})
		}
		for name, id := range c.Methods {
			cd.Methods[name] = id
		}
		doc.Classes = append(doc.Classes, cd)
	}

	for _, g := range p.Globals {
		doc.Globals = append(doc.Globals, globalDoc{Name: g.Name, TypeID: typeID(g.Type)})
	}

	for i, c := range p.Constants {
		switch c.(type) {
		case int32, int64, float64, string, bool:
		default:
			return nil, fmt.Errorf("constant %d has unsupported type %T", i, c)
		}
		v := c
		if wrapConst != nil {
			var err error
			if v, err = wrapConst(c); err != nil {
				return nil, fmt.Errorf("constant %d: %w", i, err)
			}
		}
		doc.ConstantPool = append(doc.ConstantPool, v)
	}
	return doc, nil
}

func parseTypeKind(s string) (TypeKind, error) {
	switch s {
	case "Primitive":
		return TypePrimitive, nil
	case "Array":
		return TypeArray, nil
	case "Class":
		return TypeClass, nil
	}
	return 0, fmt.Errorf("unknown type kind %q", s)
}

func fromDocument(doc *document) (*Program, error) {
	p := NewProgram()
	p.GlobalInitFunctionID = doc.GlobalInitFunctionID
	p.EntryFunctionID = doc.EntryFunctionID

	lookup := func(id int) (*Type, error) {
		if id == NoID {
			return nil, nil
		}
		if id < 0 || id >= len(p.Types) {
			return nil, fmt.Errorf("type id %d out of range", id)
		}
		return p.Types[id], nil
	}

	// Types first, then element links, since arrays may precede their elements.
	for i, td := range doc.Types {
		if td.ID != i {
			return nil, fmt.Errorf("type %q has id %d at position %d", td.Name, td.ID, i)
		}
		kind, err := parseTypeKind(td.Kind)
		if err != nil {
			return nil, err
		}
		p.Types = append(p.Types, &Type{ID: td.ID, Kind: kind, Name: td.Name, ClassID: td.ClassID})
	}
	for i, td := range doc.Types {
		if p.Types[i].Kind != TypeArray {
			continue
		}
		elem, err := lookup(td.ElementTypeID)
		if err != nil {
			return nil, fmt.Errorf("array type %q: %w", td.Name, err)
		}
		p.Types[i].Element = elem
	}

	for i, fd := range doc.Functions {
		if fd.ID != i {
			return nil, fmt.Errorf("function %q has id %d at position %d", fd.Name, fd.ID, i)
		}
		ret, err := lookup(fd.ReturnTypeID)
		if err != nil {
			return nil, fmt.Errorf("function %q: %w", fd.Name, err)
		}
		f := &Function{ID: fd.ID, Name: fd.Name, ReturnType: ret, ClassID: fd.ClassID}
		for _, pd := range fd.Parameters {
			t, err := lookup(pd.TypeID)
			if err != nil {
				return nil, fmt.Errorf("function %q parameter %q: %w", fd.Name, pd.Name, err)
			}
			f.Params = append(f.Params, Param{Name: pd.Name, Type: t})
		}
		for j, id := range fd.Instructions {
			op, ok := OpcodeByName(id.Opcode)
			if !ok {
				return nil, fmt.Errorf("function %q instruction %d: unknown opcode %q", fd.Name, j, id.Opcode)
			}
			in := Instruction{Op: op}
			if len(id.Operands) > 0 {
				in.Operands = make([]int, len(id.Operands))
			}
			for k, raw := range id.Operands {
				v, err := widenOperand(raw)
				if err != nil {
					return nil, fmt.Errorf("function %q instruction %d: %w", fd.Name, j, err)
				}
				in.Operands[k] = v
			}
			f.Instructions = append(f.Instructions, in)
		}
		for _, ld := range fd.Locals {
			t, err := lookup(ld.TypeID)
			if err != nil {
				return nil, fmt.Errorf("function %q local %q: %w", fd.Name, ld.Name, err)
			}
			f.Locals = append(f.Locals, Local{Name: ld.Name, Slot: ld.Slot, Type: t})
		}
		p.Functions = append(p.Functions, f)
	}

	for i, cd := range doc.Classes {
		if cd.ID != i {
			return nil, fmt.Errorf("class %q has id %d at position %d", cd.Name, cd.ID, i)
		}
		c := NewClass(cd.ID, cd.Name)
		fields := append([]fieldDoc(nil), cd.Fields...)
		sort.SliceStable(fields, func(a, b int) bool { return fields[a].ID < fields[b].ID })
		for _, fd := range fields {
			t, err := lookup(fd.TypeID)
			if err != nil {
				return nil, fmt.Errorf("field %s.%s: %w", cd.Name, fd.Name, err)
			}
			id, err := c.AddField(fd.Name, t)
			if err != nil {
				return nil, err
			}
			if id != fd.ID {
				return nil, fmt.Errorf("field %s.%s: ids are not dense", cd.Name, fd.Name)
			}
		}
		for name, id := range cd.Methods {
			c.Methods[name] = id
		}
		p.Classes = append(p.Classes, c)
	}

	for _, gd := range doc.Globals {
		t, err := lookup(gd.TypeID)
		if err != nil {
			return nil, fmt.Errorf("global %q: %w", gd.Name, err)
		}
		p.Globals = append(p.Globals, Global{Name: gd.Name, Type: t})
	}

	for i, raw := range doc.ConstantPool {
		v, err := WidenNumber(raw)
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		switch v.(type) {
		case int32, int64, float64, string, bool:
		default:
			return nil, fmt.Errorf("constant %d has unsupported type %T", i, raw)
		}
		p.Constants = append(p.Constants, v)
	}

	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}
