package compiler

import (
	"fmt"
	"strings"

	"github.com/chazu/sprig/bytecode"
)

var primitiveTypes = []string{
	bytecode.TypeNameInt,
	bytecode.TypeNameLong,
	bytecode.TypeNameDouble,
	bytecode.TypeNameBool,
	bytecode.TypeNameChar,
	bytecode.TypeNameString,
	bytecode.TypeNameVoid,
	bytecode.TypeNameNull,
}

func isPrimitiveName(name string) bool {
	for _, p := range primitiveTypes {
		if p == name {
			return true
		}
	}
	return false
}

// TypeResolver maps textual type names to types registered in a program's
// type table. Every distinct name is registered exactly once.
type TypeResolver struct {
	prog  *bytecode.Program
	cache map[string]*bytecode.Type
}

// NewTypeResolver creates a resolver that registers types in prog.
func NewTypeResolver(prog *bytecode.Program) *TypeResolver {
	return &TypeResolver{prog: prog, cache: make(map[string]*bytecode.Type)}
}

// Resolve returns the type for name. A trailing "[]" denotes an array of
// the element type, resolved recursively. Other names are primitives or
// classes found by name in the program's class table.
func (r *TypeResolver) Resolve(name string) (*bytecode.Type, error) {
	if t, ok := r.cache[name]; ok {
		return t, nil
	}

	if elemName, ok := strings.CutSuffix(name, "[]"); ok {
		elem, err := r.Resolve(elemName)
		if err != nil {
			return nil, err
		}
		if elem.IsPrimitive(bytecode.TypeNameVoid) {
			return nil, fmt.Errorf("invalid array element type void")
		}
		return r.register(&bytecode.Type{Kind: bytecode.TypeArray, Name: name, Element: elem, ClassID: bytecode.NoID}), nil
	}

	if isPrimitiveName(name) {
		return r.register(&bytecode.Type{Kind: bytecode.TypePrimitive, Name: name, ClassID: bytecode.NoID}), nil
	}

	if class, ok := r.prog.ClassByName(name); ok {
		return r.register(&bytecode.Type{Kind: bytecode.TypeClass, Name: name, ClassID: class.ID}), nil
	}

	return nil, fmt.Errorf("unknown type %s", name)
}

// MustPrimitive resolves a primitive name that is known to exist.
func (r *TypeResolver) MustPrimitive(name string) *bytecode.Type {
	t, err := r.Resolve(name)
	if err != nil {
		panic(err)
	}
	return t
}

// ArrayOf returns the array type with the given element type.
func (r *TypeResolver) ArrayOf(elem *bytecode.Type) *bytecode.Type {
	t, err := r.Resolve(elem.Name + "[]")
	if err != nil {
		panic(err)
	}
	return t
}

func (r *TypeResolver) register(t *bytecode.Type) *bytecode.Type {
	t.ID = len(r.prog.Types)
	r.prog.Types = append(r.prog.Types, t)
	r.cache[t.Name] = t
	return t
}
