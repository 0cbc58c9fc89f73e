package bytecode

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
)

// sampleProgram exercises every persisted section: array and class types,
// fields, a method, a global with an initialiser and all constant kinds.
func sampleProgram(t *testing.T) *Program {
	t.Helper()
	p := NewProgram()
	addType := func(kind TypeKind, name string, elem *Type, classID int) *Type {
		typ := &Type{ID: len(p.Types), Kind: kind, Name: name, Element: elem, ClassID: classID}
		p.Types = append(p.Types, typ)
		return typ
	}
	intT := addType(TypePrimitive, TypeNameInt, nil, NoID)
	addType(TypePrimitive, TypeNameDouble, nil, NoID)
	strT := addType(TypePrimitive, TypeNameString, nil, NoID)
	voidT := addType(TypePrimitive, TypeNameVoid, nil, NoID)
	pointT := addType(TypeClass, "Point", nil, 0)
	arrT := addType(TypeArray, "int[]", intT, NoID)

	point := NewClass(0, "Point")
	if _, err := point.AddField("x", intT); err != nil {
		t.Fatalf("AddField: %v", err)
	}
	if _, err := point.AddField("label", strT); err != nil {
		t.Fatalf("AddField: %v", err)
	}
	point.Methods["getX"] = 1
	p.Classes = append(p.Classes, point)
	p.Globals = []Global{{Name: "origin", Type: pointT}}

	seven := p.AddConstant(int32(7))
	big := p.AddConstant(int64(1) << 40)
	two := p.AddConstant(2.0)
	p.AddConstant("hi")
	p.AddConstant(true)

	main := &Function{ID: 0, Name: "main", ReturnType: intT, ClassID: NoID}
	main.Locals = []Local{{Name: "n", Slot: 0, Type: intT}, {Name: "xs", Slot: 1, Type: arrT}}
	b := NewBuilder(main)
	b.Emit(OpPush, seven)
	b.Emit(OpStoreLocal, 0)
	b.Emit(OpLoadLocal, 0)
	b.Emit(OpPush, big)
	b.Emit(OpLt)
	skip := b.EmitJump(OpJumpIfFalse)
	b.Emit(OpPush, two)
	b.Emit(OpConvert, intT.ID)
	b.Emit(OpStoreLocal, 0)
	if err := b.PatchHere(skip); err != nil {
		t.Fatalf("PatchHere: %v", err)
	}
	b.Emit(OpLoadLocal, 0)
	b.Emit(OpReturn)

	getX := &Function{
		ID:         1,
		Name:       "Point.getX",
		ReturnType: intT,
		Params:     []Param{{Name: "this", Type: pointT}},
		ClassID:    0,
	}
	b = NewBuilder(getX)
	b.Emit(OpLoadLocal, 0)
	b.Emit(OpLoadField, 0)
	b.Emit(OpReturn)

	init := &Function{ID: 2, Name: "$init", ReturnType: voidT, ClassID: NoID}
	b = NewBuilder(init)
	b.Emit(OpNewObject, 0)
	b.Emit(OpStoreGlobal, 0)
	b.Emit(OpReturnVoid)

	p.Functions = []*Function{main, getX, init}
	p.EntryFunctionID = 0
	p.GlobalInitFunctionID = 2

	if err := Validate(p); err != nil {
		t.Fatalf("sample program is invalid: %v", err)
	}
	return p
}

func TestBuilderPatching(t *testing.T) {
	fn := &Function{Name: "f"}
	b := NewBuilder(fn)
	b.Emit(OpPushNull)
	j := b.EmitJump(OpJump)
	b.Emit(OpPop)
	b.Emit(OpPop)

	if err := b.PatchHere(j); err != nil {
		t.Fatalf("PatchHere: %v", err)
	}
	if got := fn.Instructions[j.Index()].Operand(0); got != 4 {
		t.Errorf("jump target = %d, want 4", got)
	}
	if err := b.PatchHere(j); err == nil {
		t.Errorf("patching twice should fail")
	}
	if got := fn.Instructions[j.Index()].Operand(0); got != 4 {
		t.Errorf("failed patch changed the target to %d", got)
	}

	notJump := b.EmitJump(OpPush)
	if err := b.PatchHere(notJump); err == nil {
		t.Errorf("patching a non-jump should fail")
	}
	if err := b.PatchHere(Placeholder{}); err == nil {
		t.Errorf("patching a zero placeholder should fail")
	}

	back := b.EmitJumpTo(OpJumpIfTrue, 1)
	if in := fn.Instructions[back]; in.Op != OpJumpIfTrue || in.Operand(0) != 1 {
		t.Errorf("backward jump = %s", in)
	}
	if last, ok := b.Last(); !ok || last.Op != OpJumpIfTrue {
		t.Errorf("Last() = %s, %t", last, ok)
	}
}

func TestOpcodeNames(t *testing.T) {
	for op, info := range opcodeTable {
		got, ok := OpcodeByName(info.Name)
		if !ok || got != op {
			t.Errorf("OpcodeByName(%q) = %v, %t", info.Name, got, ok)
		}
	}
	if Opcode(0xFF).Valid() {
		t.Errorf("0xFF should not be a valid opcode")
	}
	if Opcode(0xFF).String() != "UNKNOWN_FF" {
		t.Errorf("String() = %q", Opcode(0xFF).String())
	}
	if !OpJumpIfFalse.IsJump() || OpCall.IsJump() {
		t.Errorf("IsJump misclassifies opcodes")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	p := sampleProgram(t)
	data, err := MarshalJSON(p)
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	text := string(data)
	for _, key := range []string{`"GlobalInitFunctionId"`, `"ConstantPool"`, `"EntryFunctionId"`, `"JUMP_IF_FALSE"`, `2.0`} {
		if !strings.Contains(text, key) {
			t.Errorf("encoded program is missing %s", key)
		}
	}

	got, err := UnmarshalJSON(data)
	if err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if !reflect.DeepEqual(p, got) {
		t.Errorf("round trip changed the program:\n%s\nvs\n%s", Disassemble(p), Disassemble(got))
	}
}

func TestCBORRoundTrip(t *testing.T) {
	p := sampleProgram(t)
	data, err := MarshalCBOR(p)
	if err != nil {
		t.Fatalf("MarshalCBOR: %v", err)
	}
	if !IsImage(data) {
		t.Fatalf("image header missing")
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(p, got) {
		t.Errorf("round trip changed the program:\n%s\nvs\n%s", Disassemble(p), Disassemble(got))
	}

	again, _ := MarshalCBOR(got)
	if string(again) != string(data) {
		t.Errorf("canonical encoding is not stable")
	}
}

func TestFingerprint(t *testing.T) {
	p := sampleProgram(t)
	want, err := Fingerprint(p)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}

	data, err := MarshalJSON(p)
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	loaded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got, _ := Fingerprint(loaded); got != want {
		t.Errorf("fingerprint changed across a JSON round trip")
	}

	p.Constants = append(p.Constants, int32(99))
	if got, _ := Fingerprint(p); got == want {
		t.Errorf("fingerprint ignored a new constant")
	}
}

func TestRoundTripPreservesConstantKinds(t *testing.T) {
	p := sampleProgram(t)
	jsonData, _ := MarshalJSON(p)
	cborData, _ := MarshalCBOR(p)
	for name, data := range map[string][]byte{"json": jsonData, "cbor": cborData} {
		got, err := Unmarshal(data)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if _, ok := got.Constants[0].(int32); !ok {
			t.Errorf("%s: constant 0 is %T, want int32", name, got.Constants[0])
		}
		if _, ok := got.Constants[1].(int64); !ok {
			t.Errorf("%s: constant 1 is %T, want int64", name, got.Constants[1])
		}
		if f, ok := got.Constants[2].(float64); !ok || f != 2 {
			t.Errorf("%s: constant 2 is %T %v, want float64 2", name, got.Constants[2], got.Constants[2])
		}
	}
}

func TestWidenNumber(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{int(5), int32(5)},
		{int64(-3), int32(-3)},
		{int64(math.MaxInt32) + 1, int64(math.MaxInt32) + 1},
		{uint64(7), int32(7)},
		{uint64(math.MaxUint64), float64(math.MaxUint64)},
		{float32(1.5), float64(1.5)},
		{"text", "text"},
		{true, true},
	}
	for _, tt := range tests {
		got, err := WidenNumber(tt.in)
		if err != nil {
			t.Fatalf("WidenNumber(%v): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("WidenNumber(%#v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestUnmarshalRejectsBrokenDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"syntax", `{"Types": [`},
		{"type id", `{"Types": [{"Id": 3, "Kind": "Primitive", "Name": "int", "ElementTypeId": -1, "ClassId": -1}],
			"GlobalInitFunctionId": -1, "EntryFunctionId": -1}`},
		{"type kind", `{"Types": [{"Id": 0, "Kind": "Tuple", "Name": "x", "ElementTypeId": -1, "ClassId": -1}],
			"GlobalInitFunctionId": -1, "EntryFunctionId": -1}`},
		{"opcode", `{"Functions": [{"Id": 0, "Name": "f", "ReturnTypeId": -1, "ClassId": -1,
			"Instructions": [{"Opcode": "LEAP", "Operands": []}]}],
			"GlobalInitFunctionId": -1, "EntryFunctionId": -1}`},
		{"fractional operand", `{"Functions": [{"Id": 0, "Name": "f", "ReturnTypeId": -1, "ClassId": -1,
			"Instructions": [{"Opcode": "JUMP", "Operands": [0.5]}]}],
			"GlobalInitFunctionId": -1, "EntryFunctionId": -1}`},
		{"dangling constant", `{"Functions": [{"Id": 0, "Name": "f", "ReturnTypeId": -1, "ClassId": -1,
			"Instructions": [{"Opcode": "PUSH", "Operands": [0]}]}],
			"GlobalInitFunctionId": -1, "EntryFunctionId": -1}`},
		{"entry", `{"GlobalInitFunctionId": -1, "EntryFunctionId": 4}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnmarshalJSON([]byte(tt.doc)); err == nil {
				t.Errorf("expected an error")
			}
		})
	}

	if _, err := UnmarshalCBOR([]byte("not an image")); err == nil {
		t.Errorf("UnmarshalCBOR accepted data without a header")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	p := sampleProgram(t)
	main := p.Functions[0]
	main.Instructions = append(main.Instructions,
		Instruction{Op: OpLoadLocal, Operands: []int{9}},
		Instruction{Op: OpCall, Operands: []int{1, 0}},
		Instruction{Op: OpAdd, Operands: []int{1}},
	)

	err := Validate(p)
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("Validate() = %v, want a multierror", err)
	}
	if len(merr.Errors) != 3 {
		t.Errorf("got %d problems, want 3:\n%v", len(merr.Errors), err)
	}
}

func TestDisassemble(t *testing.T) {
	p := sampleProgram(t)
	out := Disassemble(p)
	for _, want := range []string{
		"#4 Class Point",
		"class #0 Point",
		"field 1 string label",
		"method getX -> #1",
		"function #0 int main()",
		"function #1 int Point.getX(Point this)",
		"JUMP_IF_FALSE  9  ; -> 0009",
		"NEW_OBJECT     0  ; Point",
		"STORE_GLOBAL   0  ; origin",
		"CONVERT        0  ; int",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("listing is missing %q:\n%s", want, out)
		}
	}
}

func TestTypePredicates(t *testing.T) {
	intT := &Type{Kind: TypePrimitive, Name: TypeNameInt}
	strT := &Type{Kind: TypePrimitive, Name: TypeNameString}
	arrT := &Type{Kind: TypeArray, Name: "int[]", Element: intT}
	var none *Type

	if !intT.IsNumeric() || intT.IsReference() {
		t.Errorf("int classified wrongly")
	}
	if strT.IsNumeric() || !strT.IsReference() {
		t.Errorf("string classified wrongly")
	}
	if !arrT.IsReference() {
		t.Errorf("arrays are references")
	}
	if none.IsNumeric() || none.IsReference() || none.String() != "<unknown>" {
		t.Errorf("nil type predicates must be false")
	}
}

func TestClassReferenceFields(t *testing.T) {
	c := NewClass(0, "Pair")
	c.AddField("n", &Type{Kind: TypePrimitive, Name: TypeNameLong})
	c.AddField("s", &Type{Kind: TypePrimitive, Name: TypeNameString})
	c.AddField("next", &Type{Kind: TypeClass, Name: "Pair"})
	if _, err := c.AddField("n", nil); err == nil {
		t.Errorf("duplicate field accepted")
	}
	if got := c.ReferenceFields(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("ReferenceFields() = %v, want [1 2]", got)
	}
	if c.PayloadSize() != 3*SlotSize {
		t.Errorf("PayloadSize() = %d", c.PayloadSize())
	}
}
