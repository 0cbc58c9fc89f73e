package bytecode

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode identifies a single instruction. Operands are carried separately
// on the Instruction as small integers.
type Opcode byte

// Stack operations
const (
	OpNop  Opcode = 0x00 // no operation
	OpPop  Opcode = 0x01 // discard top of stack
	OpDup  Opcode = 0x02 // duplicate top of stack
	OpSwap Opcode = 0x03 // swap top two: a b -> b a
	OpRot  Opcode = 0x04 // rotate top three: a b c -> b c a
)

// Constants
const (
	OpPush     Opcode = 0x10 // push constant pool entry <index>
	OpPushNull Opcode = 0x11 // push null
	OpPushChar Opcode = 0x12 // push char <code point>
)

// Variables
const (
	OpLoadLocal   Opcode = 0x20 // push local <slot>
	OpStoreLocal  Opcode = 0x21 // pop into local <slot>
	OpLoadGlobal  Opcode = 0x22 // push global <index>
	OpStoreGlobal Opcode = 0x23 // pop into global <index>
)

// Objects and arrays
const (
	OpNewObject   Opcode = 0x30 // push new instance <class id>
	OpLoadField   Opcode = 0x31 // obj -> value <field id>
	OpStoreField  Opcode = 0x32 // obj value -> (stores) <field id>
	OpNewArray    Opcode = 0x33 // length -> array <element type id>
	OpLoadElem    Opcode = 0x34 // array index -> value <element type id>
	OpStoreElem   Opcode = 0x35 // array index value -> (stores) <element type id>
	OpArrayLength Opcode = 0x36 // array -> length
)

// Arithmetic, comparison and logic
const (
	OpAdd Opcode = 0x40
	OpSub Opcode = 0x41
	OpMul Opcode = 0x42
	OpDiv Opcode = 0x43
	OpMod Opcode = 0x44
	OpNeg Opcode = 0x45
	OpNot Opcode = 0x46
	OpEq  Opcode = 0x47
	OpNe  Opcode = 0x48
	OpLt  Opcode = 0x49
	OpLe  Opcode = 0x4A
	OpGt  Opcode = 0x4B
	OpGe  Opcode = 0x4C
)

// Conversions and strings
const (
	OpConvert  Opcode = 0x50 // numeric conversion <target type id>
	OpToString Opcode = 0x51 // value -> string <source type id>
	OpConcat   Opcode = 0x52 // string string -> string
)

// Control flow
const (
	OpJump        Opcode = 0x60 // jump to absolute instruction index <target>
	OpJumpIfFalse Opcode = 0x61 // pop, jump if false <target>
	OpJumpIfTrue  Opcode = 0x62 // pop, jump if true <target>
)

// Calls and returns
const (
	OpCall       Opcode = 0x70 // call <function id> <argc>
	OpCallNative Opcode = 0x71 // call native <native id> <argc>
	OpReturn     Opcode = 0x72 // return top of stack
	OpReturnVoid Opcode = 0x73 // return without value
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name     string // mnemonic, also used by the persisted format
	Operands int    // number of operands
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop:  {"NOP", 0},
	OpPop:  {"POP", 0},
	OpDup:  {"DUP", 0},
	OpSwap: {"SWAP", 0},
	OpRot:  {"ROT", 0},

	OpPush:     {"PUSH", 1},
	OpPushNull: {"PUSH_NULL", 0},
	OpPushChar: {"PUSH_CHAR", 1},

	OpLoadLocal:   {"LOAD_LOCAL", 1},
	OpStoreLocal:  {"STORE_LOCAL", 1},
	OpLoadGlobal:  {"LOAD_GLOBAL", 1},
	OpStoreGlobal: {"STORE_GLOBAL", 1},

	OpNewObject:   {"NEW_OBJECT", 1},
	OpLoadField:   {"LOAD_FIELD", 1},
	OpStoreField:  {"STORE_FIELD", 1},
	OpNewArray:    {"NEW_ARRAY", 1},
	OpLoadElem:    {"LOAD_ELEM", 1},
	OpStoreElem:   {"STORE_ELEM", 1},
	OpArrayLength: {"ARRAY_LENGTH", 0},

	OpAdd: {"ADD", 0},
	OpSub: {"SUB", 0},
	OpMul: {"MUL", 0},
	OpDiv: {"DIV", 0},
	OpMod: {"MOD", 0},
	OpNeg: {"NEG", 0},
	OpNot: {"NOT", 0},
	OpEq:  {"EQ", 0},
	OpNe:  {"NE", 0},
	OpLt:  {"LT", 0},
	OpLe:  {"LE", 0},
	OpGt:  {"GT", 0},
	OpGe:  {"GE", 0},

	OpConvert:  {"CONVERT", 1},
	OpToString: {"TO_STRING", 1},
	OpConcat:   {"CONCAT", 0},

	OpJump:        {"JUMP", 1},
	OpJumpIfFalse: {"JUMP_IF_FALSE", 1},
	OpJumpIfTrue:  {"JUMP_IF_TRUE", 1},

	OpCall:       {"CALL", 2},
	OpCallNative: {"CALL_NATIVE", 2},
	OpReturn:     {"RETURN", 0},
	OpReturnVoid: {"RETURN_VOID", 0},
}

var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeTable))
	for op, info := range opcodeTable {
		m[info.Name] = op
	}
	return m
}()

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Info().Name
}

// IsJump reports whether the single operand of op is an instruction index.
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpJumpIfFalse || op == OpJumpIfTrue
}

// OpcodeByName looks up an opcode by its mnemonic.
func OpcodeByName(name string) (Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}
