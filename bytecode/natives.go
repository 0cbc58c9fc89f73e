package bytecode

// Native function ids. These are part of the ABI between generated code and
// the runtime and must never be renumbered.
const (
	NativePrint  = 0
	NativeClock  = 1
	NativeRandom = 2
)

// NativeSignature describes a native function as seen by the generator.
type NativeSignature struct {
	ID     int
	Name   string
	Params []string // parameter type names
	Return string   // return type name
}

// Natives lists every native function, indexed by id.
var Natives = []NativeSignature{
	{ID: NativePrint, Name: "print", Params: []string{TypeNameString}, Return: TypeNameVoid},
	{ID: NativeClock, Name: "clock", Return: TypeNameLong},
	{ID: NativeRandom, Name: "random", Params: []string{TypeNameInt}, Return: TypeNameInt},
}

// NativeByName finds a native function signature by name.
func NativeByName(name string) (NativeSignature, bool) {
	for _, n := range Natives {
		if n.Name == name {
			return n, true
		}
	}
	return NativeSignature{}, false
}
