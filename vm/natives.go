package vm

import (
	"fmt"
	"time"

	"github.com/chazu/sprig/bytecode"
)

// StackAccess is the operand stack a native function pops its arguments
// from and pushes its result to.
type StackAccess interface {
	Push(v Value) error
	Pop() (Value, error)
}

// NativeFunc implements a native function.
type NativeFunc func(r *Runtime, stack StackAccess) error

// Native binds a native signature to its implementation.
type Native struct {
	bytecode.NativeSignature
	Fn NativeFunc
}

// defaultNatives builds the native table for one runtime, indexed by id.
func defaultNatives() []Native {
	impls := map[int]NativeFunc{
		bytecode.NativePrint:  nativePrint,
		bytecode.NativeClock:  nativeClock,
		bytecode.NativeRandom: nativeRandom,
	}
	table := make([]Native, len(bytecode.Natives))
	for _, sig := range bytecode.Natives {
		table[sig.ID] = Native{NativeSignature: sig, Fn: impls[sig.ID]}
	}
	return table
}

// InvokeNative calls native function id against stack.
func (r *Runtime) InvokeNative(id int, stack StackAccess) error {
	if id < 0 || id >= len(r.natives) || r.natives[id].Fn == nil {
		return fmt.Errorf("%w: id %d", ErrUnknownNative, id)
	}
	if err := r.natives[id].Fn(r, stack); err != nil {
		return fmt.Errorf("native %s: %w", r.natives[id].Name, err)
	}
	return nil
}

// RegisterNative installs or replaces a native implementation on this
// runtime only.
func (r *Runtime) RegisterNative(id int, name string, fn NativeFunc) {
	for len(r.natives) <= id {
		r.natives = append(r.natives, Native{})
	}
	r.natives[id] = Native{NativeSignature: bytecode.NativeSignature{ID: id, Name: name}, Fn: fn}
}

// print(string): writes the string and a newline.
func nativePrint(r *Runtime, stack StackAccess) error {
	v, err := stack.Pop()
	if err != nil {
		return err
	}
	s := "null"
	if !v.IsNull() {
		if s, err = r.ReadStringFromMemory(v); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(r.stdout, s)
	return err
}

// clock() long: milliseconds since the runtime started, monotonic.
func nativeClock(r *Runtime, stack StackAccess) error {
	return stack.Push(Int64(time.Since(r.start).Milliseconds()))
}

// random(int bound) int: uniform in [0, bound).
func nativeRandom(r *Runtime, stack StackAccess) error {
	v, err := stack.Pop()
	if err != nil {
		return err
	}
	bound := v.AsInt64()
	if bound <= 0 {
		return fmt.Errorf("%w: random bound %d must be positive", ErrInvalidArgument, bound)
	}
	return stack.Push(Int32(int32(r.rng.Int64N(bound))))
}
