package vm

import "errors"

// Runtime errors. Operations wrap these with the offending index, id or
// address; match them with errors.Is.
var (
	ErrOutOfMemory       = errors.New("out of memory")
	ErrIndexOutOfBounds  = errors.New("index out of bounds")
	ErrUnknownNative     = errors.New("unknown native function")
	ErrUnknownClass      = errors.New("unknown class")
	ErrUnknownFunction   = errors.New("unknown function")
	ErrNullReference     = errors.New("null reference")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrCorruptDescriptor = errors.New("corrupt object descriptor")
	ErrStackUnderflow    = errors.New("operand stack underflow")
	ErrStackOverflow     = errors.New("call stack overflow")
	ErrDivisionByZero    = errors.New("division by zero")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrMissingReturn     = errors.New("function ended without a return value")
)
