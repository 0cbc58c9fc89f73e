package vm

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/sprig/bytecode"
)

var runtimeLog = commonlog.GetLogger("sprig.runtime")

// Object layout: an 8-byte header (class id for objects, element count
// for arrays) followed by 8-byte value slots.
const (
	HeaderSize = 8
	SlotSize   = bytecode.SlotSize
)

// DefaultMaxHeap is the heap budget when none is configured.
const DefaultMaxHeap = 64 << 20

// ObjectAllocationSize returns the buffer size of an object with the given
// payload.
func ObjectAllocationSize(payloadSize int) int {
	return HeaderSize + payloadSize
}

// MaxArrayLength is the longest array whose buffer size fits in an int.
const MaxArrayLength = (math.MaxInt - HeaderSize) / SlotSize

// ArrayAllocationSize returns the buffer size of an array of length slots.
// length must not exceed MaxArrayLength.
func ArrayAllocationSize(length int) int {
	return HeaderSize + length*SlotSize
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithMaxHeap sets the heap budget in bytes.
func WithMaxHeap(bytes int) RuntimeOption {
	return func(r *Runtime) {
		r.maxHeap = bytes
	}
}

// WithArrayElementTracing makes arrays of reference elements visible to the
// collector. By default arrays carry no reference offsets, so objects held
// only by an array are collected.
func WithArrayElementTracing(on bool) RuntimeOption {
	return func(r *Runtime) {
		r.traceArrays = on
	}
}

// WithStdout sets where print writes.
func WithStdout(w io.Writer) RuntimeOption {
	return func(r *Runtime) {
		r.stdout = w
	}
}

// WithSeed makes random deterministic.
func WithSeed(seed uint64) RuntimeOption {
	return func(r *Runtime) {
		r.seed = &seed
	}
}

// ---------------------------------------------------------------------------
// Runtime
// ---------------------------------------------------------------------------

// Runtime is the memory and native-call API generated code runs against.
// It owns the heap and is not safe for concurrent use.
type Runtime struct {
	id           uuid.UUID
	heap         *Heap
	gc           *MarkSweepGC
	classes      map[int]*ObjectDescriptor
	arrayDesc    *ObjectDescriptor
	refArrayDesc *ObjectDescriptor
	natives      []Native
	stdout       io.Writer
	rng          *rand.Rand
	start        time.Time
	maxHeap      int
	traceArrays  bool
	seed         *uint64
}

// NewRuntime creates a runtime with an empty heap.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		id:           uuid.New(),
		classes:      make(map[int]*ObjectDescriptor),
		arrayDesc:    &ObjectDescriptor{Kind: ObjectArray},
		refArrayDesc: &ObjectDescriptor{Kind: ObjectArray, ReferenceElements: true},
		stdout:       os.Stdout,
		start:        time.Now(),
		maxHeap:      DefaultMaxHeap,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.heap = NewHeap(r.maxHeap)
	r.gc = NewMarkSweepGC(r.heap)
	r.natives = defaultNatives()
	if r.seed != nil {
		r.rng = rand.New(rand.NewPCG(*r.seed, *r.seed))
	} else {
		r.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	runtimeLog.Debugf("runtime %s: heap budget %d bytes, array tracing %t", r.id, r.maxHeap, r.traceArrays)
	return r
}

// ID identifies this runtime instance in logs.
func (r *Runtime) ID() uuid.UUID {
	return r.id
}

// Heap returns the runtime's heap.
func (r *Runtime) Heap() *Heap {
	return r.heap
}

// GC returns the runtime's collector.
func (r *Runtime) GC() *MarkSweepGC {
	return r.gc
}

// DefineClass registers the layout of classID: the field ids that hold
// references. It must be called before instances are allocated.
func (r *Runtime) DefineClass(classID int, referenceFields []int) {
	offsets := make([]int, len(referenceFields))
	for i, id := range referenceFields {
		offsets[i] = HeaderSize + id*SlotSize
	}
	r.classes[classID] = &ObjectDescriptor{Kind: ObjectClass, ReferenceOffsets: offsets}
}

// CanAllocate reports whether bytes more bytes fit in the heap.
func (r *Runtime) CanAllocate(bytes int) bool {
	return r.heap.CanAllocate(bytes)
}

// Collect runs a full collection.
func (r *Runtime) Collect(roots RootProvider) (GCStats, error) {
	return r.gc.Collect(roots)
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// AllocateObject allocates an instance of classID with payloadSize bytes of
// fields and writes the class id into the header.
func (r *Runtime) AllocateObject(payloadSize int, classID int) (Value, error) {
	desc, ok := r.classes[classID]
	if !ok {
		return Null, fmt.Errorf("%w: class %d has no layout", ErrUnknownClass, classID)
	}
	size := ObjectAllocationSize(payloadSize)
	for _, off := range desc.ReferenceOffsets {
		if off+SlotSize > size {
			return Null, fmt.Errorf("%w: class %d reference offset %d outside %d-byte object",
				ErrCorruptDescriptor, classID, off, size)
		}
	}
	addr, err := r.heap.Allocate(desc, size)
	if err != nil {
		return Null, err
	}
	obj, _ := r.heap.FindObject(addr)
	obj.WriteSlot(0, uint64(classID))
	return Ref(addr), nil
}

// AllocateArray allocates an array of length zeroed slots. The array
// declares no reference offsets.
func (r *Runtime) AllocateArray(length int) (Value, error) {
	return r.AllocateArrayOf(length, false)
}

// AllocateArrayOf allocates an array whose elements hold references when
// referenceElements is set. The collector traces those elements only when
// the runtime was built WithArrayElementTracing.
func (r *Runtime) AllocateArrayOf(length int, referenceElements bool) (Value, error) {
	if length < 0 {
		return Null, fmt.Errorf("%w: negative array length %d", ErrIndexOutOfBounds, length)
	}
	if length > MaxArrayLength {
		return Null, fmt.Errorf("%w: array of %d elements", ErrOutOfMemory, length)
	}
	desc := r.arrayDesc
	if r.traceArrays && referenceElements {
		desc = r.refArrayDesc
	}
	addr, err := r.heap.Allocate(desc, ArrayAllocationSize(length))
	if err != nil {
		return Null, err
	}
	obj, _ := r.heap.FindObject(addr)
	obj.WriteSlot(0, uint64(length))
	return Ref(addr), nil
}

// object resolves a reference to the object it starts.
func (r *Runtime) object(ref Value, kind ObjectKind) (*HeapObject, error) {
	if ref.IsNull() {
		return nil, ErrNullReference
	}
	if !ref.IsRef() {
		return nil, fmt.Errorf("%w: %s is not a reference", ErrTypeMismatch, ref.Kind)
	}
	obj, ok := r.heap.FindObject(ref.Address())
	if !ok || obj.Address != ref.Address() {
		return nil, fmt.Errorf("%w: %#x", ErrInvalidAddress, ref.Address())
	}
	if obj.Descriptor.Kind != kind {
		return nil, fmt.Errorf("%w: %#x is a %s object, not %s", ErrTypeMismatch, obj.Address, obj.Descriptor.Kind, kind)
	}
	return obj, nil
}

// ---------------------------------------------------------------------------
// Field access
// ---------------------------------------------------------------------------

// ClassOf returns the class id stored in an object's header.
func (r *Runtime) ClassOf(ref Value) (int, error) {
	obj, err := r.object(ref, ObjectClass)
	if err != nil {
		return 0, err
	}
	id, _ := obj.ReadSlot(0)
	return int(id), nil
}

func fieldOffset(obj *HeapObject, index int) (int, error) {
	off := HeaderSize + index*SlotSize
	if index < 0 || off+SlotSize > obj.Size() {
		return 0, fmt.Errorf("%w: field %d of %#x", ErrIndexOutOfBounds, index, obj.Address)
	}
	return off, nil
}

// ReadField reads field index of an object as a value of the given kind.
func (r *Runtime) ReadField(ref Value, index int, kind Kind) (Value, error) {
	obj, err := r.object(ref, ObjectClass)
	if err != nil {
		return Null, err
	}
	off, err := fieldOffset(obj, index)
	if err != nil {
		return Null, err
	}
	bits, _ := obj.ReadSlot(off)
	return FromBits(kind, bits), nil
}

// WriteField stores v into field index of an object.
func (r *Runtime) WriteField(ref Value, index int, v Value) error {
	obj, err := r.object(ref, ObjectClass)
	if err != nil {
		return err
	}
	off, err := fieldOffset(obj, index)
	if err != nil {
		return err
	}
	return obj.WriteSlot(off, v.Bits)
}

// ---------------------------------------------------------------------------
// Array access
// ---------------------------------------------------------------------------

// ArrayLength returns the element count stored in an array's header.
func (r *Runtime) ArrayLength(ref Value) (int, error) {
	obj, err := r.object(ref, ObjectArray)
	if err != nil {
		return 0, err
	}
	n, _ := obj.ReadSlot(0)
	return int(n), nil
}

func (r *Runtime) element(ref Value, index int) (*HeapObject, int, error) {
	obj, err := r.object(ref, ObjectArray)
	if err != nil {
		return nil, 0, err
	}
	n, _ := obj.ReadSlot(0)
	if index < 0 || uint64(index) >= n {
		return nil, 0, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfBounds, index, n)
	}
	return obj, HeaderSize + index*SlotSize, nil
}

// ReadArrayElement reads element index as a value of the given kind.
func (r *Runtime) ReadArrayElement(ref Value, index int, kind Kind) (Value, error) {
	obj, off, err := r.element(ref, index)
	if err != nil {
		return Null, err
	}
	bits, err := obj.ReadSlot(off)
	if err != nil {
		return Null, err
	}
	return FromBits(kind, bits), nil
}

// WriteArrayElement stores v at element index.
func (r *Runtime) WriteArrayElement(ref Value, index int, v Value) error {
	obj, off, err := r.element(ref, index)
	if err != nil {
		return err
	}
	return obj.WriteSlot(off, v.Bits)
}

// ---------------------------------------------------------------------------
// Strings: arrays of Char values
// ---------------------------------------------------------------------------

// AllocateString copies s into a new char array.
func (r *Runtime) AllocateString(s string) (Value, error) {
	runes := []rune(s)
	ref, err := r.AllocateArray(len(runes))
	if err != nil {
		return Null, err
	}
	for i, c := range runes {
		if err := r.WriteArrayElement(ref, i, Char(c)); err != nil {
			return Null, err
		}
	}
	return ref, nil
}

// ReadStringFromMemory decodes a char array.
func (r *Runtime) ReadStringFromMemory(ref Value) (string, error) {
	n, err := r.ArrayLength(ref)
	if err != nil {
		return "", err
	}
	runes := make([]rune, n)
	for i := range runes {
		c, err := r.ReadArrayElement(ref, i, KindChar)
		if err != nil {
			return "", err
		}
		runes[i] = c.AsChar()
	}
	return string(runes), nil
}

// ConcatStrings allocates a new char array holding a followed by b.
func (r *Runtime) ConcatStrings(a, b Value) (Value, error) {
	la, err := r.ArrayLength(a)
	if err != nil {
		return Null, err
	}
	lb, err := r.ArrayLength(b)
	if err != nil {
		return Null, err
	}
	out, err := r.AllocateArray(la + lb)
	if err != nil {
		return Null, err
	}
	copyChars := func(src Value, n, at int) error {
		for i := 0; i < n; i++ {
			c, err := r.ReadArrayElement(src, i, KindChar)
			if err != nil {
				return err
			}
			if err := r.WriteArrayElement(out, at+i, c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := copyChars(a, la, 0); err != nil {
		return Null, err
	}
	if err := copyChars(b, lb, la); err != nil {
		return Null, err
	}
	return out, nil
}
