package vm

import (
	"encoding/binary"
	"fmt"
	"iter"

	"github.com/tliron/commonlog"
)

var heapLog = commonlog.GetLogger("sprig.heap")

// ---------------------------------------------------------------------------
// ObjectDescriptor: exact reference map for one object kind
// ---------------------------------------------------------------------------

// ObjectKind distinguishes class instances from arrays.
type ObjectKind uint8

const (
	ObjectClass ObjectKind = iota
	ObjectArray
)

func (k ObjectKind) String() string {
	switch k {
	case ObjectClass:
		return "Class"
	case ObjectArray:
		return "Array"
	}
	return fmt.Sprintf("ObjectKind(%d)", k)
}

// ObjectDescriptor lists the byte offsets of an object's reference slots.
// The collector trusts it completely and scans nothing else.
//
// ReferenceElements marks an array whose every element slot holds a
// reference, so one descriptor serves arrays of any length.
type ObjectDescriptor struct {
	Kind              ObjectKind
	ReferenceOffsets  []int
	ReferenceElements bool
}

// ---------------------------------------------------------------------------
// HeapObject
// ---------------------------------------------------------------------------

// HeapObject is one allocation: a fixed-size buffer, a mark bit used during
// collection and an immutable descriptor.
type HeapObject struct {
	Address    uint64
	Data       []byte
	Marked     bool
	Descriptor *ObjectDescriptor
}

// Size returns the buffer size in bytes.
func (o *HeapObject) Size() int {
	return len(o.Data)
}

// Contains reports whether addr falls inside the object's buffer.
func (o *HeapObject) Contains(addr uint64) bool {
	return addr >= o.Address && addr < o.Address+uint64(len(o.Data))
}

// ReadSlot reads the 8-byte little-endian payload at offset.
func (o *HeapObject) ReadSlot(offset int) (uint64, error) {
	if offset < 0 || offset+SlotSize > len(o.Data) {
		return 0, fmt.Errorf("%w: offset %d in %d-byte object", ErrIndexOutOfBounds, offset, len(o.Data))
	}
	return binary.LittleEndian.Uint64(o.Data[offset:]), nil
}

// WriteSlot writes an 8-byte little-endian payload at offset.
func (o *HeapObject) WriteSlot(offset int, bits uint64) error {
	if offset < 0 || offset+SlotSize > len(o.Data) {
		return fmt.Errorf("%w: offset %d in %d-byte object", ErrIndexOutOfBounds, offset, len(o.Data))
	}
	binary.LittleEndian.PutUint64(o.Data[offset:], bits)
	return nil
}

// ---------------------------------------------------------------------------
// Heap
// ---------------------------------------------------------------------------

// heapBase is the first address handed out. Addresses are synthetic,
// 8-byte aligned, never 0 and never reused.
const heapBase uint64 = 0x10000

// Heap owns every allocated object and enforces a byte budget.
type Heap struct {
	objects   []*HeapObject // allocation order
	allocated int
	maxSize   int
	next      uint64
}

// NewHeap creates a heap that holds at most maxSize bytes.
func NewHeap(maxSize int) *Heap {
	return &Heap{maxSize: maxSize, next: heapBase}
}

// Allocate creates a zeroed object of size bytes and returns the address
// of its data. When the budget would be exceeded it fails with
// ErrOutOfMemory and leaves the accounting unchanged.
func (h *Heap) Allocate(desc *ObjectDescriptor, size int) (uint64, error) {
	if size <= 0 {
		return 0, fmt.Errorf("%w: allocation size %d", ErrInvalidArgument, size)
	}
	if desc == nil {
		return 0, fmt.Errorf("%w: missing descriptor", ErrCorruptDescriptor)
	}
	if !h.CanAllocate(size) {
		heapLog.Debugf("allocation of %d bytes refused: %d of %d in use", size, h.allocated, h.maxSize)
		return 0, fmt.Errorf("%w: %d bytes requested, %d of %d in use", ErrOutOfMemory, size, h.allocated, h.maxSize)
	}

	obj := &HeapObject{
		Address:    h.next,
		Data:       make([]byte, size),
		Descriptor: desc,
	}
	h.next += uint64(align8(size))
	h.objects = append(h.objects, obj)
	h.allocated += size
	return obj.Address, nil
}

// FindObject returns the object whose buffer contains addr. Objects are
// scanned most recently allocated first.
func (h *Heap) FindObject(addr uint64) (*HeapObject, bool) {
	if addr == 0 {
		return nil, false
	}
	for i := len(h.objects) - 1; i >= 0; i-- {
		if h.objects[i].Contains(addr) {
			return h.objects[i], true
		}
	}
	return nil, false
}

// Free releases obj and stops tracking it.
func (h *Heap) Free(obj *HeapObject) error {
	for i := len(h.objects) - 1; i >= 0; i-- {
		if h.objects[i] == obj {
			h.objects = append(h.objects[:i], h.objects[i+1:]...)
			h.allocated -= len(obj.Data)
			obj.Data = nil
			return nil
		}
	}
	return fmt.Errorf("%w: object %#x is not tracked", ErrInvalidAddress, obj.Address)
}

// Objects yields every live object in allocation order.
func (h *Heap) Objects() iter.Seq[*HeapObject] {
	return func(yield func(*HeapObject) bool) {
		for _, obj := range h.objects {
			if !yield(obj) {
				return
			}
		}
	}
}

// Count returns the number of live objects.
func (h *Heap) Count() int {
	return len(h.objects)
}

// AllocatedBytes returns the bytes currently in use.
func (h *Heap) AllocatedBytes() int {
	return h.allocated
}

// MaxSize returns the byte budget.
func (h *Heap) MaxSize() int {
	return h.maxSize
}

// CanAllocate reports whether size more bytes fit in the budget.
func (h *Heap) CanAllocate(size int) bool {
	return size >= 0 && size <= h.maxSize-h.allocated
}

func align8(n int) int {
	return (n + 7) &^ 7
}
