package vm

import (
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/tliron/commonlog"
)

var gcLog = commonlog.GetLogger("sprig.gc")

// ---------------------------------------------------------------------------
// Roots
// ---------------------------------------------------------------------------

// RootProvider enumerates the addresses the running program can reach
// directly: operand stack, locals and globals.
type RootProvider interface {
	EnumerateRoots() iter.Seq[uint64]
}

// RootFunc adapts a function to RootProvider.
type RootFunc func() iter.Seq[uint64]

// EnumerateRoots implements RootProvider.
func (f RootFunc) EnumerateRoots() iter.Seq[uint64] {
	return f()
}

// StaticRoots is a fixed root set.
type StaticRoots []uint64

// EnumerateRoots implements RootProvider.
func (r StaticRoots) EnumerateRoots() iter.Seq[uint64] {
	return slices.Values(r)
}

// ---------------------------------------------------------------------------
// MarkSweepGC
// ---------------------------------------------------------------------------

// GCStats holds statistics from a single collection.
type GCStats struct {
	Roots      int
	Marked     int
	Freed      int
	FreedBytes int
	Live       int
	LiveBytes  int
	Duration   time.Duration
	Timestamp  time.Time
}

// MarkSweepGC is a stop-the-world, non-generational tracing collector.
// It must not run while anything else mutates the heap.
type MarkSweepGC struct {
	heap        *Heap
	collections int
	last        GCStats
}

// NewMarkSweepGC creates a collector for h.
func NewMarkSweepGC(h *Heap) *MarkSweepGC {
	return &MarkSweepGC{heap: h}
}

// Collect frees every object not reachable from roots through descriptor
// reference offsets. If a descriptor points outside its object the
// collection is abandoned with ErrCorruptDescriptor, all mark bits are
// cleared and nothing is freed.
func (gc *MarkSweepGC) Collect(roots RootProvider) (GCStats, error) {
	start := time.Now()
	stats := GCStats{Timestamp: start}

	marked, nroots, err := gc.mark(roots)
	if err != nil {
		gc.clearMarks()
		return stats, err
	}
	stats.Roots = nroots
	stats.Marked = marked

	freed, freedBytes, err := gc.sweep()
	if err != nil {
		return stats, err
	}
	stats.Freed = freed
	stats.FreedBytes = freedBytes
	stats.Live = gc.heap.Count()
	stats.LiveBytes = gc.heap.AllocatedBytes()
	stats.Duration = time.Since(start)

	gc.collections++
	gc.last = stats
	gcLog.Infof("collection %d: %d roots, %d marked, %d freed (%d bytes), %d live (%d bytes) in %s",
		gc.collections, stats.Roots, stats.Marked, stats.Freed, stats.FreedBytes,
		stats.Live, stats.LiveBytes, stats.Duration)
	return stats, nil
}

// mark traces from the roots with an explicit worklist.
func (gc *MarkSweepGC) mark(roots RootProvider) (marked, nroots int, err error) {
	var work []uint64
	for addr := range roots.EnumerateRoots() {
		if addr != 0 {
			work = append(work, addr)
			nroots++
		}
	}

	for len(work) > 0 {
		addr := work[len(work)-1]
		work = work[:len(work)-1]

		obj, ok := gc.heap.FindObject(addr)
		if !ok || obj.Marked {
			continue
		}
		obj.Marked = true
		marked++

		for _, off := range obj.Descriptor.ReferenceOffsets {
			ref, err := obj.ReadSlot(off)
			if err != nil {
				return marked, nroots, fmt.Errorf("%w: object %#x: %v", ErrCorruptDescriptor, obj.Address, err)
			}
			if ref != 0 {
				work = append(work, ref)
			}
		}
		if obj.Descriptor.ReferenceElements {
			work = appendElementRefs(work, obj)
		}
	}
	return marked, nroots, nil
}

// appendElementRefs queues every non-null element of a reference array.
func appendElementRefs(work []uint64, obj *HeapObject) []uint64 {
	for off := HeaderSize; off+SlotSize <= len(obj.Data); off += SlotSize {
		if ref, _ := obj.ReadSlot(off); ref != 0 {
			work = append(work, ref)
		}
	}
	return work
}

// sweep frees unmarked objects and resets the mark bit on survivors.
func (gc *MarkSweepGC) sweep() (freed, freedBytes int, err error) {
	var dead []*HeapObject
	for obj := range gc.heap.Objects() {
		if obj.Marked {
			obj.Marked = false
			continue
		}
		dead = append(dead, obj)
	}
	for _, obj := range dead {
		size := obj.Size()
		if err := gc.heap.Free(obj); err != nil {
			return freed, freedBytes, err
		}
		freed++
		freedBytes += size
	}
	return freed, freedBytes, nil
}

func (gc *MarkSweepGC) clearMarks() {
	for obj := range gc.heap.Objects() {
		obj.Marked = false
	}
}

// Collections returns how many collections have completed.
func (gc *MarkSweepGC) Collections() int {
	return gc.collections
}

// LastStats returns the statistics of the most recent collection.
func (gc *MarkSweepGC) LastStats() GCStats {
	return gc.last
}
