package garbage

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/adam-mcdaniel/garbage/memutils"
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// Allocation owns exactly one block holding a single T. The Allocation value itself is a small
// reference and may be copied freely; every copy refers to the same block and observes the same
// freed state. Reading, writing or freeing a block after it has been freed panics.
type Allocation[T any] struct {
	block *block[T]
}

// Allocate creates a new block on heap initialized with value
func Allocate[T any](heap *Heap, value T) Allocation[T] {
	alloc := allocate(heap, value, BlockKindRaw)
	heap.logger.Debug("Allocation::Allocate", slog.Uint64("ID", alloc.block.id), slog.String("Type", alloc.block.typeName))

	return alloc
}

func allocate[T any](heap *Heap, value T, kind BlockKind) Allocation[T] {
	if heap == nil {
		panic("attempted to allocate from a nil heap")
	}

	memutils.DebugCheckPow2(heap.minAlignment, "MinAllocationAlignment")

	data := new(T)
	*data = value

	b := &block[T]{data: data}
	b.kind = kind
	b.typeName = reflect.TypeOf((*T)(nil)).Elem().String()
	b.size = memutils.AlignUp(int(unsafe.Sizeof(value)), heap.minAlignment)
	if CaptureStacks {
		b.stack = captureStack()
	}
	b.heap = heap

	heap.mutex.Lock()
	heap.registerBlockLocked(&b.blockHeader)
	heap.mutex.Unlock()

	heap.callbacks.Allocate(&b.blockHeader)

	return Allocation[T]{block: b}
}

func (a Allocation[T]) mustBlock() *block[T] {
	if a.block == nil {
		panic(errors.Wrap(memutils.ErrNilAllocation, "attempted to use a zero-value Allocation"))
	}

	return a.block
}

func (a Allocation[T]) useAfterFree(op string) error {
	return errors.Wrapf(memutils.ErrUseAfterFree, "%s block %d (%s %s)", op, a.block.id, a.block.kind, a.block.typeName)
}

// IsSafe returns true if the block has not been freed and may be read or written
func (a Allocation[T]) IsSafe() bool {
	if a.block == nil {
		return false
	}

	b := a.block
	b.heap.mutex.RLock()
	defer b.heap.mutex.RUnlock()

	return !b.freed
}

// Read returns the address of the stored value. Returning an address rather than a copy lets
// callers work with values that should not be duplicated.
func (a Allocation[T]) Read() *T {
	b := a.mustBlock()

	b.heap.mutex.RLock()
	defer b.heap.mutex.RUnlock()

	return a.readLocked()
}

func (a Allocation[T]) readLocked() *T {
	if a.block.freed {
		panic(a.useAfterFree("read from freed"))
	}

	return a.block.data
}

// Get returns a copy of the stored value
func (a Allocation[T]) Get() T {
	return *a.Read()
}

// Replace overwrites the stored value in place
func (a Allocation[T]) Replace(value T) {
	b := a.mustBlock()

	b.heap.mutex.Lock()
	defer b.heap.mutex.Unlock()

	a.replaceLocked(value)
}

func (a Allocation[T]) replaceLocked(value T) {
	if a.block.freed {
		panic(a.useAfterFree("write to freed"))
	}

	*a.block.data = value
}

// Free releases the block back to the heap. Freeing a block twice panics with memutils.ErrDoubleFree.
func (a Allocation[T]) Free() {
	b := a.mustBlock()
	heap := b.heap
	heap.logger.Debug("Allocation::Free", slog.Uint64("ID", b.id), slog.String("Kind", b.kind.String()))

	heap.mutex.Lock()
	err := a.freeLocked()
	heap.mutex.Unlock()

	if err != nil {
		panic(err)
	}

	heap.callbacks.Free(&b.blockHeader)
	memutils.DebugValidate(heap)
}

func (a Allocation[T]) freeLocked() error {
	b := a.block

	err := b.heap.freeBlockLocked(&b.blockHeader)
	if err != nil {
		return err
	}

	var zero T
	*b.data = zero
	b.data = nil

	return nil
}

// Alias returns another reference to the same block. Unlike a fresh wrapper built from a bare
// address, the alias shares the freed state of its source, so aliasing a block that has already
// been freed panics and freeing through either reference is seen by both.
func (a Allocation[T]) Alias() Allocation[T] {
	b := a.mustBlock()

	b.heap.mutex.RLock()
	defer b.heap.mutex.RUnlock()

	if b.freed {
		panic(a.useAfterFree("alias of freed"))
	}

	return Allocation[T]{block: b}
}

// ID returns the heap-unique id of the block, or 0 for a zero-value Allocation
func (a Allocation[T]) ID() uint64 {
	if a.block == nil {
		return 0
	}
	return a.block.id
}

func (a Allocation[T]) Kind() BlockKind { return a.mustBlock().kind }
func (a Allocation[T]) Size() int       { return a.mustBlock().size }
func (a Allocation[T]) Heap() *Heap     { return a.mustBlock().heap }

// SetName attaches a debug name that will be printed by BuildStatsString
func (a Allocation[T]) SetName(name string) {
	b := a.mustBlock()

	b.heap.mutex.Lock()
	defer b.heap.mutex.Unlock()

	b.name = name
}

func (a Allocation[T]) Name() string {
	b := a.mustBlock()

	b.heap.mutex.RLock()
	defer b.heap.mutex.RUnlock()

	return b.name
}

func (a Allocation[T]) String() string {
	if !a.IsSafe() {
		return "Allocation to freed memory"
	}

	return fmt.Sprintf("Allocation to '%v'", a.Get())
}
