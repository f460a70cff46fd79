package garbage

import (
	"fmt"

	"github.com/adam-mcdaniel/garbage/memutils"
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// Handle is a reference-counted reference to a value of type T. It is built from two blocks: one
// holding the value and one holding the count shared by every copy of the handle.
//
// Every Handle obtained from NewHandle or Copy must be released exactly once. When the last copy
// is released, both blocks are freed immediately; there is no release on scope exit unless the
// handle is tracked by a Scope.
type Handle[T any] struct {
	ref *handleRef[T]
}

// handleRef is the state of a single copy. Copies share data and count, but each has its own
// released flag so that releasing the same copy twice is caught even while other copies are live.
type handleRef[T any] struct {
	data     Allocation[T]
	count    Allocation[int32]
	released bool
}

// NewHandle allocates a value block and a count block on heap and returns the first handle to
// them, with a count of 1
func NewHandle[T any](heap *Heap, value T) Handle[T] {
	data := allocate(heap, value, BlockKindPayload)
	count := allocate(heap, int32(1), BlockKindCounter)

	heap.logger.Debug("Handle::New",
		slog.Uint64("Payload", data.block.id),
		slog.Uint64("Counter", count.block.id),
		slog.String("Type", data.block.typeName),
	)

	return Handle[T]{ref: &handleRef[T]{data: data, count: count}}
}

func (h Handle[T]) mustRef() *handleRef[T] {
	if h.ref == nil {
		panic(errors.Wrap(memutils.ErrNilAllocation, "attempted to use a zero-value Handle"))
	}

	return h.ref
}

func (h Handle[T]) heap() *Heap {
	return h.mustRef().data.block.heap
}

func (r *handleRef[T]) consumed(op string) error {
	return errors.Wrapf(memutils.ErrUseAfterFree, "%s a handle copy that was already released (payload block %d)", op, r.data.block.id)
}

// Copy increments the shared count and returns a new handle to the same value and count blocks.
// Nothing is allocated. The returned handle must be released separately.
func (h Handle[T]) Copy() Handle[T] {
	ref := h.mustRef()
	heap := h.heap()

	heap.mutex.Lock()
	defer heap.mutex.Unlock()

	if ref.released {
		panic(ref.consumed("copy of"))
	}

	count := ref.count.readLocked()
	*count++

	heap.logger.Debug("Handle::Copy", slog.Uint64("Payload", ref.data.block.id), slog.Int("Count", int(*count)))

	return Handle[T]{ref: &handleRef[T]{data: ref.data, count: ref.count}}
}

// Value returns a copy of the handle's value without affecting the count
func (h Handle[T]) Value() T {
	return *h.Ptr()
}

// Ptr returns the address of the handle's value. The address is only valid until the last
// copy of the handle is released.
func (h Handle[T]) Ptr() *T {
	ref := h.mustRef()
	heap := h.heap()

	heap.mutex.RLock()
	defer heap.mutex.RUnlock()

	if ref.released {
		panic(ref.consumed("read through"))
	}

	return ref.data.readLocked()
}

// Replace overwrites the handle's value in place. Every copy of the handle sees the new value.
func (h Handle[T]) Replace(value T) {
	ref := h.mustRef()
	heap := h.heap()

	heap.mutex.Lock()
	defer heap.mutex.Unlock()

	if ref.released {
		panic(ref.consumed("write through"))
	}

	ref.data.replaceLocked(value)
}

// Count returns the current shared count. It remains readable through a released copy as long as
// some other copy keeps the count block alive.
func (h Handle[T]) Count() int {
	ref := h.mustRef()
	heap := h.heap()

	heap.mutex.RLock()
	defer heap.mutex.RUnlock()

	return int(*ref.count.readLocked())
}

// IsLive returns true if this copy has not been released and its value has not been freed
func (h Handle[T]) IsLive() bool {
	if h.ref == nil {
		return false
	}

	heap := h.heap()
	heap.mutex.RLock()
	defer heap.mutex.RUnlock()

	return !h.ref.released && !h.ref.data.block.freed
}

// Release decrements the shared count. If the count reaches zero, the value block and then the
// count block are freed before Release returns, and every other copy becomes unusable. Releasing
// a copy twice, or releasing any copy after the count has reached zero, panics with
// memutils.ErrDoubleRelease.
func (h Handle[T]) Release() {
	ref := h.mustRef()
	heap := h.heap()

	collected, remaining := ref.release(heap)

	heap.logger.Debug("Handle::Release",
		slog.Uint64("Payload", ref.data.block.id),
		slog.Int("Count", remaining),
		slog.Bool("Collected", collected),
	)

	if collected {
		heap.callbacks.Free(&ref.data.block.blockHeader)
		heap.callbacks.Free(&ref.count.block.blockHeader)
		memutils.DebugValidate(heap)
	}
}

func (r *handleRef[T]) release(heap *Heap) (collected bool, remaining int) {
	heap.mutex.Lock()
	defer heap.mutex.Unlock()

	if r.released {
		panic(errors.Wrapf(memutils.ErrDoubleRelease, "handle copy for payload block %d was released twice", r.data.block.id))
	}
	if r.count.block.freed {
		panic(errors.Wrapf(memutils.ErrDoubleRelease, "payload block %d was already collected", r.data.block.id))
	}

	count := r.count.readLocked()
	if *count <= 0 {
		panic(errors.Wrapf(memutils.ErrDoubleRelease, "payload block %d has a count of %d", r.data.block.id, *count))
	}

	*count--
	r.released = true
	remaining = int(*count)

	if remaining > 0 {
		return false, remaining
	}

	err := r.data.freeLocked()
	if err != nil {
		panic(err)
	}

	err = r.count.freeLocked()
	if err != nil {
		panic(err)
	}

	return true, 0
}

func (h Handle[T]) String() string {
	if !h.IsLive() {
		return "Handle to collected memory"
	}

	return fmt.Sprintf("Handle to '%v'", h.Value())
}
