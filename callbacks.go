package garbage

// AllocationCallback is executed with the id, kind and aligned size of a block
type AllocationCallback func(
	heap *Heap,
	id uint64,
	kind BlockKind,
	size int,
	userData any,
)

// CallbackOptions can be provided to CreateOptions to observe every block that moves through a heap
type CallbackOptions struct {
	Allocate AllocationCallback
	Free     AllocationCallback
	UserData any
}

type allocationCallbacks struct {
	Callbacks *CallbackOptions
	Heap      *Heap
}

func (c *allocationCallbacks) Allocate(block *blockHeader) {
	if c.Callbacks != nil && c.Callbacks.Allocate != nil {
		c.Callbacks.Allocate(c.Heap, block.id, block.kind, block.size, c.Callbacks.UserData)
	}
}

func (c *allocationCallbacks) Free(block *blockHeader) {
	if c.Callbacks != nil && c.Callbacks.Free != nil {
		c.Callbacks.Free(c.Heap, block.id, block.kind, block.size, c.Callbacks.UserData)
	}
}
