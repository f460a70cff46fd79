package garbage

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// BlockKind identifies what a block on the heap is being used for
type BlockKind byte

const (
	// BlockKindRaw is a block allocated directly with Allocate
	BlockKindRaw BlockKind = iota
	// BlockKindPayload is the block holding the value of a Handle
	BlockKindPayload
	// BlockKindCounter is the block holding the shared count of a Handle
	BlockKindCounter
)

var blockKindMapping = make(map[BlockKind]string)

func (k BlockKind) String() string {
	name, ok := blockKindMapping[k]
	if !ok {
		return "Unknown"
	}

	return name
}

func init() {
	blockKindMapping[BlockKindRaw] = "Raw"
	blockKindMapping[BlockKindPayload] = "Payload"
	blockKindMapping[BlockKindCounter] = "Counter"
}

// blockHeader is the type-independent state of a block. Every Allocation that refers to a block
// refers to the same header, so freeing through one alias is observed by all of them.
type blockHeader struct {
	id       uint64
	kind     BlockKind
	typeName string
	size     int
	name     string
	stack    []byte
	freed    bool

	heap *Heap
}

type block[T any] struct {
	blockHeader
	data *T
}

func (b *blockHeader) printParameters(json *jwriter.ObjectState) {
	json.Name("ID").Int(int(b.id))
	json.Name("Kind").String(b.kind.String())
	json.Name("Type").String(b.typeName)
	json.Name("Size").Int(b.size)

	if b.name != "" {
		json.Name("Name").String(b.name)
	}

	if len(b.stack) > 0 {
		json.Name("Stack").String(string(b.stack))
	}
}
