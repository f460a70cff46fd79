package garbage

import (
	"io"
	"sort"
	"strings"

	"github.com/adam-mcdaniel/garbage/internal/utils"
	"github.com/adam-mcdaniel/garbage/memutils"
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific heap behaviors to activate or deactivate
type CreateFlags int32

var createFlagsMapping = make(map[CreateFlags]string)

func (f CreateFlags) Register(str string) {
	createFlagsMapping[f] = str
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	for flag, name := range createFlagsMapping {
		if f&flag != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	return strings.Join(names, "|")
}

const (
	// HeapCreateExternallySynchronized ensures that this heap and all handles created from it
	// will not be synchronized internally. The consumer must guarantee they are used from only one
	// goroutine at a time, but shared count updates no longer take a lock.
	HeapCreateExternallySynchronized CreateFlags = 1 << iota
)

func init() {
	HeapCreateExternallySynchronized.Register("HeapCreateExternallySynchronized")
}

const (
	// defaultMinAllocationAlignment is the value that is used as MinAllocationAlignment when none
	// is provided via CreateOptions. Block sizes are rounded up to it for accounting.
	defaultMinAllocationAlignment uint = 8

	// defaultRegistryCapacity is the initial capacity of the live block registry
	defaultRegistryCapacity uint32 = 64
)

// CreateOptions contains optional settings when creating a heap
type CreateOptions struct {
	// Flags indicates specific heap behaviors to activate or deactivate
	Flags CreateFlags

	// MinAllocationAlignment is the granularity that block sizes are rounded up to when reporting
	// statistics. It must be a power of two; 0 selects the default of 8 bytes.
	MinAllocationAlignment uint

	// Callbacks is an optional set of callbacks that will be executed whenever a block is allocated
	// from or freed back to this heap
	Callbacks *CallbackOptions
}

// New creates a new Heap. The heap takes the place of a process-wide unfreed-block counter:
// create one at startup, hand it to everything that allocates, and call CheckHeap or Shutdown
// before exiting.
//
// logger - The logger that will receive debug output. nil discards all output.
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, options CreateOptions) (*Heap, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard))
	}

	alignment := options.MinAllocationAlignment
	if alignment == 0 {
		alignment = defaultMinAllocationAlignment
	}

	err := memutils.CheckPow2(alignment, "MinAllocationAlignment")
	if err != nil {
		return nil, errors.Wrap(err, "garbage.CreateOptions.MinAllocationAlignment is invalid")
	}

	useMutex := options.Flags&HeapCreateExternallySynchronized == 0

	heap := &Heap{
		logger:       logger,
		createFlags:  options.Flags,
		minAlignment: alignment,
		callbacks:    allocationCallbacks{Callbacks: options.Callbacks},
		mutex:        utils.OptionalRWMutex{UseMutex: useMutex},
		registry:     swiss.NewMap[uint64, *blockHeader](defaultRegistryCapacity),
	}
	heap.callbacks.Heap = heap

	logger.Debug("Heap::New",
		slog.String("Flags", options.Flags.String()),
		slog.Uint64("MinAllocationAlignment", uint64(alignment)),
	)

	return heap, nil
}
