package garbage

import (
	"sync/atomic"

	"github.com/adam-mcdaniel/garbage/internal/utils"
	"github.com/adam-mcdaniel/garbage/memutils"
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// Heap counts every block allocated through it and remembers which ones are still live, so that
// a leak check at shutdown can report what was never freed. All Allocations and Handles belong to
// exactly one Heap.
type Heap struct {
	logger       *slog.Logger
	createFlags  CreateFlags
	minAlignment uint
	callbacks    allocationCallbacks

	nextID      atomic.Uint64
	outstanding atomic.Int64
	allocCount  atomic.Int64
	freeCount   atomic.Int64

	// mutex guards the registry, the freed flag of every block and the read-modify-write of
	// every shared count
	mutex    utils.OptionalRWMutex
	registry *swiss.Map[uint64, *blockHeader]
}

func (h *Heap) Flags() CreateFlags {
	return h.createFlags
}

// Outstanding returns the number of blocks that have been allocated and not yet freed. A live
// Handle accounts for two blocks.
func (h *Heap) Outstanding() int {
	return int(h.outstanding.Load())
}

func (h *Heap) registerBlockLocked(block *blockHeader) {
	block.id = h.nextID.Add(1)
	h.registry.Put(block.id, block)

	h.outstanding.Add(1)
	h.allocCount.Add(1)
}

func (h *Heap) freeBlockLocked(block *blockHeader) error {
	if block.freed {
		return errors.Wrapf(memutils.ErrDoubleFree, "block %d (%s %s) was already freed", block.id, block.kind, block.typeName)
	}

	block.freed = true
	h.registry.Delete(block.id)

	h.outstanding.Add(-1)
	h.freeCount.Add(1)

	return nil
}

func (h *Heap) sortedIDsLocked() []uint64 {
	ids := make([]uint64, 0, h.registry.Count())
	h.registry.Iter(func(id uint64, _ *blockHeader) bool {
		ids = append(ids, id)
		return false
	})
	slices.Sort(ids)

	return ids
}

// Leaks returns nil if every block allocated from this heap has been freed. Otherwise it returns an
// error wrapping memutils.ErrLeakDetected that reports the number of unreleased handles along with
// a breakdown of the outstanding blocks by kind.
func (h *Heap) Leaks() error {
	h.logger.Debug("Heap::Leaks")

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	outstanding := h.outstanding.Load()
	if outstanding == 0 {
		return nil
	}

	var payloads, counters, raw int
	var stacks []*blockHeader
	for _, id := range h.sortedIDsLocked() {
		block, _ := h.registry.Get(id)
		switch block.kind {
		case BlockKindPayload:
			payloads++
		case BlockKindCounter:
			counters++
		default:
			raw++
		}

		if len(block.stack) > 0 {
			stacks = append(stacks, block)
		}
	}

	err := errors.Wrapf(memutils.ErrLeakDetected,
		"%d handles were not released (%d blocks outstanding: %d payload, %d counter, %d raw)",
		payloads, outstanding, payloads, counters, raw)

	for _, block := range stacks {
		err = errors.WithDetailf(err, "block %d (%s %s) allocated at:\n%s", block.id, block.kind, block.typeName, block.stack)
	}

	return err
}

// CheckHeap is meant to be called once, just before the program exits. It logs that no leaks were
// found, or panics with the error from Leaks.
func (h *Heap) CheckHeap() {
	h.logger.Debug("Heap::CheckHeap")

	err := h.Leaks()
	if err != nil {
		h.logger.Error("heap check failed", slog.Any("error", err))
		panic(err)
	}

	h.logger.Info("all blocks freed, no leaks")
}

// Shutdown reads and resets the heap. It returns the same error Leaks would have, then marks every
// outstanding block as freed and zeroes all counters, so the heap can be reused. Handles that were
// leaked before Shutdown panic with memutils.ErrUseAfterFree if they are used afterward.
func (h *Heap) Shutdown() error {
	h.logger.Debug("Heap::Shutdown")

	err := h.Leaks()

	h.mutex.Lock()
	h.registry.Iter(func(_ uint64, block *blockHeader) bool {
		block.freed = true
		return false
	})
	h.registry = swiss.NewMap[uint64, *blockHeader](defaultRegistryCapacity)
	h.outstanding.Store(0)
	h.allocCount.Store(0)
	h.freeCount.Store(0)
	h.mutex.Unlock()

	if err != nil {
		h.logger.Error("heap shut down with outstanding blocks", slog.Any("error", err))
	}

	return err
}

// Validate verifies that the outstanding block count agrees with the live block registry
func (h *Heap) Validate() error {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	outstanding := h.outstanding.Load()
	if outstanding < 0 {
		return errors.Newf("the outstanding block count (%d) is negative", outstanding)
	}

	registered := h.registry.Count()
	if int64(registered) != outstanding {
		return errors.Newf("the outstanding block count (%d) does not match the number of registered blocks (%d)", outstanding, registered)
	}

	allocs, frees := h.allocCount.Load(), h.freeCount.Load()
	if allocs-frees != outstanding {
		return errors.Newf("%d allocations and %d frees do not account for %d outstanding blocks", allocs, frees, outstanding)
	}

	var err error
	h.registry.Iter(func(id uint64, block *blockHeader) bool {
		if block.freed {
			err = errors.Newf("block %d is registered as live but is marked freed", id)
			return true
		}
		if block.id != id {
			err = errors.Newf("block %d is registered under id %d", block.id, id)
			return true
		}
		return false
	})

	return err
}

// CalculateStatistics fills stats with a summary of the blocks that are currently live along with
// lifetime allocation and free totals
func (h *Heap) CalculateStatistics(stats *memutils.DetailedStatistics) {
	h.logger.Debug("Heap::CalculateStatistics")

	stats.Clear()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	h.registry.Iter(func(_ uint64, block *blockHeader) bool {
		stats.AddBlock(block.size)

		switch block.kind {
		case BlockKindPayload:
			stats.HandleCount++
		case BlockKindCounter:
			stats.CounterCount++
		default:
			stats.RawCount++
		}
		return false
	})

	stats.AllocationCount = int(h.allocCount.Load())
	stats.FreeCount = int(h.freeCount.Load())
}

func printStatistics(json *jwriter.ObjectState, stats *memutils.DetailedStatistics) {
	json.Name("BlockCount").Int(stats.BlockCount)
	json.Name("BlockBytes").Int(stats.BlockBytes)
	json.Name("AllocationCount").Int(stats.AllocationCount)
	json.Name("FreeCount").Int(stats.FreeCount)
	json.Name("HandleCount").Int(stats.HandleCount)
	json.Name("CounterCount").Int(stats.CounterCount)
	json.Name("RawCount").Int(stats.RawCount)

	if stats.BlockCount > 0 {
		json.Name("BlockSizeMin").Int(stats.BlockSizeMin)
		json.Name("BlockSizeMax").Int(stats.BlockSizeMax)
	}
}

// BuildStatsString returns a JSON document describing the heap. When detailed is true, every live
// block is listed, including its allocation stack if stacks are being captured.
func (h *Heap) BuildStatsString(detailed bool) string {
	h.logger.Debug("Heap::BuildStatsString")

	var stats memutils.DetailedStatistics
	h.CalculateStatistics(&stats)

	writer := jwriter.NewWriter()
	objState := writer.Object()

	totalObj := objState.Name("Total").Object()
	printStatistics(&totalObj, &stats)
	totalObj.End()

	objState.Name("Flags").String(h.createFlags.String())

	if detailed {
		h.mutex.RLock()

		blocks := objState.Name("Blocks").Array()
		for _, id := range h.sortedIDsLocked() {
			block, _ := h.registry.Get(id)

			blockObj := blocks.Object()
			block.printParameters(&blockObj)
			blockObj.End()
		}
		blocks.End()

		h.mutex.RUnlock()
	}

	objState.End()

	return string(writer.Bytes())
}
