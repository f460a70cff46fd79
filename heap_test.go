package garbage

import (
	"encoding/json"
	"math"
	"os"
	"testing"

	"github.com/adam-mcdaniel/garbage/memutils"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func TestNewRejectsInvalidAlignment(t *testing.T) {
	_, err := New(nil, CreateOptions{MinAllocationAlignment: 12})
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.PowerOfTwoError))
}

func TestNewWithLogger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout))

	heap, err := New(logger, CreateOptions{Flags: HeapCreateExternallySynchronized})
	require.NoError(t, err)
	require.Equal(t, HeapCreateExternallySynchronized, heap.Flags())
	require.Equal(t, "HeapCreateExternallySynchronized", heap.Flags().String())
	require.Equal(t, "None", CreateFlags(0).String())

	h := NewHandle(heap, 1)
	h.Release()
	heap.CheckHeap()
}

func TestLeaksReportsBlockKinds(t *testing.T) {
	heap := newTestHeap(t, CreateOptions{})

	h := NewHandle(heap, int64(1))
	raw := Allocate(heap, byte(2))

	err := heap.Leaks()
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrLeakDetected))
	require.Contains(t, err.Error(), "1 handles were not released (3 blocks outstanding: 1 payload, 1 counter, 1 raw)")

	raw.Free()
	h.Release()
	require.NoError(t, heap.Leaks())
}

func TestShutdownResetsHeap(t *testing.T) {
	heap := newTestHeap(t, CreateOptions{})

	leaked := NewHandle(heap, "leaked")
	copied := leaked.Copy()

	err := heap.Shutdown()
	require.True(t, errors.Is(err, memutils.ErrLeakDetected))
	require.Equal(t, 0, heap.Outstanding())
	require.NoError(t, heap.Leaks())
	require.NoError(t, heap.Validate())

	requirePanicsWith(t, memutils.ErrUseAfterFree, func() { leaked.Value() })
	requirePanicsWith(t, memutils.ErrDoubleRelease, func() { copied.Release() })

	// The heap is usable again after a shutdown
	h := NewHandle(heap, "fresh")
	h.Release()
	require.NoError(t, heap.Shutdown())
}

func TestCalculateStatistics(t *testing.T) {
	heap := newTestHeap(t, CreateOptions{})

	var stats memutils.DetailedStatistics
	heap.CalculateStatistics(&stats)
	require.Equal(t, memutils.DetailedStatistics{
		BlockSizeMin: math.MaxInt,
	}, stats)

	h := NewHandle(heap, [4]int64{})
	raw := Allocate(heap, byte(1))
	freed := Allocate(heap, 1)
	freed.Free()

	heap.CalculateStatistics(&stats)
	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			BlockCount:      3,
			BlockBytes:      32 + 8 + 8,
			AllocationCount: 4,
			FreeCount:       1,
		},
		HandleCount:  1,
		CounterCount: 1,
		RawCount:     1,
		BlockSizeMin: 8,
		BlockSizeMax: 32,
	}, stats)

	h.Release()
	raw.Free()
}

type statsDocument struct {
	Total struct {
		BlockCount      int
		BlockBytes      int
		AllocationCount int
		FreeCount       int
		HandleCount     int
		CounterCount    int
		RawCount        int
	}
	Flags  string
	Blocks []struct {
		ID   int
		Kind string
		Type string
		Size int
		Name string
	}
}

func TestBuildStatsString(t *testing.T) {
	heap := newTestHeap(t, CreateOptions{})

	h := NewHandle(heap, "payload")
	raw := Allocate(heap, int32(4))
	raw.SetName("raw block")

	var doc statsDocument
	require.NoError(t, json.Unmarshal([]byte(heap.BuildStatsString(false)), &doc))
	require.Equal(t, 3, doc.Total.BlockCount)
	require.Equal(t, 1, doc.Total.HandleCount)
	require.Equal(t, "None", doc.Flags)
	require.Empty(t, doc.Blocks)

	doc = statsDocument{}
	require.NoError(t, json.Unmarshal([]byte(heap.BuildStatsString(true)), &doc))
	require.Len(t, doc.Blocks, 3)

	require.Equal(t, "Payload", doc.Blocks[0].Kind)
	require.Equal(t, "string", doc.Blocks[0].Type)
	require.Equal(t, "Counter", doc.Blocks[1].Kind)
	require.Equal(t, "int32", doc.Blocks[1].Type)
	require.Equal(t, 8, doc.Blocks[1].Size)
	require.Equal(t, "Raw", doc.Blocks[2].Kind)
	require.Equal(t, "raw block", doc.Blocks[2].Name)
	require.Less(t, doc.Blocks[0].ID, doc.Blocks[1].ID)

	h.Release()
	raw.Free()

	doc = statsDocument{}
	require.NoError(t, json.Unmarshal([]byte(heap.BuildStatsString(true)), &doc))
	require.Equal(t, 0, doc.Total.BlockCount)
	require.Equal(t, 3, doc.Total.FreeCount)
	require.Empty(t, doc.Blocks)
}

type callbackRecord struct {
	id   uint64
	kind BlockKind
	size int
}

func TestCallbacks(t *testing.T) {
	var allocated, freed []callbackRecord

	heap := newTestHeap(t, CreateOptions{
		Callbacks: &CallbackOptions{
			Allocate: func(heap *Heap, id uint64, kind BlockKind, size int, userData any) {
				require.Equal(t, "user data", userData)
				allocated = append(allocated, callbackRecord{id: id, kind: kind, size: size})
			},
			Free: func(heap *Heap, id uint64, kind BlockKind, size int, userData any) {
				freed = append(freed, callbackRecord{id: id, kind: kind, size: size})
			},
			UserData: "user data",
		},
	})

	h := NewHandle(heap, int64(5))
	h2 := h.Copy()
	require.Equal(t, []callbackRecord{
		{id: 1, kind: BlockKindPayload, size: 8},
		{id: 2, kind: BlockKindCounter, size: 8},
	}, allocated)

	h.Release()
	require.Empty(t, freed)

	h2.Release()
	require.Equal(t, []callbackRecord{
		{id: 1, kind: BlockKindPayload, size: 8},
		{id: 2, kind: BlockKindCounter, size: 8},
	}, freed)

	raw := Allocate(heap, true)
	raw.Free()
	require.Len(t, allocated, 3)
	require.Equal(t, callbackRecord{id: 3, kind: BlockKindRaw, size: 8}, freed[2])
}

func TestValidateDetectsMismatch(t *testing.T) {
	heap := newTestHeap(t, CreateOptions{})

	h := NewHandle(heap, 1)
	require.NoError(t, heap.Validate())

	heap.outstanding.Add(1)
	require.Error(t, heap.Validate())
	heap.outstanding.Add(-1)

	h.Release()
	require.NoError(t, heap.Validate())
}

func TestBlockKindString(t *testing.T) {
	require.Equal(t, "Raw", BlockKindRaw.String())
	require.Equal(t, "Payload", BlockKindPayload.String())
	require.Equal(t, "Counter", BlockKindCounter.String())
	require.Equal(t, "Unknown", BlockKind(200).String())
}
