package memutils

import "math"

// Statistics is a point-in-time summary of the blocks a heap is tracking
type Statistics struct {
	// BlockCount is the number of blocks that are currently allocated and unfreed
	BlockCount int
	// BlockBytes is the aligned size of all currently allocated blocks
	BlockBytes int
	// AllocationCount is the number of blocks allocated over the lifetime of the heap
	AllocationCount int
	// FreeCount is the number of blocks freed over the lifetime of the heap
	FreeCount int
}

func (s *Statistics) Clear() {
	s.BlockCount = 0
	s.BlockBytes = 0
	s.AllocationCount = 0
	s.FreeCount = 0
}

// DetailedStatistics breaks the live blocks in Statistics down by kind and size
type DetailedStatistics struct {
	Statistics
	// HandleCount is the number of live payload blocks, which is the number of logical handles
	// that have not been fully released
	HandleCount int
	// CounterCount is the number of live shared-count blocks
	CounterCount int
	// RawCount is the number of live blocks allocated directly rather than through a handle
	RawCount int

	BlockSizeMin int
	BlockSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.HandleCount = 0
	s.CounterCount = 0
	s.RawCount = 0
	s.BlockSizeMin = math.MaxInt
	s.BlockSizeMax = 0
}

// AddBlock records a single live block of the provided size
func (s *DetailedStatistics) AddBlock(size int) {
	s.BlockCount++
	s.BlockBytes += size

	if size < s.BlockSizeMin {
		s.BlockSizeMin = size
	}

	if size > s.BlockSizeMax {
		s.BlockSizeMax = size
	}
}
