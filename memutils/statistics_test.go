package memutils_test

import (
	"math"
	"testing"

	"github.com/adam-mcdaniel/garbage/memutils"
	"github.com/stretchr/testify/require"
)

func TestDetailedStatistics(t *testing.T) {
	var stats memutils.DetailedStatistics
	stats.Clear()
	require.Equal(t, math.MaxInt, stats.BlockSizeMin)

	stats.AddBlock(8)
	stats.AddBlock(32)
	stats.AddBlock(16)
	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			BlockCount: 3,
			BlockBytes: 56,
		},
		BlockSizeMin: 8,
		BlockSizeMax: 32,
	}, stats)

	stats.Clear()
	require.Equal(t, 0, stats.BlockCount)
	require.Equal(t, 0, stats.BlockSizeMax)
}
