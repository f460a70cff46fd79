package garbage

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func newTestHeap(t require.TestingT, options CreateOptions) *Heap {
	heap, err := New(nil, options)
	require.NoError(t, err)
	return heap
}

func requirePanicsWith(t *testing.T, target error, fn func()) {
	t.Helper()

	var recovered any
	func() {
		defer func() {
			recovered = recover()
		}()
		fn()
	}()

	require.NotNil(t, recovered, "expected a panic wrapping %v", target)
	err, isError := recovered.(error)
	require.True(t, isError, "expected the panic value to be an error, got %+v", recovered)
	require.True(t, errors.Is(err, target), "expected %v, got %v", target, err)
}
