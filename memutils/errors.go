package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

var (
	// ErrUseAfterFree is the cause of the panic raised when a freed block is read or written
	ErrUseAfterFree error = errors.New("use after free")
	// ErrDoubleFree is the cause of the panic raised when a block is freed a second time
	ErrDoubleFree error = errors.New("double free")
	// ErrDoubleRelease is the cause of the panic raised when a handle is released after its
	// shared count has already reached zero, or when the same handle copy is released twice
	ErrDoubleRelease error = errors.New("release of already-collected handle")
	// ErrLeakDetected is returned (or raised) by the heap check when blocks remain unfreed
	ErrLeakDetected error = errors.New("leak detected")
	// ErrNilAllocation is the cause of the panic raised when a zero-value Allocation or Handle is used
	ErrNilAllocation error = errors.New("allocation was never created")
)
