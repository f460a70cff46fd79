//go:build !debug_garbage_stacks

package garbage

const (
	// CaptureStacks causes every block to remember the stack that allocated it, so leak reports
	// and BuildStatsString can point at the caller that forgot to release. It is only active when
	// the debug_garbage_stacks build tag is present.
	CaptureStacks bool = false
)

func captureStack() []byte {
	return nil
}
