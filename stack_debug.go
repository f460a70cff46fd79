//go:build debug_garbage_stacks

package garbage

import "runtime/debug"

const (
	// CaptureStacks causes every block to remember the stack that allocated it, so leak reports
	// and BuildStatsString can point at the caller that forgot to release. It impacts performance
	// and should generally be left deactivated.
	CaptureStacks bool = true
)

func captureStack() []byte {
	return debug.Stack()
}
