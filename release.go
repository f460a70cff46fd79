package garbage

// Releaser is anything that must be released exactly once. Every Handle is a Releaser.
type Releaser interface {
	Release()
}

// Release calls Release on each of the provided handles in order. It does not deduplicate:
// passing the same handle twice panics on the second release.
func Release(handles ...Releaser) {
	for _, handle := range handles {
		handle.Release()
	}
}
