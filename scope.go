package garbage

import (
	"github.com/adam-mcdaniel/garbage/memutils"
	"github.com/cockroachdb/errors"
)

// Scope releases the handles registered with it when it is closed, in the reverse of the order
// they were registered. It is the deterministic alternative to calling Release on every binding
// by hand before returning.
//
// A Scope is not safe for concurrent use.
type Scope struct {
	releasers []Releaser
	closed    bool
}

func NewScope() *Scope {
	return &Scope{}
}

// WithScope runs fn with a new Scope and closes the scope when fn returns or panics
func WithScope(fn func(s *Scope)) {
	s := NewScope()
	defer s.Close()

	fn(s)
}

// Track registers h with s and returns it, so construction and registration can be written
// as one expression
func Track[T any](s *Scope, h Handle[T]) Handle[T] {
	s.Defer(h)
	return h
}

// Defer registers r to be released when the scope closes
func (s *Scope) Defer(r Releaser) {
	if s.closed {
		panic(errors.Wrap(memutils.ErrDoubleRelease, "attempted to register a handle with a closed scope"))
	}

	s.releasers = append(s.releasers, r)
}

// Len returns the number of handles waiting to be released
func (s *Scope) Len() int {
	return len(s.releasers)
}

// Close releases every registered handle, most recently registered first. If a release panics,
// the handles still queued behind it are released before the panic continues. Closing a scope
// twice panics.
func (s *Scope) Close() {
	if s.closed {
		panic(errors.Wrap(memutils.ErrDoubleRelease, "scope was closed twice"))
	}
	s.closed = true

	s.releaseRemaining()
}

func (s *Scope) releaseRemaining() {
	if len(s.releasers) == 0 {
		return
	}

	last := len(s.releasers) - 1
	r := s.releasers[last]
	s.releasers[last] = nil
	s.releasers = s.releasers[:last]

	defer s.releaseRemaining()
	r.Release()
}
