// Package access implements the single process-wide exclusive lock that
// guards the camera object and the endpoint registry (§4.4). Every
// handler acquires it on entry and releases on exit except StopPush,
// which must be accepted while Push holds the lock.
package access

import "sync"

// Serializer is the access serializer described in §4.4: a single
// mutex with one deliberate exemption. It is modeled after
// comm.RemoteDevice's embedded sync.Mutex, generalized from guarding
// one device's I/O to guarding the whole camera + registry state.
type Serializer struct {
	mu sync.Mutex
}

// New returns a ready-to-use Serializer.
func New() *Serializer {
	return &Serializer{}
}

// Lock acquires exclusive access. Every handler except StopPush calls
// this on entry.
func (s *Serializer) Lock() {
	s.mu.Lock()
}

// Unlock releases exclusive access.
func (s *Serializer) Unlock() {
	s.mu.Unlock()
}

// WithLock runs fn while holding the lock, always releasing it
// afterward even if fn panics.
func (s *Serializer) WithLock(fn func() error) error {
	s.Lock()
	defer s.Unlock()
	return fn()
}
