package router

import (
	"sync"

	"golang.org/x/crypto/blake2b"
)

// payloadDedup remembers digests of recently observed raw broadcast
// payloads so re-advertised or echoed frames are dropped before any
// decoding work. Bounded FIFO eviction keeps memory flat on a busy
// channel.
type payloadDedup struct {
	mu    sync.Mutex
	seen  map[[32]byte]struct{}
	order [][32]byte
	limit int
}

func newPayloadDedup(limit int) *payloadDedup {
	if limit <= 0 {
		limit = 256
	}
	return &payloadDedup{
		seen:  make(map[[32]byte]struct{}, limit),
		limit: limit,
	}
}

// Observe records the payload digest and reports whether it was
// already present.
func (d *payloadDedup) Observe(payload []byte) bool {
	sum := blake2b.Sum256(payload)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[sum]; ok {
		return true
	}

	d.seen[sum] = struct{}{}
	d.order = append(d.order, sum)
	if len(d.order) > d.limit {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	return false
}

// recentIDSet tracks message ids already routed so a message coming
// back over the other path is not re-delivered or re-forwarded.
type recentIDSet struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	limit int
}

func newRecentIDSet(limit int) *recentIDSet {
	if limit <= 0 {
		limit = 512
	}
	return &recentIDSet{
		seen:  make(map[string]struct{}, limit),
		limit: limit,
	}
}

// Observe records the id and reports whether it was already present.
func (s *recentIDSet) Observe(id string) bool {
	if id == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[id]; ok {
		return true
	}

	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > s.limit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.seen, oldest)
	}
	return false
}

// Contains checks membership without recording.
func (s *recentIDSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.seen[id]
	return ok
}
