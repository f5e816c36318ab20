package router

import (
	"log"
	"sort"
	"sync"

	"github.com/fieldlink/meshlink/pkg/protocol"
)

// ChannelTable maps 15-bit channel hashes to the channel identifiers the
// local node has joined. Resolution against this table is the sole gate
// for admitting an inbound mesh frame into the visible message stream:
// a valid beacon for an unknown hash is silently discarded.
//
// Distinct channel names can collide within the 15-bit space. The first
// joined channel keeps the hash; later colliding joins are members for
// outbound purposes but inbound frames resolve to the earlier channel.
// Accepted limitation of the addressing scheme, kept for wire
// compatibility.
type ChannelTable struct {
	mu     sync.RWMutex
	byHash map[uint16]string
	byID   map[string]uint16
}

// NewChannelTable creates an empty membership table.
func NewChannelTable() *ChannelTable {
	return &ChannelTable{
		byHash: make(map[uint16]string),
		byID:   make(map[string]uint16),
	}
}

// Join adds a channel to the membership set and returns its wire hash.
func (t *ChannelTable) Join(channelID string) uint16 {
	hash := protocol.ChannelHash(channelID)

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.byHash[hash]; ok && existing != channelID {
		log.Printf("channel hash collision: %q and %q both map to %#04x, %q wins for inbound",
			channelID, existing, hash, existing)
	} else {
		t.byHash[hash] = channelID
	}

	t.byID[channelID] = hash
	return hash
}

// Leave removes a channel from the membership set.
func (t *ChannelTable) Leave(channelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	hash, ok := t.byID[channelID]
	if !ok {
		return
	}

	delete(t.byID, channelID)
	if t.byHash[hash] == channelID {
		delete(t.byHash, hash)
	}
}

// Resolve looks up an inbound channel hash against local membership.
func (t *ChannelTable) Resolve(hash uint16) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	channelID, ok := t.byHash[hash]
	return channelID, ok
}

// IsMember reports whether the local node has joined the channel.
func (t *ChannelTable) IsMember(channelID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.byID[channelID]
	return ok
}

// Channels returns a sorted snapshot of joined channel identifiers.
func (t *ChannelTable) Channels() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	channels := make([]string, 0, len(t.byID))
	for id := range t.byID {
		channels = append(channels, id)
	}

	sort.Strings(channels)
	return channels
}
