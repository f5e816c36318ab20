package router

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/fieldlink/meshlink/pkg/protocol"
)

// DefaultAssemblyTimeout is how long a partial multi-chunk message is
// kept waiting for its missing chunks before it is discarded.
const DefaultAssemblyTimeout = 30 * time.Second

// assemblyKey identifies one in-flight reassembly. The message hash
// digit disambiguates concurrent long messages from the same sender on
// the same channel.
type assemblyKey struct {
	senderID    string
	channelHash uint16
	messageHash byte
}

type assembly struct {
	parts    []string
	have     []bool
	received int
	total    int
	timer    *time.Timer
}

// ChunkAssembler buffers chunk frames arriving in any order and
// produces the reassembled content once every index of a sequence has
// been seen. Incomplete sequences are evicted after a timeout; there is
// no retransmission request for missing chunks.
type ChunkAssembler struct {
	mu      sync.Mutex
	pending map[assemblyKey]*assembly
	timeout time.Duration
}

// NewChunkAssembler creates an assembler with the given eviction
// timeout. A non-positive timeout selects DefaultAssemblyTimeout.
func NewChunkAssembler(timeout time.Duration) *ChunkAssembler {
	if timeout <= 0 {
		timeout = DefaultAssemblyTimeout
	}
	return &ChunkAssembler{
		pending: make(map[assemblyKey]*assembly),
		timeout: timeout,
	}
}

// Ingest adds one chunk frame to its sequence. It returns the complete
// content and true when the frame filled the last gap; otherwise it
// returns "" and false. Duplicate indices are ignored. A frame whose
// total disagrees with the buffered sequence restarts the sequence,
// since the buffered chunks cannot belong to the same message.
func (a *ChunkAssembler) Ingest(senderID string, channelHash uint16, frame *protocol.ChunkFrame) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := assemblyKey{senderID: senderID, channelHash: channelHash, messageHash: frame.MessageHash}

	cur, ok := a.pending[key]
	if ok && cur.total != frame.Total {
		cur.timer.Stop()
		delete(a.pending, key)
		ok = false
	}
	if !ok {
		cur = &assembly{
			parts: make([]string, frame.Total),
			have:  make([]bool, frame.Total),
			total: frame.Total,
		}
		k := key
		cur.timer = time.AfterFunc(a.timeout, func() { a.evict(k) })
		a.pending[key] = cur
	}

	if cur.have[frame.Index] {
		return "", false
	}
	cur.parts[frame.Index] = frame.Data
	cur.have[frame.Index] = true
	cur.received++

	if cur.received < cur.total {
		return "", false
	}

	cur.timer.Stop()
	delete(a.pending, key)
	return strings.Join(cur.parts, ""), true
}

// PendingCount returns the number of in-flight reassemblies.
func (a *ChunkAssembler) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.pending)
}

// Stop cancels all eviction timers and drops buffered chunks.
func (a *ChunkAssembler) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, cur := range a.pending {
		cur.timer.Stop()
		delete(a.pending, key)
	}
}

func (a *ChunkAssembler) evict(key assemblyKey) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cur, ok := a.pending[key]; ok {
		log.Printf("discarding incomplete message from %s (%d/%d chunks)", key.senderID, cur.received, cur.total)
		delete(a.pending, key)
	}
}
