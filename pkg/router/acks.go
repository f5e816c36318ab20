package router

import (
	"log"
	"sync"
	"time"
)

const (
	// MaxSendAttempts bounds mesh delivery attempts per message,
	// counting the initial send.
	MaxSendAttempts = 3

	// DefaultRetryInterval is the delay between delivery attempts.
	DefaultRetryInterval = 1750 * time.Millisecond
)

// PendingAck is a read-only snapshot of one outbound message awaiting
// acknowledgement.
type PendingAck struct {
	MessageID string
	Digest    string
	Attempts  int
}

type pendingEntry struct {
	messageID string
	digest    string
	attempts  int
	timer     *time.Timer
}

// AckTracker drives the per-message retry state machine:
// Pending(1) -> Pending(2) -> Pending(3) -> Failed, with an ack at any
// point short-circuiting to resolved. Retries are re-triggered by the
// tracker itself through the retry callback; callers never poll.
//
// Only user-visible content messages enter the tracker. Heartbeats and
// ack beacons are best-effort by design; tracking them would invite
// retry storms on liveness traffic.
type AckTracker struct {
	mu       sync.Mutex
	pending  map[string]*pendingEntry // by message id
	byDigest map[string]string        // delivery digest -> message id
	failed   map[string]bool

	interval time.Duration
	onRetry  func(messageID string)
	onFailed func(messageID string)
	stopped  bool
}

// NewAckTracker creates a tracker. onRetry re-enters the send path for
// a still-pending message; onFailed reports terminal delivery failure.
// Both are invoked outside the tracker's lock.
func NewAckTracker(interval time.Duration, onRetry, onFailed func(messageID string)) *AckTracker {
	if interval <= 0 {
		interval = DefaultRetryInterval
	}

	return &AckTracker{
		pending:  make(map[string]*pendingEntry),
		byDigest: make(map[string]string),
		failed:   make(map[string]bool),
		interval: interval,
		onRetry:  onRetry,
		onFailed: onFailed,
	}
}

// RegisterOutbound starts tracking a freshly sent message and arms its
// retry timer. Registering an id that is already pending is a no-op.
func (t *AckTracker) RegisterOutbound(messageID, digest string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if _, ok := t.pending[messageID]; ok {
		return
	}

	entry := &pendingEntry{
		messageID: messageID,
		digest:    digest,
		attempts:  1,
	}
	entry.timer = time.AfterFunc(t.interval, func() { t.onTimeout(messageID) })

	t.pending[messageID] = entry
	t.byDigest[digest] = messageID
	delete(t.failed, messageID)
}

// onTimeout advances the state machine for one message. The entry check
// under the lock makes cancellation deterministic: an ack that removed
// the entry wins, and this firing becomes a no-op.
func (t *AckTracker) onTimeout(messageID string) {
	t.mu.Lock()

	entry, ok := t.pending[messageID]
	if !ok || t.stopped {
		t.mu.Unlock()
		return
	}

	entry.attempts++
	if entry.attempts > MaxSendAttempts {
		t.remove(entry)
		t.failed[messageID] = true
		t.mu.Unlock()

		log.Printf("delivery failed after %d attempts: %s", MaxSendAttempts, messageID)
		if t.onFailed != nil {
			t.onFailed(messageID)
		}
		return
	}

	entry.timer = time.AfterFunc(t.interval, func() { t.onTimeout(messageID) })
	t.mu.Unlock()

	if t.onRetry != nil {
		t.onRetry(messageID)
	}
}

// OnAckReceived correlates an inbound delivery digest with a pending
// message. It returns the resolved message id and whether the ack
// matched a still-pending entry. Acks for unknown or already-resolved
// messages are not errors; duplicate and late acks land here and are
// simply ignored by the caller.
func (t *AckTracker) OnAckReceived(digest string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	messageID, ok := t.byDigest[digest]
	if !ok {
		return "", false
	}

	entry, ok := t.pending[messageID]
	if !ok {
		return "", false
	}

	t.remove(entry)
	return messageID, true
}

// remove drops an entry and cancels its timer. Callers hold the lock.
func (t *AckTracker) remove(entry *pendingEntry) {
	entry.timer.Stop()
	delete(t.pending, entry.messageID)
	delete(t.byDigest, entry.digest)
}

// Cancel stops tracking a message without resolving or failing it, for
// sends that never reached the medium. The message can be registered
// again on a later attempt.
func (t *AckTracker) Cancel(messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.pending[messageID]; ok {
		t.remove(entry)
	}
}

// IsPending reports whether a message is still awaiting an ack.
func (t *AckTracker) IsPending(messageID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.pending[messageID]
	return ok
}

// IsFailed reports whether a message exhausted its delivery attempts.
func (t *AckTracker) IsFailed(messageID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.failed[messageID]
}

// PendingCount returns the number of messages awaiting acknowledgement.
func (t *AckTracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.pending)
}

// Pending returns a snapshot of all tracked messages.
func (t *AckTracker) Pending() []PendingAck {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]PendingAck, 0, len(t.pending))
	for _, e := range t.pending {
		out = append(out, PendingAck{MessageID: e.messageID, Digest: e.digest, Attempts: e.attempts})
	}
	return out
}

// Stop cancels all timers. No callbacks fire after Stop returns.
func (t *AckTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	for _, entry := range t.pending {
		entry.timer.Stop()
	}
	t.pending = make(map[string]*pendingEntry)
	t.byDigest = make(map[string]string)
}
