package router

import (
	"sync"
	"testing"
	"time"
)

type ackRecorder struct {
	mu      sync.Mutex
	retries []string
	failed  []string
}

func (r *ackRecorder) onRetry(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries = append(r.retries, id)
}

func (r *ackRecorder) onFailed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, id)
}

func (r *ackRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.retries), len(r.failed)
}

func TestAckResolvesPendingMessage(t *testing.T) {
	rec := &ackRecorder{}
	tracker := NewAckTracker(time.Hour, rec.onRetry, rec.onFailed)
	defer tracker.Stop()

	tracker.RegisterOutbound("msg-1", "aabbccdd")
	if !tracker.IsPending("msg-1") {
		t.Fatal("message should be pending after register")
	}

	id, ok := tracker.OnAckReceived("aabbccdd")
	if !ok || id != "msg-1" {
		t.Fatalf("OnAckReceived = %q, %v; want msg-1, true", id, ok)
	}
	if tracker.IsPending("msg-1") {
		t.Fatal("message still pending after ack")
	}
	if tracker.IsFailed("msg-1") {
		t.Fatal("acked message reported failed")
	}

	// late duplicate ack is ignored, not an error
	if _, ok := tracker.OnAckReceived("aabbccdd"); ok {
		t.Fatal("duplicate ack correlated to a resolved message")
	}
}

func TestRetriesExhaustToFailure(t *testing.T) {
	rec := &ackRecorder{}
	tracker := NewAckTracker(15*time.Millisecond, rec.onRetry, rec.onFailed)
	defer tracker.Stop()

	tracker.RegisterOutbound("msg-1", "aabbccdd")

	deadline := time.After(2 * time.Second)
	for {
		if tracker.IsFailed("msg-1") {
			break
		}
		select {
		case <-deadline:
			t.Fatal("message never reached failed state")
		case <-time.After(5 * time.Millisecond):
		}
	}

	retries, failed := rec.counts()
	// three timer firings total: two resends, then terminal failure
	if retries != MaxSendAttempts-1 {
		t.Fatalf("retry callbacks = %d, want %d", retries, MaxSendAttempts-1)
	}
	if failed != 1 {
		t.Fatalf("failed callbacks = %d, want 1", failed)
	}
	if tracker.IsPending("msg-1") {
		t.Fatal("failed message still pending")
	}

	// failure is terminal: no further callbacks
	time.Sleep(50 * time.Millisecond)
	if r, f := rec.counts(); r != retries || f != failed {
		t.Fatalf("callbacks after failure: retries %d->%d, failed %d->%d", retries, r, failed, f)
	}
}

func TestAckCancelsRetryTimer(t *testing.T) {
	rec := &ackRecorder{}
	tracker := NewAckTracker(30*time.Millisecond, rec.onRetry, rec.onFailed)
	defer tracker.Stop()

	tracker.RegisterOutbound("msg-1", "aabbccdd")
	if _, ok := tracker.OnAckReceived("aabbccdd"); !ok {
		t.Fatal("ack did not correlate")
	}

	time.Sleep(120 * time.Millisecond)
	if retries, failed := rec.counts(); retries != 0 || failed != 0 {
		t.Fatalf("timer fired after ack: retries=%d failed=%d", retries, failed)
	}
}

func TestCancelStopsTrackingWithoutFailure(t *testing.T) {
	rec := &ackRecorder{}
	tracker := NewAckTracker(30*time.Millisecond, rec.onRetry, rec.onFailed)
	defer tracker.Stop()

	tracker.RegisterOutbound("msg-1", "aabbccdd")
	tracker.Cancel("msg-1")

	if tracker.IsPending("msg-1") {
		t.Fatal("cancelled message still pending")
	}
	if tracker.IsFailed("msg-1") {
		t.Fatal("cancelled message reported failed")
	}
	if _, ok := tracker.OnAckReceived("aabbccdd"); ok {
		t.Fatal("cancelled digest still correlates")
	}

	time.Sleep(120 * time.Millisecond)
	if retries, failed := rec.counts(); retries != 0 || failed != 0 {
		t.Fatalf("timer fired after cancel: retries=%d failed=%d", retries, failed)
	}

	// cancelled messages can be registered again for a later attempt
	tracker.RegisterOutbound("msg-1", "aabbccdd")
	if !tracker.IsPending("msg-1") {
		t.Fatal("re-register after cancel did not take")
	}
}

func TestRegisterPendingIsNoOp(t *testing.T) {
	tracker := NewAckTracker(time.Hour, nil, nil)
	defer tracker.Stop()

	tracker.RegisterOutbound("msg-1", "aabbccdd")
	tracker.RegisterOutbound("msg-1", "11223344")

	if tracker.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d, want 1", tracker.PendingCount())
	}
	// the original digest still correlates
	if _, ok := tracker.OnAckReceived("aabbccdd"); !ok {
		t.Fatal("original digest no longer correlates")
	}
}

func TestUnknownAckIsIgnored(t *testing.T) {
	tracker := NewAckTracker(time.Hour, nil, nil)
	defer tracker.Stop()

	if id, ok := tracker.OnAckReceived("deadbeef"); ok {
		t.Fatalf("unknown ack correlated to %q", id)
	}
}

func TestPendingSnapshot(t *testing.T) {
	tracker := NewAckTracker(time.Hour, nil, nil)
	defer tracker.Stop()

	tracker.RegisterOutbound("msg-1", "aabbccdd")
	tracker.RegisterOutbound("msg-2", "11223344")

	pending := tracker.Pending()
	if len(pending) != 2 {
		t.Fatalf("Pending() returned %d entries, want 2", len(pending))
	}
	for _, p := range pending {
		if p.Attempts != 1 {
			t.Fatalf("fresh entry has %d attempts, want 1", p.Attempts)
		}
	}
}
