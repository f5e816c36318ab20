package router

import (
	"fmt"
	"testing"
)

func TestPayloadDedup(t *testing.T) {
	d := newPayloadDedup(8)

	if d.Observe([]byte("frame-a")) {
		t.Fatal("first observation reported duplicate")
	}
	if !d.Observe([]byte("frame-a")) {
		t.Fatal("second observation not reported duplicate")
	}
	if d.Observe([]byte("frame-b")) {
		t.Fatal("distinct payload reported duplicate")
	}
}

func TestPayloadDedupEvictsOldest(t *testing.T) {
	d := newPayloadDedup(4)

	d.Observe([]byte("frame-0"))
	for i := 1; i <= 4; i++ {
		d.Observe([]byte(fmt.Sprintf("frame-%d", i)))
	}

	// frame-0 fell out of the window and reads as fresh again
	if d.Observe([]byte("frame-0")) {
		t.Fatal("evicted payload still reported duplicate")
	}
	// the newest entries are still tracked
	if !d.Observe([]byte("frame-4")) {
		t.Fatal("recent payload not reported duplicate")
	}
}

func TestRecentIDSet(t *testing.T) {
	s := newRecentIDSet(4)

	if s.Observe("id-1") {
		t.Fatal("fresh id reported seen")
	}
	if !s.Observe("id-1") {
		t.Fatal("repeated id not reported seen")
	}
	if !s.Contains("id-1") {
		t.Fatal("Contains missed a tracked id")
	}
	if s.Contains("id-2") {
		t.Fatal("Contains matched an unknown id")
	}
	// empty ids are never tracked
	if s.Observe("") || s.Observe("") {
		t.Fatal("empty id was tracked")
	}
}

func TestRecentIDSetEvictsOldest(t *testing.T) {
	s := newRecentIDSet(4)

	for i := 0; i < 5; i++ {
		s.Observe(fmt.Sprintf("id-%d", i))
	}
	if s.Contains("id-0") {
		t.Fatal("oldest id survived past the limit")
	}
	if !s.Contains("id-4") {
		t.Fatal("newest id missing")
	}
}
