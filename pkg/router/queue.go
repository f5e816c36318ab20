package router

import (
	"log"
	"sort"

	"github.com/fieldlink/meshlink/pkg/protocol"
)

// messageQueue is a bounded holding area for messages that could not be
// sent immediately. When full, the oldest entry is evicted so a long
// offline stretch cannot grow memory without bound.
type messageQueue struct {
	name  string
	items []protocol.WireMessage
	limit int
}

func newMessageQueue(name string, limit int) *messageQueue {
	if limit <= 0 {
		limit = 100
	}
	return &messageQueue{name: name, limit: limit}
}

func (q *messageQueue) Push(msg protocol.WireMessage) {
	for _, m := range q.items {
		if m.ID == msg.ID {
			return
		}
	}
	q.items = append(q.items, msg)
	if len(q.items) > q.limit {
		evicted := q.items[0]
		q.items = q.items[1:]
		log.Printf("⚠️ %s queue full, evicting oldest message %s", q.name, evicted.ID)
	}
}

// Drain returns all queued messages sorted by timestamp and empties the
// queue. Wire timestamps are second-accurate, so the order is stable
// per second only.
func (q *messageQueue) Drain() []protocol.WireMessage {
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

func (q *messageQueue) Len() int {
	return len(q.items)
}
