package router

import (
	"log"

	"github.com/fieldlink/meshlink/pkg/protocol"
)

// DeliveryStatus tracks the lifecycle of an outbound message.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
)

// StatusUpdate reports a delivery-state transition for a sent message.
type StatusUpdate struct {
	MessageID string
	Status    DeliveryStatus
}

// PresenceUpdate reports that a peer was heard from over the mesh.
type PresenceUpdate struct {
	AuthorID string
	Alias    string
	LastSeen int64
}

// ChannelEvent reports a channel-level control frame: an invite to the
// shared discovery channel or a channel deletion announcement.
type ChannelEvent struct {
	ChannelHash uint16
	ChannelID   string
	SenderID    string
}

// Events carries router output to the embedding application. Channels
// are buffered; a consumer that falls behind loses events rather than
// stalling the router loop.
type Events struct {
	Messages chan protocol.WireMessage
	Status   chan StatusUpdate
	Invites  chan ChannelEvent
	Deletes  chan ChannelEvent
	Presence chan PresenceUpdate
}

func newEvents(buffer int) *Events {
	if buffer <= 0 {
		buffer = 64
	}
	return &Events{
		Messages: make(chan protocol.WireMessage, buffer),
		Status:   make(chan StatusUpdate, buffer),
		Invites:  make(chan ChannelEvent, buffer),
		Deletes:  make(chan ChannelEvent, buffer),
		Presence: make(chan PresenceUpdate, buffer),
	}
}

func (e *Events) publishMessage(msg protocol.WireMessage) {
	select {
	case e.Messages <- msg:
	default:
		log.Printf("⚠️ dropping message event %s: consumer not keeping up", msg.ID)
	}
}

func (e *Events) publishStatus(id string, status DeliveryStatus) {
	select {
	case e.Status <- StatusUpdate{MessageID: id, Status: status}:
	default:
		log.Printf("⚠️ dropping status event for %s", id)
	}
}

func (e *Events) publishInvite(ev ChannelEvent) {
	select {
	case e.Invites <- ev:
	default:
		log.Printf("⚠️ dropping invite event for %s", ev.ChannelID)
	}
}

func (e *Events) publishDelete(ev ChannelEvent) {
	select {
	case e.Deletes <- ev:
	default:
		log.Printf("⚠️ dropping delete event for hash %#04x", ev.ChannelHash)
	}
}

func (e *Events) publishPresence(ev PresenceUpdate) {
	select {
	case e.Presence <- ev:
	default:
	}
}
