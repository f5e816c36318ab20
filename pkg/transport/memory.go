package transport

import (
	"context"
	"sync"
	"time"

	"github.com/fieldlink/meshlink/pkg/protocol"
)

// MemoryHub is an in-process broadcast medium. Every node attached to
// the hub receives every advertised payload, including the sender's
// own, which mirrors how a radio hears its own advertisement. Drop and
// duplicate injection make the medium's failure modes reproducible.
type MemoryHub struct {
	mu        sync.Mutex
	nodes     []*MemoryNode
	dropNext  int
	duplicate int
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{}
}

// Attach creates a node joined to this hub.
func (h *MemoryHub) Attach() *MemoryNode {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := &MemoryNode{
		hub:      h,
		payloads: make(chan Payload, 64),
	}
	h.nodes = append(h.nodes, n)
	return n
}

// DropNext discards the next n advertised payloads.
func (h *MemoryHub) DropNext(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropNext = n
}

// DuplicateNext delivers the next n advertised payloads twice.
func (h *MemoryHub) DuplicateNext(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.duplicate = n
}

func (h *MemoryHub) broadcast(payload []byte) {
	h.mu.Lock()
	if h.dropNext > 0 {
		h.dropNext--
		h.mu.Unlock()
		return
	}
	copies := 1
	if h.duplicate > 0 {
		h.duplicate--
		copies = 2
	}
	nodes := make([]*MemoryNode, len(h.nodes))
	copy(nodes, h.nodes)
	h.mu.Unlock()

	frame := make([]byte, len(payload))
	copy(frame, payload)
	for i := 0; i < copies; i++ {
		for _, n := range nodes {
			n.deliver(Payload{Data: frame, RSSI: -40})
		}
	}
}

// MemoryNode implements BroadcastTransport against a MemoryHub.
type MemoryNode struct {
	hub      *MemoryHub
	payloads chan Payload

	mu       sync.Mutex
	scanning bool
	closed   bool
}

func (n *MemoryNode) StartScan() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scanning = true
	return nil
}

func (n *MemoryNode) StopScan() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scanning = false
}

func (n *MemoryNode) Advertise(ctx context.Context, payload []byte, duration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	closed := n.closed
	n.mu.Unlock()
	if closed {
		return ErrTransportUnavailable
	}
	n.hub.broadcast(payload)
	return nil
}

func (n *MemoryNode) StopAdvertise() {}

func (n *MemoryNode) Payloads() <-chan Payload { return n.payloads }

// Close detaches the node; further advertises fail.
func (n *MemoryNode) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	close(n.payloads)
}

func (n *MemoryNode) deliver(p Payload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed || !n.scanning {
		return
	}
	select {
	case n.payloads <- p:
	default:
	}
}

// MemoryGateway is an in-process OnlineTransport with switchable
// connectivity. Sent messages are recorded for inspection and inbound
// messages are injected directly.
type MemoryGateway struct {
	mu       sync.Mutex
	online   bool
	sent     []protocol.WireMessage
	inbound  chan protocol.WireMessage
	statusCh chan bool
	closed   bool
}

// NewMemoryGateway creates a gateway in the given connectivity state.
func NewMemoryGateway(online bool) *MemoryGateway {
	return &MemoryGateway{
		online:   online,
		inbound:  make(chan protocol.WireMessage, 64),
		statusCh: make(chan bool, 8),
	}
}

func (g *MemoryGateway) Send(ctx context.Context, msg protocol.WireMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.online || g.closed {
		return ErrTransportUnavailable
	}
	g.sent = append(g.sent, msg)
	return nil
}

func (g *MemoryGateway) Messages() <-chan protocol.WireMessage { return g.inbound }

func (g *MemoryGateway) ConnectivityChanges() <-chan bool { return g.statusCh }

func (g *MemoryGateway) Online() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.online
}

func (g *MemoryGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	close(g.inbound)
	close(g.statusCh)
	return nil
}

// SetOnline flips connectivity and notifies subscribers.
func (g *MemoryGateway) SetOnline(online bool) {
	g.mu.Lock()
	if g.closed || g.online == online {
		g.mu.Unlock()
		return
	}
	g.online = online
	g.mu.Unlock()
	g.statusCh <- online
}

// Inject delivers a message as if received from the gateway.
func (g *MemoryGateway) Inject(msg protocol.WireMessage) {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return
	}
	g.inbound <- msg
}

// Sent returns a copy of everything delivered through Send.
func (g *MemoryGateway) Sent() []protocol.WireMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]protocol.WireMessage, len(g.sent))
	copy(out, g.sent)
	return out
}
