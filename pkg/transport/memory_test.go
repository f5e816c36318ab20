package transport

import (
	"context"
	"testing"
	"time"

	"github.com/fieldlink/meshlink/pkg/protocol"
)

func recvPayload(t *testing.T, n *MemoryNode) Payload {
	t.Helper()
	select {
	case p := <-n.Payloads():
		return p
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for payload")
		return Payload{}
	}
}

func TestHubDeliversToAllScanningNodes(t *testing.T) {
	hub := NewMemoryHub()
	a := hub.Attach()
	b := hub.Attach()
	c := hub.Attach()

	a.StartScan()
	b.StartScan()
	// c never scans

	if err := a.Advertise(context.Background(), []byte("frame"), 100*time.Millisecond); err != nil {
		t.Fatalf("Advertise: %v", err)
	}

	// the sender hears its own advertisement, like a real radio
	if got := recvPayload(t, a); string(got.Data) != "frame" {
		t.Fatalf("sender heard %q", got.Data)
	}
	if got := recvPayload(t, b); string(got.Data) != "frame" {
		t.Fatalf("peer heard %q", got.Data)
	}
	select {
	case p := <-c.Payloads():
		t.Fatalf("non-scanning node received % x", p.Data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDropInjection(t *testing.T) {
	hub := NewMemoryHub()
	a := hub.Attach()
	b := hub.Attach()
	b.StartScan()

	hub.DropNext(1)
	a.Advertise(context.Background(), []byte("lost"), 0)
	a.Advertise(context.Background(), []byte("kept"), 0)

	if got := recvPayload(t, b); string(got.Data) != "kept" {
		t.Fatalf("received %q, want kept", got.Data)
	}
}

func TestHubDuplicateInjection(t *testing.T) {
	hub := NewMemoryHub()
	a := hub.Attach()
	b := hub.Attach()
	b.StartScan()

	hub.DuplicateNext(1)
	a.Advertise(context.Background(), []byte("twice"), 0)

	first := recvPayload(t, b)
	second := recvPayload(t, b)
	if string(first.Data) != "twice" || string(second.Data) != "twice" {
		t.Fatalf("received %q then %q", first.Data, second.Data)
	}
}

func TestClosedNodeRejectsAdvertise(t *testing.T) {
	hub := NewMemoryHub()
	a := hub.Attach()
	a.Close()

	if err := a.Advertise(context.Background(), []byte("frame"), 0); err != ErrTransportUnavailable {
		t.Fatalf("Advertise on closed node = %v, want ErrTransportUnavailable", err)
	}
}

func TestGatewayOfflineSendFails(t *testing.T) {
	g := NewMemoryGateway(false)
	defer g.Close()

	err := g.Send(context.Background(), protocol.WireMessage{ID: "msg-1"})
	if err != ErrTransportUnavailable {
		t.Fatalf("Send while offline = %v, want ErrTransportUnavailable", err)
	}
	if g.Online() {
		t.Fatal("gateway reports online")
	}
}

func TestGatewayConnectivityTransitions(t *testing.T) {
	g := NewMemoryGateway(false)
	defer g.Close()

	g.SetOnline(true)
	select {
	case online := <-g.ConnectivityChanges():
		if !online {
			t.Fatal("expected online transition")
		}
	case <-time.After(time.Second):
		t.Fatal("no connectivity event")
	}

	// setting the same state again emits nothing
	g.SetOnline(true)
	select {
	case <-g.ConnectivityChanges():
		t.Fatal("redundant transition emitted")
	case <-time.After(50 * time.Millisecond):
	}

	if err := g.Send(context.Background(), protocol.WireMessage{ID: "msg-1"}); err != nil {
		t.Fatalf("Send while online: %v", err)
	}
	if len(g.Sent()) != 1 {
		t.Fatalf("Sent() has %d entries, want 1", len(g.Sent()))
	}
}

func TestGatewayInject(t *testing.T) {
	g := NewMemoryGateway(true)
	defer g.Close()

	g.Inject(protocol.WireMessage{ID: "msg-1", Content: "hi"})
	select {
	case msg := <-g.Messages():
		if msg.ID != "msg-1" {
			t.Fatalf("received %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("injected message never delivered")
	}
}
