// Package transport defines the two delivery paths the router composes:
// a connectionless short-range broadcast medium and a connection-oriented
// online channel. The router depends only on the interfaces here; the
// in-memory hub and the libp2p gateway adapter are the two concrete
// implementations.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/fieldlink/meshlink/pkg/protocol"
)

// ErrTransportUnavailable reports that a send could not be attempted
// because the underlying medium is not ready. Callers queue and retry
// rather than surfacing this to the user.
var ErrTransportUnavailable = errors.New("transport unavailable")

// Payload is one raw frame received from the broadcast medium, with
// the signal strength the radio reported for it.
type Payload struct {
	Data []byte
	RSSI int
}

// BroadcastTransport is the short-range, connectionless path. Payloads
// are delivered whole but may be duplicated or dropped silently; the
// consumer deduplicates.
type BroadcastTransport interface {
	StartScan() error
	StopScan()

	// Advertise broadcasts the payload for the given duration, or
	// until the context is cancelled. It returns
	// ErrTransportUnavailable when the medium is not ready.
	Advertise(ctx context.Context, payload []byte, duration time.Duration) error
	StopAdvertise()

	// Payloads delivers received frames. The channel is closed when
	// the transport shuts down.
	Payloads() <-chan Payload
}

// OnlineTransport is the connection-oriented path, reachable only with
// internet connectivity.
type OnlineTransport interface {
	// Send delivers the message to the gateway. It returns
	// ErrTransportUnavailable when offline.
	Send(ctx context.Context, msg protocol.WireMessage) error

	// Messages delivers inbound messages from the gateway.
	Messages() <-chan protocol.WireMessage

	// ConnectivityChanges emits the new connectivity state on every
	// transition. The current state is readable via Online.
	ConnectivityChanges() <-chan bool
	Online() bool

	Close() error
}
