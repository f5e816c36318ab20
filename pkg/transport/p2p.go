package transport

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	libp2pproto "github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"

	"github.com/fieldlink/meshlink/pkg/protocol"
)

// ProtocolID identifies the gateway message protocol on libp2p streams.
const ProtocolID = libp2pproto.ID("/meshlink/gateway/1.0.0")

// Gateway frame types.
const (
	frameTypeMessage = "message"
	frameTypeOK      = "ok"
	frameTypeError   = "error"
)

// gatewayFrame is the JSON envelope exchanged on a gateway stream. One
// request frame and one response frame per stream.
type gatewayFrame struct {
	Type    string                `json:"type"`
	Message *protocol.WireMessage `json:"message,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// P2PConfig configures the libp2p gateway transport.
type P2PConfig struct {
	// ListenPort for the local libp2p host.
	ListenPort int

	// GatewayAddr is the gateway's full multiaddr including the /p2p/
	// component. When empty, GatewayPeer is located through the DHT.
	GatewayAddr string

	// GatewayPeer is the gateway's peer id, used with DHT lookup when
	// no full multiaddr is configured.
	GatewayPeer string

	// BootstrapPeers seed the DHT for peer lookup.
	BootstrapPeers []string

	// PrivateKey optionally pins the host identity.
	PrivateKey crypto.PrivKey
}

// P2PGateway is the online path: a libp2p host holding a connection to
// one gateway peer, exchanging JSON message frames over streams.
// Connectivity follows the libp2p connection state to that peer.
type P2PGateway struct {
	host    host.Host
	dht     *dht.IpfsDHT
	gateway peer.ID

	inbound  chan protocol.WireMessage
	statusCh chan bool

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	online bool
	closed bool
}

// NewP2PGateway creates the host, resolves the gateway peer and begins
// tracking connectivity. The transport starts offline until the first
// successful connection.
func NewP2PGateway(ctx context.Context, cfg P2PConfig) (*P2PGateway, error) {
	priv := cfg.PrivateKey
	if priv == nil {
		var err error
		priv, _, err = crypto.GenerateEd25519Key(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate key pair: %w", err)
		}
	}

	listenAddr := fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.ListenPort)
	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(listenAddr),
		libp2p.DefaultTransports,
		libp2p.DefaultMuxers,
		libp2p.DefaultSecurity,
		libp2p.NATPortMap(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	dhtInst, err := dht.New(ctx, h, dht.Mode(dht.ModeClient))
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("failed to create DHT: %w", err)
	}

	gwCtx, cancel := context.WithCancel(ctx)
	g := &P2PGateway{
		host:     h,
		dht:      dhtInst,
		inbound:  make(chan protocol.WireMessage, 64),
		statusCh: make(chan bool, 8),
		ctx:      gwCtx,
		cancel:   cancel,
	}

	h.SetStreamHandler(ProtocolID, g.handleStream)

	if err := g.bootstrap(cfg.BootstrapPeers); err != nil {
		log.Printf("⚠️ %v", err)
	}
	if err := g.resolveGateway(cfg); err != nil {
		g.Close()
		return nil, err
	}

	h.Network().Notify(&network.NotifyBundle{
		ConnectedF: func(_ network.Network, conn network.Conn) {
			if conn.RemotePeer() == g.gateway {
				g.setOnline(true)
			}
		},
		DisconnectedF: func(n network.Network, conn network.Conn) {
			if conn.RemotePeer() == g.gateway && n.Connectedness(g.gateway) != network.Connected {
				g.setOnline(false)
			}
		},
	})

	go g.maintainConnection()
	return g, nil
}

func (g *P2PGateway) bootstrap(peers []string) error {
	var connected int
	for _, peerStr := range peers {
		maddr, err := multiaddr.NewMultiaddr(peerStr)
		if err != nil {
			log.Printf("invalid bootstrap peer address %s: %v", peerStr, err)
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			log.Printf("failed to parse peer info from %s: %v", peerStr, err)
			continue
		}
		if err := g.host.Connect(g.ctx, *info); err != nil {
			log.Printf("failed to connect to bootstrap peer %s: %v", info.ID, err)
			continue
		}
		connected++
	}
	if len(peers) > 0 && connected == 0 {
		return fmt.Errorf("failed to connect to any bootstrap peer")
	}
	if connected > 0 {
		if err := g.dht.Bootstrap(g.ctx); err != nil {
			return fmt.Errorf("dht bootstrap: %w", err)
		}
	}
	return nil
}

// resolveGateway determines the gateway peer id, from a full multiaddr
// when configured or through a DHT lookup when only the peer id is
// known.
func (g *P2PGateway) resolveGateway(cfg P2PConfig) error {
	if cfg.GatewayAddr != "" {
		maddr, err := multiaddr.NewMultiaddr(cfg.GatewayAddr)
		if err != nil {
			return fmt.Errorf("invalid gateway address: %w", err)
		}
		info, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			return fmt.Errorf("gateway address missing /p2p component: %w", err)
		}
		g.host.Peerstore().AddAddrs(info.ID, info.Addrs, time.Hour)
		g.gateway = info.ID
		return nil
	}

	if cfg.GatewayPeer == "" {
		return fmt.Errorf("no gateway configured")
	}
	id, err := peer.Decode(cfg.GatewayPeer)
	if err != nil {
		return fmt.Errorf("invalid gateway peer id: %w", err)
	}
	g.gateway = id

	ctx, cancel := context.WithTimeout(g.ctx, 30*time.Second)
	defer cancel()
	info, err := g.dht.FindPeer(ctx, id)
	if err != nil {
		log.Printf("⚠️ gateway peer not found in DHT yet: %v", err)
		return nil
	}
	g.host.Peerstore().AddAddrs(info.ID, info.Addrs, time.Hour)
	return nil
}

// maintainConnection redials the gateway while disconnected.
func (g *P2PGateway) maintainConnection() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	g.dial()
	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			if !g.Online() {
				g.dial()
			}
		}
	}
}

func (g *P2PGateway) dial() {
	ctx, cancel := context.WithTimeout(g.ctx, 10*time.Second)
	defer cancel()
	info := g.host.Peerstore().PeerInfo(g.gateway)
	if len(info.Addrs) == 0 {
		found, err := g.dht.FindPeer(ctx, g.gateway)
		if err != nil {
			return
		}
		g.host.Peerstore().AddAddrs(found.ID, found.Addrs, time.Hour)
		info = found
	}
	if err := g.host.Connect(ctx, info); err != nil {
		log.Printf("gateway dial failed: %v", err)
	}
}

func (g *P2PGateway) setOnline(online bool) {
	g.mu.Lock()
	if g.closed || g.online == online {
		g.mu.Unlock()
		return
	}
	g.online = online
	g.mu.Unlock()

	select {
	case g.statusCh <- online:
	default:
	}
}

// handleStream processes one inbound gateway stream: decode the frame,
// hand the message to the router, answer with ok or error.
func (g *P2PGateway) handleStream(stream network.Stream) {
	defer stream.Close()

	var frame gatewayFrame
	if err := json.NewDecoder(stream).Decode(&frame); err != nil {
		g.respond(stream, gatewayFrame{Type: frameTypeError, Error: fmt.Sprintf("failed to decode frame: %v", err)})
		return
	}
	if frame.Type != frameTypeMessage || frame.Message == nil {
		g.respond(stream, gatewayFrame{Type: frameTypeError, Error: fmt.Sprintf("unknown frame type: %s", frame.Type)})
		return
	}

	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return
	}

	select {
	case g.inbound <- *frame.Message:
		g.respond(stream, gatewayFrame{Type: frameTypeOK})
	case <-g.ctx.Done():
	}
}

func (g *P2PGateway) respond(stream network.Stream, frame gatewayFrame) {
	if err := json.NewEncoder(stream).Encode(frame); err != nil {
		log.Printf("failed to send stream response: %v", err)
	}
}

// Send delivers one message to the gateway peer and waits for its
// acknowledgement frame.
func (g *P2PGateway) Send(ctx context.Context, msg protocol.WireMessage) error {
	if !g.Online() {
		return ErrTransportUnavailable
	}

	stream, err := g.host.NewStream(ctx, g.gateway, ProtocolID)
	if err != nil {
		return fmt.Errorf("failed to open gateway stream: %w", err)
	}
	defer stream.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
	}

	if err := json.NewEncoder(stream).Encode(gatewayFrame{Type: frameTypeMessage, Message: &msg}); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	var reply gatewayFrame
	if err := json.NewDecoder(stream).Decode(&reply); err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}
	if reply.Type != frameTypeOK {
		return fmt.Errorf("gateway rejected message: %s", reply.Error)
	}
	return nil
}

func (g *P2PGateway) Messages() <-chan protocol.WireMessage { return g.inbound }

func (g *P2PGateway) ConnectivityChanges() <-chan bool { return g.statusCh }

func (g *P2PGateway) Online() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.online
}

// Close shuts down the DHT and host.
func (g *P2PGateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.mu.Unlock()

	g.cancel()
	if err := g.dht.Close(); err != nil {
		log.Printf("dht close: %v", err)
	}
	return g.host.Close()
}

// HostID returns the local peer id for logging and diagnostics.
func (g *P2PGateway) HostID() string { return g.host.ID().String() }
