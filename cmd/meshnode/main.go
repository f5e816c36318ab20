package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fieldlink/meshlink/pkg/api"
	"github.com/fieldlink/meshlink/pkg/config"
	"github.com/fieldlink/meshlink/pkg/router"
	"github.com/fieldlink/meshlink/pkg/storage"
	"github.com/fieldlink/meshlink/pkg/transport"
)

var (
	authorID    = flag.String("author", "", "Author id for this node (required)")
	alias       = flag.String("alias", "", "Display alias broadcast in heartbeats")
	dataDir     = flag.String("data", "", "Data directory")
	apiAddr     = flag.String("api", "", "HTTP API listen address")
	localMode   = flag.Bool("local", false, "Run with an in-process gateway (no libp2p)")
	p2pPort     = flag.Int("p2p-port", 0, "libp2p listen port")
	gatewayAddr = flag.String("gateway", "", "Gateway multiaddr including /p2p/ component")
	gatewayPeer = flag.String("gateway-peer", "", "Gateway peer id, located via DHT")
)

func main() {
	flag.Parse()

	printBanner()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override environment
	if *authorID != "" {
		cfg.AuthorID = *authorID
	}
	if *alias != "" {
		cfg.Alias = *alias
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *apiAddr != "" {
		cfg.APIAddr = *apiAddr
	}
	if *localMode {
		cfg.LocalMode = true
	}
	if *p2pPort != 0 {
		cfg.P2PPort = *p2pPort
	}
	if *gatewayAddr != "" {
		cfg.GatewayAddr = *gatewayAddr
	}
	if *gatewayPeer != "" {
		cfg.GatewayPeer = *gatewayPeer
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Error: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	node, cleanup, err := buildNode(cfg)
	if err != nil {
		log.Fatalf("Failed to build node: %v", err)
	}
	defer cleanup()

	if err := node.router.Start(); err != nil {
		log.Fatalf("Failed to start router: %v", err)
	}
	defer node.router.Stop()

	for _, channel := range cfg.Channels {
		hash := node.router.JoinChannel(channel)
		log.Printf("✓ Joined channel %q (hash %#04x)", channel, hash)
	}

	go drainEvents(node.router)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(node.router, node.store, &api.Config{
		Addr:       cfg.APIAddr,
		EnableCORS: true,
	})
	if err := server.Start(ctx); err != nil {
		log.Fatalf("API server error: %v", err)
	}

	log.Println("👋 Shutdown complete")
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════════╗")
	fmt.Println("║              Meshlink Field Node v1.0             ║")
	fmt.Println("║        Dual-path opportunistic messaging          ║")
	fmt.Println("╚═══════════════════════════════════════════════════╝")
	fmt.Println()
}

type node struct {
	router *router.Router
	store  *storage.MessageStore
}

func drainEvents(r *router.Router) {
	events := r.Events()
	for {
		select {
		case msg, ok := <-events.Messages:
			if !ok {
				return
			}
			log.Printf("💬 [%s] %s: %s", msg.ChannelID, msg.SenderID, msg.Content)
		case update := <-events.Status:
			log.Printf("📨 message %s is now %s", update.MessageID, update.Status)
		case invite := <-events.Invites:
			log.Printf("📡 invite to channel %q from %s", invite.ChannelID, invite.SenderID)
		case deleted := <-events.Deletes:
			log.Printf("🗑️ channel %q deleted by %s", deleted.ChannelID, deleted.SenderID)
		case presence := <-events.Presence:
			if presence.Alias != "" {
				log.Printf("💓 %s (%s) is nearby", presence.Alias, presence.AuthorID)
			}
		}
	}
}

func buildNode(cfg *config.Config) (*node, func(), error) {
	store, err := storage.NewMessageStore(filepath.Join(cfg.DataDir, "messages.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open message store: %v", err)
	}

	// TODO: replace the memory hub with a BLE advertisement transport
	// once the hardware bridge lands.
	hub := transport.NewMemoryHub()
	broadcast := hub.Attach()

	var online transport.OnlineTransport
	if cfg.LocalMode {
		log.Println("⚠️  Local mode: using in-process gateway")
		online = transport.NewMemoryGateway(true)
	} else {
		gw, err := transport.NewP2PGateway(context.Background(), transport.P2PConfig{
			ListenPort:     cfg.P2PPort,
			GatewayAddr:    cfg.GatewayAddr,
			GatewayPeer:    cfg.GatewayPeer,
			BootstrapPeers: cfg.BootstrapPeers,
		})
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("failed to create gateway transport: %v", err)
		}
		log.Printf("✓ libp2p host %s listening on port %d", gw.HostID(), cfg.P2PPort)
		online = gw
	}

	r, err := router.New(router.Config{
		AuthorID:          cfg.AuthorID,
		Alias:             cfg.Alias,
		MeshID:            cfg.MeshID,
		Broadcast:         broadcast,
		Online:            online,
		History:           store,
		RetryInterval:     time.Duration(cfg.RetryIntervalMs) * time.Millisecond,
		AssemblyTimeout:   time.Duration(cfg.AssemblyTimeoutSec) * time.Second,
		HeartbeatInterval: time.Duration(cfg.HeartbeatIntervalSec) * time.Second,
		QueueLimit:        cfg.QueueLimit,
	})
	if err != nil {
		online.Close()
		store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := online.Close(); err != nil {
			log.Printf("gateway close: %v", err)
		}
		if err := store.Close(); err != nil {
			log.Printf("store close: %v", err)
		}
	}
	return &node{router: r, store: store}, cleanup, nil
}
