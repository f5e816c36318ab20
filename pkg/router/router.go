// Package router implements the dual-path routing core: it decides
// mesh-versus-online per outbound message, reassembles and filters
// inbound mesh traffic, tracks acknowledgements, and drains queued
// content when connectivity returns.
package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/fieldlink/meshlink/pkg/metrics"
	"github.com/fieldlink/meshlink/pkg/protocol"
	"github.com/fieldlink/meshlink/pkg/transport"
)

var (
	ErrNotRunning = errors.New("router not running")
	ErrNotMember  = errors.New("not a member of channel")
	ErrEmptySend  = errors.New("nothing to send")
)

// History is the message persistence the router records into. Every
// outbound message is saved before any transport decision, and every
// accepted inbound message is saved before it is published.
type History interface {
	SaveMessage(msg protocol.WireMessage, status DeliveryStatus, outgoing bool) error
	UpdateStatus(messageID string, status DeliveryStatus) error
}

// Config carries the router's collaborators and tunables. Broadcast,
// Online and History are required; zero-valued tunables select
// defaults.
type Config struct {
	AuthorID string
	Alias    string

	// MeshID is the short sender id carried in beacon headers, at most
	// 4 bytes. Defaults to a prefix of AuthorID.
	MeshID string

	Broadcast transport.BroadcastTransport
	Online    transport.OnlineTransport
	History   History

	RetryInterval     time.Duration
	AssemblyTimeout   time.Duration
	HeartbeatInterval time.Duration
	AdvertiseDuration time.Duration
	QueueLimit        int
	EventBuffer       int
}

// Status is an immutable snapshot of router state for observers.
type Status struct {
	AuthorID          string           `json:"author_id"`
	Alias             string           `json:"alias,omitempty"`
	Online            bool             `json:"online"`
	Channels          []string         `json:"channels"`
	PendingAcks       int              `json:"pending_acks"`
	PendingAssemblies int              `json:"pending_assemblies"`
	QueuedText        int              `json:"queued_text"`
	QueuedMedia       int              `json:"queued_media"`
	QueuedMesh        int              `json:"queued_mesh"`
	PendingSync       int              `json:"pending_sync"`
	Peers             []PresenceUpdate `json:"peers"`
}

// Router is the orchestration core. All routing decisions run on a
// single loop goroutine; transports deliver into it over channels and
// timers enqueue commands, so no decision races another.
type Router struct {
	cfg    Config
	events *Events

	channels *ChannelTable
	acks     *AckTracker
	identity *IdentityResolver
	asm      *ChunkAssembler

	payloadSeen *payloadDedup
	routedIDs   *recentIDSet
	syncedIDs   *recentIDSet

	// loop-owned state, touched only from run()
	outbound    map[string]protocol.WireMessage
	textQueue   *messageQueue
	mediaQueue  *messageQueue
	meshRetry   *messageQueue
	pendingSync []protocol.WireMessage
	liveness    map[string]PresenceUpdate

	commands chan func()
	done     chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// New validates the config, applies defaults and builds a stopped
// router. Call Start to begin routing.
func New(cfg Config) (*Router, error) {
	if cfg.Broadcast == nil || cfg.Online == nil {
		return nil, errors.New("router: both transports are required")
	}
	if cfg.History == nil {
		return nil, errors.New("router: history store is required")
	}
	if cfg.AuthorID == "" {
		return nil, errors.New("router: author id is required")
	}
	if cfg.MeshID == "" {
		cfg.MeshID = cfg.AuthorID
	}
	// beacons carry at most 4 sender bytes; a longer id would be
	// wire-truncated and its acks would never correlate
	cfg.MeshID = protocol.TruncateUTF8(cfg.MeshID, protocol.SenderIDSize)
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.AdvertiseDuration <= 0 {
		cfg.AdvertiseDuration = 500 * time.Millisecond
	}

	r := &Router{
		cfg:         cfg,
		events:      newEvents(cfg.EventBuffer),
		channels:    NewChannelTable(),
		identity:    NewIdentityResolver(),
		asm:         NewChunkAssembler(cfg.AssemblyTimeout),
		payloadSeen: newPayloadDedup(256),
		routedIDs:   newRecentIDSet(512),
		syncedIDs:   newRecentIDSet(512),
		outbound:    make(map[string]protocol.WireMessage),
		textQueue:   newMessageQueue("offline-text", cfg.QueueLimit),
		mediaQueue:  newMessageQueue("offline-media", cfg.QueueLimit),
		meshRetry:   newMessageQueue("mesh-retry", cfg.QueueLimit),
		liveness:    make(map[string]PresenceUpdate),
		commands:    make(chan func(), 64),
		done:        make(chan struct{}),
	}
	r.acks = NewAckTracker(cfg.RetryInterval,
		func(id string) { r.enqueue(func() { r.handleRetry(id) }) },
		func(id string) { r.enqueue(func() { r.handleFailed(id) }) },
	)
	return r, nil
}

// Events returns the router's output channels.
func (r *Router) Events() *Events { return r.events }

// Start begins scanning the broadcast medium and launches the routing
// loop.
func (r *Router) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	if err := r.cfg.Broadcast.StartScan(); err != nil {
		return fmt.Errorf("start scan: %w", err)
	}
	r.started = true
	r.wg.Add(1)
	go r.run()
	log.Printf("🌐 router started (author=%s mesh=%s)", r.cfg.AuthorID, r.cfg.MeshID)
	return nil
}

// Stop halts the loop, cancels all timers and stops scanning. Pending
// queues are discarded.
func (r *Router) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	r.mu.Unlock()

	close(r.done)
	r.wg.Wait()
	r.acks.Stop()
	r.asm.Stop()
	r.cfg.Broadcast.StopScan()
	log.Printf("router stopped")
}

func (r *Router) running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// enqueue hands a command to the loop goroutine. Commands arriving
// after Stop are dropped.
func (r *Router) enqueue(fn func()) {
	select {
	case r.commands <- fn:
	case <-r.done:
	}
}

// Send routes one outbound message on the channel. The returned message
// carries the assigned id and timestamp; delivery progress arrives on
// the Status event channel.
func (r *Router) Send(channelID, content string, media *protocol.MediaRef) (protocol.WireMessage, error) {
	if !r.running() {
		return protocol.WireMessage{}, ErrNotRunning
	}
	if content == "" && media == nil {
		return protocol.WireMessage{}, ErrEmptySend
	}
	if !r.channels.IsMember(channelID) {
		return protocol.WireMessage{}, fmt.Errorf("%w: %s", ErrNotMember, channelID)
	}

	msg := protocol.WireMessage{
		ID:        protocol.NewMessageID(),
		ChannelID: channelID,
		SenderID:  r.cfg.AuthorID,
		DeviceID:  r.cfg.MeshID,
		Content:   content,
		Timestamp: protocol.NowUnixMilli(),
		Media:     media,
	}
	r.enqueue(func() { r.handleSend(msg) })
	return msg, nil
}

// JoinChannel adds the channel to the membership table and returns its
// 15-bit address hash.
func (r *Router) JoinChannel(channelID string) uint16 {
	return r.channels.Join(channelID)
}

// LeaveChannel removes the channel from the membership table.
func (r *Router) LeaveChannel(channelID string) {
	r.channels.Leave(channelID)
}

// Channels returns the sorted channel membership.
func (r *Router) Channels() []string { return r.channels.Channels() }

// SendInvite broadcasts a channel invitation beacon on the mesh. The
// channel name must fit the beacon content budget to survive the trip.
func (r *Router) SendInvite(channelID string) error {
	if !r.running() {
		return ErrNotRunning
	}
	if len(channelID) > protocol.MaxBeaconContent {
		log.Printf("⚠️ invite for %q truncated to %d bytes", channelID, protocol.MaxBeaconContent)
	}
	r.enqueue(func() { r.sendControlBeacon(protocol.HashInvite, channelID) })
	return nil
}

// DeleteChannel leaves the channel and announces the deletion on the
// mesh so peers can drop it too.
func (r *Router) DeleteChannel(channelID string) error {
	if !r.running() {
		return ErrNotRunning
	}
	r.channels.Leave(channelID)
	r.enqueue(func() { r.sendControlBeacon(protocol.HashDelete, channelID) })
	return nil
}

// Status returns a consistent snapshot, served by the loop goroutine.
func (r *Router) Status() Status {
	if !r.running() {
		return Status{AuthorID: r.cfg.AuthorID, Alias: r.cfg.Alias, Channels: r.channels.Channels()}
	}
	reply := make(chan Status, 1)
	r.enqueue(func() { reply <- r.snapshot() })
	select {
	case st := <-reply:
		return st
	case <-r.done:
		return Status{AuthorID: r.cfg.AuthorID, Alias: r.cfg.Alias}
	}
}

func (r *Router) snapshot() Status {
	peers := make([]PresenceUpdate, 0, len(r.liveness))
	for _, p := range r.liveness {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].AuthorID < peers[j].AuthorID })

	return Status{
		AuthorID:          r.cfg.AuthorID,
		Alias:             r.cfg.Alias,
		Online:            r.cfg.Online.Online(),
		Channels:          r.channels.Channels(),
		PendingAcks:       r.acks.PendingCount(),
		PendingAssemblies: r.asm.PendingCount(),
		QueuedText:        r.textQueue.Len(),
		QueuedMedia:       r.mediaQueue.Len(),
		QueuedMesh:        r.meshRetry.Len(),
		PendingSync:       len(r.pendingSync),
		Peers:             peers,
	}
}

func (r *Router) run() {
	defer r.wg.Done()

	var heartbeat <-chan time.Time
	if r.cfg.HeartbeatInterval > 0 {
		ticker := time.NewTicker(r.cfg.HeartbeatInterval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	// the mesh retry queue drains on its own clock so queued messages
	// still move when heartbeats are disabled
	flush := time.NewTicker(r.cfg.RetryInterval)
	defer flush.Stop()

	payloads := r.cfg.Broadcast.Payloads()
	inbound := r.cfg.Online.Messages()
	connectivity := r.cfg.Online.ConnectivityChanges()

	for {
		select {
		case <-r.done:
			return
		case fn := <-r.commands:
			fn()
		case p, ok := <-payloads:
			if !ok {
				payloads = nil
				continue
			}
			r.handleMeshPayload(p)
		case msg, ok := <-inbound:
			if !ok {
				inbound = nil
				continue
			}
			r.handleOnlineMessage(msg)
		case online, ok := <-connectivity:
			if !ok {
				connectivity = nil
				continue
			}
			r.handleConnectivity(online)
		case <-heartbeat:
			r.broadcastHeartbeat()
		case <-flush.C:
			r.retryQueuedMesh()
		}
	}
}

// handleSend implements the transport priority rule: history first,
// then exactly one transport per message.
func (r *Router) handleSend(msg protocol.WireMessage) {
	if err := r.cfg.History.SaveMessage(msg, StatusPending, true); err != nil {
		log.Printf("⚠️ history save failed for %s: %v", msg.ID, err)
	}
	r.routedIDs.Observe(msg.ID)
	r.outbound[msg.ID] = msg

	if msg.Media != nil {
		r.sendMedia(msg)
		return
	}

	if r.cfg.Online.Online() {
		r.sendOnline(msg, false)
	} else {
		r.sendMesh(msg)
	}
}

// sendMedia routes an attachment: online when connected, otherwise the
// media is queued and a short placeholder goes out over the mesh, since
// beacons cannot carry the attachment itself.
func (r *Router) sendMedia(msg protocol.WireMessage) {
	if r.cfg.Online.Online() {
		r.sendOnline(msg, false)
		return
	}

	r.mediaQueue.Push(msg)
	metrics.QueuedMessages.WithLabelValues("media").Set(float64(r.mediaQueue.Len()))

	placeholder := msg
	placeholder.Media = nil
	placeholder.Content = "[media]"
	if msg.Content != "" {
		placeholder.Content = msg.Content
	}
	// retries re-send what was registered for ack tracking, which is the
	// placeholder, never the attachment form
	r.outbound[msg.ID] = placeholder
	r.sendMesh(placeholder)
}

// sendOnline dispatches via the gateway on a worker goroutine and
// reports the outcome back into the loop.
func (r *Router) sendOnline(msg protocol.WireMessage, sync bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := r.cfg.Online.Send(ctx, msg)
		r.enqueue(func() { r.finishOnlineSend(msg, sync, err) })
	}()
}

func (r *Router) finishOnlineSend(msg protocol.WireMessage, sync bool, err error) {
	if err != nil {
		log.Printf("⚠️ online send failed for %s: %v", msg.ID, err)
		if sync {
			r.pendingSync = append(r.pendingSync, msg)
			return
		}
		if msg.Media != nil {
			r.mediaQueue.Push(msg)
			metrics.QueuedMessages.WithLabelValues("media").Set(float64(r.mediaQueue.Len()))
		} else {
			r.textQueue.Push(msg)
			metrics.QueuedMessages.WithLabelValues("text").Set(float64(r.textQueue.Len()))
		}
		return
	}

	metrics.MessagesSent.WithLabelValues("online").Inc()
	if sync {
		r.syncedIDs.Observe(msg.ID)
		return
	}
	delete(r.outbound, msg.ID)
	r.markStatus(msg.ID, StatusDelivered)
}

// sendMesh encodes the message into one or more beacons, registers it
// for ack tracking and advertises the frames sequentially.
func (r *Router) sendMesh(msg protocol.WireMessage) {
	hash := protocol.ChannelHash(msg.ChannelID)
	tsSeconds := uint32(msg.Timestamp / 1000)

	content := msg.Content
	var frames []string
	if protocol.NeedsChunking(content) {
		frames = protocol.SplitContent(msg.ID, content)
		content = protocol.TruncateUTF8(content, protocol.MaxChunkedContent)
	} else {
		frames = []string{content}
	}

	if !protocol.IsControlContent(msg.Content) {
		digest := protocol.DeliveryDigest(r.cfg.MeshID, tsSeconds, content)
		r.acks.RegisterOutbound(msg.ID, digest)
		metrics.PendingAcks.Set(float64(r.acks.PendingCount()))
	}

	r.advertiseFrames(msg, hash, tsSeconds, frames)
}

func (r *Router) advertiseFrames(msg protocol.WireMessage, hash uint16, tsSeconds uint32, frames []string) {
	beacons := make([][]byte, 0, len(frames))
	for _, frame := range frames {
		b := protocol.Beacon{
			SenderID:    r.cfg.MeshID,
			ChannelHash: hash,
			Timestamp:   tsSeconds,
			Content:     frame,
		}
		payload, err := b.Encode()
		if err != nil {
			log.Printf("⚠️ dropping unencodable frame for %s: %v", msg.ID, err)
			return
		}
		beacons = append(beacons, payload)
	}

	go func() {
		for _, payload := range beacons {
			ctx, cancel := context.WithTimeout(context.Background(), r.cfg.AdvertiseDuration+time.Second)
			err := r.cfg.Broadcast.Advertise(ctx, payload, r.cfg.AdvertiseDuration)
			cancel()
			if err != nil {
				r.enqueue(func() { r.meshSendFailed(msg, err) })
				return
			}
		}
		metrics.MessagesSent.WithLabelValues("mesh").Inc()
	}()
}

func (r *Router) meshSendFailed(msg protocol.WireMessage, err error) {
	if errors.Is(err, transport.ErrTransportUnavailable) {
		log.Printf("mesh not ready, queueing %s", msg.ID)
		// nothing went out, so the message must not sit in the retry
		// state machine burning attempts while it waits in the queue
		r.acks.Cancel(msg.ID)
		metrics.PendingAcks.Set(float64(r.acks.PendingCount()))
		r.meshRetry.Push(msg)
		metrics.QueuedMessages.WithLabelValues("mesh").Set(float64(r.meshRetry.Len()))
		return
	}
	log.Printf("⚠️ mesh send failed for %s: %v", msg.ID, err)
}

// handleRetry re-advertises an unacked message. The ack tracker already
// re-armed its timer; exhaustion arrives as handleFailed.
func (r *Router) handleRetry(id string) {
	msg, ok := r.outbound[id]
	if !ok || !r.acks.IsPending(id) {
		return
	}
	log.Printf("🔁 retrying %s", id)
	metrics.Retries.Inc()

	hash := protocol.ChannelHash(msg.ChannelID)
	tsSeconds := uint32(msg.Timestamp / 1000)
	frames := []string{msg.Content}
	if protocol.NeedsChunking(msg.Content) {
		frames = protocol.SplitContent(msg.ID, msg.Content)
	}
	r.advertiseFrames(msg, hash, tsSeconds, frames)
}

func (r *Router) handleFailed(id string) {
	log.Printf("❌ delivery failed for %s after %d attempts", id, MaxSendAttempts)
	metrics.DeliveryFailures.Inc()
	metrics.PendingAcks.Set(float64(r.acks.PendingCount()))
	delete(r.outbound, id)
	r.markStatus(id, StatusFailed)
}

func (r *Router) markStatus(id string, status DeliveryStatus) {
	if err := r.cfg.History.UpdateStatus(id, status); err != nil {
		log.Printf("⚠️ status update failed for %s: %v", id, err)
	}
	r.events.publishStatus(id, status)
}

// sendControlBeacon advertises one sentinel-addressed frame (invite or
// deletion) carrying the channel name as content.
func (r *Router) sendControlBeacon(sentinel uint16, channelID string) {
	b := protocol.Beacon{
		SenderID:    r.cfg.MeshID,
		ChannelHash: sentinel,
		Timestamp:   uint32(time.Now().Unix()),
		Content:     protocol.TruncateUTF8(channelID, protocol.MaxBeaconContent),
	}
	payload, err := b.Encode()
	if err != nil {
		log.Printf("⚠️ control beacon encode failed: %v", err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.AdvertiseDuration+time.Second)
		defer cancel()
		if err := r.cfg.Broadcast.Advertise(ctx, payload, r.cfg.AdvertiseDuration); err != nil {
			log.Printf("⚠️ control beacon send failed: %v", err)
		}
	}()
}

// broadcastHeartbeat advertises presence on every joined channel so
// peers keep this node in their liveness tables.
func (r *Router) broadcastHeartbeat() {
	content := protocol.HeartbeatContent(r.cfg.Alias)
	tsSeconds := uint32(time.Now().Unix())
	for _, channelID := range r.channels.Channels() {
		b := protocol.Beacon{
			SenderID:    r.cfg.MeshID,
			ChannelHash: protocol.ChannelHash(channelID),
			Timestamp:   tsSeconds,
			Content:     content,
		}
		payload, err := b.Encode()
		if err != nil {
			continue
		}
		go func(p []byte) {
			ctx, cancel := context.WithTimeout(context.Background(), r.cfg.AdvertiseDuration+time.Second)
			defer cancel()
			if err := r.cfg.Broadcast.Advertise(ctx, p, r.cfg.AdvertiseDuration); err != nil &&
				!errors.Is(err, transport.ErrTransportUnavailable) {
				log.Printf("⚠️ heartbeat send failed: %v", err)
			}
		}(payload)
	}
}

func (r *Router) retryQueuedMesh() {
	for _, msg := range r.meshRetry.Drain() {
		r.sendMesh(msg)
	}
	metrics.QueuedMessages.WithLabelValues("mesh").Set(float64(r.meshRetry.Len()))
}

// handleMeshPayload runs the inbound mesh pipeline: dedup, decode,
// sentinel handling, membership gate, control frames, reassembly,
// identity, liveness, ack-back, then delivery.
func (r *Router) handleMeshPayload(p transport.Payload) {
	if r.payloadSeen.Observe(p.Data) {
		metrics.Drops.WithLabelValues(metrics.DropDuplicate).Inc()
		return
	}

	frame, err := protocol.DecodeBeacon(p.Data)
	if err != nil {
		metrics.Drops.WithLabelValues(metrics.DropMalformed).Inc()
		return
	}

	// our own advertisement heard back from the radio
	if frame.SenderID == r.cfg.MeshID {
		return
	}

	if frame.IsInvite {
		r.events.publishInvite(ChannelEvent{
			ChannelHash: protocol.ChannelHash(frame.Content),
			ChannelID:   frame.Content,
			SenderID:    frame.SenderID,
		})
		return
	}
	if frame.IsDelete {
		if r.channels.IsMember(frame.Content) {
			r.channels.Leave(frame.Content)
		}
		r.events.publishDelete(ChannelEvent{
			ChannelHash: protocol.ChannelHash(frame.Content),
			ChannelID:   frame.Content,
			SenderID:    frame.SenderID,
		})
		return
	}

	channelID, ok := r.channels.Resolve(frame.ChannelHash)
	if !ok {
		metrics.Drops.WithLabelValues(metrics.DropUnknownChannel).Inc()
		return
	}

	// liveness counts every frame heard from a peer, control included
	author := r.identity.ResolveAuthor(frame.SenderID, "")
	r.touchLiveness(author, frame)

	if digest, isAck := protocol.ParseAck(frame.Content); isAck {
		r.handleAck(digest)
		return
	}

	content := frame.Content
	// a marker-prefixed frame with a broken chunk header is ordinary text
	if chunk, chunkErr := protocol.ParseChunk(content); chunkErr == nil && chunk != nil {
		full, complete := r.asm.Ingest(frame.SenderID, frame.ChannelHash, chunk)
		metrics.PendingAssemblies.Set(float64(r.asm.PendingCount()))
		if !complete {
			return
		}
		content = full
	}

	if protocol.IsHeartbeat(content) {
		return
	}

	r.ackBack(frame, content)

	msg := protocol.WireMessage{
		ID:           protocol.NewMessageID(),
		ChannelID:    channelID,
		SenderID:     author,
		DeviceID:     frame.SenderID,
		Content:      content,
		Timestamp:    frame.Timestamp,
		IsMeshOrigin: true,
	}
	r.routedIDs.Observe(msg.ID)

	if err := r.cfg.History.SaveMessage(msg, StatusDelivered, false); err != nil {
		log.Printf("⚠️ history save failed for %s: %v", msg.ID, err)
	}
	metrics.MessagesReceived.WithLabelValues("mesh").Inc()
	r.events.publishMessage(msg)

	// Bridge mesh traffic upstream when a gateway is reachable.
	if r.cfg.Online.Online() {
		r.sendOnline(msg, true)
	} else {
		r.pendingSync = append(r.pendingSync, msg)
	}
}

func (r *Router) handleAck(digest string) {
	id, ok := r.acks.OnAckReceived(digest)
	metrics.PendingAcks.Set(float64(r.acks.PendingCount()))
	if !ok {
		log.Printf("ignoring ack for unknown digest %s", digest)
		return
	}
	delete(r.outbound, id)
	r.markStatus(id, StatusDelivered)
}

// ackBack acknowledges an inbound content message so the sender can
// stop retrying. The digest is recomputed from the same wire fields the
// sender hashed.
func (r *Router) ackBack(frame *protocol.DecodedFrame, content string) {
	digest := protocol.DeliveryDigest(frame.SenderID, uint32(frame.Timestamp/1000), content)
	b := protocol.Beacon{
		SenderID:    r.cfg.MeshID,
		ChannelHash: frame.ChannelHash,
		Timestamp:   uint32(time.Now().Unix()),
		Content:     protocol.AckContent(digest),
	}
	payload, err := b.Encode()
	if err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.AdvertiseDuration+time.Second)
		defer cancel()
		if err := r.cfg.Broadcast.Advertise(ctx, payload, r.cfg.AdvertiseDuration); err != nil &&
			!errors.Is(err, transport.ErrTransportUnavailable) {
			log.Printf("⚠️ ack send failed: %v", err)
		}
	}()
}

func (r *Router) touchLiveness(author string, frame *protocol.DecodedFrame) {
	update := PresenceUpdate{
		AuthorID: author,
		LastSeen: time.Now().UnixMilli(),
	}
	if protocol.IsHeartbeat(frame.Content) {
		update.Alias = protocol.HeartbeatAlias(frame.Content)
	} else if prev, ok := r.liveness[author]; ok {
		update.Alias = prev.Alias
	}
	r.liveness[author] = update
	r.events.publishPresence(update)
}

// handleOnlineMessage accepts one gateway message: loop-prevention
// first, then identity reconciliation, then delivery.
func (r *Router) handleOnlineMessage(msg protocol.WireMessage) {
	if r.routedIDs.Observe(msg.ID) {
		metrics.Drops.WithLabelValues(metrics.DropLoop).Inc()
		return
	}

	if msg.DeviceID != "" && msg.SenderID != "" {
		if mapped, ok := r.identity.Lookup(msg.DeviceID); ok && r.identity.IsTemporary(mapped) && mapped != msg.SenderID {
			r.identity.MergeIdentities(mapped, msg.SenderID)
		} else {
			msg.SenderID = r.identity.ResolveAuthor(msg.DeviceID, msg.SenderID)
		}
	}

	if err := r.cfg.History.SaveMessage(msg, StatusDelivered, false); err != nil {
		log.Printf("⚠️ history save failed for %s: %v", msg.ID, err)
	}
	metrics.MessagesReceived.WithLabelValues("online").Inc()

	if msg.SenderID == r.cfg.AuthorID {
		return
	}
	r.events.publishMessage(msg)
}

// handleConnectivity drains queued work when the gateway becomes
// reachable. Going offline takes no redelivery action.
func (r *Router) handleConnectivity(online bool) {
	if !online {
		log.Printf("📴 gateway offline")
		return
	}
	log.Printf("🌐 gateway online, syncing queued traffic")

	pending := r.pendingSync
	r.pendingSync = nil
	for _, msg := range pending {
		if r.syncedIDs.Contains(msg.ID) {
			continue
		}
		r.sendOnline(msg, true)
	}

	backlog := append(r.textQueue.Drain(), r.mediaQueue.Drain()...)
	sort.SliceStable(backlog, func(i, j int) bool { return backlog[i].Timestamp < backlog[j].Timestamp })
	for _, msg := range backlog {
		r.sendOnline(msg, false)
	}
	metrics.QueuedMessages.WithLabelValues("text").Set(0)
	metrics.QueuedMessages.WithLabelValues("media").Set(0)
}
