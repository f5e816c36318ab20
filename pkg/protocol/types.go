package protocol

import (
	"fmt"
	"unicode/utf8"
)

// Wire format constants
const (
	// SenderIDSize is the fixed on-wire width of the sender id
	SenderIDSize = 4

	// BeaconHeaderSize is sender id (4) + channel hash (2) + timestamp (4)
	BeaconHeaderSize = 10

	// MaxBeaconSize is the broadcast advertisement payload budget
	MaxBeaconSize = 20

	// MaxBeaconContent is the content budget of a single beacon
	MaxBeaconContent = MaxBeaconSize - BeaconHeaderSize
)

// Reserved channel hash values. Real channel hashes never take these
// values: ChannelHash folds colliding results below the sentinel range.
const (
	// HashInvite marks a channel invite beacon; content is the channel name
	HashInvite uint16 = 0x7FFF

	// HashDelete marks a channel deletion tombstone; content is the channel name
	HashDelete uint16 = 0x7FFE

	// MaxChannelHash is the largest hash a real channel can map to
	MaxChannelHash uint16 = 0x7FFD
)

// Chunk framing constants
const (
	// ChunkMarker is the first byte of every chunk frame. It never appears
	// as the first byte of ordinary chat content.
	ChunkMarker byte = 0x1F

	// ChunkHeaderSize is marker + index digit + total digit + hash digit
	ChunkHeaderSize = 4

	// ChunkDataSize is the content bytes carried per chunk
	ChunkDataSize = MaxBeaconContent - ChunkHeaderSize

	// MaxChunks is the largest chunk count a single hex index digit allows
	MaxChunks = 8

	// MaxChunkedContent is the longest message the chunk protocol can carry
	MaxChunkedContent = MaxChunks * ChunkDataSize
)

// Control content markers. Control beacons are ordinary beacons whose
// content starts with one of these bytes; they are never chunked and
// never enter ack tracking.
const (
	// AckMarker prefixes an acknowledgement; the rest of the content is
	// the 8-hex-digit delivery digest of the acked message.
	AckMarker byte = 0x06

	// HeartbeatMarker prefixes a presence heartbeat; the rest of the
	// content is an optional short display alias.
	HeartbeatMarker byte = 0x05

	// AckDigestLen is the hex length of a delivery digest
	AckDigestLen = 8
)

// ChannelHash reduces a channel identifier to its 15-bit on-wire address.
// It is a closed convention: both the encoding and decoding side must
// compute the identical value, there is no negotiation. The hash is the
// classic 31-multiplier string hash masked to 15 bits; results that land
// on a reserved sentinel fold down by two so control markers never
// collide with real channels. Distinct channel names may still collide
// within the 15-bit space; membership resolution accepts that.
func ChannelHash(channelID string) uint16 {
	var h int32
	for _, r := range channelID {
		h = 31*h + r
	}

	hash := uint16(h) & 0x7FFF
	if hash > MaxChannelHash {
		hash -= 2
	}

	return hash
}

// MessageHashDigit derives the single hex digit that identifies a
// message inside a chunk header. FNV-1a over the message id, folded to
// four bits.
func MessageHashDigit(messageID string) byte {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)

	h := uint32(offset32)
	for i := 0; i < len(messageID); i++ {
		h ^= uint32(messageID[i])
		h *= prime32
	}

	return hexDigit(byte(h & 0x0F))
}

// DeliveryDigest computes the 8-hex-digit digest a receiver echoes back
// in an ack beacon. The mesh wire carries no message id, so the digest
// is derived from what both sides can see: sender id, wire timestamp,
// and the full (reassembled) content.
func DeliveryDigest(senderID string, timestamp uint32, content string) string {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)

	h := uint32(offset32)
	mix := func(b byte) {
		h ^= uint32(b)
		h *= prime32
	}

	for i := 0; i < len(senderID); i++ {
		mix(senderID[i])
	}
	mix(byte(timestamp >> 24))
	mix(byte(timestamp >> 16))
	mix(byte(timestamp >> 8))
	mix(byte(timestamp))
	for i := 0; i < len(content); i++ {
		mix(content[i])
	}

	return fmt.Sprintf("%08x", h)
}

// TruncateUTF8 cuts s to at most max bytes without splitting a
// multi-byte code point.
func TruncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}

	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}

func hexDigit(v byte) byte {
	const digits = "0123456789abcdef"
	return digits[v&0x0F]
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
