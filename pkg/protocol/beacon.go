package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
)

var (
	ErrPayloadTooLarge  = errors.New("beacon exceeds advertisement size limit")
	ErrMalformedPayload = errors.New("malformed beacon payload")
)

// Beacon is one outbound broadcast advertisement payload.
type Beacon struct {
	SenderID    string // at most 4 bytes on the wire
	ChannelHash uint16 // 15-bit channel address or a control sentinel
	Timestamp   uint32 // seconds since epoch
	Content     string // at most 10 bytes on the wire
}

// Encode serializes the beacon to its fixed wire layout. Content beyond
// the 10-byte budget is truncated rune-safe; that is the documented
// behavior, not an error. ErrPayloadTooLarge is returned only if the
// result would still exceed the transport cap, which cannot happen with
// the fixed header by construction.
func (b *Beacon) Encode() ([]byte, error) {
	content := TruncateUTF8(b.Content, MaxBeaconContent)

	buf := make([]byte, BeaconHeaderSize+len(content))
	copy(buf[0:SenderIDSize], b.SenderID) // NUL-padded, truncated at 4
	binary.BigEndian.PutUint16(buf[4:6], b.ChannelHash&0x7FFF)
	binary.BigEndian.PutUint32(buf[6:10], b.Timestamp)
	copy(buf[BeaconHeaderSize:], content)

	if len(buf) > MaxBeaconSize {
		return nil, ErrPayloadTooLarge
	}

	return buf, nil
}

// DecodedFrame is a parsed inbound beacon. The channel hash is not yet
// resolved against local membership; that gate belongs to the router.
type DecodedFrame struct {
	SenderID    string
	ChannelHash uint16
	Timestamp   int64 // expanded to Unix milliseconds
	Content     string
	IsInvite    bool
	IsDelete    bool
}

// DecodeBeacon parses a raw advertisement payload. Payloads shorter than
// the fixed header are rejected with ErrMalformedPayload. The wire
// timestamp has seconds resolution; expansion to milliseconds recovers
// no sub-second ordering and callers must not tie-break on it.
func DecodeBeacon(payload []byte) (*DecodedFrame, error) {
	if len(payload) < BeaconHeaderSize {
		return nil, ErrMalformedPayload
	}

	sender := string(bytes.TrimRight(payload[0:SenderIDSize], "\x00"))
	hash := binary.BigEndian.Uint16(payload[4:6]) & 0x7FFF
	seconds := binary.BigEndian.Uint32(payload[6:10])

	frame := &DecodedFrame{
		SenderID:    sender,
		ChannelHash: hash,
		Timestamp:   int64(seconds) * 1000,
		Content:     string(payload[BeaconHeaderSize:]),
		IsInvite:    hash == HashInvite,
		IsDelete:    hash == HashDelete,
	}

	return frame, nil
}
