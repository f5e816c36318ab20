package protocol

import (
	"time"

	"github.com/google/uuid"
)

// WireMessage is the logical unit carried by either transport. On the
// online path it travels as-is (JSON); on the mesh path it is reduced to
// one or more beacons and reconstructed on the far side.
//
// Once a message is assigned an ID, the id stays stable through mesh
// transit, chunk reassembly, ack correlation, and gateway bridging.
type WireMessage struct {
	ID            string    `json:"id"`
	ChannelID     string    `json:"channel_id"`
	SenderID      string    `json:"sender_id"`
	DeviceID      string    `json:"device_id,omitempty"`
	Content       string    `json:"content"`
	Timestamp     int64     `json:"timestamp"` // Unix milliseconds
	RecipientID   string    `json:"recipient_id,omitempty"`
	RecipientName string    `json:"recipient_name,omitempty"`
	IsMeshOrigin  bool      `json:"is_mesh_origin,omitempty"`
	Media         *MediaRef `json:"media,omitempty"`
}

// MediaRef describes a non-text attachment. The mesh path cannot carry
// media; it sends a short text placeholder instead.
type MediaRef struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// NewMessageID generates a globally unique message id.
func NewMessageID() string {
	return uuid.NewString()
}

// NowUnixMilli returns current time in Unix milliseconds.
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// AckContent builds the content field of an acknowledgement beacon.
func AckContent(digest string) string {
	return string(AckMarker) + digest
}

// ParseAck extracts the delivery digest from ack content. The second
// return is false when the content is not an ack frame.
func ParseAck(content string) (string, bool) {
	if len(content) != 1+AckDigestLen || content[0] != AckMarker {
		return "", false
	}

	digest := content[1:]
	for i := 0; i < len(digest); i++ {
		if _, ok := hexValue(digest[i]); !ok {
			return "", false
		}
	}

	return digest, true
}

// HeartbeatContent builds the content field of a presence heartbeat.
// The alias is truncated to fit the beacon content budget.
func HeartbeatContent(alias string) string {
	return string(HeartbeatMarker) + TruncateUTF8(alias, MaxBeaconContent-1)
}

// IsHeartbeat reports whether content is a presence heartbeat frame.
func IsHeartbeat(content string) bool {
	return len(content) >= 1 && content[0] == HeartbeatMarker
}

// HeartbeatAlias extracts the optional display alias from heartbeat
// content. Empty when the sender advertised none.
func HeartbeatAlias(content string) string {
	if !IsHeartbeat(content) {
		return ""
	}
	return content[1:]
}

// IsControlContent reports whether content belongs to the control plane
// (acks, heartbeats, chunk frames). Control content never enters ack
// tracking and is never shown as a chat message.
func IsControlContent(content string) bool {
	if len(content) == 0 {
		return false
	}
	switch content[0] {
	case AckMarker, HeartbeatMarker, ChunkMarker:
		return true
	}
	return false
}
