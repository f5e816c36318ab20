package protocol

import (
	"strings"
	"testing"
)

func TestBeaconEncodeDecode(t *testing.T) {
	tests := []struct {
		name   string
		beacon *Beacon
	}{
		{
			name: "short text",
			beacon: &Beacon{
				SenderID:    "ab12",
				ChannelHash: ChannelHash("general"),
				Timestamp:   1700000000,
				Content:     "hi",
			},
		},
		{
			name: "full content budget",
			beacon: &Beacon{
				SenderID:    "node",
				ChannelHash: ChannelHash("dispatch"),
				Timestamp:   1700000001,
				Content:     "0123456789",
			},
		},
		{
			name: "empty content",
			beacon: &Beacon{
				SenderID:    "x1",
				ChannelHash: ChannelHash("ops"),
				Timestamp:   1700000002,
				Content:     "",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := tt.beacon.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			if len(payload) > MaxBeaconSize {
				t.Errorf("Encode() length = %d, want <= %d", len(payload), MaxBeaconSize)
			}

			frame, err := DecodeBeacon(payload)
			if err != nil {
				t.Fatalf("DecodeBeacon() error = %v", err)
			}

			if frame.SenderID != tt.beacon.SenderID {
				t.Errorf("SenderID = %q, want %q", frame.SenderID, tt.beacon.SenderID)
			}
			if frame.ChannelHash != tt.beacon.ChannelHash {
				t.Errorf("ChannelHash = %#04x, want %#04x", frame.ChannelHash, tt.beacon.ChannelHash)
			}
			if frame.Content != tt.beacon.Content {
				t.Errorf("Content = %q, want %q", frame.Content, tt.beacon.Content)
			}
			if frame.Timestamp != int64(tt.beacon.Timestamp)*1000 {
				t.Errorf("Timestamp = %d, want %d", frame.Timestamp, int64(tt.beacon.Timestamp)*1000)
			}
		})
	}
}

func TestBeaconSenderPadding(t *testing.T) {
	b := &Beacon{SenderID: "ab", ChannelHash: 42, Timestamp: 1}
	payload, err := b.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if payload[2] != 0 || payload[3] != 0 {
		t.Errorf("short sender not NUL-padded: % x", payload[0:4])
	}

	frame, err := DecodeBeacon(payload)
	if err != nil {
		t.Fatalf("DecodeBeacon() error = %v", err)
	}
	if frame.SenderID != "ab" {
		t.Errorf("SenderID = %q, want trailing padding trimmed", frame.SenderID)
	}
}

func TestBeaconContentTruncation(t *testing.T) {
	b := &Beacon{
		SenderID:    "ab12",
		ChannelHash: 1,
		Timestamp:   1,
		Content:     "0123456789overflow",
	}

	payload, err := b.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(payload) != MaxBeaconSize {
		t.Errorf("payload length = %d, want %d", len(payload), MaxBeaconSize)
	}

	frame, _ := DecodeBeacon(payload)
	if frame.Content != "0123456789" {
		t.Errorf("Content = %q, want first 10 bytes", frame.Content)
	}
}

func TestBeaconTruncationRuneSafe(t *testing.T) {
	// 3 ASCII bytes then multi-byte runes; the 10-byte budget falls in
	// the middle of a code point and must back off, never split it.
	b := &Beacon{
		SenderID:    "ab12",
		ChannelHash: 1,
		Timestamp:   1,
		Content:     "abc日本語テスト",
	}

	payload, err := b.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	frame, _ := DecodeBeacon(payload)
	if !strings.HasPrefix("abc日本語テスト", frame.Content) {
		t.Errorf("Content = %q is not a prefix of the original", frame.Content)
	}
	if frame.Content != "abc日本" {
		t.Errorf("Content = %q, want %q", frame.Content, "abc日本")
	}
}

func TestDecodeBeaconTooShort(t *testing.T) {
	for _, n := range []int{0, 1, 5, BeaconHeaderSize - 1} {
		if _, err := DecodeBeacon(make([]byte, n)); err != ErrMalformedPayload {
			t.Errorf("DecodeBeacon(len=%d) error = %v, want %v", n, err, ErrMalformedPayload)
		}
	}
}

func TestDecodeBeaconSentinels(t *testing.T) {
	tests := []struct {
		name     string
		hash     uint16
		isInvite bool
		isDelete bool
	}{
		{"invite", HashInvite, true, false},
		{"delete", HashDelete, false, true},
		{"plain", ChannelHash("general"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Beacon{SenderID: "ab12", ChannelHash: tt.hash, Timestamp: 1, Content: "crew"}
			payload, err := b.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			frame, err := DecodeBeacon(payload)
			if err != nil {
				t.Fatalf("DecodeBeacon() error = %v", err)
			}
			if frame.IsInvite != tt.isInvite {
				t.Errorf("IsInvite = %v, want %v", frame.IsInvite, tt.isInvite)
			}
			if frame.IsDelete != tt.isDelete {
				t.Errorf("IsDelete = %v, want %v", frame.IsDelete, tt.isDelete)
			}
		})
	}
}

func TestChannelHashDeterministic(t *testing.T) {
	h1 := ChannelHash("general")
	h2 := ChannelHash("general")
	if h1 != h2 {
		t.Fatalf("ChannelHash not deterministic: %#04x vs %#04x", h1, h2)
	}
	if h1 > MaxChannelHash {
		t.Errorf("ChannelHash(%q) = %#04x lands in the sentinel range", "general", h1)
	}
}

func TestChannelHashNeverSentinel(t *testing.T) {
	// The fold keeps every result strictly below the control markers.
	names := []string{"general", "dispatch", "ops", "crew-7", "site/42", "日本語"}
	for _, name := range names {
		if h := ChannelHash(name); h >= HashDelete {
			t.Errorf("ChannelHash(%q) = %#04x collides with a sentinel", name, h)
		}
	}
}

func TestDeliveryDigest(t *testing.T) {
	d1 := DeliveryDigest("ab12", 1700000000, "hello")
	d2 := DeliveryDigest("ab12", 1700000000, "hello")
	if d1 != d2 {
		t.Fatalf("DeliveryDigest not deterministic: %s vs %s", d1, d2)
	}
	if len(d1) != AckDigestLen {
		t.Errorf("digest length = %d, want %d", len(d1), AckDigestLen)
	}
	if d3 := DeliveryDigest("ab12", 1700000000, "hello!"); d3 == d1 {
		t.Errorf("different content produced identical digest %s", d3)
	}
}

func TestAckContentRoundTrip(t *testing.T) {
	digest := DeliveryDigest("ab12", 1700000000, "hello")
	content := AckContent(digest)

	if len(content) > MaxBeaconContent {
		t.Fatalf("ack content length = %d exceeds beacon budget", len(content))
	}

	got, ok := ParseAck(content)
	if !ok {
		t.Fatal("ParseAck() ok = false for valid ack content")
	}
	if got != digest {
		t.Errorf("ParseAck() = %q, want %q", got, digest)
	}
}

func TestParseAckRejects(t *testing.T) {
	tests := []string{
		"",
		"hello",
		string(AckMarker),               // no digest
		string(AckMarker) + "12345",     // short digest
		string(AckMarker) + "1234567z",  // non-hex digit
		string(AckMarker) + "123456789", // too long
	}

	for _, content := range tests {
		if _, ok := ParseAck(content); ok {
			t.Errorf("ParseAck(%q) ok = true, want false", content)
		}
	}
}

func TestHeartbeatContent(t *testing.T) {
	content := HeartbeatContent("Dana")
	if !IsHeartbeat(content) {
		t.Fatal("IsHeartbeat() = false for heartbeat content")
	}
	if alias := HeartbeatAlias(content); alias != "Dana" {
		t.Errorf("HeartbeatAlias() = %q, want %q", alias, "Dana")
	}
	if len(content) > MaxBeaconContent {
		t.Errorf("heartbeat content length = %d exceeds beacon budget", len(content))
	}

	long := HeartbeatContent("a very long display name")
	if len(long) > MaxBeaconContent {
		t.Errorf("long alias not truncated: length = %d", len(long))
	}

	if IsHeartbeat("hi") {
		t.Error("IsHeartbeat(plain text) = true")
	}
}
