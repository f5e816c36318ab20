package router

import (
	"fmt"
	"testing"

	"github.com/fieldlink/meshlink/pkg/protocol"
)

func TestChannelTableJoinResolve(t *testing.T) {
	table := NewChannelTable()

	hash := table.Join("field-ops")
	if hash != protocol.ChannelHash("field-ops") {
		t.Fatalf("Join returned %#04x, want %#04x", hash, protocol.ChannelHash("field-ops"))
	}
	if !table.IsMember("field-ops") {
		t.Fatal("expected membership after join")
	}

	resolved, ok := table.Resolve(hash)
	if !ok || resolved != "field-ops" {
		t.Fatalf("Resolve(%#04x) = %q, %v; want field-ops, true", hash, resolved, ok)
	}

	if _, ok := table.Resolve(hash ^ 0x0001); ok {
		t.Fatal("expected miss for unjoined hash")
	}
}

func TestChannelTableLeave(t *testing.T) {
	table := NewChannelTable()
	hash := table.Join("field-ops")
	table.Leave("field-ops")

	if table.IsMember("field-ops") {
		t.Fatal("still a member after leave")
	}
	if _, ok := table.Resolve(hash); ok {
		t.Fatal("hash still resolves after leave")
	}

	// leaving twice is harmless
	table.Leave("field-ops")
}

// findCollision brute-forces a channel name hashing to the same 15-bit
// address as the given one. The space is small enough that a collision
// always exists nearby.
func findCollision(t *testing.T, channelID string) string {
	t.Helper()
	target := protocol.ChannelHash(channelID)
	for i := 0; i < 1_000_000; i++ {
		candidate := fmt.Sprintf("chan-%d", i)
		if candidate != channelID && protocol.ChannelHash(candidate) == target {
			return candidate
		}
	}
	t.Fatal("no collision found")
	return ""
}

func TestChannelTableCollisionFirstJoinWins(t *testing.T) {
	table := NewChannelTable()
	first := "field-ops"
	second := findCollision(t, first)

	hash := table.Join(first)
	if got := table.Join(second); got != hash {
		t.Fatalf("colliding join returned %#04x, want %#04x", got, hash)
	}

	// both are members for outbound purposes
	if !table.IsMember(first) || !table.IsMember(second) {
		t.Fatal("both colliding channels should be members")
	}

	// inbound resolution sticks with the earlier join
	resolved, ok := table.Resolve(hash)
	if !ok || resolved != first {
		t.Fatalf("Resolve = %q, want %q", resolved, first)
	}

	// leaving the later channel must not evict the winner
	table.Leave(second)
	if resolved, _ := table.Resolve(hash); resolved != first {
		t.Fatalf("Resolve after leave = %q, want %q", resolved, first)
	}
}

func TestChannelTableChannelsSorted(t *testing.T) {
	table := NewChannelTable()
	for _, id := range []string{"zulu", "alpha", "mike"} {
		table.Join(id)
	}

	got := table.Channels()
	want := []string{"alpha", "mike", "zulu"}
	if len(got) != len(want) {
		t.Fatalf("Channels() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Channels() = %v, want %v", got, want)
		}
	}
}
