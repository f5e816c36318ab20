// Package protocol implements the MeshLink beacon wire format.
//
// MeshLink carries chat traffic over two paths: a short-range broadcast
// medium ("mesh") and a connection-oriented online channel. This package
// defines the mesh side of the wire: a fixed-budget beacon payload that
// fits inside a single broadcast advertisement, plus the chunk framing
// used when message content exceeds the single-beacon budget.
//
// # Beacon Layout
//
// A beacon is at most 20 bytes, big-endian:
//
//	sender id     4 bytes   UTF-8, NUL-padded / truncated
//	channel hash  2 bytes   15-bit value, top bit reserved (zero)
//	timestamp     4 bytes   seconds since the Unix epoch
//	content       0-10 bytes  UTF-8, rune-safe truncation
//
// Channels are addressed by a 15-bit hash of the channel identifier.
// Two hash values are reserved as control markers: 0x7FFF announces a
// channel invite and 0x7FFE a channel deletion; for those beacons the
// content carries a channel name instead of chat text.
//
// # Chunk Framing
//
// Content longer than 10 bytes is split into up to 8 chunks. Each chunk
// occupies the content field of one beacon: a 4-byte header (marker,
// index digit, total digit, message-hash digit) followed by up to 6
// content bytes, for a maximum reconstructable length of 48 bytes.
//
// The package is pure and stateless; reassembly state, channel
// membership, and retry tracking live in package router.
package protocol
