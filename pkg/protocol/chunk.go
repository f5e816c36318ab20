package protocol

import "errors"

// ErrInvalidFraming reports content that starts with the chunk marker
// but does not form a valid chunk header. Callers treat it the same as
// "not a chunk": the marker is a private convention, so anything not
// matching it falls through to ordinary message handling.
var ErrInvalidFraming = errors.New("invalid chunk framing")

// ChunkFrame is one parsed chunk of a multi-beacon message.
type ChunkFrame struct {
	Index       int    // 0-based position, < Total
	Total       int    // 1..8
	MessageHash byte   // hex digit derived from the message id
	Data        string // up to 6 content bytes
}

// NeedsChunking reports whether content exceeds the single-beacon budget.
func NeedsChunking(content string) bool {
	return len(content) > MaxBeaconContent
}

// SplitContent splits message content into chunk payload strings, each
// sized to fit the content field of one beacon. Content beyond 48 bytes
// is truncated rune-safe before splitting; documented lossy behavior,
// not an error.
func SplitContent(messageID, content string) []string {
	content = TruncateUTF8(content, MaxChunkedContent)
	if content == "" {
		return nil
	}

	total := (len(content) + ChunkDataSize - 1) / ChunkDataSize
	hash := MessageHashDigit(messageID)

	chunks := make([]string, 0, total)
	for i := 0; i < total; i++ {
		start := i * ChunkDataSize
		end := start + ChunkDataSize
		if end > len(content) {
			end = len(content)
		}

		header := []byte{ChunkMarker, hexDigit(byte(i)), hexDigit(byte(total)), hash}
		chunks = append(chunks, string(header)+content[start:end])
	}

	return chunks
}

// ParseChunk parses beacon content as a chunk frame. Content without the
// chunk marker returns (nil, nil): it is ordinary chat text, not an
// error. Content that carries the marker but breaks the framing rules
// returns ErrInvalidFraming, which callers also treat as ordinary text.
func ParseChunk(content string) (*ChunkFrame, error) {
	if len(content) == 0 || content[0] != ChunkMarker {
		return nil, nil
	}

	if len(content) < ChunkHeaderSize {
		return nil, ErrInvalidFraming
	}

	index, ok := hexValue(content[1])
	if !ok {
		return nil, ErrInvalidFraming
	}

	total, ok := hexValue(content[2])
	if !ok {
		return nil, ErrInvalidFraming
	}

	if _, ok := hexValue(content[3]); !ok {
		return nil, ErrInvalidFraming
	}

	if total < 1 || total > MaxChunks || int(index) >= int(total) {
		return nil, ErrInvalidFraming
	}

	return &ChunkFrame{
		Index:       int(index),
		Total:       int(total),
		MessageHash: content[3],
		Data:        content[ChunkHeaderSize:],
	}, nil
}
