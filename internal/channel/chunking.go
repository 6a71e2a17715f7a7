package channel

import (
	"strings"
	"unicode/utf8"

	"github.com/flemzord/sandy/pkg/message"
)

// ChunkConfig controls how outbound messages are split when they exceed
// a platform's maximum message length.
type ChunkConfig struct {
	// MaxLength is the maximum number of characters per chunk.
	// A value <= 0 means no splitting.
	MaxLength int

	// PreserveBlocks avoids splitting inside fenced code blocks (``` ... ```).
	// When true, a code block that fits within MaxLength is kept intact even
	// if it would otherwise be split at a line boundary.
	PreserveBlocks bool
}

// SplitMessage splits an outbound message into messages that each respect
// cfg.MaxLength. Only the first chunk keeps ReplyToID. Empty text yields
// no messages.
func SplitMessage(msg message.Outbound, cfg ChunkConfig) []message.Outbound {
	if msg.Text == "" {
		return nil
	}
	if cfg.MaxLength <= 0 || utf8.RuneCountInString(msg.Text) <= cfg.MaxLength {
		return []message.Outbound{msg}
	}

	chunks := splitText(msg.Text, cfg)
	out := make([]message.Outbound, 0, len(chunks))
	for i, chunk := range chunks {
		part := message.Outbound{ChannelID: msg.ChannelID, Text: chunk}
		if i == 0 {
			part.ReplyToID = msg.ReplyToID
		}
		out = append(out, part)
	}
	return out
}

// splitText breaks text into chunks respecting MaxLength. Lines are packed
// greedily; with PreserveBlocks a fenced code block that fits in one chunk
// is packed as a single unit.
func splitText(text string, cfg ChunkConfig) []string {
	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, seg := range segments(text, cfg.PreserveBlocks) {
		segLen := utf8.RuneCountInString(seg)
		sep := 0
		if currentLen > 0 {
			sep = 1
		}
		if currentLen+sep+segLen > cfg.MaxLength {
			flush()
			sep = 0
			if segLen > cfg.MaxLength {
				chunks = append(chunks, forceSplit(seg, cfg.MaxLength)...)
				continue
			}
		}
		if sep == 1 {
			current.WriteByte('\n')
		}
		current.WriteString(seg)
		currentLen += sep + segLen
	}
	flush()
	return chunks
}

// segments splits text into lines, joining each fenced code block into one
// segment when preserve is set. An unterminated fence runs to the end.
func segments(text string, preserve bool) []string {
	lines := strings.Split(text, "\n")
	if !preserve {
		return lines
	}
	var out []string
	var block []string
	for _, line := range lines {
		isFence := strings.HasPrefix(strings.TrimSpace(line), "```")
		switch {
		case block != nil:
			block = append(block, line)
			if isFence {
				out = append(out, strings.Join(block, "\n"))
				block = nil
			}
		case isFence:
			block = []string{line}
		default:
			out = append(out, line)
		}
	}
	if block != nil {
		out = append(out, strings.Join(block, "\n"))
	}
	return out
}

// forceSplit breaks a single long line into chunks of at most maxLen
// characters, preferring the last space inside each window.
func forceSplit(line string, maxLen int) []string {
	runes := []rune(line)
	var parts []string
	for len(runes) > maxLen {
		cut := maxLen
		for i := maxLen - 1; i > maxLen/2; i-- {
			if runes[i] == ' ' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
