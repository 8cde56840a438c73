package messaging

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxMessageBytes is the largest body one WhatsApp message may carry.
	MaxMessageBytes = 1550
	// InterPartDelay spaces out the parts of a split reply so they arrive
	// in order.
	InterPartDelay = 800 * time.Millisecond
)

// SplitMessage splits a reply that exceeds maxBytes of UTF-8 into parts:
// preferably at the last newline before the limit, else the last space,
// else a hard cut. Newline/space cuts are only taken past the halfway
// point, so a stray early newline cannot produce a tiny fragment. Parts
// are trimmed; empty parts are dropped.
func SplitMessage(body string, maxBytes int) []string {
	var parts []string
	rest := strings.TrimSpace(body)
	for len(rest) > maxBytes {
		window := rest[:runeSafeCut(rest, maxBytes)]

		cut := strings.LastIndexByte(window, '\n')
		if cut <= maxBytes/2 {
			cut = strings.LastIndexByte(window, ' ')
			if cut <= maxBytes/2 {
				cut = len(window)
			}
		}

		part := strings.TrimSpace(rest[:cut])
		rest = strings.TrimSpace(rest[cut:])
		if part != "" {
			parts = append(parts, part)
		}
	}
	if rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

// runeSafeCut returns the largest index <= limit that does not split a
// UTF-8 sequence.
func runeSafeCut(s string, limit int) int {
	if limit >= len(s) {
		return len(s)
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return limit
}
