package model

import (
	"fmt"
	"strings"
)

// SameMessage decides whether two message records refer to the same
// logical message. The comparison is priority-ordered and asymmetric
// because REST rows, push confirmations and optimistic placeholders
// populate different subsets of identifiers: a server-log id match wins
// over a provider id match, then a client id match, then a generic id
// match, and an incoming generic id may refer to the existing record's
// log row.
func SameMessage(existing, incoming Message) bool {
	if existing.LogID != "" && incoming.LogID != "" {
		return existing.LogID == incoming.LogID
	}
	if existing.MessageID != "" && incoming.MessageID != "" {
		return existing.MessageID == incoming.MessageID
	}
	if existing.ClientMessageID != "" && incoming.ClientMessageID != "" {
		return existing.ClientMessageID == incoming.ClientMessageID
	}
	if existing.ID != "" && incoming.ID != "" {
		return existing.ID == incoming.ID
	}
	if existing.LogID != "" && incoming.ID != "" {
		return existing.LogID == incoming.ID
	}
	if !existing.HasIdentity() && !incoming.HasIdentity() {
		return FallbackKey(existing) == FallbackKey(incoming)
	}
	return false
}

// FallbackKey builds a composite identity for records that carry no ids
// at all: timestamp, direction and a short text prefix.
func FallbackKey(m Message) string {
	text := m.Text
	if len(text) > 32 {
		text = text[:32]
	}
	dir := "out"
	if m.IsInbound {
		dir = "in"
	}
	return fmt.Sprintf("%d|%s|%s", m.SentAt.UnixMilli(), dir, text)
}

// directionInbound is the vocabulary producers use for customer-originated
// messages.
var directionInbound = map[string]bool{
	"received": true,
	"customer": true,
	"from":     true,
}

// InferInbound decides message direction from the heterogeneous hints
// producers attach: an explicit boolean flag, a direction word, or a
// status word. Defaults to outbound when nothing matches.
func InferInbound(flag any, direction, status string) bool {
	switch v := flag.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return true
		case "false":
			return false
		}
	}
	d := strings.ToLower(strings.TrimSpace(direction))
	if d != "" {
		if directionInbound[d] || strings.HasPrefix(d, "in") {
			return true
		}
		return false
	}
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "received", "incoming":
		return true
	}
	return false
}
