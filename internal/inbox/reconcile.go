package inbox

import (
	"time"

	"github.com/pedrohsa/wainbox/internal/model"
)

// applyPushMessage folds a new-message push event into the stores.
// Returns true when the event targets a conversation we don't know yet,
// which the caller answers with a silent list refetch.
func (c *Controller) applyPushMessage(pm model.PushMessage, now time.Time) bool {
	conv, ok := c.convs.findTarget(pm.ConversationID, pm.ContactID, pm.ContactPhone)
	if !ok {
		return true
	}

	msg := pm.Message
	// Payloads with neither text nor media are pure status pings;
	// appending them would render ghost empty bubbles.
	hasContent := msg.Text != "" || msg.MediaID != "" || msg.MediaType != ""
	open := c.selected == conv.ContactID

	if open {
		if idx, found := c.thread.find(msg); found {
			c.thread.messages[idx] = mergeMessage(c.thread.messages[idx], msg)
			c.thread.sortMessages()
		} else if hasContent {
			c.thread.upsert(msg)
		}
	}

	if hasContent {
		conv.LastMessagePreview = preview(msg)
		if !msg.SentAt.IsZero() && msg.SentAt.After(conv.LastMessageAt) {
			conv.LastMessageAt = msg.SentAt
		}
		if msg.IsInbound {
			conv.Within24h = true
			if !msg.SentAt.IsZero() {
				conv.LastInboundAt = msg.SentAt
			}
			// An inbound message reopens a closed conversation.
			if conv.Status == model.StatusClosed {
				conv.Status = model.StatusOpen
			}
			if open {
				conv.UnreadCount = 0
			} else {
				conv.UnreadCount++
				c.ledger.record(conv.ID, conv.ContactID, conv.UnreadCount, now)
			}
		} else if !msg.SentAt.IsZero() {
			conv.LastOutboundAt = msg.SentAt
		}
	}

	c.convs.put(conv)
	return false
}

// applyUnreadDeltas folds an unread-count push (single or batched) in.
// The open conversation is always pinned to zero regardless of payload.
func (c *Controller) applyUnreadDeltas(deltas []model.UnreadDelta, now time.Time) {
	for _, d := range deltas {
		conv, ok := c.convs.findTarget(d.ConversationID, d.ContactID, "")
		if !ok {
			continue
		}
		if c.selected == conv.ContactID {
			conv.UnreadCount = 0
		} else {
			conv.UnreadCount = c.ledger.applyPush(conv.ID, conv.ContactID, d.Unread, now)
		}
		c.convs.put(conv)
	}
}

// applyStatusUpdate routes a message-status push into the open thread
// only; status pushes for threads we are not looking at have no visible
// state to fix.
func (c *Controller) applyStatusUpdate(upd model.StatusUpdate) {
	if c.thread == nil || upd.Status == "" {
		return
	}
	for i, m := range c.thread.messages {
		if !statusTargets(m, upd) {
			continue
		}
		if model.StatusAdvances(m.Status, upd.Status) {
			c.thread.messages[i].Status = upd.Status
		}
		return
	}
}

// statusTargets matches a status update against a message by server-log
// id, transport id, or generic id.
func statusTargets(m model.Message, u model.StatusUpdate) bool {
	if u.LogID != "" && m.LogID == u.LogID {
		return true
	}
	if u.MessageID != "" && m.MessageID == u.MessageID {
		return true
	}
	if u.ID != "" && (m.ID == u.ID || m.LogID == u.ID) {
		return true
	}
	return false
}

func preview(m model.Message) string {
	if m.Text != "" {
		return truncate(m.Text, 100)
	}
	if m.MediaType != "" {
		return "[" + m.MediaType + "]"
	}
	return ""
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
