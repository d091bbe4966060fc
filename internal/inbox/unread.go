package inbox

import "time"

// overrideEntry is one "don't trust the server yet" record.
type overrideEntry struct {
	localUnread int
	updatedAt   time.Time
}

// unreadLedger holds per-conversation local unread overrides, keyed by
// conversation id and redundantly by contact id so a push event that
// only names the contact can still find the entry. An override is
// recorded whenever the local UI changes an unread count ahead of the
// server (clearing on open, incrementing on push); server values are
// trusted again once they imply at least the override.
type unreadLedger struct {
	byConv    map[string]overrideEntry
	byContact map[string]overrideEntry
}

func newUnreadLedger() *unreadLedger {
	return &unreadLedger{
		byConv:    make(map[string]overrideEntry),
		byContact: make(map[string]overrideEntry),
	}
}

func (l *unreadLedger) record(convID, contactID string, unread int, now time.Time) {
	e := overrideEntry{localUnread: unread, updatedAt: now}
	if convID != "" {
		l.byConv[convID] = e
	}
	if contactID != "" {
		l.byContact[contactID] = e
	}
}

func (l *unreadLedger) lookup(convID, contactID string) (overrideEntry, bool) {
	if convID != "" {
		if e, ok := l.byConv[convID]; ok {
			return e, true
		}
	}
	if contactID != "" {
		if e, ok := l.byContact[contactID]; ok {
			return e, true
		}
	}
	return overrideEntry{}, false
}

func (l *unreadLedger) clear(convID, contactID string) {
	delete(l.byConv, convID)
	delete(l.byContact, contactID)
}

// trustServer applies the REST-merge rule: with no override the caller
// decides (handled=false); with an override, a server value that caught
// up (>= override) is adopted and the override retired, otherwise the
// override stays the local truth.
func (l *unreadLedger) trustServer(convID, contactID string, server int) (int, bool) {
	e, ok := l.lookup(convID, contactID)
	if !ok {
		return 0, false
	}
	if server >= e.localUnread {
		l.clear(convID, contactID)
		return server, true
	}
	return e.localUnread, true
}

// applyPush applies an unread-count push for a non-open conversation:
// with an override present the merge is conservative — any positive
// server count yields max(override, 1), a zero yields 0 — and the
// override is refreshed; without one the server value is adopted.
func (l *unreadLedger) applyPush(convID, contactID string, server int, now time.Time) int {
	e, ok := l.lookup(convID, contactID)
	if !ok {
		return server
	}
	v := 0
	if server > 0 {
		v = e.localUnread
		if v < 1 {
			v = 1
		}
	}
	l.record(convID, contactID, v, now)
	return v
}
