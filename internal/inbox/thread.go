package inbox

import (
	"sort"

	"github.com/pedrohsa/wainbox/internal/model"
)

// threadState holds the currently open conversation's messages, sorted
// ascending by send time, plus the older-pages cursor.
type threadState struct {
	contactID string
	convID    string
	messages  []model.Message
	cursor    string
	hasMore   bool
}

func newThread(contactID, convID string) *threadState {
	return &threadState{contactID: contactID, convID: convID}
}

// reset folds the first fetched page in. The thread is created empty
// when the conversation opens, so anything already present arrived
// after the fetch was issued (optimistic placeholders, push deliveries)
// and must survive: the page is upserted, never swapped in wholesale.
func (t *threadState) reset(page model.Page[model.Message]) {
	for _, m := range page.Items {
		t.upsert(m)
	}
	t.cursor = page.NextCursor
	t.hasMore = page.HasMore
}

// prependOlder folds an older page in. Identity dedup still applies:
// the server may return rows we already saw via push.
func (t *threadState) prependOlder(page model.Page[model.Message]) {
	for _, m := range page.Items {
		t.upsert(m)
	}
	t.cursor = page.NextCursor
	t.hasMore = page.HasMore
}

// upsert merges a message into the thread by identity, appending it as
// new when nothing matches. The slice stays sorted by SentAt ascending.
func (t *threadState) upsert(incoming model.Message) {
	for i, existing := range t.messages {
		if model.SameMessage(existing, incoming) {
			t.messages[i] = mergeMessage(existing, incoming)
			t.sortMessages()
			return
		}
	}
	t.messages = append(t.messages, incoming)
	t.sortMessages()
}

// find locates a message by the identity priority order.
func (t *threadState) find(probe model.Message) (int, bool) {
	for i, existing := range t.messages {
		if model.SameMessage(existing, probe) {
			return i, true
		}
	}
	return -1, false
}

func (t *threadState) sortMessages() {
	sort.SliceStable(t.messages, func(i, j int) bool {
		return t.messages[i].SentAt.Before(t.messages[j].SentAt)
	})
}

// mergeMessage folds incoming into existing: identifiers fill in blanks,
// content fields adopt non-empty values, and status only moves forward
// per the rank rule. Direction never flips on an identity match.
func mergeMessage(existing, incoming model.Message) model.Message {
	out := existing
	if out.LogID == "" {
		out.LogID = incoming.LogID
	}
	if out.MessageID == "" {
		out.MessageID = incoming.MessageID
	}
	if out.ClientMessageID == "" {
		out.ClientMessageID = incoming.ClientMessageID
	}
	if out.ID == "" {
		out.ID = incoming.ID
	}
	if incoming.Text != "" {
		out.Text = incoming.Text
	}
	if incoming.MediaType != "" {
		out.MediaType = incoming.MediaType
	}
	if incoming.MediaID != "" {
		out.MediaID = incoming.MediaID
	}
	if incoming.Latitude != 0 || incoming.Longitude != 0 {
		out.Latitude, out.Longitude = incoming.Latitude, incoming.Longitude
	}
	if !incoming.SentAt.IsZero() {
		out.SentAt = incoming.SentAt
	}
	if incoming.ErrorMessage != "" {
		out.ErrorMessage = incoming.ErrorMessage
	}
	if incoming.Status != "" && model.StatusAdvances(out.Status, incoming.Status) {
		out.Status = incoming.Status
	}
	return out
}

// items renders the thread with date-boundary separators injected.
func (t *threadState) items() []ThreadItem {
	var out []ThreadItem
	var lastY, lastD int
	var lastM int
	for _, m := range t.messages {
		y, mo, d := m.SentAt.Date()
		if len(out) == 0 || y != lastY || int(mo) != lastM || d != lastD {
			out = append(out, ThreadItem{Separator: true, Date: m.SentAt})
			lastY, lastM, lastD = y, int(mo), d
		}
		out = append(out, ThreadItem{Message: m})
	}
	return out
}
