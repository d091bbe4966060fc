package model

import (
	"strconv"
	"strings"
	"time"
)

// The push channel and the REST endpoints are fed by several producers
// that disagree on field casing (camelCase webhook relays, PascalCase
// DTOs, snake_case provider callbacks). normalization happens once at
// the ingestion boundary so nothing downstream branches on casing.

// record wraps a decoded JSON object with casing-insensitive lookup.
// Keys are canonicalized by lowercasing and stripping '_' and '-'.
type record map[string]any

func newRecord(m map[string]any) record {
	r := make(record, len(m))
	for k, v := range m {
		r[canonKey(k)] = v
	}
	return r
}

func canonKey(k string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(k) {
		if c == '_' || c == '-' {
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r record) raw(keys ...string) any {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func (r record) str(keys ...string) string {
	switch v := r.raw(keys...).(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func (r record) num(keys ...string) (float64, bool) {
	switch v := r.raw(keys...).(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func (r record) boolean(keys ...string) bool {
	switch v := r.raw(keys...).(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	case float64:
		return v != 0
	}
	return false
}

func (r record) object(keys ...string) record {
	if m, ok := r.raw(keys...).(map[string]any); ok {
		return newRecord(m)
	}
	return nil
}

// when parses the timestamp formats seen in the wild: RFC3339 strings,
// unix seconds and unix milliseconds.
func (r record) when(keys ...string) time.Time {
	switch v := r.raw(keys...).(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t
			}
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return fromUnix(f)
		}
	case float64:
		return fromUnix(v)
	}
	return time.Time{}
}

func fromUnix(f float64) time.Time {
	// Values past the year 2603 in seconds are really milliseconds.
	if f > 2e10 {
		return time.UnixMilli(int64(f)).UTC()
	}
	return time.Unix(int64(f), 0).UTC()
}

var mediaKinds = []string{"image", "video", "audio", "document", "sticker", "voice"}

// NormalizeMessage maps one raw payload object to the canonical Message.
func NormalizeMessage(m map[string]any) Message {
	r := newRecord(m)

	msg := Message{
		LogID:           r.str("messagelogid", "logid"),
		MessageID:       r.str("providermessageid", "messageid", "wamid"),
		ClientMessageID: r.str("clientmessageid", "clientmsgid"),
		ID:              r.str("id"),
		Direction:       r.str("direction"),
		Text:            r.str("text", "body", "message", "caption"),
		Status:          r.str("status"),
		ErrorMessage:    r.str("errormessage", "error"),
		SentAt:          r.when("sentat", "sentatutc", "timestamp", "ts", "createdat"),
	}
	msg.IsInbound = InferInbound(r.raw("isinbound", "inbound", "fromcustomer"), msg.Direction, msg.Status)

	msg.MediaType = r.str("mediatype")
	msg.MediaID = r.str("mediaid")
	kind := strings.ToLower(r.str("type"))
	for _, mk := range mediaKinds {
		if kind != mk {
			continue
		}
		if msg.MediaType == "" {
			msg.MediaType = mk
		}
		if sub := r.object(mk); sub != nil && msg.MediaID == "" {
			msg.MediaID = sub.str("id", "mediaid")
		}
		break
	}

	if loc := r.object("location"); loc != nil {
		msg.Latitude, _ = loc.num("latitude", "lat")
		msg.Longitude, _ = loc.num("longitude", "lng", "lon")
	} else {
		msg.Latitude, _ = r.num("latitude")
		msg.Longitude, _ = r.num("longitude")
	}

	return msg
}

// NormalizeConversationStatus folds free-text lifecycle values onto the
// three canonical states. Unrecognized values stay Open rather than
// hiding the conversation behind the closed filter.
func NormalizeConversationStatus(raw string) ConversationStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(s, "close"), strings.Contains(s, "resolve"):
		return StatusClosed
	case strings.Contains(s, "pend"), strings.Contains(s, "wait"):
		return StatusPending
	default:
		return StatusOpen
	}
}

// NormalizeConversation maps one raw payload object to the canonical
// Conversation.
func NormalizeConversation(m map[string]any) Conversation {
	r := newRecord(m)

	unread, _ := r.num("unreadcount", "unread")
	c := Conversation{
		ID:                 r.str("id", "conversationid"),
		ContactID:          r.str("contactid"),
		ContactPhone:       r.str("contactphone", "phone", "to"),
		ContactName:        r.str("contactname", "name"),
		LastMessagePreview: r.str("lastmessagepreview", "preview", "lastmessagetext"),
		LastMessageAt:      r.when("lastmessageat", "lastmessageatutc"),
		UnreadCount:        int(unread),
		Status:             NormalizeConversationStatus(r.str("status")),
		NumberID:           r.str("numberid"),
		NumberLabel:        r.str("numberlabel"),
		Within24h:          r.boolean("within24h", "iswithin24h", "withinwindow"),
		AssignedToUserID:   r.str("assignedtouserid", "assigneeid", "assigneduserid"),
		AssignedToUserName: r.str("assignedtousername", "assigneename"),
		SourceName:         r.str("sourcename", "source"),
		Mode:               r.str("mode"),
		FirstSeenAt:        r.when("firstseenat"),
		LastInboundAt:      r.when("lastinboundat"),
		LastOutboundAt:     r.when("lastoutboundat"),
	}
	if c.UnreadCount < 0 {
		c.UnreadCount = 0
	}
	return c
}

// NormalizePushMessage maps a raw new-message push event, which may nest
// the message under a "message" key or carry it flat.
func NormalizePushMessage(m map[string]any) PushMessage {
	r := newRecord(m)

	pm := PushMessage{
		ConversationID: r.str("conversationid"),
		ContactID:      r.str("contactid"),
		ContactPhone:   r.str("contactphone", "phone", "from", "to"),
	}
	if sub := r.raw("message", "payload"); sub != nil {
		if obj, ok := sub.(map[string]any); ok {
			pm.Message = NormalizeMessage(obj)
			return pm
		}
	}
	pm.Message = NormalizeMessage(m)
	return pm
}

// NormalizeUnreadDeltas maps an unread-count-changed push event, which
// is either a single delta or a batch under "items"/"deltas".
func NormalizeUnreadDeltas(m map[string]any) []UnreadDelta {
	r := newRecord(m)

	if batch, ok := r.raw("items", "deltas", "counts").([]any); ok {
		var out []UnreadDelta
		for _, entry := range batch {
			if obj, ok := entry.(map[string]any); ok {
				out = append(out, normalizeUnreadDelta(newRecord(obj)))
			}
		}
		return out
	}
	return []UnreadDelta{normalizeUnreadDelta(r)}
}

func normalizeUnreadDelta(r record) UnreadDelta {
	n, _ := r.num("unreadcount", "unread", "count")
	if n < 0 {
		n = 0
	}
	return UnreadDelta{
		ConversationID: r.str("conversationid"),
		ContactID:      r.str("contactid"),
		Unread:         int(n),
	}
}

// NormalizeStatusUpdate maps a message-status-changed push event.
func NormalizeStatusUpdate(m map[string]any) StatusUpdate {
	r := newRecord(m)
	return StatusUpdate{
		LogID:     r.str("messagelogid", "logid"),
		MessageID: r.str("providermessageid", "messageid", "wamid"),
		ID:        r.str("id"),
		Status:    r.str("status"),
	}
}

// NormalizeContactSummary maps a raw CRM summary payload to the
// canonical ContactSummary.
func NormalizeContactSummary(m map[string]any) ContactSummary {
	r := newRecord(m)

	notes, _ := r.num("notecount", "notes")
	reminders, _ := r.num("remindercount", "reminders")
	total, _ := r.num("totalmessages", "messagecount")
	cs := ContactSummary{
		ContactID:      r.str("contactid", "id"),
		Name:           r.str("name", "contactname"),
		Phone:          r.str("phone", "contactphone"),
		Email:          r.str("email"),
		NoteCount:      int(notes),
		ReminderCount:  int(reminders),
		TotalMessages:  int(total),
		FirstContactAt: r.when("firstcontactat", "firstseenat", "createdat"),
	}
	if tags, ok := r.raw("tags", "labels").([]any); ok {
		for _, tag := range tags {
			switch v := tag.(type) {
			case string:
				cs.Tags = append(cs.Tags, v)
			case map[string]any:
				if name := newRecord(v).str("name", "label"); name != "" {
					cs.Tags = append(cs.Tags, name)
				}
			}
		}
	}
	return cs
}
