package push

import (
	"encoding/json"
	"strings"

	"github.com/pedrohsa/wainbox/internal/bus"
	"github.com/pedrohsa/wainbox/internal/model"
	"go.uber.org/zap"
)

// Bus event kinds published by the push client.
const (
	KindMessage       = "push.message"
	KindUnread        = "push.unread"
	KindMessageStatus = "push.message_status"
)

// classifyKind folds the producers' event-name spellings onto our three
// kinds. Order matters: "unread-count-changed" also contains "count",
// and "message-status-changed" also contains "message".
func classifyKind(raw string) string {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "unread"):
		return KindUnread
	case strings.Contains(s, "status"):
		return KindMessageStatus
	case strings.Contains(s, "message"), strings.Contains(s, "msg"):
		return KindMessage
	default:
		return ""
	}
}

// handleFrame decodes one raw push frame and publishes the normalized
// event. Unrecognized frames are logged and dropped; the channel is
// at-least-once so the next refresh self-corrects.
func handleFrame(data []byte, b *bus.Bus, logger *zap.Logger) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		logger.Warn("undecodable push frame", zap.Error(err))
		return
	}

	kind := classifyKind(eventName(obj))
	if kind == "" && looksLikeMessage(obj) {
		// Some producers send the message payload bare, with "type"
		// holding the media kind rather than an event name.
		kind = KindMessage
	}
	if kind == "" {
		logger.Debug("unknown push event", zap.String("event", eventName(obj)))
		return
	}

	payload := obj
	for _, key := range []string{"data", "Data", "payload", "Payload"} {
		if nested, ok := obj[key].(map[string]any); ok {
			payload = nested
			break
		}
	}

	switch kind {
	case KindMessage:
		b.Emit(KindMessage, model.NormalizePushMessage(payload))
	case KindUnread:
		b.Emit(KindUnread, model.NormalizeUnreadDeltas(payload))
	case KindMessageStatus:
		b.Emit(KindMessageStatus, model.NormalizeStatusUpdate(payload))
	}
}

func looksLikeMessage(obj map[string]any) bool {
	for k := range obj {
		switch strings.ToLower(k) {
		case "direction", "text", "body", "message", "isinbound", "messageid", "messagelogid":
			return true
		}
	}
	return false
}

func eventName(obj map[string]any) string {
	for _, key := range []string{"event", "Event", "type", "Type", "kind", "Kind"} {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
