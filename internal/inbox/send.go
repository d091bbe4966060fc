package inbox

import (
	"time"

	"github.com/google/uuid"
	"github.com/pedrohsa/wainbox/internal/model"
	"github.com/pedrohsa/wainbox/internal/rest"
)

// newPlaceholder builds the optimistic local message inserted before
// the send request goes out.
func newPlaceholder(text string, now time.Time) model.Message {
	return model.Message{
		ClientMessageID: "local-" + uuid.NewString(),
		Direction:       "out",
		Text:            text,
		Status:          "queued",
		SentAt:          now,
	}
}

// applySendResult reconciles the server's send response into the
// placeholder: server identifiers and authoritative send time are
// adopted, and the status moves to whatever the server classified —
// defaulting to queued when omitted, never an optimistic success.
func applySendResult(placeholder model.Message, res rest.SendResult) model.Message {
	out := placeholder
	out.LogID = res.ID
	out.ID = res.ID
	if res.MessageID != "" {
		out.MessageID = res.MessageID
	}
	if !res.SentAt.IsZero() {
		out.SentAt = res.SentAt
	}
	if res.Status != "" && model.StatusAdvances(out.Status, res.Status) {
		out.Status = res.Status
	}
	if res.ErrorMessage != "" {
		out.ErrorMessage = res.ErrorMessage
		if model.ClassifyStatus(res.Status) != model.RankFailed {
			out.Status = "failed"
		}
	}
	return out
}

// applySendFailure marks the placeholder failed with a short
// user-facing error. The message stays visible in the thread.
func applySendFailure(placeholder model.Message, err error) model.Message {
	out := placeholder
	out.Status = "failed"
	msg := err.Error()
	if len(msg) > 120 {
		msg = msg[:120]
	}
	out.ErrorMessage = msg
	return out
}
