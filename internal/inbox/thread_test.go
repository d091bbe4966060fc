package inbox

import (
	"testing"
	"time"

	"github.com/pedrohsa/wainbox/internal/model"
)

var threadBase = time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)

func msg(logID string, at time.Time) model.Message {
	return model.Message{LogID: logID, Text: "m-" + logID, SentAt: at, Status: "sent", Direction: "in", IsInbound: true}
}

func TestResetSortsAscending(t *testing.T) {
	th := newThread("a", "conv-a")
	th.reset(model.Page[model.Message]{Items: []model.Message{
		msg("3", threadBase.Add(2*time.Minute)),
		msg("1", threadBase),
		msg("2", threadBase.Add(time.Minute)),
	}})

	for i, want := range []string{"1", "2", "3"} {
		if th.messages[i].LogID != want {
			t.Errorf("position %d: got %q, want %q", i, th.messages[i].LogID, want)
		}
	}
}

func TestResetKeepsMessagesSentWhileFetching(t *testing.T) {
	th := newThread("a", "conv-a")

	// Sent (and delivered by push) while the first page was in flight.
	ph := newPlaceholder("oi", threadBase.Add(10*time.Minute))
	th.upsert(ph)
	th.upsert(msg("9", threadBase.Add(9*time.Minute)))

	th.reset(model.Page[model.Message]{Items: []model.Message{
		msg("1", threadBase),
		msg("2", threadBase.Add(time.Minute)),
	}})

	if len(th.messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(th.messages))
	}
	if got := th.messages[3]; got.ClientMessageID != ph.ClientMessageID {
		t.Errorf("newest message = %+v, want the optimistic placeholder", got)
	}
}

func TestResetMergesEchoedPlaceholder(t *testing.T) {
	th := newThread("a", "conv-a")
	ph := newPlaceholder("oi", threadBase)
	th.upsert(ph)

	// The page already contains the server's row for our send.
	th.reset(model.Page[model.Message]{Items: []model.Message{{
		LogID: "srv-1", ClientMessageID: ph.ClientMessageID,
		Text: "oi", Direction: "out", Status: "sent", SentAt: threadBase,
	}}})

	if len(th.messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(th.messages))
	}
	if th.messages[0].LogID != "srv-1" || th.messages[0].Status != "sent" {
		t.Errorf("merged message = %+v", th.messages[0])
	}
}

func TestPrependOlderDeduplicates(t *testing.T) {
	th := newThread("a", "conv-a")
	th.reset(model.Page[model.Message]{
		Items:      []model.Message{msg("5", threadBase.Add(5 * time.Minute))},
		NextCursor: "p2",
		HasMore:    true,
	})

	// The older page overlaps: row 5 already arrived via push.
	th.prependOlder(model.Page[model.Message]{Items: []model.Message{
		msg("4", threadBase.Add(4 * time.Minute)),
		msg("5", threadBase.Add(5 * time.Minute)),
	}})

	if len(th.messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(th.messages))
	}
	if th.messages[0].LogID != "4" || th.messages[1].LogID != "5" {
		t.Errorf("order = [%s %s], want [4 5]", th.messages[0].LogID, th.messages[1].LogID)
	}
	if th.hasMore {
		t.Error("hasMore not taken from the newest page result")
	}
}

func TestUpsertMergesByProviderID(t *testing.T) {
	th := newThread("a", "conv-a")
	th.upsert(model.Message{MessageID: "wamid.1", Text: "oi", SentAt: threadBase, Status: "sent"})
	th.upsert(model.Message{MessageID: "wamid.1", LogID: "srv-1", SentAt: threadBase, Status: "delivered"})

	if len(th.messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(th.messages))
	}
	got := th.messages[0]
	if got.LogID != "srv-1" {
		t.Errorf("LogID = %q, want srv-1", got.LogID)
	}
	if got.Text != "oi" {
		t.Errorf("Text = %q, want oi (not blanked by the merge)", got.Text)
	}
	if got.Status != "delivered" {
		t.Errorf("Status = %q, want delivered", got.Status)
	}
}

func TestMergeMessageStatusNeverRegresses(t *testing.T) {
	existing := model.Message{LogID: "1", Status: "read", SentAt: threadBase}
	incoming := model.Message{LogID: "1", Status: "delivered", SentAt: threadBase}

	got := mergeMessage(existing, incoming)
	if got.Status != "read" {
		t.Errorf("Status = %q, want read", got.Status)
	}
}

func TestMergeMessageKeepsDirection(t *testing.T) {
	existing := model.Message{LogID: "1", Direction: "out", SentAt: threadBase}
	incoming := model.Message{LogID: "1", Direction: "in", IsInbound: true, SentAt: threadBase}

	got := mergeMessage(existing, incoming)
	if got.Direction != "out" || got.IsInbound {
		t.Errorf("direction flipped on identity match: %+v", got)
	}
}

func TestItemsInsertsDateSeparators(t *testing.T) {
	th := newThread("a", "conv-a")
	th.upsert(msg("1", threadBase))
	th.upsert(msg("2", threadBase.Add(time.Hour)))
	th.upsert(msg("3", threadBase.Add(25*time.Hour)))

	items := th.items()
	if len(items) != 5 {
		t.Fatalf("got %d items, want 5 (2 separators + 3 messages)", len(items))
	}
	if !items[0].Separator || items[1].Separator || items[2].Separator {
		t.Error("first day not grouped under a single separator")
	}
	if !items[3].Separator || items[4].Separator {
		t.Error("day boundary did not produce a separator")
	}
}
