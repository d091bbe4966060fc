package inbox

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pedrohsa/wainbox/internal/bus"
	"github.com/pedrohsa/wainbox/internal/model"
	"github.com/pedrohsa/wainbox/internal/push"
	"github.com/pedrohsa/wainbox/internal/rest"
	"github.com/pedrohsa/wainbox/internal/store"
)

type fakeAPI struct {
	mu         sync.Mutex
	convs      []model.Conversation
	msgs       map[string][]model.Message
	msgDelay   map[string]time.Duration
	msgHasMore bool
	msgCtxs    []context.Context
	listDelay  time.Duration
	sendResult rest.SendResult
	sendErr    error

	summaries map[string]model.ContactSummary

	listCalls int
	sendCalls int
	markReads []string
	assigns   []string
	unassigns []string
	statuses  []string
}

func (f *fakeAPI) ListConversations(ctx context.Context, q rest.ConversationQuery) (model.Page[model.Conversation], error) {
	f.mu.Lock()
	f.listCalls++
	delay := f.listDelay
	items := append([]model.Conversation(nil), f.convs...)
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.Page[model.Conversation]{}, ctx.Err()
		}
	}
	return model.Page[model.Conversation]{Items: items}, nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, q rest.MessageQuery) (model.Page[model.Message], error) {
	f.mu.Lock()
	f.msgCtxs = append(f.msgCtxs, ctx)
	delay := f.msgDelay[q.ContactID]
	hasMore := f.msgHasMore
	items := append([]model.Message(nil), f.msgs[q.ContactID]...)
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.Page[model.Message]{}, ctx.Err()
		}
	}
	return model.Page[model.Message]{Items: items, NextCursor: "older", HasMore: hasMore}, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, req rest.SendRequest) (rest.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	return f.sendResult, f.sendErr
}

func (f *fakeAPI) ContactSummary(ctx context.Context, contactID string) (model.ContactSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summaries[contactID], nil
}

func (f *fakeAPI) MarkRead(ctx context.Context, contactID string, lastReadAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReads = append(f.markReads, contactID)
	return nil
}

func (f *fakeAPI) Assign(ctx context.Context, contactID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigns = append(f.assigns, contactID+":"+userID)
	return nil
}

func (f *fakeAPI) Unassign(ctx context.Context, contactID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unassigns = append(f.unassigns, contactID)
	return nil
}

func (f *fakeAPI) SetStatus(ctx context.Context, contactID string, status model.ConversationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, contactID+":"+string(status))
	return nil
}

func (f *fakeAPI) countMarkReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.markReads)
}

func (f *fakeAPI) countSends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCalls
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startController(t *testing.T, api *fakeAPI, b *bus.Bus) *Controller {
	t.Helper()
	c := New(Options{
		API:             api,
		Bus:             b,
		BusinessID:      "biz",
		UserID:          "me",
		RefreshInterval: time.Hour,
		MarkReadDelay:   20 * time.Millisecond,
	})
	c.Start(context.Background())
	t.Cleanup(c.Stop)
	return c
}

func TestStartLoadsConversations(t *testing.T) {
	api := &fakeAPI{convs: []model.Conversation{conv("a"), conv("b")}}
	c := startController(t, api, bus.New())

	waitFor(t, "initial fetch", func() bool {
		snap := c.Snapshot()
		return len(snap.Conversations) == 2 && !snap.Stale && !snap.ListLoading
	})
}

func TestSelectUnknownConversation(t *testing.T) {
	api := &fakeAPI{convs: []model.Conversation{conv("a")}}
	c := startController(t, api, bus.New())
	waitFor(t, "initial fetch", func() bool { return len(c.Snapshot().Conversations) == 1 })

	if err := c.SelectConversation("ghost"); !errors.Is(err, ErrUnknownConversation) {
		t.Errorf("got %v, want ErrUnknownConversation", err)
	}
}

func TestSelectClearsBadgeThenMarksRead(t *testing.T) {
	withUnread := conv("a", func(cv *model.Conversation) { cv.UnreadCount = 3 })
	api := &fakeAPI{convs: []model.Conversation{withUnread}, msgs: map[string][]model.Message{}}
	c := startController(t, api, bus.New())
	waitFor(t, "initial fetch", func() bool { return len(c.Snapshot().Conversations) == 1 })

	if err := c.SelectConversation("a"); err != nil {
		t.Fatalf("select: %v", err)
	}

	// Badge clears without waiting for the debounced network call.
	waitFor(t, "optimistic badge clear", func() bool {
		snap := c.Snapshot()
		return snap.SelectedContactID == "a" && snap.Conversations[0].UnreadCount == 0
	})
	if api.countMarkReads() != 0 {
		t.Error("mark-read fired before the debounce elapsed")
	}

	waitFor(t, "debounced mark-read", func() bool { return api.countMarkReads() == 1 })
	api.mu.Lock()
	got := api.markReads[0]
	api.mu.Unlock()
	if got != "a" {
		t.Errorf("mark-read contact = %q, want a", got)
	}
}

func TestSendValidatesBeforeNetwork(t *testing.T) {
	expired := conv("old", func(cv *model.Conversation) { cv.Within24h = false })
	closed := conv("done", func(cv *model.Conversation) { cv.Status = model.StatusClosed })
	api := &fakeAPI{
		convs: []model.Conversation{conv("a"), expired, closed},
		msgs:  map[string][]model.Message{},
	}
	c := startController(t, api, bus.New())
	waitFor(t, "initial fetch", func() bool { return len(c.Snapshot().Conversations) > 0 })

	if err := c.Send("oi"); !errors.Is(err, ErrNoSelection) {
		t.Errorf("no selection: got %v, want ErrNoSelection", err)
	}

	if err := c.SelectConversation("a"); err != nil {
		t.Fatal(err)
	}
	if err := c.Send("   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank text: got %v, want ErrEmptyMessage", err)
	}

	if err := c.SelectConversation("old"); err != nil {
		t.Fatal(err)
	}
	if err := c.Send("oi"); !errors.Is(err, ErrOutsideReplyWindow) {
		t.Errorf("expired window: got %v, want ErrOutsideReplyWindow", err)
	}

	if err := c.SelectConversation("done"); err != nil {
		t.Fatal(err)
	}
	if err := c.Send("oi"); !errors.Is(err, ErrConversationClosed) {
		t.Errorf("closed: got %v, want ErrConversationClosed", err)
	}

	if got := api.countSends(); got != 0 {
		t.Errorf("network sends = %d, want 0", got)
	}
}

func TestSendCollapsesPlaceholder(t *testing.T) {
	api := &fakeAPI{
		convs:      []model.Conversation{conv("a")},
		msgs:       map[string][]model.Message{},
		sendResult: rest.SendResult{ID: "srv-9", MessageID: "wamid.9", Status: "sent", SentAt: time.Now()},
	}
	c := startController(t, api, bus.New())
	waitFor(t, "initial fetch", func() bool { return len(c.Snapshot().Conversations) == 1 })

	if err := c.SelectConversation("a"); err != nil {
		t.Fatal(err)
	}
	if err := c.Send("oi"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "placeholder collapse", func() bool {
		var msgs []model.Message
		for _, it := range c.Snapshot().Thread {
			if !it.Separator {
				msgs = append(msgs, it.Message)
			}
		}
		return len(msgs) == 1 && msgs[0].LogID == "srv-9" && msgs[0].Status == "sent"
	})
}

func TestRapidSwitchShowsSecondThread(t *testing.T) {
	at := time.Now()
	api := &fakeAPI{
		convs: []model.Conversation{conv("a"), conv("b")},
		msgs: map[string][]model.Message{
			"a": {{LogID: "a1", Text: "from a", SentAt: at}},
			"b": {{LogID: "b1", Text: "from b", SentAt: at}},
		},
		// The first conversation's fetch straggles in after the user
		// already switched away.
		msgDelay: map[string]time.Duration{"a": 150 * time.Millisecond},
	}
	c := startController(t, api, bus.New())
	waitFor(t, "initial fetch", func() bool { return len(c.Snapshot().Conversations) == 2 })

	if err := c.SelectConversation("a"); err != nil {
		t.Fatal(err)
	}
	if err := c.SelectConversation("b"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "second thread", func() bool {
		snap := c.Snapshot()
		return snap.SelectedContactID == "b" && len(snap.Thread) == 2 && !snap.ThreadLoading
	})

	// Give the straggler time to arrive; it must be discarded.
	time.Sleep(250 * time.Millisecond)
	for _, it := range c.Snapshot().Thread {
		if !it.Separator && it.Message.LogID == "a1" {
			t.Error("stale thread fetch leaked into the new thread")
		}
	}
}

func TestUnassignOnMyTabClearsSelection(t *testing.T) {
	mine := conv("a", func(cv *model.Conversation) { cv.AssignedToUserID = "me" })
	api := &fakeAPI{convs: []model.Conversation{mine}, msgs: map[string][]model.Message{}}
	c := startController(t, api, bus.New())

	c.SetTab(TabMy)
	waitFor(t, "my-tab fetch", func() bool { return len(c.Snapshot().Conversations) == 1 })

	if err := c.SelectConversation("a"); err != nil {
		t.Fatal(err)
	}
	if err := c.Unassign(); err != nil {
		t.Fatalf("unassign: %v", err)
	}

	waitFor(t, "selection cleared", func() bool {
		return c.Snapshot().SelectedContactID == ""
	})
	waitFor(t, "unassign call", func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.unassigns) == 1 && api.unassigns[0] == "a"
	})
}

func TestSetStatusRequiresAssignee(t *testing.T) {
	theirs := conv("a", func(cv *model.Conversation) { cv.AssignedToUserID = "u2" })
	api := &fakeAPI{convs: []model.Conversation{theirs}, msgs: map[string][]model.Message{}}
	c := startController(t, api, bus.New())
	waitFor(t, "initial fetch", func() bool { return len(c.Snapshot().Conversations) == 1 })

	if err := c.SelectConversation("a"); err != nil {
		t.Fatal(err)
	}
	if err := c.SetConversationStatus(model.StatusClosed); !errors.Is(err, ErrNotAssignee) {
		t.Errorf("got %v, want ErrNotAssignee", err)
	}
	api.mu.Lock()
	n := len(api.statuses)
	api.mu.Unlock()
	if n != 0 {
		t.Errorf("status calls = %d, want 0", n)
	}
}

func TestPushForUnknownConversationTriggersRefetch(t *testing.T) {
	api := &fakeAPI{convs: []model.Conversation{conv("a")}, msgs: map[string][]model.Message{}}
	b := bus.New()
	c := startController(t, api, b)
	waitFor(t, "initial fetch", func() bool { return len(c.Snapshot().Conversations) == 1 })

	api.mu.Lock()
	api.convs = append(api.convs, conv("new"))
	api.mu.Unlock()

	b.Emit(push.KindMessage, model.PushMessage{
		ContactID: "new",
		Message:   model.Message{LogID: "n1", Text: "ola", Direction: "in", IsInbound: true, SentAt: time.Now()},
	})

	waitFor(t, "silent refetch", func() bool { return len(c.Snapshot().Conversations) == 2 })
}

func TestPushMessageBumpsUnreadAndResorts(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	older := conv("a", func(cv *model.Conversation) { cv.LastMessageAt = base })
	newer := conv("b", func(cv *model.Conversation) { cv.LastMessageAt = base.Add(time.Minute) })
	api := &fakeAPI{convs: []model.Conversation{newer, older}, msgs: map[string][]model.Message{}}
	b := bus.New()
	c := startController(t, api, b)
	waitFor(t, "initial fetch", func() bool { return len(c.Snapshot().Conversations) == 2 })

	b.Emit(push.KindMessage, model.PushMessage{
		ContactID: "a",
		Message:   model.Message{LogID: "p1", Text: "oi", Direction: "in", IsInbound: true, SentAt: time.Now()},
	})

	waitFor(t, "unread bump", func() bool {
		snap := c.Snapshot()
		return snap.Conversations[0].ContactID == "a" && snap.Conversations[0].UnreadCount == 1
	})
}

func TestUnreadSurvivesStaleSilentRefresh(t *testing.T) {
	api := &fakeAPI{convs: []model.Conversation{conv("a")}, msgs: map[string][]model.Message{}}
	b := bus.New()
	c := startController(t, api, b)
	waitFor(t, "initial fetch", func() bool { return len(c.Snapshot().Conversations) == 1 })

	b.Emit(push.KindMessage, model.PushMessage{
		ContactID: "a",
		Message:   model.Message{LogID: "p1", Text: "oi", Direction: "in", IsInbound: true, SentAt: time.Now()},
	})
	waitFor(t, "unread bump", func() bool { return c.Snapshot().Conversations[0].UnreadCount == 1 })

	// The fake still reports unread 0; a marker conversation proves the
	// refresh result was merged.
	api.mu.Lock()
	api.convs = append(api.convs, conv("marker"))
	api.mu.Unlock()
	c.Refresh()

	waitFor(t, "silent refresh merged", func() bool { return len(c.Snapshot().Conversations) == 2 })
	for _, cv := range c.Snapshot().Conversations {
		if cv.ContactID == "a" && cv.UnreadCount != 1 {
			t.Errorf("unread after stale refresh = %d, want 1", cv.UnreadCount)
		}
	}
}

func TestOlderPageFetchReleasesPriorContext(t *testing.T) {
	at := time.Now()
	api := &fakeAPI{
		convs:      []model.Conversation{conv("a")},
		msgs:       map[string][]model.Message{"a": {{LogID: "a1", Text: "oi", SentAt: at}}},
		msgHasMore: true,
	}
	c := startController(t, api, bus.New())
	waitFor(t, "initial fetch", func() bool { return len(c.Snapshot().Conversations) == 1 })

	if err := c.SelectConversation("a"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first page", func() bool {
		snap := c.Snapshot()
		return snap.ThreadHasMore && !snap.ThreadLoading
	})

	if err := c.LoadOlderMessages(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "older page", func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.msgCtxs) == 2
	})

	// The first page's context must be released once superseded, not
	// held until controller shutdown.
	api.mu.Lock()
	first := api.msgCtxs[0]
	api.mu.Unlock()
	waitFor(t, "prior fetch context release", func() bool { return first.Err() != nil })
}

func TestSendAfterConversationDroppedFromSet(t *testing.T) {
	c := bareController()
	c.selected = "a"
	c.thread = newThread("a", "conv-a")

	if err := c.sendText("oi", time.Now()); !errors.Is(err, ErrUnknownConversation) {
		t.Errorf("got %v, want ErrUnknownConversation", err)
	}
}

func TestSelectLoadsContactSummary(t *testing.T) {
	api := &fakeAPI{
		convs: []model.Conversation{conv("a")},
		msgs:  map[string][]model.Message{},
		summaries: map[string]model.ContactSummary{
			"a": {ContactID: "a", Name: "Maria", Tags: []string{"vip"}},
		},
	}
	c := startController(t, api, bus.New())
	waitFor(t, "initial fetch", func() bool { return len(c.Snapshot().Conversations) == 1 })

	if err := c.SelectConversation("a"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "summary load", func() bool {
		snap := c.Snapshot()
		return snap.Summary != nil && snap.Summary.Name == "Maria" && !snap.SummaryLoading
	})

	c.ClearSelection()
	waitFor(t, "summary cleared", func() bool { return c.Snapshot().Summary == nil })
}

func TestWarmStartFromCache(t *testing.T) {
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "inbox.db"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cached := conv("a", func(cv *model.Conversation) { cv.Status = model.StatusClosed; cv.LastMessageAt = time.Now() })
	if err := db.ReplaceConversations("biz", []model.Conversation{cached}); err != nil {
		t.Fatal(err)
	}
	if err := db.SetLastTab("biz", string(TabClosed)); err != nil {
		t.Fatal(err)
	}

	api := &fakeAPI{
		convs:     []model.Conversation{cached},
		msgs:      map[string][]model.Message{},
		listDelay: 150 * time.Millisecond,
	}
	c := New(Options{
		API:             api,
		Bus:             bus.New(),
		Cache:           db,
		BusinessID:      "biz",
		UserID:          "me",
		RefreshInterval: time.Hour,
	})
	c.Start(context.Background())
	t.Cleanup(c.Stop)

	// Cached state renders immediately, flagged stale, on the
	// persisted tab, while the network fetch is still in flight.
	waitFor(t, "warm start", func() bool {
		snap := c.Snapshot()
		return snap.Filter.Tab == TabClosed && len(snap.Conversations) == 1 && snap.Stale
	})

	waitFor(t, "confirming fetch", func() bool { return !c.Snapshot().Stale })
}
