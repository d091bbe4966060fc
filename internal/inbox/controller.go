package inbox

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/pedrohsa/wainbox/internal/bus"
	"github.com/pedrohsa/wainbox/internal/model"
	"github.com/pedrohsa/wainbox/internal/push"
	"github.com/pedrohsa/wainbox/internal/rest"
	"github.com/pedrohsa/wainbox/internal/store"
	"go.uber.org/zap"
)

// Controller keeps the conversation list and the open thread consistent
// across the three racing inputs: paginated REST fetches, push-channel
// events and locally-optimistic user actions. All state is owned by a
// single loop goroutine; commands, fetch completions and push events
// are serialized onto it, so every mutation is a merge applied to the
// last known state.
type Controller struct {
	api           API
	bus           *bus.Bus
	cache         *store.DB
	logger        *zap.Logger
	businessID    string
	userID        string
	pageSize      int
	refreshEvery  time.Duration
	markReadDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	run    chan func()
	done   chan struct{}

	// Loop-owned state. Never touched outside the loop goroutine.
	convs          *convSet
	thread         *threadState
	ledger         *unreadLedger
	filter         Filter
	selected       string
	filterVersion  uint64
	listLoading    bool
	threadReqID    uint64
	threadLoading  bool
	threadCancel   context.CancelFunc
	summary        *model.ContactSummary
	summaryReqID   uint64
	summaryLoading bool

	markReadTimer   *time.Timer
	markReadC       <-chan time.Time
	markReadContact string

	mu   sync.RWMutex
	snap Snapshot
}

// Options configures a Controller. API, BusinessID and UserID are
// required; Cache is optional (nil disables warm start and tab
// persistence).
type Options struct {
	API             API
	Bus             *bus.Bus
	Cache           *store.DB
	Logger          *zap.Logger
	BusinessID      string
	UserID          string
	PageSize        int
	RefreshInterval time.Duration
	MarkReadDelay   time.Duration
}

// New creates a controller. Call Start before using it.
func New(opts Options) *Controller {
	if opts.Bus == nil {
		opts.Bus = bus.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 25 * time.Second
	}
	if opts.MarkReadDelay <= 0 {
		opts.MarkReadDelay = 400 * time.Millisecond
	}
	return &Controller{
		api:           opts.API,
		bus:           opts.Bus,
		cache:         opts.Cache,
		logger:        opts.Logger,
		businessID:    opts.BusinessID,
		userID:        opts.UserID,
		pageSize:      opts.PageSize,
		refreshEvery:  opts.RefreshInterval,
		markReadDelay: opts.MarkReadDelay,
		run:           make(chan func(), 64),
		convs:         newConvSet(),
		ledger:        newUnreadLedger(),
		filter:        Filter{Tab: TabAll},
	}
}

// Start launches the controller loop, seeds state from the cache and
// issues the initial reset fetch.
func (c *Controller) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	busCh, unsub := c.bus.Subscribe("push.", 256)
	go c.loop(busCh, unsub)
	c.post(func() { c.bootstrap() })
}

// Stop terminates the loop and waits for it to exit.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.done != nil {
		<-c.done
	}
}

// Snapshot returns the current derived read model. The returned slices
// are owned by the snapshot and must not be mutated.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// SelectConversation opens a conversation: the unread badge clears
// immediately, the mark-read call is debounced, and the thread fetch
// supersedes any in-flight one.
func (c *Controller) SelectConversation(contactID string) error {
	return c.call(func() error { return c.selectConversation(contactID, time.Now()) })
}

// ClearSelection closes the open conversation.
func (c *Controller) ClearSelection() {
	_ = c.call(func() error { c.clearSelection(); return nil })
}

// SetTab switches the list view and persists the choice per business.
func (c *Controller) SetTab(tab Tab) {
	_ = c.call(func() error { c.setTab(tab); return nil })
}

// SetNumberFilter restricts the list to one inbound line ("" for all).
func (c *Controller) SetNumberFilter(numberID string) {
	_ = c.call(func() error {
		if c.filter.NumberID != numberID {
			c.filter.NumberID = numberID
			c.onFilterChanged()
		}
		return nil
	})
}

// SetSearch sets the list search term.
func (c *Controller) SetSearch(term string) {
	_ = c.call(func() error {
		if c.filter.Search != term {
			c.filter.Search = term
			c.onFilterChanged()
		}
		return nil
	})
}

// LoadMoreConversations fetches the next list page if one exists.
func (c *Controller) LoadMoreConversations() {
	_ = c.call(func() error { c.startListFetch(fetchAppend); return nil })
}

// LoadOlderMessages fetches the next (older) thread page if one exists.
func (c *Controller) LoadOlderMessages() error {
	return c.call(func() error {
		if c.selected == "" {
			return ErrNoSelection
		}
		if c.thread.hasMore && !c.threadLoading {
			c.startThreadFetch(false)
		}
		return nil
	})
}

// Refresh triggers an immediate silent list refresh.
func (c *Controller) Refresh() {
	_ = c.call(func() error { c.startListFetch(fetchSilent); return nil })
}

// Send validates and sends a text message to the open conversation,
// inserting an optimistic placeholder first. Validation failures are
// returned before any network call is made.
func (c *Controller) Send(text string) error {
	return c.call(func() error { return c.sendText(text, time.Now()) })
}

func (c *Controller) loop(busCh <-chan bus.Event, unsub func()) {
	defer close(c.done)
	defer unsub()

	ticker := time.NewTicker(c.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case fn := <-c.run:
			fn()
		case evt := <-busCh:
			c.handlePush(evt)
		case <-ticker.C:
			c.startListFetch(fetchSilent)
		case <-c.markReadC:
			c.flushMarkRead()
		case <-c.ctx.Done():
			c.teardown()
			return
		}
		c.publishSnapshot()
	}
}

// post enqueues work onto the loop without waiting.
func (c *Controller) post(fn func()) {
	select {
	case c.run <- fn:
	case <-c.ctx.Done():
	}
}

// call runs fn on the loop and waits for its result.
func (c *Controller) call(fn func() error) error {
	errCh := make(chan error, 1)
	select {
	case c.run <- func() { errCh <- fn() }:
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
	select {
	case err := <-errCh:
		return err
	case <-c.done:
		return context.Canceled
	}
}

func (c *Controller) bootstrap() {
	if c.cache != nil {
		if tab, err := c.cache.LastTab(c.businessID); err == nil && tab != "" {
			c.filter.Tab = Tab(tab)
		}
		if convs, err := c.cache.LoadConversations(c.businessID); err == nil && len(convs) > 0 {
			c.convs.mergeReset(model.Page[model.Conversation]{Items: convs})
			c.convs.stale = true
		}
	}
	c.startListFetch(fetchReset)
}

func (c *Controller) teardown() {
	if c.markReadTimer != nil {
		c.markReadTimer.Stop()
		c.markReadTimer = nil
		c.markReadC = nil
	}
	if c.threadCancel != nil {
		c.threadCancel()
		c.threadCancel = nil
	}
}

type fetchMode int

const (
	fetchReset fetchMode = iota
	fetchAppend
	fetchSilent
)

func (c *Controller) startListFetch(mode fetchMode) {
	if mode == fetchAppend && (!c.convs.hasMore || c.listLoading) {
		return
	}
	if mode != fetchSilent {
		c.listLoading = true
	}
	fv := c.filterVersion
	q := rest.ConversationQuery{
		Tab:      string(c.filter.Tab),
		NumberID: c.filter.NumberID,
		Search:   c.filter.Search,
		Limit:    c.pageSize,
	}
	if mode == fetchAppend {
		q.Cursor = c.convs.cursor
	}
	go func() {
		page, err := c.api.ListConversations(c.ctx, q)
		c.post(func() { c.finishListFetch(mode, fv, page, err) })
	}()
}

func (c *Controller) finishListFetch(mode fetchMode, fv uint64, page model.Page[model.Conversation], err error) {
	if fv != c.filterVersion {
		// Superseded by a tab/search/line change; routine, not an error.
		return
	}
	if mode != fetchSilent {
		c.listLoading = false
	}
	if err != nil {
		if c.ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		c.logger.Warn("conversation fetch failed", zap.Error(err))
		if mode != fetchSilent {
			c.flash("Could not load conversations")
		}
		// Prior state stays intact on fetch failure.
		return
	}

	switch mode {
	case fetchReset:
		c.convs.mergeReset(page)
	case fetchAppend:
		c.convs.mergeAppend(page)
	case fetchSilent:
		c.convs.mergeSilent(page, c.selected, c.ledger)
	}

	// The open conversation's badge stays cleared no matter what the
	// server snapshot said.
	if c.selected != "" {
		if conv, ok := c.convs.get(c.selected); ok && conv.UnreadCount != 0 {
			conv.UnreadCount = 0
			c.convs.put(conv)
		}
	}

	c.persistSnapshot()
}

func (c *Controller) persistSnapshot() {
	if c.cache == nil {
		return
	}
	convs := make([]model.Conversation, 0, len(c.convs.order))
	for _, id := range c.convs.order {
		convs = append(convs, c.convs.byContact[id])
	}
	biz := c.businessID
	go func() {
		if err := c.cache.ReplaceConversations(biz, convs); err != nil {
			c.logger.Warn("snapshot cache write failed", zap.Error(err))
		}
	}()
}

func (c *Controller) selectConversation(contactID string, now time.Time) error {
	conv, ok := c.convs.get(contactID)
	if !ok {
		return ErrUnknownConversation
	}
	if c.selected == contactID {
		return nil
	}

	c.selected = contactID
	c.thread = newThread(contactID, conv.ID)

	// Immediate optimistic badge clear; the network mark-read trails
	// behind the debounce.
	conv.UnreadCount = 0
	c.convs.put(conv)
	c.ledger.record(conv.ID, contactID, 0, now)
	c.armMarkRead(contactID)

	c.startThreadFetch(true)
	c.startSummaryFetch(contactID)
	return nil
}

func (c *Controller) clearSelection() {
	c.selected = ""
	c.thread = nil
	c.threadLoading = false
	c.summary = nil
	c.summaryLoading = false
	// Invalidate in-flight thread and summary fetches so their
	// completions can't land on the cleared selection.
	c.threadReqID++
	c.summaryReqID++
	if c.threadCancel != nil {
		c.threadCancel()
		c.threadCancel = nil
	}
}

func (c *Controller) startThreadFetch(reset bool) {
	c.threadReqID++
	req := c.threadReqID
	// Release the previous fetch context even when its request already
	// finished; an un-cancelled context lingers until c.ctx ends.
	if c.threadCancel != nil {
		c.threadCancel()
	}
	fctx, cancelFetch := context.WithCancel(c.ctx)
	c.threadCancel = cancelFetch
	c.threadLoading = true

	q := rest.MessageQuery{ContactID: c.thread.contactID, Limit: c.pageSize}
	if !reset {
		q.Cursor = c.thread.cursor
	}
	go func() {
		page, err := c.api.ListMessages(fctx, q)
		c.post(func() { c.finishThreadFetch(req, reset, page, err) })
	}()
}

func (c *Controller) finishThreadFetch(req uint64, reset bool, page model.Page[model.Message], err error) {
	if req != c.threadReqID {
		// Stale response for a conversation the user navigated away
		// from. Expected control flow, discarded silently.
		return
	}
	c.threadLoading = false
	if err != nil {
		if c.ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		c.logger.Warn("thread fetch failed", zap.Error(err), zap.String("contact_id", c.thread.contactID))
		c.flash("Could not load messages")
		return
	}
	if reset {
		c.thread.reset(page)
	} else {
		c.thread.prependOlder(page)
	}
}

// startSummaryFetch loads the CRM sidebar for the newly opened contact.
// Versioned like the thread fetch: navigating away discards stragglers.
func (c *Controller) startSummaryFetch(contactID string) {
	c.summaryReqID++
	req := c.summaryReqID
	c.summary = nil
	c.summaryLoading = true
	go func() {
		cs, err := c.api.ContactSummary(c.ctx, contactID)
		c.post(func() { c.finishSummaryFetch(req, cs, err) })
	}()
}

func (c *Controller) finishSummaryFetch(req uint64, cs model.ContactSummary, err error) {
	if req != c.summaryReqID {
		return
	}
	c.summaryLoading = false
	if err != nil {
		if c.ctx.Err() == nil && !errors.Is(err, context.Canceled) {
			// The sidebar is optional; the thread renders without it.
			c.logger.Warn("contact summary fetch failed", zap.Error(err))
		}
		return
	}
	c.summary = &cs
}

func (c *Controller) sendText(text string, now time.Time) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if c.selected == "" {
		return ErrNoSelection
	}
	conv, ok := c.convs.get(c.selected)
	if !ok {
		// A reset merge can drop the selected conversation from the
		// working set before the selection is cleared.
		return ErrUnknownConversation
	}
	if conv.Status == model.StatusClosed {
		return ErrConversationClosed
	}
	if !conv.Within24h {
		return ErrOutsideReplyWindow
	}

	ph := newPlaceholder(text, now)
	c.thread.upsert(ph)

	req := rest.SendRequest{
		ConversationID:  conv.ID,
		ContactID:       conv.ContactID,
		To:              conv.ContactPhone,
		Text:            text,
		NumberID:        conv.NumberID,
		ClientMessageID: ph.ClientMessageID,
	}
	contactID := conv.ContactID
	go func() {
		res, err := c.api.SendMessage(c.ctx, req)
		c.post(func() { c.finishSend(contactID, ph.ClientMessageID, text, res, err) })
	}()
	return nil
}

func (c *Controller) finishSend(contactID, clientID, text string, res rest.SendResult, err error) {
	probe := model.Message{ClientMessageID: clientID}

	if err != nil {
		if c.ctx.Err() != nil {
			return
		}
		c.logger.Warn("send failed", zap.Error(err), zap.String("client_message_id", clientID))
		if c.selected == contactID {
			if idx, ok := c.thread.find(probe); ok {
				c.thread.messages[idx] = applySendFailure(c.thread.messages[idx], err)
			}
		}
		return
	}

	if c.selected == contactID {
		if idx, ok := c.thread.find(probe); ok {
			c.thread.messages[idx] = applySendResult(c.thread.messages[idx], res)
			c.thread.sortMessages()
		}
	}

	// Parent conversation moves forward on success only.
	if conv, ok := c.convs.get(contactID); ok {
		conv.LastMessagePreview = truncate(text, 100)
		at := res.SentAt
		if at.IsZero() {
			at = time.Now()
		}
		if at.After(conv.LastMessageAt) {
			conv.LastMessageAt = at
		}
		conv.LastOutboundAt = at
		c.convs.put(conv)
	}
}

func (c *Controller) handlePush(evt bus.Event) {
	now := time.Now()
	switch evt.Kind {
	case push.KindMessage:
		if pm, ok := evt.Payload.(model.PushMessage); ok {
			if c.applyPushMessage(pm, now) {
				// Event for a conversation we don't know yet.
				c.startListFetch(fetchSilent)
			}
		}
	case push.KindUnread:
		if deltas, ok := evt.Payload.([]model.UnreadDelta); ok {
			c.applyUnreadDeltas(deltas, now)
		}
	case push.KindMessageStatus:
		if upd, ok := evt.Payload.(model.StatusUpdate); ok {
			c.applyStatusUpdate(upd)
		}
	}
}

func (c *Controller) setTab(tab Tab) {
	if c.filter.Tab == tab {
		return
	}
	c.filter.Tab = tab
	c.onFilterChanged()
	if c.cache != nil {
		biz := c.businessID
		go func() {
			if err := c.cache.SetLastTab(biz, string(tab)); err != nil {
				c.logger.Warn("tab preference write failed", zap.Error(err))
			}
		}()
	}
}

func (c *Controller) onFilterChanged() {
	c.filterVersion++
	if c.selected != "" {
		if conv, ok := c.convs.get(c.selected); !ok || !matchesFilter(conv, c.filter, c.userID) {
			c.clearSelection()
		}
	}
	c.startListFetch(fetchReset)
}

func (c *Controller) armMarkRead(contactID string) {
	if c.markReadTimer != nil {
		c.markReadTimer.Stop()
	}
	c.markReadTimer = time.NewTimer(c.markReadDelay)
	c.markReadC = c.markReadTimer.C
	c.markReadContact = contactID
}

func (c *Controller) flushMarkRead() {
	contactID := c.markReadContact
	c.markReadTimer = nil
	c.markReadC = nil
	c.markReadContact = ""
	if contactID == "" {
		return
	}
	at := time.Now()
	go func() {
		if err := c.api.MarkRead(c.ctx, contactID, at); err != nil && c.ctx.Err() == nil {
			c.logger.Warn("mark-read failed", zap.Error(err), zap.String("contact_id", contactID))
		}
	}()
}

func (c *Controller) flash(text string) {
	c.bus.Emit("inbox.flash", Flash{Text: text})
}

func (c *Controller) publishSnapshot() {
	snap := Snapshot{
		Conversations:     c.convs.visible(c.filter, c.userID),
		Filter:            c.filter,
		ListHasMore:       c.convs.hasMore,
		ListLoading:       c.listLoading,
		Stale:             c.convs.stale,
		SelectedContactID: c.selected,
	}
	if c.thread != nil {
		snap.Thread = c.thread.items()
		snap.ThreadHasMore = c.thread.hasMore
		snap.ThreadLoading = c.threadLoading
		snap.Summary = c.summary
		snap.SummaryLoading = c.summaryLoading
	}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
	c.bus.Emit("inbox.updated", nil)
}
