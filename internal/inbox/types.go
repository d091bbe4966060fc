package inbox

import (
	"context"
	"errors"
	"time"

	"github.com/pedrohsa/wainbox/internal/model"
	"github.com/pedrohsa/wainbox/internal/rest"
)

// Tab selects one of the inbox's list views.
type Tab string

const (
	TabAll        Tab = "all"
	TabLive       Tab = "live"
	TabHistory    Tab = "history"
	TabUnassigned Tab = "unassigned"
	TabMy         Tab = "my"
	TabClosed     Tab = "closed"
)

// Filter is the visible-list selector: tab, line and search term.
type Filter struct {
	Tab      Tab
	NumberID string
	Search   string
}

// API is the REST boundary the controller talks to. *rest.Client
// satisfies it; tests substitute a fake.
type API interface {
	ListConversations(ctx context.Context, q rest.ConversationQuery) (model.Page[model.Conversation], error)
	ListMessages(ctx context.Context, q rest.MessageQuery) (model.Page[model.Message], error)
	SendMessage(ctx context.Context, req rest.SendRequest) (rest.SendResult, error)
	ContactSummary(ctx context.Context, contactID string) (model.ContactSummary, error)
	MarkRead(ctx context.Context, contactID string, lastReadAt time.Time) error
	Assign(ctx context.Context, contactID, userID string) error
	Unassign(ctx context.Context, contactID string) error
	SetStatus(ctx context.Context, contactID string, status model.ConversationStatus) error
}

// Validation errors returned before any network call is made.
var (
	ErrNoSelection         = errors.New("no conversation selected")
	ErrUnknownConversation = errors.New("conversation not in working set")
	ErrConversationClosed  = errors.New("conversation is closed")
	ErrOutsideReplyWindow  = errors.New("outside the 24h reply window")
	ErrEmptyMessage        = errors.New("message text is empty")
	ErrNotAssignee         = errors.New("conversation is assigned to another user")
)

// ThreadItem is one display row of the open thread: either a message or
// a date boundary separator.
type ThreadItem struct {
	Separator bool
	Date      time.Time
	Message   model.Message
}

// Snapshot is the derived read model the UI renders from. It is an
// immutable copy; the controller's own state is never exposed.
type Snapshot struct {
	Conversations     []model.Conversation
	Filter            Filter
	ListHasMore       bool
	ListLoading       bool
	Stale             bool
	SelectedContactID string
	Thread            []ThreadItem
	ThreadHasMore     bool
	ThreadLoading     bool
	Summary           *model.ContactSummary
	SummaryLoading    bool
}

// Flash is a transient user-facing notification published on the bus
// under "inbox.flash".
type Flash struct {
	Text string
}
