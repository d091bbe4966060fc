package model

import "time"

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusOpen    ConversationStatus = "open"
	StatusPending ConversationStatus = "pending"
	StatusClosed  ConversationStatus = "closed"
)

// Conversation is the canonical shape for one contact's conversation,
// regardless of which boundary (REST list, push event, cache) produced it.
type Conversation struct {
	ID                 string
	ContactID          string
	ContactPhone       string
	ContactName        string
	LastMessagePreview string
	LastMessageAt      time.Time
	UnreadCount        int
	Status             ConversationStatus
	NumberID           string
	NumberLabel        string
	Within24h          bool
	AssignedToUserID   string
	AssignedToUserName string
	SourceName         string
	Mode               string
	FirstSeenAt        time.Time
	LastInboundAt      time.Time
	LastOutboundAt     time.Time
}

// Assigned reports whether the conversation has any assignee.
func (c Conversation) Assigned() bool {
	return c.AssignedToUserID != ""
}

// AssignedTo reports whether the conversation is assigned to the given user.
func (c Conversation) AssignedTo(userID string) bool {
	return userID != "" && c.AssignedToUserID == userID
}

// Message is the canonical shape for one message in a thread. The three
// identifier fields are populated unevenly depending on the source: REST
// rows carry LogID, provider confirmations carry MessageID, optimistic
// sends carry ClientMessageID, and some push producers only carry ID.
type Message struct {
	LogID           string
	MessageID       string
	ClientMessageID string
	ID              string

	Direction string
	IsInbound bool
	Text      string

	MediaType string
	MediaID   string
	Latitude  float64
	Longitude float64

	SentAt       time.Time
	Status       string
	ErrorMessage string
}

// HasIdentity reports whether the message carries any stable identifier.
func (m Message) HasIdentity() bool {
	return m.LogID != "" || m.MessageID != "" || m.ClientMessageID != "" || m.ID != ""
}

// PushMessage is a normalized new-message push event.
type PushMessage struct {
	ConversationID string
	ContactID      string
	ContactPhone   string
	Message        Message
}

// UnreadDelta is a normalized unread-count-changed push event entry.
type UnreadDelta struct {
	ConversationID string
	ContactID      string
	Unread         int
}

// StatusUpdate is a normalized message-status-changed push event.
type StatusUpdate struct {
	LogID     string
	MessageID string
	ID        string
	Status    string
}

// ContactSummary is the CRM sidebar's read-only view of a contact:
// identity plus aggregate counts. CRM record editing happens elsewhere;
// the inbox only displays this.
type ContactSummary struct {
	ContactID      string
	Name           string
	Phone          string
	Email          string
	Tags           []string
	NoteCount      int
	ReminderCount  int
	TotalMessages  int
	FirstContactAt time.Time
}

// Page is a normalized cursor-paginated result.
type Page[T any] struct {
	Items      []T
	NextCursor string
	HasMore    bool
}
