package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pedrohsa/wainbox/internal/model"
	"go.uber.org/zap"
)

// ConversationQuery selects a page of the conversation list.
type ConversationQuery struct {
	Tab      string
	NumberID string
	Search   string
	Limit    int
	Cursor   string
}

// MessageQuery selects a page of one conversation's messages. Either
// ContactID or ContactPhone must be set.
type MessageQuery struct {
	ContactID    string
	ContactPhone string
	Limit        int
	Cursor       string
}

// SendRequest carries one outgoing text message. ClientMessageID is
// echoed back by the server so the optimistic placeholder can be
// reconciled.
type SendRequest struct {
	ConversationID  string
	ContactID       string
	To              string
	Text            string
	NumberID        string
	ClientMessageID string
}

// SendResult is the server's answer to a send.
type SendResult struct {
	ID           string
	MessageID    string
	SentAt       time.Time
	Status       string
	ErrorMessage string
}

// Client talks to the platform's dashboard REST surface for one business.
type Client struct {
	hc         *http.Client
	baseURL    string
	businessID string
	logger     *zap.Logger
}

// NewClient creates a REST client rooted at baseURL.
func NewClient(baseURL, businessID string, logger *zap.Logger) *Client {
	return &Client{
		hc:         &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		businessID: businessID,
		logger:     logger,
	}
}

// ListConversations fetches one page of the conversation list.
func (c *Client) ListConversations(ctx context.Context, q ConversationQuery) (model.Page[model.Conversation], error) {
	params := url.Values{}
	params.Set("businessId", c.businessID)
	params.Set("tab", q.Tab)
	if q.NumberID != "" {
		params.Set("numberId", q.NumberID)
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	params.Set("limit", strconv.Itoa(limitOrDefault(q.Limit)))
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}

	var page model.Page[model.Conversation]
	raw, next, more, err := c.getPage(ctx, "/conversations", params)
	if err != nil {
		return page, err
	}
	for _, obj := range raw {
		page.Items = append(page.Items, model.NormalizeConversation(obj))
	}
	page.NextCursor = next
	page.HasMore = more
	return page, nil
}

// ListMessages fetches one page of a conversation's messages.
func (c *Client) ListMessages(ctx context.Context, q MessageQuery) (model.Page[model.Message], error) {
	params := url.Values{}
	params.Set("businessId", c.businessID)
	if q.ContactID != "" {
		params.Set("contactId", q.ContactID)
	} else {
		params.Set("contactPhone", q.ContactPhone)
	}
	params.Set("limit", strconv.Itoa(limitOrDefault(q.Limit)))
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}

	var page model.Page[model.Message]
	raw, next, more, err := c.getPage(ctx, "/messages", params)
	if err != nil {
		return page, err
	}
	for _, obj := range raw {
		page.Items = append(page.Items, model.NormalizeMessage(obj))
	}
	page.NextCursor = next
	page.HasMore = more
	return page, nil
}

// SendMessage posts one outgoing message.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (SendResult, error) {
	body := map[string]any{
		"businessId":      c.businessID,
		"conversationId":  req.ConversationID,
		"contactId":       req.ContactID,
		"to":              req.To,
		"text":            req.Text,
		"numberId":        req.NumberID,
		"clientMessageId": req.ClientMessageID,
	}
	data, err := c.post(ctx, "/send-message", body)
	if err != nil {
		return SendResult{}, err
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return SendResult{}, fmt.Errorf("decode send response: %w", err)
	}
	m := model.NormalizeMessage(obj)
	return SendResult{
		ID:           m.ID,
		MessageID:    m.MessageID,
		SentAt:       m.SentAt,
		Status:       m.Status,
		ErrorMessage: m.ErrorMessage,
	}, nil
}

// MarkRead tells the server everything up to lastReadAt has been seen.
func (c *Client) MarkRead(ctx context.Context, contactID string, lastReadAt time.Time) error {
	_, err := c.post(ctx, "/mark-read", map[string]any{
		"businessId":    c.businessID,
		"contactId":     contactID,
		"lastReadAtUtc": lastReadAt.UTC().Format(time.RFC3339),
	})
	return err
}

// Assign assigns the conversation to a user.
func (c *Client) Assign(ctx context.Context, contactID, userID string) error {
	_, err := c.post(ctx, "/assign", map[string]any{
		"businessId": c.businessID,
		"contactId":  contactID,
		"userId":     userID,
	})
	return err
}

// Unassign removes the conversation's assignee.
func (c *Client) Unassign(ctx context.Context, contactID string) error {
	_, err := c.post(ctx, "/unassign", map[string]any{
		"businessId": c.businessID,
		"contactId":  contactID,
	})
	return err
}

// SetStatus changes the conversation lifecycle status.
func (c *Client) SetStatus(ctx context.Context, contactID string, status model.ConversationStatus) error {
	_, err := c.post(ctx, "/set-status", map[string]any{
		"businessId": c.businessID,
		"contactId":  contactID,
		"status":     string(status),
	})
	return err
}

// ContactSummary fetches the CRM sidebar summary for a contact.
func (c *Client) ContactSummary(ctx context.Context, contactID string) (model.ContactSummary, error) {
	params := url.Values{}
	params.Set("businessId", c.businessID)
	params.Set("contactId", contactID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/contact-summary?"+params.Encode(), nil)
	if err != nil {
		return model.ContactSummary{}, err
	}
	data, err := c.do(req)
	if err != nil {
		return model.ContactSummary{}, err
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return model.ContactSummary{}, fmt.Errorf("decode contact summary: %w", err)
	}
	return model.NormalizeContactSummary(obj), nil
}

func (c *Client) getPage(ctx context.Context, path string, params url.Values) ([]map[string]any, string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, "", false, err
	}
	data, err := c.do(req)
	if err != nil {
		return nil, "", false, err
	}
	return decodePage(data)
}

func (c *Client) post(ctx context.Context, path string, body map[string]any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		if c.logger != nil {
			c.logger.Warn("request rejected",
				zap.String("path", req.URL.Path),
				zap.Int("status", resp.StatusCode))
		}
		return nil, fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, snippet)
	}
	return data, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}
