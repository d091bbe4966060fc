package inbox

import (
	"context"

	"github.com/pedrohsa/wainbox/internal/model"
	"go.uber.org/zap"
)

// AssignToMe claims the open conversation for the controller's user.
func (c *Controller) AssignToMe() error {
	return c.AssignToAgent(c.userID)
}

// AssignToAgent assigns the open conversation to the given user.
func (c *Controller) AssignToAgent(userID string) error {
	return c.call(func() error {
		return c.mutateSelected(
			func(conv *model.Conversation) { conv.AssignedToUserID = userID },
			func(ctx context.Context, contactID string) error {
				return c.api.Assign(ctx, contactID, userID)
			},
		)
	})
}

// Unassign clears the open conversation's assignee.
func (c *Controller) Unassign() error {
	return c.call(func() error {
		return c.mutateSelected(
			func(conv *model.Conversation) { conv.AssignedToUserID = "" },
			func(ctx context.Context, contactID string) error {
				return c.api.Unassign(ctx, contactID)
			},
		)
	})
}

// SetConversationStatus moves the open conversation to the given
// status. Only the current assignee may change status.
func (c *Controller) SetConversationStatus(status model.ConversationStatus) error {
	return c.call(func() error {
		if c.selected == "" {
			return ErrNoSelection
		}
		if conv, ok := c.convs.get(c.selected); !ok || !conv.AssignedTo(c.userID) {
			return ErrNotAssignee
		}
		return c.mutateSelected(
			func(conv *model.Conversation) { conv.Status = status },
			func(ctx context.Context, contactID string) error {
				return c.api.SetStatus(ctx, contactID, status)
			},
		)
	})
}

// mutateSelected applies an optimistic edit to the open conversation,
// drops the selection if the edit pushes it out of the visible filter,
// then runs the server call. Whether the call succeeds or fails, a
// silent refetch follows so the list converges on the server's view.
func (c *Controller) mutateSelected(apply func(*model.Conversation), do func(context.Context, string) error) error {
	if c.selected == "" {
		return ErrNoSelection
	}
	conv, ok := c.convs.get(c.selected)
	if !ok {
		return ErrUnknownConversation
	}

	apply(&conv)
	c.convs.put(conv)
	if !matchesFilter(conv, c.filter, c.userID) {
		c.clearSelection()
	}

	contactID := conv.ContactID
	go func() {
		if err := do(c.ctx, contactID); err != nil && c.ctx.Err() == nil {
			c.logger.Warn("conversation update failed",
				zap.Error(err), zap.String("contact_id", contactID))
			c.post(func() { c.flash("Update failed") })
		}
		c.post(func() { c.startListFetch(fetchSilent) })
	}()
	return nil
}
