package inbox

import (
	"sort"
	"strings"

	"github.com/pedrohsa/wainbox/internal/model"
)

// convSet is the conversation working set: one entry per contact id,
// with explicit ordering carried over from fetch merges. Conversations
// are never removed here, only filtered out of the projection.
type convSet struct {
	order     []string
	byContact map[string]model.Conversation
	cursor    string
	hasMore   bool
	// stale marks a set seeded from the local cache, before the first
	// reset fetch has confirmed it.
	stale bool
}

func newConvSet() *convSet {
	return &convSet{byContact: make(map[string]model.Conversation)}
}

func (s *convSet) get(contactID string) (model.Conversation, bool) {
	c, ok := s.byContact[contactID]
	return c, ok
}

// put updates a conversation in place, appending to the order when the
// contact is new.
func (s *convSet) put(c model.Conversation) {
	if c.ContactID == "" {
		return
	}
	if _, ok := s.byContact[c.ContactID]; !ok {
		s.order = append(s.order, c.ContactID)
	}
	s.byContact[c.ContactID] = c
}

// findTarget resolves a conversation by id, contact id or phone, in
// that order. Push producers identify the target inconsistently.
func (s *convSet) findTarget(convID, contactID, phone string) (model.Conversation, bool) {
	if contactID != "" {
		if c, ok := s.byContact[contactID]; ok {
			return c, true
		}
	}
	for _, id := range s.order {
		c := s.byContact[id]
		if convID != "" && c.ID == convID {
			return c, true
		}
		if phone != "" && c.ContactPhone == phone {
			return c, true
		}
	}
	return model.Conversation{}, false
}

// mergeReset replaces the working set wholesale. Used on first load and
// on any filter/tab/search change.
func (s *convSet) mergeReset(page model.Page[model.Conversation]) {
	s.order = s.order[:0]
	s.byContact = make(map[string]model.Conversation, len(page.Items))
	for _, c := range page.Items {
		s.put(c)
	}
	s.cursor = page.NextCursor
	s.hasMore = page.HasMore
	s.stale = false
}

// mergeAppend folds the next page in: known conversations are updated
// in place preserving their position, genuinely new ones go to the end.
func (s *convSet) mergeAppend(page model.Page[model.Conversation]) {
	for _, c := range page.Items {
		s.put(c)
	}
	s.cursor = page.NextCursor
	s.hasMore = page.HasMore
}

// mergeSilent folds a background snapshot in without disturbing what
// the local state trusts more than the server: the open conversation's
// unread count is pinned to 0, and a server count lower than the
// client's last-known value is ignored unless the override ledger says
// the server has caught up. New conversations are inserted at the head
// (the snapshot is newest-first).
func (s *convSet) mergeSilent(page model.Page[model.Conversation], openContactID string, ledger *unreadLedger) {
	var fresh []string
	for _, incoming := range page.Items {
		existing, known := s.byContact[incoming.ContactID]
		if !known {
			if incoming.ContactID == "" {
				continue
			}
			fresh = append(fresh, incoming.ContactID)
			s.byContact[incoming.ContactID] = incoming
			continue
		}

		merged := incoming
		switch {
		case incoming.ContactID == openContactID:
			merged.UnreadCount = 0
		default:
			if v, handled := ledger.trustServer(incoming.ID, incoming.ContactID, incoming.UnreadCount); handled {
				merged.UnreadCount = v
			} else if incoming.UnreadCount < existing.UnreadCount {
				// Server list endpoint has not caught up with a push
				// we already folded in.
				merged.UnreadCount = existing.UnreadCount
			}
		}
		s.byContact[incoming.ContactID] = merged
	}
	if len(fresh) > 0 {
		s.order = append(fresh, s.order...)
	}
	s.stale = false
}

// visible produces the filtered, sorted projection: unread
// conversations first, then most recent first within each partition.
func (s *convSet) visible(f Filter, userID string) []model.Conversation {
	var out []model.Conversation
	for _, id := range s.order {
		c := s.byContact[id]
		if matchesFilter(c, f, userID) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ui, uj := out[i].UnreadCount > 0, out[j].UnreadCount > 0
		if ui != uj {
			return ui
		}
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}

func matchesFilter(c model.Conversation, f Filter, userID string) bool {
	if f.NumberID != "" && c.NumberID != f.NumberID {
		return false
	}
	if f.Search != "" && !matchesSearch(c, f.Search) {
		return false
	}
	switch f.Tab {
	case TabClosed:
		return c.Status == model.StatusClosed
	case TabLive:
		return c.Status != model.StatusClosed && c.Within24h
	case TabHistory:
		return c.Status != model.StatusClosed && !c.Within24h
	case TabUnassigned:
		return c.Status != model.StatusClosed && !c.Assigned()
	case TabMy:
		return c.Status != model.StatusClosed && c.AssignedTo(userID)
	default:
		return c.Status != model.StatusClosed
	}
}

func matchesSearch(c model.Conversation, term string) bool {
	t := strings.ToLower(term)
	return strings.Contains(strings.ToLower(c.ContactName), t) ||
		strings.Contains(strings.ToLower(c.ContactPhone), t) ||
		strings.Contains(strings.ToLower(c.LastMessagePreview), t)
}
