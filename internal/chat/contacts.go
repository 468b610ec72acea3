package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pixelfold/pixchat-server/internal/store"
)

// Contact is a profile annotated with conversation preview data for the
// contact list.
type Contact struct {
	Profile     *store.Profile
	LastMessage *store.Message
	Unread      int
}

// Contacts lists all other profiles annotated with last-message previews and
// unread counts, ordered by most recent activity. A non-empty query is pushed
// down to the store, matched case-insensitively against username or display
// name.
func (s *Service) Contacts(ctx context.Context, currentID, query string) ([]*Contact, error) {
	if currentID == "" {
		return nil, ErrNotAuthenticated
	}

	var profiles []*store.Profile
	var err error
	if query = strings.TrimSpace(query); query == "" {
		profiles, err = s.store.ListProfiles(ctx, currentID)
	} else {
		profiles, err = s.store.SearchProfiles(ctx, query, currentID)
	}
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}

	msgs, err := s.store.ListMessagesForUser(ctx, currentID)
	if err != nil {
		return nil, fmt.Errorf("list contact messages: %w", err)
	}

	return BuildContacts(profiles, msgs, currentID), nil
}

// BuildContacts derives the annotated contact list from the resident message
// set. Unread counts are recomputed here on every call, never kept as
// independently mutated counters.
func BuildContacts(profiles []*store.Profile, msgs []*store.Message, currentID string) []*Contact {
	byPeer := make(map[string]*Contact, len(profiles))
	var contacts []*Contact
	for _, p := range profiles {
		c := &Contact{Profile: p}
		byPeer[p.ID] = c
		contacts = append(contacts, c)
	}

	// Messages arrive oldest first, so the last assignment wins the preview.
	for _, m := range msgs {
		peer := m.SenderID
		if m.SenderID == currentID {
			peer = m.RecipientID
		}
		c, ok := byPeer[peer]
		if !ok {
			continue
		}
		c.LastMessage = m
		if m.RecipientID == currentID && !m.Read {
			c.Unread++
		}
	}

	sort.SliceStable(contacts, func(i, j int) bool {
		li, lj := contacts[i].LastMessage, contacts[j].LastMessage
		switch {
		case li == nil && lj == nil:
			return contacts[i].Profile.Username < contacts[j].Profile.Username
		case li == nil:
			return false
		case lj == nil:
			return true
		default:
			return li.CreatedAt.After(lj.CreatedAt)
		}
	})

	return contacts
}
