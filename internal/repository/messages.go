package repository

import (
	"fmt"
	"log"
	"sort"
	"sync"
)

// Messages stores direct messages keyed by id.
type Messages struct {
	mu   sync.Mutex
	byID map[string]*Message
	path string
}

// NewMessages opens the repository, loading an existing snapshot if present.
func NewMessages(path string) (*Messages, error) {
	m := &Messages{
		byID: make(map[string]*Message),
		path: path,
	}
	if err := loadSnapshot(path, &m.byID); err != nil {
		return nil, err
	}
	if len(m.byID) > 0 {
		log.Printf("[Repository] loaded %d messages from %s", len(m.byID), path)
	}
	return m, nil
}

// Add inserts a new message. Fails if the id already exists.
func (m *Messages) Add(msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[msg.ID]; ok {
		return fmt.Errorf("message %s: %w", msg.ID, ErrAlreadyExists)
	}

	copied := cloneMessage(msg)
	m.byID[msg.ID] = copied

	if err := saveSnapshot(m.path, m.byID); err != nil {
		delete(m.byID, msg.ID)
		return err
	}
	return nil
}

// Update replaces an existing message record.
func (m *Messages) Update(msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous, ok := m.byID[msg.ID]
	if !ok {
		return fmt.Errorf("message %s: %w", msg.ID, ErrNotFound)
	}

	m.byID[msg.ID] = cloneMessage(msg)
	if err := saveSnapshot(m.path, m.byID); err != nil {
		m.byID[msg.ID] = previous
		return err
	}
	return nil
}

// GetByID returns a copy of the message.
func (m *Messages) GetByID(id string) (*Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.byID[id]
	if !ok {
		return nil, false
	}
	return cloneMessage(msg), true
}

// GetByReceiver returns every message addressed to username, oldest first.
func (m *Messages) GetByReceiver(username string) []*Message {
	return m.collect(func(msg *Message) bool {
		return msg.ReceiverUsername == username
	})
}

// GetUnreadByReceiver returns the unread messages addressed to username,
// oldest first.
func (m *Messages) GetUnreadByReceiver(username string) []*Message {
	return m.collect(func(msg *Message) bool {
		return msg.ReceiverUsername == username && !msg.Read
	})
}

// GetConversation returns every message exchanged between the two users,
// ascending by send time.
func (m *Messages) GetConversation(username1, username2 string) []*Message {
	return m.collect(func(msg *Message) bool {
		return (msg.SenderUsername == username1 && msg.ReceiverUsername == username2) ||
			(msg.SenderUsername == username2 && msg.ReceiverUsername == username1)
	})
}

func (m *Messages) collect(match func(*Message) bool) []*Message {
	m.mu.Lock()
	var out []*Message
	for _, msg := range m.byID {
		if match(msg) {
			out = append(out, cloneMessage(msg))
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].SentAt.Before(out[j].SentAt)
	})
	return out
}

func cloneMessage(msg *Message) *Message {
	copied := *msg
	if msg.ReadAt != nil {
		readAt := *msg.ReadAt
		copied.ReadAt = &readAt
	}
	return &copied
}
