package memory

import (
	"context"
	"sync"

	"github.com/PabloGalante/symposium/internal/domain"
)

type MessageStore struct {
	mu       sync.RWMutex
	messages map[domain.SessionID][]*domain.Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		messages: make(map[domain.SessionID][]*domain.Message),
	}
}

// UpsertMessage overwrites a stored message with the same id in place, or
// appends msg to its session.
func (s *MessageStore) UpsertMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[msg.SessionID]
	for i, m := range msgs {
		if m.ID == msg.ID {
			msgs[i] = msg.Clone()
			return nil
		}
	}
	s.messages[msg.SessionID] = append(msgs, msg.Clone())
	return nil
}

// GetMessagesBySession returns the last limit messages in log order, or all
// of them when limit is not positive.
func (s *MessageStore) GetMessagesBySession(_ context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*domain.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Clone())
	}
	return out, nil
}

func (s *MessageStore) DeleteMessagesBySession(_ context.Context, sessionID domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.messages, sessionID)
	return nil
}
