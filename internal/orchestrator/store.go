package orchestrator

import (
	"sync"

	"github.com/regscout/regscout-backend/internal/platform/anthropic"
)

// Store keeps per-conversation message history.
type Store interface {
	History(conversationID string) []anthropic.Message
	Append(conversationID string, msgs ...anthropic.Message)
}

// MemoryStore holds histories for the lifetime of the process.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string][]anthropic.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string][]anthropic.Message)}
}

func (s *MemoryStore) History(conversationID string) []anthropic.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.conversations[conversationID]
	out := make([]anthropic.Message, len(history))
	copy(out, history)
	return out
}

func (s *MemoryStore) Append(conversationID string, msgs ...anthropic.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conversationID] = append(s.conversations[conversationID], msgs...)
}
