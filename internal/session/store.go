// Package session holds ordered conversation histories keyed by an opaque
// identifier. State is in-memory and single-process; it survives exactly as
// long as the gateway does.
package session

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"solgate/internal/domain"
	"solgate/internal/metrics"
)

// Store is the session service. The store exclusively owns conversations and
// their pending transfer lifecycle records; no other component mutates them
// directly.
type Store interface {
	// Create starts a conversation seeded with initial messages and
	// returns its identifier.
	Create(initial []domain.Message) string
	// Get returns a copy of the conversation history, or false if the
	// identifier is unknown.
	Get(id string) ([]domain.Message, bool)
	// Append adds messages to an existing conversation. Returns false if
	// the identifier is unknown.
	Append(id string, msgs ...domain.Message) bool

	// Pending returns a copy of the conversation's in-flight transfer
	// record, or nil.
	Pending(id string) *domain.PendingTransfer
	// SetPending installs a transfer record. Returns false if the
	// identifier is unknown.
	SetPending(id string, p *domain.PendingTransfer) bool
	// ClearPending removes the transfer record, if any.
	ClearPending(id string)
}

type conversation struct {
	messages []domain.Message
	pending  *domain.PendingTransfer
}

// MemoryStore is the in-process Store implementation. Concurrent turns on
// different conversations proceed in parallel; turns on the same conversation
// are not mutually excluded beyond map-level consistency.
type MemoryStore struct {
	mu     sync.RWMutex
	convos map[string]*conversation
	logger *slog.Logger
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		convos: make(map[string]*conversation),
		logger: logger,
	}
}

func (s *MemoryStore) Create(initial []domain.Message) string {
	id := uuid.NewString()

	s.mu.Lock()
	s.convos[id] = &conversation{messages: append([]domain.Message(nil), initial...)}
	s.mu.Unlock()
	metrics.ActiveConversations.Inc()

	s.logger.Debug("conversation created", "id", id, "messages", len(initial))
	return id
}

func (s *MemoryStore) Get(id string) ([]domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.convos[id]
	if !ok {
		return nil, false
	}
	return append([]domain.Message(nil), c.messages...), true
}

func (s *MemoryStore) Append(id string, msgs ...domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convos[id]
	if !ok {
		return false
	}
	c.messages = append(c.messages, msgs...)
	return true
}

func (s *MemoryStore) Pending(id string) *domain.PendingTransfer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.convos[id]
	if !ok || c.pending == nil {
		return nil
	}
	// Callers get a copy; the stored record only changes through SetPending.
	cp := *c.pending
	if c.pending.Prepared != nil {
		prep := *c.pending.Prepared
		cp.Prepared = &prep
	}
	return &cp
}

func (s *MemoryStore) SetPending(id string, p *domain.PendingTransfer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convos[id]
	if !ok {
		return false
	}
	c.pending = p
	return true
}

func (s *MemoryStore) ClearPending(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.convos[id]; ok {
		c.pending = nil
	}
}
