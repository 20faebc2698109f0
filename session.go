package ragcore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// ChatMessage is a single chat turn.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session holds the message transcript for one conversation.
type Session struct {
	ID        string        `json:"session_id"`
	CreatedAt time.Time     `json:"created_at"`
	Messages  []ChatMessage `json:"messages"`
}

// SessionStore persists chat sessions.
type SessionStore interface {
	Create(ctx context.Context) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	// List returns sessions ordered by recency, newest first.
	List(ctx context.Context, offset, limit int) ([]*Session, error)
	AddMessage(ctx context.Context, id string, msg ChatMessage) error
	// Clean keeps at most max sessions by recency.
	Clean(ctx context.Context, max int) error
}

// MemSessionStore keeps sessions in process memory.
type MemSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemSessionStore() *MemSessionStore {
	return &MemSessionStore{sessions: make(map[string]*Session)}
}

func (m *MemSessionStore) Create(_ context.Context) (*Session, error) {
	s := &Session{ID: uuid.NewString(), CreatedAt: time.Now(), Messages: []ChatMessage{}}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s, nil
}

func (m *MemSessionStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	clone := *s
	clone.Messages = append([]ChatMessage(nil), s.Messages...)
	return &clone, nil
}

func (m *MemSessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemSessionStore) List(_ context.Context, offset, limit int) ([]*Session, error) {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return pageSessions(out, offset, limit), nil
}

func (m *MemSessionStore) AddMessage(_ context.Context, id string, msg ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.Messages = append(s.Messages, msg)
	return nil
}

func (m *MemSessionStore) Clean(_ context.Context, max int) error {
	if max <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) <= max {
		return nil
	}
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	for _, s := range out[max:] {
		delete(m.sessions, s.ID)
	}
	return nil
}

func pageSessions(list []*Session, offset, limit int) []*Session {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || offset >= len(list) {
		return []*Session{}
	}
	end := offset + limit
	if end > len(list) {
		end = len(list)
	}
	return list[offset:end]
}
