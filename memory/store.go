package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConversationStore keeps per-session conversation history and the
// running summary produced by the background summarizer.
type ConversationStore interface {
	// GetLastNRounds returns the most recent n rounds, oldest first.
	GetLastNRounds(ctx context.Context, sessionID string, n int) ([]ConversationRound, error)

	// GetSummary returns the running summary, empty when none exists.
	GetSummary(ctx context.Context, sessionID string) (string, error)

	// SaveRound appends one exchange, trimming to the retention limit.
	SaveRound(ctx context.Context, sessionID string, round ConversationRound) error

	// SetSummary replaces the running summary.
	SetSummary(ctx context.Context, sessionID string, summary string) error

	// Clear drops all data for the session.
	Clear(ctx context.Context, sessionID string) error
}

// InMemoryConversationStore is the single-process implementation, used in
// development and tests.
type InMemoryConversationStore struct {
	mu        sync.RWMutex
	sessions  map[string][]ConversationRound
	summaries map[string]string
	maxRounds int
}

func NewInMemoryConversationStore(maxRounds int) *InMemoryConversationStore {
	if maxRounds <= 0 {
		maxRounds = 20
	}
	return &InMemoryConversationStore{
		sessions:  make(map[string][]ConversationRound),
		summaries: make(map[string]string),
		maxRounds: maxRounds,
	}
}

func (s *InMemoryConversationStore) GetLastNRounds(_ context.Context, sessionID string, n int) ([]ConversationRound, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rounds := s.sessions[sessionID]
	if len(rounds) == 0 {
		return []ConversationRound{}, nil
	}
	if n <= 0 || n >= len(rounds) {
		n = len(rounds)
	}
	result := make([]ConversationRound, n)
	copy(result, rounds[len(rounds)-n:])
	return result, nil
}

func (s *InMemoryConversationStore) GetSummary(_ context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaries[sessionID], nil
}

func (s *InMemoryConversationStore) SaveRound(_ context.Context, sessionID string, round ConversationRound) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rounds := append(s.sessions[sessionID], round)
	if len(rounds) > s.maxRounds {
		rounds = rounds[len(rounds)-s.maxRounds:]
	}
	s.sessions[sessionID] = rounds
	return nil
}

func (s *InMemoryConversationStore) SetSummary(_ context.Context, sessionID string, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[sessionID] = summary
	return nil
}

func (s *InMemoryConversationStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	delete(s.summaries, sessionID)
	return nil
}

// RedisConversationStore backs conversation history with Redis for
// multi-instance deployments.
type RedisConversationStore struct {
	client    *redis.Client
	keyPrefix string
	expiry    time.Duration
	maxRounds int
}

type RedisConversationStoreConfig struct {
	Client    *redis.Client
	KeyPrefix string
	Expiry    time.Duration
	MaxRounds int
}

func NewRedisConversationStore(cfg *RedisConversationStoreConfig) *RedisConversationStore {
	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "ragcore:conversation:"
	}
	expiry := cfg.Expiry
	if expiry == 0 {
		expiry = 24 * time.Hour
	}
	maxRounds := cfg.MaxRounds
	if maxRounds == 0 {
		maxRounds = 20
	}
	return &RedisConversationStore{
		client:    cfg.Client,
		keyPrefix: keyPrefix,
		expiry:    expiry,
		maxRounds: maxRounds,
	}
}

func (s *RedisConversationStore) roundsKey(sessionID string) string {
	return s.keyPrefix + sessionID + ":rounds"
}

func (s *RedisConversationStore) summaryKey(sessionID string) string {
	return s.keyPrefix + sessionID + ":summary"
}

func (s *RedisConversationStore) GetLastNRounds(ctx context.Context, sessionID string, n int) ([]ConversationRound, error) {
	value, err := s.client.Get(ctx, s.roundsKey(sessionID)).Result()
	if err == redis.Nil || value == "" {
		return []ConversationRound{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: read rounds: %w", err)
	}

	var rounds []ConversationRound
	if err := json.Unmarshal([]byte(value), &rounds); err != nil {
		return nil, fmt.Errorf("memory: decode rounds: %w", err)
	}
	if n <= 0 || n >= len(rounds) {
		return rounds, nil
	}
	return rounds[len(rounds)-n:], nil
}

func (s *RedisConversationStore) GetSummary(ctx context.Context, sessionID string) (string, error) {
	value, err := s.client.Get(ctx, s.summaryKey(sessionID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("memory: read summary: %w", err)
	}
	return value, nil
}

func (s *RedisConversationStore) SaveRound(ctx context.Context, sessionID string, round ConversationRound) error {
	rounds, err := s.GetLastNRounds(ctx, sessionID, s.maxRounds)
	if err != nil {
		return err
	}
	rounds = append(rounds, round)
	if len(rounds) > s.maxRounds {
		rounds = rounds[len(rounds)-s.maxRounds:]
	}

	data, err := json.Marshal(rounds)
	if err != nil {
		return fmt.Errorf("memory: encode rounds: %w", err)
	}
	return s.client.Set(ctx, s.roundsKey(sessionID), data, s.expiry).Err()
}

func (s *RedisConversationStore) SetSummary(ctx context.Context, sessionID string, summary string) error {
	return s.client.Set(ctx, s.summaryKey(sessionID), summary, s.expiry).Err()
}

func (s *RedisConversationStore) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.roundsKey(sessionID), s.summaryKey(sessionID)).Err()
}
