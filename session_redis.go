package ragcore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/finchat/ragcore/config"
)

// RedisSessionStore persists sessions in Redis for multi-instance
// deployments. Data model:
//   - prefix+"session:"+id => JSON(Session) with TTL
//   - prefix+"idx"         => sorted set of IDs scored by last activity
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisSessionStore(client *redis.Client, cfg *config.SessionConfig) *RedisSessionStore {
	ttl := 24 * time.Hour
	if cfg != nil && cfg.TTLSeconds > 0 {
		ttl = time.Duration(cfg.TTLSeconds) * time.Second
	}
	return &RedisSessionStore{client: client, prefix: "ragcore:sess:", ttl: ttl}
}

func (s *RedisSessionStore) idxKey() string           { return s.prefix + "idx" }
func (s *RedisSessionStore) sessKey(id string) string { return s.prefix + "session:" + id }

func (s *RedisSessionStore) Create(ctx context.Context) (*Session, error) {
	sess := &Session{ID: uuid.NewString(), CreatedAt: time.Now(), Messages: []ChatMessage{}}
	if err := s.write(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	value, err := s.client.Get(ctx, s.sessKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: read: %w", err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(value), &sess); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return &sess, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.sessKey(id))
	pipe.ZRem(ctx, s.idxKey(), id)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisSessionStore) List(ctx context.Context, offset, limit int) ([]*Session, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		return []*Session{}, nil
	}
	ids, err := s.client.ZRevRange(ctx, s.idxKey(), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("session: list index: %w", err)
	}
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if err == ErrSessionNotFound {
			// expired body, drop the index entry
			_ = s.client.ZRem(ctx, s.idxKey(), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *RedisSessionStore) AddMessage(ctx context.Context, id string, msg ChatMessage) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.Messages = append(sess.Messages, msg)
	return s.write(ctx, sess)
}

func (s *RedisSessionStore) Clean(ctx context.Context, max int) error {
	if max <= 0 {
		return nil
	}
	total, err := s.client.ZCard(ctx, s.idxKey()).Result()
	if err != nil || total <= int64(max) {
		return err
	}
	stale, err := s.client.ZRange(ctx, s.idxKey(), 0, total-int64(max)-1).Result()
	if err != nil {
		return fmt.Errorf("session: clean index: %w", err)
	}
	pipe := s.client.TxPipeline()
	for _, id := range stale {
		pipe.Del(ctx, s.sessKey(id))
		pipe.ZRem(ctx, s.idxKey(), id)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisSessionStore) write(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.sessKey(sess.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.idxKey(), redis.Z{Score: float64(time.Now().Unix()), Member: sess.ID})
	_, err = pipe.Exec(ctx)
	return err
}
