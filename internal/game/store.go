package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

const (
	REDIS_KEY_TOWER_ROUND = "tower:round:"
	ROUND_TTL             = 1 * time.Hour
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RoundStore persists sessions so a round survives a process restart.
type RoundStore interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, roundID string) (*Session, error)
	Delete(ctx context.Context, roundID string) error
}

type RedisRoundStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRoundStore(client *redis.Client) *RedisRoundStore {
	return &RedisRoundStore{client: client, ttl: ROUND_TTL}
}

func (s *RedisRoundStore) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode round %s: %w", sess.RoundID, err)
	}
	if err := s.client.Set(ctx, REDIS_KEY_TOWER_ROUND+sess.RoundID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save round %s: %w", sess.RoundID, err)
	}
	return nil
}

func (s *RedisRoundStore) Load(ctx context.Context, roundID string) (*Session, error) {
	data, err := s.client.Get(ctx, REDIS_KEY_TOWER_ROUND+roundID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load round %s: %w", roundID, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode round %s: %w", roundID, err)
	}
	return &sess, nil
}

func (s *RedisRoundStore) Delete(ctx context.Context, roundID string) error {
	return s.client.Del(ctx, REDIS_KEY_TOWER_ROUND+roundID).Err()
}

// MemoryRoundStore keeps sessions in process. Used when Redis is not
// configured and in tests.
type MemoryRoundStore struct {
	mu     sync.RWMutex
	rounds map[string][]byte
}

func NewMemoryRoundStore() *MemoryRoundStore {
	return &MemoryRoundStore{rounds: make(map[string][]byte)}
}

func (s *MemoryRoundStore) Save(_ context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.rounds[sess.RoundID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryRoundStore) Load(_ context.Context, roundID string) (*Session, error) {
	s.mu.RLock()
	data, ok := s.rounds[roundID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrRoundNotFound
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *MemoryRoundStore) Delete(_ context.Context, roundID string) error {
	s.mu.Lock()
	delete(s.rounds, roundID)
	s.mu.Unlock()
	return nil
}
