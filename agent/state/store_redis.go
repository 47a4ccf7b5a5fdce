package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore persists conversations as JSON values with a per-user index set.
// Save uses WATCH/MULTI for optimistic locking on Version.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	now       func() time.Time
}

func NewRedisStore(cfg RedisConfig, opts ...StoreOption) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStoreWithClient(client, opts...)
}

func NewRedisStoreWithClient(client redis.UniversalClient, opts ...StoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	return &RedisStore{
		client:    client,
		keyPrefix: o.KeyPrefix,
		ttl:       o.TTL,
		now:       o.Now,
	}, nil
}

func (s *RedisStore) Get(ctx context.Context, key Key) (*ConversationState, error) {
	redisKey, err := conversationKey(s.keyPrefix, key)
	if err != nil {
		return nil, err
	}

	val, err := s.client.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get conversation: %w", err)
	}

	var st ConversationState
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		return nil, fmt.Errorf("unmarshal conversation state: %w", err)
	}

	if s.ttl > 0 {
		_ = s.client.Expire(ctx, redisKey, s.ttl).Err()
	}
	return &st, nil
}

func (s *RedisStore) Create(ctx context.Context, key Key, shared map[string]any) (*ConversationState, error) {
	redisKey, err := conversationKey(s.keyPrefix, key)
	if err != nil {
		return nil, err
	}
	idxKey, err := indexKey(s.keyPrefix, key.App, key.User)
	if err != nil {
		return nil, err
	}

	st := NewConversationState(key, shared, s.now())
	val, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal conversation state: %w", err)
	}

	ok, err := s.client.SetNX(ctx, redisKey, val, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis create conversation: %w", err)
	}
	if !ok {
		return nil, ErrStateExists
	}
	if err := s.client.SAdd(ctx, idxKey, key.Conversation).Err(); err != nil {
		return nil, fmt.Errorf("redis index conversation: %w", err)
	}
	return st, nil
}

func (s *RedisStore) List(ctx context.Context, app, user string) ([]string, error) {
	idxKey, err := indexKey(s.keyPrefix, app, user)
	if err != nil {
		return nil, err
	}
	ids, err := s.client.SMembers(ctx, idxKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list conversations: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	redisKey, err := conversationKey(s.keyPrefix, key)
	if err != nil {
		return err
	}
	idxKey, err := indexKey(s.keyPrefix, key.App, key.User)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisKey)
		pipe.SRem(ctx, idxKey, key.Conversation)
		return nil
	})
	return err
}

func (s *RedisStore) Save(ctx context.Context, st *ConversationState) error {
	if st == nil {
		return ErrNilConversationState
	}
	redisKey, err := conversationKey(s.keyPrefix, st.Key)
	if err != nil {
		return err
	}

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, redisKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			var stored ConversationState
			if err := json.Unmarshal([]byte(val), &stored); err != nil {
				return fmt.Errorf("unmarshal stored conversation: %w", err)
			}
			if stored.Version != st.Version {
				return ErrVersionConflict
			}
		}

		readVersion, err := prepareSave(st, s.now)
		if err != nil {
			return err
		}
		newVal, err := json.Marshal(st)
		if err != nil {
			st.Version = readVersion
			return fmt.Errorf("marshal conversation state: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, newVal, s.ttl)
			return nil
		})
		if err != nil {
			st.Version = readVersion
		}
		return err
	}, redisKey)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
