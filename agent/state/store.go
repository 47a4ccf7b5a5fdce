package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrStateNotFound        = errors.New("conversation state not found")
	ErrStateExists          = errors.New("conversation state already exists")
	ErrNilConversationState = errors.New("conversation state is nil")
	ErrInvalidKey           = errors.New("conversation key is invalid")
	ErrVersionConflict      = errors.New("conversation state was modified concurrently")
)

const (
	defaultStoreKeyPrefix = "support:conv:"
	defaultStoreTTL       = 0
	maxResponseSizeBytes  = 4 << 20
)

// Store persists conversations. Writes are synchronous and visible to the next read.
type Store interface {
	Get(ctx context.Context, key Key) (*ConversationState, error)
	Create(ctx context.Context, key Key, shared map[string]any) (*ConversationState, error)
	List(ctx context.Context, app, user string) ([]string, error)
	Delete(ctx context.Context, key Key) error
	Save(ctx context.Context, st *ConversationState) error
	Close() error
}

// Ensure returns the conversation under key, creating it when absent.
// Losing a concurrent create race falls back to reading the winner.
func Ensure(ctx context.Context, store Store, key Key) (*ConversationState, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	st, err := store.Get(ctx, key)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, ErrStateNotFound) {
		return nil, err
	}

	st, err = store.Create(ctx, key, nil)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, ErrStateExists) {
		return nil, err
	}
	return store.Get(ctx, key)
}

// StoreType selects a Store driver.
type StoreType string

const (
	StoreMemory   StoreType = "memory"
	StorePostgres StoreType = "postgres"
	StoreRedis    StoreType = "redis"
	StoreUpstash  StoreType = "upstash"
)

type Config struct {
	Driver        string        `envconfig:"DRIVER" split_words:"true" default:"memory"`
	KeyPrefix     string        `envconfig:"KEY_PREFIX" split_words:"true" default:"support:conv:"`
	TTL           time.Duration `envconfig:"TTL" split_words:"true" default:"0s"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" split_words:"true" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" split_words:"true"`
	RedisDB       int           `envconfig:"REDIS_DB" split_words:"true" default:"0"`
	UpstashURL    string        `envconfig:"UPSTASH_URL" split_words:"true"`
	UpstashToken  string        `envconfig:"UPSTASH_TOKEN" split_words:"true"`
	Timeout       time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// Options collects the settings shared by the key-value drivers.
type Options struct {
	KeyPrefix string
	TTL       time.Duration
	Now       func() time.Time
}

type StoreOption func(*Options)

func WithKeyPrefix(prefix string) StoreOption {
	return func(o *Options) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			o.KeyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) StoreOption {
	return func(o *Options) {
		o.TTL = ttl
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}

func newOptions(opts []StoreOption) (Options, error) {
	o := Options{
		KeyPrefix: defaultStoreKeyPrefix,
		TTL:       defaultStoreTTL,
		Now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.TTL < 0 {
		return Options{}, errors.New("ttl must be >= 0")
	}
	return o, nil
}

// NewStore builds the durable store selected by cfg.Driver. dbURL is only
// used by the postgres driver.
func NewStore(ctx context.Context, cfg Config, dbURL string) (Store, error) {
	opts := []StoreOption{WithKeyPrefix(cfg.KeyPrefix), WithTTL(cfg.TTL)}

	switch StoreType(strings.ToLower(strings.TrimSpace(cfg.Driver))) {
	case StoreMemory, "":
		return NewMemoryStore(opts...)
	case StorePostgres:
		return NewPostgresStore(ctx, dbURL, opts...)
	case StoreRedis:
		return NewRedisStore(RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, opts...)
	case StoreUpstash:
		return NewUpstashRedisStore(UpstashRedisConfig{
			URL:     cfg.UpstashURL,
			Token:   cfg.UpstashToken,
			Timeout: cfg.Timeout,
		}, opts...)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func conversationKey(prefix string, key Key) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	return prefix + key.App + ":" + key.User + ":" + key.Conversation, nil
}

func indexKey(prefix, app, user string) (string, error) {
	if strings.TrimSpace(app) == "" || strings.TrimSpace(user) == "" {
		return "", fmt.Errorf("%w: app and user are required", ErrInvalidKey)
	}
	return prefix + "index:" + app + ":" + user, nil
}

// prepareSave stamps st before it is written and returns the version it was read at.
func prepareSave(st *ConversationState, now func() time.Time) (int64, error) {
	if st == nil {
		return 0, ErrNilConversationState
	}
	if err := st.Validate(); err != nil {
		return 0, err
	}
	read := st.Version
	st.Version++
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = now().UTC()
	} else {
		st.UpdatedAt = st.UpdatedAt.UTC()
	}
	return read, nil
}
