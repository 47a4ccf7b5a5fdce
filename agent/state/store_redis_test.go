package state

import (
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestNewRedisStoreRequiresAddr(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisStore(RedisConfig{}); err == nil {
		t.Fatal("expected error for empty addr")
	}
}

func TestNewRedisStoreWithClientAppliesOptions(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisStoreWithClient(client, WithKeyPrefix("x:"), WithTTL(0))
	if err != nil {
		t.Fatalf("NewRedisStoreWithClient() error = %v", err)
	}
	if store.keyPrefix != "x:" {
		t.Fatalf("keyPrefix = %q, want x:", store.keyPrefix)
	}

	if _, err := NewRedisStoreWithClient(client, WithTTL(-1)); err == nil {
		t.Fatal("expected error for negative ttl")
	}
}
