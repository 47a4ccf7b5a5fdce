package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeUpstash understands the handful of commands the store sends.
type fakeUpstash struct {
	mu       sync.Mutex
	values   map[string]string
	sets     map[string]map[string]bool
	commands [][]any
}

func newFakeUpstash(t *testing.T) (*fakeUpstash, *httptest.Server) {
	t.Helper()

	f := &fakeUpstash{values: map[string]string{}, sets: map[string]map[string]bool{}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"unauthorized"}`)
			return
		}
		var command []any
		if err := json.NewDecoder(r.Body).Decode(&command); err != nil {
			t.Errorf("decode command: %v", err)
			return
		}
		result, errMsg := f.apply(command)
		if errMsg != "" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, `{"error":%q}`, errMsg)
			return
		}
		raw, _ := json.Marshal(map[string]any{"result": result})
		w.Write(raw)
	}))
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeUpstash) apply(cmd []any) (any, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)

	name, _ := cmd[0].(string)
	switch name {
	case "GET":
		v, ok := f.values[cmd[1].(string)]
		if !ok {
			return nil, ""
		}
		return v, ""
	case "SET":
		key := cmd[1].(string)
		for _, opt := range cmd[3:] {
			if opt == "NX" {
				if _, exists := f.values[key]; exists {
					return nil, ""
				}
			}
		}
		f.values[key] = cmd[2].(string)
		return "OK", ""
	case "SADD":
		key := cmd[1].(string)
		if f.sets[key] == nil {
			f.sets[key] = map[string]bool{}
		}
		f.sets[key][cmd[2].(string)] = true
		return 1, ""
	case "SMEMBERS":
		members := []string{}
		for m := range f.sets[cmd[1].(string)] {
			members = append(members, m)
		}
		return members, ""
	case "SREM":
		delete(f.sets[cmd[1].(string)], cmd[2].(string))
		return 1, ""
	case "DEL":
		delete(f.values, cmd[1].(string))
		return 1, ""
	case "EVAL":
		key := cmd[3].(string)
		expected := int64(cmd[4].(float64))
		if cur, ok := f.values[key]; ok {
			var stored ConversationState
			_ = json.Unmarshal([]byte(cur), &stored)
			if stored.Version != expected {
				return nil, "ERR version conflict"
			}
		}
		f.values[key] = cmd[5].(string)
		return "OK", ""
	}
	return nil, "ERR unknown command " + name
}

func newTestUpstashStore(t *testing.T, server *httptest.Server) *UpstashRedisStore {
	t.Helper()
	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{URL: server.URL, Token: "token", HTTPClient: server.Client()},
		WithKeyPrefix("test:"),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}
	return store
}

func TestUpstashStoreKeyLayout(t *testing.T) {
	t.Parallel()

	got, err := conversationKey("test:", testKey("abc"))
	if err != nil {
		t.Fatalf("conversationKey() error = %v", err)
	}
	if got != "test:Host_Agent:u1:abc" {
		t.Fatalf("conversationKey() = %q", got)
	}

	idx, err := indexKey("test:", "Host_Agent", "u1")
	if err != nil {
		t.Fatalf("indexKey() error = %v", err)
	}
	if idx != "test:index:Host_Agent:u1" {
		t.Fatalf("indexKey() = %q", idx)
	}
}

func TestUpstashStoreEnsureSaveAndList(t *testing.T) {
	t.Parallel()

	fake, server := newFakeUpstash(t)
	store := newTestUpstashStore(t, server)
	ctx := context.Background()

	st, err := Ensure(ctx, store, testKey("s1"))
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	st.Append(UserMessage("đơn của tôi", time.Now()))
	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	again, err := Ensure(ctx, store, testKey("s1"))
	if err != nil {
		t.Fatalf("Ensure() second error = %v", err)
	}
	if len(again.Turns) != 1 || again.Turns[0].Text != "đơn của tôi" {
		t.Fatalf("Turns = %+v", again.Turns)
	}

	ids, err := store.List(ctx, "Host_Agent", "u1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "s1" {
		t.Fatalf("List() = %v, want [s1]", ids)
	}

	if fake.commands[0][0] != "GET" {
		t.Fatalf("first command = %v, want GET", fake.commands[0][0])
	}
}

func TestUpstashStoreSaveConflict(t *testing.T) {
	t.Parallel()

	_, server := newFakeUpstash(t)
	store := newTestUpstashStore(t, server)
	ctx := context.Background()

	st, err := store.Create(ctx, testKey("s2"), nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	stale := st.Clone()

	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(ctx, stale); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("Save() stale error = %v, want ErrVersionConflict", err)
	}
}

func TestUpstashStoreDeleteRemovesIndexEntry(t *testing.T) {
	t.Parallel()

	fake, server := newFakeUpstash(t)
	store := newTestUpstashStore(t, server)
	ctx := context.Background()

	if _, err := store.Create(ctx, testKey("s3"), nil); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Delete(ctx, testKey("s3")); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, testKey("s3")); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Get() after delete error = %v, want ErrStateNotFound", err)
	}

	last := fake.commands[len(fake.commands)-3]
	if last[0] != "DEL" {
		t.Fatalf("command = %v, want DEL", last[0])
	}
}

func TestUpstashStoreCreateDuplicate(t *testing.T) {
	t.Parallel()

	_, server := newFakeUpstash(t)
	store := newTestUpstashStore(t, server)
	ctx := context.Background()

	if _, err := store.Create(ctx, testKey("s4"), nil); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := store.Create(ctx, testKey("s4"), nil); !errors.Is(err, ErrStateExists) {
		t.Fatalf("Create() duplicate error = %v, want ErrStateExists", err)
	}
}

func TestNewStoreSelectsDriver(t *testing.T) {
	t.Parallel()

	store, err := NewStore(context.Background(), Config{Driver: "memory"}, "")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("NewStore() = %T, want *MemoryStore", store)
	}

	if _, err := NewStore(context.Background(), Config{Driver: "cassandra"}, ""); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
