package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// saveScript performs a compare-and-set on the stored version.
const saveScript = `
local cur = redis.call('GET', KEYS[1])
if cur then
  local v = cjson.decode(cur)['version']
  if tonumber(v) ~= tonumber(ARGV[1]) then
    return redis.error_reply('version conflict')
  end
end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'EX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 'OK'
`

// UpstashRedisStore persists conversations in Upstash Redis via its REST API.
type UpstashRedisStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
	now        func() time.Time
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashRedisConfig struct {
	URL        string        `envconfig:"URL" split_words:"true" required:"true"`
	Token      string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout    time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	HTTPClient *http.Client  `ignored:"true"`
}

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &UpstashRedisStore{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
		keyPrefix:  o.KeyPrefix,
		ttl:        o.TTL,
		now:        o.Now,
	}, nil
}

func (s *UpstashRedisStore) Get(ctx context.Context, key Key) (*ConversationState, error) {
	redisKey, err := conversationKey(s.keyPrefix, key)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"GET", redisKey})
	if err != nil {
		return nil, err
	}

	encoded, ok, err := decodeRESTString(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("decode conversation payload: %w", err)
	}
	if !ok {
		return nil, ErrStateNotFound
	}

	var st ConversationState
	if err := json.Unmarshal([]byte(encoded), &st); err != nil {
		return nil, fmt.Errorf("unmarshal conversation state: %w", err)
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid conversation state loaded from store: %w", err)
	}
	return &st, nil
}

func (s *UpstashRedisStore) Create(ctx context.Context, key Key, shared map[string]any) (*ConversationState, error) {
	redisKey, err := conversationKey(s.keyPrefix, key)
	if err != nil {
		return nil, err
	}
	idxKey, err := indexKey(s.keyPrefix, key.App, key.User)
	if err != nil {
		return nil, err
	}

	st := NewConversationState(key, shared, s.now())
	payload, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal conversation state: %w", err)
	}

	cmd := []any{"SET", redisKey, string(payload), "NX"}
	if s.ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(s.ttl))
	}
	resp, err := s.exec(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if _, ok, _ := decodeRESTString(resp.Result); !ok {
		return nil, ErrStateExists
	}

	if _, err := s.exec(ctx, []any{"SADD", idxKey, key.Conversation}); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *UpstashRedisStore) List(ctx context.Context, app, user string) ([]string, error) {
	idxKey, err := indexKey(s.keyPrefix, app, user)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"SMEMBERS", idxKey})
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal(resp.Result, &ids); err != nil {
		return nil, fmt.Errorf("decode conversation index: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (s *UpstashRedisStore) Delete(ctx context.Context, key Key) error {
	redisKey, err := conversationKey(s.keyPrefix, key)
	if err != nil {
		return err
	}
	idxKey, err := indexKey(s.keyPrefix, key.App, key.User)
	if err != nil {
		return err
	}

	if _, err := s.exec(ctx, []any{"DEL", redisKey}); err != nil {
		return err
	}
	_, err = s.exec(ctx, []any{"SREM", idxKey, key.Conversation})
	return err
}

func (s *UpstashRedisStore) Save(ctx context.Context, st *ConversationState) error {
	readVersion, err := prepareSave(st, s.now)
	if err != nil {
		return err
	}
	redisKey, err := conversationKey(s.keyPrefix, st.Key)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(st)
	if err != nil {
		st.Version = readVersion
		return fmt.Errorf("marshal conversation state: %w", err)
	}

	var ttl int64
	if s.ttl > 0 {
		ttl = ttlSeconds(s.ttl)
	}
	_, err = s.exec(ctx, []any{"EVAL", saveScript, 1, redisKey, readVersion, string(payload), ttl})
	if err != nil {
		st.Version = readVersion
		if strings.Contains(err.Error(), "version conflict") {
			return ErrVersionConflict
		}
		return err
	}
	return nil
}

func (s *UpstashRedisStore) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

func (s *UpstashRedisStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
		}
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}
	return &parsed, nil
}

// decodeRESTString reports false for a nil reply.
func decodeRESTString(result json.RawMessage) (string, bool, error) {
	trimmed := bytes.TrimSpace(result)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return "", false, err
	}
	return s, true, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
