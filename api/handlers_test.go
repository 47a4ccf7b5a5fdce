package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/tanpawarit/Chative-Ecom-Support/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
	statex "github.com/tanpawarit/Chative-Ecom-Support/agent/state"
	"github.com/tanpawarit/Chative-Ecom-Support/pkg/auth"
	"github.com/tanpawarit/Chative-Ecom-Support/pkg/profile"
)

const testSecret = "test-secret"

var testNow = time.Date(2025, 10, 5, 9, 0, 0, 0, time.UTC)

type echoModel struct {
	mu     sync.Mutex
	reply  string
	inputs [][]*schema.Message
}

func (m *echoModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, input)
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *echoModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func (m *echoModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return m, nil
}

type idleHandler struct{}

func (idleHandler) Answer(ctx context.Context, req contractx.HandlerRequest) contractx.HandlerResult {
	return contractx.HandlerResult{Payload: map[string]any{"text": "ok"}}
}

type idleRegistry struct{}

func (idleRegistry) Order() contractx.Handler         { return idleHandler{} }
func (idleRegistry) Voucher() contractx.Handler       { return idleHandler{} }
func (idleRegistry) ProductDetail() contractx.Handler { return idleHandler{} }
func (idleRegistry) Retrieval() contractx.Handler     { return idleHandler{} }

type staticProfiles struct {
	profile profile.Profile
	err     error
}

func (s staticProfiles) Lookup(ctx context.Context, token, subject string) (profile.Profile, error) {
	return s.profile, s.err
}

type testServer struct {
	router http.Handler
	model  *echoModel
	store  *statex.MemoryStore
}

func newTestServer(t *testing.T, profiles profile.Lookup) *testServer {
	t.Helper()

	store, err := statex.NewMemoryStore()
	require.NoError(t, err)

	model := &echoModel{reply: "Xin chào"}
	engine, err := orchestrator.New(context.Background(), store, idleRegistry{}, model, nil, orchestrator.Config{App: "test_app"})
	require.NoError(t, err)

	verifier, err := auth.NewVerifier(testSecret, auth.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)

	handler := NewHandler(engine, verifier, profiles, "Host_Agent")
	return &testServer{router: NewRouter(handler, "/api"), model: model, store: store}
}

func signToken(t *testing.T, userID string, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "sub-" + userID,
		"exp": expiresAt.Unix(),
	}
	if userID != "" {
		claims["userId"] = userID
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, payload := srv.do(t, http.MethodGet, "/api/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "healthy", payload["status"])
	require.Equal(t, "Host_Agent", payload["agent_name"])
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/message", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://shop.example", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t, staticProfiles{profile: profile.Profile{"userId": "u-1", "name": "Lan"}})
	token := signToken(t, "u-1", testNow.Add(time.Hour))

	rec, payload := srv.do(t, http.MethodPost, "/api/session", token, `{"state":{"lang":"EN","product_key":"sku-9"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, payload["success"])
	require.Equal(t, MessageSessionCreated, payload["message"])
	sessionID, _ := payload["session_id"].(string)
	require.NotEmpty(t, sessionID)

	rec, payload = srv.do(t, http.MethodPost, "/api/message", token, `{"message":"chào shop","session_id":"`+sessionID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, payload["success"])
	require.Equal(t, sessionID, payload["session_id"])
	require.Equal(t, map[string]any{"text": "Xin chào"}, payload["response"])

	rec, payload = srv.do(t, http.MethodGet, "/api/session/"+sessionID, token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	data, ok := payload["session_data"].(map[string]any)
	require.True(t, ok)
	shared, ok := data["shared"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "EN", shared[statex.SharedLang])
	require.Equal(t, "sku-9", shared[statex.SharedProductKey])
	require.NotContains(t, shared, statex.SharedToken)

	rec, payload = srv.do(t, http.MethodGet, "/api/list_sessions", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []any{sessionID}, payload["sessions"])
	require.Equal(t, "Found 1 sessions for user u-1", payload["message"])

	rec, payload = srv.do(t, http.MethodDelete, "/api/session/"+sessionID, token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Session "+sessionID+" deleted successfully", payload["message"])

	rec, payload = srv.do(t, http.MethodGet, "/api/session/"+sessionID, token, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, MessageSessionMissing, payload["error"])
}

func TestCreateSessionDefaultsLang(t *testing.T) {
	srv := newTestServer(t, nil)
	token := signToken(t, "u-2", testNow.Add(time.Hour))

	rec, payload := srv.do(t, http.MethodPost, "/api/session", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := payload["session_id"].(string)

	conv, err := srv.store.Get(context.Background(), statex.Key{App: "test_app", User: "u-2", Conversation: sessionID})
	require.NoError(t, err)
	require.Equal(t, defaultLang, conv.Shared[statex.SharedLang])
	require.Equal(t, "u-2", conv.Shared[statex.SharedUserID])
}

func TestCreateSessionProfileFailure(t *testing.T) {
	srv := newTestServer(t, staticProfiles{err: profile.ErrNotFound})
	token := signToken(t, "u-1", testNow.Add(time.Hour))

	rec, payload := srv.do(t, http.MethodPost, "/api/session", token, "{}")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, false, payload["success"])
	require.Equal(t, MessageSystemError, payload["error"])
}

func TestSendMessageValidation(t *testing.T) {
	srv := newTestServer(t, nil)
	valid := signToken(t, "u-1", testNow.Add(time.Hour))
	expired := signToken(t, "u-1", testNow.Add(-time.Hour))
	noUser := signToken(t, "", testNow.Add(time.Hour))

	cases := []struct {
		name   string
		token  string
		body   string
		status int
		errMsg string
	}{
		{"missing token", "", `{"message":"hi","session_id":"s"}`, http.StatusUnauthorized, MessageMissingToken},
		{"bad token", "not-a-jwt", `{"message":"hi","session_id":"s"}`, http.StatusUnauthorized, MessageInvalidToken},
		{"expired token", expired, `{"message":"hi","session_id":"s"}`, http.StatusUnauthorized, MessageExpiredToken},
		{"missing message", valid, `{"message":"  ","session_id":"s"}`, http.StatusBadRequest, MessageMissingMessage},
		{"missing session", valid, `{"message":"hi"}`, http.StatusBadRequest, MessageMissingSession},
		{"no user claim", noUser, `{"message":"hi","session_id":"s"}`, http.StatusBadRequest, MessageInvalidUserID},
		{"unknown session", valid, `{"message":"hi","session_id":"missing"}`, http.StatusNotFound, MessageSessionMissing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, payload := srv.do(t, http.MethodPost, "/api/message", tc.token, tc.body)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, false, payload["success"])
			require.Contains(t, payload["error"], tc.errMsg)
		})
	}
	require.Empty(t, srv.model.inputs)
}

func TestSessionsScopedToTokenUser(t *testing.T) {
	srv := newTestServer(t, nil)
	owner := signToken(t, "u-1", testNow.Add(time.Hour))
	other := signToken(t, "u-2", testNow.Add(time.Hour))

	_, payload := srv.do(t, http.MethodPost, "/api/session", owner, "{}")
	sessionID := payload["session_id"].(string)

	rec, _ := srv.do(t, http.MethodGet, "/api/session/"+sessionID, other, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = srv.do(t, http.MethodDelete, "/api/session/"+sessionID, other, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	_, payload = srv.do(t, http.MethodGet, "/api/list_sessions", other, "")
	require.Empty(t, payload["sessions"])
}

func TestSessionQueueReleasesEntries(t *testing.T) {
	q := newSessionQueue()

	release := q.acquire("u/s")
	acquired := make(chan struct{})
	go func() {
		r := q.acquire("u/s")
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second caller entered a held session")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	<-acquired
	require.Eventually(t, func() bool { return q.size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSendMessageOutlivesClientCancellation(t *testing.T) {
	srv := newTestServer(t, nil)
	token := signToken(t, "u-1", testNow.Add(time.Hour))

	_, payload := srv.do(t, http.MethodPost, "/api/session", token, "{}")
	sessionID := payload["session_id"].(string)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/message", strings.NewReader(`{"message":"chào shop","session_id":"`+sessionID+`"}`)).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["success"])
	require.Equal(t, map[string]any{"text": "Xin chào"}, body["response"])

	conv, err := srv.store.Get(context.Background(), statex.Key{App: "test_app", User: "u-1", Conversation: sessionID})
	require.NoError(t, err)
	require.Len(t, conv.Turns, 2)
}

func TestSessionsKeyedByTokenUser(t *testing.T) {
	srv := newTestServer(t, staticProfiles{profile: profile.Profile{"userId": "profile-7"}})

	noUser := signToken(t, "", testNow.Add(time.Hour))
	rec, payload := srv.do(t, http.MethodPost, "/api/session", noUser, "{}")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, MessageInvalidUserID, payload["error"])

	token := signToken(t, "u-1", testNow.Add(time.Hour))
	_, payload = srv.do(t, http.MethodPost, "/api/session", token, "{}")
	sessionID := payload["session_id"].(string)

	_, payload = srv.do(t, http.MethodGet, "/api/list_sessions", token, "")
	require.Equal(t, []any{sessionID}, payload["sessions"])

	rec, payload = srv.do(t, http.MethodPost, "/api/message", token, `{"message":"chào","session_id":"`+sessionID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, payload["success"])
}
