package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/Chative-Ecom-Support/agent/agents/orchestrator"
	statex "github.com/tanpawarit/Chative-Ecom-Support/agent/state"
	"github.com/tanpawarit/Chative-Ecom-Support/pkg/auth"
	"github.com/tanpawarit/Chative-Ecom-Support/pkg/profile"
)

const (
	MessageMissingToken   = "Authorization token is missing"
	MessageInvalidToken   = "Token không hợp lệ"
	MessageExpiredToken   = "Token đã hết hạn"
	MessageMissingMessage = "Message is required"
	MessageMissingSession = "session_id is required"
	MessageInvalidUserID  = "user_id is invalid in token, please login again"
	MessageSessionMissing = "Session not found"
	MessageSystemError    = "Lỗi hệ thống. Vui lòng thử lại"
	MessageSessionCreated = "Session created successfully"

	defaultLang  = "VN"
	maxBodyBytes = 1 << 20
)

// Engine is the orchestrator surface used by the handlers.
type Engine interface {
	App() string
	HandleMessage(ctx context.Context, req orchestrator.Request) (orchestrator.Outcome, error)
	StartConversation(ctx context.Context, userID, conversationID string, shared map[string]any) (*statex.ConversationState, error)
	Conversation(ctx context.Context, userID, conversationID string) (*statex.ConversationState, error)
	DeleteConversation(ctx context.Context, userID, conversationID string) error
	ListConversations(ctx context.Context, userID string) ([]string, error)
}

type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

type Handler struct {
	engine    Engine
	verifier  TokenVerifier
	profiles  profile.Lookup
	agentName string
	queue     *sessionQueue
	newID     func() string
}

// NewHandler wires the routes. profiles may be nil, in which case sessions
// start without user_info.
func NewHandler(engine Engine, verifier TokenVerifier, profiles profile.Lookup, agentName string) *Handler {
	return &Handler{
		engine:    engine,
		verifier:  verifier,
		profiles:  profiles,
		agentName: agentName,
		queue:     newSessionQueue(),
		newID:     uuid.NewString,
	}
}

type createSessionRequest struct {
	UserID string         `json:"user_id,omitempty"`
	State  map[string]any `json:"state,omitempty"`
}

type createSessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type sendMessageRequest struct {
	Message    string `json:"message"`
	UserID     string `json:"user_id,omitempty"`
	SessionID  string `json:"session_id"`
	ProductKey string `json:"product_key,omitempty"`
}

type sendMessageResponse struct {
	Success   bool   `json:"success"`
	Response  any    `json:"response,omitempty"`
	SessionID string `json:"session_id"`
	Error     string `json:"error,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type healthResponse struct {
	Status    string `json:"status"`
	AgentName string `json:"agent_name"`
}

// requestError is a failure with the status and message sent to the client.
type requestError struct {
	status  int
	message string
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	token, claims, rerr := h.authenticate(r)
	if rerr != nil {
		writeError(w, rerr)
		return
	}

	var body createSessionRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, &requestError{status: http.StatusBadRequest, message: err.Error()})
		return
	}

	userID := sessionOwner(claims)
	if userID == "" {
		writeError(w, &requestError{status: http.StatusBadRequest, message: MessageInvalidUserID})
		return
	}

	ctx := r.Context()
	userInfo := profile.Profile{}
	if h.profiles != nil {
		p, err := h.profiles.Lookup(ctx, token, claims.Subject)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("profile lookup failed")
			writeError(w, &requestError{status: http.StatusBadGateway, message: MessageSystemError})
			return
		}
		userInfo = p
	}

	lang := defaultLang
	if v, ok := body.State["lang"].(string); ok && strings.TrimSpace(v) != "" {
		lang = strings.TrimSpace(v)
	}
	shared := map[string]any{
		statex.SharedUserInfo: map[string]any(userInfo),
		statex.SharedLang:     lang,
		statex.SharedUserID:   userID,
	}
	if v, ok := body.State["product_key"].(string); ok && strings.TrimSpace(v) != "" {
		shared[statex.SharedProductKey] = strings.TrimSpace(v)
	}

	sessionID := h.newID()
	if _, err := h.engine.StartConversation(ctx, userID, sessionID, shared); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("user_id", userID).Msg("create session failed")
		writeError(w, &requestError{status: http.StatusInternalServerError, message: MessageSystemError})
		return
	}

	log.Ctx(ctx).Info().Str("user_id", userID).Str("session_id", sessionID).Msg("session created")
	writeJSON(w, http.StatusOK, createSessionResponse{
		Success:   true,
		SessionID: sessionID,
		Message:   MessageSessionCreated,
	})
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var body sendMessageRequest
	decodeErr := decodeBody(w, r, &body)
	sessionID := strings.TrimSpace(body.SessionID)

	fail := func(rerr *requestError) {
		writeJSON(w, rerr.status, sendMessageResponse{Success: false, SessionID: sessionID, Error: rerr.message})
	}

	token, claims, rerr := h.authenticate(r)
	if rerr != nil {
		fail(rerr)
		return
	}
	if decodeErr != nil {
		fail(&requestError{status: http.StatusBadRequest, message: decodeErr.Error()})
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		fail(&requestError{status: http.StatusBadRequest, message: MessageMissingMessage})
		return
	}
	if sessionID == "" {
		fail(&requestError{status: http.StatusBadRequest, message: MessageMissingSession})
		return
	}
	userID := sessionOwner(claims)
	if userID == "" {
		fail(&requestError{status: http.StatusBadRequest, message: MessageInvalidUserID})
		return
	}

	release := h.queue.acquire(userID + "/" + sessionID)
	defer release()

	// A started run is not cancelled by the client going away; backend and
	// model calls carry their own timeouts.
	base := context.WithoutCancel(r.Context())
	ctx := log.Ctx(base).With().
		Str("user_id", userID).
		Str("session_id", sessionID).
		Logger().WithContext(base)

	if _, err := h.engine.Conversation(ctx, userID, sessionID); err != nil {
		if errors.Is(err, statex.ErrStateNotFound) {
			fail(&requestError{status: http.StatusNotFound, message: MessageSessionMissing})
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("load session failed")
		fail(&requestError{status: http.StatusInternalServerError, message: MessageSystemError})
		return
	}

	delta := map[string]any{
		statex.SharedToken:     token,
		statex.SharedUserID:    userID,
		statex.SharedSessionID: sessionID,
	}
	if key := strings.TrimSpace(body.ProductKey); key != "" {
		delta[statex.SharedProductKey] = key
	}

	out, err := h.engine.HandleMessage(ctx, orchestrator.Request{
		UserID:         userID,
		ConversationID: sessionID,
		Text:           body.Message,
		Delta:          delta,
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidMessage) || errors.Is(err, orchestrator.ErrInvalidSession) || errors.Is(err, statex.ErrInvalidKey) {
			fail(&requestError{status: http.StatusBadRequest, message: err.Error()})
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("handle message failed")
		fail(&requestError{status: http.StatusInternalServerError, message: MessageSystemError})
		return
	}

	if out.Response.IsError() {
		writeJSON(w, http.StatusOK, sendMessageResponse{Success: false, SessionID: sessionID, Error: out.Response.Error})
		return
	}
	writeJSON(w, http.StatusOK, sendMessageResponse{Success: true, Response: out.Response, SessionID: sessionID})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, rerr := h.authenticatedUser(r)
	if rerr != nil {
		writeError(w, rerr)
		return
	}
	sessionID := r.PathValue("id")

	conv, err := h.engine.Conversation(r.Context(), userID, sessionID)
	if err != nil {
		writeError(w, storeError(r.Context(), err, "get session"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"session_id":   sessionID,
		"session_data": redacted(conv),
	})
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, rerr := h.authenticatedUser(r)
	if rerr != nil {
		writeError(w, rerr)
		return
	}
	sessionID := r.PathValue("id")

	release := h.queue.acquire(userID + "/" + sessionID)
	defer release()

	if _, err := h.engine.Conversation(r.Context(), userID, sessionID); err != nil {
		writeError(w, storeError(r.Context(), err, "get session"))
		return
	}
	if err := h.engine.DeleteConversation(r.Context(), userID, sessionID); err != nil {
		writeError(w, storeError(r.Context(), err, "delete session"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Session %s deleted successfully", sessionID),
	})
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, rerr := h.authenticatedUser(r)
	if rerr != nil {
		writeError(w, rerr)
		return
	}

	ids, err := h.engine.ListConversations(r.Context(), userID)
	if err != nil {
		writeError(w, storeError(r.Context(), err, "list sessions"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"sessions": ids,
		"message":  fmt.Sprintf("Found %d sessions for user %s", len(ids), userID),
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", AgentName: h.agentName})
}

// authenticate checks that a bearer token is present, then verifies it.
func (h *Handler) authenticate(r *http.Request) (string, auth.Claims, *requestError) {
	token, err := auth.ExtractBearer(r)
	if err != nil {
		if errors.Is(err, auth.ErrMissingBearer) {
			return "", auth.Claims{}, &requestError{status: http.StatusUnauthorized, message: MessageMissingToken}
		}
		return "", auth.Claims{}, &requestError{status: http.StatusUnauthorized, message: MessageInvalidToken}
	}

	claims, err := h.verifier.Verify(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return "", auth.Claims{}, &requestError{status: http.StatusUnauthorized, message: MessageExpiredToken + ": " + err.Error()}
		}
		return "", auth.Claims{}, &requestError{status: http.StatusUnauthorized, message: MessageInvalidToken}
	}
	return token, claims, nil
}

func (h *Handler) authenticatedUser(r *http.Request) (string, *requestError) {
	_, claims, rerr := h.authenticate(r)
	if rerr != nil {
		return "", rerr
	}
	userID := sessionOwner(claims)
	if userID == "" {
		return "", &requestError{status: http.StatusBadRequest, message: MessageInvalidUserID}
	}
	return userID, nil
}

// sessionOwner is the user every session is keyed by: the userId claim of
// the verified token.
func sessionOwner(claims auth.Claims) string {
	return strings.TrimSpace(claims.UserID)
}

func storeError(ctx context.Context, err error, op string) *requestError {
	switch {
	case errors.Is(err, statex.ErrStateNotFound):
		return &requestError{status: http.StatusNotFound, message: MessageSessionMissing}
	case errors.Is(err, statex.ErrInvalidKey):
		return &requestError{status: http.StatusBadRequest, message: err.Error()}
	default:
		log.Ctx(ctx).Error().Err(err).Str("op", op).Msg("session store failed")
		return &requestError{status: http.StatusInternalServerError, message: MessageSystemError}
	}
}

// redacted drops the bearer token from the shared state before it leaves the
// process.
func redacted(conv *statex.ConversationState) *statex.ConversationState {
	if conv == nil {
		return nil
	}
	out := conv.Clone()
	delete(out.Shared, statex.SharedToken)
	return out
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, rerr *requestError) {
	writeJSON(w, rerr.status, errorResponse{Success: false, Error: rerr.message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
