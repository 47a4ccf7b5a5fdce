package state

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TurnKind tags the variant carried by a Turn.
type TurnKind string

const (
	TurnUserMessage          TurnKind = "user_message"
	TurnReasoningText        TurnKind = "reasoning_text"
	TurnCapabilityInvocation TurnKind = "capability_invocation"
	TurnCapabilityResult     TurnKind = "capability_result"
)

// Shared state keys injected into every delegated call.
const (
	SharedToken      = "token"
	SharedUserID     = "user_id"
	SharedSessionID  = "session_id"
	SharedProductKey = "product_key"
	SharedLang       = "lang"
	SharedUserInfo   = "user_info"
)

// Turn is one immutable entry of a conversation. Which fields are set depends on Kind.
type Turn struct {
	Kind      TurnKind       `json:"kind"`
	Text      string         `json:"text,omitempty"`
	Name      string         `json:"name,omitempty"`
	CallID    string         `json:"call_id,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	At        time.Time      `json:"at"`
}

func UserMessage(text string, at time.Time) Turn {
	return Turn{Kind: TurnUserMessage, Text: text, At: at.UTC()}
}

func ReasoningText(text string, at time.Time) Turn {
	return Turn{Kind: TurnReasoningText, Text: text, At: at.UTC()}
}

func CapabilityInvocation(name, callID string, args map[string]any, at time.Time) Turn {
	return Turn{Kind: TurnCapabilityInvocation, Name: name, CallID: callID, Arguments: args, At: at.UTC()}
}

func CapabilityResult(name, callID string, payload map[string]any, at time.Time) Turn {
	return Turn{Kind: TurnCapabilityResult, Name: name, CallID: callID, Payload: payload, At: at.UTC()}
}

// Key addresses a conversation. ConversationID is unique within (App, User).
type Key struct {
	App          string `json:"app_name"`
	User         string `json:"user_id"`
	Conversation string `json:"conversation_id"`
}

func (k Key) Validate() error {
	if strings.TrimSpace(k.App) == "" {
		return fmt.Errorf("%w: app name is empty", ErrInvalidKey)
	}
	if strings.TrimSpace(k.User) == "" {
		return fmt.Errorf("%w: user id is empty", ErrInvalidKey)
	}
	if strings.TrimSpace(k.Conversation) == "" {
		return fmt.Errorf("%w: conversation id is empty", ErrInvalidKey)
	}
	return nil
}

func (k Key) String() string {
	return k.App + ":" + k.User + ":" + k.Conversation
}

type ConversationState struct {
	Key       Key            `json:"key"`
	Turns     []Turn         `json:"turns"`
	Shared    map[string]any `json:"shared"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Version   int64          `json:"version"`
}

func NewConversationState(key Key, shared map[string]any, now time.Time) *ConversationState {
	st := &ConversationState{
		Key:       key,
		Turns:     []Turn{},
		Shared:    map[string]any{},
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
		Version:   1,
	}
	for k, v := range shared {
		st.Shared[k] = v
	}
	return st
}

func (s *ConversationState) Validate() error {
	if s == nil {
		return ErrNilConversationState
	}
	if err := s.Key.Validate(); err != nil {
		return err
	}
	for i, t := range s.Turns {
		switch t.Kind {
		case TurnUserMessage, TurnReasoningText, TurnCapabilityInvocation, TurnCapabilityResult:
		default:
			return fmt.Errorf("turn %d has unknown kind %q", i, t.Kind)
		}
	}
	return nil
}

// Append adds turns in causal order.
func (s *ConversationState) Append(turns ...Turn) {
	s.Turns = append(s.Turns, turns...)
}

// Merge copies delta into the shared state. Nil values and empty strings are skipped.
func (s *ConversationState) Merge(delta map[string]any) {
	if s.Shared == nil {
		s.Shared = map[string]any{}
	}
	for k, v := range delta {
		if v == nil {
			continue
		}
		if str, ok := v.(string); ok && strings.TrimSpace(str) == "" {
			continue
		}
		s.Shared[k] = v
	}
}

// SharedString returns the shared value under key when it is a non-blank string.
func (s *ConversationState) SharedString(key string) (string, bool) {
	if s == nil || s.Shared == nil {
		return "", false
	}
	v, ok := s.Shared[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func (s *ConversationState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// Clone returns a deep copy so callers never share maps with a store.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		cp := *s
		cp.Turns = append([]Turn(nil), s.Turns...)
		return &cp
	}
	var out ConversationState
	if err := json.Unmarshal(raw, &out); err != nil {
		cp := *s
		return &cp
	}
	return &out
}
