package orchestratornode

import (
	"errors"
	"strings"
	"time"

	eventx "github.com/tanpawarit/Chative-Ecom-Support/agent/event"
	statex "github.com/tanpawarit/Chative-Ecom-Support/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = errors.New("conversation id is empty")
)

type GraphInput struct {
	App            string
	UserID         string
	ConversationID string
	Text           string
	Delta          map[string]any

	// Observe sees every event the run emits.
	Observe func(eventx.Event)
}

type GraphOutput struct {
	Response eventx.TerminalResponse
	Events   []eventx.Event
}

// GraphState is threaded through every node of one run.
type GraphState struct {
	Key     statex.Key
	Text    string
	Delta   map[string]any
	Now     time.Time
	Observe func(eventx.Event)

	Conv    *statex.ConversationState
	History []statex.Turn

	// Turns are appended by this run and persisted after it.
	Turns    []statex.Turn
	Events   []eventx.Event
	Response eventx.TerminalResponse
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	conversationID := strings.TrimSpace(in.ConversationID)
	if conversationID == "" {
		return nil, ErrInvalidSession
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	key := statex.Key{
		App:          strings.TrimSpace(in.App),
		User:         strings.TrimSpace(in.UserID),
		Conversation: conversationID,
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}

	return &GraphState{
		Key:     key,
		Text:    text,
		Delta:   in.Delta,
		Now:     nowFn().UTC(),
		Observe: in.Observe,
	}, nil
}
