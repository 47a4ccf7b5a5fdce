package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/Chative-Ecom-Support/agent/auditlog"
	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
	eventx "github.com/tanpawarit/Chative-Ecom-Support/agent/event"
	nodex "github.com/tanpawarit/Chative-Ecom-Support/agent/nodes/orchestrator"
	promptx "github.com/tanpawarit/Chative-Ecom-Support/agent/prompt"
	statex "github.com/tanpawarit/Chative-Ecom-Support/agent/state"
	"github.com/tanpawarit/Chative-Ecom-Support/agent/tool"
	jsonschemax "github.com/tanpawarit/Chative-Ecom-Support/pkg/jsonschema"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
)

type Config struct {
	App           string
	HistoryLength int
	// Instruction overrides the embedded root prompt.
	Instruction string
}

// Request is one user message addressed to a conversation. Delta carries the
// per-call shared values (token, user_id, session_id, product_key).
type Request struct {
	App            string
	UserID         string
	ConversationID string
	Text           string
	Delta          map[string]any
}

type Outcome struct {
	Response eventx.TerminalResponse
	Events   []eventx.Event
}

type Orchestrator struct {
	store    statex.Store
	registry contractx.Registry
	audit    *auditlog.Logger

	reasoner    compose.Runnable[map[string]any, *schema.Message]
	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]
	dispatch    map[contractx.Capability]capabilityFunc
	validators  map[contractx.Capability]*jsonschemax.Validator

	app           string
	historyLength int

	now   func() time.Time
	newID func() string
}

// New builds the orchestrator. audit may be nil.
func New(
	ctx context.Context,
	store statex.Store,
	registry contractx.Registry,
	chatModel einomodel.ToolCallingChatModel,
	audit *auditlog.Logger,
	cfg Config,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if registry == nil {
		return nil, errors.New("handler registry is required")
	}
	if chatModel == nil {
		return nil, errors.New("reasoning model is required")
	}

	instruction := strings.TrimSpace(cfg.Instruction)
	if instruction == "" {
		p, err := promptx.LoadPromptSet().For(contractx.AgentTypeOrchestrator)
		if err != nil {
			return nil, err
		}
		instruction = p
	}

	app := strings.TrimSpace(cfg.App)
	if app == "" {
		app = "Host_Agent"
	}

	infos := tool.CapabilityInfos()
	dispatch, err := buildDispatch(registry, infos)
	if err != nil {
		return nil, err
	}
	validators, err := tool.CapabilityValidators()
	if err != nil {
		return nil, err
	}

	toolModel, err := chatModel.WithTools(infos)
	if err != nil {
		return nil, fmt.Errorf("%w: bind capabilities: %v", contractx.ErrModelInvoke, err)
	}
	reasoner, err := compileReasoningGraph(ctx, toolModel, instruction)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		store:         store,
		registry:      registry,
		audit:         audit,
		reasoner:      reasoner,
		dispatch:      dispatch,
		validators:    validators,
		app:           app,
		historyLength: cfg.HistoryLength,
		now:           time.Now,
		newID:         uuid.NewString,
	}

	graphRunner, err := o.compileHandleMessageGraph(ctx)
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	log.Debug().Strs("capabilities", capabilityNames(dispatch)).Str("app", app).Msg("orchestrator ready")
	return o, nil
}

func (o *Orchestrator) App() string {
	return o.app
}

// HandleMessage runs one turn. Handler failures are part of the response;
// the error is only set for invalid input or a store failure. Every call is
// recorded by the interaction logger.
func (o *Orchestrator) HandleMessage(ctx context.Context, req Request) (Outcome, error) {
	app := strings.TrimSpace(req.App)
	if app == "" {
		app = o.app
	}
	rec := auditlog.NewRecorder(req.UserID, req.ConversationID, req.Text)

	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		App:            app,
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Text:           req.Text,
		Delta:          req.Delta,
		Observe:        rec.Observe,
	})

	resp := out.Response
	if err != nil {
		resp = eventx.Error(err.Error())
	}
	o.audit.Record(rec.Finish(resp, err))

	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Response: out.Response, Events: out.Events}, nil
}

// Conversation returns the stored conversation of a user.
func (o *Orchestrator) Conversation(ctx context.Context, userID, conversationID string) (*statex.ConversationState, error) {
	return o.store.Get(ctx, o.key(userID, conversationID))
}

// StartConversation creates a conversation seeded with shared state.
func (o *Orchestrator) StartConversation(ctx context.Context, userID, conversationID string, shared map[string]any) (*statex.ConversationState, error) {
	return o.store.Create(ctx, o.key(userID, conversationID), shared)
}

func (o *Orchestrator) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	return o.store.Delete(ctx, o.key(userID, conversationID))
}

func (o *Orchestrator) ListConversations(ctx context.Context, userID string) ([]string, error) {
	return o.store.List(ctx, o.app, userID)
}

func (o *Orchestrator) key(userID, conversationID string) statex.Key {
	return statex.Key{App: o.app, User: userID, Conversation: conversationID}
}
