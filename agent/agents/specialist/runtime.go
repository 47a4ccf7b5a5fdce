package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
	eventx "github.com/tanpawarit/Chative-Ecom-Support/agent/event"
	"github.com/tanpawarit/Chative-Ecom-Support/agent/history"
	statex "github.com/tanpawarit/Chative-Ecom-Support/agent/state"
	"github.com/tanpawarit/Chative-Ecom-Support/agent/tool"
	jsonschemax "github.com/tanpawarit/Chative-Ecom-Support/pkg/jsonschema"
)

const anonymousUser = "anonymous"

// structuredOutput is the JSON object a handler's model must answer with.
type structuredOutput interface {
	answer() string
	identifiers() []string
}

// grounding is what a prefetch step gathered for the answer step.
type grounding struct {
	// input replaces the raw query as the user message when set.
	input string
	// candidates are filtered to the identifiers the model picked and
	// returned as matched_products. Nil means the handler has none.
	candidates []map[string]any
	// fallbackIDs are used when the model lists no identifiers.
	fallbackIDs []string
	// done short-circuits the model call.
	done *contractx.HandlerResult
}

type handlerSpec struct {
	agentType     contractx.AgentType
	prompt        string
	outputSchema  string
	identifierKey string
	apology       string
	requireToken  bool
	withHistory   bool

	// tool and executor enable the tool planning step.
	tool     *schema.ToolInfo
	executor tool.Executor

	prefetch func(ctx context.Context, req contractx.HandlerRequest) (grounding, error)
	notFound func(req contractx.HandlerRequest) string
}

type runState struct {
	req    contractx.HandlerRequest
	conv   *statex.ConversationState
	vars   map[string]any
	events []eventx.Event
	direct string
	ground grounding
	result contractx.HandlerResult
}

type runtime[T structuredOutput] struct {
	def    handlerSpec
	store  statex.Store
	window int
	now    func() time.Time

	planRunner   compose.Runnable[map[string]any, *schema.Message]
	answerRunner compose.Runnable[map[string]any, *schema.Message]
	runner       compose.Runnable[contractx.HandlerRequest, contractx.HandlerResult]

	validator *jsonschemax.Validator
	parser    schema.MessageParser[T]
}

var _ contractx.Handler = (*runtime[orderOutput])(nil)

func newRuntime[T structuredOutput](
	ctx context.Context,
	def handlerSpec,
	chatModel einomodel.ToolCallingChatModel,
	store statex.Store,
	window int,
) (*runtime[T], error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is required for agent=%s", contractx.ErrValidation, def.agentType)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: handler store is required for agent=%s", contractx.ErrValidation, def.agentType)
	}
	if strings.TrimSpace(def.prompt) == "" {
		return nil, fmt.Errorf("%w: agent=%s", contractx.ErrPromptMissing, def.agentType)
	}

	validator, err := jsonschemax.New([]byte(def.outputSchema))
	if err != nil {
		return nil, fmt.Errorf("output schema for agent=%s: %w", def.agentType, err)
	}

	name := string(def.agentType)
	answerRunner, err := compileModelGraph(ctx, chatModel, def.prompt, "specialist."+name+".answer_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile answer graph: %v", contractx.ErrModelInvoke, err)
	}

	r := &runtime[T]{
		def:          def,
		store:        store,
		window:       window,
		now:          time.Now,
		answerRunner: answerRunner,
		validator:    validator,
		parser: schema.NewMessageJSONParser[T](&schema.MessageJSONParseConfig{
			ParseFrom: schema.MessageParseFromContent,
		}),
	}

	if def.tool != nil {
		if def.executor == nil {
			return nil, fmt.Errorf("%w: tool=%s has no executor", contractx.ErrValidation, def.tool.Name)
		}
		toolModel, err := chatModel.WithTools([]*schema.ToolInfo{def.tool})
		if err != nil {
			return nil, fmt.Errorf("%w: bind tools for agent=%s: %v", contractx.ErrModelInvoke, name, err)
		}
		r.planRunner, err = compileModelGraph(ctx, toolModel, def.prompt, "specialist."+name+".tool_planning_graph")
		if err != nil {
			return nil, fmt.Errorf("%w: compile tool planning graph: %v", contractx.ErrModelInvoke, err)
		}
	}

	r.runner, err = compileRuntimeGraph(ctx, def.agentType, runtimeSteps{
		prepare:  r.prepare,
		planTool: r.planTool,
		prefetch: r.runPrefetch,
		answer:   r.answer,
		remember: r.remember,
		useTool:  r.planRunner != nil,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return r, nil
}

// Answer never returns an error: failures become a structured result with a
// localized apology.
func (r *runtime[T]) Answer(ctx context.Context, req contractx.HandlerRequest) contractx.HandlerResult {
	logger := log.Ctx(ctx).With().
		Str("handler", string(r.def.agentType)).
		Str("session_id", req.SessionID).
		Logger()

	out, err := r.runner.Invoke(ctx, req)
	if err != nil {
		kind := classify(err)
		logger.Error().Err(err).Str("error_kind", string(kind)).Msg("handler failed")
		return contractx.Failure(kind, r.failureText(kind, req))
	}
	logger.Debug().Int("identifiers", len(out.Identifiers)).Msg("handler answered")
	return out
}

func (r *runtime[T]) failureText(kind contractx.ErrorKind, req contractx.HandlerRequest) string {
	switch kind {
	case contractx.ErrorNotFound:
		if r.def.notFound != nil {
			return r.def.notFound(req)
		}
	case contractx.ErrorNoResponse:
		return eventx.MessageNoResponse
	}
	return r.def.apology
}

func (r *runtime[T]) prepare(ctx context.Context, req contractx.HandlerRequest) (*runState, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, fmt.Errorf("%w: query is required", contractx.ErrValidation)
	}
	if r.def.requireToken && strings.TrimSpace(req.Token) == "" {
		return nil, contractx.ErrUnauthorized
	}

	key := statex.Key{
		App:          string(r.def.agentType),
		User:         firstNonBlank(req.UserID, anonymousUser),
		Conversation: firstNonBlank(req.SessionID, uuid.NewString()),
	}
	conv, err := statex.Ensure(ctx, r.store, key)
	if err != nil {
		return nil, fmt.Errorf("ensure handler conversation: %w", err)
	}

	return &runState{
		req:  req,
		conv: conv,
		vars: map[string]any{
			varInput:        req.Query,
			varDate:         r.now().Format("2006-01-02"),
			varHistory:      r.historyMessages(conv),
			varToolExchange: []*schema.Message{},
		},
	}, nil
}

func (r *runtime[T]) historyMessages(conv *statex.ConversationState) []*schema.Message {
	if !r.def.withHistory || conv == nil {
		return []*schema.Message{}
	}
	turns := history.Trim(conv.Turns, r.window)
	out := make([]*schema.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Kind {
		case statex.TurnUserMessage:
			out = append(out, schema.UserMessage(t.Text))
		case statex.TurnReasoningText:
			out = append(out, schema.AssistantMessage(t.Text, nil))
		}
	}
	return out
}

// planTool lets the tool-bound model plan one call. Only the first call is
// executed; a plain answer skips the tool entirely.
func (r *runtime[T]) planTool(ctx context.Context, st *runState) (*runState, error) {
	msg, err := r.planRunner.Invoke(ctx, st.vars)
	if err != nil {
		return nil, fmt.Errorf("%w: tool planning invoke: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: empty tool planning response", contractx.ErrNoResponse)
	}
	if len(msg.ToolCalls) == 0 {
		st.direct = msg.Content
		return st, nil
	}
	if len(msg.ToolCalls) > 1 {
		log.Ctx(ctx).Debug().
			Str("handler", string(r.def.agentType)).
			Int("dropped", len(msg.ToolCalls)-1).
			Msg("only the first tool call is executed")
	}

	call := msg.ToolCalls[0]
	reqs, err := toToolRequests([]schema.ToolCall{call})
	if err != nil {
		return nil, err
	}
	tr := reqs[0]
	if tr.Tool != r.def.tool.Name {
		return nil, fmt.Errorf("%w: tool=%s is not allowed for agent=%s", contractx.ErrSchemaViolation, tr.Tool, r.def.agentType)
	}

	st.events = append(st.events, eventx.DebugEvent{
		Author: string(r.def.agentType),
		Note:   "tool_call",
		Detail: map[string]any{"tool": tr.Tool, "call_id": tr.CallID, "arguments": tr.Args},
		At:     r.now(),
	})

	res, err := r.def.executor(ctx, st.req.Token, tr)
	if err != nil {
		return nil, fmt.Errorf("tool=%s: %w", tr.Tool, err)
	}

	var content any = res.Result
	if res.Error != "" {
		content = map[string]any{"error": res.Error}
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("%w: encode tool result: %v", contractx.ErrValidation, err)
	}

	st.events = append(st.events, eventx.DebugEvent{
		Author: string(r.def.agentType),
		Note:   "tool_result",
		Detail: map[string]any{"tool": tr.Tool, "call_id": tr.CallID, "error": res.Error, "result_bytes": len(raw)},
		At:     r.now(),
	})

	st.vars[varToolExchange] = []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{call}),
		schema.ToolMessage(string(raw), call.ID),
	}
	return st, nil
}

func (r *runtime[T]) runPrefetch(ctx context.Context, st *runState) (*runState, error) {
	if r.def.prefetch == nil {
		return st, nil
	}
	g, err := r.def.prefetch(ctx, st.req)
	if err != nil {
		return nil, err
	}
	st.ground = g
	if g.input != "" {
		st.vars[varInput] = g.input
	}
	return st, nil
}

// answer resolves the model's JSON through the same event resolver as the
// orchestrator, then validates and parses it.
func (r *runtime[T]) answer(ctx context.Context, st *runState) (*runState, error) {
	if st.ground.done != nil {
		st.result = *st.ground.done
		return st, nil
	}

	content := strings.TrimSpace(st.direct)
	if content == "" {
		msg, err := r.answerRunner.Invoke(ctx, st.vars)
		if err != nil {
			return nil, fmt.Errorf("%w: answer invoke: %v", contractx.ErrModelInvoke, err)
		}
		if msg != nil {
			content = msg.Content
		}
	}

	st.events = append(st.events, eventx.TextEvent{
		Author: string(r.def.agentType),
		Text:   content,
		Final:  true,
		At:     r.now(),
	})
	resp := eventx.Resolve(schema.StreamReaderFromArray(st.events))
	if resp.Kind != eventx.KindText {
		return nil, fmt.Errorf("%w: %s", contractx.ErrNoResponse, resp.Error)
	}

	raw := extractJSON(resp.Text)
	if err := r.validator.Validate([]byte(raw)); err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrSchemaViolation, err)
	}
	out, err := r.parser.Parse(ctx, schema.AssistantMessage(raw, nil))
	if err != nil {
		return nil, fmt.Errorf("%w: parse output: %v", contractx.ErrSchemaViolation, err)
	}

	text := strings.TrimSpace(out.answer())
	if text == "" {
		return nil, fmt.Errorf("%w: answer text is empty", contractx.ErrSchemaViolation)
	}
	ids := out.identifiers()
	if len(ids) == 0 {
		ids = st.ground.fallbackIDs
	}

	st.result = contractx.HandlerResult{
		Text:          text,
		IdentifierKey: r.def.identifierKey,
		Identifiers:   ids,
	}
	if st.ground.candidates != nil {
		st.result.Grounding = matchCandidates(st.ground.candidates, ids)
	}
	return st, nil
}

// remember appends the query and the answer to the handler conversation. A
// failed save is logged and does not change the answer.
func (r *runtime[T]) remember(ctx context.Context, st *runState) (contractx.HandlerResult, error) {
	now := r.now()
	st.conv.Append(
		statex.UserMessage(st.req.Query, now),
		statex.ReasoningText(st.result.Text, now),
	)
	st.conv.Touch(now)
	if err := r.store.Save(ctx, st.conv); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str("handler", string(r.def.agentType)).
			Str("conversation", st.conv.Key.String()).
			Msg("save handler conversation failed")
	}
	return st.result, nil
}

func toToolRequests(calls []schema.ToolCall) ([]contractx.ToolRequest, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	reqs := make([]contractx.ToolRequest, 0, len(calls))
	for _, call := range calls {
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
		}

		args := map[string]any{}
		rawArgs := strings.TrimSpace(call.Function.Arguments)
		if rawArgs != "" {
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				return nil, fmt.Errorf("%w: invalid tool args for tool=%s: %v", contractx.ErrSchemaViolation, name, err)
			}
		}

		reqs = append(reqs, contractx.ToolRequest{
			Tool:   name,
			CallID: call.ID,
			Args:   args,
		})
	}
	return reqs, nil
}

func matchCandidates(candidates []map[string]any, ids []string) []map[string]any {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]map[string]any, 0, len(ids))
	for _, c := range candidates {
		if _, ok := want[tool.ProductID(c)]; ok {
			out = append(out, c)
		}
	}
	return out
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
