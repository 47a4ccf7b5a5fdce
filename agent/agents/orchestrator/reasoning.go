package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
	eventx "github.com/tanpawarit/Chative-Ecom-Support/agent/event"
	nodex "github.com/tanpawarit/Chative-Ecom-Support/agent/nodes/orchestrator"
	statex "github.com/tanpawarit/Chative-Ecom-Support/agent/state"
)

const (
	varLang     = "lang"
	varUserInfo = "user_info"
	varDate     = "date"
	varHistory  = "history"
	varInput    = "input"

	defaultLang = "VN"
	author      = "orchestrator"
)

// Phase is the run state of one reasoning turn.
type Phase int

const (
	PhaseRunning Phase = iota
	PhaseCapabilityPending
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "RUNNING"
	case PhaseCapabilityPending:
		return "CAPABILITY_PENDING"
	case PhaseTerminal:
		return "TERMINAL"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

func compileReasoningGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	instruction string,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(instruction),
		schema.MessagesPlaceholder(varHistory, true),
		schema.UserMessage("{"+varInput+"}"),
	)

	graph := compose.NewGraph[map[string]any, *schema.Message]()
	if err := graph.AddChatTemplateNode("instruction", template); err != nil {
		return nil, fmt.Errorf("add instruction node: %w", err)
	}
	if err := graph.AddChatModelNode("reasoning", chatModel); err != nil {
		return nil, fmt.Errorf("add reasoning node: %w", err)
	}
	for _, e := range [][2]string{
		{compose.START, "instruction"},
		{"instruction", "reasoning"},
		{"reasoning", compose.END},
	} {
		if err := graph.AddEdge(e[0], e[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", e[0], e[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.reasoning"))
	if err != nil {
		return nil, fmt.Errorf("compile reasoning graph: %w", err)
	}
	return runner, nil
}

func (o *Orchestrator) reasoningVars(in *nodex.GraphState) map[string]any {
	lang := defaultLang
	if v, ok := in.Conv.SharedString(statex.SharedLang); ok {
		lang = v
	}
	return map[string]any{
		varLang:     lang,
		varUserInfo: renderUserInfo(in.Conv.Shared[statex.SharedUserInfo]),
		varDate:     in.Now.Format("2006-01-02"),
		varHistory:  nodex.HistoryMessages(in.History),
		varInput:    in.Text,
	}
}

func renderUserInfo(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(raw)
	}
}

// RunCapabilities drives one reasoning turn and resolves its events. The
// producer writes into a pipe; the resolver drains it on this goroutine.
func (o *Orchestrator) RunCapabilities(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
	if in == nil || in.Conv == nil {
		return nil, fmt.Errorf("%w: graph conversation is nil", contractx.ErrValidation)
	}

	sr, sw := schema.Pipe[eventx.Event](8)
	var pc panics.Catcher
	go func() {
		defer sw.Close()
		pc.Try(func() {
			o.reason(ctx, in, func(ev eventx.Event) {
				sw.Send(ev, nil)
			})
		})
	}()

	in.Response = eventx.Resolve(sr, eventx.WithObserver(func(ev eventx.Event) {
		in.Events = append(in.Events, ev)
		if in.Observe != nil {
			in.Observe(ev)
		}
	}))
	if err := pc.Recovered().AsError(); err != nil {
		return nil, fmt.Errorf("reasoning run panicked: %w", err)
	}
	return in, nil
}

func (o *Orchestrator) reason(ctx context.Context, in *nodex.GraphState, emit func(eventx.Event)) {
	logger := log.Ctx(ctx).With().
		Str("session_id", in.Key.Conversation).
		Str("user_id", in.Key.User).
		Logger()

	phase := PhaseRunning
	transition := func(next Phase) {
		logger.Debug().Stringer("from", phase).Stringer("to", next).Msg("run phase")
		phase = next
	}

	msg, err := o.reasoner.Invoke(ctx, o.reasoningVars(in))
	if err != nil {
		logger.Error().Err(err).Msg("reasoning engine failed")
		transition(PhaseTerminal)
		return
	}
	if msg == nil {
		transition(PhaseTerminal)
		return
	}

	text := strings.TrimSpace(msg.Content)
	if len(msg.ToolCalls) == 0 {
		if text != "" {
			in.Turns = append(in.Turns, statex.ReasoningText(text, o.now()))
		}
		emit(eventx.TextEvent{Author: author, Text: text, Final: true, At: o.now()})
		transition(PhaseTerminal)
		return
	}

	if text != "" {
		in.Turns = append(in.Turns, statex.ReasoningText(text, o.now()))
	}
	names := make([]string, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		names = append(names, call.Function.Name)
	}
	emit(eventx.DebugEvent{
		Author: author,
		Note:   "capability_calls",
		Detail: map[string]any{"capabilities": names},
		At:     o.now(),
	})
	transition(PhaseCapabilityPending)

	inv := invocationFrom(in.Conv)
	for _, call := range msg.ToolCalls {
		callID := call.ID
		if callID == "" {
			callID = o.newID()
		}
		args, payload := o.invoke(ctx, inv, call)
		in.Turns = append(in.Turns,
			statex.CapabilityInvocation(call.Function.Name, callID, args, o.now()),
			statex.CapabilityResult(call.Function.Name, callID, payload, o.now()),
		)
		emit(eventx.CapabilityResultEvent{
			Capability:        call.Function.Name,
			CallID:            callID,
			Payload:           payload,
			Final:             true,
			SkipSummarization: true,
			At:                o.now(),
		})
		logger.Info().
			Str("capability", call.Function.Name).
			Str("call_id", callID).
			Bool("failed", payload["error"] != nil).
			Msg("capability answered")
	}
	transition(PhaseTerminal)
}

// invoke dispatches one call. Argument and lookup problems become error
// payloads.
func (o *Orchestrator) invoke(ctx context.Context, inv invocation, call schema.ToolCall) (map[string]any, map[string]any) {
	args := map[string]any{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return args, errorPayload(fmt.Sprintf("invalid arguments for %s: %v", call.Function.Name, err))
		}
	}

	c, err := contractx.ParseCapability(call.Function.Name)
	if err != nil {
		return args, errorPayload(err.Error())
	}
	fn, ok := o.dispatch[c]
	if !ok {
		return args, errorPayload(fmt.Sprintf("%v: %q", contractx.ErrUnknownCapability, c))
	}

	normalizeArgs(c, args)
	if err := validateArgs(o.validators, c, args); err != nil {
		return args, errorPayload(err.Error())
	}
	return args, fn(ctx, inv, args)
}
