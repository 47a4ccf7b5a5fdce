package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
)

const (
	varInput        = "input"
	varDate         = "date"
	varHistory      = "history"
	varToolExchange = "tool_exchange"
)

// newHandlerTemplate renders system prompt, prior handler turns, the current
// input and, after a tool call, the call and its result.
func newHandlerTemplate(systemPrompt string) einoprompt.ChatTemplate {
	return einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.MessagesPlaceholder(varHistory, true),
		schema.UserMessage("{"+varInput+"}"),
		schema.MessagesPlaceholder(varToolExchange, true),
	)
}

// compileModelGraph wires prompt -> model. It serves both the tool planning
// step (tool-bound model) and the answer step.
func compileModelGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	graphName string,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	graph := compose.NewGraph[map[string]any, *schema.Message]()
	if err := graph.AddChatTemplateNode("prompt", newHandlerTemplate(systemPrompt)); err != nil {
		return nil, fmt.Errorf("add prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", graphName, err)
	}
	return runner, nil
}

// runtimeSteps are the node bodies of a handler run.
type runtimeSteps struct {
	prepare  func(context.Context, contractx.HandlerRequest) (*runState, error)
	planTool func(context.Context, *runState) (*runState, error)
	prefetch func(context.Context, *runState) (*runState, error)
	answer   func(context.Context, *runState) (*runState, error)
	remember func(context.Context, *runState) (contractx.HandlerResult, error)
	useTool  bool
}

func compileRuntimeGraph(
	ctx context.Context,
	agentType contractx.AgentType,
	steps runtimeSteps,
) (compose.Runnable[contractx.HandlerRequest, contractx.HandlerResult], error) {
	graph := compose.NewGraph[contractx.HandlerRequest, contractx.HandlerResult]()

	if err := graph.AddLambdaNode("prepare", compose.InvokableLambda(steps.prepare)); err != nil {
		return nil, fmt.Errorf("add runtime prepare node: %w", err)
	}
	if err := graph.AddLambdaNode("tool_path", compose.InvokableLambda(steps.planTool)); err != nil {
		return nil, fmt.Errorf("add runtime tool node: %w", err)
	}
	if err := graph.AddLambdaNode("prefetch_path", compose.InvokableLambda(steps.prefetch)); err != nil {
		return nil, fmt.Errorf("add runtime prefetch node: %w", err)
	}
	if err := graph.AddLambdaNode("answer", compose.InvokableLambda(steps.answer)); err != nil {
		return nil, fmt.Errorf("add runtime answer node: %w", err)
	}
	if err := graph.AddLambdaNode("remember", compose.InvokableLambda(steps.remember)); err != nil {
		return nil, fmt.Errorf("add runtime remember node: %w", err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, in *runState) (string, error) {
			if in == nil {
				return "", fmt.Errorf("%w: handler run state is nil", contractx.ErrValidation)
			}
			if steps.useTool {
				return "tool_path", nil
			}
			return "prefetch_path", nil
		},
		map[string]bool{
			"tool_path":     true,
			"prefetch_path": true,
		},
	)
	if err := graph.AddBranch("prepare", branch); err != nil {
		return nil, fmt.Errorf("add runtime branch: %w", err)
	}

	edges := [][2]string{
		{compose.START, "prepare"},
		{"tool_path", "answer"},
		{"prefetch_path", "answer"},
		{"answer", "remember"},
		{"remember", compose.END},
	}
	for _, e := range edges {
		if err := graph.AddEdge(e[0], e[1]); err != nil {
			return nil, fmt.Errorf("add runtime edge %s->%s: %w", e[0], e[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("specialist."+string(agentType)+".runtime_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile specialist runtime graph: %w", err)
	}
	return runner, nil
}
