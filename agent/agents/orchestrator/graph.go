package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	nodex "github.com/tanpawarit/Chative-Ecom-Support/agent/nodes/orchestrator"
)

func (o *Orchestrator) compileHandleMessageGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("ensure_conversation",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.EnsureConversation(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node ensure_conversation: %w", err)
	}

	if err := graph.AddLambdaNode("merge_shared_state",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.MergeSharedState(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node merge_shared_state: %w", err)
	}

	if err := graph.AddLambdaNode("trim_history",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.TrimHistory(in, o.historyLength)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node trim_history: %w", err)
	}

	if err := graph.AddLambdaNode("run_capabilities",
		compose.InvokableLambda(o.RunCapabilities),
	); err != nil {
		return nil, fmt.Errorf("add node run_capabilities: %w", err)
	}

	if err := graph.AddLambdaNode("persist_conversation",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.PersistConversation(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node persist_conversation: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_response",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeResponse(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_response: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "ensure_conversation"},
		{"ensure_conversation", "merge_shared_state"},
		{"merge_shared_state", "trim_history"},
		{"trim_history", "run_capabilities"},
		{"run_capabilities", "persist_conversation"},
		{"persist_conversation", "finalize_response"},
		{"finalize_response", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.handle_message"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
