package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
	statex "github.com/tanpawarit/Chative-Ecom-Support/agent/state"
)

func EnsureConversation(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	conv, err := statex.Ensure(ctx, store, in.Key)
	if err != nil {
		return nil, fmt.Errorf("ensure conversation %s: %w", in.Key, err)
	}
	in.Conv = conv
	return in, nil
}
