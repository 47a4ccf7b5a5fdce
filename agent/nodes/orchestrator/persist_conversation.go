package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
	statex "github.com/tanpawarit/Chative-Ecom-Support/agent/state"
)

// PersistConversation appends the run's turns after the user message and
// saves the conversation.
func PersistConversation(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
) (*GraphState, error) {
	if in == nil || in.Conv == nil {
		return nil, fmt.Errorf("%w: graph conversation is nil", contractx.ErrValidation)
	}

	in.Conv.Append(statex.UserMessage(in.Text, in.Now))
	in.Conv.Append(in.Turns...)
	in.Conv.Touch(in.Now)
	if err := in.Conv.Validate(); err != nil {
		return nil, fmt.Errorf("state validation failed: %w", err)
	}
	if err := store.Save(ctx, in.Conv); err != nil {
		return nil, fmt.Errorf("save conversation %s: %w", in.Key, err)
	}
	return in, nil
}
