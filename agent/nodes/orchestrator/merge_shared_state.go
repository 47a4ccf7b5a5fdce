package orchestratornode

import (
	"fmt"

	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
	statex "github.com/tanpawarit/Chative-Ecom-Support/agent/state"
)

// injectedKeys are the per-call values a caller may overwrite.
var injectedKeys = []string{
	statex.SharedToken,
	statex.SharedUserID,
	statex.SharedSessionID,
	statex.SharedProductKey,
}

func MergeSharedState(in *GraphState) (*GraphState, error) {
	if in == nil || in.Conv == nil {
		return nil, fmt.Errorf("%w: graph conversation is nil", contractx.ErrValidation)
	}

	delta := make(map[string]any, len(injectedKeys))
	for _, k := range injectedKeys {
		if v, ok := in.Delta[k]; ok && v != nil {
			delta[k] = v
		}
	}
	in.Conv.Merge(delta)
	return in, nil
}
