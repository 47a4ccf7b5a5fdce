package orchestratornode

import (
	"fmt"

	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
)

func FinalizeResponse(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.Response.Kind == "" {
		return GraphOutput{}, fmt.Errorf("%w: run produced no response", contractx.ErrValidation)
	}
	return GraphOutput{Response: in.Response, Events: in.Events}, nil
}
