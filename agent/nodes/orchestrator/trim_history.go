package orchestratornode

import (
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
	"github.com/tanpawarit/Chative-Ecom-Support/agent/history"
	statex "github.com/tanpawarit/Chative-Ecom-Support/agent/state"
)

func TrimHistory(in *GraphState, window int) (*GraphState, error) {
	if in == nil || in.Conv == nil {
		return nil, fmt.Errorf("%w: graph conversation is nil", contractx.ErrValidation)
	}
	in.History = history.Trim(in.Conv.Turns, window)
	return in, nil
}

// HistoryMessages renders turns as chat messages. Consecutive invocations
// are folded into one assistant message so each tool message follows its call.
func HistoryMessages(turns []statex.Turn) []*schema.Message {
	out := make([]*schema.Message, 0, len(turns))
	var pending []schema.ToolCall

	flush := func() {
		if len(pending) > 0 {
			out = append(out, schema.AssistantMessage("", pending))
			pending = nil
		}
	}

	for _, t := range turns {
		switch t.Kind {
		case statex.TurnUserMessage:
			flush()
			out = append(out, schema.UserMessage(t.Text))
		case statex.TurnReasoningText:
			flush()
			out = append(out, schema.AssistantMessage(t.Text, nil))
		case statex.TurnCapabilityInvocation:
			args, err := json.Marshal(t.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			pending = append(pending, schema.ToolCall{
				ID:   t.CallID,
				Type: "function",
				Function: schema.FunctionCall{
					Name:      t.Name,
					Arguments: string(args),
				},
			})
		case statex.TurnCapabilityResult:
			flush()
			raw, err := json.Marshal(t.Payload)
			if err != nil {
				raw = []byte("{}")
			}
			out = append(out, schema.ToolMessage(string(raw), t.CallID))
		}
	}
	flush()
	return out
}
