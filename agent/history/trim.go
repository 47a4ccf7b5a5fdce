// Package history bounds the conversation context sent to a reasoning step.
package history

import (
	statex "github.com/tanpawarit/Chative-Ecom-Support/agent/state"
)

// Unbounded disables windowing.
const Unbounded = -1

// Trim keeps the suffix of turns that starts at the maxUserTurns-th user
// message from the end, so an invocation is never separated from its result.
// Bulky media results are replaced by a short stub. The input is not modified.
func Trim(turns []statex.Turn, maxUserTurns int) []statex.Turn {
	start := 0
	switch {
	case maxUserTurns == 0:
		return []statex.Turn{}
	case maxUserTurns > 0:
		seen := 0
		for i := len(turns) - 1; i >= 0; i-- {
			if turns[i].Kind != statex.TurnUserMessage {
				continue
			}
			seen++
			if seen == maxUserTurns {
				start = i
				break
			}
		}
		if seen < maxUserTurns {
			start = 0
		}
	}

	out := make([]statex.Turn, 0, len(turns)-start)
	for _, t := range turns[start:] {
		if t.Kind == statex.TurnCapabilityResult && isBulkyMedia(t.Payload) {
			t.Payload = stubPayload(t.Payload)
		}
		out = append(out, t)
	}
	return out
}

func isBulkyMedia(payload map[string]any) bool {
	first, ok := firstResultPart(payload)
	if !ok {
		return false
	}
	kind, _ := first["kind"].(string)
	return kind == "data" || kind == "image"
}

func stubPayload(payload map[string]any) map[string]any {
	if msg, ok := payload["message"].(string); ok {
		return map[string]any{"message": msg}
	}
	if text, ok := payload["text"].(string); ok {
		return map[string]any{"message": text}
	}
	if first, ok := firstResultPart(payload); ok {
		if text, ok := first["text"].(string); ok {
			return map[string]any{"message": text}
		}
		if data, ok := first["data"].(map[string]any); ok {
			return map[string]any{"message": data["message"]}
		}
	}
	return map[string]any{"message": nil}
}

func firstResultPart(payload map[string]any) (map[string]any, bool) {
	switch parts := payload["result"].(type) {
	case []any:
		if len(parts) == 0 {
			return nil, false
		}
		first, ok := parts[0].(map[string]any)
		return first, ok
	case []map[string]any:
		if len(parts) == 0 {
			return nil, false
		}
		return parts[0], true
	default:
		return nil, false
	}
}
