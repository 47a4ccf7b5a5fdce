// Package event defines the events emitted during a reasoning run and the
// resolver that reduces them to one TerminalResponse.
package event

import "time"

// Event is emitted by a run in causal order. The set of implementations is closed.
type Event interface {
	IsFinal() bool
	Type() string
	Time() time.Time
	isEvent()
}

// DebugEvent carries intermediate output, such as a tool-call echo. It is never final.
type DebugEvent struct {
	Author string
	Note   string
	Detail map[string]any
	At     time.Time
}

func (DebugEvent) IsFinal() bool     { return false }
func (DebugEvent) Type() string      { return "debug" }
func (e DebugEvent) Time() time.Time { return e.At }
func (DebugEvent) isEvent()          {}

// CapabilityResultEvent carries a handler payload. SkipSummarization marks
// results that are returned to the caller without another reasoning pass.
type CapabilityResultEvent struct {
	Capability        string
	CallID            string
	Payload           map[string]any
	Final             bool
	SkipSummarization bool
	At                time.Time
}

func (e CapabilityResultEvent) IsFinal() bool   { return e.Final }
func (CapabilityResultEvent) Type() string      { return "capability_result" }
func (e CapabilityResultEvent) Time() time.Time { return e.At }
func (CapabilityResultEvent) isEvent()          {}

// TextEvent carries plain reasoning-engine text.
type TextEvent struct {
	Author string
	Text   string
	Final  bool
	At     time.Time
}

func (e TextEvent) IsFinal() bool   { return e.Final }
func (TextEvent) Type() string      { return "text" }
func (e TextEvent) Time() time.Time { return e.At }
func (TextEvent) isEvent()          {}

// PartsCount reports how many content parts an event carries.
func PartsCount(ev Event) int {
	switch e := ev.(type) {
	case CapabilityResultEvent:
		if parts, ok := resultParts(e.Payload); ok {
			return len(parts)
		}
		return 1
	case TextEvent:
		if e.Text == "" {
			return 0
		}
		return 1
	case DebugEvent:
		if len(e.Detail) == 0 && e.Note == "" {
			return 0
		}
		return 1
	default:
		return 0
	}
}
