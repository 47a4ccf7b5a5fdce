package event

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"
)

const (
	MessageMissingPartText = "Lỗi không lấy được câu trả lời từ Agent"
	MessageNoContent       = "Không nhận được kết quả trả về."
	MessageNoResponse      = "Không nhận được phản hồi từ agent"
)

type State int

const (
	Scanning State = iota
	EmittedDebug
	Resolved
	Exhausted
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "SCANNING"
	case EmittedDebug:
		return "EMITTED_DEBUG"
	case Resolved:
		return "RESOLVED"
	case Exhausted:
		return "EXHAUSTED"
	default:
		return "UNKNOWN"
	}
}

type Option func(*Resolver)

// WithObserver registers fn to see every event, including those after resolution.
func WithObserver(fn func(Event)) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.observers = append(r.observers, fn)
		}
	}
}

// Resolver reduces an event stream to one TerminalResponse. The first final
// event that matches a rule wins; later events are only observed.
type Resolver struct {
	state     State
	resp      TerminalResponse
	observers []func(Event)
	broken    error
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{state: Scanning}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Resolver) State() State {
	return r.state
}

// Err reports the receive error that cut the stream short, if any.
func (r *Resolver) Err() error {
	return r.broken
}

func (r *Resolver) Feed(ev Event) {
	if ev == nil {
		return
	}
	for _, fn := range r.observers {
		fn(ev)
	}
	if r.state == Resolved || r.state == Exhausted {
		return
	}

	if !ev.IsFinal() {
		r.state = EmittedDebug
		return
	}

	r.resp = resolveFinal(ev)
	r.state = Resolved
}

// Finish closes the stream and returns the resolution.
func (r *Resolver) Finish() TerminalResponse {
	if r.state != Resolved {
		r.state = Exhausted
		r.resp = Error(MessageNoResponse)
	}
	return r.resp
}

// Resolve drains sr with a fresh Resolver.
func Resolve(sr *schema.StreamReader[Event], opts ...Option) TerminalResponse {
	return NewResolver(opts...).Drain(sr)
}

// Drain feeds every event of sr and returns the resolution. A receive error
// ends the stream and is reported by Err.
func (r *Resolver) Drain(sr *schema.StreamReader[Event]) TerminalResponse {
	if sr == nil {
		return r.Finish()
	}
	defer sr.Close()

	for {
		ev, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.broken = err
			break
		}
		r.Feed(ev)
	}
	return r.Finish()
}

func resolveFinal(ev Event) TerminalResponse {
	switch e := ev.(type) {
	case CapabilityResultEvent:
		if resp, ok := resolvePayload(e.Payload); ok {
			return resp
		}
	case TextEvent:
		if strings.TrimSpace(e.Text) != "" {
			return Text(e.Text, nil)
		}
	}
	return Error(MessageNoContent)
}

func resolvePayload(payload map[string]any) (TerminalResponse, bool) {
	if text, ok := payload["text"].(string); ok {
		extra := make(map[string]any, len(payload))
		for k, v := range payload {
			if k != "text" {
				extra[k] = v
			}
		}
		return Text(text, extra), true
	}

	parts, ok := resultParts(payload)
	if !ok || len(parts) == 0 {
		return TerminalResponse{}, false
	}

	first := parts[0]
	switch first.Kind {
	case "text":
		text := first.Text
		if text == "" {
			text = MessageMissingPartText
		}
		return Text(text, nil), true
	case "file":
		files := make([]FileDescriptor, 0, len(parts))
		for _, p := range parts {
			if p.File != nil {
				files = append(files, *p.File)
			}
		}
		return FileReference(files, parts), true
	case "data":
		return StructuredData(parts), true
	case "form":
		if first.Form != nil {
			return Form(*first.Form), true
		}
	}
	return TerminalResponse{}, false
}

func resultParts(payload map[string]any) ([]Part, bool) {
	raw, ok := payload["result"]
	if !ok || raw == nil {
		return nil, false
	}
	if parts, ok := raw.([]Part); ok {
		return parts, true
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, false
	}
	var parts []Part
	if err := json.Unmarshal(encoded, &parts); err != nil {
		return nil, false
	}
	return parts, true
}
