package event

import (
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
)

var at = time.Date(2025, 11, 10, 8, 0, 0, 0, time.UTC)

func TestResolveCapabilityTextPayloadKeepsExtraFields(t *testing.T) {
	t.Parallel()

	events := []Event{
		DebugEvent{Author: "root", Note: "tool_call", At: at},
		CapabilityResultEvent{
			Capability: "order",
			Payload:    map[string]any{"text": "Bạn có 2 đơn", "order_ids": []string{"o1", "o2"}},
			Final:      true,
			At:         at,
		},
	}

	got := Resolve(schema.StreamReaderFromArray(events))
	if got.Kind != KindText || got.Text != "Bạn có 2 đơn" {
		t.Fatalf("Resolve() = %+v, want Text", got)
	}
	if ids, ok := got.Extra["order_ids"].([]string); !ok || len(ids) != 2 {
		t.Fatalf("Extra[order_ids] = %#v", got.Extra["order_ids"])
	}
	if got.Payload()["text"] != "Bạn có 2 đơn" {
		t.Fatalf("Payload() = %#v", got.Payload())
	}
}

func TestResolveResultKinds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		payload map[string]any
		want    Kind
		text    string
	}{
		{
			name:    "text part",
			payload: map[string]any{"result": []any{map[string]any{"kind": "text", "text": "xin chào"}}},
			want:    KindText,
			text:    "xin chào",
		},
		{
			name:    "text part without text",
			payload: map[string]any{"result": []any{map[string]any{"kind": "text"}}},
			want:    KindText,
			text:    MessageMissingPartText,
		},
		{
			name: "file part",
			payload: map[string]any{"result": []any{map[string]any{
				"kind": "file",
				"file": map[string]any{"name": "invoice.pdf", "mimeType": "application/pdf", "uri": "https://x/invoice.pdf"},
			}}},
			want: KindFileReference,
		},
		{
			name:    "data part",
			payload: map[string]any{"result": []any{map[string]any{"kind": "data", "data": map[string]any{"a": 1}}}},
			want:    KindStructuredData,
		},
		{
			name: "form part",
			payload: map[string]any{"result": []Part{{
				Kind: "form",
				Form: &FormSpec{Fields: map[string]any{"category": "BUG"}, SubmitTarget: "complaint_page", Message: "cảm ơn"},
			}}},
			want: KindForm,
		},
		{
			name:    "no text and no result",
			payload: map[string]any{"error": "boom"},
			want:    KindError,
			text:    MessageNoContent,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := Resolve(schema.StreamReaderFromArray([]Event{
				CapabilityResultEvent{Capability: "x", Payload: tc.payload, Final: true, At: at},
			}))
			if got.Kind != tc.want {
				t.Fatalf("Kind = %s, want %s (%+v)", got.Kind, tc.want, got)
			}
			switch tc.want {
			case KindText:
				if got.Text != tc.text {
					t.Fatalf("Text = %q, want %q", got.Text, tc.text)
				}
			case KindError:
				if got.Error != tc.text {
					t.Fatalf("Error = %q, want %q", got.Error, tc.text)
				}
			case KindFileReference:
				if len(got.Files) != 1 || got.Files[0].Name != "invoice.pdf" {
					t.Fatalf("Files = %+v", got.Files)
				}
			}
		})
	}
}

func TestResolveFirstFinalEventWins(t *testing.T) {
	t.Parallel()

	var seen int
	got := Resolve(schema.StreamReaderFromArray([]Event{
		TextEvent{Text: "first", Final: true, At: at},
		TextEvent{Text: "second", Final: true, At: at},
	}), WithObserver(func(Event) { seen++ }))

	if got.Text != "first" {
		t.Fatalf("Text = %q, want first", got.Text)
	}
	if seen != 2 {
		t.Fatalf("observer saw %d events, want 2", seen)
	}
}

func TestResolveBlankFinalTextIsNoContent(t *testing.T) {
	t.Parallel()

	got := Resolve(schema.StreamReaderFromArray([]Event{TextEvent{Text: "  ", Final: true, At: at}}))
	if got.Kind != KindError || got.Error != MessageNoContent {
		t.Fatalf("Resolve() = %+v, want no content error", got)
	}
}

func TestResolveExhaustedStream(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	got := r.Drain(schema.StreamReaderFromArray([]Event{
		DebugEvent{Note: "tool_call", At: at},
		TextEvent{Text: "partial", Final: false, At: at},
	}))
	if got.Kind != KindError || got.Error != MessageNoResponse {
		t.Fatalf("Drain() = %+v, want no response error", got)
	}
	if r.State() != Exhausted {
		t.Fatalf("State() = %s, want EXHAUSTED", r.State())
	}
}

func TestResolveEmptyAndNilStreams(t *testing.T) {
	t.Parallel()

	if got := Resolve(schema.StreamReaderFromArray([]Event{})); got.Error != MessageNoResponse {
		t.Fatalf("empty stream = %+v", got)
	}
	if got := Resolve(nil); got.Error != MessageNoResponse {
		t.Fatalf("nil stream = %+v", got)
	}
}

func TestResolverStateTransitions(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	if r.State() != Scanning {
		t.Fatalf("initial state = %s", r.State())
	}
	r.Feed(DebugEvent{At: at})
	if r.State() != EmittedDebug {
		t.Fatalf("after debug = %s", r.State())
	}
	r.Feed(TextEvent{Text: "done", Final: true, At: at})
	if r.State() != Resolved {
		t.Fatalf("after final = %s", r.State())
	}
	r.Feed(TextEvent{Text: "ignored", Final: true, At: at})
	if got := r.Finish(); got.Text != "done" {
		t.Fatalf("Finish() = %+v", got)
	}
}

func TestResolveStreamErrorEndsStream(t *testing.T) {
	t.Parallel()

	sr, sw := schema.Pipe[Event](2)
	go func() {
		defer sw.Close()
		sw.Send(DebugEvent{At: at}, nil)
		sw.Send(nil, errors.New("engine crashed"))
	}()

	r := NewResolver()
	got := r.Drain(sr)
	if got.Error != MessageNoResponse {
		t.Fatalf("Drain() = %+v, want no response", got)
	}
	if r.Err() == nil {
		t.Fatal("Err() = nil, want stream error")
	}
}

func TestPayloadShapes(t *testing.T) {
	t.Parallel()

	form := Form(FormSpec{Fields: map[string]any{"category": "BUG"}, SubmitTarget: "complaint_page", Message: "ok"})
	if form.Payload()["text"] != "ok" {
		t.Fatalf("form payload = %#v", form.Payload())
	}
	if Error("x").Payload()["error"] != "x" {
		t.Fatal("error payload missing error field")
	}
	if StructuredData(nil).ResponseType() != "result" {
		t.Fatal("structured data response type should be result")
	}
}
