package auditlog

import (
	"errors"
	"strings"
	"testing"
	"time"

	eventx "github.com/tanpawarit/Chative-Ecom-Support/agent/event"
)

func stepClock(start time.Time, step time.Duration) func() time.Time {
	cur := start
	return func() time.Time {
		t := cur
		cur = cur.Add(step)
		return t
	}
}

func TestRecorderCollectsEvents(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC)
	rec := newRecorder("u1", "s1", "đơn hàng của tôi", stepClock(start, 10*time.Millisecond))

	rec.Observe(eventx.DebugEvent{Author: "root", Note: "tool_calls", Detail: map[string]any{"order": "{}"}})
	rec.Observe(eventx.CapabilityResultEvent{
		Capability: "order",
		CallID:     "c1",
		Payload:    map[string]any{"text": "ok", "order_ids": []string{"1"}},
		Final:      true,
	})
	rec.Observe(nil)

	entry := rec.Finish(eventx.Text("ok", nil), nil)

	if !entry.Success || entry.Error != "" {
		t.Fatalf("Success = %v, Error = %q", entry.Success, entry.Error)
	}
	if len(entry.Events) != 2 {
		t.Fatalf("len(Events) = %d, want 2", len(entry.Events))
	}
	if entry.Events[0].Number != 1 || entry.Events[1].Number != 2 {
		t.Fatalf("event numbers = %d, %d", entry.Events[0].Number, entry.Events[1].Number)
	}
	if entry.Events[0].ElapsedMs != 10 {
		t.Fatalf("ElapsedMs = %v, want 10", entry.Events[0].ElapsedMs)
	}
	if !entry.Events[1].IsFinal || entry.Events[1].Type != "capability_result" {
		t.Fatalf("second event = %+v", entry.Events[1])
	}
	keys, _ := entry.Events[1].Details["payload_keys"].([]string)
	if strings.Join(keys, ",") != "order_ids,text" {
		t.Fatalf("payload_keys = %v", keys)
	}
	if _, ok := entry.Events[1].Details["payload"]; ok {
		t.Fatal("details must not carry the full payload")
	}
	if entry.ProcessingTimeMs != 30 {
		t.Fatalf("ProcessingTimeMs = %v, want 30", entry.ProcessingTimeMs)
	}
}

func TestRecorderMarksFailure(t *testing.T) {
	t.Parallel()

	rec := NewRecorder("u1", "s1", "hi")
	entry := rec.Finish(eventx.Error("boom"), errors.New("store down"))

	if entry.Success {
		t.Fatal("Success = true, want false")
	}
	if entry.Error != "store down" {
		t.Fatalf("Error = %q", entry.Error)
	}
}

func TestTextEventPreviewIsTruncated(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("á", 150)
	details := describe(eventx.TextEvent{Text: long, Final: true})

	preview, _ := details["text_preview"].(string)
	if preview != strings.Repeat("á", 100)+"..." {
		t.Fatalf("preview length = %d", len([]rune(preview)))
	}
	if details["text_length"] != 150 {
		t.Fatalf("text_length = %v", details["text_length"])
	}
}

func TestPartition(t *testing.T) {
	t.Parallel()

	if got := Partition(time.Date(2025, 1, 2, 23, 0, 0, 0, time.UTC)); got != "20250102" {
		t.Fatalf("Partition() = %q", got)
	}
}
