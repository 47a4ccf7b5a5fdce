// Package auditlog records one entry per top-level call and fans it out to
// append-only sinks partitioned by calendar day.
package auditlog

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	eventx "github.com/tanpawarit/Chative-Ecom-Support/agent/event"
)

const (
	partitionLayout = "20060102"
	previewLimit    = 100
	queryLimit      = 200
)

// Partition returns the day partition (YYYYMMDD) of t.
func Partition(t time.Time) string {
	return t.Format(partitionLayout)
}

// EventRecord summarizes one event. It never holds full tool or binary bodies.
type EventRecord struct {
	Number     int            `json:"event_number"`
	Type       string         `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp"`
	ElapsedMs  float64        `json:"time_since_last_event_ms"`
	IsFinal    bool           `json:"is_final_response"`
	PartsCount int            `json:"content_parts_count"`
	Details    map[string]any `json:"event_details,omitempty"`
}

type Entry struct {
	Timestamp        time.Time               `json:"timestamp"`
	UserID           string                  `json:"user_id"`
	SessionID        string                  `json:"session_id"`
	Query            string                  `json:"query"`
	Events           []EventRecord           `json:"events"`
	FinalResponse    eventx.TerminalResponse `json:"final_response"`
	ProcessingTimeMs float64                 `json:"processing_time_ms"`
	Success          bool                    `json:"success"`
	Error            string                  `json:"error,omitempty"`
}

// Recorder accumulates an Entry while a run streams events. Observe is safe
// to pass to event.WithObserver.
type Recorder struct {
	mu    sync.Mutex
	entry Entry
	start time.Time
	last  time.Time
	now   func() time.Time
}

func NewRecorder(userID, sessionID, query string) *Recorder {
	return newRecorder(userID, sessionID, query, time.Now)
}

func newRecorder(userID, sessionID, query string, now func() time.Time) *Recorder {
	start := now()
	return &Recorder{
		entry: Entry{
			Timestamp: start,
			UserID:    userID,
			SessionID: sessionID,
			Query:     query,
			Events:    []EventRecord{},
		},
		start: start,
		last:  start,
		now:   now,
	}
}

func (r *Recorder) Observe(ev eventx.Event) {
	if ev == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	at := r.now()
	r.entry.Events = append(r.entry.Events, EventRecord{
		Number:     len(r.entry.Events) + 1,
		Type:       ev.Type(),
		Timestamp:  at,
		ElapsedMs:  millis(at.Sub(r.last)),
		IsFinal:    ev.IsFinal(),
		PartsCount: eventx.PartsCount(ev),
		Details:    describe(ev),
	})
	r.last = at
}

// Finish stamps the response and processing time. A non-nil err marks the
// entry unsuccessful.
func (r *Recorder) Finish(resp eventx.TerminalResponse, err error) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entry.FinalResponse = resp
	r.entry.ProcessingTimeMs = millis(r.now().Sub(r.start))
	r.entry.Success = err == nil
	if err != nil {
		r.entry.Error = err.Error()
	}

	out := r.entry
	out.Events = append([]EventRecord(nil), r.entry.Events...)
	return out
}

func describe(ev eventx.Event) map[string]any {
	switch e := ev.(type) {
	case eventx.CapabilityResultEvent:
		d := map[string]any{
			"capability":         e.Capability,
			"call_id":            e.CallID,
			"skip_summarization": e.SkipSummarization,
			"payload_keys":       sortedKeys(e.Payload),
		}
		if raw, err := json.Marshal(e.Payload); err == nil {
			d["payload_bytes"] = len(raw)
		}
		return d
	case eventx.TextEvent:
		return map[string]any{
			"author":       e.Author,
			"text_length":  utf8.RuneCountInString(e.Text),
			"text_preview": truncate(e.Text, previewLimit),
		}
	case eventx.DebugEvent:
		return map[string]any{
			"author":      e.Author,
			"note":        e.Note,
			"detail_keys": sortedKeys(e.Detail),
		}
	default:
		return nil
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truncate cuts s to limit runes and marks the cut with "...".
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
