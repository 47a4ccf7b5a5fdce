package auditlog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	name string

	mu      sync.Mutex
	entries []Entry
	err     error
	panic   bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(_ context.Context, e Entry) error {
	if s.panic {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestLoggerFansOutToEverySink(t *testing.T) {
	t.Parallel()

	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b", err: errors.New("write failed")}
	l := New(Config{Workers: 2}, a, nil, b)

	for i := 0; i < 5; i++ {
		l.Record(Entry{Timestamp: time.Now(), SessionID: "s"})
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if a.count() != 5 || b.count() != 5 {
		t.Fatalf("counts = %d, %d; want 5, 5", a.count(), b.count())
	}
}

func TestLoggerRecoversSinkPanic(t *testing.T) {
	t.Parallel()

	bad := &recordingSink{name: "bad", panic: true}
	good := &recordingSink{name: "good"}
	l := New(Config{}, bad, good)

	l.Record(Entry{Timestamp: time.Now()})
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if good.count() != 1 {
		t.Fatalf("good sink count = %d, want 1", good.count())
	}
}

func TestLoggerDropsAfterClose(t *testing.T) {
	t.Parallel()

	s := &recordingSink{name: "s"}
	l := New(Config{}, s)
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	l.Record(Entry{Timestamp: time.Now()})
	if err := l.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if s.count() != 0 {
		t.Fatalf("count = %d, want 0", s.count())
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	t.Parallel()

	var l *Logger
	l.Record(Entry{})
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

type stalledSink struct {
	release chan struct{}

	mu    sync.Mutex
	count int
}

func (s *stalledSink) Name() string { return "stalled" }

func (s *stalledSink) Write(ctx context.Context, _ Entry) error {
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	return nil
}

func TestRecordDoesNotWaitForStalledSink(t *testing.T) {
	t.Parallel()

	sink := &stalledSink{release: make(chan struct{})}
	l := New(Config{Workers: 1, QueueSize: 2, WriteTimeout: 5 * time.Second}, sink)

	start := time.Now()
	for i := 0; i < 6; i++ {
		l.Record(Entry{Timestamp: time.Now(), SessionID: "s"})
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("Record blocked for %v", elapsed)
	}

	close(sink.release)
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	// One entry in the worker plus a full queue; the rest are dropped.
	if sink.count < 1 || sink.count > 3 {
		t.Fatalf("written = %d, want between 1 and 3", sink.count)
	}
}
