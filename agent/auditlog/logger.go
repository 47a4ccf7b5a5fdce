package auditlog

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

const (
	defaultWorkers      = 4
	defaultQueueSize    = 256
	defaultWriteTimeout = 10 * time.Second
)

type Config struct {
	Workers      int           `envconfig:"WORKERS" split_words:"true" default:"4"`
	QueueSize    int           `envconfig:"QUEUE_SIZE" split_words:"true" default:"256"`
	JSONL        bool          `envconfig:"JSONL" split_words:"true" default:"true"`
	CSV          bool          `envconfig:"CSV" split_words:"true" default:"true"`
	DynamoTable  string        `envconfig:"DYNAMO_TABLE" split_words:"true"`
	DynamoTTL    time.Duration `envconfig:"DYNAMO_TTL" split_words:"true" default:"720h"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" split_words:"true" default:"10s"`
}

// Sink persists entries. Writes to the same sink and partition never overlap.
type Sink interface {
	Name() string
	Write(ctx context.Context, e Entry) error
}

// Logger queues entries for a fixed set of pool workers. Record never blocks
// and never returns an error; a full queue drops the entry and sink failures
// are only logged.
type Logger struct {
	sinks   []Sink
	timeout time.Duration

	queue  chan Entry
	pool   *pool.Pool
	mu     sync.RWMutex
	closed bool

	locks sync.Map
}

func New(cfg Config, sinks ...Sink) *Logger {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	l := &Logger{
		sinks:   kept,
		timeout: timeout,
		queue:   make(chan Entry, queueSize),
		pool:    pool.New().WithMaxGoroutines(workers),
	}
	for i := 0; i < workers; i++ {
		l.pool.Go(l.drain)
	}
	return l
}

func (l *Logger) drain() {
	for e := range l.queue {
		l.write(e)
	}
}

func (l *Logger) Record(e Entry) {
	if l == nil {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		log.Warn().Str("session_id", e.SessionID).Msg("audit logger closed, dropping entry")
		return
	}
	select {
	case l.queue <- e:
	default:
		log.Warn().Str("session_id", e.SessionID).Int("queue_size", cap(l.queue)).Msg("audit queue full, dropping entry")
	}
}

// Close drains queued entries and closes sinks that hold resources.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.pool.Wait()

	var errs []error
	for _, s := range l.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (l *Logger) write(e Entry) {
	partition := Partition(e.Timestamp)
	for _, s := range l.sinks {
		l.writeSink(s, partition, e)
	}
}

func (l *Logger) writeSink(s Sink, partition string, e Entry) {
	lock := l.lockFor(s.Name() + "/" + partition)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	var (
		err     error
		catcher panics.Catcher
	)
	catcher.Try(func() {
		err = s.Write(ctx, e)
	})

	logger := log.With().
		Str("sink", s.Name()).
		Str("partition", partition).
		Str("session_id", e.SessionID).
		Logger()
	if r := catcher.Recovered(); r != nil {
		logger.Error().Err(r.AsError()).Msg("audit sink panicked")
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("audit sink write failed")
	}
}

func (l *Logger) lockFor(key string) *sync.Mutex {
	v, _ := l.locks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}
