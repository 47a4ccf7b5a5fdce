package auditlog

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const filePrefix = "agent_calls_"

var csvHeader = []string{
	"timestamp",
	"user_id",
	"session_id",
	"query",
	"events_count",
	"final_response_type",
	"final_response_text",
	"processing_time_ms",
	"success",
	"error",
}

// JSONLSink appends one JSON document per line to LOG_DIR/agent_calls_YYYYMMDD.jsonl.
type JSONLSink struct {
	dir string
}

func NewJSONLSink(dir string) (*JSONLSink, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &JSONLSink{dir: dir}, nil
}

func (s *JSONLSink) Name() string { return "jsonl" }

func (s *JSONLSink) Path(t time.Time) string {
	return filepath.Join(s.dir, filePrefix+Partition(t)+".jsonl")
}

func (s *JSONLSink) Write(_ context.Context, e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(s.Path(e.Timestamp), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open jsonl log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write jsonl log: %w", err)
	}
	return f.Close()
}

// CSVSink appends a flattened row per entry to LOG_DIR/agent_calls_YYYYMMDD.csv.
// The header is written when the file is new.
type CSVSink struct {
	dir string
}

func NewCSVSink(dir string) (*CSVSink, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &CSVSink{dir: dir}, nil
}

func (s *CSVSink) Name() string { return "csv" }

func (s *CSVSink) Path(t time.Time) string {
	return filepath.Join(s.dir, filePrefix+Partition(t)+".csv")
}

func (s *CSVSink) Write(_ context.Context, e Entry) error {
	path := s.Path(e.Timestamp)
	_, statErr := os.Stat(path)
	isNew := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open csv log: %w", err)
	}

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(csvHeader); err != nil {
			_ = f.Close()
			return fmt.Errorf("write csv header: %w", err)
		}
	}
	if err := w.Write(Row(e)); err != nil {
		_ = f.Close()
		return fmt.Errorf("write csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush csv log: %w", err)
	}
	return f.Close()
}

// Row flattens e into the CSV column order.
func Row(e Entry) []string {
	return []string{
		e.Timestamp.Format(time.RFC3339Nano),
		e.UserID,
		e.SessionID,
		truncate(e.Query, queryLimit),
		strconv.Itoa(len(e.Events)),
		e.FinalResponse.ResponseType(),
		truncate(e.FinalResponse.Preview(), previewLimit),
		strconv.FormatFloat(e.ProcessingTimeMs, 'f', 3, 64),
		strconv.FormatBool(e.Success),
		e.Error,
	}
}

func ensureDir(dir string) error {
	if dir == "" {
		return errors.New("audit log dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create audit log dir: %w", err)
	}
	return nil
}
