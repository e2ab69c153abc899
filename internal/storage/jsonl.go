package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"stakeScope/internal/model"
)

// LineWriter appends JSON records, one per line, to a file it keeps open.
// A batch goes out in a single write.
type LineWriter struct {
	path  string
	fsync bool

	mu   sync.Mutex
	file *os.File
}

// NewLineWriter appends to path, creating it and its directory on first use.
// With fsync set every Append is flushed to disk before it returns.
func NewLineWriter(path string, fsync bool) *LineWriter {
	return &LineWriter{path: path, fsync: fsync}
}

func (w *LineWriter) Append(records ...any) error {
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		if err := w.open(); err != nil {
			return err
		}
	}
	if _, err := w.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("append %s: %w", w.path, err)
	}
	if w.fsync {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("sync %s: %w", w.path, err)
		}
	}
	return nil
}

func (w *LineWriter) open() error {
	dir := filepath.Dir(w.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", w.path, err)
		}
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", w.path, err)
	}
	w.file = file
	return nil
}

func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// JsonlSink appends events to a JSONL journal.
type JsonlSink struct {
	w *LineWriter
}

func NewJsonlSink(path string) *JsonlSink {
	return &JsonlSink{w: NewLineWriter(path, false)}
}

// PutEvents appends a batch of events as JSON lines.
func (s *JsonlSink) PutEvents(_ context.Context, events []model.Event) error {
	records := make([]any, len(events))
	for i, event := range events {
		records[i] = event
	}
	if err := s.w.Append(records...); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}

func (s *JsonlSink) Close() error {
	return s.w.Close()
}
