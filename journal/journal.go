// Package journal records operation runs as an append-only JSONL audit
// trail, one file per process run. It is write-only during execution and
// never consulted for decisions; remote provider state stays the single
// source of truth.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event classifies a journal entry.
type Event string

const (
	EventStarted   Event = "started"
	EventCompleted Event = "completed"
	EventFailed    Event = "failed"
)

// Entry is a single journal line.
type Entry struct {
	Timestamp time.Time     `json:"timestamp"`
	Sequence  int64         `json:"sequence"`
	Event     Event         `json:"event"`
	Operation string        `json:"operation"`
	Duration  time.Duration `json:"duration,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Journal appends operation events to a per-run file.
type Journal struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	sequence int64
	path     string
}

// Open creates the journal directory if needed and starts a new journal
// file named after the current time.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	filename := fmt.Sprintf("nosto-%s.journal", time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644) // #nosec G304 -- path is built from the configured directory
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}

	return &Journal{
		file:   file,
		writer: bufio.NewWriter(file),
		path:   path,
	}, nil
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	return j.path
}

// Close flushes and closes the journal.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		return err
	}
	return j.file.Close()
}

// Started records the beginning of an operation run.
func (j *Journal) Started(operation string) error {
	return j.append(Entry{Event: EventStarted, Operation: operation})
}

// Completed records a successful operation run.
func (j *Journal) Completed(operation string, took time.Duration) error {
	return j.append(Entry{Event: EventCompleted, Operation: operation, Duration: took})
}

// Failed records a failed operation run with its cause.
func (j *Journal) Failed(operation string, took time.Duration, cause error) error {
	return j.append(Entry{Event: EventFailed, Operation: operation, Duration: took, Error: cause.Error()})
}

func (j *Journal) append(entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.sequence++
	entry.Timestamp = time.Now()
	entry.Sequence = j.sequence

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := j.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if _, err := j.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	// Flush immediately for durability
	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return j.file.Sync()
}

// Reader replays a journal file entry by entry.
type Reader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewReader opens a journal file for reading.
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}

	return &Reader{
		scanner: bufio.NewScanner(file),
		file:    file,
	}, nil
}

// Next reads the next entry. Returns io.EOF at the end of the file.
func (r *Reader) Next() (*Entry, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var entry Entry
	if err := json.Unmarshal(r.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &entry, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Replay walks every journal file in the directory and hands entries
// newer than since to the handler.
func Replay(dir string, since time.Time, handler func(*Entry) error) error {
	files, err := filepath.Glob(filepath.Join(dir, "nosto-*.journal"))
	if err != nil {
		return fmt.Errorf("failed to list journal files: %w", err)
	}

	for _, file := range files {
		reader, err := NewReader(file)
		if err != nil {
			return err
		}
		defer reader.Close()

		for {
			entry, err := reader.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}

			if entry.Timestamp.After(since) {
				if err := handler(entry); err != nil {
					return err
				}
			}
		}
	}

	return nil
}
