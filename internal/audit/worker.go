package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jwaldner/greeks/internal/logger"
)

var (
	ErrJournalFull   = errors.New("audit channel full")
	ErrJournalClosed = errors.New("audit journal closed")
)

const (
	actionRecord  = "record"
	actionArchive = "archive"
)

// Entry is one line of the journal
type Entry struct {
	Timestamp time.Time   `json:"timestamp"`
	Operation string      `json:"operation"`
	Symbol    string      `json:"symbol,omitempty"`
	Data      interface{} `json:"data"`
}

// auditAction represents operations sent to the audit channel
type auditAction struct {
	Type  string
	Entry Entry
	Done  chan error // archive only
}

// Journal appends entries as JSON lines. A single worker goroutine owns the
// file; callers only touch the channel.
type Journal struct {
	path string

	mu     sync.RWMutex
	closed bool
	ch     chan auditAction
	done   chan struct{}

	file *os.File // worker only
}

// Open starts a journal appending to path with a channel of buffer entries
func Open(path string, buffer int) (*Journal, error) {
	if buffer <= 0 {
		buffer = 100
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create audit directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit journal: %w", err)
	}

	j := &Journal{
		path: path,
		ch:   make(chan auditAction, buffer),
		done: make(chan struct{}),
		file: f,
	}
	go j.auditWorker()

	logger.Info.Printf("📝 AUDIT: journal at %s (buffer %d)", path, buffer)
	return j, nil
}

// Path returns the journal file path
func (j *Journal) Path() string {
	return j.path
}

// Record handles audit operations via channel
func (j *Journal) Record(operation, symbol string, data interface{}) error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return ErrJournalClosed
	}

	action := auditAction{
		Type: actionRecord,
		Entry: Entry{
			Timestamp: time.Now().UTC(),
			Operation: operation,
			Symbol:    symbol,
			Data:      data,
		},
	}

	select {
	case j.ch <- action:
		return nil
	default:
		logger.Warn.Printf("⚠️ AUDIT: dropped %s entry, channel full", operation)
		return ErrJournalFull
	}
}

// Archive moves the journal to audits/<timestamp>.jsonl next to it once all
// queued entries are written, then continues in a fresh file.
func (j *Journal) Archive() error {
	done := make(chan error, 1)

	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return ErrJournalClosed
	}
	// blocking send: the archive must not be dropped
	j.ch <- auditAction{Type: actionArchive, Done: done}
	j.mu.RUnlock()

	return <-done
}

// Close drains queued entries, stops the worker and closes the file
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.ch)
	j.mu.Unlock()

	<-j.done
	return j.file.Close()
}

// auditWorker processes all audit operations in a single goroutine - OWNS ALL FILE OPERATIONS
func (j *Journal) auditWorker() {
	defer close(j.done)

	enc := json.NewEncoder(j.file)
	written := 0

	for action := range j.ch {
		switch action.Type {
		case actionRecord:
			if err := enc.Encode(action.Entry); err != nil {
				logger.Warn.Printf("⚠️ AUDIT: failed to write %s entry: %v", action.Entry.Operation, err)
				continue
			}
			written++
			logger.Debug.Printf("📝 AUDIT: %s %s (total: %d)", action.Entry.Operation, action.Entry.Symbol, written)

		case actionArchive:
			err := j.archive()
			if err == nil {
				enc = json.NewEncoder(j.file)
				written = 0
			}
			action.Done <- err

		default:
			logger.Warn.Printf("⚠️ AUDIT: INVALID ACTION TYPE '%s'", action.Type)
		}
	}
}

func (j *Journal) archive() error {
	dir := filepath.Join(filepath.Dir(j.path), "audits")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	if err := j.file.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05.000")
	archiveName := filepath.Join(dir, fmt.Sprintf("%s.jsonl", timestamp))
	renameErr := os.Rename(j.path, archiveName)

	// reopen even when the rename failed so recording can continue
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("reopen journal: %w", err)
	}
	j.file = f

	if renameErr != nil {
		return fmt.Errorf("archive journal: %w", renameErr)
	}
	logger.Verbose.Printf("📁 AUDIT: Moved journal to %s", archiveName)
	return nil
}
