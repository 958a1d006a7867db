// Package audit keeps an append-only activity journal beside the account
// store. Entries describe operations and never carry secrets or generated
// codes.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Entry records a single vault operation.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Operation string    `json:"op"`
	AccountID string    `json:"account_id,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Count     int       `json:"count,omitempty"`
}

// Logger appends entries to a JSON-lines file. A nil Logger discards entries,
// so callers never need to guard Record.
type Logger struct {
	path string
	log  zerolog.Logger
}

// NewLogger creates a journal at path. The file is created on first Record.
func NewLogger(path string, log zerolog.Logger) *Logger {
	return &Logger{path: path, log: log}
}

// Record appends one entry. Journal failures are logged and swallowed; they
// must not break the operation they describe.
func (l *Logger) Record(entry Entry) {
	if l == nil {
		return
	}
	entry.Timestamp = time.Now().UTC()

	line, err := json.Marshal(entry)
	if err != nil {
		l.log.Warn().Err(err).Msg("encoding journal entry")
		return
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		l.log.Warn().Err(err).Msg("opening activity journal")
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		l.log.Warn().Err(err).Msg("writing activity journal")
	}
}

// Tail returns up to n of the most recent entries, oldest first. Lines that
// fail to parse are skipped; a journal survives partial writes.
func (l *Logger) Tail(n int) ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening activity journal: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading activity journal: %w", err)
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}
