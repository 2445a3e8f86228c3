// Package attendance records at most one attendance event per identity per
// process run, appending each event to a CSV log.
package attendance

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is the format of the Timestamp column.
const TimestampLayout = "2006-01-02 15:04:05"

var ErrNoLogToReset = errors.New("no attendance log to reset")

var header = []string{"Name", "Timestamp"}

// Event is one attendance row.
type Event struct {
	Identity  string
	Timestamp time.Time
}

// Log owns the session attendance set and the CSV file behind it.
type Log struct {
	mu        sync.Mutex
	path      string
	sessionID string
	marked    map[string]struct{}
	session   []Event
	now       func() time.Time
}

// Open returns a log writing to path, creating the file with its header row
// if it does not exist yet.
func Open(path string) (*Log, error) {
	l := &Log{
		path:      path,
		sessionID: uuid.NewString(),
		marked:    make(map[string]struct{}),
		now:       time.Now,
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := l.writeHeader(); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("checking %s: %w", path, err)
	}
	return l, nil
}

// Path returns the CSV file location.
func (l *Log) Path() string {
	return l.path
}

// SessionID identifies this process run in logs.
func (l *Log) SessionID() string {
	return l.sessionID
}

// MarkIfNew appends an event for identity unless one was already recorded
// in this session. It reports whether a row was written. When the append
// fails the identity stays unmarked.
func (l *Log) MarkIfNew(identity string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.marked[identity]; ok {
		return false, nil
	}

	ev := Event{Identity: identity, Timestamp: l.now().Truncate(time.Second)}
	if err := l.append(ev); err != nil {
		return false, err
	}
	l.marked[identity] = struct{}{}
	l.session = append(l.session, ev)

	slog.Info("attendance marked", "identity", identity, "session", l.sessionID)
	return true, nil
}

// Marked reports whether identity has been recorded in this session.
func (l *Log) Marked(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.marked[identity]
	return ok
}

// Session returns the events recorded since start or the last reset.
func (l *Log) Session() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.session)
}

// Reset truncates the CSV to its header and clears the session set.
func (l *Log) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := os.Stat(l.path); errors.Is(err, fs.ErrNotExist) {
		return ErrNoLogToReset
	} else if err != nil {
		return fmt.Errorf("checking %s: %w", l.path, err)
	}

	if err := l.writeHeader(); err != nil {
		return err
	}
	clear(l.marked)
	l.session = nil

	slog.Info("attendance log reset", "session", l.sessionID)
	return nil
}

// ReadAll returns every event stored in the CSV file, oldest first.
func (l *Log) ReadAll() ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", l.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", l.path, err)
	}

	events := make([]Event, 0, len(rows))
	for i, row := range rows {
		if i == 0 && slices.Equal(row, header) {
			continue
		}
		if len(row) < 2 {
			return nil, fmt.Errorf("%s line %d: expected 2 fields, got %d", l.path, i+1, len(row))
		}
		ts, err := time.ParseInLocation(TimestampLayout, row[1], time.Local)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", l.path, i+1, err)
		}
		events = append(events, Event{Identity: row[0], Timestamp: ts})
	}
	return events, nil
}

func (l *Log) append(ev Event) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", l.path, err)
	}

	w := csv.NewWriter(f)
	if info, statErr := f.Stat(); statErr == nil && info.Size() == 0 {
		w.Write(header)
	}
	w.Write([]string{ev.Identity, ev.Timestamp.Format(TimestampLayout)})
	w.Flush()

	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("appending to %s: %w", l.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", l.path, err)
	}
	return nil
}

func (l *Log) writeHeader() error {
	f, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", l.path, err)
	}

	w := csv.NewWriter(f)
	w.Write(header)
	w.Flush()

	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("writing header to %s: %w", l.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", l.path, err)
	}
	return nil
}

// Rows formats events as [name, timestamp] pairs.
func Rows(events []Event) [][]string {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{ev.Identity, ev.Timestamp.Format(TimestampLayout)})
	}
	return rows
}
