package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Event types
const (
	TypeLog          = "log"
	TypeProgress     = "progress"
	TypeRunStarted   = "run_started"
	TypeRunCompleted = "run_completed"
	TypeAlert        = "alert"
	TypeCompleted    = "completed"
	TypeError        = "error"
	TypeStopped      = "stopped"
	TypeDone         = "done"
)

// ErrClosed is returned when appending to a log that already reached its terminal event
var ErrClosed = errors.New("event log closed")

// Event is one entry of an entity's event stream
type Event struct {
	Index     int         `json:"index"`
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Forwarder receives every appended event, e.g. a websocket hub
type Forwarder interface {
	Forward(entity, id string, ev Event)
}

// Log is an append-only event sequence with one writer and many readers.
// Readers resume by index and learn about new entries through Changed.
type Log struct {
	mu      sync.RWMutex
	entity  string
	id      string
	events  []Event
	closed  bool
	done    chan struct{}
	changed chan struct{}
	fwd     Forwarder
	now     func() time.Time
}

// NewLog creates a log for one scan or monitor. fwd and now may be nil.
func NewLog(entity, id string, fwd Forwarder, now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{
		entity:  entity,
		id:      id,
		done:    make(chan struct{}),
		changed: make(chan struct{}),
		fwd:     fwd,
		now:     now,
	}
}

// Append adds an event and wakes every waiting reader
func (l *Log) Append(typ string, data interface{}) (Event, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return Event{}, ErrClosed
	}
	ev := Event{
		Index:     len(l.events),
		Type:      typ,
		Data:      data,
		Timestamp: l.now(),
	}
	l.events = append(l.events, ev)
	l.notifyLocked()
	l.mu.Unlock()

	if l.fwd != nil {
		l.fwd.Forward(l.entity, l.id, ev)
	}
	return ev, nil
}

// Close marks the log terminal. It is safe to call more than once.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
	l.notifyLocked()
}

func (l *Log) notifyLocked() {
	close(l.changed)
	l.changed = make(chan struct{})
}

// Since returns a copy of the events with index >= from
func (l *Log) Since(from int) []Event {
	events, _ := l.since(from)
	return events
}

func (l *Log) since(from int) ([]Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if from < 0 {
		from = 0
	}
	if from >= len(l.events) {
		return nil, l.closed
	}
	out := make([]Event, len(l.events)-from)
	copy(out, l.events[from:])
	return out, l.closed
}

// Len returns the number of appended events
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Closed reports whether the terminal event was written
func (l *Log) Closed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed
}

// Done is closed once the log is terminal
func (l *Log) Done() <-chan struct{} {
	return l.done
}

// Changed returns a channel closed by the next Append or Close
func (l *Log) Changed() <-chan struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.changed
}

// Stream delivers events from index from onward, then a single done event
// once the log is closed. It returns early when ctx ends or send fails.
func (l *Log) Stream(ctx context.Context, from int, send func(Event) error) error {
	if from < 0 {
		from = 0
	}
	for {
		changed := l.Changed()
		events, closed := l.since(from)
		for _, ev := range events {
			if err := send(ev); err != nil {
				return err
			}
		}
		from += len(events)

		if closed {
			if from < l.Len() {
				continue
			}
			return send(Event{Index: from, Type: TypeDone, Timestamp: l.now()})
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}
