// Package events implements a small in-process pub/sub bus used to carry
// scan progress and filesystem watcher notifications out to RPC streaming
// handlers.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type identifies the category of an event.
type Type string

const (
	TypeScanStarted   Type = "scan.started"
	TypeScanProgress  Type = "scan.progress"
	TypeScanCompleted Type = "scan.completed"
	TypeScanFailed    Type = "scan.failed"

	TypeWatchCreated  Type = "watch.created"
	TypeWatchModified Type = "watch.modified"
	TypeWatchDeleted  Type = "watch.deleted"
	TypeWatchRenamed  Type = "watch.renamed"
)

// ScanPhase enumerates the orchestrator phases named in the scan contract.
type ScanPhase string

const (
	PhaseStarting      ScanPhase = "starting"
	PhaseDiscovering   ScanPhase = "discovering"
	PhasePreprocessing ScanPhase = "preprocessing"
	PhaseParsing       ScanPhase = "parsing"
	PhaseInserting     ScanPhase = "inserting"
	PhaseCompleted     ScanPhase = "completed"
)

// ScanProgress is the payload carried by scan.* events.
type ScanProgress struct {
	Completed int64     `json:"completed"`
	Total     int64     `json:"total"`
	Fraction  float64   `json:"fraction"`
	Message   string    `json:"message"`
	Phase     ScanPhase `json:"phase"`
	Errors    []string  `json:"errors,omitempty"`
}

// WatchEvent is the payload carried by watch.* events.
type WatchEvent struct {
	Path     string `json:"path"`
	FromPath string `json:"from_path,omitempty"` // set only for renames
}

// Event is the envelope delivered to subscribers.
type Event struct {
	ID        string      `json:"id"`
	Type      Type        `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Filter restricts which events a subscription receives. A nil/empty
// Types slice matches everything.
type Filter struct {
	Types []Type
}

func (f Filter) matches(e Event) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == e.Type {
			return true
		}
	}
	return false
}

// Handler processes a delivered event. A non-nil return does not stop
// delivery to other subscribers; the bus discards it.
type Handler func(Event) error

type subscription struct {
	id      string
	filter  Filter
	handler Handler
}

// Bus is a process-wide, goroutine-safe publish/subscribe hub.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*subscription
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]*subscription)}
}

// Subscribe registers handler for events matching filter. The subscription
// is torn down automatically when ctx is done.
func (b *Bus) Subscribe(ctx context.Context, filter Filter, handler Handler) string {
	id := uuid.NewString()

	b.mu.Lock()
	b.subs[id] = &subscription{id: id, filter: filter, handler: handler}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.Unsubscribe(id)
	}()

	return id
}

// Unsubscribe removes a subscription. Safe to call more than once.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Publish delivers event to every matching subscriber. Handlers run
// synchronously on the caller's goroutine; slow handlers should hand off to
// a buffered channel themselves (the SSE handlers do this).
func (b *Bus) Publish(evt Event) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		if !s.filter.matches(evt) {
			continue
		}
		_ = s.handler(evt)
	}
}

// PublishScanProgress is a convenience wrapper for the common case.
func (b *Bus) PublishScanProgress(p ScanProgress) {
	typ := TypeScanProgress
	switch p.Phase {
	case PhaseStarting:
		typ = TypeScanStarted
	case PhaseCompleted:
		typ = TypeScanCompleted
	}
	b.Publish(Event{Type: typ, Data: p})
}

// PublishWatchEvent is a convenience wrapper for the watcher.
func (b *Bus) PublishWatchEvent(t Type, e WatchEvent) {
	b.Publish(Event{Type: t, Data: e})
}
