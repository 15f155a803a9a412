// Package watcher emits Created/Modified/Deleted/Renamed events for
// project files under configured roots, debouncing rapid repeated events
// the way editors burst Modified events on save. Grounded on the teacher's
// fsnotify-based file monitor.
package watcher

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mantonx/liveset-cataloger/internal/catalog"
	"github.com/mantonx/liveset-cataloger/internal/events"
	"github.com/mantonx/liveset-cataloger/internal/ingest"
	"github.com/mantonx/liveset-cataloger/internal/logger"
)

const debounceInterval = 500 * time.Millisecond

// Watcher wraps an fsnotify.Watcher, applying the project-extension filter,
// backup-file exclusion, and debounce map before publishing bus events and
// driving catalog soft-delete/rename updates.
type Watcher struct {
	fsw   *fsnotify.Watcher
	bus   *events.Bus
	store *catalog.Store

	mu          sync.Mutex
	lastSeen    map[string]time.Time
	pending     map[string]uint64 // path -> generation token of its in-flight deferred delete
	lastPending string            // most recently removed path, for Create pairing
	seq         uint64

	stop chan struct{}
}

func New(bus *events.Bus, store *catalog.Store) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsw:      fsw,
		bus:      bus,
		store:    store,
		lastSeen: make(map[string]time.Time),
		pending:  make(map[string]uint64),
		stop:     make(chan struct{}),
	}, nil
}

// AddRoot registers a directory for watching. fsnotify does not recurse,
// so every directory under root must be added individually by the caller
// (or by a future recursive-walk helper); for the project layouts this
// targets, roots are flat enough that a single Add suffices.
func (w *Watcher) AddRoot(root string) error {
	return w.fsw.Add(root)
}

// Run processes fsnotify events until Stop is called.
func (w *Watcher) Run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher error", "error", err)
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) Stop() {
	close(w.stop)
	_ = w.fsw.Close()
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if filepath.Ext(ev.Name) != ingest.ProjectExtension {
		return
	}
	if ingest.IsBackupFile(filepath.Base(ev.Name)) {
		return
	}

	if w.debounced(ev.Name) {
		return
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		// A Create arriving shortly after a Rename-away is treated as the
		// other half of a move: fsnotify doesn't expose the kernel's
		// rename cookie, so pairing by proximity is the closest available
		// approximation to a true Renamed{from,to} event. The matching
		// Remove's Deleted publication is held back (see below) until this
		// window closes, so a paired move yields exactly one Renamed event
		// rather than a Deleted followed by a correcting Renamed.
		w.mu.Lock()
		from := w.lastPending
		if from != "" {
			delete(w.pending, from) // invalidate that path's deferred-delete timer
			w.lastPending = ""
		}
		w.mu.Unlock()

		if from != "" {
			w.bus.PublishWatchEvent(events.TypeWatchRenamed, events.WatchEvent{Path: ev.Name, FromPath: from})
			if err := w.store.Rename(from, ev.Name); err != nil {
				logger.Warn("rename update failed", "from", from, "to", ev.Name, "error", err)
			}
			return
		}
		w.bus.PublishWatchEvent(events.TypeWatchCreated, events.WatchEvent{Path: ev.Name})

	case ev.Op&fsnotify.Write != 0:
		w.bus.PublishWatchEvent(events.TypeWatchModified, events.WatchEvent{Path: ev.Name})

	case ev.Op&fsnotify.Rename != 0, ev.Op&fsnotify.Remove != 0:
		w.mu.Lock()
		w.seq++
		token := w.seq
		w.pending[ev.Name] = token
		w.lastPending = ev.Name
		w.mu.Unlock()

		time.AfterFunc(debounceInterval, func() { w.finalizeDelete(ev.Name, token) })
	}
}

// finalizeDelete publishes the Deleted event and soft-deletes the catalog
// row for path, unless a paired Create already claimed this pending removal
// (its entry will have been removed from w.pending, or replaced by a newer
// token for the same path, in that case).
func (w *Watcher) finalizeDelete(path string, token uint64) {
	w.mu.Lock()
	stillPending := w.pending[path] == token
	if stillPending {
		delete(w.pending, path)
		if w.lastPending == path {
			w.lastPending = ""
		}
	}
	w.mu.Unlock()

	if !stillPending {
		return
	}

	w.bus.PublishWatchEvent(events.TypeWatchDeleted, events.WatchEvent{Path: path})
	if err := w.store.MarkInactive(path); err != nil {
		logger.Warn("mark inactive failed", "path", path, "error", err)
	}
}

// debounced reports true (and swallows the event) if the same path fired
// within the last debounceInterval.
func (w *Watcher) debounced(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if last, ok := w.lastSeen[path]; ok && now.Sub(last) < debounceInterval {
		w.lastSeen[path] = now
		return true
	}
	w.lastSeen[path] = now
	return false
}
