package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mantonx/liveset-cataloger/internal/catalog"
	"github.com/mantonx/liveset-cataloger/internal/catalogdb"
	"github.com/mantonx/liveset-cataloger/internal/events"
)

func newTestWatcher(t *testing.T) (*Watcher, *events.Bus) {
	t.Helper()
	db, err := catalogdb.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	store := catalog.NewStore(db)
	bus := events.NewBus()
	w, err := New(bus, store)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, bus
}

func collectEvents(t *testing.T, bus *events.Bus, n int) []events.Event {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan events.Event, n)
	bus.Subscribe(ctx, events.Filter{}, func(e events.Event) error {
		select {
		case got <- e:
		default:
		}
		return nil
	})

	var result []events.Event
	deadline := time.After(2 * time.Second)
	for len(result) < n {
		select {
		case e := <-got:
			result = append(result, e)
		case <-deadline:
			t.Fatalf("timed out after %d events, want %d", len(result), n)
		}
	}
	return result
}

func TestHandleIgnoresNonProjectFiles(t *testing.T) {
	w, bus := newTestWatcher(t)
	done := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Subscribe(ctx, events.Filter{}, func(events.Event) error {
		done <- struct{}{}
		return nil
	})

	w.handle(fsnotify.Event{Name: "/music/notes.txt", Op: fsnotify.Create})

	select {
	case <-done:
		t.Fatal("expected no event for non-.als file")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleIgnoresBackupFiles(t *testing.T) {
	w, bus := newTestWatcher(t)
	done := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Subscribe(ctx, events.Filter{}, func(events.Event) error {
		done <- struct{}{}
		return nil
	})

	w.handle(fsnotify.Event{Name: "/music/a [2024-01-01 120000].als", Op: fsnotify.Create})

	select {
	case <-done:
		t.Fatal("expected no event for backup file")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandlePublishesCreated(t *testing.T) {
	w, bus := newTestWatcher(t)
	evs := make(chan events.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Subscribe(ctx, events.Filter{}, func(e events.Event) error {
		evs <- e
		return nil
	})

	w.handle(fsnotify.Event{Name: "/music/new.als", Op: fsnotify.Create})

	select {
	case e := <-evs:
		if e.Type != events.TypeWatchCreated {
			t.Fatalf("type = %q", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestHandleDebouncesRepeatedWrites(t *testing.T) {
	w, bus := newTestWatcher(t)
	var count int
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Subscribe(ctx, events.Filter{}, func(events.Event) error {
		count++
		return nil
	})

	w.handle(fsnotify.Event{Name: "/music/set.als", Op: fsnotify.Write})
	w.handle(fsnotify.Event{Name: "/music/set.als", Op: fsnotify.Write})
	w.handle(fsnotify.Event{Name: "/music/set.als", Op: fsnotify.Write})

	if count != 1 {
		t.Fatalf("expected 1 delivered event after debounce, got %d", count)
	}
}

// A Remove immediately followed by a Create for a different path within the
// debounce window must be paired into exactly one Renamed event — no
// Deleted event for the old path is delivered (§8 scenario 5).
func TestHandlePairsRemoveThenCreateAsRenamed(t *testing.T) {
	w, bus := newTestWatcher(t)
	evs := make(chan events.Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Subscribe(ctx, events.Filter{}, func(e events.Event) error {
		evs <- e
		return nil
	})

	w.handle(fsnotify.Event{Name: "/music/old.als", Op: fsnotify.Remove})
	w.handle(fsnotify.Event{Name: "/music/new.als", Op: fsnotify.Create})

	var got events.Event
	select {
	case got = <-evs:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	if got.Type != events.TypeWatchRenamed {
		t.Fatalf("expected renamed event, got %q", got.Type)
	}
	payload, ok := got.Data.(events.WatchEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", got.Data)
	}
	if payload.FromPath != "/music/old.als" || payload.Path != "/music/new.als" {
		t.Fatalf("payload = %+v", payload)
	}

	// The deferred Deleted publication for the old path must not fire once
	// the Create has claimed the pending removal.
	select {
	case e := <-evs:
		t.Fatalf("unexpected extra event after rename pairing: %+v", e)
	case <-time.After(debounceInterval + 200*time.Millisecond):
	}
}

// A Remove with no paired Create within the debounce window is a genuine
// deletion: the Deleted event fires once the window closes.
func TestHandleUnpairedRemoveEventuallyPublishesDeleted(t *testing.T) {
	w, bus := newTestWatcher(t)
	evs := make(chan events.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Subscribe(ctx, events.Filter{}, func(e events.Event) error {
		evs <- e
		return nil
	})

	w.handle(fsnotify.Event{Name: "/music/gone.als", Op: fsnotify.Remove})

	select {
	case e := <-evs:
		if e.Type != events.TypeWatchDeleted {
			t.Fatalf("expected deleted event, got %q", e.Type)
		}
	case <-time.After(debounceInterval + time.Second):
		t.Fatal("timed out waiting for deferred deleted event")
	}
}
