package calculator

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

type countingReloader struct {
	mu    sync.Mutex
	calls int
	done  chan struct{}
	err   error
}

func (r *countingReloader) ReloadSchemas() (int, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	r.done <- struct{}{}
	return 1, r.err
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	target := &countingReloader{done: make(chan struct{}, 4)}
	w := &Watcher{target: target, logger: zerolog.Nop(), debounce: 20 * time.Millisecond}

	for i := 0; i < 5; i++ {
		w.schedule()
	}
	select {
	case <-target.done:
	case <-time.After(2 * time.Second):
		t.Fatal("reload was never triggered")
	}
	time.Sleep(60 * time.Millisecond)

	target.mu.Lock()
	defer target.mu.Unlock()
	if target.calls != 1 {
		t.Errorf("expected one reload for a burst, got %d", target.calls)
	}
}

func TestWatcher_ReloadErrorIsLogged(t *testing.T) {
	target := &countingReloader{done: make(chan struct{}, 1), err: errors.New("bad schema")}
	w := &Watcher{target: target, logger: zerolog.Nop(), debounce: time.Millisecond}
	w.reload()
	if target.calls != 1 {
		t.Errorf("expected reload to be attempted, got %d", target.calls)
	}
}

func TestRelevant(t *testing.T) {
	tests := []struct {
		event fsnotify.Event
		want  bool
	}{
		{fsnotify.Event{Name: "/srv/calculators/bmi.json", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "/srv/calculators/qtc.YAML", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "/srv/calculators/old.yml", Op: fsnotify.Remove}, true},
		{fsnotify.Event{Name: "/srv/calculators/bmi.json", Op: fsnotify.Chmod}, false},
		{fsnotify.Event{Name: "/srv/calculators/.bmi.json.swp", Op: fsnotify.Write}, false},
		{fsnotify.Event{Name: "/srv/calculators/notes.txt", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		if got := relevant(tt.event); got != tt.want {
			t.Errorf("relevant(%v) = %v, want %v", tt.event, got, tt.want)
		}
	}
}
