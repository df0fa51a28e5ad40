package calculator

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Reloader is implemented by Service.
type Reloader interface {
	ReloadSchemas() (int, error)
}

// DefaultDebounce is how long the watcher waits for changes to settle.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads calculator schemas when documents in a directory change.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	target   Reloader
	logger   zerolog.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending *time.Timer
}

// NewWatcher watches dir and calls target.ReloadSchemas after changes.
func NewWatcher(dir string, target Reloader, logger zerolog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	return &Watcher{
		watcher:  fsWatcher,
		dir:      dir,
		target:   target,
		logger:   logger,
		debounce: DefaultDebounce,
	}, nil
}

// Run processes events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info().Str("dir", w.dir).Msg("watching calculator schemas")
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.pending != nil {
				w.pending.Stop()
			}
			w.mu.Unlock()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("schema watcher error")
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return schemaExts[strings.ToLower(filepath.Ext(name))]
}

// schedule restarts the debounce timer so a burst of events triggers one
// reload.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	n, err := w.target.ReloadSchemas()
	if err != nil {
		w.logger.Error().Err(err).Msg("schema change rejected")
		return
	}
	w.logger.Info().Int("calculators", n).Msg("schema change applied")
}
