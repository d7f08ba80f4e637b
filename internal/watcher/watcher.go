// Package watcher detects changes to configuration files and triggers a
// reload callback.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// Watcher monitors a set of files and calls onChange after any of them is
// written, created, renamed or removed. It watches the parent directories
// since fsnotify cannot watch files that do not exist yet and editors often
// replace files by rename.
type Watcher struct {
	targets  map[string]bool // cleaned target paths
	parents  []string
	onChange func(path string)
	watcher  *fsnotify.Watcher
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	running  bool
	debounce time.Duration
	done     chan struct{}
}

// New creates a Watcher over paths. Empty paths are ignored.
func New(onChange func(path string), paths ...string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	targets := make(map[string]bool, len(paths))
	seenParent := map[string]bool{}
	var parents []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		p = filepath.Clean(p)
		targets[p] = true
		if dir := filepath.Dir(p); !seenParent[dir] {
			seenParent[dir] = true
			parents = append(parents, dir)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		targets:  targets,
		parents:  parents,
		onChange: onChange,
		watcher:  fsw,
		ctx:      ctx,
		cancel:   cancel,
		debounce: DefaultDebounce,
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce overrides the debounce window. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start begins watching for change events.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, dir := range w.parents {
		if _, err := os.Stat(dir); err != nil {
			log.Warn().Err(err).Str("path", dir).Msg("Failed to add watch")
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			log.Warn().Err(err).Str("path", dir).Msg("Failed to add watch")
		}
	}

	go w.watchLoop()
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	err := w.watcher.Close()
	<-w.done
	return err
}

const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove

// watchLoop is the main event loop.
func (w *Watcher) watchLoop() {
	defer close(w.done)

	var (
		debounceTimer *time.Timer
		pending       string
		fire          = make(chan struct{}, 1)
	)
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			path := filepath.Clean(event.Name)
			if !w.targets[path] || event.Op&relevantOps == 0 {
				continue
			}

			log.Debug().Str("path", path).Str("op", event.Op.String()).Msg("Watched file changed")
			pending = path
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			if pending == "" {
				continue
			}
			path := pending
			pending = ""
			log.Info().Str("path", path).Msg("Configuration changed")
			if w.onChange != nil {
				w.onChange(path)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}
