package loader

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/xtxerr/lenedastat/internal/logging"
)

var log = logging.Component("loader")

// debounceInterval collapses the burst of events editors emit on save.
const debounceInterval = 100 * time.Millisecond

// Watcher keeps the newest valid configuration of a file.
//
// An invalid file on disk is logged and ignored; Current keeps returning the
// last valid configuration.
type Watcher struct {
	path     string
	current  atomic.Pointer[Config]
	onChange func(*Config)

	watcher  *fsnotify.Watcher
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a Watcher holding initial, the already validated
// configuration loaded from path.
func NewWatcher(path string, initial *Config, onChange func(*Config)) *Watcher {
	w := &Watcher{
		path:     path,
		onChange: onChange,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	w.current.Store(initial)
	return w
}

// Current returns the newest valid configuration.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// Start begins watching the file.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory to catch editors that replace the file.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			log.Error("failed to close watcher", "error", closeErr)
		}
		return err
	}
	w.watcher = watcher

	go w.loop()
	log.Info("watching config", "path", w.path)
	return nil
}

// Stop stops watching.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		if w.watcher == nil {
			return
		}
		<-w.done
		if err := w.watcher.Close(); err != nil {
			log.Warn("close watcher", "error", err)
		}

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	})
}

func (w *Watcher) loop() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("watch error", "error", err)

		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceInterval, w.Reload)
}

// Reload reads the file now. It returns true if a new valid configuration
// was installed.
func (w *Watcher) Reload() bool {
	cfg, err := LoadAndValidate(w.path)
	if err != nil {
		log.Warn("config reload rejected, keeping previous", "path", w.path, "error", err)
		return false
	}

	w.current.Store(cfg)
	log.Info("config reloaded", "path", w.path)

	if w.onChange != nil {
		w.onChange(cfg)
	}
	return true
}
