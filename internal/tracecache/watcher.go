package tracecache

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// watcher invalidates cached traces whose files change on disk.
//
// Parent directories are watched rather than the files themselves, so the
// trace is still noticed when an editor or generator replaces the file.
type watcher struct {
	fsw       *fsnotify.Watcher
	logger    *slog.Logger
	onChange  func(id string)
	mu        sync.Mutex
	paths     map[string]string // cleaned absolute path -> trace id
	dirs      map[string]bool
	done      chan struct{}
	closeOnce sync.Once
}

func newWatcher(logger *slog.Logger, onChange func(id string)) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &watcher{
		fsw:      fsw,
		logger:   logger,
		onChange: onChange,
		paths:    make(map[string]string),
		dirs:     make(map[string]bool),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// track starts watching the file behind id. Failures are logged; the trace
// simply stays cached until invalidated explicitly.
func (w *watcher) track(id string) {
	abs, err := filepath.Abs(id)
	if err != nil {
		w.logger.Warn("cannot watch trace", "trace_file", id, "error", err)
		return
	}
	abs = filepath.Clean(abs)
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.paths[abs] = id
	if w.dirs[dir] {
		return
	}
	if err := w.fsw.Add(dir); err != nil {
		w.logger.Warn("cannot watch trace directory", "dir", dir, "error", err)
		return
	}
	w.dirs[dir] = true
}

func (w *watcher) loop() {
	defer close(w.done)
	const changed = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&changed == 0 {
				continue
			}
			w.mu.Lock()
			id, tracked := w.paths[filepath.Clean(ev.Name)]
			w.mu.Unlock()
			if tracked {
				w.onChange(id)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("trace watcher error", "error", err)
		}
	}
}

func (w *watcher) close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
		<-w.done
	})
	return err
}
