// Package reload recompiles a grammar file when it changes and swaps the new graph in atomically.
//
// A failed recompile keeps the previous graph. Matches already running keep the graph they
// started with, since graphs are immutable and only the pointer is replaced.
package reload

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/gnolang/gmatch/grammar"
)

// DefaultDebounce groups the burst of events an editor produces for one save.
const DefaultDebounce = 100 * time.Millisecond

// CompileFunc builds a graph from a grammar file.
type CompileFunc func(path string) (*grammar.Graph, error)

// Event reports a handled change. Graph is the graph in use after the change; Err is set when
// the grammar failed to recompile, in which case Graph is the previous one.
type Event struct {
	Path  string
	Graph *grammar.Graph
	Err   error
}

// Reloader watches one grammar file, plus optional tracked files whose changes are reported
// without recompiling.
type Reloader struct {
	name     string // as given, passed to compile
	path     string // absolute, compared with watcher events
	compile  CompileFunc
	logger   *zap.Logger
	debounce time.Duration

	current atomic.Pointer[grammar.Graph]
	events  chan Event
	tracked map[string]bool

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopped  chan struct{}
	watching bool
}

// New compiles path once and returns a Reloader serving the result.
func New(path string, compile CompileFunc, logger *zap.Logger) (*Reloader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	g, err := compile(path)
	if err != nil {
		return nil, err
	}

	r := &Reloader{
		name:     path,
		path:     abs,
		compile:  compile,
		logger:   logger,
		debounce: DefaultDebounce,
		events:   make(chan Event, 16),
		tracked:  make(map[string]bool),
	}
	r.current.Store(g)
	return r, nil
}

// Graph returns the current graph.
func (r *Reloader) Graph() *grammar.Graph { return r.current.Load() }

// Events delivers one Event per handled change. Events are dropped if nobody reads them.
func (r *Reloader) Events() <-chan Event { return r.events }

// SetDebounce changes the quiet period before a change is handled. Call it before Start.
func (r *Reloader) SetDebounce(d time.Duration) { r.debounce = d }

// Track adds files whose changes produce an Event carrying the current graph. Call it before Start.
func (r *Reloader) Track(paths ...string) error {
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		r.tracked[abs] = true
	}
	return nil
}

// Reload recompiles the grammar now. The graph is swapped only on success.
func (r *Reloader) Reload() Event {
	g, err := r.compile(r.name)
	if err != nil {
		r.logger.Warn("Grammar reload failed, keeping previous graph", zap.String("path", r.name), zap.Error(err))
		return Event{Path: r.name, Graph: r.Graph(), Err: err}
	}
	r.current.Store(g)
	r.logger.Info("Grammar reloaded", zap.String("path", r.name), zap.Int("rules", len(g.Rules())))
	return Event{Path: r.name, Graph: g}
}

// Start begins watching. The directories of the watched files are watched rather than the
// files, so editors that save by renaming are followed.
func (r *Reloader) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.watching {
		return errors.New("already watching")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	dirs := map[string]bool{filepath.Dir(r.path): true}
	for p := range r.tracked {
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return fmt.Errorf("error adding directory to watcher: %w", err)
		}
	}

	r.watcher = w
	r.done = make(chan struct{})
	r.stopped = make(chan struct{})
	r.watching = true
	go r.watchLoop(w, r.done, r.stopped)
	return nil
}

// Stop ends watching and waits for the watch loop to exit.
func (r *Reloader) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.watching {
		return nil
	}
	r.watching = false
	close(r.done)
	err := r.watcher.Close()
	<-r.stopped
	return err
}

func (r *Reloader) watchLoop(w *fsnotify.Watcher, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	pending := make(map[string]bool)

	for {
		select {
		case <-done:
			timer.Stop()
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			name := filepath.Clean(event.Name)
			if name != r.path && !r.tracked[name] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending[name] = true
			resetTimer(timer, r.debounce)

		case <-timer.C:
			r.flush(pending)
			pending = make(map[string]bool)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			r.logger.Error("Watcher error", zap.Error(err))
		}
	}
}

// resetTimer restarts t, discarding a tick that fired but was not received yet.
// A stale tick would otherwise flush before the quiet period is over.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// flush handles the changes collected during one debounce period. A grammar change wins
// over tracked file changes, since its event already carries the new graph.
func (r *Reloader) flush(pending map[string]bool) {
	if pending[r.path] {
		r.send(r.Reload())
		return
	}
	for name := range pending {
		r.send(Event{Path: name, Graph: r.Graph()})
	}
}

func (r *Reloader) send(e Event) {
	select {
	case r.events <- e:
	default:
		r.logger.Warn("Dropping reload event, no reader", zap.String("path", e.Path))
	}
}
