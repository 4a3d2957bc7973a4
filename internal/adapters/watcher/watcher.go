// Package watcher submits request files dropped into watched directories.
package watcher

import (
	"context"
	"crypto/sha256"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event represents a settled change of a request file.
type Event struct {
	Path      string
	Operation Operation

	sum [sha256.Size]byte
}

// Operation represents the type of file operation.
type Operation int

// File operation types.
const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Handler is called once per settled request file change. Calls are
// serialized.
type Handler func(ctx context.Context, event Event) error

// Config holds watcher configuration.
type Config struct {
	Paths    []string
	Debounce time.Duration
}

// Watcher watches directories for request files. A file is handed to the
// handler once it has been quiet for the debounce period, and only when its
// content differs from the last content the handler accepted.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	handler   Handler
	logger    *slog.Logger
	paths     []string
	debounce  time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	ops     map[string]Operation
	digests map[string][sha256.Size]byte // content the handler accepted
	pending map[string][sha256.Size]byte // content queued or being handled
	queue   chan Event
}

// New creates a new request file watcher.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		handler:   handler,
		logger:    logger,
		paths:     cfg.Paths,
		debounce:  cfg.Debounce,
		timers:    make(map[string]*time.Timer),
		ops:       make(map[string]Operation),
		digests:   make(map[string][sha256.Size]byte),
		pending:   make(map[string][sha256.Size]byte),
		queue:     make(chan Event, 64),
	}, nil
}

// Start watches the configured directories until ctx is done or Stop is
// called. Unusable directories are logged and skipped.
func (w *Watcher) Start(ctx context.Context) error {
	for _, path := range w.paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			w.logger.Warn("invalid watch path", "path", path, "error", err)
			continue
		}
		if err := w.fsWatcher.Add(absPath); err != nil {
			w.logger.Warn("failed to watch path", "path", absPath, "error", err)
			continue
		}
		w.logger.Info("watching request directory", "path", absPath)
	}

	go w.eventLoop(ctx)
	go w.dispatch(ctx)

	return nil
}

// Stop stops the watcher and drops changes that have not settled yet.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	return w.fsWatcher.Close()
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.observe(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// observe (re)arms the debounce timer of a request file.
func (w *Watcher) observe(event fsnotify.Event) {
	if !IsRequestFile(event.Name) {
		return
	}
	op, ok := toOperation(event.Op)
	if !ok {
		return
	}

	w.logger.Debug("file event", "path", event.Name, "op", event.Op.String())

	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, seen := w.ops[event.Name]; seen {
		op = merge(prev, op)
	}
	w.ops[event.Name] = op

	if t, ok := w.timers[event.Name]; ok {
		t.Reset(w.debounce)
		return
	}
	path := event.Name
	w.timers[path] = time.AfterFunc(w.debounce, func() { w.settle(path) })
}

// merge combines the pending operation of a file with a new one.
func merge(prev, next Operation) Operation {
	switch {
	case next == OpDelete:
		return OpDelete
	case prev == OpDelete, prev == OpCreate:
		// recreated, or still being written after creation
		return OpCreate
	default:
		return next
	}
}

// settle queues the pending change of path unless its content was already
// accepted or is still queued.
func (w *Watcher) settle(path string) {
	w.mu.Lock()
	op := w.ops[path]
	delete(w.ops, path)
	delete(w.timers, path)

	if op == OpDelete {
		delete(w.digests, path)
		delete(w.pending, path)
		w.mu.Unlock()
		w.enqueue(Event{Path: path, Operation: op})
		return
	}
	w.mu.Unlock()

	sum, err := digest(path)
	if err != nil {
		w.logger.Warn("request file unreadable", "path", path, "error", err)
		return
	}

	w.mu.Lock()
	if prev, ok := w.digests[path]; ok && prev == sum {
		w.mu.Unlock()
		w.logger.Debug("request file unchanged", "path", path)
		return
	}
	if prev, ok := w.pending[path]; ok && prev == sum {
		w.mu.Unlock()
		w.logger.Debug("request file already queued", "path", path)
		return
	}
	w.pending[path] = sum
	w.mu.Unlock()

	w.enqueue(Event{Path: path, Operation: op, sum: sum})
}

func (w *Watcher) enqueue(e Event) {
	select {
	case w.queue <- e:
	default:
		w.logger.Error("request queue full, dropping file event", "path", e.Path)
		w.done(e, false)
	}
}

// done records the outcome of a handled change. Only accepted content is
// remembered, so a failed file is retried when saved again. Changes
// superseded by newer content or a deletion are not recorded.
func (w *Watcher) done(e Event, accepted bool) {
	if e.Operation == OpDelete {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if prev, ok := w.pending[e.Path]; !ok || prev != e.sum {
		return
	}
	delete(w.pending, e.Path)
	if accepted {
		w.digests[e.Path] = e.sum
	}
}

// dispatch hands settled changes to the handler one at a time.
func (w *Watcher) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-w.queue:
			w.logger.Info("processing request file", "path", e.Path, "operation", e.Operation.String())
			err := w.handler(ctx, e)
			if err != nil {
				w.logger.Error("request file failed",
					"path", e.Path,
					"operation", e.Operation.String(),
					"error", err,
				)
			}
			w.done(e, err == nil)
		}
	}
}

// toOperation maps an fsnotify operation. Permission changes carry no new
// content and are ignored.
func toOperation(op fsnotify.Op) (Operation, bool) {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpDelete, true
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpModify, true
	default:
		return 0, false
	}
}

func digest(path string) ([sha256.Size]byte, error) {
	var sum [sha256.Size]byte
	f, err := os.Open(path) //#nosec G304 -- path comes from a watched directory
	if err != nil {
		return sum, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return sum, err
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// IsRequestFile reports whether path is a YAML or JSON request file. Editor
// swap and hidden files are ignored.
func IsRequestFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
