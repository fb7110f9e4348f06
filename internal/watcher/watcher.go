// Package watcher re-runs reconciliation when a watched manifest changes.
//
// fsnotify is not recursive, so every directory below the project root is
// registered individually, minus the managed environment and VCS metadata.
// Bursts of events are debounced into one batch before handlers run.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/pybootstrap/internal/errors"
	"github.com/conneroisu/pybootstrap/internal/logging"
	"github.com/conneroisu/pybootstrap/internal/resolver"
)

// FileWatcher watches a project tree for manifest changes.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	filters   []FileFilter
	handlers  []ChangeHandler
	logger    logging.Logger
	skip      map[string]bool
	mutex     sync.RWMutex

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter determines if a file should be watched
type FileFilter func(path string) bool

// ChangeHandler handles a debounced batch of events.
type ChangeHandler func(ctx context.Context, events []ChangeEvent) error

// NewFileWatcher creates a watcher whose handlers see batches separated by
// at least debounceDelay of quiet.
func NewFileWatcher(debounceDelay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeInternalError, "cannot create file watcher")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &FileWatcher{
		watcher:   w,
		debouncer: NewDebouncer(debounceDelay),
		logger:    logger.WithComponent("watcher"),
		skip:      make(map[string]bool),
		stop:      make(chan struct{}),
	}, nil
}

// AddFilter adds a filter; an event passes only if every filter accepts it.
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddPath watches a single directory.
func (fw *FileWatcher) AddPath(path string) error {
	if err := fw.watcher.Add(filepath.Clean(path)); err != nil {
		return errors.WrapIO(err, errors.ErrCodeInvalidPath, "cannot watch path").WithPath(path)
	}
	return nil
}

// AddRecursive watches root and every directory below it except those
// named in skip, given as absolute paths or names relative to root.
func (fw *FileWatcher) AddRecursive(root string, skip ...string) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeInvalidPath, "cannot resolve watch root").WithPath(root)
	}

	fw.mutex.Lock()
	for _, s := range skip {
		if !filepath.IsAbs(s) {
			s = filepath.Join(root, s)
		}
		fw.skip[filepath.Clean(s)] = true
	}
	fw.mutex.Unlock()

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return errors.WrapIO(err, errors.ErrCodeInvalidPath, "cannot walk watch root").WithPath(root)
			}
			fw.logger.Debug(context.Background(), "skipping unreadable directory", "path", path)
			return fs.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if fw.skipped(path) {
			return fs.SkipDir
		}
		return fw.AddPath(path)
	})
}

// Start runs the watch loop until ctx is done or Stop is called.
func (fw *FileWatcher) Start(ctx context.Context) {
	fw.wg.Add(3)
	go func() {
		defer fw.wg.Done()
		fw.debouncer.run(ctx, fw.stop)
	}()
	go func() {
		defer fw.wg.Done()
		fw.processEvents(ctx)
	}()
	go func() {
		defer fw.wg.Done()
		fw.watchLoop(ctx)
	}()
}

// Stop closes the underlying watcher and waits for the loops to exit.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		close(fw.stop)
		fw.debouncer.cancel()
		err = fw.watcher.Close()
	})
	fw.wg.Wait()
	return err
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.stop:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "file watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	// New directories have to be registered to see files created in them.
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !fw.skipped(event.Name) && NoGitFilter(event.Name) {
				if err := fw.AddPath(event.Name); err != nil {
					fw.logger.Warn(ctx, err, "cannot watch new directory")
				}
			}
			return
		}
	}

	if !fw.accepts(event.Name) {
		return
	}

	var modTime time.Time
	var size int64
	if info, err := os.Stat(event.Name); err == nil {
		modTime = info.ModTime()
		size = info.Size()
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventTypeCreated
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventTypeModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventTypeDeleted
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventTypeRenamed
	default:
		// chmod only
		return
	}

	fw.logger.Debug(ctx, "change detected", "path", event.Name, "type", eventType.String())
	fw.debouncer.Add(ChangeEvent{Type: eventType, Path: event.Name, ModTime: modTime, Size: size})
}

func (fw *FileWatcher) skipped(path string) bool {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()
	return fw.skip[filepath.Clean(path)]
}

func (fw *FileWatcher) accepts(path string) bool {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()
	for _, filter := range fw.filters {
		if !filter(path) {
			return false
		}
	}
	return true
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.stop:
			return
		case events := <-fw.debouncer.Output():
			fw.mutex.RLock()
			handlers := append([]ChangeHandler(nil), fw.handlers...)
			fw.mutex.RUnlock()

			for _, handler := range handlers {
				if err := handler(ctx, events); err != nil {
					fw.logger.Error(ctx, err, "change handler failed", "events", len(events))
				}
			}
		}
	}
}

// Debouncer groups rapid file changes together
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	timer   *time.Timer
	pending []ChangeEvent
	mutex   sync.Mutex
}

// NewDebouncer creates a debouncer that emits a batch once delay has passed
// without a new event.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:  delay,
		events: make(chan ChangeEvent, 100),
		output: make(chan []ChangeEvent, 10),
	}
}

// Add queues an event. Events are dropped when the queue is full; the
// pending batch already guarantees a flush.
func (d *Debouncer) Add(event ChangeEvent) {
	select {
	case d.events <- event:
	default:
	}
}

// Output delivers debounced batches.
func (d *Debouncer) Output() <-chan []ChangeEvent { return d.output }

func (d *Debouncer) run(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			d.cancel()
			return
		case <-stop:
			return
		case event := <-d.events:
			d.addEvent(event)
		}
	}
}

func (d *Debouncer) addEvent(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *Debouncer) cancel() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = nil
}

// flush emits the pending events, one per path keeping the latest, in path
// order.
func (d *Debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.pending) == 0 {
		return
	}

	latest := make(map[string]ChangeEvent, len(d.pending))
	for _, event := range d.pending {
		latest[event.Path] = event
	}
	events := make([]ChangeEvent, 0, len(latest))
	for _, event := range latest {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	select {
	case d.output <- events:
	default:
		// A batch is already queued; it will trigger the same reconcile.
	}
	d.pending = nil
}

// Trigger runs a reconcile function at most once at a time. A call that
// arrives while a run is in flight waits for it and then for one follow-up
// run, which every caller that arrived meanwhile shares.
type Trigger struct {
	group     singleflight.Group
	fn        func(ctx context.Context) error
	requested atomic.Uint64

	mu   sync.Mutex
	last flight
}

// flight is the outcome of one run and the newest request it covers.
type flight struct {
	covers uint64
	err    error
}

// NewTrigger wraps fn.
func NewTrigger(fn func(ctx context.Context) error) *Trigger {
	return &Trigger{fn: fn}
}

// Fire returns once a run that started after this call has finished, and
// reports whether that run was started by another caller.
func (t *Trigger) Fire(ctx context.Context) (bool, error) {
	want := t.requested.Add(1)
	for {
		if last := t.finished(); last.covers >= want {
			return true, last.err
		}

		v, _, shared := t.group.Do("reconcile", func() (interface{}, error) {
			f := flight{covers: t.requested.Load()}
			f.err = t.fn(ctx)

			t.mu.Lock()
			t.last = f
			t.mu.Unlock()
			return f, nil
		})
		if f := v.(flight); f.covers >= want {
			return shared, f.err
		}
		// The joined run started before this request.
	}
}

func (t *Trigger) finished() flight {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Handler adapts the trigger into a ChangeHandler.
func (t *Trigger) Handler() ChangeHandler {
	return func(ctx context.Context, _ []ChangeEvent) error {
		_, err := t.Fire(ctx)
		return err
	}
}

// IgnoreList holds a project's ignore patterns and reloads them from the
// ignore file when it changes.
type IgnoreList struct {
	path     string
	mu       sync.RWMutex
	patterns []string
}

// NewIgnoreList loads the ignore file at path. A missing file yields no
// patterns.
func NewIgnoreList(path string) (*IgnoreList, error) {
	l := &IgnoreList{path: filepath.Clean(path)}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the ignore file location.
func (l *IgnoreList) Path() string { return l.path }

// Patterns returns the current patterns.
func (l *IgnoreList) Patterns() []string {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.patterns
}

// Reload reads the ignore file again.
func (l *IgnoreList) Reload() error {
	patterns, err := resolver.LoadIgnoreFile(l.path)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.patterns = patterns
	l.mu.Unlock()
	return nil
}

// Handler reloads the patterns when a batch touches the ignore file.
func (l *IgnoreList) Handler() ChangeHandler {
	return func(ctx context.Context, events []ChangeEvent) error {
		for _, event := range events {
			if filepath.Clean(event.Path) == l.path {
				return l.Reload()
			}
		}
		return nil
	}
}

// ManifestFilter accepts files under root selected by the watch patterns
// and not excluded by the ignore patterns. The requirements file and the
// ignore file itself are always accepted.
func ManifestFilter(root string, patterns []string, ignore *IgnoreList, requirements string) FileFilter {
	return func(path string) bool {
		if ignore != nil && filepath.Clean(path) == ignore.Path() {
			return true
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			return false
		}
		rel = filepath.ToSlash(rel)
		if requirements != "" && rel == filepath.ToSlash(requirements) {
			return true
		}
		return resolver.Match(rel, patterns) && !resolver.Ignored(rel, ignore.Patterns())
	}
}

// NoDirFilter rejects paths inside any of dirs.
func NoDirFilter(dirs ...string) FileFilter {
	return func(path string) bool {
		for _, dir := range dirs {
			if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
				return false
			}
		}
		return true
	}
}

// NoGitFilter rejects paths inside a .git directory.
func NoGitFilter(path string) bool {
	slash := filepath.ToSlash(path)
	return !strings.HasPrefix(slash, ".git/") && !strings.Contains(slash, "/.git/") && !strings.HasSuffix(slash, "/.git")
}
