package sdk

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 100 * time.Millisecond

// ShapeWatcher re-reads shape definition files when they change and reports how they
// differ from the shapes bound on the database handle. Bound shapes are never
// replaced at runtime.
type ShapeWatcher struct {
	dir      string
	pattern  string
	db       *Database
	logger   *Logger
	debounce time.Duration
	changes  chan []ShapeDrift
}

func NewShapeWatcher(dir, pattern string, db *Database, logger *Logger) *ShapeWatcher {
	if logger == nil {
		logger = NopLogger()
	}
	return &ShapeWatcher{
		dir:      dir,
		pattern:  pattern,
		db:       db,
		logger:   logger,
		debounce: defaultWatchDebounce,
		changes:  make(chan []ShapeDrift, 1),
	}
}

// Changes delivers the drift found after each change. Only the latest result is kept
// when the reader falls behind.
func (w *ShapeWatcher) Changes() <-chan []ShapeDrift {
	return w.changes
}

// Check loads the definitions once and compares them with the bound shapes.
func (w *ShapeWatcher) Check() ([]ShapeDrift, error) {
	declared, err := LoadShapeDefinitions(os.DirFS(w.dir), w.pattern)
	if err != nil {
		return nil, err
	}
	return CompareShapes(w.db.Shapes(), declared), nil
}

// Run watches the directory tree until ctx is done.
func (w *ShapeWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	err = filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.InfoWithFields("Watching shape definitions", map[string]interface{}{"dir": w.dir, "pattern": w.pattern})
	w.report()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						w.logger.WarnWithFields("Failed to watch directory", map[string]interface{}{"dir": event.Name, "error": err.Error()})
					}
					continue
				}
			}
			if !w.matches(event.Name) {
				continue
			}
			w.logger.DebugWithFields("Shape definition changed", map[string]interface{}{"file": event.Name, "op": event.Op.String()})
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.report()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnWithFields("Watcher error", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (w *ShapeWatcher) matches(path string) bool {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return false
	}
	ok, err := doublestar.Match(w.pattern, filepath.ToSlash(rel))
	return err == nil && ok
}

func (w *ShapeWatcher) report() {
	drift, err := w.Check()
	if err != nil {
		w.logger.ErrorWithFields("Failed to load shape definitions", map[string]interface{}{"error": err.Error()})
		return
	}
	for _, d := range drift {
		w.logger.WarnWithFields("Shape drift", map[string]interface{}{
			"collection": d.Collection,
			"source":     d.Source,
			"reason":     d.Reason,
		})
	}
	// replace a result nobody has read yet
	select {
	case <-w.changes:
	default:
	}
	w.changes <- drift
}
