package workspace

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/haasonsaas/sheetflow/internal/observability"
)

// Watcher rescans the workspace when spreadsheet files change on disk. It is
// optional; the session layer falls back to mtime-diff refresh at turn
// boundaries when watching is unavailable.
type Watcher struct {
	scanner  *Scanner
	logger   *observability.Logger
	debounce time.Duration
	onChange func(*Manifest)

	fs   *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher creates a watcher over the scanner's root. onChange fires with
// the refreshed manifest after each settled burst of file events.
func NewWatcher(scanner *Scanner, logger *observability.Logger, onChange func(*Manifest)) (*Watcher, error) {
	if logger == nil {
		logger = observability.Nop()
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(scanner.root); err != nil {
		fs.Close()
		return nil, err
	}
	return &Watcher{
		scanner:  scanner,
		logger:   logger,
		debounce: 500 * time.Millisecond,
		onChange: onChange,
		fs:       fs,
		done:     make(chan struct{}),
	}, nil
}

// Start runs the event loop until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Close stops the watcher and releases the OS handles.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fs.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "workspace watch error", "error", err)
		case <-fire:
			timer = nil
			fire = nil
			m, err := w.scanner.Refresh(ctx)
			if err != nil {
				w.logger.Warn(ctx, "workspace refresh failed", "error", err)
				continue
			}
			if w.onChange != nil {
				w.onChange(m)
			}
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return false
	}
	return spreadsheetExts[strings.ToLower(filepath.Ext(name))]
}
