// Package inbox uploads study files dropped into a watched directory.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/logger"
)

// ArchiveDir is the hidden subdirectory uploaded files are moved into.
const ArchiveDir = ".uploaded"

// DefaultSettle is how long a file must be quiet before it is uploaded.
const DefaultSettle = 500 * time.Millisecond

// Uploader is the part of driving.DocumentService the watcher needs.
type Uploader interface {
	Upload(ctx context.Context, filename string, data []byte) (*domain.Document, error)
}

// Watcher uploads files created in a directory once they stop changing.
// Uploaded files are moved into ArchiveDir so a restart does not upload
// them again. Hidden files and unsupported extensions are ignored.
type Watcher struct {
	dir      string
	uploader Uploader
	settle   time.Duration
	onUpload func(*domain.Document)

	mu      sync.Mutex
	pending map[string]time.Time
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettle sets the quiet period before a file is uploaded.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithOnUpload registers a callback for every accepted upload.
func WithOnUpload(fn func(*domain.Document)) Option {
	return func(w *Watcher) {
		w.onUpload = fn
	}
}

// New creates a watcher for dir.
func New(dir string, uploader Uploader, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		uploader: uploader,
		settle:   DefaultSettle,
		pending:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run uploads files already in the directory, then watches it until ctx
// is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("inbox: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("inbox: %s is not a directory", w.dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", w.dir, err)
	}
	logger.Info("inbox: watching %s", w.dir)

	if err := w.scan(); err != nil {
		return err
	}

	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if path, ok := w.handleFsEvent(ev); ok {
				w.touch(path, time.Now())
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("inbox: watcher error: %v", err)
		case now := <-ticker.C:
			for _, path := range w.due(now) {
				w.upload(ctx, path)
			}
		}
	}
}

// scan queues the files present when watching starts.
func (w *Watcher) scan() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("inbox: read %s: %w", w.dir, err)
	}
	now := time.Now()
	for _, entry := range entries {
		path := filepath.Join(w.dir, entry.Name())
		if entry.Type().IsRegular() && accepts(path) {
			w.touch(path, now)
		}
	}
	return nil
}

// handleFsEvent returns the path to upload for an event, if any.
func (w *Watcher) handleFsEvent(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return "", false
	}
	if !accepts(ev.Name) {
		return "", false
	}
	info, err := os.Stat(ev.Name)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return ev.Name, true
}

// touch records activity on path.
func (w *Watcher) touch(path string, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = at
}

// due removes and returns the paths that have been quiet for the settle period.
func (w *Watcher) due(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.settle {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	return ready
}

// upload sends one file and archives it on success.
func (w *Watcher) upload(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("inbox: read %s: %v", path, err)
		}
		return
	}

	doc, err := w.uploader.Upload(ctx, filepath.Base(path), data)
	if err != nil {
		logger.Warn("inbox: upload %s: %v", filepath.Base(path), err)
		return
	}
	logger.Info("inbox: uploaded %s as %s", doc.OriginalFilename, doc.ID)

	if err := archive(w.dir, path); err != nil {
		logger.Warn("inbox: archive %s: %v", path, err)
	}
	if w.onUpload != nil {
		w.onUpload(doc)
	}
}

// archive moves path into the archive directory, keeping existing files.
func archive(dir, path string) error {
	target := filepath.Join(dir, ArchiveDir)
	if err := os.MkdirAll(target, 0o700); err != nil {
		return err
	}

	name := filepath.Base(path)
	dest := filepath.Join(target, name)
	ext := filepath.Ext(name)
	for i := 1; ; i++ {
		if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
			break
		}
		dest = filepath.Join(target, fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), i, ext))
	}
	return os.Rename(path, dest)
}

// accepts reports whether path names a visible file of a supported type.
func accepts(path string) bool {
	if isHidden(path) {
		return false
	}
	_, err := domain.DetectFileType(path)
	return err == nil
}

// isHidden reports whether the file name starts with a dot or is a
// temporary file left by an editor or a partial download.
func isHidden(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") ||
		strings.HasPrefix(name, "~$") ||
		strings.HasSuffix(name, "~")
}
