package signedurl

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileSecret loads the signing secret from a file and reloads it when the
// file changes. Rotating the secret on disk takes effect without a restart
// and immediately invalidates all outstanding signed URLs.
type FileSecret struct {
	path string
	log  *slog.Logger

	mu     sync.RWMutex
	secret []byte
}

// NewFileSecret reads the secret at path and starts watching its parent
// directory for changes until ctx is canceled. Watching the directory rather
// than the file survives the rename-and-replace pattern most secret managers
// use.
func NewFileSecret(ctx context.Context, path string, log *slog.Logger) (*FileSecret, error) {
	if log == nil {
		log = slog.Default()
	}
	fs := &FileSecret{path: path, log: log}
	if err := fs.reload(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create secret watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch secret dir: %w", err)
	}

	go fs.watch(ctx, w)
	return fs, nil
}

// Secret returns the current signing secret.
func (f *FileSecret) Secret() []byte {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.secret
}

func (f *FileSecret) reload() error {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("failed to read signing secret: %w", err)
	}
	secret := bytes.TrimSpace(raw)
	if len(secret) == 0 {
		return fmt.Errorf("signing secret file %q is empty", f.path)
	}
	f.mu.Lock()
	f.secret = secret
	f.mu.Unlock()
	return nil
}

func (f *FileSecret) watch(ctx context.Context, w *fsnotify.Watcher) {
	defer func() {
		// Best-effort watcher close; no actionable error handling path.
		_ = w.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(f.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := f.reload(); err != nil {
				// Keep serving the previous secret rather than going dark.
				f.log.Warn("signedurl.secret.reload.fail", slog.String("err", err.Error()))
				continue
			}
			f.log.Info("signedurl.secret.reload.ok")
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			f.log.Warn("signedurl.secret.watch.err", slog.String("err", err.Error()))
		}
	}
}
