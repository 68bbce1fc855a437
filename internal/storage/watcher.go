package storage

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch invalidates cache entries when backing files change behind the
// process (an editor, another tool, a sync client). It runs until ctx is
// cancelled. The cache refills lazily on the next read, so an external edit
// becomes visible without restarting.
func (s *FileStore) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.rootDir); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
					!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				key, ok := keyFromFileName(filepath.Base(event.Name))
				if !ok {
					continue
				}
				s.cache.Invalidate(key)
				slog.DebugContext(ctx, "Invalidated cache for externally changed key", "key", key)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching storage root", "error", err)
			}
		}
	}()
	return nil
}
