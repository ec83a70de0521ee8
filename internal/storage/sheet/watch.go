// Watches the backing file for edits made by other programs.

package sheet

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch drops the cached snapshot whenever the backing file is changed by
// another program, for example saved from a spreadsheet editor. It returns
// once the watcher is installed; watching stops when ctx is done.
//
// The parent directory is watched rather than the file itself since editors
// and Save both replace the file through a rename.
func (s *Store) Watch(ctx context.Context) error {
	abs, err := filepath.Abs(s.path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
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
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					if s.refresh() {
						slog.InfoContext(ctx, "Backing file changed on disk", "path", s.path, "op", event.Op.String())
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching backing file", "path", s.path, "err", err)
			}
		}
	}()
	return nil
}

// refresh invalidates the snapshot unless it still describes the file on
// disk, which is the case right after our own Save. Reports whether the
// snapshot was dropped.
func (s *Store) refresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	fi, err := os.Stat(s.path)
	if err == nil && s.cache.matches(fi) {
		return false
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to stat backing file", "path", s.path, "err", err)
	}
	dropped := s.cache != nil
	s.cache = nil
	return dropped
}
