package vfs

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchTree watches dir and every directory below it, including ones created
// later. Events carry host paths. The channel closes when ctx is done or the
// notifier fails.
func WatchTree(ctx context.Context, dir string, logger *slog.Logger) (<-chan ChangeEvent, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	tw := &treeWatcher{w: w, dirs: make(map[string]bool), logger: logger}
	if err := tw.addTree(dir); err != nil {
		_ = w.Close()
		return nil, err
	}

	out := make(chan ChangeEvent, 64)
	go func() {
		defer close(out)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				ce := tw.classify(ev)
				if ce.Event == "" {
					continue
				}
				select {
				case out <- ce:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("Directory watch error", "path", dir, "error", err)
			}
		}
	}()
	return out, nil
}

type treeWatcher struct {
	w      *fsnotify.Watcher
	dirs   map[string]bool
	logger *slog.Logger
}

func (t *treeWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := t.w.Add(p); err != nil {
			if p == root {
				return err
			}
			t.logger.Debug("Skipping unwatchable directory", "path", p, "error", err)
			return filepath.SkipDir
		}
		t.dirs[p] = true
		return nil
	})
}

func (t *treeWatcher) classify(ev fsnotify.Event) ChangeEvent {
	switch {
	case ev.Has(fsnotify.Create):
		fi, err := os.Stat(ev.Name)
		if err == nil && fi.IsDir() {
			_ = t.addTree(ev.Name)
			return ChangeEvent{Event: ChangeAddDir, Path: ev.Name}
		}
		return ChangeEvent{Event: ChangeAdd, Path: ev.Name}
	case ev.Has(fsnotify.Write):
		return ChangeEvent{Event: ChangeModify, Path: ev.Name}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if t.dirs[ev.Name] {
			delete(t.dirs, ev.Name)
			_ = t.w.Remove(ev.Name)
			return ChangeEvent{Event: ChangeUnlinkDir, Path: ev.Name}
		}
		return ChangeEvent{Event: ChangeUnlink, Path: ev.Name}
	}
	return ChangeEvent{}
}
