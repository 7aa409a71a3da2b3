package local

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/drblury/protogate/bus"
	"github.com/drblury/protogate/internal/runtime/logging"
)

// Watch implements bus.Directory. Existing files are reported in sorted order,
// then files created later as they appear. Each file is reported once.
func (b *Bus) Watch(ctx context.Context, fn bus.WatchHandler) (bus.Subscription, error) {
	if b.isClosed() {
		return nil, bus.ErrClosed
	}
	return b.spawn(ctx, func(ctx context.Context) error {
		ticker := time.NewTicker(b.poll)
		defer ticker.Stop()

		seen := make(map[string]struct{})
		for {
			wake := b.dirChanged.wait()

			names, err := b.List(ctx)
			if err != nil {
				return err
			}
			for _, name := range names {
				if _, ok := seen[name]; ok {
					continue
				}
				seen[name] = struct{}{}
				if err := fn(ctx, name); err != nil {
					return err
				}
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wake:
			case <-ticker.C:
			}
		}
	}), nil
}

func (b *Bus) startWatcher() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := addTree(w, b.root); err != nil {
		_ = w.Close()
		return err
	}
	b.watcher = w

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.watchLoop(w)
	}()
	return nil
}

func (b *Bus) watchLoop(w *fsnotify.Watcher) {
	for {
		select {
		case <-b.closed:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			b.handleEvent(w, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			b.logger.Error("fsnotify error", err, nil)
		}
	}
}

func (b *Bus) handleEvent(w *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if err := addTree(w, ev.Name); err != nil {
			b.logger.Debug("Failed to watch new path", logging.LogFields{"path": ev.Name, "error": err.Error()})
		}
		b.dirChanged.broadcast()
	}
	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
		if f, ok := b.lookup(ev.Name); ok {
			f.changed.broadcast()
		}
	}
}

// addTree watches dir and every directory below it. Paths that are not
// directories are ignored.
func addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.Add(p)
	})
}
