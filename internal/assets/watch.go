package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the asset root and reports source files that changed in
// place so their cached derivatives can be invalidated. Stop must be called
// to release filesystem resources.
type Watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop halts the watcher and waits for the underlying goroutine to exit.
func (w *Watcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// Watch wires fsnotify around the store's root and invokes onChange with the
// root-relative path of every written, renamed, or removed file. New
// subdirectories are added to the watch set as they appear.
func Watch(ctx context.Context, store *Store, onChange func(relPath string), onError func(error)) (*Watcher, error) {
	if store == nil {
		return nil, fmt.Errorf("assets: watch requires a store")
	}
	if onChange == nil {
		return nil, fmt.Errorf("assets: watch requires a change callback")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("assets: watch: %w", err)
	}

	done := make(chan struct{})
	w := &Watcher{cancel: cancel, done: done}

	dirs := map[string]struct{}{}
	addDir := func(dir string) {
		dir = filepath.Clean(dir)
		if _, ok := dirs[dir]; ok {
			return
		}
		if err := watcher.Add(dir); err != nil {
			if onError != nil {
				onError(fmt.Errorf("assets: watch add %s: %w", dir, err))
			}
			return
		}
		dirs[dir] = struct{}{}
	}

	if err := filepath.WalkDir(store.Root(), func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if onError != nil {
				onError(fmt.Errorf("assets: walk watcher %s: %w", path, walkErr))
			}
			return nil
		}
		if d.IsDir() {
			addDir(path)
		}
		return nil
	}); err != nil {
		if onError != nil {
			onError(fmt.Errorf("assets: traverse watcher %s: %w", store.Root(), err))
		}
	}

	go func() {
		defer close(done)
		defer func() {
			if err := watcher.Close(); err != nil && onError != nil {
				onError(fmt.Errorf("assets: watch close: %w", err))
			}
		}()

		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name := filepath.Clean(event.Name)
				if event.Op&fsnotify.Create != 0 {
					info, err := os.Stat(name)
					if err == nil && info.IsDir() {
						addDir(name)
						continue
					}
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				rel, err := filepath.Rel(store.Root(), name)
				if err != nil || rel == "." {
					continue
				}
				onChange(filepath.ToSlash(rel))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(fmt.Errorf("assets: watch error: %w", err))
				}
			}
		}
	}()

	return w, nil
}
