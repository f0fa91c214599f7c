package suite

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch reports the paths of suite files that are written, created, removed
// or renamed below the engine paths. The channel closes when ctx is done.
func (e *Engine) Watch(ctx context.Context) (<-chan string, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	files := make(map[string]bool)
	for _, p := range e.paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			// Editors replace files on save, so the directory is watched.
			files[p] = true
			err = w.Add(filepath.Dir(p))
		} else {
			err = addTree(w, p)
		}
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("watch %s: %w", p, err)
		}
	}

	relevant := func(name string) bool {
		if files[name] {
			return true
		}
		if !IsSuiteFile(name) {
			return false
		}
		for _, p := range e.paths {
			if !files[p] && strings.HasPrefix(name, p+string(filepath.Separator)) {
				return true
			}
		}
		return false
	}

	ch := make(chan string)
	go func() {
		defer close(ch)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Create) {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						if strings.HasPrefix(info.Name(), ".") {
							continue
						}
						if err := addTree(w, ev.Name); err != nil {
							e.logger.Warn("watch directory failed", "path", ev.Name, "err", err)
						}
						continue
					}
				}
				if (ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write)) || !relevant(ev.Name) {
					continue
				}
				e.logger.Debug("suite changed", "path", ev.Name, "op", ev.Op.String())
				select {
				case ch <- ev.Name:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				e.logger.Warn("watch error", "err", err)
			}
		}
	}()
	return ch, nil
}

// addTree watches dir and every non-hidden directory below it.
func addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
