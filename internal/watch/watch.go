// Package watch reports changes to a patch's archive tree on disk, for
// patch authors iterating locally. It only reports which file changed;
// it does not resolve any chain or JSON overlay itself.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/SakuraUO/thcrap/internal/runconfig"
	"github.com/SakuraUO/thcrap/internal/xlog"
)

// ChangeEvent describes one debounced, stabilized change to a patch's
// archive tree.
type ChangeEvent struct {
	Patch      *runconfig.Patch
	Path       string
	DetectedAt time.Time
}

// Archive watches p's entire archive tree (recursively: fsnotify only
// watches the directories it's explicitly given, so new directories
// are added to the watch as they appear) and invokes onChange once
// per burst of activity, after waiting debounce for the affected file
// to stop changing size.
func Archive(ctx context.Context, p *runconfig.Patch, debounce time.Duration, onChange func(ChangeEvent)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: new watcher: %w", err)
	}
	defer w.Close()

	if err := addTreeRecursive(w, p.Archive); err != nil {
		return err
	}
	xlog.Info("watch: watching %s (%s)", p.ID, p.Archive)

	var timer *time.Timer
	schedule := func(path string) {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			if err := waitStable(path, 150*time.Millisecond, 10); err != nil {
				return
			}
			onChange(ChangeEvent{Patch: p, Path: path, DetectedAt: time.Now()})
		})
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Chmod) == 0 {
				continue
			}
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				if err := w.Add(ev.Name); err != nil {
					xlog.Warn("watch: failed to add new directory %s: %v", ev.Name, err)
				}
				continue
			}
			schedule(ev.Name)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				xlog.Warn("watch: %s: %v", p.ID, err)
			}
		}
	}
}

func addTreeRecursive(w *fsnotify.Watcher, root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.Add(path); err != nil {
				return fmt.Errorf("watch: add %s: %w", path, err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("watch: archive root %s does not exist", root)
		}
		return err
	}
	return nil
}

// waitStable samples path's size every interval and returns once two
// consecutive samples are equal, or an error after `attempts` samples
// without that happening.
func waitStable(path string, interval time.Duration, attempts int) error {
	var last int64 = -1
	for i := 0; i < attempts; i++ {
		info, err := os.Stat(path)
		if err != nil {
			time.Sleep(interval)
			continue
		}
		if info.Size() == last {
			return nil
		}
		last = info.Size()
		time.Sleep(interval)
	}
	return fmt.Errorf("watch: %s did not stabilize", path)
}
