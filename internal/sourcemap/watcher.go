package sourcemap

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/exec-heatmap/pkg/utils"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher triggers a callback when map files under a root change.
// Bursts of events are coalesced into one callback per debounce window.
type Watcher struct {
	root     string
	debounce time.Duration
	onChange func(changed []string)
	logger   utils.Logger
}

// NewWatcher creates a Watcher. onChange receives the sorted changed paths.
func NewWatcher(root string, debounce time.Duration, onChange func(changed []string), logger utils.Logger) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Watcher{
		root:     root,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
	}
}

// Run watches until ctx is done or the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addWatchRecursive(watcher, w.root); err != nil {
		return err
	}

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	pending := map[string]bool{}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					_ = addWatchRecursive(watcher, event.Name)
					pending[event.Name] = true
					timer.Reset(w.debounce)
					continue
				}
			}

			if !strings.HasSuffix(event.Name, MapFileSuffix) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending[event.Name] = true
			timer.Reset(w.debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for path := range pending {
				changed = append(changed, path)
			}
			sort.Strings(changed)
			pending = map[string]bool{}

			w.logger.Debug("Source maps changed under %s: %v", w.root, changed)
			w.onChange(changed)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return watchErr
		}
	}
}

func addWatchRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if addErr := watcher.Add(path); addErr != nil && path == root {
			return addErr
		}
		return nil
	})
}
