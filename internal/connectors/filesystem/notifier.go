package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
	"github.com/custodia-labs/marginalia/internal/logger"
)

// Ensure Notifier implements the interface.
var _ driven.ChangeNotifier = (*Notifier)(nil)

// Notifier watches a directory tree with fsnotify and emits coalesced
// change hints. Many events between two receives produce one hint.
type Notifier struct {
	rootPath string
	watcher  *fsnotify.Watcher
	changes  chan struct{}

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewNotifier starts watching rootPath and every non-hidden directory
// below it. Directories created later are added as they appear.
func NewNotifier(rootPath string) (*Notifier, error) {
	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path error: %s is not a directory", rootPath)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	n := &Notifier{
		rootPath: rootPath,
		watcher:  watcher,
		changes:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	if err := n.addTree(rootPath); err != nil {
		watcher.Close()
		return nil, err
	}

	n.wg.Add(1)
	go n.loop()
	return n, nil
}

// Changes returns the hint channel. It is closed by Close.
func (n *Notifier) Changes() <-chan struct{} {
	return n.changes
}

// Close stops the watcher. It is safe to call more than once.
func (n *Notifier) Close() error {
	var err error
	n.closeOnce.Do(func() {
		close(n.done)
		err = n.watcher.Close()
		n.wg.Wait()
		close(n.changes)
	})
	return err
}

func (n *Notifier) loop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.done:
			return
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if n.handleEvent(event) {
				n.signal()
			}
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("notifier: %v", err)
			// Overflow loses events; a hint makes the next tick rescan.
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				n.signal()
			}
		}
	}
}

// handleEvent reports whether event should wake the scheduler. New
// directories are added to the watch.
func (n *Notifier) handleEvent(event fsnotify.Event) bool {
	if isHidden(filepath.Base(event.Name)) {
		return false
	}
	if event.Op == fsnotify.Chmod {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := n.addTree(event.Name); err != nil {
				logger.Warn("notifier: %v", err)
			}
		}
	}
	return true
}

// signal delivers a hint unless one is already waiting.
func (n *Notifier) signal() {
	select {
	case n.changes <- struct{}{}:
	default:
	}
}

// addTree adds dir and every non-hidden directory below it.
func (n *Notifier) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != n.rootPath && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := n.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		logger.Debug("notifier: watching %s", path)
		return nil
	})
}
