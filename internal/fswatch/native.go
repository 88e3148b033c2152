package fswatch

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// NativeWatch is one underlying OS watch. Events and Errors are closed
// once the watch is closed.
type NativeWatch interface {
	Events() <-chan Event
	Errors() <-chan error
	Close() error
}

// NativeFactory builds a NativeWatch for cfg.
type NativeFactory func(cfg Config) (NativeWatch, error)

type fsnotifyWatch struct {
	watcher   *fsnotify.Watcher
	recursive bool
	events    chan Event
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewFSNotify is the default NativeFactory.
func NewFSNotify(cfg Config) (NativeWatch, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.Recursive {
		err = addWatchRecursive(fw, cfg.Path)
	} else {
		err = fw.Add(cfg.Path)
	}
	if err != nil {
		fw.Close()
		return nil, err
	}

	w := &fsnotifyWatch{
		watcher:   fw,
		recursive: cfg.Recursive,
		events:    make(chan Event, 64),
		errors:    make(chan error, 1),
		done:      make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func addWatchRecursive(fw *fsnotify.Watcher, root string) error {
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
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

func (w *fsnotifyWatch) loop() {
	defer w.wg.Done()
	defer close(w.events)
	defer close(w.errors)

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.recursive && ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					addWatchRecursive(w.watcher, ev.Name)
				}
			}
			for _, kind := range translate(ev.Op) {
				select {
				case w.events <- Event{Path: ev.Name, Kind: kind}:
				case <-w.done:
					return
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.done:
				return
			}
		}
	}
}

func translate(op fsnotify.Op) []ChangeKind {
	var kinds []ChangeKind
	if op.Has(fsnotify.Create) {
		kinds = append(kinds, Created)
	}
	if op.Has(fsnotify.Write) || op.Has(fsnotify.Chmod) {
		kinds = append(kinds, Changed)
	}
	if op.Has(fsnotify.Remove) {
		kinds = append(kinds, Deleted)
	}
	if op.Has(fsnotify.Rename) {
		kinds = append(kinds, Renamed)
	}
	return kinds
}

func (w *fsnotifyWatch) Events() <-chan Event { return w.events }
func (w *fsnotifyWatch) Errors() <-chan error { return w.errors }

func (w *fsnotifyWatch) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
