package rules

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/upreach/ruleengine/internal/logger"
)

// FileDocumentStore loads rule documents from *.json files in a
// directory and watches it for new versions, so documents can be
// replaced without redeploying the host. Version immutability still
// holds: a file that re-declares an already-loaded (name, version)
// pair is ignored with a warning, never hot-swapped.
type FileDocumentStore struct {
	*InMemoryDocumentStore

	dir     string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileDocumentStore loads every document in dir. Files that fail
// validation are reported immediately; a directory with any invalid
// document refuses to load so a bad deploy is caught at startup.
func NewFileDocumentStore(dir string) (*FileDocumentStore, error) {
	s := &FileDocumentStore{
		InMemoryDocumentStore: NewInMemoryDocumentStore(),
		dir:                   dir,
		done:                  make(chan struct{}),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules directory %q: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := s.loadFile(path); err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
	}

	return s, nil
}

// Watch starts picking up new document versions dropped into the
// directory. Call Close to stop.
func (s *FileDocumentStore) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %q: %w", s.dir, err)
	}
	s.watcher = watcher

	go s.watchLoop()
	return nil
}

func (s *FileDocumentStore) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if err := s.loadFile(event.Name); err != nil {
				if errors.Is(err, ErrDocumentExists) {
					logger.Warn("ignoring change to already-loaded document version",
						"path", event.Name)
					continue
				}
				logger.Error("failed to load rule document", "path", event.Name, "error", err)
				continue
			}
			logger.Info("loaded rule document", "path", event.Name)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("rules directory watch error", "error", err)

		case <-s.done:
			return
		}
	}
}

func (s *FileDocumentStore) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc, err := LoadDocument(raw)
	if err != nil {
		return err
	}

	if err := s.Put(doc); err != nil {
		if errors.Is(err, ErrDocumentExists) {
			// Create+Write event pairs re-deliver the same file; only a
			// genuinely different definition deserves a warning.
			if stored, getErr := s.Get(doc.Name, doc.Version); getErr == nil &&
				bytes.Equal(stored.Raw(), raw) {
				return nil
			}
		}
		return err
	}
	return nil
}

// Close stops the directory watcher. The already-loaded documents stay
// available.
func (s *FileDocumentStore) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
