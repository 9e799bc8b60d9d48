package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events editors emit for one save.
const reloadDelay = 150 * time.Millisecond

// Store holds the process-wide rule set. Jobs call Current once at start and
// keep that pointer for their whole run, so a reload never changes the
// rules under a running job.
type Store struct {
	path    string
	current atomic.Pointer[RuleSet]
	logger  *slog.Logger
}

// NewStore creates a store serving rs. It has no backing file, so Reload and
// Watch are unavailable.
func NewStore(rs *RuleSet) *Store {
	s := &Store{logger: slog.Default()}
	s.current.Store(rs)
	return s
}

// OpenStore loads the rule file at path and returns a store that can reload
// it.
func OpenStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rs, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, logger: logger}
	s.current.Store(rs)
	return s, nil
}

// Current returns the active rule set
func (s *Store) Current() *RuleSet {
	return s.current.Load()
}

// Swap atomically replaces the active rule set
func (s *Store) Swap(rs *RuleSet) {
	if rs == nil {
		return
	}
	old := s.current.Swap(rs)
	s.logger.Info("Rule set swapped", "old_version", old.Version(), "new_version", rs.Version(), "rules", rs.Len())
}

// Reload re-reads the backing file. The new set is fully compiled before the
// swap; on any error the previous set stays active.
func (s *Store) Reload() error {
	if s.path == "" {
		return errors.New("rule store has no backing file")
	}
	rs, err := LoadFile(s.path)
	if err != nil {
		return err
	}
	s.Swap(rs)
	return nil
}

// Watch reloads the rule file whenever it changes until ctx is done. The
// parent directory is watched so that editors which replace the file by
// rename are handled.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return errors.New("rule store has no backing file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(s.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch rule directory: %w", err)
	}

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(reloadDelay)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Rule watcher error", "error", err)

		case <-timer.C:
			if err := s.Reload(); err != nil {
				s.logger.Error("Rule reload failed, keeping previous rules",
					"path", s.path, "version", s.Current().Version(), "error", err)
				continue
			}
			// A rename replaces the inode; re-adding keeps the watch on the
			// directory entry.
			_ = watcher.Add(filepath.Dir(target))
		}
	}
}
