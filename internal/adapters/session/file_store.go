// Package session stores the signed-in identity on disk.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/example/pm/internal/errs"
	"github.com/example/pm/internal/logging"
	"github.com/example/pm/internal/models"
	"github.com/example/pm/internal/ports/secondary"
)

// FileStore implements secondary.SessionStore with a JSON file.
type FileStore struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

var _ secondary.SessionStore = (*FileStore)(nil)

// NewFileStore creates a store backed by path (typically ~/.pm/session.json).
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the session file location.
func (s *FileStore) Path() string {
	return s.path
}

// Current returns the stored session, or errs.ErrNoSession when the file
// is missing, empty, or its token has expired.
func (s *FileStore) Current(ctx context.Context) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errs.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	if sess.Token == "" {
		return nil, errs.ErrNoSession
	}
	if sess.Expired(s.now()) {
		return nil, fmt.Errorf("%w: session expired at %s", errs.ErrNoSession, sess.ExpiresAt.Format(time.RFC3339))
	}
	return &sess, nil
}

// SignIn writes the session, readable only by the owner.
func (s *FileStore) SignIn(ctx context.Context, sess *models.Session) error {
	if sess == nil || sess.Token == "" {
		return fmt.Errorf("cannot sign in without a token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	logging.Info(ctx, "session_signed_in", zap.Int64("user_id", sess.UserID), zap.String("role", string(sess.Role)))
	return nil
}

// SignOut removes the session file. Signing out twice is not an error.
func (s *FileStore) SignOut(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	logging.Info(ctx, "session_signed_out")
	return nil
}

// Watch calls onChange whenever the session file is written, replaced or
// removed, until ctx is done. It watches the parent directory so the file
// may come and go.
func (s *FileStore) Watch(ctx context.Context, onChange func()) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				logging.Debug(ctx, "session_file_changed", zap.String("op", ev.Op.String()))
				onChange()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logging.Warn(ctx, "session_watch_error", zap.Error(err))
		}
	}
}
