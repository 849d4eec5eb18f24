package backoffice

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TokenFileName is the file FileTokenStore keeps the token in.
const TokenFileName = "session.token"

// TokenStore persists the session token as a single string.
// Load returns "" and no error when nothing is stored.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// FileTokenStore keeps the token in <Dir>/session.token, replaced atomically.
type FileTokenStore struct {
	Dir string
}

var _ TokenStore = FileTokenStore{}

// DefaultTokenDir is the per-user config directory for tourdesk clients.
func DefaultTokenDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "tourdesk"), nil
}

// Path returns the token file path.
func (f FileTokenStore) Path() string { return filepath.Join(f.Dir, TokenFileName) }

func (f FileTokenStore) Load() (string, error) {
	b, err := os.ReadFile(f.Path())
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading session token: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Save writes token to a temporary file in the same directory and renames it
// into place, so readers see either the old token or the new one.
func (f FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(f.Dir, 0o700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	file, err := os.CreateTemp(f.Dir, "."+TokenFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary session file: %w", err)
	}
	tmp := file.Name()

	if err := file.Chmod(0o600); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("restricting temporary session file: %w", err)
	}
	if _, err := file.WriteString(token); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing temporary session file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing temporary session file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temporary session file: %w", err)
	}
	if err := os.Rename(tmp, f.Path()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming session file into place: %w", err)
	}

	if dir, err := os.Open(f.Dir); err == nil {
		dir.Sync()
		dir.Close()
	}
	return nil
}

func (f FileTokenStore) Clear() error {
	if err := os.Remove(f.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session token: %w", err)
	}
	return nil
}

// MemoryTokenStore keeps the token in memory.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

var _ TokenStore = (*MemoryTokenStore)(nil)

func (m *MemoryTokenStore) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *MemoryTokenStore) Save(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryTokenStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}
