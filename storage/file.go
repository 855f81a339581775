package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"taskboard-api/domain"
)

const (
	boardsDir   = "boards"
	readSetsDir = "readsets"
	usersFile   = "users.json"
)

// FileStore keeps every document as a JSON file under a base directory:
// one board document and one read-set document per user, plus a single
// flat users file. This is the default backend, the server-side analogue
// of the browser's local storage.
type FileStore struct {
	dir string

	mu    sync.Mutex
	users []User
}

// NewFileStore creates the directory layout and loads the user file.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store: directory required")
	}
	for _, sub := range []string{boardsDir, readSetsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, err
		}
	}
	fs := &FileStore{dir: dir}
	if err := fs.loadUsers(); err != nil {
		return nil, err
	}
	return fs, nil
}

// LoadState reads the user's board document. Missing file means no state.
func (fs *FileStore) LoadState(_ context.Context, userID string) (*domain.BoardState, bool, error) {
	data, err := os.ReadFile(fs.boardPath(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var state domain.BoardState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, false, fmt.Errorf("board document for %s: %w", userID, err)
	}
	return &state, true, nil
}

// SaveState writes the board document atomically.
func (fs *FileStore) SaveState(_ context.Context, userID string, state *domain.BoardState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(fs.boardPath(userID), data)
}

func (fs *FileStore) LoadReadSet(_ context.Context, userID string) ([]string, error) {
	data, err := os.ReadFile(fs.readSetPath(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("read set for %s: %w", userID, err)
	}
	return ids, nil
}

func (fs *FileStore) SaveReadSet(_ context.Context, userID string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return writeFileAtomic(fs.readSetPath(userID), data)
}

// CreateUser appends the user to the flat users file. Email uniqueness is
// case-insensitive.
func (fs *FileStore) CreateUser(_ context.Context, u User) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	email := canonicalEmail(u.Email)
	for _, existing := range fs.users {
		if canonicalEmail(existing.Email) == email {
			return ErrDuplicateEmail
		}
	}
	u.Email = email
	fs.users = append(fs.users, u)
	return fs.saveUsersLocked()
}

func (fs *FileStore) UserByEmail(_ context.Context, email string) (User, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	email = canonicalEmail(email)
	for _, u := range fs.users {
		if canonicalEmail(u.Email) == email {
			return u, true, nil
		}
	}
	return User{}, false, nil
}

func (fs *FileStore) UserByID(_ context.Context, id string) (User, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, u := range fs.users {
		if u.ID == id {
			return u, true, nil
		}
	}
	return User{}, false, nil
}

func (fs *FileStore) loadUsers() error {
	data, err := os.ReadFile(filepath.Join(fs.dir, usersFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &fs.users)
}

func (fs *FileStore) saveUsersLocked() error {
	data, err := json.MarshalIndent(fs.users, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(fs.dir, usersFile), data)
}

func (fs *FileStore) boardPath(userID string) string {
	return filepath.Join(fs.dir, boardsDir, fileKey(userID)+".json")
}

func (fs *FileStore) readSetPath(userID string) string {
	return filepath.Join(fs.dir, readSetsDir, fileKey(userID)+".json")
}

// fileKey maps arbitrary user ids (UUIDs, external "issuer|subject" ids)
// onto safe file names.
func fileKey(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}

func canonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// writeFileAtomic writes via a temp file and rename so a crashed write
// never leaves a truncated document behind.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
