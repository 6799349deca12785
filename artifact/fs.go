package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FSStore persists artifacts as files under a root directory, one
// subdirectory per session. Uploaded photos survive a process restart, which
// matters when a long-running processing job outlives a deploy.
//
// Session and artifact ids are hashed into the path so caller-supplied ids
// can never escape the root or collide with filesystem-reserved names.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed and returns the store.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, errors.New("artifact root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &FSStore{root: root}, nil
}

// Save stores (or overwrites) the artifact bytes for the given session and id.
func (a *FSStore) Save(sessionID, artifactID string, data []byte) error {
	dir := a.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	path := filepath.Join(dir, hashName(artifactID))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit artifact: %w", err)
	}
	// The id is stored alongside the blob so List can report original ids.
	if err := os.WriteFile(path+".id", []byte(artifactID), 0o644); err != nil {
		return fmt.Errorf("write artifact id: %w", err)
	}
	return nil
}

// Get returns the stored artifact bytes or ErrNotFound.
func (a *FSStore) Get(sessionID, artifactID string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(a.sessionDir(sessionID), hashName(artifactID)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

// List returns the artifact ids stored for the session.
func (a *FSStore) List(sessionID string) ([]string, error) {
	entries, err := os.ReadDir(a.sessionDir(sessionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".id" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(a.sessionDir(sessionID), entry.Name()))
		if err != nil {
			continue
		}
		ids = append(ids, string(raw))
	}
	return ids, nil
}

// Delete removes the artifact if present or returns ErrNotFound.
func (a *FSStore) Delete(sessionID, artifactID string) error {
	path := filepath.Join(a.sessionDir(sessionID), hashName(artifactID))
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("delete artifact: %w", err)
	}
	_ = os.Remove(path + ".id")
	return nil
}

// PurgeSession drops the whole session directory; unknown sessions are a
// no-op.
func (a *FSStore) PurgeSession(sessionID string) error {
	if err := os.RemoveAll(a.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("purge session artifacts: %w", err)
	}
	return nil
}

func (a *FSStore) sessionDir(sessionID string) string {
	return filepath.Join(a.root, hashName(sessionID))
}

func hashName(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:16])
}
