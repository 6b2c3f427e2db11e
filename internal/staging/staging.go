// Package staging provides scoped scratch directories for package assembly.
//
// A workspace is created empty, filled by the caller, and then either
// committed to its final location with a single rename or discarded. Either
// way nothing is left behind in the staging location.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"reeltrust/internal/reel"
)

const workspacePattern = ".reeltrust-*"

// FileSystemStaging creates workspaces as temporary directories.
//
// Workspaces that are never committed live under root (or the system temp
// directory). Workspaces created near a destination live next to it, so the
// commit rename stays on one filesystem.
type FileSystemStaging struct {
	root string
}

// NewFileSystemStaging creates a staging provider rooted at root.
// An empty root means the system temp directory.
func NewFileSystemStaging(root string) (*FileSystemStaging, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create staging directory: %w", err)
		}
	}
	return &FileSystemStaging{root: root}, nil
}

// NewWorkspace creates an empty workspace.
func (s *FileSystemStaging) NewWorkspace(near string) (reel.Workspace, error) {
	parent := near
	if parent == "" {
		parent = s.root
	}
	if parent == "" {
		parent = os.TempDir()
	}
	dir, err := os.MkdirTemp(parent, workspacePattern)
	if err != nil {
		return nil, fmt.Errorf("creating workspace in %s: %w", parent, err)
	}
	return &workspace{dir: dir}, nil
}

// Sweep removes workspaces left under root by a process that was killed
// before it could clean up. It returns the number removed.
func (s *FileSystemStaging) Sweep() (int, error) {
	if s.root == "" {
		return 0, nil
	}
	matches, err := filepath.Glob(filepath.Join(s.root, workspacePattern))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range matches {
		if err := os.RemoveAll(m); err != nil {
			return n, fmt.Errorf("removing stale workspace %s: %w", m, err)
		}
		n++
	}
	return n, nil
}

// Compile-time check that FileSystemStaging implements reel.WorkspaceProvider
var _ reel.WorkspaceProvider = (*FileSystemStaging)(nil)

type workspace struct {
	mu   sync.Mutex
	dir  string
	done bool
}

func (w *workspace) Dir() string { return w.dir }

// Commit renames the workspace directory to dest. dest must not exist.
func (w *workspace) Commit(dest string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done {
		return fmt.Errorf("workspace %s already finished", w.dir)
	}
	if _, err := os.Lstat(dest); err == nil {
		return fmt.Errorf("destination %s already exists", dest)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking destination: %w", err)
	}
	if err := os.Chmod(w.dir, 0o755); err != nil {
		return fmt.Errorf("setting workspace permissions: %w", err)
	}
	if err := os.Rename(w.dir, dest); err != nil {
		return fmt.Errorf("moving workspace into place: %w", err)
	}
	w.done = true
	return nil
}

// Discard removes the workspace. It is a no-op after Commit or a previous Discard.
func (w *workspace) Discard() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done {
		return nil
	}
	w.done = true
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("removing workspace: %w", err)
	}
	return nil
}
