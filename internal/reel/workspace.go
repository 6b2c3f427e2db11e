package reel

// Workspace is a scoped scratch directory. Every Workspace must end in exactly
// one of Commit or Discard; Discard after Commit is a no-op so callers can
// defer it unconditionally.
type Workspace interface {
	// Dir returns the workspace directory.
	Dir() string

	// Commit atomically moves the workspace contents to dest, which must not exist.
	Commit(dest string) error

	// Discard removes the workspace and everything in it.
	Discard() error
}

// WorkspaceProvider creates workspaces.
type WorkspaceProvider interface {
	// NewWorkspace creates an empty workspace. Workspaces that will be
	// committed should be created on the same filesystem as their destination;
	// near is a path on that filesystem, or "" for the default location.
	NewWorkspace(near string) (Workspace, error)
}
