package staging

import (
	"os"
	"path/filepath"
	"testing"

	"reeltrust/internal/config"
)

func newTestStaging(t *testing.T) (*FileSystemStaging, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "staging")
	s, err := NewFileSystemStaging(root)
	if err != nil {
		t.Fatalf("NewFileSystemStaging() error = %v", err)
	}
	return s, root
}

func entries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	es, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s) error = %v", dir, err)
	}
	return es
}

func TestWorkspace_Commit(t *testing.T) {
	s, root := newTestStaging(t)
	out := t.TempDir()

	ws, err := s.NewWorkspace(out)
	if err != nil {
		t.Fatalf("NewWorkspace() error = %v", err)
	}
	if filepath.Dir(ws.Dir()) != out {
		t.Errorf("workspace %s not created next to %s", ws.Dir(), out)
	}
	if err := os.WriteFile(filepath.Join(ws.Dir(), "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(out, "pkg")
	if err := ws.Commit(dest); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	if err != nil || string(data) != "a" {
		t.Errorf("committed file = %q, %v", data, err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("committed dir mode = %v, want 0755", info.Mode().Perm())
	}

	if err := ws.Discard(); err != nil {
		t.Errorf("Discard() after Commit error = %v", err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("Discard() after Commit removed destination: %v", err)
	}
	if n := len(entries(t, root)); n != 0 {
		t.Errorf("staging root has %d entries, want 0", n)
	}
}

func TestWorkspace_CommitRefusesExisting(t *testing.T) {
	s, _ := newTestStaging(t)
	out := t.TempDir()
	dest := filepath.Join(out, "pkg")
	if err := os.Mkdir(dest, 0o755); err != nil {
		t.Fatal(err)
	}

	ws, err := s.NewWorkspace(out)
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.Commit(dest); err == nil {
		t.Error("Commit() expected error for existing destination")
	}
	if err := ws.Discard(); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if n := len(entries(t, out)); n != 1 {
		t.Errorf("output has %d entries after discard, want only the existing dir", n)
	}
}

func TestWorkspace_Discard(t *testing.T) {
	s, root := newTestStaging(t)

	ws, err := s.NewWorkspace("")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(ws.Dir()) != root {
		t.Errorf("workspace %s not under root %s", ws.Dir(), root)
	}
	if err := os.MkdirAll(filepath.Join(ws.Dir(), "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := ws.Discard(); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if err := ws.Discard(); err != nil {
		t.Errorf("second Discard() error = %v", err)
	}
	if _, err := os.Stat(ws.Dir()); !os.IsNotExist(err) {
		t.Errorf("workspace still exists: %v", err)
	}
	if err := ws.Commit(filepath.Join(t.TempDir(), "x")); err == nil {
		t.Error("Commit() after Discard expected error")
	}
}

func TestFileSystemStaging_Sweep(t *testing.T) {
	s, root := newTestStaging(t)
	for i := 0; i < 3; i++ {
		if _, err := s.NewWorkspace(""); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "keep.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := s.Sweep()
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Sweep() = %d, want 3", n)
	}
	if es := entries(t, root); len(es) != 1 || es[0].Name() != "keep.txt" {
		t.Errorf("root entries after sweep = %v", es)
	}
}

func TestNewStagingFromConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ws")
	s, err := NewStagingFromConfig(config.StagingConfig{Dir: dir})
	if err != nil {
		t.Fatalf("NewStagingFromConfig() error = %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("staging dir not created: %v", err)
	}

	s, err = NewStagingFromConfig(config.StagingConfig{})
	if err != nil {
		t.Fatalf("NewStagingFromConfig() error = %v", err)
	}
	ws, err := s.NewWorkspace("")
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Discard()
	if filepath.Dir(ws.Dir()) != filepath.Clean(os.TempDir()) {
		t.Errorf("default workspace %s not in temp dir", ws.Dir())
	}
}
