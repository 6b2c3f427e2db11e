package reel

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reeltrust/internal/manifest"
)

func writeArtifacts(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range manifest.ArtifactNames {
		content := "{\"name\":\"" + name + "\"}\n"
		if !manifest.IsJSONArtifact(name) {
			content = strings.Repeat("\x00video", 100)
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestWriteArchive_Deterministic(t *testing.T) {
	dir := writeArtifacts(t)

	var a, b bytes.Buffer
	if err := writeArchive(dir, &a); err != nil {
		t.Fatalf("writeArchive() error = %v", err)
	}
	// Touching the files must not change the archive.
	for _, name := range manifest.ArtifactNames {
		p := filepath.Join(dir, name)
		data, _ := os.ReadFile(p)
		os.Remove(p)
		if err := os.WriteFile(p, data, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := writeArchive(dir, &b); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("archives of the same package differ")
	}

	zr, err := zip.NewReader(bytes.NewReader(a.Bytes()), int64(a.Len()))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		if !f.Modified.IsZero() && f.Modified.Year() > 1980 {
			t.Errorf("%s has timestamp %v", f.Name, f.Modified)
		}
	}
	if strings.Join(names, ",") != strings.Join(manifest.ArtifactNames, ",") {
		t.Errorf("archive entries = %v", names)
	}
}

func TestExtractArchive_RoundTrip(t *testing.T) {
	dir := writeArtifacts(t)
	archive := filepath.Join(t.TempDir(), "pkg.zip")
	f, err := os.Create(archive)
	if err != nil {
		t.Fatal(err)
	}
	if err := writeArchive(dir, f); err != nil {
		t.Fatal(err)
	}
	f.Close()

	out := t.TempDir()
	if err := extractArchive(archive, out); err != nil {
		t.Fatalf("extractArchive() error = %v", err)
	}
	for _, name := range manifest.ArtifactNames {
		want, _ := os.ReadFile(filepath.Join(dir, name))
		got, err := os.ReadFile(filepath.Join(out, name))
		if err != nil || !bytes.Equal(got, want) {
			t.Errorf("%s not restored: %v", name, err)
		}
	}
}

func TestExtractArchive_RejectsForeignEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
	}{
		{"path traversal", []string{"../evil.json"}},
		{"unknown file", []string{"manifest.json", "notes.txt"}},
		{"nested artifact", []string{"sub/manifest.json"}},
		{"duplicate", []string{"manifest.json", "manifest.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			zw := zip.NewWriter(&buf)
			for _, e := range tt.entries {
				w, err := zw.CreateHeader(&zip.FileHeader{Name: e, Method: zip.Store})
				if err != nil {
					t.Fatal(err)
				}
				w.Write([]byte("{}"))
			}
			zw.Close()
			archive := filepath.Join(t.TempDir(), "bad.zip")
			if err := os.WriteFile(archive, buf.Bytes(), 0o644); err != nil {
				t.Fatal(err)
			}

			out := t.TempDir()
			if err := extractArchive(archive, out); err == nil {
				t.Error("extractArchive() expected error")
			}
			if _, err := os.Stat(filepath.Join(filepath.Dir(out), "evil.json")); err == nil {
				t.Error("entry escaped the extraction directory")
			}
		})
	}
}

func TestParseLocator(t *testing.T) {
	sum := manifest.Hash([]byte("x")).Hex
	tests := []struct {
		in        string
		wantVault string
		wantErr   bool
	}{
		{in: "local:" + sum, wantVault: "local"},
		{in: "s3:eu:" + sum, wantVault: "s3:eu"},
		{in: sum, wantErr: true},
		{in: ":" + sum, wantErr: true},
		{in: "local:abc", wantErr: true},
		{in: "local:" + strings.ToUpper(sum), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			vault, checksum, err := ParseLocator(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLocator() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if vault != tt.wantVault || checksum != sum {
				t.Errorf("ParseLocator() = %q, %q", vault, checksum)
			}
			if FormatLocator(vault, checksum) != tt.in {
				t.Errorf("FormatLocator() does not round-trip %q", tt.in)
			}
		})
	}
}
