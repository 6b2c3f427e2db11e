package reel

import (
	"archive/zip"
	"compress/flate"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"reeltrust/internal/manifest"
)

// maxArtifactSize bounds a single extracted artifact.
const maxArtifactSize = 4 << 30

// writeArchive zips the five artifacts of dir into w in a fixed order with
// zeroed timestamps, so the same package always produces the same bytes.
func writeArchive(dir string, w io.Writer) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for _, name := range manifest.ArtifactNames {
		method := zip.Deflate
		if !manifest.IsJSONArtifact(name) {
			method = zip.Store
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			return fmt.Errorf("adding %s to archive: %w", name, err)
		}
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("opening %s: %w", name, err)
		}
		_, err = io.Copy(fw, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("archiving %s: %w", name, err)
		}
	}
	return zw.Close()
}

// extractArchive unpacks a package archive into dir. Only the five artifact
// names are accepted, each at most once.
func extractArchive(path, dir string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer zr.Close()

	seen := make(map[string]bool, len(manifest.ArtifactNames))
	for _, f := range zr.File {
		if !slices.Contains(manifest.ArtifactNames, f.Name) {
			return fmt.Errorf("unexpected archive entry %q", f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate archive entry %q", f.Name)
		}
		seen[f.Name] = true
		if f.UncompressedSize64 > maxArtifactSize {
			return fmt.Errorf("archive entry %q too large", f.Name)
		}
		if err := extractEntry(f, filepath.Join(dir, f.Name)); err != nil {
			return fmt.Errorf("extracting %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractEntry(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, io.LimitReader(rc, maxArtifactSize)); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
