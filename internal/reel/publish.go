package reel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"reeltrust/internal/manifest"
)

// Publication is a package archive stored in a vault.
type Publication struct {
	PackageID string
	Vault     string
	Checksum  string
	Size      int64
	Sealed    bool
}

// Locator returns the "<vault>:<sha256>" string used to fetch the archive.
func (p *Publication) Locator() string {
	return FormatLocator(p.Vault, p.Checksum)
}

// FormatLocator joins a vault name and content checksum.
func FormatLocator(vault, checksum string) string {
	return vault + ":" + checksum
}

// ParseLocator splits a "<vault>:<sha256>" locator.
func ParseLocator(s string) (vault, checksum string, err error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 {
		return "", "", fmt.Errorf("invalid locator %q: want <vault>:<sha256>", s)
	}
	vault, checksum = s[:i], s[i+1:]
	if !manifest.ValidHex(manifest.HashAlgorithmSHA256, checksum) {
		return "", "", fmt.Errorf("invalid locator %q: %q is not a sha256 checksum", s, checksum)
	}
	return vault, checksum, nil
}

// UnlockFunc supplies a DecryptionContext when a fetched archive is sealed.
// It is only called when needed, so passphrase prompts can be deferred.
type UnlockFunc func() (DecryptionContext, error)

// Publisher moves packages in and out of a vault as single archives.
type Publisher struct {
	validator  *Validator
	vault      Vault
	encryptor  Encryptor
	workspaces WorkspaceProvider
	logger     Logger
}

// NewPublisher creates a Publisher. encryptor may be nil if sealing is not configured.
func NewPublisher(validator *Validator, vault Vault, encryptor Encryptor, workspaces WorkspaceProvider, logger Logger) *Publisher {
	return &Publisher{
		validator:  validator,
		vault:      vault,
		encryptor:  encryptor,
		workspaces: workspaces,
		logger:     logger,
	}
}

// Publish validates the package in dir, archives it, optionally seals the
// archive and stores it in the vault under its checksum.
func (p *Publisher) Publish(ctx context.Context, dir string, seal bool) (*Publication, error) {
	report, err := p.validator.Validate(dir)
	if err != nil {
		return nil, err
	}
	if !report.Valid {
		return nil, report.Failure()
	}
	if seal && (p.encryptor == nil || !p.encryptor.IsConfigured()) {
		return nil, &Error{Kind: KindInput, Err: fmt.Errorf("sealing requested but encryption keys are not configured")}
	}
	pkg := report.Token.Package()

	ws, err := p.workspaces.NewWorkspace("")
	if err != nil {
		return nil, storageError(fmt.Errorf("creating workspace: %w", err))
	}
	defer ws.Discard()

	blob := filepath.Join(ws.Dir(), "package.zip")
	if err := writeFile(blob, func(w io.Writer) error { return writeArchive(dir, w) }); err != nil {
		return nil, storageError(err)
	}
	if seal {
		sealed := blob + ".age"
		if err := writeFile(sealed, func(w io.Writer) error {
			f, err := os.Open(blob)
			if err != nil {
				return err
			}
			defer f.Close()
			return p.encryptor.Encrypt(f, w)
		}); err != nil {
			return nil, storageError(fmt.Errorf("sealing archive: %w", err))
		}
		blob = sealed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(blob)
	if err != nil {
		return nil, storageError(err)
	}
	defer f.Close()
	checksum, size, err := manifest.HashReader(f)
	if err != nil {
		return nil, storageError(err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, storageError(err)
	}

	if err := p.vault.PutContent(checksum.Hex, f, size); err != nil {
		return nil, storageError(fmt.Errorf("uploading to vault %s: %w", p.vault.Name(), err))
	}

	pub := &Publication{
		PackageID: pkg.ID(),
		Vault:     p.vault.Name(),
		Checksum:  checksum.Hex,
		Size:      size,
		Sealed:    seal,
	}
	p.logger.Info("package published", "package_id", pub.PackageID, "locator", pub.Locator(), "size", size, "sealed", seal)
	return pub, nil
}

// Fetch retrieves the archive with checksum from the vault, unseals it if
// needed, and unpacks it into <outputDir>/<package_id>_package. The package is
// validated before it becomes visible at its final location.
func (p *Publisher) Fetch(ctx context.Context, checksum, outputDir string, unlock UnlockFunc) (*manifest.Package, error) {
	scratch, err := p.workspaces.NewWorkspace("")
	if err != nil {
		return nil, storageError(fmt.Errorf("creating workspace: %w", err))
	}
	defer scratch.Discard()

	blob := filepath.Join(scratch.Dir(), "blob")
	if err := writeFile(blob, func(w io.Writer) error { return p.vault.GetContent(checksum, w) }); err != nil {
		if errors.Is(err, ErrContentNotFound) {
			return nil, inputError(FormatLocator(p.vault.Name(), checksum), err)
		}
		return nil, storageError(fmt.Errorf("downloading from vault %s: %w", p.vault.Name(), err))
	}
	got, err := manifest.HashFile(blob)
	if err != nil {
		return nil, storageError(err)
	}
	if got.Hex != checksum {
		return nil, &Error{Kind: KindHashMismatch, Path: FormatLocator(p.vault.Name(), checksum),
			Err: fmt.Errorf("downloaded content hashes to %s", got.Short())}
	}

	archive := blob
	sealed, err := p.isSealed(blob)
	if err != nil {
		return nil, storageError(err)
	}
	if sealed {
		if unlock == nil {
			return nil, &Error{Kind: KindInput, Err: fmt.Errorf("archive is sealed and no key is available")}
		}
		dc, err := unlock()
		if err != nil {
			return nil, &Error{Kind: KindInput, Err: fmt.Errorf("unlocking key: %w", err)}
		}
		archive = filepath.Join(scratch.Dir(), "package.zip")
		if err := writeFile(archive, func(w io.Writer) error {
			f, err := os.Open(blob)
			if err != nil {
				return err
			}
			defer f.Close()
			return dc.Decrypt(f, w)
		}); err != nil {
			return nil, storageError(fmt.Errorf("unsealing archive: %w", err))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, inputError(outputDir, err)
	}
	ws, err := p.workspaces.NewWorkspace(outputDir)
	if err != nil {
		return nil, storageError(fmt.Errorf("creating workspace: %w", err))
	}
	defer ws.Discard()

	if err := extractArchive(archive, ws.Dir()); err != nil {
		return nil, &Error{Kind: KindSchema, Err: err}
	}
	report, err := p.validator.Validate(ws.Dir())
	if err != nil {
		return nil, err
	}
	if !report.Valid {
		return nil, report.Failure()
	}
	pkg := report.Token.Package()

	dest := filepath.Join(outputDir, pkg.ID()+manifest.PackageDirSuffix)
	if _, err := os.Lstat(dest); err == nil {
		return nil, inputError(dest, fmt.Errorf("package directory already exists"))
	}
	if err := ws.Commit(dest); err != nil {
		return nil, storageError(fmt.Errorf("committing package: %w", err))
	}

	// Re-validate at the final location so the returned package points there.
	report, err = p.validator.Validate(dest)
	if err != nil {
		return nil, err
	}
	if !report.Valid {
		return nil, report.Failure()
	}
	p.logger.Info("package fetched", "package_id", pkg.ID(), "dir", dest, "sealed", sealed)
	return report.Token.Package(), nil
}

func (p *Publisher) isSealed(path string) (bool, error) {
	if p.encryptor == nil {
		return false, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	header, err := bufio.NewReader(f).Peek(64)
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return p.encryptor.IsSealed(header), nil
}

// writeFile creates path and fills it with fill, removing it on failure.
func writeFile(path string, fill func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if err := fill(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
