package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"reeltrust/internal/config"
	"reeltrust/internal/database"
	"reeltrust/internal/encryption"
	"reeltrust/internal/manifest"
	"reeltrust/internal/media"
	"reeltrust/internal/model"
	"reeltrust/internal/reel"
	"reeltrust/internal/staging"
	"reeltrust/internal/vault"
)

// VaultOpener creates the vault described by a config entry.
type VaultOpener func(ctx context.Context, cfg config.VaultConfig) (reel.Vault, error)

// dependencies are the collaborators a ReelApp is built from.
type dependencies struct {
	ledger    reel.Ledger
	tools     reel.Tools
	staging   reel.WorkspaceProvider
	encryptor reel.Encryptor
	logger    reel.Logger
	clock     reel.Clock
	ids       reel.IDGenerator
	openVault VaultOpener
}

// ReelApp is the application layer between the CLI and the reel core.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw command-line values, and records what it did in the ledger.
type ReelApp struct {
	cfg       *config.Config
	deps      dependencies
	signer    *reel.Signer
	validator *reel.Validator
	verifier  *reel.Verifier
	op        *Operation
	logFile   *os.File
}

// NewReelApp creates a fully wired ReelApp from the given config.
// operation identifies the CLI command being run (e.g. "Sign", "Verify").
// With verbose set, log records are echoed to stderr.
// The caller must call Close when done.
func NewReelApp(cfg *config.Config, operation, parameters string, verbose bool) (*ReelApp, error) {
	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID, verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	ledger, err := database.NewLedgerFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating ledger: %w", err)
	}
	if err := ledger.CheckMigrations(); err != nil {
		ledger.Close()
		logFile.Close()
		return nil, fmt.Errorf("ledger schema out of date: %w", err)
	}

	st, err := staging.NewStagingFromConfig(cfg.Staging)
	if err != nil {
		ledger.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating staging: %w", err)
	}
	if n, err := st.Sweep(); err != nil {
		logger.Warn("sweeping stale workspaces failed", "error", err)
	} else if n > 0 {
		logger.Info("removed stale workspaces", "count", n)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		ledger.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	a := newReelApp(cfg, operation, parameters, dependencies{
		ledger:    ledger,
		tools:     media.NewToolsFromConfig(cfg.Tools, cfg.Verify.AudioMatchThreshold),
		staging:   st,
		encryptor: enc,
		logger:    logger,
		clock:     reel.RealClock{},
		ids:       reel.UUIDGenerator{},
		openVault: vault.NewVaultFromConfig,
	})
	a.logFile = logFile
	return a, nil
}

func newReelApp(cfg *config.Config, operation, parameters string, deps dependencies) *ReelApp {
	tolerance := cfg.Verify.DurationToleranceSeconds
	validator := reel.NewValidator(deps.logger, tolerance)
	return &ReelApp{
		cfg:       cfg,
		deps:      deps,
		signer:    reel.NewSigner(deps.tools, deps.staging, deps.logger, deps.clock, tolerance),
		validator: validator,
		verifier:  reel.NewVerifier(validator, deps.tools, deps.staging, deps.logger),
		op:        NewOperation(operation, parameters),
	}
}

// persistOperation saves the operation to the ledger, giving it an auto-increment ID.
// This should only be called by commands whose outcome belongs in the history.
// A ledger failure leaves the operation unrecorded; the command still runs.
func (a *ReelApp) persistOperation() {
	if a.op.Persisted() {
		return
	}
	dbOp, err := a.deps.ledger.CreateOperation(a.op.Name, a.op.Parameters, a.deps.clock.Now())
	if err != nil {
		a.deps.logger.Warn("recording operation in ledger failed", "operation", a.op.Name, "error", err)
		return
	}
	a.op.ID = dbOp.ID
}

// failed marks the operation as failed and passes err through.
func (a *ReelApp) failed(err error) error {
	a.op.Fail()
	return err
}

// SignOptions are the raw inputs of the sign command.
type SignOptions struct {
	Input     string
	OutputDir string // empty means <base_dir>/packages
	User      string
	GPS       string // "LAT,LON"; empty means none
	Width     int    // 0 means the configured width
	Quality   string // preset name or CRF; empty means the configured quality
}

// Sign builds a verification package for opts.Input.
func (a *ReelApp) Sign(ctx context.Context, opts SignOptions) (*manifest.Package, error) {
	input, err := filepath.Abs(opts.Input)
	if err != nil {
		return nil, &reel.Error{Kind: reel.KindInput, Path: opts.Input, Err: err}
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(a.cfg.BaseDir, "packages")
	}

	params := manifest.DigestParams{Width: a.cfg.Digest.Width, Quality: manifest.Quality(a.cfg.Digest.Quality)}
	if opts.Width != 0 {
		params.Width = opts.Width
	}
	if opts.Quality != "" {
		q, err := manifest.ParseQuality(opts.Quality)
		if err != nil {
			return nil, &reel.Error{Kind: reel.KindInput, Err: err}
		}
		params.Quality = q
	}
	var gps *manifest.GPS
	if opts.GPS != "" {
		if gps, err = manifest.ParseGPS(opts.GPS); err != nil {
			return nil, &reel.Error{Kind: reel.KindInput, Err: err}
		}
	}

	a.persistOperation()
	pkg, err := a.signer.SignVideo(ctx, reel.VideoSignRequest{
		SourcePath:   input,
		DigestParams: params,
		User:         opts.User,
		GPS:          gps,
		OutputDir:    outputDir,
	})
	if err != nil {
		return nil, a.failed(err)
	}

	if err := a.deps.ledger.RecordPackage(&model.SignedPackage{
		ID:             pkg.ID(),
		OperationID:    a.op.ID,
		SourceHash:     pkg.SourceDigest().Hex,
		SourceFilename: pkg.Metadata().SourceFilename,
		DigestHash:     pkg.ReferenceDigest().Hex,
		PackageDir:     pkg.Dir(),
		CreatedAt:      a.deps.clock.Now(),
	}); err != nil {
		a.deps.logger.Warn("recording package in ledger failed", "package_id", pkg.ID(), "error", err)
	}
	return pkg, nil
}

// VerifyOptions returns the verification options configured for this app.
// Callers override individual fields from command-line flags.
func (a *ReelApp) VerifyOptions() reel.VerifyOptions {
	v := a.cfg.Verify
	return reel.VerifyOptions{
		Threshold:      v.Threshold,
		WindowDuration: time.Duration(v.WindowSeconds * float64(time.Second)),
		Strict:         v.Strict,
		AudioPolicy:    reel.AudioPolicy(v.AudioPolicy),
	}
}

// Verify checks candidate against the package in packageDir and records the outcome.
func (a *ReelApp) Verify(ctx context.Context, candidate, packageDir string, opts reel.VerifyOptions) (*reel.Result, error) {
	a.persistOperation()
	result, err := a.verifier.Verify(ctx, packageDir, candidate, opts)
	if err != nil {
		return nil, a.failed(err)
	}

	v := &model.Verification{
		ID:            a.deps.ids.New(),
		OperationID:   a.op.ID,
		PackageID:     result.PackageID,
		CandidatePath: candidate,
		CandidateHash: result.CandidateHash,
		Verdict:       string(result.Verdict),
		Reason:        string(result.Reason),
		CreatedAt:     a.deps.clock.Now(),
	}
	if s := result.Similarity; s != nil {
		score := s.MinWindowScore
		v.MinWindowScore = &score
	}
	if err := a.deps.ledger.RecordVerification(v); err != nil {
		a.deps.logger.Warn("recording verification in ledger failed", "error", err)
	}
	return result, nil
}

// ExtractClips writes inspection clips for a verification that failed on
// similarity. Other results produce an empty ClipSet.
func (a *ReelApp) ExtractClips(ctx context.Context, result *reel.Result, candidate, packageDir, clipsDir string) (*reel.ClipSet, error) {
	return a.verifier.ExtractClips(ctx, result, packageDir, candidate, clipsDir)
}

// Validate checks the structure of the package in dir.
func (a *ReelApp) Validate(dir string) (*reel.ValidationReport, error) {
	return a.validator.Validate(dir)
}

// vaultFor opens the named vault, or the first configured vault when name is empty.
func (a *ReelApp) vaultFor(ctx context.Context, name string) (reel.Vault, error) {
	if len(a.cfg.Vaults) == 0 {
		return nil, fmt.Errorf("no vaults configured")
	}
	vc := a.cfg.Vaults[0]
	if name != "" {
		var ok bool
		if vc, ok = a.cfg.Vault(name); !ok {
			return nil, &reel.Error{Kind: reel.KindInput, Err: fmt.Errorf("no vault named %q is configured", name)}
		}
	}
	v, err := a.deps.openVault(ctx, vc)
	if err != nil {
		return nil, &reel.Error{Kind: reel.KindStorage, Err: fmt.Errorf("opening vault %s: %w", vc.Name, err)}
	}
	return v, nil
}

func (a *ReelApp) publisher(v reel.Vault) *reel.Publisher {
	return reel.NewPublisher(a.validator, v, a.deps.encryptor, a.deps.staging, a.deps.logger)
}

// Publish archives the package in dir into the named vault (the first vault
// when vaultName is empty), sealing it first when seal is set.
func (a *ReelApp) Publish(ctx context.Context, dir, vaultName string, seal bool) (*reel.Publication, error) {
	a.persistOperation()
	v, err := a.vaultFor(ctx, vaultName)
	if err != nil {
		return nil, a.failed(err)
	}
	pub, err := a.publisher(v).Publish(ctx, dir, seal)
	if err != nil {
		return nil, a.failed(err)
	}

	if err := a.deps.ledger.RecordPublication(&model.Publication{
		ID:          a.deps.ids.New(),
		OperationID: a.op.ID,
		PackageID:   pub.PackageID,
		Vault:       pub.Vault,
		Checksum:    pub.Checksum,
		Size:        pub.Size,
		Sealed:      pub.Sealed,
		CreatedAt:   a.deps.clock.Now(),
	}); err != nil {
		a.deps.logger.Warn("recording publication in ledger failed", "error", err)
	}
	return pub, nil
}

// PassphraseFunc prompts for the passphrase of the private key.
type PassphraseFunc func() (string, error)

// Fetch retrieves the archive named by locator into outputDir. passphrase is
// only called when the archive is sealed.
func (a *ReelApp) Fetch(ctx context.Context, locator, outputDir string, passphrase PassphraseFunc) (*manifest.Package, error) {
	name, checksum, err := reel.ParseLocator(locator)
	if err != nil {
		return nil, &reel.Error{Kind: reel.KindInput, Err: err}
	}
	if outputDir == "" {
		outputDir = filepath.Join(a.cfg.BaseDir, "packages")
	}
	a.persistOperation()
	v, err := a.vaultFor(ctx, name)
	if err != nil {
		return nil, a.failed(err)
	}

	var unlock reel.UnlockFunc
	if enc := a.deps.encryptor; enc != nil && passphrase != nil {
		unlock = func() (reel.DecryptionContext, error) {
			pw, err := passphrase()
			if err != nil {
				return nil, err
			}
			return enc.Unlock(pw)
		}
	}
	pkg, err := a.publisher(v).Fetch(ctx, checksum, outputDir, unlock)
	if err != nil {
		return nil, a.failed(err)
	}
	return pkg, nil
}

// History returns the most recent operations, newest first.
func (a *ReelApp) History(limit int) ([]*model.HistoryEntry, error) {
	return a.deps.ledger.ListHistory(limit)
}

// SetupKeys generates the key pair used to seal published archives.
func SetupKeys(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return err
	}
	if enc == nil {
		return fmt.Errorf("encryption is disabled in the config")
	}
	if err := enc.Setup(passphrase); err != nil {
		if errors.Is(err, encryption.ErrKeysExist) {
			return fmt.Errorf("keys already exist at %s", cfg.Encryption.PrivateKeyPath)
		}
		return err
	}
	return nil
}

// Close finalizes the operation and closes all resources.
func (a *ReelApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.deps.ledger.FinishOperation(a.op.ID, a.op.Status, a.deps.clock.Now()); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	if err := a.deps.ledger.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing ledger: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
