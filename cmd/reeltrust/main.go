package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"reeltrust/internal/app"
	"reeltrust/internal/config"
	"reeltrust/internal/reel"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	code, err := execute(os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(code)
}

// exitCode is set by commands that finish without an error but still report
// a failure, such as a fail verdict.
var exitCode int

// execute runs the command line and returns the process exit code.
func execute(args []string, stdout io.Writer) (int, error) {
	exitCode = app.ExitOK
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	if err := rootCmd.Execute(); err != nil {
		return app.ExitCodeForError(err), err
	}
	return exitCode, nil
}

// newApp reads the config and creates a ReelApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Sign", "Verify").
func newApp(cmd *cobra.Command, operation string, args []string) (*app.ReelApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")

	a, err := app.NewReelApp(cfg, operation, strings.Join(args, " "), verbose)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.Load(defaults["config_path"], defaults["base_dir"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// usageError marks command-line mistakes as input errors.
func usageError(err error) error {
	return &reel.Error{Kind: reel.KindInput, Err: err}
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

// readPassphrase prompts on the terminal without echo. Input that is not a
// terminal is read one line at a time.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := stdinReader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pw), nil
}

var stdinReader = bufio.NewReader(os.Stdin)

var rootCmd = &cobra.Command{
	Use:           "reeltrust",
	Short:         "Tamper-evidence for video files",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration initialized at %s\n", defaults["config_path"])
		fmt.Fprintf(out, "Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Base Dir:   %s\n", cfg.BaseDir)
		fmt.Fprintf(out, "Log Dir:    %s\n", cfg.LogDir)
		fmt.Fprintf(out, "Digest:     width %d, quality %d\n", cfg.Digest.Width, cfg.Digest.Quality)
		fmt.Fprintf(out, "Verify:     threshold %v, window %vs, audio %s, strict %v\n",
			cfg.Verify.Threshold, cfg.Verify.WindowSeconds, cfg.Verify.AudioPolicy, cfg.Verify.Strict)
		fmt.Fprintf(out, "Database:   %s\n", cfg.Database.Type)
		fmt.Fprintf(out, "Encryption: %s\n", cfg.Encryption.Type)
		for _, v := range cfg.Vaults {
			fmt.Fprintf(out, "Vault:      %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage sealing keys",
}

var configKeysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair used to seal published packages",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pw, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if pw != confirm {
			return usageError(errors.New("passphrases do not match"))
		}
		if pw == "" {
			return usageError(errors.New("passphrase must not be empty"))
		}
		if err := app.SetupKeys(cfg, pw); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Keys written to %s\n", cfg.Encryption.PublicKeyPath)
		return nil
	},
}

// sign command
var signCmd = &cobra.Command{
	Use:   "sign VIDEO",
	Short: "Create a verification package for a video",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		opts := app.SignOptions{Input: args[0]}
		opts.OutputDir, _ = flags.GetString("output")
		opts.User, _ = flags.GetString("user")
		opts.GPS, _ = flags.GetString("gps")
		opts.Width, _ = flags.GetInt("width")
		opts.Quality, _ = flags.GetString("quality")

		a, err := newApp(cmd, "Sign", args)
		if err != nil {
			return err
		}
		defer a.Close()

		pkg, err := a.Sign(cmd.Context(), opts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Package:    %s\n", pkg.Dir())
		fmt.Fprintf(out, "Package ID: %s\n", pkg.ID())
		fmt.Fprintf(out, "Source:     %s\n", pkg.SourceDigest().Hex)
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify CANDIDATE PACKAGE_DIR",
	Short: "Check a video against a verification package",
	Args:  exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Verify", args)
		if err != nil {
			return err
		}
		defer a.Close()

		opts, err := verifyOptions(cmd, a.VerifyOptions())
		if err != nil {
			return err
		}

		result, err := a.Verify(cmd.Context(), args[0], args[1], opts)
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if err := writeResult(cmd.OutOrStdout(), result, asJSON); err != nil {
			return err
		}
		exitCode = app.ExitCodeForResult(result)

		clipsDir, _ := cmd.Flags().GetString("clips-dir")
		if clipsDir == "" || result.Reason != reel.ReasonSimilarityBelowThreshold {
			return nil
		}
		// Keep stdout parseable when it carries JSON.
		out := cmd.OutOrStdout()
		if asJSON {
			out = cmd.ErrOrStderr()
		}
		set, err := a.ExtractClips(cmd.Context(), result, args[0], args[1], clipsDir)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "inspection clips not written: %v\n", err)
			return nil
		}
		writeClips(out, set)
		return nil
	},
}

func writeClips(w io.Writer, set *reel.ClipSet) {
	for i, c := range set.Clips {
		fmt.Fprintf(w, "clip %d  %s to %s\n", i+1, c.Span.Windows[0].Start, c.Span.Windows[len(c.Span.Windows)-1].End)
		fmt.Fprintf(w, "  candidate   %s\n", c.ClipPath)
		if c.ComparisonPath != "" {
			fmt.Fprintf(w, "  comparison  %s\n", c.ComparisonPath)
		}
		if c.Err != nil {
			fmt.Fprintf(w, "  error       %v\n", c.Err)
		}
	}
	fmt.Fprintf(w, "Clips saved to %s\n", set.Dir)
}

// verifyOptions applies the flags the user set on top of the configured options.
func verifyOptions(cmd *cobra.Command, opts reel.VerifyOptions) (reel.VerifyOptions, error) {
	flags := cmd.Flags()
	if flags.Changed("threshold") {
		opts.Threshold, _ = flags.GetFloat64("threshold")
	}
	if flags.Changed("window") {
		seconds, _ := flags.GetFloat64("window")
		opts.WindowDuration = time.Duration(seconds * float64(time.Second))
	}
	if flags.Changed("strict") {
		opts.Strict, _ = flags.GetBool("strict")
	}
	if flags.Changed("audio-policy") {
		s, _ := flags.GetString("audio-policy")
		p, err := reel.ParseAudioPolicy(s)
		if err != nil {
			return opts, usageError(err)
		}
		opts.AudioPolicy = p
	}
	if flags.Changed("width") {
		opts.DigestWidth, _ = flags.GetInt("width")
	}
	return opts, nil
}

func writeResult(w io.Writer, r *reel.Result, asJSON bool) error {
	if !asJSON {
		return r.WriteText(w)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// validate command
var validateCmd = &cobra.Command{
	Use:   "validate PACKAGE_DIR",
	Short: "Check the structure and integrity of a package",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Validate", args)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Validate(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if report.Valid {
			fmt.Fprintf(out, "valid  %s  package %s\n", report.Dir, report.Token.Package().ID())
		} else {
			fmt.Fprintf(out, "invalid  %s  %s: %v\n", report.Dir, report.Reason(), report.Failure())
		}
		exitCode = app.ExitCodeForReport(report)
		return nil
	},
}

// publish command
var publishCmd = &cobra.Command{
	Use:   "publish PACKAGE_DIR",
	Short: "Archive a package into a vault",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultName, _ := cmd.Flags().GetString("vault")
		seal, _ := cmd.Flags().GetBool("seal")

		a, err := newApp(cmd, "Publish", args)
		if err != nil {
			return err
		}
		defer a.Close()

		pub, err := a.Publish(cmd.Context(), args[0], vaultName, seal)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Published package %s (%d bytes", pub.PackageID, pub.Size)
		if pub.Sealed {
			fmt.Fprint(out, ", sealed")
		}
		fmt.Fprintf(out, ")\nLocator: %s\n", pub.Locator())
		return nil
	},
}

// fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch LOCATOR",
	Short: "Retrieve a published package from a vault",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outputDir, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd, "Fetch", args)
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase := func() (string, error) { return readPassphrase("Passphrase: ") }
		pkg, err := a.Fetch(cmd.Context(), args[0], outputDir, passphrase)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Fetched package %s into %s\n", pkg.ID(), pkg.Dir())
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recorded operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "History", args)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.History(limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "No operations recorded.")
			return nil
		}

		for _, e := range entries {
			op := e.Operation
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			outcome := ""
			if v := e.Verification; v != nil {
				outcome = v.Verdict
				if v.Reason != "" {
					outcome += " (" + v.Reason + ")"
				}
			}
			fmt.Fprintf(out, "#%d  %-9s  %s  %-7s  %-8s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				outcome,
			)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Echo log records to stderr")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeysCmd)
	configKeysCmd.AddCommand(configKeysInitCmd)

	// root commands
	rootCmd.AddCommand(configCmd)

	rootCmd.AddCommand(signCmd)
	signCmd.Flags().StringP("output", "o", "", "Directory to write the package into (default <base_dir>/packages)")
	signCmd.Flags().StringP("user", "u", "", "Name recorded as the signer")
	signCmd.Flags().StringP("gps", "g", "", "Recording location as LAT,LON")
	signCmd.Flags().IntP("width", "w", 0, "Digest width in pixels (default from config)")
	signCmd.Flags().StringP("quality", "q", "", "Digest quality: maximum, high, medium, low or a CRF value")

	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().IntP("width", "w", 0, "Rebuild the candidate digest at this width")
	verifyCmd.Flags().Float64P("threshold", "t", 0.99, "Minimum acceptable window similarity")
	verifyCmd.Flags().Float64("window", 5, "Similarity window length in seconds")
	verifyCmd.Flags().Bool("strict", false, "Accept only a byte-identical digest")
	verifyCmd.Flags().String("audio-policy", "report", "Effect of an audio mismatch: report or require")
	verifyCmd.Flags().Bool("json", false, "Print the result as JSON")
	verifyCmd.Flags().String("clips-dir", "", "Write inspection clips of failing stretches under this directory")

	rootCmd.AddCommand(validateCmd)

	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().String("vault", "", "Vault to publish to (default the first configured vault)")
	publishCmd.Flags().Bool("seal", false, "Encrypt the archive with the configured public key")

	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringP("output", "o", "", "Directory to unpack the package into (default <base_dir>/packages)")

	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
