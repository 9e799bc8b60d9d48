package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tsawler/redactor"
	"github.com/tsawler/redactor/ocr"
	"github.com/tsawler/redactor/raster"
	"github.com/tsawler/redactor/rules"
)

const version = "0.1.0"

// Exit codes
const (
	ExitSuccess      = 0
	ExitFailures     = 1
	ExitUsageError   = 2
	ExitRuntimeError = 4
)

// Shared engine flags
var (
	flagRules       string
	flagFormat      string
	flagPlaceholder string
	flagOCRPolicy   string
	flagMargin      int
	flagVerbose     bool
)

var rootCmd = &cobra.Command{
	Use:           "redact",
	Short:         "Remove sensitive content from documents",
	Long:          "Redact finds sensitive text in PDF, image, Word and Excel files, removes every copy of it, and only writes outputs that pass re-verification.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

// Run executes the root command and returns an exit code.
func Run() int {
	return execute(os.Args[1:], os.Stdout, os.Stderr)
}

func execute(args []string, stdout, stderr io.Writer) int {
	exitCode = ExitSuccess
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		if exitCode == ExitSuccess {
			return ExitUsageError
		}
	}
	return exitCode
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print redact version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "redact version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(versionCmd)
}

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagRules, "rules", "", "Rule file (YAML or TOML); built-in rules when empty")
	cmd.Flags().StringVar(&flagFormat, "format", "", "Declared format (pdf, image, word, excel); taken from the extension when empty")
	cmd.Flags().StringVar(&flagPlaceholder, "placeholder", "", "Replacement text for Word and Excel matches")
	cmd.Flags().StringVar(&flagOCRPolicy, "ocr", "if-available", "Text recognition on images (off, if-available, required)")
	cmd.Flags().IntVar(&flagMargin, "margin", raster.DefaultMargin, "Pixels filled around image matches")
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func loadRules() (*rules.RuleSet, error) {
	if flagRules == "" {
		return rules.Default(), nil
	}
	rs, err := rules.LoadFile(flagRules)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	return rs, nil
}

// newEngine builds an engine from the shared flags. The returned function
// releases the text recognizer.
func newEngine(logger *slog.Logger, opts ...redactor.Option) (*redactor.Engine, func(), error) {
	policy, err := raster.ParseOCRPolicy(flagOCRPolicy)
	if err != nil {
		return nil, nil, err
	}
	rec, release := newRecognizer(policy, logger)
	opts = append([]redactor.Option{
		redactor.WithPlaceholder(flagPlaceholder),
		redactor.WithOCRPolicy(policy),
		redactor.WithMargin(flagMargin),
		redactor.WithLogger(logger),
	}, opts...)
	if rec != nil {
		opts = append(opts, redactor.WithOCR(rec))
	}
	return redactor.New(opts...), release, nil
}

// newRecognizer returns a Tesseract client when the binary was built with
// it, or nil.
func newRecognizer(policy raster.OCRPolicy, logger *slog.Logger) (ocr.Recognizer, func()) {
	if policy == raster.OCROff {
		return nil, func() {}
	}
	client, err := ocr.New()
	if err != nil {
		logger.Debug("Text recognition unavailable", "error", err)
		return nil, func() {}
	}
	return client, func() { client.Close() }
}
