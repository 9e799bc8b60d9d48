package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tsawler/redactor"
	"github.com/tsawler/redactor/internal/config"
	"github.com/tsawler/redactor/internal/history"
	"github.com/tsawler/redactor/internal/server"
	"github.com/tsawler/redactor/rules"
)

var flagEnvFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP redaction service",
	Long: "Serve the upload API. Settings come from the environment (PORT, DATABASE_PATH, UPLOAD_DIR, RULES_PATH,\n" +
		"MAX_UPLOAD_MB, OCR_POLICY, RATE_LIMIT_RPS, MAX_CONNECTIONS, PLACEHOLDER), optionally seeded from --env-file.\n" +
		"The rule file is reloaded whenever it changes.",
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagEnvFile, "env-file", ".env", "Environment file loaded before reading settings")
}

func runServe(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(flagEnvFile)
	if err != nil {
		return err
	}

	store := rules.NewStore(rules.Default())
	if cfg.RulesPath != "" {
		if store, err = rules.OpenStore(cfg.RulesPath, logger); err != nil {
			return fmt.Errorf("loading rules: %w", err)
		}
	}

	hist, err := history.Open(cfg.DatabasePath)
	if err != nil {
		exitCode = ExitRuntimeError
		return err
	}
	defer func() {
		if err := hist.Close(); err != nil {
			logger.Error("Error closing history database", "error", err)
		}
	}()

	rec, release := newRecognizer(cfg.OCRPolicy, logger)
	defer release()
	opts := []redactor.Option{
		redactor.WithPlaceholder(cfg.Placeholder),
		redactor.WithOCRPolicy(cfg.OCRPolicy),
		redactor.WithMaxInputSize(cfg.MaxUploadBytes),
		redactor.WithLogger(logger),
	}
	if rec != nil {
		opts = append(opts, redactor.WithOCR(rec))
	}
	engine := redactor.New(opts...)

	srv, err := server.New(cfg, engine, store, hist, logger)
	if err != nil {
		exitCode = ExitRuntimeError
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting redaction service",
		"addr", cfg.Addr(),
		"upload_dir", cfg.UploadDir,
		"ocr_policy", cfg.OCRPolicy.String(),
		"rules_version", store.Current().Version())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(ctx) })
	if cfg.RulesPath != "" {
		g.Go(func() error { return store.Watch(ctx) })
	}
	if err := g.Wait(); err != nil {
		exitCode = ExitRuntimeError
		return err
	}
	return nil
}
