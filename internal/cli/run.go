package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tsawler/redactor"
	"github.com/tsawler/redactor/format"
	"github.com/tsawler/redactor/model"
	"github.com/tsawler/redactor/rules"
)

var (
	flagOutDir  string
	flagWorkers int
)

var runCmd = &cobra.Command{
	Use:   "run <file>...",
	Short: "Redact files",
	Long: "Redact each file and write the verified output as redacted_<name>, next to the input or in --out-dir.\n" +
		"A file whose output cannot be fully redacted and verified produces no output.",
	Args: cobra.MinimumNArgs(1),
	RunE: runRedact,
}

func init() {
	addEngineFlags(runCmd)
	runCmd.Flags().StringVar(&flagOutDir, "out-dir", "", "Output directory (default: next to each input)")
	runCmd.Flags().IntVar(&flagWorkers, "workers", runtime.NumCPU(), "Number of files processed in parallel")
}

type jobResult struct {
	src, dst string
	res      *redactor.Result
	err      error
}

func runRedact(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd.ErrOrStderr())
	rs, err := loadRules()
	if err != nil {
		return err
	}
	declared := format.Unknown
	if flagFormat != "" {
		if declared, err = format.Parse(flagFormat); err != nil {
			return err
		}
	}
	if flagOutDir != "" {
		if err := os.MkdirAll(flagOutDir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	engine, release, err := newEngine(logger)
	if err != nil {
		return err
	}
	defer release()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := redactAll(ctx, engine, rs, declared, args, flagOutDir, flagWorkers)

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %s: %v\n", r.src, r.err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok   %s -> %s (%d neutralized)\n", r.src, r.dst, len(r.res.Report.Neutralized))
	}
	if failed > 0 {
		exitCode = ExitFailures
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

// redactAll processes files with at most workers jobs in flight. One
// failed file does not stop the others.
func redactAll(ctx context.Context, engine *redactor.Engine, rs *rules.RuleSet, declared format.Format, files []string, outDir string, workers int) []jobResult {
	if workers < 1 {
		workers = 1
	}
	results := make([]jobResult, len(files))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(workers)
	for i, src := range files {
		g.Go(func() error {
			dst := outputPath(src, outDir)
			f := declared
			if f == format.Unknown {
				f = format.FromFilename(src)
			}
			var (
				res *redactor.Result
				err error
			)
			if f == format.Unknown {
				err = model.NewError(model.UnsupportedFormat, "dispatch", "format not recognised from file name", nil)
			} else {
				res, err = engine.RedactFile(ctx, src, dst, f, rs)
			}
			mu.Lock()
			results[i] = jobResult{src: src, dst: dst, res: res, err: err}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
}

func outputPath(src, outDir string) string {
	dir := filepath.Dir(src)
	if outDir != "" {
		dir = outDir
	}
	return filepath.Join(dir, "redacted_"+filepath.Base(src))
}
