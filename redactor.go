// Package redactor removes sensitive content from documents so that it
// cannot be recovered from the output.
//
// An Engine accepts page documents (PDF), raster images, word packages
// (DOCX) and spreadsheet packages (XLSX). Each job confirms the declared
// format against the bytes, extracts every place the container stores
// text, detects matches with a read-only rule set, removes them from every
// copy, and re-verifies the candidate output from scratch. Output is only
// returned when verification finds nothing; every failure is fail-closed.
//
// Basic usage:
//
//	engine := redactor.New()
//	res, err := engine.Redact(ctx, data, format.WordPackage, rules.Default())
//	if err != nil {
//	    // no output exists; err is a *model.Error
//	}
//	os.WriteFile("clean.docx", res.Output, 0o644)
//
// Images can carry caller-supplied text regions and forced fills:
//
//	res, err := engine.Redact(ctx, png, format.RasterImage, rs,
//	    redactor.WithRegions(model.Region{Text: "Jane Roe", Rect: r}),
//	    redactor.WithForcedRects(signature),
//	)
package redactor

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/tsawler/redactor/detect"
	"github.com/tsawler/redactor/docx"
	"github.com/tsawler/redactor/format"
	"github.com/tsawler/redactor/model"
	"github.com/tsawler/redactor/ocr"
	"github.com/tsawler/redactor/pdf"
	"github.com/tsawler/redactor/raster"
	"github.com/tsawler/redactor/rules"
	"github.com/tsawler/redactor/verify"
	"github.com/tsawler/redactor/xlsx"
)

// Engine runs redaction jobs. It holds no per-job state and is safe for
// concurrent use.
type Engine struct {
	placeholder string
	recognizer  ocr.Recognizer
	policy      raster.OCRPolicy
	margin      int
	logger      *slog.Logger
	maxInput    int64
	minLiteral  int
	limits      model.Limits
}

// Result is the outcome of a successful job.
type Result struct {
	Output []byte
	Report *model.Report
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		policy:     raster.OCRIfAvailable,
		margin:     raster.DefaultMargin,
		logger:     slog.New(slog.DiscardHandler),
		maxInput:   DefaultMaxInputSize,
		minLiteral: verify.DefaultMinLiteralLen,
		limits:     model.Limits{MaxStream: DefaultMaxStreamSize, MaxDecoded: DefaultMaxDecodedSize},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Must is a helper that wraps a call to a function returning (T, error)
// and panics if the error is non-nil. It is intended for use in scripts
// or tests where error handling would be cumbersome.
func Must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}

// adapterFor returns the adapter for f. Every format.All value has a case.
func (e *Engine) adapterFor(f format.Format) (model.Adapter, error) {
	switch f {
	case format.PageDocument:
		return pdf.New(e.logger), nil
	case format.RasterImage:
		return raster.New(
			raster.WithRecognizer(e.recognizer),
			raster.WithPolicy(e.policy),
			raster.WithMargin(e.margin),
			raster.WithLogger(e.logger),
		), nil
	case format.WordPackage:
		return docx.New(e.placeholder, e.logger), nil
	case format.SpreadsheetPackage:
		return xlsx.New(e.placeholder, e.logger), nil
	default:
		return nil, model.NewError(model.UnsupportedFormat, "dispatch", "no adapter for format", nil)
	}
}

// checkFormat confirms that src holds the declared format.
func checkFormat(src []byte, f format.Format) error {
	if (f == format.WordPackage || f == format.SpreadsheetPackage) && format.IsCompoundFile(src) {
		return model.NewError(model.EncryptedOrProtected, "sniff", "package is encrypted", nil)
	}
	if got := format.Sniff(src); got != f {
		return model.NewError(model.FormatMismatch, "sniff",
			fmt.Sprintf("declared %s, content is %s", f, got), nil)
	}
	return nil
}

// Redact runs one job over src. On any error no output is returned.
func (e *Engine) Redact(ctx context.Context, src []byte, f format.Format, rs *rules.RuleSet, opts ...JobOption) (*Result, error) {
	start := time.Now()
	if rs == nil {
		rs = rules.Default()
	}
	logger := e.logger.With("format", f.String(), "rules_version", rs.Version())

	res, err := e.run(ctx, src, f, rs, jobOptions(opts), logger)
	if err != nil {
		err = classify(err, f, ctx)
		logger.Warn("redaction failed", "kind", model.KindOf(err).String(), "error", err, "elapsed", time.Since(start))
		return nil, err
	}
	logger.Info("redaction complete",
		"neutralized", len(res.Report.Neutralized),
		"bytes_in", len(src),
		"bytes_out", len(res.Output),
		"digest", res.Report.OutputDigest,
		"elapsed", time.Since(start))
	return res, nil
}

func (e *Engine) run(ctx context.Context, src []byte, f format.Format, rs *rules.RuleSet, job model.JobOptions, logger *slog.Logger) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, err := e.adapterFor(f)
	if err != nil {
		return nil, err
	}
	if int64(len(src)) > e.maxInput {
		return nil, model.NewError(model.CorruptInput, "read", "input exceeds size limit", nil)
	}
	if err := checkFormat(src, f); err != nil {
		return nil, err
	}

	job.Limits = e.limits
	doc, err := a.Open(ctx, src, job)
	if err != nil {
		return nil, stage(err, "open")
	}
	units, err := doc.Units(ctx)
	if err != nil {
		return nil, stage(err, "units")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	spans := detect.Detect(units, rs)
	plan := model.NewPlan(units, spans)
	logger.Debug("detection complete", "units", len(units), "spans", plan.Len())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &model.Report{Format: f.String(), Neutralized: []model.Neutralized{}}
	if err := doc.Apply(ctx, plan, report); err != nil {
		return nil, stage(err, "apply")
	}
	if len(report.Unresolved) > 0 {
		return nil, model.NewError(model.PartialRedactionFailure, "apply",
			fmt.Sprintf("%d spans could not be removed", len(report.Unresolved)), nil,
			report.UnresolvedLocations()...)
	}
	out, err := doc.Serialize()
	if err != nil {
		return nil, stage(err, "serialize")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := verify.Verifier{MinLiteralLen: e.minLiteral, Logger: logger, Limits: e.limits}
	result, err := v.Verify(ctx, out, a, rs, plan.Literals())
	if err != nil {
		return nil, stage(err, "verify")
	}
	if !result.Passed() {
		report.Findings = result.Findings
		return nil, model.NewError(model.ResidualContentDetected, "verify",
			fmt.Sprintf("%d residual matches", len(result.Findings)), nil, result.Locations()...)
	}

	sum := blake2b.Sum256(out)
	report.OutputDigest = hex.EncodeToString(sum[:])
	return &Result{Output: out, Report: report}, nil
}

// stage records the failing stage on engine errors. Errors that are not
// engine errors mean the container could not be processed.
func stage(err error, op string) error {
	var me *model.Error
	if errors.As(err, &me) {
		if me.Op == "" {
			me.Op = op
		}
		return me
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return model.NewError(model.CorruptInput, op, "container could not be processed", err)
}

// classify turns any job error into a *model.Error carrying the format.
func classify(err error, f format.Format, ctx context.Context) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		if !errors.Is(err, model.ErrCancelled) {
			err = model.NewError(model.Cancelled, "", "job cancelled", err)
		}
	}
	var me *model.Error
	if !errors.As(err, &me) {
		me = model.NewError(model.CorruptInput, "", "container could not be processed", err)
	}
	if me.Format == "" {
		me.Format = f.String()
	}
	return me
}

// RedactReader reads at most the engine's input limit from r and redacts
// it.
func (e *Engine) RedactReader(ctx context.Context, r io.Reader, f format.Format, rs *rules.RuleSet, opts ...JobOption) (*Result, error) {
	src, err := io.ReadAll(io.LimitReader(r, e.maxInput+1))
	if err != nil {
		return nil, classify(model.NewError(model.CorruptInput, "read", "input unreadable", err), f, ctx)
	}
	if int64(len(src)) > e.maxInput {
		return nil, classify(model.NewError(model.CorruptInput, "read", "input exceeds size limit", nil), f, ctx)
	}
	return e.Redact(ctx, src, f, rs, opts...)
}

// RedactFile redacts the file at src and publishes the output at dst. The
// output is written to a temporary file in dst's directory, synced and
// renamed into place, so dst either holds a verified output or is left
// untouched. A format of format.Unknown is taken from src's extension.
func (e *Engine) RedactFile(ctx context.Context, src, dst string, f format.Format, rs *rules.RuleSet, opts ...JobOption) (*Result, error) {
	if f == format.Unknown {
		f = format.FromFilename(src)
	}
	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	res, err := e.RedactReader(ctx, in, f, rs, opts...)
	in.Close()
	if err != nil {
		return nil, err
	}
	if err := Publish(dst, res.Output); err != nil {
		return nil, err
	}
	return res, nil
}

// Publish writes data to path atomically: a temporary file in the same
// directory is written, synced and renamed over path. On any failure the
// temporary file is removed and path is unchanged.
func Publish(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync output: %w", err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("failed to set output permissions: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to publish output: %w", err)
	}
	return nil
}

// Verify re-checks an existing file's bytes as the engine would before
// publishing. Without literals only re-extraction runs.
func (e *Engine) Verify(ctx context.Context, data []byte, f format.Format, rs *rules.RuleSet, literals ...string) (model.Verification, error) {
	if rs == nil {
		rs = rules.Default()
	}
	a, err := e.adapterFor(f)
	if err != nil {
		return model.Verification{}, classify(err, f, ctx)
	}
	if err := checkFormat(data, f); err != nil {
		return model.Verification{}, classify(err, f, ctx)
	}
	v := verify.Verifier{MinLiteralLen: e.minLiteral, Logger: e.logger, Limits: e.limits}
	res, err := v.Verify(ctx, data, a, rs, literals)
	if err != nil {
		return res, classify(err, f, ctx)
	}
	return res, nil
}
