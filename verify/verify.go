// Package verify re-checks a candidate output before it is published.
//
// Verification is independent of the redaction that produced the output:
// the bytes are re-opened with the same adapter as if they were a fresh
// input, without caller hints, and every extracted unit is scanned with the
// rule set again. The raw bytes are then searched for each matched literal
// in UTF-8, UTF-16BE and UTF-16LE, including inside every zip entry of a
// package and every decodable stream of a page document. Any hit is a
// finding; a clean result has none.
package verify

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"

	"github.com/tsawler/redactor/core"
	"github.com/tsawler/redactor/detect"
	"github.com/tsawler/redactor/format"
	"github.com/tsawler/redactor/internal/filters"
	"github.com/tsawler/redactor/model"
	"github.com/tsawler/redactor/reader"
	"github.com/tsawler/redactor/rules"
)

const (
	// DefaultMinLiteralLen is the shortest literal, in runes, searched for
	// in raw bytes. Shorter literals match unrelated binary data.
	DefaultMinLiteralLen = 4

	// LiteralRuleID is the rule id reported for byte-scan findings.
	LiteralRuleID = "literal"

	// defaultMaxEntry caps each decoded entry or stream when no limits
	// are set.
	defaultMaxEntry = 256 << 20
)

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Finding sources.
const (
	SourceReextract = "reextract"
	SourceRaw       = "raw"
	SourceEntry     = "zip-entry"
	SourceStream    = "stream"
)

// Verifier re-scans outputs. The zero value uses DefaultMinLiteralLen,
// caps each decoded entry at 256 MiB and discards logs.
type Verifier struct {
	MinLiteralLen int
	Logger        *slog.Logger
	// Limits bound decoding while the output is re-opened and again
	// while its entries and streams are scanned.
	Limits model.Limits
}

// Verify checks output with a default Verifier.
func Verify(ctx context.Context, output []byte, a model.Adapter, rs *rules.RuleSet, literals []string) (model.Verification, error) {
	var v Verifier
	return v.Verify(ctx, output, a, rs, literals)
}

// pattern is one literal in one byte encoding.
type pattern struct {
	encoding string
	data     []byte
}

// Verify re-extracts and re-detects output, then byte-scans it for
// literals. An error means the output could not be examined, which callers
// must treat as a failed verification.
func (v *Verifier) Verify(ctx context.Context, output []byte, a model.Adapter, rs *rules.RuleSet, literals []string) (model.Verification, error) {
	var res model.Verification
	logger := v.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	doc, err := a.Open(ctx, output, model.JobOptions{Limits: v.Limits})
	if err != nil {
		return res, examineError(ctx, "output could not be re-opened", err)
	}
	units, err := doc.Units(ctx)
	if err != nil {
		return res, examineError(ctx, "output units could not be extracted", err)
	}
	locs := make(map[string]model.Location, len(units))
	for _, u := range units {
		locs[u.ID] = u.Location
	}
	for _, s := range detect.Detect(units, rs) {
		res.Findings = append(res.Findings, model.Finding{
			Location: locs[s.Unit],
			RuleID:   s.RuleID,
			Source:   SourceReextract,
		})
	}

	patterns := v.patterns(literals)
	if len(patterns) == 0 {
		return res, nil
	}
	s := &scanner{patterns: patterns, seen: make(map[string]bool), budget: v.budget()}
	s.scan(output, model.Location{}, SourceRaw)

	switch format.Sniff(output) {
	case format.WordPackage, format.SpreadsheetPackage:
		if err := s.scanZip(ctx, output); err != nil {
			return res, examineError(ctx, "package entries could not be read", err)
		}
	case format.PageDocument:
		if err := s.scanStreams(ctx, output, logger); err != nil {
			return res, examineError(ctx, "document streams could not be read", err)
		}
	}
	res.Findings = append(res.Findings, s.findings...)

	logger.Debug("verification complete",
		"units", len(units),
		"literals", len(patterns),
		"findings", len(res.Findings))
	return res, nil
}

func examineError(ctx context.Context, detail string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return model.NewError(model.ResidualContentDetected, "verify", detail, err)
}

// patterns expands literals into every encoding searched. XML-escaped forms
// are included for literals containing markup characters.
func (v *Verifier) patterns(literals []string) []pattern {
	minLen := v.MinLiteralLen
	if minLen <= 0 {
		minLen = DefaultMinLiteralLen
	}
	be := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewEncoder()
	le := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()

	var out []pattern
	seen := make(map[string]bool)
	for _, lit := range literals {
		if utf8.RuneCountInString(lit) < minLen || seen[lit] {
			continue
		}
		seen[lit] = true
		out = append(out, pattern{encoding: "utf-8", data: []byte(lit)})
		if esc := xmlEscaper.Replace(lit); esc != lit {
			out = append(out, pattern{encoding: "utf-8-xml", data: []byte(esc)})
		}
		if b, err := be.Bytes([]byte(lit)); err == nil {
			out = append(out, pattern{encoding: "utf-16be", data: b})
		}
		if b, err := le.Bytes([]byte(lit)); err == nil {
			out = append(out, pattern{encoding: "utf-16le", data: b})
		}
	}
	return out
}

// budget returns a fresh budget for one byte scan.
func (v *Verifier) budget() *core.Budget {
	stream := v.Limits.MaxStream
	if stream <= 0 {
		stream = defaultMaxEntry
	}
	return core.NewBudget(stream, v.Limits.MaxDecoded)
}

type scanner struct {
	budget   *core.Budget
	patterns []pattern
	seen     map[string]bool
	findings []model.Finding
}

func (s *scanner) scan(data []byte, loc model.Location, source string) {
	for _, p := range s.patterns {
		if !bytes.Contains(data, p.data) {
			continue
		}
		key := fmt.Sprintf("%s|%s|%s|%d", source, p.encoding, loc.Part, loc.Object)
		if s.seen[key] {
			continue
		}
		s.seen[key] = true
		s.findings = append(s.findings, model.Finding{
			Location: loc,
			RuleID:   LiteralRuleID,
			Source:   source,
			Encoding: p.encoding,
		})
	}
}

// scanZip scans the decompressed content of every entry.
func (s *scanner) scanZip(ctx context.Context, data []byte) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("entry %s: %w", f.Name, err)
		}
		body, err := filters.ReadAll(rc, s.budget)
		rc.Close()
		if err != nil {
			return fmt.Errorf("entry %s: %w", f.Name, err)
		}
		s.scan(body, model.Location{Part: f.Name}, SourceEntry)
	}
	return nil
}

// scanStreams decodes every stream object defined in the file, current or
// not, and scans its content. Streams in an image codec are scanned as
// stored.
func (s *scanner) scanStreams(ctx context.Context, data []byte, logger *slog.Logger) error {
	r, err := reader.NewReader(data, reader.WithBudget(s.budget))
	if err != nil {
		return err
	}
	for _, def := range r.Definitions() {
		if err := ctx.Err(); err != nil {
			return err
		}
		ind, err := r.ParseAt(def.Offset)
		if err != nil {
			logger.Debug("object unparsable during verification", "object", def.Ref.Number, "error", err)
			continue
		}
		stream, ok := ind.Object.(*core.Stream)
		if !ok {
			continue
		}
		body, err := stream.Decode()
		if err != nil {
			// Undecodable content cannot be checked, so it cannot be
			// published.
			return fmt.Errorf("object %d: %w", def.Ref.Number, err)
		}
		s.scan(body, model.Location{Object: def.Ref.Number}, SourceStream)
	}
	return nil
}
