package cli

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/redactor/raster"
)

// resetFlags resets all package-level flag variables to their defaults.
func resetFlags() {
	flagRules = ""
	flagFormat = ""
	flagPlaceholder = ""
	flagOCRPolicy = "if-available"
	flagMargin = raster.DefaultMargin
	flagVerbose = false
	flagOutDir = ""
	flagWorkers = 2
	flagLiterals = nil
	flagJSON = false
	flagEnvFile = ".env"
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	resetFlags()
	var stdout, stderr bytes.Buffer
	code := execute(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeDOCX(t *testing.T, path, text string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range [][2]string{
		{"[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="xml" ContentType="application/xml"/></Types>`},
		{"word/document.xml", `<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p></w:body></w:document>`},
	} {
		w, err := zw.Create(f[0])
		require.NoError(t, err)
		_, err = w.Write([]byte(f[1]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func TestVersion(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "redact version "+version)
}

func TestRunAndVerify(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "letter.docx")
	writeDOCX(t, in, "SSN 123-45-6789")
	outDir := filepath.Join(dir, "out")

	code, out, stderr := runCLI(t, "run", in, "--out-dir", outDir, "--placeholder", "[X]")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, out, "ok   "+in)

	dst := filepath.Join(outDir, "redacted_letter.docx")
	_, err := os.Stat(dst)
	require.NoError(t, err)

	code, out, _ = runCLI(t, "verify", dst, "--literal", "123-45-6789")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "clean: "+dst)

	code, out, _ = runCLI(t, "verify", in, "--json")
	assert.Equal(t, ExitFailures, code)
	assert.Contains(t, out, `"us_ssn"`)
}

func TestRunPartialFailure(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.docx")
	writeDOCX(t, good, "nothing sensitive")
	bad := filepath.Join(dir, "bad.pdf")
	require.NoError(t, os.WriteFile(bad, []byte("not a pdf"), 0o600))
	unknown := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(unknown, []byte("x"), 0o600))

	code, out, stderr := runCLI(t, "run", good, bad, unknown)
	assert.Equal(t, ExitFailures, code)
	assert.Contains(t, out, "ok   "+good)
	assert.Contains(t, stderr, "FAIL "+bad)
	assert.Contains(t, stderr, "FormatMismatch")
	assert.Contains(t, stderr, "FAIL "+unknown)

	_, err := os.Stat(filepath.Join(dir, "redacted_bad.pdf"))
	assert.True(t, os.IsNotExist(err))
}

func TestRulesCheck(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(good, []byte("rules:\n  - id: employee_id\n    kind: regex\n    pattern: 'EMP-\\d{6}'\n    confidence: 0.9\n"), 0o600))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rules:\n  - id: x\n    kind: regex\n    pattern: '('\n"), 0o600))

	code, out, _ := runCLI(t, "rules", "check", good)
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "employee_id")
	assert.Contains(t, out, "1 rules")

	code, _, _ = runCLI(t, "rules", "check", bad)
	assert.Equal(t, ExitFailures, code)

	code, out, _ = runCLI(t, "rules", "list")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "us_ssn")
}

func TestUsageErrors(t *testing.T) {
	code, _, _ := runCLI(t, "run")
	assert.Equal(t, ExitUsageError, code)

	code, _, stderr := runCLI(t, "run", "x.pdf", "--ocr", "sometimes")
	assert.Equal(t, ExitUsageError, code)
	assert.True(t, strings.Contains(stderr, "OCR policy"), stderr)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "redacted_b.pdf"), outputPath(filepath.Join("a", "b.pdf"), ""))
	assert.Equal(t, filepath.Join("out", "redacted_b.pdf"), outputPath(filepath.Join("a", "b.pdf"), "out"))
}
