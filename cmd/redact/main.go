// Redact removes sensitive content from PDF, image, Word and Excel files
// and refuses to publish any output in which it can still find a match.
//
// Usage:
//
//	redact run report.pdf scan.png --out-dir clean/   # redact files in parallel
//	redact verify clean/redacted_report.pdf           # re-check an output
//	redact serve --env-file .env                      # start the HTTP service
//	redact rules check rules.yaml                     # validate a rule file
package main

import (
	"os"

	"github.com/tsawler/redactor/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
