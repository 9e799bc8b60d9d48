package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tsawler/redactor/format"
)

var (
	flagLiterals []string
	flagJSON     bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Re-check a file for residual sensitive content",
	Long: "Re-extract every unit of text from a file and scan it with the rules, then search the raw bytes for each --literal.\n" +
		"Exits 1 when anything is found.",
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	addEngineFlags(verifyCmd)
	verifyCmd.Flags().StringArrayVar(&flagLiterals, "literal", nil, "Text that must not appear in the file (repeatable)")
	verifyCmd.Flags().BoolVar(&flagJSON, "json", false, "Print findings as JSON")
}

func runVerify(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd.ErrOrStderr())
	rs, err := loadRules()
	if err != nil {
		return err
	}
	path := args[0]
	f := format.FromFilename(path)
	if flagFormat != "" {
		if f, err = format.Parse(flagFormat); err != nil {
			return err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	engine, release, err := newEngine(logger)
	if err != nil {
		return err
	}
	defer release()

	res, err := engine.Verify(cmd.Context(), data, f, rs, flagLiterals...)
	if err != nil {
		exitCode = ExitRuntimeError
		return err
	}

	out := cmd.OutOrStdout()
	if flagJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Findings); err != nil {
			return err
		}
	} else {
		for _, finding := range res.Findings {
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", finding.Source, finding.RuleID, finding.Encoding, finding.Location)
		}
	}
	if !res.Passed() {
		exitCode = ExitFailures
		return fmt.Errorf("%d findings in %s", len(res.Findings), path)
	}
	if !flagJSON {
		fmt.Fprintf(out, "clean: %s\n", path)
	}
	return nil
}
