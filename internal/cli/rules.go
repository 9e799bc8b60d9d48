package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tsawler/redactor/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect detection rules",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Compile a rule file and list its rules",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, err := rules.LoadFile(args[0])
		if err != nil {
			exitCode = ExitFailures
			return err
		}
		printRules(cmd, rs)
		return nil
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built-in rules",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printRules(cmd, rules.Default())
	},
}

func init() {
	rulesCmd.AddCommand(rulesCheckCmd)
	rulesCmd.AddCommand(rulesListCmd)
}

func printRules(cmd *cobra.Command, rs *rules.RuleSet) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCONFIDENCE\tDESCRIPTION")
	for _, r := range rs.Rules() {
		fmt.Fprintf(w, "%s\t%.2f\t%s\n", r.ID, r.Confidence, r.Description)
	}
	w.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "%d rules, version %s\n", rs.Len(), rs.Version())
}
