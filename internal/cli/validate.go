package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/upreach/ruleengine/rules"
)

var validateCmd = &cobra.Command{
	Use:   "validate <document.json> [more.json ...]",
	Short: "Validate rule documents and report every issue found",
	Long: `Parses each document and runs the full structural validation pass.
All issues are reported, not just the first one.

Example:
  rulectl validate rules/company_quality.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

// GetValidateCmd export
func GetValidateCmd() *cobra.Command {
	return validateCmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		issues := rules.ValidateDocument(raw)
		if len(issues) == 0 {
			fmt.Printf("%s: ok\n", path)
			continue
		}
		failed++
		fmt.Printf("%s: %d issue(s)\n", path, len(issues))
		for _, issue := range issues {
			fmt.Printf("  %s: %s\n", issue.Path, issue.Message)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d document(s) failed validation", failed)
	}
	return nil
}
