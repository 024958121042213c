package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/upreach/ruleengine/rules"
)

var execCmd = &cobra.Command{
	Use:   "exec <rule>",
	Short: "Execute a rule against an input and print the decision",
	Long: `Loads every document from the rules directory, executes the named
rule at the requested version, and prints the decision with its full
breakdown.

Input is a JSON object, given inline, as a file path, or as "-" for
stdin.

Example:
  rulectl exec evaluate_company_quality --rules-dir ./rules \
    --version 2.1.0 --input '{"uae_employees": 150}'`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

var (
	execRulesDirFlag string
	execVersionFlag  string
	execInputFlag    string
)

func init() {
	execCmd.Flags().StringVarP(&execRulesDirFlag, "rules-dir", "d", ".", "Directory holding rule document JSON files")
	execCmd.Flags().StringVarP(&execVersionFlag, "version", "v", "", "Document version to execute (required)")
	execCmd.Flags().StringVarP(&execInputFlag, "input", "i", "", "Input JSON object, a file path, or - for stdin (required)")
	execCmd.MarkFlagRequired("version")
	execCmd.MarkFlagRequired("input")
}

// GetExecCmd export
func GetExecCmd() *cobra.Command {
	return execCmd
}

func runExec(cmd *cobra.Command, args []string) error {
	input, err := readInput(execInputFlag)
	if err != nil {
		return err
	}

	store, err := rules.NewFileDocumentStore(execRulesDirFlag)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	defer store.Close()

	engine := rules.NewEngine(store)
	decision, err := engine.Execute(args[0], execVersionFlag, input)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(decision, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func readInput(arg string) (map[string]any, error) {
	var raw []byte
	switch {
	case arg == "-":
		var err error
		raw, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
	case strings.HasPrefix(strings.TrimSpace(arg), "{"):
		raw = []byte(arg)
	default:
		var err error
		raw, err = os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
	}

	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	return input, nil
}
