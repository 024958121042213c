package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/upreach/ruleengine/rules"
)

var versionsCmd = &cobra.Command{
	Use:   "versions <rule>",
	Short: "List the document versions that define a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersions,
}

var versionsRulesDirFlag string

func init() {
	versionsCmd.Flags().StringVarP(&versionsRulesDirFlag, "rules-dir", "d", ".", "Directory holding rule document JSON files")
}

// GetVersionsCmd export
func GetVersionsCmd() *cobra.Command {
	return versionsCmd
}

func runVersions(cmd *cobra.Command, args []string) error {
	store, err := rules.NewFileDocumentStore(versionsRulesDirFlag)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	defer store.Close()

	versions, err := store.ListVersions(args[0])
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return fmt.Errorf("no documents define rule %q", args[0])
	}
	for _, v := range versions {
		fmt.Println(v)
	}
	return nil
}
