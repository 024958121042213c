package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rulectl",
	Short: "Work with rule documents from the command line",
	Long: `rulectl validates and executes versioned rule documents without
running the HTTP service. Useful for authoring and CI checks.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(GetValidateCmd())
	rootCmd.AddCommand(GetExecCmd())
	rootCmd.AddCommand(GetVersionsCmd())
}
