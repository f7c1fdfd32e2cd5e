package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "espalier",
	Short: "Espalier is a hierarchical state machine engine",
	Long: `Espalier runs state machines declared as YAML definitions or directories
of state documents: nested states, guarded transitions, and strictly ordered
asynchronous trigger dispatch.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("path", ".", "Definition YAML file or state-document directory")
}
