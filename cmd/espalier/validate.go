package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/espalier/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a definition for consistency",
	Long: `Loads the definition and reports every structural problem found: undeclared
states, superstate cycles, conflicting transition kinds, and states
unreachable from the initial state.`,
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("path")
		if !cmd.Flags().Changed("path") && len(args) > 0 {
			path = args[0]
		}

		if err := runValidate(path); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Definition is valid! ✅")
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(path string) error {
	def, err := cli.LoadDefinition(context.Background(), path)
	if err != nil {
		return err
	}
	return def.Validate()
}
