package main

import (
	"fmt"
	"os"

	"github.com/aretw0/espalier/internal/cli"
	"github.com/spf13/cobra"
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Summarize a definition in readable form",
	Long:  `Loads the definition and prints its states, transitions, guards, and trigger parameters as rendered markdown.`,
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("path")
		if !cmd.Flags().Changed("path") && len(args) > 0 {
			path = args[0]
		}

		if err := cli.Describe(path); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
}
