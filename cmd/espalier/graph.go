package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/espalier/internal/cli"
	"github.com/aretw0/espalier/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the state diagram",
	Long:  `Loads the definition and outputs a Mermaid stateDiagram-v2 document representing its states and transitions.`,
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("path")
		if !cmd.Flags().Changed("path") && len(args) > 0 {
			path = args[0]
		}

		def, err := cli.LoadDefinition(context.Background(), path)
		if err != nil {
			fmt.Printf("Error loading definition: %v\n", err)
			os.Exit(1)
		}

		fmt.Print(graph.GenerateMermaid(def, nil))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
