package main

import (
	"fmt"
	"os"

	"github.com/aretw0/espalier/internal/cli"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive a machine interactively",
	Long: `Starts the machine and reads trigger lines from stdin: a trigger name
followed by its arguments, fired synchronously so each outcome prints before
the next prompt.`,
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("path")
		if !cmd.Flags().Changed("path") && len(args) > 0 {
			path = args[0]
		}

		opts := cli.RunOptions{Path: path}
		opts.Backend, _ = cmd.Flags().GetString("backend")
		opts.StatePath, _ = cmd.Flags().GetString("state-file")
		opts.RedisAddr, _ = cmd.Flags().GetString("redis-addr")
		opts.RedisPassword, _ = cmd.Flags().GetString("redis-password")
		opts.RedisDB, _ = cmd.Flags().GetInt("redis-db")
		opts.MachineID, _ = cmd.Flags().GetString("id")
		opts.Debug, _ = cmd.Flags().GetBool("debug")

		if err := cli.Run(opts); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("backend", "memory", "State backend: memory, file, or redis")
	runCmd.Flags().String("state-file", "", "State file for the file backend (default .espalier/state.json)")
	runCmd.Flags().String("redis-addr", "localhost:6379", "Redis address for the redis backend")
	runCmd.Flags().String("redis-password", "", "Redis password")
	runCmd.Flags().Int("redis-db", 0, "Redis database number")
	runCmd.Flags().String("id", "", "Machine identity for shared backends")
	runCmd.Flags().Bool("debug", false, "Log every transition and rejection to stderr")

	// Make 'run' the default when no subcommand is given.
	rootCmd.Run = runCmd.Run
}
