package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/espalier/internal/cli"
	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/adapters/mcp"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the machine as an MCP server so AI agents can fire triggers and
inspect state as tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("path")
		if !cmd.Flags().Changed("path") && len(args) > 0 {
			path = args[0]
		}

		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		// Logs go to stderr; stdout carries JSON-RPC framing.
		logger := logging.New(slog.LevelDebug)
		slog.SetDefault(logger)

		cfg := cli.EngineConfig{Path: path, Logger: logger}
		cfg.Backend, _ = cmd.Flags().GetString("backend")
		cfg.StatePath, _ = cmd.Flags().GetString("state-file")
		cfg.RedisAddr, _ = cmd.Flags().GetString("redis-addr")
		cfg.RedisPassword, _ = cmd.Flags().GetString("redis-password")
		cfg.RedisDB, _ = cmd.Flags().GetInt("redis-db")
		cfg.MachineID, _ = cmd.Flags().GetString("id")

		m, def, err := cli.NewEngine(context.Background(), cfg)
		if err != nil {
			log.Fatalf("Error initializing machine: %v", err)
		}

		m.Start(context.Background())
		defer m.Stop()

		srv := mcp.NewServer(m, def)

		switch transport {
		case "stdio":
			// Keep the standard logger off stdout as well.
			log.SetOutput(os.Stderr)
			slog.Info("Starting Espalier MCP Server (Stdio)...")
			if err := srv.ServeStdio(); err != nil {
				slog.Error("MCP Server execution failed", "error", err)
				os.Exit(1)
			}
		case "sse":
			slog.Info("Starting Espalier MCP Server (SSE)", "port", port)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.ServeSSE(ctx, port); err != nil {
				// Ignore server closed error if it was caused by context cancellation
				if err != http.ErrServerClosed {
					slog.Error("MCP Server execution failed", "error", err)
					os.Exit(1)
				}
			}
			slog.Info("MCP Server stopped gracefully")
		default:
			log.Fatalf("Unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
	mcpCmd.Flags().String("backend", "memory", "State backend: memory, file, or redis")
	mcpCmd.Flags().String("state-file", "", "State file for the file backend")
	mcpCmd.Flags().String("redis-addr", "localhost:6379", "Redis address for the redis backend")
	mcpCmd.Flags().String("redis-password", "", "Redis password")
	mcpCmd.Flags().Int("redis-db", 0, "Redis database number")
	mcpCmd.Flags().String("id", "", "Machine identity for shared backends")
}
