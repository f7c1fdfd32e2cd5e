package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/cli"
	"github.com/aretw0/espalier/internal/logging"
	httpadapter "github.com/aretw0/espalier/pkg/adapters/http"
	"github.com/aretw0/espalier/pkg/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the machine over HTTP",
	Long: `Starts the machine behind a JSON API: fire triggers, read the current state
and permitted triggers, export the diagram. Prometheus metrics are served on
/metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("path")
		port, _ := cmd.Flags().GetString("port")
		level, _ := cmd.Flags().GetString("log-level")
		logJSON, _ := cmd.Flags().GetBool("log-json")

		cfg := cli.EngineConfig{Path: path}
		cfg.Backend, _ = cmd.Flags().GetString("backend")
		cfg.StatePath, _ = cmd.Flags().GetString("state-file")
		cfg.RedisAddr, _ = cmd.Flags().GetString("redis-addr")
		cfg.RedisPassword, _ = cmd.Flags().GetString("redis-password")
		cfg.RedisDB, _ = cmd.Flags().GetInt("redis-db")
		cfg.MachineID, _ = cmd.Flags().GetString("id")

		parsed, err := logging.ParseLevel(level)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		logger := logging.New(parsed)
		if logJSON {
			logger = logging.NewJSON(parsed)
		}
		cfg.Logger = logger

		m, def, err := cli.NewEngine(context.Background(), cfg,
			espalier.WithLogger[string, string](logger))
		if err != nil {
			fmt.Printf("Error initializing machine: %v\n", err)
			os.Exit(1)
		}

		// Observability: structured logs plus Prometheus collectors on a
		// dedicated registry.
		m.OnTransitioned(observability.LogTransitions[string, string](logger))
		m.OnRejected(observability.LogRejections[string, string](logger))

		promReg := prometheus.NewRegistry()
		metrics := observability.NewMetrics[string, string](promReg)
		m.OnTransitioned(metrics.OnTransitioned())
		m.OnRejected(metrics.OnRejected())
		observability.RegisterQueueDepth(promReg, m)

		m.Start(context.Background())
		defer m.Stop()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		mux.Handle("/", httpadapter.NewHandler(m, def))

		srv := &http.Server{
			Addr:    ":" + port,
			Handler: mux,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			fmt.Printf("Starting Espalier Server on %s\n", srv.Addr)
			fmt.Printf("Serving machine from: %s\n", path)
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// Blocking main and waiting for shutdown.
		select {
		case err := <-serverErrors:
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case sig := <-shutdown:
			fmt.Printf("\nStart shutdown... Signal: %v\n", sig)

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				fmt.Printf("Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				if err := srv.Close(); err != nil {
					fmt.Printf("Error killing server: %v\n", err)
				}
			}
			fmt.Println("Espalier Server stopped gracefully")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().String("log-level", "info", "Log level: debug, info, warn, or error")
	serveCmd.Flags().Bool("log-json", false, "Emit logs as line-delimited JSON")
	serveCmd.Flags().String("backend", "memory", "State backend: memory, file, or redis")
	serveCmd.Flags().String("state-file", "", "State file for the file backend")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address for the redis backend")
	serveCmd.Flags().String("redis-password", "", "Redis password")
	serveCmd.Flags().Int("redis-db", 0, "Redis database number")
	serveCmd.Flags().String("id", "", "Machine identity for shared backends")
}
