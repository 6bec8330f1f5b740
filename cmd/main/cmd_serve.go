package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the model API over HTTP",
	Long:  "Starts the HTTP API. The server stops gracefully on SIGINT or SIGTERM.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "babbler %s (commit %s, built %s)\n", Version, Commit, BuildDate)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address, overrides server_config.api_addr")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if serveAddr != "" {
		a.config.Server.ApiAddr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Info("Starting babbler", "version", Version, "backend", a.config.Store.Backend)
	server := NewServer(a.config, a.logger, a.svc)
	if err = server.Run(ctx); err != nil {
		return fmt.Errorf("api server failed: %w", err)
	}
	a.logger.Info("babbler has shut down.")
	return nil
}
