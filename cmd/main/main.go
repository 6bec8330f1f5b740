// Command babbler trains, stores and serves variable-order Markov chain
// sentence generators.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CTAG07/babbler/pkg/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "babbler",
	Short:         "babbler - Markov chain sentence generator",
	Long:          "Train variable-order Markov chain models from text, store them, and generate sentences over the CLI or an HTTP API.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.json", "Path to the config file (.json, .yaml or .yml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app is everything a command needs once the config is loaded.
type app struct {
	config *Config
	logger *slog.Logger
	store  store.Store
	svc    *ModelService
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("Failed to close store", "error", err)
	}
}

// openApp loads the config, sets up logging and opens the store.
func openApp() (*app, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(config.Server)

	st, err := openStore(config.Store, logger)
	if err != nil {
		return nil, err
	}
	return &app{
		config: config,
		logger: logger,
		store:  st,
		svc:    NewModelService(st, config.Generate, logger),
	}, nil
}

// withService runs fn against a freshly opened app and closes it afterwards.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *ModelService) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a.svc)
}

// readCorpus returns inline text, or the contents of path ("-" reads stdin).
func readCorpus(inline, path string, stdin io.Reader) (string, error) {
	if inline != "" && path != "" {
		return "", fmt.Errorf("use either --corpus or --file, not both")
	}
	if inline != "" {
		return inline, nil
	}
	if path == "" {
		return "", nil
	}
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read corpus: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
