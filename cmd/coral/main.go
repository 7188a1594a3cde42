package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coral-p2025/coral/config"
	"github.com/coral-p2025/coral/errors"
	"github.com/coral-p2025/coral/server"
	"github.com/coral-p2025/coral/server/sandbox"
)

const Version = "v0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "coral",
		Short:         "Project 2025 Slack bot and HTML preview service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional; variables already set win.
			_ = godotenv.Load()
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "coral.yaml", "Path to configuration file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the Slack bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, configFile)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(configFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (%d tools, slack enabled: %t)\n",
				len(cfg.Bot.Tools), cfg.Slack.Enabled)
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "coral %s\n", Version)
		},
	}

	var placeholderURL string
	previewCmd := &cobra.Command{
		Use:   "preview",
		Short: "Assemble the html, css and js fences read from stdin into one document",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			html := sandbox.ReconstructHTML(string(content))
			if html == "" {
				return fmt.Errorf("no html code block in input")
			}
			_, err = io.WriteString(cmd.OutOrStdout(), sandbox.AddImageFallbackWith(html, placeholderURL))
			return err
		},
	}
	previewCmd.Flags().StringVar(&placeholderURL, "placeholder", config.DefaultConfig().Sandbox.PlaceholderURL,
		"Image service used when an image fails to load")

	rootCmd.AddCommand(serveCmd, validateCmd, versionCmd, previewCmd)
	return rootCmd
}

func serve(ctx context.Context, configFile string) error {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	errors.SetLogger(logger)

	watcher, err := config.NewConfigWatcher(configFile, logger.Named("config"))
	if err != nil {
		return err
	}
	defer watcher.Close()

	srv, err := server.NewServer(watcher, logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	logger.Info("Starting coral",
		zap.String("version", Version),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("slack", cfg.Slack.Enabled),
	)
	return srv.Start(ctx)
}
