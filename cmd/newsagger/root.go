package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"newsagger/internal/store"
	"newsagger/pkg/captcha"
	"newsagger/pkg/chronicling"
	"newsagger/pkg/config"
	"newsagger/pkg/logger"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string

	// Loaded by the persistent pre-run, shared by all commands
	cfg *config.Config
	log logger.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "newsagger",
	Short: "A polite crawler for the Chronicling America newspaper archive",
	Long: `Newsagger discovers and downloads historic newspaper content from the
Library of Congress Chronicling America archive.

All discovery progress lives in a local SQLite database, so any run can be
interrupted and resumed exactly where it left off. Requests are paced well
below the archive's rate limits, and CAPTCHA challenges pause the crawl
until the block clears.

Typical workflow:
  newsagger discover titles         # enumerate every newspaper title
  newsagger facets plan             # partition the archive into date ranges
  newsagger facets discover --all   # find every page in each partition
  newsagger facets enqueue --all    # queue discovered pages for download
  newsagger download --continuous   # drain the download queue`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Logging.Level = logLevel
		}
		if err := logger.Initialize(&loaded.Logging); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = loaded
		log = logger.GetLogger()
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .newsagger.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`newsagger {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// signalContext returns a context cancelled on SIGINT or SIGTERM. A second
// signal exits immediately without waiting for in-flight work.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "Interrupted, finishing current item. Press again to force quit.")
		cancel()
		<-sigCh
		os.Exit(130)
	}()
	return ctx, cancel
}

// openStore opens the state database from the loaded configuration
func openStore() (*store.Store, error) {
	return store.Open(cfg.Storage.DatabasePath, log)
}

// newArchiveClient builds the paced archive client with its CAPTCHA gate
func newArchiveClient() *chronicling.Client {
	gate := captcha.NewManager(cfg.RateLimit.CoolingOffPeriod, log)
	return chronicling.NewClient(cfg, gate, log)
}
