package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"engineerhub/internal/config"
	"engineerhub/internal/logging"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	// Loaded by the root command before any subcommand runs
	cfg *config.Config

	// The chat view's config watcher swaps the logger from its own goroutine.
	loggerMu sync.Mutex
	logger   *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "hub",
	Short: "EngineerHub terminal client",
	Long: `hub is a terminal client for EngineerHub.

It browses the post feed, searches posts, shows single posts with their
code snippets, and opens real-time chat conversations.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.DebugMode = true
			cfg.Logging.Level = "debug"
		}

		// config init must work even when the existing file is broken
		if cmd != configInitCmd {
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		if err := configureLogging(cfg, cmd == chatCmd); err != nil {
			return err
		}
		logging.Boot("hub %s starting (config %s)", cmd.Name(), cfgPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		syncLogger()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(feedCmd, postCmd, searchCmd, themeCmd, chatCmd, configCmd)
}

// configureLogging installs the logger described by c, or the no-op logger
// when debug mode is off. Interactive views own the terminal, so their logs
// go to a file under the data directory unless one is configured.
func configureLogging(c *config.Config, interactive bool) error {
	o := c.Logging.Options()
	if !c.Logging.DebugMode {
		loggerMu.Lock()
		defer loggerMu.Unlock()
		logging.Configure(nil, o)
		return nil
	}
	if interactive && o.File == "" {
		o.File = filepath.Join(c.Storage.DataDir, "hub.log")
	}

	l, err := logging.Build(o)
	if err != nil {
		return err
	}

	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger != nil {
		_ = logger.Sync()
	}
	logger = l
	logging.Configure(l, o)
	return nil
}

// syncLogger flushes the current logger, if one was built.
func syncLogger() {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger != nil {
		_ = logger.Sync()
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
