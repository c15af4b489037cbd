// Package cmd provides the CLI commands for amankb.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amankb/internal/config"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/logging"
	"github.com/Aman-CERP/amankb/internal/service"
	"github.com/Aman-CERP/amankb/pkg/version"
)

// globalFlags are the persistent flags of the root command.
type globalFlags struct {
	debug      bool
	configPath string
}

// NewRootCmd creates the root command for the amankb CLI.
func NewRootCmd() *cobra.Command {
	var flags globalFlags
	var cleanup func()

	cmd := &cobra.Command{
		Use:   "amankb",
		Short: "Local knowledge indexing and semantic search",
		Long: `amankb indexes notes, source code and notebooks into a local vector
store and answers semantic queries over them, with tag and metadata
filters. It also serves the same operations as MCP tools.

Knowledge bases are named groups of directories declared in
~/.aix/knowledges.yaml.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cleanup, err = setupLogging(cmd, flags.debug)
			return err
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if cleanup != nil {
				cleanup()
				cleanup = nil
			}
			return nil
		},
	}
	cmd.SetVersionTemplate("amankb version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging to stderr and ~/.aix/logs/")
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default ~/.aix/amankb.yaml)")

	cmd.AddCommand(newIndexCmd(&flags))
	cmd.AddCommand(newSearchCmd(&flags))
	cmd.AddCommand(newTagsCmd(&flags))
	cmd.AddCommand(newFieldsCmd(&flags))
	cmd.AddCommand(newListCmd(&flags))
	cmd.AddCommand(newRefreshCmd(&flags))
	cmd.AddCommand(newDropCmd(&flags))
	cmd.AddCommand(newKnowledgesCmd(&flags))
	cmd.AddCommand(newWatchCmd(&flags))
	cmd.AddCommand(newServeCmd(&flags))
	cmd.AddCommand(newConfigCmd(&flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints a failure to stderr.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		_, _ = fmt.Fprint(root.ErrOrStderr(), kberrors.FormatForCLI(err))
	}
	return err
}

// setupLogging installs the default logger. The serve command logs to
// file only because stdout carries JSON-RPC.
func setupLogging(cmd *cobra.Command, debug bool) (func(), error) {
	cfg := logging.DefaultConfig()
	switch {
	case cmd.Name() == "serve":
		cfg = logging.ServeConfig("info")
		if debug {
			cfg.Level = "debug"
		}
	case debug:
		cfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	slog.SetDefault(logger)
	slog.Debug("command_started", slog.String("command", cmd.CommandPath()), slog.String("version", version.Version))
	return cleanup, nil
}

// loadConfig reads the configuration named by --config or the user default.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	if flags.configPath != "" {
		return config.LoadFile(config.ExpandHome(flags.configPath))
	}
	return config.Load()
}

// openService loads configuration and wires the knowledge service.
func openService(flags *globalFlags) (*service.Service, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	return service.New(cfg, service.Dependencies{})
}

// withService runs fn with an open service and closes it afterwards.
func withService(flags *globalFlags, fn func(*service.Service) error) error {
	svc, err := openService(flags)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			slog.Warn("service_close_failed", slog.String("error", cerr.Error()))
		}
	}()
	return fn(svc)
}

// signalContext is canceled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
