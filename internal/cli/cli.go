// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command tree and process setup for termai.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/termai/internal/config"
	"github.com/jeranaias/termai/internal/logging"
)

// BuildInfo is stamped into the binary at build time.
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildDate string
}

// app is the state shared by every command.
type app struct {
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
	version string
	build   BuildInfo
	debug   bool
	logger  *zap.Logger

	// newCompleter replaces the provider client of suggest and explain, for tests.
	newCompleter func(preamble string) (completer, error)
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// NewRootCmd builds the termai command tree. Running it without a
// subcommand starts a chat.
func NewRootCmd(build BuildInfo, in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut, version: build.Version, build: build, logger: zap.NewNop()}
	return a.rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	var flags chatFlags
	cmd := &cobra.Command{
		Use:   "termai [message...]",
		Short: "termai - chat with OpenAI and Anthropic models in your terminal",
		Long: `termai is a terminal chat client for OpenAI and Anthropic models.

Replies stream in and are rendered as markdown. Tools from configured MCP
servers can be offered to the model; every call asks for confirmation.`,
		Example: `  termai
  termai "explain the difference between TCP and UDP"
  termai ask --web "latest stable Go release"
  termai suggest "list open ports"`,
		Args: cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd.Context(), flags, strings.Join(args, " "))
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	flags.register(cmd)
	cmd.PersistentFlags().BoolVarP(&a.debug, "debug", "d", false, "Enable debug logging")

	cmd.AddCommand(
		newChatCmd(a),
		newAskCmd(a),
		newSuggestCmd(a),
		newExplainCmd(a),
		newModelsCmd(a),
		newOptionsCmd(a),
		newChangelogCmd(a),
		newVersionCmd(a),
	)
	return cmd
}

// setup loads the configuration and starts file logging. An invalid config
// file is an error; a missing one yields defaults.
func (a *app) setup() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	config.SetGlobal(cfg)

	level := cfg.LogLevel
	if a.debug {
		level = "debug"
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	logger, err := logging.Init(logging.Options{Dir: dir, Level: level})
	if err != nil {
		return err
	}
	a.logger = logger
	a.logger.Debug("starting",
		zap.String("version", a.build.Version),
		zap.String("provider", cfg.ActiveProvider),
		zap.String("os", runtime.GOOS))
	return nil
}

// =============================================================================
// EXECUTE
// =============================================================================

// Execute runs termai with the process arguments and returns the exit code.
func Execute(build BuildInfo) int {
	stopTeardown := InstallTeardown(os.Stdout)
	defer stopTeardown()

	cmd := NewRootCmd(build, os.Stdin, os.Stdout, os.Stderr)
	err := cmd.ExecuteContext(context.Background())
	logging.Sync()

	if err != nil && !errors.Is(err, errReported) && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, RenderError(err.Error()))
	}
	return GetExitCode(err)
}

// =============================================================================
// VERSION
// =============================================================================

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "termai %s\n", a.build.Version)
			fmt.Fprintf(a.out, "  commit: %s\n  built:  %s\n  go:     %s %s/%s\n",
				a.build.GitCommit, a.build.BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
