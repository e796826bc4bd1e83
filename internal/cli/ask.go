// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command.
//
// Command: ask [question...]
// Short:   Ask a single question
//
// Examples:
//
//	termai ask "what is a goroutine"
//	termai ask --web "latest Go release"
//	git diff | termai ask "summarize this change"
//
// Flags:
//
//	-m, --model MODEL   Override the configured model
//	--web               Use the provider's search model
//	--no-stream         Wait for the complete reply

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/termai/internal/config"
	"github.com/jeranaias/termai/internal/provider"
)

// maxPipedInput caps what is read from a piped stdin.
const maxPipedInput = 1 << 20

type askFlags struct {
	model    string
	web      bool
	noStream bool
}

func newAskCmd(a *app) *cobra.Command {
	var flags askFlags
	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Ask a single question",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAsk(cmd.Context(), flags, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVarP(&flags.model, "model", "m", "", "Override the configured model")
	cmd.Flags().BoolVar(&flags.web, "web", false, "Use the provider's search model")
	cmd.Flags().BoolVar(&flags.noStream, "no-stream", false, "Wait for the complete reply")
	return cmd
}

func (a *app) runAsk(ctx context.Context, flags askFlags, question string) error {
	cfg := config.Global()
	p, err := cfg.ActiveAccount()
	if err != nil {
		return err
	}
	if flags.web && p.SearchModel == "" && !provider.IsSearchModel(flags.model) {
		return fmt.Errorf("%s has no search model configured", p.Kind)
	}

	question, err = a.question(question)
	if err != nil {
		return err
	}
	if question == "" {
		return nil
	}

	sess := newSession(sessionOptions{
		in:          a.in,
		out:         a.out,
		interactive: IsStdoutTTY(),
		model:       flags.model,
		noStream:    flags.noStream,
		search:      flags.web,
		logger:      a.logger,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	_, err = sess.Send(ctx, question)
	reportTurnError(a.out, err)
	return quietError(err)
}

// question completes the question from piped stdin or an interactive prompt.
func (a *app) question(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if !IsTTY() {
		data, err := io.ReadAll(io.LimitReader(a.in, maxPipedInput))
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		if piped := strings.TrimSpace(string(data)); piped != "" {
			if arg == "" {
				return piped, nil
			}
			return arg + "\n\n" + piped, nil
		}
		return arg, nil
	}
	if arg != "" {
		return arg, nil
	}
	q, err := Input(a.in, a.out, "What do you want to ask?", "", false)
	if errors.Is(err, ErrPromptCancelled) {
		return "", nil
	}
	return q, err
}
