// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// suggest.go - Shell command suggestion and explanation.
//
// Command: suggest [query...]
// Short:   Suggest a shell command
//
// Command: explain [command...]
// Short:   Explain a shell command
//
// Examples:
//
//	termai suggest "find files larger than 100MB"
//	termai explain "tar -xzvf archive.tar.gz"

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/jeranaias/termai/internal/agent"
	"github.com/jeranaias/termai/internal/config"
	"github.com/jeranaias/termai/internal/provider"
	"github.com/jeranaias/termai/internal/render"
	"github.com/jeranaias/termai/internal/spinner"
)

// Suggestion menu entries, in display order.
const (
	optionCopy = iota
	optionExplain
	optionRevise
	optionNew
	optionExit
)

var suggestOptions = []string{
	"Copy command to clipboard",
	"Explain command",
	"Revise command",
	"New command",
	"Exit",
}

// completer is the part of provider.Client the one-shot commands use.
type completer interface {
	Complete(ctx context.Context, messages ...agent.Message) (string, error)
}

func newSuggestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest [query...]",
		Short: "Suggest a shell command",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSuggest(cmd.Context(), strings.Join(args, " "))
		},
	}
}

func newExplainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "explain [command...]",
		Short: "Explain a shell command",
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args, " ")
			if command == "" {
				if err := RequiresTTY("read a command"); err != nil {
					return err
				}
				var err error
				command, err = Input(a.in, a.out, "Which command should be explained?", "", false)
				if errors.Is(err, ErrPromptCancelled) {
					return nil
				}
				if err != nil {
					return err
				}
			}
			client, err := a.completer(provider.ExplainPreamble)
			if err != nil {
				return err
			}
			return a.explain(cmd.Context(), client, command)
		},
	}
}

// completer builds a non-streaming client for the active provider.
func (a *app) completer(preamble string) (completer, error) {
	if a.newCompleter != nil {
		return a.newCompleter(preamble)
	}
	cfg := config.Global()
	p, err := cfg.ActiveAccount()
	if err != nil {
		return nil, err
	}
	settings, err := p.Settings()
	if err != nil {
		return nil, err
	}
	return provider.New(settings,
		provider.WithStreaming(false),
		provider.WithPreamble(preamble),
		provider.WithTimeout(cfg.RequestTimeout()),
		provider.WithLogger(a.logger),
	), nil
}

// =============================================================================
// SUGGEST
// =============================================================================

func (a *app) runSuggest(ctx context.Context, query string) error {
	client, err := a.completer(provider.SuggestPreamble)
	if err != nil {
		return err
	}

	var last string
	for {
		fmt.Fprintln(a.out)
		if query == "" {
			if err := RequiresTTY("read a query"); err != nil {
				return err
			}
			question := "What would you like the shell command to do?"
			if last != "" {
				question = "How should this be revised?"
			}
			query, err = Input(a.in, a.out, question, "", false)
			if errors.Is(err, ErrPromptCancelled) {
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out)
		}

		var messages []agent.Message
		if last != "" {
			messages = append(messages, agent.AssistantMessage(last))
		}
		messages = append(messages, agent.UserMessage(query))
		query = ""

		suggestion, err := withSpinner(a.out, func() (string, error) {
			return client.Complete(ctx, messages...)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s\n\n  %s\n\n", TitleStyle.Render("Suggestion:"), CommandStyle.Render(suggestion))

		if !IsTTY() {
			return nil
		}

		next, err := a.suggestMenu(ctx, suggestion)
		if err != nil {
			return err
		}
		switch next {
		case optionRevise:
			last = suggestion
		case optionNew:
			last = ""
		default:
			return nil
		}
	}
}

// suggestMenu runs the option menu until the user copies, revises, starts
// over or exits. Explaining returns to the menu.
func (a *app) suggestMenu(ctx context.Context, suggestion string) (int, error) {
	for {
		choice, err := Select(a.in, a.out, "Select an option", suggestOptions, optionCopy)
		if errors.Is(err, ErrPromptCancelled) {
			return optionExit, nil
		}
		if err != nil {
			return optionExit, err
		}

		switch choice {
		case optionCopy:
			if err := clipboard.WriteAll(suggestion); err != nil {
				fmt.Fprintln(a.out, RenderError("Error: "+err.Error()))
			} else {
				fmt.Fprintln(a.out, RenderSuccess("Copied to clipboard"))
			}
			return optionExit, nil
		case optionExplain:
			client, err := a.completer(provider.ExplainPreamble)
			if err != nil {
				return optionExit, err
			}
			if err := a.explain(ctx, client, suggestion); err != nil {
				fmt.Fprintln(a.out, RenderError(err.Error()))
			}
		default:
			return choice, nil
		}
	}
}

// =============================================================================
// EXPLAIN
// =============================================================================

// explain prints the explanation as returned; it already carries ANSI styling.
func (a *app) explain(ctx context.Context, client completer, command string) error {
	text, err := withSpinner(a.out, func() (string, error) {
		return client.Complete(ctx, agent.UserMessage(command))
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "\n%s\n\n%s\n\n", TitleStyle.Render("Explanation:"), text)
	return nil
}

// withSpinner shows the spinner on a terminal while fn runs.
func withSpinner[T any](out io.Writer, fn func() (T, error)) (T, error) {
	if !IsStdoutTTY() {
		return fn()
	}
	guard := render.HideCursor(out)
	defer guard.Restore()

	s := spinner.New(out)
	s.Start()
	defer s.Stop()
	return fn()
}
