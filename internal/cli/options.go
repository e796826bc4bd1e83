// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// options.go - Configuration editor.
//
// Command: options [show|get KEY|set KEY VALUE|path]
// Short:   Show or edit settings
//
// Without a subcommand an interactive menu edits the active provider,
// its model, API keys and the streaming toggle. Changes are written to
// the config file only when saved.
//
// Examples:
//
//	termai options
//	termai options show
//	termai options set use_streaming false
//	termai options get max_turns

package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/termai/internal/config"
	"github.com/jeranaias/termai/internal/stream"
)

func newOptionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "options",
		Short: "Show or edit settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := RequiresTTY("edit settings"); err != nil {
				return err
			}
			return a.editOptions()
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the configuration with API keys redacted",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprint(a.out, config.Global().String())
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := config.ConfigPath()
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, path)
				return nil
			},
		},
		&cobra.Command{
			Use:       "get KEY",
			Short:     "Print one setting",
			Args:      cobra.ExactArgs(1),
			ValidArgs: config.Keys(),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := config.Global().Get(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, v)
				return nil
			},
		},
		&cobra.Command{
			Use:       "set KEY VALUE",
			Short:     "Change one setting and save",
			Args:      cobra.ExactArgs(2),
			ValidArgs: config.Keys(),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.setOption(args[0], args[1])
			},
		},
	)
	return cmd
}

// setOption updates one scalar setting in the file copy of the config.
func (a *app) setOption(key, value string) error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	if err := cfg.Set(key, value); err != nil {
		return fmt.Errorf("%w (known keys: %s)", err, strings.Join(config.Keys(), ", "))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveTo(cfg, path); err != nil {
		return err
	}
	fmt.Fprintln(a.out, RenderSuccess(fmt.Sprintf("%s = %s", key, value)))
	return nil
}

// =============================================================================
// INTERACTIVE EDITOR
// =============================================================================

const (
	menuProvider = iota
	menuModel
	menuAPIKey
	menuStreaming
	menuSave
	menuDiscard
)

func (a *app) editOptions() error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}

	choice := menuProvider
	for {
		a.printOptionsSummary(cfg)
		items := optionsMenu(cfg)
		choice, err = Select(a.in, a.out, "Select an option", items, choice)
		if errors.Is(err, ErrPromptCancelled) {
			choice = menuDiscard
		} else if err != nil {
			return err
		}

		switch choice {
		case menuProvider:
			err = a.chooseProvider(cfg)
		case menuModel:
			var model string
			model, err = a.pickModel(cfg, activeModel(cfg))
			if err == nil {
				err = cfg.SetActiveModel(model)
			}
		case menuAPIKey:
			err = a.promptAPIKey(cfg)
		case menuStreaming:
			cfg.UseStreaming = !cfg.UseStreaming
		case menuSave:
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.SaveTo(cfg, path); err != nil {
				return err
			}
			fmt.Fprintln(a.out, RenderSuccess("Saved "+path))
			return nil
		default:
			fmt.Fprintln(a.out, DimStyle.Render("No changes saved"))
			return nil
		}

		if errors.Is(err, ErrPromptCancelled) {
			err = nil
		}
		if err != nil {
			fmt.Fprintln(a.out, RenderError(err.Error()))
		}
	}
}

func optionsMenu(cfg *config.Config) []string {
	streaming := "off"
	if cfg.UseStreaming {
		streaming = "on"
	}
	model := activeModel(cfg)
	if model == "" {
		model = "-"
	}
	return []string{
		"Active provider: " + cfg.ActiveProvider,
		"Model: " + model,
		"Set API key",
		"Streaming: " + streaming,
		"Save and exit",
		"Exit without saving",
	}
}

func activeModel(cfg *config.Config) string {
	p, err := cfg.ActiveAccount()
	if err != nil {
		return ""
	}
	return p.Model
}

// chooseProvider switches the active provider and asks for a key when the
// provider has no account yet.
func (a *app) chooseProvider(cfg *config.Config) error {
	kinds := stream.Providers()
	items := make([]string, len(kinds))
	initial := 0
	active, _ := cfg.ActiveKind()
	for i, k := range kinds {
		items[i] = k.DisplayName()
		if cfg.Provider(k) == nil {
			items[i] += DimStyle.Render(" (not configured)")
		}
		if k == active {
			initial = i
		}
	}
	idx, err := Select(a.in, a.out, "Select the active provider", items, initial)
	if err != nil {
		return err
	}
	kind := kinds[idx]
	cfg.ActiveProvider = kind.String()
	if cfg.Provider(kind) == nil {
		return a.promptAPIKey(cfg)
	}
	return nil
}

func (a *app) promptAPIKey(cfg *config.Config) error {
	kind, err := cfg.ActiveKind()
	if err != nil {
		return err
	}
	key, err := Input(a.in, a.out, kind.DisplayName()+" API key", "", true)
	if err != nil {
		return err
	}
	if p := cfg.Provider(kind); p != nil {
		p.APIKey = key
	} else {
		cfg.UpsertProvider(config.NewProvider(kind, key))
	}
	return nil
}

func (a *app) printOptionsSummary(cfg *config.Config) {
	fmt.Fprintln(a.out, TitleStyle.Render("termai options"))
	for _, p := range cfg.Providers {
		key := ErrorStyle.Render("missing")
		if p.APIKey != "" {
			key = SuccessStyle.Render("set")
		}
		fmt.Fprintln(a.out, "  "+RenderLabel(p.Kind)+ValueStyle.Render(p.Model)+DimStyle.Render("  key: ")+key)
	}
	fmt.Fprintln(a.out)
}
