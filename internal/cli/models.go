// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models.go - Model list refresh.
//
// Command: models
// Short:   Refresh and list the models of every configured provider
//
// The providers are queried concurrently. A provider that fails keeps its
// previous cached list and is reported; the others are still updated.

package cli

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jeranaias/termai/internal/config"
	"github.com/jeranaias/termai/internal/provider"
	"github.com/jeranaias/termai/internal/stream"
)

func newModelsCmd(a *app) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Refresh and list the models of every configured provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if offline {
				a.printModels(config.Global())
				return nil
			}
			return a.refreshModels(cmd.Context(), nil)
		},
	}
	cmd.Flags().BoolVar(&offline, "cached", false, "List cached models without refreshing")
	return cmd
}

// refreshModels fetches every provider's models and stores them in the
// config file.
func (a *app) refreshModels(ctx context.Context, httpClient *http.Client) error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	// The file copy carries no environment overrides, so keys from the
	// environment are never written to disk.
	onDisk, err := config.LoadFile(path)
	if err != nil {
		return err
	}

	settings := config.Global().AllSettings()
	if len(settings) == 0 {
		return config.ErrNoActiveProvider
	}

	results, err := withSpinner(a.out, func() (map[stream.ProviderKind][]provider.Model, error) {
		return provider.RefreshModels(ctx, settings, httpClient, a.logger), nil
	})
	if err != nil {
		return err
	}

	for _, s := range settings {
		models := results[s.Kind]
		if len(models) == 0 {
			fmt.Fprintln(a.out, WarningStyle.Render(fmt.Sprintf("%s: no models fetched, keeping cached list", s.Kind.DisplayName())))
			continue
		}
		onDisk.SetModels(s.Kind, models)
		config.Global().SetModels(s.Kind, models)
	}

	if err := config.SaveTo(onDisk, path); err != nil {
		return err
	}
	a.printModels(config.Global())
	return nil
}

func (a *app) printModels(cfg *config.Config) {
	active, _ := cfg.ActiveKind()
	for _, p := range cfg.Providers {
		kind, err := stream.ParseProviderKind(p.Kind)
		if err != nil {
			continue
		}
		title := kind.DisplayName()
		if kind == active {
			title += " (active)"
		}
		fmt.Fprintln(a.out, TitleStyle.Render(title))
		for _, m := range cfg.ModelsFor(kind) {
			marker := "  "
			if m.ID == p.Model || m.ID == p.SearchModel {
				marker = HighlightStyle.Render("• ")
			}
			line := marker + RenderLabel(m.DisplayName) + DimStyle.Render(m.ID)
			if m.Search {
				line += " " + ToolStyle.Render("[search]")
			}
			fmt.Fprintln(a.out, line)
		}
		fmt.Fprintln(a.out)
	}
}
