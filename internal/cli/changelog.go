// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/termai/internal/render"
)

//go:embed CHANGELOG.md
var changelog string

func newChangelogCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Show what changed in the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := changelog
			if !all {
				text = latestRelease(changelog)
			}
			out, err := render.NewMarkdown(MarkdownStyle()).Format(text, GetTerminalWidth())
			if err != nil {
				out = text
			}
			fmt.Fprint(a.out, out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Show every release")
	return cmd
}

// latestRelease returns the first "## " section of a changelog.
func latestRelease(md string) string {
	start := strings.Index(md, "\n## ")
	if start < 0 {
		return md
	}
	section := md[start+1:]
	if end := strings.Index(section, "\n## "); end >= 0 {
		section = section[:end]
	}
	return strings.TrimSpace(section) + "\n"
}
