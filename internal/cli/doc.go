// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the termai command tree and its terminal front end.
//
// Commands are built with cobra. Running termai without a subcommand starts
// an interactive chat; a trailing message is sent as the first prompt.
//
// # Commands Overview
//
//   - chat: Interactive chat session with slash commands
//   - ask: Single question, optionally with web search
//   - suggest: Shell command suggestion with copy/explain/revise menu
//   - explain: Explanation of a shell command
//   - models: Refresh the cached model list of every provider
//   - options: Show or edit settings
//   - changelog: Release notes
//   - version: Build information
//
// # Rendering
//
// A chat turn is driven by an agent.Loop. Its events feed a turnPrinter
// which pairs a spinner.Spinner with a render.Renderer. When stdout is not
// a terminal, text is written raw and the spinner is disabled.
//
// # Usage
//
//	os.Exit(cli.Execute(cli.BuildInfo{Version: version}))
package cli
