// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and saves the termai configuration.
//
// # Key Types
//
//   - Config: top-level settings, provider accounts, cached model lists and
//     MCP servers
//   - ProviderConfig: one provider account (kind, endpoint, key, models)
//   - MCPServer: a tool server spawned over stdio
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (TERMAI_*)
//   - ~/.termai/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	p, err := cfg.ActiveAccount()
//
// The chat session reads config.Global() at the start of every turn and
// keeps it fresh with Watch, so edits to the file apply from the next turn.
package config
