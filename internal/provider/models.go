// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/v3"
	openaioption "github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/termai/internal/stream"
)

// =============================================================================
// CATALOGS
// =============================================================================

// Model is one selectable model of a provider.
type Model struct {
	Provider    stream.ProviderKind
	ID          string
	DisplayName string
	Search      bool
}

var completionModels = map[stream.ProviderKind][]Model{
	stream.OpenAI: {
		{stream.OpenAI, "gpt-4o", "GPT 4o", false},
		{stream.OpenAI, "gpt-4o-mini", "GPT 4o mini", false},
		{stream.OpenAI, "gpt-4.1", "GPT 4.1", false},
		{stream.OpenAI, "gpt-4.1-mini", "GPT 4.1 mini", false},
		{stream.OpenAI, "gpt-4.1-nano", "GPT 4.1 nano", false},
		{stream.OpenAI, "o3-mini", "o3 mini", false},
		{stream.OpenAI, "o4-mini", "o4 mini", false},
	},
	stream.Anthropic: {
		{stream.Anthropic, "claude-sonnet-4-20250514", "Claude Sonnet 4", false},
		{stream.Anthropic, "claude-opus-4-20250514", "Claude Opus 4", false},
		{stream.Anthropic, "claude-3-7-sonnet-20250219", "Claude 3.7 Sonnet", false},
		{stream.Anthropic, "claude-3-5-sonnet-20241022", "Claude 3.5 Sonnet", false},
		{stream.Anthropic, "claude-3-5-haiku-20241022", "Claude 3.5 Haiku", false},
		{stream.Anthropic, "claude-3-opus-20240229", "Claude 3 Opus", false},
	},
}

var searchModels = map[stream.ProviderKind][]Model{
	stream.OpenAI: {
		{stream.OpenAI, "gpt-4o-search-preview", "GPT 4o Search", true},
		{stream.OpenAI, "gpt-4o-mini-search-preview", "GPT 4o-mini Search", true},
	},
}

// Catalog returns the allow-listed models of kind, completion models first.
func Catalog(kind stream.ProviderKind) []Model {
	out := append([]Model(nil), completionModels[kind]...)
	return append(out, searchModels[kind]...)
}

// IsSearchModel reports whether id is a web-search model. Search models are
// never offered tools.
func IsSearchModel(id string) bool {
	for _, models := range searchModels {
		for _, m := range models {
			if m.ID == id {
				return true
			}
		}
	}
	return false
}

// MaxTokens is the Anthropic max_tokens value used for model.
func MaxTokens(model string) int {
	switch model {
	case "claude-sonnet-4-20250514", "claude-3-7-sonnet-20250219":
		return 64000
	case "claude-opus-4-20250514":
		return 32000
	case "claude-3-5-sonnet-20241022", "claude-3-5-haiku-20241022":
		return 8192
	default:
		return 4096
	}
}

// DefaultModel is the first allow-listed completion model of kind.
func DefaultModel(kind stream.ProviderKind) string {
	if models := completionModels[kind]; len(models) > 0 {
		return models[0].ID
	}
	return ""
}

// DefaultSearchModel is the first search model of kind, or "".
func DefaultSearchModel(kind stream.ProviderKind) string {
	if models := searchModels[kind]; len(models) > 0 {
		return models[0].ID
	}
	return ""
}

// =============================================================================
// FETCH
// =============================================================================

// FetchModels lists the models the account can use and keeps the
// allow-listed ones, in allow-list order.
func FetchModels(ctx context.Context, s Settings, httpClient *http.Client) ([]Model, error) {
	if s.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", s.Kind.DisplayName(), ErrNotConfigured)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	base := strings.TrimSuffix(s.baseURL(), "/")

	available := make(map[string]string)
	switch s.Kind {
	case stream.Anthropic:
		client := anthropic.NewClient(
			anthropicoption.WithAPIKey(s.APIKey),
			anthropicoption.WithBaseURL(base),
			anthropicoption.WithHTTPClient(httpClient),
			anthropicoption.WithMaxRetries(0),
		)
		iter := client.Models.ListAutoPaging(ctx, anthropic.ModelListParams{})
		for iter.Next() {
			m := iter.Current()
			available[m.ID] = m.DisplayName
		}
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("list anthropic models: %w", err)
		}
	case stream.OpenAI:
		client := openai.NewClient(
			openaioption.WithAPIKey(s.APIKey),
			openaioption.WithBaseURL(base+"/v1/"),
			openaioption.WithHTTPClient(httpClient),
			openaioption.WithMaxRetries(0),
		)
		iter := client.Models.ListAutoPaging(ctx)
		for iter.Next() {
			available[iter.Current().ID] = ""
		}
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("list openai models: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, s.Kind)
	}

	var out []Model
	for _, m := range Catalog(s.Kind) {
		name, ok := available[m.ID]
		if !ok {
			continue
		}
		if name != "" {
			m.DisplayName = name
		}
		out = append(out, m)
	}
	return out, nil
}

// RefreshModels fetches the model lists of every provider concurrently. A
// provider whose fetch fails gets an empty list; the refresh as a whole never
// fails.
func RefreshModels(ctx context.Context, providers []Settings, httpClient *http.Client, logger *zap.Logger) map[stream.ProviderKind][]Model {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		mu     sync.Mutex
		result = make(map[stream.ProviderKind][]Model, len(providers))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range providers {
		g.Go(func() error {
			models, err := FetchModels(gctx, s, httpClient)
			if err != nil {
				logger.Warn("model refresh failed", zap.String("provider", s.Kind.String()), zap.Error(err))
				models = []Model{}
			} else {
				logger.Info("model refresh", zap.String("provider", s.Kind.String()), zap.Int("count", len(models)))
			}
			mu.Lock()
			result[s.Kind] = models
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return result
}
