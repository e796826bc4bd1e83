// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/termai/internal/stream"
)

const openAIModels = `{"object":"list","data":[
	{"id":"whisper-1","object":"model","created":1,"owned_by":"openai"},
	{"id":"gpt-4o-mini","object":"model","created":1,"owned_by":"openai"},
	{"id":"gpt-4o","object":"model","created":1,"owned_by":"openai"},
	{"id":"gpt-4o-search-preview","object":"model","created":1,"owned_by":"openai"}
]}`

const anthropicModels = `{"data":[
	{"type":"model","id":"claude-3-5-haiku-20241022","display_name":"Claude Haiku 3.5","created_at":"2024-10-22T00:00:00Z"},
	{"type":"model","id":"claude-2.1","display_name":"Claude 2.1","created_at":"2023-11-21T00:00:00Z"}
],"has_more":false,"first_id":"claude-3-5-haiku-20241022","last_id":"claude-2.1"}`

func TestFetchModels_OpenAIFiltersAllowList(t *testing.T) {
	var got captured
	srv := newServer(t, http.StatusOK, openAIModels, &got)

	models, err := FetchModels(context.Background(), Settings{Kind: stream.OpenAI, BaseURL: srv.URL, APIKey: "sk"}, srv.Client())
	require.NoError(t, err)

	var ids []string
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini", "gpt-4o-search-preview"}, ids, "allow-list order, unknown ids dropped")
	assert.True(t, models[2].Search)
	assert.Equal(t, "/v1/models", got.path)
	assert.Equal(t, "Bearer sk", got.headers.Get("Authorization"))
}

func TestFetchModels_AnthropicDisplayNames(t *testing.T) {
	var got captured
	srv := newServer(t, http.StatusOK, anthropicModels, &got)

	models, err := FetchModels(context.Background(), Settings{Kind: stream.Anthropic, BaseURL: srv.URL, APIKey: "ak"}, srv.Client())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, Model{Provider: stream.Anthropic, ID: "claude-3-5-haiku-20241022", DisplayName: "Claude Haiku 3.5"}, models[0])
	assert.Equal(t, "/v1/models", got.path)
	assert.Equal(t, "ak", got.headers.Get("x-api-key"))
}

func TestRefreshModels_OneProviderFails(t *testing.T) {
	ok := newServer(t, http.StatusOK, openAIModels, nil)
	failing := newServer(t, http.StatusUnauthorized, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, nil)

	result := RefreshModels(context.Background(), []Settings{
		{Kind: stream.OpenAI, BaseURL: ok.URL, APIKey: "sk"},
		{Kind: stream.Anthropic, BaseURL: failing.URL, APIKey: "bad"},
	}, nil, nil)

	require.Len(t, result, 2)
	assert.Len(t, result[stream.OpenAI], 3)
	require.Contains(t, result, stream.Anthropic)
	assert.Empty(t, result[stream.Anthropic])
}

func TestFetchModels_NotConfigured(t *testing.T) {
	_, err := FetchModels(context.Background(), Settings{Kind: stream.OpenAI}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestMaxTokens(t *testing.T) {
	tests := map[string]int{
		"claude-sonnet-4-20250514":   64000,
		"claude-3-7-sonnet-20250219": 64000,
		"claude-opus-4-20250514":     32000,
		"claude-3-5-sonnet-20241022": 8192,
		"claude-3-5-haiku-20241022":  8192,
		"claude-3-opus-20240229":     4096,
		"something-else":             4096,
	}
	for model, want := range tests {
		assert.Equal(t, want, MaxTokens(model), model)
	}
}

func TestCatalogDefaults(t *testing.T) {
	assert.Equal(t, "gpt-4o", DefaultModel(stream.OpenAI))
	assert.Equal(t, "claude-sonnet-4-20250514", DefaultModel(stream.Anthropic))
	assert.Equal(t, "gpt-4o-search-preview", DefaultSearchModel(stream.OpenAI))
	assert.Empty(t, DefaultSearchModel(stream.Anthropic))
	assert.True(t, IsSearchModel("gpt-4o-mini-search-preview"))
	assert.False(t, IsSearchModel("gpt-4o"))
}
