// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider talks to the OpenAI and Anthropic HTTP APIs.
//
// A Client implements agent.Transport: it encodes the conversation in the
// provider's wire format, posts it, and returns the response as a
// stream.Stream, either live (server-sent events through stream.Aggregator)
// or replayed from a single JSON body when streaming is disabled.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/termai/internal/agent"
	"github.com/jeranaias/termai/internal/stream"
)

// Default API endpoints.
const (
	DefaultOpenAIURL    = "https://api.openai.com"
	DefaultAnthropicURL = "https://api.anthropic.com"

	// AnthropicVersion is sent as the anthropic-version header.
	AnthropicVersion = "2023-06-01"

	// MaxResponseSize bounds a non-streaming response body.
	MaxResponseSize = 10 * 1024 * 1024
)

// Settings identify one provider account and its selected models.
type Settings struct {
	Kind        stream.ProviderKind
	BaseURL     string
	APIKey      string
	Model       string
	SearchModel string
}

// DefaultBaseURL is the public endpoint of kind.
func DefaultBaseURL(kind stream.ProviderKind) string {
	if kind == stream.Anthropic {
		return DefaultAnthropicURL
	}
	return DefaultOpenAIURL
}

func (s Settings) baseURL() string {
	if s.BaseURL == "" {
		return DefaultBaseURL(s.Kind)
	}
	return s.BaseURL
}

// Endpoint is the chat endpoint URL for s.
func (s Settings) Endpoint() string {
	base := strings.TrimSuffix(s.baseURL(), "/")
	if s.Kind == stream.Anthropic {
		return base + "/v1/messages"
	}
	return base + "/v1/chat/completions"
}

// =============================================================================
// CLIENT
// =============================================================================

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithStreaming selects streamed (default) or single-body responses.
func WithStreaming(on bool) Option {
	return func(c *Client) { c.streaming = on }
}

// WithPreamble sets the system prompt.
func WithPreamble(p string) Option {
	return func(c *Client) { c.preamble = p }
}

// WithTimeout bounds each request, body included. Zero means no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithSearch sends requests to the search model instead of the completion
// model.
func WithSearch(on bool) Option {
	return func(c *Client) { c.search = on }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client is an agent.Transport for one provider.
type Client struct {
	settings  Settings
	http      *http.Client
	streaming bool
	search    bool
	preamble  string
	timeout   time.Duration
	logger    *zap.Logger
}

var _ agent.Transport = (*Client)(nil)

// New creates a Client. Streaming is on and the chat preamble is used unless
// overridden.
func New(s Settings, opts ...Option) *Client {
	c := &Client{
		settings:  s,
		http:      http.DefaultClient,
		streaming: true,
		preamble:  ChatPreamble,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settings returns the provider settings.
func (c *Client) Settings() Settings { return c.settings }

// Model returns the model requests are sent to.
func (c *Client) Model() string {
	if c.search && c.settings.SearchModel != "" {
		return c.settings.SearchModel
	}
	return c.settings.Model
}

// Open sends req and returns the response events.
func (c *Client) Open(ctx context.Context, req agent.Request) (stream.Stream, error) {
	if c.settings.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", c.settings.Kind.DisplayName(), ErrNotConfigured)
	}

	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	resp, err := c.post(ctx, req)
	if err != nil {
		cancel()
		return nil, err
	}

	if !c.streaming {
		defer cancel()
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		events, err := stream.DecodeCompletion(body, c.settings.Kind, req.IDPrefix)
		if err != nil {
			return nil, err
		}
		return stream.NewReplay(events), nil
	}

	agg := stream.New(resp.Body, c.settings.Kind,
		stream.WithContext(ctx),
		stream.WithIDPrefix(req.IDPrefix),
		stream.WithLogger(c.logger))
	return &cancelOnClose{Stream: agg, cancel: cancel}, nil
}

// Complete sends a single prompt with no history and returns the whole
// reply text.
func (c *Client) Complete(ctx context.Context, messages ...agent.Message) (string, error) {
	s, err := c.Open(ctx, agent.Request{Messages: messages})
	if err != nil {
		return "", err
	}
	events, err := stream.Collect(s)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, ev := range events {
		switch ev.Kind {
		case stream.EventText:
			text.WriteString(ev.Text)
		case stream.EventError:
			if text.Len() == 0 {
				return "", errors.New(strings.TrimSpace(ev.Text))
			}
		}
	}
	return strings.TrimSpace(text.String()), nil
}

func (c *Client) post(ctx context.Context, req agent.Request) (*http.Response, error) {
	var payload any
	switch c.settings.Kind {
	case stream.OpenAI:
		payload = buildOpenAI(c.Model(), c.preamble, req, c.streaming)
	case stream.Anthropic:
		payload = buildAnthropic(c.Model(), c.preamble, req, c.streaming)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, c.settings.Kind)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.settings.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Warn("request failed", zap.String("provider", c.settings.Kind.String()), zap.Error(err))
		return nil, fmt.Errorf("send request: %w", err)
	}
	c.logger.Info("response",
		zap.String("provider", c.settings.Kind.String()),
		zap.String("model", c.Model()),
		zap.Int("status", resp.StatusCode),
		zap.Bool("stream", c.streaming),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		return nil, newAPIError(resp.StatusCode, data)
	}
	return resp, nil
}

// setHeaders never logs; the headers carry the API key.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.streaming {
		req.Header.Set("Accept", "text/event-stream")
	}
	switch c.settings.Kind {
	case stream.Anthropic:
		req.Header.Set("x-api-key", c.settings.APIKey)
		req.Header.Set("anthropic-version", AnthropicVersion)
	default:
		req.Header.Set("Authorization", "Bearer "+c.settings.APIKey)
	}
}

// cancelOnClose releases the request deadline when the stream is closed.
type cancelOnClose struct {
	stream.Stream
	cancel context.CancelFunc
}

func (s *cancelOnClose) Close() error {
	err := s.Stream.Close()
	s.cancel()
	return err
}
