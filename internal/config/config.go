// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/natefinch/atomic"

	"github.com/jeranaias/termai/internal/provider"
	"github.com/jeranaias/termai/internal/stream"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete termai configuration.
type Config struct {
	// ActiveProvider is the provider chat, ask, suggest and explain use.
	ActiveProvider string `toml:"active_provider"`
	// UseStreaming renders replies while they arrive.
	UseStreaming bool `toml:"use_streaming"`
	// MaxTurns bounds consecutive tool-calling turns in one exchange.
	MaxTurns int `toml:"max_turns"`
	// RequestTimeoutSecs is a per-request deadline; 0 means none.
	RequestTimeoutSecs int `toml:"request_timeout_secs"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `toml:"log_level"`

	Providers       []ProviderConfig `toml:"providers"`
	AvailableModels []ModelEntry     `toml:"available_models"`
	MCPServers      []MCPServer      `toml:"mcp_servers"`
}

// ProviderConfig is one provider account.
type ProviderConfig struct {
	Kind        string `toml:"kind"`
	BaseURL     string `toml:"base_url"`
	APIKey      string `toml:"api_key"`
	Model       string `toml:"model"`
	SearchModel string `toml:"search_model,omitempty"`
}

// ModelEntry is a cached model list entry, refreshed by `termai models`.
type ModelEntry struct {
	Provider    string `toml:"provider"`
	ID          string `toml:"id"`
	DisplayName string `toml:"display_name"`
	Search      bool   `toml:"search,omitempty"`
}

// MCPServer is a tool server spawned over stdio.
type MCPServer struct {
	Name    string   `toml:"name"`
	Command string   `toml:"command"`
	Args    []string `toml:"args,omitempty"`
	Env     []string `toml:"env,omitempty"`
}

var (
	// ErrNoActiveProvider indicates the active provider has no account entry.
	ErrNoActiveProvider = errors.New("no active provider configured; run `termai options`")

	// ErrUnknownKey indicates a Get/Set key that is not a config setting.
	ErrUnknownKey = errors.New("unknown config key")
)

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

const (
	DefaultMaxTurns = 20
	DefaultLogLevel = "info"
)

// Default returns a Config with default values and no provider accounts.
func Default() *Config {
	return &Config{
		ActiveProvider: stream.OpenAI.String(),
		UseStreaming:   true,
		MaxTurns:       DefaultMaxTurns,
		LogLevel:       DefaultLogLevel,
	}
}

// NewProvider returns an account for kind with default endpoint and models.
func NewProvider(kind stream.ProviderKind, apiKey string) ProviderConfig {
	return ProviderConfig{
		Kind:        kind.String(),
		BaseURL:     provider.DefaultBaseURL(kind),
		APIKey:      apiKey,
		Model:       provider.DefaultModel(kind),
		SearchModel: provider.DefaultSearchModel(kind),
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the termai configuration directory path.
func ConfigDir() (string, error) {
	if dir := os.Getenv("TERMAI_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".termai"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions tightens a config file that other users can read.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the default config file, applies environment overrides, fills
// defaults and validates. A missing file yields the defaults.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom is Load for an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile decodes path over the defaults without environment overrides, as
// used when the result is going to be saved back.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	_ = ensureSecurePermissions(path)
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.SetDefaults()
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to the default config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo writes cfg to path atomically with owner-only permissions.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# termai configuration file\n# Generated by termai - edit with care\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return os.Chmod(path, 0o600)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s=%q: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, value, msg string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: msg})
	}

	if _, err := stream.ParseProviderKind(c.ActiveProvider); err != nil {
		add("active_provider", c.ActiveProvider, "must be openai or anthropic")
	}
	if c.MaxTurns < 1 {
		add("max_turns", strconv.Itoa(c.MaxTurns), "must be at least 1")
	}
	if c.RequestTimeoutSecs < 0 {
		add("request_timeout_secs", strconv.Itoa(c.RequestTimeoutSecs), "must not be negative")
	}
	if !validLogLevels[c.LogLevel] {
		add("log_level", c.LogLevel, "must be debug, info, warn or error")
	}

	seen := make(map[stream.ProviderKind]bool)
	for i, p := range c.Providers {
		field := fmt.Sprintf("providers[%d]", i)
		kind, err := stream.ParseProviderKind(p.Kind)
		if err != nil {
			add(field+".kind", p.Kind, "must be openai or anthropic")
			continue
		}
		if seen[kind] {
			add(field+".kind", p.Kind, "duplicate provider")
		}
		seen[kind] = true
		if p.BaseURL != "" {
			if u, err := url.Parse(p.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				add(field+".base_url", p.BaseURL, "must be an http(s) URL")
			}
		}
	}

	for i, m := range c.AvailableModels {
		if _, err := stream.ParseProviderKind(m.Provider); err != nil {
			add(fmt.Sprintf("available_models[%d].provider", i), m.Provider, "must be openai or anthropic")
		}
	}

	names := make(map[string]bool)
	for i, s := range c.MCPServers {
		field := fmt.Sprintf("mcp_servers[%d]", i)
		switch {
		case s.Name == "":
			add(field+".name", "", "is required")
		case strings.Contains(s.Name, "-"):
			add(field+".name", s.Name, "must not contain '-'")
		case names[s.Name]:
			add(field+".name", s.Name, "duplicate server")
		}
		names[s.Name] = true
		if s.Command == "" {
			add(field+".command", "", "is required")
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.ActiveProvider == "" {
		c.ActiveProvider = stream.OpenAI.String()
	}
	if c.MaxTurns == 0 {
		c.MaxTurns = DefaultMaxTurns
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		kind, err := stream.ParseProviderKind(p.Kind)
		if err != nil {
			continue
		}
		p.Kind = kind.String()
		if p.BaseURL == "" {
			p.BaseURL = provider.DefaultBaseURL(kind)
		}
		if p.Model == "" {
			p.Model = provider.DefaultModel(kind)
		}
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - TERMAI_PROVIDER: overrides active_provider
//   - TERMAI_MODEL: overrides the active provider's model
//   - TERMAI_STREAMING: "0"/"false" disables streaming
//   - TERMAI_OPENAI_API_KEY: OpenAI API key (adds the account if missing)
//   - TERMAI_ANTHROPIC_API_KEY: Anthropic API key (adds the account if missing)
//   - TERMAI_DEBUG: "1"/"true" sets log_level to debug
func (c *Config) ApplyEnvOverrides() {
	if p := os.Getenv("TERMAI_PROVIDER"); p != "" {
		c.ActiveProvider = p
	}

	keys := map[stream.ProviderKind]string{
		stream.OpenAI:    "TERMAI_OPENAI_API_KEY",
		stream.Anthropic: "TERMAI_ANTHROPIC_API_KEY",
	}
	for _, kind := range stream.Providers() {
		key := os.Getenv(keys[kind])
		if key == "" {
			continue
		}
		if p := c.Provider(kind); p != nil {
			p.APIKey = key
		} else {
			c.Providers = append(c.Providers, NewProvider(kind, key))
		}
	}

	if model := os.Getenv("TERMAI_MODEL"); model != "" {
		if kind, err := stream.ParseProviderKind(c.ActiveProvider); err == nil {
			if p := c.Provider(kind); p != nil {
				p.Model = model
			}
		}
	}

	if v := os.Getenv("TERMAI_STREAMING"); v != "" {
		c.UseStreaming = parseBool(v)
	}
	if v := os.Getenv("TERMAI_DEBUG"); v != "" && parseBool(v) {
		c.LogLevel = "debug"
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// =============================================================================
// PROVIDER HELPERS
// =============================================================================

// ActiveKind returns the active provider kind.
func (c *Config) ActiveKind() (stream.ProviderKind, error) {
	return stream.ParseProviderKind(c.ActiveProvider)
}

// Provider returns the account for kind, or nil.
func (c *Config) Provider(kind stream.ProviderKind) *ProviderConfig {
	for i := range c.Providers {
		if k, err := stream.ParseProviderKind(c.Providers[i].Kind); err == nil && k == kind {
			return &c.Providers[i]
		}
	}
	return nil
}

// ActiveAccount returns the account of the active provider.
func (c *Config) ActiveAccount() (*ProviderConfig, error) {
	kind, err := c.ActiveKind()
	if err != nil {
		return nil, err
	}
	p := c.Provider(kind)
	if p == nil {
		return nil, ErrNoActiveProvider
	}
	return p, nil
}

// UpsertProvider replaces the account of the same kind or appends p.
func (c *Config) UpsertProvider(p ProviderConfig) {
	kind, err := stream.ParseProviderKind(p.Kind)
	if err == nil {
		if existing := c.Provider(kind); existing != nil {
			*existing = p
			return
		}
	}
	c.Providers = append(c.Providers, p)
}

// SetActiveModel sets the model of the active provider.
func (c *Config) SetActiveModel(model string) error {
	p, err := c.ActiveAccount()
	if err != nil {
		return err
	}
	if provider.IsSearchModel(model) {
		p.SearchModel = model
	} else {
		p.Model = model
	}
	return nil
}

// ModelsFor returns the cached models of kind, falling back to the built-in
// allow-list when none have been fetched.
func (c *Config) ModelsFor(kind stream.ProviderKind) []ModelEntry {
	var out []ModelEntry
	for _, m := range c.AvailableModels {
		if k, err := stream.ParseProviderKind(m.Provider); err == nil && k == kind {
			out = append(out, m)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, m := range provider.Catalog(kind) {
		out = append(out, ModelEntry{Provider: kind.String(), ID: m.ID, DisplayName: m.DisplayName, Search: m.Search})
	}
	return out
}

// SetModels replaces the cached models of kind.
func (c *Config) SetModels(kind stream.ProviderKind, models []provider.Model) {
	kept := c.AvailableModels[:0]
	for _, m := range c.AvailableModels {
		if k, err := stream.ParseProviderKind(m.Provider); err != nil || k != kind {
			kept = append(kept, m)
		}
	}
	for _, m := range models {
		kept = append(kept, ModelEntry{Provider: kind.String(), ID: m.ID, DisplayName: m.DisplayName, Search: m.Search})
	}
	c.AvailableModels = kept
}

// Settings converts an account into transport settings.
func (p ProviderConfig) Settings() (provider.Settings, error) {
	kind, err := stream.ParseProviderKind(p.Kind)
	if err != nil {
		return provider.Settings{}, err
	}
	return provider.Settings{
		Kind:        kind,
		BaseURL:     p.BaseURL,
		APIKey:      p.APIKey,
		Model:       p.Model,
		SearchModel: p.SearchModel,
	}, nil
}

// AllSettings returns transport settings for every valid account.
func (c *Config) AllSettings() []provider.Settings {
	var out []provider.Settings
	for _, p := range c.Providers {
		if s, err := p.Settings(); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// RequestTimeout returns the per-request deadline, 0 for none.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// =============================================================================
// GET/SET HELPERS
// =============================================================================

// Keys lists the scalar settings reachable through Get and Set.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if isScalar(f.Type.Kind()) {
			keys = append(keys, tomlName(f))
		}
	}
	return keys
}

// Get returns a top-level scalar setting by its TOML key.
func (c *Config) Get(key string) (any, error) {
	field, err := c.field(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set parses value into the top-level scalar setting key.
func (c *Config) Set(key, value string) error {
	field, err := c.field(key)
	if err != nil {
		return err
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		field.SetBool(b)
	case reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		field.SetInt(int64(n))
	}
	return nil
}

func (c *Config) field(key string) (reflect.Value, error) {
	v := reflect.ValueOf(c).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if tomlName(f) == key && isScalar(f.Type.Kind()) {
			return v.Field(i), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

func tomlName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
	return name
}

func isScalar(k reflect.Kind) bool {
	return k == reflect.String || k == reflect.Bool || k == reflect.Int
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Providers = append([]ProviderConfig(nil), c.Providers...)
	clone.AvailableModels = append([]ModelEntry(nil), c.AvailableModels...)
	clone.MCPServers = make([]MCPServer, len(c.MCPServers))
	for i, s := range c.MCPServers {
		s.Args = append([]string(nil), s.Args...)
		s.Env = append([]string(nil), s.Env...)
		clone.MCPServers[i] = s
	}
	return &clone
}

// String renders the config as TOML with API keys redacted.
func (c *Config) String() string {
	safe := c.Clone()
	for i := range safe.Providers {
		if safe.Providers[i].APIKey != "" {
			safe.Providers[i].APIKey = "[REDACTED]"
		}
	}
	var buf bytes.Buffer
	_ = toml.NewEncoder(&buf).Encode(safe)
	return buf.String()
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
// On error the current configuration is kept.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
