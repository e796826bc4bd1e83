// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

func TestInit_WritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Init(Options{Dir: dir, Level: "debug"})
	require.NoError(t, err)

	Debug("turn started", zap.Int("turn", 3))
	Sync()

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Equal(t, "turn started", gjson.GetBytes(data, "msg").String())
	assert.Equal(t, int64(3), gjson.GetBytes(data, "turn").Int())
	assert.Contains(t, gjson.GetBytes(data, "caller").String(), "logging_test.go")
}

func TestInit_LevelFilters(t *testing.T) {
	dir := t.TempDir()
	_, err := Init(Options{Dir: dir, Level: "warn"})
	require.NoError(t, err)

	Info("hidden")
	Warn("shown")
	Sync()

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestInit_BadLevel(t *testing.T) {
	_, err := Init(Options{Dir: t.TempDir(), Level: "chatty"})
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	Nop()
	assert.NotNil(t, L())
	Error("dropped")
}
