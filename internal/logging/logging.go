// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging provides the process-wide structured logger.
//
// Logs never go to the terminal, which belongs to the chat output. They are
// written as JSON to a size-rotated file under the config directory.
package logging

import (
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the log file inside the config directory.
const FileName = "termai.log"

// Options configures Init.
type Options struct {
	// Dir is the directory holding the log file.
	Dir string
	// Level is debug, info, warn or error. Empty means info.
	Level string
	// MaxSizeMB rotates the file at this size. Zero means 10.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept. Zero means 3.
	MaxBackups int
	// MaxAgeDays removes rotated files older than this. Zero means 28.
	MaxAgeDays int
}

var (
	mu   sync.RWMutex
	l    = zap.NewNop()
	sink *lumberjack.Logger
)

// L returns the global logger. It is a no-op logger until Init succeeds.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return l
}

// Init installs a file-backed logger. Calling it again replaces the previous
// logger and closes its file.
func Init(opts Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(defaultString(opts.Level, "info"))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, FileName),
		MaxSize:    defaultInt(opts.MaxSizeMB, 10),
		MaxBackups: defaultInt(opts.MaxBackups, 3),
		MaxAge:     defaultInt(opts.MaxAgeDays, 28),
		Compress:   true,
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), level)
	logger := zap.New(core, zap.AddCaller())

	mu.Lock()
	old := sink
	l, sink = logger, file
	mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return logger, nil
}

// Nop replaces the global logger with a no-op logger.
func Nop() {
	Sync()
}

// Sync flushes buffered entries and closes the log file. Call before exit.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	_ = l.Sync()
	if sink != nil {
		_ = sink.Close()
		sink = nil
	}
	l = zap.NewNop()
}

// Info logs a message at InfoLevel
func Info(msg string, fields ...zap.Field) {
	L().WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

// Debug logs a message at DebugLevel
func Debug(msg string, fields ...zap.Field) {
	L().WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
}

// Warn logs a message at WarnLevel
func Warn(msg string, fields ...zap.Field) {
	L().WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
}

// Error logs a message at ErrorLevel
func Error(msg string, fields ...zap.Field) {
	L().WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func defaultInt(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
