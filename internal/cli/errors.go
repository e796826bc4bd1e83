// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Exit codes for every termai command.
//
// Commands return errors; Execute alone decides what to print and which
// exit code to use. Errors already visible in the transcript are wrapped
// with quietError so they are not printed twice.

package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/jeranaias/termai/internal/config"
	"github.com/jeranaias/termai/internal/provider"
	"github.com/jeranaias/termai/internal/stream"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates the provider rejected the API key
	ExitAuthError = 4
	// ExitNetworkError indicates network or connectivity error
	ExitNetworkError = 5
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitInterrupted indicates the user pressed Ctrl-C
	ExitInterrupted = 130
)

// =============================================================================
// REPORTED ERRORS
// =============================================================================

// errReported marks an error the transcript already shows.
var errReported = errors.New("reported")

// quietError maps errors already visible to the user to errReported so
// Execute sets the exit code without printing them again.
func quietError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", errReported, err)
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// GetExitCode determines the exit code for an error returned by a command.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if errors.Is(err, context.Canceled) {
		return ExitInterrupted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ExitTimeoutError
	}

	var ttyErr *TTYRequiredError
	if errors.As(err, &ttyErr) {
		return ExitUsageError
	}

	var validation config.ValidateErrors
	var field config.ValidationError
	if errors.As(err, &validation) || errors.As(err, &field) ||
		errors.Is(err, config.ErrNoActiveProvider) ||
		errors.Is(err, config.ErrUnknownKey) ||
		errors.Is(err, provider.ErrNotConfigured) {
		return ExitConfigError
	}

	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden {
			return ExitAuthError
		}
		return ExitGeneralError
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ExitTimeoutError
		}
		return ExitNetworkError
	}
	var transportErr *stream.TransportError
	if errors.As(err, &transportErr) {
		return ExitNetworkError
	}

	return ExitGeneralError
}
