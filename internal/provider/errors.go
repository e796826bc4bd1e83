// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrNotConfigured indicates the provider has no API key.
	ErrNotConfigured = errors.New("API key not configured")

	// ErrUnknownProvider indicates a provider kind this client cannot talk to.
	ErrUnknownProvider = errors.New("unknown provider")
)

// APIError is a non-2xx response from a provider.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s", e.Status, e.Message)
}

// maxErrorBody bounds how much of an error body is quoted.
const maxErrorBody = 500

// newAPIError extracts the provider's error message from body. Both APIs use
// {"error":{"message":...}}; anything else is quoted raw.
func newAPIError(status int, body []byte) *APIError {
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody] + "..."
		}
	}
	if msg == "" {
		msg = "empty response"
	}
	return &APIError{Status: status, Message: msg}
}
