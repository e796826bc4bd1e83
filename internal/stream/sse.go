// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// =============================================================================
// SSE LINE READER
// =============================================================================

// MaxLineSize is the largest single SSE line accepted (1MB).
const MaxLineSize = 1024 * 1024

// ErrLineTooLong is returned when a line exceeds MaxLineSize.
var ErrLineTooLong = errors.New("sse line too long")

// LineReader reads a Server-Sent-Events body one line at a time.
type LineReader struct {
	reader *bufio.Reader
}

// NewLineReader creates a LineReader over r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{reader: bufio.NewReaderSize(r, 64*1024)}
}

// ReadLine returns the next line without its trailing CR/LF.
// A final line without newline is returned before io.EOF.
func (l *LineReader) ReadLine() (string, error) {
	var sb strings.Builder
	for {
		chunk, isPrefix, err := l.reader.ReadLine()
		if err != nil {
			if err == io.EOF && sb.Len() > 0 {
				return sb.String(), nil
			}
			return "", err
		}
		sb.Write(chunk)
		if sb.Len() > MaxLineSize {
			return "", fmt.Errorf("%w: more than %d bytes", ErrLineTooLong, MaxLineSize)
		}
		if !isPrefix {
			return strings.TrimRight(sb.String(), "\r"), nil
		}
	}
}
