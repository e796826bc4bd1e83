// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/termai/internal/agent"
	"github.com/jeranaias/termai/internal/config"
	"github.com/jeranaias/termai/internal/provider"
	"github.com/jeranaias/termai/internal/stream"
)

// =============================================================================
// FAKES
// =============================================================================

// scriptedTransport replays one event script per turn.
type scriptedTransport struct {
	turns    [][]stream.Event
	requests []agent.Request
}

func (s *scriptedTransport) Open(_ context.Context, req agent.Request) (stream.Stream, error) {
	s.requests = append(s.requests, req)
	if len(s.requests) > len(s.turns) {
		return nil, errors.New("unexpected request")
	}
	return stream.NewReplay(s.turns[len(s.requests)-1]), nil
}

type fakeCompleter struct {
	reply    string
	err      error
	messages [][]agent.Message
}

func (f *fakeCompleter) Complete(_ context.Context, messages ...agent.Message) (string, error) {
	f.messages = append(f.messages, messages)
	return f.reply, f.err
}

// isolate points the config directory at a temp dir and installs defaults.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TERMAI_HOME", dir)
	for _, key := range []string{
		"TERMAI_PROVIDER", "TERMAI_MODEL", "TERMAI_STREAMING",
		"TERMAI_OPENAI_API_KEY", "TERMAI_ANTHROPIC_API_KEY", "TERMAI_DEBUG",
	} {
		t.Setenv(key, "")
	}
	config.SetGlobal(config.Default())
	t.Cleanup(config.ResetGlobalForTesting)
	return dir
}

func newTestSession(t *testing.T, out *bytes.Buffer, transport agent.Transport) *Session {
	t.Helper()
	return newSession(sessionOptions{
		in:          strings.NewReader(""),
		out:         out,
		interactive: false,
		canPrompt:   false,
		transport:   transport,
	})
}

// =============================================================================
// SESSION TESTS
// =============================================================================

func TestSession_PlainReplyWrittenRaw(t *testing.T) {
	isolate(t)
	var out bytes.Buffer
	transport := &scriptedTransport{turns: [][]stream.Event{
		{stream.TextEvent("Hello "), stream.TextEvent("**world**")},
	}}
	sess := newTestSession(t, &out, transport)

	reply, err := sess.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello **world**", reply)
	assert.Contains(t, out.String(), "AI:")
	assert.Contains(t, out.String(), "Hello **world**\n")
	assert.Equal(t, 2, sess.History().Len())
}

func TestSession_ToolCallDeniedWithoutTerminal(t *testing.T) {
	isolate(t)
	var out bytes.Buffer
	call := stream.ToolCall{ID: "call_1_1", Name: "fs-read", Arguments: `{"path":"/etc/hosts"}`}
	transport := &scriptedTransport{turns: [][]stream.Event{
		{stream.ToolCallEvent(call)},
		{stream.TextEvent("I could not read it.")},
	}}
	sess := newTestSession(t, &out, transport)

	reply, err := sess.Send(context.Background(), "read my hosts file")
	require.NoError(t, err)
	assert.Equal(t, "I could not read it.", reply)

	text := out.String()
	assert.Contains(t, text, "⚙ fs-read")
	assert.Contains(t, text, "denied: no terminal for confirmation")
	assert.Contains(t, text, "↳ fs-read: "+agent.CancelledResult)

	require.Len(t, transport.requests, 2)
	last := transport.requests[1].Messages
	assert.Equal(t, agent.RoleTool, last[len(last)-1].Role)
	assert.Equal(t, agent.CancelledResult, last[len(last)-1].Content)
}

func TestSession_ProviderErrorShownInline(t *testing.T) {
	isolate(t)
	var out bytes.Buffer
	transport := &scriptedTransport{turns: [][]stream.Event{
		{stream.ProviderErrorEvent("**Error**: overloaded")},
	}}
	sess := newTestSession(t, &out, transport)

	_, err := sess.Send(context.Background(), "hi")
	var turnErr *agent.TurnError
	require.ErrorAs(t, err, &turnErr)
	assert.Contains(t, out.String(), "**Error**: overloaded")
	assert.Zero(t, sess.History().Len())

	var report bytes.Buffer
	reportTurnError(&report, err)
	assert.Empty(t, report.String(), "turn errors are already in the transcript")
}

func TestSession_ModelOverride(t *testing.T) {
	isolate(t)
	cfg := config.Default()
	cfg.UpsertProvider(config.NewProvider(stream.OpenAI, "sk-test"))
	config.SetGlobal(cfg)

	sess := newSession(sessionOptions{out: &bytes.Buffer{}})
	assert.Equal(t, provider.DefaultModel(stream.OpenAI), sess.Model())

	sess.SetModel("gpt-4o-mini")
	assert.Equal(t, "gpt-4o-mini", sess.Model())
}

func TestReportTurnError(t *testing.T) {
	var out bytes.Buffer
	reportTurnError(&out, nil)
	assert.Empty(t, out.String())

	reportTurnError(&out, fmt.Errorf("send: %w", context.Canceled))
	assert.Contains(t, out.String(), "[Cancelled]")

	out.Reset()
	reportTurnError(&out, errors.New("dial tcp: refused"))
	assert.Contains(t, out.String(), "dial tcp: refused")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "first …", truncate("first\nsecond"))
	long := strings.Repeat("x", maxNoticeWidth+10)
	assert.Equal(t, strings.Repeat("x", maxNoticeWidth)+"…", truncate(long))
	assert.Equal(t, "ok", truncate("  ok  "))
}

// =============================================================================
// CHAT TESTS
// =============================================================================

func TestExitWord(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"exit", "exit", true},
		{"  QUIT ", "quit", true},
		{"Thanks", "thanks", true},
		{"q", "q", true},
		{"thanks a lot", "", false},
		{"hello", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := exitWord(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandleSlashCommand(t *testing.T) {
	isolate(t)
	var out bytes.Buffer
	a := &app{out: &out}
	transport := &scriptedTransport{turns: [][]stream.Event{{stream.TextEvent("answer")}}}
	sess := newTestSession(t, &bytes.Buffer{}, transport)
	_, err := sess.Send(context.Background(), "question")
	require.NoError(t, err)

	keep, err := a.handleSlashCommand("/history", sess)
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Contains(t, out.String(), "answer")

	keep, err = a.handleSlashCommand("/clear", sess)
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Zero(t, sess.History().Len())
	assert.Contains(t, out.String(), "[Conversation cleared]")

	keep, err = a.handleSlashCommand("/model gpt-4o", sess)
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, "gpt-4o", sess.opts.model)

	keep, err = a.handleSlashCommand("/copy", sess)
	assert.True(t, keep)
	assert.Error(t, err, "nothing to copy after clear")

	keep, err = a.handleSlashCommand("/bogus", sess)
	assert.True(t, keep)
	assert.ErrorContains(t, err, "unknown command")

	keep, err = a.handleSlashCommand("/quit", sess)
	require.NoError(t, err)
	assert.False(t, keep)
}

// =============================================================================
// PROMPT TESTS
// =============================================================================

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestSelectModel_Navigation(t *testing.T) {
	var m tea.Model = newSelectModel("Pick", []string{"a", "b", "c"}, 0)

	m, _ = m.Update(keyMsg("up"))
	assert.Equal(t, 2, m.(selectModel).cursor, "cursor wraps to the last item")

	m, _ = m.Update(keyMsg("down"))
	m, _ = m.Update(keyMsg("j"))
	assert.Equal(t, 1, m.(selectModel).cursor)

	m, cmd := m.Update(keyMsg("enter"))
	assert.True(t, m.(selectModel).chosen)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "b")
}

func TestSelectModel_Cancel(t *testing.T) {
	var m tea.Model = newSelectModel("Pick", []string{"a"}, 5)
	assert.Zero(t, m.(selectModel).cursor, "out of range initial resets to 0")

	m, _ = m.Update(keyMsg("esc"))
	assert.True(t, m.(selectModel).cancelled)
	assert.Empty(t, m.View())
}

func TestConfirmModel(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"y", true},
		{"Y", true},
		{"n", false},
		{"enter", false},
		{"esc", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			m, cmd := confirmModel{question: "Run tool 'x'?"}.Update(keyMsg(tt.key))
			require.NotNil(t, cmd)
			assert.True(t, m.(confirmModel).done)
			assert.Equal(t, tt.want, m.(confirmModel).answer)
		})
	}

	m, cmd := confirmModel{}.Update(keyMsg("x"))
	assert.Nil(t, cmd, "other keys are ignored")
	assert.False(t, m.(confirmModel).done)
}

func TestInputModel(t *testing.T) {
	var m tea.Model = newInputModel("Key?", "", true)

	m, cmd := m.Update(keyMsg("enter"))
	assert.False(t, m.(inputModel).done, "empty input is not submitted")
	assert.Nil(t, cmd)

	m, _ = m.Update(keyMsg("sk-123"))
	m, _ = m.Update(keyMsg("enter"))
	assert.True(t, m.(inputModel).done)
	assert.Equal(t, "sk-123", m.(inputModel).input.Value())
	assert.Contains(t, m.View(), "[hidden]")
	assert.NotContains(t, m.View(), "sk-123")
}

// =============================================================================
// COMMAND TESTS
// =============================================================================

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd(BuildInfo{Version: "1.2.3"}, strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"chat", "ask", "suggest", "explain", "models", "options", "changelog", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCommand(t *testing.T) {
	dir := isolate(t)
	var out bytes.Buffer
	cmd := NewRootCmd(BuildInfo{Version: "1.2.3", GitCommit: "abc123"}, strings.NewReader(""), &out, &bytes.Buffer{})
	cmd.SetArgs([]string{"--debug", "version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "termai 1.2.3")
	assert.Contains(t, out.String(), "abc123")
	assert.FileExists(t, filepath.Join(dir, "termai.log"))
}

func TestSetupRejectsInvalidConfig(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("log_level = \"loud\"\n"), 0o600))

	cmd := NewRootCmd(BuildInfo{}, strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
	cmd.SetArgs([]string{"version"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, GetExitCode(err))
}

func TestSetOption(t *testing.T) {
	dir := isolate(t)
	var out bytes.Buffer
	a := &app{out: &out}

	require.NoError(t, a.setOption("max_turns", "5"))
	assert.Contains(t, out.String(), "max_turns = 5")

	cfg, err := config.LoadFile(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxTurns)

	assert.ErrorIs(t, a.setOption("no_such_key", "1"), config.ErrUnknownKey)
	assert.Error(t, a.setOption("max_turns", "0"))
}

func TestExplain(t *testing.T) {
	var out bytes.Buffer
	a := &app{out: &out}
	fake := &fakeCompleter{reply: "Lists files, including hidden ones."}

	require.NoError(t, a.explain(context.Background(), fake, "ls -la"))
	assert.Contains(t, out.String(), "Explanation:")
	assert.Contains(t, out.String(), "Lists files, including hidden ones.")
	require.Len(t, fake.messages, 1)
	assert.Equal(t, []agent.Message{agent.UserMessage("ls -la")}, fake.messages[0])
}

func TestExplainCommandUsesCompleter(t *testing.T) {
	isolate(t)
	var out bytes.Buffer
	fake := &fakeCompleter{reply: "Prints the working directory."}
	a := &app{in: strings.NewReader(""), out: &out}
	var preamble string
	a.newCompleter = func(p string) (completer, error) {
		preamble = p
		return fake, nil
	}

	cmd := newExplainCmd(a)
	cmd.SetArgs([]string{"pwd"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, provider.ExplainPreamble, preamble)
	assert.Contains(t, out.String(), "Prints the working directory.")
}

func TestLatestRelease(t *testing.T) {
	md := "# Changelog\n\n## 2.0.0\n\n- new\n\n## 1.0.0\n\n- old\n"
	got := latestRelease(md)
	assert.Equal(t, "## 2.0.0\n\n- new\n", got)

	assert.Equal(t, "no sections", latestRelease("no sections"))
	assert.True(t, strings.HasPrefix(latestRelease(changelog), "## "))
}

// =============================================================================
// EXIT CODE TESTS
// =============================================================================

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return false }

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"cancelled", quietError(context.Canceled), ExitInterrupted},
		{"deadline", context.DeadlineExceeded, ExitTimeoutError},
		{"no tty", &TTYRequiredError{Operation: "select a model"}, ExitUsageError},
		{"no provider", config.ErrNoActiveProvider, ExitConfigError},
		{"no key", fmt.Errorf("openai: %w", provider.ErrNotConfigured), ExitConfigError},
		{"unauthorized", &agent.TurnError{Turn: 1, Err: &provider.APIError{Status: 401, Message: "bad key"}}, ExitAuthError},
		{"server error", &provider.APIError{Status: 500, Message: "boom"}, ExitGeneralError},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, ExitNetworkError},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, ExitTimeoutError},
		{"stream", &stream.TransportError{Err: errors.New("reset")}, ExitNetworkError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestQuietError(t *testing.T) {
	assert.NoError(t, quietError(nil))
	cause := errors.New("shown")
	err := quietError(cause)
	assert.ErrorIs(t, err, errReported)
	assert.ErrorIs(t, err, cause)
}
