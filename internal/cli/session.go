// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// session.go - One conversation: transport selection per turn, the
// terminal sink that drives spinner and renderer, and tool confirmation.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/termai/internal/agent"
	"github.com/jeranaias/termai/internal/config"
	"github.com/jeranaias/termai/internal/logging"
	"github.com/jeranaias/termai/internal/provider"
	"github.com/jeranaias/termai/internal/render"
	"github.com/jeranaias/termai/internal/spinner"
	"github.com/jeranaias/termai/internal/stream"
	"github.com/jeranaias/termai/internal/tools"
)

// maxNoticeWidth truncates tool arguments and output in transcript notices.
const maxNoticeWidth = 120

// =============================================================================
// SESSION
// =============================================================================

// sessionOptions are fixed for the lifetime of a session.
type sessionOptions struct {
	in  io.Reader
	out io.Writer

	// interactive enables markdown redraw, the spinner and prompts.
	interactive bool
	// canPrompt allows tool confirmation prompts on stdin.
	canPrompt bool

	model    string // overrides the configured model when set
	noStream bool
	search   bool
	preamble string

	registry *tools.Registry
	logger   *zap.Logger

	// transport replaces the provider client, for tests.
	transport agent.Transport
	width     func() int
	formatter render.Formatter
}

// Session is one chat or ask conversation.
type Session struct {
	opts    sessionOptions
	loop    *agent.Loop
	printer *turnPrinter
	logger  *zap.Logger
}

func newSession(opts sessionOptions) *Session {
	if opts.logger == nil {
		opts.logger = logging.L()
	}
	if opts.width == nil {
		opts.width = GetTerminalWidth
	}
	if opts.formatter == nil {
		opts.formatter = render.NewMarkdown(MarkdownStyle())
	}

	s := &Session{opts: opts}
	loopOpts := []agent.Option{
		agent.WithSink(agent.SinkFunc(s.handle)),
		agent.WithConfirmer(agent.ConfirmFunc(s.confirm)),
		agent.WithMaxTurns(config.Global().MaxTurns),
		agent.WithLogger(opts.logger),
	}
	if opts.registry != nil && opts.registry.Len() > 0 {
		loopOpts = append(loopOpts, agent.WithTools(opts.registry, opts.registry.Specs()))
	}
	s.loop = agent.NewLoop(opts.transport, loopOpts...)
	s.logger = opts.logger.With(zap.String("session", s.loop.SessionID()))
	return s
}

// History returns the conversation so far.
func (s *Session) History() *agent.Conversation { return s.loop.History() }

// SetModel overrides the model for the rest of the session.
func (s *Session) SetModel(model string) { s.opts.model = model }

// Model returns the model the next turn will use.
func (s *Session) Model() string {
	settings, err := s.settings()
	if err != nil {
		return ""
	}
	if s.opts.search && settings.SearchModel != "" {
		return settings.SearchModel
	}
	return settings.Model
}

// Send runs one exchange. Errors already shown in the transcript are
// returned wrapped in agent.TurnError so callers do not print them twice.
func (s *Session) Send(ctx context.Context, prompt string) (string, error) {
	if s.opts.transport == nil {
		client, err := s.client()
		if err != nil {
			return "", err
		}
		s.loop.SetTransport(client)
	}

	start := time.Now()
	s.logger.Info("turn started", zap.String("model", s.Model()))

	s.printer = newTurnPrinter(s.opts)
	defer s.printer.close()
	s.printer.begin()

	reply, err := s.loop.Send(ctx, prompt)

	s.printer.end()
	s.logger.Info("turn finished",
		zap.Duration("duration", time.Since(start)),
		zap.Int("history", s.loop.History().Len()),
		zap.Error(err))
	return reply, err
}

// settings reads the active provider from the live configuration.
func (s *Session) settings() (provider.Settings, error) {
	p, err := config.Global().ActiveAccount()
	if err != nil {
		return provider.Settings{}, err
	}
	settings, err := p.Settings()
	if err != nil {
		return provider.Settings{}, err
	}
	if s.opts.model != "" {
		if provider.IsSearchModel(s.opts.model) {
			settings.SearchModel = s.opts.model
		} else {
			settings.Model = s.opts.model
		}
	}
	return settings, nil
}

// client builds the provider transport for the next turn.
func (s *Session) client() (*provider.Client, error) {
	settings, err := s.settings()
	if err != nil {
		return nil, err
	}
	cfg := config.Global()
	opts := []provider.Option{
		provider.WithStreaming(cfg.UseStreaming && !s.opts.noStream),
		provider.WithTimeout(cfg.RequestTimeout()),
		provider.WithSearch(s.opts.search),
		provider.WithLogger(s.opts.logger),
	}
	if s.opts.preamble != "" {
		opts = append(opts, provider.WithPreamble(s.opts.preamble))
	}
	return provider.New(settings, opts...), nil
}

func (s *Session) handle(ev stream.Event) {
	if s.printer != nil {
		s.printer.handle(ev)
	}
}

// confirm asks whether a tool call may run. Without a terminal on stdin
// every call is denied.
func (s *Session) confirm(description string) bool {
	if !s.opts.canPrompt {
		fmt.Fprintln(s.opts.out, WarningStyle.Render(description+" denied: no terminal for confirmation"))
		return false
	}
	ok, err := Confirm(s.opts.in, s.opts.out, description)
	if err != nil {
		s.logger.Warn("confirmation prompt failed", zap.Error(err))
		return false
	}
	return ok
}

// =============================================================================
// TURN PRINTER
// =============================================================================

// turnPrinter hands the terminal between spinner, renderer and prompts for
// one exchange.
type turnPrinter struct {
	out      io.Writer
	renderer *render.Renderer
	spinner  *spinner.Coordinator
	cursor   *render.CursorGuard
	logger   *zap.Logger
}

func newTurnPrinter(opts sessionOptions) *turnPrinter {
	p := &turnPrinter{out: opts.out, logger: opts.logger}
	if opts.interactive {
		p.renderer = render.New(opts.out,
			render.WithFormatter(opts.formatter),
			render.WithWidth(opts.width),
			render.WithLogger(opts.logger))
		p.spinner = spinner.New(opts.out)
	}
	return p
}

func (p *turnPrinter) begin() {
	fmt.Fprintln(p.out, AILabel())
	if p.renderer == nil {
		return
	}
	p.cursor = p.renderer.HideCursor()
	p.spinner.Start()
}

func (p *turnPrinter) end() {
	if p.spinner != nil {
		p.spinner.Stop()
	}
}

// close restores the cursor on every exit path.
func (p *turnPrinter) close() {
	p.end()
	p.cursor.Restore()
}

func (p *turnPrinter) handle(ev stream.Event) {
	if p.spinner != nil {
		p.spinner.Handle(ev)
	}

	switch ev.Kind {
	case stream.EventText:
		p.text(ev.Text)

	case stream.EventToolCallRequest:
		p.notice(ToolStyle.Render("⚙ "+ev.Call.Name) + " " + DimStyle.Render(truncate(ev.Call.Arguments)))

	case stream.EventPauseRendering:
		if p.renderer != nil {
			if err := p.renderer.Finish(); err != nil {
				p.logger.Debug("renderer finish failed", zap.Error(err))
			}
		}

	case stream.EventToolCallResult:
		if p.spinner != nil {
			p.spinner.Finish()
		}
		p.notice(DimStyle.Render("↳ " + ev.Result.Name + ": " + truncate(ev.Result.Output)))
		if p.spinner != nil {
			p.spinner.Start()
		}

	case stream.EventError:
		if p.renderer != nil {
			_ = p.renderer.Finish()
			p.text(ev.Text)
			_ = p.renderer.Finish()
		} else {
			fmt.Fprintln(p.out, ev.Text)
		}

	case stream.EventDone:
		if p.renderer != nil {
			_ = p.renderer.Finish()
		} else {
			fmt.Fprintln(p.out)
		}
	}
}

func (p *turnPrinter) text(delta string) {
	if p.renderer == nil {
		_, _ = io.WriteString(p.out, delta)
		return
	}
	if err := p.renderer.OnDelta(delta); err != nil {
		p.logger.Debug("redraw failed", zap.Error(err))
	}
}

func (p *turnPrinter) notice(line string) {
	if p.renderer != nil {
		_ = p.renderer.Println(line)
		return
	}
	fmt.Fprintln(p.out, line)
}

// truncate keeps the first line of s within maxNoticeWidth.
func truncate(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " …"
	}
	if r := []rune(s); len(r) > maxNoticeWidth {
		s = string(r[:maxNoticeWidth]) + "…"
	}
	return s
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// reportTurnError prints a turn failure unless the transcript already shows it.
func reportTurnError(out io.Writer, err error) {
	var turnErr *agent.TurnError
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(out, DimStyle.Render("[Cancelled]"))
	case errors.As(err, &turnErr):
		// Shown inline by the sink.
	default:
		fmt.Fprintln(out, RenderError(err.Error()))
	}
}
