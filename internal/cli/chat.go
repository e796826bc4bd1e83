// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command for termai CLI.
//
// Handles the "termai chat" command (also the default command) which
// provides an interactive REPL for conversing with the active provider.
//
// Command: chat [message...]
// Short:   Start an interactive chat session
//
// Examples:
//
//	termai                             Start interactive chat
//	termai chat "why is the sky blue"  Start with an initial message
//	termai chat -m gpt-4o-mini         Use a specific model
//	termai chat --select-model         Pick the model from a menu
//
// Flags:
//
//	-m, --model MODEL    Override the configured model
//	--select-model       Choose a model before starting
//	--no-stream          Wait for complete replies
//
// Interactive Commands (during chat):
//
//	/help, /h, /?    Show available commands
//	/clear, clear    Clear conversation history
//	/model           Pick a model of the active provider
//	/copy            Copy the last reply to the clipboard
//	/history         Show the conversation
//	/quit, /q        Exit chat
//	exit, q, quit, goodbye, thanks   Exit chat

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/termai/internal/agent"
	"github.com/jeranaias/termai/internal/config"
	"github.com/jeranaias/termai/internal/tools"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	cli := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	cli.LoadHistory()
	return cli
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history to file with secure permissions.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// COMMAND
// =============================================================================

type chatFlags struct {
	model       string
	selectModel bool
	noStream    bool
}

func (flags *chatFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flags.model, "model", "m", "", "Override the configured model")
	cmd.Flags().BoolVar(&flags.selectModel, "select-model", false, "Choose a model before starting")
	cmd.Flags().BoolVar(&flags.noStream, "no-stream", false, "Wait for complete replies")
}

func newChatCmd(a *app) *cobra.Command {
	var flags chatFlags
	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd.Context(), flags, strings.Join(args, " "))
		},
	}
	flags.register(cmd)
	return cmd
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

func (a *app) runChat(ctx context.Context, flags chatFlags, initial string) error {
	cfg := config.Global()
	if _, err := cfg.ActiveAccount(); err != nil {
		return err
	}

	model := flags.model
	if flags.selectModel {
		picked, err := a.pickModel(cfg, "")
		if err != nil {
			return err
		}
		model = picked
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.watchConfig(ctx)

	registry := a.connectTools(ctx, cfg)
	defer registry.Close()

	sess := newSession(sessionOptions{
		in:          a.in,
		out:         a.out,
		interactive: IsStdoutTTY(),
		canPrompt:   IsTTY(),
		model:       model,
		noStream:    flags.noStream,
		registry:    registry,
		logger:      a.logger,
	})

	repl := NewChatCLI()
	defer repl.Close()

	if initial == "" {
		fmt.Fprintf(a.out, "\n%s\nWhat can I help with?\n", AILabel())
	}

	for {
		fmt.Fprintf(a.out, "\n%s\n", UserLabel())

		input := strings.TrimSpace(initial)
		if input != "" {
			fmt.Fprintln(a.out, input)
			initial = ""
		} else {
			line, err := repl.ReadInput("")
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintf(a.out, "\n%s\nGoodbye! 👋\n\n", AILabel())
				return nil
			}
			if err != nil {
				return err
			}
			input = strings.TrimSpace(line)
			if input == "" {
				continue
			}
		}
		fmt.Fprintln(a.out)

		if word, ok := exitWord(input); ok {
			if word == "thanks" {
				fmt.Fprintf(a.out, "%s\nYou're welcome! 😊\nGoodbye! 👋\n\n", AILabel())
			} else {
				fmt.Fprintf(a.out, "%s\nGoodbye! 👋\n\n", AILabel())
			}
			return nil
		}

		if strings.EqualFold(input, "clear") || strings.HasPrefix(input, "/") {
			if strings.EqualFold(input, "clear") {
				input = "/clear"
			}
			keepGoing, err := a.handleSlashCommand(input, sess)
			if err != nil {
				fmt.Fprintln(a.out, RenderError(err.Error()))
			}
			if !keepGoing {
				return nil
			}
			continue
		}

		turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		_, err := sess.Send(turnCtx, input)
		stop()
		reportTurnError(a.out, err)
	}
}

// exitWords end the chat when typed on their own.
var exitWords = []string{"exit", "q", "quit", "goodbye", "thanks"}

func exitWord(input string) (string, bool) {
	word := strings.ToLower(strings.TrimSpace(input))
	for _, w := range exitWords {
		if word == w {
			return w, true
		}
	}
	return "", false
}

// connectTools spawns the configured MCP servers. Failures are logged and
// the chat continues without those tools.
func (a *app) connectTools(ctx context.Context, cfg *config.Config) *tools.Registry {
	registry := tools.NewRegistry(a.version, tools.WithLogger(a.logger))
	if len(cfg.MCPServers) == 0 {
		return registry
	}

	servers := make([]tools.ServerConfig, 0, len(cfg.MCPServers))
	for _, s := range cfg.MCPServers {
		servers = append(servers, tools.ServerConfig{Name: s.Name, Command: s.Command, Args: s.Args, Env: s.Env})
	}
	registry.Connect(ctx, servers)

	if n := len(registry.Specs()); n > 0 {
		fmt.Fprintln(a.out, DimStyle.Render(fmt.Sprintf("%d tools available from %d of %d servers", n, registry.Len(), len(servers))))
	} else {
		fmt.Fprintln(a.out, WarningStyle.Render("No MCP tools available; see the log for details"))
	}
	return registry
}

// watchConfig keeps config.Global in step with the file until ctx ends.
func (a *app) watchConfig(ctx context.Context) {
	path, err := config.ConfigPath()
	if err != nil {
		return
	}
	go func() {
		if err := config.Watch(ctx, path, a.logger, config.SetGlobal); err != nil {
			a.logger.Warn("config watch disabled", zap.Error(err))
		}
	}()
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands.
// Returns (shouldContinue, error) where shouldContinue=false means exit.
func (a *app) handleSlashCommand(cmd string, sess *Session) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}

	switch strings.ToLower(parts[0]) {
	case "/help", "/h", "/?", "/":
		a.printChatHelp()
		return true, nil

	case "/clear", "/c":
		sess.History().Clear()
		fmt.Fprintln(a.out, DimStyle.Render("[Conversation cleared]"))
		fmt.Fprintf(a.out, "\n%s\nWhat can I help with?\n", AILabel())
		return true, nil

	case "/model", "/m":
		if len(parts) > 1 {
			sess.SetModel(parts[1])
		} else {
			picked, err := a.pickModel(config.Global(), sess.Model())
			if errors.Is(err, ErrPromptCancelled) {
				return true, nil
			}
			if err != nil {
				return true, err
			}
			sess.SetModel(picked)
		}
		fmt.Fprintln(a.out, RenderSuccess("Using model "+sess.Model()))
		return true, nil

	case "/copy":
		reply := sess.History().LastReply()
		if reply == "" {
			return true, errors.New("nothing to copy yet")
		}
		if err := clipboard.WriteAll(reply); err != nil {
			return true, fmt.Errorf("copy to clipboard: %w", err)
		}
		fmt.Fprintln(a.out, RenderSuccess("Copied last reply to clipboard"))
		return true, nil

	case "/history":
		a.printHistory(sess.History().Messages())
		return true, nil

	case "/quit", "/q", "/exit":
		fmt.Fprintf(a.out, "%s\nGoodbye! 👋\n\n", AILabel())
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", parts[0])
	}
}

// pickModel offers the models of the active provider.
func (a *app) pickModel(cfg *config.Config, current string) (string, error) {
	if err := RequiresTTY("select a model"); err != nil {
		return "", err
	}
	kind, err := cfg.ActiveKind()
	if err != nil {
		return "", err
	}
	models := cfg.ModelsFor(kind)
	items := make([]string, len(models))
	initial := 0
	for i, m := range models {
		items[i] = m.DisplayName
		if m.DisplayName != m.ID {
			items[i] += DimStyle.Render(" (" + m.ID + ")")
		}
		if m.ID == current {
			initial = i
		}
	}
	idx, err := Select(a.in, a.out, "Select a "+kind.DisplayName()+" model", items, initial)
	if err != nil {
		return "", err
	}
	return models[idx].ID, nil
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

func (a *app) printChatHelp() {
	fmt.Fprintln(a.out, TitleStyle.Render("Chat commands"))
	rows := [][2]string{
		{"/help", "Show this help"},
		{"/clear, clear", "Clear conversation history"},
		{"/model [id]", "Switch model for this session"},
		{"/copy", "Copy the last reply to the clipboard"},
		{"/history", "Show the conversation"},
		{"/quit, exit, q", "Leave the chat"},
	}
	for _, r := range rows {
		fmt.Fprintln(a.out, "  "+RenderLabel(r[0])+ValueStyle.Render(r[1]))
	}
	fmt.Fprintln(a.out, DimStyle.Render("  Ctrl-C cancels a reply; Ctrl-C at the prompt exits."))
}

func (a *app) printHistory(msgs []agent.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(a.out, DimStyle.Render("[No messages yet]"))
		return
	}
	fmt.Fprintln(a.out, RenderSeparator())
	for _, m := range msgs {
		switch m.Role {
		case agent.RoleUser:
			fmt.Fprintf(a.out, "%s %s\n", UserLabel(), m.Content)
		case agent.RoleAssistant:
			if m.Content != "" {
				fmt.Fprintf(a.out, "%s %s\n", AILabel(), truncate(m.Content))
			}
			for _, c := range m.ToolCalls {
				fmt.Fprintln(a.out, ToolStyle.Render("  ⚙ "+c.Name)+" "+DimStyle.Render(truncate(c.Arguments)))
			}
		case agent.RoleTool:
			fmt.Fprintln(a.out, DimStyle.Render("  ↳ "+m.ToolName+": "+truncate(m.Content)))
		}
	}
	fmt.Fprintln(a.out, RenderSeparator())
}
