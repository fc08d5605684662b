package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-chat/internal/chat"
	"github.com/tjfontaine/polyglot-chat/internal/domain"
	"github.com/tjfontaine/polyglot-chat/internal/retry"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	toolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

const toolNotExecuted = "tool execution is not available in this client"

var systemPrompt string

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Start an interactive chat, or send a single prompt",
	Long: `Start an interactive chat session with the selected backend.

With a prompt argument the prompt is sent once and the reply printed.
Inside a session:
  /clear  start a new conversation
  /exit   quit`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&systemPrompt, "system", "s", "", "system prompt")
}

// session holds one conversation's transcript.
type session struct {
	app        *app
	out        io.Writer
	transcript []domain.Message
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	s := &session{app: a, out: cmd.OutOrStdout()}
	s.reset()

	if len(args) > 0 {
		return s.send(cmd.Context(), strings.Join(args, " "))
	}

	fmt.Fprintln(s.out, titleStyle.Render(fmt.Sprintf("polyglot chat · %s · %s", a.client.BackendName(), a.backend.Model)))
	fmt.Fprintln(s.out, dimStyle.Render("/clear to start over, /exit to quit"))

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(s.out, promptStyle.Render("you> "))
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/clear":
			s.reset()
			fmt.Fprintln(s.out, dimStyle.Render("conversation cleared"))
			continue
		}

		if err := s.send(cmd.Context(), line); err != nil {
			fmt.Fprintln(s.out, errorStyle.Render(describeError(err)))
		}
	}
}

func (s *session) reset() {
	s.transcript = s.transcript[:0]
	if systemPrompt != "" {
		s.transcript = append(s.transcript, domain.Message{Role: domain.RoleSystem, Content: systemPrompt})
	}
}

// send runs one turn. Ctrl-C cancels the turn, not the session.
func (s *session) send(parent context.Context, prompt string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()
	if t := s.app.cfg.RequestTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	turn := append(s.transcript, domain.Message{Role: domain.RoleUser, Content: prompt})

	res, err := s.app.client.SendChat(ctx, turn, chat.SendOptions{
		Model:  s.app.backend.Model,
		OnText: func(text string) { fmt.Fprint(s.out, text) },
	})
	if err != nil {
		fmt.Fprintln(s.out)
		return err
	}
	if res.Text != "" {
		fmt.Fprintln(s.out)
	}

	turn = append(turn, domain.Message{Role: domain.RoleAssistant, Content: res.Text, ToolCalls: res.ToolCalls})
	for _, tc := range res.ToolCalls {
		fmt.Fprintln(s.out, toolStyle.Render(fmt.Sprintf("→ %s(%s) [%s]", tc.Function.Name, tc.Function.Arguments, tc.ID)))
		turn = append(turn, domain.Message{
			Role:       domain.RoleTool,
			ToolCallID: tc.ID,
			Name:       tc.Function.Name,
			Content:    toolNotExecuted,
		})
	}
	s.transcript = turn

	if md := res.Metadata; md != nil && md.Usage != nil {
		usage := fmt.Sprintf("%d in / %d out tokens", md.Usage.PromptTokens, md.Usage.CompletionTokens)
		if md.Usage.Estimated {
			usage = "~" + usage
		}
		fmt.Fprintln(s.out, dimStyle.Render(fmt.Sprintf("%s · %s · %d attempt(s)", usage, md.Duration.Round(time.Millisecond), md.Attempts)))
	}
	return nil
}

// describeError renders a classified error with a hint on what to do next.
func describeError(err error) string {
	var pe *domain.ProviderError
	if !errors.As(err, &pe) {
		return "error: " + err.Error()
	}
	msg := "error: " + pe.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		msg += " (request_timeout reached)"
	case retry.IsContextError(err):
		msg += " (cancelled)"
	case pe.Category == domain.CategoryAuthentication:
		msg += " (check the api key for this backend)"
	case pe.Kind == domain.KindConfiguration:
		msg += " (check the backend configuration)"
	case pe.Retryable:
		msg += " (retries exhausted, try again later or switch backend with --backend)"
	}
	return msg
}
