package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"golang.org/x/term"

	"github.com/aria-ai/aria/internal/infrastructure/llm"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("6")).
			Padding(0, 2)
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	toolStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

const replHelp = `Commands:
  /new    start a fresh conversation
  /last   re-render the last reply as markdown
  /help   show this help
  /quit   exit`

// REPLConfig holds the client session settings.
type REPLConfig struct {
	ServerURL string
	AgentSlug string
}

// RunREPL connects to the server and runs the interactive loop until
// EOF or /quit.
func RunREPL(cfg REPLConfig) error {
	client := NewClient(cfg.ServerURL)

	ctx := context.Background()
	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("cannot reach server at %s: %w", cfg.ServerURL, err)
	}

	conv, err := client.CreateConversation(ctx, cfg.AgentSlug)
	if err != nil {
		return err
	}
	conversationID := conv.ID

	printBanner(cfg.ServerURL, conversationID)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\001\033[1;36m\002❯\001\033[0m\002 ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer rl.Close()

	renderer := newMarkdownRenderer()
	var lastReply string

	for {
		input, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println(dimStyle.Render("bye"))
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			switch strings.Fields(input)[0] {
			case "/quit", "/exit":
				fmt.Println(dimStyle.Render("bye"))
				return nil
			case "/help":
				fmt.Println(replHelp)
			case "/new":
				conv, err := client.CreateConversation(ctx, cfg.AgentSlug)
				if err != nil {
					fmt.Println(errStyle.Render("✗ " + err.Error()))
					continue
				}
				conversationID = conv.ID
				lastReply = ""
				fmt.Println(dimStyle.Render("started conversation " + conversationID))
			case "/last":
				if lastReply == "" {
					fmt.Println(dimStyle.Render("nothing to render yet"))
					continue
				}
				fmt.Println(renderer.render(lastReply))
			default:
				fmt.Println(dimStyle.Render("unknown command, try /help"))
			}
			continue
		}

		lastReply = runTurn(client, conversationID, input)
	}
}

// runTurn streams one reply to the terminal and returns the collected
// text. Ctrl+C during streaming cancels the turn, not the REPL.
func runTurn(client *Client, conversationID, input string) string {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\n" + dimStyle.Render("⏹ interrupted"))
			cancel()
		case <-ctx.Done():
		}
	}()

	var reply strings.Builder
	err := client.StreamMessage(ctx, conversationID, input, func(chunk llm.Chunk) {
		switch chunk.Type {
		case llm.ChunkText:
			fmt.Print(chunk.Text)
			reply.WriteString(chunk.Text)
		case llm.ChunkToolCall:
			if chunk.ToolCall != nil {
				fmt.Println("\n" + toolStyle.Render("⚙ "+chunk.ToolCall.Name) +
					dimStyle.Render(" "+summarizeArgs(chunk.ToolCall.Arguments)))
			}
		case llm.ChunkDone:
			if !strings.HasSuffix(reply.String(), "\n") {
				fmt.Println()
			}
			if chunk.Usage != nil && chunk.Usage.InputTokens+chunk.Usage.OutputTokens > 0 {
				fmt.Println(dimStyle.Render(fmt.Sprintf("─── %d in · %d out tokens ───",
					chunk.Usage.InputTokens, chunk.Usage.OutputTokens)))
			}
		case llm.ChunkError:
			fmt.Println("\n" + errStyle.Render("✗ "+chunk.Error))
		}
	})
	if err != nil && ctx.Err() == nil {
		fmt.Println(errStyle.Render("✗ " + err.Error()))
	}
	return reply.String()
}

func printBanner(serverURL, conversationID string) {
	content := titleStyle.Render("Aria") + "\n" +
		dimStyle.Render("server       ") + serverURL + "\n" +
		dimStyle.Render("conversation ") + conversationID + "\n" +
		dimStyle.Render("type /help for commands")
	fmt.Println(bannerStyle.Render(content))
}

// markdownRenderer wraps glamour with a plain-text fallback.
type markdownRenderer struct {
	inner *glamour.TermRenderer
}

func newMarkdownRenderer() *markdownRenderer {
	r, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(termWidth()-4),
	)
	return &markdownRenderer{inner: r}
}

func (m *markdownRenderer) render(md string) string {
	if m.inner == nil {
		return md
	}
	out, err := m.inner.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}

func summarizeArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	for _, key := range []string{"command", "path", "query", "url"} {
		if v, ok := args[key]; ok {
			return truncate(fmt.Sprintf("%v", v), 60)
		}
	}
	for _, v := range args {
		return truncate(fmt.Sprintf("%v", v), 60)
	}
	return ""
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}
